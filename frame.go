// Raw frame types passed from capture sources to preview surfaces.
package livecam

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420 PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                    // YUV 4:2:0 semi-planar (Y + interleaved UV)
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3 // Y, U, V
	case PixelFormatNV12:
		return 2 // Y, UV
	default:
		return 0
	}
}

// VideoFrame represents a raw video frame.
// Sources reuse their buffers: a frame is only valid until the next frame
// is produced. Use Clone or CopyInto to keep it.
type VideoFrame struct {
	Data      [][]byte    // Plane data
	Stride    []int       // Stride for each plane in bytes
	Width     int         // Frame width in pixels
	Height    int         // Frame height in pixels
	Format    PixelFormat // Pixel format
	Timestamp int64       // Capture timestamp in nanoseconds
	Duration  int64       // Frame duration in nanoseconds (optional)
}

// Clone creates a deep copy of the video frame.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{}
	f.CopyInto(clone)
	return clone
}

// CopyInto deep-copies f into dst, reusing dst's plane buffers when they are
// large enough.
func (f *VideoFrame) CopyInto(dst *VideoFrame) {
	if cap(dst.Data) < len(f.Data) {
		dst.Data = make([][]byte, len(f.Data))
	}
	dst.Data = dst.Data[:len(f.Data)]
	for i, plane := range f.Data {
		if plane == nil {
			dst.Data[i] = nil
			continue
		}
		if cap(dst.Data[i]) < len(plane) {
			dst.Data[i] = make([]byte, len(plane))
		}
		dst.Data[i] = dst.Data[i][:len(plane)]
		copy(dst.Data[i], plane)
	}
	dst.Stride = append(dst.Stride[:0], f.Stride...)
	dst.Width = f.Width
	dst.Height = f.Height
	dst.Format = f.Format
	dst.Timestamp = f.Timestamp
	dst.Duration = f.Duration
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	return ySize + uvSize*2
}
