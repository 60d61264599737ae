package livecam

import (
	"math"
	"sync/atomic"
)

// digitalZoom holds a zoom factor shared between the engine goroutine that
// sets it and the capture goroutine that applies it.
type digitalZoom struct {
	bits atomic.Uint64 // math.Float64bits of the factor
}

func (z *digitalZoom) Set(factor float64) { z.bits.Store(math.Float64bits(clampZoom(factor))) }

func (z *digitalZoom) Get() float64 {
	if f := math.Float64frombits(z.bits.Load()); f >= DefaultZoom {
		return f
	}
	return DefaultZoom
}

// zoomFrame crops the centered 1/factor region of src and scales it back
// to src's size into dst, reusing dst's buffers. Only I420 is supported;
// anything else, or a factor of 1, returns src untouched.
func zoomFrame(dst, src *VideoFrame, factor float64) *VideoFrame {
	if factor <= DefaultZoom || src.Format != PixelFormatI420 || len(src.Data) < 3 {
		return src
	}
	w, h := src.Width, src.Height
	cropW := max(int(float64(w)/factor)&^1, 2)
	cropH := max(int(float64(h)/factor)&^1, 2)
	x := ((w - cropW) / 2) &^ 1
	y := ((h - cropH) / 2) &^ 1

	cw, ch := w/2, h/2
	dst.Data = growPlanes(dst.Data, w*h, cw*ch, cw*ch)
	dst.Stride = append(dst.Stride[:0], w, cw, cw)

	scalePlane(src.Data[0], src.Stride[0], x, y, cropW, cropH, dst.Data[0], w, w, h)
	scalePlane(src.Data[1], src.Stride[1], x/2, y/2, cropW/2, cropH/2, dst.Data[1], cw, cw, ch)
	scalePlane(src.Data[2], src.Stride[2], x/2, y/2, cropW/2, cropH/2, dst.Data[2], cw, cw, ch)

	dst.Width = w
	dst.Height = h
	dst.Format = PixelFormatI420
	dst.Timestamp = src.Timestamp
	dst.Duration = src.Duration
	return dst
}

func growPlanes(planes [][]byte, sizes ...int) [][]byte {
	if cap(planes) < len(sizes) {
		planes = make([][]byte, len(sizes))
	}
	planes = planes[:len(sizes)]
	for i, n := range sizes {
		if cap(planes[i]) < n {
			planes[i] = make([]byte, n)
		}
		planes[i] = planes[i][:n]
	}
	return planes
}

// scalePlane resamples the srcW x srcH region at (srcX, srcY) onto a
// dstW x dstH plane with bilinear interpolation in 16.16 fixed point.
func scalePlane(src []byte, srcStride, srcX, srcY, srcW, srcH int,
	dst []byte, dstStride, dstW, dstH int) {

	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}

	xRatio := (srcW << 16) / dstW
	yRatio := (srcH << 16) / dstH

	for y := 0; y < dstH; y++ {
		fy := y * yRatio
		y0 := fy>>16 + srcY
		y1 := y0 + 1
		if y1 >= srcY+srcH {
			y1 = y0
		}
		wy := fy & 0xFFFF

		for x := 0; x < dstW; x++ {
			fx := x * xRatio
			x0 := fx>>16 + srcX
			x1 := x0 + 1
			if x1 >= srcX+srcW {
				x1 = x0
			}
			wx := fx & 0xFFFF

			top := (int(src[y0*srcStride+x0])*(0x10000-wx) + int(src[y0*srcStride+x1])*wx) >> 16
			bottom := (int(src[y1*srcStride+x0])*(0x10000-wx) + int(src[y1*srcStride+x1])*wx) >> 16
			dst[y*dstStride+x] = byte((top*(0x10000-wy) + bottom*wy) >> 16)
		}
	}
}
