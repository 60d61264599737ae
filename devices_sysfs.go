package livecam

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// SysfsDeviceProvider enumerates Linux capture devices: V4L2 cameras from
// /sys/class/video4linux and ALSA capture PCMs from /proc/asound/pcm.
// On other platforms, or in containers without those trees, it reports no
// devices.
type SysfsDeviceProvider struct {
	root string
}

// NewSysfsDeviceProvider reads from the given filesystem root ("/" for the
// running system).
func NewSysfsDeviceProvider(root string) *SysfsDeviceProvider {
	if root == "" {
		root = "/"
	}
	return &SysfsDeviceProvider{root: root}
}

// ListVideoDevices implements DeviceProvider.
func (p *SysfsDeviceProvider) ListVideoDevices(ctx context.Context) ([]DeviceInfo, error) {
	dir := filepath.Join(p.root, "sys", "class", "video4linux")
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var devices []DeviceInfo
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		// Metadata nodes share the camera's name but report index > 0.
		if index := readTrimmed(filepath.Join(dir, name, "index")); index != "" && index != "0" {
			continue
		}
		label := readTrimmed(filepath.Join(dir, name, "name"))
		if label == "" {
			label = name
		}
		devices = append(devices, DeviceInfo{
			DeviceID: "/dev/" + name,
			GroupID:  label,
			Kind:     DeviceKindVideoInput,
			Label:    label,
			Position: positionFromLabel(label),
		})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].DeviceID < devices[j].DeviceID })
	return devices, nil
}

// ListAudioInputDevices implements DeviceProvider.
func (p *SysfsDeviceProvider) ListAudioInputDevices(ctx context.Context) ([]DeviceInfo, error) {
	f, err := os.Open(filepath.Join(p.root, "proc", "asound", "pcm"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Lines look like: "00-00: ALC257 Analog : ALC257 Analog : playback 1 : capture 1"
	var devices []DeviceInfo
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ":")
		if len(fields) < 3 {
			continue
		}
		capture := false
		for _, field := range fields[3:] {
			if strings.HasPrefix(strings.TrimSpace(field), "capture") {
				capture = true
			}
		}
		if !capture {
			continue
		}
		card, dev, ok := strings.Cut(strings.TrimSpace(fields[0]), "-")
		if !ok {
			continue
		}
		cardNum, err1 := strconv.Atoi(card)
		devNum, err2 := strconv.Atoi(dev)
		if err1 != nil || err2 != nil {
			continue
		}
		devices = append(devices, DeviceInfo{
			DeviceID: fmt.Sprintf("hw:%d,%d", cardNum, devNum),
			GroupID:  fmt.Sprintf("card%d", cardNum),
			Kind:     DeviceKindAudioInput,
			Label:    strings.TrimSpace(fields[1]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return devices, nil
}

// positionFromLabel guesses the facing direction of built-in cameras.
func positionFromLabel(label string) CameraPosition {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "front") || strings.Contains(l, "user facing"):
		return CameraPositionFront
	case strings.Contains(l, "back") || strings.Contains(l, "rear") || strings.Contains(l, "world facing"):
		return CameraPositionBack
	default:
		return CameraPositionUnspecified
	}
}

func readTrimmed(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
