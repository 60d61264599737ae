package livecam

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSysfsDeviceProvider_Video(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, map[string]string{
		"sys/class/video4linux/video0/name":  "Integrated Camera: Integrated C\n",
		"sys/class/video4linux/video0/index": "0\n",
		"sys/class/video4linux/video1/name":  "Integrated Camera: Integrated C\n",
		"sys/class/video4linux/video1/index": "1\n",
		"sys/class/video4linux/video2/name":  "Front Camera\n",
		"sys/class/video4linux/video2/index": "0\n",
		"sys/class/video4linux/video3/name":  "Rear Camera\n",

		"sys/class/video4linux/v4l-subdev0/name": "sensor\n",
	})

	devices, err := NewSysfsDeviceProvider(root).ListVideoDevices(context.Background())
	if err != nil {
		t.Fatalf("ListVideoDevices failed: %v", err)
	}

	want := []struct {
		id       string
		label    string
		position CameraPosition
	}{
		{"/dev/video0", "Integrated Camera: Integrated C", CameraPositionUnspecified},
		{"/dev/video2", "Front Camera", CameraPositionFront},
		{"/dev/video3", "Rear Camera", CameraPositionBack},
	}
	if len(devices) != len(want) {
		t.Fatalf("devices = %+v, want %d", devices, len(want))
	}
	for i, w := range want {
		d := devices[i]
		if d.DeviceID != w.id || d.Label != w.label || d.Position != w.position {
			t.Errorf("device %d = %+v, want %s %q %v", i, d, w.id, w.label, w.position)
		}
		if d.Kind != DeviceKindVideoInput {
			t.Errorf("device %d kind = %v", i, d.Kind)
		}
	}
}

func TestSysfsDeviceProvider_Audio(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, map[string]string{
		"proc/asound/pcm": "00-00: ALC257 Analog : ALC257 Analog : playback 1 : capture 1\n" +
			"00-03: HDMI 0 : HDMI 0 : playback 1\n" +
			"01-00: USB Audio : USB Audio : capture 1\n" +
			"garbage line\n",
	})

	devices, err := NewSysfsDeviceProvider(root).ListAudioInputDevices(context.Background())
	if err != nil {
		t.Fatalf("ListAudioInputDevices failed: %v", err)
	}
	want := []DeviceInfo{
		{DeviceID: "hw:0,0", GroupID: "card0", Kind: DeviceKindAudioInput, Label: "ALC257 Analog"},
		{DeviceID: "hw:1,0", GroupID: "card1", Kind: DeviceKindAudioInput, Label: "USB Audio"},
	}
	if len(devices) != len(want) {
		t.Fatalf("devices = %+v, want %+v", devices, want)
	}
	for i := range want {
		if devices[i] != want[i] {
			t.Errorf("device %d = %+v, want %+v", i, devices[i], want[i])
		}
	}
}

func TestSysfsDeviceProvider_MissingTrees(t *testing.T) {
	p := NewSysfsDeviceProvider(t.TempDir())
	video, err := p.ListVideoDevices(context.Background())
	if err != nil || len(video) != 0 {
		t.Errorf("ListVideoDevices = (%v, %v), want none", video, err)
	}
	audio, err := p.ListAudioInputDevices(context.Background())
	if err != nil || len(audio) != 0 {
		t.Errorf("ListAudioInputDevices = (%v, %v), want none", audio, err)
	}
}

func TestSysfsDeviceProvider_HostDevices(t *testing.T) {
	if _, err := os.Stat("/sys/class/video4linux"); err != nil {
		t.Skip("no V4L2 devices on this host")
	}
	cache := NewDeviceCache(NewSysfsDeviceProvider("/"), DeviceCacheConfig{Logger: discardLogger()})
	defer cache.Close()

	devices, err := cache.AvailableDevices()
	if err != nil {
		t.Fatalf("AvailableDevices failed: %v", err)
	}
	t.Logf("Found %d devices", len(devices))
	for i, d := range devices {
		t.Logf("  Device %d: ID=%s, Label=%s, Kind=%s, Position=%s", i, d.DeviceID, d.Label, d.Kind, d.Position)
	}
}

func TestPositionFromLabel(t *testing.T) {
	tests := []struct {
		label string
		want  CameraPosition
	}{
		{"Front Camera", CameraPositionFront},
		{"IPU6 user facing", CameraPositionFront},
		{"Back camera", CameraPositionBack},
		{"REAR", CameraPositionBack},
		{"world facing ov8856", CameraPositionBack},
		{"HD Pro Webcam C920", CameraPositionUnspecified},
	}
	for _, tt := range tests {
		if got := positionFromLabel(tt.label); got != tt.want {
			t.Errorf("positionFromLabel(%q) = %v, want %v", tt.label, got, tt.want)
		}
	}
}
