package livecam

// AudioCategory is the platform audio-session category.
type AudioCategory string

// AudioMode refines an AudioCategory.
type AudioMode string

// AudioCategoryOptions are option flags for an AudioCategory.
type AudioCategoryOptions uint32

const (
	AudioCategoryPlayAndRecord AudioCategory = "playAndRecord"
	AudioCategoryRecord        AudioCategory = "record"

	AudioModeDefault        AudioMode = "default"
	AudioModeVideoRecording AudioMode = "videoRecording"
)

const (
	AudioOptionMixWithOthers AudioCategoryOptions = 1 << iota
	AudioOptionDefaultToSpeaker
	AudioOptionAllowBluetooth
)

// Has reports whether all bits of opt are set.
func (o AudioCategoryOptions) Has(opt AudioCategoryOptions) bool { return o&opt == opt }

// AudioSession is the platform audio-session API. It is configured once,
// synchronously, when a Manager is created and before any camera work.
type AudioSession interface {
	SetCategory(category AudioCategory, mode AudioMode, options AudioCategoryOptions) error
	SetActive(active bool) error
}

// NopAudioSession is used on platforms without an audio-session API.
type NopAudioSession struct{}

func (NopAudioSession) SetCategory(AudioCategory, AudioMode, AudioCategoryOptions) error { return nil }
func (NopAudioSession) SetActive(bool) error                                          { return nil }

// configureAudioSession prepares simultaneous capture and playback.
func configureAudioSession(s AudioSession) error {
	err := s.SetCategory(AudioCategoryPlayAndRecord, AudioModeVideoRecording,
		AudioOptionDefaultToSpeaker|AudioOptionAllowBluetooth)
	if err != nil {
		return &AudioSessionConfigError{Op: "category", Err: err}
	}
	if err := s.SetActive(true); err != nil {
		return &AudioSessionConfigError{Op: "activate", Err: err}
	}
	return nil
}
