package audio

import "time"

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64       // RMS energy threshold for speech detection
	SampleRate      int           // Samples per second of the analysed stream
	NoSpeechTimeout time.Duration // Give up if nothing is said for this long after start; 0 disables
	SilenceTimeout  time.Duration // End capture after this much silence following speech; 0 disables
}

// DefaultVADConfig returns a default VAD configuration
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SampleRate:      16000,
		NoSpeechTimeout: 8 * time.Second,
		SilenceTimeout:  5 * time.Second,
	}
}

// VADSignal is what a processed frame tells the caller
type VADSignal int

const (
	SignalNone          VADSignal = iota
	SignalSpeechStarted           // first voiced frame of an utterance
	SignalNoSpeech                // NoSpeechTimeout elapsed without any speech
	SignalSilenceEnd              // SilenceTimeout elapsed after speech
)

// VADDetector tracks speech and silence time over a capture run. It mirrors
// how a browser recognizer ends a run: an error when nothing was said, a
// natural end after the speaker falls silent.
type VADDetector struct {
	config *VADConfig

	heardSpeech bool
	isSpeaking  bool
	silence     time.Duration // since last voiced frame, or since start
	done        bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VADDetector{config: config}
}

// ProcessFrame analyses one frame of samples. After SignalNoSpeech or
// SignalSilenceEnd the detector stays quiet until Reset.
func (v *VADDetector) ProcessFrame(samples []int16) VADSignal {
	if v.done || len(samples) == 0 {
		return SignalNone
	}

	frame := time.Duration(FrameDuration(len(samples), v.config.SampleRate) * float64(time.Second))

	if CalculateRMS(samples) > v.config.EnergyThreshold {
		v.silence = 0
		started := !v.isSpeaking
		v.isSpeaking = true
		v.heardSpeech = true
		if started {
			return SignalSpeechStarted
		}
		return SignalNone
	}

	v.isSpeaking = false
	v.silence += frame

	if !v.heardSpeech {
		if v.config.NoSpeechTimeout > 0 && v.silence >= v.config.NoSpeechTimeout {
			v.done = true
			return SignalNoSpeech
		}
		return SignalNone
	}

	if v.config.SilenceTimeout > 0 && v.silence >= v.config.SilenceTimeout {
		v.done = true
		return SignalSilenceEnd
	}
	return SignalNone
}

// Reset prepares the detector for a new capture run
func (v *VADDetector) Reset() {
	v.heardSpeech = false
	v.isSpeaking = false
	v.silence = 0
	v.done = false
}

// IsSpeaking returns whether the last frame was voiced
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}

// HeardSpeech reports whether any voiced frame was seen since Reset
func (v *VADDetector) HeardSpeech() bool {
	return v.heardSpeech
}
