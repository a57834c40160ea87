package circuitbreaker

import "time"

const (
	DefaultCallTimeout              = 3000 * time.Millisecond
	DefaultErrorThresholdPercentage = 50
	DefaultResetTimeout             = 10000 * time.Millisecond
	DefaultWindowSize               = 10
	DefaultVolumeThreshold          = 5
	DefaultRollingWindow            = 10 * time.Second
)

// Settings configures a breaker. Zero values fall back to the defaults above,
// except VolumeThreshold which falls back to WindowSize and RollingWindow
// where a negative value disables time-based pruning.
type Settings struct {
	Name                     string
	CallTimeout              time.Duration
	ErrorThresholdPercentage int
	ResetTimeout             time.Duration
	WindowSize               int
	VolumeThreshold          int
	RollingWindow            time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		CallTimeout:              DefaultCallTimeout,
		ErrorThresholdPercentage: DefaultErrorThresholdPercentage,
		ResetTimeout:             DefaultResetTimeout,
		WindowSize:               DefaultWindowSize,
		VolumeThreshold:          DefaultVolumeThreshold,
		RollingWindow:            DefaultRollingWindow,
	}
}

func (s Settings) normalize() Settings {
	if s.CallTimeout <= 0 {
		s.CallTimeout = DefaultCallTimeout
	}
	if s.ErrorThresholdPercentage <= 0 || s.ErrorThresholdPercentage > 100 {
		s.ErrorThresholdPercentage = DefaultErrorThresholdPercentage
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = DefaultResetTimeout
	}
	if s.WindowSize <= 0 {
		s.WindowSize = DefaultWindowSize
	}
	if s.VolumeThreshold <= 0 || s.VolumeThreshold > s.WindowSize {
		s.VolumeThreshold = s.WindowSize
	}
	if s.RollingWindow == 0 {
		s.RollingWindow = DefaultRollingWindow
	}
	return s
}

// Stats is a point-in-time view of a breaker. Successes, Failures and Timeouts
// cover the current rolling window only; Fires and Rejects are cumulative.
type Stats struct {
	State             State     `json:"state"`
	Successes         int       `json:"successes"`
	Failures          int       `json:"failures"`
	Timeouts          int       `json:"timeouts"`
	FailurePercentage float64   `json:"failure_percentage"`
	OpenedAt          time.Time `json:"opened_at"`
	Fires             uint64    `json:"fires"`
	Rejects           uint64    `json:"rejects"`
}
