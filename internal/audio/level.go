package audio

import "math"

// MeterConfig holds configuration for the input activity meter
type MeterConfig struct {
	EnergyThreshold float64 // RMS energy above which a frame counts as speech
	SilenceFrames   int     // Consecutive quiet frames before speaking ends
}

// DefaultMeterConfig returns a default meter configuration.
// Capture frames are 4096 samples (~256ms at 16kHz), so a few frames of silence is enough.
func DefaultMeterConfig() *MeterConfig {
	return &MeterConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   3,
	}
}

// Level is the published input level for one captured frame
type Level struct {
	Volume   float64 `json:"volume"` // normalized RMS in [0, 1]
	Speaking bool    `json:"speaking"`
	Started  bool    `json:"-"`
	Ended    bool    `json:"-"`
}

// ActivityMeter tracks input volume and whether the user is speaking
type ActivityMeter struct {
	config         *MeterConfig
	silenceCounter int
	speaking       bool
}

// NewActivityMeter creates a new activity meter
func NewActivityMeter(config *MeterConfig) *ActivityMeter {
	if config == nil {
		config = DefaultMeterConfig()
	}
	return &ActivityMeter{config: config}
}

// Observe processes one captured frame
func (m *ActivityMeter) Observe(samples []int16) Level {
	rms := CalculateRMS(samples)
	lvl := Level{Volume: math.Min(rms/32768.0, 1.0)}

	if rms > m.config.EnergyThreshold {
		m.silenceCounter = 0
		if !m.speaking {
			lvl.Started = true
			m.speaking = true
		}
	} else {
		m.silenceCounter++
		if m.speaking && m.silenceCounter >= m.config.SilenceFrames {
			lvl.Ended = true
			m.speaking = false
			m.silenceCounter = 0
		}
	}

	lvl.Speaking = m.speaking
	return lvl
}

// Reset clears the meter state
func (m *ActivityMeter) Reset() {
	m.silenceCounter = 0
	m.speaking = false
}

// Speaking returns whether speech is currently detected
func (m *ActivityMeter) Speaking() bool {
	return m.speaking
}
