package scene

import (
	"math"
)

// IdleMotion keeps the character alive between clips: a slow continuous spin about
// the vertical axis and a gentle vertical bob. It is driven by elapsed time so the
// motion does not depend on the frame rate.
type IdleMotion struct {
	SpinRate     float32 // radians per second
	BobAmplitude float32 // world units
	BobRate      float32 // radians per second

	elapsed float64
	spin    float64
}

// NewIdleMotion returns the viewer's default motion: 0.003 rad and a
// 0.0005-unit bob increment per 60 Hz frame.
func NewIdleMotion() *IdleMotion {
	return &IdleMotion{
		SpinRate:     0.003 * 60,
		BobAmplitude: 0.0005 * 60,
		BobRate:      1,
	}
}

// Update advances the motion by dt seconds.
func (m *IdleMotion) Update(dt float32) {
	if dt <= 0 {
		return
	}
	m.elapsed += float64(dt)
	m.spin = math.Mod(m.spin+float64(m.SpinRate*dt), 2*math.Pi)
}

// Spin returns the current rotation about the vertical axis.
func (m *IdleMotion) Spin() float32 {
	return float32(m.spin)
}

// Bob returns the current vertical offset, zero at start.
func (m *IdleMotion) Bob() float32 {
	// integral of sin over elapsed time
	return m.BobAmplitude * float32(1-math.Cos(m.elapsed*float64(m.BobRate)))
}

// Reset returns the motion to its start.
func (m *IdleMotion) Reset() {
	m.elapsed = 0
	m.spin = 0
}
