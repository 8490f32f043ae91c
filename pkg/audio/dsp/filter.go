// Package dsp implements the first-order filters used by the FX presets.
//
// Every filter mutates its sample slice in place in a single causal pass. The
// one-pole high-pass and low-pass are RC-circuit approximations (6 dB/octave)
// with the coefficients
//
//	rc = 1 / (2π·fc)    dt = 1 / sampleRate
//	high-pass a = rc / (rc + dt)
//	low-pass  a = dt / (rc + dt)
//
// No state survives between calls, so the same input always yields the same
// output.
package dsp

import (
	"fmt"
	"math"
)

// Stage is a single named in-place transform in an FX chain.
type Stage struct {
	// Name describes the stage for logs (e.g. "highpass 500Hz").
	Name string

	// Apply transforms samples in place.
	Apply func(samples []float32, sampleRate uint32)
}

// GainStage returns a [Stage] that scales by db decibels.
func GainStage(db float64) Stage {
	return Stage{
		Name:  fmt.Sprintf("gain %+.1fdB", db),
		Apply: func(s []float32, _ uint32) { Gain(s, db) },
	}
}

// HighPassStage returns a [Stage] running [HighPass] at cutoffHz.
func HighPassStage(cutoffHz float64) Stage {
	return Stage{
		Name:  fmt.Sprintf("highpass %gHz", cutoffHz),
		Apply: func(s []float32, rate uint32) { HighPass(s, rate, cutoffHz) },
	}
}

// LowPassStage returns a [Stage] running [LowPass] at cutoffHz.
func LowPassStage(cutoffHz float64) Stage {
	return Stage{
		Name:  fmt.Sprintf("lowpass %gHz", cutoffHz),
		Apply: func(s []float32, rate uint32) { LowPass(s, rate, cutoffHz) },
	}
}

// Gain multiplies every sample by 10^(db/20). It does not clamp.
func Gain(samples []float32, db float64) {
	g := math.Pow(10, db/20)
	for i, x := range samples {
		samples[i] = float32(float64(x) * g)
	}
}

// HighPass applies a one-pole RC high-pass filter with cutoff cutoffHz.
//
// The recurrence is y[i] = a·(y[i-1] + x[i] − x[i-1]) with x[-1] = x[0] and
// y[-1] = 0, so a constant input (including silence) settles at zero without
// a seeding transient. A zero sample rate or non-positive cutoff leaves the
// samples untouched.
func HighPass(samples []float32, sampleRate uint32, cutoffHz float64) {
	if len(samples) == 0 || sampleRate == 0 || cutoffHz <= 0 {
		return
	}
	rc, dt := rcDT(sampleRate, cutoffHz)
	a := rc / (rc + dt)

	xPrev := float64(samples[0])
	yPrev := 0.0
	for i, s := range samples {
		x := float64(s)
		y := a * (yPrev + x - xPrev)
		xPrev = x
		yPrev = y
		samples[i] = float32(y)
	}
}

// LowPass applies a one-pole RC low-pass filter with cutoff cutoffHz.
//
// The state is seeded from the first sample and updated as y += a·(x[i] − y).
// A zero sample rate or non-positive cutoff leaves the samples untouched.
func LowPass(samples []float32, sampleRate uint32, cutoffHz float64) {
	if len(samples) == 0 || sampleRate == 0 || cutoffHz <= 0 {
		return
	}
	rc, dt := rcDT(sampleRate, cutoffHz)
	a := dt / (rc + dt)

	y := float64(samples[0])
	for i, s := range samples {
		y += a * (float64(s) - y)
		samples[i] = float32(y)
	}
}

func rcDT(sampleRate uint32, cutoffHz float64) (rc, dt float64) {
	return 1 / (2 * math.Pi * cutoffHz), 1 / float64(sampleRate)
}
