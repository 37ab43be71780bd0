package session

import (
	"time"

	"callwave/internal/telephony"
)

// Gate decides human vs answering machine before the first scenario step.
//
// The transport verdict wins when conclusive. When it is unknown, the
// controller opens a short listening window and the captured speech duration
// is scored against two thresholds: short utterances ("Allô ?") read as
// human, long uninterrupted speech reads as a machine greeting. Between the
// two the contact gets the benefit of the doubt.
type Gate struct {
	// HumanBelow: speech shorter than this is a human pickup.
	HumanBelow time.Duration
	// MachineAbove: speech longer than this is a machine greeting.
	MachineAbove time.Duration

	// WindowTimeout and WindowSilence bound the secondary listening window.
	WindowTimeout time.Duration
	WindowSilence time.Duration
}

func DefaultGate() Gate {
	return Gate{
		HumanBelow:    1200 * time.Millisecond,
		MachineAbove:  2800 * time.Millisecond,
		WindowTimeout: 4 * time.Second,
		WindowSilence: 1500 * time.Millisecond,
	}
}

// NeedsWindow reports whether the transport verdict requires the secondary
// listening window.
func (g Gate) NeedsWindow(verdict telephony.Detect) bool {
	return verdict != telephony.DetectHuman && verdict != telephony.DetectMachine
}

// Score turns a secondary-window speech duration into a verdict.
func (g Gate) Score(speech time.Duration) telephony.Detect {
	switch {
	case speech < g.HumanBelow:
		return telephony.DetectHuman
	case speech > g.MachineAbove:
		return telephony.DetectMachine
	default:
		return telephony.DetectHuman
	}
}
