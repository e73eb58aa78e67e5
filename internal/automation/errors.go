package automation

import "errors"

var (
	// ErrMissingFeature is returned when automatic mode lacks a reading its
	// feature set needs. The device is skipped this tick.
	ErrMissingFeature = errors.New("automation: missing feature")

	// ErrTickInProgress is returned by Tick when another tick is running.
	ErrTickInProgress = errors.New("automation: tick already in progress")

	// ErrUnknownPrediction is returned when the predictor answers something
	// other than "on" or "off".
	ErrUnknownPrediction = errors.New("automation: unknown prediction")
)
