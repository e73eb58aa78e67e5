package greenhouse

import "errors"

// Domain errors for the greenhouse package.
//
//	if errors.Is(err, greenhouse.ErrStoreUnavailable) {
//	    // abort this tick, retry on the next
//	}
var (
	// ErrUnknownChannel is returned by MapChannel for tokens outside the
	// canonical table. Ingestion drops such messages.
	ErrUnknownChannel = errors.New("greenhouse: unknown channel")

	// ErrUnknownDevice is returned when a device name is not fan, led or pump.
	ErrUnknownDevice = errors.New("greenhouse: unknown device")

	// ErrMalformedConfig is returned when a device configuration cannot be
	// decoded or violates the rules of its mode.
	ErrMalformedConfig = errors.New("greenhouse: malformed device config")

	// ErrGreenhouseNotFound is returned when a greenhouse ID does not exist.
	ErrGreenhouseNotFound = errors.New("greenhouse: not found")

	// ErrFieldNotFound is returned for an index past the end of the field
	// sequence or pointing at a deleted slot.
	ErrFieldNotFound = errors.New("greenhouse: field not found")

	// ErrInvalidReading is returned when a reading input is incomplete.
	ErrInvalidReading = errors.New("greenhouse: invalid reading")

	// ErrStoreUnavailable wraps any storage failure on the read and write paths.
	ErrStoreUnavailable = errors.New("greenhouse: store unavailable")
)
