package ingest

import "errors"

var (
	// ErrInvalidTopic is returned when a topic does not follow the feed layout.
	ErrInvalidTopic = errors.New("ingest: invalid topic")

	// ErrInvalidPayload is returned when a payload carries no usable value.
	ErrInvalidPayload = errors.New("ingest: invalid payload")
)
