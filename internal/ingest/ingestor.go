package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anhhung04/plant-care/internal/greenhouse"
)

// defaultAppendTimeout bounds one store append from the MQTT callback.
const defaultAppendTimeout = 5 * time.Second

// Store is the part of the field store ingestion writes to.
type Store interface {
	AppendReading(ctx context.Context, in greenhouse.ReadingInput) error
}

// Mirror receives a copy of every stored reading. The InfluxDB client
// satisfies it.
type Mirror interface {
	WriteReading(greenhouseID string, fieldIndex int, channel string, value float64, unit string, ts time.Time)
}

// Logger is the logging interface used by the ingestor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Ingestor appends decoded readings to the field store.
// It is safe for concurrent use; the store serialises the writes.
type Ingestor struct {
	store   Store
	mirror  Mirror
	logger  Logger
	now     func() time.Time
	timeout time.Duration
}

// New creates an Ingestor. A nil logger discards log output.
func New(store Store, logger Logger) *Ingestor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Ingestor{
		store:   store,
		logger:  logger,
		now:     time.Now,
		timeout: defaultAppendTimeout,
	}
}

// SetMirror enables a secondary copy of every stored reading.
func (i *Ingestor) SetMirror(m Mirror) {
	i.mirror = m
}

// SetClock replaces the clock used for readings without a timestamp.
func (i *Ingestor) SetClock(now func() time.Time) {
	i.now = now
}

// Ingest validates and stores one canonical reading, creating the
// greenhouse and extending its fields on first sight.
func (i *Ingestor) Ingest(ctx context.Context, in greenhouse.ReadingInput) error {
	if err := i.store.AppendReading(ctx, in); err != nil {
		return fmt.Errorf("appending %s reading to %s[%d]: %w", in.Channel, in.GreenhouseID, in.FieldIndex, err)
	}
	if i.mirror != nil {
		i.mirror.WriteReading(in.GreenhouseID, in.FieldIndex, string(in.Channel),
			in.Reading.Value, in.Reading.Unit, in.Reading.Timestamp)
	}
	return nil
}

// Parse turns a feed message into a reading addressed to a field.
func (i *Ingestor) Parse(topic string, payload []byte) (greenhouse.ReadingInput, error) {
	addr, err := ParseTopic(topic)
	if err != nil {
		return greenhouse.ReadingInput{}, err
	}
	channel, unit, err := greenhouse.MapChannel(addr.Token)
	if err != nil {
		return greenhouse.ReadingInput{}, err
	}
	decoded, err := DecodePayload(payload, unit, i.now())
	if err != nil {
		return greenhouse.ReadingInput{}, err
	}
	return greenhouse.ReadingInput{
		Owner:        addr.Owner,
		GreenhouseID: addr.GreenhouseID,
		FieldIndex:   addr.FieldIndex,
		Channel:      channel,
		Reading: greenhouse.Reading{
			Value:     decoded.Value,
			Unit:      decoded.Unit,
			Timestamp: decoded.Timestamp,
		},
	}, nil
}

// HandleMessage is the MQTT callback. Unparseable messages are logged with
// the reason and dropped. Store failures are returned so the transport logs
// them too.
func (i *Ingestor) HandleMessage(topic string, payload []byte) error {
	in, err := i.Parse(topic, payload)
	if err != nil {
		i.logger.Warn("dropping sensor message",
			"topic", topic,
			"reason", dropReason(err),
			"error", err,
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	if err := i.Ingest(ctx, in); err != nil {
		i.logger.Error("storing sensor reading failed",
			"greenhouse_id", in.GreenhouseID,
			"field_index", in.FieldIndex,
			"channel", in.Channel,
			"error", err,
		)
		return err
	}

	i.logger.Debug("sensor reading stored",
		"greenhouse_id", in.GreenhouseID,
		"field_index", in.FieldIndex,
		"channel", in.Channel,
		"value", in.Reading.Value,
		"unit", in.Reading.Unit,
	)
	return nil
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTopic):
		return "invalid_topic"
	case errors.Is(err, greenhouse.ErrUnknownChannel):
		return "unknown_channel"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	default:
		return "unknown"
	}
}
