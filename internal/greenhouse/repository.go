package greenhouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// defaultHistoryLimit caps History when the query sets no limit.
const defaultHistoryLimit = 500

// Store is the field store contract.
type Store interface {
	// RecentlyUpdated returns greenhouses whose updated_at is at or after
	// since, with only the newest reading per channel on each field.
	RecentlyUpdated(ctx context.Context, since time.Time) ([]Greenhouse, error)

	// AppendReading stores a reading at the front of its channel series,
	// creating the greenhouse and extending its fields as needed.
	AppendReading(ctx context.Context, in ReadingInput) error

	// Greenhouse returns one greenhouse with the last SeriesWindow readings per channel.
	Greenhouse(ctx context.Context, id string) (*Greenhouse, error)

	// List returns all greenhouses with the newest reading per channel.
	List(ctx context.Context) ([]Greenhouse, error)

	// SetDeviceConfig validates cfg and stores it under the device's metadata key.
	SetDeviceConfig(ctx context.Context, greenhouseID string, fieldIndex int, device Device, cfg DeviceConfig) error

	// History returns readings of one channel, newest first.
	History(ctx context.Context, q HistoryQuery) ([]Reading, error)

	// DeleteField clears a field slot without renumbering the others.
	DeleteField(ctx context.Context, greenhouseID string, fieldIndex int) error
}

// SQLiteRepository implements Store on the schema in migrations/.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository over an open SQLite connection
// with foreign keys enabled.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// WithClock replaces the clock used for created_at/updated_at stamps.
func (r *SQLiteRepository) WithClock(now func() time.Time) *SQLiteRepository {
	r.now = now
	return r
}

// unavailable wraps a driver error so callers can detect storage outages.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// RecentlyUpdated implements Store.
func (r *SQLiteRepository) RecentlyUpdated(ctx context.Context, since time.Time) ([]Greenhouse, error) {
	return r.load(ctx, "updated_at >= ?", []any{formatTime(since)}, 1)
}

// List implements Store.
func (r *SQLiteRepository) List(ctx context.Context) ([]Greenhouse, error) {
	return r.load(ctx, "1 = 1", nil, 1)
}

// Greenhouse implements Store.
func (r *SQLiteRepository) Greenhouse(ctx context.Context, id string) (*Greenhouse, error) {
	list, err := r.load(ctx, "id = ?", []any{id}, SeriesWindow)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrGreenhouseNotFound, id)
	}
	return &list[0], nil
}

// load reads greenhouses matching where, their fields, and the newest
// window readings per channel, all inside one transaction so the three
// queries see the same state.
func (r *SQLiteRepository) load(ctx context.Context, where string, args []any, window int) ([]Greenhouse, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin read", err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only transaction

	greenhouses, index, err := queryGreenhouses(ctx, tx, where, args)
	if err != nil {
		return nil, err
	}
	if len(greenhouses) == 0 {
		return nil, nil
	}

	if err := queryFields(ctx, tx, where, args, greenhouses, index); err != nil {
		return nil, err
	}
	if err := queryLatestReadings(ctx, tx, where, args, window, greenhouses, index); err != nil {
		return nil, err
	}
	return greenhouses, nil
}

func queryGreenhouses(ctx context.Context, tx *sql.Tx, where string, args []any) ([]Greenhouse, map[string]int, error) {
	query := `
		SELECT id, name, owner, location, field_count, created_at, updated_at
		FROM greenhouses
		WHERE ` + where + `
		ORDER BY id`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, unavailable("query greenhouses", err)
	}
	defer rows.Close()

	var greenhouses []Greenhouse
	index := make(map[string]int)
	for rows.Next() {
		var (
			g                    Greenhouse
			fieldCount           int
			createdAt, updatedAt string
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.Owner, &g.Location, &fieldCount, &createdAt, &updatedAt); err != nil {
			return nil, nil, unavailable("scan greenhouse", err)
		}
		g.CreatedAt = parseTime(createdAt)
		g.UpdatedAt = parseTime(updatedAt)
		g.Fields = make([]Field, fieldCount)
		for i := range g.Fields {
			g.Fields[i] = Field{Index: i}
		}
		index[g.ID] = len(greenhouses)
		greenhouses = append(greenhouses, g)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, unavailable("iterate greenhouses", err)
	}
	return greenhouses, index, nil
}

func queryFields(ctx context.Context, tx *sql.Tx, where string, args []any, greenhouses []Greenhouse, index map[string]int) error {
	query := `
		SELECT greenhouse_id, field_index, metadata, updated_at
		FROM fields
		WHERE greenhouse_id IN (SELECT id FROM greenhouses WHERE ` + where + `)`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return unavailable("query fields", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ghID, metadata, updatedAt string
			fieldIndex                int
		)
		if err := rows.Scan(&ghID, &fieldIndex, &metadata, &updatedAt); err != nil {
			return unavailable("scan field", err)
		}
		gi, ok := index[ghID]
		if !ok || fieldIndex < 0 || fieldIndex >= len(greenhouses[gi].Fields) {
			continue
		}
		f := &greenhouses[gi].Fields[fieldIndex]
		f.Present = true
		f.UpdatedAt = parseTime(updatedAt)
		f.Series = make(map[Channel][]Reading)
		decodeMetadata(f, []byte(metadata))
	}
	if err := rows.Err(); err != nil {
		return unavailable("iterate fields", err)
	}
	return nil
}

func queryLatestReadings(ctx context.Context, tx *sql.Tx, where string, args []any, window int, greenhouses []Greenhouse, index map[string]int) error {
	query := `
		SELECT greenhouse_id, field_index, channel, value, unit, recorded_at
		FROM (
			SELECT id, greenhouse_id, field_index, channel, value, unit, recorded_at,
				ROW_NUMBER() OVER (
					PARTITION BY greenhouse_id, field_index, channel
					ORDER BY id DESC
				) AS rn
			FROM readings
			WHERE greenhouse_id IN (SELECT id FROM greenhouses WHERE ` + where + `)
		)
		WHERE rn <= ?
		ORDER BY greenhouse_id, field_index, channel, id DESC`

	rows, err := tx.QueryContext(ctx, query, append(append([]any{}, args...), window)...)
	if err != nil {
		return unavailable("query readings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ghID, channel, unit, recordedAt string
			fieldIndex                      int
			value                           float64
		)
		if err := rows.Scan(&ghID, &fieldIndex, &channel, &value, &unit, &recordedAt); err != nil {
			return unavailable("scan reading", err)
		}
		gi, ok := index[ghID]
		if !ok || fieldIndex < 0 || fieldIndex >= len(greenhouses[gi].Fields) {
			continue
		}
		f := &greenhouses[gi].Fields[fieldIndex]
		if !f.Present {
			continue
		}
		ch := Channel(channel)
		f.Series[ch] = append(f.Series[ch], Reading{Value: value, Unit: unit, Timestamp: parseTime(recordedAt)})
	}
	if err := rows.Err(); err != nil {
		return unavailable("iterate readings", err)
	}
	return nil
}

// decodeMetadata splits the stored metadata object into device
// configurations, per-device decode errors and the remaining keys.
func decodeMetadata(f *Field, raw []byte) {
	f.Devices = make(map[Device]DeviceConfig)
	f.ConfigErrors = make(map[Device]error)
	f.Extra = make(map[string]json.RawMessage)

	var meta map[string]json.RawMessage
	if err := json.Unmarshal(raw, &meta); err != nil {
		for _, d := range allDevices {
			f.ConfigErrors[d] = fmt.Errorf("%w: metadata is not an object: %w", ErrMalformedConfig, err)
		}
		return
	}

	for key, value := range meta {
		device, isConfig := deviceForKey(key)
		if !isConfig {
			f.Extra[key] = value
			continue
		}
		if string(value) == "null" {
			continue
		}
		cfg, err := ParseDeviceConfig(value)
		if err != nil {
			f.ConfigErrors[device] = err
			continue
		}
		f.Devices[device] = cfg
	}
}

func deviceForKey(key string) (Device, bool) {
	name, ok := strings.CutPrefix(key, "config_")
	if !ok {
		return "", false
	}
	d := Device(name)
	return d, d.Valid()
}

// AppendReading implements Store.
func (r *SQLiteRepository) AppendReading(ctx context.Context, in ReadingInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	now := formatTime(r.now())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin append", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO greenhouses (id, name, owner, location, field_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		in.GreenhouseID, placeholderName(in.GreenhouseID), in.Owner, PlaceholderLocation, now, now,
	); err != nil {
		return unavailable("upsert greenhouse", err)
	}

	var fieldCount int
	if err := tx.QueryRowContext(ctx,
		"SELECT field_count FROM greenhouses WHERE id = ?", in.GreenhouseID,
	).Scan(&fieldCount); err != nil {
		return unavailable("read field count", err)
	}

	// Extend with empty fields up to and including the target index. The
	// target itself is also (re)created when it is a deleted slot.
	for i := fieldCount; i <= in.FieldIndex; i++ {
		if err := insertEmptyField(ctx, tx, in.GreenhouseID, i, now); err != nil {
			return err
		}
	}
	if in.FieldIndex < fieldCount {
		if err := insertEmptyField(ctx, tx, in.GreenhouseID, in.FieldIndex, now); err != nil {
			return err
		}
	}

	newCount := max(fieldCount, in.FieldIndex+1)
	if _, err := tx.ExecContext(ctx,
		"UPDATE greenhouses SET field_count = ?, updated_at = ? WHERE id = ?",
		newCount, now, in.GreenhouseID,
	); err != nil {
		return unavailable("touch greenhouse", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO readings (greenhouse_id, field_index, channel, value, unit, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		in.GreenhouseID, in.FieldIndex, string(in.Channel), in.Reading.Value, in.Reading.Unit, formatTime(in.Reading.Timestamp),
	); err != nil {
		return unavailable("insert reading", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE fields SET updated_at = ? WHERE greenhouse_id = ? AND field_index = ?",
		now, in.GreenhouseID, in.FieldIndex,
	); err != nil {
		return unavailable("touch field", err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit append", err)
	}
	return nil
}

func insertEmptyField(ctx context.Context, tx *sql.Tx, greenhouseID string, index int, now string) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fields (greenhouse_id, field_index, metadata, created_at, updated_at)
		VALUES (?, ?, '{}', ?, ?)
		ON CONFLICT(greenhouse_id, field_index) DO NOTHING`,
		greenhouseID, index, now, now,
	); err != nil {
		return unavailable("insert field", err)
	}
	return nil
}

// SetDeviceConfig implements Store. The greenhouse updated_at is bumped
// so the next reconciliation tick picks the change up.
func (r *SQLiteRepository) SetDeviceConfig(ctx context.Context, greenhouseID string, fieldIndex int, device Device, cfg DeviceConfig) error {
	if !device.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDevice, device)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding device config: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin config update", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var raw string
	err = tx.QueryRowContext(ctx,
		"SELECT metadata FROM fields WHERE greenhouse_id = ? AND field_index = ?",
		greenhouseID, fieldIndex,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: greenhouse %s index %d", ErrFieldNotFound, greenhouseID, fieldIndex)
	}
	if err != nil {
		return unavailable("read metadata", err)
	}

	meta := make(map[string]json.RawMessage)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			// Unreadable metadata is replaced rather than blocking the update.
			meta = make(map[string]json.RawMessage)
		}
	}
	meta[device.MetadataKey()] = encoded

	updated, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	now := formatTime(r.now())
	if _, err := tx.ExecContext(ctx,
		"UPDATE fields SET metadata = ?, updated_at = ? WHERE greenhouse_id = ? AND field_index = ?",
		string(updated), now, greenhouseID, fieldIndex,
	); err != nil {
		return unavailable("write metadata", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE greenhouses SET updated_at = ? WHERE id = ?", now, greenhouseID,
	); err != nil {
		return unavailable("touch greenhouse", err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit config update", err)
	}
	return nil
}

// History implements Store.
func (r *SQLiteRepository) History(ctx context.Context, q HistoryQuery) ([]Reading, error) {
	if !q.Channel.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, q.Channel)
	}

	var (
		clauses = []string{"greenhouse_id = ?", "field_index = ?", "channel = ?"}
		args    = []any{q.GreenhouseID, q.FieldIndex, string(q.Channel)}
	)
	if !q.Start.IsZero() {
		clauses = append(clauses, "recorded_at >= ?")
		args = append(args, formatTime(q.Start))
	}
	if !q.End.IsZero() {
		clauses = append(clauses, "recorded_at <= ?")
		args = append(args, formatTime(q.End))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	args = append(args, limit)

	query := `
		SELECT value, unit, recorded_at
		FROM readings
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY id DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query history", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var (
			rd         Reading
			recordedAt string
		)
		if err := rows.Scan(&rd.Value, &rd.Unit, &recordedAt); err != nil {
			return nil, unavailable("scan history", err)
		}
		rd.Timestamp = parseTime(recordedAt)
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate history", err)
	}
	return readings, nil
}

// DeleteField implements Store. The readings of the field go with it
// (ON DELETE CASCADE); field_count is left unchanged.
func (r *SQLiteRepository) DeleteField(ctx context.Context, greenhouseID string, fieldIndex int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin delete", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx,
		"DELETE FROM fields WHERE greenhouse_id = ? AND field_index = ?",
		greenhouseID, fieldIndex,
	)
	if err != nil {
		return unavailable("delete field", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete field", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: greenhouse %s index %d", ErrFieldNotFound, greenhouseID, fieldIndex)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE greenhouses SET updated_at = ? WHERE id = ?", formatTime(r.now()), greenhouseID,
	); err != nil {
		return unavailable("touch greenhouse", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit delete", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339Nano, s) //nolint:errcheck // zero time for unreadable stamps
	return t
}
