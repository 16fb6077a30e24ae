package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/ecoquest/internal/domain/capture"
	"github.com/okian/ecoquest/internal/domain/geo"
	"github.com/okian/ecoquest/internal/domain/ledger"
)

const timeLayout = time.RFC3339Nano

// Store implements the local key-value store and photo record table.
type Store struct {
	db *sql.DB
}

// NewStore wraps an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetString returns the value for key and whether it exists.
func (s *Store) GetString(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return v, true, nil
}

// SetString stores value under key, replacing any previous value.
func (s *Store) SetString(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// GetInt returns the integer value for key.
func (s *Store) GetInt(ctx context.Context, key string) (int, bool, error) {
	raw, ok, err := s.GetString(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("get %q: not an integer: %w", key, err)
	}
	return n, true, nil
}

// SetInt stores an integer under key.
func (s *Store) SetInt(ctx context.Context, key string, value int) error {
	return s.SetString(ctx, key, strconv.Itoa(value))
}

// Keys returns the keys starting with prefix in lexical order.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM prefs WHERE key LIKE ? ESCAPE '\' ORDER BY key`,
		likePrefix.Replace(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("list keys %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		// LIKE folds ASCII case.
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, rows.Err()
}

var likePrefix = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PutPhotoRecord upserts the record for its action and the PhotoPath preference.
func (s *Store) PutPhotoRecord(ctx context.Context, r capture.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var lat, lon, acc sql.NullFloat64
	var locAt sql.NullString
	if r.Location != nil {
		lat = sql.NullFloat64{Float64: r.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: r.Location.Longitude, Valid: true}
		acc = sql.NullFloat64{Float64: r.Location.HorizontalAccuracy, Valid: true}
		locAt = sql.NullString{String: r.Location.Timestamp.UTC().Format(timeLayout), Valid: true}
	}
	valid := 0
	if r.LocationValid {
		valid = 1
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO photo_records (action_id, local_path, captured_at, location_valid, latitude, longitude, horizontal_accuracy, location_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(action_id) DO UPDATE SET
		   local_path = excluded.local_path,
		   captured_at = excluded.captured_at,
		   location_valid = excluded.location_valid,
		   latitude = excluded.latitude,
		   longitude = excluded.longitude,
		   horizontal_accuracy = excluded.horizontal_accuracy,
		   location_at = excluded.location_at`,
		r.ActionID, r.LocalPath, r.CapturedAt.UTC().Format(timeLayout), valid, lat, lon, acc, locAt,
	)
	if err != nil {
		return fmt.Errorf("put photo record %q: %w", r.ActionID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		ledger.ActionKey(r.ActionID, ledger.SuffixPhotoPath), r.LocalPath, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("put photo path %q: %w", r.ActionID, err)
	}

	return tx.Commit()
}

const photoCols = `action_id, local_path, captured_at, location_valid, latitude, longitude, horizontal_accuracy, location_at`

// PhotoRecord returns the record for actionID.
func (s *Store) PhotoRecord(ctx context.Context, actionID string) (capture.Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+photoCols+` FROM photo_records WHERE action_id = ?`, actionID)
	r, err := scanPhotoRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return capture.Record{}, false, nil
	}
	if err != nil {
		return capture.Record{}, false, fmt.Errorf("get photo record %q: %w", actionID, err)
	}
	return r, true, nil
}

// PhotoRecords lists all records ordered by action id.
func (s *Store) PhotoRecords(ctx context.Context) ([]capture.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+photoCols+` FROM photo_records ORDER BY action_id`)
	if err != nil {
		return nil, fmt.Errorf("list photo records: %w", err)
	}
	defer rows.Close()

	var out []capture.Record
	for rows.Next() {
		r, err := scanPhotoRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanPhotoRecord(scanner interface{ Scan(...any) error }) (capture.Record, error) {
	var (
		r             capture.Record
		capturedAt    string
		valid         int
		lat, lon, acc sql.NullFloat64
		locAt         sql.NullString
	)
	if err := scanner.Scan(&r.ActionID, &r.LocalPath, &capturedAt, &valid, &lat, &lon, &acc, &locAt); err != nil {
		return capture.Record{}, err
	}

	r.LocationValid = valid != 0
	if t, err := time.Parse(timeLayout, capturedAt); err == nil {
		r.CapturedAt = t
	}
	if lat.Valid && lon.Valid {
		s := geo.Sample{Latitude: lat.Float64, Longitude: lon.Float64, HorizontalAccuracy: acc.Float64}
		if locAt.Valid {
			if t, err := time.Parse(timeLayout, locAt.String); err == nil {
				s.Timestamp = t
			}
		}
		r.Location = &s
	}
	return r, nil
}
