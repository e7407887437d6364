// Package journal records partial failures that need manual reconciliation.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"strikedesk/internal/metrics"
	"strikedesk/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

const table = "reconciliation"

var (
	ErrNotFound    = errors.New("reconciliation entry not found")
	ErrResolved    = errors.New("reconciliation entry already resolved")
	ErrBuildQuery  = errors.New("journal: build query")
	ErrExecQuery   = errors.New("journal: exec query")
	ErrBadPayload  = errors.New("journal: invalid payload")
	ErrUnknownKind = errors.New("journal: unknown entry kind")
)

// Kind names the call that has to be replayed.
type Kind string

const (
	KindCustomerRegistration Kind = "customer_registration"
	KindOversDecrement       Kind = "overs_decrement"
)

type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Entry is one recorded gap.
type Entry struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Phone      string          `json:"phone"`
	BookingIDs []string        `json:"bookingIds"`
	Payload    json.RawMessage `json:"payload"`
	Error      string          `json:"error"`
	Attempts   int             `json:"attempts"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// CustomerPayload replays POST /customers.
type CustomerPayload struct {
	Customer       models.Customer `json:"customer"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// OversPayload replays PATCH /memberships.
type OversPayload struct {
	Phone string `json:"phone"`
	Overs int    `json:"overs"`
}

// Replayer re-issues the recorded calls.
type Replayer interface {
	CreateCustomer(ctx context.Context, customer models.Customer, idempotencyKey string) error
	DecrementOvers(ctx context.Context, phone string, overs int) error
}

// DB is the SQLite-backed journal.
type DB struct {
	*sql.DB
	psql   sq.StatementBuilderType
	logger *zerolog.Logger
}

// Open creates the database file and schema if needed.
func Open(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	l := logger.With().Str("component", "journal").Logger()
	db := &DB{
		DB:     conn,
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Question),
		logger: &l,
	}
	if err := db.createTables(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create journal tables: %w", err)
	}

	l.Info().Str("path", path).Msg("journal initialized")
	return db, nil
}

func (db *DB) createTables() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reconciliation (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			phone       TEXT NOT NULL,
			booking_ids TEXT NOT NULL DEFAULT '',
			payload     TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			attempts    INTEGER NOT NULL DEFAULT 1,
			status      TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reconciliation_status ON reconciliation(status);`)
	return err
}

// Record stores a new open entry and fills in its id and timestamps.
func (db *DB) Record(ctx context.Context, e *Entry) error {
	now := time.Now().UTC()
	e.ID = uuid.NewString()
	e.Status = StatusOpen
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Attempts == 0 {
		e.Attempts = 1
	}

	query, args, err := db.psql.Insert(table).
		Columns("id", "kind", "phone", "booking_ids", "payload", "error", "attempts", "status", "created_at", "updated_at").
		Values(e.ID, string(e.Kind), e.Phone, strings.Join(e.BookingIDs, ","), string(e.Payload), e.Error,
			e.Attempts, string(e.Status), formatTime(now), formatTime(now)).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: record: %v", ErrBuildQuery, err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: record: %v", ErrExecQuery, err)
	}

	metrics.IncReconciliation(string(e.Kind))
	db.logger.Warn().Str("id", e.ID).Str("kind", string(e.Kind)).Str("phone", e.Phone).Str("error", e.Error).
		Msg("recorded gap for manual reconciliation")
	return nil
}

// Get loads one entry.
func (db *DB) Get(ctx context.Context, id string) (*Entry, error) {
	entries, err := db.list(ctx, sq.Eq{"id": id})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &entries[0], nil
}

// ListOpen returns unresolved entries, oldest first.
func (db *DB) ListOpen(ctx context.Context) ([]Entry, error) {
	return db.list(ctx, sq.Eq{"status": string(StatusOpen)})
}

func (db *DB) list(ctx context.Context, where sq.Eq) ([]Entry, error) {
	query, args, err := db.psql.
		Select("id", "kind", "phone", "booking_ids", "payload", "error", "attempts", "status", "created_at", "updated_at").
		From(table).
		Where(where).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrBuildQuery, err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrExecQuery, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                    Entry
			kind, status, ids    string
			payload              string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&e.ID, &kind, &e.Phone, &ids, &payload, &e.Error, &e.Attempts, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrExecQuery, err)
		}
		e.Kind = Kind(kind)
		e.Status = Status(status)
		e.Payload = json.RawMessage(payload)
		if ids != "" {
			e.BookingIDs = strings.Split(ids, ",")
		}
		e.CreatedAt = parseTime(createdAt)
		e.UpdatedAt = parseTime(updatedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkAttempt counts a failed replay.
func (db *DB) MarkAttempt(ctx context.Context, id, errMsg string) error {
	return db.update(ctx, id, sq.Eq{"status": string(StatusOpen)}, map[string]any{
		"attempts":   sq.Expr("attempts + 1"),
		"error":      errMsg,
		"updated_at": formatTime(time.Now().UTC()),
	})
}

// MarkResolved closes an entry.
func (db *DB) MarkResolved(ctx context.Context, id string) error {
	return db.update(ctx, id, nil, map[string]any{
		"status":     string(StatusResolved),
		"updated_at": formatTime(time.Now().UTC()),
	})
}

func (db *DB) update(ctx context.Context, id string, extra sq.Eq, set map[string]any) error {
	where := sq.And{sq.Eq{"id": id}}
	if extra != nil {
		where = append(where, extra)
	}
	query, args, err := db.psql.Update(table).SetMap(set).Where(where).ToSql()
	if err != nil {
		return fmt.Errorf("%w: update: %v", ErrBuildQuery, err)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: update: %v", ErrExecQuery, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Retry replays an open entry and resolves it on success.
func (db *DB) Retry(ctx context.Context, id string, api Replayer) error {
	e, err := db.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.Status == StatusResolved {
		return ErrResolved
	}

	var callErr error
	switch e.Kind {
	case KindCustomerRegistration:
		var p CustomerPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		callErr = api.CreateCustomer(ctx, p.Customer, p.IdempotencyKey)
	case KindOversDecrement:
		var p OversPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		callErr = api.DecrementOvers(ctx, p.Phone, p.Overs)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, e.Kind)
	}

	if callErr != nil {
		if err := db.MarkAttempt(ctx, id, callErr.Error()); err != nil {
			db.logger.Error().Err(err).Str("id", id).Msg("failed to count replay attempt")
		}
		return fmt.Errorf("replay %s: %w", e.Kind, callErr)
	}

	db.logger.Info().Str("id", id).Str("kind", string(e.Kind)).Msg("reconciliation entry replayed")
	return db.MarkResolved(ctx, id)
}

// NewCustomerEntry builds the entry for a failed customer registration.
func NewCustomerEntry(customer models.Customer, key string, bookingIDs []string, cause error) (*Entry, error) {
	payload, err := json.Marshal(CustomerPayload{Customer: customer, IdempotencyKey: key})
	if err != nil {
		return nil, err
	}
	return &Entry{
		Kind:       KindCustomerRegistration,
		Phone:      customer.Phone,
		BookingIDs: bookingIDs,
		Payload:    payload,
		Error:      cause.Error(),
	}, nil
}

// NewOversEntry builds the entry for a failed overs decrement.
func NewOversEntry(phone string, overs int, bookingID string, cause error) (*Entry, error) {
	payload, err := json.Marshal(OversPayload{Phone: phone, Overs: overs})
	if err != nil {
		return nil, err
	}
	return &Entry{
		Kind:       KindOversDecrement,
		Phone:      phone,
		BookingIDs: []string{bookingID},
		Payload:    payload,
		Error:      cause.Error(),
	}, nil
}

// timeLayout is fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// rows written before the fixed-width layout
		if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return time.Time{}
		}
	}
	return t
}
