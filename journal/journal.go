// Package journal persists committed ledger events to SQLite so that
// operators can audit mints, payments and admin changes.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bitfsorg/libpop-go/ledger"
	"github.com/bitfsorg/libpop-go/wallet"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - initial events table
const currentSchemaVersion = 1

// Journal is an append-only event log.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

var _ ledger.EventSink = (*Journal)(nil)

// Open creates or opens the journal at path with WAL mode and a single
// writer connection.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: connect: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: set user_version: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// Emit appends events in one transaction.
func (j *Journal) Emit(ctx context.Context, events []ledger.Event) error {
	if j.db == nil {
		return ErrClosed
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (id, kind, from_addr, to_addr, token_id, primary_id, amount, flag, text, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("journal: prepare insert: %w", err)
	}
	defer stmt.Close()

	at := j.now().UnixMilli()
	for _, ev := range events {
		id := uuid.Must(uuid.NewV7()).String()
		if _, err := stmt.ExecContext(ctx,
			id, string(ev.Kind), ev.From.Hex(), ev.To.Hex(),
			u64(ev.TokenID), u64(ev.PrimaryID), u64(ev.Amount),
			ev.Flag, ev.Text, at,
		); err != nil {
			return fmt.Errorf("journal: insert %s: %w", ev.Kind, err)
		}
	}
	return tx.Commit()
}

// Record is one stored event.
type Record struct {
	Seq        int64        `json:"seq"`
	ID         string       `json:"id"`
	RecordedAt time.Time    `json:"recorded_at"`
	Event      ledger.Event `json:"event"`
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	Kind     ledger.EventKind
	Address  wallet.Address // matches either side of the event
	AfterSeq int64
	Limit    int
}

// Query returns matching events in append order.
func (j *Journal) Query(ctx context.Context, f Filter) ([]Record, error) {
	if j.db == nil {
		return nil, ErrClosed
	}
	var (
		where []string
		args  []any
	)
	where = append(where, "seq > ?")
	args = append(args, f.AfterSeq)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if !f.Address.IsZero() {
		where = append(where, "(from_addr = ? OR to_addr = ?)")
		args = append(args, f.Address.Hex(), f.Address.Hex())
	}
	q := `SELECT seq, id, kind, from_addr, to_addr, token_id, primary_id, amount, flag, text, recorded_at
		FROM events WHERE ` + strings.Join(where, " AND ") + ` ORDER BY seq`
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate: %w", err)
	}
	return out, nil
}

// Count returns the number of stored events.
func (j *Journal) Count(ctx context.Context) (n int64, err error) {
	if j.db == nil {
		return 0, ErrClosed
	}
	err = j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n)
	return n, err
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec                      Record
		kind, from, to           string
		tokenID, primaryID, amnt string
		recordedAt               int64
	)
	if err := rows.Scan(&rec.Seq, &rec.ID, &kind, &from, &to, &tokenID, &primaryID, &amnt,
		&rec.Event.Flag, &rec.Event.Text, &recordedAt); err != nil {
		return Record{}, fmt.Errorf("journal: scan: %w", err)
	}
	rec.Event.Kind = ledger.EventKind(kind)
	rec.RecordedAt = time.UnixMilli(recordedAt).UTC()

	var err error
	if rec.Event.From, err = wallet.ParseAddress(from); err != nil {
		return Record{}, fmt.Errorf("%w: seq %d from: %w", ErrCorruptRow, rec.Seq, err)
	}
	if rec.Event.To, err = wallet.ParseAddress(to); err != nil {
		return Record{}, fmt.Errorf("%w: seq %d to: %w", ErrCorruptRow, rec.Seq, err)
	}
	for _, f := range []struct {
		dst *uint64
		src string
	}{
		{&rec.Event.TokenID, tokenID},
		{&rec.Event.PrimaryID, primaryID},
		{&rec.Event.Amount, amnt},
	} {
		if *f.dst, err = strconv.ParseUint(f.src, 10, 64); err != nil {
			return Record{}, fmt.Errorf("%w: seq %d: %w", ErrCorruptRow, rec.Seq, err)
		}
	}
	return rec, nil
}

// u64 stores unsigned values as decimal text; SQLite integers are signed.
func u64(v uint64) string { return strconv.FormatUint(v, 10) }
