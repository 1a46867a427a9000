package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/eventreg/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const registrationColumns = `id, user_id, event_id, status, created_at, cancelled_at`

// PostgresLedger stores registrations in Postgres and serialises creates per
// event with a transaction-scoped advisory lock, so any number of processes
// may share one database.
type PostgresLedger struct {
	db   *pgxpool.Pool
	dir  Directory
	opts LedgerOptions
}

// NewPostgresLedger constructs a PostgresLedger reading events from dir.
func NewPostgresLedger(db *pgxpool.Pool, dir Directory, opts LedgerOptions) *PostgresLedger {
	return &PostgresLedger{db: db, dir: dir, opts: opts.withDefaults()}
}

// Create binds userID to eventID.
//
// ─────────────────────────────────────────────────────────────────────────────
// WHY A LOCK
// ─────────────────────────────────────────────────────────────────────────────
//
// Read-then-write without one overbooks:
//
//	tx A: SELECT count(*) … status = 'active'   → 9
//	tx B: SELECT count(*) … status = 'active'   → 9
//	tx A: capacity=10, 9 < 10 → INSERT
//	tx B: capacity=10, 9 < 10 → INSERT
//	Result: 11 active registrations for a 10-seat event.
//
// pg_advisory_xact_lock(hash(event_id)) makes every create for the same event
// queue behind the one holding the lock until it commits or rolls back. Other
// events hash to other keys and proceed in parallel. The Directory lookup runs
// before the transaction so the lock is never held across that call.
//
// The partial unique index on (user_id, event_id) WHERE status = 'active' is
// a second line of defence: a retried create can never produce two active rows.
// ─────────────────────────────────────────────────────────────────────────────
func (l *PostgresLedger) Create(ctx context.Context, userID, eventID string) (*model.Registration, error) {
	event, err := lookupOpenEvent(ctx, l.dir, l.opts, eventID)
	if err != nil {
		return nil, err
	}

	var reg *model.Registration
	err = l.inEventTx(ctx, eventID, func(ctx context.Context, tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (
			   SELECT 1 FROM registrations
			   WHERE event_id = $1 AND user_id = $2 AND status = 'active')`,
			eventID, userID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check duplicate: %w", err)
		}
		if exists {
			return model.ErrAlreadyRegistered
		}

		var active int
		err = tx.QueryRow(ctx,
			`SELECT count(*) FROM registrations WHERE event_id = $1 AND status = 'active'`,
			eventID,
		).Scan(&active)
		if err != nil {
			return fmt.Errorf("count active: %w", err)
		}
		if !event.HasRoom(active) {
			return model.ErrEventFull
		}

		reg = newRegistration(userID, eventID, l.opts.Now())
		_, err = tx.Exec(ctx,
			`INSERT INTO registrations (id, user_id, event_id, status, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			reg.ID, reg.UserID, reg.EventID, string(reg.Status), reg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, classify("create registration", err)
	}
	return reg, nil
}

// Cancel moves the caller's active registration to cancelled. A single
// conditional UPDATE is atomic, so no advisory lock is needed here.
func (l *PostgresLedger) Cancel(ctx context.Context, userID, eventID string) (*model.Registration, error) {
	ctx, cancel := withTimeout(ctx, l.opts.StoreTimeout)
	defer cancel()

	row := l.db.QueryRow(ctx,
		`UPDATE registrations
		 SET status = 'cancelled', cancelled_at = $3
		 WHERE user_id = $1 AND event_id = $2 AND status = 'active'
		 RETURNING `+registrationColumns,
		userID, eventID, l.opts.Now(),
	)
	reg, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotRegistered
		}
		return nil, classify("cancel registration", err)
	}
	return reg, nil
}

// ListAll returns registrations matching filter, oldest first.
func (l *PostgresLedger) ListAll(ctx context.Context, filter model.RegistrationFilter) ([]model.Registration, error) {
	ctx, cancel := withTimeout(ctx, l.opts.StoreTimeout)
	defer cancel()

	rows, err := l.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE ($1 = '' OR event_id = $1)
		   AND ($2 = '' OR status = $2)
		 ORDER BY created_at ASC, id ASC
		 LIMIT NULLIF($3, 0) OFFSET $4`,
		filter.EventID, string(filter.Status), filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, classify("list registrations", err)
	}
	return collectRegistrations(rows)
}

// ListForUser returns every registration owned by userID, oldest first.
func (l *PostgresLedger) ListForUser(ctx context.Context, userID string) ([]model.Registration, error) {
	ctx, cancel := withTimeout(ctx, l.opts.StoreTimeout)
	defer cancel()

	rows, err := l.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE user_id = $1
		 ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, classify("list user registrations", err)
	}
	return collectRegistrations(rows)
}

// ActiveCounts implements Ledger.
func (l *PostgresLedger) ActiveCounts(ctx context.Context, eventIDs ...string) (map[string]int, error) {
	ctx, cancel := withTimeout(ctx, l.opts.StoreTimeout)
	defer cancel()

	if eventIDs == nil {
		eventIDs = []string{}
	}
	rows, err := l.db.Query(ctx,
		`SELECT event_id, count(*)
		 FROM registrations
		 WHERE status = 'active'
		   AND (cardinality($1::text[]) = 0 OR event_id = ANY($1))
		 GROUP BY event_id`,
		eventIDs,
	)
	if err != nil {
		return nil, classify("count active registrations", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, classify("count active registrations", err)
	}
	return counts, nil
}

// inEventTx runs fn in a transaction holding the advisory lock for eventID.
// The lock is released by COMMIT or ROLLBACK on every path.
func (l *PostgresLedger) inEventTx(ctx context.Context, eventID string, fn func(context.Context, pgx.Tx) error) error {
	ctx, cancel := withTimeout(ctx, l.opts.StoreTimeout)
	defer cancel()

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, eventID); err != nil {
		return fmt.Errorf("lock event: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var reg model.Registration
	var status string
	if err := row.Scan(&reg.ID, &reg.UserID, &reg.EventID, &status, &reg.CreatedAt, &reg.CancelledAt); err != nil {
		return nil, err
	}
	reg.Status = model.Status(status)
	return &reg, nil
}

func collectRegistrations(rows pgx.Rows) ([]model.Registration, error) {
	defer rows.Close()

	regs := []model.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("read registrations", err)
	}
	return regs, nil
}
