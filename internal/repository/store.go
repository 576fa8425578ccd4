// Package repository implements the durable-store contract on MySQL
// using database/sql.  The same query methods run against the pooled
// connection or a transaction through the DBTX seam, so the engine can
// group a draw's writes into one atomic unit.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/leolab/lottery-engine/internal/model"
	"github.com/leolab/lottery-engine/internal/lottery"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries carries every statement; it is bound either to the pool or to
// an open transaction.
type queries struct {
	q DBTX
}

// Store is the pool-bound implementation of lottery.Store.
type Store struct {
	queries
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

var (
	_ lottery.Store   = (*Store)(nil)
	_ lottery.TxStore = queries{}
)

// InTx runs fn inside one transaction.  The TxStore handed to fn shares
// this store's queries but routes them through the transaction; any
// error from fn rolls everything back.
func (s *Store) InTx(ctx context.Context, fn func(tx lottery.TxStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(queries{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ActiveRules returns the rules whose validity window contains `at` and
// which still have stock and a positive weight.
func (q queries) ActiveRules(ctx context.Context, at time.Time) ([]model.PrizeRule, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, prize_id, total_num, surplus_num, weight, start_time, end_time
		FROM prize_rules
		WHERE start_time <= ? AND end_time > ? AND surplus_num > 0 AND weight > 0
		ORDER BY id`, at, at)
	if err != nil {
		return nil, fmt.Errorf("query active rules: %w", err)
	}
	defer rows.Close()

	var rules []model.PrizeRule
	for rows.Next() {
		var r model.PrizeRule
		if err := rows.Scan(&r.ID, &r.PrizeID, &r.TotalNum, &r.SurplusNum, &r.Weight, &r.StartTime, &r.EndTime); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ActivePrizes returns the catalog entries that still have stock.
func (q queries) ActivePrizes(ctx context.Context) ([]model.Prize, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, type, name, image_url, url, total, remaining, weight
		FROM prizes
		WHERE remaining > 0
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query active prizes: %w", err)
	}
	defer rows.Close()

	var prizes []model.Prize
	for rows.Next() {
		var p model.Prize
		if err := rows.Scan(&p.ID, &p.Type, &p.Name, &p.ImageURL, &p.URL, &p.Total, &p.Remaining, &p.Weight); err != nil {
			return nil, fmt.Errorf("scan prize: %w", err)
		}
		prizes = append(prizes, p)
	}
	return prizes, rows.Err()
}

// RuleSurplus reads a rule's remaining quantity.
func (q queries) RuleSurplus(ctx context.Context, ruleID uint64) (int64, bool, error) {
	var surplus int64
	err := q.q.QueryRowContext(ctx,
		`SELECT surplus_num FROM prize_rules WHERE id = ?`, ruleID).Scan(&surplus)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query rule surplus: %w", err)
	}
	return surplus, true, nil
}

// DecrementRuleSurplus conditionally takes one unit of rule stock.  A
// zero-row update means the stock was already gone.
func (q queries) DecrementRuleSurplus(ctx context.Context, ruleID uint64) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE prize_rules SET surplus_num = surplus_num - 1 WHERE id = ? AND surplus_num > 0`, ruleID)
	if err != nil {
		return false, fmt.Errorf("decrement rule surplus: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement rule surplus: %w", err)
	}
	return n > 0, nil
}

// IncrementRuleSurplus restores one unit of rule stock, never past the
// configured total.
func (q queries) IncrementRuleSurplus(ctx context.Context, ruleID uint64) error {
	_, err := q.q.ExecContext(ctx,
		`UPDATE prize_rules SET surplus_num = surplus_num + 1 WHERE id = ? AND surplus_num < total_num`, ruleID)
	if err != nil {
		return fmt.Errorf("increment rule surplus: %w", err)
	}
	return nil
}

// PrizeRemaining reads a prize's remaining quantity.
func (q queries) PrizeRemaining(ctx context.Context, prizeID uint64) (int64, bool, error) {
	var remaining int64
	err := q.q.QueryRowContext(ctx,
		`SELECT remaining FROM prizes WHERE id = ?`, prizeID).Scan(&remaining)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query prize remaining: %w", err)
	}
	return remaining, true, nil
}

// DecrementPrizeRemaining conditionally takes one unit of prize stock.
func (q queries) DecrementPrizeRemaining(ctx context.Context, prizeID uint64) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE prizes SET remaining = remaining - 1 WHERE id = ? AND remaining > 0`, prizeID)
	if err != nil {
		return false, fmt.Errorf("decrement prize remaining: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement prize remaining: %w", err)
	}
	return n > 0, nil
}

// IncrementPrizeRemaining restores one unit of prize stock, never past
// the configured total.
func (q queries) IncrementPrizeRemaining(ctx context.Context, prizeID uint64) error {
	_, err := q.q.ExecContext(ctx,
		`UPDATE prizes SET remaining = remaining + 1 WHERE id = ? AND remaining < total`, prizeID)
	if err != nil {
		return fmt.Errorf("increment prize remaining: %w", err)
	}
	return nil
}

// InsertDraw appends one ledger row and writes the assigned sequential
// key back into rec.ID.
func (q queries) InsertDraw(ctx context.Context, rec *model.DrawRecord) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO draw_records (draws_id, requester_id, prize_id, type, ip, rule_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.DrawsID, rec.RequesterID, rec.PrizeID, rec.Type, rec.IP, rec.RuleID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert draw record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert draw record: %w", err)
	}
	rec.ID = uint64(id)
	return nil
}

// SetDrawPublicID backfills the public identifier derived from the
// sequential key.  The only mutation a ledger row ever receives.
func (q queries) SetDrawPublicID(ctx context.Context, id uint64, publicID string) error {
	_, err := q.q.ExecContext(ctx,
		`UPDATE draw_records SET draws_id = ? WHERE id = ?`, publicID, id)
	if err != nil {
		return fmt.Errorf("set draw public id: %w", err)
	}
	return nil
}

// FindDrawByID looks up a ledger row by its sequential key.  A missing
// row is (nil, nil), not an error.
func (q queries) FindDrawByID(ctx context.Context, id uint64) (*model.DrawRecord, error) {
	return q.scanDraw(q.q.QueryRowContext(ctx, `
		SELECT id, draws_id, requester_id, prize_id, type, ip, rule_id, created_at
		FROM draw_records WHERE id = ?`, id))
}

// FindDrawByPublicID looks up a ledger row by its public identifier.
func (q queries) FindDrawByPublicID(ctx context.Context, publicID string) (*model.DrawRecord, error) {
	return q.scanDraw(q.q.QueryRowContext(ctx, `
		SELECT id, draws_id, requester_id, prize_id, type, ip, rule_id, created_at
		FROM draw_records WHERE draws_id = ?`, publicID))
}

// CountWins counts a requester's winning draws in [since, until).
func (q queries) CountWins(ctx context.Context, requesterID string, since, until time.Time) (int64, error) {
	var n int64
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM draw_records
		WHERE requester_id = ? AND prize_id > 0 AND created_at >= ? AND created_at < ?`,
		requesterID, since, until).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count wins: %w", err)
	}
	return n, nil
}

func (q queries) scanDraw(row *sql.Row) (*model.DrawRecord, error) {
	var rec model.DrawRecord
	err := row.Scan(&rec.ID, &rec.DrawsID, &rec.RequesterID, &rec.PrizeID, &rec.Type, &rec.IP, &rec.RuleID, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan draw record: %w", err)
	}
	return &rec, nil
}
