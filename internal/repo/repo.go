package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"sellconfig/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by both *sql.DB and *sql.Tx so reads inside a write
// transaction see the same snapshot they will update.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.DB
}

const sellConfigColumns = `product_id,steps_json,rules_json,options_json,version,updated_by,created_at,updated_at`

func scanSellConfig(row *sql.Row) (domain.SellConfig, error) {
	var (
		c                              domain.SellConfig
		stepsJSON, rulesJSON, optsJSON string
	)
	err := row.Scan(&c.ProductID, &stepsJSON, &rulesJSON, &optsJSON, &c.Version, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(stepsJSON), &c.Steps); err != nil {
		return c, fmt.Errorf("decode steps for %s: %w", c.ProductID, err)
	}
	if err := json.Unmarshal([]byte(rulesJSON), &c.Rules); err != nil {
		return c, fmt.Errorf("decode rules for %s: %w", c.ProductID, err)
	}
	if err := json.Unmarshal([]byte(optsJSON), &c.Options); err != nil {
		return c, fmt.Errorf("decode options for %s: %w", c.ProductID, err)
	}
	return c, nil
}

// GetSellConfig loads one product's config. tx may be nil.
func (r Repo) GetSellConfig(ctx context.Context, tx *sql.Tx, productID string) (domain.SellConfig, error) {
	return scanSellConfig(r.q(tx).QueryRowContext(ctx, `SELECT `+sellConfigColumns+` FROM sell_configs WHERE product_id=?`, productID))
}

func (r Repo) ListSellConfigs(ctx context.Context) ([]domain.SellConfigSummary, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT product_id,json_array_length(steps_json),json_array_length(options_json),version,updated_by,updated_at FROM sell_configs ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.SellConfigSummary{}
	for rows.Next() {
		var s domain.SellConfigSummary
		if err := rows.Scan(&s.ProductID, &s.StepCount, &s.OptionCount, &s.Version, &s.UpdatedBy, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpsertSellConfig writes c as-is; the caller owns version and timestamps.
func (r Repo) UpsertSellConfig(ctx context.Context, tx *sql.Tx, c domain.SellConfig) error {
	steps, err := json.Marshal(c.Steps)
	if err != nil {
		return err
	}
	rules, err := json.Marshal(c.Rules)
	if err != nil {
		return err
	}
	opts, err := json.Marshal(nonNil(c.Options))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO sell_configs(`+sellConfigColumns+`) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(product_id) DO UPDATE SET steps_json=excluded.steps_json, rules_json=excluded.rules_json,
options_json=excluded.options_json, version=excluded.version, updated_by=excluded.updated_by, updated_at=excluded.updated_at`,
		c.ProductID, string(steps), string(rules), string(opts), c.Version, c.UpdatedBy, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) DeleteSellConfig(ctx context.Context, tx *sql.Tx, productID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM sell_configs WHERE product_id=?`, productID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// LatestEvents returns newest-first events, optionally for one product and
// one type. cursor > 0 pages to events older than the cursor.
func (r Repo) LatestEvents(ctx context.Context, limit int, cursor int64, productID, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if productID != "" {
		clauses = append(clauses, "product_id=?")
		args = append(args, productID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,product_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx, `SELECT id,ts,type,product_id,actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProductID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID across all products.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
