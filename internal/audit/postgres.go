package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink writes records into audit_logs and reads them back for the timeline.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink returns a new PostgresSink.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Write persists the record. Replays of the same record id are ignored.
func (s *PostgresSink) Write(ctx context.Context, rec Record) error {
	if s == nil || s.pool == nil {
		return errors.New("audit: postgres sink not initialised")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO audit_logs (id, company_id, actor_id, actor_name, module, kind, table_name, record_id,
before, after, success, error, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.CompanyID, rec.ActorID, rec.ActorName, rec.Module, string(rec.Kind), rec.Table, rec.RecordID,
		jsonArg(rec.Before), jsonArg(rec.After), rec.Success, rec.Error, rec.At)
	return err
}

// Timeline lists records of one company, newest first.
func (s *PostgresSink) Timeline(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Record, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("audit: postgres sink not initialised")
	}
	conditions := []string{"company_id = $1"}
	args := []any{filters.CompanyID}
	add := func(cond string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if !filters.From.IsZero() {
		add("occurred_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("occurred_at < $%d", filters.To)
	}
	if filters.Module != "" {
		add("module = $%d", filters.Module)
	}
	if filters.Table != "" {
		add("table_name = $%d", filters.Table)
	}
	if filters.RecordID != 0 {
		add("record_id = $%d", filters.RecordID)
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT id, company_id, actor_id, actor_name, module, kind, table_name, record_id,
COALESCE(before::text, ''), COALESCE(after::text, ''), success, error, occurred_at
FROM audit_logs WHERE %s ORDER BY occurred_at DESC, id LIMIT $%d OFFSET $%d`,
		strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		var kind, before, after string
		if err := row.Scan(&rec.ID, &rec.CompanyID, &rec.ActorID, &rec.ActorName, &rec.Module, &kind, &rec.Table,
			&rec.RecordID, &before, &after, &rec.Success, &rec.Error, &rec.At); err != nil {
			return Record{}, err
		}
		rec.Kind = Kind(kind)
		if before != "" {
			rec.Before = []byte(before)
		}
		if after != "" {
			rec.After = []byte(after)
		}
		return rec, nil
	})
}

func jsonArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
