package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

const defaultIntegrityWindow = 24 * time.Hour

// UnbalancedEntry is a stored journal entry whose header or lines violate double entry.
type UnbalancedEntry struct {
	CompanyID      int64
	EntryID        int64
	DocumentNumber string
	TotalDebit     decimal.Decimal
	TotalCredit    decimal.Decimal
	LineDebit      decimal.Decimal
	LineCredit     decimal.Decimal
	LineCount      int
}

// IntegrityStore finds entries created since a point in time that no longer balance.
type IntegrityStore interface {
	UnbalancedEntries(ctx context.Context, since time.Time) ([]UnbalancedEntry, error)
}

// PostgresIntegrityStore reads journal_entries and journal_lines.
type PostgresIntegrityStore struct {
	pool *pgxpool.Pool
}

// NewPostgresIntegrityStore wraps pool.
func NewPostgresIntegrityStore(pool *pgxpool.Pool) *PostgresIntegrityStore {
	return &PostgresIntegrityStore{pool: pool}
}

const unbalancedEntriesSQL = `SELECT je.company_id, je.id, je.document_number, je.total_debit, je.total_credit,
	COALESCE(SUM(jl.debit), 0), COALESCE(SUM(jl.credit), 0), COUNT(jl.id)
FROM journal_entries je
LEFT JOIN journal_lines jl ON jl.entry_id = je.id
WHERE je.created_at >= $1 AND je.status = 'BALANCED'
GROUP BY je.id
HAVING je.total_debit <> je.total_credit
	OR COALESCE(SUM(jl.debit), 0) <> je.total_debit
	OR COALESCE(SUM(jl.credit), 0) <> je.total_credit
	OR COUNT(jl.id) < 2
ORDER BY je.company_id, je.id`

func (s *PostgresIntegrityStore) UnbalancedEntries(ctx context.Context, since time.Time) ([]UnbalancedEntry, error) {
	rows, err := s.pool.Query(ctx, unbalancedEntriesSQL, since)
	if err != nil {
		return nil, fmt.Errorf("integrity: query: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (UnbalancedEntry, error) {
		var e UnbalancedEntry
		err := row.Scan(&e.CompanyID, &e.EntryID, &e.DocumentNumber, &e.TotalDebit, &e.TotalCredit,
			&e.LineDebit, &e.LineCredit, &e.LineCount)
		return e, err
	})
}

// LedgerIntegrityJob scans recent entries and reports the unbalanced ones.
type LedgerIntegrityJob struct {
	Store   IntegrityStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLedgerIntegrityJob constructs the job handler.
func NewLedgerIntegrityJob(store IntegrityStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the integrity check. Findings are reported, not returned as errors.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("ledger integrity: store not configured")
	}
	var payload LedgerIntegrityPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("ledger integrity: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	window := payload.Window
	if window <= 0 {
		window = defaultIntegrityWindow
	}

	entries, err := j.Store.UnbalancedEntries(ctx, j.clock().Add(-window))
	if err != nil {
		j.log().Error("ledger integrity scan", slog.Any("error", err))
		return err
	}
	perCompany := make(map[int64]int)
	for _, e := range entries {
		perCompany[e.CompanyID]++
		j.log().Warn("unbalanced journal entry",
			slog.Int64("company_id", e.CompanyID),
			slog.Int64("entry_id", e.EntryID),
			slog.String("document_number", e.DocumentNumber),
			slog.String("total_debit", e.TotalDebit.StringFixed(2)),
			slog.String("total_credit", e.TotalCredit.StringFixed(2)),
			slog.String("line_debit", e.LineDebit.StringFixed(2)),
			slog.String("line_credit", e.LineCredit.StringFixed(2)),
			slog.Int("lines", e.LineCount),
		)
	}
	for companyID, count := range perCompany {
		j.Metrics.AddUnbalanced(companyID, count)
	}
	j.log().Info("ledger integrity check completed",
		slog.Duration("window", window), slog.Int("unbalanced", len(entries)))
	return nil
}

func (j *LedgerIntegrityJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
