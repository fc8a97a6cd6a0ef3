package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository encapsulates DB operations for journals.
// Reads go straight to the pool; writes happen on a TxRepository bound to a unit of work.
type Repository interface {
	Bind(uow db.UnitOfWork) (TxRepository, error)
	Get(ctx context.Context, companyID, id int64) (JournalEntry, error)
	List(ctx context.Context, companyID int64, filter ListFilter) ([]JournalEntry, error)
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	// LockSequence serialises sequence assignment for key until the transaction ends.
	LockSequence(ctx context.Context, key SequenceKey) error
	MaxSequence(ctx context.Context, key SequenceKey) (int64, error)
	GetEntryType(ctx context.Context, companyID, entryTypeID int64) (EntryType, error)
	GetPeriod(ctx context.Context, companyID, periodID int64) (periods.Period, error)

	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []JournalLine) ([]JournalLine, error)
	GetEntryForUpdate(ctx context.Context, companyID, id int64) (JournalEntry, error)
	UpdateEntry(ctx context.Context, entry JournalEntry) error
	DeleteLines(ctx context.Context, entryID int64) error
	UpdateStatus(ctx context.Context, companyID, id int64, status JournalStatus, actorID int64, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) Bind(uow db.UnitOfWork) (TxRepository, error) {
	tx, err := db.Tx(uow)
	if err != nil {
		return nil, err
	}
	return &txRepository{tx: tx}, nil
}

const entryColumns = `je.id, je.company_id, je.period_id, je.entry_type_id, je.sequence, je.document_number, je.posting_date,
je.currency_id, je.exchange_rate, je.description, je.total_debit, je.total_credit, je.status, je.origin_table, je.origin_id,
je.created_by, je.created_at, je.updated_by, je.updated_at`

const lineColumns = `id, entry_id, line_no, account_id, debit, credit, currency_id, cost_center_id, counterparty_kind,
counterparty_id, document_ref, document_date`

func (r *repository) Get(ctx context.Context, companyID, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries je WHERE je.id=$1 AND je.company_id=$2`, id, companyID))
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.db, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *repository) List(ctx context.Context, companyID int64, filter ListFilter) ([]JournalEntry, error) {
	conditions, args := filter.Predicates(companyID)
	query := fmt.Sprintf(`SELECT %s FROM journal_entries je WHERE %s ORDER BY je.posting_date DESC, je.document_number DESC LIMIT %d OFFSET %d`,
		entryColumns, strings.Join(conditions, " AND "), filter.limit(), filter.Offset)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockSequence(ctx context.Context, key SequenceKey) error {
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key.String())
	return err
}

func (r *txRepository) MaxSequence(ctx context.Context, key SequenceKey) (int64, error) {
	var max int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM journal_entries
WHERE company_id=$1 AND period_id=$2 AND entry_type_id=$3`, key.CompanyID, key.PeriodID, key.EntryTypeID).Scan(&max)
	return max, err
}

func (r *txRepository) GetEntryType(ctx context.Context, companyID, entryTypeID int64) (EntryType, error) {
	var et EntryType
	err := r.tx.QueryRow(ctx, `SELECT id, code, name FROM entry_types WHERE id=$1 AND company_id=$2`, entryTypeID, companyID).
		Scan(&et.ID, &et.Code, &et.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EntryType{}, &shared.ReferenceError{Kind: "entry type", ID: entryTypeID}
		}
		return EntryType{}, err
	}
	return et, nil
}

// GetPeriod fetches the fiscal period inside the transaction; the periods repository only reads from the pool.
func (r *txRepository) GetPeriod(ctx context.Context, companyID, periodID int64) (periods.Period, error) {
	var p periods.Period
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, code, fiscal_year, fiscal_month, start_date, end_date, status, created_at, updated_at
FROM periods WHERE id=$1 AND company_id=$2`, periodID, companyID).
		Scan(&p.ID, &p.CompanyID, &p.Code, &p.FiscalYear, &p.FiscalMonth, &p.StartDate, &p.EndDate, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, &shared.ReferenceError{Kind: "fiscal period", ID: periodID}
		}
		return periods.Period{}, err
	}
	return p, nil
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	originTable, originID := originArgs(entry.Origin)
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (company_id, period_id, entry_type_id, sequence, document_number, posting_date,
currency_id, exchange_rate, description, total_debit, total_credit, status, origin_table, origin_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) RETURNING id`,
		entry.CompanyID, entry.PeriodID, entry.EntryTypeID, entry.Sequence, entry.DocumentNumber, entry.PostingDate,
		entry.CurrencyID, entry.ExchangeRate, entry.Description, entry.TotalDebit, entry.TotalCredit, entry.Status,
		originTable, originID, nullInt(entry.CreatedBy), entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return JournalEntry{}, shared.Persistence("insert journal entry", err)
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []JournalLine) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		kind, cpID := counterpartyArgs(line.Counterparty)
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, line_no, account_id, debit, credit, currency_id, cost_center_id,
counterparty_kind, counterparty_id, document_ref, document_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
			entryID, line.LineNo, line.AccountID, line.Debit, line.Credit, line.CurrencyID, nullIntPtr(line.CostCenterID),
			kind, cpID, nullString(line.DocumentRef), line.DocumentDate).Scan(&line.ID)
		if err != nil {
			return nil, shared.Persistence("insert journal line", err)
		}
		line.EntryID = entryID
		out = append(out, line)
	}
	return out, nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, companyID, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries je WHERE je.id=$1 AND je.company_id=$2 FOR UPDATE`, id, companyID))
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.tx, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) UpdateEntry(ctx context.Context, entry JournalEntry) error {
	originTable, originID := originArgs(entry.Origin)
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET posting_date=$3, currency_id=$4, exchange_rate=$5, description=$6,
total_debit=$7, total_credit=$8, origin_table=$9, origin_id=$10, updated_by=$11, updated_at=$12
WHERE id=$1 AND company_id=$2`,
		entry.ID, entry.CompanyID, entry.PostingDate, entry.CurrencyID, entry.ExchangeRate, entry.Description,
		entry.TotalDebit, entry.TotalCredit, originTable, originID, entry.UpdatedBy, entry.UpdatedAt)
	if err != nil {
		return shared.Persistence("update journal entry", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) DeleteLines(ctx context.Context, entryID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, entryID)
	return shared.Persistence("delete journal lines", err)
}

func (r *txRepository) UpdateStatus(ctx context.Context, companyID, id int64, status JournalStatus, actorID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$3, updated_by=$4, updated_at=$5 WHERE id=$1 AND company_id=$2`,
		id, companyID, status, nullInt(actorID), at)
	if err != nil {
		return shared.Persistence("update journal status", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	var originTable *string
	var originID *int64
	var createdBy *int64
	err := row.Scan(&e.ID, &e.CompanyID, &e.PeriodID, &e.EntryTypeID, &e.Sequence, &e.DocumentNumber, &e.PostingDate,
		&e.CurrencyID, &e.ExchangeRate, &e.Description, &e.TotalDebit, &e.TotalCredit, &e.Status, &originTable, &originID,
		&createdBy, &e.CreatedAt, &e.UpdatedBy, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrNotFound
		}
		return JournalEntry{}, err
	}
	if originTable != nil && originID != nil {
		e.Origin = &Origin{Table: *originTable, RecordID: *originID}
	}
	if createdBy != nil {
		e.CreatedBy = *createdBy
	}
	return e, nil
}

func loadLines(ctx context.Context, q db.DBTX, entryID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM journal_lines WHERE entry_id=$1 ORDER BY line_no ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		var kind *string
		var cpID *int64
		var docRef *string
		if err := rows.Scan(&line.ID, &line.EntryID, &line.LineNo, &line.AccountID, &line.Debit, &line.Credit, &line.CurrencyID,
			&line.CostCenterID, &kind, &cpID, &docRef, &line.DocumentDate); err != nil {
			return nil, err
		}
		if kind != nil && cpID != nil {
			line.Counterparty = &Counterparty{Kind: CounterpartyKind(*kind), ID: *cpID}
		}
		if docRef != nil {
			line.DocumentRef = *docRef
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// Helpers
func originArgs(origin *Origin) (any, any) {
	if origin == nil {
		return nil, nil
	}
	return origin.Table, origin.RecordID
}

func counterpartyArgs(cp *Counterparty) (any, any) {
	if cp == nil {
		return nil, nil
	}
	return string(cp.Kind), cp.ID
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullIntPtr(val *int64) any {
	if val == nil {
		return nil
	}
	if *val == 0 {
		return nil
	}
	return *val
}

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}
