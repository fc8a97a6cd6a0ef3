package mappings

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type Repository interface {
	Get(ctx context.Context, companyID int64, module, key string) (AccountMapping, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, companyID int64, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, errors.New("accounting: module and key required")
	}
	normalized := strings.ToUpper(module)
	var mapping AccountMapping
	err := r.db.QueryRow(ctx, `SELECT company_id, module, key, account_id, created_at, updated_at FROM account_mappings
WHERE company_id=$1 AND module=$2 AND key=$3`, companyID, normalized, key).
		Scan(&mapping.CompanyID, &mapping.Module, &mapping.Key, &mapping.AccountID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, &shared.ReferenceError{Kind: "account mapping " + normalized + "/" + key}
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

// Static is an in-memory Repository keyed by module and key, shared by every company.
type Static map[string]int64

func (s Static) Get(_ context.Context, companyID int64, module, key string) (AccountMapping, error) {
	normalized := strings.ToUpper(module)
	id, ok := s[normalized+"/"+key]
	if !ok {
		return AccountMapping{}, &shared.ReferenceError{Kind: "account mapping " + normalized + "/" + key}
	}
	return AccountMapping{CompanyID: companyID, Module: normalized, Key: key, AccountID: id}, nil
}
