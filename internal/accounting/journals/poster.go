package journals

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Poster lets other modules add a journal entry to a unit of work they own.
type Poster struct {
	svc *Service
}

// NewPoster shares the service's repository, sequencer and audit wiring.
func NewPoster(svc *Service) *Poster {
	return &Poster{svc: svc}
}

// Post inserts the entry on uow. It never commits or rolls back; on error the caller
// is expected to roll the unit back. The audit record is written once the unit completes,
// so a rollback caused by the caller's later steps is audited as a failure.
func (p *Poster) Post(ctx context.Context, uow db.UnitOfWork, in CreateInput, actor internalShared.Actor) (JournalEntry, error) {
	if uow == nil {
		return JournalEntry{}, errors.New("journals: poster requires a unit of work")
	}
	repo, err := p.svc.repo.Bind(uow)
	if err != nil {
		return JournalEntry{}, err
	}
	entry, postErr := p.svc.post(ctx, uow, repo, in, actor)
	module := uow.Owner()
	uow.OnComplete(func(ctx context.Context, committed bool) {
		switch {
		case postErr != nil:
			p.svc.observe("post", postErr)
			p.svc.record(ctx, module, actor, in.CompanyID, audit.KindCreate, 0, nil, in, postErr)
		case !committed:
			rolledBack := fmt.Errorf("journals: %s unit of work rolled back", module)
			p.svc.observe("post", rolledBack)
			p.svc.record(ctx, module, actor, in.CompanyID, audit.KindCreate, entry.ID, nil, in, rolledBack)
		default:
			p.svc.observe("post", nil)
			p.svc.record(ctx, module, actor, entry.CompanyID, audit.KindCreate, entry.ID, nil, entry, nil)
		}
	})
	if postErr != nil {
		return JournalEntry{}, postErr
	}
	return entry, nil
}
