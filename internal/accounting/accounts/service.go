package accounts

import "context"

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, companyID int64) ([]Account, error) {
	return s.repo.List(ctx, companyID)
}

// Lookup returns the company's accounts among ids, keyed by id. Unknown ids are absent.
func (s *Service) Lookup(ctx context.Context, companyID int64, ids []int64) (map[int64]Account, error) {
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	found, err := s.repo.GetByIDs(ctx, companyID, unique)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Account, len(found))
	for _, a := range found {
		out[a.ID] = a
	}
	return out, nil
}
