package history

import (
	"context"
	"fmt"

	"github.com/L-Inventaire/linventaire.app-sub000/pkg/apperror"
)

const defaultPageSize = 20

// Service exposes the history query surface to UI-facing callers.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Search returns one record's history page, newest first, soft-deleted
// snapshots included.
func (s *Service) Search(ctx context.Context, tenantID, recordType, recordID string, limit, offset int) (*SearchResult, error) {
	if tenantID == "" {
		return nil, apperror.New(apperror.CodeBadRequest, "tenant is required")
	}
	if recordType == "" || recordID == "" {
		return nil, apperror.New(apperror.CodeBadRequest, "record type and id are required")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	list, total, err := s.store.Search(ctx, tenantID, recordType, recordID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search history: %w", err)
	}
	return &SearchResult{
		Total:   total,
		List:    list,
		HasMore: offset+len(list) < total,
	}, nil
}
