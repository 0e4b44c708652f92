package export

import (
	"context"
	"fmt"
	"time"
)

// DataStore defines the data access the exporter needs.
type DataStore interface {
	LoadBoard(ctx context.Context, boardID string) (BoardData, error)
}

// Service provides board export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	board, err := s.store.LoadBoard(ctx, req.BoardID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBoardUnavailable, err)
	}
	if board.ExportedAt.IsZero() {
		board.ExportedAt = time.Now().UTC()
	}

	switch req.Format {
	case FormatCSV:
		return exportCSV(board)
	case FormatPDF:
		html, err := RenderBoardHTML(board)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return exportPDF(html, board.Name)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
