package stats

import (
	"context"
	"fmt"

	"github.com/warp/ledger-engine/domain"
)

// Service runs statistics against a store that can produce snapshots.
type Service struct {
	reader domain.SnapshotReader
}

// NewService creates a statistics service.
func NewService(reader domain.SnapshotReader) *Service {
	return &Service{reader: reader}
}

// Calculate loads one snapshot, applies f and aggregates the result.
func (s *Service) Calculate(ctx context.Context, f Filter) (Statistics, error) {
	snap, err := s.reader.Snapshot(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("load snapshot: %w", err)
	}
	return Calculate(f.Apply(snap), f.Range), nil
}

// Bills returns the bills matching f, newest first.
func (s *Service) Bills(ctx context.Context, f Filter) ([]domain.Bill, error) {
	snap, err := s.reader.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return f.Apply(snap).Bills, nil
}
