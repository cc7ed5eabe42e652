package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	m "fracture.dev/pkg/fracture/internal/model"
)

// UnitStreamer expands baselines and constraints into units of work.
type UnitStreamer interface {
	// Get streams one unit per (baseline, constraint) pair whose subject
	// belongs to the baseline's message type, ordered by baseline name and
	// then constraint order. The channel closes when done or when ctx is
	// cancelled.
	Get(ctx context.Context, baselines []m.Baseline, constraints []m.Constraint, coverage m.CoverageSet, threads int) <-chan m.Unit
	// ShardUnits keeps the units whose position is shardIndex modulo
	// totalShardCount.
	ShardUnits(ctx context.Context, all <-chan m.Unit, threads int, shardIndex, totalShardCount int) <-chan m.Unit
}

type unitStreamer struct{}

// NewUnitStreamer creates a UnitStreamer.
func NewUnitStreamer() UnitStreamer {
	return &unitStreamer{}
}

func (us *unitStreamer) Get(ctx context.Context, baselines []m.Baseline, constraints []m.Constraint, coverage m.CoverageSet, threads int) <-chan m.Unit {
	slog.Debug("Starting unit streaming", "baselines", len(baselines), "constraints", len(constraints), "threads", threads)
	ch := make(chan m.Unit, bufferSize(threads))

	sorted := make([]m.Baseline, len(baselines))
	copy(sorted, baselines)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	go func() {
		defer close(ch)

		index := 0

		for _, baseline := range sorted {
			for _, c := range constraints {
				if len(c.Subject) == 0 || c.Subject[0].Name != baseline.Instance.Type {
					continue
				}

				element, scope := ScopeOf(c, coverage)
				unit := m.Unit{
					ID:         fmt.Sprintf("%s:%s", baseline.Name, c.ID),
					Index:      index,
					Baseline:   baseline,
					Constraint: c,
					Element:    element,
					Scope:      scope,
				}

				index++

				select {
				case <-ctx.Done():
					slog.Debug("Unit streaming cancelled")
					return
				case ch <- unit:
				}
			}
		}
	}()

	return ch
}

// bufferSize ensures the channel buffer is at least 1.
func bufferSize(threads int) int {
	if threads <= 0 {
		return 1
	}

	return threads
}

func (us *unitStreamer) ShardUnits(ctx context.Context, all <-chan m.Unit, threads int, shardIndex, totalShardCount int) <-chan m.Unit {
	ch := make(chan m.Unit, bufferSize(threads))

	go func() {
		defer close(ch)

		if totalShardCount <= 1 {
			slog.Debug("Sharding disabled, passing through all units")
		}

		index := 0

		for unit := range all {
			keep := totalShardCount <= 1 || index%totalShardCount == shardIndex
			index++

			if !keep {
				continue
			}

			select {
			case <-ctx.Done():
				slog.Debug("Unit sharding cancelled")
				return
			case ch <- unit:
			}
		}
	}()

	return ch
}
