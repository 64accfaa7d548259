package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/uwb-telemetry/internal/aggregate"
	"github.com/oshokin/uwb-telemetry/internal/logger"
	repo "github.com/oshokin/uwb-telemetry/internal/repository/snapshot"
)

// newState creates the aggregate and seeds it with the anchors saved by the
// previous run. A nil repository starts empty.
func newState(ctx context.Context, repository repo.Repository, opts ...aggregate.Option) (*aggregate.State, error) {
	state := aggregate.New(opts...)

	if repository == nil {
		return state, nil
	}

	anchors, err := repository.Load(ctx)
	switch {
	case err == nil:
		state.SeedAnchors(anchors)
		logger.InfoKV(ctx, "Anchors restored", "anchors", len(anchors))
	case errors.Is(err, repo.ErrNotFound):
		// Keep the empty aggregate.
	default:
		return nil, fmt.Errorf("load anchors: %w", err)
	}

	return state, nil
}

// saveAnchors persists the known anchors. An empty set is written too, so a
// reset survives the restart.
func saveAnchors(ctx context.Context, repository repo.Repository, state *aggregate.State) error {
	if repository == nil {
		return nil
	}

	anchors := state.Snapshot().Anchors

	if err := repository.Save(ctx, anchors); err != nil {
		return fmt.Errorf("save anchors: %w", err)
	}

	logger.InfoKV(ctx, "Anchors saved", "anchors", len(anchors))

	return nil
}
