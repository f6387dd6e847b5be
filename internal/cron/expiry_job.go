package cron

import (
	"context"
	"fmt"

	"github.com/facetcraft/nyp-backend/pkg/logger"
)

const defaultSweepLimit = 200

type commitmentSweeper interface {
	ExpireDue(ctx context.Context, limit int) (int, error)
}

// CommitmentExpiryJobParams configure the commitment sweep.
type CommitmentExpiryJobParams struct {
	Logger      *logger.Logger
	Commitments commitmentSweeper
	Limit       int
}

// NewCommitmentExpiryJob builds the job that releases lapsed commitments.
// Expiry is also enforced on read, so a missed run only delays the release
// events.
func NewCommitmentExpiryJob(params CommitmentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Commitments == nil {
		return nil, fmt.Errorf("commitment service required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	return &commitmentExpiryJob{
		logg:    params.Logger,
		sweeper: params.Commitments,
		limit:   limit,
	}, nil
}

type commitmentExpiryJob struct {
	logg    *logger.Logger
	sweeper commitmentSweeper
	limit   int
}

func (j *commitmentExpiryJob) Name() string { return "commitment_expiry" }

func (j *commitmentExpiryJob) Run(ctx context.Context) error {
	released, err := j.sweeper.ExpireDue(ctx, j.limit)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"released": released,
		"limit":    j.limit,
	})
	if err != nil {
		return fmt.Errorf("commitment expiry: %w", err)
	}
	if released > 0 {
		j.logg.Info(logCtx, "commitment expiry sweep complete")
	}
	return nil
}
