package cron

import (
	"context"
	"fmt"

	"github.com/giftbasket/giftcart/pkg/logger"
)

type snapshotPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type SnapshotPurgeJobParams struct {
	Logger     *logger.Logger
	Repository snapshotPurger
}

// NewSnapshotPurgeJob deletes SQL cart snapshots past their expiry. Redis
// snapshots expire on their own and need no job.
func NewSnapshotPurgeJob(params SnapshotPurgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("snapshot repository required")
	}
	return &snapshotPurgeJob{logg: params.Logger, repo: params.Repository}, nil
}

type snapshotPurgeJob struct {
	logg *logger.Logger
	repo snapshotPurger
}

func (j *snapshotPurgeJob) Name() string { return "cart-snapshot-purge" }

func (j *snapshotPurgeJob) Run(ctx context.Context) error {
	deleted, err := j.repo.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("purge expired cart snapshots: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "rows_deleted", deleted), "expired cart snapshots purged")
	return nil
}
