package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/giftbasket/giftcart/pkg/logger"
)

const defaultSessionIdle = 30 * time.Minute

type sessionEvicter interface {
	EvictIdle(cutoff time.Time) int
	Len() int
}

type SessionEvictionJobParams struct {
	Logger   *logger.Logger
	Sessions sessionEvicter
	MaxIdle  time.Duration
}

// NewSessionEvictionJob drops in-memory cart sessions that have been idle for
// MaxIdle. Their snapshots stay in storage.
func NewSessionEvictionJob(params SessionEvictionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager required")
	}
	maxIdle := params.MaxIdle
	if maxIdle <= 0 {
		maxIdle = defaultSessionIdle
	}
	return &sessionEvictionJob{
		logg:     params.Logger,
		sessions: params.Sessions,
		maxIdle:  maxIdle,
		now:      time.Now,
	}, nil
}

type sessionEvictionJob struct {
	logg     *logger.Logger
	sessions sessionEvicter
	maxIdle  time.Duration
	now      func() time.Time
}

func (j *sessionEvictionJob) Name() string { return "cart-session-eviction" }

func (j *sessionEvictionJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.maxIdle)
	evicted := j.sessions.EvictIdle(cutoff)
	if evicted == 0 {
		return nil
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"sessions_evicted": evicted,
		"sessions_live":    j.sessions.Len(),
	}), "idle cart sessions evicted")
	return nil
}
