package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/internal/billing"
	"github.com/salymed/salymed-backend/pkg/enums"
	"github.com/salymed/salymed-backend/pkg/logger"
	"github.com/salymed/salymed-backend/pkg/outbox"
)

const (
	defaultExpiryBatch = 200
	maxExpiryBatches   = 50
	expirySource       = "expiry_sweep"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SubscriptionExpiryJobParams configures the expiry sweep.
type SubscriptionExpiryJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Repo      billing.Repository
	Outbox    outbox.Emitter
	BatchSize int
	Now       func() time.Time
}

// NewSubscriptionExpiryJob builds the job that expires lapsed Active
// subscriptions and clears elapsed trial flags in bulk, so rows nobody reads
// still reach their final state.
func NewSubscriptionExpiryJob(params SubscriptionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.DB == nil {
		return nil, errors.New("db runner required")
	}
	if params.Repo == nil {
		return nil, errors.New("billing repository required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &subscriptionExpiryJob{
		logg:   params.Logger,
		db:     params.DB,
		repo:   params.Repo,
		outbox: params.Outbox,
		batch:  batch,
		now:    now,
	}, nil
}

type subscriptionExpiryJob struct {
	logg   *logger.Logger
	db     txRunner
	repo   billing.Repository
	outbox outbox.Emitter
	batch  int
	now    func() time.Time
}

func (j *subscriptionExpiryJob) Name() string { return "subscription-expiry" }

func (j *subscriptionExpiryJob) Run(ctx context.Context) error {
	now := j.now()
	var errs error

	expired := 0
	for i := 0; i < maxExpiryBatches; i++ {
		n, err := j.expireBatch(ctx, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire subscriptions: %w", err))
			break
		}
		expired += n
		if n < j.batch {
			break
		}
	}

	var trials int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		trials, err = j.repo.WithTx(tx).ClearElapsedTrials(ctx, now)
		return err
	})
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("clear elapsed trials: %w", err))
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"expired":        expired,
		"trials_cleared": trials,
	}), "subscription expiry sweep complete")
	return errs
}

func (j *subscriptionExpiryJob) expireBatch(ctx context.Context, now time.Time) (int, error) {
	count := 0
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		subs, err := j.repo.WithTx(tx).ExpireSubscriptions(ctx, now, j.batch)
		if err != nil {
			return err
		}
		for i := range subs {
			sub := &subs[i]
			actor := &outbox.ActorRef{ClinicID: &sub.ClinicID, Source: expirySource}
			if err := billing.EmitSubscriptionEvent(ctx, tx, j.outbox, enums.EventSubscriptionExpired, sub, actor); err != nil {
				return err
			}
		}
		count = len(subs)
		return nil
	})
	return count, err
}
