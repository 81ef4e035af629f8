package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/pkg/logger"
)

const (
	defaultPublishedRetention = 30 * 24 * time.Hour
	defaultTerminalRetention  = 90 * 24 * time.Hour
	defaultRetentionChunk     = 500
	defaultMaxAttempts        = 10
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	// PublishedRetention is how long delivered rows are kept.
	PublishedRetention time.Duration
	// TerminalRetention is how long rows that exhausted MaxAttempts are kept
	// for inspection.
	TerminalRetention time.Duration
	MaxAttempts       int
	ChunkSize         int
	Now               func() time.Time
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
	DeleteTerminalBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, maxAttempts, limit int) (int64, error)
}

// NewOutboxRetentionJob builds the job that prunes delivered and dead outbox
// rows.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.DB == nil {
		return nil, errors.New("db runner required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	chunk := params.ChunkSize
	if chunk <= 0 {
		chunk = defaultRetentionChunk
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		published:   orDefault(params.PublishedRetention, defaultPublishedRetention),
		terminal:    orDefault(params.TerminalRetention, defaultTerminalRetention),
		maxAttempts: maxAttempts,
		chunk:       chunk,
		now:         now,
	}, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxRetentionRepo
	published   time.Duration
	terminal    time.Duration
	maxAttempts int
	chunk       int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	publishedCutoff := now.Add(-j.published)
	terminalCutoff := now.Add(-j.terminal)

	published, err := j.drain(ctx, func(tx *gorm.DB) (int64, error) {
		return j.repo.DeletePublishedBefore(ctx, tx, publishedCutoff, j.chunk)
	})
	if err != nil {
		return fmt.Errorf("prune published outbox rows: %w", err)
	}
	terminal, err := j.drain(ctx, func(tx *gorm.DB) (int64, error) {
		return j.repo.DeleteTerminalBefore(ctx, tx, terminalCutoff, j.maxAttempts, j.chunk)
	})
	if err != nil {
		return fmt.Errorf("prune terminal outbox rows: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"published_cutoff": publishedCutoff,
		"terminal_cutoff":  terminalCutoff,
		"published_pruned": published,
		"terminal_pruned":  terminal,
	}), "outbox retention cleanup complete")
	return nil
}

// drain runs del in short transactions until a chunk comes back partial.
func (j *outboxRetentionJob) drain(ctx context.Context, del func(tx *gorm.DB) (int64, error)) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var rows int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := del(tx)
			rows = n
			return err
		})
		if err != nil {
			return total, err
		}
		total += rows
		if rows < int64(j.chunk) {
			return total, nil
		}
	}
}
