package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/jewelpos-backend/internal/expenses"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/locks"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
	"github.com/angelmondragon/jewelpos-backend/pkg/metrics"
)

const (
	mirrorRetryJobName         = "mirror-retry"
	defaultMirrorRetryBatch    = 50
	defaultMirrorRetryAttempts = 10
)

type MirrorRetryJobParams struct {
	Logger      *logger.Logger
	Mirror      mirrorQueue
	Sources     mirrorSourceStore
	Metrics     *metrics.JobMetrics
	BatchSize   int
	MaxAttempts int
}

// mirrorQueue is the failure queue side of expenses.Service.
type mirrorQueue interface {
	PendingFailures(ctx context.Context, limit, maxAttempts int) ([]models.MirrorFailure, error)
	Project(ctx context.Context, input expenses.ProjectInput) (*models.Expense, error)
	MarkResolved(ctx context.Context, failureID uuid.UUID) error
	MarkAttemptFailed(ctx context.Context, failureID uuid.UUID, cause error) error
}

// mirrorSourceStore is satisfied by *MirrorSources.
type mirrorSourceStore interface {
	Hold(ctx context.Context, failure models.MirrorFailure) (bool, locks.Release, error)
	Link(ctx context.Context, failure models.MirrorFailure, expenseID uuid.UUID) error
}

func NewMirrorRetryJob(params MirrorRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Mirror == nil {
		return nil, fmt.Errorf("expense mirror required")
	}
	if params.Sources == nil {
		return nil, fmt.Errorf("mirror sources required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultMirrorRetryBatch
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMirrorRetryAttempts
	}
	return &mirrorRetryJob{
		logg:        params.Logger,
		mirror:      params.Mirror,
		sources:     params.Sources,
		metrics:     params.Metrics,
		batchSize:   batch,
		maxAttempts: attempts,
	}, nil
}

// mirrorRetryJob replays expense projections that failed after their payout
// committed. Rows past maxAttempts stay in the table for manual follow-up.
// A row whose payout was deleted in the meantime is resolved without
// projecting.
type mirrorRetryJob struct {
	logg        *logger.Logger
	mirror      mirrorQueue
	sources     mirrorSourceStore
	metrics     *metrics.JobMetrics
	batchSize   int
	maxAttempts int
}

func (j *mirrorRetryJob) Name() string { return mirrorRetryJobName }

func (j *mirrorRetryJob) Run(ctx context.Context) error {
	failures, err := j.mirror.PendingFailures(ctx, j.batchSize, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("load pending mirror failures: %w", err)
	}

	var errs error
	resolved, retried, dropped := 0, 0, 0
	for _, failure := range failures {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		retried++
		rowCtx := j.logg.WithFields(ctx, map[string]any{
			"mirror_failure_id": failure.ID.String(),
			"source_kind":       string(failure.SourceKind),
			"source_id":         failure.SourceID.String(),
			"attempt":           failure.AttemptCount + 1,
		})
		outcome, err := j.retry(rowCtx, failure)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		switch outcome {
		case retryResolved:
			resolved++
		case retryDropped:
			dropped++
		}
	}

	j.metrics.AddProcessed(mirrorRetryJobName, retried)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"pending":  len(failures),
		"retried":  retried,
		"resolved": resolved,
		"dropped":  dropped,
	}), "mirror retry pass complete")
	return errs
}

type retryOutcome int

const (
	retryPending retryOutcome = iota
	retryResolved
	retryDropped
)

func (j *mirrorRetryJob) retry(ctx context.Context, failure models.MirrorFailure) (retryOutcome, error) {
	live, release, err := j.sources.Hold(ctx, failure)
	if err != nil {
		return retryPending, fmt.Errorf("hold source for %s: %w", failure.ID, err)
	}
	defer release(ctx)

	if !live {
		j.logg.Warn(ctx, "mirror source no longer paid out, dropping projection")
		if err := j.mirror.MarkResolved(ctx, failure.ID); err != nil {
			return retryPending, fmt.Errorf("resolve %s: %w", failure.ID, err)
		}
		return retryDropped, nil
	}

	// Project returns the existing row for a source, so a link failure is
	// retried like a projection failure.
	expense, projectErr := j.mirror.Project(ctx, expenses.ProjectInputFromFailure(failure))
	if projectErr == nil {
		projectErr = j.sources.Link(ctx, failure, expense.ID)
	}
	if projectErr != nil {
		j.logg.Warn(ctx, "mirror projection retry failed: "+projectErr.Error())
		if markErr := j.mirror.MarkAttemptFailed(ctx, failure.ID, projectErr); markErr != nil {
			return retryPending, fmt.Errorf("record attempt for %s: %w", failure.ID, markErr)
		}
		return retryPending, nil
	}
	if err := j.mirror.MarkResolved(ctx, failure.ID); err != nil {
		return retryPending, fmt.Errorf("resolve %s: %w", failure.ID, err)
	}
	return retryResolved, nil
}
