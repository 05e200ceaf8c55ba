package expenses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/jewelpos-backend/internal/repo"
	"github.com/angelmondragon/jewelpos-backend/pkg/db"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
	"github.com/angelmondragon/jewelpos-backend/pkg/metrics"
)

// Retraction outcomes, also used as metric labels.
const (
	OutcomeRemoved   = "removed"
	OutcomeAmbiguous = "ambiguous"
	OutcomeMissing   = "missing"
	OutcomeFailed    = "failed"
)

// Match strategies reported by Retract.
const (
	MatchSource = "source"
	MatchLegacy = "legacy"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service mirrors settlement and commission payouts into the expense book.
type Service interface {
	// Project writes the mirrored expense for a payout. Projecting the same
	// source twice returns the existing row.
	Project(ctx context.Context, input ProjectInput) (*models.Expense, error)
	// Retract removes the mirrored expense of a deleted payout. Finding
	// nothing is not an error.
	Retract(ctx context.Context, input RetractInput) (*RetractResult, error)
	ListBySource(ctx context.Context, kind enums.MirrorSource, sourceID uuid.UUID) ([]models.Expense, error)

	RecordFailure(ctx context.Context, input ProjectInput, cause error) error
	PendingFailures(ctx context.Context, limit, maxAttempts int) ([]models.MirrorFailure, error)
	MarkResolved(ctx context.Context, failureID uuid.UUID) error
	MarkAttemptFailed(ctx context.Context, failureID uuid.UUID, cause error) error
}

// ProjectInput describes the payout being mirrored.
type ProjectInput struct {
	SourceKind    enums.MirrorSource
	SourceID      uuid.UUID
	Category      enums.ExpenseCategory
	Amount        decimal.Decimal
	Description   string
	PaymentMethod enums.PaymentMethod
	ExpenseDate   time.Time
	ActorID       uuid.UUID
}

// RetractInput identifies the mirror to remove. The content fields are only
// consulted for rows written before expenses carried their source id.
type RetractInput struct {
	SourceKind          enums.MirrorSource
	SourceID            uuid.UUID
	Category            enums.ExpenseCategory
	Amount              decimal.Decimal
	DescriptionFragment string
}

// RetractResult reports what Retract matched.
type RetractResult struct {
	Removed    bool       `json:"removed"`
	ExpenseID  *uuid.UUID `json:"expense_id,omitempty"`
	MatchedBy  string     `json:"matched_by,omitempty"`
	Ambiguous  bool       `json:"ambiguous"`
	Candidates int        `json:"candidates"`
}

type service struct {
	repo    Repository
	tx      txRunner
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService constructs the expense mirror. ledgerMetrics is optional.
func NewService(repo Repository, tx txRunner, ledgerMetrics *metrics.LedgerMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("expense repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, metrics: ledgerMetrics, logg: logg, now: time.Now}, nil
}

func (s *service) Project(ctx context.Context, input ProjectInput) (*models.Expense, error) {
	if err := validateProject(input); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindBySource(ctx, input.SourceKind, input.SourceID)
	if err == nil {
		return existing, nil
	}
	if !repo.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup mirrored expense")
	}

	kind := input.SourceKind
	sourceID := input.SourceID
	expense := &models.Expense{
		Category:      input.Category,
		Amount:        input.Amount.Round(2),
		Description:   strings.TrimSpace(input.Description),
		PaymentMethod: input.PaymentMethod,
		ExpenseDate:   input.ExpenseDate.UTC(),
		SourceKind:    &kind,
		SourceID:      &sourceID,
		CreatedBy:     input.ActorID,
	}
	if err := s.repo.Create(ctx, expense); err != nil {
		if db.IsUniqueViolation(err, "expenses_one_mirror_per_source") {
			if existing, findErr := s.repo.FindBySource(ctx, input.SourceKind, input.SourceID); findErr == nil {
				return existing, nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeMirrorProjectionFailed, err, "insert mirrored expense")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"expense_id":         expense.ID.String(),
		"mirror_source_kind": input.SourceKind,
		"mirror_source_id":   input.SourceID.String(),
		"amount":             expense.Amount.StringFixed(2),
	})
	s.logg.Info(logCtx, "payout mirrored to expenses")
	return expense, nil
}

func (s *service) Retract(ctx context.Context, input RetractInput) (*RetractResult, error) {
	if !input.SourceKind.IsValid() || input.SourceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mirror source required")
	}

	result := &RetractResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		now := s.now().UTC()

		if _, err := txRepo.ResolveFailuresForSource(ctx, input.SourceKind, input.SourceID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve pending mirror failures")
		}

		keyed, err := txRepo.ListBySource(ctx, input.SourceKind, input.SourceID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup mirrored expense")
		}
		if len(keyed) > 0 {
			for _, row := range keyed {
				if _, err := txRepo.Delete(ctx, row.ID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete mirrored expense")
				}
			}
			id := keyed[0].ID
			result.Removed = true
			result.ExpenseID = &id
			result.MatchedBy = MatchSource
			result.Candidates = len(keyed)
			return nil
		}

		fragment := strings.TrimSpace(input.DescriptionFragment)
		if fragment == "" || !input.Category.IsValid() || !input.Amount.IsPositive() {
			return nil
		}
		candidates, err := txRepo.ListLegacyCandidates(ctx, input.Category, input.Amount.Round(2), fragment)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup legacy mirrored expense")
		}
		if len(candidates) == 0 {
			return nil
		}
		if _, err := txRepo.Delete(ctx, candidates[0].ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete legacy mirrored expense")
		}
		id := candidates[0].ID
		result.Removed = true
		result.ExpenseID = &id
		result.MatchedBy = MatchLegacy
		result.Candidates = len(candidates)
		result.Ambiguous = len(candidates) > 1
		return nil
	})
	if err != nil {
		s.metrics.IncRetraction(OutcomeFailed)
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"mirror_source_kind": input.SourceKind,
		"mirror_source_id":   input.SourceID.String(),
		"matched_by":         result.MatchedBy,
		"candidates":         result.Candidates,
	})
	switch {
	case result.Ambiguous:
		s.metrics.IncRetraction(OutcomeAmbiguous)
		s.logg.Warn(logCtx, "legacy expense retraction matched several rows; removed the oldest")
	case result.Removed:
		s.metrics.IncRetraction(OutcomeRemoved)
		s.logg.Info(logCtx, "mirrored expense retracted")
	default:
		s.metrics.IncRetraction(OutcomeMissing)
		s.logg.Info(logCtx, "no mirrored expense to retract")
	}
	return result, nil
}

func (s *service) ListBySource(ctx context.Context, kind enums.MirrorSource, sourceID uuid.UUID) ([]models.Expense, error) {
	if !kind.IsValid() {
		return nil, pkgerrors.Errorf(pkgerrors.CodeValidation, "invalid mirror source %q", kind)
	}
	if sourceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source id required")
	}
	rows, err := s.repo.ListBySource(ctx, kind, sourceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list mirrored expenses")
	}
	return rows, nil
}

func (s *service) RecordFailure(ctx context.Context, input ProjectInput, cause error) error {
	var lastError *string
	if cause != nil {
		msg := cause.Error()
		lastError = &msg
	}
	failure := &models.MirrorFailure{
		SourceKind:    input.SourceKind,
		SourceID:      input.SourceID,
		Category:      input.Category,
		Amount:        input.Amount.Round(2),
		Description:   input.Description,
		PaymentMethod: input.PaymentMethod,
		ExpenseDate:   input.ExpenseDate.UTC(),
		ActorID:       input.ActorID,
		AttemptCount:  1,
		LastError:     lastError,
	}
	if err := s.repo.CreateFailure(ctx, failure); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record mirror failure")
	}
	s.metrics.IncMirrorFailure(string(input.SourceKind))

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"mirror_source_kind": input.SourceKind,
		"mirror_source_id":   input.SourceID.String(),
		"amount":             failure.Amount.StringFixed(2),
	})
	s.logg.Warn(logCtx, "expense mirror projection failed; queued for retry")
	return nil
}

func (s *service) PendingFailures(ctx context.Context, limit, maxAttempts int) ([]models.MirrorFailure, error) {
	rows, err := s.repo.ListPendingFailures(ctx, limit, maxAttempts)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list mirror failures")
	}
	return rows, nil
}

func (s *service) MarkResolved(ctx context.Context, failureID uuid.UUID) error {
	if err := s.repo.ResolveFailure(ctx, failureID, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve mirror failure")
	}
	return nil
}

func (s *service) MarkAttemptFailed(ctx context.Context, failureID uuid.UUID, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.repo.RecordFailedAttempt(ctx, failureID, msg); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record mirror retry failure")
	}
	return nil
}

// ProjectInputFromFailure rebuilds the projection a failure row stands for.
func ProjectInputFromFailure(f models.MirrorFailure) ProjectInput {
	return ProjectInput{
		SourceKind:    f.SourceKind,
		SourceID:      f.SourceID,
		Category:      f.Category,
		Amount:        f.Amount,
		Description:   f.Description,
		PaymentMethod: f.PaymentMethod,
		ExpenseDate:   f.ExpenseDate,
		ActorID:       f.ActorID,
	}
}

func validateProject(input ProjectInput) error {
	if !input.SourceKind.IsValid() {
		return pkgerrors.Errorf(pkgerrors.CodeValidation, "invalid mirror source %q", input.SourceKind)
	}
	if input.SourceID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "source id required")
	}
	if !input.Category.IsValid() {
		return pkgerrors.Errorf(pkgerrors.CodeValidation, "invalid expense category %q", input.Category)
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "expense amount must be positive")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.Errorf(pkgerrors.CodeValidation, "invalid payment method %q", input.PaymentMethod)
	}
	if strings.TrimSpace(input.Description) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "expense description required")
	}
	if input.ExpenseDate.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "expense date required")
	}
	if input.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	return nil
}
