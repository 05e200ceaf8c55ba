package expenses

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
)

type ExpenseDTO struct {
	ID            uuid.UUID             `json:"id"`
	Category      enums.ExpenseCategory `json:"category"`
	Amount        decimal.Decimal       `json:"amount"`
	Description   string                `json:"description"`
	PaymentMethod enums.PaymentMethod   `json:"payment_method"`
	ExpenseDate   time.Time             `json:"expense_date"`
	SourceKind    *enums.MirrorSource   `json:"source_kind,omitempty"`
	SourceID      *uuid.UUID            `json:"source_id,omitempty"`
	CreatedBy     uuid.UUID             `json:"created_by"`
	CreatedAt     time.Time             `json:"created_at"`
}

func NewExpenseDTOs(rows []models.Expense) []ExpenseDTO {
	out := make([]ExpenseDTO, 0, len(rows))
	for _, e := range rows {
		out = append(out, ExpenseDTO{
			ID:            e.ID,
			Category:      e.Category,
			Amount:        e.Amount,
			Description:   e.Description,
			PaymentMethod: e.PaymentMethod,
			ExpenseDate:   e.ExpenseDate,
			SourceKind:    e.SourceKind,
			SourceID:      e.SourceID,
			CreatedBy:     e.CreatedBy,
			CreatedAt:     e.CreatedAt,
		})
	}
	return out
}
