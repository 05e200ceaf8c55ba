package enums

import "fmt"

// ExpenseCategory groups rows in the expense book.
type ExpenseCategory string

const (
	ExpenseCategoryConsignmentPayout ExpenseCategory = "consignment_payout"
	ExpenseCategoryTradeInPayout     ExpenseCategory = "trade_in_payout"
	ExpenseCategoryCommission        ExpenseCategory = "commission"
	ExpenseCategoryGeneral           ExpenseCategory = "general"
)

var validExpenseCategorys = []ExpenseCategory{
	ExpenseCategoryConsignmentPayout,
	ExpenseCategoryTradeInPayout,
	ExpenseCategoryCommission,
	ExpenseCategoryGeneral,
}

// String implements fmt.Stringer.
func (e ExpenseCategory) String() string {
	return string(e)
}

// IsValid reports whether the value is a known ExpenseCategory.
func (e ExpenseCategory) IsValid() bool {
	for _, candidate := range validExpenseCategorys {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseExpenseCategory converts raw input into a ExpenseCategory.
func ParseExpenseCategory(value string) (ExpenseCategory, error) {
	for _, candidate := range validExpenseCategorys {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid expense category %q", value)
}
