package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod describes how money left the till for a payout.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodCheque       PaymentMethod = "cheque"

	// DefaultPaymentMethod applies when a payout names no method.
	DefaultPaymentMethod = PaymentMethodCash
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodBankTransfer,
	PaymentMethodCard,
	PaymentMethodCheque,
}

// paymentMethodAliases covers spellings the till UI and older exports use.
var paymentMethodAliases = map[string]PaymentMethod{
	"check":       PaymentMethodCheque,
	"transfer":    PaymentMethodBankTransfer,
	"bank":        PaymentMethodBankTransfer,
	"wire":        PaymentMethodBankTransfer,
	"credit_card": PaymentMethodCard,
	"debit_card":  PaymentMethodCard,
}

func (p PaymentMethod) String() string {
	return string(p)
}

func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// OrDefault returns DefaultPaymentMethod for the empty value.
func (p PaymentMethod) OrDefault() PaymentMethod {
	if p == "" {
		return DefaultPaymentMethod
	}
	return p
}

// ParsePaymentMethod is case-insensitive, treats spaces and hyphens as
// underscores and resolves known aliases ("check", "wire", ...).
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	norm := strings.ToLower(strings.TrimSpace(value))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	if candidate := PaymentMethod(norm); candidate.IsValid() {
		return candidate, nil
	}
	if alias, ok := paymentMethodAliases[norm]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
