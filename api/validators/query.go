package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
)

// queryValue returns the trimmed parameter and whether it was supplied.
func queryValue(r *http.Request, key string) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	return raw, raw != ""
}

func invalidQuery(key, message string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{"field": key})
}

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidQuery(key, "query parameter must be numeric")
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryUUID returns nil when the parameter is absent.
func ParseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, invalidQuery(key, "query parameter must be a uuid")
	}
	return &id, nil
}

// ParseQueryDate reads a YYYY-MM-DD date as UTC midnight. Absent returns nil.
func ParseQueryDate(r *http.Request, key string) (*time.Time, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return nil, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, invalidQuery(key, "query parameter must be YYYY-MM-DD")
	}
	return &day, nil
}

// ParseQueryDecimal reads a decimal, returning defaultVal when absent.
func ParseQueryDecimal(r *http.Request, key string, defaultVal decimal.Decimal) (decimal.Decimal, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return defaultVal, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, invalidQuery(key, "query parameter must be a decimal")
	}
	return value, nil
}
