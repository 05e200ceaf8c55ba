package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestActor(t *testing.T) {
	staff := uuid.New()
	var seen uuid.UUID
	handler := Actor(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = StaffIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "not-a-uuid", http.StatusUnauthorized},
		{"nil uuid", uuid.Nil.String(), http.StatusUnauthorized},
		{"valid", staff.String(), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sales", nil)
			if tc.header != "" {
				req.Header.Set(StaffHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d got %d", tc.want, rec.Code)
			}
		})
	}
	if seen != staff {
		t.Fatalf("expected staff %s in context, got %s", staff, seen)
	}
	if _, ok := StaffIDFromContext(context.Background()); ok {
		t.Fatal("expected no staff outside Actor")
	}
}
