package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/jewelpos-backend/internal/sales"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
)

type stubSaleService struct {
	recordFn func(actorID uuid.UUID, input sales.RecordSaleInput) (*sales.Result, error)
	voidFn   func(actorID, saleID uuid.UUID, reason string) (*sales.Result, error)
	editFn   func(actorID uuid.UUID, input sales.EditLineItemInput) (*sales.Result, error)
	listFn   func(filter sales.ListFilter) ([]sales.SaleDTO, error)
}

func (s *stubSaleService) RecordSale(_ context.Context, actorID uuid.UUID, input sales.RecordSaleInput) (*sales.Result, error) {
	return s.recordFn(actorID, input)
}

func (s *stubSaleService) GetSale(context.Context, uuid.UUID) (*sales.SaleDTO, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
}

func (s *stubSaleService) ListSales(_ context.Context, filter sales.ListFilter) ([]sales.SaleDTO, error) {
	return s.listFn(filter)
}

func (s *stubSaleService) VoidSale(_ context.Context, actorID, saleID uuid.UUID, reason string) (*sales.Result, error) {
	return s.voidFn(actorID, saleID, reason)
}

func (s *stubSaleService) EditLineItem(_ context.Context, actorID uuid.UUID, input sales.EditLineItemInput) (*sales.Result, error) {
	return s.editFn(actorID, input)
}

func TestRecordSale(t *testing.T) {
	staff := uuid.New()
	productID := uuid.New()

	t.Run("validation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := newRequest(http.MethodPost, "/api/v1/sales", `{"items":[]}`, &staff, nil)
		RecordSale(&stubSaleService{}, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := newRequest(http.MethodPost, "/api/v1/sales", `{"items":[{"product_id":"`+productID.String()+`","quantity":1,"unit_price":"10"}],"total":"10"}`, &staff, nil)
		RecordSale(&stubSaleService{}, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("client-supplied totals must be rejected, got %d", rec.Code)
		}
	})

	t.Run("insufficient stock", func(t *testing.T) {
		stub := &stubSaleService{
			recordFn: func(uuid.UUID, sales.RecordSaleInput) (*sales.Result, error) {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock")
			},
		}
		rec := httptest.NewRecorder()
		req := newRequest(http.MethodPost, "/api/v1/sales", `{"items":[{"product_id":"`+productID.String()+`","quantity":3,"unit_price":"10"}]}`, &staff, nil)
		RecordSale(stub, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("created", func(t *testing.T) {
		saleID := uuid.New()
		stub := &stubSaleService{
			recordFn: func(actorID uuid.UUID, input sales.RecordSaleInput) (*sales.Result, error) {
				if actorID != staff {
					t.Fatalf("unexpected actor %s", actorID)
				}
				if len(input.Items) != 1 || input.Items[0].ProductID != productID || input.Items[0].Quantity != 2 {
					t.Fatalf("unexpected items %+v", input.Items)
				}
				if !input.TaxAmount.Equal(decimal.RequireFromString("4.50")) {
					t.Fatalf("unexpected tax %s", input.TaxAmount)
				}
				return &sales.Result{Sale: sales.SaleDTO{ID: saleID}}, nil
			},
		}
		body := `{"items":[{"product_id":"` + productID.String() + `","quantity":2,"unit_price":"25.00","discount":"1.00"}],"tax_amount":"4.50"}`
		rec := httptest.NewRecorder()
		RecordSale(stub, testLogger()).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/sales", body, &staff, nil))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestVoidSale(t *testing.T) {
	staff := uuid.New()
	saleID := uuid.New()

	t.Run("reason required", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := newRequest(http.MethodPost, "/api/v1/sales/x/void", `{}`, &staff, map[string]string{"saleId": saleID.String()})
		VoidSale(&stubSaleService{}, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("already voided", func(t *testing.T) {
		stub := &stubSaleService{
			voidFn: func(uuid.UUID, uuid.UUID, string) (*sales.Result, error) {
				return nil, pkgerrors.New(pkgerrors.CodeAlreadyVoided, "sale already voided")
			},
		}
		rec := httptest.NewRecorder()
		req := newRequest(http.MethodPost, "/api/v1/sales/x/void", `{"reason":"dup"}`, &staff, map[string]string{"saleId": saleID.String()})
		VoidSale(stub, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		if env := decodeEnvelope(t, rec); env.Error.Code != string(pkgerrors.CodeAlreadyVoided) {
			t.Fatalf("unexpected code %s", env.Error.Code)
		}
	})

	t.Run("settled payout warning", func(t *testing.T) {
		stub := &stubSaleService{
			voidFn: func(actorID, id uuid.UUID, reason string) (*sales.Result, error) {
				if reason != "card declined" {
					t.Fatalf("unexpected reason %q", reason)
				}
				return &sales.Result{
					Sale:     sales.SaleDTO{ID: id, Voided: true},
					Warnings: []pkgerrors.Warning{pkgerrors.NewWarning(pkgerrors.CodeSettledPayoutRemains, "reverse manually")},
				}, nil
			},
		}
		rec := httptest.NewRecorder()
		req := newRequest(http.MethodPost, "/api/v1/sales/x/void", `{"reason":"  card declined "}`, &staff, map[string]string{"saleId": saleID.String()})
		VoidSale(stub, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if env := decodeEnvelope(t, rec); len(env.Warnings) != 1 || env.Warnings[0].Code != string(pkgerrors.CodeSettledPayoutRemains) {
			t.Fatalf("expected settled payout warning, got %+v", env.Warnings)
		}
	})
}

func TestEditSaleItemParsesRouteParams(t *testing.T) {
	staff := uuid.New()
	saleID, itemID := uuid.New(), uuid.New()
	stub := &stubSaleService{
		editFn: func(_ uuid.UUID, input sales.EditLineItemInput) (*sales.Result, error) {
			if input.SaleID != saleID || input.ItemID != itemID || input.Quantity != 5 {
				t.Fatalf("unexpected input %+v", input)
			}
			return &sales.Result{Sale: sales.SaleDTO{ID: saleID}}, nil
		},
	}
	rec := httptest.NewRecorder()
	req := newRequest(http.MethodPatch, "/api/v1/sales/x/items/y", `{"quantity":5,"unit_price":"10","reason":"more"}`, &staff,
		map[string]string{"saleId": saleID.String(), "itemId": itemID.String()})
	EditSaleItem(stub, testLogger()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListSalesMakesEndDateInclusive(t *testing.T) {
	stub := &stubSaleService{
		listFn: func(filter sales.ListFilter) ([]sales.SaleDTO, error) {
			if filter.To == nil || filter.To.Format(isoDate) != "2026-04-01" {
				t.Fatalf("expected exclusive upper bound of the next day, got %v", filter.To)
			}
			if filter.Limit != 10 {
				t.Fatalf("unexpected limit %d", filter.Limit)
			}
			return nil, nil
		},
	}
	rec := httptest.NewRecorder()
	ListSales(stub, testLogger()).ServeHTTP(rec, newRequest(http.MethodGet, "/api/v1/sales?to=2026-03-31&limit=10", "", nil, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
