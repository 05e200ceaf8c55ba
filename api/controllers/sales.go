package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/jewelpos-backend/api/responses"
	"github.com/angelmondragon/jewelpos-backend/api/validators"
	"github.com/angelmondragon/jewelpos-backend/internal/sales"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
)

type saleItemRequest struct {
	ProductID string          `json:"product_id" validate:"required,uuid"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"money"`
	Discount  decimal.Decimal `json:"discount" validate:"money"`
}

type recordSaleRequest struct {
	CustomerID    *string           `json:"customer_id,omitempty"`
	Items         []saleItemRequest `json:"items" validate:"required,min=1,dive"`
	OrderDiscount decimal.Decimal   `json:"order_discount" validate:"money"`
	TaxAmount     decimal.Decimal   `json:"tax_amount" validate:"money"`
	SoldAt        *time.Time        `json:"sold_at,omitempty"`
}

func (req recordSaleRequest) toInput() (sales.RecordSaleInput, error) {
	customerID, err := parseOptionalUUID(req.CustomerID, "customer_id")
	if err != nil {
		return sales.RecordSaleInput{}, err
	}
	items := make([]sales.SaleItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return sales.RecordSaleInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product_id")
		}
		items = append(items, sales.SaleItemInput{
			ProductID: productID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  item.Discount,
		})
	}
	input := sales.RecordSaleInput{
		CustomerID:    customerID,
		Items:         items,
		OrderDiscount: req.OrderDiscount,
		TaxAmount:     req.TaxAmount,
	}
	if req.SoldAt != nil {
		input.SoldAt = *req.SoldAt
	}
	return input, nil
}

func RecordSale(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload recordSaleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RecordSale(r.Context(), actorID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteResult(w, http.StatusCreated, result.Sale, result.Warnings)
	}
}

func GetSale(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		saleID, err := uuidParam(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sale, err := svc.GetSale(r.Context(), saleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sale)
	}
}

func ListSales(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		staffID, err := validators.ParseQueryUUID(r, "staff_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQueryDate(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryDate(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if to != nil {
			end := to.AddDate(0, 0, 1)
			to = &end
		}
		rows, err := svc.ListSales(r.Context(), sales.ListFilter{
			StaffID:       staffID,
			From:          from,
			To:            to,
			IncludeVoided: r.URL.Query().Get("include_voided") == "true",
			Limit:         limit,
			Offset:        offset,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

type voidSaleRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func VoidSale(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		saleID, err := uuidParam(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload voidSaleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.VoidSale(r.Context(), actorID, saleID, validators.SanitizeString(payload.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteResult(w, http.StatusOK, result.Sale, result.Warnings)
	}
}

type editLineItemRequest struct {
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"money"`
	Discount  decimal.Decimal `json:"discount" validate:"money"`
	Reason    string          `json:"reason" validate:"required,max=500"`
}

func EditSaleItem(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		saleID, err := uuidParam(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := uuidParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload editLineItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.EditLineItem(r.Context(), actorID, sales.EditLineItemInput{
			SaleID:    saleID,
			ItemID:    itemID,
			Quantity:  payload.Quantity,
			UnitPrice: payload.UnitPrice,
			Discount:  payload.Discount,
			Reason:    validators.SanitizeString(payload.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteResult(w, http.StatusOK, result.Sale, result.Warnings)
	}
}
