package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/jewelpos-backend/api/responses"
	"github.com/angelmondragon/jewelpos-backend/api/validators"
	"github.com/angelmondragon/jewelpos-backend/internal/movements"
	product "github.com/angelmondragon/jewelpos-backend/internal/products"
	"github.com/angelmondragon/jewelpos-backend/internal/valuation"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
	"github.com/angelmondragon/jewelpos-backend/pkg/pagination"
)

type createProductRequest struct {
	SKU                string           `json:"sku" validate:"required,max=64"`
	Name               string           `json:"name" validate:"required,max=200"`
	Provenance         string           `json:"provenance" validate:"required"`
	SupplierID         *string          `json:"supplier_id,omitempty"`
	StaticCost         decimal.Decimal  `json:"static_cost" validate:"money"`
	RetailPrice        decimal.Decimal  `json:"retail_price" validate:"money"`
	AgreedPrice        *decimal.Decimal `json:"agreed_price,omitempty" validate:"omitempty,money"`
	ConsignmentEndDate *string          `json:"consignment_end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	OpeningQuantity    int              `json:"opening_quantity" validate:"min=0"`
}

func (req createProductRequest) toInput() (product.CreateProductInput, error) {
	provenance, err := enums.ParseProvenance(strings.TrimSpace(req.Provenance))
	if err != nil {
		return product.CreateProductInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provenance")
	}
	supplierID, err := parseOptionalUUID(req.SupplierID, "supplier_id")
	if err != nil {
		return product.CreateProductInput{}, err
	}
	endDate, err := parseOptionalDate(req.ConsignmentEndDate, "consignment_end_date")
	if err != nil {
		return product.CreateProductInput{}, err
	}
	return product.CreateProductInput{
		SKU:                validators.SanitizeString(req.SKU, 64),
		Name:               validators.SanitizeString(req.Name, 200),
		Provenance:         provenance,
		SupplierID:         supplierID,
		StaticCost:         req.StaticCost,
		RetailPrice:        req.RetailPrice,
		AgreedPrice:        req.AgreedPrice,
		ConsignmentEndDate: endDate,
		OpeningQuantity:    req.OpeningQuantity,
	}, nil
}

func CreateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := svc.CreateProduct(r.Context(), actorID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

func GetProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		found, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, found)
	}
}

func ListProducts(svc product.Service, logg *logger.Logger) http.HandlerFunc {
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
		supplierID, err := validators.ParseQueryUUID(r, "supplier_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := product.ListFilter{SupplierID: supplierID, Limit: limit, Offset: offset}
		if raw := strings.TrimSpace(r.URL.Query().Get("provenance")); raw != "" {
			provenance, err := enums.ParseProvenance(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provenance"))
				return
			}
			filter.Provenance = &provenance
		}
		rows, err := svc.ListProducts(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

type reclassifyRequest struct {
	To                 string           `json:"to" validate:"required"`
	Reason             string           `json:"reason" validate:"required,max=500"`
	SupplierID         *string          `json:"supplier_id,omitempty"`
	AgreedPrice        *decimal.Decimal `json:"agreed_price,omitempty" validate:"omitempty,money"`
	ConsignmentEndDate *string          `json:"consignment_end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

func ReclassifyProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload reclassifyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := enums.ParseProvenance(strings.TrimSpace(payload.To))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provenance"))
			return
		}
		supplierID, err := parseOptionalUUID(payload.SupplierID, "supplier_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		endDate, err := parseOptionalDate(payload.ConsignmentEndDate, "consignment_end_date")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svc.Reclassify(r.Context(), actorID, product.ReclassifyInput{
			ProductID:          productID,
			To:                 to,
			Reason:             validators.SanitizeString(payload.Reason, 500),
			SupplierID:         supplierID,
			AgreedPrice:        payload.AgreedPrice,
			ConsignmentEndDate: endDate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

func ProvenanceHistory(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ProvenanceHistory(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// ProductPosition serves the folded stock position. ?fresh=true bypasses the cache.
func ProductPosition(svc valuation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var pos *valuation.Position
		if strings.EqualFold(r.URL.Query().Get("fresh"), "true") {
			pos, err = svc.Recompute(r.Context(), productID)
		} else {
			pos, err = svc.Position(r.Context(), productID)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pos)
	}
}

func ListMovements(svc movements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.PageForProduct(r.Context(), movements.ListParams{
			ProductID: productID,
			Params:    pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

type appendMovementRequest struct {
	Kind       string          `json:"kind" validate:"required"`
	Direction  string          `json:"direction" validate:"required"`
	Quantity   int             `json:"quantity" validate:"required,min=1"`
	UnitCost   decimal.Decimal `json:"unit_cost" validate:"money"`
	SupplierID *string         `json:"supplier_id,omitempty"`
	Note       string          `json:"note" validate:"max=500"`
}

// AppendMovement books purchases and manual adjustments. Sale movements are
// only written by the sale workflow.
func AppendMovement(svc movements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload appendMovementRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := enums.ParseMovementKind(strings.TrimSpace(payload.Kind))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind"))
			return
		}
		if kind == enums.MovementKindSale {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "sale movements are recorded through sales"))
			return
		}
		direction, err := enums.ParseMovementDirection(strings.TrimSpace(payload.Direction))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid direction"))
			return
		}
		supplierID, err := parseOptionalUUID(payload.SupplierID, "supplier_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.Append(r.Context(), movements.AppendInput{
			ProductID:  productID,
			Kind:       kind,
			Direction:  direction,
			Quantity:   payload.Quantity,
			UnitCost:   payload.UnitCost,
			SupplierID: supplierID,
			Note:       validators.SanitizeString(payload.Note, 500),
			ActorID:    actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, movements.NewMovementDTO(row))
	}
}
