package receipt

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/frostline-erp/frostline/internal/batch"
	"github.com/frostline-erp/frostline/internal/ledger"
	"github.com/frostline-erp/frostline/internal/platform/httpx"
	"github.com/frostline-erp/frostline/internal/shared"
)

// Handler wires receipt endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the receipt handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers receipt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/receipts", h.handleList)
	r.Post("/receipts", h.handleCreate)
	r.Get("/receipts/{code}", h.handleGet)
	r.Put("/receipts/{code}", h.handleUpdate)
	r.Post("/receipts/{code}/submit", h.handleSubmit)
	r.Post("/receipts/{code}/cancel", h.handleCancel)
}

type lineRequest struct {
	GoodsItem     string  `json:"goods_item" validate:"required"`
	ItemGroup     string  `json:"item_group"`
	BatchCode     string  `json:"batch_code" validate:"required"`
	Warehouse     string  `json:"warehouse" validate:"required"`
	SourceReceipt string  `json:"source_receipt"`
	Qty           float64 `json:"qty" validate:"gt=0"`
}

type createRequest struct {
	Customer        string        `json:"customer" validate:"required"`
	ReceiptType     string        `json:"receipt_type" validate:"required,oneof='New Receipt' 'Customer Transfer' 'Warehouse Transfer'"`
	ReceiptDate     string        `json:"receipt_date" validate:"required"`
	SourceCustomer  string        `json:"source_customer"`
	SourceWarehouse string        `json:"source_warehouse"`
	Remarks         string        `json:"remarks"`
	Lines           []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) decodeCreate(w http.ResponseWriter, r *http.Request) (CreateInput, bool) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return CreateInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return CreateInput{}, false
	}
	date, err := time.Parse("2006-01-02", req.ReceiptDate)
	if err != nil {
		httpx.FieldProblem(w, "invalid receipt date", map[string]string{"receipt_date": "must be YYYY-MM-DD"})
		return CreateInput{}, false
	}
	input := CreateInput{
		Customer:        req.Customer,
		Type:            Type(req.ReceiptType),
		ReceiptDate:     date,
		SourceCustomer:  req.SourceCustomer,
		SourceWarehouse: req.SourceWarehouse,
		Remarks:         req.Remarks,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput(line))
	}
	return input, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeCreate(w, r)
	if !ok {
		return
	}
	rec, err := h.service.CreateDraft(r.Context(), shared.CurrentActor(r.Context()), input)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeCreate(w, r)
	if !ok {
		return
	}
	code := chi.URLParam(r, "code")
	rec, err := h.service.UpdateDraft(r.Context(), shared.CurrentActor(r.Context()), code, input)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Customer: r.URL.Query().Get("customer"),
		Status:   ledger.DocStatus(r.URL.Query().Get("status")),
	}
	docs, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list receipts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"receipts": docs})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	rec, warnings, err := h.service.Submit(r.Context(), shared.CurrentActor(r.Context()), code)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"receipt": rec, "warnings": warnings})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	rec, warnings, err := h.service.Cancel(r.Context(), shared.CurrentActor(r.Context()), code)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"receipt": rec, "warnings": warnings})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	var shortfall *TransferShortfallError
	switch {
	case errors.As(err, &shortfall):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Source Balance", shortfall.Error())
	case errors.Is(err, batch.ErrOwnedByOtherCustomer):
		httpx.Problem(w, http.StatusConflict, "Batch Ownership", err.Error())
	case errors.Is(err, ErrNotDraft), errors.Is(err, ErrNotSubmitted), errors.Is(err, ErrHasLiveDispatches):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrFutureDate), errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrMissingBatch),
		errors.Is(err, ErrMissingWarehouse), errors.Is(err, ErrNoLines),
		errors.Is(err, ErrSourceCustomerRequired), errors.Is(err, ErrSourceReceiptRequired),
		errors.Is(err, ErrSourceWarehouseRequired), errors.Is(err, ErrSameCustomer):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("receipt operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
