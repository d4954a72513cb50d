package dispatch

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/frostline-erp/frostline/internal/ledger"
	"github.com/frostline-erp/frostline/internal/platform/httpx"
	"github.com/frostline-erp/frostline/internal/rates"
	"github.com/frostline-erp/frostline/internal/shared"
)

// Handler wires dispatch endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the dispatch handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers dispatch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dispatches", h.handleList)
	r.Post("/dispatches", h.handleCreate)
	r.Post("/dispatches/validate", h.handleValidate)
	r.Get("/dispatches/{code}", h.handleGet)
	r.Put("/dispatches/{code}", h.handleUpdate)
	r.Post("/dispatches/{code}/submit", h.handleSubmit)
	r.Post("/dispatches/{code}/cancel", h.handleCancel)
}

type lineRequest struct {
	GoodsItem   string  `json:"goods_item" validate:"required"`
	ItemGroup   string  `json:"item_group"`
	BatchCode   string  `json:"batch_code" validate:"required"`
	ReceiptCode string  `json:"receipt_code" validate:"required"`
	Warehouse   string  `json:"warehouse" validate:"required"`
	Qty         float64 `json:"qty" validate:"gt=0"`
	Rate        string  `json:"rate"`
	LoadingRate string  `json:"loading_rate"`
}

type createRequest struct {
	Customer      string        `json:"customer" validate:"required"`
	BillingType   string        `json:"billing_type" validate:"required,oneof=DAILY MONTHLY SEASONAL"`
	DispatchDate  string        `json:"dispatch_date" validate:"required"`
	GSTApplicable bool          `json:"gst_applicable"`
	GSTRate       float64       `json:"gst_rate" validate:"gte=0,lte=100"`
	Remarks       string        `json:"remarks"`
	Lines         []lineRequest `json:"lines" validate:"required,min=1,dive"`
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
	date, err := time.Parse("2006-01-02", req.DispatchDate)
	if err != nil {
		httpx.FieldProblem(w, "invalid dispatch date", map[string]string{"dispatch_date": "must be YYYY-MM-DD"})
		return CreateInput{}, false
	}
	input := CreateInput{
		Customer:      req.Customer,
		BillingType:   rates.BillingType(req.BillingType),
		DispatchDate:  date,
		GSTApplicable: req.GSTApplicable,
		GSTRate:       req.GSTRate,
		Remarks:       req.Remarks,
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
	doc, err := h.service.CreateDraft(r.Context(), shared.CurrentActor(r.Context()), input)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeCreate(w, r)
	if !ok {
		return
	}
	code := chi.URLParam(r, "code")
	doc, err := h.service.UpdateDraft(r.Context(), shared.CurrentActor(r.Context()), code, input)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Customer: r.URL.Query().Get("customer"),
		Status:   ledger.DocStatus(r.URL.Query().Get("status")),
	}
	docs, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list dispatches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"dispatches": docs})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	doc, warnings, err := h.service.Submit(r.Context(), shared.CurrentActor(r.Context()), code)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"dispatch": doc, "warnings": warnings})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	doc, warnings, err := h.service.Cancel(r.Context(), shared.CurrentActor(r.Context()), code)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"dispatch": doc, "warnings": warnings})
}

type validateRequest struct {
	ExcludeDispatch string        `json:"exclude_dispatch"`
	Lines           []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	lines := make([]LineInput, len(req.Lines))
	for i, line := range req.Lines {
		lines[i] = LineInput(line)
	}
	result, err := h.service.CheckAvailability(r.Context(), lines, req.ExcludeDispatch)
	if err != nil {
		h.logger.Error("check availability", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	ok := true
	for _, row := range result {
		if !row.OK {
			ok = false
			break
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": ok, "lines": result})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Balance", insufficient.Error())
	case errors.Is(err, ErrNotDraft), errors.Is(err, ErrNotSubmitted):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrFutureDate), errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrMissingReceipt), errors.Is(err, ErrMissingWarehouse), errors.Is(err, ErrNoLines):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("dispatch operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
