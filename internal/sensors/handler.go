package sensors

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/frostline-erp/frostline/internal/platform/httpx"
	"github.com/frostline-erp/frostline/jobs"
)

// AlertPort enqueues threshold alerts. Satisfied by *jobs.Client.
type AlertPort interface {
	EnqueueSensorAlert(ctx context.Context, payload jobs.SensorAlertPayload) error
}

// Handler accepts gateway readings and serves recent measurements.
type Handler struct {
	logger   *slog.Logger
	repo     *Repository
	alerts   AlertPort
	validate *validator.Validate
	now      func() time.Time
}

// NewHandler constructs the sensors handler.
func NewHandler(logger *slog.Logger, repo *Repository, alerts AlertPort, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, repo: repo, alerts: alerts, validate: validate, now: time.Now}
}

// MountRoutes registers sensor routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sensors/readings", h.handleReading)
	r.Get("/sensors/{id}/readings", h.handleRecent)
}

type readingRequest struct {
	SensorID string  `json:"sensor_id" validate:"required"`
	Value    float64 `json:"value"`
	At       string  `json:"at"`
}

func (h *Handler) handleReading(w http.ResponseWriter, r *http.Request) {
	var req readingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	at := h.now().UTC()
	if req.At != "" {
		parsed, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			httpx.FieldProblem(w, "invalid timestamp", map[string]string{"at": "must be RFC3339"})
			return
		}
		at = parsed.UTC()
	}

	sensor, err := h.repo.Get(r.Context(), req.SensorID)
	if err != nil {
		if errors.Is(err, ErrUnknownSensor) {
			httpx.Problem(w, http.StatusNotFound, "Unknown Sensor", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	if sensor.Disabled {
		httpx.Problem(w, http.StatusConflict, "Sensor Disabled", "sensor is disabled")
		return
	}

	reading := Reading{
		SensorID: sensor.ID,
		Value:    req.Value,
		At:       at,
		Breach:   sensor.Breach(req.Value),
	}
	stored, err := h.repo.InsertReading(r.Context(), reading)
	if err != nil {
		h.logger.Error("store reading", slog.String("sensor", sensor.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	if stored.Breach && h.alerts != nil {
		threshold := sensor.MaxValue
		if req.Value < sensor.MinValue {
			threshold = sensor.MinValue
		}
		err := h.alerts.EnqueueSensorAlert(r.Context(), jobs.SensorAlertPayload{
			SensorID:  sensor.ID,
			Warehouse: sensor.Warehouse,
			Metric:    sensor.Metric,
			Value:     req.Value,
			Threshold: threshold,
			Phone:     sensor.AlertPhone,
			At:        at,
		})
		if err != nil {
			h.logger.Error("sensor alert enqueue failed", slog.String("sensor", sensor.ID), slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusCreated, stored)
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	readings, err := h.repo.RecentReadings(r.Context(), chi.URLParam(r, "id"), 50)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"readings": readings})
}
