// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wayfare/wayfare/pkg/api/middleware"
	"github.com/wayfare/wayfare/pkg/api/models"
	"github.com/wayfare/wayfare/pkg/api/response"
	"github.com/wayfare/wayfare/pkg/hub"
	"github.com/wayfare/wayfare/pkg/logger"
	"github.com/wayfare/wayfare/pkg/saga"
)

const (
	defaultWaitTimeout = 30 * time.Second
	maxWaitTimeout     = 55 * time.Second
)

// SagaClient is the hub surface the trip handler needs.
type SagaClient interface {
	Schedule(ctx context.Context, orchestration string, input any) (string, error)
	Status(ctx context.Context, id string) (*hub.Instance, error)
	Await(ctx context.Context, id string, timeout time.Duration) (*hub.Instance, error)
	List(ctx context.Context, filter hub.ListFilter) ([]*hub.Instance, int, error)
}

// SubmissionRecorder counts accepted saga submissions.
type SubmissionRecorder interface {
	RecordSubmission(orchestration string)
}

// TripHandler handles trip saga endpoints.
type TripHandler struct {
	client     SagaClient
	logger     logger.Logger
	validator  *validator.Validate
	submission SubmissionRecorder
}

// NewTripHandler creates a trip handler.
func NewTripHandler(client SagaClient, log logger.Logger) *TripHandler {
	return &TripHandler{
		client:    client,
		logger:    log,
		validator: validator.New(),
	}
}

// SetSubmissionRecorder installs an optional submission counter.
func (h *TripHandler) SetSubmissionRecorder(rec SubmissionRecorder) {
	h.submission = rec
}

// SubmitTrip handles POST /api/v1/trips.
func (h *TripHandler) SubmitTrip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.TripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode trip request", "error", err)
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "invalid request body", middleware.GetRequestID(ctx))
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		h.logger.WarnContext(ctx, "trip request validation failed", "error", err)
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), middleware.GetRequestID(ctx))
		return
	}

	orchestration := req.Orchestration
	if orchestration == "" {
		orchestration = saga.OrchestrationTrip
	}

	input, err := sagaInput(orchestration, req)
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, err.Error(), middleware.GetRequestID(ctx))
		return
	}

	instanceID, err := h.client.Schedule(ctx, orchestration, input)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to schedule saga",
			"orchestration", orchestration, "error", err)
		response.HandleError(w, err, middleware.GetRequestID(ctx))
		return
	}

	if h.submission != nil {
		h.submission.RecordSubmission(orchestration)
	}

	response.JSON(w, http.StatusCreated, models.TripResponse{
		InstanceID:    instanceID,
		Orchestration: orchestration,
		Status:        string(hub.StatusRunning),
		CreatedAt:     time.Now().UTC(),
	})
}

// GetTrip handles GET /api/v1/trips/{id}.
func (h *TripHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	instance, err := h.client.Status(ctx, id)
	if err != nil {
		response.HandleError(w, err, middleware.GetRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, statusResponse(instance))
}

// WaitTrip handles GET /api/v1/trips/{id}/wait. It blocks until the
// saga reaches a terminal state or the timeout elapses; on timeout the
// saga keeps running and a 504 with code AWAIT_TIMEOUT is returned.
func (h *TripHandler) WaitTrip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	timeout := defaultWaitTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "invalid timeout", middleware.GetRequestID(ctx))
			return
		}
		timeout = parsed
	}
	if timeout > maxWaitTimeout {
		timeout = maxWaitTimeout
	}

	instance, err := h.client.Await(ctx, id, timeout)
	if err != nil {
		response.HandleError(w, err, middleware.GetRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, statusResponse(instance))
}

// ListTrips handles GET /api/v1/trips.
func (h *TripHandler) ListTrips(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := hub.ListFilter{Limit: 20}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = hub.Status(status)
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	instances, total, err := h.client.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list trips", "error", err)
		response.HandleError(w, err, middleware.GetRequestID(ctx))
		return
	}

	summaries := make([]models.TripSummary, 0, len(instances))
	for _, instance := range instances {
		summaries = append(summaries, models.TripSummary{
			InstanceID:    instance.ID,
			Orchestration: instance.Orchestration,
			Status:        string(instance.Status),
			CreatedAt:     instance.CreatedAt,
			CompletedAt:   instance.CompletedAt,
		})
	}

	response.JSON(w, http.StatusOK, models.TripListResponse{
		Trips:  summaries,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// sagaInput builds the orchestration input for the selected saga.
func sagaInput(orchestration string, req models.TripRequest) (any, error) {
	resources := make([]saga.Resource, 0, len(req.Resources))
	for _, name := range req.Resources {
		res, err := saga.ParseResource(name)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}

	if orchestration == saga.OrchestrationTrip {
		return saga.TripRequest{
			Destination: req.Destination,
			Nights:      req.Nights,
			Days:        req.Days,
			TravelDate:  req.TravelDate,
			Resources:   resources,
		}, nil
	}

	return saga.BookingRequest{
		Destination: req.Destination,
		Nights:      req.Nights,
		Days:        req.Days,
		TravelDate:  req.TravelDate,
	}, nil
}

func statusResponse(instance *hub.Instance) models.TripStatusResponse {
	return models.TripStatusResponse{
		InstanceID:    instance.ID,
		Orchestration: instance.Orchestration,
		Status:        string(instance.Status),
		Result:        instance.Output,
		FailureReason: instance.FailureReason,
		CreatedAt:     instance.CreatedAt,
		UpdatedAt:     instance.UpdatedAt,
		CompletedAt:   instance.CompletedAt,
	}
}
