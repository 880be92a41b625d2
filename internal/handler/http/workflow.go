package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/domain"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/repository"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/service"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/httputil"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/validator"
)

// WorkflowHandler handles HTTP requests for workflow endpoints.
type WorkflowHandler struct {
	service *service.OrchestrationService
	logger  *slog.Logger
}

// NewWorkflowHandler creates a new workflow HTTP handler.
func NewWorkflowHandler(svc *service.OrchestrationService, logger *slog.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// StartWorkflowEnvelope carries the fields common to every start request.
// The workflow-specific payload is embedded alongside it in each DTO.
type StartWorkflowEnvelope struct {
	TenantID      string `json:"tenant_id" validate:"required"`
	InitiatorID   string `json:"initiator_id"`
	InitiatorKind string `json:"initiator_kind" validate:"omitempty,oneof=operator system api"`
}

// StartProvisionRequest is the JSON request body for starting a provision workflow.
type StartProvisionRequest struct {
	StartWorkflowEnvelope
	domain.ProvisionRequest
}

// StartDeprovisionRequest is the JSON request body for starting a deprovision workflow.
type StartDeprovisionRequest struct {
	StartWorkflowEnvelope
	domain.DeprovisionRequest
}

// StartActivateServiceRequest is the JSON request body for starting a
// service-activation workflow.
type StartActivateServiceRequest struct {
	StartWorkflowEnvelope
	domain.ActivateServiceRequest
}

// StartSuspendServiceRequest is the JSON request body for starting a
// service-suspension workflow.
type StartSuspendServiceRequest struct {
	StartWorkflowEnvelope
	domain.SuspendServiceRequest
}

// --- Handlers ---

// StartProvision handles POST /api/v1/workflows/provision
func (h *WorkflowHandler) StartProvision(w http.ResponseWriter, r *http.Request) {
	var req StartProvisionRequest
	if !h.decodeStart(w, r, &req) {
		return
	}
	h.startAndRespond(w, r, req.StartWorkflowEnvelope, domain.TypeProvision, req.ProvisionRequest)
}

// StartDeprovision handles POST /api/v1/workflows/deprovision
func (h *WorkflowHandler) StartDeprovision(w http.ResponseWriter, r *http.Request) {
	var req StartDeprovisionRequest
	if !h.decodeStart(w, r, &req) {
		return
	}
	h.startAndRespond(w, r, req.StartWorkflowEnvelope, domain.TypeDeprovision, req.DeprovisionRequest)
}

// StartActivateService handles POST /api/v1/workflows/activate-service
func (h *WorkflowHandler) StartActivateService(w http.ResponseWriter, r *http.Request) {
	var req StartActivateServiceRequest
	if !h.decodeStart(w, r, &req) {
		return
	}
	h.startAndRespond(w, r, req.StartWorkflowEnvelope, domain.TypeActivateService, req.ActivateServiceRequest)
}

// StartSuspendService handles POST /api/v1/workflows/suspend-service
func (h *WorkflowHandler) StartSuspendService(w http.ResponseWriter, r *http.Request) {
	var req StartSuspendServiceRequest
	if !h.decodeStart(w, r, &req) {
		return
	}
	h.startAndRespond(w, r, req.StartWorkflowEnvelope, domain.TypeSuspendService, req.SuspendServiceRequest)
}

// decodeStart decodes and validates a start request body. It writes the error
// response itself and reports whether the handler should continue.
func (h *WorkflowHandler) decodeStart(w http.ResponseWriter, r *http.Request, dst any) bool {
	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return false
	}

	if err := validator.Validate(dst); err != nil {
		httputil.WriteValidationError(w, err)
		return false
	}

	return true
}

func (h *WorkflowHandler) startAndRespond(w http.ResponseWriter, r *http.Request, env StartWorkflowEnvelope, workflowType string, request any) {
	wf, err := h.service.CreateAndRun(r.Context(), service.CreateWorkflowInput{
		Type:          workflowType,
		TenantID:      env.TenantID,
		InitiatorID:   env.InitiatorID,
		InitiatorKind: env.InitiatorKind,
		Request:       request,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: wf})
}

// GetWorkflow handles GET /api/v1/workflows/{businessID}
func (h *WorkflowHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")

	wf, err := h.service.Get(r.Context(), businessID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: wf})
}

// ListWorkflows handles GET /api/v1/workflows
func (h *WorkflowHandler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	filter := repository.WorkflowFilter{
		Page:    1,
		PerPage: 20,
	}

	if v := r.URL.Query().Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "page must be a valid positive integer"},
			})
			return
		}
		filter.Page = page
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		perPage, err := strconv.Atoi(v)
		if err != nil || perPage < 1 || perPage > 100 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "per_page must be a valid integer between 1 and 100"},
			})
			return
		}
		filter.PerPage = perPage
	}
	if v := r.URL.Query().Get("tenant_id"); v != "" {
		filter.TenantID = &v
	}
	if v := r.URL.Query().Get("type"); v != "" {
		filter.Type = &v
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = &v
	}

	workflows, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(workflows, total, filter.Page, filter.PerPage))
}

// RetryWorkflow handles POST /api/v1/workflows/{businessID}/retry
func (h *WorkflowHandler) RetryWorkflow(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")

	wf, err := h.service.Retry(r.Context(), businessID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: wf})
}

// CancelWorkflow handles POST /api/v1/workflows/{businessID}/cancel
func (h *WorkflowHandler) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")

	wf, err := h.service.Cancel(r.Context(), businessID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: wf})
}

// GetStatistics handles GET /api/v1/workflows/statistics
func (h *WorkflowHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stats})
}
