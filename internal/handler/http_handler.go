package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/procural/be-procurement/internal/errors"
	"github.com/procural/be-procurement/internal/logger"
	"github.com/procural/be-procurement/internal/middleware"
	"github.com/procural/be-procurement/internal/repository"
	"github.com/procural/be-procurement/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	requests *service.RequestService
	workflow *service.WorkflowService
	orders   *service.OrderService
	rules    *service.RuleService
	log      *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	requests *service.RequestService,
	workflow *service.WorkflowService,
	orders *service.OrderService,
	rules *service.RuleService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		requests: requests,
		workflow: workflow,
		orders:   orders,
		rules:    rules,
		log:      log,
	}
}

// ── Purchase requests ────────────────────────────────────────────────────────

// CreateRequest handles create purchase request HTTP requests
func (h *HTTPHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title         string  `json:"title"`
		Justification *string `json:"justification"`
		Currency      string  `json:"currency"`
		Lines         []struct {
			LineNumber  int     `json:"line_number"`
			ProductID   *string `json:"product_id"`
			Name        string  `json:"name"`
			Description *string `json:"description"`
			Quantity    float64 `json:"quantity"`
			UnitPrice   int64   `json:"unit_price"`
		} `json:"lines"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	input := &service.CreateRequestInput{
		RequesterID:   middleware.CallerFrom(r.Context()),
		Title:         body.Title,
		Justification: body.Justification,
		Currency:      body.Currency,
	}
	for _, line := range body.Lines {
		input.Lines = append(input.Lines, &service.RequestLineInput{
			LineNumber:  line.LineNumber,
			ProductID:   line.ProductID,
			Name:        line.Name,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		})
	}

	request, err := h.requests.CreateRequest(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, request)
}

// GetRequest handles get purchase request HTTP requests
func (h *HTTPHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		h.respondError(w, r, errors.InvalidInput("id", "request id is required"))
		return
	}

	request, err := h.requests.GetRequest(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, request)
}

// ListRequests handles list purchase requests HTTP requests
func (h *HTTPHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	var requesterID *string
	if v := r.URL.Query().Get("requester_id"); v != "" {
		requesterID = &v
	}

	var status *repository.RequestStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := repository.RequestStatus(v)
		status = &s
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	requests, total, err := h.requests.ListRequests(r.Context(), requesterID, status, page, pageSize)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"total":    total,
	})
}

// DeleteRequest handles delete purchase request HTTP requests
func (h *HTTPHandler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	if err := h.requests.DeleteRequest(r.Context(), body.ID, middleware.CallerFrom(r.Context())); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Workflow transitions ─────────────────────────────────────────────────────

// SubmitRequest handles submit for approval HTTP requests
func (h *HTTPHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	result, err := h.workflow.Submit(r.Context(), body.ID, middleware.CallerFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// ApproveRequest handles approve HTTP requests
func (h *HTTPHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID    string  `json:"id"`
		Notes *string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	result, err := h.workflow.Approve(r.Context(), body.ID, middleware.CallerFrom(r.Context()), body.Notes)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// RejectRequest handles reject HTTP requests
func (h *HTTPHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID    string  `json:"id"`
		Notes *string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	if err := h.workflow.Reject(r.Context(), body.ID, middleware.CallerFrom(r.Context()), body.Notes); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestHistory handles approval history HTTP requests
func (h *HTTPHandler) RequestHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		h.respondError(w, r, errors.InvalidInput("id", "request id is required"))
		return
	}

	history, err := h.workflow.History(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"request_id": id,
		"history":    history,
	})
}

// PendingApprovals handles the approver inbox HTTP requests
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pending, err := h.workflow.PendingApprovals(r.Context(), middleware.CallerFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"pending": pending,
	})
}

// ── Purchase orders ──────────────────────────────────────────────────────────

// GetOrder handles get purchase order HTTP requests
func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	requestID := r.URL.Query().Get("request_id")

	switch {
	case id != "":
		order, err := h.orders.GetOrder(r.Context(), id)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		h.respondJSON(w, http.StatusOK, order)
	case requestID != "":
		order, err := h.orders.GetOrderForRequest(r.Context(), requestID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		h.respondJSON(w, http.StatusOK, order)
	default:
		h.respondError(w, r, errors.InvalidInput("id", "order id or request id is required"))
	}
}

// ListOrders handles list purchase orders HTTP requests
func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var status *repository.OrderStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := repository.OrderStatus(v)
		status = &s
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	orders, total, err := h.orders.ListOrders(r.Context(), status, page, pageSize)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"total":  total,
	})
}

// RespondToOrder handles supplier accept/reject HTTP requests
func (h *HTTPHandler) RespondToOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID       string  `json:"id"`
		Decision string  `json:"decision"`
		Notes    *string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	supplierID := middleware.CallerFrom(r.Context())

	var order *repository.PurchaseOrder
	var err error
	switch body.Decision {
	case "accept":
		order, err = h.orders.AcceptOrder(r.Context(), body.ID, supplierID, body.Notes)
	case "reject":
		order, err = h.orders.RejectOrder(r.Context(), body.ID, supplierID, body.Notes)
	default:
		h.respondError(w, r, errors.InvalidInput("decision", "decision must be 'accept' or 'reject'"))
		return
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, order)
}

// ── Approval rules ───────────────────────────────────────────────────────────

// CreateRule handles create approval rule HTTP requests
func (h *HTTPHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RuleName      string `json:"rule_name"`
		RequiredRole  string `json:"required_role"`
		ApprovalLevel int    `json:"approval_level"`
		MinAmount     int64  `json:"min_amount"`
		MaxAmount     *int64 `json:"max_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	rule := &repository.ApprovalRule{
		RuleName:      body.RuleName,
		RequiredRole:  repository.Role(body.RequiredRole),
		ApprovalLevel: body.ApprovalLevel,
		MinAmount:     body.MinAmount,
		MaxAmount:     body.MaxAmount,
		IsActive:      true,
	}

	created, err := h.rules.CreateRule(r.Context(), rule)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, created)
}

// ListRules handles list approval rules HTTP requests
func (h *HTTPHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	rules, err := h.rules.ListRules(r.Context(), activeOnly)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
	})
}

// UpdateRule handles update approval rule HTTP requests
func (h *HTTPHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID            string `json:"id"`
		RuleName      string `json:"rule_name"`
		RequiredRole  string `json:"required_role"`
		ApprovalLevel int    `json:"approval_level"`
		MinAmount     int64  `json:"min_amount"`
		MaxAmount     *int64 `json:"max_amount"`
		IsActive      bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	rule := &repository.ApprovalRule{
		ID:            body.ID,
		RuleName:      body.RuleName,
		RequiredRole:  repository.Role(body.RequiredRole),
		ApprovalLevel: body.ApprovalLevel,
		MinAmount:     body.MinAmount,
		MaxAmount:     body.MaxAmount,
		IsActive:      body.IsActive,
	}

	updated, err := h.rules.UpdateRule(r.Context(), rule)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, updated)
}

// DeleteRule handles delete approval rule HTTP requests
func (h *HTTPHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	if err := h.rules.DeleteRule(r.Context(), body.ID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Responses ────────────────────────────────────────────────────────────────

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := errors.IsAppError(err)
	if !ok {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Unhandled error")
		h.respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": map[string]interface{}{
				"code":    errors.ErrCodeInternal,
				"message": "internal server error",
			},
		})
		return
	}

	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}

	payload := map[string]interface{}{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if len(appErr.Params) > 0 {
		payload["params"] = appErr.Params
	}
	h.respondJSON(w, appErr.HTTPStatus, map[string]interface{}{"error": payload})
}
