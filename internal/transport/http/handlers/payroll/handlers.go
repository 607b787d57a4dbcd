package payrollhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"salaryrules/internal/domain/audit"
	"salaryrules/internal/domain/auth"
	"salaryrules/internal/domain/payroll"
	"salaryrules/internal/platform/requestctx"
	"salaryrules/internal/transport/http/api"
	"salaryrules/internal/transport/http/middleware"
	"salaryrules/internal/transport/http/shared"
)

const maxRulesPerRequest = 500

type Service interface {
	CreateStructure(ctx context.Context, tenantID string, structure payroll.Structure) (string, error)
	ListStructures(ctx context.Context, tenantID string) ([]payroll.StructureSummary, error)
	GetStructure(ctx context.Context, tenantID, structureID string) (payroll.Structure, error)
	Compute(ctx context.Context, tenantID, structureID string, input payroll.PayslipInput) (payroll.Result, error)
	ComputeAdhoc(rules []payroll.SalaryRule, categories []payroll.Category, input payroll.PayslipInput) (payroll.Result, error)
	RunPayslip(ctx context.Context, tenantID, structureID string, input payroll.PayslipInput) (payroll.Payslip, error)
	RunBatch(ctx context.Context, tenantID, structureID string, inputs []payroll.PayslipInput) ([]payroll.BatchItem, error)
	GetPayslip(ctx context.Context, tenantID, payslipID string) (payroll.Payslip, error)
	PayslipInput(ctx context.Context, tenantID, payslipID string) (payroll.PayslipInput, error)
	ListPayslips(ctx context.Context, tenantID, structureID string, limit, offset int) ([]payroll.Payslip, int, error)
	PayslipPDF(ctx context.Context, tenantID, payslipID string) ([]byte, error)
	RegisterXLSX(ctx context.Context, tenantID, structureID string) ([]byte, error)
}

type Idempotency interface {
	Check(ctx context.Context, tenantID, clientID, endpoint, key, requestHash string) (json.RawMessage, bool, error)
	Save(ctx context.Context, tenantID, clientID, endpoint, key, requestHash string, response json.RawMessage) error
}

type Auditor interface {
	Record(ctx context.Context, tenantID, actorID, action, entityType, entityID, requestID, ip string, after any) error
}

type Handler struct {
	Service     Service
	Idempotency Idempotency
	Audit       Auditor
}

func NewHandler(service Service, idempotency Idempotency, auditor Auditor) *Handler {
	return &Handler{Service: service, Idempotency: idempotency, Audit: auditor}
}

type computeRequest struct {
	Rules      []payroll.SalaryRule `json:"rules"`
	Categories []payroll.Category   `json:"categories"`
	Input      payroll.PayslipInput `json:"input"`
}

type batchRequest struct {
	Inputs []payroll.PayslipInput `json:"inputs"`
}

type batchResponse struct {
	Items     []payroll.BatchItem `json:"items"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.Post("/compute", h.handleComputeAdhoc)
		r.Get("/structures", h.handleListStructures)
		r.Post("/structures", h.handleCreateStructure)
		r.Get("/structures/{structureID}", h.handleGetStructure)
		r.Post("/structures/{structureID}/compute", h.handleCompute)
		r.Post("/structures/{structureID}/payslips", h.handleRunPayslip)
		r.Post("/structures/{structureID}/batch", h.handleRunBatch)
		r.Get("/structures/{structureID}/register.xlsx", h.handleRegister)
		r.Get("/payslips", h.handleListPayslips)
		r.Get("/payslips/{payslipID}", h.handleGetPayslip)
		r.Get("/payslips/{payslipID}/input", h.handlePayslipInput)
		r.Get("/payslips/{payslipID}/pdf", h.handlePayslipPDF)
	})
}

func (h *Handler) handleComputeAdhoc(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireClient(w, r); !ok {
		return
	}
	var payload computeRequest
	if err := api.Decode(r, &payload); err != nil {
		api.FailDecode(w, r, err)
		return
	}
	v := shared.NewValidator()
	v.Count("rules", len(payload.Rules), 1, maxRulesPerRequest)
	validateRuleCodes(v, payload.Rules)
	if v.Reject(w, r) {
		return
	}

	result, err := h.Service.ComputeAdhoc(payload.Rules, payload.Categories, payload.Input)
	if err != nil {
		failService(w, r, err, "failed to compute payslip")
		return
	}
	api.Success(w, r, result)
}

func (h *Handler) handleListStructures(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	structures, err := h.Service.ListStructures(r.Context(), client.TenantID)
	if err != nil {
		failService(w, r, err, "failed to list salary structures")
		return
	}
	if structures == nil {
		structures = []payroll.StructureSummary{}
	}
	api.Success(w, r, structures)
}

func (h *Handler) handleCreateStructure(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	var payload payroll.Structure
	if err := api.Decode(r, &payload); err != nil {
		api.FailDecode(w, r, err)
		return
	}
	v := shared.NewValidator()
	v.Identifier("code", payload.Code)
	v.Count("rules", len(payload.Rules), 1, maxRulesPerRequest)
	validateRuleCodes(v, payload.Rules)
	if v.Reject(w, r) {
		return
	}

	id, err := h.Service.CreateStructure(r.Context(), client.TenantID, payload)
	if err != nil {
		failService(w, r, err, "failed to create salary structure")
		return
	}
	h.record(r, client.ClientID, client.TenantID, audit.ActionStructureCreate, audit.EntityStructure, id,
		map[string]any{"code": payload.Code, "rules": len(payload.Rules), "categories": len(payload.Categories)})
	api.Created(w, r, map[string]string{"id": id})
}

func (h *Handler) handleGetStructure(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	structure, err := h.Service.GetStructure(r.Context(), client.TenantID, chi.URLParam(r, "structureID"))
	if err != nil {
		failService(w, r, err, "failed to load salary structure")
		return
	}
	api.Success(w, r, structure)
}

func (h *Handler) handleCompute(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	var input payroll.PayslipInput
	if err := api.Decode(r, &input); err != nil {
		api.FailDecode(w, r, err)
		return
	}
	result, err := h.Service.Compute(r.Context(), client.TenantID, chi.URLParam(r, "structureID"), input)
	if err != nil {
		failService(w, r, err, "failed to compute payslip")
		return
	}
	api.Success(w, r, result)
}

func (h *Handler) handleRunPayslip(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	structureID := chi.URLParam(r, "structureID")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = api.ErrBodyTooLarge
		}
		api.FailDecode(w, r, err)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	var input payroll.PayslipInput
	if err := api.Decode(r, &input); err != nil {
		api.FailDecode(w, r, err)
		return
	}

	const endpoint = "payroll.payslip.run"
	idempotencyKey := r.Header.Get(middleware.IdempotencyHeader)
	requestHash := middleware.RequestHash([]byte(structureID), body)
	if idempotencyKey != "" && h.Idempotency != nil {
		stored, found, err := h.Idempotency.Check(r.Context(), client.TenantID, client.ClientID, endpoint, idempotencyKey, requestHash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, r, http.StatusConflict, "idempotency_conflict", "idempotency key was used with a different request")
			return
		}
		if err != nil {
			slog.Warn("idempotency check failed", "err", err)
		}
		if found {
			api.Created(w, r, stored)
			return
		}
	}

	payslip, err := h.Service.RunPayslip(r.Context(), client.TenantID, structureID, input)
	if err != nil {
		failService(w, r, err, "failed to run payslip")
		return
	}
	h.record(r, client.ClientID, client.TenantID, audit.ActionPayslipRun, audit.EntityPayslip, payslip.ID,
		map[string]any{"structureId": structureID, "employeeRef": payslip.EmployeeRef, "net": payslip.Summary.Net})

	encoded, err := json.Marshal(payslip)
	if err != nil {
		api.Fail(w, r, http.StatusInternalServerError, "internal_error", "failed to encode payslip")
		return
	}
	if idempotencyKey != "" && h.Idempotency != nil {
		if err := h.Idempotency.Save(r.Context(), client.TenantID, client.ClientID, endpoint, idempotencyKey, requestHash, encoded); err != nil {
			slog.Warn("idempotency save failed", "err", err)
		}
	}
	api.Created(w, r, json.RawMessage(encoded))
}

func (h *Handler) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	structureID := chi.URLParam(r, "structureID")
	var payload batchRequest
	if err := api.Decode(r, &payload); err != nil {
		api.FailDecode(w, r, err)
		return
	}
	v := shared.NewValidator()
	v.Count("inputs", len(payload.Inputs), 1, payroll.MaxBatchSize)
	if v.Reject(w, r) {
		return
	}

	items, err := h.Service.RunBatch(r.Context(), client.TenantID, structureID, payload.Inputs)
	if err != nil {
		failService(w, r, err, "failed to run payslip batch")
		return
	}
	resp := batchResponse{Items: items}
	for _, item := range items {
		if item.Error != "" {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	h.record(r, client.ClientID, client.TenantID, audit.ActionBatchRun, audit.EntityStructure, structureID,
		map[string]any{"succeeded": resp.Succeeded, "failed": resp.Failed})
	api.Success(w, r, resp)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	structureID := chi.URLParam(r, "structureID")
	data, err := h.Service.RegisterXLSX(r.Context(), client.TenantID, structureID)
	if err != nil {
		failService(w, r, err, "failed to export payroll register")
		return
	}
	writeFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		fmt.Sprintf("payroll-register-%s.xlsx", structureID), data)
}

func (h *Handler) handleListPayslips(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	page := shared.ParsePagination(r, 50, 200)
	items, total, err := h.Service.ListPayslips(r.Context(), client.TenantID, r.URL.Query().Get("structureId"), page.Limit, page.Offset)
	if err != nil {
		failService(w, r, err, "failed to list payslips")
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, r, shared.NewPage(items, total, page))
}

func (h *Handler) handleGetPayslip(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	payslip, err := h.Service.GetPayslip(r.Context(), client.TenantID, chi.URLParam(r, "payslipID"))
	if err != nil {
		failService(w, r, err, "failed to load payslip")
		return
	}
	api.Success(w, r, payslip)
}

func (h *Handler) handlePayslipInput(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	input, err := h.Service.PayslipInput(r.Context(), client.TenantID, chi.URLParam(r, "payslipID"))
	if err != nil {
		failService(w, r, err, "failed to load payslip input")
		return
	}
	api.Success(w, r, input)
}

func (h *Handler) handlePayslipPDF(w http.ResponseWriter, r *http.Request) {
	client, ok := requireClient(w, r)
	if !ok {
		return
	}
	payslipID := chi.URLParam(r, "payslipID")
	data, err := h.Service.PayslipPDF(r.Context(), client.TenantID, payslipID)
	if err != nil {
		failService(w, r, err, "failed to render payslip")
		return
	}
	writeFile(w, "application/pdf", fmt.Sprintf("payslip-%s.pdf", payslipID), data)
}

func (h *Handler) record(r *http.Request, actorID, tenantID, action, entityType, entityID string, after any) {
	if h.Audit == nil {
		return
	}
	ctx := r.Context()
	if err := h.Audit.Record(ctx, tenantID, actorID, action, entityType, entityID,
		requestctx.GetRequestID(ctx), requestctx.GetRemoteIP(ctx), after); err != nil {
		slog.Warn("audit record failed", "action", action, "err", err)
	}
}

func requireClient(w http.ResponseWriter, r *http.Request) (auth.ClientContext, bool) {
	client, ok := middleware.GetClient(r.Context())
	if !ok {
		api.Fail(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
	}
	return client, ok
}

func validateRuleCodes(v *shared.Validator, rules []payroll.SalaryRule) {
	for i, rule := range rules {
		v.Required(fmt.Sprintf("rules[%d].code", i), rule.Code, "is required")
	}
}

// failService reports a domain error with the status its code maps to.
func failService(w http.ResponseWriter, r *http.Request, err error, message string) {
	code := payroll.ErrorCode(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		slog.Error(message, "err", err, "requestId", requestctx.GetRequestID(r.Context()))
		api.Fail(w, r, status, code, message)
		return
	}

	var computeErr *payroll.PayslipComputationError
	if errors.As(err, &computeErr) && computeErr.RuleCode != "" {
		api.FailWithDetails(w, r, status, code, err.Error(), map[string]string{"ruleCode": computeErr.RuleCode})
		return
	}
	api.Fail(w, r, status, code, err.Error())
}

func statusFor(code string) int {
	switch code {
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "validation_error":
		return http.StatusBadRequest
	case "internal_error":
		return http.StatusInternalServerError
	}
	return http.StatusUnprocessableEntity
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Warn("file write failed", "file", filename, "err", err)
	}
}
