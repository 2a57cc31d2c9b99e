package http

import (
	"encoding/json"
	"net/http"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
)

type PayrollHandler interface {
	// Runs
	GenerateRun(w http.ResponseWriter, r *http.Request)
	GetRunSummary(w http.ResponseWriter, r *http.Request)

	// Payroll Records
	ListRecords(w http.ResponseWriter, r *http.Request)
	GetRecord(w http.ResponseWriter, r *http.Request)
	MarkPaid(w http.ResponseWriter, r *http.Request)
	BulkMarkPaid(w http.ResponseWriter, r *http.Request)

	// Pay Slips
	GetPaySlip(w http.ResponseWriter, r *http.Request)

	// Components
	CreateComponent(w http.ResponseWriter, r *http.Request)
	ListComponents(w http.ResponseWriter, r *http.Request)

	// Employee Components
	AssignComponent(w http.ResponseWriter, r *http.Request)
	GetEmployeeComponents(w http.ResponseWriter, r *http.Request)
}

type payrollHandlerImpl struct {
	payrollService payroll.PayrollService
}

func NewPayrollHandler(payrollService payroll.PayrollService) PayrollHandler {
	return &payrollHandlerImpl{payrollService: payrollService}
}

// ========== RUNS ==========

func (h *payrollHandlerImpl) GenerateRun(w http.ResponseWriter, r *http.Request) {
	var req payroll.GenerateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.payrollService.GenerateRun(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Payroll run completed", result)
}

func (h *payrollHandlerImpl) GetRunSummary(w http.ResponseWriter, r *http.Request) {
	period, err := payroll.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	result, err := h.payrollService.GetRunSummary(r.Context(), period)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

// ========== PAYROLL RECORDS ==========

func (h *payrollHandlerImpl) ListRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := payroll.PayrollFilter{
		Period:     query.Get("period"),
		Status:     query.Get("status"),
		EmployeeID: query.Get("employee_id"),
	}

	records, err := h.payrollService.ListRecords(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, payroll.NewRecordResponses(records))
}

func (h *payrollHandlerImpl) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.BadRequest(w, "Record ID is required", nil)
		return
	}

	record, err := h.payrollService.GetRecord(r.Context(), id)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, payroll.NewRecordResponse(record))
}

func (h *payrollHandlerImpl) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.BadRequest(w, "Record ID is required", nil)
		return
	}

	var req payroll.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	info, err := req.ToPaymentInfo()
	if err != nil {
		response.HandleError(w, err)
		return
	}

	record, err := h.payrollService.MarkPaid(r.Context(), id, info)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Payroll record marked as paid", payroll.NewRecordResponse(record))
}

func (h *payrollHandlerImpl) BulkMarkPaid(w http.ResponseWriter, r *http.Request) {
	var req payroll.BulkMarkPaidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.payrollService.BulkMarkPaid(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Bulk settlement completed", result)
}

// ========== PAY SLIPS ==========

func (h *payrollHandlerImpl) GetPaySlip(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeId")
	period, err := payroll.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	slip, err := h.payrollService.GetPaySlip(r.Context(), employeeID, period)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, slip)
}

// ========== COMPONENTS ==========

func (h *payrollHandlerImpl) CreateComponent(w http.ResponseWriter, r *http.Request) {
	var req payroll.CreateComponentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.payrollService.CreateComponent(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Payroll component created", payroll.NewComponentResponse(result))
}

func (h *payrollHandlerImpl) ListComponents(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"

	components, err := h.payrollService.ListComponents(r.Context(), activeOnly)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	result := make([]payroll.ComponentResponse, 0, len(components))
	for _, c := range components {
		result = append(result, payroll.NewComponentResponse(c))
	}
	response.Success(w, result)
}

// ========== EMPLOYEE COMPONENTS ==========

func (h *payrollHandlerImpl) AssignComponent(w http.ResponseWriter, r *http.Request) {
	var req payroll.AssignComponentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}
	req.EmployeeID = chi.URLParam(r, "employeeId")

	result, err := h.payrollService.AssignComponent(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Component assigned to employee", payroll.NewAssignmentResponse(result))
}

func (h *payrollHandlerImpl) GetEmployeeComponents(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeId")

	assignments, err := h.payrollService.ListAssignments(r.Context(), employeeID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	result := make([]payroll.AssignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		result = append(result, payroll.NewAssignmentResponse(a))
	}
	response.Success(w, result)
}
