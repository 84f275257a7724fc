package handler

import (
	"net/http"

	"shelfwatch/internal/checkouts/service"
	httputil "shelfwatch/pkg/http"
	"shelfwatch/pkg/logger"
	"shelfwatch/pkg/model"
	"shelfwatch/pkg/validator"

	"github.com/julienschmidt/httprouter"
)

type CheckoutHandler struct {
	service   service.CheckoutService
	validator *validator.Validator
	log       *logger.Logger
}

func NewCheckoutHandler(service service.CheckoutService, validator *validator.Validator, log *logger.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service:   service,
		validator: validator,
		log:       log,
	}
}

func (h *CheckoutHandler) Reserve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.ReserveRequest
	if !h.decode(w, r, "Reserve", &req, "reservation request") {
		return
	}

	session, err := h.service.Reserve(r.Context(), req.EquipmentID, req.PersonID)
	if err != nil {
		h.writeError(w, "Reserve", err)
		return
	}

	if err := httputil.WriteCreated(w, session); err != nil {
		h.log.Error("failed to write created response", "handler", "Reserve", "operation", "WriteCreated", "error", err)
	}
}

func (h *CheckoutHandler) Release(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	session, err := h.service.Release(r.Context(), ps.ByName("session_id"))
	if err != nil {
		h.writeError(w, "Release", err)
		return
	}

	if err := httputil.WriteSuccess(w, session); err != nil {
		h.log.Error("failed to write success response", "handler", "Release", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.CheckoutRequest
	if !h.decode(w, r, "Checkout", &req, "checkout request") {
		return
	}

	checkout, err := h.service.Checkout(r.Context(), req.BookID, req.PersonID, req.DueDate)
	if err != nil {
		h.writeError(w, "Checkout", err)
		return
	}

	if err := httputil.WriteCreated(w, checkout); err != nil {
		h.log.Error("failed to write created response", "handler", "Checkout", "operation", "WriteCreated", "error", err)
	}
}

func (h *CheckoutHandler) Return(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	checkout, err := h.service.ReturnBook(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Return", err)
		return
	}

	if err := httputil.WriteSuccess(w, checkout); err != nil {
		h.log.Error("failed to write success response", "handler", "Return", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CheckoutHandler) GetByPerson(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	list, err := h.service.ListForPerson(r.Context(), ps.ByName("person_id"))
	if err != nil {
		h.writeError(w, "GetByPerson", err)
		return
	}

	if err := httputil.WriteSuccess(w, list); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByPerson", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CheckoutHandler) GetOverdue(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetOverdue", err)
		return
	}

	list, total, err := h.service.ListOverdue(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, "GetOverdue", err)
		return
	}

	if err := httputil.WritePaginated(w, list, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetOverdue", "operation", "WritePaginated", "error", err)
	}
}

func (h *CheckoutHandler) MarkOverdue(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	marked, err := h.service.MarkOverdue(r.Context())
	if err != nil {
		h.writeError(w, "MarkOverdue", err)
		return
	}

	if err := httputil.WriteSuccess(w, marked); err != nil {
		h.log.Error("failed to write success response", "handler", "MarkOverdue", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CheckoutHandler) decode(w http.ResponseWriter, r *http.Request, handler string, v any, what string) bool {
	if err := httputil.DecodeJSON(r, v); err != nil {
		if writeErr := httputil.WriteBadRequest(w, "Invalid request body"); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", handler, "operation", "WriteBadRequest", "error", writeErr)
		}
		return false
	}
	if err := h.validator.ValidateRequest(v, what); err != nil {
		h.writeError(w, handler, err)
		return false
	}
	return true
}

func (h *CheckoutHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *CheckoutHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/reservations", h.Reserve)
	router.POST("/api/v1/reservations/:session_id/release", h.Release)
	router.POST("/api/v1/checkouts", h.Checkout)
	router.POST("/api/v1/checkouts/id/:id/return", h.Return)
	router.GET("/api/v1/checkouts/person/:person_id", h.GetByPerson)
	router.GET("/api/v1/checkouts/overdue", h.GetOverdue)
	router.POST("/api/v1/checkouts/overdue/mark", h.MarkOverdue)
}
