package handler

import (
	"net/http"

	"shelfwatch/internal/sessions/service"
	httputil "shelfwatch/pkg/http"
	"shelfwatch/pkg/logger"
	"shelfwatch/pkg/model"
	"shelfwatch/pkg/validator"

	"github.com/julienschmidt/httprouter"
)

type SessionHandler struct {
	service   service.SessionService
	validator *validator.Validator
	log       *logger.Logger
}

func NewSessionHandler(service service.SessionService, validator *validator.Validator, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		service:   service,
		validator: validator,
		log:       log,
	}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.StartSessionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		if writeErr := httputil.WriteBadRequest(w, "Invalid request body"); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Create", "operation", "WriteBadRequest", "error", writeErr)
		}
		return
	}

	if err := h.validator.ValidateRequest(&req, "session request"); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	session, err := h.service.CheckIn(r.Context(), req.PersonID)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, session); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *SessionHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	session, err := h.service.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, session); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SessionHandler) GetActive(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetActive", err)
		return
	}

	sessions, total, err := h.service.ListActive(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, "GetActive", err)
		return
	}

	if err := httputil.WritePaginated(w, sessions, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetActive", "operation", "WritePaginated", "error", err)
	}
}

func (h *SessionHandler) GetActiveForPerson(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	session, err := h.service.ActiveFor(r.Context(), ps.ByName("person_id"))
	if err != nil {
		h.writeError(w, "GetActiveForPerson", err)
		return
	}

	if err := httputil.WriteSuccess(w, session); err != nil {
		h.log.Error("failed to write success response", "handler", "GetActiveForPerson", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	session, err := h.service.End(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "End", err)
		return
	}

	if err := httputil.WriteSuccess(w, session); err != nil {
		h.log.Error("failed to write success response", "handler", "End", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	session, err := h.service.Cancel(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, session); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SessionHandler) Expire(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	expired, err := h.service.ExpireOverdue(r.Context())
	if err != nil {
		h.writeError(w, "Expire", err)
		return
	}

	if err := httputil.WriteSuccess(w, expired); err != nil {
		h.log.Error("failed to write success response", "handler", "Expire", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SessionHandler) Statistics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	since, err := httputil.ExtractSince(r)
	if err != nil {
		h.writeError(w, "Statistics", err)
		return
	}

	stats, err := h.service.Statistics(r.Context(), since)
	if err != nil {
		h.writeError(w, "Statistics", err)
		return
	}

	if err := httputil.WriteSuccess(w, stats); err != nil {
		h.log.Error("failed to write success response", "handler", "Statistics", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SessionHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *SessionHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/sessions", h.Create)
	router.GET("/api/v1/sessions/active", h.GetActive)
	router.GET("/api/v1/sessions/statistics", h.Statistics)
	router.GET("/api/v1/sessions/id/:id", h.GetByID)
	router.POST("/api/v1/sessions/id/:id/end", h.End)
	router.POST("/api/v1/sessions/id/:id/cancel", h.Cancel)
	router.GET("/api/v1/sessions/person/:person_id", h.GetActiveForPerson)
	router.POST("/api/v1/sessions/expire", h.Expire)
}
