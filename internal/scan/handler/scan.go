package handler

import (
	"net/http"
	"strconv"

	"shelfwatch/internal/scan/service"
	apperrors "shelfwatch/pkg/errors"
	httputil "shelfwatch/pkg/http"
	"shelfwatch/pkg/logger"
	"shelfwatch/pkg/model"
	"shelfwatch/pkg/sanitizer"
	"shelfwatch/pkg/validator"

	"github.com/julienschmidt/httprouter"
)

const maxRecentScans = 200

type ScanHandler struct {
	service   service.ScanService
	validator *validator.Validator
	log       *logger.Logger
}

func NewScanHandler(service service.ScanService, validator *validator.Validator, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		service:   service,
		validator: validator,
		log:       log,
	}
}

// Submit answers 200 for every resolved scan, including rejected ones; the
// outcome is in the body.
func (h *ScanHandler) Submit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.ScanRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		if writeErr := httputil.WriteBadRequest(w, "Invalid request body"); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Submit", "operation", "WriteBadRequest", "error", writeErr)
		}
		return
	}

	req.Token = sanitizer.SanitizeToken(req.Token)
	if err := h.validator.ValidateRequest(&req, "scan request"); err != nil {
		h.writeError(w, "Submit", err)
		return
	}

	result, err := h.service.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, "Submit", err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Submit", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ScanHandler) Status(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	status, err := h.service.Status(r.Context(), ps.ByName("barcode"))
	if err != nil {
		h.writeError(w, "Status", err)
		return
	}

	if err := httputil.WriteSuccess(w, status); err != nil {
		h.log.Error("failed to write success response", "handler", "Status", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ScanHandler) Statistics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
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

func (h *ScanHandler) Recent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			h.writeError(w, "Recent", apperrors.InvalidInput("invalid limit parameter: "+s))
			return
		}
		limit = min(v, maxRecentScans)
	}

	entries, err := h.service.Recent(r.Context(), limit)
	if err != nil {
		h.writeError(w, "Recent", err)
		return
	}

	if err := httputil.WriteSuccess(w, entries); err != nil {
		h.log.Error("failed to write success response", "handler", "Recent", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ScanHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *ScanHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/scan", h.Submit)
	router.GET("/api/v1/scan/recent", h.Recent)
	router.GET("/api/v1/self-service/status/:barcode", h.Status)
	router.GET("/api/v1/self-service/statistics", h.Statistics)
}
