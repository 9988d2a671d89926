package dashboard

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/clarity-dx/bill-review/billreview/resolution"
	"github.com/clarity-dx/bill-review/billreview/responseutils"
	"github.com/clarity-dx/bill-review/log"
)

// HealthChecker reports on the dashboard's dependencies.
type HealthChecker interface {
	IsDatabaseOK() (string, bool)
}

type Handler struct {
	svc      *Service
	health   HealthChecker
	validate *validator.Validate
}

// NewHandler serves svc. health may be nil when no database is configured.
func NewHandler(svc *Service, health HealthChecker) *Handler {
	return &Handler{svc: svc, health: health, validate: validator.New()}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	m := map[string]string{"status": "healthy"}
	if h.health != nil {
		result, ok := h.health.IsDatabaseOK()
		m["database"] = result
		if !ok {
			m["status"] = "unhealthy"
			render.Status(r, http.StatusServiceUnavailable)
		}
	}
	render.JSON(w, r, m)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.GetAllSessions()
	if err != nil {
		responseutils.ServerError(w, r, err)
		return
	}
	render.JSON(w, r, sessions)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.GetSession(chi.URLParam(r, "sessionID"))
	if err != nil {
		responseutils.ServerError(w, r, err)
		return
	}
	if session == nil {
		responseutils.WriteError(w, r, http.StatusNotFound, "Session not found")
		return
	}
	render.JSON(w, r, session)
}

func (h *Handler) GetSessionFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := h.svc.GetSessionFailures(chi.URLParam(r, "sessionID"))
	if err != nil {
		responseutils.ServerError(w, r, err)
		return
	}
	render.JSON(w, r, failures)
}

func (h *Handler) SubmitCorrection(w http.ResponseWriter, r *http.Request) {
	failureID := chi.URLParam(r, "failureID")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			responseutils.WriteError(w, r, http.StatusRequestEntityTooLarge, responseutils.BodyTooLarge)
			return
		}
		responseutils.WriteError(w, r, http.StatusBadRequest, "Unable to read request body")
		return
	}

	var correction map[string]interface{}
	if err = json.Unmarshal(body, &correction); err != nil {
		responseutils.WriteError(w, r, http.StatusBadRequest, "Correction must be a JSON object")
		return
	}
	if err = h.validate.Var(correction, "required,min=1"); err != nil {
		responseutils.WriteError(w, r, http.StatusBadRequest, "Correction must not be empty")
		return
	}

	receipt, err := h.svc.ProcessCorrection(r.Context(), failureID, body)
	if err != nil {
		responseutils.ServerError(w, r, err)
		return
	}
	log.GetCtxLogger(r.Context()).WithFields(logrus.Fields{
		"failure_id":    failureID,
		"correction_id": receipt.CorrectionID,
	}).Info("Correction submitted")
	render.JSON(w, r, receipt)
}

func (h *Handler) CommonErrors(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetErrorStatistics()
	if err != nil {
		responseutils.ServerError(w, r, err)
		return
	}
	render.JSON(w, r, stats)
}

func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	cmp, err := h.svc.CompareVersions(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		responseutils.ServerError(w, r, err)
		return
	}
	render.JSON(w, r, cmp)
}

func (h *Handler) ListCorrections(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if err := h.validate.Var(status, "omitempty,"+statusRule); err != nil {
		responseutils.WriteError(w, r, http.StatusBadRequest, "Invalid status")
		return
	}

	corrections, err := h.svc.ListCorrections(r.Context(), status)
	if err != nil {
		responseutils.ServerError(w, r, err)
		return
	}
	render.JSON(w, r, corrections)
}

type reviewRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected"`
}

func (h *Handler) ReviewCorrection(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "correctionID"), 10, 32)
	if err != nil {
		responseutils.WriteError(w, r, http.StatusBadRequest, "Invalid correction id")
		return
	}

	var req reviewRequest
	if err = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		responseutils.WriteError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err = h.validate.Struct(req); err != nil {
		responseutils.WriteError(w, r, http.StatusBadRequest, "Invalid status")
		return
	}

	receipt, err := h.svc.ReviewCorrection(r.Context(), uint(id), req.Status)
	if errors.Is(err, resolution.ErrCorrectionNotFound) {
		responseutils.WriteError(w, r, http.StatusNotFound, "Correction not found")
		return
	}
	if err != nil {
		responseutils.ServerError(w, r, err)
		return
	}
	log.GetCtxLogger(r.Context()).WithFields(logrus.Fields{
		"correction_id": receipt.CorrectionID,
		"status":        req.Status,
	}).Info("Correction reviewed")
	render.JSON(w, r, receipt)
}

const (
	maxBodyBytes = 1 << 20
	statusRule   = "oneof=pending approved rejected"
)
