package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/clarity-dx/bill-review/billreview/analyzer"
	"github.com/clarity-dx/bill-review/billreview/models"
	"github.com/clarity-dx/bill-review/billreview/ppo"
	"github.com/clarity-dx/bill-review/billreview/responseutils"
	"github.com/clarity-dx/bill-review/log"
)

const (
	maxUploadBytes = 16 << 20
	noAnalysis     = "No analysis available"
	defaultState   = "XX"
)

var defaultRate = decimal.NewFromInt(500)

// RateUpdater applies PPO rate changes.
type RateUpdater interface {
	UpdateRateByCategory(ctx context.Context, state, tin, providerName string, rates map[string]decimal.Decimal) (string, error)
	UpdateSingleRate(ctx context.Context, state, tin, providerName, procCd, modifier string, rate decimal.Decimal) (string, error)
	UpdateRatesFromFailures(ctx context.Context, rows []analyzer.Row, defaultRate decimal.Decimal, state string) (ppo.UpdateReport, error)
	GetProviderRates(ctx context.Context, tin string) ([]models.PPORate, error)
}

var _ RateUpdater = &ppo.Updater{}

// Handler serves the rate analysis console. The most recent analysis is
// kept in memory and shared by every request.
type Handler struct {
	cfg      Config
	updater  RateUpdater
	validate *validator.Validate
	now      func() time.Time

	mu       sync.RWMutex
	analysis *analyzer.Result
}

func NewHandler(cfg Config, updater RateUpdater) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{cfg: cfg, updater: updater, validate: v, now: time.Now}
}

// Upload saves a multipart "file" upload to the upload directory and analyzes it.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			responseutils.WriteError(w, r, http.StatusRequestEntityTooLarge, responseutils.BodyTooLarge)
		case errors.Is(err, http.ErrMissingFile):
			responseutils.WriteError(w, r, http.StatusBadRequest, "No file part")
		default:
			responseutils.WriteError(w, r, http.StatusBadRequest, "Unable to read upload")
		}
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		responseutils.WriteError(w, r, http.StatusBadRequest, "No selected file")
		return
	}
	if !strings.EqualFold(filepath.Ext(name), ".json") {
		responseutils.WriteError(w, r, http.StatusBadRequest, "Invalid file type. Please upload a JSON file.")
		return
	}

	path, err := h.save(file, name)
	if err != nil {
		responseutils.ServerError(w, r, err)
		return
	}
	h.analyze(w, r, path)
}

func (h *Handler) save(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(h.cfg.UploadDir, 0750); err != nil {
		return "", err
	}
	path := filepath.Join(h.cfg.UploadDir, name)
	dst, err := os.Create(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	if _, err = io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	return path, dst.Close()
}

// Analyze runs the rate analyzer on file_path, or on the newest failures
// file of the log directory when use_latest=true.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("file_path")
	if r.URL.Query().Get("use_latest") == "true" {
		latest, err := analyzer.GetLatestFile(h.cfg.LogDir)
		if err != nil {
			responseutils.ServerError(w, r, err)
			return
		}
		if latest == "" {
			responseutils.WriteError(w, r, http.StatusNotFound, "No validation files found")
			return
		}
		path = latest
	}
	if path == "" {
		responseutils.WriteError(w, r, http.StatusBadRequest, "No file specified")
		return
	}
	if _, err := os.Stat(path); err != nil {
		responseutils.WriteError(w, r, http.StatusNotFound, fmt.Sprintf("File not found: %s", path))
		return
	}
	h.analyze(w, r, path)
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request, path string) {
	logger := log.GetCtxLogger(r.Context()).WithField("file", path)

	res, err := analyzer.Run(path, h.cfg.OutputDir, h.now(), logger)
	var loadErr *analyzer.LoadError
	switch {
	case errors.Is(err, analyzer.ErrNoRateFailures):
		responseutils.WriteError(w, r, http.StatusUnprocessableEntity,
			"No rate validation failures found in the file. Check if it contains rate validation entries.")
		return
	case errors.As(err, &loadErr):
		logger.Warnf("Failed to analyze file: %s", err)
		responseutils.WriteError(w, r, http.StatusBadRequest, fmt.Sprintf("Failed to load file: %s", filepath.Base(path)))
		return
	case err != nil:
		responseutils.ServerError(w, r, err)
		return
	}

	h.mu.Lock()
	h.analysis = res
	h.mu.Unlock()

	logger.WithFields(logrus.Fields{"rows": len(res.Rows), "timestamp": res.Timestamp}).Info("Analysis complete")
	render.JSON(w, r, res)
}

func (h *Handler) current() *analyzer.Result {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.analysis
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	res := h.current()
	if res == nil {
		responseutils.WriteError(w, r, http.StatusNotFound, noAnalysis)
		return
	}
	render.JSON(w, r, res.Summary)
}

func (h *Handler) Providers(w http.ResponseWriter, r *http.Request) {
	res := h.current()
	if res == nil {
		responseutils.WriteError(w, r, http.StatusNotFound, noAnalysis)
		return
	}
	render.JSON(w, r, res.Summary.UniqueProviders)
}

func (h *Handler) CPTs(w http.ResponseWriter, r *http.Request) {
	res := h.current()
	if res == nil {
		responseutils.WriteError(w, r, http.StatusNotFound, noAnalysis)
		return
	}
	render.JSON(w, r, res.Summary.CPTAnalysis)
}

func (h *Handler) Failures(w http.ResponseWriter, r *http.Request) {
	res := h.current()
	if res == nil {
		responseutils.WriteError(w, r, http.StatusNotFound, noAnalysis)
		return
	}
	render.JSON(w, r, res.Rows)
}

// Download serves one of the reports of the cached analysis as an attachment.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	res := h.current()
	if res == nil {
		responseutils.WriteError(w, r, http.StatusNotFound, "No reports available. Please analyze a file first.")
		return
	}

	reportType := chi.URLParam(r, "reportType")
	path, ok := res.Reports[reportType]
	if !ok {
		responseutils.WriteError(w, r, http.StatusNotFound, fmt.Sprintf("Report not found: %s", reportType))
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, ppo.CategoryMap())
}

type updateResult struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Details []ppo.UpdateDetail `json:"details,omitempty"`
}

type fromFailuresRequest struct {
	DefaultRate *decimal.Decimal `json:"default_rate"`
	State       string           `json:"state"`
}

// UpdateFromFailures prices every row of the cached analysis at default_rate.
// The body may be JSON or a form.
func (h *Handler) UpdateFromFailures(w http.ResponseWriter, r *http.Request) {
	res := h.current()
	if res == nil || len(res.Rows) == 0 {
		responseutils.WriteError(w, r, http.StatusBadRequest, "No analysis data available. Please analyze a file first.")
		return
	}

	var req fromFailuresRequest
	if isJSON(r) {
		if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
			responseutils.WriteError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
	} else {
		req.State = r.FormValue("state")
		if v := r.FormValue("default_rate"); v != "" {
			rate, err := decimal.NewFromString(v)
			if err != nil {
				responseutils.WriteError(w, r, http.StatusBadRequest, "Invalid rate value.")
				return
			}
			req.DefaultRate = &rate
		}
	}

	rate := defaultRate
	if req.DefaultRate != nil {
		rate = *req.DefaultRate
	}
	state := req.State
	if state == "" {
		state = defaultState
	}

	rep, err := h.updater.UpdateRatesFromFailures(r.Context(), res.Rows, rate, state)
	if err != nil {
		responseutils.ServerError(w, r, err)
		return
	}

	out := updateResult{Success: rep.Success, Message: "Failed to update rates", Details: rep.Details}
	if rep.Success {
		out.Message = fmt.Sprintf("Updated %d rates, %d failed", rep.Updated, rep.Failed)
	}
	render.JSON(w, r, out)
}

type categoryRequest struct {
	State        string                     `json:"state"`
	TIN          string                     `json:"tin" validate:"required"`
	ProviderName string                     `json:"provider_name"`
	Rates        map[string]decimal.Decimal `json:"rates" validate:"required,min=1"`
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !h.decode(w, r, &req) {
		return
	}

	msg, err := h.updater.UpdateRateByCategory(r.Context(), req.State, req.TIN, req.ProviderName, req.Rates)
	if !h.updated(w, r, msg, err) {
		return
	}
	render.JSON(w, r, updateResult{Success: true, Message: msg})
}

type individualRequest struct {
	State        string           `json:"state"`
	TIN          string           `json:"tin" validate:"required"`
	ProviderName string           `json:"provider_name"`
	ProcCd       string           `json:"proc_cd" validate:"required"`
	Modifier     string           `json:"modifier"`
	Rate         *decimal.Decimal `json:"rate" validate:"required"`
}

func (h *Handler) UpdateIndividual(w http.ResponseWriter, r *http.Request) {
	var req individualRequest
	if !h.decode(w, r, &req) {
		return
	}

	msg, err := h.updater.UpdateSingleRate(r.Context(), req.State, req.TIN, req.ProviderName, req.ProcCd, req.Modifier, *req.Rate)
	if !h.updated(w, r, msg, err) {
		return
	}
	render.JSON(w, r, updateResult{Success: true, Message: msg})
}

func (h *Handler) ProviderRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.updater.GetProviderRates(r.Context(), chi.URLParam(r, "tin"))
	if errors.Is(err, ppo.ErrInvalidTIN) {
		responseutils.WriteError(w, r, http.StatusBadRequest, "Invalid TIN format")
		return
	}
	if err != nil {
		responseutils.ServerError(w, r, err)
		return
	}
	render.JSON(w, r, rates)
}

// decode reads a JSON body into v and validates it. It writes the error
// response and returns false when the request is unusable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, 1<<20), v); err != nil {
		responseutils.WriteError(w, r, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		responseutils.WriteError(w, r, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func (h *Handler) updated(w http.ResponseWriter, r *http.Request, msg string, err error) bool {
	if errors.Is(err, ppo.ErrInvalidTIN) {
		responseutils.WriteError(w, r, http.StatusBadRequest, "Invalid TIN format")
		return false
	}
	if err != nil {
		log.GetCtxLogger(r.Context()).Error(err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, updateResult{Message: fmt.Sprintf("Error updating rates: %s", err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "Invalid request"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must have at least %s entry", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
