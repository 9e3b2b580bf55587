package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iwvelando/billing-forecast/internal/config"
	"github.com/iwvelando/billing-forecast/internal/forecast"
	"github.com/iwvelando/billing-forecast/internal/normalize"
	"github.com/iwvelando/billing-forecast/pkg/adapters"
	"github.com/iwvelando/billing-forecast/pkg/datetime"
	"github.com/iwvelando/billing-forecast/pkg/domain"
	"github.com/iwvelando/billing-forecast/pkg/output"
	"github.com/iwvelando/billing-forecast/pkg/rules"
)

//go:embed static/*
var staticFiles embed.FS

// Defaults are the run parameters used when a request leaves them unset.
type Defaults struct {
	Rules   rules.BusinessRules
	Mode    domain.BillingMode
	Segment domain.Segment
	Workers int
	// Lookup backfills lead times and payment terms from client history. It
	// may be nil.
	Lookup normalize.ClientLookup
}

func (d Defaults) withFallbacks() Defaults {
	if d.Rules.StageSplitNoPIA == nil {
		d.Rules = rules.Default()
	}
	if d.Mode == "" {
		d.Mode = domain.ModeContable
	}
	if d.Segment == "" {
		d.Segment = domain.SegmentAll
	}
	if d.Workers < 1 {
		d.Workers = 1
	}
	return d
}

type handler struct {
	logger     *zap.Logger
	limits     Limits
	version    string
	defaults   Defaults
	session    *forecast.Session
	normalizer *normalize.Normalizer
}

// NewHandler constructs the HTTP handler that serves the web UI and forecast API.
// All requests share one forecast session, so each response can be compared
// with the run before it.
func NewHandler(logger *zap.Logger, limits Limits, version string, defaults Defaults) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{
		logger:     logger,
		limits:     limits.withFallbacks(),
		version:    trimmedVersion,
		defaults:   defaults.withFallbacks(),
		session:    forecast.NewSession(logger, nil),
		normalizer: normalize.New(logger, defaults.Lookup),
	}

	mux := http.NewServeMux()

	// Forecast from a JSON payload
	mux.HandleFunc("/api/forecast", h.handleForecast)

	// Forecast from an uploaded opportunity file
	mux.HandleFunc("/api/forecast/upload", h.handleUpload)

	mux.HandleFunc("/api/rules", h.handleRules)
	mux.HandleFunc("/api/version", h.handleVersion)

	// Static assets (web UI)
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(fmt.Sprintf("failed to prepare embedded static files: %v", err))
	}
	fileServer := http.FileServer(http.FS(sub))
	mux.Handle("/", fileServer)

	return mux
}

type forecastRequest struct {
	Opportunities []config.OpportunityRecord `json:"opportunities"`
	Rules         *rules.Settings            `json:"rules,omitempty"`
	Mode          string                     `json:"billingMode,omitempty"`
	Segment       string                     `json:"segment,omitempty"`
	Today         string                     `json:"today,omitempty"`
}

type forecastResponse struct {
	output.Report
	CSV      string   `json:"csv"`
	Warnings []string `json:"warnings,omitempty"`
	Duration string   `json:"duration"`
}

// requestError carries the HTTP status a failed run maps to.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...interface{}) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func (h *handler) handleForecast(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleForecast"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.limits.MaxUploadSize))

	var req forecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request exceeds limit of %s", h.limits.MaxUploadSize), op)
			return
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err), op)
		return
	}

	h.runForecast(w, r, req, start, op)
}

func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleUpload"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.limits.MaxUploadSize))
	if err := r.ParseMultipartForm(int64(h.limits.MaxUploadSize)); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds limit of %s", h.limits.MaxUploadSize), op)
			return
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to parse upload: %v", err), op)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, "missing opportunities file", op)
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			h.logger.Warn("failed to close uploaded file",
				zap.String("op", op),
				zap.Error(closeErr),
			)
		}
	}()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to read opportunities: %v", err), op)
		return
	}

	records, err := config.DecodeOpportunities(buf.Bytes(), config.DetectFormat(header.Filename))
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("error reading opportunities, %v", err), op)
		return
	}

	req := forecastRequest{
		Opportunities: records,
		Mode:          r.FormValue("billingMode"),
		Segment:       r.FormValue("segment"),
		Today:         r.FormValue("today"),
	}
	h.runForecast(w, r, req, start, op)
}

func (h *handler) handleRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, rules.SettingsFrom(h.defaults.Rules))
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

func (h *handler) params(req forecastRequest) (forecast.Params, error) {
	p := forecast.Params{
		Rules:   h.defaults.Rules,
		Mode:    h.defaults.Mode,
		Segment: h.defaults.Segment,
		Workers: h.defaults.Workers,
	}

	if req.Rules != nil {
		r, err := req.Rules.Apply(h.defaults.Rules)
		if err != nil {
			return p, badRequest("%v", err)
		}
		if err := r.Validate(); err != nil {
			return p, badRequest("%v", err)
		}
		p.Rules = r
	}
	if strings.TrimSpace(req.Mode) != "" {
		mode, err := domain.ParseBillingMode(req.Mode)
		if err != nil {
			return p, badRequest("%v", err)
		}
		p.Mode = mode
	}
	if strings.TrimSpace(req.Segment) != "" {
		segment, err := domain.ParseSegment(req.Segment)
		if err != nil {
			return p, badRequest("%v", err)
		}
		p.Segment = segment
	}
	if today := strings.TrimSpace(req.Today); today != "" {
		t, err := datetime.ParseDate(today)
		if err != nil {
			return p, badRequest("invalid today %q: %v", req.Today, err)
		}
		p.Today = t
	}
	return p, nil
}

func (h *handler) runForecast(w http.ResponseWriter, r *http.Request, req forecastRequest, start time.Time, op string) {
	if n := len(req.Opportunities); n > h.limits.MaxOpportunities {
		h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request carries %d opportunities, limit is %d", n, h.limits.MaxOpportunities), op)
		return
	}

	p, err := h.params(req)
	if err != nil {
		h.respondRunError(w, err, op)
		return
	}

	records, report, err := h.normalizer.Backfill(r.Context(), req.Opportunities)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to normalize opportunities: %v", err), op)
		return
	}
	warnings := append([]string(nil), report.Warnings...)

	opps, convErrs := adapters.RecordsToOpportunities(records)
	p.Unreadable = forecast.RejectedInputs(convErrs)

	run, previous, err := h.session.Run(r.Context(), opps, p)
	if err != nil {
		if errors.Is(err, rules.ErrInvalidRules) {
			h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
			return
		}
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to compute forecast: %v", err), op)
		return
	}

	rep := output.NewReport(run)
	if previous != nil {
		rep = rep.WithComparison(forecast.Compare(run, previous))
	}

	csvData, err := output.CsvString(rep)
	if err != nil {
		h.logger.Warn("failed to render CSV",
			zap.String("op", op),
			zap.Error(err),
		)
	}

	elapsed := time.Since(start)
	response := forecastResponse{
		Report:   rep,
		CSV:      csvData,
		Warnings: warnings,
		Duration: elapsed.String(),
	}

	h.logger.Info("forecast computed",
		zap.String("op", op),
		zap.String("run", run.ID),
		zap.Uint64("generation", run.Generation),
		zap.Int("events", run.Summary.EventCount),
		zap.Duration("duration", elapsed),
	)

	h.writeJSON(w, http.StatusOK, response)
}

func (h *handler) respondRunError(w http.ResponseWriter, err error, op string) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		h.respondErrorWithOp(w, reqErr.status, reqErr.msg, op)
		return
	}
	h.respondErrorWithOp(w, http.StatusInternalServerError, err.Error(), op)
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("forecast request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
