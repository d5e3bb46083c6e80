// Package server exposes a session over HTTP: clients load and unload
// datasets, change the parameter selection, and fetch comparisons, window
// files and geometry plots.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kronigert/timsCompare/internal/export"
	"github.com/kronigert/timsCompare/internal/logging"
	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/plot"
	"github.com/kronigert/timsCompare/internal/session"
)

// Handler serves the API for one session.
type Handler struct {
	Session *session.Session
	Log     *zap.Logger
}

// NewHandler creates a handler for s.
func NewHandler(s *session.Session, log *zap.Logger) *Handler {
	return &Handler{Session: s, Log: logging.OrNop(log)}
}

// NewRouter builds the router with logging, recovery and CORS middleware.
func NewRouter(h *Handler, allowedOrigins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/datasets", h.ListDatasets)
		r.Post("/datasets", h.LoadDatasets)
		r.Get("/datasets/{id}", h.GetDataset)
		r.Delete("/datasets/{id}", h.UnloadDataset)
		r.Post("/datasets/{id}/reload", h.ReloadDataset)
		r.Get("/datasets/{id}/report", h.DatasetReport)
		r.Get("/datasets/{id}/segments/{index}/windows", h.SegmentWindows)
		r.Get("/datasets/{id}/segments/{index}/plot.svg", h.SegmentPlot(plot.SVG))
		r.Get("/datasets/{id}/segments/{index}/plot.png", h.SegmentPlot(plot.PNG))

		r.Get("/selection", h.GetSelection)
		r.Put("/selection", h.PutSelection)

		r.Get("/comparison", h.Comparison)
	})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.Log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotLoaded):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrAlreadyLoaded):
		status = http.StatusConflict
	case errors.Is(err, method.ErrUnsupportedMethod), errors.Is(err, method.ErrCorruptMethod):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, method.ErrSegmentOutOfRange), errors.Is(err, export.ErrNoGeometry), errors.Is(err, plot.ErrNothingToPlot):
		status = http.StatusNotFound
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// DatasetInfo is the JSON summary of a loaded dataset.
type DatasetInfo struct {
	ID        string        `json:"id"`
	Path      string        `json:"path"`
	Name      string        `json:"name"`
	Mode      string        `json:"mode"`
	Workflows []string      `json:"workflows"`
	LoadedAt  time.Time     `json:"loaded_at"`
	Segments  []SegmentInfo `json:"segments"`
	Warnings  []string      `json:"warnings,omitempty"`
}

// SegmentInfo summarizes one segment.
type SegmentInfo struct {
	Index       int     `json:"index"`
	Start       float64 `json:"start_min"`
	End         float64 `json:"end_min"`
	OpenEnd     bool    `json:"open_end"`
	Mode        string  `json:"mode"`
	Workflow    string  `json:"workflow,omitempty"`
	Calibration bool    `json:"calibration,omitempty"`
	Geometry    bool    `json:"geometry"`
}

func info(e *session.Entry) DatasetInfo {
	ds := e.Dataset
	out := DatasetInfo{
		ID:        e.ID,
		Path:      e.Path,
		Name:      ds.Name(),
		Mode:      ds.Mode().String(),
		Workflows: ds.Workflows(),
		LoadedAt:  e.LoadedAt,
	}
	for _, s := range ds.Segments() {
		out.Segments = append(out.Segments, SegmentInfo{
			Index:       s.Index(),
			Start:       s.Start(),
			End:         s.End(),
			OpenEnd:     s.OpenEnd(),
			Mode:        s.Mode().String(),
			Workflow:    s.Workflow(),
			Calibration: s.Calibration(),
			Geometry:    s.HasGeometry(),
		})
	}
	for _, w := range ds.Warnings() {
		out.Warnings = append(out.Warnings, w.Error())
	}
	return out
}

// ListDatasets returns every loaded dataset in load order.
func (h *Handler) ListDatasets(w http.ResponseWriter, _ *http.Request) {
	out := []DatasetInfo{}
	for _, e := range h.Session.Entries() {
		out = append(out, info(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// LoadRequest names directories to load. Path and Paths may be combined.
type LoadRequest struct {
	Path  string   `json:"path"`
	Paths []string `json:"paths"`
}

// LoadResult is the per-path outcome of a load request.
type LoadResult struct {
	Path    string       `json:"path"`
	Dataset *DatasetInfo `json:"dataset,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// LoadDatasets loads one or more directories. Each path is reported on its
// own; the response is 201 when at least one load succeeded.
func (h *Handler) LoadDatasets(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error()})
		return
	}
	paths := req.Paths
	if req.Path != "" {
		paths = append([]string{req.Path}, paths...)
	}
	if len(paths) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "no path given"})
		return
	}

	results := h.Session.LoadAll(r.Context(), paths)
	out := make([]LoadResult, len(results))
	status := http.StatusUnprocessableEntity
	for i, res := range results {
		out[i] = LoadResult{Path: res.Path}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
			continue
		}
		di := info(res.Entry)
		out[i].Dataset = &di
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}

func (h *Handler) entry(w http.ResponseWriter, r *http.Request) (*session.Entry, bool) {
	e, err := h.Session.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return e, true
}

// GetDataset returns one dataset summary.
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	if e, ok := h.entry(w, r); ok {
		writeJSON(w, http.StatusOK, info(e))
	}
}

// UnloadDataset removes a dataset from the session.
func (h *Handler) UnloadDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Unload(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReloadDataset re-reads a dataset from disk.
func (h *Handler) ReloadDataset(w http.ResponseWriter, r *http.Request) {
	e, err := h.Session.Reload(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info(e))
}

// DatasetReport writes the per-dataset CSV report over the current selection.
func (h *Handler) DatasetReport(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", strings.TrimSuffix(e.Dataset.Name(), ".d")+"_report.csv"))
	if err := export.WriteDatasetCSV(w, e.Dataset, h.Session.Selection(), nil); err != nil {
		h.Log.Warn("writing report", zap.String("dataset", e.ID), zap.Error(err))
	}
}

func (h *Handler) segment(w http.ResponseWriter, r *http.Request) (*session.Entry, *method.Segment, bool) {
	e, ok := h.entry(w, r)
	if !ok {
		return nil, nil, false
	}
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "segment index must be an integer"})
		return nil, nil, false
	}
	seg, err := e.Dataset.Segment(idx)
	if err != nil {
		writeError(w, err)
		return nil, nil, false
	}
	return e, seg, true
}

// SegmentWindows returns the window text file of a segment.
func (h *Handler) SegmentWindows(w http.ResponseWriter, r *http.Request) {
	e, seg, ok := h.segment(w, r)
	if !ok {
		return
	}
	geo := seg.Geometry()
	if geo == nil {
		writeError(w, export.ErrNoGeometry)
		return
	}
	name := export.WindowsFileName(e.Dataset.Name(), seg.Index(), seg.Mode())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := export.WriteWindows(w, seg.Mode(), geo); err != nil {
		h.Log.Warn("writing windows", zap.String("dataset", e.ID), zap.Error(err))
	}
}

// SegmentPlot renders the geometry of a segment in format.
func (h *Handler) SegmentPlot(format plot.Format) http.HandlerFunc {
	contentType := "image/svg+xml"
	if format == plot.PNG {
		contentType = "image/png"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		e, seg, ok := h.segment(w, r)
		if !ok {
			return
		}
		geo := seg.Geometry()
		if geo == nil || geo.Empty() {
			writeError(w, plot.ErrNothingToPlot)
			return
		}
		title := fmt.Sprintf("%s segment %d (%s)", e.Dataset.Name(), seg.Index()+1, seg.Mode())
		w.Header().Set("Content-Type", contentType)
		if err := plot.Render(w, format, geo, plot.Options{Title: title, Bounds: seg.Bounds()}); err != nil {
			h.Log.Warn("rendering plot", zap.String("dataset", e.ID), zap.Error(err))
		}
	}
}

// Selection is the body of the selection endpoints.
type Selection struct {
	Keys []string `json:"keys"`
}

// GetSelection returns the effective parameter selection.
func (h *Handler) GetSelection(w http.ResponseWriter, _ *http.Request) {
	keys := h.Session.Selection()
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, Selection{Keys: keys})
}

// PutSelection replaces the selection. An empty list restores the default view.
func (h *Handler) PutSelection(w http.ResponseWriter, r *http.Request) {
	var sel Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error()})
		return
	}
	h.Session.SetSelection(sel.Keys)
	h.GetSelection(w, r)
}

// Comparison returns the comparison report. only_diffs=true keeps only
// differing rows; format=csv|parquet switches the encoding from JSON.
func (h *Handler) Comparison(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	only := false
	if v := q.Get("only_diffs"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "only_diffs must be a boolean"})
			return
		}
		only = b
	}
	format := q.Get("format")
	if format == "" {
		format = export.FormatJSON
	}
	switch format {
	case export.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case export.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	case export.FormatParquet:
		w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("unknown format %q", format)})
		return
	}

	rep := export.NewReport(h.Session.Compare(only))
	if err := export.Write(w, format, rep); err != nil {
		h.Log.Warn("writing comparison", zap.Error(err))
	}
}
