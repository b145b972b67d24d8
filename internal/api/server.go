// Package api exposes the reroute operations over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/reroute/internal/app"
	"github.com/sells-group/reroute/internal/events"
	"github.com/sells-group/reroute/internal/model"
	"github.com/sells-group/reroute/internal/optimizer"
	"github.com/sells-group/reroute/internal/policy"
	"github.com/sells-group/reroute/internal/store"
)

// NewRouter builds the HTTP handler for a.
func NewRouter(a *app.App, allowedOrigins []string) http.Handler {
	h := &handlers{app: a}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/assess", h.assess)
		r.Post("/predict", h.predict)
		r.Post("/optimize", h.optimize)
		r.Post("/monitor", h.monitor)
		r.Post("/execute", h.execute)

		r.Get("/assessments", h.listAssessments)
		r.Get("/optimizations/{id}", h.getOptimization)
		r.Get("/events", h.listEvents)

		r.Route("/actions", func(r chi.Router) {
			r.Get("/", h.listActions)
			r.Get("/{id}", h.getAction)
			r.Post("/{id}/approve", h.approve)
			r.Post("/{id}/reject", h.reject)
			r.Post("/{id}/execute", h.executeAction)
		})
	})
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type handlers struct {
	app *app.App
}

type routeRequest struct {
	ShipmentID  string   `json:"shipment_id"`
	RouteID     string   `json:"route_id"`
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	Waypoints   []string `json:"waypoints"`
	Regions     []string `json:"route_regions"`
}

func (r routeRequest) input() app.RouteInput {
	return app.RouteInput{
		ShipmentID:  r.ShipmentID,
		RouteID:     r.RouteID,
		Origin:      r.Origin,
		Destination: r.Destination,
		Waypoints:   r.Waypoints,
		Regions:     r.Regions,
	}
}

type optimizeRequest struct {
	Origin             string             `json:"origin"`
	Destination        string             `json:"destination"`
	Priority           string             `json:"priority"`
	CustomWeights      map[string]float64 `json:"custom_weights"`
	MaxAlternatives    int                `json:"max_alternatives"`
	IncludePredictions *bool              `json:"include_predictions"`
	ShipmentID         string             `json:"shipment_id"`
}

type monitorRequest struct {
	ShipmentID  string   `json:"shipment_id"`
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	Regions     []string `json:"route_regions"`
	Mode        string   `json:"execution_mode"`
}

type executeRequest struct {
	ShipmentID  string   `json:"shipment_id"`
	NewRouteID  string   `json:"new_route_id"`
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	Regions     []string `json:"route_regions"`
	Reason      string   `json:"reason"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) assess(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !decode(w, r, &req) || !requireRoute(w, req.Origin, req.Destination) {
		return
	}
	writeJSON(w, http.StatusOK, h.app.AssessRoute(r.Context(), req.input()))
}

func (h *handlers) predict(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !decode(w, r, &req) || !requireRoute(w, req.Origin, req.Destination) {
		return
	}
	writeJSON(w, http.StatusOK, h.app.PredictRoute(r.Context(), req.input()))
}

func (h *handlers) optimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if !decode(w, r, &req) || !requireRoute(w, req.Origin, req.Destination) {
		return
	}
	priority, err := model.ParsePriority(req.Priority)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.app.OptimizeRoute(r.Context(), optimizer.Request{
		Origin:             req.Origin,
		Destination:        req.Destination,
		Priority:           priority,
		CustomWeights:      req.CustomWeights,
		MaxAlternatives:    req.MaxAlternatives,
		IncludePredictions: req.IncludePredictions,
		ShipmentID:         req.ShipmentID,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) monitor(w http.ResponseWriter, r *http.Request) {
	var req monitorRequest
	if !decode(w, r, &req) || !requireRoute(w, req.Origin, req.Destination) {
		return
	}
	if req.ShipmentID == "" {
		writeError(w, http.StatusBadRequest, "shipment_id is required")
		return
	}
	var mode model.ExecutionMode
	if req.Mode != "" {
		m, err := model.ParseExecutionMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = m
	}
	action, err := h.app.Policy.Monitor(r.Context(), req.ShipmentID, req.Origin, req.Destination, req.Regions, mode)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"action": action})
}

func (h *handlers) execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decode(w, r, &req) || !requireRoute(w, req.Origin, req.Destination) {
		return
	}
	if req.ShipmentID == "" || req.NewRouteID == "" {
		writeError(w, http.StatusBadRequest, "shipment_id and new_route_id are required")
		return
	}
	res := h.app.Policy.ExecuteReroute(r.Context(), policy.RerouteRequest{
		ShipmentID:  req.ShipmentID,
		NewRouteID:  req.NewRouteID,
		Origin:      req.Origin,
		Destination: req.Destination,
		Regions:     req.Regions,
		Reason:      req.Reason,
	})
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) listAssessments(w http.ResponseWriter, r *http.Request) {
	st, ok := h.store(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	recs, err := st.ListAssessments(r.Context(), store.AssessmentFilter{
		RouteID:    q.Get("route_id"),
		ShipmentID: q.Get("shipment_id"),
		Limit:      intParam(q.Get("limit")),
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handlers) getOptimization(w http.ResponseWriter, r *http.Request) {
	st, ok := h.store(w)
	if !ok {
		return
	}
	res, err := st.GetOptimization(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	st, ok := h.store(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := events.Filter{
		ShipmentID: q.Get("shipment_id"),
		RouteID:    q.Get("route_id"),
		Limit:      intParam(q.Get("limit")),
	}
	if c := q.Get("category"); c != "" {
		cat, err := events.ParseCategory(c)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Category = cat
	}
	if l := q.Get("level"); l != "" {
		lvl, err := events.ParseLevel(l)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Level = lvl
	}
	evs, err := st.ListEvents(r.Context(), f)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func (h *handlers) listActions(w http.ResponseWriter, r *http.Request) {
	st, ok := h.store(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := store.ActionFilter{ShipmentID: q.Get("shipment_id"), Limit: intParam(q.Get("limit"))}
	if s := q.Get("status"); s != "" {
		status, err := model.ParseExecutionStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = status
	}
	actions, err := st.ListActions(r.Context(), f)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

func (h *handlers) getAction(w http.ResponseWriter, r *http.Request) {
	st, ok := h.store(w)
	if !ok {
		return
	}
	a, err := st.GetAction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handlers) approve(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.store(w); !ok {
		return
	}
	a, err := h.app.Policy.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handlers) reject(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.store(w); !ok {
		return
	}
	a, err := h.app.Policy.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handlers) executeAction(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.store(w); !ok {
		return
	}
	res, err := h.app.Policy.ExecuteByID(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("by"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) store(w http.ResponseWriter) (store.Store, bool) {
	st, err := h.app.RequireStore()
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return st, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func requireRoute(w http.ResponseWriter, origin, destination string) bool {
	if origin == "" || destination == "" {
		writeError(w, http.StatusBadRequest, "origin and destination are required")
		return false
	}
	return true
}

func intParam(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// writeErr maps domain errors to HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrIllegalTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, optimizer.ErrInvalidWeights):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNoStore):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		zap.L().Error("api: request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}
