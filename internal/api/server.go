// Package api provides the HTTP API for observing a running world.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/sosim/internal/agents"
	"github.com/talgya/sosim/internal/engine"
	"github.com/talgya/sosim/internal/geo"
	"github.com/talgya/sosim/internal/metrics"
	"github.com/talgya/sosim/internal/model"
	"github.com/talgya/sosim/internal/persistence"
	"github.com/talgya/sosim/internal/social"
	"github.com/talgya/sosim/internal/world"
)

// maxStepTicks bounds a single admin step request.
const maxStepTicks = 10000

// Server serves the world state over HTTP.
type Server struct {
	Eng      *engine.Engine
	DB       *persistence.DB    // Optional. Events come from Recent when nil.
	Recent   *engine.MemorySink // Optional in-memory event window
	Hub      *Hub               // Optional websocket stream
	Metrics  *metrics.Collector // Optional /metrics
	Addr     string
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// CORSOrigins are allowed in addition to the local dev servers.
	CORSOrigins []string

	// EventsPerMinute limits /api/v1/events per client (0 = 120).
	EventsPerMinute int
}

func (s *Server) world() *world.World { return s.Eng.World }

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	rate := s.EventsPerMinute
	if rate <= 0 {
		rate = 120
	}
	eventsLimiter := NewRateLimiter(rate, time.Minute)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/objects", s.handleObjects)
	mux.HandleFunc("GET /api/v1/object/{id}", s.handleObject)
	mux.HandleFunc("GET /api/v1/events", RateLimitMiddleware(eventsLimiter, s.handleEvents))
	mux.HandleFunc("GET /api/v1/diagnostics", s.handleDiagnostics)
	if s.Hub != nil {
		mux.Handle("GET /api/v1/stream", s.Hub)
	}
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}

	mux.HandleFunc("POST /api/v1/step", s.adminOnly(s.handleStep))

	return corsMiddleware(s.CORSOrigins, mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "", "stream", s.Hub != nil)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func corsMiddleware(extra []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range extra {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && token == s.AdminKey
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no admin key set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	wd := s.world()
	writeJSON(w, map[string]any{
		"id":        wd.ID(),
		"name":      wd.Name(),
		"tick":      s.Eng.CurrentTick(),
		"last_tick": wd.LastTick(),
		"counts":    wd.Stats(),
		"totals":    s.Eng.Stats(),
	})
}

type objectSummary struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Activated bool   `json:"activated"`
	OwnerID   string `json:"owner_id,omitempty"`
}

func summarize(n model.Node) objectSummary {
	s := objectSummary{
		ID:        n.ID(),
		Kind:      n.Kind().String(),
		Name:      n.Name(),
		Activated: n.Lifecycle().Activated,
	}
	switch v := n.(type) {
	case *agents.Agent:
		s.OwnerID = v.OwnerID
	case *social.Organization:
		s.OwnerID = v.ParentID
	}
	return s
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	objs := s.world().AllObjects()
	result := make([]objectSummary, 0, len(objs))
	for _, n := range objs {
		result = append(result, summarize(n))
	}
	writeJSON(w, result)
}

type capabilitySummary struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Kind    string        `json:"kind"`
	Profile model.Profile `json:"profile"`
}

type agentDetail struct {
	objectSummary
	Role         string              `json:"role"`
	Location     []geo.Coord         `json:"location,omitempty"`
	State        []geo.Coord         `json:"state,omitempty"`
	Capabilities []capabilitySummary `json:"capabilities"`
	Pending      int                 `json:"pending_messages"`
	Inbox        int                 `json:"inbox"`
}

type containerDetail struct {
	objectSummary
	Members          []objectSummary `json:"members"`
	SubOrganizations []objectSummary `json:"sub_organizations,omitempty"`
	Type             string          `json:"type,omitempty"`
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wd := s.world()

	n, ok := wd.GetByID(id)
	if !ok {
		http.Error(w, "object not found", http.StatusNotFound)
		return
	}

	switch {
	case n.Kind() == model.KindAgent:
		a, _ := wd.Agent(id)
		writeJSON(w, describeAgent(a))
	case n.Kind().IsContainer():
		c, _ := wd.Container(id)
		writeJSON(w, describeContainer(c))
	default:
		writeJSON(w, summarize(n))
	}
}

func describeAgent(a *agents.Agent) agentDetail {
	d := agentDetail{
		objectSummary: summarize(a),
		Role:          a.Role.String(),
		Capabilities:  []capabilitySummary{},
		Inbox:         len(a.Inbox()),
	}
	if loc := a.CurrentLocation(); loc != nil {
		d.Location = loc.Coords()
	}
	for _, v := range a.StateVars() {
		d.State = append(d.State, geo.Coord{ID: v.ID, Value: v.Value})
	}
	for _, c := range a.Capabilities() {
		d.Capabilities = append(d.Capabilities, capabilitySummary{
			ID:      c.ID(),
			Name:    c.Name(),
			Kind:    c.Kind().String(),
			Profile: c.Profile(),
		})
	}
	if mb := a.Mailbox(); mb != nil {
		d.Pending = mb.Len()
	}
	return d
}

func describeContainer(c social.Container) containerDetail {
	d := containerDetail{objectSummary: summarize(c), Members: []objectSummary{}}
	for _, m := range c.DirectMembers() {
		d.Members = append(d.Members, summarize(m))
	}
	switch v := c.(type) {
	case *social.Organization:
		for _, sub := range v.SubOrganizations() {
			d.SubOrganizations = append(d.SubOrganizations, summarize(sub))
		}
	case *social.Infrastructure:
		d.Type = v.Type.String()
	}
	return d
}

func queryInt(r *http.Request, key string, def, lo, hi int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= lo && n <= hi {
			return n
		}
	}
	return def
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1, 500)
	tick := queryInt(r, "tick", 0, 1, math.MaxInt)
	subject := r.URL.Query().Get("subject")

	events, err := s.events(limit, tick, subject)
	if err != nil {
		slog.Error("events query failed", "error", err)
		http.Error(w, "events unavailable", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.LogEvent{}
	}
	writeJSON(w, events)
}

// events returns up to limit events, newest last. tick and subject filter
// when set.
func (s *Server) events(limit, tick int, subject string) ([]model.LogEvent, error) {
	if s.DB != nil {
		switch {
		case tick > 0:
			return s.DB.EventsForTick(tick)
		case subject != "":
			return reversed(s.DB.EventsForSubject(subject, limit))
		default:
			return reversed(s.DB.RecentEvents(limit))
		}
	}
	if s.Recent == nil {
		return nil, nil
	}

	var out []model.LogEvent
	for _, ev := range s.Recent.Events() {
		if tick > 0 && ev.Tick != tick {
			continue
		}
		if subject != "" && ev.SubjectID != subject {
			continue
		}
		out = append(out, ev)
	}
	if tick == 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// reversed flips a newest-first query into stream order.
func reversed(events []model.LogEvent, err error) ([]model.LogEvent, error) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, err
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1, 500)
	var diags []model.Diagnostic
	switch {
	case s.DB != nil:
		var err error
		if diags, err = s.DB.RecentDiagnostics(limit); err != nil {
			slog.Error("diagnostics query failed", "error", err)
			http.Error(w, "diagnostics unavailable", http.StatusInternalServerError)
			return
		}
	case s.Recent != nil:
		diags = s.Recent.Diagnostics()
		if len(diags) > limit {
			diags = diags[len(diags)-limit:]
		}
	}
	if diags == nil {
		diags = []model.Diagnostic{}
	}
	writeJSON(w, diags)
}

type stepRequest struct {
	Ticks int `json:"ticks"`
}

type stepResponse struct {
	Tick        int `json:"tick"`
	Events      int `json:"events"`
	Diagnostics int `json:"diagnostics"`
}

// handleStep advances the engine. This endpoint is the external tick source
// when the server runs without its own loop.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	req := stepRequest{Ticks: 1}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	if req.Ticks < 1 || req.Ticks > maxStepTicks {
		http.Error(w, "ticks must be between 1 and "+strconv.Itoa(maxStepTicks), http.StatusBadRequest)
		return
	}

	var resp stepResponse
	var sinkErr error
	for i := 0; i < req.Ticks; i++ {
		if err := r.Context().Err(); err != nil {
			break
		}
		ur, err := s.Eng.Step(r.Context())
		resp.Events += len(ur.Events)
		resp.Diagnostics += len(ur.Diagnostics)
		if err != nil {
			sinkErr = err
		}
	}
	resp.Tick = s.Eng.CurrentTick()
	if sinkErr != nil {
		slog.Warn("step completed with sink errors", "tick", resp.Tick, "error", sinkErr)
	}
	slog.Info("admin step", "ticks", req.Ticks, "tick", resp.Tick, "events", resp.Events)
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
