package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/sosim/internal/agents"
	"github.com/talgya/sosim/internal/engine"
	"github.com/talgya/sosim/internal/geo"
	"github.com/talgya/sosim/internal/metrics"
	"github.com/talgya/sosim/internal/model"
	"github.com/talgya/sosim/internal/social"
	"github.com/talgya/sosim/internal/world"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	w := world.New("sos", "SoS")
	m := geo.NewMap("m", "Map", 8, 8)
	w.Map = m

	start, err := m.NewLocation(0, 0)
	require.NoError(t, err)
	walker := agents.NewAgent("walker", "Walker", agents.RoleConstituent,
		agents.WithLocation(start), agents.WithMovePolicy(agents.FirstMovePolicy{}))
	require.NoError(t, walker.AddCapability(agents.NewMoveAction("east", "East", map[string]int{"x": 1})))

	org := social.NewOrganization("rescue", "Rescue")
	sub := social.NewOrganization("medics", "Medics")
	require.NoError(t, org.AddSubOrganization(sub))
	require.NoError(t, org.AddMember(walker))
	require.NoError(t, w.AddOrganization(org))

	infra := social.NewInfrastructure("radio", "Radio", social.InfraCommunication)
	require.NoError(t, infra.AddMember(agents.NewAgent("tower", "Tower", agents.RoleSystemEntity)))
	require.NoError(t, w.AddInfrastructure(infra))

	eng := engine.NewEngine(w)
	recent := engine.NewMemorySink(100)
	eng.AddSink(recent)

	return &Server{Eng: eng, Recent: recent, AdminKey: "secret"}
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func step(h http.Handler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/step", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusAndObjects(t *testing.T) {
	s := testServer(t)
	h := s.Handler()

	var status struct {
		ID     string      `json:"id"`
		Tick   int         `json:"tick"`
		Counts world.Stats `json:"counts"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/status", &status))
	assert.Equal(t, "sos", status.ID)
	assert.Equal(t, 0, status.Tick)
	assert.Equal(t, world.Stats{Organizations: 2, Infrastructures: 1, Agents: 2}, status.Counts)

	var objs []objectSummary
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/objects", &objs))
	ids := make([]string, 0, len(objs))
	for _, o := range objs {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"rescue", "walker", "medics", "radio"}, ids)
	assert.Equal(t, "rescue", objs[2].OwnerID)
}

func TestObjectDetail(t *testing.T) {
	h := testServer(t).Handler()

	var a agentDetail
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/object/walker", &a))
	assert.Equal(t, "agent", a.Kind)
	assert.Equal(t, "constituent", a.Role)
	assert.Equal(t, []geo.Coord{{ID: "x", Value: 0}, {ID: "y", Value: 0}}, a.Location)
	require.Len(t, a.Capabilities, 1)
	assert.Equal(t, "move", a.Capabilities[0].Kind)

	var c containerDetail
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/object/rescue", &c))
	require.Len(t, c.Members, 1)
	assert.Equal(t, "walker", c.Members[0].ID)
	require.Len(t, c.SubOrganizations, 1)
	assert.Equal(t, "medics", c.SubOrganizations[0].ID)

	var infra containerDetail
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/object/radio", &infra))
	assert.Equal(t, "communication", infra.Type)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/object/ghost", nil))
}

func TestStepRequiresAdminKey(t *testing.T) {
	s := testServer(t)
	h := s.Handler()

	assert.Equal(t, http.StatusUnauthorized, step(h, "", `{"ticks":1}`).Code)
	assert.Equal(t, http.StatusUnauthorized, step(h, "wrong", `{"ticks":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, step(h, "secret", `{"ticks":0}`).Code)
	assert.Equal(t, 0, s.Eng.CurrentTick())

	s.AdminKey = ""
	assert.Equal(t, http.StatusForbidden, step(s.Handler(), "", `{"ticks":1}`).Code)
}

func TestStepAndEvents(t *testing.T) {
	s := testServer(t)
	h := s.Handler()

	rec := step(h, "secret", `{"ticks":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp stepResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, stepResponse{Tick: 3, Events: 3}, resp)

	var events []model.LogEvent
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/events?limit=2", &events))
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[0].Tick)
	assert.Equal(t, 3, events[1].Tick)

	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/events?tick=1", &events))
	require.Len(t, events, 1)
	assert.Equal(t, model.EventLocationChange, events[0].Type)

	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/events?subject=tower", &events))
	assert.Empty(t, events)
}

func TestEventsRateLimited(t *testing.T) {
	s := testServer(t)
	s.EventsPerMinute = 2
	h := s.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/events", nil))
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/events", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))
	assert.Equal(t, 60, rl.RetryAfter("1.2.3.4"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("1.2.3.4"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(r))
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer(t)
	s.Metrics = metrics.New()
	s.Eng.AddSink(s.Metrics)
	h := s.Handler()

	require.Equal(t, http.StatusOK, step(h, "secret", `{"ticks":2}`).Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sosim_ticks_total 2")
}

func TestStreamDeliversTicks(t *testing.T) {
	s := testServer(t)
	s.Hub = NewHub()
	s.Eng.AddSink(s.Hub)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = s.Eng.Step(t.Context())
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame TickFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, 1, frame.Tick)
	require.Len(t, frame.Events, 1)
	assert.Equal(t, "walker", frame.Events[0].SubjectID)

	conn.Close()
	require.Eventually(t, func() bool { return s.Hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubDropsForSlowClients(t *testing.T) {
	h := NewHub()
	_, ch := h.subscribe()

	for i := 1; i <= streamBuffer+3; i++ {
		require.NoError(t, h.Record(i, model.UpdateResult{}))
	}
	assert.Len(t, ch, streamBuffer)
	assert.Equal(t, uint64(3), h.Dropped())
}
