package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/action"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/control"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/events"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/pipeline"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/policy"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/safety"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/tenant"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/testutil"
)

const (
	testSigningKey = "0123456789abcdef0123456789abcdef"
	acmeKey        = "key-acme"
	globexKey      = "key-globex"
	adminKey       = "admin-secret"
)

func newTestServer(t *testing.T, opts ...Option) (http.Handler, *pipeline.Runtime) {
	t.Helper()
	rt, err := pipeline.Assemble(context.Background(), pipeline.Components{
		Tenants: []tenant.Settings{
			{ID: "acme", Brand: "Acme", APIKeys: []string{acmeKey}},
			{ID: "globex", Brand: "Globex", APIKeys: []string{globexKey}},
		},
		Events:     events.NewMemoryStore(),
		SigningKey: testSigningKey,
		Provider:   &testutil.MockProvider{ProviderName: "mock", Content: "They're both from the spring line."},
	})
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return NewServer(rt, opts...).Routes(), rt
}

func do(t *testing.T, h http.Handler, method, path, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-Engage-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func engageBody(text string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"version": "v1",
		"channel": "comment",
		"query":   text,
		"context": map[string]interface{}{
			"event": map[string]interface{}{
				"platform":   "tiktok",
				"video_id":   "v1",
				"author_id":  "jess",
				"comment_id": "c-" + text,
				"account_id": "acct-1",
			},
		},
	})
	return string(b)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t, WithVersion("1.2.3"))

	rec := do(t, h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var out map[string]interface{}
	decode(t, rec, &out)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "1.2.3", out["version"])
	assert.Nil(t, out["components"])
}

func TestHealthDetail(t *testing.T) {
	h, rt := newTestServer(t)
	rt.Safety.KillSwitch().Set("youtube", true)

	rec := do(t, h, http.MethodGet, "/v1/health?detail=true", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var out map[string]interface{}
	decode(t, rec, &out)
	comp, _ := out["components"].(map[string]interface{})
	require.NotNil(t, comp)
	assert.Equal(t, "closed", comp["generation_breaker"])
	assert.Equal(t, "youtube", comp["kill_switch"])
}

func TestAuthMiddleware(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"unknown key", "X-Engage-Key", "nope", http.StatusUnauthorized},
		{"engage header", "X-Engage-Key", acmeKey, http.StatusOK},
		{"bearer", "Authorization", "Bearer " + acmeKey, http.StatusOK},
		{"admin key is not a tenant key", "X-Engage-Key", adminKey, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/actions", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestEngage_Answer(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/engage", acmeKey, engageBody("Foundation & concealer from???"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp pipeline.Response
	decode(t, rec, &resp)
	assert.Equal(t, pipeline.KindAnswer, resp.Kind)
	require.NotNil(t, resp.Payload)
	assert.Equal(t, policy.StrategyAnswer, resp.Payload.Strategy)
	assert.Equal(t, "They're both from the spring line.", resp.Payload.Text)
	assert.NotEmpty(t, resp.Telemetry.RequestID)
}

func TestEngage_Errors(t *testing.T) {
	h, _ := newTestServer(t)

	wrongTenant := strings.Replace(engageBody("where is this from?"), `"version"`, `"tenant_id":"globex","version"`, 1)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", "{", http.StatusBadRequest},
		{"schema violation", `{"version":"v1","channel":"comment","query":"hi"}`, http.StatusBadRequest},
		{"empty comment", engageBody(""), http.StatusBadRequest},
		{"wrong version", strings.Replace(engageBody("hi"), `"version":"v1"`, `"version":"v2"`, 1), http.StatusBadRequest},
		{"tenant mismatch", wrongTenant, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/engage", acmeKey, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

// queueEscalation posts a regret comment and returns the queued plan id.
func queueEscalation(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/v1/engage", acmeKey, engageBody("I regret buying this foundation, it broke me out"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp pipeline.Response
	decode(t, rec, &resp)
	require.Equal(t, pipeline.KindRecommend, resp.Kind)
	require.NotNil(t, resp.Payload.Plan)
	require.Equal(t, action.TypeEscalate, resp.Payload.Plan.ActionType)
	return resp.Payload.Plan.ID
}

func TestActions_ListAndGet(t *testing.T) {
	h, _ := newTestServer(t)
	id := queueEscalation(t, h)

	rec := do(t, h, http.MethodGet, "/v1/actions", acmeKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Actions []control.Action `json:"actions"`
		Count   int              `json:"count"`
	}
	decode(t, rec, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, id, list.Actions[0].Plan.ID)
	assert.Equal(t, control.StatusPending, list.Actions[0].Status)

	rec = do(t, h, http.MethodGet, "/v1/actions?status=approved", acmeKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	assert.Zero(t, list.Count)

	rec = do(t, h, http.MethodGet, "/v1/actions/"+id, acmeKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var a control.Action
	decode(t, rec, &a)
	assert.Equal(t, "acme", a.Plan.TenantID)

	t.Run("other tenant sees nothing", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/v1/actions/"+id, globexKey, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(t, h, http.MethodGet, "/v1/actions", globexKey, "")
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &list)
		assert.Zero(t, list.Count)
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/v1/actions/plan_missing", acmeKey, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestActions_DecisionLifecycle(t *testing.T) {
	h, _ := newTestServer(t)
	id := queueEscalation(t, h)
	path := "/v1/actions/" + id

	rec := do(t, h, http.MethodPost, path+"/decision", acmeKey, `{"decision":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, path+"/decision", acmeKey, `{"decision":"edit","message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, path+"/decision", globexKey, `{"decision":"approve"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, path+"/decision",
		strings.NewReader(`{"decision":"edit","message":"Sorry! DM us and we'll sort it."}`))
	req.Header.Set("X-Engage-Key", acmeKey)
	req.Header.Set("X-Engage-Reviewer", "sam")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var a control.Action
	decode(t, rec, &a)
	assert.Equal(t, control.StatusApproved, a.Status)
	assert.Equal(t, "Sorry! DM us and we'll sort it.", a.Plan.DraftMessage)
	require.NotNil(t, a.Decision)
	assert.Equal(t, "sam", a.Decision.Reviewer)

	rec = do(t, h, http.MethodPost, path+"/decision", acmeKey, `{"decision":"reject"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, path+"/executed", acmeKey, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &a)
	assert.Equal(t, control.StatusExecuted, a.Status)

	rec = do(t, h, http.MethodPost, path+"/executed", acmeKey, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/audit?plan_id="+id, acmeKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var audit struct {
		Entries []control.AuditEntry `json:"entries"`
	}
	decode(t, rec, &audit)
	require.Len(t, audit.Entries, 3)
	assert.Equal(t, control.EventQueued, audit.Entries[0].EventType)
	assert.Equal(t, control.EventDecision, audit.Entries[1].EventType)
	assert.Equal(t, "sam", audit.Entries[1].Details["reviewer"])
	assert.Equal(t, control.EventExecuted, audit.Entries[2].EventType)
	for _, e := range audit.Entries {
		assert.NotEmpty(t, e.Signature)
	}

	rec = do(t, h, http.MethodGet, "/v1/audit?plan_id="+id, globexKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &audit)
	assert.Empty(t, audit.Entries)
}

func TestKillSwitch(t *testing.T) {
	t.Run("disabled without admin key", func(t *testing.T) {
		h, _ := newTestServer(t)
		rec := do(t, h, http.MethodGet, "/v1/killswitch", acmeKey, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	h, rt := newTestServer(t, WithAdminKey(adminKey))

	rec := do(t, h, http.MethodPut, "/v1/killswitch", acmeKey, `{"active":true}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPut, "/v1/killswitch", adminKey, `{"platform":"TikTok","active":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var state killSwitchState
	decode(t, rec, &state)
	assert.False(t, state.Global)
	assert.Equal(t, []string{"tiktok"}, state.Platforms)
	assert.True(t, rt.Safety.KillSwitch().Platform("tiktok"))

	rec = do(t, h, http.MethodPost, "/v1/engage", acmeKey, engageBody("Foundation & concealer from???"))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp pipeline.Response
	decode(t, rec, &resp)
	assert.Equal(t, pipeline.KindIgnore, resp.Kind)
	require.NotNil(t, resp.PolicyDecision)
	assert.Equal(t, safety.RuleKillSwitch, resp.PolicyDecision.RuleID)

	rec = do(t, h, http.MethodPut, "/v1/killswitch", adminKey, `{"platform":"tiktok","active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/v1/killswitch", adminKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &state)
	assert.Empty(t, state.Platforms)
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestServer(t, WithCORSOrigins([]string{"https://studio.example.com"}))
	req := httptest.NewRequest(http.MethodOptions, "/v1/engage", nil)
	req.Header.Set("Origin", "https://studio.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://studio.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
