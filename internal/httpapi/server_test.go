package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/talentcomp/comprec/internal/agents"
	"github.com/talentcomp/comprec/internal/auth"
	"github.com/talentcomp/comprec/internal/compdata"
	"github.com/talentcomp/comprec/internal/models"
	"github.com/talentcomp/comprec/internal/streaming"
)

// --- fakes -----------------------------------------------------------------

type fakeTurner struct {
	streams *streaming.Manager
	result  *agents.TurnResult
	err     error
}

func (f *fakeTurner) Run(_ context.Context, in agents.TurnInput) (*agents.TurnResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.streams != nil {
		f.streams.Publish(in.RequestID, streaming.Event{
			Type: streaming.EventStatus, Step: "coordinator", Message: "Analyzing your message...",
		})
		f.streams.Publish(in.RequestID, streaming.Event{
			Type: streaming.EventResponse, Step: "respond", Message: f.result.Response,
		})
	}
	return f.result, nil
}

type fakeContexts struct {
	contexts map[string]*models.CandidateContext
	audit    []models.AuditEntry
	resetID  string
}

func (f *fakeContexts) Get(_ context.Context, id string) (*models.CandidateContext, error) {
	return f.contexts[id], nil
}

func (f *fakeContexts) SaveReplace(_ context.Context, id string, upd models.ContextUpdate, actor string) (*models.CandidateContext, error) {
	c := &models.CandidateContext{
		CandidateID: id,
		State:       models.CandidateActive,
		JobTitle:    upd.JobTitle,
		JobLevel:    upd.JobLevel,
		Location:    upd.Location,
		UpdatedBy:   actor,
	}
	if upd.State != "" {
		c.State = upd.State
	}
	if f.contexts == nil {
		f.contexts = make(map[string]*models.CandidateContext)
	}
	f.contexts[id] = c
	return c, nil
}

func (f *fakeContexts) Reset(_ context.Context, id, _ string) (bool, error) {
	if _, ok := f.contexts[id]; !ok {
		return false, nil
	}
	delete(f.contexts, id)
	f.resetID = id
	return true, nil
}

func (f *fakeContexts) AuditLog(_ context.Context, _ string) ([]models.AuditEntry, error) {
	return f.audit, nil
}

func (f *fakeContexts) ListByState(_ context.Context, state models.CandidateState) ([]models.CandidateContext, error) {
	var out []models.CandidateContext
	for _, c := range f.contexts {
		if c.State == state {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeSessions struct {
	current map[string]string
}

func (f *fakeSessions) CurrentCandidate(_ context.Context, email string) (string, error) {
	return f.current[email], nil
}

func (f *fakeSessions) ClearCurrentCandidate(_ context.Context, email string) error {
	delete(f.current, email)
	return nil
}

type fakeMessages struct {
	appended []models.MessageRecord
	recent   []models.MessageRecord
	feedback []models.FeedbackRecord
}

func (f *fakeMessages) Append(_ context.Context, rec models.MessageRecord) error {
	f.appended = append(f.appended, rec)
	return nil
}

func (f *fakeMessages) Recent(_ context.Context, _ string, _ int, _ string) ([]models.MessageRecord, error) {
	return f.recent, nil
}

func (f *fakeMessages) All(_ context.Context, _ string) ([]models.MessageRecord, error) {
	return f.recent, nil
}

func (f *fakeMessages) SaveFeedback(_ context.Context, rec models.FeedbackRecord) error {
	f.feedback = append(f.feedback, rec)
	return nil
}

type fakeCatalog struct{}

func (fakeCatalog) Metadata() *compdata.Metadata {
	return &compdata.Metadata{Locations: []string{"SEA", "LAX"}}
}

// --- fixture ---------------------------------------------------------------

type apiFixture struct {
	server   *Server
	handler  http.Handler
	turner   *fakeTurner
	contexts *fakeContexts
	sessions *fakeSessions
	messages *fakeMessages
	streams  *streaming.Manager
	jwt      *auth.JWTManager
}

func writeUsersFile(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	content := fmt.Sprintf(`users:
  - email: alice@corp.com
    name: Alice
    user_type: Comp Team
    password_hash: %q
  - email: rec@corp.com
    name: Rae
    user_type: Recruitment Team
    password_hash: %q
`, string(hash), string(hash))
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newAPIFixture(t *testing.T, cfg Config) *apiFixture {
	t.Helper()
	users, err := auth.LoadDirectory(writeUsersFile(t))
	require.NoError(t, err)

	f := &apiFixture{
		contexts: &fakeContexts{contexts: make(map[string]*models.CandidateContext)},
		sessions: &fakeSessions{current: make(map[string]string)},
		messages: &fakeMessages{},
		streams:  streaming.NewManager(64),
		jwt:      auth.NewJWTManager("test-key", time.Hour),
	}
	f.turner = &fakeTurner{
		streams: f.streams,
		result:  &agents.TurnResult{Response: "Hi! How can I help you with compensation today?"},
	}
	f.server = NewServer(f.turner, f.contexts, f.sessions, f.messages, fakeCatalog{},
		users, f.jwt, f.streams, cfg, zap.NewNop())
	f.handler = f.server.Handler()
	return f
}

func (f *apiFixture) token(t *testing.T, email string, userType models.UserType) string {
	t.Helper()
	token, err := f.jwt.Generate(&auth.User{Email: email, Name: "T", UserType: userType})
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// --- tests -----------------------------------------------------------------

func TestHealthAndRoot(t *testing.T) {
	f := newAPIFixture(t, Config{Version: "1.2.3"})

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])

	rec = f.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "comprec", body["service"])
	assert.Equal(t, "1.2.3", body["version"])
}

func TestLogin(t *testing.T) {
	f := newAPIFixture(t, Config{})
	f.sessions.current["alice@corp.com"] = "CAND-001"

	rec := f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "alice@corp.com", Password: "secret123"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["access_token"])
	assert.Equal(t, "bearer", body["token_type"])
	assert.Equal(t, "CAND-001", body["current_candidate_id"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "Comp Team", user["user_type"])

	// the issued token actually works
	rec = f.do(t, http.MethodGet, "/api/messages", body["access_token"].(string), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginBadPassword(t *testing.T) {
	f := newAPIFixture(t, Config{})
	rec := f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "alice@corp.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	f := newAPIFixture(t, Config{})
	rec := f.do(t, http.MethodGet, "/api/messages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatSync(t *testing.T) {
	f := newAPIFixture(t, Config{})
	f.turner.streams = nil
	f.turner.result = &agents.TurnResult{
		Response:    "done",
		CandidateID: "CAND-001",
		Context: &models.CandidateContext{
			CandidateID: "CAND-001",
			RecommendationHistory: []models.RecommendationHistoryItem{
				{ContextSnapshot: models.ContextSnapshot{JobLevel: "P3"}},
				{ContextSnapshot: models.ContextSnapshot{JobLevel: "P4"}},
			},
		},
		Recommendation: &models.Recommendation{Status: models.StatusApproved, BaseSalary: 234000},
	}

	token := f.token(t, "alice@corp.com", models.UserTypeCompTeam)
	rec := f.do(t, http.MethodPost, "/api/chat", token, chatRequest{Message: "recommendation please"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "done", body["response"])
	assert.Equal(t, "CAND-001", body["candidate_id"])
	assert.NotEmpty(t, body["request_id"])

	// history is delivered newest-first
	history := body["recommendation_history"].([]interface{})
	require.Len(t, history, 2)
	first := history[0].(map[string]interface{})["context_snapshot"].(map[string]interface{})
	assert.Equal(t, "P4", first["job_level"])

	// the exchange landed in the transcript
	require.Len(t, f.messages.appended, 1)
	assert.Equal(t, "recommendation please", f.messages.appended[0].Message)
	assert.Equal(t, "CAND-001", f.messages.appended[0].CandidateID)
}

func TestChatRequiresMessage(t *testing.T) {
	f := newAPIFixture(t, Config{})
	token := f.token(t, "alice@corp.com", models.UserTypeCompTeam)
	rec := f.do(t, http.MethodPost, "/api/chat", token, chatRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatSSE(t *testing.T) {
	f := newAPIFixture(t, Config{})
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	token := f.token(t, "alice@corp.com", models.UserTypeCompTeam)
	resp, err := http.Get(srv.URL + "/api/chat/stream?message=hello&token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// the handler closes the stream after the response event
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "event: status")
	assert.Contains(t, body, "Analyzing your message...")
	assert.Contains(t, body, "event: response")
	assert.Contains(t, body, "How can I help you with compensation today?")
	assert.Equal(t, 1, strings.Count(body, "event: response"))
}

func TestContextGet(t *testing.T) {
	f := newAPIFixture(t, Config{})
	f.contexts.contexts["CAND-001"] = &models.CandidateContext{
		CandidateID: "CAND-001", State: models.CandidateActive, JobTitle: "Senior Software Engineer",
	}
	token := f.token(t, "alice@corp.com", models.UserTypeCompTeam)

	rec := f.do(t, http.MethodGet, "/api/context/cand-001", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Senior Software Engineer", decodeBody(t, rec)["job_title"])

	rec = f.do(t, http.MethodGet, "/api/context/CAND-404", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContextGetRecruiterRestricted(t *testing.T) {
	f := newAPIFixture(t, Config{})
	f.contexts.contexts["CAND-001"] = &models.CandidateContext{CandidateID: "CAND-001", State: models.CandidateActive}
	f.contexts.contexts["CAND-002"] = &models.CandidateContext{
		CandidateID:           "CAND-002",
		State:                 models.CandidateActive,
		RecommendationHistory: []models.RecommendationHistoryItem{{}},
	}
	token := f.token(t, "rec@corp.com", models.UserTypeRecruitmentTeam)

	rec := f.do(t, http.MethodGet, "/api/context/CAND-001", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/context/CAND-002", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestContextReplace(t *testing.T) {
	f := newAPIFixture(t, Config{})
	compToken := f.token(t, "alice@corp.com", models.UserTypeCompTeam)
	recToken := f.token(t, "rec@corp.com", models.UserTypeRecruitmentTeam)

	rec := f.do(t, http.MethodPut, "/api/context/CAND-001", recToken, replaceRequest{JobTitle: "SRE"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/context/CAND-001", compToken, replaceRequest{JobLevel: "P7"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/context/CAND-001", compToken, replaceRequest{
		JobTitle: "SRE", JobLevel: "p3", Location: "sea",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "P3", body["job_level"])
	assert.Equal(t, "SEA", body["location"])
}

func TestContextReset(t *testing.T) {
	f := newAPIFixture(t, Config{})
	f.contexts.contexts["CAND-001"] = &models.CandidateContext{CandidateID: "CAND-001", State: models.CandidateActive}
	f.sessions.current["alice@corp.com"] = "CAND-001"
	compToken := f.token(t, "alice@corp.com", models.UserTypeCompTeam)
	recToken := f.token(t, "rec@corp.com", models.UserTypeRecruitmentTeam)

	rec := f.do(t, http.MethodPost, "/api/context/CAND-001/reset", recToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/context/CAND-404/reset", compToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/context/CAND-001/reset", compToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CAND-001", f.contexts.resetID)
	assert.Empty(t, f.sessions.current["alice@corp.com"])
}

func TestAudit(t *testing.T) {
	f := newAPIFixture(t, Config{})
	f.contexts.audit = []models.AuditEntry{{CandidateID: "CAND-001", Field: "job_title", NewValue: "SRE"}}
	token := f.token(t, "alice@corp.com", models.UserTypeCompTeam)

	rec := f.do(t, http.MethodGet, "/api/audit/CAND-001", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody(t, rec)["entries"].([]interface{})
	require.Len(t, entries, 1)
	assert.Equal(t, "job_title", entries[0].(map[string]interface{})["field"])
}

func TestCurrentCandidateClosedIsCleared(t *testing.T) {
	f := newAPIFixture(t, Config{})
	f.contexts.contexts["CAND-009"] = &models.CandidateContext{CandidateID: "CAND-009", State: models.CandidateClosed}
	f.sessions.current["alice@corp.com"] = "CAND-009"
	token := f.token(t, "alice@corp.com", models.UserTypeCompTeam)

	rec := f.do(t, http.MethodGet, "/api/user/current-candidate", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody(t, rec)["candidate_id"])
	assert.Empty(t, f.sessions.current["alice@corp.com"])
}

func TestCurrentCandidateActive(t *testing.T) {
	f := newAPIFixture(t, Config{})
	f.contexts.contexts["CAND-001"] = &models.CandidateContext{CandidateID: "CAND-001", State: models.CandidateActive}
	f.sessions.current["alice@corp.com"] = "CAND-001"
	token := f.token(t, "alice@corp.com", models.UserTypeCompTeam)

	rec := f.do(t, http.MethodGet, "/api/user/current-candidate", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "CAND-001", body["candidate_id"])
	assert.NotNil(t, body["context"])
}

func TestCandidatesList(t *testing.T) {
	f := newAPIFixture(t, Config{})
	f.contexts.contexts["CAND-001"] = &models.CandidateContext{CandidateID: "CAND-001", State: models.CandidateActive}
	f.contexts.contexts["CAND-002"] = &models.CandidateContext{CandidateID: "CAND-002", State: models.CandidateClosed}
	token := f.token(t, "alice@corp.com", models.UserTypeCompTeam)

	rec := f.do(t, http.MethodGet, "/api/user/candidates", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "active", body["state"])
	assert.Len(t, body["candidates"].([]interface{}), 1)

	rec = f.do(t, http.MethodGet, "/api/user/candidates?state=closed", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["candidates"].([]interface{}), 1)

	rec = f.do(t, http.MethodGet, "/api/user/candidates?state=bogus", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedback(t *testing.T) {
	f := newAPIFixture(t, Config{})
	token := f.token(t, "alice@corp.com", models.UserTypeCompTeam)

	rec := f.do(t, http.MethodPost, "/api/feedback", token, feedbackRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/feedback", token, feedbackRequest{
		ResponseID: "req-1", FeedbackType: "thumbs_down", CandidateID: "cand-001",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.messages.feedback, 1)
	assert.Equal(t, "alice@corp.com", f.messages.feedback[0].UserEmail)
	assert.Equal(t, "CAND-001", f.messages.feedback[0].CandidateID)
}

func TestMetadataEndpoint(t *testing.T) {
	f := newAPIFixture(t, Config{})
	token := f.token(t, "alice@corp.com", models.UserTypeCompTeam)

	rec := f.do(t, http.MethodGet, "/api/metadata", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SEA")
}

func TestRateLimit(t *testing.T) {
	f := newAPIFixture(t, Config{RateLimitPerMin: 1})
	token := f.token(t, "alice@corp.com", models.UserTypeCompTeam)

	rec := f.do(t, http.MethodGet, "/api/messages", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/messages", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMetricsPath(t *testing.T) {
	assert.Equal(t, "/api/context/:id", metricsPath("/api/context/CAND-001"))
	assert.Equal(t, "/api/context/:id/reset", metricsPath("/api/context/CAND-001/reset"))
	assert.Equal(t, "/api/audit/:id", metricsPath("/api/audit/CAND-001"))
	assert.Equal(t, "/api/messages", metricsPath("/api/messages"))
}

func TestHistoryNewestFirst(t *testing.T) {
	in := []models.RecommendationHistoryItem{
		{ContextSnapshot: models.ContextSnapshot{JobLevel: "P1"}},
		{ContextSnapshot: models.ContextSnapshot{JobLevel: "P2"}},
		{ContextSnapshot: models.ContextSnapshot{JobLevel: "P3"}},
	}
	out := historyNewestFirst(in)
	assert.Equal(t, "P3", out[0].ContextSnapshot.JobLevel)
	assert.Equal(t, "P1", out[2].ContextSnapshot.JobLevel)
	// input untouched
	assert.Equal(t, "P1", in[0].ContextSnapshot.JobLevel)
}
