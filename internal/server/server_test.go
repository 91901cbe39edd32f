package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantlabs/greencoach/config"
	"github.com/verdantlabs/greencoach/internal/trainer/core"
)

var testSecret = []byte("test-secret")

type stageLLM struct {
	mu      sync.Mutex
	replies []string
	gate    chan struct{}
}

func (s *stageLLM) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return "", 0, 0, fmt.Errorf("out of replies")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, 10, 5, nil
}

func (s *stageLLM) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	text, _, _, err := s.GenerateWithTokens(ctx, prompt, model, options)
	return text, err
}

func (s *stageLLM) GetAvailableModels() []string { return nil }

func (s *stageLLM) GetModelInfo(m string) (core.ModelInfo, error) { return core.ModelInfo{}, nil }

func (s *stageLLM) CalculateCost(in, out int64, m string) float64 { return 0 }

type noSearch struct{}

func (noSearch) Search(ctx context.Context, query, stage string) (string, []core.SourceRecord) {
	return "No relevant search results found for this query.", nil
}

func stagePayloads(t *testing.T) []string {
	t.Helper()
	scenario := core.Scenario{
		CompanyName: "Verdant Hosting", Industry: "Technology", CompanySize: "Medium",
		Location: "Berlin", ProductService: "Green cloud hosting", TargetAudience: "SaaS companies",
		MarketingObjectives: []string{"grow"}, SustainabilityContext: "wind-powered data centers",
		PreliminaryClaims: []string{"100% green"}, RegulatoryContext: "EU",
		MarketResearchSources: []string{"https://example.com"},
	}
	analysis := core.ProblematicAnalysis{
		ScenarioReference: "Verdant Hosting",
		ProblematicMessages: []core.ProblematicMessage{{
			ID: "msg_1", Message: "We are 100% green.",
			ProblemsIdentified: []string{"absolute claim"}, RegulatoryViolations: []string{"UCPD"},
			GreenwashingPatterns: []string{"vagueness"}, RealWorldExamples: []string{"case"},
			WhyProblematic: "unsubstantiated", PotentialConsequences: []string{"fine"},
		}},
		GeneralPatternsFound: []string{"vagueness"}, RegulatoryLandscape: "EU",
		ResearchSources: []string{"https://example.com"},
	}
	guidance := core.BestPracticeGuidance{
		ScenarioReference: "Verdant Hosting",
		CorrectedMessages: []core.CorrectedMessage{{
			OriginalMessageID: "msg_1", CorrectedMessage: "87% wind-powered in 2025.",
			ChangesMade: []string{"quantified"}, ComplianceNotes: "scoped claim",
			BestPracticesApplied: []string{"specificity"}, RealWorldExamples: []string{"case"},
			EffectivenessRationale: "credible",
		}},
		GeneralGuidelines: []string{"quantify"}, KeyPrinciples: []string{"substantiation"},
		RegulatoryComplianceTips: []string{"keep evidence"}, IndustrySpecificAdvice: "disclose PUE",
		ResearchSources: []string{"https://example.com"},
	}
	assessment := core.AssessmentPacket{
		AssessmentQuestions: []core.AssessmentQuestion{{
			ID: "q_1", Type: "multiple_choice", Question: "Which claim is compliant?",
			Options: []string{"A", "B"}, CorrectAnswer: "B", Explanation: "quantified",
			DifficultyLevel: "beginner", LearningObjective: "spot vague claims",
		}},
		PersonalizedFeedback: core.PersonalizedFeedback{
			RoleSpecificTips: []string{"review claims"}, TeamTrainingRecommendations: []string{"workshops"},
			ImplementationStrategies: []string{"checklist"}, NextSteps: []string{"audit"},
			AdditionalResources: []string{"https://example.com"},
		},
		KeyTakeaways: []string{"substantiate"}, ComplianceChecklist: []string{"evidence on file"},
	}

	out := make([]string, 0, 4)
	for _, v := range []any{scenario, analysis, guidance, assessment} {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		out = append(out, string(b))
	}
	return out
}

func testServer(llm core.LLMProvider) (*echo.Echo, *SessionsHandler) {
	cfg := &config.Config{
		LLM: config.LLMConfig{Routing: config.LLMRoutingConfig{
			Scenario: "gpt-4o", Mistakes: "gpt-4o", Guidance: "gpt-4o",
			Assessment: "gpt-4o", Fallback: "gpt-4o-mini",
		}},
		Training: config.TrainingConfig{MaxSearchesPerStage: 0, KnowledgeDir: "/nonexistent"},
	}
	e := echo.New()
	h := NewSessionsHandler(cfg, llm, noSearch{}, nil, nil, nil, nil)
	h.Register(e.Group("/api/sessions"), testSecret)
	return e, h
}

func authedRequest(t *testing.T, method, target, body string) *http.Request {
	t.Helper()
	token, err := SignJWT("user-1", testSecret, time.Hour)
	require.NoError(t, err)
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestSessionsRequireAuth(t *testing.T) {
	e, _ := testServer(&stageLLM{})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStartSessionValidation(t *testing.T) {
	e, _ := testServer(&stageLLM{})
	req := authedRequest(t, http.MethodPost, "/api/sessions", `{"industry": "Technology"}`)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	llm := &stageLLM{replies: stagePayloads(t)}
	e, _ := testServer(llm)

	req := authedRequest(t, http.MethodPost, "/api/sessions", `{"industry": "Technology", "jurisdiction": "EU", "difficulty": "Beginner"}`)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started StartSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.SessionID)

	var status SessionStatusResponse
	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/sessions/"+started.SessionID, ""))
		if rec.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		return status.Status == core.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 4, status.StageIndex)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/sessions/"+started.SessionID+"/report", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var report core.TrainingReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "Technology", report.Scenario.Industry)
	assert.NotNil(t, report.SourcesUsed)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/sessions/"+started.SessionID+"/report?format=markdown", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# Sustainability Messaging Training Report")

	// finished session replays its whole event history
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/sessions/"+started.SessionID+"/events", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "event: session_start")
	assert.Contains(t, body, "event: session_complete")
}

func TestStartSessionRejectsBusyUser(t *testing.T) {
	gate := make(chan struct{})
	llm := &stageLLM{replies: stagePayloads(t), gate: gate}
	e, _ := testServer(llm)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/sessions", `{"industry": "Technology", "jurisdiction": "EU", "difficulty": "Beginner"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started StartSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/sessions/"+started.SessionID, ""))
		if rec.Code != http.StatusOK {
			return false
		}
		var status SessionStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		return status.Status == core.StatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/sessions", `{"industry": "Retail", "jurisdiction": "US", "difficulty": "Advanced"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(gate)
}

func TestNewSessionEvictsFinishedPredecessor(t *testing.T) {
	payloads := stagePayloads(t)
	llm := &stageLLM{replies: append(append([]string(nil), payloads...), payloads...)}
	e, h := testServer(llm)

	startSession := func() StartSessionResponse {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/sessions", `{"industry": "Technology", "jurisdiction": "EU", "difficulty": "Beginner"}`))
		require.Equal(t, http.StatusAccepted, rec.Code)
		var started StartSessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
		return started
	}
	waitCompleted := func(id string) {
		require.Eventually(t, func() bool {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/sessions/"+id, ""))
			if rec.Code != http.StatusOK {
				return false
			}
			var status SessionStatusResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
			return status.Status == core.StatusCompleted
		}, 5*time.Second, 20*time.Millisecond)
	}

	first := startSession()
	waitCompleted(first.SessionID)

	// session IDs have second resolution
	for core.NewSessionID(time.Now()) == first.SessionID {
		time.Sleep(50 * time.Millisecond)
	}

	second := startSession()
	require.NotEqual(t, first.SessionID, second.SessionID)
	waitCompleted(second.SessionID)

	// starting the second run dropped the finished first one
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/sessions/"+first.SessionID, ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h.mu.Lock()
	assert.Len(t, h.sessions, 1)
	assert.Len(t, h.activeByUser, 1)
	h.mu.Unlock()
}

func TestSessionNotFound(t *testing.T) {
	e, _ := testServer(&stageLLM{})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/sessions/TRAIN_20260101_000000", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthMiddlewareRoundTrip(t *testing.T) {
	e := echo.New()
	g := e.Group("/secure")
	g.Use(AuthMiddleware(testSecret))
	g.GET("", func(c echo.Context) error { return c.String(http.StatusOK, userID(c)) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/secure", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := SignJWT("user-42", testSecret, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", rec.Body.String())

	// cookie carries the token too
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.AddCookie(&http.Cookie{Name: "auth", Value: token})
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	expired, err := SignJWT("user-42", testSecret, -time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// unsigned token with alg none is rejected outright
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+unsigned)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignupRejectsShortPassword(t *testing.T) {
	e := echo.New()
	a := &AuthHandler{Secret: testSecret}
	a.Register(e.Group("/api/auth"))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(`{"email": "x@example.com", "password": "short"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
