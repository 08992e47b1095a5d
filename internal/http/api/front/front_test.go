package front

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/sheetmind/sheetmind-backend/internal/db"
	"github.com/sheetmind/sheetmind-backend/internal/errlog"
	"github.com/sheetmind/sheetmind-backend/internal/models"
	"github.com/sheetmind/sheetmind-backend/internal/oauth"
	"github.com/sheetmind/sheetmind-backend/internal/plans"
	"github.com/sheetmind/sheetmind-backend/internal/quota"
	"github.com/sheetmind/sheetmind-backend/internal/session"
	"github.com/sheetmind/sheetmind-backend/internal/tokenstore"
	"gorm.io/gorm"
)

const testResetSecret = "reset-secret"

func newFrontEngine(t *testing.T) (*gin.Engine, *gorm.DB, *session.CookieResolver) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	tokens := tokenstore.NewGormTokenStore(conn)
	orchestrator := oauth.NewOrchestrator(conn, oauth.NewRegistry(), oauth.Config{
		BaseURL:   "https://app.example.com",
		Google:    oauth.ClientCredentials{ClientID: "google-client"},
		Microsoft: oauth.ClientCredentials{ClientID: "microsoft-client"},
	}, tokens)

	sessions := session.NewCookieResolver("front-test-secret")
	engine := gin.New()
	RegisterFrontRoutes(engine, conn, Dependencies{
		Orchestrator: orchestrator,
		Tokens:       tokens,
		Sessions:     sessions,
		Resolver:     sessions,
		Upstream:     session.NewUpstreamClient(""),
		Tracker:      quota.NewTracker(conn, quota.NewMemoryFlight()),
		Plans:        plans.NewResolver(conn, plans.PriceIDs{Base: "price_base", Pro: "price_pro"}, nil),
		PriceIDs:     plans.PriceIDs{Base: "price_base", Pro: "price_pro"},
		Errors:       errlog.NewRecorder(conn),
		SessionTTL:   time.Hour,
		ResetSecret:  testResetSecret,
	})
	return engine, conn, sessions
}

func sessionCookie(t *testing.T, sessions *session.CookieResolver, userID string) *http.Cookie {
	t.Helper()
	token, errToken := sessions.IssueToken(userID, "user@example.com", time.Hour)
	if errToken != nil {
		t.Fatalf("issue token: %v", errToken)
	}
	return &http.Cookie{Name: session.SessionCookie, Value: token}
}

func TestInitiate_SignInWithoutSession(t *testing.T) {
	engine, _, _ := newFrontEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/google/initiate", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var payload struct {
		AuthorizationURL string `json:"authorization_url"`
	}
	if errUnmarshal := json.Unmarshal(rec.Body.Bytes(), &payload); errUnmarshal != nil {
		t.Fatalf("decode response: %v", errUnmarshal)
	}
	if !strings.HasPrefix(payload.AuthorizationURL, "https://accounts.google.com/") {
		t.Fatalf("expected google authorization url, got %q", payload.AuthorizationURL)
	}
	if !strings.Contains(payload.AuthorizationURL, "code_challenge_method=S256") {
		t.Fatalf("expected S256 challenge in %q", payload.AuthorizationURL)
	}
}

func TestInitiate_GrantRequiresSession(t *testing.T) {
	engine, _, _ := newFrontEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/google/initiate",
		strings.NewReader(`{"mode":"grant_permissions"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	var payload map[string]string
	if errUnmarshal := json.Unmarshal(rec.Body.Bytes(), &payload); errUnmarshal != nil {
		t.Fatalf("decode response: %v", errUnmarshal)
	}
	if payload["error_code"] != "session_absent" {
		t.Fatalf("expected session_absent, got %q", payload["error_code"])
	}
}

func TestUsage_RequiresSession(t *testing.T) {
	engine, _, _ := newFrontEngine(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/usage", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestUsage_RecordThenGet(t *testing.T) {
	engine, _, sessions := newFrontEngine(t)
	cookie := sessionCookie(t, sessions, "user-1")

	record := httptest.NewRequest(http.MethodPost, "/usage/record",
		strings.NewReader(`{"url":"https://sheets.example.com/1","query":"sum column B"}`))
	record.Header.Set("Content-Type", "application/json")
	record.AddCookie(cookie)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, record)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	get := httptest.NewRequest(http.MethodGet, "/usage", nil)
	get.AddCookie(cookie)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, get)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var payload struct {
		RequestsThisWeek  int64    `json:"requests_this_week"`
		RequestsThisMonth int64    `json:"requests_this_month"`
		RecentQueries     []string `json:"recent_queries"`
	}
	if errUnmarshal := json.Unmarshal(rec.Body.Bytes(), &payload); errUnmarshal != nil {
		t.Fatalf("decode response: %v", errUnmarshal)
	}
	if payload.RequestsThisWeek != 1 || payload.RequestsThisMonth != 1 {
		t.Fatalf("expected counters 1/1, got %d/%d", payload.RequestsThisWeek, payload.RequestsThisMonth)
	}
	if len(payload.RecentQueries) != 1 || payload.RecentQueries[0] != "sum column B" {
		t.Fatalf("unexpected recent queries: %v", payload.RecentQueries)
	}
}

func TestReset_RejectsBadCredential(t *testing.T) {
	engine, _, _ := newFrontEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/internal/usage/reset", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestReset_RunsWithCredential(t *testing.T) {
	engine, conn, _ := newFrontEngine(t)

	usage := models.UserUsage{
		ID:                "user-1",
		RequestsThisWeek:  3,
		RequestsThisMonth: 9,
		RecentURLs:        []byte("[]"),
		RecentQueries:     []byte("[]"),
	}
	if errCreate := conn.Create(&usage).Error; errCreate != nil {
		t.Fatalf("seed usage: %v", errCreate)
	}

	req := httptest.NewRequest(http.MethodPost, "/internal/usage/reset", nil)
	req.Header.Set("Authorization", "Bearer "+testResetSecret)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var after models.UserUsage
	if errFind := conn.First(&after, "id = ?", "user-1").Error; errFind != nil {
		t.Fatalf("load usage: %v", errFind)
	}
	if after.RequestsThisMonth != 0 || after.RequestsThisWeek != 0 {
		t.Fatalf("expected zeroed counters, got %d/%d", after.RequestsThisWeek, after.RequestsThisMonth)
	}
	if after.RequestsPrevious3Months != 9 {
		t.Fatalf("expected previous bucket 9, got %d", after.RequestsPrevious3Months)
	}
}

func TestSkipPermissionsSetup_MarksProfile(t *testing.T) {
	engine, conn, sessions := newFrontEngine(t)

	profile := models.UserProfile{ID: "user-1", Plan: models.PlanFree, GooglePermissionsSet: true}
	if errCreate := conn.Create(&profile).Error; errCreate != nil {
		t.Fatalf("seed profile: %v", errCreate)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/setup-permissions/skip", nil)
	req.AddCookie(sessionCookie(t, sessions, "user-1"))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var after models.UserProfile
	if errFind := conn.First(&after, "id = ?", "user-1").Error; errFind != nil {
		t.Fatalf("load profile: %v", errFind)
	}
	if !after.PermissionsSetupDone {
		t.Fatal("expected setup complete after skip")
	}
}

func TestPlans_ListIsPublic(t *testing.T) {
	engine, _, _ := newFrontEngine(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plans", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var payload struct {
		Plans []struct {
			ID     string `json:"id"`
			Limits struct {
				Processing int `json:"processing"`
			} `json:"limits"`
		} `json:"plans"`
	}
	if errUnmarshal := json.Unmarshal(rec.Body.Bytes(), &payload); errUnmarshal != nil {
		t.Fatalf("decode response: %v", errUnmarshal)
	}
	if len(payload.Plans) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(payload.Plans))
	}
	if payload.Plans[0].ID != "free" || payload.Plans[0].Limits.Processing != 10 {
		t.Fatalf("unexpected first plan: %+v", payload.Plans[0])
	}
}

func TestPortalSession_MissingBillingLink(t *testing.T) {
	engine, conn, sessions := newFrontEngine(t)

	profile := models.UserProfile{ID: "user-1", Plan: models.PlanPro}
	if errCreate := conn.Create(&profile).Error; errCreate != nil {
		t.Fatalf("seed profile: %v", errCreate)
	}

	req := httptest.NewRequest(http.MethodPost, "/billing/portal-session",
		strings.NewReader(`{"return_url":"https://app.example.com/account"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(sessionCookie(t, sessions, "user-1"))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d (%s)", rec.Code, rec.Body.String())
	}
	var payload map[string]string
	if errUnmarshal := json.Unmarshal(rec.Body.Bytes(), &payload); errUnmarshal != nil {
		t.Fatalf("decode response: %v", errUnmarshal)
	}
	if payload["error_code"] != "billing_link_missing" {
		t.Fatalf("expected billing_link_missing, got %q", payload["error_code"])
	}
	if payload["error"] != "no billing record" {
		t.Fatalf("expected no billing record message, got %q", payload["error"])
	}
}
