package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stackmelt/passkey-auth/internal/auth"
	"github.com/stackmelt/passkey-auth/internal/config"
	"github.com/stackmelt/passkey-auth/internal/db"
	"github.com/stackmelt/passkey-auth/internal/http/handlers"
	"github.com/stackmelt/passkey-auth/internal/models"
	"github.com/stackmelt/passkey-auth/internal/passkey"
	"github.com/stackmelt/passkey-auth/internal/security"
	"gorm.io/gorm"
)

const (
	testSecret     = "router-test-secret"
	testSessionTTL = 5 * time.Minute
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	webAuthn, errWA := security.NewWebAuthn(config.RelyingPartyConfig{
		Name:    "Test RP",
		Origins: []string{"http://localhost:5173"},
	})
	if errWA != nil {
		t.Fatalf("webauthn: %v", errWA)
	}

	mgr := passkey.NewManager(conn, webAuthn, webAuthn.Config.RPID)
	svc := auth.NewService(conn, mgr, testSecret, testSessionTTL)
	engine := NewRouter(svc, RouterConfig{
		WebOrigin:     "http://localhost:5173",
		SecureCookies: false,
		SessionSecret: testSecret,
	})
	return engine, conn
}

func seedPasswordUser(t *testing.T, conn *gorm.DB, email, password string) models.User {
	t.Helper()
	user := models.User{Username: strings.Split(email, "@")[0], Email: email}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	if err := conn.Create(&models.Auth{UserID: user.ID, Password: hash}).Error; err != nil {
		t.Fatalf("seed auth: %v", err)
	}
	return user
}

func postJSON(t *testing.T, engine *gin.Engine, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	payload, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		t.Fatalf("marshal body: %v", errMarshal)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func getWithCookies(t *testing.T, engine *gin.Engine, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == handlers.SessionCookieName {
			return cookie
		}
	}
	return nil
}

func TestHealth(t *testing.T) {
	engine, _ := setupRouter(t)
	rec := getWithCookies(t, engine, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestUnknownRoute(t *testing.T) {
	engine, _ := setupRouter(t)
	rec := getWithCookies(t, engine, "/api/does-not-exist")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Not Found" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestLoginByPassword(t *testing.T) {
	engine, conn := setupRouter(t)
	user := seedPasswordUser(t, conn, "alice@example.com", "correct horse")

	rec := postJSON(t, engine, "/api/login-by-password", gin.H{"email": "alice@example.com", "password": "correct horse"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	cookie := sessionCookie(rec)
	if cookie == nil || cookie.Value == "" {
		t.Fatal("expected a session cookie")
	}
	if !cookie.HttpOnly {
		t.Fatal("session cookie must be http-only")
	}
	userID, ok := security.ValidateSession(testSecret, cookie.Value)
	if !ok || userID != user.ID {
		t.Fatalf("cookie token invalid or wrong user: %d %v", userID, ok)
	}

	body := decodeBody(t, rec)
	if token, _ := body["token"].(string); token == "" {
		t.Fatal("expected a token in the response body")
	}
}

func TestLoginByPasswordRejectsBadInput(t *testing.T) {
	engine, conn := setupRouter(t)
	seedPasswordUser(t, conn, "alice@example.com", "correct horse")

	rec := postJSON(t, engine, "/api/login-by-password", gin.H{"email": "alice@example.com"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Missing email or password" {
		t.Fatalf("unexpected body %v", body)
	}

	rec = postJSON(t, engine, "/api/login-by-password", gin.H{"email": "alice@example.com", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Invalid credentials" {
		t.Fatalf("unexpected body %v", body)
	}
	if sessionCookie(rec) != nil {
		t.Fatal("failed login must not set a session cookie")
	}
}

func TestIsLoggedIn(t *testing.T) {
	engine, conn := setupRouter(t)
	user := seedPasswordUser(t, conn, "alice@example.com", "correct horse")

	// No cookie.
	rec := postJSON(t, engine, "/api/is-logged-in", gin.H{})
	if body := decodeBody(t, rec); body["loggedIn"] != false {
		t.Fatalf("expected loggedIn false without cookie, got %v", body)
	}

	// Valid cookie.
	token, errIssue := security.IssueSession(testSecret, user.ID, testSessionTTL)
	if errIssue != nil {
		t.Fatalf("issue session: %v", errIssue)
	}
	rec = postJSON(t, engine, "/api/is-logged-in", gin.H{}, &http.Cookie{Name: handlers.SessionCookieName, Value: token})
	body := decodeBody(t, rec)
	if body["loggedIn"] != true {
		t.Fatalf("expected loggedIn true, got %v", body)
	}

	// Garbage cookie is cleared, not an error.
	rec = postJSON(t, engine, "/api/is-logged-in", gin.H{}, &http.Cookie{Name: handlers.SessionCookieName, Value: "garbage"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for garbage cookie, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["loggedIn"] != false {
		t.Fatalf("expected loggedIn false for garbage cookie, got %v", body)
	}
	cleared := sessionCookie(rec)
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Fatal("expected garbage cookie to be cleared")
	}
}

func TestLogout(t *testing.T) {
	engine, _ := setupRouter(t)
	rec := postJSON(t, engine, "/api/logout", gin.H{})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["message"] != "Logged out successfully" {
		t.Fatalf("unexpected body %v", body)
	}
	cleared := sessionCookie(rec)
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Fatal("expected logout to clear the session cookie")
	}
}

func TestPasskeyListRequiresSession(t *testing.T) {
	engine, conn := setupRouter(t)
	user := seedPasswordUser(t, conn, "alice@example.com", "correct horse")

	rec := getWithCookies(t, engine, "/api/passkeys")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rec.Code)
	}

	record := models.PasskeyCredential{
		UserID:       user.ID,
		CredentialID: []byte("cred-1"),
		PublicKey:    []byte("public-key"),
	}
	if err := conn.Create(&record).Error; err != nil {
		t.Fatalf("seed credential: %v", err)
	}

	token, errIssue := security.IssueSession(testSecret, user.ID, testSessionTTL)
	if errIssue != nil {
		t.Fatalf("issue session: %v", errIssue)
	}
	rec = getWithCookies(t, engine, "/api/passkeys", &http.Cookie{Name: handlers.SessionCookieName, Value: token})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var views []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 passkey, got %d", len(views))
	}
	if _, hasKey := views[0]["publicKey"]; hasKey {
		t.Fatal("listing must not expose key material")
	}
}

func TestGenerateRegistrationChallenge(t *testing.T) {
	engine, conn := setupRouter(t)
	seedPasswordUser(t, conn, "alice@example.com", "correct horse")

	rec := postJSON(t, engine, "/api/generate-passkey-challenge", gin.H{"email": "nobody@example.com"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "User not found" {
		t.Fatalf("unexpected body %v", body)
	}

	rec = postJSON(t, engine, "/api/generate-passkey-challenge", gin.H{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing email, got %d", rec.Code)
	}

	rec = postJSON(t, engine, "/api/generate-passkey-challenge", gin.H{"email": "alice@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	ticketID, _ := body["passKeyId"].(string)
	if ticketID == "" {
		t.Fatalf("expected a ticket id, got %v", body)
	}
	if body["options"] == nil {
		t.Fatal("expected creation options in the response")
	}

	var count int64
	if err := conn.Model(&models.PasskeyCeremony{}).Where("id = ?", ticketID).Count(&count).Error; err != nil {
		t.Fatalf("count tickets: %v", err)
	}
	if count != 1 {
		t.Fatal("expected a pending ceremony row")
	}
}

func TestGenerateAuthenticationChallengeWithoutCredentials(t *testing.T) {
	engine, conn := setupRouter(t)
	seedPasswordUser(t, conn, "alice@example.com", "correct horse")

	rec := postJSON(t, engine, "/api/generate-authentication-challenge", gin.H{"email": "alice@example.com"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "No registered passkeys found for this user" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestVerifyRegistrationCancellation(t *testing.T) {
	engine, conn := setupRouter(t)
	user := seedPasswordUser(t, conn, "alice@example.com", "correct horse")

	rec := postJSON(t, engine, "/api/generate-passkey-challenge", gin.H{"email": "alice@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	ticketID, _ := decodeBody(t, rec)["passKeyId"].(string)
	if ticketID == "" {
		t.Fatal("expected a ticket id")
	}

	rec = postJSON(t, engine, "/api/verify-passkey-registration", gin.H{
		"passKeyId": ticketID,
		"userId":    user.ID,
		"error":     "NotAllowedError: the operation was aborted",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for cancellation, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Passkey registration was cancelled or failed" {
		t.Fatalf("unexpected body %v", body)
	}

	var count int64
	if err := conn.Model(&models.PasskeyCeremony{}).Where("id = ?", ticketID).Count(&count).Error; err != nil {
		t.Fatalf("count tickets: %v", err)
	}
	if count != 0 {
		t.Fatal("cancellation must delete the ceremony ticket")
	}
}

func TestVerifyRegistrationRejectsEmptyBody(t *testing.T) {
	engine, _ := setupRouter(t)

	rec := postJSON(t, engine, "/api/verify-passkey-registration", gin.H{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty verification body, got %d", rec.Code)
	}
}
