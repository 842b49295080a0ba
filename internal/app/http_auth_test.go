package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeJSONBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return body
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func signUp(t *testing.T, handler http.Handler, email, name, teamName string) map[string]any {
	t.Helper()
	rec := doRequest(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":    email,
		"password": "hunter22",
		"name":     name,
		"teamName": teamName,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup for %s failed with %d: %s", email, rec.Code, rec.Body.String())
	}
	return decodeJSONBody(t, rec)
}

func TestSignUpCreatesSession(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms, okEnricher())
	mustBootstrap(t, svc)
	handler := NewHTTPServer(svc, "*").Handler()

	body := signUp(t, handler, "Ada@Example.com", "Ada", "A-Team")
	if body["accessToken"] == "" || body["refreshToken"] == "" {
		t.Fatal("expected session tokens on signup")
	}
	if body["email"] != "ada@example.com" {
		t.Errorf("expected lowercased email, got %v", body["email"])
	}
	if body["teamId"] == "" {
		t.Error("expected a team id on the session")
	}

	// The token must authenticate follow-up requests.
	rec := doRequest(t, handler, http.MethodGet, "/api/session", body["accessToken"].(string), nil)
	session := decodeJSONBody(t, rec)
	if session["authenticated"] != true {
		t.Errorf("expected authenticated session, got %v", session)
	}
}

func TestSignUpValidation(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms, okEnricher())
	mustBootstrap(t, svc)
	handler := NewHTTPServer(svc, "*").Handler()

	signUp(t, handler, "ada@example.com", "Ada", "A-Team")

	cases := []struct {
		name       string
		payload    map[string]any
		wantStatus int
		wantCode   string
	}{
		{
			"duplicate email",
			map[string]any{"email": "ada@example.com", "password": "hunter22", "name": "Ada2", "teamName": "A-Team"},
			http.StatusConflict, "EMAIL_EXISTS",
		},
		{
			"unknown team",
			map[string]any{"email": "new@example.com", "password": "hunter22", "name": "New", "teamName": "Z-Team"},
			http.StatusUnprocessableEntity, "INVALID_TEAM",
		},
		{
			"weak password",
			map[string]any{"email": "new@example.com", "password": "abc", "name": "New", "teamName": "A-Team"},
			http.StatusUnprocessableEntity, "VALIDATION_ERROR",
		},
		{
			"missing fields",
			map[string]any{"email": "", "password": "hunter22", "name": "", "teamName": "A-Team"},
			http.StatusUnprocessableEntity, "VALIDATION_ERROR",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, handler, http.MethodPost, "/api/auth/signup", "", tc.payload)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			body := decodeJSONBody(t, rec)
			if body["code"] != tc.wantCode {
				t.Errorf("expected code %s, got %v", tc.wantCode, body["code"])
			}
		})
	}
}

func TestSignIn(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms, okEnricher())
	mustBootstrap(t, svc)
	handler := NewHTTPServer(svc, "*").Handler()
	signUp(t, handler, "ada@example.com", "Ada", "A-Team")

	rec := doRequest(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email": "ada@example.com", "password": "hunter22",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeJSONBody(t, rec)
	if body["userName"] != "Ada" {
		t.Errorf("expected user name in session payload, got %v", body["userName"])
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email": "ada@example.com", "password": "wrong-pass",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
	if body := decodeJSONBody(t, rec); body["code"] != "INVALID_CREDENTIALS" {
		t.Errorf("expected INVALID_CREDENTIALS, got %v", body["code"])
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms, okEnricher())
	mustBootstrap(t, svc)
	handler := NewHTTPServer(svc, "*").Handler()
	signedUp := signUp(t, handler, "ada@example.com", "Ada", "A-Team")
	refreshToken := signedUp["refreshToken"].(string)

	rec := doRequest(t, handler, http.MethodPost, "/api/session/refresh", "", map[string]any{
		"refreshToken": refreshToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeJSONBody(t, rec)
	if body["refreshToken"] == refreshToken {
		t.Error("refresh must rotate the refresh token")
	}
	if body["accessToken"] == "" {
		t.Error("expected a new access token")
	}

	// Replaying the consumed token fails.
	rec = doRequest(t, handler, http.MethodPost, "/api/session/refresh", "", map[string]any{
		"refreshToken": refreshToken,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for reused refresh token, got %d", rec.Code)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms, okEnricher())
	mustBootstrap(t, svc)
	handler := NewHTTPServer(svc, "*").Handler()
	signedUp := signUp(t, handler, "ada@example.com", "Ada", "A-Team")
	accessToken := signedUp["accessToken"].(string)

	rec := doRequest(t, handler, http.MethodPost, "/api/session/logout", accessToken, map[string]any{
		"refreshToken": signedUp["refreshToken"],
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/cards", accessToken, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
	rec = doRequest(t, handler, http.MethodPost, "/api/session/refresh", "", map[string]any{
		"refreshToken": signedUp["refreshToken"],
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked refresh token, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms, okEnricher())
	mustBootstrap(t, svc)
	handler := NewHTTPServer(svc, "*").Handler()

	for _, path := range []string{"/api/cards", "/api/teams", "/api/likes", "/api/search"} {
		rec := doRequest(t, handler, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: expected 401, got %d", path, rec.Code)
		}
	}

	rec := doRequest(t, handler, http.MethodGet, "/api/cards", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for garbage token, got %d", rec.Code)
	}
}
