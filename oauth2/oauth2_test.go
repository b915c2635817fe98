package oauth2_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/panyam/smlogin/oauth2"
	oauth2lib "golang.org/x/oauth2"
)

// mockOAuthServer is a stand-in OIDC provider serving the okta-style
// /v1/token and /v1/userinfo endpoints.
type mockOAuthServer struct {
	server *httptest.Server

	tokenResponse    map[string]any
	userInfoResponse map[string]any
	tokenError       bool
	userInfoError    bool
}

func newMockOAuthServer() *mockOAuthServer {
	mock := &mockOAuthServer{
		tokenResponse: map[string]any{
			"access_token": "mock_access_token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		},
		userInfoResponse: map[string]any{
			"sub":   "okta-sub-12345",
			"email": "testuser@example.com",
			"name":  "Test User",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if mock.tokenError {
			http.Error(w, "token exchange failed", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.tokenResponse)
	})
	mux.HandleFunc("/v1/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if mock.userInfoError {
			http.Error(w, "user info failed", http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.userInfoResponse)
	})

	mock.server = httptest.NewServer(mux)
	return mock
}

func (m *mockOAuthServer) Close() {
	m.server.Close()
}

func TestOauthRedirector(t *testing.T) {
	config := &oauth2lib.Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/callback",
		Scopes:       []string{"email", "profile"},
		Endpoint: oauth2lib.Endpoint{
			AuthURL:  "https://provider.example.com/auth",
			TokenURL: "https://provider.example.com/token",
		},
	}
	redirector := oauth2.OauthRedirector(config)

	t.Run("redirects to provider with state cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		redirector(rr, req)

		if rr.Code != http.StatusFound {
			t.Fatalf("Expected status %d, got %d", http.StatusFound, rr.Code)
		}
		location := rr.Header().Get("Location")
		if !strings.HasPrefix(location, "https://provider.example.com/auth") {
			t.Errorf("Expected redirect to provider, got: %s", location)
		}
		parsedURL, err := url.Parse(location)
		if err != nil {
			t.Fatalf("Failed to parse redirect URL: %v", err)
		}
		query := parsedURL.Query()
		if query.Get("client_id") != "test-client-id" {
			t.Errorf("Expected client_id in URL")
		}

		var state string
		for _, cookie := range rr.Result().Cookies() {
			if cookie.Name == "oauthstate" {
				state = cookie.Value
			}
		}
		if state == "" {
			t.Fatal("Expected oauthstate cookie to be set")
		}
		if query.Get("state") != state {
			t.Errorf("State in URL (%s) does not match cookie (%s)", query.Get("state"), state)
		}
	})

	t.Run("remembers callbackURL in a cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?callbackURL=/after-login", nil)
		rr := httptest.NewRecorder()
		redirector(rr, req)

		found := false
		for _, cookie := range rr.Result().Cookies() {
			if cookie.Name == "oauthCallbackURL" && cookie.Value == "/after-login" {
				found = true
			}
		}
		if !found {
			t.Error("Expected oauthCallbackURL cookie")
		}
	})
}

func TestOktaCallbackFlow(t *testing.T) {
	mock := newMockOAuthServer()
	defer mock.Close()

	var gotProvider string
	var gotUserInfo map[string]any
	handleUser := func(authtype string, provider string, token *oauth2lib.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
		gotProvider = provider
		gotUserInfo = userInfo
		w.WriteHeader(http.StatusOK)
	}

	okta := oauth2.NewOktaOAuth2(mock.server.URL, "client-id", "client-secret", "http://localhost:8080/auth/okta/callback/", handleUser)
	handler := okta.Handler()

	req := httptest.NewRequest(http.MethodGet, "/callback/?state=test-state&code=test-code", nil)
	req.AddCookie(&http.Cookie{Name: "oauthstate", Value: "test-state"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 from HandleUser, got %d (location %s)", rr.Code, rr.Header().Get("Location"))
	}
	if gotProvider != "okta" {
		t.Errorf("provider = %q", gotProvider)
	}
	if gotUserInfo["sub"] != "okta-sub-12345" {
		t.Errorf("userinfo sub = %v", gotUserInfo["sub"])
	}
}

func TestOktaCallbackStateMismatch(t *testing.T) {
	mock := newMockOAuthServer()
	defer mock.Close()

	called := false
	handleUser := func(authtype string, provider string, token *oauth2lib.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
		called = true
	}
	okta := oauth2.NewOktaOAuth2(mock.server.URL, "client-id", "client-secret", "", handleUser)
	handler := okta.Handler()

	req := httptest.NewRequest(http.MethodGet, "/callback/?state=attacker-state&code=test-code", nil)
	req.AddCookie(&http.Cookie{Name: "oauthstate", Value: "real-state"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTemporaryRedirect {
		t.Fatalf("Expected redirect to failure page, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Location"), "/auth-failure") {
		t.Errorf("Location = %s", rr.Header().Get("Location"))
	}
	if called {
		t.Error("HandleUser must not run on state mismatch")
	}
}

func TestOktaCallbackMissingStateCookie(t *testing.T) {
	mock := newMockOAuthServer()
	defer mock.Close()

	okta := oauth2.NewOktaOAuth2(mock.server.URL, "client-id", "client-secret", "", nil)
	handler := okta.Handler()

	req := httptest.NewRequest(http.MethodGet, "/callback/?state=test-state&code=test-code", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTemporaryRedirect {
		t.Fatalf("Expected redirect to failure page, got %d", rr.Code)
	}
}

func TestOktaCallbackTokenError(t *testing.T) {
	mock := newMockOAuthServer()
	defer mock.Close()
	mock.tokenError = true

	called := false
	handleUser := func(authtype string, provider string, token *oauth2lib.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
		called = true
	}
	okta := oauth2.NewOktaOAuth2(mock.server.URL, "client-id", "client-secret", "", handleUser)
	handler := okta.Handler()

	req := httptest.NewRequest(http.MethodGet, "/callback/?state=test-state&code=bad-code", nil)
	req.AddCookie(&http.Cookie{Name: "oauthstate", Value: "test-state"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTemporaryRedirect {
		t.Fatalf("Expected redirect to failure page, got %d", rr.Code)
	}
	if called {
		t.Error("HandleUser must not run when the exchange fails")
	}
}

func TestProviderDefaults(t *testing.T) {
	google := oauth2.NewGoogleOAuth2("id", "secret", "http://localhost/cb", nil)
	if google.Provider != "google" {
		t.Errorf("provider = %q", google.Provider)
	}
	facebook := oauth2.NewFacebookOAuth2("id", "secret", "http://localhost/cb", nil)
	if !strings.Contains(facebook.UserInfoURL, "graph.facebook.com") {
		t.Errorf("facebook userinfo = %q", facebook.UserInfoURL)
	}
	okta := oauth2.NewOktaOAuth2("https://dev-1.okta.com/oauth2/default/", "id", "secret", "", nil)
	if okta.UserInfoURL != "https://dev-1.okta.com/oauth2/default/v1/userinfo" {
		t.Errorf("okta userinfo = %q", okta.UserInfoURL)
	}
}
