package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
)

// BaseOAuth2 is the shared skeleton for the provider handlers.  Each
// provider (google, facebook, okta) is a thin variant that picks endpoints,
// scopes and a userinfo URL; the redirect/state-check/exchange/userinfo
// plumbing lives here.  Mount the Handler under a prefix like /auth/google:
// "/" starts the redirect dance, "/callback/" receives the provider's
// response.
type BaseOAuth2 struct {
	Provider     string
	ClientId     string
	ClientSecret string
	CallbackURL  string

	// UserInfoURL is fetched with the bearer token after the code exchange.
	UserInfoURL string

	// AuthFailureUrl is where the browser lands when any step fails.
	AuthFailureUrl string

	// HandleUser receives the provider profile on success and owns the rest
	// of the response (session establishment, redirect).
	HandleUser HandleUserFunc

	oauthConfig oauth2.Config
	httpClient  *http.Client
	mux         *http.ServeMux
}

// NewBaseOAuth2 fills in credentials from OAUTH2_<PROVIDER>_* env vars when
// the explicit values are empty, matching how the rest of the app is
// configured.
func NewBaseOAuth2(provider, clientId, clientSecret, callbackUrl string, handleUser HandleUserFunc) *BaseOAuth2 {
	envPrefix := "OAUTH2_" + strings.ToUpper(provider)
	if clientId == "" {
		clientId = os.Getenv(envPrefix + "_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv(envPrefix + "_CLIENT_SECRET")
	}
	if callbackUrl == "" {
		callbackUrl = os.Getenv(envPrefix + "_CALLBACK_URL")
	}
	out := &BaseOAuth2{
		Provider:       provider,
		ClientId:       clientId,
		ClientSecret:   clientSecret,
		CallbackURL:    callbackUrl,
		AuthFailureUrl: "/auth-failure",
		HandleUser:     handleUser,
		httpClient:     http.DefaultClient,
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
		},
	}
	return out
}

func (b *BaseOAuth2) Handler() http.Handler {
	if b.mux == nil {
		b.mux = http.NewServeMux()
		b.mux.HandleFunc("/", OauthRedirector(&b.oauthConfig))
		b.mux.HandleFunc("/callback/", b.handleCallback)
	}
	return b.mux
}

// SetHTTPClient swaps the client used for the code exchange and the userinfo
// fetch.  Tests point this at a mock provider.
func (b *BaseOAuth2) SetHTTPClient(client *http.Client) {
	b.httpClient = client
}

func (b *BaseOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
	oauthState, _ := r.Cookie("oauthstate")
	if oauthState == nil {
		log.Println("oauth state cookie missing")
		http.Redirect(w, r, b.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}
	if r.FormValue("state") != oauthState.Value {
		http.SetCookie(w, &http.Cookie{Name: "oauthstate", MaxAge: -1})
		log.Println("oauth state mismatch for provider: ", b.Provider)
		http.Redirect(w, r, b.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}

	token, err := b.ExchangeContext(r.Context(), r.FormValue("code"))
	if err != nil {
		log.Println("code exchange wrong: ", err)
		http.Redirect(w, r, b.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}
	userInfo, err := b.fetchUserInfo(r.Context(), token)
	if err != nil {
		log.Println("error fetching userinfo: ", err)
		http.Redirect(w, r, b.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}
	b.HandleUser("oauth", b.Provider, token, userInfo, w, r)
}

// ExchangeContext swaps the authorization code for tokens using our
// (possibly test-injected) http client.
func (b *BaseOAuth2) ExchangeContext(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	return b.oauthConfig.Exchange(ctx, code)
}

func (b *BaseOAuth2) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", b.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	response, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info: %s", err.Error())
	}
	defer response.Body.Close()
	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed read response: %s", err.Error())
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned %d: %s", response.StatusCode, contents)
	}
	var userInfo map[string]any
	if err := json.Unmarshal(contents, &userInfo); err != nil {
		return nil, err
	}
	return userInfo, nil
}
