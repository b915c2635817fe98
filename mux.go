package smlogin

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// App ties the authentication surfaces (OAuth providers, WebAuthn ceremonies)
// to a session: whoever a surface verifies, App turns into a logged-in user
// with a session entry and a signed auth-token cookie.
type App struct {
	mux        *http.ServeMux
	Session    *scs.SessionManager
	Middleware Middleware

	// Optional name used as a prefix for defaults below
	AppName string

	// Name of the session variable (and cookie) where the auth token is stored
	AuthTokenSessionVar string

	// Must be passed in
	UserStore UserStore

	// All the domains where the auth token cookies will be set on a login success or logout
	CookieDomains []string

	// JWT related fields
	JwtIssuer    string
	JWTSecretKey string

	// How long is a session cookie valid for.  Defaults to 1 day
	SessionTimeoutInSeconds int
}

func New(appName string) *App {
	return (&App{AppName: appName}).EnsureDefaults()
}

func (a *App) EnsureDefaults() *App {
	if a.AppName == "" {
		a.AppName = "SMLogin"
	}
	if a.SessionTimeoutInSeconds <= 0 {
		a.SessionTimeoutInSeconds = 86400
	}
	if a.JwtIssuer == "" {
		a.JwtIssuer = fmt.Sprintf("%s-Issuer", a.AppName)
	}
	if a.AuthTokenSessionVar == "" {
		a.AuthTokenSessionVar = fmt.Sprintf("%sAuthToken", a.AppName)
	}
	if a.JWTSecretKey == "" {
		a.JWTSecretKey = strings.TrimSpace(os.Getenv("SMLOGIN_JWT_SECRET_KEY"))
		if a.JWTSecretKey == "" {
			a.JWTSecretKey = "MyTestJWTSecretKey123456"
		}
	}
	if a.Middleware.AuthTokenCookieName == "" {
		a.Middleware.AuthTokenCookieName = a.AuthTokenSessionVar
	}
	if a.Middleware.VerifyToken == nil {
		a.Middleware.VerifyToken = a.VerifyAuthToken
	}
	return a
}

func (a *App) Handler() http.Handler {
	return a.setupRoutes().mux
}

// AddAuth mounts an auth surface (an oauth2 provider handler, the webauthn
// ceremony handler, ...) under the given prefix.
func (a *App) AddAuth(prefix string, handler http.Handler) *App {
	a.setupRoutes()
	a.EnsureDefaults()
	prefix = strings.TrimSuffix(prefix, "/")

	// Subtree registration so the handler sees /callback/, /register, etc.
	a.mux.Handle(prefix+"/", http.StripPrefix(prefix, handler))

	// Redirect the bare prefix to prefix/ so StripPrefix never produces an
	// empty path.  308 preserves the method for POSTed ceremony steps.
	a.mux.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		origPath := r.RequestURI
		if idx := strings.Index(origPath, "?"); idx != -1 {
			origPath = origPath[:idx]
		}
		target := origPath + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
	})
	return a
}

func (a *App) setupRoutes() *App {
	if a.mux == nil {
		a.mux = http.NewServeMux()
		a.mux.HandleFunc("/logout", a.onLogout)
	}
	return a
}

// VerifyAuthToken parses and verifies an auth-token JWT, returning the
// logged in user ID it was issued for.
func (a *App) VerifyAuthToken(tokenString string) (loggedInUserId string, t any, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(a.JWTSecretKey), nil
	})
	if err != nil {
		return "", nil, err
	}
	if !token.Valid {
		return "", nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return "", nil, fmt.Errorf("claims is not a map")
	}
	sub, err := claims.GetSubject()
	if sub == "" {
		return "", nil, fmt.Errorf("subject not found")
	} else if err != nil {
		return "", nil, err
	}
	return sub, token, nil
}

func (a *App) onLogout(w http.ResponseWriter, r *http.Request) {
	a.setLoggedInUser(nil, w, r)
	toUrl := r.URL.Query()["to"]
	if len(toUrl) == 0 || toUrl[0] == "" {
		fmt.Fprintf(w, "Logged Out")
	} else {
		http.Redirect(w, r, toUrl[0], http.StatusFound)
	}
}

// SaveUserAndRedirect is the HandleUser callback for OAuth providers: called
// with the provider token and userinfo after a successful redirect flow.
// Finds-or-creates the user record, establishes the session and sends the
// browser back to where it came from.
func (a *App) SaveUserAndRedirect(authtype, provider string, token *oauth2.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
	providerID := providerSubject(userInfo)
	if providerID == "" {
		slog.Warn("provider returned no subject/id", "provider", provider)
		http.Error(w, "Login Failed", http.StatusUnauthorized)
		return
	}
	user, err := a.UserStore.EnsureProviderUser(provider, providerID, userInfo)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	a.setLoggedInUser(user, w, r)

	// Auth done - go back to where we need to be
	callbackURL := "/"
	if cookie, _ := r.Cookie("oauthCallbackURL"); cookie != nil && cookie.Value != "" {
		callbackURL = cookie.Value
	}
	if u, _ := url.Parse(callbackURL); u != nil && u.Scheme == "" {
		callbackURL = os.Getenv("OAUTH2_BASE_URL") + callbackURL
	}
	// delete it too so it wont be used for subsequent redirects
	http.SetCookie(w, &http.Cookie{
		Name:   "oauthCallbackURL",
		Value:  "",
		Path:   "/",
		MaxAge: -1, Expires: time.Now(),
	})
	http.Redirect(w, r, callbackURL, http.StatusFound)
}

// EstablishSession logs a verified user in without redirecting.  This is the
// session half of a WebAuthn ceremony: the ceremony handler verifies, we
// establish.
func (a *App) EstablishSession(user *User, w http.ResponseWriter, r *http.Request) string {
	return a.setLoggedInUser(user, w, r)
}

// Logout clears the session and all auth cookies.
func (a *App) Logout(w http.ResponseWriter, r *http.Request) {
	a.setLoggedInUser(nil, w, r)
}

// Sets the auth token and logged in user ID cookies on the domains we care
// about.  Passing nil logs the current user out.
func (a *App) setLoggedInUser(user *User, w http.ResponseWriter, r *http.Request) string {
	a.EnsureDefaults()
	domains := a.CookieDomains
	if slices.Index(a.CookieDomains, "") < 0 { // default domain
		domains = append(domains, "")
	}
	for _, cookieDomain := range domains {
		http.SetCookie(w, &http.Cookie{
			Name:   "oauthstate",
			Value:  "",
			MaxAge: -1, Expires: time.Now(),
			Domain: cookieDomain,
			Path:   "/",
		})

		if user != nil {
			a.Session.Put(r.Context(), "loggedInUserId", user.ID)
			http.SetCookie(w, &http.Cookie{
				Name:    "loggedInUserId",
				Value:   user.ID,
				Domain:  cookieDomain,
				Path:    "/",
				Expires: time.Now().Add(time.Second * time.Duration(a.SessionTimeoutInSeconds)), MaxAge: a.SessionTimeoutInSeconds,
			})

			token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
				"sub": user.ID,
				"iss": a.JwtIssuer,
				"aud": "user",
				"exp": time.Now().Add(time.Hour).Unix(),
				"iat": time.Now().Unix(),
			})
			tokenString, err := token.SignedString([]byte(a.JWTSecretKey))
			if err != nil {
				slog.Info("error signing token", "err", err)
			}

			a.Session.Put(r.Context(), a.AuthTokenSessionVar, tokenString)
			http.SetCookie(w, &http.Cookie{
				Name:    a.AuthTokenSessionVar,
				Value:   tokenString,
				Domain:  cookieDomain,
				Path:    "/",
				Expires: time.Now().Add(time.Second * time.Duration(a.SessionTimeoutInSeconds)), MaxAge: a.SessionTimeoutInSeconds,
			})
			return tokenString
		} else {
			log.Println("Logging out user")
			if err := a.Session.Clear(r.Context()); err != nil {
				slog.Warn("error clearing session ", "err", err)
			}
			http.SetCookie(w, &http.Cookie{
				Name:    "loggedInUserId",
				Domain:  cookieDomain,
				Path:    "/",
				MaxAge:  -1,
				Expires: time.Now(),
			})
			http.SetCookie(w, &http.Cookie{
				Name:    a.AuthTokenSessionVar,
				Domain:  cookieDomain,
				Path:    "/",
				MaxAge:  -1,
				Expires: time.Now(),
			})
		}
	}
	return ""
}

// providerSubject digs the stable subject identifier out of a provider
// userinfo map.  Google/Facebook return "id", OIDC providers return "sub".
func providerSubject(userInfo map[string]any) string {
	for _, key := range []string{"sub", "id"} {
		switch v := userInfo[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
