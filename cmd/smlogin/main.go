// Command smlogin runs the federated-login demo: a status page with
// Google/Facebook/Okta sign-in buttons and a WebAuthn username form, backed
// by a sqlite database.
//
// Configuration is via environment variables:
//
//	SMLOGIN_ADDR             listen address (default ":5000")
//	SMLOGIN_BASE_URL         externally visible base URL (default "http://localhost:5000")
//	SMLOGIN_DB               sqlite database path (default "smlogin.db")
//	SMLOGIN_AUTOCERT_DOMAIN  when set, serve TLS with Let's Encrypt certs for this domain
//	OAUTH2_GOOGLE_CLIENT_ID / OAUTH2_GOOGLE_CLIENT_SECRET
//	OAUTH2_FACEBOOK_CLIENT_ID / OAUTH2_FACEBOOK_CLIENT_SECRET
//	OAUTH2_OKTA_ISSUER / OAUTH2_OKTA_CLIENT_ID / OAUTH2_OKTA_CLIENT_SECRET
package main

import (
	"embed"
	"html/template"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/acme/autocert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	sm "github.com/panyam/smlogin"
	smoauth2 "github.com/panyam/smlogin/oauth2"
	"github.com/panyam/smlogin/stores"
	gormstores "github.com/panyam/smlogin/stores/gorm"
	"github.com/panyam/smlogin/webauthn"
)

//go:embed public
var publicFiles embed.FS

var statusPage = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Login Page</title>
    <style>
        body { font-family: sans-serif; text-align: center; margin-top: 50px; }
        button { margin: 10px; padding: 10px 20px; font-size: 16px; }
        input { padding: 10px; font-size: 16px; }
    </style>
</head>
<body>
    {{if .User}}
    <h1>You are now logged in with {{.User.Provider}}</h1>
    <p>Welcome, {{.User.DisplayName}}!</p>
    <a href="/logout?to=/"><button>Logout</button></a>
    {{else}}
    <h1>You are not logged in</h1>
    <a href="/auth/google"><button>Login with Google</button></a>
    <a href="/auth/facebook"><button>Login with Facebook</button></a>
    {{if .OktaEnabled}}<a href="/auth/okta"><button>Login with Okta</button></a>{{end}}
    <div>
        <input id="username" placeholder="Username for security key" />
        <button id="btn-register">Register Key</button>
        <button id="btn-login">Login with Key</button>
    </div>
    <script src="/static/webauthn.js"></script>
    {{end}}
</body>
</html>
`))

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func main() {
	addr := envOr("SMLOGIN_ADDR", ":5000")
	baseURL := envOr("SMLOGIN_BASE_URL", "http://localhost:5000")
	dbPath := envOr("SMLOGIN_DB", "smlogin.db")
	oktaIssuer := os.Getenv("OAUTH2_OKTA_ISSUER")

	base, err := url.Parse(baseURL)
	if err != nil {
		log.Fatalf("bad SMLOGIN_BASE_URL %q: %v", baseURL, err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to open database %q: %v", dbPath, err)
	}
	if err := gormstores.AutoMigrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}
	userStore := gormstores.NewUserStore(db)
	credStore := gormstores.NewCredentialStore(db)

	// Challenges are short lived so they stay in-process.  Switch to
	// gormstores.NewChallengeStore when running more than one replica.
	chalStore := stores.NewMemChallengeStore(stores.DefaultChallengeTTL)
	chalStore.StartReaper(time.Minute)
	defer chalStore.Stop()

	app := sm.New("SMLogin")
	app.Session = scs.New()
	app.UserStore = userStore

	engine := &webauthn.Engine{
		Config: webauthn.Config{
			RPID:     base.Hostname(),
			RPName:   "SMLogin Demo",
			RPOrigin: baseURL,
		},
		Users:       userStore,
		Credentials: credStore,
		Challenges:  chalStore,
	}
	wauth := &webauthn.Auth{
		Engine: engine,
		HandleUser: func(user *sm.User, w http.ResponseWriter, r *http.Request) {
			app.EstablishSession(user, w, r)
			w.WriteHeader(http.StatusOK)
		},
	}

	app.AddAuth("/auth/google", smoauth2.NewGoogleOAuth2(
		"", "", baseURL+"/auth/google/callback/", app.SaveUserAndRedirect).Handler())
	app.AddAuth("/auth/facebook", smoauth2.NewFacebookOAuth2(
		"", "", baseURL+"/auth/facebook/callback/", app.SaveUserAndRedirect).Handler())
	if oktaIssuer != "" {
		app.AddAuth("/auth/okta", smoauth2.NewOktaOAuth2(
			oktaIssuer, "", "", baseURL+"/auth/okta/callback/", app.SaveUserAndRedirect).Handler())
	}
	app.AddAuth("/webauthn", wauth.Handler())

	static, err := fs.Sub(publicFiles, "public")
	if err != nil {
		log.Fatal(err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		var user *sm.User
		if userId := app.Middleware.GetLoggedInUserId(r); userId != "" {
			u, err := userStore.GetUserById(userId)
			if err != nil {
				slog.Warn("session points at missing user", "userId", userId, "err", err)
			} else {
				user = u
			}
		}
		statusPage.Execute(w, map[string]any{
			"User":        user,
			"OktaEnabled": oktaIssuer != "",
		})
	}).Methods("GET")
	router.HandleFunc("/auth-failure", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Login failed.  <a href=\"/\">Back</a>"))
	})
	router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	router.PathPrefix("/").Handler(app.Handler())

	handler := app.Session.LoadAndSave(router)

	if domain := os.Getenv("SMLOGIN_AUTOCERT_DOMAIN"); domain != "" {
		manager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(domain),
			Cache:      autocert.DirCache(envOr("SMLOGIN_AUTOCERT_CACHE", ".autocert")),
		}
		server := &http.Server{
			Addr:      ":https",
			Handler:   handler,
			TLSConfig: manager.TLSConfig(),
		}
		go http.ListenAndServe(":http", manager.HTTPHandler(nil))
		log.Printf("Serving https://%s", domain)
		log.Fatal(server.ListenAndServeTLS("", ""))
	}

	log.Printf("Serving %s on %s", baseURL, addr)
	log.Fatal(http.ListenAndServe(addr, handler))
}
