// Package smlogin is a federated-login web application kit: it signs users in
// through third-party identity providers (Google and Facebook OAuth2, Okta
// OpenID Connect) and through WebAuthn public-key credentials, keeps a
// minimal user record, and renders a single status page.
//
// # Architecture
//
// User: a unique account, created on first login through any surface.  An
// OAuth user carries the provider and the provider's subject ID; a WebAuthn
// user carries a username and an opaque user handle.
//
// Credential: a public-key credential registered by an authenticator,
// belonging to exactly one user.  A user may register many credentials
// (laptop, phone, security key).
//
// Surfaces: the oauth2 subpackage wraps each external provider as a variant
// of one redirect/exchange/userinfo flow.  The webauthn subpackage is the
// real protocol machine - it builds ceremony options, verifies attestation
// and assertion responses, and enforces the sign-counter clone check.  Both
// report verified users through a HandleUser callback; App turns that into a
// session and a signed auth-token cookie.
//
// # Basic Usage
//
// Wire stores, the app, and the surfaces:
//
//	userStore := stores.NewMemUserStore()
//	credStore := stores.NewMemCredentialStore()
//	chalStore := stores.NewMemChallengeStore(5 * time.Minute)
//
//	app := smlogin.New("MyApp")
//	app.Session = scs.New()
//	app.UserStore = userStore
//
//	engine := &webauthn.Engine{
//	    Config:      webauthn.Config{RPID: "example.com", RPName: "My App", RPOrigin: "https://example.com"},
//	    Users:       userStore,
//	    Credentials: credStore,
//	    Challenges:  chalStore,
//	}
//	app.AddAuth("/webauthn", (&webauthn.Auth{Engine: engine, HandleUser: onWebAuthnUser}).Handler())
//	app.AddAuth("/auth/google", oauth2.NewGoogleOAuth2("", "", "", app.SaveUserAndRedirect).Handler())
//
// # Store Implementations
//
// The stores package has in-memory implementations suitable for development
// and tests.  stores/gorm persists users and credentials in any GORM
// database; stores/gae targets Google Cloud Datastore.  The challenge cache
// may stay process-local (in-memory) or move to the database when the app
// runs more than one replica.
//
// # Security
//
// Challenges are 32 cryptographically random bytes with a five minute
// lifetime and are consumed atomically on first use.  Verification failures
// are logged with detail but reported to clients as a generic failure.  A
// non-increasing sign counter fails the login and raises the engine's
// CloneAlert hook.
package smlogin
