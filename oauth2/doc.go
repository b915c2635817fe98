// Package oauth2 provides HTTP handlers for logging in with external
// OAuth2/OIDC providers (Google, Facebook, Okta).  Protocol mechanics are
// delegated to golang.org/x/oauth2; each provider type only picks endpoints,
// scopes and a userinfo URL on top of BaseOAuth2, and hands the resulting
// profile to the app's HandleUser callback.
package oauth2
