package webauthn

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/panyam/smlogin"
)

// HandleUserFunc is called after a successful login ceremony so the host app
// can establish its session.  The callback owns the rest of the response.
type HandleUserFunc func(user *smlogin.User, w http.ResponseWriter, r *http.Request)

// Auth exposes the ceremony engine over HTTP, for mounting with
// App.AddAuth("/webauthn", auth.Handler()).  Routes (relative to the mount
// prefix): POST /register-options, /register, /login-options, /login.
// Request bodies are {"username": ...} for the option endpoints and
// {"username": ..., "credential": {...}} for the finish endpoints.
type Auth struct {
	Engine *Engine

	// HandleUser is invoked on successful login.  If nil, a bare 200 is
	// written instead.
	HandleUser HandleUserFunc

	mux *http.ServeMux
}

func (a *Auth) Handler() http.Handler {
	if a.mux == nil {
		a.mux = http.NewServeMux()
		a.mux.HandleFunc("POST /register-options", a.onRegisterOptions)
		a.mux.HandleFunc("POST /register", a.onRegister)
		a.mux.HandleFunc("POST /login-options", a.onLoginOptions)
		a.mux.HandleFunc("POST /login", a.onLogin)
	}
	return a.mux
}

func (a *Auth) onRegisterOptions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	options, err := a.Engine.BeginRegistration(req.Username)
	if err != nil {
		a.failCeremony(w, "registration failed", err)
		return
	}
	writeJSON(w, http.StatusOK, options)
}

func (a *Auth) onRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string                `json:"username"`
		Credential *RegistrationResponse `json:"credential"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.Engine.FinishRegistration(req.Username, req.Credential); err != nil {
		a.failCeremony(w, "registration failed", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *Auth) onLoginOptions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	options, err := a.Engine.BeginAuthentication(req.Username)
	if err != nil {
		a.failCeremony(w, "login failed", err)
		return
	}
	writeJSON(w, http.StatusOK, options)
}

func (a *Auth) onLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string                  `json:"username"`
		Credential *AuthenticationResponse `json:"credential"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := a.Engine.FinishAuthentication(req.Username, req.Credential)
	if err != nil {
		a.failCeremony(w, "login failed", err)
		return
	}
	if a.HandleUser != nil {
		a.HandleUser(user, w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// failCeremony logs the real failure and sends the client a uniform message.
// Which check failed (unknown user, bad signature, stale challenge, ...) is
// deliberately not distinguishable from the outside.
func (a *Auth) failCeremony(w http.ResponseWriter, msg string, err error) {
	log.Println("webauthn ceremony failed:", err)
	if IsCeremonyError(err) {
		writeError(w, http.StatusBadRequest, msg)
	} else {
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
