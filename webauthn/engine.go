package webauthn

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/panyam/smlogin"
)

const (
	// DefaultChallengeSize is the challenge length issued by begin*.
	// The protocol minimum is 16 bytes; we issue 32.
	DefaultChallengeSize = 32

	// DefaultTimeout is the ceremony timeout hint sent to the browser.
	DefaultTimeout = 60 * time.Second
)

// Config identifies the relying party.  RPID is the effective domain
// (e.g. "localhost", "login.example.com"), RPOrigin the full web origin the
// browser reports (e.g. "http://localhost:3000").
type Config struct {
	RPID     string
	RPName   string
	RPOrigin string

	// Timeout is sent to the client in options.  The server-side challenge
	// TTL is owned by the ChallengeStore, not by this value.
	Timeout time.Duration

	ChallengeSize int
}

// Engine runs WebAuthn registration and authentication ceremonies.  It is
// stateless between calls: all in-flight ceremony state lives in the
// ChallengeStore, so any instance behind a load balancer can finish a
// ceremony another instance began (given a shared store).
type Engine struct {
	Config      Config
	Users       smlogin.UserStore
	Credentials smlogin.CredentialStore
	Challenges  smlogin.ChallengeStore

	// CloneAlert, if set, is called whenever a login presents a sign counter
	// that failed to advance.  The login has already been rejected; this is
	// for flagging the credential for review.
	CloneAlert func(cred *smlogin.Credential, presented uint32)
}

func (e *Engine) EnsureDefaults() {
	if e.Config.RPID == "" {
		e.Config.RPID = "localhost"
	}
	if e.Config.RPName == "" {
		e.Config.RPName = e.Config.RPID
	}
	if e.Config.RPOrigin == "" {
		e.Config.RPOrigin = "http://" + e.Config.RPID
	}
	if e.Config.Timeout <= 0 {
		e.Config.Timeout = DefaultTimeout
	}
	if e.Config.ChallengeSize < 16 {
		e.Config.ChallengeSize = DefaultChallengeSize
	}
}

// BeginRegistration provisions the user record if needed, issues a fresh
// challenge (replacing any pending registration challenge for this username)
// and returns the creation options for navigator.credentials.create.
func (e *Engine) BeginRegistration(username string) (*RegistrationOptions, error) {
	e.EnsureDefaults()
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}

	user, err := e.Users.FindUserByUsername(username)
	if errors.Is(err, smlogin.ErrUserNotFound) {
		user, err = e.Users.CreateUser(&smlogin.User{
			ID:          smlogin.NewUserID(),
			Username:    username,
			DisplayName: username,
			Provider:    "webauthn",
			Handle:      smlogin.NewUserHandle(),
		})
	}
	if err != nil {
		return nil, err
	}

	challenge, err := e.newChallenge()
	if err != nil {
		return nil, err
	}

	// Existing credentials go into excludeCredentials so the authenticator
	// refuses to re-register itself for this user.
	var exclude []CredentialDescriptor
	creds, err := e.Credentials.Credentials(user.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range creds {
		exclude = append(exclude, CredentialDescriptor{Type: "public-key", ID: c.ID})
	}

	if err := e.Challenges.PutChallenge(username, smlogin.ChallengeRegistration, challenge); err != nil {
		return nil, err
	}

	return &RegistrationOptions{
		RP:        RelyingPartyEntity{ID: e.Config.RPID, Name: e.Config.RPName},
		User:      UserEntity{ID: user.Handle, Name: user.Username, DisplayName: user.DisplayName},
		Challenge: challenge,
		PubKeyCredParams: []CredentialParameter{
			{Type: "public-key", Alg: AlgES256},
			{Type: "public-key", Alg: AlgRS256},
		},
		Timeout:            e.Config.Timeout.Milliseconds(),
		ExcludeCredentials: exclude,
		Attestation:        "none",
	}, nil
}

// FinishRegistration verifies an attestation response and persists the new
// credential.  The pending challenge is consumed up front, before any
// verification: a failed finish cannot be retried without a fresh begin.
func (e *Engine) FinishRegistration(username string, resp *RegistrationResponse) error {
	e.EnsureDefaults()
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrUsernameRequired
	}
	if resp == nil || len(resp.RawID) == 0 ||
		len(resp.Response.AttestationObject) == 0 || len(resp.Response.ClientDataJSON) == 0 {
		return ErrMalformedResponse
	}

	challenge, err := e.Challenges.TakeChallenge(username, smlogin.ChallengeRegistration)
	if err != nil {
		return err
	}

	user, err := e.Users.FindUserByUsername(username)
	if errors.Is(err, smlogin.ErrUserNotFound) {
		return ErrUnknownUser
	} else if err != nil {
		return err
	}

	if err := e.verifyClientData(resp.Response.ClientDataJSON, "webauthn.create", challenge); err != nil {
		return err
	}

	authData, err := parseAttestationObject(resp.Response.AttestationObject)
	if err != nil {
		return err
	}
	if err := e.verifyRPIDHash(authData); err != nil {
		return err
	}
	if !bytes.Equal(authData.CredentialID, resp.RawID) {
		return fmt.Errorf("%w: credential id does not match rawId", ErrAttestationParse)
	}
	if _, err := checkCredentialPublicKey(authData.CredentialPublicKey); err != nil {
		return err
	}

	err = e.Credentials.CreateCredential(&smlogin.Credential{
		ID:        authData.CredentialID,
		PublicKey: authData.CredentialPublicKey,
		SignCount: authData.SignCount,
		UserID:    user.ID,
	})
	if err != nil {
		return err
	}
	slog.Info("webauthn credential registered", "username", username, "credLen", len(authData.CredentialID))
	return nil
}

// BeginAuthentication issues a login challenge for a user who already has at
// least one registered credential and returns the request options for
// navigator.credentials.get.
func (e *Engine) BeginAuthentication(username string) (*AuthenticationOptions, error) {
	e.EnsureDefaults()
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}

	user, err := e.Users.FindUserByUsername(username)
	if errors.Is(err, smlogin.ErrUserNotFound) {
		return nil, ErrUnknownUser
	} else if err != nil {
		return nil, err
	}
	creds, err := e.Credentials.Credentials(user.ID)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, ErrUnknownUser
	}

	challenge, err := e.newChallenge()
	if err != nil {
		return nil, err
	}
	if err := e.Challenges.PutChallenge(username, smlogin.ChallengeAuthentication, challenge); err != nil {
		return nil, err
	}

	allowed := make([]CredentialDescriptor, 0, len(creds))
	for _, c := range creds {
		allowed = append(allowed, CredentialDescriptor{Type: "public-key", ID: c.ID})
	}
	return &AuthenticationOptions{
		Challenge:        challenge,
		Timeout:          e.Config.Timeout.Milliseconds(),
		RPID:             e.Config.RPID,
		AllowCredentials: allowed,
		UserVerification: "preferred",
	}, nil
}

// FinishAuthentication verifies an assertion response and returns the
// authenticated user.  As with registration, the challenge is consumed
// before verification, and of two racing finishes for the same ceremony at
// most one can succeed.
func (e *Engine) FinishAuthentication(username string, resp *AuthenticationResponse) (*smlogin.User, error) {
	e.EnsureDefaults()
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if resp == nil || len(resp.RawID) == 0 || len(resp.Response.Signature) == 0 ||
		len(resp.Response.AuthenticatorData) == 0 || len(resp.Response.ClientDataJSON) == 0 {
		return nil, ErrMalformedResponse
	}

	challenge, err := e.Challenges.TakeChallenge(username, smlogin.ChallengeAuthentication)
	if err != nil {
		return nil, err
	}

	user, err := e.Users.FindUserByUsername(username)
	if errors.Is(err, smlogin.ErrUserNotFound) {
		return nil, ErrUnknownUser
	} else if err != nil {
		return nil, err
	}

	// The credential must belong to this user, not merely exist.
	creds, err := e.Credentials.Credentials(user.ID)
	if err != nil {
		return nil, err
	}
	var cred *smlogin.Credential
	for _, c := range creds {
		if bytes.Equal(c.ID, resp.RawID) {
			cred = c
			break
		}
	}
	if cred == nil {
		return nil, ErrUnknownCredential
	}

	if len(resp.Response.UserHandle) > 0 && !bytes.Equal(resp.Response.UserHandle, user.Handle) {
		return nil, ErrUserHandleMismatch
	}

	if err := e.verifyClientData(resp.Response.ClientDataJSON, "webauthn.get", challenge); err != nil {
		return nil, err
	}

	authData, err := parseAuthenticatorData(resp.Response.AuthenticatorData)
	if err != nil {
		return nil, err
	}
	if err := e.verifyRPIDHash(authData); err != nil {
		return nil, err
	}

	// Signature is over authenticatorData ‖ SHA-256(clientDataJSON).
	clientDataHash := sha256.Sum256(resp.Response.ClientDataJSON)
	signed := make([]byte, 0, len(authData.Raw)+len(clientDataHash))
	signed = append(signed, authData.Raw...)
	signed = append(signed, clientDataHash[:]...)
	if err := verifySignature(cred.PublicKey, signed, resp.Response.Signature); err != nil {
		return nil, err
	}

	if err := e.applyCounterPolicy(cred, authData.SignCount); err != nil {
		return nil, err
	}
	return user, nil
}

// applyCounterPolicy enforces the strictly-increasing sign counter rule.
// A presented counter of zero means the authenticator does not maintain one,
// so no comparison is possible; any nonzero counter must advance past the
// stored value, and the store update is a compare-and-set so two racing
// logins cannot both bank the same increment.
func (e *Engine) applyCounterPolicy(cred *smlogin.Credential, presented uint32) error {
	if presented == 0 {
		return nil
	}
	if presented <= cred.SignCount {
		e.alertClone(cred, presented)
		return ErrPossibleClone
	}
	if err := e.Credentials.UpdateSignCount(cred.ID, cred.SignCount, presented); err != nil {
		if errors.Is(err, smlogin.ErrCounterConflict) {
			e.alertClone(cred, presented)
			return ErrPossibleClone
		}
		return err
	}
	return nil
}

func (e *Engine) alertClone(cred *smlogin.Credential, presented uint32) {
	slog.Warn("webauthn counter did not advance - possible cloned authenticator",
		"userId", cred.UserID, "stored", cred.SignCount, "presented", presented)
	if e.CloneAlert != nil {
		e.CloneAlert(cred, presented)
	}
}

// verifyClientData checks the three members of the collected client data:
// ceremony type, challenge echo, and origin.
func (e *Engine) verifyClientData(raw []byte, ceremonyType string, challenge []byte) error {
	cd, err := parseClientData(raw)
	if err != nil {
		return err
	}
	got, err := DecodeBase64(cd.Challenge)
	if err != nil {
		return fmt.Errorf("%w: challenge undecodable", ErrClientDataParse)
	}
	if subtle.ConstantTimeCompare(got, challenge) != 1 {
		return ErrChallengeMismatch
	}
	if cd.Origin != e.Config.RPOrigin {
		return fmt.Errorf("%w: got %q want %q", ErrOriginMismatch, cd.Origin, e.Config.RPOrigin)
	}
	if cd.Type != ceremonyType {
		return fmt.Errorf("%w: got %q want %q", ErrCeremonyTypeMismatch, cd.Type, ceremonyType)
	}
	return nil
}

func (e *Engine) verifyRPIDHash(authData *AuthenticatorData) error {
	want := sha256.Sum256([]byte(e.Config.RPID))
	if !bytes.Equal(authData.RPIDHash, want[:]) {
		return ErrRPIDMismatch
	}
	return nil
}

func (e *Engine) newChallenge() ([]byte, error) {
	b := make([]byte, e.Config.ChallengeSize)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
