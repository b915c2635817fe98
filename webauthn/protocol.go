package webauthn

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// URLEncodedBase64 is a byte slice that travels over JSON as unpadded
// base64url, the encoding the WebAuthn browser API uses for binary fields.
// Decoding is lenient: it also accepts standard and padded alphabets, since
// naive clients (and the original demo's btoa-based driver) produce those.
type URLEncodedBase64 []byte

func (e URLEncodedBase64) MarshalJSON() ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	return json.Marshal(base64.RawURLEncoding.EncodeToString(e))
}

func (e *URLEncodedBase64) UnmarshalJSON(data []byte) error {
	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return err
	}
	out, err := DecodeBase64(encoded)
	if err != nil {
		return err
	}
	*e = out
	return nil
}

// DecodeBase64 decodes s regardless of which base64 alphabet/padding the
// client picked.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, "+", "-")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.TrimRight(s, "=")
	return base64.RawURLEncoding.DecodeString(s)
}

// Option structures sent to navigator.credentials.create/get.  Field names
// follow the WebAuthn level-2 dictionary names so the browser accepts them
// after the client decodes the base64url binary fields.

type RelyingPartyEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type UserEntity struct {
	ID          URLEncodedBase64 `json:"id"`
	Name        string           `json:"name"`
	DisplayName string           `json:"displayName"`
}

type CredentialParameter struct {
	Type string `json:"type"`
	Alg  int64  `json:"alg"`
}

type CredentialDescriptor struct {
	Type string           `json:"type"`
	ID   URLEncodedBase64 `json:"id"`
}

// RegistrationOptions is the PublicKeyCredentialCreationOptions dictionary.
type RegistrationOptions struct {
	RP                 RelyingPartyEntity     `json:"rp"`
	User               UserEntity             `json:"user"`
	Challenge          URLEncodedBase64       `json:"challenge"`
	PubKeyCredParams   []CredentialParameter  `json:"pubKeyCredParams"`
	Timeout            int64                  `json:"timeout,omitempty"`
	ExcludeCredentials []CredentialDescriptor `json:"excludeCredentials,omitempty"`
	Attestation        string                 `json:"attestation,omitempty"`
}

// AuthenticationOptions is the PublicKeyCredentialRequestOptions dictionary.
type AuthenticationOptions struct {
	Challenge        URLEncodedBase64       `json:"challenge"`
	Timeout          int64                  `json:"timeout,omitempty"`
	RPID             string                 `json:"rpId,omitempty"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials,omitempty"`
	UserVerification string                 `json:"userVerification,omitempty"`
}

// RegistrationResponse is the browser's PublicKeyCredential for a create()
// ceremony, with the binary members base64url-encoded by the client driver.
type RegistrationResponse struct {
	ID       string              `json:"id"`
	RawID    URLEncodedBase64    `json:"rawId"`
	Type     string              `json:"type"`
	Response AttestationResponse `json:"response"`
}

type AttestationResponse struct {
	AttestationObject URLEncodedBase64 `json:"attestationObject"`
	ClientDataJSON    URLEncodedBase64 `json:"clientDataJSON"`
}

// AuthenticationResponse is the browser's PublicKeyCredential for a get()
// ceremony.
type AuthenticationResponse struct {
	ID       string            `json:"id"`
	RawID    URLEncodedBase64  `json:"rawId"`
	Type     string            `json:"type"`
	Response AssertionResponse `json:"response"`
}

type AssertionResponse struct {
	AuthenticatorData URLEncodedBase64 `json:"authenticatorData"`
	ClientDataJSON    URLEncodedBase64 `json:"clientDataJSON"`
	Signature         URLEncodedBase64 `json:"signature"`
	UserHandle        URLEncodedBase64 `json:"userHandle,omitempty"`
}

// collectedClientData is the JSON document the browser assembles and the
// authenticator signs over (indirectly, via its hash).  Only the three
// members we verify are decoded.
type collectedClientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

func parseClientData(raw []byte) (*collectedClientData, error) {
	var cd collectedClientData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClientDataParse, err)
	}
	return &cd, nil
}
