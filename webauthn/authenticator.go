package webauthn

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Authenticator data flag bits.
const (
	flagUserPresent    byte = 1 << 0
	flagUserVerified   byte = 1 << 2
	flagAttestedData   byte = 1 << 6
	flagHasExtensions  byte = 1 << 7
)

// AuthenticatorData is the decoded form of the fixed binary structure every
// authenticator response carries:
//
//	rpIdHash (32) | flags (1) | signCount (4, big-endian) |
//	[attested credential data] | [extensions]
//
// Attested credential data (present only when the AT flag is set, i.e.
// during registration) is:
//
//	aaguid (16) | credIdLen (2, big-endian) | credId | COSE public key (CBOR)
type AuthenticatorData struct {
	Raw       []byte
	RPIDHash  []byte
	Flags     byte
	SignCount uint32

	// Attested credential data, nil unless the AT flag is set.
	AAGUID              []byte
	CredentialID        []byte
	CredentialPublicKey []byte
}

func (a *AuthenticatorData) UserPresent() bool  { return a.Flags&flagUserPresent != 0 }
func (a *AuthenticatorData) UserVerified() bool { return a.Flags&flagUserVerified != 0 }
func (a *AuthenticatorData) HasAttestedData() bool {
	return a.Flags&flagAttestedData != 0
}

// parseAuthenticatorData decodes data, including attested credential data
// when the AT flag says it is there.  The COSE key is kept as raw CBOR bytes
// so it can be stored verbatim and decoded again at login time.
func parseAuthenticatorData(data []byte) (*AuthenticatorData, error) {
	if len(data) < 37 {
		return nil, fmt.Errorf("%w: authenticator data truncated (%d bytes)", ErrAttestationParse, len(data))
	}
	out := &AuthenticatorData{
		Raw:       data,
		RPIDHash:  data[:32],
		Flags:     data[32],
		SignCount: binary.BigEndian.Uint32(data[33:37]),
	}
	rest := data[37:]
	if out.HasAttestedData() {
		if len(rest) < 18 {
			return nil, fmt.Errorf("%w: attested credential data truncated", ErrAttestationParse)
		}
		out.AAGUID = rest[:16]
		idLen := int(binary.BigEndian.Uint16(rest[16:18]))
		rest = rest[18:]
		if len(rest) < idLen {
			return nil, fmt.Errorf("%w: credential id truncated", ErrAttestationParse)
		}
		out.CredentialID = rest[:idLen]
		rest = rest[idLen:]

		// The COSE key is a CBOR map of unknown length; decode one item to
		// find where it ends and keep exactly those bytes.
		var key cbor.RawMessage
		tail, err := cbor.UnmarshalFirst(rest, &key)
		if err != nil {
			return nil, fmt.Errorf("%w: credential public key: %v", ErrAttestationParse, err)
		}
		out.CredentialPublicKey = rest[:len(rest)-len(tail)]
	}
	return out, nil
}

// attestationObject is the top-level CBOR map a registration response
// carries.  We run the "none" attestation model, so attStmt is decoded but
// never chased for a trust chain.
type attestationObject struct {
	Format   string          `cbor:"fmt"`
	AttStmt  cbor.RawMessage `cbor:"attStmt"`
	AuthData []byte          `cbor:"authData"`
}

// parseAttestationObject decodes the CBOR envelope and the authenticator
// data inside it.  Registration requires attested credential data, so its
// absence is a parse failure.
func parseAttestationObject(raw []byte) (*AuthenticatorData, error) {
	var att attestationObject
	if err := cbor.Unmarshal(raw, &att); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttestationParse, err)
	}
	authData, err := parseAuthenticatorData(att.AuthData)
	if err != nil {
		return nil, err
	}
	if !authData.HasAttestedData() || len(authData.CredentialID) == 0 {
		return nil, fmt.Errorf("%w: no attested credential data", ErrAttestationParse)
	}
	return authData, nil
}
