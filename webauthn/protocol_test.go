package webauthn

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLEncodedBase64RoundTrip(t *testing.T) {
	in := URLEncodedBase64{0xfb, 0xef, 0x01, 0x02, 0x03}
	out, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `"--8BAgM"`, string(out))

	var back URLEncodedBase64
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, []byte(in), []byte(back))
}

// Old-school clients (including the original demo driver) send standard
// padded base64; decoding must tolerate it.
func TestURLEncodedBase64LenientDecode(t *testing.T) {
	raw := []byte{0xfb, 0xef, 0x01, 0x02, 0x03}
	std := base64.StdEncoding.EncodeToString(raw)

	var got URLEncodedBase64
	payload, err := json.Marshal(std)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, raw, []byte(got))
}

func TestURLEncodedBase64Null(t *testing.T) {
	var got URLEncodedBase64
	require.NoError(t, json.Unmarshal([]byte("null"), &got))
	assert.Empty(t, got)
}

func TestVerifyClientData(t *testing.T) {
	engine := newTestEngine()
	challenge := []byte("0123456789abcdef0123456789abcdef")
	enc := base64.RawURLEncoding.EncodeToString

	mk := func(typ, chal, origin string) []byte {
		raw, err := json.Marshal(map[string]string{
			"type": typ, "challenge": chal, "origin": origin,
		})
		require.NoError(t, err)
		return raw
	}

	err := engine.verifyClientData(mk("webauthn.get", enc(challenge), testOrigin), "webauthn.get", challenge)
	assert.NoError(t, err)

	err = engine.verifyClientData(mk("webauthn.get", enc([]byte("somebody else's challenge...!!!!")), testOrigin), "webauthn.get", challenge)
	assert.ErrorIs(t, err, ErrChallengeMismatch)

	err = engine.verifyClientData(mk("webauthn.get", enc(challenge), "https://phish.example.net"), "webauthn.get", challenge)
	assert.ErrorIs(t, err, ErrOriginMismatch)

	// Attestation response presented to a login ceremony.
	err = engine.verifyClientData(mk("webauthn.create", enc(challenge), testOrigin), "webauthn.get", challenge)
	assert.ErrorIs(t, err, ErrCeremonyTypeMismatch)

	err = engine.verifyClientData([]byte("{not json"), "webauthn.get", challenge)
	assert.ErrorIs(t, err, ErrClientDataParse)
}

// buildAuthData assembles the binary authenticator data layout by hand.
func buildAuthData(t *testing.T, rpID string, flags byte, signCount uint32, credID []byte, coseKey []byte) []byte {
	t.Helper()
	rpIDHash := sha256.Sum256([]byte(rpID))
	data := append([]byte{}, rpIDHash[:]...)
	data = append(data, flags)
	data = binary.BigEndian.AppendUint32(data, signCount)
	if flags&flagAttestedData != 0 {
		data = append(data, make([]byte, 16)...) // aaguid
		data = binary.BigEndian.AppendUint16(data, uint16(len(credID)))
		data = append(data, credID...)
		data = append(data, coseKey...)
	}
	return data
}

func TestParseAuthenticatorData(t *testing.T) {
	coseKey, err := cbor.Marshal(map[int]any{1: 2, 3: -7, -1: 1, -2: make([]byte, 32), -3: make([]byte, 32)})
	require.NoError(t, err)

	credID := []byte("a-test-credential-id")
	raw := buildAuthData(t, testRPID, flagUserPresent|flagAttestedData, 42, credID, coseKey)

	parsed, err := parseAuthenticatorData(raw)
	require.NoError(t, err)
	assert.True(t, parsed.UserPresent())
	assert.False(t, parsed.UserVerified())
	assert.True(t, parsed.HasAttestedData())
	assert.Equal(t, uint32(42), parsed.SignCount)
	assert.Equal(t, credID, parsed.CredentialID)
	assert.Equal(t, coseKey, parsed.CredentialPublicKey)

	want := sha256.Sum256([]byte(testRPID))
	assert.Equal(t, want[:], parsed.RPIDHash)
}

func TestParseAuthenticatorDataTruncated(t *testing.T) {
	for _, n := range []int{0, 10, 36} {
		_, err := parseAuthenticatorData(make([]byte, n))
		assert.ErrorIs(t, err, ErrAttestationParse, "length %d", n)
	}

	// AT flag set but no attested credential data behind it.
	raw := buildAuthData(t, testRPID, flagUserPresent, 0, nil, nil)
	raw[32] |= flagAttestedData
	_, err := parseAuthenticatorData(raw)
	assert.ErrorIs(t, err, ErrAttestationParse)
}

func TestParseAttestationObjectGarbage(t *testing.T) {
	_, err := parseAttestationObject([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.ErrorIs(t, err, ErrAttestationParse)
}

func TestCheckCredentialPublicKey(t *testing.T) {
	ec2, err := cbor.Marshal(map[int]any{1: 2, 3: -7, -1: 1, -2: make([]byte, 32), -3: make([]byte, 32)})
	require.NoError(t, err)
	alg, err := checkCredentialPublicKey(ec2)
	require.NoError(t, err)
	assert.Equal(t, AlgES256, alg)

	rsa, err := cbor.Marshal(map[int]any{1: 3, 3: -257, -1: make([]byte, 256), -2: []byte{1, 0, 1}})
	require.NoError(t, err)
	alg, err = checkCredentialPublicKey(rsa)
	require.NoError(t, err)
	assert.Equal(t, AlgRS256, alg)

	// EdDSA key: valid COSE, but not an algorithm we offer.
	ed, err := cbor.Marshal(map[int]any{1: 1, 3: -8, -1: 6, -2: make([]byte, 32)})
	require.NoError(t, err)
	_, err = checkCredentialPublicKey(ed)
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	_, err = checkCredentialPublicKey([]byte{0xff})
	assert.ErrorIs(t, err, ErrAttestationParse)
}
