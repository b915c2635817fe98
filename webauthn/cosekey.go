package webauthn

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// COSE constants for the two algorithms the engine offers.
const (
	coseKeyTypeEC2 = 2
	coseKeyTypeRSA = 3

	coseCurveP256 = 1

	// AlgES256 and AlgRS256 are the COSE algorithm identifiers advertised in
	// registration options and accepted from authenticators.
	AlgES256 int64 = -7
	AlgRS256 int64 = -257
)

// coseKeyHeader decodes just the common members of a COSE_Key map.
type coseKeyHeader struct {
	KeyType   int64 `cbor:"1,keyasint"`
	Algorithm int64 `cbor:"3,keyasint"`
}

type coseEC2Key struct {
	Curve int64  `cbor:"-1,keyasint"`
	X     []byte `cbor:"-2,keyasint"`
	Y     []byte `cbor:"-3,keyasint"`
}

type coseRSAKey struct {
	Modulus  []byte `cbor:"-1,keyasint"`
	Exponent []byte `cbor:"-2,keyasint"`
}

// checkCredentialPublicKey validates a freshly registered COSE key: it must
// decode, carry an algorithm we offered, and have the key material that
// algorithm needs.  Returns the algorithm identifier.
func checkCredentialPublicKey(coseKey []byte) (int64, error) {
	var hdr coseKeyHeader
	if err := cbor.Unmarshal(coseKey, &hdr); err != nil {
		return 0, fmt.Errorf("%w: cose key: %v", ErrAttestationParse, err)
	}
	switch hdr.Algorithm {
	case AlgES256:
		if hdr.KeyType != coseKeyTypeEC2 {
			return 0, fmt.Errorf("%w: ES256 with key type %d", ErrAttestationParse, hdr.KeyType)
		}
		var key coseEC2Key
		if err := cbor.Unmarshal(coseKey, &key); err != nil {
			return 0, fmt.Errorf("%w: ec2 key: %v", ErrAttestationParse, err)
		}
		if key.Curve != coseCurveP256 || len(key.X) == 0 || len(key.Y) == 0 {
			return 0, fmt.Errorf("%w: ec2 key missing P-256 coordinates", ErrAttestationParse)
		}
	case AlgRS256:
		if hdr.KeyType != coseKeyTypeRSA {
			return 0, fmt.Errorf("%w: RS256 with key type %d", ErrAttestationParse, hdr.KeyType)
		}
		var key coseRSAKey
		if err := cbor.Unmarshal(coseKey, &key); err != nil {
			return 0, fmt.Errorf("%w: rsa key: %v", ErrAttestationParse, err)
		}
		if len(key.Modulus) == 0 || len(key.Exponent) == 0 {
			return 0, fmt.Errorf("%w: rsa key missing modulus/exponent", ErrAttestationParse)
		}
	default:
		return 0, fmt.Errorf("%w: alg %d", ErrUnsupportedAlgorithm, hdr.Algorithm)
	}
	return hdr.Algorithm, nil
}

// verifySignature checks sig over message with the stored COSE public key.
// message is authenticatorData ‖ SHA-256(clientDataJSON); both supported
// algorithms hash it with SHA-256 before verifying.
func verifySignature(coseKey, message, sig []byte) error {
	var hdr coseKeyHeader
	if err := cbor.Unmarshal(coseKey, &hdr); err != nil {
		return fmt.Errorf("%w: stored cose key: %v", ErrAttestationParse, err)
	}
	digest := sha256.Sum256(message)

	switch hdr.Algorithm {
	case AlgES256:
		var key coseEC2Key
		if err := cbor.Unmarshal(coseKey, &key); err != nil {
			return fmt.Errorf("%w: stored ec2 key: %v", ErrAttestationParse, err)
		}
		pub := &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(key.X),
			Y:     new(big.Int).SetBytes(key.Y),
		}
		if !ecdsa.VerifyASN1(pub, digest[:], sig) {
			return ErrSignatureInvalid
		}
	case AlgRS256:
		var key coseRSAKey
		if err := cbor.Unmarshal(coseKey, &key); err != nil {
			return fmt.Errorf("%w: stored rsa key: %v", ErrAttestationParse, err)
		}
		pub := &rsa.PublicKey{
			N: new(big.Int).SetBytes(key.Modulus),
			E: int(new(big.Int).SetBytes(key.Exponent).Int64()),
		}
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
			return ErrSignatureInvalid
		}
	default:
		return fmt.Errorf("%w: alg %d", ErrUnsupportedAlgorithm, hdr.Algorithm)
	}
	return nil
}
