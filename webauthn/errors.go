package webauthn

import (
	"errors"

	"github.com/panyam/smlogin"
)

// Ceremony verification errors.  Handlers report these to clients as a
// generic "registration/login failed"; the detail is only ever logged.
var (
	// ErrNoPendingChallenge mirrors the challenge store sentinel: no live
	// begin* preceded this finish* (or it expired, or a concurrent finish
	// consumed it first).
	ErrNoPendingChallenge = smlogin.ErrNoPendingChallenge

	// ErrUsernameRequired is returned by begin*/finish* for an empty username.
	ErrUsernameRequired = errors.New("username required")

	// ErrMalformedResponse means the credential payload is missing required
	// parts (id, attestation object, client data, signature).
	ErrMalformedResponse = errors.New("malformed credential response")

	// ErrChallengeMismatch means the challenge embedded in the client data
	// payload is not byte-equal to the one this server issued.
	ErrChallengeMismatch = errors.New("challenge mismatch")

	// ErrOriginMismatch means the client data payload was produced for a
	// different web origin.
	ErrOriginMismatch = errors.New("origin mismatch")

	// ErrCeremonyTypeMismatch means a registration response was presented to
	// an authentication ceremony or vice versa.
	ErrCeremonyTypeMismatch = errors.New("ceremony type mismatch")

	// ErrClientDataParse means the client data payload was not valid JSON.
	ErrClientDataParse = errors.New("client data unparseable")

	// ErrAttestationParse means the attestation object or the authenticator
	// data inside it could not be decoded.
	ErrAttestationParse = errors.New("attestation unparseable")

	// ErrRPIDMismatch means the authenticator data was produced for a
	// different relying party.
	ErrRPIDMismatch = errors.New("relying party id mismatch")

	// ErrUnsupportedAlgorithm means the authenticator registered a public key
	// with an algorithm this server did not offer.
	ErrUnsupportedAlgorithm = errors.New("unsupported public key algorithm")

	// ErrSignatureInvalid means the assertion signature did not verify
	// against the stored public key.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrPossibleClone means the presented sign counter did not advance past
	// the stored one: either the credential was cloned or an old response was
	// replayed.  Always a hard failure.
	ErrPossibleClone = errors.New("possible cloned authenticator detected")

	// ErrUnknownUser means the username does not resolve to a user with at
	// least one registered credential.
	ErrUnknownUser = errors.New("unknown user")

	// ErrUnknownCredential means the presented credential id is not
	// registered to this user.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrUserHandleMismatch means the response carried a user handle that
	// does not belong to the authenticating user.
	ErrUserHandleMismatch = errors.New("user handle mismatch")
)

// ceremonyErrors is the closed set of user-caused failures.  Anything else
// coming out of the engine is a store/internal error and maps to a 5xx.
var ceremonyErrors = []error{
	ErrNoPendingChallenge,
	ErrUsernameRequired,
	ErrMalformedResponse,
	ErrChallengeMismatch,
	ErrOriginMismatch,
	ErrCeremonyTypeMismatch,
	ErrClientDataParse,
	ErrAttestationParse,
	ErrRPIDMismatch,
	ErrUnsupportedAlgorithm,
	ErrSignatureInvalid,
	ErrPossibleClone,
	ErrUnknownUser,
	ErrUnknownCredential,
	ErrUserHandleMismatch,
	smlogin.ErrCredentialExists,
}

// IsCeremonyError reports whether err is a verification/validation failure
// (client's fault) as opposed to a store failure (ours).
func IsCeremonyError(err error) bool {
	for _, e := range ceremonyErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
