// Package webauthn implements the WebAuthn/passkey registration and
// authentication ceremonies server-side, without an external RP library:
// attestation objects are decoded from CBOR, authenticator data is parsed
// from its fixed binary layout, and assertion signatures are verified with
// ES256 or RS256 against the stored COSE public key.
//
// The Engine holds no ceremony state of its own.  Begin* issues a random
// challenge into a ChallengeStore (one live challenge per username and
// ceremony kind, 5 minute TTL in the provided stores); Finish* consumes it
// atomically before verifying, so a response can never be replayed and two
// racing finishes for the same ceremony cannot both succeed.
//
// Login enforces a strictly-increasing signature counter.  A counter that
// fails to advance is treated as a possible cloned authenticator: the login
// is rejected and the optional CloneAlert hook fires.
//
// Auth wraps the engine in HTTP handlers compatible with the public/
// webauthn.js client driver, with a HandleUser callback for session
// establishment, mirroring the oauth2 package.
package webauthn
