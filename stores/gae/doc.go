//go:build !wasm
// +build !wasm

// Package gae provides Google Cloud Datastore implementations of the smlogin
// store interfaces.  It supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - User: User accounts (key name is the user ID)
//   - Username: Username -> user ID reservations for uniqueness
//   - Credential: Registered WebAuthn credentials (key name is the
//     base64url credential id)
//   - WebauthnChallenge: Pending ceremony challenges, one per
//     (username, ceremony kind)
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	userStore := gae.NewUserStore(client, "")  // default namespace
//	credStore := gae.NewCredentialStore(client, "")
//	challengeStore := gae.NewChallengeStore(client, "", 5*time.Minute)
package gae
