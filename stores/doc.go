// Package stores provides in-memory implementations of the smlogin store
// interfaces: users, credentials, and the short-lived WebAuthn challenge
// cache.  They are safe for concurrent use and are the defaults for the
// demo binary and the test suites.  Durable alternatives live in
// stores/gorm and stores/gae.
package stores
