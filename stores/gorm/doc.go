//go:build !wasm
// +build !wasm

// Package gorm provides GORM-backed implementations of the smlogin store
// interfaces (users, credentials, pending challenges).  Works with any GORM
// dialect; the demo binary uses sqlite.  Call AutoMigrate once at startup.
package gorm
