// Package repository defines the storage contracts shared by every backend
// and the sentinel errors they report. Handlers and services never see a
// driver error: backends translate duplicate keys, missing rows and
// malformed identifiers into the values below.
package repository

import "errors"

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned by UserStore.Create when the normalized email
// is already registered.
var ErrEmailExists = errors.New("email already exists")

// ErrInvalidID is returned when an identifier cannot be interpreted by the
// backend, e.g. a string that is not an ObjectID for MongoDB.
var ErrInvalidID = errors.New("invalid id")

// ErrDuplicateToken is returned by TokenStore.Store when the token digest is
// already present in the ledger.
var ErrDuplicateToken = errors.New("duplicate refresh token")
