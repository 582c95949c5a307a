// Package repository implements plain-SQL persistence over MySQL. Sentinel
// errors defined here let handlers map failures to HTTP statuses without
// inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row. Handlers translate
// it into 404, or into an opaque 401 on auth paths.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource owned by someone else. Handlers translate it into 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an insert or update collides with existing
// state, such as a duplicate like on a watchlist. Handlers translate it
// into 409.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned when signup hits the unique email index.
var ErrEmailExists = errors.New("email already exists")

// ErrUsernameExists is returned when a username update hits the unique
// username index.
var ErrUsernameExists = errors.New("username already exists")
