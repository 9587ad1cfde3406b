// Package acorn holds the error taxonomy shared by every layer of the
// engine (Trunk, Root, Tree, Tangle, Grove). Components return or wrap these
// sentinels rather than inventing ad hoc error types, so callers can use
// errors.Is regardless of which layer raised the fault.
package acorn

import "errors"

var (
	// ErrNotFound is returned by Crack/Toss for a missing id. Never raised
	// by replication — a missing id during ImportChanges is simply a stash.
	ErrNotFound = errors.New("acorn: not found")

	// ErrStorageUnavailable signals a Trunk I/O failure. Tangles treat this
	// as transient and retry; local callers see it propagate.
	ErrStorageUnavailable = errors.New("acorn: storage unavailable")

	// ErrPolicyDenied signals a Root rejected the operation. Fatal to that
	// operation; never retried.
	ErrPolicyDenied = errors.New("acorn: policy denied")

	// ErrRootMismatch signals that on-disk signatures do not match the
	// configured pipeline. Fatal at open.
	ErrRootMismatch = errors.New("acorn: root signature mismatch")

	// ErrDuplicateType signals a Grove Plant conflict.
	ErrDuplicateType = errors.New("acorn: duplicate type in grove")

	// ErrConflictRejected signals the Judge rejected an incoming Nut during
	// replication. Non-fatal. ImportChanges does not return it; a rejected
	// Nut is counted in squabbles_resolved and reported as a Squabble event.
	ErrConflictRejected = errors.New("acorn: conflict rejected by judge")

	// ErrTransportFailed signals a Tangle network error. Non-fatal, backs
	// off and retries.
	ErrTransportFailed = errors.New("acorn: transport failed")

	// ErrExpired names a Nut whose expiry has passed. Crack reports absence
	// instead of returning it, and Shaken events carry no error, so no
	// engine component returns it.
	ErrExpired = errors.New("acorn: expired")

	// ErrEmptyID is a boundary-check error: ids must be non-empty.
	ErrEmptyID = errors.New("acorn: empty id")

	// ErrTypeMismatch signals that a payload at the Grove boundary could not
	// be decoded as the Tree's registered type. It is a caller error (bad
	// request body), never a storage or replication fault.
	ErrTypeMismatch = errors.New("acorn: payload type mismatch")
)
