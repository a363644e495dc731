package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateActiveSession is returned when a plate already has a checked-in session at the lot.
	ErrDuplicateActiveSession = errors.New("repository: vehicle already checked in at lot")
	// ErrStaleSession is returned when a guarded update finds the session in another state.
	ErrStaleSession = errors.New("repository: session state changed concurrently")
	// ErrAlreadyApplied is returned when the webhook ledger already holds the order reference.
	ErrAlreadyApplied = errors.New("repository: payment webhook already applied")
)
