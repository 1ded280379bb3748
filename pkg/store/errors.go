package store

import "errors"

// ErrNotFound indicates a row was not found, e.g. a thread or contact
// lookup by id that no longer exists.
var ErrNotFound = errors.New("store: not found")

// ErrNoJobsAvailable names the case of nothing to lease this tick. DueJobs
// does not return it: it reports an empty batch as a nil slice and a nil
// error.
var ErrNoJobsAvailable = errors.New("store: no jobs available")
