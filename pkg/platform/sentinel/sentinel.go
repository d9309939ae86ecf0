package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and channel backends return
// these (optionally wrapped) so callers can branch without string matching.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrClosed: component already torn down; late callers treat this as a no-op
var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("closed")
)
