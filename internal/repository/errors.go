// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios. For example, ErrCapacityExceeded signals that the bounded
// registration counter for an event is already at its limit, which is a
// business condition ("sold out") rather than a system fault, while
// ErrForbidden indicates that the current user is not authorized to
// perform an operation on a resource owned by someone else.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrCapacityExceeded is returned by TryReserveSpot when the event's
// registered count has reached its capacity.  The conditional UPDATE
// lost the race (or the event was simply full); no spot was taken.
// Handlers should translate this into an HTTP 409 "sold out" response.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// ErrEventNotFound is returned when the referenced event does not exist.
var ErrEventNotFound = errors.New("event not found")

// ErrPurchaseNotFound is returned when no purchase matches the query,
// including when FindPendingByUserAndEvent finds no open purchase for
// the (user, event) pair.
var ErrPurchaseNotFound = errors.New("purchase not found")
