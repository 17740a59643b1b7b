package models

import (
	"fmt"
	"strings"
)

type BorrowStatus string

const (
	BorrowStatusPending  BorrowStatus = "pending"
	BorrowStatusAccepted BorrowStatus = "accepted"
	BorrowStatusRejected BorrowStatus = "rejected"
	BorrowStatusReturned BorrowStatus = "returned"
)

// AllBorrowStatuses lists every status in lifecycle order.
var AllBorrowStatuses = []BorrowStatus{
	BorrowStatusPending,
	BorrowStatusAccepted,
	BorrowStatusRejected,
	BorrowStatusReturned,
}

// ActiveBorrowStatuses are the statuses that count as a hold on a book.
var ActiveBorrowStatuses = []BorrowStatus{BorrowStatusPending, BorrowStatusAccepted}

// borrowTransitions is the complete set of legal status changes. Any pair
// missing here is rejected.
var borrowTransitions = map[BorrowStatus][]BorrowStatus{
	BorrowStatusPending:  {BorrowStatusAccepted, BorrowStatusRejected},
	BorrowStatusAccepted: {BorrowStatusReturned},
}

// ParseBorrowStatus converts user input into a BorrowStatus.
func ParseBorrowStatus(s string) (BorrowStatus, error) {
	st := BorrowStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllBorrowStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown borrow status %q", s)
}

// CanTransitionTo reports whether moving from s to target is legal.
func (s BorrowStatus) CanTransitionTo(target BorrowStatus) bool {
	for _, next := range borrowTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsActive reports whether the status still holds the (user, book) pair.
func (s BorrowStatus) IsActive() bool {
	return s == BorrowStatusPending || s == BorrowStatusAccepted
}

// IsTerminal reports whether no further transitions exist from s.
func (s BorrowStatus) IsTerminal() bool {
	return len(borrowTransitions[s]) == 0
}

// AvailabilityDelta is the change to a book's available count when a
// request enters s.
func (s BorrowStatus) AvailabilityDelta() int {
	switch s {
	case BorrowStatusAccepted:
		return -1
	case BorrowStatusReturned:
		return 1
	}
	return 0
}
