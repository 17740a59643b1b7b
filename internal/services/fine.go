package services

import (
	"time"

	"libraryhub/internal/models"
)

const (
	// DefaultLoanPeriodDays is the number of days between acceptance and the due date.
	DefaultLoanPeriodDays = 14

	// DefaultFinePerDay is charged for every started day past the due date.
	DefaultFinePerDay = 20
)

// FinePolicy computes overdue fines. It holds no state beyond the rate.
type FinePolicy struct {
	PerDay int
}

// Compute returns the fine owed for req as of asOf.
//
// Rules:
//   - pending and rejected requests never owe anything.
//   - accepted requests accrue PerDay for every started 24h past ReturnDate, up to asOf.
//   - returned requests accrue the same way but stop at ActualReturnDate.
//   - on or before the due date the fine is 0.
func (p FinePolicy) Compute(req *models.BorrowRequest, asOf time.Time) int {
	if req == nil || req.ReturnDate == nil {
		return 0
	}

	end := asOf
	switch req.Status {
	case models.BorrowStatusAccepted:
	case models.BorrowStatusReturned:
		if req.ActualReturnDate == nil {
			return 0
		}
		if req.ActualReturnDate.Before(end) {
			end = *req.ActualReturnDate
		}
	default:
		return 0
	}

	return p.PerDay * daysOverdue(*req.ReturnDate, end)
}

// daysOverdue is ceil((end - due) / 24h), or 0 when end is not after due.
func daysOverdue(due, end time.Time) int {
	late := end.Sub(due)
	if late <= 0 {
		return 0
	}
	const day = 24 * time.Hour
	days := int(late / day)
	if late%day != 0 {
		days++
	}
	return days
}
