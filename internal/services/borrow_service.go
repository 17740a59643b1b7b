package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"libraryhub/internal/metrics"
	"libraryhub/internal/models"
	"libraryhub/internal/repositories"
)

const defaultStoreTimeout = 5 * time.Second

// BorrowService is the borrow ledger: request creation, the status state
// machine and the reporting built on top of it.
//
// Callers of UpdateStatus are trusted to be staff; the role check happens at
// the API surface.
type BorrowService interface {
	CreateRequest(ctx context.Context, userID, bookID uuid.UUID) (*models.BorrowRequest, error)
	UpdateStatus(ctx context.Context, requestID uuid.UUID, target models.BorrowStatus) (*models.BorrowRequest, error)

	ListRequests(ctx context.Context, filter RequestFilter) ([]RequestView, error)
	History(ctx context.Context, userID uuid.UUID) ([]RequestView, error)
	OverdueSummary(ctx context.Context) (*OverdueSummary, error)
	ComputeFine(req *models.BorrowRequest, asOf time.Time) int
}

// RequestFilter narrows ListRequests. Zero-valued fields match everything.
type RequestFilter = repositories.BorrowFilter

// UserSummary is the part of a user shown next to a borrow request.
type UserSummary struct {
	ID    uuid.UUID       `json:"id"`
	Name  string          `json:"name"`
	Email string          `json:"email"`
	Role  models.UserRole `json:"role"`
}

// BookSummary is the part of a book shown next to a borrow request.
type BookSummary struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	ISBN      string    `json:"isbn"`
	Image     string    `json:"image"`
	Copies    int       `json:"copies"`
	Available int       `json:"available"`
}

// RequestView is a borrow request joined with its user and book. User or
// Book is nil when the referenced record no longer exists.
type RequestView struct {
	models.BorrowRequest
	User *UserSummary `json:"user"`
	Book *BookSummary `json:"book"`
	Fine int          `json:"fine"`
}

// OverdueSummary is a point-in-time tally of the loan book.
type OverdueSummary struct {
	AsOf             time.Time `json:"as_of"`
	PendingRequests  int       `json:"pending_requests"`
	ActiveLoans      int       `json:"active_loans"`
	OverdueLoans     int       `json:"overdue_loans"`
	OutstandingFines int       `json:"outstanding_fines"`
}

// BorrowOptions tunes the ledger. Zero values fall back to the defaults.
type BorrowOptions struct {
	LoanPeriod   time.Duration
	FinePerDay   int
	StoreTimeout time.Duration
	Now          func() time.Time
}

type borrowService struct {
	db         *gorm.DB
	userRepo   repositories.UserRepository
	bookRepo   repositories.BookRepository
	borrowRepo repositories.BorrowRequestRepository

	loanPeriod time.Duration
	fines      FinePolicy
	timeout    time.Duration
	now        func() time.Time
}

// NewBorrowService wires up all dependencies and returns a BorrowService.
func NewBorrowService(
	db *gorm.DB,
	userRepo repositories.UserRepository,
	bookRepo repositories.BookRepository,
	borrowRepo repositories.BorrowRequestRepository,
	opts BorrowOptions,
) BorrowService {
	s := &borrowService{
		db:         db,
		userRepo:   userRepo,
		bookRepo:   bookRepo,
		borrowRepo: borrowRepo,
		loanPeriod: opts.LoanPeriod,
		fines:      FinePolicy{PerDay: opts.FinePerDay},
		timeout:    opts.StoreTimeout,
		now:        opts.Now,
	}
	if s.loanPeriod <= 0 {
		s.loanPeriod = DefaultLoanPeriodDays * 24 * time.Hour
	}
	if s.fines.PerDay <= 0 {
		s.fines.PerDay = DefaultFinePerDay
	}
	if s.timeout <= 0 {
		s.timeout = defaultStoreTimeout
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// ─── Request creation ─────────────────────────────────────────────────────────

// CreateRequest records a pending request for userID on bookID.
//
// The book row is locked for the duration of the transaction, so concurrent
// requests for the same book are serialized; the partial unique index on
// (user_id, book_id) catches anything that slips through. A pending request
// does not reserve a copy.
func (s *borrowService) CreateRequest(ctx context.Context, userID, bookID uuid.UUID) (*models.BorrowRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var created *models.BorrowRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.userRepo.GetByID(tx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return storeError("load user", err)
		}

		book, err := s.bookRepo.GetByIDForUpdate(tx, bookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return storeError("lock book", err)
		}
		if book.Available <= 0 {
			log.Printf("[WARN] CreateRequest: book %s is out of stock, user %s", bookID, userID)
			return ErrOutOfStock
		}

		existing, err := s.borrowRepo.FindActive(tx, userID, bookID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return storeError("find active request", err)
		}
		if existing != nil {
			log.Printf("[WARN] CreateRequest: user %s already has %s request %s for book %s", userID, existing.Status, existing.ID, bookID)
			return ErrDuplicateActiveRequest
		}

		req := &models.BorrowRequest{
			UserID:      userID,
			BookID:      bookID,
			Status:      models.BorrowStatusPending,
			RequestDate: s.now(),
		}
		if err := s.borrowRepo.Create(tx, req); err != nil {
			if isUniqueViolation(err) {
				log.Printf("[WARN] CreateRequest: concurrent duplicate for user %s / book %s rejected by index", userID, bookID)
				return ErrDuplicateActiveRequest
			}
			return storeError("insert borrow request", err)
		}
		created = req
		return nil
	})
	if err != nil {
		err = storeError("create borrow request", err)
		s.recordFailure("create", err)
		return nil, err
	}

	metrics.BorrowRequestsCreated.Inc()
	log.Printf("[INFO] CreateRequest: request %s created for user %s / book %s", created.ID, userID, bookID)
	return created, nil
}

// ─── Status transitions ───────────────────────────────────────────────────────

// UpdateStatus moves a request to target if the transition table allows it.
//
// Steps (all in one transaction):
//  1. Lock the request row (FOR UPDATE).
//  2. Resolve the book; a missing book fails this call with ErrBookNotFound.
//  3. Check the transition table.
//  4. On accept/return, move the available counter with a conditional update.
//  5. Write the request, guarded on the status read in step 1.
func (s *borrowService) UpdateStatus(ctx context.Context, requestID uuid.UUID, target models.BorrowStatus) (*models.BorrowRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var updated *models.BorrowRequest
	var from models.BorrowStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := s.borrowRepo.GetByIDForUpdate(tx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return storeError("lock borrow request", err)
		}

		if _, err := s.bookRepo.GetByID(tx, req.BookID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("[WARN] UpdateStatus: request %s references missing book %s", requestID, req.BookID)
				return ErrBookNotFound
			}
			return storeError("load book", err)
		}

		from = req.Status
		if !from.CanTransitionTo(target) {
			return &InvalidTransitionError{From: from, To: target}
		}

		if delta := target.AvailabilityDelta(); delta != 0 {
			ok, err := s.bookRepo.AdjustAvailable(tx, req.BookID, delta)
			if err != nil {
				return storeError("adjust available copies", err)
			}
			if !ok {
				if delta < 0 {
					return ErrOutOfStock
				}
				return ErrCopiesAtCapacity
			}
		}

		now := s.now()
		switch target {
		case models.BorrowStatusAccepted:
			due := now.Add(s.loanPeriod)
			req.BorrowDate = &now
			req.ReturnDate = &due
		case models.BorrowStatusReturned:
			req.ActualReturnDate = &now
		}
		req.Status = target

		ok, err := s.borrowRepo.ApplyTransition(tx, req, from)
		if err != nil {
			return storeError("write borrow request", err)
		}
		if !ok {
			return &InvalidTransitionError{From: from, To: target}
		}
		updated = req
		return nil
	})
	if err != nil {
		err = storeError("update borrow status", err)
		s.recordFailure("update_status", err)
		log.Printf("[WARN] UpdateStatus: request %s -> %s failed: %v", requestID, target, err)
		return nil, err
	}

	metrics.BorrowTransitions.WithLabelValues(string(from), string(target)).Inc()
	log.Printf("[INFO] UpdateStatus: request %s %s -> %s (book=%s)", updated.ID, from, target, updated.BookID)
	return updated, nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

// ListRequests returns matching requests, newest first, with user and book
// summaries and the fine as of now.
func (s *borrowService) ListRequests(ctx context.Context, filter RequestFilter) ([]RequestView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	db := s.db.WithContext(ctx)
	reqs, err := s.borrowRepo.List(db, filter)
	if err != nil {
		return nil, storeError("list borrow requests", err)
	}
	return s.buildViews(db, reqs)
}

// History returns every request the user ever made.
func (s *borrowService) History(ctx context.Context, userID uuid.UUID) ([]RequestView, error) {
	return s.ListRequests(ctx, RequestFilter{UserID: userID})
}

// OverdueSummary tallies pending requests, active loans and overdue fines.
func (s *borrowService) OverdueSummary(ctx context.Context) (*OverdueSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	db := s.db.WithContext(ctx)
	pending, err := s.borrowRepo.List(db, RequestFilter{Status: models.BorrowStatusPending})
	if err != nil {
		return nil, storeError("list pending requests", err)
	}
	accepted, err := s.borrowRepo.List(db, RequestFilter{Status: models.BorrowStatusAccepted})
	if err != nil {
		return nil, storeError("list accepted requests", err)
	}

	now := s.now()
	summary := &OverdueSummary{
		AsOf:            now,
		PendingRequests: len(pending),
		ActiveLoans:     len(accepted),
	}
	for i := range accepted {
		if accepted[i].IsOverdue(now) {
			summary.OverdueLoans++
			summary.OutstandingFines += s.fines.Compute(&accepted[i], now)
		}
	}
	return summary, nil
}

// ComputeFine applies the fine policy. It is pure and safe to call repeatedly.
func (s *borrowService) ComputeFine(req *models.BorrowRequest, asOf time.Time) int {
	return s.fines.Compute(req, asOf)
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

func (s *borrowService) buildViews(db *gorm.DB, reqs []models.BorrowRequest) ([]RequestView, error) {
	userIDs := make([]uuid.UUID, 0, len(reqs))
	bookIDs := make([]uuid.UUID, 0, len(reqs))
	seenUser := make(map[uuid.UUID]bool)
	seenBook := make(map[uuid.UUID]bool)
	for _, r := range reqs {
		if !seenUser[r.UserID] {
			seenUser[r.UserID] = true
			userIDs = append(userIDs, r.UserID)
		}
		if !seenBook[r.BookID] {
			seenBook[r.BookID] = true
			bookIDs = append(bookIDs, r.BookID)
		}
	}

	users, err := s.userRepo.ListByIDs(db, userIDs)
	if err != nil {
		return nil, storeError("load request users", err)
	}
	books, err := s.bookRepo.ListByIDs(db, bookIDs)
	if err != nil {
		return nil, storeError("load request books", err)
	}

	userByID := make(map[uuid.UUID]*UserSummary, len(users))
	for _, u := range users {
		userByID[u.ID] = &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
	}
	bookByID := make(map[uuid.UUID]*BookSummary, len(books))
	for _, b := range books {
		bookByID[b.ID] = &BookSummary{
			ID:        b.ID,
			Title:     b.Title,
			Author:    b.Author,
			ISBN:      b.ISBN,
			Image:     b.Image,
			Copies:    b.Copies,
			Available: b.Available,
		}
	}

	now := s.now()
	views := make([]RequestView, 0, len(reqs))
	for i := range reqs {
		views = append(views, RequestView{
			BorrowRequest: reqs[i],
			User:          userByID[reqs[i].UserID],
			Book:          bookByID[reqs[i].BookID],
			Fine:          s.fines.Compute(&reqs[i], now),
		})
	}
	return views, nil
}

func (s *borrowService) recordFailure(op string, err error) {
	kind := KindOf(err)
	if kind == "" {
		kind = "internal"
	}
	metrics.BorrowFailures.WithLabelValues(op, string(kind)).Inc()
}
