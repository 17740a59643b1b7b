package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"libraryhub/internal/models"
	"libraryhub/internal/repositories"
)

// CatalogService manages physical books and ebooks. It never changes a
// book's available count except when adding copies.
type CatalogService interface {
	CreateBook(ctx context.Context, in BookInput) (*models.PhysicalBook, error)
	AddCopies(ctx context.Context, bookID uuid.UUID, count int) (*models.PhysicalBook, error)
	GetBook(ctx context.Context, bookID uuid.UUID) (*models.PhysicalBook, error)
	ListBooks(ctx context.Context) ([]models.PhysicalBook, error)
	DeleteBook(ctx context.Context, isbn string) error

	CreateEbook(ctx context.Context, in EbookInput) (*models.Ebook, error)
	ListEbooks(ctx context.Context) ([]models.Ebook, error)
	DeleteEbook(ctx context.Context, isbn string) error
}

type BookInput struct {
	Title     string
	Author    string
	ISBN      string
	Publisher string
	Year      int
	Copies    int
	Category  string
	Image     string
}

type EbookInput struct {
	Title     string
	Author    string
	ISBN      string
	Publisher string
	Year      int
	Category  string
	Image     string
	PDF       string
}

type catalogService struct {
	db         *gorm.DB
	bookRepo   repositories.BookRepository
	ebookRepo  repositories.EbookRepository
	borrowRepo repositories.BorrowRequestRepository
	timeout    time.Duration
}

// NewCatalogService wires up all dependencies and returns a CatalogService.
func NewCatalogService(
	db *gorm.DB,
	bookRepo repositories.BookRepository,
	ebookRepo repositories.EbookRepository,
	borrowRepo repositories.BorrowRequestRepository,
	storeTimeout time.Duration,
) CatalogService {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &catalogService{
		db:         db,
		bookRepo:   bookRepo,
		ebookRepo:  ebookRepo,
		borrowRepo: borrowRepo,
		timeout:    storeTimeout,
	}
}

// ─── Physical Books ───────────────────────────────────────────────────────────

// CreateBook adds a catalog entry with every copy on the shelf.
func (s *catalogService) CreateBook(ctx context.Context, in BookInput) (*models.PhysicalBook, error) {
	if err := requireFields(map[string]string{"title": in.Title, "author": in.Author, "isbn": in.ISBN}); err != nil {
		return nil, err
	}
	if in.Copies < 1 {
		return nil, ValidationError("copies must be at least 1")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	book := &models.PhysicalBook{
		Title:     strings.TrimSpace(in.Title),
		Author:    strings.TrimSpace(in.Author),
		ISBN:      strings.TrimSpace(in.ISBN),
		Publisher: in.Publisher,
		Year:      in.Year,
		Copies:    in.Copies,
		Available: in.Copies,
		Category:  in.Category,
		Image:     in.Image,
	}
	if err := s.bookRepo.Create(s.db.WithContext(ctx), book); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateISBN
		}
		log.Printf("[ERROR] CreateBook: failed to create book record: %v", err)
		return nil, storeError("create book", err)
	}
	log.Printf("[INFO] CreateBook: created book %q (id=%s) with %d copies", book.Title, book.ID, book.Copies)
	return book, nil
}

// AddCopies grows the total and available counts of an existing book.
func (s *catalogService) AddCopies(ctx context.Context, bookID uuid.UUID, count int) (*models.PhysicalBook, error) {
	if count <= 0 {
		return nil, ValidationError("count must be positive")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var book *models.PhysicalBook
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.bookRepo.AddCopies(tx, bookID, count)
		if err != nil {
			log.Printf("[ERROR] AddCopies: failed to add %d copies to book %s: %v", count, bookID, err)
			return storeError("add copies", err)
		}
		if !ok {
			return ErrBookNotFound
		}
		book, err = s.bookRepo.GetByID(tx, bookID)
		return storeError("reload book", err)
	})
	if err != nil {
		return nil, storeError("add copies", err)
	}
	log.Printf("[INFO] AddCopies: added %d copies to book %s (copies=%d, available=%d)", count, bookID, book.Copies, book.Available)
	return book, nil
}

func (s *catalogService) GetBook(ctx context.Context, bookID uuid.UUID) (*models.PhysicalBook, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	book, err := s.bookRepo.GetByID(s.db.WithContext(ctx), bookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, storeError("load book", err)
	}
	return book, nil
}

// ListBooks returns all books in the catalogue.
func (s *catalogService) ListBooks(ctx context.Context) ([]models.PhysicalBook, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	books, err := s.bookRepo.List(s.db.WithContext(ctx))
	return books, storeError("list books", err)
}

// DeleteBook removes a book by ISBN. Books with pending or accepted requests
// stay; their requests must be resolved first. Terminal requests keep
// pointing at the removed id.
func (s *catalogService) DeleteBook(ctx context.Context, isbn string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByISBN(tx, strings.TrimSpace(isbn))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return storeError("load book", err)
		}
		// take the row lock request creation also takes
		if _, err := s.bookRepo.GetByIDForUpdate(tx, book.ID); err != nil {
			return storeError("lock book", err)
		}

		active, err := s.borrowRepo.CountActiveForBook(tx, book.ID)
		if err != nil {
			return storeError("count active requests", err)
		}
		if active > 0 {
			log.Printf("[WARN] DeleteBook: book %s has %d active requests", book.ID, active)
			return ErrBookHasActiveRequests
		}
		return storeError("delete book", s.bookRepo.Delete(tx, book.ID))
	})
	if err != nil {
		return storeError("delete book", err)
	}
	log.Printf("[INFO] DeleteBook: deleted book isbn=%s", isbn)
	return nil
}

// ─── Ebooks ───────────────────────────────────────────────────────────────────

func (s *catalogService) CreateEbook(ctx context.Context, in EbookInput) (*models.Ebook, error) {
	if err := requireFields(map[string]string{"title": in.Title, "author": in.Author, "isbn": in.ISBN, "pdf": in.PDF}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ebook := &models.Ebook{
		Title:     strings.TrimSpace(in.Title),
		Author:    strings.TrimSpace(in.Author),
		ISBN:      strings.TrimSpace(in.ISBN),
		Publisher: in.Publisher,
		Year:      in.Year,
		Category:  in.Category,
		Image:     in.Image,
		PDF:       strings.TrimSpace(in.PDF),
	}
	if err := s.ebookRepo.Create(s.db.WithContext(ctx), ebook); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateISBN
		}
		return nil, storeError("create ebook", err)
	}
	log.Printf("[INFO] CreateEbook: created ebook %q (id=%s)", ebook.Title, ebook.ID)
	return ebook, nil
}

func (s *catalogService) ListEbooks(ctx context.Context) ([]models.Ebook, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ebooks, err := s.ebookRepo.List(s.db.WithContext(ctx))
	return ebooks, storeError("list ebooks", err)
}

func (s *catalogService) DeleteEbook(ctx context.Context, isbn string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.ebookRepo.DeleteByISBN(s.db.WithContext(ctx), strings.TrimSpace(isbn))
	if err != nil {
		return storeError("delete ebook", err)
	}
	if !ok {
		return ErrEbookNotFound
	}
	log.Printf("[INFO] DeleteEbook: deleted ebook isbn=%s", isbn)
	return nil
}

// requireFields reports the first missing field in a stable order.
func requireFields(fields map[string]string) error {
	for _, name := range []string{"title", "author", "isbn", "pdf"} {
		v, ok := fields[name]
		if ok && strings.TrimSpace(v) == "" {
			return ValidationError("%s is required", name)
		}
	}
	return nil
}
