package repositories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"libraryhub/internal/models"
)

// Every method takes the *gorm.DB to run against so services can pass a
// transaction or a context-scoped handle. A nil db falls back to the
// repository's own connection.

type UserRepository interface {
	Create(db *gorm.DB, user *models.User) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error)
	GetByEmail(db *gorm.DB, email string) (*models.User, error)
	ListByIDs(db *gorm.DB, ids []uuid.UUID) ([]models.User, error)
	Save(db *gorm.DB, user *models.User) error
	UpdateRole(db *gorm.DB, id uuid.UUID, role models.UserRole) (bool, error)
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.PhysicalBook) error
	List(db *gorm.DB) ([]models.PhysicalBook, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.PhysicalBook, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.PhysicalBook, error)
	GetByISBN(db *gorm.DB, isbn string) (*models.PhysicalBook, error)
	ListByIDs(db *gorm.DB, ids []uuid.UUID) ([]models.PhysicalBook, error)
	AdjustAvailable(db *gorm.DB, id uuid.UUID, delta int) (bool, error)
	AddCopies(db *gorm.DB, id uuid.UUID, count int) (bool, error)
	Delete(db *gorm.DB, id uuid.UUID) error
}

type EbookRepository interface {
	Create(db *gorm.DB, ebook *models.Ebook) error
	List(db *gorm.DB) ([]models.Ebook, error)
	DeleteByISBN(db *gorm.DB, isbn string) (bool, error)
}

type BorrowRequestRepository interface {
	Create(db *gorm.DB, req *models.BorrowRequest) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.BorrowRequest, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.BorrowRequest, error)
	FindActive(db *gorm.DB, userID, bookID uuid.UUID) (*models.BorrowRequest, error)
	CountActiveForBook(db *gorm.DB, bookID uuid.UUID) (int64, error)
	ApplyTransition(db *gorm.DB, req *models.BorrowRequest, from models.BorrowStatus) (bool, error)
	List(db *gorm.DB, filter BorrowFilter) ([]models.BorrowRequest, error)
}

// BorrowFilter narrows List. Zero-valued fields are ignored.
type BorrowFilter struct {
	Status models.BorrowStatus
	UserID uuid.UUID
	BookID uuid.UUID
}

// concrete implementations

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(db *gorm.DB, user *models.User) error {
	if db == nil {
		db = r.db
	}
	return db.Create(user).Error
}

func (r *userRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(db *gorm.DB, email string) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ListByIDs(db *gorm.DB, ids []uuid.UUID) ([]models.User, error) {
	if db == nil {
		db = r.db
	}
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	if err := db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) Save(db *gorm.DB, user *models.User) error {
	if db == nil {
		db = r.db
	}
	return db.Save(user).Error
}

func (r *userRepository) UpdateRole(db *gorm.DB, id uuid.UUID, role models.UserRole) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.User{}).Where("id = ?", id).Update("role", role)
	return res.RowsAffected == 1, res.Error
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.PhysicalBook) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) List(db *gorm.DB) ([]models.PhysicalBook, error) {
	if db == nil {
		db = r.db
	}
	var books []models.PhysicalBook
	if err := db.Order("title").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.PhysicalBook, error) {
	if db == nil {
		db = r.db
	}
	var book models.PhysicalBook
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.PhysicalBook, error) {
	if db == nil {
		db = r.db
	}
	var book models.PhysicalBook
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByISBN(db *gorm.DB, isbn string) (*models.PhysicalBook, error) {
	if db == nil {
		db = r.db
	}
	var book models.PhysicalBook
	if err := db.First(&book, "isbn = ?", isbn).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) ListByIDs(db *gorm.DB, ids []uuid.UUID) ([]models.PhysicalBook, error) {
	if db == nil {
		db = r.db
	}
	var books []models.PhysicalBook
	if len(ids) == 0 {
		return books, nil
	}
	if err := db.Where("id IN ?", ids).Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

// AdjustAvailable moves the available counter by delta in a single
// conditional UPDATE. It reports false, without error, when the result would
// leave 0 <= available <= copies.
func (r *bookRepository) AdjustAvailable(db *gorm.DB, id uuid.UUID, delta int) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.PhysicalBook{}).
		Where("id = ? AND available + ? >= 0 AND available + ? <= copies", id, delta, delta).
		UpdateColumn("available", gorm.Expr("available + ?", delta))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AddCopies grows both the total and the available count.
func (r *bookRepository) AddCopies(db *gorm.DB, id uuid.UUID, count int) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.PhysicalBook{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"copies":    gorm.Expr("copies + ?", count),
			"available": gorm.Expr("available + ?", count),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *bookRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.PhysicalBook{}, "id = ?", id).Error
}

type ebookRepository struct {
	db *gorm.DB
}

func NewEbookRepository(db *gorm.DB) EbookRepository {
	return &ebookRepository{db: db}
}

func (r *ebookRepository) Create(db *gorm.DB, ebook *models.Ebook) error {
	if db == nil {
		db = r.db
	}
	return db.Create(ebook).Error
}

func (r *ebookRepository) List(db *gorm.DB) ([]models.Ebook, error) {
	if db == nil {
		db = r.db
	}
	var ebooks []models.Ebook
	if err := db.Order("title").Find(&ebooks).Error; err != nil {
		return nil, err
	}
	return ebooks, nil
}

func (r *ebookRepository) DeleteByISBN(db *gorm.DB, isbn string) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Delete(&models.Ebook{}, "isbn = ?", isbn)
	return res.RowsAffected > 0, res.Error
}

type borrowRequestRepository struct {
	db *gorm.DB
}

func NewBorrowRequestRepository(db *gorm.DB) BorrowRequestRepository {
	return &borrowRequestRepository{db: db}
}

func (r *borrowRequestRepository) Create(db *gorm.DB, req *models.BorrowRequest) error {
	if db == nil {
		db = r.db
	}
	return db.Create(req).Error
}

func (r *borrowRequestRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.BorrowRequest, error) {
	if db == nil {
		db = r.db
	}
	var req models.BorrowRequest
	if err := db.First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *borrowRequestRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.BorrowRequest, error) {
	if db == nil {
		db = r.db
	}
	var req models.BorrowRequest
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *borrowRequestRepository) FindActive(db *gorm.DB, userID, bookID uuid.UUID) (*models.BorrowRequest, error) {
	if db == nil {
		db = r.db
	}
	var req models.BorrowRequest
	err := db.
		Where("user_id = ? AND book_id = ? AND status IN ?", userID, bookID, models.ActiveBorrowStatuses).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *borrowRequestRepository) CountActiveForBook(db *gorm.DB, bookID uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.BorrowRequest{}).
		Where("book_id = ? AND status IN ?", bookID, models.ActiveBorrowStatuses).
		Count(&n).Error
	return n, err
}

// ApplyTransition writes the status and date fields of req, but only if the
// stored row is still in status from. It reports whether the row was updated.
func (r *borrowRequestRepository) ApplyTransition(db *gorm.DB, req *models.BorrowRequest, from models.BorrowStatus) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.BorrowRequest{}).
		Where("id = ? AND status = ?", req.ID, from).
		Updates(map[string]interface{}{
			"status":             req.Status,
			"borrow_date":        req.BorrowDate,
			"return_date":        req.ReturnDate,
			"actual_return_date": req.ActualReturnDate,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *borrowRequestRepository) List(db *gorm.DB, filter BorrowFilter) ([]models.BorrowRequest, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.BorrowRequest{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.UserID != uuid.Nil {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.BookID != uuid.Nil {
		q = q.Where("book_id = ?", filter.BookID)
	}
	var reqs []models.BorrowRequest
	if err := q.Order("request_date DESC").Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}
