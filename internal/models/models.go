package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRole string

const (
	UserRoleUser      UserRole = "user"
	UserRoleAdmin     UserRole = "admin"
	UserRoleLibrarian UserRole = "librarian"
)

// ParseUserRole reports whether s names a known role.
func ParseUserRole(s string) (UserRole, bool) {
	switch r := UserRole(strings.ToLower(strings.TrimSpace(s))); r {
	case UserRoleUser, UserRoleAdmin, UserRoleLibrarian:
		return r, true
	}
	return "", false
}

// IsStaff reports whether the role may manage the catalog and borrow requests.
func (r UserRole) IsStaff() bool {
	return r == UserRoleAdmin || r == UserRoleLibrarian
}

type User struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Email          string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash   string    `gorm:"size:255;not null" json:"-"`
	Role           UserRole  `gorm:"size:20;not null;default:user" json:"role"`
	Address        string    `gorm:"size:255" json:"address"`
	Grade          string    `gorm:"size:64" json:"grade"`
	PhoneNumber    string    `gorm:"size:64" json:"phone_number"`
	ProfilePicture string    `gorm:"size:512" json:"profile_picture"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = UserRoleUser
	}
	return nil
}

// PhysicalBook is a borrowable catalog entry. Available is only ever changed
// by the borrow ledger on accept and return.
type PhysicalBook struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Author    string    `gorm:"size:255;not null" json:"author"`
	ISBN      string    `gorm:"column:isbn;size:32;not null;uniqueIndex" json:"isbn"`
	Publisher string    `gorm:"size:255" json:"publisher"`
	Year      int       `json:"year"`
	Copies    int       `gorm:"not null" json:"copies"`
	Available int       `gorm:"not null;default:0" json:"available"`
	Category  string    `gorm:"size:128" json:"category"`
	Image     string    `gorm:"size:512" json:"image"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *PhysicalBook) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

type Ebook struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Author    string    `gorm:"size:255;not null" json:"author"`
	ISBN      string    `gorm:"column:isbn;size:32;not null;uniqueIndex" json:"isbn"`
	Publisher string    `gorm:"size:255" json:"publisher"`
	Year      int       `json:"year"`
	Category  string    `gorm:"size:128" json:"category"`
	Image     string    `gorm:"size:512" json:"image"`
	PDF       string    `gorm:"column:pdf;size:512;not null" json:"pdf"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *Ebook) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// BorrowRequest is never deleted; terminal requests are the borrow history.
type BorrowRequest struct {
	ID               uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID    `gorm:"type:uuid;not null;index" json:"user_id"`
	BookID           uuid.UUID    `gorm:"type:uuid;not null;index" json:"book_id"`
	Status           BorrowStatus `gorm:"size:16;not null;index" json:"status"`
	RequestDate      time.Time    `gorm:"not null" json:"request_date"`
	BorrowDate       *time.Time   `json:"borrow_date"`
	ReturnDate       *time.Time   `json:"return_date"`
	ActualReturnDate *time.Time   `json:"actual_return_date"`
}

func (r *BorrowRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// IsOverdue reports whether an accepted loan is past its due date at asOf.
func (r *BorrowRequest) IsOverdue(asOf time.Time) bool {
	return r.Status == BorrowStatusAccepted && r.ReturnDate != nil && asOf.After(*r.ReturnDate)
}
