package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	GameTable        = "games"
	TransactionTable = "borrow_transactions"
)

const (
	GameAvailable   = "available"
	GameBorrowed    = "borrowed"
	GameMaintenance = "maintenance"
)

const (
	TxBorrowed = "borrowed"
	TxReturned = "returned"
	// TxOverdue is a filter value only; it is derived from borrow_date and never stored.
	TxOverdue = "overdue"
)

// Game is one title on one platform. AvailableQuantity is the source of truth;
// Status is derived from it unless maintenance was requested.
type Game struct {
	ID                string         `gorm:"type:uuid;primaryKey" json:"id"`
	Title             string         `gorm:"size:200;not null;index" json:"title"`
	Platform          string         `gorm:"size:80;not null;index" json:"platform"`
	TotalQuantity     int            `gorm:"not null;default:0" json:"totalQuantity"`
	AvailableQuantity int            `gorm:"not null;default:0" json:"availableQuantity"`
	Status            string         `gorm:"size:20;not null;default:'available';index" json:"status"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

type BorrowTransaction struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string     `gorm:"type:uuid;index;not null" json:"userId"`
	GameID     string     `gorm:"type:uuid;index;not null" json:"gameId"`
	BorrowDate time.Time  `gorm:"index;not null" json:"borrowDate"`
	ReturnDate *time.Time `json:"returnDate,omitempty"`
	Status     string     `gorm:"size:20;not null;default:'borrowed';index" json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (Game) TableName() string              { return GameTable }
func (BorrowTransaction) TableName() string { return TransactionTable }
