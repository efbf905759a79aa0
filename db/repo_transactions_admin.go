package db

import (
	"context"
	"strings"
	"time"

	"gamelend/apperr"
	"gamelend/models"

	"gorm.io/gorm"
)

type TransactionsQuery struct {
	Status string // "", "borrowed", "returned", "overdue"
	UserID string
	Date   string // borrow day, YYYY-MM-DD
	Page   int
	Size   int
}

type PagedTransactions struct {
	Total        int64      `json:"total"`
	Transactions []LoanView `json:"transactions"`
}

// ListTransactions is the admin transaction listing. The overdue filter is
// derived from borrow_date; nothing is stored as overdue.
func (r *Repo) ListTransactions(ctx context.Context, q TransactionsQuery) (*PagedTransactions, error) {
	page, size := pageBounds(q.Page, q.Size, 200)

	var day time.Time
	if d := strings.TrimSpace(q.Date); d != "" {
		parsed, err := time.ParseInLocation("2006-01-02", d, time.UTC)
		if err != nil {
			return nil, apperr.Validation("date must be YYYY-MM-DD")
		}
		day = parsed
	}

	filtered := func() (*gorm.DB, error) {
		qry := r.loanBase(ctx)
		switch q.Status {
		case "":
		case models.TxBorrowed, models.TxReturned:
			qry = qry.Where("t.status = ?", q.Status)
		case models.TxOverdue:
			qry = qry.Where("t.status = ? AND t.borrow_date <= ?", models.TxBorrowed, r.Policy.Cutoff(r.now()))
		default:
			return nil, apperr.Validation("invalid status filter")
		}
		if uid := strings.TrimSpace(q.UserID); uid != "" {
			qry = qry.Where("t.user_id = ?", uid)
		}
		if !day.IsZero() {
			qry = qry.Where("t.borrow_date >= ? AND t.borrow_date < ?", day, day.Add(24*time.Hour))
		}
		return qry, nil
	}

	countQ, err := filtered()
	if err != nil {
		return nil, err
	}
	var total int64
	if err := countQ.Count(&total).Error; err != nil {
		return nil, apperr.Persistence(err, "database error")
	}

	listQ, _ := filtered()
	rows, err := r.scanLoans(listQ.
		Order("t.borrow_date DESC").
		Offset((page - 1) * size).
		Limit(size))
	if err != nil {
		return nil, err
	}
	return &PagedTransactions{Total: total, Transactions: rows}, nil
}

// UpdateTransactionStatus is the admin status change. Only "returned" is a
// real transition; overdue is derived and cannot be written.
func (r *Repo) UpdateTransactionStatus(ctx context.Context, actor models.Actor, id, status string) (*models.BorrowTransaction, error) {
	switch status {
	case models.TxReturned:
		return r.ReturnGame(ctx, actor, id)
	case models.TxOverdue:
		return nil, apperr.Validation("overdue is derived from the borrow date and cannot be set")
	default:
		return nil, apperr.Validation("invalid status")
	}
}
