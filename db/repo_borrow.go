package db

import (
	"context"
	"time"

	"gamelend/apperr"
	"gamelend/lending"
	"gamelend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MsgNotAvailable    = "not available"
	MsgAlreadyBorrowed = "already borrowed by you"
	MsgInvalidReturn   = "invalid transaction or already returned"
)

// BorrowGame takes one free copy for the actor. The decrement is a single
// conditional UPDATE; when it matches no row the game is not available.
func (r *Repo) BorrowGame(ctx context.Context, actor models.Actor, gameID string) (*models.BorrowTransaction, error) {
	if actor.UserID == "" {
		return nil, apperr.New(apperr.CodeUnauthorized, "login required")
	}
	now := r.now()

	var bt *models.BorrowTransaction
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1) take a copy; the last copy flips the status to borrowed
		res := tx.Model(&models.Game{}).
			Where("id = ? AND status = ? AND available_quantity > 0", gameID, models.GameAvailable).
			Updates(map[string]any{
				"available_quantity": gorm.Expr("available_quantity - 1"),
				"status": gorm.Expr("CASE WHEN available_quantity - 1 > 0 THEN ? ELSE ? END",
					models.GameAvailable, models.GameBorrowed),
				"updated_at": now,
			})
		if res.Error != nil {
			return apperr.Persistence(res.Error, "database error")
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict(MsgNotAvailable)
		}

		// 2) one open borrow per user and game; the partial unique index backs this up
		var open int64
		if err := tx.Model(&models.BorrowTransaction{}).
			Where("user_id = ? AND game_id = ? AND status = ?", actor.UserID, gameID, models.TxBorrowed).
			Count(&open).Error; err != nil {
			return apperr.Persistence(err, "database error")
		}
		if open > 0 {
			return apperr.Conflict(MsgAlreadyBorrowed)
		}

		// 3) open the transaction
		t := &models.BorrowTransaction{
			ID:         uuid.NewString(),
			UserID:     actor.UserID,
			GameID:     gameID,
			BorrowDate: now,
			Status:     models.TxBorrowed,
		}
		if err := tx.Create(t).Error; err != nil {
			if isDuplicate(err) {
				return apperr.Conflict(MsgAlreadyBorrowed)
			}
			return apperr.Persistence(err, "insert failed")
		}
		bt = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bt, nil
}

// ReturnGame closes an open transaction. Customers may only close their own;
// a missing, foreign or already closed transaction is reported the same way.
func (r *Repo) ReturnGame(ctx context.Context, actor models.Actor, transactionID string) (*models.BorrowTransaction, error) {
	if actor.UserID == "" {
		return nil, apperr.New(apperr.CodeUnauthorized, "login required")
	}
	now := r.now()

	var bt models.BorrowTransaction
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.BorrowTransaction{}).
			Where("id = ? AND status = ?", transactionID, models.TxBorrowed)
		if !actor.IsAdmin() {
			q = q.Where("user_id = ?", actor.UserID)
		}
		res := q.Updates(map[string]any{
			"status":      models.TxReturned,
			"return_date": now,
			"updated_at":  now,
		})
		if res.Error != nil {
			return apperr.Persistence(res.Error, "database error")
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict(MsgInvalidReturn)
		}
		if err := tx.First(&bt, "id = ?", transactionID).Error; err != nil {
			return apperr.Persistence(err, "database error")
		}

		// Give the copy back, capped at the total; maintenance stays maintenance.
		newAvail := "CASE WHEN available_quantity < total_quantity THEN available_quantity + 1 ELSE total_quantity END"
		if err := tx.Model(&models.Game{}).
			Where("id = ?", bt.GameID).
			Updates(map[string]any{
				"available_quantity": gorm.Expr(newAvail),
				"status": gorm.Expr("CASE WHEN status = ? THEN ? WHEN ("+newAvail+") > 0 THEN ? ELSE ? END",
					models.GameMaintenance, models.GameMaintenance, models.GameAvailable, models.GameBorrowed),
				"updated_at": now,
			}).Error; err != nil {
			return apperr.Persistence(err, "database error")
		}

		if actor.IsAdmin() && actor.UserID != bt.UserID {
			return r.audit(tx, actor, ActionAdminReturn, "transaction", bt.ID, "user="+bt.UserID+" game="+bt.GameID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &bt, nil
}

// LoanView is a transaction joined with its user and game, plus the derived overdue view.
type LoanView struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Username      *string         `json:"username,omitempty"`
	Email         *string         `json:"email,omitempty"`
	FirstName     *string         `json:"firstName,omitempty"`
	LastName      *string         `json:"lastName,omitempty"`
	GameID        string          `json:"gameId"`
	Title         *string         `json:"title,omitempty"`
	Platform      *string         `json:"platform,omitempty"`
	BorrowDate    time.Time       `json:"borrowDate"`
	ReturnDate    *time.Time      `json:"returnDate,omitempty"`
	Status        string          `json:"status"`
	DisplayStatus string          `gorm:"-" json:"displayStatus"`
	DurationDays  int             `gorm:"-" json:"durationDays"`
	DaysRemaining *int            `gorm:"-" json:"daysRemaining,omitempty"`
	Overdue       lending.Overdue `gorm:"-" json:"overdue"`
}

// loanBase joins users and games without the soft-delete scope so history keeps its titles.
func (r *Repo) loanBase(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx).
		Table(models.TransactionTable+" t").
		Joins("LEFT JOIN "+models.UserTable+" u ON u.id = t.user_id").
		Joins("LEFT JOIN "+models.GameTable+" g ON g.id = t.game_id")
}

const loanColumns = `t.id, t.user_id, u.username, u.email, u.first_name, u.last_name,
	t.game_id, g.title, g.platform, t.borrow_date, t.return_date, t.status`

func (r *Repo) scanLoans(q *gorm.DB) ([]LoanView, error) {
	rows := []LoanView{}
	if err := q.Select(loanColumns).Scan(&rows).Error; err != nil {
		return nil, apperr.Persistence(err, "database error")
	}
	now := r.now()
	for i := range rows {
		r.decorate(&rows[i], now)
	}
	return rows, nil
}

// decorate fills the derived fields. Open loans are measured against now,
// returned ones against their return date.
func (r *Repo) decorate(v *LoanView, now time.Time) {
	end := now
	if v.Status == models.TxReturned && v.ReturnDate != nil {
		end = *v.ReturnDate
	}
	v.Overdue = r.Policy.Compute(v.BorrowDate, end)
	v.DurationDays = lending.DaysElapsed(v.BorrowDate, end)
	v.DisplayStatus = v.Status
	if v.Status == models.TxBorrowed {
		left := r.Policy.DaysRemaining(v.BorrowDate, now)
		v.DaysRemaining = &left
		if v.Overdue.IsOverdue {
			v.DisplayStatus = models.TxOverdue
		}
	}
}

// MyBorrowed lists the actor's open borrows, oldest first.
func (r *Repo) MyBorrowed(ctx context.Context, userID string) ([]LoanView, error) {
	return r.scanLoans(r.loanBase(ctx).
		Where("t.user_id = ? AND t.status = ?", userID, models.TxBorrowed).
		Order("t.borrow_date ASC"))
}

// MyHistory lists every transaction of the user, newest first. limit <= 0 means all.
func (r *Repo) MyHistory(ctx context.Context, userID string, limit int) ([]LoanView, error) {
	q := r.loanBase(ctx).
		Where("t.user_id = ?", userID).
		Order("t.borrow_date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.scanLoans(q)
}

type CustomerDashboard struct {
	User          *models.User `json:"user"`
	Borrowed      []LoanView   `json:"borrowed"`
	Recent        []LoanView   `json:"recent"`
	OverdueCount  int          `json:"overdueCount"`
	TotalBorrowed int64        `json:"totalBorrowed"`
}

func (r *Repo) MyDashboard(ctx context.Context, userID string) (*CustomerDashboard, error) {
	u, err := r.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	borrowed, err := r.MyBorrowed(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, err := r.MyHistory(ctx, userID, 5)
	if err != nil {
		return nil, err
	}
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.BorrowTransaction{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, apperr.Persistence(err, "database error")
	}
	d := &CustomerDashboard{User: u, Borrowed: borrowed, Recent: recent, TotalBorrowed: total}
	for _, b := range borrowed {
		if b.Overdue.IsOverdue {
			d.OverdueCount++
		}
	}
	return d, nil
}
