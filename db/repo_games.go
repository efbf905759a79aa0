package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamelend/apperr"
	"gamelend/lending"
	"gamelend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MsgGameIsBorrowed = "cannot delete a game that is currently borrowed"
)

type AddGamesInput struct {
	Title     string
	Platforms []lending.PlatformQuantity
	Status    string
}

// AddGames inserts one row per distinct platform. Either every row is stored or none.
func (r *Repo) AddGames(ctx context.Context, actor models.Actor, in AddGamesInput) ([]models.Game, error) {
	title := strings.TrimSpace(in.Title)
	pairs := lending.AggregatePlatforms(in.Platforms)
	if title == "" || len(pairs) == 0 {
		return nil, apperr.Validation("validation failed")
	}
	status := in.Status
	if status == "" {
		status = models.GameAvailable
	}
	if !lending.ValidGameStatus(status) {
		return nil, apperr.Validation("invalid status")
	}

	var games []models.Game
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, pq := range pairs {
			var n int64
			if err := tx.Model(&models.Game{}).
				Where("LOWER(title) = ? AND platform = ?", strings.ToLower(title), pq.Platform).
				Count(&n).Error; err != nil {
				return apperr.Persistence(err, "insert failed")
			}
			if n > 0 {
				return apperr.Conflict(duplicateGameMsg(title, pq.Platform))
			}

			avail := lending.InitialAvailable(status, pq.Quantity)
			g := models.Game{
				ID:                uuid.NewString(),
				Title:             title,
				Platform:          pq.Platform,
				TotalQuantity:     pq.Quantity,
				AvailableQuantity: avail,
				Status:            lending.DeriveStatus(status, avail),
			}
			if err := tx.Create(&g).Error; err != nil {
				if isDuplicate(err) {
					return apperr.Conflict(duplicateGameMsg(title, pq.Platform))
				}
				return apperr.Persistence(err, "insert failed")
			}
			games = append(games, g)
		}

		ids := make([]string, 0, len(games))
		for _, g := range games {
			ids = append(ids, g.Platform+"="+g.ID)
		}
		return r.audit(tx, actor, ActionGameAdd, "game", games[0].ID, title+" "+strings.Join(ids, ","))
	})
	if err != nil {
		return nil, err
	}
	return games, nil
}

type EditGameInput struct {
	Title             string
	Platform          string
	TotalQuantity     int
	AvailableQuantity int
	Status            string
}

// EditGame overwrites the row. Quantities are clamped so 0 <= available <= total.
func (r *Repo) EditGame(ctx context.Context, actor models.Actor, id string, in EditGameInput) (*models.Game, error) {
	title := strings.TrimSpace(in.Title)
	platform := strings.TrimSpace(in.Platform)
	if title == "" || platform == "" {
		return nil, apperr.Validation("title and platform are required")
	}
	if in.Status != "" && !lending.ValidGameStatus(in.Status) {
		return nil, apperr.Validation("invalid status")
	}
	total, avail := lending.ClampQuantities(in.TotalQuantity, in.AvailableQuantity)
	status := lending.DeriveStatus(in.Status, avail)

	var g models.Game
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var clash int64
		if err := tx.Model(&models.Game{}).
			Where("LOWER(title) = ? AND platform = ? AND id <> ?", strings.ToLower(title), platform, id).
			Count(&clash).Error; err != nil {
			return apperr.Persistence(err, "update failed")
		}
		if clash > 0 {
			return apperr.Conflict(duplicateGameMsg(title, platform))
		}

		res := tx.Model(&models.Game{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"title":              title,
				"platform":           platform,
				"total_quantity":     total,
				"available_quantity": avail,
				"status":             status,
				"updated_at":         r.now(),
			})
		if res.Error != nil {
			if isDuplicate(res.Error) {
				return apperr.Conflict(duplicateGameMsg(title, platform))
			}
			return apperr.Persistence(res.Error, "update failed")
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("game not found")
		}
		if err := tx.First(&g, "id = ?", id).Error; err != nil {
			return notFoundOr(err, "game")
		}
		detail := fmt.Sprintf("%s/%s total=%d available=%d status=%s", title, platform, total, avail, status)
		return r.audit(tx, actor, ActionGameEdit, "game", id, detail)
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// DeleteGame soft-deletes the game unless it is borrowed or has an open transaction.
func (r *Repo) DeleteGame(ctx context.Context, actor models.Actor, id string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.
			Where("id = ? AND status <> ?", id, models.GameBorrowed).
			Where("NOT EXISTS (SELECT 1 FROM "+models.TransactionTable+" t WHERE t.game_id = "+models.GameTable+".id AND t.status = ?)", models.TxBorrowed).
			Delete(&models.Game{})
		if res.Error != nil {
			return apperr.Persistence(res.Error, "delete failed")
		}
		if res.RowsAffected == 0 {
			var g models.Game
			if err := tx.First(&g, "id = ?", id).Error; err != nil {
				return notFoundOr(err, "game")
			}
			return apperr.Conflict(MsgGameIsBorrowed)
		}
		return r.audit(tx, actor, ActionGameDelete, "game", id, "")
	})
}

func (r *Repo) FindGame(ctx context.Context, id string) (*models.Game, error) {
	var g models.Game
	if err := r.DB.WithContext(ctx).First(&g, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "game")
	}
	return &g, nil
}

type GameQuery struct {
	Search   string
	Platform string
}

// ListGames matches the search text against title and platform, case-insensitively.
func (r *Repo) ListGames(ctx context.Context, q GameQuery) ([]models.Game, error) {
	qry := r.DB.WithContext(ctx).Model(&models.Game{})
	if s := strings.TrimSpace(q.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		qry = qry.Where("LOWER(title) LIKE ? OR LOWER(platform) LIKE ?", like, like)
	}
	if p := strings.TrimSpace(q.Platform); p != "" {
		qry = qry.Where("platform = ?", p)
	}
	games := []models.Game{}
	if err := qry.Order("title ASC, platform ASC").Find(&games).Error; err != nil {
		return nil, apperr.Persistence(err, "database error")
	}
	return games, nil
}

func (r *Repo) Platforms(ctx context.Context) ([]string, error) {
	out := []string{}
	if err := r.DB.WithContext(ctx).Model(&models.Game{}).
		Distinct().
		Order("platform").
		Pluck("platform", &out).Error; err != nil {
		return nil, apperr.Persistence(err, "database error")
	}
	return out, nil
}

type BorrowerRow struct {
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	Username      *string   `json:"username,omitempty"`
	BorrowDate    time.Time `json:"borrowDate"`
	lending.Overdue
}

// CurrentBorrowers lists the open transactions of a game with their overdue view.
func (r *Repo) CurrentBorrowers(ctx context.Context, gameID string) ([]BorrowerRow, error) {
	var rows []struct {
		TransactionID string
		UserID        string
		Username      *string
		BorrowDate    time.Time
	}
	err := r.DB.WithContext(ctx).
		Table(models.TransactionTable+" t").
		Select("t.id AS transaction_id, t.user_id, u.username, t.borrow_date").
		Joins("LEFT JOIN "+models.UserTable+" u ON u.id = t.user_id").
		Where("t.game_id = ? AND t.status = ?", gameID, models.TxBorrowed).
		Order("t.borrow_date ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Persistence(err, "database error")
	}
	now := r.now()
	out := make([]BorrowerRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, BorrowerRow{
			TransactionID: row.TransactionID,
			UserID:        row.UserID,
			Username:      row.Username,
			BorrowDate:    row.BorrowDate,
			Overdue:       r.Policy.Compute(row.BorrowDate, now),
		})
	}
	return out, nil
}

func duplicateGameMsg(title, platform string) string {
	return fmt.Sprintf("%s already exists on %s", title, platform)
}

func isDuplicate(err error) bool { return errors.Is(err, gorm.ErrDuplicatedKey) }
