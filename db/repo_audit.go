package db

import (
	"context"
	"fmt"

	"gamelend/apperr"
	"gamelend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionGameAdd         = "game.add"
	ActionGameEdit        = "game.edit"
	ActionGameDelete      = "game.delete"
	ActionAdminReturn     = "transaction.return"
	ActionUserCreate      = "user.create"
	ActionUserUpdate      = "user.update"
	ActionUserStatus      = "user.status"
	ActionUserPassword    = "user.password_reset"
	ActionUserDelete      = "user.delete"
	ActionOverdueReminder = "overdue.remind"
)

// audit writes inside the caller's transaction so the log row commits or rolls back with the change.
func (r *Repo) audit(tx *gorm.DB, actor models.Actor, action, targetType, targetID, detail string) error {
	entry := &models.AuditLog{
		ID:            uuid.NewString(),
		ActorID:       actor.UserID,
		ActorUsername: actor.Username,
		Action:        action,
		TargetType:    targetType,
		TargetID:      targetID,
		Detail:        detail,
		CreatedAt:     r.now(),
	}
	if err := tx.Create(entry).Error; err != nil {
		return apperr.Persistence(fmt.Errorf("insert audit log: %w", err), "database error")
	}
	return nil
}

// LogAction records an action that has no row change of its own, such as a reminder.
func (r *Repo) LogAction(ctx context.Context, actor models.Actor, action, targetType, targetID, detail string) error {
	return r.audit(r.DB.WithContext(ctx), actor, action, targetType, targetID, detail)
}

type AuditPage struct {
	Entries []models.AuditLog `json:"entries"`
	Total   int64             `json:"total"`
}

func (r *Repo) ListAudit(ctx context.Context, action string, page, size int) (AuditPage, error) {
	page, size = pageBounds(page, size, 200)
	qry := r.DB.WithContext(ctx).Model(&models.AuditLog{})
	if action != "" {
		qry = qry.Where("action = ?", action)
	}
	var total int64
	if err := qry.Count(&total).Error; err != nil {
		return AuditPage{}, apperr.Persistence(err, "database error")
	}
	entries := []models.AuditLog{}
	if err := qry.Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&entries).Error; err != nil {
		return AuditPage{}, apperr.Persistence(err, "database error")
	}
	return AuditPage{Entries: entries, Total: total}, nil
}
