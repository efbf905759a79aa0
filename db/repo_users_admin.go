package db

import (
	"context"
	"fmt"
	"strings"

	"gamelend/apperr"
	"gamelend/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	MsgSelfDisable   = "you cannot disable your own account"
	MsgSelfDelete    = "you cannot delete your own account"
	MsgActiveBorrows = "user has active borrows"
)

// CreateUser inserts u. A zero actor means self-registration and is not audited.
func (r *Repo) CreateUser(ctx context.Context, actor models.Actor, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = models.RoleCustomer
	}
	if u.Status == "" {
		u.Status = models.StatusActive
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUnique(tx, "", u.Username, u.Email); err != nil {
			return err
		}
		if err := tx.Create(u).Error; err != nil {
			if isDuplicate(err) {
				return apperr.Conflict("username or email already exists")
			}
			return apperr.Persistence(err, "insert failed")
		}
		if actor.UserID == "" {
			return nil
		}
		return r.audit(tx, actor, ActionUserCreate, "user", u.ID, u.Username+" role="+u.Role)
	})
}

// checkUnique reports a conflict when another user already holds the username or e-mail.
func checkUnique(tx *gorm.DB, selfID, username, email string) error {
	if username != "" {
		var n int64
		q := tx.Model(&models.User{}).Where("username = ?", username)
		if selfID != "" {
			q = q.Where("id <> ?", selfID)
		}
		if err := q.Count(&n).Error; err != nil {
			return apperr.Persistence(err, "database error")
		}
		if n > 0 {
			return apperr.Conflict("username already taken")
		}
	}
	if email != "" {
		var n int64
		q := tx.Model(&models.User{}).Where("LOWER(email) = ?", strings.ToLower(email))
		if selfID != "" {
			q = q.Where("id <> ?", selfID)
		}
		if err := q.Count(&n).Error; err != nil {
			return apperr.Persistence(err, "database error")
		}
		if n > 0 {
			return apperr.Conflict("email already in use")
		}
	}
	return nil
}

type IdentityProfile struct {
	AuthID    string
	Email     string
	FirstName string
	LastName  string
}

// FindOrCreateByAuthID upserts a user from the external identity provider.
// An existing local account with the same e-mail is linked instead of duplicated.
func (r *Repo) FindOrCreateByAuthID(ctx context.Context, p IdentityProfile) (*models.User, error) {
	if strings.TrimSpace(p.AuthID) == "" {
		return nil, apperr.Validation("identity id is required")
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))

	var u models.User
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("auth_id = ?", p.AuthID).First(&u).Error
		if err == nil {
			return nil
		}
		if !isNotFound(err) {
			return apperr.Persistence(err, "database error")
		}

		if email != "" {
			err = tx.Where("LOWER(email) = ? AND auth_id IS NULL", email).First(&u).Error
			if err == nil {
				authID := p.AuthID
				u.AuthID = &authID
				if err := tx.Model(&u).Update("auth_id", authID).Error; err != nil {
					return apperr.Persistence(err, "update failed")
				}
				return nil
			}
			if !isNotFound(err) {
				return apperr.Persistence(err, "database error")
			}
		}

		authID := p.AuthID
		u = models.User{
			ID:        uuid.NewString(),
			Username:  r.freeUsername(tx, usernameFromEmail(email, p.AuthID)),
			AuthID:    &authID,
			Email:     email,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Role:      models.RoleCustomer,
			Status:    models.StatusActive,
		}
		if u.Email == "" {
			u.Email = u.Username + "@users.invalid"
		}
		if err := tx.Create(&u).Error; err != nil {
			if isDuplicate(err) {
				return apperr.Conflict("username or email already exists")
			}
			return apperr.Persistence(err, "insert failed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func usernameFromEmail(email, fallback string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	if len(fallback) > 12 {
		fallback = fallback[:12]
	}
	return "user-" + fallback
}

func (r *Repo) freeUsername(tx *gorm.DB, base string) string {
	candidate := base
	for i := 0; i < 5; i++ {
		var n int64
		if err := tx.Model(&models.User{}).Where("username = ?", candidate).Count(&n).Error; err != nil || n == 0 {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%s", base, uuid.NewString()[:6])
	}
	return candidate
}

type ProfileInput struct {
	FirstName string
	LastName  string
	Gender    string
	Email     string
	// Role is only honoured for admins.
	Role string
}

// UpdateProfile edits names, gender, e-mail and, for admins, the role.
func (r *Repo) UpdateProfile(ctx context.Context, actor models.Actor, userID string, in ProfileInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	if in.Role != "" {
		if !actor.IsAdmin() {
			return nil, apperr.Forbidden("only admins can change roles")
		}
		if in.Role != models.RoleAdmin && in.Role != models.RoleCustomer {
			return nil, apperr.Validation("invalid role")
		}
		if actor.UserID == userID && in.Role != models.RoleAdmin {
			return nil, apperr.Conflict("you cannot remove your own admin role")
		}
	}

	var u models.User
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUnique(tx, userID, "", email); err != nil {
			return err
		}
		updates := map[string]any{
			"first_name": strings.TrimSpace(in.FirstName),
			"last_name":  strings.TrimSpace(in.LastName),
			"gender":     strings.TrimSpace(in.Gender),
			"email":      email,
			"updated_at": r.now(),
		}
		if in.Role != "" {
			updates["role"] = in.Role
		}
		res := tx.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
		if res.Error != nil {
			if isDuplicate(res.Error) {
				return apperr.Conflict("email already in use")
			}
			return apperr.Persistence(res.Error, "update failed")
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("user not found")
		}
		if err := tx.First(&u, "id = ?", userID).Error; err != nil {
			return notFoundOr(err, "user")
		}
		if actor.UserID == userID {
			return nil
		}
		return r.audit(tx, actor, ActionUserUpdate, "user", userID, "role="+u.Role)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetUserStatus enables or disables an account. Admins cannot disable themselves.
func (r *Repo) SetUserStatus(ctx context.Context, actor models.Actor, userID, status string) error {
	// Admins never toggle their own status, whatever the payload says.
	if actor.UserID == userID {
		return apperr.Conflict(MsgSelfDisable)
	}
	if status != models.StatusActive && status != models.StatusDisabled {
		return apperr.Validation("status must be active or disabled")
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", userID).
			Updates(map[string]any{"status": status, "updated_at": r.now()})
		if res.Error != nil {
			return apperr.Persistence(res.Error, "update failed")
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("user not found")
		}
		return r.audit(tx, actor, ActionUserStatus, "user", userID, "status="+status)
	})
}

// SetPasswordHash stores a new hash. A non-zero actor different from the user marks an admin reset.
func (r *Repo) SetPasswordHash(ctx context.Context, actor models.Actor, userID, hash string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", userID).
			Updates(map[string]any{"password_hash": hash, "updated_at": r.now()})
		if res.Error != nil {
			return apperr.Persistence(res.Error, "update failed")
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("user not found")
		}
		if actor.UserID == "" || actor.UserID == userID {
			return nil
		}
		return r.audit(tx, actor, ActionUserPassword, "user", userID, "")
	})
}

// DeleteUser removes the user and their passkeys. The DELETE is guarded so a
// user with an open borrow is never removed.
func (r *Repo) DeleteUser(ctx context.Context, actor models.Actor, userID string) error {
	if actor.UserID == userID {
		return apperr.Conflict(MsgSelfDelete)
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.Credential{}).Error; err != nil {
			return apperr.Persistence(err, "delete failed")
		}
		res := tx.
			Where("id = ?", userID).
			Where("NOT EXISTS (SELECT 1 FROM "+models.TransactionTable+" t WHERE t.user_id = "+models.UserTable+".id AND t.status = ?)", models.TxBorrowed).
			Delete(&models.User{})
		if res.Error != nil {
			return apperr.Persistence(res.Error, "delete failed")
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
				return apperr.Persistence(err, "database error")
			}
			if n == 0 {
				return apperr.NotFound("user not found")
			}
			return apperr.Conflict(MsgActiveBorrows)
		}
		return r.audit(tx, actor, ActionUserDelete, "user", userID, "")
	})
}

type UserRow struct {
	models.User
	ActiveBorrows     int64 `json:"activeBorrows"`
	TotalTransactions int64 `json:"totalTransactions"`
}

type ListUsersResult struct {
	Users []UserRow `json:"users"`
	Total int64     `json:"total"`
}

// ListUsers pages users matching q against username, e-mail and names.
func (r *Repo) ListUsers(ctx context.Context, q string, page, size int) (ListUsersResult, error) {
	page, size = pageBounds(page, size, 100)

	tx := r.DB.WithContext(ctx).Model(&models.User{})
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		tx = tx.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			like, like, like, like)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return ListUsersResult{}, apperr.Persistence(err, "database error")
	}

	var users []models.User
	if err := tx.
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&users).Error; err != nil {
		return ListUsersResult{}, apperr.Persistence(err, "database error")
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	counts, err := r.transactionCounts(ctx, ids)
	if err != nil {
		return ListUsersResult{}, err
	}

	rows := make([]UserRow, 0, len(users))
	for _, u := range users {
		c := counts[u.ID]
		rows = append(rows, UserRow{User: u, ActiveBorrows: c.ActiveBorrows, TotalTransactions: c.TotalTransactions})
	}
	return ListUsersResult{Users: rows, Total: total}, nil
}

type txCounts struct {
	UserID            string
	ActiveBorrows     int64
	TotalTransactions int64
}

func (r *Repo) transactionCounts(ctx context.Context, userIDs []string) (map[string]txCounts, error) {
	out := map[string]txCounts{}
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []txCounts
	if err := r.DB.WithContext(ctx).
		Model(&models.BorrowTransaction{}).
		Select("user_id, SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS active_borrows, COUNT(*) AS total_transactions", models.TxBorrowed).
		Where("user_id IN ?", userIDs).
		Group("user_id").
		Scan(&rows).Error; err != nil {
		return nil, apperr.Persistence(err, "database error")
	}
	for _, row := range rows {
		out[row.UserID] = row
	}
	return out, nil
}

type UserStats struct {
	TotalTransactions int64           `json:"totalTransactions"`
	ActiveBorrows     int             `json:"activeBorrows"`
	Returned          int64           `json:"returned"`
	OverdueCount      int             `json:"overdueCount"`
	FeesOwed          decimal.Decimal `json:"feesOwed"`
}

type UserRecord struct {
	User    *models.User `json:"user"`
	Stats   UserStats    `json:"stats"`
	Current []LoanView   `json:"current"`
	History []LoanView   `json:"history"`
}

// UserRecord is the admin view of one user: stats, open borrows and full history.
func (r *Repo) UserRecord(ctx context.Context, userID string) (*UserRecord, error) {
	u, err := r.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	current, err := r.MyBorrowed(ctx, userID)
	if err != nil {
		return nil, err
	}
	history, err := r.MyHistory(ctx, userID, 0)
	if err != nil {
		return nil, err
	}

	rec := &UserRecord{User: u, Current: current, History: history}
	rec.Stats.FeesOwed = decimal.Zero
	rec.Stats.TotalTransactions = int64(len(history))
	rec.Stats.ActiveBorrows = len(current)
	for _, h := range history {
		if h.Status == models.TxReturned {
			rec.Stats.Returned++
		}
	}
	for _, c := range current {
		if c.Overdue.IsOverdue {
			rec.Stats.OverdueCount++
			rec.Stats.FeesOwed = rec.Stats.FeesOwed.Add(c.Overdue.FeeOwed)
		}
	}
	return rec, nil
}

func (r *Repo) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ?", models.RoleAdmin).
		Count(&n).Error
	return n, err
}
