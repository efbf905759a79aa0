package app

import (
	"context"

	"gamelend/models"
	"gamelend/security"
)

// BootstrapFirstAdmin creates the configured admin account when the
// database has no admin yet. Returns true when an account was created.
func (a *App) BootstrapFirstAdmin(ctx context.Context) (bool, error) {
	auth := a.Config.Auth
	if auth.BootstrapUsername == "" || auth.BootstrapEmail == "" || auth.BootstrapPassword == "" {
		return false, nil
	}
	n, err := a.Repo.CountAdmins(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	hash, err := security.HashPassword(auth.BootstrapPassword)
	if err != nil {
		return false, err
	}
	u := &models.User{
		Username:     auth.BootstrapUsername,
		Email:        auth.BootstrapEmail,
		FirstName:    "Admin",
		Role:         models.RoleAdmin,
		PasswordHash: hash,
	}
	if err := a.Repo.CreateUser(ctx, models.Actor{}, u); err != nil {
		return false, err
	}
	ctx = a.Log.WithFields(ctx, map[string]any{"username": u.Username, "user_id": u.ID})
	a.Log.Info(ctx, "bootstrap.admin_created")
	return true, nil
}
