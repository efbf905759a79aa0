package controllers

import (
	"net/http"
	"strings"

	"gamelend/app"
	"gamelend/db"
	"gamelend/models"
	"gamelend/security"

	"github.com/gin-gonic/gin"
)

// UserController is the admin side of account management.
type UserController struct{ *Srv }

func NewUserController(s *Srv) *UserController { return &UserController{Srv: s} }

// GET /api/admin/users?q=alice&page=1&size=20
func (uc *UserController) ListUsers(c *gin.Context) {
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := uc.Repo.ListUsers(ctx, c.Query("q"), queryInt(c, "page", 1), queryInt(c, "size", 20))
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/admin/users/:id
func (uc *UserController) GetUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rec, err := uc.Repo.UserRecord(ctx, id)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type createUserReq struct {
	Username        string `json:"username" binding:"required,min=3,max=50"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
	FirstName       string `json:"firstName" binding:"required"`
	LastName        string `json:"lastName" binding:"required"`
	Gender          string `json:"gender"`
	Role            string `json:"role" binding:"omitempty,oneof=admin customer"`
}

// validate applies the password and name rules shared with self-registration.
func (in createUserReq) validate() error {
	if err := security.CheckNewPassword(in.Password, in.ConfirmPassword); err != nil {
		return err
	}
	if err := security.CheckName("first name", in.FirstName); err != nil {
		return err
	}
	return security.CheckName("last name", in.LastName)
}

func (in createUserReq) toUser(role string) (*models.User, error) {
	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	return &models.User{
		Username:     strings.TrimSpace(in.Username),
		Email:        in.Email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Gender:       strings.TrimSpace(in.Gender),
		Role:         role,
		PasswordHash: hash,
	}, nil
}

// POST /api/admin/users
func (uc *UserController) CreateUser(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var in createUserReq
	if !app.BindJSON(c, &in) {
		return
	}
	if err := in.validate(); err != nil {
		app.WriteError(c, err)
		return
	}
	role := in.Role
	if role == "" {
		role = models.RoleCustomer
	}
	u, err := in.toUser(role)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := uc.Repo.CreateUser(ctx, who, u); err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"user": u})
}

type updateUserReq struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Gender    string `json:"gender"`
	Email     string `json:"email" binding:"required,email"`
	Role      string `json:"role" binding:"omitempty,oneof=admin customer"`
}

// PUT /api/admin/users/:id
func (uc *UserController) UpdateUser(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in updateUserReq
	if !app.BindJSON(c, &in) {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := uc.Repo.UpdateProfile(ctx, who, id, db.ProfileInput{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Gender:    in.Gender,
		Email:     in.Email,
		Role:      in.Role,
	})
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"user": u})
}

// PUT /api/admin/users/:id/status
func (uc *UserController) SetStatus(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in struct {
		Status string `json:"status" binding:"required"`
	}
	if !app.BindJSON(c, &in) {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := uc.Repo.SetUserStatus(ctx, who, id, in.Status); err != nil {
		app.WriteError(c, err)
		return
	}
	if in.Status == models.StatusDisabled {
		if err := uc.AppSess.RevokeAllForUser(ctx, id); err != nil {
			uc.Log.Error(ctx, "session.revoke_failed", err)
		}
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "status": in.Status})
}

// PUT /api/admin/users/:id/password
func (uc *UserController) ResetPassword(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in struct {
		Password        string `json:"password" binding:"required"`
		ConfirmPassword string `json:"confirmPassword" binding:"required"`
	}
	if !app.BindJSON(c, &in) {
		return
	}
	if err := security.CheckNewPassword(in.Password, in.ConfirmPassword); err != nil {
		app.WriteError(c, err)
		return
	}
	hash, err := security.HashPassword(in.Password)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := uc.Repo.SetPasswordHash(ctx, who, id, hash); err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// DELETE /api/admin/users/:id
func (uc *UserController) DeleteUser(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := uc.Repo.DeleteUser(ctx, who, id); err != nil {
		app.WriteError(c, err)
		return
	}
	// the account is gone; its sessions go with it
	if err := uc.AppSess.RevokeAllForUser(ctx, id); err != nil {
		uc.Log.Error(ctx, "session.revoke_failed", err)
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
