package controllers

import (
	"net/http"

	"gamelend/app"
	"gamelend/apperr"
	"gamelend/db"
	"gamelend/lending"
	"gamelend/metrics"

	"github.com/gin-gonic/gin"
)

type GameController struct{ *Srv }

func NewGameController(s *Srv) *GameController { return &GameController{Srv: s} }

// GET /api/games?search=&platform=
func (gc *GameController) ListGames(c *gin.Context) {
	ctx, cancel := reqCtx(c)
	defer cancel()
	games, err := gc.Repo.ListGames(ctx, db.GameQuery{
		Search:   c.Query("search"),
		Platform: c.Query("platform"),
	})
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"games": games})
}

// GET /api/games/platforms
func (gc *GameController) Platforms(c *gin.Context) {
	ctx, cancel := reqCtx(c)
	defer cancel()
	ps, err := gc.Repo.Platforms(ctx)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"platforms": ps})
}

// GET /api/games/:id
func (gc *GameController) GetGame(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	g, err := gc.Repo.FindGame(ctx, id)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"game": g})
}

// GET /api/admin/games/:id: the game plus who holds its copies.
func (gc *GameController) GameDetail(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	g, err := gc.Repo.FindGame(ctx, id)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	borrowers, err := gc.Repo.CurrentBorrowers(ctx, id)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"game": g, "borrowers": borrowers})
}

type addGamesReq struct {
	Title     string                     `json:"title" binding:"required"`
	Platforms []lending.PlatformQuantity `json:"platforms" binding:"required,min=1"`
	Status    string                     `json:"status" binding:"omitempty,oneof=available borrowed maintenance"`
}

// POST /api/admin/games
func (gc *GameController) AddGames(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var in addGamesReq
	if !app.BindJSON(c, &in) {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	games, err := gc.Repo.AddGames(ctx, who, db.AddGamesInput{
		Title:     in.Title,
		Platforms: in.Platforms,
		Status:    in.Status,
	})
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"games": games})
}

type editGameReq struct {
	Title             string `json:"title" binding:"required"`
	Platform          string `json:"platform" binding:"required"`
	TotalQuantity     int    `json:"totalQuantity"`
	AvailableQuantity int    `json:"availableQuantity"`
	Status            string `json:"status" binding:"omitempty,oneof=available borrowed maintenance"`
}

// PUT /api/admin/games/:id
func (gc *GameController) EditGame(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in editGameReq
	if !app.BindJSON(c, &in) {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	g, err := gc.Repo.EditGame(ctx, who, id, db.EditGameInput{
		Title:             in.Title,
		Platform:          in.Platform,
		TotalQuantity:     in.TotalQuantity,
		AvailableQuantity: in.AvailableQuantity,
		Status:            in.Status,
	})
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"game": g})
}

// DELETE /api/admin/games/:id
func (gc *GameController) DeleteGame(c *gin.Context) {
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
	if err := gc.Repo.DeleteGame(ctx, who, id); err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// POST /api/games/:id/borrow
func (gc *GameController) Borrow(c *gin.Context) {
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
	bt, err := gc.Repo.BorrowGame(ctx, who, id)
	gc.Metrics.Borrow(outcome(err))
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"transaction": bt, "dueDate": gc.Repo.Policy.DueDate(bt.BorrowDate)})
}

// POST /api/me/transactions/:id/return and /api/admin/transactions/:id/return.
// The repository limits customers to their own transactions.
func (gc *GameController) Return(c *gin.Context) {
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
	bt, err := gc.Repo.ReturnGame(ctx, who, id)
	gc.Metrics.Return(outcome(err))
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"transaction": bt})
}

// GET /api/me/dashboard
func (gc *GameController) MyDashboard(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	d, err := gc.Repo.MyDashboard(ctx, who.UserID)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GET /api/me/borrowed
func (gc *GameController) MyBorrowed(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := gc.Repo.MyBorrowed(ctx, who.UserID)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"transactions": rows})
}

// GET /api/me/history?limit=
func (gc *GameController) MyHistory(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := gc.Repo.MyHistory(ctx, who.UserID, queryInt(c, "limit", 0))
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"transactions": rows})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case apperr.IsCode(err, apperr.CodeConflict):
		return metrics.ResultConflict
	default:
		return metrics.ResultError
	}
}
