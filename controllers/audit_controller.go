package controllers

import (
	"net/http"

	"gamelend/app"

	"github.com/gin-gonic/gin"
)

type AuditController struct{ *Srv }

func NewAuditController(s *Srv) *AuditController { return &AuditController{Srv: s} }

// GET /api/admin/audit?action=game.edit&page=1&size=50
func (ac *AuditController) List(c *gin.Context) {
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := ac.Repo.ListAudit(ctx, c.Query("action"), queryInt(c, "page", 1), queryInt(c, "size", 50))
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
