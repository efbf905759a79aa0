package controllers

import (
	"errors"
	"net/http"

	"gamelend/app"
	"gamelend/apperr"
	"gamelend/db"
	"gamelend/mailer"
	"gamelend/models"

	"github.com/gin-gonic/gin"
)

// TransactionController is the admin view over borrowing activity.
type TransactionController struct{ *Srv }

func NewTransactionController(s *Srv) *TransactionController {
	return &TransactionController{Srv: s}
}

// GET /api/admin/transactions?status=&user=&date=&page=&size=
func (tc *TransactionController) List(c *gin.Context) {
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := tc.Repo.ListTransactions(ctx, db.TransactionsQuery{
		Status: c.Query("status"),
		UserID: c.Query("user"),
		Date:   c.Query("date"),
		Page:   queryInt(c, "page", 1),
		Size:   queryInt(c, "size", 20),
	})
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PUT /api/admin/transactions/:id/status
func (tc *TransactionController) UpdateStatus(c *gin.Context) {
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
	bt, err := tc.Repo.UpdateTransactionStatus(ctx, who, id, in.Status)
	if in.Status == models.TxReturned {
		tc.Metrics.Return(outcome(err))
	}
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"transaction": bt})
}

// GET /api/admin/dashboard
func (tc *TransactionController) Dashboard(c *gin.Context) {
	ctx, cancel := reqCtx(c)
	defer cancel()
	d, err := tc.Repo.Dashboard(ctx)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GET /api/admin/reports
func (tc *TransactionController) Reports(c *gin.Context) {
	ctx, cancel := reqCtx(c)
	defer cancel()
	rep, err := tc.Repo.Reports(ctx)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// GET /api/admin/overdue
func (tc *TransactionController) Overdue(c *gin.Context) {
	ctx, cancel := reqCtx(c)
	defer cancel()
	rep, err := tc.Repo.OverdueList(ctx)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// POST /api/admin/overdue/:id/remind e-mails the borrower of an overdue loan.
func (tc *TransactionController) Remind(c *gin.Context) {
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
	loan, err := tc.Repo.FindOpenLoan(ctx, id)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	if !loan.Overdue.IsOverdue {
		app.WriteError(c, apperr.Conflict("transaction is not overdue"))
		return
	}
	if loan.Email == nil {
		app.WriteError(c, apperr.Conflict("borrower no longer exists"))
		return
	}

	msg := mailer.OverdueReminder(
		tc.Config.SMTP.AppName,
		borrowerName(loan),
		deref(loan.Title),
		deref(loan.Platform),
		loan.BorrowDate,
		loan.Overdue.DaysOverdue,
		loan.Overdue.FeeOwed.StringFixed(2),
	)
	msg.To = *loan.Email

	// The mailer bounds the send with SMTP_TIMEOUT, not the short request budget.
	sendErr := tc.Mailer.Send(c.Request.Context(), msg)
	unknown := errors.Is(sendErr, mailer.ErrDeliveryUnknown)
	if sendErr != nil && !unknown {
		app.WriteError(c, sendErr)
		return
	}

	logCtx, cancelLog := reqCtx(c)
	defer cancelLog()
	detail := "to=" + msg.To
	if unknown {
		detail += " outcome=unknown"
	}
	if err := tc.Repo.LogAction(logCtx, who, db.ActionOverdueReminder, "transaction", id, detail); err != nil {
		tc.Log.Error(logCtx, "audit.write_failed", err)
	}
	if unknown {
		app.WriteError(c, sendErr)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "sentTo": msg.To})
}

func borrowerName(v *db.LoanView) string {
	if v.FirstName != nil && *v.FirstName != "" {
		return *v.FirstName
	}
	return deref(v.Username)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
