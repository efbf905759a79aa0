package db

import (
	"context"
	"time"

	"gamelend/apperr"
	"gamelend/models"

	"github.com/shopspring/decimal"
)

type GameCounts struct {
	Titles          int64 `json:"titles"`
	Available       int64 `json:"available"`
	Borrowed        int64 `json:"borrowed"`
	Maintenance     int64 `json:"maintenance"`
	TotalCopies     int64 `json:"totalCopies"`
	AvailableCopies int64 `json:"availableCopies"`
}

type AdminDashboard struct {
	Customers    int64      `json:"customers"`
	Games        GameCounts `json:"games"`
	Transactions int64      `json:"transactions"`
	OverdueCount int64      `json:"overdueCount"`
	Recent       []LoanView `json:"recent"`
}

func (r *Repo) Dashboard(ctx context.Context) (*AdminDashboard, error) {
	d := &AdminDashboard{}
	db := r.DB.WithContext(ctx)

	if err := db.Model(&models.User{}).Where("role = ?", models.RoleCustomer).Count(&d.Customers).Error; err != nil {
		return nil, apperr.Persistence(err, "database error")
	}
	games, err := r.gameCounts(ctx)
	if err != nil {
		return nil, err
	}
	d.Games = games
	if err := db.Model(&models.BorrowTransaction{}).Count(&d.Transactions).Error; err != nil {
		return nil, apperr.Persistence(err, "database error")
	}
	if err := db.Model(&models.BorrowTransaction{}).
		Where("status = ? AND borrow_date <= ?", models.TxBorrowed, r.Policy.Cutoff(r.now())).
		Count(&d.OverdueCount).Error; err != nil {
		return nil, apperr.Persistence(err, "database error")
	}
	recent, err := r.scanLoans(r.loanBase(ctx).Order("t.borrow_date DESC").Limit(10))
	if err != nil {
		return nil, err
	}
	d.Recent = recent
	return d, nil
}

func (r *Repo) gameCounts(ctx context.Context) (GameCounts, error) {
	var rows []struct {
		Status    string
		Titles    int64
		Copies    int64
		Available int64
	}
	if err := r.DB.WithContext(ctx).Model(&models.Game{}).
		Select("status, COUNT(*) AS titles, COALESCE(SUM(total_quantity), 0) AS copies, COALESCE(SUM(available_quantity), 0) AS available").
		Group("status").
		Scan(&rows).Error; err != nil {
		return GameCounts{}, apperr.Persistence(err, "database error")
	}
	var c GameCounts
	for _, row := range rows {
		c.Titles += row.Titles
		c.TotalCopies += row.Copies
		c.AvailableCopies += row.Available
		switch row.Status {
		case models.GameAvailable:
			c.Available = row.Titles
		case models.GameBorrowed:
			c.Borrowed = row.Titles
		case models.GameMaintenance:
			c.Maintenance = row.Titles
		}
	}
	return c, nil
}

type OverdueReport struct {
	Items            []LoanView      `json:"items"`
	Count            int             `json:"count"`
	TotalDaysOverdue int             `json:"totalDaysOverdue"`
	TotalFees        decimal.Decimal `json:"totalFees"`
}

// OverdueList returns every open borrow past the threshold, oldest first, with totals.
func (r *Repo) OverdueList(ctx context.Context) (*OverdueReport, error) {
	items, err := r.scanLoans(r.loanBase(ctx).
		Where("t.status = ? AND t.borrow_date <= ?", models.TxBorrowed, r.Policy.Cutoff(r.now())).
		Order("t.borrow_date ASC"))
	if err != nil {
		return nil, err
	}
	rep := &OverdueReport{Items: items, TotalFees: decimal.Zero}
	for _, it := range items {
		// The cutoff and Compute share one clock, so every row here is overdue.
		rep.Count++
		rep.TotalDaysOverdue += it.Overdue.DaysOverdue
		rep.TotalFees = rep.TotalFees.Add(it.Overdue.FeeOwed)
	}
	return rep, nil
}

// FindOpenLoan loads one open transaction with its user and game.
func (r *Repo) FindOpenLoan(ctx context.Context, transactionID string) (*LoanView, error) {
	rows, err := r.scanLoans(r.loanBase(ctx).
		Where("t.id = ? AND t.status = ?", transactionID, models.TxBorrowed).
		Limit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("open transaction not found")
	}
	return &rows[0], nil
}

type PlatformCount struct {
	Platform  string `json:"platform"`
	Titles    int64  `json:"titles"`
	Copies    int64  `json:"copies"`
	Available int64  `json:"available"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type PopularGame struct {
	GameID      string  `json:"gameId"`
	Title       *string `json:"title,omitempty"`
	Platform    *string `json:"platform,omitempty"`
	BorrowCount int64   `json:"borrowCount"`
}

type MonthCount struct {
	Month string `json:"month"` // YYYY-MM
	Count int    `json:"count"`
}

type Reports struct {
	ByPlatform   []PlatformCount `json:"byPlatform"`
	ByStatus     []StatusCount   `json:"byStatus"`
	MostBorrowed []PopularGame   `json:"mostBorrowed"`
	Recent       []LoanView      `json:"recent"`
	Overdue      *OverdueReport  `json:"overdue"`
	Monthly      []MonthCount    `json:"monthly"`
}

const trendMonths = 6

func (r *Repo) Reports(ctx context.Context) (*Reports, error) {
	db := r.DB.WithContext(ctx)
	rep := &Reports{}

	rep.ByPlatform = []PlatformCount{}
	if err := db.Model(&models.Game{}).
		Select("platform, COUNT(*) AS titles, COALESCE(SUM(total_quantity), 0) AS copies, COALESCE(SUM(available_quantity), 0) AS available").
		Group("platform").
		Order("platform").
		Scan(&rep.ByPlatform).Error; err != nil {
		return nil, apperr.Persistence(err, "database error")
	}

	rep.ByStatus = []StatusCount{}
	if err := db.Model(&models.Game{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Order("status").
		Scan(&rep.ByStatus).Error; err != nil {
		return nil, apperr.Persistence(err, "database error")
	}

	rep.MostBorrowed = []PopularGame{}
	if err := db.Table(models.TransactionTable+" t").
		Select("t.game_id, g.title, g.platform, COUNT(*) AS borrow_count").
		Joins("LEFT JOIN "+models.GameTable+" g ON g.id = t.game_id").
		Group("t.game_id, g.title, g.platform").
		Order("borrow_count DESC, g.title ASC").
		Limit(10).
		Scan(&rep.MostBorrowed).Error; err != nil {
		return nil, apperr.Persistence(err, "database error")
	}

	recent, err := r.scanLoans(r.loanBase(ctx).Order("t.borrow_date DESC").Limit(20))
	if err != nil {
		return nil, err
	}
	rep.Recent = recent

	if rep.Overdue, err = r.OverdueList(ctx); err != nil {
		return nil, err
	}
	if rep.Monthly, err = r.monthlyBorrows(ctx, trendMonths); err != nil {
		return nil, err
	}
	return rep, nil
}

// monthlyBorrows counts borrows per calendar month (UTC) for the last n months,
// current month included. Months without borrows are reported as zero.
func (r *Repo) monthlyBorrows(ctx context.Context, n int) ([]MonthCount, error) {
	now := r.now()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(n - 1), 0)

	var dates []time.Time
	if err := r.DB.WithContext(ctx).Model(&models.BorrowTransaction{}).
		Where("borrow_date >= ?", first).
		Pluck("borrow_date", &dates).Error; err != nil {
		return nil, apperr.Persistence(err, "database error")
	}

	out := make([]MonthCount, n)
	index := map[string]int{}
	for i := 0; i < n; i++ {
		key := first.AddDate(0, i, 0).Format("2006-01")
		out[i] = MonthCount{Month: key}
		index[key] = i
	}
	for _, d := range dates {
		if i, ok := index[d.UTC().Format("2006-01")]; ok {
			out[i].Count++
		}
	}
	return out, nil
}
