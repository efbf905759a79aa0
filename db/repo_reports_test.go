package db

import (
	"context"
	"testing"
	"time"

	"gamelend/apperr"
	"gamelend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListTransactionsFilters(t *testing.T) {
	r, clock := newTestRepo(t)
	ctx := context.Background()
	admin := seedUser(t, r, "boss", models.RoleAdmin)
	ann := seedUser(t, r, "ann", models.RoleCustomer)
	bob := seedUser(t, r, "bob", models.RoleCustomer)
	g1 := seedGame(t, r, admin, "Hades", "PC", 2)
	g2 := seedGame(t, r, admin, "Doom", "PC", 2)

	old, err := r.BorrowGame(ctx, ann, g1.ID) // 2026-03-20
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)
	_, err = r.BorrowGame(ctx, bob, g1.ID) // 2026-03-21
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)
	done, err := r.BorrowGame(ctx, ann, g2.ID) // 2026-03-22
	require.NoError(t, err)
	_, err = r.ReturnGame(ctx, ann, done.ID)
	require.NoError(t, err)
	clock.Advance(13 * 24 * time.Hour) // now 2026-04-04: ann's first borrow is 15 days old, bob's 14

	all, err := r.ListTransactions(ctx, TransactionsQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)
	assert.Equal(t, done.ID, all.Transactions[0].ID, "newest first")

	mine, err := r.ListTransactions(ctx, TransactionsQuery{UserID: ann.UserID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), mine.Total)

	returned, err := r.ListTransactions(ctx, TransactionsQuery{Status: models.TxReturned})
	require.NoError(t, err)
	require.Equal(t, int64(1), returned.Total)

	overdue, err := r.ListTransactions(ctx, TransactionsQuery{Status: models.TxOverdue})
	require.NoError(t, err)
	require.Equal(t, int64(1), overdue.Total)
	assert.Equal(t, old.ID, overdue.Transactions[0].ID)
	assert.Equal(t, models.TxBorrowed, overdue.Transactions[0].Status)

	day, err := r.ListTransactions(ctx, TransactionsQuery{Date: "2026-03-21"})
	require.NoError(t, err)
	require.Equal(t, int64(1), day.Total)
	assert.Equal(t, bob.UserID, day.Transactions[0].UserID)

	paged, err := r.ListTransactions(ctx, TransactionsQuery{Page: 2, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), paged.Total)
	assert.Len(t, paged.Transactions, 1)

	_, err = r.ListTransactions(ctx, TransactionsQuery{Date: "21/03/2026"})
	requireCode(t, err, apperr.CodeValidation, "")
	_, err = r.ListTransactions(ctx, TransactionsQuery{Status: "lost"})
	requireCode(t, err, apperr.CodeValidation, "")
}

func TestReportsAggregates(t *testing.T) {
	r, clock := newTestRepo(t)
	ctx := context.Background()
	admin := seedUser(t, r, "boss", models.RoleAdmin)
	ann := seedUser(t, r, "ann", models.RoleCustomer)
	bob := seedUser(t, r, "bob", models.RoleCustomer)
	hades := seedGame(t, r, admin, "Hades", "PC", 2)
	seedGame(t, r, admin, "Halo", "Xbox", 3)
	doom := seedGame(t, r, admin, "Doom", "PC", 1)

	// February: one borrow of Doom, returned.
	clock.t = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	bt, err := r.BorrowGame(ctx, ann, doom.ID)
	require.NoError(t, err)
	_, err = r.ReturnGame(ctx, ann, bt.ID)
	require.NoError(t, err)

	// March: two borrows of Hades.
	clock.t = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_, err = r.BorrowGame(ctx, ann, hades.ID)
	require.NoError(t, err)
	_, err = r.BorrowGame(ctx, bob, hades.ID)
	require.NoError(t, err)

	clock.t = time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC)
	rep, err := r.Reports(ctx)
	require.NoError(t, err)

	require.Len(t, rep.ByPlatform, 2)
	assert.Equal(t, "PC", rep.ByPlatform[0].Platform)
	assert.Equal(t, int64(2), rep.ByPlatform[0].Titles)
	assert.Equal(t, int64(3), rep.ByPlatform[0].Copies)
	assert.Equal(t, int64(1), rep.ByPlatform[0].Available)

	statuses := map[string]int64{}
	for _, s := range rep.ByStatus {
		statuses[s.Status] = s.Count
	}
	assert.Equal(t, int64(1), statuses[models.GameBorrowed])
	assert.Equal(t, int64(2), statuses[models.GameAvailable])

	require.NotEmpty(t, rep.MostBorrowed)
	assert.Equal(t, hades.ID, rep.MostBorrowed[0].GameID)
	assert.Equal(t, int64(2), rep.MostBorrowed[0].BorrowCount)

	assert.Len(t, rep.Recent, 3)
	assert.Equal(t, 2, rep.Overdue.Count, "both March borrows are 29 days old")

	require.Len(t, rep.Monthly, 6)
	assert.Equal(t, "2025-10", rep.Monthly[0].Month)
	assert.Equal(t, "2026-03", rep.Monthly[5].Month)
	assert.Equal(t, 1, rep.Monthly[4].Count)
	assert.Equal(t, 2, rep.Monthly[5].Count)
	assert.Zero(t, rep.Monthly[0].Count)

	dash, err := r.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), dash.Games.Titles)
	assert.Equal(t, int64(1), dash.Games.Borrowed)
	assert.Equal(t, int64(6), dash.Games.TotalCopies)
	assert.Equal(t, int64(3), dash.Transactions)
	assert.Len(t, dash.Recent, 3)
}

func TestFindOpenLoan(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	admin := seedUser(t, r, "boss", models.RoleAdmin)
	ann := seedUser(t, r, "ann", models.RoleCustomer)
	g := seedGame(t, r, admin, "Hades", "PC", 1)

	bt, err := r.BorrowGame(ctx, ann, g.ID)
	require.NoError(t, err)

	loan, err := r.FindOpenLoan(ctx, bt.ID)
	require.NoError(t, err)
	require.NotNil(t, loan.Email)
	assert.Equal(t, "ann@example.com", *loan.Email)
	require.NotNil(t, loan.DaysRemaining)
	assert.Equal(t, 14, *loan.DaysRemaining)

	_, err = r.ReturnGame(ctx, ann, bt.ID)
	require.NoError(t, err)
	_, err = r.FindOpenLoan(ctx, bt.ID)
	requireCode(t, err, apperr.CodeNotFound, "")
}
