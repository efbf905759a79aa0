package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"gamelend/apperr"
	"gamelend/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBorrowReturnRoundTrip(t *testing.T) {
	r, clock := newTestRepo(t)
	ctx := context.Background()
	admin := seedUser(t, r, "boss", models.RoleAdmin)
	cust := seedUser(t, r, "ann", models.RoleCustomer)
	g := seedGame(t, r, admin, "Hollow Knight", "Switch", 1)

	bt, err := r.BorrowGame(ctx, cust, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxBorrowed, bt.Status)
	assert.True(t, bt.BorrowDate.Equal(baseTime))
	assert.Nil(t, bt.ReturnDate)

	after, err := r.FindGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.AvailableQuantity)
	assert.Equal(t, models.GameBorrowed, after.Status)

	clock.Advance(3 * 24 * time.Hour)
	returned, err := r.ReturnGame(ctx, cust, bt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
	assert.True(t, returned.ReturnDate.Equal(clock.Now()))

	after, err = r.FindGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.AvailableQuantity)
	assert.Equal(t, models.GameAvailable, after.Status)

	history, err := r.MyHistory(ctx, cust.UserID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 3, history[0].DurationDays)
	assert.Nil(t, history[0].DaysRemaining)
}

func TestBorrowDecrementsUntilLastCopy(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	admin := seedUser(t, r, "boss", models.RoleAdmin)
	ann := seedUser(t, r, "ann", models.RoleCustomer)
	bob := seedUser(t, r, "bob", models.RoleCustomer)
	g := seedGame(t, r, admin, "Stardew", "PC", 2)

	_, err := r.BorrowGame(ctx, ann, g.ID)
	require.NoError(t, err)
	mid, err := r.FindGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, mid.AvailableQuantity)
	assert.Equal(t, models.GameAvailable, mid.Status)

	_, err = r.BorrowGame(ctx, bob, g.ID)
	require.NoError(t, err)
	last, err := r.FindGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, last.AvailableQuantity)
	assert.Equal(t, models.GameBorrowed, last.Status)

	carol := seedUser(t, r, "carol", models.RoleCustomer)
	_, err = r.BorrowGame(ctx, carol, g.ID)
	requireCode(t, err, apperr.CodeConflict, MsgNotAvailable)

	borrowers, err := r.CurrentBorrowers(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, borrowers, 2)
}

func TestBorrowTwiceIsRejectedAndRolledBack(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	admin := seedUser(t, r, "boss", models.RoleAdmin)
	cust := seedUser(t, r, "ann", models.RoleCustomer)
	g := seedGame(t, r, admin, "Celeste", "PC", 3)

	_, err := r.BorrowGame(ctx, cust, g.ID)
	require.NoError(t, err)

	_, err = r.BorrowGame(ctx, cust, g.ID)
	requireCode(t, err, apperr.CodeConflict, MsgAlreadyBorrowed)

	after, err := r.FindGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.AvailableQuantity, "the second decrement must be rolled back")

	var open int64
	require.NoError(t, r.DB.Model(&models.BorrowTransaction{}).Where("status = ?", models.TxBorrowed).Count(&open).Error)
	assert.Equal(t, int64(1), open)
}

func TestOpenBorrowUniqueIndex(t *testing.T) {
	r, _ := newTestRepo(t)
	admin := seedUser(t, r, "boss", models.RoleAdmin)
	cust := seedUser(t, r, "ann", models.RoleCustomer)
	g := seedGame(t, r, admin, "Celeste", "PC", 3)

	first := &models.BorrowTransaction{ID: "11111111-1111-1111-1111-111111111111", UserID: cust.UserID, GameID: g.ID, BorrowDate: baseTime, Status: models.TxBorrowed}
	require.NoError(t, r.DB.Create(first).Error)

	dup := &models.BorrowTransaction{ID: "22222222-2222-2222-2222-222222222222", UserID: cust.UserID, GameID: g.ID, BorrowDate: baseTime, Status: models.TxBorrowed}
	err := r.DB.Create(dup).Error
	require.Error(t, err)
	assert.True(t, isDuplicate(err), "got %v", err)

	closed := &models.BorrowTransaction{ID: "33333333-3333-3333-3333-333333333333", UserID: cust.UserID, GameID: g.ID, BorrowDate: baseTime, Status: models.TxReturned}
	require.NoError(t, r.DB.Create(closed).Error)
}

func TestBorrowUnavailableGames(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	admin := seedUser(t, r, "boss", models.RoleAdmin)
	cust := seedUser(t, r, "ann", models.RoleCustomer)
	g := seedGame(t, r, admin, "Okami", "PS4", 2)

	_, err := r.EditGame(ctx, admin, g.ID, EditGameInput{Title: "Okami", Platform: "PS4", TotalQuantity: 2, AvailableQuantity: 2, Status: models.GameMaintenance})
	require.NoError(t, err)

	_, err = r.BorrowGame(ctx, cust, g.ID)
	requireCode(t, err, apperr.CodeConflict, MsgNotAvailable)

	_, err = r.BorrowGame(ctx, cust, "00000000-0000-0000-0000-000000000000")
	requireCode(t, err, apperr.CodeConflict, MsgNotAvailable)

	_, err = r.BorrowGame(ctx, models.Actor{}, g.ID)
	requireCode(t, err, apperr.CodeUnauthorized, "")
}

func TestReturnRules(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	admin := seedUser(t, r, "boss", models.RoleAdmin)
	ann := seedUser(t, r, "ann", models.RoleCustomer)
	bob := seedUser(t, r, "bob", models.RoleCustomer)
	g := seedGame(t, r, admin, "Inside", "PC", 1)

	bt, err := r.BorrowGame(ctx, ann, g.ID)
	require.NoError(t, err)

	_, err = r.ReturnGame(ctx, bob, bt.ID)
	requireCode(t, err, apperr.CodeConflict, MsgInvalidReturn)

	_, err = r.ReturnGame(ctx, ann, "00000000-0000-0000-0000-000000000000")
	requireCode(t, err, apperr.CodeConflict, MsgInvalidReturn)

	_, err = r.ReturnGame(ctx, admin, bt.ID)
	require.NoError(t, err)

	_, err = r.ReturnGame(ctx, ann, bt.ID)
	requireCode(t, err, apperr.CodeConflict, MsgInvalidReturn)

	after, err := r.FindGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.AvailableQuantity, "a rejected return must not add copies")

	returns, err := r.ListAudit(ctx, ActionAdminReturn, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), returns.Total)
}

func TestReturnKeepsMaintenanceAndCapsAtTotal(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	admin := seedUser(t, r, "boss", models.RoleAdmin)
	cust := seedUser(t, r, "ann", models.RoleCustomer)
	g := seedGame(t, r, admin, "Limbo", "PC", 2)

	bt, err := r.BorrowGame(ctx, cust, g.ID)
	require.NoError(t, err)

	_, err = r.EditGame(ctx, admin, g.ID, EditGameInput{Title: "Limbo", Platform: "PC", TotalQuantity: 2, AvailableQuantity: 2, Status: models.GameMaintenance})
	require.NoError(t, err)

	_, err = r.ReturnGame(ctx, cust, bt.ID)
	require.NoError(t, err)

	after, err := r.FindGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GameMaintenance, after.Status)
	assert.Equal(t, 2, after.AvailableQuantity)
}

func TestConcurrentBorrowOfSingleCopy(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	admin := seedUser(t, r, "boss", models.RoleAdmin)
	ann := seedUser(t, r, "ann", models.RoleCustomer)
	bob := seedUser(t, r, "bob", models.RoleCustomer)
	g := seedGame(t, r, admin, "Tetris", "GameBoy", 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actor := range []models.Actor{ann, bob} {
		wg.Add(1)
		go func(i int, actor models.Actor) {
			defer wg.Done()
			_, errs[i] = r.BorrowGame(ctx, actor, g.ID)
		}(i, actor)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		if apperr.IsCode(err, apperr.CodeConflict) && apperr.As(err).Message() == MsgNotAvailable {
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)

	after, err := r.FindGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.AvailableQuantity)
}

func TestOverdueIsDerivedNotStored(t *testing.T) {
	r, clock := newTestRepo(t)
	ctx := context.Background()
	admin := seedUser(t, r, "boss", models.RoleAdmin)
	cust := seedUser(t, r, "ann", models.RoleCustomer)
	late := seedGame(t, r, admin, "Doom", "PC", 1)
	fresh := seedGame(t, r, admin, "Quake", "PC", 1)

	lateTx, err := r.BorrowGame(ctx, cust, late.ID)
	require.NoError(t, err)
	clock.Advance(18 * 24 * time.Hour)
	_, err = r.BorrowGame(ctx, cust, fresh.ID)
	require.NoError(t, err)
	clock.Advance(2 * 24 * time.Hour)

	rep, err := r.OverdueList(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Count)
	assert.Equal(t, lateTx.ID, rep.Items[0].ID)
	assert.Equal(t, 20, rep.Items[0].Overdue.DaysElapsed)
	assert.Equal(t, 6, rep.TotalDaysOverdue)
	assert.True(t, rep.TotalFees.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, models.TxOverdue, rep.Items[0].DisplayStatus)

	var stored models.BorrowTransaction
	require.NoError(t, r.DB.First(&stored, "id = ?", lateTx.ID).Error)
	assert.Equal(t, models.TxBorrowed, stored.Status)

	_, err = r.UpdateTransactionStatus(ctx, admin, lateTx.ID, models.TxOverdue)
	requireCode(t, err, apperr.CodeValidation, "")

	mine, err := r.MyDashboard(ctx, cust.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, mine.OverdueCount)
	assert.Len(t, mine.Borrowed, 2)
	assert.Equal(t, int64(2), mine.TotalBorrowed)

	dash, err := r.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dash.OverdueCount)
	assert.Equal(t, int64(1), dash.Customers)

	returned, err := r.UpdateTransactionStatus(ctx, admin, lateTx.ID, models.TxReturned)
	require.NoError(t, err)
	assert.Equal(t, models.TxReturned, returned.Status)

	rep, err = r.OverdueList(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Count)
	assert.True(t, rep.TotalFees.IsZero())
}
