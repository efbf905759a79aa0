package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gamelend/apperr"
	"gamelend/lending"
	"gamelend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var baseTime = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:gamelend_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// One connection serialises transactions the way row locks do on Postgres.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(conn))
	return conn
}

func newTestRepo(t *testing.T) (*Repo, *testClock) {
	t.Helper()
	clock := &testClock{t: baseTime}
	r := NewRepo(openTestDB(t), lending.DefaultPolicy())
	r.Now = clock.Now
	return r, clock
}

func seedUser(t *testing.T, r *Repo, username, role string) models.Actor {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", Role: role, FirstName: "Test", LastName: "User"}
	require.NoError(t, r.CreateUser(context.Background(), models.Actor{}, u))
	return models.Actor{UserID: u.ID, Username: u.Username, Role: u.Role}
}

func seedGame(t *testing.T, r *Repo, admin models.Actor, title, platform string, qty int) models.Game {
	t.Helper()
	games, err := r.AddGames(context.Background(), admin, AddGamesInput{
		Title:     title,
		Platforms: []lending.PlatformQuantity{{Platform: platform, Quantity: qty}},
	})
	require.NoError(t, err)
	require.Len(t, games, 1)
	return games[0]
}

func requireCode(t *testing.T, err error, code apperr.Code, msg string) {
	t.Helper()
	require.Error(t, err)
	typed := apperr.As(err)
	require.NotNil(t, typed, "expected apperr, got %v", err)
	require.Equal(t, code, typed.Code(), "error: %v", err)
	if msg != "" {
		require.Equal(t, msg, typed.Message())
	}
}
