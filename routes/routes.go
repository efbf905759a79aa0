package routes

import (
	"net/http"

	"gamelend/app"
	"gamelend/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(a *app.App) {
	r := a.Router

	// controllers and dependencies
	s := controllers.GetSrv(a)
	acct := controllers.NewAccountController(s)
	games := controllers.NewGameController(s)
	users := controllers.NewUserController(s)
	txs := controllers.NewTransactionController(s)
	audit := controllers.NewAuditController(s)
	pk := controllers.NewPasskeyController(s)

	// shared middleware
	authMW := a.AuthRequired()
	seenMW := a.TouchLastSeen()
	adminMW := a.AdminOnly()
	customerMW := a.CustomerOnly()

	// ------------------------------
	// health and metrics
	// ------------------------------
	r.GET("/healthz", func(c *gin.Context) {
		checks := a.Healthy(c.Request.Context())
		status := http.StatusOK
		for _, v := range checks {
			if v != "ok" {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, app.H{"ok": status == http.StatusOK, "checks": checks})
	})
	r.GET("/metrics", gin.WrapH(a.Metrics.Handler()))

	// ------------------------------
	// accounts
	// ------------------------------
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", acct.Register)
		auth.POST("/login", acct.Login)
		auth.POST("/identity", acct.IdentityLogin)
		auth.POST("/logout", acct.Logout)
		auth.GET("/whoami", authMW, seenMW, acct.WhoAmI)
	}

	// passkey sign-in is public; enrolment needs a session
	wa := r.Group("/webauthn")
	{
		wa.POST("/login/begin", pk.BeginLogin)
		wa.POST("/login/finish", pk.FinishLogin)
	}
	creds := r.Group("/api/credentials", authMW, seenMW)
	{
		creds.POST("/add/begin", pk.BeginAddCredential)
		creds.POST("/add/finish", pk.FinishAddCredential)
	}

	// ------------------------------
	// catalogue (public) and borrowing (customers)
	// ------------------------------
	catalogue := r.Group("/api/games")
	{
		catalogue.GET("", games.ListGames)
		catalogue.GET("/platforms", games.Platforms)
		catalogue.GET("/:id", games.GetGame)
		catalogue.POST("/:id/borrow", authMW, seenMW, customerMW, games.Borrow)
	}

	me := r.Group("/api/me", authMW, seenMW)
	{
		me.GET("/dashboard", games.MyDashboard)
		me.GET("/borrowed", games.MyBorrowed)
		me.GET("/history", games.MyHistory) // ?limit=
		me.POST("/transactions/:id/return", customerMW, games.Return)
		me.PUT("/profile", acct.UpdateProfile)
		me.PUT("/password", acct.ChangePassword)
	}

	// ------------------------------
	// admin
	// ------------------------------
	admin := r.Group("/api/admin", authMW, seenMW, adminMW)
	{
		admin.GET("/dashboard", txs.Dashboard)
		admin.GET("/reports", txs.Reports)
		admin.GET("/audit", audit.List)

		admin.POST("/games", games.AddGames)
		admin.GET("/games/:id", games.GameDetail)
		admin.PUT("/games/:id", games.EditGame)
		admin.DELETE("/games/:id", games.DeleteGame)

		admin.GET("/transactions", txs.List) // ?status=&user=&date=&page=&size=
		admin.PUT("/transactions/:id/status", txs.UpdateStatus)
		admin.POST("/transactions/:id/return", games.Return)

		admin.GET("/overdue", txs.Overdue)
		admin.POST("/overdue/:id/remind", txs.Remind)

		admin.GET("/users", users.ListUsers) // ?q=&page=&size=
		admin.POST("/users", users.CreateUser)
		admin.GET("/users/:id", users.GetUser)
		admin.PUT("/users/:id", users.UpdateUser)
		admin.PUT("/users/:id/status", users.SetStatus)
		admin.PUT("/users/:id/password", users.ResetPassword)
		admin.DELETE("/users/:id", users.DeleteUser)
	}
}
