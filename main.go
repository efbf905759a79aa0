package main

import (
	"context"
	"os"

	"gamelend/app"
	"gamelend/config"
	"gamelend/logger"
	"gamelend/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	config.LoadEnv()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "gamelend"}).Error(ctx, "config.load_failed", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{
		ServiceName: "gamelend",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	if !cfg.App.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	application := app.MustNew(cfg, log)
	defer application.Close()

	created, err := application.BootstrapFirstAdmin(ctx)
	if err != nil {
		log.Error(ctx, "bootstrap.admin_failed", err)
	} else if created {
		log.Info(log.WithField(ctx, "username", cfg.Auth.BootstrapUsername), "bootstrap.admin_created")
	}

	routes.RegisterRoutes(application)

	log.Info(log.WithField(ctx, "port", cfg.App.Port), "server.listening")
	if err := application.Router.Run(":" + cfg.App.Port); err != nil {
		log.Error(ctx, "server.stopped", err)
		os.Exit(1)
	}
}
