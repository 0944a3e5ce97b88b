package main

import (
	"context"
	"log"
	"time"

	"outreachly/config"
	"outreachly/middleware"
	"outreachly/routes"
	"outreachly/utils"
	"outreachly/worker"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func main() {
	engineLogger := logrus.New()
	engineLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := config.ConnectDB(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if dsn := config.AppConfig.SentryDSN; dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			engineLogger.WithError(err).Warn("sentry init failed, continuing without capture")
		}
		defer sentry.Flush(2 * time.Second)
	}

	app := fiber.New()
	app.Use(middleware.CORS())

	// Shared engine components for the background workers
	sender := utils.NewCampaignSender(config.DB, engineLogger)
	matcher := utils.NewReplyMatcher(config.DB, engineLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedulerWorker := worker.NewSchedulerWorker(config.DB, sender, engineLogger,
		time.Duration(config.AppConfig.SchedulerIntervalSec)*time.Second)
	go schedulerWorker.Start(ctx)

	followUpWorker := worker.NewFollowUpWorker(config.DB, sender, engineLogger,
		time.Duration(config.AppConfig.FollowUpIntervalSec)*time.Second)
	go followUpWorker.Start(ctx)

	imapWorker := worker.NewIMAPWorker(config.DB, matcher, engineLogger,
		time.Duration(config.AppConfig.IMAPPollIntervalSec)*time.Second)
	go imapWorker.Start(ctx)

	routes.SetupRoutes(app, config.DB, engineLogger)

	engineLogger.Infof("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
