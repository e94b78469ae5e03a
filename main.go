package main

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"teymur/broadcast"
	"teymur/config"
	"teymur/middleware"
	"teymur/routes"
	"teymur/scheduler"
	"teymur/utils"
	"teymur/worker"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			log.Warnf("Sentry init failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := config.ConnectDB(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Engine wiring
	calendar := scheduler.NewCalendarResolver(config.DB)
	resolver := scheduler.NewResolver(calendar)
	sync := scheduler.NewSynchronizer(config.DB, resolver, log.WithField("component", "sync"))
	hub := broadcast.NewHub()

	var transport utils.Transport
	if config.AppConfig.RelayURL != "" {
		transport = utils.NewRelayClient(config.AppConfig.RelayURL, config.AppConfig.RelayAPIKey)
	} else {
		transport = &utils.SMTPTransport{
			Host:      config.AppConfig.SMTPHost,
			Port:      config.AppConfig.SMTPPort,
			Username:  config.AppConfig.SMTPUsername,
			Password:  config.AppConfig.SMTPPassword,
			FromEmail: config.AppConfig.FromEmail,
		}
	}

	dispatcher := worker.NewDispatchWorker(
		config.DB,
		resolver,
		transport,
		hub,
		log.WithField("component", "dispatch"),
		config.AppConfig.TrackingBaseURL,
		time.Duration(config.AppConfig.DispatchIntervalSec)*time.Second,
		time.Duration(config.AppConfig.SendDelayMillis)*time.Millisecond,
	)
	if config.AppConfig.Redis.Enabled {
		dispatcher.Lock = worker.NewTickLock(config.AppConfig.Redis)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Start(ctx)

	app := fiber.New()
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, config.DB, sync, hub, log)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	log.Infof("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
