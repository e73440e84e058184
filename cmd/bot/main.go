package main

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/telebot.v4"

	"gemini-image-bot/internal/config"
	"gemini-image-bot/internal/gemini"
	"gemini-image-bot/internal/handler"
	"gemini-image-bot/internal/logging"
	"gemini-image-bot/internal/session"
	"gemini-image-bot/internal/storage"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.toml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize logging
	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Output)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	logger.Info("Starting Gemini image bot")

	// Create HTTP client for Telegram bot with proxy if enabled
	tgHTTPClient := &http.Client{
		Timeout: 60 * time.Second,
	}

	proxyURL := ""
	if cfg.Proxy.Enabled && cfg.Proxy.URL != "" {
		logger.Infof("Using proxy: %s", cfg.Proxy.URL)
		parsed, err := url.Parse(cfg.Proxy.URL)
		if err != nil {
			logger.Fatalf("Invalid proxy URL: %v", err)
		}
		proxyURL = cfg.Proxy.URL

		tgHTTPClient.Transport = &http.Transport{
			Proxy:           http.ProxyURL(parsed),
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			IdleConnTimeout: 90 * time.Second,
		}
	}

	// Create Gemini client
	client, err := gemini.NewClient(gemini.Options{
		Keys:           cfg.Gemini.APIKeys,
		Model:          cfg.Gemini.Model,
		BaseURL:        cfg.Gemini.BaseURL,
		UseRelay:       cfg.Gemini.UseRelay,
		RelayURL:       cfg.Gemini.RelayURL,
		ProxyURL:       proxyURL,
		Timeout:        time.Duration(cfg.Gemini.Timeout) * time.Second,
		MaxRetries:     cfg.Gemini.MaxRetries,
		RetryBaseDelay: time.Duration(cfg.Gemini.RetryBaseDelayMs) * time.Millisecond,
		KeyPinTTL:      time.Duration(cfg.Session.KeyPinTTL) * time.Second,
	})
	if err != nil {
		logger.Fatalf("Failed to create Gemini client: %v", err)
	}

	// Create session store and image store
	sessions := session.NewStore(session.Options{
		ConversationTTL: time.Duration(cfg.Session.ConversationTTL) * time.Second,
		ImageCacheTTL:   time.Duration(cfg.Session.ImageCacheTTL) * time.Second,
		MaxTurns:        cfg.Session.MaxTurns,
	})

	images, err := storage.NewImageStore(cfg.Storage.SaveDir)
	if err != nil {
		logger.Fatalf("Failed to create image store: %v", err)
	}

	// Create Telegram bot
	botSettings := telebot.Settings{
		Token: cfg.Telegram.Token,
		Poller: &telebot.LongPoller{
			Timeout: time.Duration(cfg.Telegram.PollingTimeout) * time.Second,
			Limit:   cfg.Telegram.PollingLimit,
		},
		Client:    tgHTTPClient,
		Verbose:   cfg.Logging.Level == "debug",
		ParseMode: telebot.ModeDefault, // Use plain text to avoid Markdown parsing errors
	}

	tgBot, err := telebot.NewBot(botSettings)
	if err != nil {
		logger.Fatalf("Failed to create Telegram bot: %v", err)
	}

	logger.Infof("Telegram bot authorized as @%s", tgBot.Me.Username)

	// Create bot handler
	botHandler := handler.NewBot(cfg, client, sessions, images)
	botHandler.SetTelegramBot(tgBot)
	botHandler.Start()

	// Periodic cleanup: expired sessions, key pins and stale image files
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Storage.CleanupInterval) * time.Second)
		defer ticker.Stop()
		retention := time.Duration(cfg.Storage.RetentionHours) * time.Hour
		for {
			select {
			case <-cleanupDone:
				return
			case <-ticker.C:
				now := time.Now()
				sessions.Sweep(now)
				client.Pool().Sweep(now)
				images.Cleanup(retention, sessions.LastImagePaths())
			}
		}
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Bot is now running. Press Ctrl+C to exit.")

	// Start the bot in a goroutine
	go func() {
		tgBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	logger.Infof("Received signal %v, shutting down...", sig)

	// Stop the bot
	close(cleanupDone)
	botHandler.Stop()
	tgBot.Stop()

	logger.Info("Bot shutdown complete")
}
