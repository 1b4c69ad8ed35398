package main

import (
	"leadflow/internal/config"
	"leadflow/internal/database"
	"leadflow/internal/server"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger()

	// Initialize database connection
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database connection failed")
	}
	logger.Info().Msg("Database connection established successfully")

	store, err := database.NewLeadService(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize lead service")
	}

	// Create and initialize server
	srv := server.New(cfg, db, store, logger)
	srv.Initialize()

	// Start server
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed to start")
	}
}
