package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/meridian/salary-engine/cmd"
	"github.com/meridian/salary-engine/config"
	"github.com/meridian/salary-engine/logger"
)

func main() {
	// A .env file is a development convenience, not a requirement.
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	// Logging must be up before any command runs.
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Warning: could not load configuration: %v", err)
		if err := logger.Setup(logger.DefaultConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	} else {
		if err := logger.Setup(cfg.LoggerConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	}

	cmd.Execute()
}
