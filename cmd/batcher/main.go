package main

import (
	"anchor/internal/app"
	"anchor/internal/config"
	"log"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional, values already in the environment win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed load .env, error=%v", err)
	}

	cfgPath := os.Getenv("CONFIG")
	if cfgPath == "" {
		cfgPath = "cmd/batcher/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed load config, error=%v", err)
	}

	if err = app.Run(cfg); err != nil {
		log.Fatalf("App run is failed, error=%v", err)
	}
}
