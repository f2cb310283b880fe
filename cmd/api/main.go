package main

import (
	"log"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/streamvault/streamvault/internal/config"
	pkgconfig "github.com/streamvault/streamvault/pkg/config"
)

func main() {
	// Load environment files explicitly
	envFiles := []string{".env.local", ".env.development", ".env"}
	config.LoadEnvFiles(envFiles)

	// Load configuration from YAML
	cfg, err := config.LoadFromFile("config.yaml")
	if err != nil {
		fiberlog.Fatalf("Failed to load config: %v", err)
	}

	vault := pkgconfig.NewVault(cfg)

	log.Println("Starting StreamVault server...")
	if err := vault.Run(); err != nil {
		fiberlog.Fatalf("Server failed: %v", err)
	}
}
