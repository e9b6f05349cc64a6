// localidp runs the stub identity provider standalone for local development.
// It seeds a known admin user at startup so the gate service can be pointed
// at it out of the box.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/opsdeskhq/opsgate/internal/localidp"
	"github.com/opsdeskhq/opsgate/pkg/slogx"
)

func main() {
	logger := slogx.New(slogx.Config{
		Service: "localidp",
		Version: "dev",
		Env:     "dev",
		Level:   getEnvOrDefault("LOG_LEVEL", "debug"),
		Format:  getEnvOrDefault("LOG_FORMAT", "text"),
	})

	server, err := localidp.NewServer(localidp.Config{
		DatabaseFile: getEnvOrDefault("IDP_DATABASE_FILE", "localidp.db"),
		Issuer:       getEnvOrDefault("IDP_ISSUER", "localidp"),
		ServiceKey:   getEnvOrDefault("IDP_SERVICE_KEY", "service-role-key"),
		SigningKey:   []byte(getEnvOrDefault("IDP_SIGNING_KEY", "local-development-signing-key")),
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("failed to initialize provider: %v", err)
	}
	defer server.Close()

	seedEmail := getEnvOrDefault("IDP_SEED_EMAIL", "admin@example.com")
	seedPassword := getEnvOrDefault("IDP_SEED_PASSWORD", "changeme123")
	if id, err := server.SeedUser(context.Background(), seedEmail, seedPassword, false); err == nil {
		logger.Info("seeded user", "email", seedEmail, "id", id)
	}

	port := getEnvOrDefault("PORT", "9999")
	logger.Info("localidp listening", "port", port)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           server,
		ReadHeaderTimeout: 3 * time.Second,
	}
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
