package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/restaurant/backend/internal/infrastructure/auth"
	"github.com/restaurant/backend/internal/infrastructure/config"
	"github.com/restaurant/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

func main() {
	var (
		userID   string
		username string
		modules  string
		inactive bool
		logLevel string
	)

	flag.StringVar(&userID, "user", "", "User id (default: random)")
	flag.StringVar(&username, "username", "dev", "Username carried in the token")
	flag.StringVar(&modules, "modules", "", "Comma separated back-office modules, e.g. FINANCEIRO,ESTOQUE")
	flag.BoolVar(&inactive, "inactive", false, "Issue the token for a deactivated account")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.App.Env == "production" {
		log.Fatal("Refusing to issue tokens in production; they come from the identity provider")
	}

	id := uuid.New()
	if userID != "" {
		if id, err = uuid.Parse(userID); err != nil {
			log.Fatal("Invalid user id", zap.String("user", userID), zap.Error(err))
		}
	}

	grant := auth.Grant{
		UserID:   id,
		Username: username,
		Active:   !inactive,
		Modules:  splitModules(modules),
	}
	token, err := auth.NewJWTService(cfg.JWT).IssueAccessToken(grant)
	if err != nil {
		log.Fatal("Failed to issue access token", zap.Error(err))
	}
	log.Info("Access token issued",
		zap.String("user_id", id.String()),
		zap.Strings("modules", grant.Modules),
		zap.Time("expires_at", token.ExpiresAt))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(token); err != nil {
		log.Fatal("Failed to write token", zap.Error(err))
	}
}

func splitModules(s string) []string {
	var out []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, strings.ToUpper(m))
		}
	}
	return out
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Development access token issuer

Usage:
  token [flags]

Signs an access token with the configured JWT secret so the API can be
exercised locally without the identity provider.

Flags:`)
	flag.PrintDefaults()
}
