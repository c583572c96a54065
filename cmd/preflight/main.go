// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hamed0406/healthwatch/internal/config"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	if err := config.LoadDotEnv(); err != nil {
		fail("could not read .env: " + err.Error())
	}

	admin := strings.TrimSpace(os.Getenv("ADMIN_API_KEYS"))
	pub := strings.TrimSpace(os.Getenv("PUBLIC_API_KEYS"))

	if admin == "" {
		fail("ADMIN_API_KEYS is empty (admin routes would be open).")
	}
	if pub == "" {
		fail("PUBLIC_API_KEYS is empty (read routes would be open).")
	}

	// Normalize and sanity-check lists (no spaces around commas).
	for name, v := range map[string]string{"ADMIN_API_KEYS": admin, "PUBLIC_API_KEYS": pub} {
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	cfg := config.FromEnv()
	ok("API_ADDR=" + cfg.Addr)

	if cfg.DatabaseURL == "" {
		warn("DATABASE_URL empty, incidents will not be archived.")
	} else {
		ok("DATABASE_URL present")
	}

	if cfg.ChecksFile == "" {
		warn("CHECKS_FILE empty, checks must be added through the API.")
	} else {
		f, err := config.LoadFile(cfg.ChecksFile)
		if err != nil {
			fail("CHECKS_FILE " + cfg.ChecksFile + ": " + err.Error())
		}
		ok(fmt.Sprintf("CHECKS_FILE %s: %d checks, %d maintenance windows", cfg.ChecksFile, len(f.Checks), len(f.Maintenance)))
	}

	if cfg.SlackWebhook == "" && cfg.AlertWebhook == "" {
		warn("no SLACK_WEBHOOK or ALERT_WEBHOOK, alerts only reach the event stream.")
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		warn("ALLOWED_ORIGINS is *, any origin may call the API.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	if cfg.RecoveryThreshold > cfg.IncidentThreshold {
		warn(fmt.Sprintf("RECOVERY_THRESHOLD (%d) above INCIDENT_THRESHOLD (%d); incidents will linger.", cfg.RecoveryThreshold, cfg.IncidentThreshold))
	}

	ok("preflight passed")
}
