// Package config provides 12-factor configuration for the Shiny host.
//
// Configuration is loaded from environment variables with defaults. The
// runtime section has no defaults: its paths must point at a real R
// installation and app, and Load fails before anything is launched when one
// is missing.
//
// Configuration Sections:
//   - Server: HTTP control API (PORT, HOST)
//   - Runtime: RSCRIPT_PATH, R_HOME_DIR, START_SHINY_PATH, R_LIB_PATH,
//     SHINY_APP_PATH, SHINY_URL, SHINY_DIAGNOSTIC_PATH
//   - Supervisor: SHINY_PORT_START, SHINY_PORT_END, SHINY_MAX_RETRIES,
//     SHINY_INITIAL_BACKOFF, SHINY_READY_TIMEOUT, SHINY_POLL_INTERVAL,
//     SHINY_PROBE_TIMEOUT, SHINY_HIDE_CONSOLE, SHINY_WATCH_INTERVAL,
//     SHINY_WATCH_MAX_MISSED, SHINY_AUTOSTART
//   - Events: SHINY_TOPIC_PREFIX
//   - CORS: CORS_ORIGINS (comma separated)
//   - Logging: LOG_LEVEL, LOG_DEV
//   - RateLimit: RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Control API on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
package config
