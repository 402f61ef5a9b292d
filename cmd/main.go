package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"bookingsync/internal/caldav"
	"bookingsync/internal/config"
	"bookingsync/internal/extract"
	"bookingsync/internal/google"
	"bookingsync/internal/llm"
	"bookingsync/internal/syncer"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "bookingsync",
		Usage: "Sync booking events from a calendar into a spreadsheet.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "Path to the YAML config file."},
			&cli.StringFlag{Name: "account", Value: "default", Usage: "Name of the authenticated Google account to use."},
		},
		Commands: []*cli.Command{
			authCommand(),
			syncCommand(),
			statusCommand(),
			cleanupCommand(),
			exportCommand(),
			pushCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to get an API token.",
		Action: func(c *cli.Context) error {
			logger := setupLogger("info")
			logger.Info("Starting Google authentication flow.")

			oauthConfig, err := google.GetOAuthConfigForAuthFlow(os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"))
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(oauthConfig, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			fmt.Print("Enter a name for this account (e.g., 'default', 'work'): ")
			accountName, _ := reader.ReadString('\n')
			accountName = strings.TrimSpace(accountName)
			tokenFile := "token-" + accountName + ".json"

			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run the booking synchronization process.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "Run the sync cycle once and exit."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be synced without making changes."},
			&cli.IntFlag{Name: "watch", Value: 300, Usage: "Run sync every N seconds. Overrides --once."},
			&cli.StringFlag{Name: "run-id", Usage: "Identifier recorded on every row this run touches. Generated when empty."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, loc, err := loadEnvironment(c)
			if err != nil {
				return err
			}
			if c.Bool("dry-run") {
				logger.Info("Performing a dry run. No changes will be made.")
			}

			s, err := buildSyncer(c, cfg, logger, loc, c.Bool("dry-run"))
			if err != nil {
				return err
			}

			runOnce := func() error {
				from := time.Now().In(loc).AddDate(0, 0, -cfg.Calendar.PastDays)
				to := time.Now().In(loc).AddDate(0, 0, cfg.Calendar.FutureDays)
				run, err := s.Sync(c.Context, from, to, c.String("run-id"))
				if run != nil {
					logger.Info("Run summary",
						"runID", run.RunID,
						"duration", run.Duration().Round(time.Millisecond),
						"total", run.TotalEvents,
						"matched", run.MatchedEvents,
						"upserted", run.Upserted,
						"skipped", run.Skipped,
						"errors", run.Errors)
					for _, detail := range run.ErrorDetails {
						logger.Warn("Run error detail", "detail", detail)
					}
				}
				return err
			}

			// --watch flag takes precedence
			if c.IsSet("watch") {
				interval := time.Duration(c.Int("watch")) * time.Second
				logger.Info("Starting watcher.", "interval", interval)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for ; true; <-ticker.C {
					if err := runOnce(); err != nil {
						logger.Error("Sync cycle failed", "error", err)
					}
				}
			} else { // --once is the default behavior if --watch is not set
				logger.Info("Running a single sync cycle.")
				if err := runOnce(); err != nil {
					return fmt.Errorf("single sync cycle failed: %w", err)
				}
			}

			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Check that the calendar and the spreadsheet are reachable.",
		Action: func(c *cli.Context) error {
			cfg, logger, loc, err := loadEnvironment(c)
			if err != nil {
				return err
			}
			s, err := buildSyncer(c, cfg, logger, loc, false)
			if err != nil {
				return err
			}

			status := s.Status(c.Context)
			fmt.Printf("Provider:    %s (calendar %s)\n", cfg.Calendar.Provider, cfg.Calendar.CalendarID)
			fmt.Printf("Worksheet:   %s\n", cfg.Spreadsheet.SheetName)
			fmt.Printf("Calendar:    %s\n", okOrError(status.CalendarOK, status.CalendarError))
			fmt.Printf("Spreadsheet: %s\n", okOrError(status.StorageOK, status.StorageError))
			if status.StorageOK {
				fmt.Printf("Table rows:  %d\n", status.TableRows)
			}
			if !status.Ready {
				return fmt.Errorf("one or more backends are not reachable")
			}
			fmt.Println("Ready.")
			return nil
		},
	}
}

func cleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Delete rows not updated within the retention window.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Value: 90, Usage: "Delete rows last updated more than N days ago."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, loc, err := loadEnvironment(c)
			if err != nil {
				return err
			}
			s, err := buildSyncer(c, cfg, logger, loc, false)
			if err != nil {
				return err
			}

			removed, checked, err := s.Cleanup(c.Context, c.Int("days"))
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			logger.Info("Cleanup finished", "checked", checked, "removed", removed)
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the booking table to stdout.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Value: "csv", Usage: "Output format: csv, json or ical."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, loc, err := loadEnvironment(c)
			if err != nil {
				return err
			}
			s, err := buildSyncer(c, cfg, logger, loc, false)
			if err != nil {
				return err
			}

			out, err := s.Export(c.Context, c.String("format"))
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}

func pushCommand() *cli.Command {
	return &cli.Command{
		Name:  "push",
		Usage: "Create or update calendar events from the reduced worksheet.",
		Action: func(c *cli.Context) error {
			cfg, logger, loc, err := loadEnvironment(c)
			if err != nil {
				return err
			}
			s, err := buildSyncer(c, cfg, logger, loc, false)
			if err != nil {
				return err
			}

			created, updated, err := s.Push(c.Context)
			if err != nil {
				return fmt.Errorf("push failed: %w", err)
			}
			logger.Info("Push finished", "created", created, "updated", updated)
			return nil
		},
	}
}

// loadEnvironment loads config, logger and timezone shared by every command.
func loadEnvironment(c *cli.Context) (*config.Config, *slog.Logger, *time.Location, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := setupLogger(cfg.Logging.Level)

	loc, err := time.LoadLocation(cfg.Sync.Timezone)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid timezone '%s': %w", cfg.Sync.Timezone, err)
	}
	return cfg, logger, loc, nil
}

// buildSyncer wires the event source, storage, extractors and syncer from the
// loaded configuration.
func buildSyncer(c *cli.Context, cfg *config.Config, logger *slog.Logger, loc *time.Location, dryRun bool) (*syncer.Syncer, error) {
	ctx := context.Background()
	account := c.String("account")

	var source syncer.EventSource
	switch cfg.Calendar.Provider {
	case "caldav":
		client, err := caldav.NewClient(logger,
			cfg.Calendar.CalDAVEndpoint,
			os.Getenv("CALDAV_USERNAME"),
			os.Getenv("CALDAV_PASSWORD"),
			cfg.Calendar.CalDAVCalendar,
			loc)
		if err != nil {
			return nil, fmt.Errorf("failed to create caldav client: %w", err)
		}
		source = client
	default:
		client, err := google.NewCalendarClient(ctx, logger,
			os.Getenv("GOOGLE_CLIENT_ID"),
			os.Getenv("GOOGLE_CLIENT_SECRET"),
			account,
			cfg.Calendar.CalendarID,
			cfg.Calendar.MaxResults)
		if err != nil {
			return nil, fmt.Errorf("failed to create google calendar client: %w", err)
		}
		source = client
	}

	store, err := google.NewSheetsClient(ctx, logger,
		os.Getenv("GOOGLE_CLIENT_ID"),
		os.Getenv("GOOGLE_CLIENT_SECRET"),
		account,
		cfg.Spreadsheet.SpreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}

	// A broken model provider degrades extraction, it does not break syncing.
	var fallback extract.Fallback
	provider, err := llm.NewProvider(llm.Config{
		Provider: cfg.Extraction.Provider,
		Model:    cfg.Extraction.Model,
		APIKey:   cfg.Extraction.APIKey,
	})
	if err != nil {
		logger.Warn("Model provider unavailable, extraction runs heuristics only", "error", err)
	} else {
		fallback = extract.NewModelExtractor(provider, logger)
		logger.Info("Model-backed extraction enabled", "provider", provider.Name())
	}

	hybrid := extract.NewHybrid(cfg.Extraction.ConfidenceThreshold, fallback, logger)
	return syncer.NewSyncer(logger, source, store, hybrid, cfg, loc, dryRun)
}

func okOrError(ok bool, errMsg string) string {
	if ok {
		return "ok"
	}
	return "error: " + errMsg
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
