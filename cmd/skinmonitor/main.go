// Command skinmonitor runs the cross-market skin price-arbitrage monitor:
// serve starts the scheduler and HTTP API; the scan/status/settings
// subcommands are automation shims for one-off operator use. scan prefers
// a running serve instance's HTTP API and falls back to standalone
// operation against local data files; settings set requires a running
// serve instance.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/skinmarket/internal/engine"
	"github.com/sawpanic/skinmarket/internal/httpapi"
	applog "github.com/sawpanic/skinmarket/internal/log"
	"github.com/sawpanic/skinmarket/internal/settings"
)

const version = "v0.1.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var dataDir, settingsFile, host string
	var port int

	rootCmd := &cobra.Command{
		Use:     "skinmonitor",
		Short:   "Cross-market skin price-arbitrage monitor",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "directory for snapshots, opportunities, and the hash-name cache")
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings-file", "", "optional YAML settings file")
	rootCmd.PersistentFlags().StringVar(&host, "host", "127.0.0.1", "HTTP bind host")
	rootCmd.PersistentFlags().IntVar(&port, "port", 8080, "HTTP bind port")

	buildEngine := func() (*engine.Engine, error) {
		cfg := engine.DefaultConfig()
		cfg.DataDir = dataDir
		cfg.SettingsFile = settingsFile
		cfg.HTTP.Host = host
		cfg.HTTP.Port = port
		return engine.New(cfg)
	}
	baseURL := func() string {
		return fmt.Sprintf("http://%s:%d", host, port)
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine()
			if err != nil {
				return err
			}
			e.LoadCredentials()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				if err := e.Start(ctx); err != nil {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				log.Info().Msg("shutdown signal received")
			case err := <-errCh:
				if err != nil {
					log.Error().Err(err).Msg("http server exited")
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return e.Stop(shutdownCtx)
		},
	}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a single analysis pass and exit",
	}

	scanFullCmd := &cobra.Command{
		Use:   "full",
		Short: "Run a full analysis against both marketplaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			handled, err := triggerViaHTTP(cmd.Context(), baseURL(), "/force-full")
			if handled {
				if err != nil {
					return err
				}
				fmt.Printf("full analysis triggered on running serve instance at %s\n", baseURL())
				return nil
			}

			e, err := buildEngine()
			if err != nil {
				return err
			}
			e.LoadCredentials()

			op := applog.StartOperation("full analysis")
			result, err := e.Pipelines.RunFull(cmd.Context(), true)
			if err != nil {
				op.Fail(err)
				return err
			}
			op.Finish(len(result.Opportunities))
			return nil
		},
	}

	scanIncrementalCmd := &cobra.Command{
		Use:   "incremental",
		Short: "Run an incremental re-check over the hash-name cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			handled, err := triggerViaHTTP(cmd.Context(), baseURL(), "/force-incremental")
			if handled {
				if err != nil {
					return err
				}
				fmt.Printf("incremental analysis triggered on running serve instance at %s\n", baseURL())
				return nil
			}

			e, err := buildEngine()
			if err != nil {
				return err
			}
			e.LoadCredentials()

			op := applog.StartOperation("incremental analysis")
			result, err := e.Pipelines.RunIncremental(cmd.Context())
			if err != nil {
				op.Fail(err)
				return err
			}
			op.Finish(len(result.Opportunities))
			return nil
		},
	}
	scanCmd.AddCommand(scanFullCmd, scanIncrementalCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the Analysis Gate and scheduler status",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine()
			if err != nil {
				return err
			}
			setColorMode()

			gs := e.Gate.Status()
			fmt.Printf("gate: %s kind=%s id=%s\n", runningLabel(gs.IsRunning), gs.Kind, gs.ID)

			ss := e.Scheduler.Status()
			fmt.Printf("scheduler: %s last_full=%s last_incremental=%s\n",
				runningLabel(ss.Running), formatTime(ss.LastFullRun), formatTime(ss.LastIncRun))
			return nil
		},
	}

	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or edit process settings",
	}
	settingsGetCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine()
			if err != nil {
				return err
			}
			setColorMode()
			label := color.New(color.FgCyan).SprintFunc()
			s := e.Settings.Get()
			fmt.Printf("%s=%s %s=%s %s=%s %s=%s %s=%d %s=%d\n",
				label("diff_min"), s.DiffMin, label("diff_max"), s.DiffMax,
				label("price_min_a"), s.PriceMinA, label("price_max_a"), s.PriceMaxA,
				label("listing_count_min"), s.ListingCountMin, label("max_output_items"), s.MaxOutputItems)
			return nil
		},
	}
	settingsSetCmd := &cobra.Command{
		Use:   "set KEY=VALUE...",
		Short: "Update one or more settings on a running serve instance",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := fetchSettingsViaHTTP(cmd.Context(), baseURL())
			if err != nil {
				return fmt.Errorf("settings set requires a reachable serve instance at %s: %w", baseURL(), err)
			}
			for _, kv := range args {
				key, value, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid KEY=VALUE pair %q", kv)
				}
				if err := applySettingField(&current, key, value); err != nil {
					return err
				}
			}
			if err := pushSettingsViaHTTP(cmd.Context(), baseURL(), current); err != nil {
				return err
			}
			fmt.Printf("settings updated on %s\n", baseURL())
			return nil
		},
	}
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)

	rootCmd.AddCommand(serveCmd, scanCmd, statusCmd, settingsCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// setColorMode ties fatih/color's output to whether stdout is an actual
// terminal, so piped/redirected output (cron, CI logs) stays plain.
func setColorMode() {
	color.NoColor = !term.IsTerminal(int(os.Stdout.Fd()))
}

func runningLabel(running bool) string {
	c := color.New(color.FgYellow)
	if running {
		c = color.New(color.FgGreen)
	}
	return c.Sprintf("running=%v", running)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

// triggerViaHTTP POSTs path to a running serve instance. handled is true
// once a serve instance actually answered the request — at that point the
// caller must not fall back to standalone, even if the answer was an error
// (e.g. the gate was busy). handled is false only when the instance could
// not be reached at all, which is the caller's cue to run standalone
// instead (spec's documented scan dual-mode behavior).
func triggerViaHTTP(ctx context.Context, base, path string) (handled bool, err error) {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, nil)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return true, nil
	}
	var apiErr httpapi.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)
	return true, fmt.Errorf("serve instance rejected request (%d): %s", resp.StatusCode, apiErr.Message)
}

// fetchSettingsViaHTTP reads the live in-memory settings from a running
// serve instance's /status, the baseline settings set mutates before
// writing back.
func fetchSettingsViaHTTP(ctx context.Context, base string) (settings.Settings, error) {
	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/status", nil)
	if err != nil {
		return settings.Settings{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return settings.Settings{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return settings.Settings{}, fmt.Errorf("unexpected status %d from %s/status", resp.StatusCode, base)
	}
	var status httpapi.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return settings.Settings{}, err
	}
	return status.Settings, nil
}

// pushSettingsViaHTTP posts the full settings record back to /settings,
// which validates, swaps the Settings Store, and triggers Reprocess (or
// Incremental) per C12.
func pushSettingsViaHTTP(ctx context.Context, base string, s settings.Settings) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/settings", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("serve instance unreachable at %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var apiErr httpapi.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("settings update rejected (%d): %s", resp.StatusCode, apiErr.Message)
	}
	return nil
}

// applySettingField parses value into the named Settings field, matching
// the KEY names settings get prints and the YAML file's keys.
func applySettingField(s *settings.Settings, key, value string) error {
	switch key {
	case "diff_min":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("diff_min: %w", err)
		}
		s.DiffMin = d
	case "diff_max":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("diff_max: %w", err)
		}
		s.DiffMax = d
	case "price_min_a":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("price_min_a: %w", err)
		}
		s.PriceMinA = d
	case "price_max_a":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("price_max_a: %w", err)
		}
		s.PriceMaxA = d
	case "listing_count_min":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("listing_count_min: %w", err)
		}
		s.ListingCountMin = n
	case "max_output_items":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_output_items: %w", err)
		}
		s.MaxOutputItems = n
	case "full_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("full_interval: %w", err)
		}
		s.FullInterval = d
	case "incremental_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("incremental_interval: %w", err)
		}
		s.IncrementalInterval = d
	case "incremental_cache_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("incremental_cache_size: %w", err)
		}
		s.IncrementalCacheSize = n
	case "request_delay_a":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("request_delay_a: %w", err)
		}
		s.RequestDelayA = d
	case "request_delay_b":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("request_delay_b: %w", err)
		}
		s.RequestDelayB = d
	case "page_size_a":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("page_size_a: %w", err)
		}
		s.PageSizeA = n
	case "page_size_b":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("page_size_b: %w", err)
		}
		s.PageSizeB = n
	case "max_pages_a":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_pages_a: %w", err)
		}
		s.MaxPagesA = n
	case "max_pages_b":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_pages_b: %w", err)
		}
		s.MaxPagesB = n
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}
