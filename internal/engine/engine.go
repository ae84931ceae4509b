// Package engine wires every component — Analysis Gate, Data Store,
// Hash-Name Cache, Settings Store, Credentials Store, rate limiter,
// Marketplace Clients, metrics registry, pipelines, and scheduler — into
// one process, mirroring how the teacher's cmd/cryptorun assembles its
// provider registry and scan engine.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/skinmarket/internal/credentials"
	"github.com/sawpanic/skinmarket/internal/gate"
	"github.com/sawpanic/skinmarket/internal/hashcache"
	"github.com/sawpanic/skinmarket/internal/httpapi"
	"github.com/sawpanic/skinmarket/internal/marketclient/buff"
	"github.com/sawpanic/skinmarket/internal/marketclient/youpin"
	"github.com/sawpanic/skinmarket/internal/metrics"
	"github.com/sawpanic/skinmarket/internal/model"
	"github.com/sawpanic/skinmarket/internal/pipeline"
	"github.com/sawpanic/skinmarket/internal/ratelimit"
	"github.com/sawpanic/skinmarket/internal/scheduler"
	"github.com/sawpanic/skinmarket/internal/settings"
	"github.com/sawpanic/skinmarket/internal/store"
)

// Config bundles everything needed to assemble an Engine.
type Config struct {
	DataDir        string
	SettingsFile   string
	CredentialsEnv string // env var prefix, e.g. "SKINMONITOR"
	HTTP           httpapi.Config
}

// DefaultConfig returns sane local defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:        "./data",
		CredentialsEnv: "SKINMONITOR",
		HTTP:           httpapi.DefaultConfig(),
	}
}

// Engine owns the process's full component graph.
type Engine struct {
	Settings    *settings.Store
	Store       *store.Store
	HashCache   *hashcache.Cache
	Gate        *gate.Gate
	Credentials *credentials.Store
	RateLimit   *ratelimit.Gate
	Metrics     *metrics.Registry
	Pipelines   *pipeline.Pipelines
	Scheduler   *scheduler.Scheduler
	HTTPServer  *httpapi.Server
}

// New assembles the full component graph but starts nothing.
func New(cfg Config) (*Engine, error) {
	settingsValues, err := settings.LoadFile(cfg.SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settingsStore := settings.NewStore(settingsValues)

	dataStore := store.New(cfg.DataDir)
	hashCache := hashcache.New(filepath.Join(cfg.DataDir, "hashname_cache.bin"))
	if err := hashCache.Load(); err != nil {
		return nil, fmt.Errorf("load hash-name cache: %w", err)
	}

	analysisGate := gate.New()
	rateGate := ratelimit.NewGate()
	rateGate.SetDelay(model.PlatformA, settingsValues.RequestDelayA)
	rateGate.SetDelay(model.PlatformB, settingsValues.RequestDelayB)

	checker := newAuthChecker()
	credSource := credentials.NewEnvSource(cfg.CredentialsEnv)
	credStore := credentials.NewStore(credSource, checker, credentials.DefaultTTL)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	clientA := buff.New(httpClient, rateGate, credStore, "")
	clientB := youpin.New(httpClient, rateGate, credStore, "")
	checker.setClients(clientA, clientB)

	reg := metrics.New()
	clientA.Metrics = reg
	clientB.Metrics = reg

	pipelines := &pipeline.Pipelines{
		Gate:      analysisGate,
		Store:     dataStore,
		HashCache: hashCache,
		Settings:  settingsStore,
		ClientA:   clientA,
		ClientB:   clientB,
		Metrics:   reg,
	}

	sched := scheduler.New(pipelines, hashCache, settingsStore)
	httpServer := httpapi.NewServer(cfg.HTTP, pipelines, sched, settingsStore, reg)

	return &Engine{
		Settings:    settingsStore,
		Store:       dataStore,
		HashCache:   hashCache,
		Gate:        analysisGate,
		Credentials: credStore,
		RateLimit:   rateGate,
		Metrics:     reg,
		Pipelines:   pipelines,
		Scheduler:   sched,
		HTTPServer:  httpServer,
	}, nil
}

// LoadCredentials loads both platforms' credential bags and performs an
// initial validation, logging (not failing) on a bad or transiently
// unreachable platform so the process can still serve /status.
func (e *Engine) LoadCredentials() {
	for _, platform := range []model.Platform{model.PlatformA, model.PlatformB} {
		if err := e.Credentials.Load(platform); err != nil {
			log.Warn().Err(err).Str("platform", string(platform)).Msg("failed to load credentials")
			continue
		}
		result := e.Credentials.Validate(platform, true)
		log.Info().Str("platform", string(platform)).Str("status", string(result.Status)).Msg("credential validation")
	}
}

// Start launches the scheduler and HTTP server. It blocks until the HTTP
// server exits (normally via Shutdown from a signal handler in main).
func (e *Engine) Start(ctx context.Context) error {
	e.Scheduler.Start(ctx)
	return e.HTTPServer.Start()
}

// Stop tears down the scheduler and drains the HTTP server within ctx's
// deadline.
func (e *Engine) Stop(ctx context.Context) error {
	e.Scheduler.Stop()
	return e.HTTPServer.Shutdown(ctx)
}
