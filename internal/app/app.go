// Package app wires the station subsystems together. Every dependency is
// constructed here and passed down explicitly; nothing is looked up
// ambiently.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/alnlabs/gmstation/internal/catalog"
	"github.com/alnlabs/gmstation/internal/channel"
	"github.com/alnlabs/gmstation/internal/config"
	"github.com/alnlabs/gmstation/internal/errors"
	"github.com/alnlabs/gmstation/internal/ledger"
	"github.com/alnlabs/gmstation/internal/logger"
	"github.com/alnlabs/gmstation/internal/models"
	"github.com/alnlabs/gmstation/internal/session"
	"github.com/alnlabs/gmstation/internal/store"
)

// App holds all application dependencies
type App struct {
	log        logger.Logger
	cfg        config.Config
	store      *store.Store
	catalog    *catalog.Catalog
	ledger     *ledger.Service
	channel    *channel.Client
	controller *session.Controller
	screens    *ScreenTracker
	identity   models.Identity
	loadResult catalog.LoadResult
	clock      clockwork.Clock
	cancelPump context.CancelFunc
}

// New creates and initializes a new station instance
func New(ctx context.Context, log logger.Logger, cfg config.Config, clock clockwork.Clock) (*App, error) {
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open station storage: %w", err)
	}

	deviceID, err := ensureDeviceID(ctx, st)
	if err != nil {
		return nil, err
	}
	identity := models.Identity{
		DeviceID:   deviceID,
		DeviceType: cfg.DeviceType,
		Version:    cfg.Version,
	}

	gameMode, err := resolveGameMode(ctx, log, st, cfg.GameMode)
	if err != nil {
		return nil, err
	}

	var sources []catalog.Source
	if cfg.TokensURL != "" {
		sources = append(sources, catalog.NewHTTPSource(cfg.TokensURL))
	}
	sources = append(sources,
		catalog.FileSource{Path: cfg.TokensPath},
		catalog.FileSource{Path: cfg.TokensBackupPath},
	)

	cat := catalog.New(log, sources...)
	loadResult := cat.Load(ctx)

	led, err := ledger.NewService(ctx, log, st, cat, clock, gameMode)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scoring ledger: %w", err)
	}

	ch := channel.New(log, clock, channel.DefaultConfig(cfg.OrchestratorURL))
	screens := NewScreenTracker(log)
	reauth := &OperatorPrompt{log: log}
	controller := session.NewController(log, st, ch, screens, reauth, clock, identity)

	pumpCtx, cancel := context.WithCancel(context.Background())
	a := &App{
		log:        log,
		cfg:        cfg,
		store:      st,
		catalog:    cat,
		ledger:     led,
		channel:    ch,
		controller: controller,
		screens:    screens,
		identity:   identity,
		loadResult: loadResult,
		clock:      clock,
		cancelPump: cancel,
	}
	go a.pumpChannel(pumpCtx)

	return a, nil
}

// ensureDeviceID returns the persisted station identity, generating one on
// first run
func ensureDeviceID(ctx context.Context, st *store.Store) (string, error) {
	id, err := st.Get(ctx, store.KeyDeviceID)
	if err == nil {
		return id, nil
	}
	if err != store.ErrNotFound {
		return "", fmt.Errorf("failed to read device identity: %w", err)
	}

	id = uuid.NewString()
	if err := st.Set(ctx, store.KeyDeviceID, id); err != nil {
		return "", fmt.Errorf("failed to persist device identity: %w", err)
	}
	return id, nil
}

// resolveGameMode applies any startup override, persisting it immediately,
// then returns the effective scoring mode
func resolveGameMode(ctx context.Context, log logger.Logger, st *store.Store, override string) (string, error) {
	if override != "" {
		mode, ok := session.ParseGameModeOverride(override)
		if !ok {
			return "", errors.DataIntegrityf("unrecognized game mode override %q", override)
		}
		if err := st.Set(ctx, store.KeyGameMode, mode); err != nil {
			return "", fmt.Errorf("failed to persist game mode: %w", err)
		}
		log.Info("Game mode override applied", "mode", mode)
		return mode, nil
	}

	mode, err := st.Get(ctx, store.KeyGameMode)
	if err == store.ErrNotFound {
		return models.GameModeBlackMarket, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read game mode: %w", err)
	}
	return mode, nil
}

// Startup runs the session-mode decision procedure and executes the chosen
// trajectory
func (a *App) Startup(ctx context.Context) (session.Decision, error) {
	return a.controller.Startup(ctx)
}

// Scan handles a raw scanned identifier for a team. In standalone mode the
// ledger is authoritative; in networked mode the scan is delegated to the
// orchestrator as an envelope.
func (a *App) Scan(ctx context.Context, rawID, teamID string) (models.Transaction, error) {
	mode, _ := a.controller.Mode()
	if mode == models.SessionModeNetworked {
		token, ok := a.catalog.Resolve(rawID)
		if !ok {
			return models.Transaction{}, errors.NotFoundf("unknown token %q", rawID)
		}
		payload := scanPayload{
			TokenID:  token.ID,
			TeamID:   teamID,
			DeviceID: a.identity.DeviceID,
			Mode:     a.ledger.GameMode(),
		}
		if err := a.channel.Send("transaction:submit", payload); err != nil {
			return models.Transaction{}, err
		}
		return models.Transaction{TokenID: token.ID, TeamID: teamID, Mode: payload.Mode}, nil
	}

	return a.ledger.RecordScan(ctx, rawID, teamID)
}

// scanPayload is the outbound envelope body for a delegated scan
type scanPayload struct {
	TokenID  string `json:"token_id"`
	TeamID   string `json:"team_id"`
	DeviceID string `json:"device_id"`
	Mode     string `json:"mode"`
}

// pumpChannel drains inbound messages and lifecycle events from the
// orchestrator channel
func (a *App) pumpChannel(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.channel.Messages():
			a.log.Debug("Orchestrator message", "type", msg.Type, "bytes", len(msg.Payload))
		case ev := <-a.channel.Events():
			switch ev.Kind {
			case channel.EventError:
				a.log.Warn("Channel error", "error", ev.Err)
			case channel.EventDisconnected:
				a.log.Info("Channel disconnected")
			}
		}
	}
}

// Run starts the local status HTTP server
func (a *App) Run(addr string) error {
	a.log.Info("Station status server starting", "addr", addr, "device_id", a.identity.DeviceID)
	return http.ListenAndServe(addr, a.Router())
}

// Close performs graceful shutdown of app resources
func (a *App) Close() {
	if a.cancelPump != nil {
		a.cancelPump()
	}
	a.controller.Shutdown()
	if err := a.store.Close(); err != nil {
		a.log.Warn("Failed to close storage", "error", err)
	}
}

// ScreenTracker is the station's Navigator: rendering is external, so it
// records the current screen and logs transitions
type ScreenTracker struct {
	log logger.Logger

	mu      sync.Mutex
	current string
}

// NewScreenTracker creates a ScreenTracker
func NewScreenTracker(log logger.Logger) *ScreenTracker {
	return &ScreenTracker{log: log}
}

// Show implements session.Navigator
func (s *ScreenTracker) Show(screen string) {
	s.mu.Lock()
	s.current = screen
	s.mu.Unlock()
	s.log.Info("Screen shown", "screen", screen)
}

// Current returns the most recently shown screen
func (s *ScreenTracker) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// OperatorPrompt implements session.Reauthorizer for a headless runtime by
// telling the operator to authorize the station again
type OperatorPrompt struct {
	log logger.Logger

	mu       sync.Mutex
	prompted bool
}

// PromptReauthorization implements session.Reauthorizer
func (p *OperatorPrompt) PromptReauthorization(ctx context.Context) {
	p.mu.Lock()
	p.prompted = true
	p.mu.Unlock()
	p.log.Warn("Station requires re-authorization with the orchestrator")
}

// Prompted reports whether re-authorization has been requested
func (p *OperatorPrompt) Prompted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompted
}

// FileExportOfferer writes a session export next to the database before the
// session is cleared
type FileExportOfferer struct {
	Dir   string
	Clock clockwork.Clock
	Log   logger.Logger
}

// OfferExport implements ledger.ExportOfferer
func (f FileExportOfferer) OfferExport(ctx context.Context, export []byte) error {
	name := fmt.Sprintf("session-%s.json", f.Clock.Now().Format("20060102-150405"))
	path := filepath.Join(f.Dir, name)
	if err := os.WriteFile(path, export, 0o644); err != nil {
		return err
	}
	f.Log.Info("Session export written", "path", path)
	return nil
}
