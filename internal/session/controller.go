// Package session owns the station's session mode: the startup decision
// procedure reconciling persisted state with live credentials, and the lock
// preventing accidental mode switching mid-session.
package session

import (
	"context"
	"sync"

	stderrors "errors"

	"github.com/jonboulle/clockwork"

	"github.com/alnlabs/gmstation/internal/errors"
	"github.com/alnlabs/gmstation/internal/logger"
	"github.com/alnlabs/gmstation/internal/models"
	"github.com/alnlabs/gmstation/internal/store"
)

// Channel defines the connection operations the controller drives
type Channel interface {
	Connect(ctx context.Context, credential string, identity models.Identity) error
	Disconnect(ctx context.Context) error
	Destroy()
}

// ModeStore defines the persistence methods the controller needs
type ModeStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Navigator shows a screen; rendering itself is an external concern
type Navigator interface {
	Show(screen string)
}

// Reauthorizer prompts the operator to authorize the station again
type Reauthorizer interface {
	PromptReauthorization(ctx context.Context)
}

// Controller runs the startup decision procedure and owns the mode lock
type Controller struct {
	log      logger.Logger
	store    ModeStore
	channel  Channel
	nav      Navigator
	reauth   Reauthorizer
	clock    clockwork.Clock
	identity models.Identity

	mu     sync.Mutex
	mode   string
	locked bool
}

// NewController creates a session mode controller with injected
// collaborators
func NewController(log logger.Logger, st ModeStore, ch Channel, nav Navigator, reauth Reauthorizer, clock clockwork.Clock, identity models.Identity) *Controller {
	return &Controller{
		log:      log,
		store:    st,
		channel:  ch,
		nav:      nav,
		reauth:   reauth,
		clock:    clock,
		identity: identity,
	}
}

// Startup reads persisted mode and credential, decides the initial
// trajectory, and executes it. Returns the decision for observability.
func (c *Controller) Startup(ctx context.Context) (Decision, error) {
	mode := c.persistedValue(ctx, store.KeySessionMode)
	credential := c.persistedValue(ctx, store.KeyAuthToken)

	decision := Decide(mode, credential, c.clock.Now())
	c.log.Info("Startup decision", "mode", mode, "screen", decision.Screen, "action", string(decision.Action))

	return decision, c.Execute(ctx, decision, credential)
}

func (c *Controller) persistedValue(ctx context.Context, key string) string {
	value, err := c.store.Get(ctx, key)
	if err != nil {
		if !stderrors.Is(err, store.ErrNotFound) {
			c.log.Warn("Failed to read persisted value, treating as unset", "key", key, "error", err)
		}
		return ""
	}
	return value
}

// Execute performs the side effects of a startup decision. Only the silent
// reconnect action suspends.
func (c *Controller) Execute(ctx context.Context, decision Decision, credential string) error {
	switch decision.Action {
	case ActionClearAndReauthorize:
		if err := c.ClearMode(ctx); err != nil {
			return err
		}
		c.nav.Show(decision.Screen)
		c.reauth.PromptReauthorization(ctx)
		return nil

	case ActionInitStandalone:
		if err := c.InitStandalone(ctx); err != nil {
			return err
		}
		c.nav.Show(ScreenTeamEntry)
		return nil

	case ActionSilentReconnect:
		c.nav.Show(ScreenLoading)
		if err := c.InitNetworked(ctx, credential); err != nil {
			c.log.Warn("Silent reconnect failed", "error", err)
			if clearErr := c.ClearMode(ctx); clearErr != nil {
				return clearErr
			}
			c.nav.Show(ScreenFirstRun)
			c.reauth.PromptReauthorization(ctx)
			return nil
		}
		c.nav.Show(ScreenTeamEntry)
		return nil

	default:
		c.nav.Show(decision.Screen)
		return nil
	}
}

// Mode returns the current mode and whether it is locked
func (c *Controller) Mode() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode, c.locked
}

// SetMode persists and locks the session mode. Once locked, switching is
// rejected until an explicit ClearMode.
func (c *Controller) SetMode(ctx context.Context, mode string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.locked && c.mode != mode {
		return errors.Conflictf("session mode is locked to %q", c.mode)
	}

	if err := c.store.Set(ctx, store.KeySessionMode, mode); err != nil {
		return errors.Wrap(err, errors.ErrPersistence, "failed to persist session mode")
	}

	c.mode = mode
	c.locked = true
	c.log.Info("Session mode set", "mode", mode)
	return nil
}

// ClearMode removes the persisted mode and releases the lock
func (c *Controller) ClearMode(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Delete(ctx, store.KeySessionMode); err != nil {
		return errors.Wrap(err, errors.ErrPersistence, "failed to clear session mode")
	}

	c.mode = models.SessionModeUnset
	c.locked = false
	return nil
}

// InitStandalone locks the station into standalone mode; scoring authority
// stays local
func (c *Controller) InitStandalone(ctx context.Context) error {
	return c.SetMode(ctx, models.SessionModeStandalone)
}

// InitNetworked connects the channel and locks the station into networked
// mode; scoring authority is delegated to the orchestrator. Suspends until
// the channel resolves or fails.
func (c *Controller) InitNetworked(ctx context.Context, credential string) error {
	if err := c.channel.Connect(ctx, credential, c.identity); err != nil {
		return err
	}
	return c.SetMode(ctx, models.SessionModeNetworked)
}

// Shutdown force-closes the channel on application exit
func (c *Controller) Shutdown() {
	c.channel.Destroy()
}
