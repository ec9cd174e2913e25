package session

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alnlabs/gmstation/internal/errors"
	"github.com/alnlabs/gmstation/internal/logger"
	"github.com/alnlabs/gmstation/internal/models"
	"github.com/alnlabs/gmstation/internal/store"
	"github.com/alnlabs/gmstation/internal/testutil"
)

type fakeChannel struct {
	connectErr  error
	connects    int
	credential  string
	disconnects int
	destroys    int
}

func (f *fakeChannel) Connect(ctx context.Context, credential string, identity models.Identity) error {
	f.connects++
	f.credential = credential
	return f.connectErr
}

func (f *fakeChannel) Disconnect(ctx context.Context) error {
	f.disconnects++
	return nil
}

func (f *fakeChannel) Destroy() {
	f.destroys++
}

type fakeNavigator struct {
	screens []string
}

func (f *fakeNavigator) Show(screen string) {
	f.screens = append(f.screens, screen)
}

func (f *fakeNavigator) current() string {
	if len(f.screens) == 0 {
		return ""
	}
	return f.screens[len(f.screens)-1]
}

type fakeReauthorizer struct {
	prompts int
}

func (f *fakeReauthorizer) PromptReauthorization(ctx context.Context) {
	f.prompts++
}

type controllerFixture struct {
	controller *Controller
	store      *store.Store
	channel    *fakeChannel
	nav        *fakeNavigator
	reauth     *fakeReauthorizer
	clock      *clockwork.FakeClock
}

func newFixture(t *testing.T) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		store:   testutil.NewTestStore(t),
		channel: &fakeChannel{},
		nav:     &fakeNavigator{},
		reauth:  &fakeReauthorizer{},
		clock:   clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)),
	}
	f.controller = NewController(logger.New(), f.store, f.channel, f.nav, f.reauth, f.clock,
		models.Identity{DeviceID: "dev-1", DeviceType: "gm-station", Version: "1.0"})
	return f
}

func TestStartup_FirstRun(t *testing.T) {
	f := newFixture(t)

	decision, err := f.controller.Startup(context.Background())
	if err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	if decision.Screen != ScreenFirstRun || decision.Action != ActionNone {
		t.Errorf("unexpected decision %+v", decision)
	}
	if f.nav.current() != ScreenFirstRun {
		t.Errorf("expected first-run screen, got %q", f.nav.current())
	}
	if f.channel.connects != 0 {
		t.Error("first run must not touch the channel")
	}
	if f.reauth.prompts != 0 {
		t.Error("first run must not prompt for reauthorization")
	}
}

func TestStartup_ResumesStandalone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.store.Set(ctx, store.KeySessionMode, models.SessionModeStandalone); err != nil {
		t.Fatal(err)
	}

	decision, err := f.controller.Startup(ctx)
	if err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	if decision.Action != ActionInitStandalone {
		t.Errorf("expected standalone init, got %+v", decision)
	}
	if f.nav.current() != ScreenTeamEntry {
		t.Errorf("expected team entry screen, got %q", f.nav.current())
	}

	mode, locked := f.controller.Mode()
	if mode != models.SessionModeStandalone || !locked {
		t.Errorf("expected locked standalone mode, got %q locked=%v", mode, locked)
	}
}

func TestStartup_SilentReconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	credential := signedCredential(t, f.clock.Now().Add(time.Hour))
	if err := f.store.Set(ctx, store.KeySessionMode, models.SessionModeNetworked); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Set(ctx, store.KeyAuthToken, credential); err != nil {
		t.Fatal(err)
	}

	decision, err := f.controller.Startup(ctx)
	if err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	if decision.Action != ActionSilentReconnect {
		t.Errorf("expected silent reconnect, got %+v", decision)
	}
	if f.channel.connects != 1 {
		t.Fatalf("expected 1 connect, got %d", f.channel.connects)
	}
	if f.channel.credential != credential {
		t.Error("reconnect used the wrong credential")
	}

	// Loading is shown while connecting, team entry when the channel opens
	if len(f.nav.screens) < 2 || f.nav.screens[0] != ScreenLoading || f.nav.current() != ScreenTeamEntry {
		t.Errorf("unexpected screen sequence %v", f.nav.screens)
	}

	mode, locked := f.controller.Mode()
	if mode != models.SessionModeNetworked || !locked {
		t.Errorf("expected locked networked mode, got %q locked=%v", mode, locked)
	}
}

func TestStartup_ReconnectFailureRoutesToPrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.channel.connectErr = errors.Transport("orchestrator unreachable")
	credential := signedCredential(t, f.clock.Now().Add(time.Hour))
	if err := f.store.Set(ctx, store.KeySessionMode, models.SessionModeNetworked); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Set(ctx, store.KeyAuthToken, credential); err != nil {
		t.Fatal(err)
	}

	if _, err := f.controller.Startup(ctx); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}

	if f.nav.current() != ScreenFirstRun {
		t.Errorf("expected first-run screen after failed reconnect, got %q", f.nav.current())
	}
	if f.reauth.prompts != 1 {
		t.Errorf("expected 1 reauthorization prompt, got %d", f.reauth.prompts)
	}

	// Persisted mode is cleared so the next startup is a clean first run
	if _, err := f.store.Get(ctx, store.KeySessionMode); err != store.ErrNotFound {
		t.Errorf("expected persisted mode cleared, got %v", err)
	}
	mode, locked := f.controller.Mode()
	if mode != models.SessionModeUnset || locked {
		t.Errorf("expected unlocked unset mode, got %q locked=%v", mode, locked)
	}
}

func TestStartup_ExpiredCredentialClearsAndPrompts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired := signedCredential(t, f.clock.Now().Add(-time.Hour))
	if err := f.store.Set(ctx, store.KeySessionMode, models.SessionModeNetworked); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Set(ctx, store.KeyAuthToken, expired); err != nil {
		t.Fatal(err)
	}

	decision, err := f.controller.Startup(ctx)
	if err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	if decision.Action != ActionClearAndReauthorize {
		t.Errorf("expected clear-and-reauthorize, got %+v", decision)
	}
	if f.channel.connects != 0 {
		t.Error("expired credential must not be used to connect")
	}
	if f.reauth.prompts != 1 {
		t.Errorf("expected 1 reauthorization prompt, got %d", f.reauth.prompts)
	}
	if _, err := f.store.Get(ctx, store.KeySessionMode); err != store.ErrNotFound {
		t.Errorf("expected persisted mode cleared, got %v", err)
	}
}

func TestSetMode_LockRejectsSwitch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.SetMode(ctx, models.SessionModeStandalone); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}

	err := f.controller.SetMode(ctx, models.SessionModeNetworked)
	if err == nil {
		t.Fatal("expected locked mode to reject a switch")
	}
	if !errors.IsKind(err, errors.ErrConflict) {
		t.Errorf("expected conflict error, got %v", err)
	}

	// Setting the same mode again is fine
	if err := f.controller.SetMode(ctx, models.SessionModeStandalone); err != nil {
		t.Errorf("re-setting the locked mode failed: %v", err)
	}

	// Clearing releases the lock
	if err := f.controller.ClearMode(ctx); err != nil {
		t.Fatalf("ClearMode failed: %v", err)
	}
	if err := f.controller.SetMode(ctx, models.SessionModeNetworked); err != nil {
		t.Errorf("SetMode after clear failed: %v", err)
	}
}

func TestSetMode_Persists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.SetMode(ctx, models.SessionModeNetworked); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}

	value, err := f.store.Get(ctx, store.KeySessionMode)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != models.SessionModeNetworked {
		t.Errorf("persisted mode = %q, want networked", value)
	}
}

func TestInitNetworked_ConnectFailureLeavesModeUnset(t *testing.T) {
	f := newFixture(t)
	f.channel.connectErr = errors.Transport("refused")

	err := f.controller.InitNetworked(context.Background(), "cred")
	if err == nil {
		t.Fatal("expected connect failure to propagate")
	}

	mode, locked := f.controller.Mode()
	if mode != models.SessionModeUnset || locked {
		t.Errorf("failed init must not lock a mode, got %q locked=%v", mode, locked)
	}
}

func TestShutdown_DestroysChannel(t *testing.T) {
	f := newFixture(t)
	f.controller.Shutdown()
	if f.channel.destroys != 1 {
		t.Errorf("expected 1 destroy, got %d", f.channel.destroys)
	}
}
