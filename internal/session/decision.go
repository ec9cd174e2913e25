package session

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alnlabs/gmstation/internal/models"
)

// Screens the startup decision can resolve to
const (
	ScreenFirstRun  = "first-run"
	ScreenTeamEntry = "team-entry"
	ScreenLoading   = "loading"
)

// Action is the side effect a startup decision calls for
type Action string

const (
	ActionNone                Action = ""
	ActionInitStandalone      Action = "init-standalone"
	ActionSilentReconnect     Action = "silent-reconnect"
	ActionClearAndReauthorize Action = "clear-and-reauthorize"
)

// Decision pairs the screen to show with the action to execute
type Decision struct {
	Screen string
	Action Action
}

// credentialExpiryBuffer keeps reconnects from racing a credential that is
// about to expire
const credentialExpiryBuffer = 60 * time.Second

// Decide picks exactly one startup trajectory from persisted mode and
// credential validity. Pure: no side effects, fully separated from
// execution.
func Decide(mode, credential string, now time.Time) Decision {
	switch mode {
	case models.SessionModeUnset:
		return Decision{Screen: ScreenFirstRun, Action: ActionNone}

	case models.SessionModeStandalone:
		return Decision{Screen: ScreenTeamEntry, Action: ActionInitStandalone}

	case models.SessionModeNetworked:
		if CredentialValid(credential, now) {
			return Decision{Screen: ScreenLoading, Action: ActionSilentReconnect}
		}
		return Decision{Screen: ScreenFirstRun, Action: ActionClearAndReauthorize}

	default:
		// Unexpected persisted values behave like a first run
		return Decision{Screen: ScreenFirstRun, Action: ActionNone}
	}
}

// CredentialValid reports whether credential is a structured token with an
// expiry safely in the future: three dot-separated segments, decodable
// claims, and exp more than the safety buffer beyond now. The signature is
// the orchestrator's concern, not the station's.
func CredentialValid(credential string, now time.Time) bool {
	if strings.Count(credential, ".") != 2 {
		return false
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Add(-credentialExpiryBuffer).After(now)
}

// ParseGameModeOverride maps the startup override values to a scoring mode.
// Both accepted spellings select black market scoring.
func ParseGameModeOverride(v string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "blackmarket", "black-market":
		return models.GameModeBlackMarket, true
	}
	return "", false
}
