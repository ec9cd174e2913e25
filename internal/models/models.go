package models

import "time"

// Game modes. Only black market scans score points; detective scans are
// logged for narrative purposes and award nothing.
const (
	GameModeBlackMarket = "blackmarket"
	GameModeDetective   = "detective"
)

// Session modes persisted across reloads.
const (
	SessionModeUnset      = ""
	SessionModeStandalone = "standalone"
	SessionModeNetworked  = "networked"
)

// Token represents a scannable game token. The JSON field names follow the
// shared token document schema. Immutable once loaded.
type Token struct {
	ID          string `json:"SF_RFID"`
	ValueRating int    `json:"SF_ValueRating"`
	MemoryType  string `json:"SF_MemoryType"`
	GroupLabel  string `json:"SF_Group"`
}

// Transaction is a single scan record. Append-only; never mutated after
// creation.
type Transaction struct {
	TokenID    string    `json:"token_id"`
	TeamID     string    `json:"team_id"`
	Mode       string    `json:"mode"`
	Points     int       `json:"points"`
	GroupLabel string    `json:"group,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Team holds a team's score state. Score == BaseScore + BonusPoints is an
// invariant maintained on every mutation.
type Team struct {
	ID              string          `json:"id"`
	BaseScore       int             `json:"base_score"`
	BonusPoints     int             `json:"bonus_points"`
	Score           int             `json:"score"`
	TokensScanned   int             `json:"tokens_scanned"`
	CompletedGroups map[string]bool `json:"completed_groups,omitempty"`
	LastScan        time.Time       `json:"last_scan,omitempty"`
}

// RecomputeScore re-establishes the score invariant after a mutation
func (t *Team) RecomputeScore() {
	t.Score = t.BaseScore + t.BonusPoints
}

// SessionRecord is the full persisted state of one game day. TeamOrder
// preserves team creation order so score ties sort deterministically.
type SessionRecord struct {
	ID           string           `json:"id"`
	StartTime    time.Time        `json:"start_time"`
	Transactions []Transaction    `json:"transactions"`
	Teams        map[string]*Team `json:"teams"`
	TeamOrder    []string         `json:"team_order"`
	Mode         string           `json:"mode"`
}

// Identity describes this station to the orchestrator when opening the
// duplex channel.
type Identity struct {
	DeviceID   string `json:"device_id"`
	DeviceType string `json:"device_type"`
	Version    string `json:"version"`
}
