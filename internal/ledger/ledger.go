// Package ledger owns the authoritative, persisted score state for
// standalone operation: the transaction log, per-team scores, and
// token-group bonus computation.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/alnlabs/gmstation/internal/catalog"
	"github.com/alnlabs/gmstation/internal/errors"
	"github.com/alnlabs/gmstation/internal/logger"
	"github.com/alnlabs/gmstation/internal/models"
)

// SessionStore defines the persistence methods needed by the ledger
type SessionStore interface {
	SaveSessionRecord(ctx context.Context, record *models.SessionRecord) error
	LoadSessionRecord(ctx context.Context) (*models.SessionRecord, error)
	DeleteSessionRecord(ctx context.Context) error
}

// TokenCatalog defines the catalog methods needed by the ledger
type TokenCatalog interface {
	Resolve(id string) (models.Token, bool)
	GroupInventory() map[string]catalog.GroupEntry
}

// ExportOfferer gives the operator a chance to keep a copy of the session
// before it is cleared
type ExportOfferer interface {
	OfferExport(ctx context.Context, export []byte) error
}

// Service is the scoring ledger for a single game day
type Service struct {
	log     logger.Logger
	store   SessionStore
	catalog TokenCatalog
	clock   clockwork.Clock

	mu      sync.Mutex
	session *models.SessionRecord
}

// NewService creates the ledger, resuming a persisted session when its start
// date matches today. Stale, missing, or malformed records start a fresh
// session instead; persistence problems never block initialization.
func NewService(ctx context.Context, log logger.Logger, store SessionStore, cat TokenCatalog, clock clockwork.Clock, gameMode string) (*Service, error) {
	s := &Service{
		log:     log,
		store:   store,
		catalog: cat,
		clock:   clock,
	}

	s.session = s.loadOrCreate(ctx, gameMode)
	if err := s.store.SaveSessionRecord(ctx, s.session); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) loadOrCreate(ctx context.Context, gameMode string) *models.SessionRecord {
	record, err := s.store.LoadSessionRecord(ctx)
	switch {
	case err == nil:
		if sameDay(record.StartTime, s.clock.Now()) {
			if record.Teams == nil {
				record.Teams = map[string]*models.Team{}
			}
			s.log.Info("Resuming session", "session_id", record.ID,
				"transactions", len(record.Transactions), "teams", len(record.Teams))
			return record
		}
		s.log.Info("Discarding stale session from a prior day", "session_id", record.ID,
			"started", record.StartTime)
	case errors.IsKind(err, errors.ErrPersistence):
		s.log.Warn("Persisted session is unreadable, starting fresh", "error", err)
	}

	return s.newSession(gameMode)
}

func (s *Service) newSession(gameMode string) *models.SessionRecord {
	now := s.clock.Now()
	return &models.SessionRecord{
		ID:        fmt.Sprintf("%s-%s", now.Format("20060102-150405"), uuid.NewString()[:8]),
		StartTime: now,
		Teams:     map[string]*models.Team{},
		Mode:      gameMode,
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// SessionID returns the active session identifier
func (s *Service) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.ID
}

// GameMode returns the session's scoring mode tag
func (s *Service) GameMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Mode
}

// RecordScan resolves a raw scanned identifier against the catalog and
// records the resulting transaction. Scoring-mode scans are worth the
// token's value rating; other modes award nothing.
func (s *Service) RecordScan(ctx context.Context, rawID, teamID string) (models.Transaction, error) {
	token, ok := s.catalog.Resolve(rawID)
	if !ok {
		return models.Transaction{}, errors.NotFoundf("unknown token %q", rawID)
	}

	mode := s.GameMode()
	if mode == "" {
		mode = models.GameModeBlackMarket
	}

	points := 0
	if mode == models.GameModeBlackMarket {
		points = token.ValueRating
	}

	tx := models.Transaction{
		TokenID:    token.ID,
		TeamID:     teamID,
		Mode:       mode,
		Points:     points,
		GroupLabel: token.GroupLabel,
		Timestamp:  s.clock.Now().UTC(),
	}

	if err := s.RecordTransaction(ctx, tx); err != nil {
		return models.Transaction{}, err
	}
	return tx, nil
}

// RecordTransaction appends tx to the session log, applies score mutations
// for scoring-mode transactions, evaluates group completion, and persists
// the session synchronously. Persistence always follows score computation
// for the same call; transactions apply in invocation order.
func (s *Service) RecordTransaction(ctx context.Context, tx models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.Transactions = append(s.session.Transactions, tx)

	if tx.Mode == models.GameModeBlackMarket {
		team := s.ensureTeam(tx.TeamID)
		team.BaseScore += tx.Points
		team.TokensScanned++
		team.LastScan = tx.Timestamp
		team.RecomputeScore()

		if tx.GroupLabel != "" {
			s.checkGroupCompletion(team, tx.GroupLabel)
		}

		s.log.Debug("Transaction recorded", "team", tx.TeamID, "token", tx.TokenID,
			"points", tx.Points, "score", team.Score)
	}

	if err := s.store.SaveSessionRecord(ctx, s.session); err != nil {
		return errors.Wrap(err, errors.ErrPersistence, "failed to persist session after transaction")
	}
	return nil
}

// ensureTeam returns the team, creating it in insertion order on first
// sight. Caller must hold s.mu.
func (s *Service) ensureTeam(teamID string) *models.Team {
	if team, ok := s.session.Teams[teamID]; ok {
		if team.CompletedGroups == nil {
			team.CompletedGroups = map[string]bool{}
		}
		return team
	}

	team := &models.Team{
		ID:              teamID,
		CompletedGroups: map[string]bool{},
	}
	s.session.Teams[teamID] = team
	s.session.TeamOrder = append(s.session.TeamOrder, teamID)
	return team
}

// checkGroupCompletion awards the group bonus once the team has scanned
// every member token of a multiplier group. Idempotent: a completed group is
// never credited again. Caller must hold s.mu.
func (s *Service) checkGroupCompletion(team *models.Team, label string) {
	name, _, ok := catalog.ParseGroupLabel(label)
	if !ok {
		// No multiplier suffix, not a bonus-eligible group
		return
	}

	key := catalog.NormalizeGroupKey(name)
	if team.CompletedGroups[key] {
		return
	}

	if s.catalog == nil {
		s.log.Warn("Token catalog unavailable, deferring group completion check", "group", key)
		return
	}

	entry, ok := s.catalog.GroupInventory()[key]
	if !ok {
		s.log.Warn("Scanned group not present in catalog inventory", "group", key)
		return
	}

	covered := map[string]bool{}
	sum := 0
	for _, tx := range s.session.Transactions {
		if tx.TeamID != team.ID || tx.Mode != models.GameModeBlackMarket {
			continue
		}
		txName, _, txOK := catalog.ParseGroupLabel(tx.GroupLabel)
		if !txOK || catalog.NormalizeGroupKey(txName) != key {
			continue
		}
		if entry.TokenIDs[tx.TokenID] {
			covered[tx.TokenID] = true
		}
		sum += tx.Points
	}

	if len(covered) < len(entry.TokenIDs) {
		return
	}

	bonus := (entry.Multiplier - 1) * sum
	team.BonusPoints += bonus
	team.RecomputeScore()
	team.CompletedGroups[key] = true

	s.log.Info("Group completed", "team", team.ID, "group", key,
		"multiplier", entry.Multiplier, "bonus", bonus, "score", team.Score)
}

// TeamScores returns all teams ordered by total score descending; ties keep
// team creation order
func (s *Service) TeamScores() []models.Team {
	s.mu.Lock()
	defer s.mu.Unlock()

	teams := make([]models.Team, 0, len(s.session.TeamOrder))
	for _, id := range s.session.TeamOrder {
		if team, ok := s.session.Teams[id]; ok {
			teams = append(teams, *team)
		}
	}

	sort.SliceStable(teams, func(i, j int) bool {
		return teams[i].Score > teams[j].Score
	})
	return teams
}

// ExportSession serializes the full session to a portable document. No
// effect on in-memory state.
func (s *Service) ExportSession() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.MarshalIndent(s.session, "", "  ")
}

// ImportSession replaces the active session with a previously exported
// document and persists it
func (s *Service) ImportSession(ctx context.Context, data []byte) error {
	var record models.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return errors.Wrap(err, errors.ErrPersistence, "failed to parse session document")
	}
	if record.ID == "" {
		return errors.DataIntegrity("session document has no identifier")
	}
	if record.Teams == nil {
		record.Teams = map[string]*models.Team{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &record
	if err := s.store.SaveSessionRecord(ctx, s.session); err != nil {
		return errors.Wrap(err, errors.ErrPersistence, "failed to persist imported session")
	}

	s.log.Info("Session imported", "session_id", record.ID,
		"transactions", len(record.Transactions), "teams", len(record.Teams))
	return nil
}

// ClearSession offers the operator an export of the current session, then
// removes persisted data and resets to a fresh empty session
func (s *Service) ClearSession(ctx context.Context, offerer ExportOfferer) error {
	if offerer != nil {
		export, err := s.ExportSession()
		if err != nil {
			return err
		}
		if err := offerer.OfferExport(ctx, export); err != nil {
			s.log.Warn("Session export offer failed, clearing anyway", "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteSessionRecord(ctx); err != nil {
		return errors.Wrap(err, errors.ErrPersistence, "failed to clear persisted session")
	}

	old := s.session.ID
	s.session = s.newSession(s.session.Mode)
	if err := s.store.SaveSessionRecord(ctx, s.session); err != nil {
		return errors.Wrap(err, errors.ErrPersistence, "failed to persist fresh session")
	}

	s.log.Info("Session cleared", "old_session_id", old, "session_id", s.session.ID)
	return nil
}
