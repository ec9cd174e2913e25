// Package catalog loads token metadata, builds the group inventory, and
// resolves scanned identifiers with fuzzy matching.
package catalog

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/alnlabs/gmstation/internal/logger"
	"github.com/alnlabs/gmstation/internal/models"
)

// groupLabelPattern matches the trailing multiplier suffix, e.g.
// "Government Files (x3)". Labels without the suffix carry no bonus.
var groupLabelPattern = regexp.MustCompile(`^(.*?)\s*\(x(\d+)\)\s*$`)

// GroupEntry is one normalized group in the inventory
type GroupEntry struct {
	NormalizedKey string          `json:"key"`
	DisplayName   string          `json:"display_name"`
	Multiplier    int             `json:"multiplier"`
	TokenIDs      map[string]bool `json:"token_ids"`
	MemoryTypes   map[string]bool `json:"memory_types"`
}

// LoadResult reports where token data came from. Degraded is true when every
// configured source failed and the embedded demo dataset was substituted;
// callers must treat that as a visible condition, not business as usual.
type LoadResult struct {
	Source   string
	Count    int
	Degraded bool
}

// Catalog holds the loaded token set and a lazily built group inventory
type Catalog struct {
	log     logger.Logger
	sources []Source

	mu        sync.RWMutex
	tokens    map[string]models.Token
	inventory map[string]GroupEntry
	stale     bool
}

// New creates a Catalog that loads from the given sources in order
func New(log logger.Logger, sources ...Source) *Catalog {
	return &Catalog{
		log:     log,
		sources: sources,
		tokens:  map[string]models.Token{},
	}
}

// Load fetches token metadata from the configured sources, first success
// wins. When every source fails the embedded demo dataset is substituted and
// the result is flagged degraded. The catalog is never left empty.
func (c *Catalog) Load(ctx context.Context) LoadResult {
	for _, src := range c.sources {
		tokens, err := src.Fetch(ctx)
		if err != nil {
			c.log.Warn("Token source failed", "source", src.Name(), "error", err)
			continue
		}
		if len(tokens) == 0 {
			c.log.Warn("Token source returned no tokens", "source", src.Name())
			continue
		}

		c.install(tokens)
		c.log.Info("Token catalog loaded", "source", src.Name(), "tokens", len(tokens))
		return LoadResult{Source: src.Name(), Count: len(tokens)}
	}

	demo := demoTokens()
	c.install(demo)
	c.log.Warn("All token sources failed, using embedded demo dataset", "tokens", len(demo))
	return LoadResult{Source: "demo", Count: len(demo), Degraded: true}
}

func (c *Catalog) install(tokens map[string]models.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = tokens
	c.inventory = nil
	c.stale = true
}

// Len returns the number of loaded tokens
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tokens)
}

// Resolve looks up a scanned identifier against the catalog. Match priority:
// exact key, case-insensitive variants, separator-stripped variant, and a
// variant with a colon re-inserted every two characters (recovers hex-string
// forms). A miss returns (zero, false), never an error.
func (c *Catalog) Resolve(id string) (models.Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, candidate := range matchCandidates(id) {
		if token, ok := c.tokens[candidate]; ok {
			return token, true
		}
	}
	return models.Token{}, false
}

// matchCandidates returns lookup keys for id in match priority order
func matchCandidates(id string) []string {
	candidates := []string{id, strings.ToLower(id), strings.ToUpper(id)}

	stripped := strings.NewReplacer(":", "", "-", "").Replace(id)
	if stripped != id {
		candidates = append(candidates, stripped, strings.ToLower(stripped), strings.ToUpper(stripped))
	}

	if colonized := insertColons(stripped); colonized != id {
		candidates = append(candidates, colonized, strings.ToLower(colonized), strings.ToUpper(colonized))
	}

	return candidates
}

// insertColons re-inserts a colon every two characters, e.g.
// "deadbeef" -> "de:ad:be:ef"
func insertColons(s string) string {
	if len(s) < 4 {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		end := i + 2
		if end > len(s) {
			end = len(s)
		}
		b.WriteString(s[i:end])
	}
	return b.String()
}

// GroupInventory returns the cached group inventory, building it if the
// catalog changed since the last build
func (c *Catalog) GroupInventory() map[string]GroupEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inventory == nil || c.stale {
		c.inventory = c.buildInventory()
		c.stale = false
	}
	return c.inventory
}

// buildInventory merges raw group labels into normalized entries. On
// multiplier conflict the maximum observed value wins and the conflict is
// logged. Caller must hold c.mu.
func (c *Catalog) buildInventory() map[string]GroupEntry {
	inventory := map[string]GroupEntry{}

	// Deterministic build order so display-name and conflict resolution do
	// not depend on map iteration
	ids := make([]string, 0, len(c.tokens))
	for id := range c.tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		token := c.tokens[id]
		if strings.TrimSpace(token.GroupLabel) == "" {
			continue
		}

		name, multiplier, ok := ParseGroupLabel(token.GroupLabel)
		if !ok {
			name = strings.TrimSpace(token.GroupLabel)
			multiplier = 1
		}

		key := NormalizeGroupKey(name)
		entry, exists := inventory[key]
		if !exists {
			entry = GroupEntry{
				NormalizedKey: key,
				DisplayName:   name,
				Multiplier:    multiplier,
				TokenIDs:      map[string]bool{},
				MemoryTypes:   map[string]bool{},
			}
		} else {
			if betterDisplayName(name, entry.DisplayName) {
				entry.DisplayName = name
			}
			if multiplier != entry.Multiplier {
				c.log.Warn("Inconsistent group multiplier, keeping the maximum",
					"group", key, "seen", multiplier, "kept", max(multiplier, entry.Multiplier))
				if multiplier > entry.Multiplier {
					entry.Multiplier = multiplier
				}
			}
		}

		entry.TokenIDs[token.ID] = true
		if token.MemoryType != "" {
			entry.MemoryTypes[token.MemoryType] = true
		}
		inventory[key] = entry
	}

	for key, entry := range inventory {
		if len(entry.TokenIDs) == 1 && entry.Multiplier > 1 {
			c.log.Warn("Group has a single token but a multiplier above 1",
				"group", key, "multiplier", entry.Multiplier)
		}
	}

	return inventory
}

// betterDisplayName prefers the longest raw name, ties broken by the
// lexicographically greatest
func betterDisplayName(candidate, current string) bool {
	if len(candidate) != len(current) {
		return len(candidate) > len(current)
	}
	return candidate > current
}

// ParseGroupLabel extracts the group name and multiplier from a raw label of
// the form "<name> (xN)". Labels without the exact trailing pattern, or with
// a non-positive multiplier, return ok=false.
func ParseGroupLabel(label string) (name string, multiplier int, ok bool) {
	m := groupLabelPattern.FindStringSubmatch(label)
	if m == nil {
		return "", 0, false
	}
	name = strings.TrimSpace(m[1])
	multiplier, err := strconv.Atoi(m[2])
	if err != nil || multiplier < 1 || name == "" {
		return "", 0, false
	}
	return name, multiplier, true
}

// NormalizeGroupKey produces the case/whitespace-insensitive canonical form
// of a group name
func NormalizeGroupKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
