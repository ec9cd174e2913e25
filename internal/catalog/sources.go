package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/alnlabs/gmstation/internal/models"
)

// Source is one ordered location token metadata can be fetched from
type Source interface {
	Name() string
	Fetch(ctx context.Context) (map[string]models.Token, error)
}

// FileSource loads the token document from a local file
type FileSource struct {
	Path string
}

func (s FileSource) Name() string {
	return fmt.Sprintf("file:%s", s.Path)
}

func (s FileSource) Fetch(ctx context.Context) (map[string]models.Token, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	return decodeTokens(data)
}

// HTTPSource fetches the token document from a URL
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource creates an HTTPSource with a sensible request timeout
func NewHTTPSource(url string) HTTPSource {
	return HTTPSource{
		URL:    url,
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s HTTPSource) Name() string {
	return s.URL
}

func (s HTTPSource) Fetch(ctx context.Context) (map[string]models.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token document fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token document: %w", err)
	}
	return decodeTokens(data)
}

// decodeTokens parses the token document, a JSON object keyed by token
// identifier, and backfills each token's ID from its key
func decodeTokens(data []byte) (map[string]models.Token, error) {
	var tokens map[string]models.Token
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse token document: %w", err)
	}

	for id, token := range tokens {
		if token.ID == "" {
			token.ID = id
			tokens[id] = token
		}
	}
	return tokens, nil
}
