package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/generation"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/models"
)

// MatchThreshold is the keyword score a cached prompt must exceed to be reused
const MatchThreshold = 0.5

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "of": {}, "with": {}, "by": {}, "create": {}, "make": {}, "build": {},
}

// ResponseCache stores generation payloads keyed by prompt so they can be
// replayed without calling a provider.
type ResponseCache struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewResponseCache creates a response cache on pool
func NewResponseCache(pool *pgxpool.Pool, logger *zap.Logger) *ResponseCache {
	return &ResponseCache{pool: pool, logger: logger}
}

// CacheKey hashes the normalized prompt. Case and whitespace do not matter.
func CacheKey(prompt string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
	return fmt.Sprintf("%016x", xxhash.Sum64String(normalized))
}

// Save stores payload under prompt, replacing any previous entry
func (c *ResponseCache) Save(ctx context.Context, prompt string, payload generation.Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	_, err = c.pool.Exec(ctx, `
		INSERT INTO response_cache (prompt_hash, prompt, payload, html_length, css_length, js_length)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (prompt_hash) DO UPDATE SET
			prompt = EXCLUDED.prompt,
			payload = EXCLUDED.payload,
			html_length = EXCLUDED.html_length,
			css_length = EXCLUDED.css_length,
			js_length = EXCLUDED.js_length,
			created_at = NOW()`,
		CacheKey(prompt), prompt, data, len(payload.HTML), len(payload.CSS), len(payload.JS))
	if err != nil {
		return fmt.Errorf("failed to save cached response: %w", err)
	}

	c.logger.Debug("response cached", zap.String("key", CacheKey(prompt)), zap.Int("html_length", len(payload.HTML)))
	return nil
}

// Load returns the payload cached for exactly this prompt
func (c *ResponseCache) Load(ctx context.Context, prompt string) (*generation.Payload, error) {
	var data []byte
	err := c.pool.QueryRow(ctx, `SELECT payload FROM response_cache WHERE prompt_hash = $1`, CacheKey(prompt)).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cached response: %w", err)
	}
	return decodePayload(data)
}

// List returns cache entries, newest first
func (c *ResponseCache) List(ctx context.Context) ([]models.CachedResponse, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT prompt_hash, prompt, payload, html_length, css_length, js_length, created_at
		FROM response_cache ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached responses: %w", err)
	}
	defer rows.Close()

	entries := []models.CachedResponse{}
	for rows.Next() {
		var e models.CachedResponse
		if err := rows.Scan(&e.Key, &e.Prompt, &e.Payload, &e.HTMLLength, &e.CSSLength, &e.JSLength, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cached response: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FindBestMatch returns the exact entry for prompt or, failing that, the
// entry whose prompt shares the most keywords with it.
func (c *ResponseCache) FindBestMatch(ctx context.Context, prompt string) (*generation.Payload, error) {
	payload, err := c.Load(ctx, prompt)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return payload, err
	}

	entries, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	best, ok := BestMatch(prompt, entries)
	if !ok {
		return nil, ErrNotFound
	}
	c.logger.Info("using similar cached response",
		zap.String("prompt", prompt),
		zap.String("cached_prompt", best.Prompt),
	)
	return decodePayload(best.Payload)
}

// Clear removes every cached response
func (c *ResponseCache) Clear(ctx context.Context) (int64, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM response_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear response cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

// BestMatch picks the entry with the highest keyword score above MatchThreshold
func BestMatch(prompt string, entries []models.CachedResponse) (models.CachedResponse, bool) {
	keywords := Keywords(prompt)
	var (
		best      models.CachedResponse
		bestScore float64
		found     bool
	)
	for _, e := range entries {
		score := KeywordScore(keywords, Keywords(e.Prompt))
		if score > MatchThreshold && score > bestScore {
			best, bestScore, found = e, score, true
		}
	}
	return best, found
}

// Keywords lowercases text and keeps words longer than two characters that
// are not stop words.
func Keywords(text string) []string {
	var out []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if len(word) <= 2 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		out = append(out, word)
	}
	return out
}

// KeywordScore is the number of words of a found in b over the longer length
func KeywordScore(a, b []string) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(b))
	for _, w := range b {
		set[w] = struct{}{}
	}
	matches := 0
	for _, w := range a {
		if _, ok := set[w]; ok {
			matches++
		}
	}
	return float64(matches) / float64(longest)
}

func decodePayload(data []byte) (*generation.Payload, error) {
	var payload generation.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode cached payload: %w", err)
	}
	if payload.Suggestions == nil {
		payload.Suggestions = []string{}
	}
	return &payload, nil
}
