package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// MinEmbeddingChars is the shortest input the gateway keeps halving towards.
	MinEmbeddingChars = 100

	DefaultMaxChars    = 10000
	DefaultMaxRetries  = 3
	DefaultWorkers     = 5
	DefaultBackoffUnit = time.Second
	DefaultPauseEvery  = 10
	DefaultPause       = time.Second
)

// GatewayConfig configures the embedding gateway.
type GatewayConfig struct {
	// MaxChars is the character budget sent to the provider.
	MaxChars int

	// MaxRetries bounds attempts for non size-related failures.
	MaxRetries int

	// Workers is the width of the batch worker pool.
	Workers int

	// BackoffUnit is multiplied by 2^retries between attempts.
	BackoffUnit time.Duration

	// PauseEvery and Pause insert a short pause every N batch items.
	PauseEvery int
	Pause      time.Duration

	// Limiter optionally caps provider calls per second.
	Limiter *rate.Limiter

	// Sleep waits between attempts; replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

// BatchReport summarizes a batch run.
type BatchReport struct {
	Total     int
	Fallbacks int // items replaced by a zero vector
}

// Gateway wraps a Provider with truncation, retry with exponential backoff,
// payload halving and bounded batch fan-out.
type Gateway struct {
	provider Provider
	cfg      GatewayConfig
	logger   *slog.Logger
}

// NewGateway creates a gateway over provider.
func NewGateway(provider Provider, cfg GatewayConfig) *Gateway {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = DefaultBackoffUnit
	}
	if cfg.PauseEvery < 0 {
		cfg.PauseEvery = 0
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{provider: provider, cfg: cfg, logger: logger}
}

// Dimension returns the provider's vector size.
func (g *Gateway) Dimension() int {
	return g.provider.Dimension()
}

// ModelName returns the provider's model name.
func (g *Gateway) ModelName() string {
	return g.provider.ModelName()
}

// Dense embeds a single text. Size failures halve the text and retry at once
// without consuming a retry; other failures back off 2^retries units.
func (g *Gateway) Dense(ctx context.Context, text string, task TaskType) ([]float32, error) {
	text = Truncate(text, g.cfg.MaxChars)
	retries := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if g.cfg.Limiter != nil {
			if err := g.cfg.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vec, err := g.provider.Embed(ctx, text, task)
		if err == nil {
			if len(vec) != g.provider.Dimension() {
				return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), g.provider.Dimension())
			}
			return vec, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		if IsPayloadTooLarge(err) {
			text = halve(text)
			if utf8.RuneCountInString(text) < MinEmbeddingChars {
				return nil, fmt.Errorf("%w: %w", ErrTextTooShort, err)
			}
			g.logger.Debug("embedding payload too large, halving input", "chars", utf8.RuneCountInString(text))
			continue
		}

		retries++
		if retries >= g.cfg.MaxRetries {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, retries, err)
		}
		backoff := g.cfg.BackoffUnit * time.Duration(1<<retries)
		g.logger.Warn("embedding failed, retrying", "attempt", retries, "backoff", backoff, "error", err)
		if err := g.cfg.Sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

// Sparse returns the term-frequency map of tokens.
func (g *Gateway) Sparse(tokens []string) map[string]int {
	return TermFrequencies(tokens)
}

// TermFrequencies counts occurrences of each token.
func TermFrequencies(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}

// BatchDense embeds texts on a bounded worker pool. Output order matches
// input order. A failed item becomes a zero vector and is counted in the
// report; BatchDense itself never fails.
func (g *Gateway) BatchDense(ctx context.Context, texts []string, task TaskType) ([][]float32, BatchReport) {
	report := BatchReport{Total: len(texts)}
	results := make([][]float32, len(texts))
	if len(texts) == 0 {
		return results, report
	}

	var failed atomic.Int64
	var eg errgroup.Group
	eg.SetLimit(g.cfg.Workers)

	for i, text := range texts {
		if err := g.pause(ctx, i); err != nil {
			for j := i; j < len(texts); j++ {
				results[j] = make([]float32, g.provider.Dimension())
			}
			failed.Add(int64(len(texts) - i))
			g.logger.Warn("batch embedding cancelled, using zero vectors", "skipped", len(texts)-i, "error", err)
			break
		}
		eg.Go(func() error {
			vec, err := g.Dense(ctx, text, task)
			if err != nil {
				failed.Add(1)
				g.logger.Warn("embedding failed, using zero vector", "index", i, "error", err)
				vec = make([]float32, g.provider.Dimension())
			}
			results[i] = vec
			return nil
		})
	}
	_ = eg.Wait()

	report.Fallbacks = int(failed.Load())
	if report.Fallbacks > 0 {
		g.logger.Warn("batch embedding degraded", "failed", report.Fallbacks, "total", report.Total)
	}
	return results, report
}

// pause waits before dispatching item i when a pause is due and reports
// whether ctx is still live.
func (g *Gateway) pause(ctx context.Context, i int) error {
	if g.cfg.PauseEvery > 0 && g.cfg.Pause > 0 && i > 0 && i%g.cfg.PauseEvery == 0 {
		if err := g.cfg.Sleep(ctx, g.cfg.Pause); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Truncate cuts text to maxChars characters, pulling the cut back to the
// last sentence or paragraph break when one lies beyond 80% of the budget.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	cut := []rune(text)[:maxChars]
	floor := len(cut) * 4 / 5
	for _, sep := range []string{". ", "! ", "? ", "\n\n"} {
		if i := lastIndexRunes(cut, []rune(sep)); i > floor {
			return strings.TrimSpace(string(cut[:i+1]))
		}
	}
	return strings.TrimSpace(string(cut))
}

func lastIndexRunes(s, sep []rune) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		if slices.Equal(s[i:i+len(sep)], sep) {
			return i
		}
	}
	return -1
}

func halve(text string) string {
	runes := []rune(text)
	return string(runes[:len(runes)/2])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
