// Package ai evaluates IELTS writing tasks through an external
// text-generation provider, tolerating rate limits and model outages via
// credential rotation and a model fallback ladder.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ieltsdesk/ieltsdesk/internal/model"
)

// Config holds the evaluator's provider settings.
type Config struct {
	// Endpoint is the provider API base URL, up to and excluding "/models".
	Endpoint string
	// Models is the fallback ladder, most preferred first.
	Models []string
	// Keys is the credential pool rotated across calls.
	Keys []string
	// RateLimitBackoff is the fixed wait after a 429 before retrying with
	// the next credential. Default 3s.
	RateLimitBackoff time.Duration
	// TaskDelay separates sequential per-task calls inside one section
	// evaluation. Default 2s.
	TaskDelay time.Duration
	// Timeout bounds a single provider call. Default 90s.
	Timeout time.Duration

	Temperature     float64
	TopP            float64
	MaxOutputTokens int
}

// Task is one writing task handed to the evaluator.
type Task struct {
	ID          string
	Description string
	Response    string
}

// Evaluator scores writing tasks by calling the provider with retry and
// fallback, then parsing the semi-structured reply.
type Evaluator struct {
	client    *client
	pool      *KeyPool
	models    []string
	backoff   time.Duration
	taskDelay time.Duration
}

// New creates an Evaluator from the given config.
func New(cfg Config) (*Evaluator, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("ai: endpoint is required")
	}
	if len(cfg.Models) == 0 {
		return nil, errors.New("ai: at least one model is required")
	}
	if len(cfg.Keys) == 0 {
		return nil, errors.New("ai: at least one credential is required")
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = 3 * time.Second
	}
	if cfg.TaskDelay <= 0 {
		cfg.TaskDelay = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}
	if cfg.TopP <= 0 {
		cfg.TopP = 0.9
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 2048
	}

	return &Evaluator{
		client: &client{
			http:            &http.Client{Timeout: cfg.Timeout},
			endpoint:        strings.TrimRight(cfg.Endpoint, "/"),
			temperature:     cfg.Temperature,
			topP:            cfg.TopP,
			maxOutputTokens: cfg.MaxOutputTokens,
		},
		pool:      NewKeyPool(cfg.Keys),
		models:    cfg.Models,
		backoff:   cfg.RateLimitBackoff,
		taskDelay: cfg.TaskDelay,
	}, nil
}

// EvaluateTask scores one writing task. Near-empty responses short-circuit to
// a zero-band evaluation without touching the provider.
func (e *Evaluator) EvaluateTask(ctx context.Context, description, response string) (model.WritingEvaluation, error) {
	if len(strings.TrimSpace(response)) < 2 {
		return zeroEvaluation("No attempt was made: the response is empty."), nil
	}

	prompt := buildEvalPrompt(description, response)
	raw, err := e.generateWithFallback(ctx, prompt)
	if err != nil {
		return model.WritingEvaluation{}, err
	}
	return parseEvaluation(raw)
}

// generateWithFallback drives the retry policy: for each model in the ladder,
// each credential gets at most one call. A 429 waits out the backoff and
// rotates to the next credential against the same model, unless no credential
// remains to try; any other failure abandons the model and moves down the
// ladder. The first success wins.
func (e *Evaluator) generateWithFallback(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for _, name := range e.models {
		for attempt := 0; attempt < e.pool.Size(); attempt++ {
			key := e.pool.Next()
			text, err := e.client.generate(ctx, name, key, prompt)
			if err == nil {
				return text, nil
			}
			lastErr = err
			if !errors.Is(err, errRateLimited) {
				slog.Warn("model failed, advancing ladder", "model", name, "error", err)
				break
			}
			if attempt+1 >= e.pool.Size() {
				break
			}
			slog.Debug("rate limited, rotating credential", "model", name, "attempt", attempt)
			if err := sleep(ctx, e.backoff); err != nil {
				return "", fmt.Errorf("%w: %v", model.ErrProviderExhausted, err)
			}
		}
	}
	return "", fmt.Errorf("%w: %v", model.ErrProviderExhausted, lastErr)
}

// EvaluateSection evaluates tasks strictly in sequence with an inter-task
// delay (backpressure against provider rate limits; never parallelize), and
// aggregates per-task bands with the standard 2:1 Task 2 weighting.
func (e *Evaluator) EvaluateSection(ctx context.Context, tasks []Task) (model.SectionEvaluation, error) {
	var (
		weightedSum float64
		weightTotal float64
		lastErr     error
	)
	evals := make(map[string]model.WritingEvaluation, len(tasks))

	for i, task := range tasks {
		if i > 0 {
			if err := sleep(ctx, e.taskDelay); err != nil {
				lastErr = err
				break
			}
		}
		ev, err := e.EvaluateTask(ctx, task.Description, task.Response)
		if err != nil {
			slog.Error("task evaluation failed", "task", task.ID, "error", err)
			lastErr = err
			continue
		}
		weight := 1.0
		if isTaskTwo(task.ID) {
			weight = 2.0
		}
		weightedSum += ev.BandScore * weight
		weightTotal += weight
		evals[task.ID] = ev
	}

	if len(evals) == 0 {
		if lastErr == nil {
			lastErr = errors.New("no tasks to evaluate")
		}
		return model.SectionEvaluation{}, lastErr
	}

	final := math.Round(weightedSum/weightTotal*2) / 2
	if final < 0 {
		final = 0
	}
	return model.SectionEvaluation{BandScore: final, Tasks: evals}, nil
}

// isTaskTwo identifies the double-weighted second writing task by its id,
// tolerating separator and case variations ("task2", "Task 2", "task_2").
func isTaskTwo(id string) bool {
	normalized := strings.ToLower(id)
	for _, sep := range []string{" ", "_", "-"} {
		normalized = strings.ReplaceAll(normalized, sep, "")
	}
	return strings.Contains(normalized, "task2")
}

func zeroEvaluation(feedback string) model.WritingEvaluation {
	zero := model.CriterionScore{Score: 0, Feedback: feedback}
	return model.WritingEvaluation{
		BandScore:         0,
		TaskAchievement:   zero,
		CoherenceCohesion: zero,
		LexicalResource:   zero,
		GrammaticalRange:  zero,
		OverallFeedback:   feedback,
		Improvements:      []string{"Write a response to the task."},
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
