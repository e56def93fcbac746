package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ieltsdesk/ieltsdesk/internal/model"
)

// fakeProvider scripts per-model responses and records every call.
type fakeProvider struct {
	mu    sync.Mutex
	calls []providerCall
	// respond maps model name to a handler deciding the reply.
	respond map[string]func(call int) (int, string)
	counts  map[string]int
}

type providerCall struct {
	model string
	key   string
}

func (f *fakeProvider) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Path shape: /models/<model>:generateContent
		path := strings.TrimPrefix(r.URL.Path, "/models/")
		name := strings.TrimSuffix(path, ":generateContent")
		key := r.URL.Query().Get("key")

		f.mu.Lock()
		f.calls = append(f.calls, providerCall{model: name, key: key})
		if f.counts == nil {
			f.counts = make(map[string]int)
		}
		n := f.counts[name]
		f.counts[name]++
		fn := f.respond[name]
		f.mu.Unlock()

		if fn == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		status, text := fn(n)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
			},
		})
	}
}

func (f *fakeProvider) callLog() []providerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]providerCall(nil), f.calls...)
}

func ok(text string) func(int) (int, string) {
	return func(int) (int, string) { return http.StatusOK, text }
}

func always(status int) func(int) (int, string) {
	return func(int) (int, string) { return status, "" }
}

func newTestEvaluator(t *testing.T, url string, models, keys []string) *Evaluator {
	t.Helper()
	e, err := New(Config{
		Endpoint:         url,
		Models:           models,
		Keys:             keys,
		RateLimitBackoff: time.Millisecond,
		TaskDelay:        time.Millisecond,
		Timeout:          5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestEvaluateTaskSuccess(t *testing.T) {
	fp := &fakeProvider{respond: map[string]func(int) (int, string){
		"alpha": ok(goodPayload),
	}}
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	e := newTestEvaluator(t, srv.URL, []string{"alpha"}, []string{"k1"})
	ev, err := e.EvaluateTask(context.Background(), "Describe the chart.", "The chart shows a steady rise in exports.")
	if err != nil {
		t.Fatalf("EvaluateTask: %v", err)
	}
	if ev.BandScore != 6.5 {
		t.Errorf("band = %v, want 6.5", ev.BandScore)
	}
	if len(fp.callLog()) != 1 {
		t.Errorf("expected exactly one provider call, got %d", len(fp.callLog()))
	}
}

func TestEvaluateTaskEmptyResponseShortCircuits(t *testing.T) {
	fp := &fakeProvider{}
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	e := newTestEvaluator(t, srv.URL, []string{"alpha"}, []string{"k1"})
	for _, response := range []string{"", " ", "a"} {
		ev, err := e.EvaluateTask(context.Background(), "Task", response)
		if err != nil {
			t.Fatalf("EvaluateTask(%q): %v", response, err)
		}
		if ev.BandScore != 0 {
			t.Errorf("EvaluateTask(%q) band = %v, want 0", response, ev.BandScore)
		}
	}
	if len(fp.callLog()) != 0 {
		t.Errorf("short-circuit must not call the provider, got %d calls", len(fp.callLog()))
	}
}

func TestFallbackRotatesCredentialsOn429(t *testing.T) {
	fp := &fakeProvider{respond: map[string]func(int) (int, string){
		"alpha": func(call int) (int, string) {
			if call < 2 {
				return http.StatusTooManyRequests, ""
			}
			return http.StatusOK, goodPayload
		},
	}}
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	e := newTestEvaluator(t, srv.URL, []string{"alpha"}, []string{"k1", "k2", "k3"})
	_, err := e.EvaluateTask(context.Background(), "Task", "A full response to the task.")
	if err != nil {
		t.Fatalf("EvaluateTask: %v", err)
	}

	calls := fp.callLog()
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls (two 429s, one success), got %d", len(calls))
	}
	for i, want := range []string{"k1", "k2", "k3"} {
		if calls[i].key != want {
			t.Errorf("call %d used key %q, want %q", i, calls[i].key, want)
		}
		if calls[i].model != "alpha" {
			t.Errorf("call %d hit model %q, want alpha (429 must not advance the ladder)", i, calls[i].model)
		}
	}
}

func TestFallbackAdvancesLadderOnHardError(t *testing.T) {
	fp := &fakeProvider{respond: map[string]func(int) (int, string){
		"alpha": always(http.StatusInternalServerError),
		"beta":  ok(goodPayload),
	}}
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	e := newTestEvaluator(t, srv.URL, []string{"alpha", "beta"}, []string{"k1", "k2"})
	_, err := e.EvaluateTask(context.Background(), "Task", "A full response to the task.")
	if err != nil {
		t.Fatalf("EvaluateTask: %v", err)
	}

	calls := fp.callLog()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls (one hard failure, one success), got %d: %v", len(calls), calls)
	}
	if calls[0].model != "alpha" || calls[1].model != "beta" {
		t.Errorf("hard error must abandon remaining credentials and advance: %v", calls)
	}
}

func TestFallbackExhaustion(t *testing.T) {
	fp := &fakeProvider{respond: map[string]func(int) (int, string){
		"alpha": always(http.StatusTooManyRequests),
		"beta":  always(http.StatusServiceUnavailable),
	}}
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	e := newTestEvaluator(t, srv.URL, []string{"alpha", "beta"}, []string{"k1", "k2"})
	_, err := e.EvaluateTask(context.Background(), "Task", "A full response to the task.")
	if !errors.Is(err, model.ErrProviderExhausted) {
		t.Fatalf("error = %v, want ErrProviderExhausted", err)
	}

	calls := fp.callLog()
	// alpha: once per credential (429 rotation); beta: one hard failure.
	if len(calls) != 3 {
		t.Errorf("expected 3 calls, got %d: %v", len(calls), calls)
	}
}

func TestFallbackSkipsBackoffWhenOutOfRetries(t *testing.T) {
	fp := &fakeProvider{respond: map[string]func(int) (int, string){
		"alpha": always(http.StatusTooManyRequests),
		"beta":  always(http.StatusTooManyRequests),
	}}
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	// A single credential leaves nothing to rotate to, so a 429 must fail
	// the model immediately instead of waiting out the backoff first.
	backoff := 3 * time.Second
	e, err := New(Config{
		Endpoint:         srv.URL,
		Models:           []string{"alpha", "beta"},
		Keys:             []string{"k1"},
		RateLimitBackoff: backoff,
		TaskDelay:        time.Millisecond,
		Timeout:          5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	_, err = e.EvaluateTask(context.Background(), "Task", "A full response to the task.")
	elapsed := time.Since(start)

	if !errors.Is(err, model.ErrProviderExhausted) {
		t.Fatalf("error = %v, want ErrProviderExhausted", err)
	}
	if len(fp.callLog()) != 2 {
		t.Errorf("expected 2 calls (one per model), got %d", len(fp.callLog()))
	}
	if elapsed >= backoff {
		t.Errorf("exhaustion took %v, must return without sleeping the %v backoff", elapsed, backoff)
	}
}

func TestEvaluateSectionWeighting(t *testing.T) {
	payload := func(band float64) string {
		b, _ := json.Marshal(map[string]any{"bandScore": band})
		return string(b)
	}
	fp := &fakeProvider{respond: map[string]func(int) (int, string){
		"alpha": func(call int) (int, string) {
			if call == 0 {
				return http.StatusOK, payload(6.0)
			}
			return http.StatusOK, payload(7.0)
		},
	}}
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	e := newTestEvaluator(t, srv.URL, []string{"alpha"}, []string{"k1"})
	sec, err := e.EvaluateSection(context.Background(), []Task{
		{ID: "task1", Description: "Chart", Response: "Task one response text."},
		{ID: "task2", Description: "Essay", Response: "Task two response text."},
	})
	if err != nil {
		t.Fatalf("EvaluateSection: %v", err)
	}
	// (6*1 + 7*2) / 3 = 6.667 -> 6.5
	if sec.BandScore != 6.5 {
		t.Errorf("section band = %v, want 6.5", sec.BandScore)
	}
	if len(sec.Tasks) != 2 {
		t.Errorf("tasks evaluated = %d, want 2", len(sec.Tasks))
	}
}

func TestEvaluateSectionContinuesPastFailure(t *testing.T) {
	fp := &fakeProvider{respond: map[string]func(int) (int, string){
		"alpha": func(call int) (int, string) {
			if call == 0 {
				return http.StatusInternalServerError, ""
			}
			return http.StatusOK, goodPayload
		},
	}}
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	e := newTestEvaluator(t, srv.URL, []string{"alpha"}, []string{"k1"})
	sec, err := e.EvaluateSection(context.Background(), []Task{
		{ID: "task1", Description: "Chart", Response: "Task one response text."},
		{ID: "task2", Description: "Essay", Response: "Task two response text."},
	})
	if err != nil {
		t.Fatalf("EvaluateSection: %v", err)
	}
	if _, ok := sec.Tasks["task1"]; ok {
		t.Error("failed task must not contribute an evaluation")
	}
	if _, ok := sec.Tasks["task2"]; !ok {
		t.Error("later task must still be attempted after a failure")
	}
	// Only task2 scored: 6.5 * 2 / 2.
	if sec.BandScore != 6.5 {
		t.Errorf("section band = %v, want 6.5", sec.BandScore)
	}
}

func TestEvaluateSectionAllFailed(t *testing.T) {
	fp := &fakeProvider{respond: map[string]func(int) (int, string){
		"alpha": always(http.StatusInternalServerError),
	}}
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	e := newTestEvaluator(t, srv.URL, []string{"alpha"}, []string{"k1"})
	_, err := e.EvaluateSection(context.Background(), []Task{
		{ID: "task1", Description: "Chart", Response: "Task one response text."},
	})
	if !errors.Is(err, model.ErrProviderExhausted) {
		t.Fatalf("error = %v, want ErrProviderExhausted", err)
	}
}

func TestIsTaskTwo(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"task2", true},
		{"Task 2", true},
		{"task_2", true},
		{"TASK-2", true},
		{"task1", false},
		{"essay", false},
		{"task20", true}, // prefix containment is accepted by convention
	}
	for _, tt := range tests {
		if got := isTaskTwo(tt.id); got != tt.want {
			t.Errorf("isTaskTwo(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestKeyPoolRotation(t *testing.T) {
	p := NewKeyPool([]string{"a", "b", "c"})
	got := []string{p.Next(), p.Next(), p.Next(), p.Next()}
	want := []string{"a", "b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotation = %v, want %v", got, want)
		}
	}
}

func TestKeyPoolConcurrent(t *testing.T) {
	p := NewKeyPool([]string{"a", "b", "c"})
	const goroutines, perG = 8, 300

	var wg sync.WaitGroup
	counts := make([]map[string]int, goroutines)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			local := make(map[string]int)
			for i := 0; i < perG; i++ {
				local[p.Next()]++
			}
			counts[g] = local
		}(g)
	}
	wg.Wait()

	total := make(map[string]int)
	for _, local := range counts {
		for k, n := range local {
			total[k] += n
		}
	}
	// 2400 draws over 3 keys: the atomic cursor distributes them exactly.
	for _, k := range []string{"a", "b", "c"} {
		if total[k] != goroutines*perG/3 {
			t.Errorf("key %q drawn %d times, want %d", k, total[k], goroutines*perG/3)
		}
	}
}
