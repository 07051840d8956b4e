package presence

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rickgao/rtu-client/internal/api"
	"github.com/rickgao/rtu-client/internal/model"
	"github.com/rickgao/rtu-client/internal/request"
)

var tick = model.Message{Kind: model.KindSchedulerTick, Topic: "OnlineStatus"}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	want := []Call{
		{Service: "Users", Object: "Status", Verb: request.VerbGet},
		{Service: "Users", Object: "Session", Verb: request.VerbGet},
	}
	if diff := cmp.Diff(want, cfg.Calls); diff != "" {
		t.Errorf("Calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRefresher_FallbacksExecuted(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	facade := request.NewFacade(nil, nil, nil, nil)
	client := api.NewClient(server.URL, api.WithTimeout(5*time.Second))

	r := New(DefaultConfig(), facade, client, nil)
	r.OnTick(context.Background(), tick)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	mu.Lock()
	sort.Strings(paths)
	got := paths
	mu.Unlock()
	if diff := cmp.Diff([]string{"GET /Users/Session", "GET /Users/Status"}, got); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}

	stats := r.Stats()
	if stats.Ticks != 1 || stats.Fallbacks != 2 || stats.Errors != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

// liveSender reports every call as sent live.
type liveSender struct {
	calls atomic.Int32
}

func (s *liveSender) Call(service, object string, opts ...request.Option) (request.Outcome, error) {
	s.calls.Add(1)
	return request.Outcome{Live: true}, nil
}

type countingExecutor struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (e *countingExecutor) Execute(ctx context.Context, fb *request.Fallback) (*api.Response, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	return &api.Response{StatusCode: 200}, nil
}

func TestRefresher_LiveCallsSkipExecutor(t *testing.T) {
	sender := &liveSender{}
	exec := &countingExecutor{}

	r := New(DefaultConfig(), sender, exec, nil)
	r.OnTick(context.Background(), tick)
	r.Wait(context.Background())

	if sender.calls.Load() != 2 {
		t.Errorf("sender calls = %d, want 2", sender.calls.Load())
	}
	if exec.calls.Load() != 0 {
		t.Errorf("executor calls = %d, want 0", exec.calls.Load())
	}
	if r.Stats().Live != 2 {
		t.Errorf("Live = %d, want 2", r.Stats().Live)
	}
}

func TestRefresher_ErrorsLoggedNotPropagated(t *testing.T) {
	exec := &countingExecutor{err: errors.New("503")}
	facade := request.NewFacade(nil, nil, nil, nil)

	r := New(DefaultConfig(), facade, exec, nil)
	r.OnTick(context.Background(), tick)
	r.Wait(context.Background())

	if r.Stats().Errors != 2 {
		t.Errorf("Errors = %d, want 2", r.Stats().Errors)
	}
}

func TestRefresher_SkipsOverlappingTick(t *testing.T) {
	exec := &countingExecutor{delay: 100 * time.Millisecond}
	facade := request.NewFacade(nil, nil, nil, nil)

	r := New(DefaultConfig(), facade, exec, nil)
	r.OnTick(context.Background(), tick)
	r.OnTick(context.Background(), tick)
	r.Wait(context.Background())

	stats := r.Stats()
	if stats.Ticks != 2 || stats.Skipped != 1 {
		t.Errorf("stats = %+v, want 2 ticks and 1 skipped", stats)
	}
	if exec.calls.Load() != 2 {
		t.Errorf("executor calls = %d, want 2", exec.calls.Load())
	}

	// Next tick after completion runs again.
	r.OnTick(context.Background(), tick)
	r.Wait(context.Background())
	if exec.calls.Load() != 4 {
		t.Errorf("executor calls = %d, want 4", exec.calls.Load())
	}
}

func TestRefresher_OnTickDoesNotBlock(t *testing.T) {
	exec := &countingExecutor{delay: 200 * time.Millisecond}
	facade := request.NewFacade(nil, nil, nil, nil)
	r := New(DefaultConfig(), facade, exec, nil)

	start := time.Now()
	r.OnTick(context.Background(), tick)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("OnTick blocked for %v", elapsed)
	}
	r.Wait(context.Background())
}

func TestRefresher_InvalidCallCounted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Calls = []Call{{Service: "", Object: "Status"}}
	exec := &countingExecutor{}

	r := New(cfg, request.NewFacade(nil, nil, nil, nil), exec, nil)
	r.OnTick(context.Background(), tick)
	r.Wait(context.Background())

	if r.Stats().Errors != 1 || exec.calls.Load() != 0 {
		t.Errorf("stats = %+v, executor calls = %d", r.Stats(), exec.calls.Load())
	}
}
