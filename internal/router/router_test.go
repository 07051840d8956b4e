package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/rickgao/rtu-client/internal/connection"
	"github.com/rickgao/rtu-client/internal/metrics"
	"github.com/rickgao/rtu-client/internal/model"
	"github.com/rickgao/rtu-client/internal/registry"
	"github.com/rickgao/rtu-client/internal/topic"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStopper struct {
	mu    sync.Mutex
	stops int
}

func (f *fakeStopper) Stop(onDone func()) {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	if onDone != nil {
		onDone()
	}
}

func (f *fakeStopper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type published struct {
	topic   string
	payload string
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakeNotifier) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, payload: string(payload)})
	return f.err
}

// recorder collects the scopes each handler fired for.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handler(label string) registry.Handler {
	return func(model.Message) {
		r.mu.Lock()
		r.calls = append(r.calls, label)
		r.mu.Unlock()
	}
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fixture struct {
	router   *router
	registry *registry.Registry
	stopper  *fakeStopper
	notifier *fakeNotifier
	metrics  *metrics.Metrics
	frames   *connection.Queue[connection.Frame]
	rec      *recorder
}

func newFixture(cfg RouterConfig, hooks Hooks) *fixture {
	m := metrics.New(prometheus.NewRegistry())
	reg := registry.New(nil, m)
	stopper := &fakeStopper{}
	notifier := &fakeNotifier{}
	if hooks.Notifier == nil {
		hooks.Notifier = notifier
	}
	frames := connection.NewQueue[connection.Frame](8)

	return &fixture{
		router:   newRouter(cfg, frames, reg, stopper, hooks, nil, m),
		registry: reg,
		stopper:  stopper,
		notifier: notifier,
		metrics:  m,
		frames:   frames,
		rec:      &recorder{},
	}
}

func (f *fixture) deliver(raw string) {
	f.router.route(connection.Frame{Data: []byte(raw), ReceivedAt: time.Now()})
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    model.Kind
		wantErr error
	}{
		{"application", `{"Type":"Books#Book#Update","Data":{"id":1}}`, model.KindApplication, nil},
		{"pong", `{"Type":"Pong"}`, model.KindHeartbeat, nil},
		{"knock", `{"Type":"Knock#X"}`, model.KindHeartbeat, nil},
		{"online status", `{"Type":"OnlineStatus"}`, model.KindSchedulerTick, nil},
		{"error topic", `{"Type":"Error"}`, model.KindError, nil},
		{"error field", `{"Type":"Books#Book","Error":{"Type":"X","Message":"m"}}`, model.KindError, nil},
		{"not json", `not json`, 0, ErrMalformedEnvelope},
		{"missing type", `{"Data":1}`, 0, ErrMissingType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.raw), time.Now())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if msg.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", msg.Kind, tt.want)
			}
		})
	}
}

func TestDecode_KeepsPayload(t *testing.T) {
	msg, err := Decode([]byte(`{"Type":"Books#Book#Update","Data":{"Title":"X"},"ExcludedDeviceID":"d1"}`), time.Now())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := model.TopicKey{Service: "Books", Object: "Book", Event: "Update"}
	if diff := cmp.Diff(want, msg.Key); diff != "" {
		t.Errorf("Key mismatch (-want +got):\n%s", diff)
	}
	if string(msg.Data) != `{"Title":"X"}` {
		t.Errorf("Data = %s", msg.Data)
	}
	if msg.ExcludedDeviceID != "d1" {
		t.Errorf("ExcludedDeviceID = %s", msg.ExcludedDeviceID)
	}
}

func TestRouter_DispatchesServiceThenObject(t *testing.T) {
	f := newFixture(DefaultRouterConfig(), Hooks{})
	f.registry.Register("Books", f.rec.handler("service"), "a")
	f.registry.Register("Books#Book", f.rec.handler("object"), "b")
	f.registry.Register("Books#Author", f.rec.handler("other"), "c")

	f.deliver(`{"Type":"Books#Book#Update","Data":{}}`)

	if diff := cmp.Diff([]string{"service", "object"}, f.rec.got()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}

	stats := f.router.Stats()
	if stats.MessagesRouted != 2 || stats.HandlersInvoked != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRouter_ServiceOnlyTopic(t *testing.T) {
	f := newFixture(DefaultRouterConfig(), Hooks{})
	f.registry.Register("Books", f.rec.handler("service"), "a")
	f.registry.Register("Books#Book", f.rec.handler("object"), "b")

	f.deliver(`{"Type":"Books"}`)

	if diff := cmp.Diff([]string{"service"}, f.rec.got()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if v := testutil.ToFloat64(f.metrics.Dropped.WithLabelValues(metrics.ReasonNoSubscribers)); v != 0 {
		t.Errorf("no-subscriber drops = %v, want 0 for a service-only topic", v)
	}
}

func TestRouter_HeartbeatSilence(t *testing.T) {
	f := newFixture(DefaultRouterConfig(), Hooks{})
	f.registry.Register("Pong", f.rec.handler("pong"), "a")
	f.registry.Register("Knock", f.rec.handler("knock"), "b")

	f.deliver(`{"Type":"Pong"}`)
	f.deliver(`{"Type":"Knock"}`)

	if got := f.rec.got(); len(got) != 0 {
		t.Errorf("heartbeats dispatched: %v", got)
	}
	if f.stopper.count() != 0 {
		t.Error("heartbeat should not stop the connection")
	}
	if hb := f.router.Stats().Heartbeats; hb != 2 {
		t.Errorf("Heartbeats = %d, want 2", hb)
	}
	if v := testutil.ToFloat64(f.metrics.Envelopes.WithLabelValues("heartbeat")); v != 2 {
		t.Errorf("heartbeat envelopes = %v, want 2", v)
	}
}

func TestRouter_SchedulerTick(t *testing.T) {
	var ticks int
	hook := TickHookFunc(func(_ context.Context, msg model.Message) {
		ticks++
		if msg.Kind != model.KindSchedulerTick {
			t.Errorf("hook got kind %s", msg.Kind)
		}
	})

	f := newFixture(DefaultRouterConfig(), Hooks{Tick: hook})
	f.registry.Register("OnlineStatus", f.rec.handler("service"), "a")

	f.deliver(`{"Type":"OnlineStatus"}`)
	if ticks != 1 {
		t.Errorf("ticks = %d, want 1", ticks)
	}
	if got := f.rec.got(); len(got) != 0 {
		t.Errorf("OnlineStatus reached service scope: %v", got)
	}

	f.registry.Register(topic.SchedulerScope, f.rec.handler("scheduler"), "s")
	f.deliver(`{"Type":"OnlineStatus"}`)

	if ticks != 2 {
		t.Errorf("ticks = %d, want 2", ticks)
	}
	if diff := cmp.Diff([]string{"scheduler"}, f.rec.got()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRouter_ExcludedDevice(t *testing.T) {
	cfg := DefaultRouterConfig()
	cfg.DeviceID = "me"
	f := newFixture(cfg, Hooks{})
	f.registry.Register("Books", f.rec.handler("service"), "a")

	f.deliver(`{"Type":"Books#Book","ExcludedDeviceID":"me"}`)
	if got := f.rec.got(); len(got) != 0 {
		t.Errorf("own echo dispatched: %v", got)
	}

	f.deliver(`{"Type":"Books#Book","ExcludedDeviceID":"someone-else"}`)
	if got := f.rec.got(); len(got) != 1 {
		t.Errorf("foreign exclusion should dispatch, got %v", got)
	}

	if v := testutil.ToFloat64(f.metrics.Dropped.WithLabelValues(metrics.ReasonExcluded)); v != 1 {
		t.Errorf("excluded drops = %v, want 1", v)
	}
}

func TestRouter_SecurityStop(t *testing.T) {
	var hooked []model.Message
	f := newFixture(DefaultRouterConfig(), Hooks{
		OnSecurityError: func(msg model.Message) { hooked = append(hooked, msg) },
	})
	f.registry.Register(topic.SecurityErrorScope, f.rec.handler("security"), "app")
	f.registry.Register("Error", f.rec.handler("error-service"), "x")

	f.deliver(`{"Type":"Error","Error":{"Type":"TokenExpiredException","Message":"expired"}}`)

	if f.stopper.count() != 1 {
		t.Errorf("stops = %d, want 1", f.stopper.count())
	}
	if diff := cmp.Diff([]string{"security"}, f.rec.got()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if len(hooked) != 1 || hooked[0].Error.Type != "TokenExpiredException" {
		t.Errorf("hook calls = %+v", hooked)
	}

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.msgs) != 1 || f.notifier.msgs[0].topic != DefaultSecurityTopic {
		t.Errorf("published = %+v", f.notifier.msgs)
	}
	if v := testutil.ToFloat64(f.metrics.SecurityStops); v != 1 {
		t.Errorf("security stops = %v, want 1", v)
	}
}

func TestRouter_NonSecurityErrorDispatches(t *testing.T) {
	f := newFixture(DefaultRouterConfig(), Hooks{})
	f.registry.Register("Error", f.rec.handler("error-service"), "x")

	f.deliver(`{"Type":"Error","Error":{"Type":"ValidationException","Message":"bad"}}`)

	if f.stopper.count() != 0 {
		t.Error("non-security error should not stop the connection")
	}
	if diff := cmp.Diff([]string{"error-service"}, f.rec.got()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRouter_NamespacedSecurityKind(t *testing.T) {
	f := newFixture(DefaultRouterConfig(), Hooks{})
	f.deliver(`{"Type":"Books#Book","Error":{"Type":"Acme.Auth.SessionExpiredException"}}`)

	if f.stopper.count() != 1 {
		t.Errorf("stops = %d, want 1", f.stopper.count())
	}
}

func TestRouter_MalformedFrames(t *testing.T) {
	f := newFixture(DefaultRouterConfig(), Hooks{})
	f.registry.Register("Books", f.rec.handler("service"), "a")

	f.deliver(`{{{`)
	f.deliver(`{"Data":{}}`)

	if got := f.rec.got(); len(got) != 0 {
		t.Errorf("malformed frames dispatched: %v", got)
	}
	if pe := f.router.Stats().ParseErrors; pe != 2 {
		t.Errorf("ParseErrors = %d, want 2", pe)
	}
	if v := testutil.ToFloat64(f.metrics.ParseErrors); v != 2 {
		t.Errorf("parse error metric = %v, want 2", v)
	}
}

func TestRouter_ForwardScopes(t *testing.T) {
	cfg := DefaultRouterConfig()
	cfg.ForwardScopes = []string{"Account#Profile"}
	f := newFixture(cfg, Hooks{})

	f.deliver(`{"Type":"Account#Profile#Updated","Data":{"name":"x"}}`)
	f.deliver(`{"Type":"Books#Book#Updated"}`)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.msgs) != 1 {
		t.Fatalf("published %d notifications, want 1", len(f.notifier.msgs))
	}
	if f.notifier.msgs[0].topic != "Account#Profile" {
		t.Errorf("topic = %s", f.notifier.msgs[0].topic)
	}
}

func TestRouter_NotifyErrorCounted(t *testing.T) {
	n := &fakeNotifier{err: errors.New("bus closed")}
	cfg := DefaultRouterConfig()
	cfg.ForwardScopes = []string{"Account#Profile"}
	f := newFixture(cfg, Hooks{Notifier: n})

	f.deliver(`{"Type":"Account#Profile"}`)

	if ne := f.router.Stats().NotifyErrors; ne != 1 {
		t.Errorf("NotifyErrors = %d, want 1", ne)
	}
}

func TestRouter_StartStop(t *testing.T) {
	f := newFixture(DefaultRouterConfig(), Hooks{})

	done := make(chan struct{})
	var once sync.Once
	f.registry.Register("Books", func(model.Message) { once.Do(func() { close(done) }) }, "a")

	ctx := context.Background()
	if err := f.router.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	f.frames.Push(connection.Frame{Data: []byte(`{"Type":"Books"}`)})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("frame not dispatched")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := f.router.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
