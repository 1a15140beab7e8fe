package tuning

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"stimctl/internal/model"
	"stimctl/internal/params"
)

type recordingLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLog) Log(_ context.Context, source, event, details string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, source+"|"+event+"|"+details)
}

func (l *recordingLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.entries...)
}

func testBounds() model.SafetyBounds {
	return model.SafetyBounds{
		Amplitude:  model.Bound{Min: 0.1, Max: 120, Step: 0.5},
		Frequency:  model.Bound{Min: 1, Max: 2000, Step: 5},
		PulseWidth: model.Bound{Min: 10, Max: 10000, Step: 10},
	}
}

func testStore(t *testing.T, channels ...model.Channel) *params.Store {
	t.Helper()
	defaults := make(map[model.Channel]model.StimParameters, len(channels))
	for _, ch := range channels {
		defaults[ch] = model.StimParameters{AmplitudeMilliamps: 10, FrequencyHz: 35, PulseWidthMicros: 300}
	}
	store, err := params.NewStore(testBounds(), defaults)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func newTestController(t *testing.T, store *params.Store, log *recordingLog, mode Mode) *Controller {
	t.Helper()
	ctl, err := NewController(ControllerConfig{
		Binding:  Binding{Field: model.FieldAmplitude, IncreaseKey: 'w', DecreaseKey: 'q'},
		Mode:     mode,
		Debounce: 200 * time.Millisecond,
		Params:   store,
		Trail:    log,
		Channel:  func() model.Channel { return 1 },
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return ctl
}

func TestDebounceSuppressesRepeatWithinInterval(t *testing.T) {
	store := testStore(t, 1)
	logged := &recordingLog{}
	ctl := newTestController(t, store, logged, ModeDebounce)

	base := time.Now()
	ctx := context.Background()
	ctl.handle(ctx, KeyEvent{Key: 'w', At: base})
	ctl.handle(ctx, KeyEvent{Key: 'w', At: base.Add(50 * time.Millisecond)})

	got, _ := store.Snapshot(1)
	if got.AmplitudeMilliamps != 10.5 {
		t.Fatalf("expected one adjustment, amp=%v", got.AmplitudeMilliamps)
	}

	ctl.handle(ctx, KeyEvent{Key: 'w', At: base.Add(250 * time.Millisecond)})
	got, _ = store.Snapshot(1)
	if got.AmplitudeMilliamps != 11 {
		t.Fatalf("expected second adjustment after interval, amp=%v", got.AmplitudeMilliamps)
	}

	entries := logged.all()
	if len(entries) != 2 {
		t.Fatalf("expected two audit entries, got=%v", entries)
	}
	if entries[0] != "Keyboard|AMP UP|ch=1 10.5 mA" {
		t.Fatalf("unexpected entry: %q", entries[0])
	}
}

func TestHoldReleaseIgnoresUntilReleaseKey(t *testing.T) {
	store := testStore(t, 1)
	logged := &recordingLog{}
	ctl := newTestController(t, store, logged, ModeHoldRelease)

	base := time.Now()
	ctx := context.Background()
	ctl.handle(ctx, KeyEvent{Key: 'w', At: base})
	ctl.handle(ctx, KeyEvent{Key: 'w', At: base.Add(time.Second)})

	got, _ := store.Snapshot(1)
	if got.AmplitudeMilliamps != 10.5 {
		t.Fatalf("expected presses before release to be ignored, amp=%v", got.AmplitudeMilliamps)
	}

	ctl.handle(ctx, KeyEvent{Key: 'r', At: base.Add(2 * time.Second)})
	ctl.handle(ctx, KeyEvent{Key: 'q', At: base.Add(3 * time.Second)})
	got, _ = store.Snapshot(1)
	if got.AmplitudeMilliamps != 10 {
		t.Fatalf("expected decrease after release, amp=%v", got.AmplitudeMilliamps)
	}
	if entries := logged.all(); entries[len(entries)-1] != "Keyboard|AMP DOWN|ch=1 10 mA" {
		t.Fatalf("unexpected entry: %v", entries)
	}
}

func TestControllersAdjustIndependently(t *testing.T) {
	store := testStore(t, 1)
	logged := &recordingLog{}

	channel := func() model.Channel { return 1 }
	var controllers []*Controller
	for _, b := range DefaultBindings() {
		ctl, err := NewController(ControllerConfig{
			Binding: b,
			Mode:    ModeDebounce,
			Params:  store,
			Trail:   logged,
			Channel: channel,
		})
		if err != nil {
			t.Fatalf("new controller: %v", err)
		}
		controllers = append(controllers, ctl)
	}

	// Same instant on every controller: debounce state is per field, so all
	// three apply.
	at := time.Now()
	ctx := context.Background()
	keys := []rune{'w', 's', 'x'}
	for i, ctl := range controllers {
		ctl.handle(ctx, KeyEvent{Key: keys[i], At: at})
	}

	got, _ := store.Snapshot(1)
	if got.AmplitudeMilliamps != 10.5 || got.FrequencyHz != 40 || got.PulseWidthMicros != 310 {
		t.Fatalf("unexpected parameters: %+v", got)
	}
}

type scriptedKeys struct {
	events []KeyEvent
	i      int
}

func (s *scriptedKeys) Next(_ context.Context) (KeyEvent, error) {
	if s.i >= len(s.events) {
		return KeyEvent{}, io.EOF
	}
	ev := s.events[s.i]
	s.i++
	return ev, nil
}

func TestRouterSelectsChannelForAdjustments(t *testing.T) {
	store := testStore(t, 1, 2)
	logged := &recordingLog{}
	router, err := NewRouter(RouterConfig{
		Params: store,
		Trail:  logged,
		Mode:   ModeHoldRelease,
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	base := time.Now()
	source := &scriptedKeys{events: []KeyEvent{
		{Key: 'w', At: base},
		{Key: 'r', At: base.Add(time.Second)},
		{Key: '2', At: base.Add(2 * time.Second)},
		{Key: 'w', At: base.Add(3 * time.Second)},
	}}
	if err := router.Run(context.Background(), source); err != nil {
		t.Fatalf("run: %v", err)
	}

	one, _ := store.Snapshot(1)
	two, _ := store.Snapshot(2)
	if one.AmplitudeMilliamps != 10.5 {
		t.Fatalf("channel 1 amp=%v", one.AmplitudeMilliamps)
	}
	if two.AmplitudeMilliamps != 10.5 {
		t.Fatalf("channel 2 amp=%v", two.AmplitudeMilliamps)
	}

	var selected bool
	for _, e := range logged.all() {
		if strings.Contains(e, "CHANNEL SELECT|ch=2") {
			selected = true
		}
	}
	if !selected {
		t.Fatal("expected a channel select audit entry")
	}
}

func TestRouterRunReturnsOnExhaustedSource(t *testing.T) {
	store := testStore(t, 1)
	router, err := NewRouter(RouterConfig{Params: store, Trail: &recordingLog{}, Mode: ModeDebounce})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	// The parent context stays live; only the source ends. Run must still
	// release its controller goroutines and return.
	done := make(chan error, 1)
	go func() {
		done <- router.Run(context.Background(), &scriptedKeys{events: []KeyEvent{{Key: 'w', At: time.Now()}}})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after the key source was exhausted")
	}

	got, _ := store.Snapshot(1)
	if got.AmplitudeMilliamps != 10.5 {
		t.Fatalf("expected the pending adjustment to land, amp=%v", got.AmplitudeMilliamps)
	}
}

func TestRouterSingleChannelIgnoresSelectorKeys(t *testing.T) {
	store := testStore(t, 1)
	logged := &recordingLog{}
	router, err := NewRouter(RouterConfig{Params: store, Trail: logged, Mode: ModeDebounce})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	source := &scriptedKeys{events: []KeyEvent{{Key: '1', At: time.Now()}}}
	if err := router.Run(context.Background(), source); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, e := range logged.all() {
		if strings.Contains(e, "CHANNEL SELECT") {
			t.Fatalf("unexpected channel select: %v", e)
		}
	}
}
