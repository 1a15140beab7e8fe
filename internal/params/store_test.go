package params

import (
	"sync"
	"testing"

	"stimctl/internal/model"
)

func testBounds() model.SafetyBounds {
	return model.SafetyBounds{
		Amplitude:  model.Bound{Min: 0.1, Max: 120, Step: 0.5},
		Frequency:  model.Bound{Min: 1, Max: 2000, Step: 5},
		PulseWidth: model.Bound{Min: 10, Max: 10000, Step: 10},
	}
}

func testDefaults() map[model.Channel]model.StimParameters {
	return map[model.Channel]model.StimParameters{
		1: {AmplitudeMilliamps: 10, FrequencyHz: 35, PulseWidthMicros: 300},
	}
}

func TestStoreClampsDefaultsOnConstruction(t *testing.T) {
	defaults := map[model.Channel]model.StimParameters{
		1: {AmplitudeMilliamps: 500, FrequencyHz: 0, PulseWidthMicros: 1},
	}
	store, err := NewStore(testBounds(), defaults)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	p, ok := store.Snapshot(1)
	if !ok {
		t.Fatal("expected channel 1 to exist")
	}
	if p.AmplitudeMilliamps != 120 {
		t.Fatalf("expected amplitude clamped to 120, got=%v", p.AmplitudeMilliamps)
	}
	if p.FrequencyHz != 1 {
		t.Fatalf("expected frequency clamped to 1, got=%v", p.FrequencyHz)
	}
	if p.PulseWidthMicros != 10 {
		t.Fatalf("expected pulse width clamped to 10, got=%v", p.PulseWidthMicros)
	}
}

func TestStoreRejectsInvalidChannels(t *testing.T) {
	if _, err := NewStore(testBounds(), nil); err == nil {
		t.Fatal("expected empty defaults to fail")
	}
	if _, err := NewStore(testBounds(), map[model.Channel]model.StimParameters{5: {}}); err == nil {
		t.Fatal("expected channel 5 to fail")
	}
}

func TestAdjustClampsAtBounds(t *testing.T) {
	store, err := NewStore(testBounds(), testDefaults())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	got, err := store.Adjust(1, model.FieldAmplitude, 1000)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if got != 120 {
		t.Fatalf("expected amplitude clamped to 120, got=%v", got)
	}
	got, err = store.Adjust(1, model.FieldAmplitude, -1000)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if got != 0.1 {
		t.Fatalf("expected amplitude clamped to 0.1, got=%v", got)
	}
}

func TestAdjustUnknownChannelAndField(t *testing.T) {
	store, err := NewStore(testBounds(), testDefaults())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Adjust(2, model.FieldAmplitude, 1); err == nil {
		t.Fatal("expected unknown channel to fail")
	}
	if _, err := store.Adjust(1, model.ParamField("bogus"), 1); err == nil {
		t.Fatal("expected unknown field to fail")
	}
}

func TestAdjustRoundsPulseWidthToMicros(t *testing.T) {
	store, err := NewStore(testBounds(), testDefaults())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	got, err := store.Adjust(1, model.FieldPulseWidth, 0.4)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if got != 300 {
		t.Fatalf("expected pulse width rounded back to 300, got=%v", got)
	}
}

// Snapshots taken while adjusters hammer every field concurrently must always
// observe in-bounds values.
func TestConcurrentAdjustNeverObservesOutOfBounds(t *testing.T) {
	bounds := testBounds()
	store, err := NewStore(bounds, map[model.Channel]model.StimParameters{
		1: {AmplitudeMilliamps: 10, FrequencyHz: 35, PulseWidthMicros: 300},
		2: {AmplitudeMilliamps: 5, FrequencyHz: 35, PulseWidthMicros: 300},
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	const iterations = 500
	var wg sync.WaitGroup
	fields := []model.ParamField{model.FieldAmplitude, model.FieldFrequency, model.FieldPulseWidth}
	deltas := []float64{250, -250, 5000, -5000}
	for _, ch := range store.Channels() {
		for fi, field := range fields {
			wg.Add(1)
			go func(ch model.Channel, field model.ParamField, fi int) {
				defer wg.Done()
				for i := 0; i < iterations; i++ {
					if _, err := store.Adjust(ch, field, deltas[(i+fi)%len(deltas)]); err != nil {
						t.Errorf("adjust %s: %v", field, err)
						return
					}
				}
			}(ch, field, fi)
		}
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for i := 0; i < iterations; i++ {
			for ch, p := range store.SnapshotAll() {
				if p.AmplitudeMilliamps < bounds.Amplitude.Min || p.AmplitudeMilliamps > bounds.Amplitude.Max {
					t.Errorf("ch%d amplitude out of bounds: %v", ch, p.AmplitudeMilliamps)
					return
				}
				if p.FrequencyHz < bounds.Frequency.Min || p.FrequencyHz > bounds.Frequency.Max {
					t.Errorf("ch%d frequency out of bounds: %v", ch, p.FrequencyHz)
					return
				}
				if float64(p.PulseWidthMicros) < bounds.PulseWidth.Min || float64(p.PulseWidthMicros) > bounds.PulseWidth.Max {
					t.Errorf("ch%d pulse width out of bounds: %v", ch, p.PulseWidthMicros)
					return
				}
			}
		}
	}()

	wg.Wait()
	<-readerDone
}
