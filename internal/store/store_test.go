package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-sync/internal/device"
)

func testDevices() []device.Device {
	return []device.Device{
		{
			ID:           "light-1",
			Name:         "Ceiling Light",
			Zone:         "Living Room",
			Type:         device.TypeLight,
			Integration:  device.IntegrationLocal,
			Capabilities: []device.Capability{device.CapOnOff, device.CapBrightness},
			State:        device.State{"on": false},
			Status:       device.StatusOnline,
		},
		{
			ID:           "thermostat-3",
			Name:         "Hallway Thermostat",
			Zone:         "Hallway",
			Type:         device.TypeThermostat,
			Integration:  device.IntegrationGoogleHome,
			Capabilities: []device.Capability{device.CapTemp, device.CapTargetTemp},
			State:        device.State{"temperature": 20.0},
			Status:       device.StatusOnline,
		},
		{
			ID:           "plug-2",
			Name:         "Desk Plug",
			Zone:         "Office",
			Type:         device.TypePlug,
			Integration:  device.IntegrationAlexa,
			Capabilities: []device.Capability{device.CapOnOff, device.CapPower},
			State:        device.State{"on": true},
			Status:       device.StatusOnline,
		},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.ReplaceAll(testDevices())
	return s
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("ghost-9")
	if !errors.Is(err, device.ErrNotFound) {
		t.Fatalf("Get(ghost-9) err = %v, want device.ErrNotFound", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := newTestStore(t)

	d, err := s.Get("light-1")
	if err != nil {
		t.Fatal(err)
	}
	d.State["on"] = true

	again, _ := s.Get("light-1")
	if again.State["on"] != false {
		t.Error("mutating a returned device leaked into the store")
	}
}

func TestReplaceAll_DropsStaleEntries(t *testing.T) {
	s := newTestStore(t)

	s.ReplaceAll(testDevices()[:1])

	if s.Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Count())
	}
	if _, err := s.Get("plug-2"); !errors.Is(err, device.ErrNotFound) {
		t.Error("stale entry survived ReplaceAll")
	}
}

func TestReplaceAll_SkipsInvalidDevice(t *testing.T) {
	s := New()
	devices := testDevices()
	devices[1].Type = "toaster"

	s.ReplaceAll(devices)

	if s.Count() != 2 {
		t.Errorf("Count() = %d, want 2 (invalid device skipped)", s.Count())
	}
}

// A mid-connection resync must not let a delayed pre-resync event outrank
// the fresh snapshot: tokens carry across ReplaceAll for persisting devices.
func TestReplaceAll_PreservesTokens(t *testing.T) {
	s := newTestStore(t)

	res := s.ApplyDelta(Delta{
		DeviceID: "light-1",
		State:    device.State{"on": true},
		Origin:   OriginAuthoritative,
		Token:    5,
	})
	if res != ResultApplied {
		t.Fatalf("token 5: ApplyDelta = %v, want applied", res)
	}

	s.ReplaceAll(testDevices())

	res = s.ApplyDelta(Delta{
		DeviceID: "light-1",
		State:    device.State{"on": true},
		Origin:   OriginAuthoritative,
		Token:    3,
	})
	if res != ResultStale {
		t.Fatalf("token 3 after resync: ApplyDelta = %v, want stale", res)
	}

	d, _ := s.Get("light-1")
	if d.State["on"] != false {
		t.Errorf("on = %v, want false (delayed event must not regress snapshot)", d.State["on"])
	}
}

// A new stream connection restarts the hub's sequence numbers, so tokens
// reset explicitly, not as a side effect of the snapshot load.
func TestResetTokens(t *testing.T) {
	s := newTestStore(t)

	s.ApplyDelta(Delta{
		DeviceID: "light-1",
		State:    device.State{"on": true},
		Origin:   OriginAuthoritative,
		Token:    5,
	})

	s.ResetTokens()

	res := s.ApplyDelta(Delta{
		DeviceID: "light-1",
		State:    device.State{"on": false},
		Origin:   OriginAuthoritative,
		Token:    3,
	})
	if res != ResultApplied {
		t.Fatalf("token 3 after reset: ApplyDelta = %v, want applied", res)
	}
}

func TestApplyDelta_Applied(t *testing.T) {
	s := newTestStore(t)

	res := s.ApplyDelta(Delta{
		DeviceID: "light-1",
		State:    device.State{"on": true, "brightness": 50.0},
		Origin:   OriginAuthoritative,
		Token:    1,
	})
	if res != ResultApplied {
		t.Fatalf("ApplyDelta = %v, want applied", res)
	}

	d, _ := s.Get("light-1")
	if d.State["on"] != true || d.State["brightness"] != 50.0 {
		t.Errorf("state = %v, want on=true brightness=50", d.State)
	}
	if d.LastActivity.IsZero() {
		t.Error("LastActivity not updated")
	}
}

// Token 5 then token 3: only token 5's delta is retained.
func TestApplyDelta_StaleTokenDropped(t *testing.T) {
	s := newTestStore(t)

	res := s.ApplyDelta(Delta{
		DeviceID: "thermostat-3",
		State:    device.State{"temperature": 22.5},
		Origin:   OriginAuthoritative,
		Token:    5,
	})
	if res != ResultApplied {
		t.Fatalf("token 5: ApplyDelta = %v, want applied", res)
	}

	res = s.ApplyDelta(Delta{
		DeviceID: "thermostat-3",
		State:    device.State{"temperature": 19.0},
		Origin:   OriginAuthoritative,
		Token:    3,
	})
	if res != ResultStale {
		t.Fatalf("token 3: ApplyDelta = %v, want stale", res)
	}

	d, _ := s.Get("thermostat-3")
	if d.State["temperature"] != 22.5 {
		t.Errorf("temperature = %v, want 22.5 (token 5 retained)", d.State["temperature"])
	}
}

func TestApplyDelta_EqualTokenApplies(t *testing.T) {
	s := newTestStore(t)

	s.ApplyDelta(Delta{DeviceID: "light-1", State: device.State{"on": true}, Origin: OriginAuthoritative, Token: 7})
	res := s.ApplyDelta(Delta{DeviceID: "light-1", State: device.State{"on": false}, Origin: OriginAuthoritative, Token: 7})

	if res != ResultApplied {
		t.Fatalf("equal token: ApplyDelta = %v, want applied (not older)", res)
	}
}

func TestApplyDelta_OriginClassesTrackedSeparately(t *testing.T) {
	s := newTestStore(t)

	s.ApplyDelta(Delta{DeviceID: "light-1", State: device.State{"on": true}, Origin: OriginAuthoritative, Token: 100})

	// A speculative delta with a small token must not be blocked by the
	// large authoritative token.
	res := s.ApplyDelta(Delta{DeviceID: "light-1", State: device.State{"on": false}, Origin: OriginSpeculative, Token: 1})
	if res != ResultApplied {
		t.Fatalf("speculative after authoritative: %v, want applied", res)
	}

	if got := s.LastToken("light-1", OriginAuthoritative); got != 100 {
		t.Errorf("LastToken(auth) = %d, want 100", got)
	}
	if got := s.LastToken("light-1", OriginSpeculative); got != 1 {
		t.Errorf("LastToken(speculative) = %d, want 1", got)
	}
}

func TestApplyDelta_UnknownDevice(t *testing.T) {
	s := newTestStore(t)

	res := s.ApplyDelta(Delta{DeviceID: "ghost-9", State: device.State{"on": true}, Origin: OriginAuthoritative, Token: 1})
	if res != ResultNotFound {
		t.Errorf("ApplyDelta = %v, want not_found", res)
	}
}

func TestApplyDelta_OutOfCapabilityKeysRejected(t *testing.T) {
	s := newTestStore(t)

	res := s.ApplyDelta(Delta{
		DeviceID: "light-1",
		State:    device.State{"locked": true},
		Origin:   OriginAuthoritative,
		Token:    1,
	})
	if res != ResultRejected {
		t.Fatalf("ApplyDelta = %v, want rejected", res)
	}

	d, _ := s.Get("light-1")
	if _, ok := d.State["locked"]; ok {
		t.Error("out-of-capability key leaked into state")
	}
}

func TestApplyDelta_NilValueDeletesKey(t *testing.T) {
	s := newTestStore(t)

	s.ApplyDelta(Delta{DeviceID: "light-1", State: device.State{"brightness": 80.0}, Origin: OriginAuthoritative, Token: 1})
	s.ApplyDelta(Delta{DeviceID: "light-1", State: device.State{"brightness": nil}, Origin: OriginAuthoritative, Token: 2})

	d, _ := s.Get("light-1")
	if _, ok := d.State["brightness"]; ok {
		t.Error("nil merge did not delete the key")
	}
}

// For all permutations of authoritative deltas respecting their tokens, the
// store converges to the same final state per device.
func TestApplyDelta_PermutationConvergence(t *testing.T) {
	deltas := []Delta{
		{DeviceID: "thermostat-3", State: device.State{"temperature": 18.0}, Origin: OriginAuthoritative, Token: 1},
		{DeviceID: "thermostat-3", State: device.State{"target_temperature": 21.0}, Origin: OriginAuthoritative, Token: 2},
		{DeviceID: "thermostat-3", State: device.State{"temperature": 19.5}, Origin: OriginAuthoritative, Token: 3},
	}

	perms := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}

	var want device.State
	for i, perm := range perms {
		s := newTestStore(t)
		for _, idx := range perm {
			s.ApplyDelta(deltas[idx])
		}
		d, _ := s.Get("thermostat-3")

		if i == 0 {
			want = d.State
			continue
		}
		if fmt.Sprint(d.State) != fmt.Sprint(want) {
			t.Errorf("permutation %v: state = %v, want %v", perm, d.State, want)
		}
	}

	// The highest token's value must win regardless of arrival order.
	s := newTestStore(t)
	s.ApplyDelta(deltas[2])
	s.ApplyDelta(deltas[0]) // stale, dropped
	s.ApplyDelta(deltas[1]) // stale, dropped
	d, _ := s.Get("thermostat-3")
	if d.State["temperature"] != 19.5 {
		t.Errorf("temperature = %v, want 19.5", d.State["temperature"])
	}
}

func TestSubscribe_OneCallbackPerLogicalChange(t *testing.T) {
	s := newTestStore(t)

	var mu sync.Mutex
	var changes []Change
	unsub := s.Subscribe(func(c Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})
	defer unsub()

	s.ApplyDelta(Delta{DeviceID: "light-1", State: device.State{"on": true}, Origin: OriginAuthoritative, Token: 5})
	s.ApplyDelta(Delta{DeviceID: "light-1", State: device.State{"on": false}, Origin: OriginAuthoritative, Token: 3}) // stale
	s.ApplyDelta(Delta{DeviceID: "ghost-9", State: device.State{"on": true}, Origin: OriginAuthoritative, Token: 1})  // not found
	s.ReplaceAll(testDevices())

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 {
		t.Fatalf("callbacks = %d, want 2 (applied + refresh only), got %v", len(changes), changes)
	}
	if changes[0].Type != ChangeDevice || changes[0].DeviceID != "light-1" {
		t.Errorf("first change = %+v, want device light-1", changes[0])
	}
	if changes[1].Type != ChangeRefresh {
		t.Errorf("second change = %+v, want refresh", changes[1])
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	s := newTestStore(t)

	calls := 0
	unsub := s.Subscribe(func(Change) { calls++ })
	unsub()

	s.ApplyDelta(Delta{DeviceID: "light-1", State: device.State{"on": true}, Origin: OriginAuthoritative, Token: 1})
	if calls != 0 {
		t.Errorf("callbacks after unsubscribe = %d, want 0", calls)
	}
}

func TestSetStatus(t *testing.T) {
	s := newTestStore(t)

	if res := s.SetStatus("light-1", device.StatusOffline); res != ResultApplied {
		t.Fatalf("SetStatus = %v, want applied", res)
	}
	// Same status again is not a logical change.
	if res := s.SetStatus("light-1", device.StatusOffline); res != ResultStale {
		t.Errorf("repeated SetStatus = %v, want stale", res)
	}
	if res := s.SetStatus("ghost-9", device.StatusOffline); res != ResultNotFound {
		t.Errorf("SetStatus unknown = %v, want not_found", res)
	}

	d, _ := s.Get("light-1")
	if d.Status != device.StatusOffline {
		t.Errorf("status = %v, want offline", d.Status)
	}
}

func TestConcurrentWriters(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(tok int64) {
			defer wg.Done()
			s.ApplyDelta(Delta{DeviceID: "plug-2", State: device.State{"power_watts": float64(tok)}, Origin: OriginAuthoritative, Token: tok})
		}(int64(i))
		go func(tok int64) {
			defer wg.Done()
			s.ApplyDelta(Delta{DeviceID: "plug-2", State: device.State{"on": tok%2 == 0}, Origin: OriginSpeculative, Token: tok})
		}(int64(i))
	}
	wg.Wait()

	if got := s.LastToken("plug-2", OriginAuthoritative); got != 49 {
		t.Errorf("LastToken(auth) = %d, want 49", got)
	}
}
