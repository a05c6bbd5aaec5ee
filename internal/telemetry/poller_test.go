package telemetry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Refresh tests
// ---------------------------------------------------------------------------

func newTestPoller(client *scriptedClient) *Poller {
	return NewPoller(NewCollector(client, zap.NewNop()), time.Minute, zap.NewNop())
}

func Test_Refresh_StoresSnapshotOnSuccess(t *testing.T) {
	p := newTestPoller(&scriptedClient{payloads: healthyPayloads()})

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	snap, fresh := p.Snapshot()
	if !fresh {
		t.Error("Snapshot() fresh = false, want true after successful refresh")
	}
	if !snap.Online || snap.Power.Watts != 3050 {
		t.Errorf("snapshot not populated: online=%v watts=%v", snap.Online, snap.Power.Watts)
	}
}

func Test_Refresh_OfflineKeepsPreviousSnapshot(t *testing.T) {
	client := &scriptedClient{payloads: healthyPayloads()}
	p := newTestPoller(client)

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}

	// Device drops off the network; every command now fails.
	client.errOn = map[string]error{}
	for cmd := range healthyPayloads() {
		client.errOn[cmd] = fmt.Errorf("connection refused")
	}

	if err := p.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() expected error while offline")
	}

	snap, fresh := p.Snapshot()
	if fresh {
		t.Error("Snapshot() fresh = true, want false after failed refresh")
	}
	if snap.Power.Watts != 3050 {
		t.Errorf("last-known-good snapshot lost: watts = %v, want 3050", snap.Power.Watts)
	}
}

func Test_Refresh_BeforeAnySuccessReportsStale(t *testing.T) {
	errOn := map[string]error{}
	for cmd := range healthyPayloads() {
		errOn[cmd] = fmt.Errorf("connection refused")
	}
	p := newTestPoller(&scriptedClient{errOn: errOn})

	if err := p.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() expected error")
	}

	snap, fresh := p.Snapshot()
	if fresh {
		t.Error("fresh should be false before any successful pass")
	}
	if !snap.FetchedAt.IsZero() {
		t.Error("no snapshot should be stored before a successful pass")
	}
}

// ---------------------------------------------------------------------------
// DataSource accessor tests
// ---------------------------------------------------------------------------

func Test_Accessors_BeforeFirstPoll(t *testing.T) {
	p := newTestPoller(&scriptedClient{payloads: healthyPayloads()})

	if got := p.Profiles(); got != nil {
		t.Errorf("Profiles() = %v, want nil before first poll", got)
	}
	if got := p.BoardCount(); got != 1 {
		t.Errorf("BoardCount() = %d, want clamp to 1", got)
	}
	if got := p.ActualPower(); got != 0 {
		t.Errorf("ActualPower() = %v, want 0", got)
	}
	if got := p.CurrentProfileName(); got != "" {
		t.Errorf("CurrentProfileName() = %q, want empty", got)
	}
}

func Test_Accessors_AfterPoll(t *testing.T) {
	p := newTestPoller(&scriptedClient{payloads: healthyPayloads()})
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if got := len(p.Profiles()); got != 2 {
		t.Errorf("len(Profiles()) = %d, want 2", got)
	}
	if got := p.BoardCount(); got != 3 {
		t.Errorf("BoardCount() = %d, want 3", got)
	}
	if got := p.ActualPower(); got != 3050 {
		t.Errorf("ActualPower() = %v, want 3050", got)
	}
	if got := p.CurrentProfileName(); got != "315MHz" {
		t.Errorf("CurrentProfileName() = %q, want 315MHz", got)
	}
}

// ---------------------------------------------------------------------------
// Lifecycle tests
// ---------------------------------------------------------------------------

func Test_StartStop_RunsImmediateFirstPoll(t *testing.T) {
	client := &scriptedClient{payloads: healthyPayloads()}
	p := NewPoller(NewCollector(client, zap.NewNop()), time.Hour, zap.NewNop())

	p.Start()
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for {
		if _, fresh := p.Snapshot(); fresh {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first poll did not complete")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func Test_Start_SecondCallIsNoOp(t *testing.T) {
	client := &scriptedClient{payloads: healthyPayloads()}
	p := NewPoller(NewCollector(client, zap.NewNop()), time.Hour, zap.NewNop())

	p.Start()
	p.Start()
	p.Stop()
}
