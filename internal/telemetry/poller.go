package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/exergy/luxos-mcp/internal/luxos"
	"go.uber.org/zap"
)

// Poller refreshes the miner snapshot on a fixed interval and retains the
// last snapshot that had the device online. Dependents read through
// Snapshot(); the power-limit controller forces an immediate pass through
// Refresh().
type Poller struct {
	collector *Collector
	interval  time.Duration
	log       *zap.Logger

	mu          sync.RWMutex
	snap        Snapshot
	lastSuccess bool

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPoller returns a Poller that refreshes via collector every interval.
func NewPoller(collector *Collector, interval time.Duration, log *zap.Logger) *Poller {
	if collector == nil {
		panic("collector must not be nil")
	}
	if log == nil {
		panic("logger must not be nil")
	}
	return &Poller{
		collector: collector,
		interval:  interval,
		log:       log,
		stopChan:  make(chan struct{}),
	}
}

// Start launches the polling goroutine. Starting an already-running poller
// is a no-op. The first pass runs immediately rather than one interval in.
func (p *Poller) Start() {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.wg.Add(1)

	go p.loop()

	p.log.Info("telemetry poller started", zap.Duration("interval", p.interval))
}

// Stop halts polling and waits for the in-flight pass, if any, to finish.
func (p *Poller) Stop() {
	p.runMu.Lock()
	if !p.running {
		p.runMu.Unlock()
		return
	}
	p.runMu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	p.runMu.Lock()
	p.running = false
	p.runMu.Unlock()

	p.log.Info("telemetry poller stopped")
}

func (p *Poller) loop() {
	defer p.wg.Done()

	p.poll()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	if err := p.Refresh(ctx); err != nil {
		p.log.Warn("telemetry poll failed", zap.Error(err))
	}
}

// Refresh performs one collection pass now. On success the stored snapshot
// is replaced; when the device is unreachable the previous snapshot is kept
// and the success flag drops, so dependents still see last-known-good data.
func (p *Poller) Refresh(ctx context.Context) error {
	snap := p.collector.Collect(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	if !snap.Online {
		p.lastSuccess = false
		return fmt.Errorf("telemetry: miner offline, keeping previous snapshot")
	}

	p.snap = snap
	p.lastSuccess = true
	return nil
}

// Snapshot returns the last known-good snapshot and whether the most recent
// collection pass succeeded.
func (p *Poller) Snapshot() (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap, p.lastSuccess
}

// The accessors below serve the power-limit controller's data needs from
// the latest snapshot.

// Profiles returns the profile list from the latest snapshot; nil when the
// profiles section has never been fetched.
func (p *Poller) Profiles() []luxos.Profile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.snap.HasProfiles {
		return nil
	}
	return p.snap.Profiles
}

// BoardCount returns the installed hashboard count, never less than 1.
func (p *Poller) BoardCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snap.BoardCount < 1 {
		return 1
	}
	return p.snap.BoardCount
}

// ActualPower returns the latest measured wall draw in watts, 0 when no
// reading exists yet.
func (p *Poller) ActualPower() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.ActualPower()
}

// CurrentProfileName returns the active profile name, "" when unknown.
func (p *Poller) CurrentProfileName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.CurrentProfileName()
}
