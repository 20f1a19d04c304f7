package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Observer is called with every published snapshot.
type Observer func(Snapshot)

// Prober refreshes an Availability at startup, on a fixed interval and on demand.
type Prober struct {
	avail    *Availability
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	sched    *cron.Cron

	mu        sync.Mutex
	observers []Observer
	baseCtx   context.Context
}

func NewProber(avail *Availability, interval, timeout time.Duration, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	cl := cronLogger{logger: logger}
	return &Prober{
		avail:    avail,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		sched: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		baseCtx: context.Background(),
	}
}

// Subscribe registers fn for future snapshots.
func (p *Prober) Subscribe(fn Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

// Start probes once synchronously, then schedules "@every interval" probes.
// Scheduled probes stop when ctx is done or Stop is called.
func (p *Prober) Start(ctx context.Context) error {
	p.mu.Lock()
	p.baseCtx = ctx
	p.mu.Unlock()

	p.ProbeNow(ctx)

	spec := fmt.Sprintf("@every %s", p.interval)
	if _, err := p.sched.AddFunc(spec, func() {
		p.ProbeNow(p.context())
	}); err != nil {
		return fmt.Errorf("schedule probe %q: %w", spec, err)
	}
	p.sched.Start()
	p.logger.Info("backend.prober.started", "interval", p.interval.String(), "backends", len(p.avail.Backends()))

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

// Stop halts scheduling and waits for a running probe to finish.
func (p *Prober) Stop() {
	<-p.sched.Stop().Done()
}

func (p *Prober) context() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.baseCtx
}

// ProbeNow pings every backend concurrently, publishes the result and
// notifies observers.
func (p *Prober) ProbeNow(ctx context.Context) Snapshot {
	start := time.Now()
	backends := p.avail.Backends()
	statuses := make([]Status, len(backends))

	var wg sync.WaitGroup
	for i, b := range backends {
		wg.Add(1)
		go func(i int, b Backend) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			st := Status{Name: b.Name(), Reachable: true}
			if err := b.Ping(pctx); err != nil {
				st.Reachable = false
				st.Error = err.Error()
			}
			st.CheckedAt = time.Now()
			statuses[i] = st
		}(i, b)
	}
	wg.Wait()

	snap := p.avail.publish(statuses, time.Now())
	for _, st := range statuses {
		if !st.Reachable {
			p.logger.Warn("backend.probe.unreachable", "backend", st.Name, "error", st.Error)
		}
	}
	p.logger.Info("backend.probe.done",
		"preferred", snap.Preferred,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	p.mu.Lock()
	observers := append([]Observer(nil), p.observers...)
	p.mu.Unlock()
	for _, fn := range observers {
		fn(snap)
	}
	return snap
}
