package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"vkrelay/internal/poster"
	"vkrelay/pkg/logx"
)

const probeTimeout = 15 * time.Second

// tokenProber checks the VK credential on a cron schedule and raises an
// alert once per failure streak.
type tokenProber struct {
	log      logx.Logger
	probe    func(ctx context.Context) error
	hasToken func() bool
	alert    func(ctx context.Context, text string)

	mu      sync.Mutex
	c       *cron.Cron
	spec    string
	ctx     context.Context
	failing bool
	lastErr error
}

func newTokenProber(log logx.Logger, probe func(context.Context) error, hasToken func() bool, alert func(context.Context, string)) *tokenProber {
	return &tokenProber{
		log:      log.With(logx.String("comp", "probe")),
		probe:    probe,
		hasToken: hasToken,
		alert:    alert,
	}
}

// Start schedules spec; an empty spec leaves the probe idle.
func (p *tokenProber) Start(ctx context.Context, spec string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctx = ctx
	return p.scheduleLocked(spec)
}

// Reschedule swaps the schedule when spec changed.
func (p *tokenProber) Reschedule(spec string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if spec == p.spec && (p.c != nil) == (spec != "") {
		return nil
	}
	if p.c != nil {
		<-p.c.Stop().Done()
		p.c = nil
	}
	return p.scheduleLocked(spec)
}

func (p *tokenProber) scheduleLocked(spec string) error {
	p.spec = spec
	if spec == "" || p.ctx == nil {
		p.log.Info("vk probe disabled")
		return nil
	}
	ctx := p.ctx
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() { p.runOnce(ctx) }); err != nil {
		return err
	}
	c.Start()
	p.c = c
	p.log.Info("vk probe scheduled", logx.String("spec", spec))
	return nil
}

func (p *tokenProber) Stop(ctx context.Context) {
	p.mu.Lock()
	c := p.c
	p.c = nil
	p.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// LastError is the error of the most recent probe, nil when healthy.
func (p *tokenProber) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *tokenProber) runOnce(ctx context.Context) {
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if !p.hasToken() {
		p.log.Debug("vk probe skipped: no token")
		p.record(nil)
		return
	}
	cctx, cancel := context.WithTimeout(ctx, probeTimeout)
	err := p.probe(cctx)
	cancel()

	wasFailing := p.record(err)
	switch {
	case err == nil && wasFailing:
		p.log.Info("vk probe recovered")
		p.alert(ctx, "✅ VK token works again")
	case err == nil:
		p.log.Debug("vk probe ok")
	case errors.Is(err, poster.ErrUnauthenticated):
		p.log.Warn("vk probe: token rejected", logx.Err(err))
		if !wasFailing {
			p.alert(ctx, "🔑 VK rejected the current token. Posting jobs will fail until you send /token <new token>")
		}
	default:
		// transient; surfaces on /healthz only
		p.log.Warn("vk probe failed", logx.Err(err))
	}
}

// record stores the result and reports whether the previous probe had
// been rejected as unauthenticated.
func (p *tokenProber) record(err error) (wasFailing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	wasFailing = p.failing
	p.lastErr = err
	switch {
	case err == nil:
		p.failing = false
	case errors.Is(err, poster.ErrUnauthenticated):
		p.failing = true
	}
	return wasFailing
}
