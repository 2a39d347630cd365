package main

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"go.uber.org/zap"
)

// phaseSignals owns SIGINT/SIGTERM for a whole run. A signal cancels the
// phase in progress; a signal that arrives while the current phase is
// already cancelled also cancels every later phase.
type phaseSignals struct {
	mu      sync.Mutex
	name    string
	ctx     context.Context
	cancel  context.CancelFunc
	aborted bool
	count   int

	ch     chan os.Signal
	done   chan struct{}
	logger *zap.Logger
}

func newPhaseSignals(logger *zap.Logger) *phaseSignals {
	return &phaseSignals{
		ch:     make(chan os.Signal, 2),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// watch subscribes to sigs until stop is called.
func (p *phaseSignals) watch(sigs ...os.Signal) {
	signal.Notify(p.ch, sigs...)
	go func() {
		for {
			select {
			case sig := <-p.ch:
				p.interrupt(sig.String())
			case <-p.done:
				return
			}
		}
	}()
}

// begin starts a named phase and returns its context. After an abort every
// new phase starts cancelled.
func (p *phaseSignals) begin(name string) context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.name = name
	p.ctx, p.cancel = context.WithCancel(context.Background())
	if p.aborted {
		p.cancel()
	}
	return p.ctx
}

func (p *phaseSignals) interrupt(sig string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count++
	if p.ctx != nil && p.ctx.Err() == nil {
		p.logger.Warn("signal received, stopping phase",
			zap.String("signal", sig),
			zap.String("phase", p.name),
			zap.Int("count", p.count),
		)
		p.cancel()
		return
	}

	p.aborted = true
	p.logger.Warn("signal received again, skipping remaining phases",
		zap.String("signal", sig),
		zap.Int("count", p.count),
	)
}

func (p *phaseSignals) stop() {
	signal.Stop(p.ch)
	close(p.done)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}
