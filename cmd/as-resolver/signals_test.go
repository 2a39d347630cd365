package main

import (
	"syscall"
	"testing"
	"time"

	"github.com/route-beacon/as-resolver/internal/config"
	"go.uber.org/zap"
)

func TestPhaseSignals_FirstInterruptStopsDumpOnly(t *testing.T) {
	p := newPhaseSignals(zap.NewNop())
	defer p.stop()

	dumpCtx := p.begin("dump")
	p.interrupt("interrupt")
	if dumpCtx.Err() == nil {
		t.Fatal("expected dump phase cancelled by first interrupt")
	}

	regCtx := p.begin("registry")
	if regCtx.Err() != nil {
		t.Fatal("expected registry phase to run after one interrupt")
	}

	p.interrupt("interrupt")
	if regCtx.Err() == nil {
		t.Fatal("expected registry phase cancelled by second interrupt")
	}
}

func TestPhaseSignals_RepeatedInterruptAbortsLaterPhases(t *testing.T) {
	p := newPhaseSignals(zap.NewNop())
	defer p.stop()

	dumpCtx := p.begin("dump")
	p.interrupt("interrupt")
	p.interrupt("interrupt")
	if dumpCtx.Err() == nil {
		t.Fatal("expected dump phase cancelled")
	}

	if p.begin("registry").Err() == nil {
		t.Error("expected registry phase to start cancelled after two interrupts")
	}
	if p.count != 2 {
		t.Errorf("expected 2 signals counted, got %d", p.count)
	}
}

func TestPhaseSignals_BeginEndsPreviousPhase(t *testing.T) {
	p := newPhaseSignals(zap.NewNop())
	defer p.stop()

	lookupCtx := p.begin("lookup")
	dumpCtx := p.begin("dump")
	if lookupCtx.Err() == nil {
		t.Error("expected lookup context released when dump begins")
	}
	if dumpCtx.Err() != nil {
		t.Error("expected dump phase live")
	}
}

func TestPhaseSignals_StopCancelsCurrentPhase(t *testing.T) {
	p := newPhaseSignals(zap.NewNop())
	ctx := p.begin("registry")
	p.stop()
	if ctx.Err() == nil {
		t.Error("expected stop to cancel the current phase")
	}
}

func TestPhaseSignals_DeliveredSignal(t *testing.T) {
	p := newPhaseSignals(zap.NewNop())
	p.watch(syscall.SIGUSR1)
	defer p.stop()

	ctx := p.begin("dump")
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("sending signal: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected delivered signal to cancel the dump phase")
	}
}

func TestExpandArguments_LiteralsNeedNoNameserver(t *testing.T) {
	cfg := &config.Config{Lookup: config.LookupConfig{ResolvConf: "/nonexistent/resolv.conf", TimeoutMs: 100}}
	p := newPhaseSignals(zap.NewNop())
	defer p.stop()

	targets := expandArguments(p.begin("lookup"), cfg, []string{"130.209.240.1", "10.0.0.1"}, zap.NewNop())
	if len(targets) != 2 || targets[0].Label != "130.209.240.1" || targets[1].Address != "10.0.0.1" {
		t.Errorf("unexpected targets %+v", targets)
	}
}

func TestExpandArguments_HostWithoutNameserverSkipped(t *testing.T) {
	cfg := &config.Config{Lookup: config.LookupConfig{ResolvConf: "/nonexistent/resolv.conf", TimeoutMs: 100}}
	p := newPhaseSignals(zap.NewNop())
	defer p.stop()

	targets := expandArguments(p.begin("lookup"), cfg, []string{"www.gla.ac.uk", "10.0.0.1"}, zap.NewNop())
	if len(targets) != 1 || targets[0].Label != "10.0.0.1" {
		t.Errorf("expected only the literal target, got %+v", targets)
	}
}
