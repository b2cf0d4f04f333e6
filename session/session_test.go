package session_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/thetooth/pingchart/metrics"
	"github.com/thetooth/pingchart/series"
	"github.com/thetooth/pingchart/session"
	"github.com/thetooth/pingchart/viewport"
)

type fakeSource struct {
	lines      []string
	polls      int
	terminated int
	exited     chan struct{}
}

func newFake(lines ...string) *fakeSource {
	return &fakeSource{lines: lines, exited: make(chan struct{})}
}

func (f *fakeSource) NextLine() (string, bool) {
	f.polls++
	if len(f.lines) == 0 {
		return "", false
	}
	line := f.lines[0]
	f.lines = f.lines[1:]
	return line, true
}

func (f *fakeSource) Terminate() error {
	f.terminated++
	return nil
}

func (f *fakeSource) Exited() <-chan struct{} { return f.exited }

type pollingSource struct {
	*fakeSource
	ready bool
}

func (p *pollingSource) Pending() bool { return p.ready }

var transcript = []string{
	"64 bytes from 1.1.1.1: icmp_seq=0 ttl=56 time=12.3 ms",
	"64 bytes from 1.1.1.1: icmp_seq=1 ttl=56 time=14.1 ms",
	"Request timeout for icmp_seq 2",
	"garbage line",
	"64 bytes from 1.1.1.1: icmp_seq=3 ttl=56 time=22.0 ms",
	"64 bytes from 1.1.1.1: icmp_seq=4 ttl=56 time=11.0 ms",
	"",
	"--- 1.1.1.1 ping statistics ---",
	"5 packets transmitted, 4 packets received, 20.0% packet loss",
}

func TestSessionLifecycle(t *testing.T) {
	src := newFake(transcript...)
	m := metrics.New("test")
	opts := session.DefaultOptions()
	opts.Metrics = m
	s := session.New(src, opts)

	s.Tick()
	if src.polls != 0 || s.State() != session.Idle {
		t.Fatal("idle session read from its source")
	}

	s.Start()
	if s.State() != session.Running {
		t.Fatalf("state %v after start", s.State())
	}

	s.Tick()
	if src.polls != 5 {
		t.Fatalf("first tick read %d lines, want a batch of 5", src.polls)
	}
	f := s.Frame()
	if len(f.Received) != 4 || len(f.Dropped) != 3 {
		t.Fatalf("received %d dropped %d", len(f.Received), len(f.Dropped))
	}
	if f.Received[2].Y != series.Sentinel || f.Dropped[2].Y != 0 {
		t.Errorf("timeout slot: received %v dropped %v", f.Received[2], f.Dropped[2])
	}
	if f.ParseErrors != 1 {
		t.Errorf("parse errors %d", f.ParseErrors)
	}
	if f.Bounds.MaxLatency != 27 || f.Bounds.MaxSeq != viewport.DefaultBounds.MaxSeq {
		t.Errorf("bounds %+v", f.Bounds)
	}

	s.Tick()
	if s.State() != session.Draining {
		t.Fatalf("state %v after end of stream", s.State())
	}
	if got := s.Frame().Stats.PacketsRecv; got != 4 {
		t.Errorf("packets received %d", got)
	}

	// trailer is drained but the probe has not exited yet
	s.Tick()
	s.Tick()
	if s.State() != session.Draining {
		t.Fatalf("state %v before exit", s.State())
	}
	close(src.exited)
	s.Tick()
	if s.State() != session.Terminated {
		t.Fatalf("state %v after exit", s.State())
	}

	s.Terminate()
	if src.terminated != 0 {
		t.Error("terminate reached an exited probe")
	}

	if got := testutil.ToFloat64(m.ParseErrors); got != 1 {
		t.Errorf("parse error metric %v", got)
	}
	if got := testutil.ToFloat64(m.Events.WithLabelValues("dropped")); got != 1 {
		t.Errorf("dropped metric %v", got)
	}
	if got := testutil.ToFloat64(m.LinesRead); got != 7 {
		t.Errorf("lines metric %v", got)
	}
}

func TestSessionTerminate(t *testing.T) {
	src := newFake("64 bytes from 1.1.1.1: icmp_seq=0 ttl=56 time=1 ms")
	s := session.New(src, session.DefaultOptions())
	s.Start()
	s.Tick()

	s.Terminate()
	s.Terminate()
	if src.terminated != 1 {
		t.Errorf("source terminated %d times", src.terminated)
	}
	if s.State() != session.Terminated {
		t.Errorf("state %v", s.State())
	}

	polls := src.polls
	s.Tick()
	if src.polls != polls {
		t.Error("terminated session kept reading")
	}
}

func TestSessionSourceClosed(t *testing.T) {
	src := newFake("64 bytes from 1.1.1.1: icmp_seq=0 ttl=56 time=1 ms")
	s := session.New(src, session.DefaultOptions())
	s.Start()
	s.Tick()
	if s.State() != session.Draining {
		t.Fatalf("state %v", s.State())
	}

	polls := src.polls
	close(src.exited)
	s.Tick()
	if src.polls != polls {
		t.Error("finished source was polled again")
	}
	if s.State() != session.Terminated {
		t.Errorf("state %v", s.State())
	}
}

func TestSessionOutOfOrder(t *testing.T) {
	src := newFake(
		"64 bytes from 1.1.1.1: icmp_seq=10 ttl=56 time=5.0 ms",
		"64 bytes from 1.1.1.1: icmp_seq=3 ttl=56 time=2.0 ms",
		"64 bytes from 1.1.1.1: icmp_seq=3 ttl=56 time=2.0 ms",
	)
	s := session.New(src, session.DefaultOptions())
	s.Start()
	s.Tick()

	f := s.Frame()
	if len(f.Received) != 11 || f.Received[3] != (series.Point{X: 3, Y: 2}) {
		t.Errorf("received %v", f.Received)
	}
	if f.Stats.PacketsRecvDuplicates != 1 || f.Stats.PacketsRecv != 2 {
		t.Errorf("stats %+v", f.Stats)
	}
}

func TestSessionPoller(t *testing.T) {
	src := &pollingSource{fakeSource: newFake(transcript...)}
	s := session.New(src, session.DefaultOptions())
	s.Start()

	s.Tick()
	if src.polls != 0 || s.State() != session.Running {
		t.Fatalf("read %d lines from an idle source, state %v", src.polls, s.State())
	}

	src.ready = true
	s.Tick()
	if src.polls != 5 {
		t.Errorf("read %d lines once ready", src.polls)
	}
}

func TestSummary(t *testing.T) {
	src := newFake(transcript...)
	opts := session.DefaultOptions()
	opts.Target = "1.1.1.1"
	s := session.New(src, opts)
	s.Start()
	for i := 0; i < 3; i++ {
		s.Tick()
	}

	sum := s.Summary()
	if sum.Target != "1.1.1.1" || sum.Session != s.ID || sum.State != "draining" {
		t.Errorf("summary %+v", sum)
	}
	if sum.PacketsRecv != 4 || sum.PacketsDropped != 1 || sum.PacketLoss != 20 || sum.ParseErrors != 1 {
		t.Errorf("summary %+v", sum)
	}
}
