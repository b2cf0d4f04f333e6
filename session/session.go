package session

import (
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/thetooth/pingchart/metrics"
	"github.com/thetooth/pingchart/packet"
	"github.com/thetooth/pingchart/probe"
	"github.com/thetooth/pingchart/series"
	"github.com/thetooth/pingchart/statistics"
	"github.com/thetooth/pingchart/viewport"
)

// State of a session. Transitions only move forward.
type State int

const (
	Idle State = iota
	Running
	Draining
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

type Options struct {
	// Target is only used to label the session.
	Target string

	// BatchSize is the number of lines consumed per tick.
	BatchSize int

	Bounds          viewport.Bounds
	SeqHeadroom     float64
	LatencyHeadroom float64

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// DefaultOptions matches the behaviour of the original chart.
func DefaultOptions() Options {
	return Options{
		BatchSize:       5,
		Bounds:          viewport.DefaultBounds,
		SeqHeadroom:     viewport.DefaultSequenceHeadroom,
		LatencyHeadroom: viewport.DefaultLatencyHeadroom,
	}
}

// Session turns probe output into chart data. It has a single owner: Tick,
// Terminate and Frame must all be called from the same goroutine.
type Session struct {
	ID     string
	Target string

	src       probe.Source
	batchSize int
	state     State
	srcDone   bool

	store   *series.Store
	tracker *viewport.Tracker
	stats   statistics.Statistics
	metrics *metrics.Metrics

	parseErrors int
	log         *logrus.Entry
}

func New(src probe.Source, opts Options) *Session {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	id := uuid.New().String()
	return &Session{
		ID:        id,
		Target:    opts.Target,
		src:       src,
		batchSize: opts.BatchSize,
		store:     series.NewStore(),
		tracker:   viewport.New(opts.Bounds, opts.SeqHeadroom, opts.LatencyHeadroom),
		metrics:   opts.Metrics,
		log:       logrus.WithField("session", id),
	}
}

// Start marks the session as running. The source must already be open.
func (s *Session) Start() {
	if s.state != Idle {
		return
	}
	s.log.Info("[ SESSION_START ] target: ", s.Target)
	s.state = Running
}

func (s *Session) State() State {
	return s.state
}

// Tick consumes up to one batch of lines while running. While draining it
// discards what is left of the output (the statistics block) and then checks,
// without blocking, whether the probe has exited.
func (s *Session) Tick() {
	switch s.state {
	case Running:
		s.consume()
	case Draining:
		s.discard()
		if !s.srcDone {
			return
		}
		select {
		case <-s.src.Exited():
			s.log.Info("[ SESSION_END ] probe exited")
			s.state = Terminated
		default:
		}
	}
}

func (s *Session) next() (string, bool) {
	if s.srcDone {
		return "", false
	}
	if p, ok := s.src.(probe.Poller); ok && !p.Pending() {
		return "", false
	}
	line, ok := s.src.NextLine()
	if !ok {
		s.srcDone = true
	}
	return line, ok
}

func (s *Session) discard() {
	for i := 0; i < s.batchSize; i++ {
		line, ok := s.next()
		if !ok {
			return
		}
		s.log.Trace("[ TRAILER ] ", line)
	}
}

func (s *Session) consume() {
	for i := 0; i < s.batchSize; i++ {
		line, ok := s.next()
		if !ok {
			if s.srcDone {
				s.drain("probe output closed")
			}
			return
		}
		if s.metrics != nil {
			s.metrics.LinesRead.Inc()
		}

		ev, err := packet.Parse(line)
		if errors.Is(err, packet.ErrEndOfStream) {
			if s.metrics != nil {
				s.metrics.Events.WithLabelValues("end_of_stream").Inc()
			}
			s.drain("end of probe output")
			return
		}
		if err != nil {
			s.skip(err)
			continue
		}

		if err := s.record(ev); err != nil {
			s.skip(err)
		}
	}
}

func (s *Session) record(ev packet.Event) error {
	duplicate := false
	if r, ok := ev.(packet.Received); ok {
		duplicate = s.store.Seen(r.Seq)
	}
	if err := s.store.Record(ev); err != nil {
		return err
	}

	s.tracker.ObserveEvent(ev)
	s.stats.Add(ev, duplicate)
	s.log.Trace("[ PACKET ] ", ev)

	if s.metrics != nil {
		b := s.tracker.Bounds()
		s.metrics.MaxSeq.Set(b.MaxSeq)
		s.metrics.MaxLatency.Set(b.MaxLatency)
		switch ev := ev.(type) {
		case packet.Received:
			s.metrics.Events.WithLabelValues("received").Inc()
			s.metrics.LastRTT.Set(ev.RTT)
		case packet.Dropped:
			s.metrics.Events.WithLabelValues("dropped").Inc()
		}
	}

	return nil
}

func (s *Session) skip(err error) {
	s.parseErrors++
	if s.metrics != nil {
		s.metrics.ParseErrors.Inc()
	}
	s.log.Debug("[ PARSE_SKIP ] ", err)
}

func (s *Session) drain(reason string) {
	s.log.Info("[ SESSION_DRAIN ] ", reason)
	s.state = Draining
}

// Terminate stops the probe. It is safe to call on every exit path, only the
// first call reaches the source.
func (s *Session) Terminate() {
	if s.state == Terminated {
		return
	}
	if err := s.src.Terminate(); err != nil {
		s.log.Warn("[ SESSION_TERMINATE ] ", err)
	}
	s.log.Info("[ SESSION_END ] terminated in state ", s.state)
	s.state = Terminated
}

// Frame is what the renderer gets each tick.
type Frame struct {
	Received    series.Series
	Dropped     series.Series
	Bounds      viewport.Bounds
	Stats       statistics.Statistics
	ParseErrors int
	State       State
}

func (s *Session) Frame() Frame {
	received, dropped := s.store.Snapshot()
	return Frame{
		Received:    received,
		Dropped:     dropped,
		Bounds:      s.tracker.Bounds(),
		Stats:       s.stats,
		ParseErrors: s.parseErrors,
		State:       s.state,
	}
}

// Summary reports the session statistics in their JSON form.
func (s *Session) Summary() statistics.Summary {
	sum := statistics.Build(s.stats)
	sum.Target = s.Target
	sum.Session = s.ID
	sum.State = s.state.String()
	sum.ParseErrors = s.parseErrors
	return sum
}
