package viewport

import "github.com/thetooth/pingchart/packet"

const (
	DefaultSequenceHeadroom = 5
	DefaultLatencyHeadroom  = 5.0
)

// Bounds are the upper limits of the chart axes, both start at zero.
type Bounds struct {
	MaxSeq     float64
	MaxLatency float64
}

// Initial bounds used before any packet has been seen.
var DefaultBounds = Bounds{MaxSeq: 100, MaxLatency: 10}

// Tracker grows the chart bounds as packets arrive. Bounds never shrink, so
// the scale stays put between ticks.
type Tracker struct {
	bounds          Bounds
	seqHeadroom     float64
	latencyHeadroom float64
}

func New(initial Bounds, seqHeadroom, latencyHeadroom float64) *Tracker {
	return &Tracker{
		bounds:          initial,
		seqHeadroom:     seqHeadroom,
		latencyHeadroom: latencyHeadroom,
	}
}

// Observe extends the bounds to cover seq and, when hasLatency is set, latency.
func (t *Tracker) Observe(seq uint64, latency float64, hasLatency bool) {
	if s := float64(seq); s >= t.bounds.MaxSeq {
		t.bounds.MaxSeq = s + t.seqHeadroom
	}
	if hasLatency && latency >= t.bounds.MaxLatency {
		t.bounds.MaxLatency = latency + t.latencyHeadroom
	}
}

// ObserveEvent is Observe for a parsed packet. Timeouts only contribute a
// latency when the notice carried one.
func (t *Tracker) ObserveEvent(e packet.Event) {
	switch e := e.(type) {
	case packet.Received:
		t.Observe(e.Seq, e.RTT, true)
	case packet.Dropped:
		t.Observe(e.Seq, e.RTT, e.HasRTT)
	}
}

func (t *Tracker) Bounds() Bounds {
	return t.bounds
}
