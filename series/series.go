package series

import (
	"errors"
	"fmt"

	"github.com/thetooth/pingchart/packet"
)

const (
	// Sentinel marks a position no sample has been observed at yet. Valid
	// round trip times are never negative.
	Sentinel = -1.0

	// MaxSequence bounds how far a single line can grow a series.
	MaxSequence = 1 << 22
)

var ErrSequenceRange = errors.New("sequence number out of range")

// Point is an (x, y) pair as the chart consumes it, x being the sequence number.
type Point struct {
	X float64
	Y float64
}

// Series is dense and index aligned: s[i].X is always float64(i).
type Series []Point

// Observed reports whether position i holds a recorded sample.
func (s Series) Observed(i uint64) bool {
	return i < uint64(len(s)) && s[i].Y != Sentinel
}

// Values returns just the y values, which is what line plots want.
func (s Series) Values() []float64 {
	v := make([]float64, len(s))
	for i, p := range s {
		v[i] = p.Y
	}
	return v
}

// set grows the series with sentinel points up to and including seq, then
// stores y at seq. Positions below the current length are overwritten in
// place, the series is never truncated.
func (s *Series) set(seq uint64, y float64) {
	for n := uint64(len(*s)); n <= seq; n++ {
		*s = append(*s, Point{X: float64(n), Y: Sentinel})
	}
	(*s)[seq].Y = y
}

// Store holds the received and dropped series for one session. It has a
// single owner and does no locking.
type Store struct {
	received Series
	dropped  Series
}

func NewStore() *Store {
	return &Store{}
}

// Record places an event in the series matching its kind. Sequence numbers
// above MaxSequence are rejected and leave the store untouched.
func (s *Store) Record(e packet.Event) error {
	if e.Sequence() > MaxSequence {
		return fmt.Errorf("%w: %d", ErrSequenceRange, e.Sequence())
	}

	switch e := e.(type) {
	case packet.Received:
		s.received.set(e.Seq, e.RTT)
	case packet.Dropped:
		s.dropped.set(e.Seq, e.RTT)
	}
	return nil
}

// Seen reports whether the received series already holds seq.
func (s *Store) Seen(seq uint64) bool {
	return s.received.Observed(seq)
}

// Snapshot returns copies of both series for rendering.
func (s *Store) Snapshot() (received, dropped Series) {
	received = make(Series, len(s.received))
	copy(received, s.received)
	dropped = make(Series, len(s.dropped))
	copy(dropped, s.dropped)
	return
}
