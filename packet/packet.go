package packet

import "fmt"

// Event is a single parsed outcome of an echo request, either Received or Dropped.
type Event interface {
	// Sequence is the icmp_seq the probing tool reported for the packet.
	Sequence() uint64
	fmt.Stringer

	isEvent()
}

// Received represents a reply that came back from the target.
type Received struct {
	// Seq is the ICMP sequence number.
	Seq uint64

	// RTT is the round-trip time in milliseconds.
	RTT float64
}

// Dropped represents a request the tool gave up waiting on.
type Dropped struct {
	// Seq is the ICMP sequence number.
	Seq uint64

	// RTT is only set when the timeout notice carried a time= field, it is
	// zero otherwise.
	RTT float64

	// HasRTT reports whether RTT came from the notice.
	HasRTT bool
}

func (r Received) Sequence() uint64 { return r.Seq }
func (d Dropped) Sequence() uint64  { return d.Seq }

func (r Received) String() string {
	return fmt.Sprintf("received seq=%d time=%.3fms", r.Seq, r.RTT)
}

func (d Dropped) String() string {
	if d.HasRTT {
		return fmt.Sprintf("dropped seq=%d time=%.3fms", d.Seq, d.RTT)
	}
	return fmt.Sprintf("dropped seq=%d", d.Seq)
}

func (Received) isEvent() {}
func (Dropped) isEvent()  {}
