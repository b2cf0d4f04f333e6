package statistics

import (
	"encoding/json"
	"math"
	"time"

	"github.com/thetooth/pingchart/config"
	"github.com/thetooth/pingchart/packet"
)

// Statistics accumulates packet counts and round-trip times for a session.
type Statistics struct {
	// PacketsRecv is the number of replies received.
	PacketsRecv int

	// PacketsDropped is the number of timeout notices seen.
	PacketsDropped int

	// PacketsRecvDuplicates is the number of replies for a sequence number
	// that had already been answered.
	PacketsRecvDuplicates int

	// Round trip time statistics, in milliseconds
	lastRtt   float64
	minRtt    float64
	maxRtt    float64
	avgRtt    float64
	stdDevRtt float64
	stddevm2  float64
}

// Add folds one packet into the statistics. duplicate marks a reply whose
// sequence number was already recorded, those do not count towards the RTT.
func (s *Statistics) Add(e packet.Event, duplicate bool) {
	switch e := e.(type) {
	case packet.Dropped:
		s.PacketsDropped++
	case packet.Received:
		if duplicate {
			s.PacketsRecvDuplicates++
			return
		}
		s.updateRtt(e.RTT)
	}
}

func (s *Statistics) updateRtt(rtt float64) {
	s.PacketsRecv++
	s.lastRtt = rtt

	if s.PacketsRecv == 1 || rtt < s.minRtt {
		s.minRtt = rtt
	}

	if rtt > s.maxRtt {
		s.maxRtt = rtt
	}

	pktCount := float64(s.PacketsRecv)
	// welford's online method for stddev
	// https://en.wikipedia.org/wiki/Algorithms_for_calculating_variance#Welford's_online_algorithm
	delta := rtt - s.avgRtt
	s.avgRtt += delta / pktCount
	delta2 := rtt - s.avgRtt
	s.stddevm2 += delta * delta2

	s.stdDevRtt = math.Sqrt(s.stddevm2 / pktCount)
}

// PacketLoss is the percentage of probes that timed out.
func (s *Statistics) PacketLoss() float64 {
	total := s.PacketsRecv + s.PacketsDropped
	if total == 0 {
		return 0
	}
	return float64(s.PacketsDropped) / float64(total) * 100
}

func (s *Statistics) LastRtt() float64   { return s.lastRtt }
func (s *Statistics) MinRtt() float64    { return s.minRtt }
func (s *Statistics) MaxRtt() float64    { return s.maxRtt }
func (s *Statistics) AvgRtt() float64    { return s.avgRtt }
func (s *Statistics) StdDevRtt() float64 { return s.stdDevRtt }

// Summary is the JSON form printed when a headless session ends.
type Summary struct {
	Target      string `json:"target"`
	Session     string `json:"session"`
	State       string `json:"state"`
	ParseErrors int    `json:"parse_errors"`

	PacketsRecv           int             `json:"packets_recv"`
	PacketsDropped        int             `json:"packets_dropped"`
	PacketsRecvDuplicates int             `json:"packets_recv_dup"`
	PacketLoss            float64         `json:"packet_loss"`
	MinRtt                config.Interval `json:"min_rtt"`
	MaxRtt                config.Interval `json:"max_rtt"`
	AvgRtt                config.Interval `json:"avg_rtt"`
	StdDevRtt             config.Interval `json:"std_dev_rtt"`
	LastRTT               config.Interval `json:"last_rtt"`
}

// Build fills the packet fields of a Summary.
func Build(s Statistics) (sum Summary) {
	sum = Summary{
		PacketsRecv:           s.PacketsRecv,
		PacketsDropped:        s.PacketsDropped,
		PacketsRecvDuplicates: s.PacketsRecvDuplicates,
		PacketLoss:            s.PacketLoss(),
		MinRtt:                interval(s.minRtt),
		MaxRtt:                interval(s.maxRtt),
		AvgRtt:                interval(s.avgRtt),
		StdDevRtt:             interval(s.stdDevRtt),
		LastRTT:               interval(s.lastRtt),
	}

	return
}

func (s Summary) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func interval(ms float64) config.Interval {
	return config.Interval{Duration: time.Duration(ms * float64(time.Millisecond))}
}
