package packet

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	seqPrefix     = "icmp_seq="
	timePrefix    = "time="
	timeLTPrefix  = "time<"
	timeoutMarker = "Request"
)

var (
	// ErrEndOfStream is returned for the blank line or the statistics block
	// that ping prints once it stops sending.
	ErrEndOfStream = errors.New("end of probe stream")

	ErrMissingSequence = errors.New("no icmp_seq field")
	ErrMissingLatency  = errors.New("no time field")
	ErrNegativeLatency = errors.New("negative round-trip time")
)

// ParseError describes a line that could not be turned into an Event. It is
// never fatal, callers count it and move on to the next line.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable probe line %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes one line of ping output.
//
// A blank line or one starting with '-' ends the stream. A line whose first
// token is "Request" is a timeout notice and yields Dropped with the sequence
// number taken from its last token. Anything else has to carry both an
// icmp_seq= and a time= token to yield Received.
func Parse(line string) (Event, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" || strings.HasPrefix(line, "-") {
		return nil, ErrEndOfStream
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, &ParseError{Line: line, Err: ErrMissingSequence}
	}

	if fields[0] == timeoutMarker {
		return parseTimeout(line, fields)
	}

	var (
		seq, rtt       string
		hasSeq, hasRTT bool
	)
	for _, f := range fields {
		switch {
		case strings.HasPrefix(f, seqPrefix):
			seq, hasSeq = f[len(seqPrefix):], true
		case strings.HasPrefix(f, timePrefix):
			rtt, hasRTT = f[len(timePrefix):], true
		case strings.HasPrefix(f, timeLTPrefix):
			rtt, hasRTT = f[len(timeLTPrefix):], true
		}
	}
	if !hasSeq {
		return nil, &ParseError{Line: line, Err: ErrMissingSequence}
	}
	if !hasRTT {
		return nil, &ParseError{Line: line, Err: ErrMissingLatency}
	}

	n, err := parseSeq(seq)
	if err != nil {
		return nil, &ParseError{Line: line, Err: err}
	}
	ms, err := parseRTT(rtt)
	if err != nil {
		return nil, &ParseError{Line: line, Err: err}
	}

	return Received{Seq: n, RTT: ms}, nil
}

func parseTimeout(line string, fields []string) (Event, error) {
	last := fields[len(fields)-1]
	// Some builds print "icmp_seq=7" instead of "icmp_seq 7"
	last = strings.TrimPrefix(last, seqPrefix)
	n, err := parseSeq(last)
	if err != nil {
		return nil, &ParseError{Line: line, Err: err}
	}

	d := Dropped{Seq: n}
	for _, f := range fields {
		if strings.HasPrefix(f, timePrefix) {
			ms, err := parseRTT(f[len(timePrefix):])
			if err != nil {
				return nil, &ParseError{Line: line, Err: err}
			}
			d.RTT, d.HasRTT = ms, true
		}
	}

	return d, nil
}

func parseSeq(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sequence number: %w", err)
	}
	return n, nil
}

func parseRTT(s string) (float64, error) {
	s = strings.TrimSuffix(s, "ms")
	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("round-trip time: %w", err)
	}
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 0, fmt.Errorf("round-trip time: %w", strconv.ErrSyntax)
	}
	if ms < 0 {
		return 0, ErrNegativeLatency
	}
	return ms, nil
}
