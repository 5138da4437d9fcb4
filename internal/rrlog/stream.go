package rrlog

import (
	"fmt"
	"io"
)

// Sink receives records in log order.
type Sink interface {
	WriteRecord(rec *Record) error
	io.Closer
}

// Stream stamps records with the current timeline state and hands them to
// a sink. It is not safe for concurrent use.
type Stream struct {
	sink   Sink
	static bool
	times  []TimePoint
}

// NewStream returns a stream writing to sink. When static is set every
// record is marked static and timelines are ignored.
func NewStream(sink Sink, static bool) *Stream {
	return &Stream{sink: sink, static: static}
}

// SetTimeSeconds sets the named timeline to a duration in seconds for all
// following records.
func (s *Stream) SetTimeSeconds(timeline string, seconds float64) {
	s.set(TimePoint{Timeline: timeline, Kind: TimeSeconds, Seconds: seconds})
}

// SetTimeSequence sets the named timeline to a sequence number for all
// following records.
func (s *Stream) SetTimeSequence(timeline string, seq int64) {
	s.set(TimePoint{Timeline: timeline, Kind: TimeSequence, Sequence: seq})
}

func (s *Stream) set(p TimePoint) {
	for i := range s.times {
		if s.times[i].Timeline == p.Timeline {
			s.times[i] = p
			return
		}
	}
	s.times = append(s.times, p)
}

// Log writes one record at path.
func (s *Stream) Log(path string, data Archetype) error {
	rec := &Record{EntityPath: path, Static: s.static, Data: data}
	if !s.static && len(s.times) > 0 {
		rec.Timelines = append([]TimePoint(nil), s.times...)
	}
	if err := s.sink.WriteRecord(rec); err != nil {
		return fmt.Errorf("rrlog: log %s: %w", path, err)
	}
	return nil
}

// Close closes the sink.
func (s *Stream) Close() error {
	return s.sink.Close()
}

// Recorder is an in-memory sink.
type Recorder struct {
	Records []*Record
	Closed  bool
}

func (r *Recorder) WriteRecord(rec *Record) error {
	r.Records = append(r.Records, rec)
	return nil
}

func (r *Recorder) Close() error {
	r.Closed = true
	return nil
}
