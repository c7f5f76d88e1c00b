package bio

// Stream holds the inbound bytes a ReadFunc left unconsumed, so the next read
// can hand it one contiguous slice. A read that is consumed completely never
// touches the stream's buffer.
type Stream struct {
	b []byte
}

// NewStream returns a stream that starts out holding a copy of data.
func NewStream(data []byte) *Stream {
	s := &Stream{}
	s.b = append(s.b, data...)
	return s
}

// Len reports how many carried-over bytes are waiting.
func (s *Stream) Len() int { return len(s.b) }

// Reset drops the carried-over bytes but keeps the buffer for reuse.
func (s *Stream) Reset() { s.b = s.b[:0] }

// Begin returns the bytes to process: packet alone when nothing is carried
// over, otherwise the carried bytes followed by packet.
func (s *Stream) Begin(packet []byte) []byte {
	if len(s.b) == 0 {
		return packet
	}
	s.b = append(s.b, packet...)
	return s.b
}

// End keeps rest, the unprocessed tail of the slice Begin returned, for the
// next Begin.
func (s *Stream) End(rest []byte) {
	switch {
	case len(rest) == 0:
		s.b = s.b[:0]
	case len(rest) == len(s.b):
		// nothing consumed from the carried bytes
	default:
		// copy handles rest aliasing the tail of s.b
		n := copy(s.b[:cap(s.b)], rest)
		if n < len(rest) {
			s.b = append(s.b[:n], rest[n:]...)
			return
		}
		s.b = s.b[:n]
	}
}
