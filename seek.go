package fffr

// Seek jumps to the nearest frame at or after timeUS, per spec.md
// §4.5's public contract ("rounds to nearest frame ≥ target"). It
// returns false for an invalid target or if the underlying seek
// machinery fails. An out-of-range target is rejected before the
// buffers are touched; a failure later in a seek (a refill error, or
// end of file before the target) leaves the buffers as far as that
// seek got, and later valid seeks still work.
func (s *Stream) Seek(timeUS int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.tmap.TimeToFrame(timeUS)
	snapped := s.tmap.FrameToTime(idx)
	if snapped < timeUS {
		idx++
		snapped = s.tmap.FrameToTime(idx)
	}
	return s.seekLocked(snapped)
}

// SeekFrame seeks to frame_to_time(index), per spec.md §4.5.
func (s *Stream) SeekFrame(index int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seekLocked(s.tmap.FrameToTime(index))
}

// seekLocked implements the four-case seek policy of spec.md §4.5, in
// order of preference: in-buffer, short-forward, long-seek, invalid.
func (s *Stream) seekLocked(t int64) bool {
	if t < 0 || (s.haveDuration && t >= s.durationUS) {
		s.log.Warningf("%v: seek target %d outside [0, %d)", ErrSeekOutOfRange, t, s.durationUS)
		return false // case 4: invalid
	}

	if back, ok := s.buf.Back(); ok {
		if head, ok := s.buf.Peek(); ok {
			if head.PTS <= t && t <= back.PTS {
				_, ok := s.advanceForwardLocked(t) // case 1: in-buffer
				return ok
			}
		}

		delta := int64(s.buf.Len() - 1)
		if delta < 0 {
			delta = 0
		}
		threshold := back.PTS + (s.tmap.FrameToTime(2*(delta+int64(s.bufferLength))) - s.tmap.FrameToTime(0))
		if back.PTS < t && t <= threshold {
			_, ok := s.advanceForwardLocked(t) // case 2: short forward, never flushes
			return ok
		}
	}

	return s.longSeekLocked(t) // case 3 (or case 4 discovered mid-seek)
}

// advanceForwardLocked walks the head cursor forward, refilling via
// fillPongLocked/Swap as needed, until the head frame's timestamp is
// at or past t or the stream is exhausted, and returns that frame
// without popping it (batch retrieval relies on this to support
// repeated/duplicate targets landing on the same frame). This single
// routine serves both the in-buffer and short-forward seek cases and
// the batch-retrieval walk: the caller has already established that
// the target doesn't require a decoder seek.
func (s *Stream) advanceForwardLocked(t int64) (*Frame, bool) {
	for {
		fr, ok := s.buf.Peek()
		if !ok {
			if err := s.fillPongLocked(0, false); err != nil {
				s.log.Warningf("advance to %d: fill failed: %v", t, err)
				return nil, false
			}
			s.buf.Swap()
			fr, ok = s.buf.Peek()
			if !ok {
				return nil, false // end of file before reaching t
			}
		}
		if fr.PTS >= t {
			return fr, true
		}
		s.buf.Pop()
	}
}

// longSeekLocked is spec.md §4.5 case 3: reposition the demuxer,
// optionally flush the decoder, clear both buffers, and refill from
// the new position, discarding anything decoded before t.
func (s *Stream) longSeekLocked(t int64) bool {
	back, haveBack := s.buf.Back()
	skipReset := s.noBufferFlush && haveBack && back.PTS < t

	streamTS := s.tmap.TimeToStreamTS(t)
	if !s.demuxer.Seek(streamTS) {
		return false
	}

	if !skipReset {
		s.decoder.Reset()
	}

	s.buf.Clear()
	s.eofDemux = false
	s.eofDrained = false

	discardCodecTS := s.tmap.TimeToCodecTS(t)
	if err := s.fillPongLocked(discardCodecTS, true); err != nil {
		s.log.Warningf("long seek to %d: refill failed: %v", t, err)
		return false
	}
	s.buf.Swap()

	_, ok := s.advanceForwardLocked(t)
	return ok
}
