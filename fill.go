package fffr

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/pulsejet/fffr/internal/decode"
)

// PeekNext returns the frame the next GetNext call would return,
// without advancing the buffer's head. A nil, nil result means normal
// end-of-file; a non-nil error means the pipeline failed to make
// progress (spec.md §4.5, §7).
func (s *Stream) PeekNext() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peekNextLocked()
}

// GetNext returns peekNextLocked's result and, if it produced a frame,
// advances the head cursor past it.
func (s *Stream) GetNext() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fr, err := s.peekNextLocked()
	if err != nil || fr == nil {
		return fr, err
	}
	s.buf.Pop()
	return fr, nil
}

// peekNextLocked implements spec.md §4.5's three-step peek_next:
// return the buffered head if one exists, otherwise fill pong and
// swap it in, otherwise report end-of-file.
func (s *Stream) peekNextLocked() (*Frame, error) {
	if fr, ok := s.buf.Peek(); ok {
		return fr, nil
	}

	if err := s.fillPongLocked(0, false); err != nil {
		return nil, err
	}
	s.buf.Swap()

	fr, ok := s.buf.Peek()
	if !ok {
		return nil, nil
	}
	return fr, nil
}

// fillPongLocked drives the demux→decode→filter pipeline until pong
// holds at least bufferLength frames or the demuxer is fully drained,
// per spec.md §4.5's fill_pong loop. discardUntil (codec time base) is
// the pts cutoff below which a constructed frame is
// dropped instead of appended, used after a seek lands on a preceding
// keyframe; pass hasDiscard=false to disable it.
func (s *Stream) fillPongLocked(discardUntil int64, hasDiscard bool) error {
	if s.eofDrained {
		return nil
	}

	packetsWithoutFrame := 0
	// seekThreshold is EffectiveSeekThreshold(codecDelay): codec delay
	// plus buffer length, which doubles as the decode-stall bound
	// (spec.md §4.5 "more than D + slack packets").
	stallBound := s.seekThreshold
	if stallBound < decodeStallSlack {
		stallBound = decodeStallSlack
	}

	for s.buf.PongLen() < s.bufferLength {
		if s.eofDemux {
			n, drained, err := s.drainDecoderLocked(discardUntil, hasDiscard)
			if err != nil {
				return err
			}
			if drained || n == 0 {
				s.eofDrained = true
				return nil
			}
			continue
		}

		pkt, err := s.demuxer.ReadPacket()
		if err != nil {
			if errors.Is(err, errEndOfFile) {
				s.eofDemux = true
				if ferr := s.decoder.SendFlush(); ferr != nil {
					return fmt.Errorf("stream: flush: %w", ferr)
				}
				continue
			}
			return fmt.Errorf("stream: read packet: %w", err)
		}

		if err := s.decoder.SendPacket(pkt); err != nil {
			return fmt.Errorf("stream: send packet: %w", err)
		}

		n, drained, err := s.drainDecoderLocked(discardUntil, hasDiscard)
		if err != nil {
			return err
		}
		if drained {
			s.eofDrained = true
			return nil
		}

		if n > 0 {
			packetsWithoutFrame = 0
			continue
		}
		packetsWithoutFrame++
		if int64(packetsWithoutFrame) > stallBound {
			return fmt.Errorf("%w: %d packets without a frame (bound %d)",
				ErrDecodeStall, packetsWithoutFrame, stallBound)
		}
	}
	return nil
}

// drainDecoderLocked pulls every frame currently available from the
// decoder, routes each through the filter chain, and appends
// non-discarded output to pong. It reports how many frames were
// appended and whether the decoder reported Drained (no more frames
// will ever come, which only happens after a flush).
func (s *Stream) drainDecoderLocked(discardUntil int64, hasDiscard bool) (appended int, drained bool, err error) {
	for {
		outcome, rerr := s.decoder.ReceiveFrame(s.decFrame)
		if rerr != nil {
			return appended, false, fmt.Errorf("stream: decode: %w", rerr)
		}
		switch outcome {
		case decode.OutcomeNeedMore:
			return appended, false, nil
		case decode.OutcomeDrained:
			return appended, true, nil
		case decode.OutcomeFrame:
			n, ferr := s.processDecodedFrameLocked(discardUntil, hasDiscard)
			if ferr != nil {
				return appended, false, ferr
			}
			appended += n
		}
	}
}

// processDecodedFrameLocked routes one decoded frame through the
// filter chain (or directly, for a pass-through chain, since
// filter.Chain.Retrieve never forwards frames when passThrough is
// set) and appends whatever emerges to pong.
func (s *Stream) processDecodedFrameLocked(discardUntil int64, hasDiscard bool) (int, error) {
	if s.chain.IsPassThrough() {
		n, err := s.appendFrameLocked(s.decFrame, discardUntil, hasDiscard)
		s.decFrame.Unref()
		return n, err
	}

	if err := s.chain.Submit(s.decFrame); err != nil {
		s.decFrame.Unref()
		return 0, fmt.Errorf("stream: filter submit: %w", err)
	}
	s.decFrame.Unref()

	appended := 0
	for {
		outcome, err := s.chain.Retrieve(s.filtFrame)
		if err != nil {
			return appended, fmt.Errorf("stream: filter retrieve: %w", err)
		}
		switch outcome {
		case decode.OutcomeNeedMore, decode.OutcomeDrained:
			return appended, nil
		case decode.OutcomeFrame:
			n, err := s.appendFrameLocked(s.filtFrame, discardUntil, hasDiscard)
			s.filtFrame.Unref()
			if err != nil {
				return appended, err
			}
			appended += n
		}
	}
}

// appendFrameLocked computes af's final presentation microseconds and
// frame index from its pts via the TimeMap (the decoder's best-effort
// timestamp is not consulted), then
// appends a Frame (host- or device-resident, per the decoder's
// residency) to pong — unless discardUntil applies.
func (s *Stream) appendFrameLocked(af *astiav.Frame, discardUntil int64, hasDiscard bool) (int, error) {
	codecTS := af.Pts()
	if hasDiscard && codecTS != astiav.NoPtsValue && codecTS < discardUntil {
		return 0, nil
	}

	presentationUS := s.tmap.CodecTSToTime(codecTS)
	index := s.tmap.TimeToFrame(presentationUS)

	var fr *Frame
	if s.hardware {
		fr = newDeviceFrame(af, presentationUS, index, s.handles)
	} else {
		fr = newHostFrame(af, presentationUS, index, s.handles)
	}
	s.buf.AppendPong(fr)
	return 1, nil
}
