package scheduler

import "io"

// sequencer writes per-node output in dispatch order. It is only used from
// the orchestrator goroutine.
type sequencer struct {
	w       io.Writer
	next    int
	pending map[int][]byte
	err     error
}

func newSequencer(w io.Writer) *sequencer {
	if w == nil {
		w = io.Discard
	}
	return &sequencer{w: w, pending: make(map[int][]byte)}
}

// deliver records the output of dispatch seq and flushes everything that is
// now in order. Nodes without output deliver nil.
func (s *sequencer) deliver(seq int, out []byte) {
	s.pending[seq] = out
	for {
		b, ok := s.pending[s.next]
		if !ok {
			return
		}
		delete(s.pending, s.next)
		s.next++
		if len(b) > 0 && s.err == nil {
			_, s.err = s.w.Write(b)
		}
	}
}
