package llm

import "context"

// Fragment is one piece of a streaming reply. A Fragment with a non-nil Err
// is terminal; the channel is closed right after it.
type Fragment struct {
	Content string
	Err     error
}

// Stream is a single-pass, non-restartable sequence of reply fragments.
// Fragments arrive in provider order. The consumer must drain Fragments()
// or call Cancel to release the underlying connection.
type Stream struct {
	fragments chan Fragment
	cancel    context.CancelFunc
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		fragments: make(chan Fragment, 16),
		cancel:    cancel,
	}
}

// Fragments returns the fragment channel. It is closed on completion, after
// a terminal error fragment, or after Cancel.
func (s *Stream) Fragments() <-chan Fragment {
	return s.fragments
}

// Cancel aborts the stream. Safe to call after the stream has finished.
func (s *Stream) Cancel() {
	s.cancel()
}

// send delivers a fragment unless the producer context is done.
func (s *Stream) send(ctx context.Context, f Fragment) bool {
	select {
	case s.fragments <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// fail delivers a terminal error fragment and closes the channel.
func (s *Stream) fail(ctx context.Context, err error) {
	s.send(ctx, Fragment{Err: err})
	close(s.fragments)
}

// finish closes the channel after a normal completion signal.
func (s *Stream) finish() {
	close(s.fragments)
}

// NewBufferedStream returns an already-completed stream pre-filled with the
// given fragments. Used for synthesized replies and test fakes.
func NewBufferedStream(fragments ...Fragment) *Stream {
	s := &Stream{
		fragments: make(chan Fragment, len(fragments)),
		cancel:    func() {},
	}
	for _, f := range fragments {
		s.fragments <- f
	}
	close(s.fragments)
	return s
}

// Collect drains a stream and concatenates its fragments. Fragment order is
// preserved, so for a deterministic request the result equals the output of
// the synchronous path.
func Collect(s *Stream) (string, error) {
	defer s.Cancel()

	var out []byte
	for f := range s.Fragments() {
		if f.Err != nil {
			return string(out), f.Err
		}
		out = append(out, f.Content...)
	}
	return string(out), nil
}
