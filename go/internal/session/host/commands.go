package host

import (
	"context"
)

type commandKind int

const (
	cmdPause commandKind = iota + 1
	cmdResume
	cmdTogglePause
	cmdNext
	cmdPrevious
	cmdEnd
)

func (k commandKind) String() string {
	switch k {
	case cmdPause:
		return "pause"
	case cmdResume:
		return "resume"
	case cmdTogglePause:
		return "toggle_pause"
	case cmdNext:
		return "next"
	case cmdPrevious:
		return "previous"
	case cmdEnd:
		return "end"
	default:
		return "unknown"
	}
}

type command struct {
	kind  commandKind
	reply chan bool
}

func (s *Session) handle(cmd command) {
	var ok bool
	switch cmd.kind {
	case cmdPause:
		ok = s.pause()
	case cmdResume:
		ok = s.resume()
	case cmdTogglePause:
		if s.state == StatePaused {
			ok = s.resume()
		} else {
			ok = s.pause()
		}
	case cmdNext:
		ok = s.navigate(s.timeline.Advance)
	case cmdPrevious:
		ok = s.navigate(s.timeline.Previous)
	case cmdEnd:
		ok = !s.state.Terminal()
		s.end("operator")
	}

	s.logger.Debug().
		Str("command", cmd.kind.String()).
		Bool("applied", ok).
		Msg("command handled")
	cmd.reply <- ok
}

// do sends a command to the loop and waits for its result. The bool is false
// when the command was a no-op in the current state.
func (s *Session) do(ctx context.Context, kind commandKind) (bool, error) {
	cmd := command{kind: kind, reply: make(chan bool, 1)}

	select {
	case s.commands <- cmd:
	case <-s.done:
		return false, ErrSessionOver
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case ok := <-cmd.reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *Session) Pause(ctx context.Context) (bool, error)       { return s.do(ctx, cmdPause) }
func (s *Session) Resume(ctx context.Context) (bool, error)      { return s.do(ctx, cmdResume) }
func (s *Session) TogglePause(ctx context.Context) (bool, error) { return s.do(ctx, cmdTogglePause) }
func (s *Session) Next(ctx context.Context) (bool, error)        { return s.do(ctx, cmdNext) }
func (s *Session) Previous(ctx context.Context) (bool, error)    { return s.do(ctx, cmdPrevious) }

// End broadcasts END_SESSION, closes every channel and waits for the loop to exit.
func (s *Session) End(ctx context.Context) error {
	if _, err := s.do(ctx, cmdEnd); err != nil {
		return err
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
