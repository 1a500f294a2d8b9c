package ramp

import (
	"bufio"
	"context"
	"io"
)

// Stdin is the "stdin" on-ramp kind of original_source/src/main.rs: each
// line of stdin becomes one raw frame.
type Stdin struct {
	Reader io.Reader // defaults to os.Stdin at construction by the caller
}

func (s *Stdin) Start(ctx context.Context, out chan<- []byte) error {
	sc := bufio.NewScanner(s.Reader)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := append([]byte(nil), sc.Bytes()...)
		select {
		case out <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}

func (s *Stdin) Shutdown(_ context.Context) error { return nil }

// Stdout is the "stdout" off-ramp kind: each frame becomes one printed line.
type Stdout struct {
	Writer io.Writer // defaults to os.Stdout at construction by the caller
}

func (s *Stdout) OnEvent(_ context.Context, _ string, raw []byte) error {
	_, err := s.Writer.Write(append(append([]byte(nil), raw...), '\n'))
	return err
}

func (s *Stdout) DefaultCodec() string        { return "json" }
func (s *Stdout) Shutdown(_ context.Context) error { return nil }

// Null is the "null" off-ramp kind: discards every event, used as the
// default drop-off-ramp per main.rs's CLI defaults.
type Null struct{}

func (Null) OnEvent(_ context.Context, _ string, _ []byte) error { return nil }
func (Null) DefaultCodec() string                                { return "json" }
func (Null) Shutdown(_ context.Context) error                    { return nil }
