package ramp

import (
	"bufio"
	"context"
	"fmt"
	"os"
)

// File is the "file" on-ramp kind of original_source/src/main.rs: reads an
// entire file line-by-line as raw frames, then (unless Tail is set) stops.
type File struct {
	Path string
	Tail bool
}

func (f *File) Start(ctx context.Context, out chan<- []byte) error {
	fh, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("ramp: open %s: %w", f.Path, err)
	}
	defer fh.Close()

	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := append([]byte(nil), sc.Bytes()...)
		select {
		case out <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("ramp: read %s: %w", f.Path, err)
	}
	if !f.Tail {
		return nil
	}
	// Tail mode: block until cancellation once the file is exhausted,
	// matching an on-ramp driver's "runs until terminated" contract.
	<-ctx.Done()
	return ctx.Err()
}

func (f *File) Shutdown(_ context.Context) error { return nil }

// FileSink is an off-ramp driver appending one line per frame to Path,
// the write-side counterpart to File used by --off-ramp file configs.
type FileSink struct {
	Path string
	fh   *os.File
}

func (f *FileSink) open() error {
	if f.fh != nil {
		return nil
	}
	fh, err := os.OpenFile(f.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ramp: open %s: %w", f.Path, err)
	}
	f.fh = fh
	return nil
}

func (f *FileSink) OnEvent(_ context.Context, _ string, raw []byte) error {
	if err := f.open(); err != nil {
		return err
	}
	_, err := f.fh.Write(append(append([]byte(nil), raw...), '\n'))
	return err
}

func (f *FileSink) DefaultCodec() string { return "json" }

func (f *FileSink) Shutdown(_ context.Context) error {
	if f.fh == nil {
		return nil
	}
	return f.fh.Close()
}
