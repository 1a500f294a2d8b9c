package ramp

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fluxcore/fluxcore/pkg/codec"
	"github.com/fluxcore/fluxcore/pkg/procs"
	"github.com/fluxcore/fluxcore/pkg/url"
)

func onRampURL(name string) url.TremorURL {
	return url.TremorURL{Host: "localhost", Type: url.OnRamp, Artefact: name, Instance: "01"}
}

func offRampURL(name string) url.TremorURL {
	return url.TremorURL{Host: "localhost", Type: url.OffRamp, Artefact: name, Instance: "01"}
}

func makeUpstream(raw string) map[url.TremorURL][]url.TremorURL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return map[url.TremorURL][]url.TremorURL{u: nil}
}

func TestStdinStartFramesLines(t *testing.T) {
	s := &Stdin{Reader: strings.NewReader("one\ntwo\nthree\n")}
	out := make(chan []byte, 8)
	if err := s.Start(context.Background(), out); err != nil {
		t.Fatalf("start: %v", err)
	}
	close(out)
	var got []string
	for f := range out {
		got = append(got, string(f))
	}
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestStdoutOnEventWritesLine(t *testing.T) {
	var buf bytes.Buffer
	s := &Stdout{Writer: &buf}
	if err := s.OnEvent(context.Background(), "in", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("on event: %v", err)
	}
	if buf.String() != "{\"a\":1}\n" {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestNullDiscards(t *testing.T) {
	n := Null{}
	if err := n.OnEvent(context.Background(), "in", []byte("anything")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.DefaultCodec() != "json" {
		t.Fatalf("expected json default codec")
	}
}

func TestFileOnRampReadsLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frames.txt")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f := &File{Path: path}
	out := make(chan []byte, 8)
	if err := f.Start(context.Background(), out); err != nil {
		t.Fatalf("start: %v", err)
	}
	close(out)
	var got []string
	for frame := range out {
		got = append(got, string(frame))
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected frames: %v", got)
	}
}

func TestFileSinkAppendsLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	sink := &FileSink{Path: path}
	if err := sink.OnEvent(context.Background(), "in", []byte("x")); err != nil {
		t.Fatalf("on event: %v", err)
	}
	if err := sink.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "x\n" {
		t.Fatalf("unexpected file contents: %q", data)
	}
}

func TestOnRampAddressFansOutToMultipleDests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := NewOnRampAddress(&Stdin{Reader: strings.NewReader("hello\n")})
	a := make(chan []byte, 1)
	b := make(chan []byte, 1)
	addr.RegisterDest("a", a)
	addr.RegisterDest("b", b)
	if err := addr.Link(ctx, nil); err != nil {
		t.Fatalf("link: %v", err)
	}

	select {
	case f := <-a:
		if string(f) != "hello" {
			t.Fatalf("unexpected frame on a: %q", f)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame on a")
	}
	select {
	case f := <-b:
		if string(f) != "hello" {
			t.Fatalf("unexpected frame on b: %q", f)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame on b")
	}
}

func TestOffRampAddressDeliverRunsPostChain(t *testing.T) {
	var buf bytes.Buffer
	chain, err := procs.Build([]string{"base64-encode"})
	if err != nil {
		t.Fatalf("build chain: %v", err)
	}
	addr := NewOffRampAddress(&Stdout{Writer: &buf}, codec.JSON{}, chain)
	if err := addr.Deliver(context.Background(), "in", []byte("payload")); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !strings.Contains(buf.String(), "cGF5bG9hZA==") {
		t.Fatalf("expected base64-encoded payload in output, got %q", buf.String())
	}
}

func TestOffRampAddressUnlinkReportsEmpty(t *testing.T) {
	addr := NewOffRampAddress(Null{}, codec.JSON{}, nil)
	if err := addr.Link(context.Background(), makeUpstream("tremor://localhost/pipeline/p/01")); err != nil {
		t.Fatalf("link: %v", err)
	}
	empty, err := addr.Unlink(context.Background(), makeUpstream("tremor://localhost/pipeline/p/01"))
	if err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if !empty {
		t.Fatalf("expected empty after removing the only upstream")
	}
}

func TestValidateRampDeclExactlyOneOf(t *testing.T) {
	if err := validateRampDecl("", ""); err == nil {
		t.Fatalf("expected error when neither binding_type nor peer set")
	}
	if err := validateRampDecl("stdin", "tremor://x/offramp/y"); err == nil {
		t.Fatalf("expected error when both binding_type and peer set")
	}
	if err := validateRampDecl("stdin", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewOnRampSpawnerDispatchesStdin(t *testing.T) {
	spawner := NewOnRampSpawner()
	addr, err := spawner(context.Background(), OnRampDecl{BindingType: "stdin"}, onRampURL("in"))
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if _, ok := addr.(*OnRampAddress); !ok {
		t.Fatalf("expected *OnRampAddress, got %T", addr)
	}
}

func TestNewOnRampSpawnerRejectsPeer(t *testing.T) {
	spawner := NewOnRampSpawner()
	_, err := spawner(context.Background(), OnRampDecl{Peer: "tremor://x/offramp/y"}, onRampURL("in"))
	if err == nil {
		t.Fatalf("expected error for linked-transport on-ramp")
	}
}

func TestNewOffRampSpawnerDispatchesStdoutAndNull(t *testing.T) {
	spawner := NewOffRampSpawner(codec.NewRegistry())
	for _, kind := range []string{"stdout", "null"} {
		addr, err := spawner(context.Background(), OffRampDecl{BindingType: kind}, offRampURL(kind))
		if err != nil {
			t.Fatalf("spawn %s: %v", kind, err)
		}
		if _, ok := addr.(*OffRampAddress); !ok {
			t.Fatalf("expected *OffRampAddress for %s, got %T", kind, addr)
		}
	}
}

func TestNewOffRampSpawnerUnknownKind(t *testing.T) {
	spawner := NewOffRampSpawner(codec.NewRegistry())
	if _, err := spawner(context.Background(), OffRampDecl{BindingType: "bogus"}, offRampURL("bogus")); err == nil {
		t.Fatalf("expected error for unknown off-ramp kind")
	}
}
