package procs

import (
	"bytes"
	"testing"
)

func TestIdentityPassesThrough(t *testing.T) {
	out, err := Identity{}.Process([]byte("hello"))
	if err != nil || len(out) != 1 || string(out[0]) != "hello" {
		t.Fatalf("unexpected identity output: %v %v", out, err)
	}
}

func TestLineSplitDropsEmptyLines(t *testing.T) {
	out, err := LineSplit{}.Process([]byte("a\n\nb\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || string(out[0]) != "a" || string(out[1]) != "b" {
		t.Fatalf("unexpected lines: %v", out)
	}
}

func TestGzipRoundTrip(t *testing.T) {
	encoded, err := GzipEncode{}.Process([]byte("payload"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Gzip{}.Process(encoded[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || string(decoded[0]) != "payload" {
		t.Fatalf("round trip mismatch: %v", decoded)
	}
}

func TestBase64RoundTrip(t *testing.T) {
	encoded, err := Base64Encode{}.Process([]byte("payload"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Base64Decode{}.Process(encoded[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded[0], []byte("payload")) {
		t.Fatalf("round trip mismatch: %v", decoded)
	}
}

func TestBase64DecodeInvalidInput(t *testing.T) {
	if _, err := Base64Decode{}.Process([]byte("not base64!!")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestChainComposesInOrder(t *testing.T) {
	c := Chain{LineSplit{}, Base64Decode{}}
	a, _ := Base64Encode{}.Process([]byte("one"))
	b, _ := Base64Encode{}.Process([]byte("two"))
	input := append(append([]byte{}, a[0]...), append([]byte("\n"), b[0]...)...)
	out, err := c.Process(input)
	if err != nil {
		t.Fatalf("chain process: %v", err)
	}
	if len(out) != 2 || string(out[0]) != "one" || string(out[1]) != "two" {
		t.Fatalf("unexpected chain output: %v", out)
	}
}

func TestLookupKnownNames(t *testing.T) {
	cases := map[string]Processor{
		"":              Identity{},
		"raw":           Identity{},
		"lines":         LineSplit{},
		"gzip":          Gzip{},
		"gzip-encode":   GzipEncode{},
		"base64":        Base64Decode{},
		"base64-encode": Base64Encode{},
	}
	for name, want := range cases {
		got, err := Lookup(name)
		if err != nil {
			t.Fatalf("lookup %q: %v", name, err)
		}
		if got != want {
			t.Fatalf("lookup %q: got %T want %T", name, got, want)
		}
	}
}

func TestLookupUnknownName(t *testing.T) {
	if _, err := Lookup("no-such-processor"); err == nil {
		t.Fatalf("expected error for unknown processor")
	}
}

func TestBuildChain(t *testing.T) {
	chain, err := Build([]string{"lines", "base64"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2-stage chain, got %d", len(chain))
	}
}

func TestBuildChainUnknownProcessor(t *testing.T) {
	if _, err := Build([]string{"nope"}); err == nil {
		t.Fatalf("expected error building chain with unknown processor")
	}
}
