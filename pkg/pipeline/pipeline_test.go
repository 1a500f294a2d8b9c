package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fluxcore/fluxcore/pkg/event"
	"github.com/fluxcore/fluxcore/pkg/value"
)

func jsonParse(raw []byte) (event.Event, error) {
	v, err := value.Decode(raw)
	if err != nil {
		return event.Event{}, err
	}
	return event.New(1, 0, v), nil
}

func TestParserFailureRoutesToDrop(t *testing.T) {
	p := New(jsonParse, ConstantClassifier("c"), PassGrouper{}, PassLimiter{})
	r := p.Process(context.Background(), []byte("not json"))
	if r.ToPrimary || r.DropStage != "parser" {
		t.Fatalf("expected parser drop, got %+v", r)
	}
}

func TestClassifierNoClassRoutesToDrop(t *testing.T) {
	noClass := ScriptClassifier(func(e event.Event) (value.Value, error) {
		return value.Object(), nil // no "class" field
	})
	p := New(jsonParse, noClass, PassGrouper{}, PassLimiter{})
	r := p.Process(context.Background(), []byte(`{"a":1}`))
	if r.ToPrimary || r.DropStage != "classifier" {
		t.Fatalf("expected classifier drop, got %+v", r)
	}
}

func TestFullPathToPrimary(t *testing.T) {
	p := New(jsonParse, ConstantClassifier("ok"), PassGrouper{}, PassLimiter{})
	r := p.Process(context.Background(), []byte(`{"a":1}`))
	if !r.ToPrimary {
		t.Fatalf("expected primary, got %+v", r)
	}
	cls, _ := r.Event.MetaGet("class")
	if s, _ := cls.AsStr(); s != "ok" {
		t.Fatalf("expected class meta 'ok', got %v", cls)
	}
}

func TestTokenBucketGrouperAdmitsThenDrops(t *testing.T) {
	g := NewTokenBucketGrouper(map[string][]Window{
		"c": {{Name: "w", Rate: 0, Burst: 2}},
	})
	now := time.Now()
	if g.Admit("c", "", now) != Keep {
		t.Fatalf("expected first admit")
	}
	if g.Admit("c", "", now) != Keep {
		t.Fatalf("expected second admit (burst=2)")
	}
	if g.Admit("c", "", now) != Drop {
		t.Fatalf("expected third to drop, zero refill rate")
	}
}

func TestTokenBucketGrouperRefills(t *testing.T) {
	g := NewTokenBucketGrouper(map[string][]Window{
		"c": {{Name: "w", Rate: 10, Burst: 1}},
	})
	now := time.Now()
	if g.Admit("c", "", now) != Keep {
		t.Fatalf("expected first admit")
	}
	if g.Admit("c", "", now) != Drop {
		t.Fatalf("expected immediate second to drop")
	}
	later := now.Add(200 * time.Millisecond) // 10 tok/s * 0.2s = 2 tokens, clamped to burst 1
	if g.Admit("c", "", later) != Keep {
		t.Fatalf("expected admit after refill window")
	}
}

func TestTokenBucketGrouperAllWindowsMustAdmit(t *testing.T) {
	g := NewTokenBucketGrouper(map[string][]Window{
		"c": {
			{Name: "loose", Rate: 1000, Burst: 1000},
			{Name: "tight", Rate: 0, Burst: 0},
		},
	})
	now := time.Now()
	if g.Admit("c", "", now) != Drop {
		t.Fatalf("expected drop: tight window has zero burst")
	}
}

func TestPercentileLimiterAdaptsProbability(t *testing.T) {
	l := NewPercentileLimiter(10*time.Millisecond, 0.99, 0.1)
	start := l.Probability()
	for i := 0; i < 300; i++ {
		l.Admit(time.Now(), 100*time.Millisecond) // far over target
	}
	if l.Probability() >= start {
		t.Fatalf("expected probability to shrink under sustained overload, got %v", l.Probability())
	}
	if l.Probability() < 0.1 {
		t.Fatalf("expected probability floor at Slack=0.1, got %v", l.Probability())
	}
}

func TestPercentileLimiterRecoversUnderTarget(t *testing.T) {
	l := NewPercentileLimiter(10*time.Millisecond, 0.99, 0.1)
	for i := 0; i < 50; i++ {
		l.Admit(time.Now(), 100*time.Millisecond)
	}
	low := l.Probability()
	// The 99th percentile is taken over a 256-sample window, so the 50
	// overloaded samples must be pushed out before the observed latency
	// falls under target; 300 fast samples are enough for that.
	for i := 0; i < 300; i++ {
		l.Admit(time.Now(), time.Millisecond)
	}
	if l.Probability() <= low {
		t.Fatalf("expected probability to recover once latency is under target")
	}
}

func TestScriptClassifierSetsDimension(t *testing.T) {
	cls := ScriptClassifier(func(e event.Event) (value.Value, error) {
		return value.Object(value.P("class", value.String("x")), value.P("dimension", value.String("d1"))), nil
	})
	p := New(jsonParse, cls, PassGrouper{}, PassLimiter{})
	r := p.Process(context.Background(), []byte(`{}`))
	dim, _ := r.Event.MetaGet("dimension")
	if s, _ := dim.AsStr(); s != "d1" {
		t.Fatalf("expected dimension d1, got %v", dim)
	}
}

func TestClassifierErrorRoutesToDrop(t *testing.T) {
	cls := ScriptClassifier(func(e event.Event) (value.Value, error) {
		return value.Value{}, fmt.Errorf("boom")
	})
	p := New(jsonParse, cls, PassGrouper{}, PassLimiter{})
	r := p.Process(context.Background(), []byte(`{}`))
	if r.ToPrimary || r.DropStage != "classifier" {
		t.Fatalf("expected classifier drop on script error, got %+v", r)
	}
}
