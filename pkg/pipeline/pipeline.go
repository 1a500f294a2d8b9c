// Package pipeline implements the Parser -> Classifier -> Grouper -> Limiter
// stage kernel (C4): each received raw message is parsed into an event,
// classified, grouped (token-bucket admission per class/dimension), and
// limiter-gated (fixed or adaptive percentile admission) before reaching a
// primary or drop sink. The stages run in sequence inside Pipeline.Process;
// Pipeline.Stage adapts that method into a pkg/fn.Stage.
package pipeline

import (
	"context"
	"time"

	"github.com/fluxcore/fluxcore/pkg/event"
	"github.com/fluxcore/fluxcore/pkg/fn"
	"github.com/fluxcore/fluxcore/pkg/value"
)

// Decision is the outcome of a Grouper or Limiter stage.
type Decision int

const (
	Keep Decision = iota
	Drop
)

// ParseFunc turns raw bytes into an Event. Parser failures are reported via
// error, which the pipeline routes to the drop sink rather than propagating.
type ParseFunc func(raw []byte) (event.Event, error)

// Classified pairs a class with an optional dimension, set by the Classifier
// stage into event metadata.
type Classified struct {
	Event     event.Event
	Class     string
	Dimension string
	HasClass  bool
}

// Classifier assigns a class (and optional dimension) to an event. A
// Classifier that reports HasClass=false routes the event to drop.
type Classifier func(ctx context.Context, e event.Event) Classified

// ConstantClassifier always assigns the same fixed class.
func ConstantClassifier(class string) Classifier {
	return func(_ context.Context, e event.Event) Classified {
		return Classified{Event: e, Class: class, HasClass: true}
	}
}

// ScriptClassifier runs a compiled script expression (via pkg/script,
// injected as Eval) that must evaluate to a record with a "class" field and
// an optional "dimension" field.
func ScriptClassifier(eval func(e event.Event) (value.Value, error)) Classifier {
	return func(_ context.Context, e event.Event) Classified {
		v, err := eval(e)
		if err != nil {
			return Classified{Event: e, HasClass: false}
		}
		classV, ok := v.Get("class")
		if !ok {
			return Classified{Event: e, HasClass: false}
		}
		class, ok := classV.AsStr()
		if !ok {
			return Classified{Event: e, HasClass: false}
		}
		dim := ""
		if dimV, ok := v.Get("dimension"); ok {
			dim, _ = dimV.AsStr()
		}
		return Classified{Event: e, Class: class, Dimension: dim, HasClass: true}
	}
}

// Grouper decides whether a classified event is kept or dropped.
type Grouper interface {
	Admit(class, dimension string, now time.Time) Decision
}

// PassGrouper always keeps.
type PassGrouper struct{}

func (PassGrouper) Admit(_, _ string, _ time.Time) Decision { return Keep }

// DropGrouper always drops.
type DropGrouper struct{}

func (DropGrouper) Admit(_, _ string, _ time.Time) Decision { return Drop }

// Limiter decides whether an event that survived grouping is kept.
type Limiter interface {
	Admit(now time.Time, latency time.Duration) Decision
}

// PassLimiter always keeps.
type PassLimiter struct{}

func (PassLimiter) Admit(_ time.Time, _ time.Duration) Decision { return Keep }

// DropLimiter always drops.
type DropLimiter struct{}

func (DropLimiter) Admit(_ time.Time, _ time.Duration) Decision { return Drop }

// Metrics is the per-stage counter sink a Pipeline reports into. New sets
// a no-op implementation; pkg/metrics does not implement this interface.
type Metrics interface {
	IncEventsIn()
	IncEventsDropped(stage, reason string)
	IncEventsOut()
	ObserveClass(class string)
	ObserveLatency(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) IncEventsIn()                        {}
func (noopMetrics) IncEventsDropped(_, _ string)         {}
func (noopMetrics) IncEventsOut()                        {}
func (noopMetrics) ObserveClass(_ string)                {}
func (noopMetrics) ObserveLatency(_ time.Duration)       {}

// Pipeline wires Parser/Classifier/Grouper/Limiter into a single Stage that
// produces a routing decision alongside the (possibly transformed) event.
type Pipeline struct {
	Parse      ParseFunc
	Classify   Classifier
	Group      Grouper
	Limit      Limiter
	Metrics    Metrics
	now        func() time.Time
}

// New constructs a Pipeline with Metrics set to a no-op sink and the clock
// set to time.Now.
func New(parse ParseFunc, classify Classifier, group Grouper, limit Limiter) *Pipeline {
	return &Pipeline{Parse: parse, Classify: classify, Group: group, Limit: limit, Metrics: noopMetrics{}, now: time.Now}
}

// Route is the outcome of running one raw message through the pipeline.
type Route struct {
	Event     event.Event
	ToPrimary bool
	DropStage string // "parser"/"classifier"/"grouper"/"limiter", empty if ToPrimary
	DropErr   error
}

// Process runs one raw message through Parser -> Classifier -> Grouper ->
// Limiter, returning a Route describing where the (possibly synthesized,
// on parse failure, from raw bytes) event should be sent.
func (p *Pipeline) Process(ctx context.Context, raw []byte) Route {
	p.Metrics.IncEventsIn()
	start := p.now()

	ev, err := p.Parse(raw)
	if err != nil {
		p.Metrics.IncEventsDropped("parser", "parse_error")
		return Route{Event: event.New(0, uint64(start.UnixNano()), value.String(string(raw))), DropStage: "parser", DropErr: err}
	}

	cls := p.Classify(ctx, ev)
	if !cls.HasClass {
		p.Metrics.IncEventsDropped("classifier", "no_class")
		return Route{Event: cls.Event, DropStage: "classifier"}
	}
	p.Metrics.ObserveClass(cls.Class)
	taggedEvent := cls.Event.WithMeta("class", value.String(cls.Class))
	if cls.Dimension != "" {
		taggedEvent = taggedEvent.WithMeta("dimension", value.String(cls.Dimension))
	}

	if p.Group.Admit(cls.Class, cls.Dimension, p.now()) == Drop {
		p.Metrics.IncEventsDropped("grouper", "token_bucket")
		return Route{Event: taggedEvent, DropStage: "grouper"}
	}

	latency := p.now().Sub(start)
	if p.Limit.Admit(p.now(), latency) == Drop {
		p.Metrics.IncEventsDropped("limiter", "admission")
		return Route{Event: taggedEvent, DropStage: "limiter"}
	}

	p.Metrics.ObserveLatency(p.now().Sub(start))
	p.Metrics.IncEventsOut()
	return Route{Event: taggedEvent, ToPrimary: true}
}

// Stage adapts Pipeline.Process into an fn.Stage, for composition with the
// teacher's pipeline/tracing combinators.
func (p *Pipeline) Stage() fn.Stage[[]byte, Route] {
	return func(ctx context.Context, raw []byte) fn.Result[Route] {
		return fn.Ok(p.Process(ctx, raw))
	}
}
