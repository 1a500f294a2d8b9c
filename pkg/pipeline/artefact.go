package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxcore/fluxcore/pkg/event"
	"github.com/fluxcore/fluxcore/pkg/registry"
	"github.com/fluxcore/fluxcore/pkg/script"
	"github.com/fluxcore/fluxcore/pkg/url"
	"github.com/fluxcore/fluxcore/pkg/value"
)

// Decl is a declared pipeline artefact: a parser kind, a classifier
// (constant class or a compiled script), a grouper config, and a limiter
// config, matching the CLI surface of original_source/src/main.rs (parser,
// classifier, grouping, limiting flags) generalized to a YAML artefact.
type Decl struct {
	Parser string // "json" | "raw"

	ClassifierKind  string // "constant" | "script"
	ClassifierClass string // for "constant"
	ClassifierExpr  script.Expr
	ClassifierConsts []value.Value
	ClassifierLocals int

	GrouperKind    string // "pass" | "drop" | "bucket"
	GrouperWindows map[string][]Window

	LimiterKind       string // "pass" | "drop" | "percentile"
	LimiterTarget     time.Duration
	LimiterPercentile float64
	LimiterSlack      float64

	InputCapacity int
}

// Equal implements registry.Artefact.
func (d Decl) Equal(other registry.Artefact) bool {
	o, ok := other.(Decl)
	if !ok {
		return false
	}
	return d.Parser == o.Parser && d.ClassifierKind == o.ClassifierKind &&
		d.ClassifierClass == o.ClassifierClass && d.GrouperKind == o.GrouperKind &&
		d.LimiterKind == o.LimiterKind
}

func buildParser(kind string) ParseFunc {
	switch kind {
	case "raw":
		return func(raw []byte) (event.Event, error) {
			return event.New(0, uint64(time.Now().UnixNano()), value.String(string(raw))), nil
		}
	default: // "json"
		return func(raw []byte) (event.Event, error) {
			v, err := value.Decode(raw)
			if err != nil {
				return event.Event{}, err
			}
			return event.New(0, uint64(time.Now().UnixNano()), v), nil
		}
	}
}

func buildClassifier(d Decl, builtins *script.Registry) (Classifier, error) {
	switch d.ClassifierKind {
	case "", "constant":
		return ConstantClassifier(d.ClassifierClass), nil
	case "script":
		if d.ClassifierExpr == nil {
			return nil, fmt.Errorf("pipeline: script classifier declared with no compiled expression")
		}
		return ScriptClassifier(func(e event.Event) (value.Value, error) {
			ctx := &script.EvalCtx{
				Event:    e.Value,
				Meta:     value.Object(),
				Consts:   d.ClassifierConsts,
				Locals:   script.NewLocalStack(d.ClassifierLocals),
				Builtins: builtins,
				MaxDepth: 512,
			}
			return script.Eval(ctx, d.ClassifierExpr)
		}), nil
	default:
		return nil, fmt.Errorf("pipeline: unknown classifier kind %q", d.ClassifierKind)
	}
}

func buildGrouper(d Decl) (Grouper, error) {
	switch d.GrouperKind {
	case "", "pass":
		return PassGrouper{}, nil
	case "drop":
		return DropGrouper{}, nil
	case "bucket":
		return NewTokenBucketGrouper(d.GrouperWindows), nil
	default:
		return nil, fmt.Errorf("pipeline: unknown grouper kind %q", d.GrouperKind)
	}
}

func buildLimiter(d Decl) (Limiter, error) {
	switch d.LimiterKind {
	case "", "pass":
		return PassLimiter{}, nil
	case "drop":
		return DropLimiter{}, nil
	case "percentile":
		return NewPercentileLimiter(d.LimiterTarget, d.LimiterPercentile, d.LimiterSlack), nil
	default:
		return nil, fmt.Errorf("pipeline: unknown limiter kind %q", d.LimiterKind)
	}
}

// NewSpawner returns a registry.Spawner for pipeline artefacts, compiling
// a Pipeline from its Decl and wrapping it as a live Instance.
func NewSpawner(builtins *script.Registry) registry.Spawner {
	if builtins == nil {
		builtins = script.StandardLibrary()
	}
	return func(ctx context.Context, decl registry.Artefact, _ url.TremorURL) (registry.Address, error) {
		d, ok := decl.(Decl)
		if !ok {
			return nil, fmt.Errorf("pipeline: spawn: wrong declaration type %T", decl)
		}
		classify, err := buildClassifier(d, builtins)
		if err != nil {
			return nil, err
		}
		group, err := buildGrouper(d)
		if err != nil {
			return nil, err
		}
		limit, err := buildLimiter(d)
		if err != nil {
			return nil, err
		}
		p := New(buildParser(d.Parser), classify, group, limit)
		capacity := d.InputCapacity
		if capacity <= 0 {
			capacity = 128
		}
		return NewInstance(ctx, p, capacity), nil
	}
}
