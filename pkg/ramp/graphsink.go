package ramp

import (
	"context"
	"fmt"

	"github.com/fluxcore/fluxcore/pkg/event"
	"github.com/fluxcore/fluxcore/pkg/value"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphSink is an off-ramp driver that MERGEs each event's object value as
// a graph node keyed by the value's `id` field (falling back to a generated
// key), and, when the value has a non-empty string `edge_to` field, MERGEs
// a directed edge to that node.
// Grounded on engine/graph/graph.go's SaveComponent/SaveEdge MERGE idiom,
// adapted from vehicle components to a generic "events as property graph"
// sink: node label and property set come from the event itself rather
// than a fixed Component schema.
type GraphSink struct {
	Driver neo4j.DriverWithContext
	Label  string // node label, e.g. "Event"

	insights chan event.Insight
}

func (g *GraphSink) OnEvent(ctx context.Context, _ string, raw []byte) error {
	v, err := value.Decode(raw)
	if err != nil {
		g.emitInsight(event.Insight{Err: fmt.Errorf("ramp: graphsink decode: %w", err)})
		return err
	}
	obj, ok := v.AsObject()
	if !ok {
		err := fmt.Errorf("ramp: graphsink requires an object event, got %s", v.Kind())
		g.emitInsight(event.Insight{Err: err})
		return err
	}

	id, ok := obj["id"]
	key, _ := id.AsStr()
	if !ok || key == "" {
		key = fmt.Sprintf("%p", raw)
	}

	sess := g.Driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	props := value.ToAny(v)
	label := g.Label
	if label == "" {
		label = "Event"
	}
	cypher := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props", label)
	if _, err := sess.Run(ctx, cypher, map[string]any{"id": key, "props": props}); err != nil {
		g.emitInsight(event.Insight{Err: fmt.Errorf("ramp: graphsink merge node: %w", err)})
		return err
	}

	if edgeTo, ok := obj["edge_to"]; ok {
		if dst, ok := edgeTo.AsStr(); ok && dst != "" {
			edgeCypher := fmt.Sprintf(
				"MATCH (a:%s {id: $from}), (b:%s {id: $to}) MERGE (a)-[:LINKS_TO]->(b)", label, label)
			if _, err := sess.Run(ctx, edgeCypher, map[string]any{"from": key, "to": dst}); err != nil {
				g.emitInsight(event.Insight{Err: fmt.Errorf("ramp: graphsink merge edge: %w", err)})
				return err
			}
		}
	}
	return nil
}

func (g *GraphSink) emitInsight(in event.Insight) {
	if g.insights == nil {
		return
	}
	select {
	case g.insights <- in:
	default:
	}
}

func (g *GraphSink) Insights() <-chan event.Insight {
	if g.insights == nil {
		g.insights = make(chan event.Insight, 64)
	}
	return g.insights
}

func (g *GraphSink) DefaultCodec() string { return "json" }

func (g *GraphSink) Shutdown(ctx context.Context) error { return g.Driver.Close(ctx) }

var _ InsightSource = (*GraphSink)(nil)
