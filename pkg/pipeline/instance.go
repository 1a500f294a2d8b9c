package pipeline

import (
	"context"
	"sync"

	"github.com/fluxcore/fluxcore/pkg/event"
	"github.com/fluxcore/fluxcore/pkg/url"
	"github.com/fluxcore/fluxcore/pkg/value"
)

// Instance runs a Pipeline as a live servant: one goroutine reads raw
// frames off In, runs Process, and fans the result out to every linked
// primary/drop destination, matching spec.md §5's "N pipeline worker
// tasks (one per pipeline instance)" scheduling model. It implements
// registry.Address so the artefact registry (C6) can spawn and link it
// like any on-ramp/off-ramp instance.
type Instance struct {
	Pipeline *Pipeline
	In       chan []byte

	mu       sync.Mutex
	primary  map[string]chan<- []byte
	drop     map[string]chan<- []byte
	insights chan event.Insight

	cancel context.CancelFunc
}

// NewInstance constructs a running Instance, starting its worker goroutine
// immediately (an idle instance with no linked destinations simply drops
// every route on the floor, matching "ensure is idempotent / a spawned
// instance is live immediately" from spec.md §3 Instance invariant).
func NewInstance(ctx context.Context, p *Pipeline, inCapacity int) *Instance {
	runCtx, cancel := context.WithCancel(ctx)
	inst := &Instance{
		Pipeline: p,
		In:       make(chan []byte, inCapacity),
		primary:  map[string]chan<- []byte{},
		drop:     map[string]chan<- []byte{},
		insights: make(chan event.Insight, 64),
		cancel:   cancel,
	}
	go inst.run(runCtx)
	return inst
}

func (inst *Instance) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-inst.In:
			if !ok {
				return
			}
			route := inst.Pipeline.Process(ctx, raw)
			enc, err := value.Encode(route.Event.Value)
			if err != nil {
				continue
			}
			dests := inst.primary
			if !route.ToPrimary {
				dests = inst.drop
			}
			inst.mu.Lock()
			targets := make([]chan<- []byte, 0, len(dests))
			for _, d := range dests {
				targets = append(targets, d)
			}
			inst.mu.Unlock()
			for _, d := range targets {
				select {
				case d <- enc:
				case <-ctx.Done():
					return
				default:
					// Bounded channel full: the frame is discarded for
					// this destination rather than blocking the worker.
					// There is no overload-policy setting, and the frame
					// is not rerouted to the drop sinks.
				}
			}
		}
	}
}

// Link wires each destination: destinations linked from a source URL on
// the "drop" port become drop sinks; destinations linked from any other
// source port become primary sinks, matching the link-graph's port-name
// annotation at the source side (spec.md §3 Link graph).
func (inst *Instance) Link(_ context.Context, mappings map[url.TremorURL][]url.TremorURL) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	for src, dsts := range mappings {
		for _, d := range dsts {
			key := d.TrimToInstance().String()
			if src.Port == "drop" {
				inst.drop[key] = nil // registered by RegisterDest once the channel exists
			} else {
				inst.primary[key] = nil
			}
		}
	}
	return nil
}

// RegisterDest wires the concrete channel for an already-Link'd
// destination key, mirroring ramp.OnRampAddress.RegisterDest.
func (inst *Instance) RegisterDest(key string, toDrop bool, ch chan<- []byte) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if toDrop {
		inst.drop[key] = ch
	} else {
		inst.primary[key] = ch
	}
}

// Unlink removes dsts from both primary and drop sets; reports empty once
// the instance has no destinations left at all.
func (inst *Instance) Unlink(_ context.Context, mappings map[url.TremorURL][]url.TremorURL) (bool, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	for _, dsts := range mappings {
		for _, d := range dsts {
			key := d.TrimToInstance().String()
			delete(inst.primary, key)
			delete(inst.drop, key)
		}
	}
	empty := len(inst.primary) == 0 && len(inst.drop) == 0
	if empty {
		inst.cancel()
	}
	return empty, nil
}

// Insights exposes this instance's contraflow feedback channel.
func (inst *Instance) Insights() <-chan event.Insight { return inst.insights }
