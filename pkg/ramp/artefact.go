package ramp

import (
	"context"
	"fmt"
	"os"

	"github.com/fluxcore/fluxcore/pkg/codec"
	"github.com/fluxcore/fluxcore/pkg/procs"
	"github.com/fluxcore/fluxcore/pkg/registry"
	"github.com/fluxcore/fluxcore/pkg/url"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config is a declared on-ramp/off-ramp's free-form configuration,
// matching spec.md §6's "config" field (format-agnostic; decoded from
// YAML by the artefact loader in cmd/fluxcored before reaching here).
type Config map[string]any

func (c Config) str(key, def string) string {
	if v, ok := c[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func (c Config) int(key string, def int) int {
	if v, ok := c[key]; ok {
		switch t := v.(type) {
		case int:
			return t
		case int64:
			return int(t)
		case float64:
			return int(t)
		}
	}
	return def
}

// OnRampDecl is a declared on-ramp artefact: exactly one of BindingType or
// Peer is set (spec.md §3 Artefact invariant).
type OnRampDecl struct {
	BindingType string // kind: "stdin" | "file" | "nats"
	Peer        string // linked-transport URL, mutually exclusive with BindingType
	Config      Config
	Codec       string
	Pre         []string
	MetricsSecs int
}

// Equal implements registry.Artefact.
func (d OnRampDecl) Equal(other registry.Artefact) bool {
	o, ok := other.(OnRampDecl)
	if !ok {
		return false
	}
	return d.BindingType == o.BindingType && d.Peer == o.Peer && d.Codec == o.Codec
}

// OffRampDecl is a declared off-ramp artefact, the mirror of OnRampDecl.
type OffRampDecl struct {
	BindingType string // kind: "stdout" | "null" | "file" | "nats" | "graphsink" | "vectorsink"
	Peer        string
	Config      Config
	Codec       string
	Post        []string
	MetricsSecs int
}

func (d OffRampDecl) Equal(other registry.Artefact) bool {
	o, ok := other.(OffRampDecl)
	if !ok {
		return false
	}
	return d.BindingType == o.BindingType && d.Peer == o.Peer && d.Codec == o.Codec
}

func validateRampDecl(bindingType, peer string) error {
	if (bindingType == "") == (peer == "") {
		return fmt.Errorf("ramp: exactly one of binding_type/peer must be set (binding_type=%q peer=%q)", bindingType, peer)
	}
	return nil
}

// NewOnRampSpawner returns a registry.Spawner for OnRampDecl artefacts,
// dispatching BindingType to a concrete OnRampDriver and wrapping it as an
// OnRampAddress.
func NewOnRampSpawner() registry.Spawner {
	return func(_ context.Context, decl registry.Artefact, u url.TremorURL) (registry.Address, error) {
		d, ok := decl.(OnRampDecl)
		if !ok {
			return nil, fmt.Errorf("ramp: spawn onramp: wrong declaration type %T", decl)
		}
		if err := validateRampDecl(d.BindingType, d.Peer); err != nil {
			return nil, err
		}
		if d.Peer != "" {
			return nil, fmt.Errorf("ramp: linked-transport on-ramp %s (peer) is not supported", u)
		}
		var driver OnRampDriver
		switch d.BindingType {
		case "stdin":
			driver = &Stdin{Reader: os.Stdin}
		case "file":
			driver = &File{Path: d.Config.str("path", ""), Tail: d.Config.int("tail", 0) != 0}
		case "nats":
			nc, err := nats.Connect(d.Config.str("url", nats.DefaultURL))
			if err != nil {
				return nil, fmt.Errorf("ramp: nats connect: %w", err)
			}
			driver = &NatsOnRamp{Conn: nc, Subject: d.Config.str("subject", u.Artefact)}
		default:
			return nil, fmt.Errorf("ramp: unknown on-ramp kind %q", d.BindingType)
		}
		return NewOnRampAddress(driver), nil
	}
}

// NewOffRampSpawner returns a registry.Spawner for OffRampDecl artefacts.
func NewOffRampSpawner(codecs *codec.Registry) registry.Spawner {
	if codecs == nil {
		codecs = codec.NewRegistry()
	}
	return func(ctx context.Context, decl registry.Artefact, u url.TremorURL) (registry.Address, error) {
		d, ok := decl.(OffRampDecl)
		if !ok {
			return nil, fmt.Errorf("ramp: spawn offramp: wrong declaration type %T", decl)
		}
		if err := validateRampDecl(d.BindingType, d.Peer); err != nil {
			return nil, err
		}
		if d.Peer != "" {
			return nil, fmt.Errorf("ramp: linked-transport off-ramp %s (peer) is not supported", u)
		}

		var driver OffRampDriver
		switch d.BindingType {
		case "stdout":
			driver = &Stdout{Writer: os.Stdout}
		case "null":
			driver = Null{}
		case "file":
			driver = &FileSink{Path: d.Config.str("path", "")}
		case "nats":
			nc, err := nats.Connect(d.Config.str("url", nats.DefaultURL))
			if err != nil {
				return nil, fmt.Errorf("ramp: nats connect: %w", err)
			}
			driver = &NatsOffRamp{Conn: nc, Subject: d.Config.str("subject", u.Artefact)}
		case "graphsink":
			nd, err := neo4j.NewDriverWithContext(d.Config.str("url", "neo4j://localhost:7687"),
				neo4j.BasicAuth(d.Config.str("user", "neo4j"), d.Config.str("password", ""), ""))
			if err != nil {
				return nil, fmt.Errorf("ramp: neo4j connect: %w", err)
			}
			driver = &GraphSink{Driver: nd, Label: d.Config.str("label", "Event")}
		case "vectorsink":
			conn, err := grpc.NewClient(d.Config.str("addr", "localhost:6334"), grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return nil, fmt.Errorf("ramp: qdrant dial: %w", err)
			}
			driver = &VectorSink{
				Conn:       conn,
				Points:     pb.NewPointsClient(conn),
				Collection: d.Config.str("collection", "fluxcore"),
				Dims:       d.Config.int("dims", 32),
			}
		default:
			return nil, fmt.Errorf("ramp: unknown off-ramp kind %q", d.BindingType)
		}

		c, ok := codecs.Lookup(d.Codec)
		if !ok {
			c, _ = codecs.Lookup("json")
		}
		post, err := procs.Build(d.Post)
		if err != nil {
			return nil, err
		}
		return NewOffRampAddress(driver, c, post), nil
	}
}
