package ramp

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/fluxcore/fluxcore/pkg/event"
	"github.com/fluxcore/fluxcore/pkg/value"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// VectorSink is an off-ramp driver that upserts each event's object value
// as a Qdrant point, grounded on engine/semantic/store.go's
// VectorStore.Upsert idiom. This runtime has no embedding model of its
// own (that belongs to the RAG/ingest system the teacher was built for,
// not to an event-processing pipeline), so the vector is a deterministic
// pseudo-embedding derived from the encoded event's bytes -- enough to
// exercise the Qdrant write path and similarity ordering in tests without
// fabricating a model dependency.
type VectorSink struct {
	Conn       *grpc.ClientConn
	Points     pb.PointsClient
	Collection string
	Dims       int // defaults to 32 if <= 0

	insights chan event.Insight
}

func (v *VectorSink) dims() int {
	if v.Dims <= 0 {
		return 32
	}
	return v.Dims
}

// pseudoEmbed derives a deterministic unit-ish vector from data by hashing
// successive rounds of sha256 and mapping each output byte into [-1, 1].
func pseudoEmbed(data []byte, dims int) []float32 {
	out := make([]float32, dims)
	block := sha256.Sum256(data)
	for i := 0; i < dims; i++ {
		if i > 0 && i%len(block) == 0 {
			block = sha256.Sum256(block[:])
		}
		b := block[i%len(block)]
		out[i] = float32(b)/127.5 - 1.0
	}
	return out
}

func (v *VectorSink) OnEvent(ctx context.Context, _ string, raw []byte) error {
	val, err := value.Decode(raw)
	if err != nil {
		v.emitInsight(event.Insight{Err: fmt.Errorf("ramp: vectorsink decode: %w", err)})
		return err
	}
	obj, ok := val.AsObject()
	if !ok {
		err := fmt.Errorf("ramp: vectorsink requires an object event, got %s", val.Kind())
		v.emitInsight(event.Insight{Err: err})
		return err
	}
	id, _ := obj["id"].AsStr()
	if id == "" {
		sum := sha256.Sum256(raw)
		id = fmt.Sprintf("%x", sum[:8])
	}

	payload := make(map[string]*pb.Value, len(obj))
	for k, fv := range obj {
		payload[k] = payloadValue(fv)
	}

	point := &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: pseudoEmbed(raw, v.dims())}}},
		Payload: payload,
	}
	wait := true
	_, err = v.Points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.Collection,
		Wait:           &wait,
		Points:         []*pb.PointStruct{point},
	})
	if err != nil {
		v.emitInsight(event.Insight{Err: fmt.Errorf("ramp: vectorsink upsert: %w", err)})
		return err
	}
	return nil
}

func payloadValue(v value.Value) *pb.Value {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsStr()
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
	case value.KindI64:
		i, _ := v.AsI64()
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: i}}
	case value.KindF64:
		f, _ := v.AsF64()
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: f}}
	case value.KindBool:
		b, _ := v.AsBool()
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: b}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: v.String()}}
	}
}

func (v *VectorSink) emitInsight(in event.Insight) {
	if v.insights == nil {
		return
	}
	select {
	case v.insights <- in:
	default:
	}
}

func (v *VectorSink) Insights() <-chan event.Insight {
	if v.insights == nil {
		v.insights = make(chan event.Insight, 64)
	}
	return v.insights
}

func (v *VectorSink) DefaultCodec() string { return "json" }

func (v *VectorSink) Shutdown(_ context.Context) error { return v.Conn.Close() }

var _ InsightSource = (*VectorSink)(nil)
