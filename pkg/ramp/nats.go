package ramp

import (
	"context"
	"fmt"

	"github.com/fluxcore/fluxcore/pkg/event"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier,
// kept verbatim from pkg/natsutil.natsHeaderCarrier (unexported there, so
// re-declared here rather than generalizing a typed pub/sub helper to
// raw-bytes ramp frames).
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NatsOnRamp subscribes a NATS subject and frames each message's raw
// payload as one event; trace context carried in message headers is
// extracted but the result is discarded, since the on-ramp contract here only forwards bytes,
// matching the raw-frame shape every other on-ramp driver uses.
type NatsOnRamp struct {
	Conn    *nats.Conn
	Subject string

	sub *nats.Subscription
}

func (n *NatsOnRamp) Start(ctx context.Context, out chan<- []byte) error {
	sub, err := n.Conn.Subscribe(n.Subject, func(msg *nats.Msg) {
		otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
		select {
		case out <- append([]byte(nil), msg.Data...):
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("ramp: nats subscribe %s: %w", n.Subject, err)
	}
	n.sub = sub
	<-ctx.Done()
	return ctx.Err()
}

func (n *NatsOnRamp) Shutdown(_ context.Context) error {
	if n.sub == nil {
		return nil
	}
	return n.sub.Unsubscribe()
}

// NatsOffRamp publishes each frame to a NATS subject with injected trace
// headers, the publish-side counterpart of natsutil.Publish generalized
// from a typed payload to raw ramp bytes.
type NatsOffRamp struct {
	Conn    *nats.Conn
	Subject string

	insights chan event.Insight
}

func (n *NatsOffRamp) OnEvent(ctx context.Context, _ string, raw []byte) error {
	msg := &nats.Msg{Subject: n.Subject, Data: raw}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	if err := n.Conn.PublishMsg(msg); err != nil {
		n.emitInsight(event.Insight{Err: fmt.Errorf("ramp: nats publish %s: %w", n.Subject, err)})
		return err
	}
	return nil
}

func (n *NatsOffRamp) emitInsight(in event.Insight) {
	if n.insights == nil {
		return
	}
	select {
	case n.insights <- in:
	default:
	}
}

func (n *NatsOffRamp) Insights() <-chan event.Insight {
	if n.insights == nil {
		n.insights = make(chan event.Insight, 64)
	}
	return n.insights
}

func (n *NatsOffRamp) DefaultCodec() string        { return "json" }
func (n *NatsOffRamp) Shutdown(_ context.Context) error { return nil }

var _ InsightSource = (*NatsOffRamp)(nil)
