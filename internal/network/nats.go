package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSOptions configures a NATS connection.
type NATSOptions struct {
	URL     string
	Subject string
	// Name identifies the connection in NATS monitoring.
	Name    string
	Timeout time.Duration
	Logger  *zap.Logger
}

func (o NATSOptions) connect() (*nats.Conn, error) {
	url := o.URL
	if url == "" {
		url = nats.DefaultURL
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	opts := []nats.Option{nats.Timeout(timeout)}
	if o.Name != "" {
		opts = append(opts, nats.Name(o.Name))
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return conn, nil
}

func (o NATSOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// NATSBroadcaster publishes frames on one subject. Core NATS keeps the
// order of messages from a single connection.
type NATSBroadcaster struct {
	conn    *nats.Conn
	subject string
	log     *zap.Logger
}

// NewNATSBroadcaster connects and returns a broadcaster on opts.Subject.
func NewNATSBroadcaster(opts NATSOptions) (*NATSBroadcaster, error) {
	if opts.Subject == "" {
		return nil, errors.New("nats broadcaster: empty subject")
	}
	conn, err := opts.connect()
	if err != nil {
		return nil, err
	}
	return &NATSBroadcaster{conn: conn, subject: opts.Subject, log: opts.logger().Named("nats")}, nil
}

// Broadcast publishes frame.
func (b *NATSBroadcaster) Broadcast(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.conn.IsClosed() {
		return ErrClosed
	}
	if err := b.conn.Publish(b.subject, frame); err != nil {
		return fmt.Errorf("publishing to %s: %w", b.subject, err)
	}
	return nil
}

// Close flushes pending frames and disconnects.
func (b *NATSBroadcaster) Close() error {
	if b.conn.IsClosed() {
		return nil
	}
	err := b.conn.Flush()
	b.conn.Close()
	return err
}

// NATSReceiver reads frames from a subject.
type NATSReceiver struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

// NewNATSReceiver connects and subscribes to opts.Subject. Frames
// published before the subscription are not seen.
func NewNATSReceiver(opts NATSOptions) (*NATSReceiver, error) {
	if opts.Subject == "" {
		return nil, errors.New("nats receiver: empty subject")
	}
	conn, err := opts.connect()
	if err != nil {
		return nil, err
	}
	sub, err := conn.SubscribeSync(opts.Subject)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", opts.Subject, err)
	}
	// A slow consumer drops messages; make the pending limit generous.
	if err := sub.SetPendingLimits(-1, 512*1024*1024); err != nil {
		opts.logger().Warn("setting pending limits", zap.Error(err))
	}
	if err := conn.Flush(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("flushing subscription: %w", err)
	}
	return &NATSReceiver{conn: conn, sub: sub}, nil
}

// Receive returns the next frame.
func (r *NATSReceiver) Receive(ctx context.Context) ([]byte, error) {
	msg, err := r.sub.NextMsgWithContext(ctx)
	if err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return msg.Data, nil
}

// Close unsubscribes and disconnects.
func (r *NATSReceiver) Close() error {
	if r.conn.IsClosed() {
		return nil
	}
	_ = r.sub.Unsubscribe()
	r.conn.Close()
	return nil
}
