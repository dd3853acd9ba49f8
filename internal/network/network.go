// Package network carries replication frames from one master to many
// replicas. Every transport is an ordered, reliable, single-producer
// broadcast: a replica that cannot keep up is disconnected rather than
// skipped over, because a missing frame corrupts its geometry.
package network

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned once a broadcaster or receiver has shut down.
var ErrClosed = errors.New("channel closed")

// Broadcaster sends frames, in order, to every connected receiver.
type Broadcaster interface {
	Broadcast(ctx context.Context, frame []byte) error
	Close() error
}

// Receiver yields frames in the order they were broadcast.
type Receiver interface {
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Pipe is an in-process broadcaster. Broadcast blocks until every
// subscriber has buffer room, so no frame is ever dropped.
type Pipe struct {
	mu     sync.Mutex
	subs   map[*pipeReceiver]struct{}
	done   chan struct{}
	closed bool
}

// NewPipe creates an open pipe without subscribers.
func NewPipe() *Pipe {
	return &Pipe{
		subs: make(map[*pipeReceiver]struct{}),
		done: make(chan struct{}),
	}
}

// Subscribe attaches a receiver that sees every frame broadcast from now
// on. buffer is the number of frames it may lag behind.
func (p *Pipe) Subscribe(buffer int) Receiver {
	r := &pipeReceiver{
		pipe:   p,
		frames: make(chan []byte, max(buffer, 0)),
		gone:   make(chan struct{}),
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(r.gone)
		return r
	}
	p.subs[r] = struct{}{}
	return r
}

// Broadcast delivers frame to all subscribers.
func (p *Pipe) Broadcast(ctx context.Context, frame []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	subs := make([]*pipeReceiver, 0, len(p.subs))
	for r := range p.subs {
		subs = append(subs, r)
	}
	p.mu.Unlock()

	for _, r := range subs {
		select {
		case r.frames <- frame:
		case <-r.gone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops the pipe. Subscribers drain buffered frames, then get
// ErrClosed.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	return nil
}

type pipeReceiver struct {
	pipe   *Pipe
	frames chan []byte
	gone   chan struct{}
	once   sync.Once
}

func (r *pipeReceiver) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f := <-r.frames:
		return f, nil
	default:
	}
	select {
	case f := <-r.frames:
		return f, nil
	case <-r.gone:
		return nil, ErrClosed
	case <-r.pipe.done:
		// Prefer frames that raced with the close.
		select {
		case f := <-r.frames:
			return f, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *pipeReceiver) Close() error {
	r.once.Do(func() {
		r.pipe.mu.Lock()
		delete(r.pipe.subs, r)
		r.pipe.mu.Unlock()
		close(r.gone)
	})
	return nil
}

// Capture records broadcast frames, for replay and tests.
type Capture struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

// Broadcast stores a copy of frame.
func (c *Capture) Broadcast(_ context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

// Close stops recording.
func (c *Capture) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// Frames returns the recorded frames.
func (c *Capture) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

// Replay returns a receiver that yields frames in order, then ErrClosed.
func Replay(frames [][]byte) Receiver {
	return &replay{frames: frames}
}

type replay struct {
	frames [][]byte
	next   int
}

func (r *replay) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.next >= len(r.frames) {
		return nil, ErrClosed
	}
	f := r.frames[r.next]
	r.next++
	return f, nil
}

func (r *replay) Close() error {
	r.next = len(r.frames)
	return nil
}
