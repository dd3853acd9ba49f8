package network

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frames(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte(fmt.Sprintf("frame-%03d", i))
	}
	return out
}

func receiveAll(t *testing.T, r Receiver) [][]byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got [][]byte
	for {
		f, err := r.Receive(ctx)
		if err != nil {
			require.ErrorIs(t, err, ErrClosed)
			return got
		}
		got = append(got, f)
	}
}

func TestPipeDeliversInOrderToEverySubscriber(t *testing.T) {
	p := NewPipe()
	a := p.Subscribe(4)
	b := p.Subscribe(0)

	want := frames(20)
	done := make(chan [][]byte)
	go func() {
		var got [][]byte
		for {
			f, err := b.Receive(context.Background())
			if err != nil {
				done <- got
				return
			}
			got = append(got, f)
		}
	}()

	var gotA [][]byte
	for _, f := range want {
		require.NoError(t, p.Broadcast(context.Background(), f))
		got, err := a.Receive(context.Background())
		require.NoError(t, err)
		gotA = append(gotA, got)
	}
	require.NoError(t, p.Close())

	assert.Equal(t, want, gotA)
	assert.Equal(t, want, <-done)

	_, err := a.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Broadcast(context.Background(), []byte("late")), ErrClosed)
}

func TestPipeDrainsBufferedFramesAfterClose(t *testing.T) {
	p := NewPipe()
	r := p.Subscribe(3)
	for _, f := range frames(3) {
		require.NoError(t, p.Broadcast(context.Background(), f))
	}
	require.NoError(t, p.Close())
	assert.Equal(t, frames(3), receiveAll(t, r))
}

func TestPipeBroadcastHonoursContext(t *testing.T) {
	p := NewPipe()
	_ = p.Subscribe(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Broadcast(ctx, []byte("x")), context.DeadlineExceeded)
}

func TestPipeUnsubscribedReceiverDoesNotBlock(t *testing.T) {
	p := NewPipe()
	r := p.Subscribe(0)
	require.NoError(t, r.Close())
	require.NoError(t, p.Broadcast(context.Background(), []byte("x")))
	_, err := r.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCaptureAndReplay(t *testing.T) {
	var c Capture
	buf := []byte("reused")
	require.NoError(t, c.Broadcast(context.Background(), buf))
	buf[0] = 'R'
	require.NoError(t, c.Broadcast(context.Background(), buf))
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Broadcast(context.Background(), buf), ErrClosed)

	got := receiveAll(t, Replay(c.Frames()))
	assert.Equal(t, [][]byte{[]byte("reused"), []byte("Reused")}, got)
}

func TestWebsocketHub(t *testing.T) {
	hub := NewWSHub(WSOptions{})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r1, err := DialWS(ctx, url)
	require.NoError(t, err)
	defer r1.Close()
	r2, err := DialWS(ctx, url)
	require.NoError(t, err)
	defer r2.Close()
	require.NoError(t, hub.WaitForClients(ctx, 2))
	assert.Equal(t, 2, hub.Clients())

	want := frames(50)
	for _, f := range want {
		require.NoError(t, hub.Broadcast(ctx, f))
	}
	require.NoError(t, hub.Close())

	assert.Equal(t, want, receiveAll(t, r1))
	assert.Equal(t, want, receiveAll(t, r2))
	assert.ErrorIs(t, hub.Broadcast(ctx, []byte("late")), ErrClosed)
	assert.ErrorIs(t, hub.WaitForClients(ctx, 1), ErrClosed)
}

func TestDialWSFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := DialWS(ctx, "ws://127.0.0.1:1/none")
	assert.Error(t, err)
}

func TestNATSRoundTrip(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	subject := fmt.Sprintf("fieldx.test.%d", time.Now().UnixNano())

	r, err := NewNATSReceiver(NATSOptions{URL: url, Subject: subject})
	require.NoError(t, err)
	defer r.Close()
	b, err := NewNATSBroadcaster(NATSOptions{URL: url, Subject: subject})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	want := frames(30)
	for _, f := range want {
		require.NoError(t, b.Broadcast(ctx, f))
	}
	require.NoError(t, b.Close())

	for _, f := range want {
		got, err := r.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
}

func TestNATSRequiresSubject(t *testing.T) {
	_, err := NewNATSBroadcaster(NATSOptions{})
	assert.Error(t, err)
	_, err = NewNATSReceiver(NATSOptions{})
	assert.Error(t, err)
}
