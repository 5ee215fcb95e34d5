package event

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signalWriter collects frames and signals each write.
type signalWriter struct {
	mu    sync.Mutex
	buf   strings.Builder
	wrote chan struct{}
}

func newSignalWriter() *signalWriter {
	return &signalWriter{wrote: make(chan struct{}, 16)}
}

func (w *signalWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	n, err := w.buf.Write(p)
	w.mu.Unlock()
	w.wrote <- struct{}{}
	return n, err
}

func (w *signalWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestStreamWriterReceivesBroadcast(t *testing.T) {
	w := newSignalWriter()
	s := NewStreamWriter(w)

	require.NoError(t, s.Send(NewEvent(EventCastStarted, "upper", nil)))

	select {
	case <-w.wrote:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}
	assert.Contains(t, w.String(), "event: cast_started")
}

func TestSendRejectsInvalidEvent(t *testing.T) {
	s := NewStream()
	assert.Error(t, s.Send(Event{}))
}

func TestNilStreamSend(t *testing.T) {
	var s *Stream
	assert.Error(t, s.Send(NewEvent(EventError, "", nil)))
}

func TestServeHTTPStreamsEvents(t *testing.T) {
	s := NewStream()
	s.SetHeartbeat(0)
	ts := httptest.NewServer(s)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	// The subscriber registers before the connected comment is written, so
	// sending now is safe.
	require.NoError(t, s.Send(NewEvent(EventSpellsUpdated, "", nil)))

	var frame strings.Builder
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		frame.WriteString(line)
		if strings.Contains(frame.String(), "event: spells_updated") && strings.HasSuffix(frame.String(), "\n\n") {
			break
		}
	}
	assert.Contains(t, frame.String(), "data: ")
}

func TestBroadcastDropsSlowClient(t *testing.T) {
	s := NewStream()
	s.clientBuf = 1
	client := newSubscriber(1)
	s.clients.Store(client.id, client)

	// Fill the buffer, then overflow it.
	require.NoError(t, s.Send(NewEvent(EventError, "", nil)))
	require.NoError(t, s.Send(NewEvent(EventError, "", nil)))

	_, stillThere := s.clients.Load(client.id)
	assert.False(t, stillThere)
	_, open := <-client.queue
	assert.True(t, open) // buffered frame still readable
}
