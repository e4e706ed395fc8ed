package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallo/pkg/prompt"
	"wallo/pkg/worker"
)

// recordingSubmitter captures dispatched requests instead of running them.
type recordingSubmitter struct {
	mu        sync.Mutex
	requests  []worker.Request
	cancelled []string
}

func (s *recordingSubmitter) Dispatch(req worker.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
}

func (s *recordingSubmitter) Cancel(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, requestID)
}

func dialTestGateway(t *testing.T, g *Gateway) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(g.handleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestGatewaySubmitAndDeliver(t *testing.T) {
	sub := &recordingSubmitter{}
	g := NewGateway(0, sub, nil, "", "")
	conn := dialTestGateway(t, g)

	submit := `{"type":"submit","request":{"kind":1,"request_id":"job-1","text":"hello"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(submit)))

	ack := readFrame(t, conn)
	assert.Equal(t, "accepted", ack["type"])
	assert.Equal(t, "job-1", ack["request_id"])

	// The request reached the dispatcher.
	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return len(sub.requests) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "hello", sub.requests[0].Text)

	// A completed outcome is routed back over the same connection.
	g.Deliver(worker.Outcome{RequestID: "job-1", Kind: worker.KindChatCompletion, OK: true, Content: "done"})

	out := readFrame(t, conn)
	assert.Equal(t, "outcome", out["type"])
	assert.Equal(t, "job-1", out["request_id"])
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "done", out["content"])
}

func TestGatewayGeneratesRequestID(t *testing.T) {
	sub := &recordingSubmitter{}
	g := NewGateway(0, sub, nil, "", "")
	conn := dialTestGateway(t, g)

	submit := `{"type":"submit","request":{"kind":1,"text":"no id"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(submit)))

	ack := readFrame(t, conn)
	assert.Equal(t, "accepted", ack["type"])
	id, _ := ack["request_id"].(string)
	assert.NotEmpty(t, id)
}

func TestGatewayCancelFrame(t *testing.T) {
	sub := &recordingSubmitter{}
	g := NewGateway(0, sub, nil, "", "")
	conn := dialTestGateway(t, g)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"cancel","request_id":"job-9"}`)))

	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return len(sub.cancelled) == 1 && sub.cancelled[0] == "job-9"
	}, time.Second, 10*time.Millisecond)
}

func TestGatewayMalformedFrames(t *testing.T) {
	sub := &recordingSubmitter{}
	g := NewGateway(0, sub, nil, "", "")
	conn := dialTestGateway(t, g)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])

	// Submit without a request payload is rejected, not dispatched.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"submit"}`)))
	frame = readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])

	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Empty(t, sub.requests)
}

func TestGatewayChatOutcomeCarriesEditorText(t *testing.T) {
	sub := &recordingSubmitter{}
	g := NewGateway(0, sub, nil, "== AI ==", "\n== END ==")
	conn := dialTestGateway(t, g)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"submit","request":{"kind":1,"request_id":"c1","text":"hi"}}`)))
	readFrame(t, conn) // accepted

	g.Deliver(worker.Outcome{RequestID: "c1", Kind: worker.KindChatCompletion, OK: true, Content: "body"})
	out := readFrame(t, conn)
	assert.Equal(t, "body", out["content"])
	assert.Equal(t, "== AI ==\nbody\n== END ==\n", out["editor_text"])
}

func TestGatewayServesPromptLibrary(t *testing.T) {
	lib := prompt.NewLibrary([]prompt.Definition{
		{Name: "Improve", UserPrompt: "Improve the following text:", Attachment: prompt.AttachmentSelection},
	})
	g := NewGateway(0, &recordingSubmitter{}, lib, "", "")
	conn := dialTestGateway(t, g)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"prompts"}`)))
	frame := readFrame(t, conn)
	assert.Equal(t, "prompts", frame["type"])

	defs, ok := frame["data"].([]any)
	require.True(t, ok)
	require.Len(t, defs, 1)
	first, ok := defs[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Improve", first["name"])
}

func TestGatewayDeliverWithoutConnection(t *testing.T) {
	g := NewGateway(0, &recordingSubmitter{}, nil, "", "")
	// Must not panic when no connection is registered for the outcome.
	g.Deliver(worker.Outcome{RequestID: "orphan", Kind: worker.KindRagIngestion, OK: true})
}
