package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"wallo/pkg/prompt"
	"wallo/pkg/utils"
	"wallo/pkg/worker"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for decoupled UI
	},
}

// Submitter 是 gateway 對 dispatcher 的最小依賴面
type Submitter interface {
	Dispatch(req worker.Request)
	Cancel(requestID string)
}

// Frame 為 UI 與核心之間的線上格式。type 為 submit / cancel,
// 伺服器端回送 outcome。
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Request   *worker.Request `json:"request,omitempty"`
}

// OutcomeFrame 包裝一筆工作結果送回 UI。聊天結果另附 editor_text,
// 即包上 header/footer、可直接插入編輯器的版本。
type OutcomeFrame struct {
	Type string `json:"type"`
	worker.Outcome
	EditorText string `json:"editor_text,omitempty"`
}

// SafeConn 以互斥鎖序列化寫入,gorilla 的連線不允許並發寫
type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteMessage(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(messageType, data)
}

// Gateway 是 UI 邊界:接收工作請求、回送工作結果。
// 每筆 request_id 記住發起它的連線,結果完成後路由回去。
type Gateway struct {
	port       int
	dispatcher Submitter
	library    *prompt.Library
	header     string
	footer     string
	server     *http.Server

	mu      sync.RWMutex
	pending map[string]*SafeConn // request_id -> originating connection
}

func NewGateway(port int, dispatcher Submitter, library *prompt.Library, header, footer string) *Gateway {
	return &Gateway{
		port:       port,
		dispatcher: dispatcher,
		library:    library,
		header:     header,
		footer:     footer,
		pending:    make(map[string]*SafeConn),
	}
}

func (g *Gateway) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWebSocket)

	g.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", g.port),
		Handler: mux,
	}

	slog.Info("Gateway listening", "port", g.port)

	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Gateway server error", "error", err)
		}
	}()

	return nil
}

func (g *Gateway) Stop() error {
	if g.server != nil {
		return g.server.Close()
	}
	return nil
}

// Deliver 將一筆結果送回發起它的連線。dispatcher 的 emit 回呼接到這裡。
// 連線已斷時結果只記錄後丟棄,不能反過來讓工作失敗。
func (g *Gateway) Deliver(outcome worker.Outcome) {
	g.mu.Lock()
	conn, ok := g.pending[outcome.RequestID]
	delete(g.pending, outcome.RequestID)
	g.mu.Unlock()

	if !ok {
		slog.Warn("no connection for outcome", "request_id", outcome.RequestID)
		return
	}

	frame := OutcomeFrame{Type: "outcome", Outcome: outcome}
	if outcome.OK && outcome.Kind == worker.KindChatCompletion {
		frame.EditorText = prompt.FormatForEditor(outcome.Content, g.header, g.footer)
	}

	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("failed to marshal outcome", "request_id", outcome.RequestID, "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("failed to deliver outcome", "request_id", outcome.RequestID, "error", err)
	}
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS upgrade failed", "error", err)
		return
	}
	conn := &SafeConn{Conn: rawConn}

	defer func() {
		g.dropConnection(conn)
		conn.Close()
	}()

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var frame Frame
		if err := json.Unmarshal(msgBytes, &frame); err != nil {
			g.writeError(conn, "", "malformed frame")
			continue
		}

		switch frame.Type {
		case "submit":
			g.handleSubmit(conn, frame)
		case "cancel":
			g.dispatcher.Cancel(frame.RequestID)
		case "prompts":
			g.handlePrompts(conn)
		default:
			g.writeError(conn, frame.RequestID, fmt.Sprintf("unknown frame type: %s", frame.Type))
		}
	}
}

func (g *Gateway) handleSubmit(conn *SafeConn, frame Frame) {
	if frame.Request == nil {
		g.writeError(conn, frame.RequestID, "submit frame missing request")
		return
	}
	req := *frame.Request
	if req.RequestID == "" {
		req.RequestID = utils.GenerateID()
	}

	g.mu.Lock()
	g.pending[req.RequestID] = conn
	g.mu.Unlock()

	// 立即回覆受理,結果之後才會以 outcome 幀送達
	ack := map[string]string{"type": "accepted", "request_id": req.RequestID}
	if data, err := json.Marshal(ack); err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}

	g.dispatcher.Dispatch(req)
}

// handlePrompts 回送提示詞庫,供 UI 渲染選單
func (g *Gateway) handlePrompts(conn *SafeConn) {
	var defs []prompt.Definition
	if g.library != nil {
		defs = g.library.All()
	}
	msg := map[string]any{"type": "prompts", "data": defs}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal prompt library", "error", err)
		return
	}
	conn.WriteMessage(websocket.TextMessage, data)
}

// dropConnection 清掉仍掛在該連線上的待回結果路由
func (g *Gateway) dropConnection(conn *SafeConn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, c := range g.pending {
		if c == conn {
			delete(g.pending, id)
		}
	}
}

func (g *Gateway) writeError(conn *SafeConn, requestID, reason string) {
	msg := map[string]string{"type": "error", "reason": reason}
	if requestID != "" {
		msg["request_id"] = requestID
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	conn.WriteMessage(websocket.TextMessage, data)
}
