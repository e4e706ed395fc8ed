package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"wallo/pkg/agent"
	"wallo/pkg/api"
	"wallo/pkg/config"
	"wallo/pkg/llm"
	"wallo/pkg/prompt"
)

// Dispatcher 是唯一的信任邊界:每筆 Request 在獨立 goroutine 執行,
// 恰好發出一個 Outcome。處理器內的任何 error 或 panic 都在這裡
// 轉成 Failure,不會穿透到呼叫端。
type Dispatcher struct {
	client       llm.ChatClient
	sessions     *llm.SessionManager
	registry     api.ToolRegistry
	retriever    Retriever
	extractor    Extractor
	transcriber  Transcriber
	synthesizer  Synthesizer
	systemPrompt string
	promptFooter string
	sysCfg       config.SystemConfig
	emit         func(Outcome)

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// Options 集中注入 dispatcher 的協作者,語音與檢索端可為 nil
type Options struct {
	Client       llm.ChatClient
	Sessions     *llm.SessionManager
	Registry     api.ToolRegistry
	Retriever    Retriever
	Extractor    Extractor
	Transcriber  Transcriber
	Synthesizer  Synthesizer
	SystemPrompt string
	PromptFooter string
	SysCfg       config.SystemConfig
	Emit         func(Outcome)
}

func NewDispatcher(opts Options) *Dispatcher {
	return &Dispatcher{
		client:       opts.Client,
		sessions:     opts.Sessions,
		registry:     opts.Registry,
		retriever:    opts.Retriever,
		extractor:    opts.Extractor,
		transcriber:  opts.Transcriber,
		synthesizer:  opts.Synthesizer,
		systemPrompt: opts.SystemPrompt,
		promptFooter: opts.PromptFooter,
		sysCfg:       opts.SysCfg,
		emit:         opts.Emit,
	}
}

// Dispatch 在新的 goroutine 執行請求,立即返回。
// 呼叫端只會透過 emit 回呼收到結果。
func (d *Dispatcher) Dispatch(req Request) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.emit(d.run(req))
	}()
}

// Cancel 中止指定請求,若其仍在執行中
func (d *Dispatcher) Cancel(requestID string) {
	d.mu.Lock()
	cancel, ok := d.inflight[requestID]
	d.mu.Unlock()
	if ok {
		slog.Info("cancelling work request", "request_id", requestID)
		cancel()
	}
}

// Wait 等待所有進行中的請求完成
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(req Request) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("work handler panicked", "request_id", req.RequestID, "kind", req.Kind.String(), "panic", r)
			out = Failure(req, fmt.Sprintf("%v", r))
		}
	}()

	timeout := time.Duration(d.sysCfg.LLMTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		// 設定缺漏時不能變成「立即到期」,退回預設上限
		timeout = time.Duration(config.DefaultSystemConfig().LLMTimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = context.WithValue(ctx, llm.WorkRequestIDKey, req.RequestID)

	d.track(req.RequestID, cancel)
	defer d.untrack(req.RequestID)

	slog.InfoContext(ctx, "work started", "kind", req.Kind.String())

	switch req.Kind {
	case KindChatCompletion:
		return d.handleChat(ctx, req)
	case KindPdfExtraction:
		return d.handleExtraction(req)
	case KindAudioTranscription:
		return d.handleTranscription(ctx, req)
	case KindRagIngestion:
		return d.handleIngestion(ctx, req)
	case KindTextToSpeech:
		return d.handleSpeech(ctx, req)
	default:
		return Failure(req, "Unknown work type")
	}
}

func (d *Dispatcher) track(requestID string, cancel context.CancelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inflight == nil {
		d.inflight = make(map[string]context.CancelFunc)
	}
	d.inflight[requestID] = cancel
}

func (d *Dispatcher) untrack(requestID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, requestID)
}

// handleChat 組裝最終提示詞後呼叫模型。有工具綁定能力且請求要求
// 工具時走工具迴圈,否則以會話歷史做單次補全。
func (d *Dispatcher) handleChat(ctx context.Context, req Request) Outcome {
	if d.client == nil {
		return Failure(req, "no model client configured")
	}

	finalPrompt := d.buildChatPrompt(ctx, req)

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "default"
	}
	history, err := d.sessions.GetHistory(sessionID)
	if err != nil {
		return Failure(req, err.Error())
	}

	var content string
	toolClient, toolCapable := d.client.(llm.ToolCapableClient)
	if req.UseTools && d.sysCfg.EnableTools && toolCapable {
		// agent 模式用 coordinator 人設取代一般系統提示詞
		history.EnsureSystemMessage(agent.CoordinatorPrompt())
		answer, err := agent.RunToolLoop(ctx, toolClient, history, finalPrompt, d.registry)
		if err != nil {
			return Failure(req, err.Error())
		}
		content = answer
	} else {
		if d.systemPrompt != "" {
			history.EnsureSystemMessage(d.systemPrompt)
		}
		// 先在本地組出本輪訊息,模型成功回覆後才寫回共享歷史,
		// 失敗的呼叫不能留下懸空的 user turn
		userMsg := llm.NewUserMessage(finalPrompt)
		working := append(history.GetMessages(), userMsg)
		reply, err := d.client.Complete(ctx, working)
		if err != nil {
			return Failure(req, err.Error())
		}
		history.AddAll([]llm.Message{userMsg, reply})
		content = reply.Content
	}

	if err := d.sessions.SaveSession(sessionID); err != nil {
		slog.WarnContext(ctx, "failed to persist session", "session_id", sessionID, "error", err)
	}

	return Success(req, prompt.CleanResponse(content))
}

// buildChatPrompt 依序串接:基礎提示詞、檢索區塊(有命中才加)、
// 附件文件文本,最後才是使用者選取的文字
func (d *Dispatcher) buildChatPrompt(ctx context.Context, req Request) string {
	var sb strings.Builder
	sb.WriteString(req.Prompt)

	if req.UseRetrieval && d.retriever != nil {
		snippets := d.retriever.Retrieve(ctx, req.Text, d.sysCfg.RetrievalTopK)
		if len(snippets) > 0 {
			sb.WriteString("\n\nContext:\n---\n")
			sb.WriteString(strings.Join(snippets, "\n\n"))
			sb.WriteString("\n---\n")
		}
	}

	if req.FilePath != "" && d.extractor != nil {
		text, err := d.extractor.ExtractText(req.FilePath)
		if err != nil {
			slog.WarnContext(ctx, "attachment extraction failed", "path", req.FilePath, "error", err)
		} else if text != "" {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(req.Text)

	if d.promptFooter != "" {
		sb.WriteString("\n\n")
		sb.WriteString(d.promptFooter)
	}
	return sb.String()
}

func (d *Dispatcher) handleExtraction(req Request) Outcome {
	if d.extractor == nil {
		return Failure(req, "no document extractor configured")
	}
	text, err := d.extractor.ExtractText(req.FilePath)
	if err != nil {
		return Failure(req, err.Error())
	}
	return Success(req, text)
}

func (d *Dispatcher) handleTranscription(ctx context.Context, req Request) Outcome {
	if d.transcriber == nil {
		return Failure(req, "no transcriber configured")
	}
	text, err := d.transcriber.Transcribe(ctx, req.FilePath)
	if err != nil {
		return Failure(req, err.Error())
	}
	return Success(req, text)
}

func (d *Dispatcher) handleIngestion(ctx context.Context, req Request) Outcome {
	if d.retriever == nil {
		return Failure(req, "no retrieval backend configured")
	}
	count, err := d.retriever.IngestPaths(ctx, req.Paths)
	if err != nil {
		return Failure(req, err.Error())
	}
	return Success(req, fmt.Sprintf("Success | Chunks indexed: %d", count))
}

func (d *Dispatcher) handleSpeech(ctx context.Context, req Request) Outcome {
	if d.synthesizer == nil {
		return Failure(req, "no speech backend configured")
	}
	audio, err := d.synthesizer.Synthesize(ctx, req.Text)
	if err != nil {
		return Failure(req, err.Error())
	}
	if err := os.WriteFile(req.OutputPath, audio, 0644); err != nil {
		return Failure(req, err.Error())
	}
	return Success(req, req.OutputPath)
}
