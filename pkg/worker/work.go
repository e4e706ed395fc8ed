package worker

import (
	"context"
	"fmt"
)

// Kind 為封閉的工作類型枚舉。零值刻意保留為 KindUnknown,
// 讓未初始化的請求落入 dispatcher 的未知分支而不是誤觸某個處理器。
type Kind int

const (
	KindUnknown Kind = iota
	KindChatCompletion
	KindPdfExtraction
	KindAudioTranscription
	KindRagIngestion
	KindTextToSpeech
)

var kindNames = map[Kind]string{
	KindChatCompletion:     "chat_completion",
	KindPdfExtraction:      "pdf_extraction",
	KindAudioTranscription: "audio_transcription",
	KindRagIngestion:       "rag_ingestion",
	KindTextToSpeech:       "text_to_speech",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ParseKind 解析線上格式的工作類型名稱,不認得的名稱一律回 KindUnknown
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindUnknown
}

// Request 為一筆待處理的工作。各欄位依 Kind 取用:
// 聊天用 Prompt/Text/SessionID,文件類用 FilePath/Paths,
// 語音合成另外要 OutputPath。
type Request struct {
	Kind         Kind     `json:"kind"`
	RequestID    string   `json:"request_id"`
	SessionID    string   `json:"session_id,omitempty"`
	Prompt       string   `json:"prompt,omitempty"`
	Text         string   `json:"text,omitempty"`
	FilePath     string   `json:"file_path,omitempty"`
	OutputPath   string   `json:"output_path,omitempty"`
	Paths        []string `json:"paths,omitempty"`
	UseRetrieval bool     `json:"use_retrieval,omitempty"`
	UseTools     bool     `json:"use_tools,omitempty"`
}

// Outcome 為一筆工作的唯一結果。每個 Request 恰好產生一個 Outcome,
// 並且一定帶回原本的 RequestID 與 Kind。
type Outcome struct {
	RequestID string `json:"request_id"`
	Kind      Kind   `json:"kind"`
	OK        bool   `json:"ok"`
	Content   string `json:"content,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Success 建立成功結果,回填原請求的識別欄位
func Success(req Request, content string) Outcome {
	return Outcome{RequestID: req.RequestID, Kind: req.Kind, OK: true, Content: content}
}

// Failure 建立失敗結果,回填原請求的識別欄位
func Failure(req Request, reason string) Outcome {
	return Outcome{RequestID: req.RequestID, Kind: req.Kind, OK: false, Reason: reason}
}

// Retriever 供聊天與索引工作使用的檢索端
type Retriever interface {
	IngestPaths(ctx context.Context, paths []string) (int, error)
	Retrieve(ctx context.Context, query string, k int) []string
}

// Extractor 供文件抽取工作使用
type Extractor interface {
	ExtractText(path string) (string, error)
}

// Transcriber 供語音轉寫工作使用
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Synthesizer 供語音合成工作使用
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
