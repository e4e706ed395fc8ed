package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// TextSource 提供文件內容,由 extract 套件實作
type TextSource interface {
	Supported(path string) bool
	ExtractText(path string) (string, error)
}

// Indexer 負責把文件切片、向量化並寫入儲存
type Indexer struct {
	embedder Embedder
	store    *RedisStore
	source   TextSource
}

func NewIndexer(embedder Embedder, store *RedisStore, source TextSource) *Indexer {
	return &Indexer{embedder: embedder, store: store, source: source}
}

// IngestPaths 索引給定路徑(檔案或目錄),回傳索引的片段總數。
// 任一檔案失敗即整批失敗。
func (ix *Indexer) IngestPaths(ctx context.Context, paths []string) (int, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return 0, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if info.IsDir() {
			err := filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && ix.source.Supported(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return 0, fmt.Errorf("failed to walk %s: %w", p, err)
			}
		} else {
			files = append(files, p)
		}
	}

	total := 0
	for _, file := range files {
		text, err := ix.source.ExtractText(file)
		if err != nil {
			return 0, fmt.Errorf("failed to extract %s: %w", file, err)
		}
		chunks := SplitText(text)
		if len(chunks) == 0 {
			continue
		}
		vectors, err := ix.embedder.Embed(ctx, chunks)
		if err != nil {
			return 0, fmt.Errorf("failed to embed %s: %w", file, err)
		}
		if err := ix.store.Add(ctx, chunks, vectors); err != nil {
			return 0, fmt.Errorf("failed to index %s: %w", file, err)
		}
		total += len(chunks)
	}
	return total, nil
}

// Retrieve 以查詢文本取回最相關的片段文本。檢索屬於盡力而為:
// 任何錯誤都記錄後回傳空結果,不阻斷對話。
func (ix *Indexer) Retrieve(ctx context.Context, query string, k int) []string {
	if k <= 0 {
		return nil
	}
	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		slog.WarnContext(ctx, "retrieval embedding failed", "error", err)
		return nil
	}
	hits, err := ix.store.Search(ctx, vectors[0], k)
	if err != nil {
		slog.WarnContext(ctx, "retrieval search failed", "error", err)
		return nil
	}
	snippets := make([]string, 0, len(hits))
	for _, h := range hits {
		snippets = append(snippets, h.Text)
	}
	return snippets
}
