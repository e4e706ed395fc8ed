package rag

import "strings"

const (
	// ChunkSize 為單一片段的目標字元數
	ChunkSize = 800
	// ChunkOverlap 為相鄰片段的重疊字元數
	ChunkOverlap = 100
)

// separators 由粗到細:先試段落邊界,再退到句子、單字,最後逐字切
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// SplitText 將長文本遞迴切分為帶重疊的片段
func SplitText(text string) []string {
	return splitRecursive(text, separators)
}

func splitRecursive(text string, seps []string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= ChunkSize {
		return []string{text}
	}

	sep := seps[0]
	if sep == "" {
		return splitBySize(text)
	}

	parts := strings.Split(text, sep)
	var chunks []string
	var current strings.Builder
	for _, part := range parts {
		if len(part) > ChunkSize {
			// 單一片段就超長,先清空緩衝再用更細的分隔符處理它
			if chunk := strings.TrimSpace(current.String()); chunk != "" {
				chunks = append(chunks, chunk)
			}
			current.Reset()
			chunks = append(chunks, splitRecursive(part, seps[1:])...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(sep)+len(part) > ChunkSize {
			chunk := strings.TrimSpace(current.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			// 保留尾端作為重疊,除非加上它會讓下一個片段超長
			tail := overlapTail(current.String())
			current.Reset()
			if len(tail)+len(sep)+len(part) <= ChunkSize {
				current.WriteString(tail)
			}
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(part)
	}
	if remainder := strings.TrimSpace(current.String()); remainder != "" {
		if len(remainder) > ChunkSize {
			chunks = append(chunks, splitRecursive(remainder, seps[1:])...)
		} else {
			chunks = append(chunks, remainder)
		}
	}
	return chunks
}

func overlapTail(s string) string {
	if len(s) <= ChunkOverlap {
		return s
	}
	return s[len(s)-ChunkOverlap:]
}

// splitBySize 為最後手段:固定長度硬切
func splitBySize(text string) []string {
	var chunks []string
	for start := 0; start < len(text); start += ChunkSize - ChunkOverlap {
		end := start + ChunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}
