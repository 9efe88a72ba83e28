package rag

import (
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultChunkSize 默认切片长度（按字符计）
	DefaultChunkSize = 1200
	// DefaultChunkOverlap 默认相邻切片重叠长度
	DefaultChunkOverlap = 200
)

// Chunker 把清洗后的文本切成带重叠的定长片段
// 非末尾切片会回退到窗口内最近的句末标点，避免截断句子
type Chunker struct {
	chunkSize int
	overlap   int
}

// NewChunker 创建切分器，参数非法时回退到默认值
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultChunkOverlap
		if overlap >= chunkSize {
			overlap = chunkSize / 4
		}
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// Split 切分文本
// 文本先清洗；不超过一个窗口时整体作为单个切片返回
func (c *Chunker) Split(text string) []string {
	text = Clean(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0

	for start < len(runes) {
		end := start + c.chunkSize

		// 非末尾切片回退到句末标点
		if end < len(runes) {
			if se := lastSentenceEnd(runes, start, end); se > start {
				end = se + 1
			}
		}

		sliceEnd := end
		if sliceEnd > len(runes) {
			sliceEnd = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:sliceEnd]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		// 带重叠前进；强制严格推进，防止死循环
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	log.Debug().Int("chunks", len(chunks)).Msg("text split into chunks")
	return chunks
}

// lastSentenceEnd 在 runes[start:end) 内找最后一个句末标点的下标，找不到返回 -1
func lastSentenceEnd(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		switch runes[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}
