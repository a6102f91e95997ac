// Package chunking splits resource text into deterministic, sentence-
// aligned chunks ready for embedding and vector storage.
package chunking

import (
	"regexp"
	"strings"

	"ltmc-engine/internal/config"
	"ltmc-engine/pkg/types"
)

// sentenceBoundary approximates sentence ends without pulling in a full
// NLP sentence tokenizer: a '.', '!' or '?' followed by whitespace. Text
// after the last such boundary forms the final sentence.
var sentenceBoundary = regexp.MustCompile(`([.!?])\s+`)

// Service splits resource text into Chunks using fixed, deterministic
// rules: the same input always produces the same chunk boundaries.
type Service struct {
	maxSentencesPerChunk int
	maxCharsPerChunk     int
}

// NewService creates a chunking Service from the engine's chunking config.
func NewService(cfg *config.ChunkingConfig) *Service {
	return &Service{
		maxSentencesPerChunk: cfg.MaxSentencesPerChunk,
		maxCharsPerChunk:     cfg.MaxCharsPerChunk,
	}
}

// Split breaks text into an ordered list of chunk texts. Sentences are
// never split mid-way; a chunk closes when it would exceed either the
// sentence count or character budget, whichever comes first.
func (s *Service) Split(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	sentenceCount := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
			sentenceCount = 0
		}
	}

	for _, sentence := range sentences {
		candidateLen := current.Len() + len(sentence) + 1
		if sentenceCount > 0 && (sentenceCount >= s.maxSentencesPerChunk || candidateLen > s.maxCharsPerChunk) {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
		sentenceCount++
	}
	flush()

	return chunks
}

// BuildChunks splits text and attaches each piece to resourceID as an
// ordered, unsaved types.Chunk ready for vector-ID allocation.
func (s *Service) BuildChunks(resourceID int64, text string) []types.Chunk {
	pieces := s.Split(text)
	chunks := make([]types.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = types.Chunk{
			ResourceID: resourceID,
			Text:       piece,
			Index:      i,
		}
	}
	return chunks
}

// splitSentences tokenizes text into trimmed, non-empty sentences.
func splitSentences(text string) []string {
	normalized := strings.TrimSpace(text)
	if normalized == "" {
		return nil
	}

	marked := sentenceBoundary.ReplaceAllString(normalized, "$1\n")
	lines := strings.Split(marked, "\n")

	sentences := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}
