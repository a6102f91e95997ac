// Package retrieval wraps unified semantic search and document retrieval
// with chat-history logging: every answered query is recorded as a chat
// turn, and the chunks used to answer it are linked back via
// context_links so later provenance queries can replay what informed a
// given response.
package retrieval

import (
	"context"
	"strings"

	"ltmc-engine/internal/unified"
	"ltmc-engine/pkg/types"
)

// ChatBackend is the subset of the transactional store retrieval needs
// for conversation logging.
type ChatBackend interface {
	InsertChatMessage(ctx context.Context, m *types.ChatMessage) (int64, error)
	InsertContextLink(ctx context.Context, messageID, chunkID int64) error
}

// Pipeline performs semantic search and logs the resulting conversation
// turn plus its supporting chunks.
type Pipeline struct {
	ops         *unified.Operations
	chat        ChatBackend
	tokenBudget int
}

// New builds a retrieval Pipeline.
func New(ops *unified.Operations, chat ChatBackend) *Pipeline {
	return &Pipeline{ops: ops, chat: chat}
}

// SetTokenBudget bounds the assembled context string returned by Query to
// approximately n whitespace-delimited words. 0 (the default) leaves it
// unbounded.
func (p *Pipeline) SetTokenBudget(n int) {
	p.tokenBudget = n
}

// QueryResult is a ranked semantic-search hit alongside the assembled
// context string and the chat message ID the provenance link was
// recorded against.
type QueryResult struct {
	Hits      []types.SearchResult
	Context   string
	MessageID int64
}

// Query performs a semantic search for content, logs it as a user turn
// in conversationID, links every returned chunk to that turn for later
// provenance replay, and returns the ranked hits plus their assembled
// context string.
func (p *Pipeline) Query(ctx context.Context, conversationID, content string, k int, filterTags ...string) (*QueryResult, error) {
	hits, err := p.ops.SemanticSearch(ctx, content, k, filterTags...)
	if err != nil {
		return nil, err
	}
	ranked := rank(hits)

	messageID, err := p.chat.InsertChatMessage(ctx, &types.ChatMessage{
		ConversationID: conversationID, Role: "user", Content: content,
	})
	if err != nil {
		return nil, err
	}

	for _, hit := range ranked {
		if hit.Chunk.ID == 0 {
			continue
		}
		if err := p.chat.InsertContextLink(ctx, messageID, hit.Chunk.ID); err != nil {
			return nil, err
		}
	}

	return &QueryResult{Hits: ranked, Context: assembleContext(ranked, p.tokenBudget), MessageID: messageID}, nil
}

// assembleContext concatenates chunk texts in rank order, newline
// separated, stopping once the optional word budget would be exceeded.
// No tokenizer is wired into this pipeline, so the budget is approximated
// by counting whitespace-delimited words rather than model tokens.
func assembleContext(hits []types.SearchResult, budget int) string {
	var b strings.Builder
	words := 0
	for _, hit := range hits {
		text := strings.TrimSpace(hit.Chunk.Text)
		if text == "" {
			continue
		}
		if budget > 0 {
			textWords := len(strings.Fields(text))
			if words+textWords > budget {
				break
			}
			words += textWords
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(text)
	}
	return b.String()
}

// rank orders hits by descending similarity score. Ties keep their
// original relative order (stable), matching a straightforward
// best-match-first presentation.
func rank(hits []types.SearchResult) []types.SearchResult {
	ranked := make([]types.SearchResult, len(hits))
	copy(ranked, hits)
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].Score > ranked[j-1].Score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
	return ranked
}
