package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hrygo/yapper/plugin/ai"
	"github.com/hrygo/yapper/plugin/ai/vector"
	"github.com/hrygo/yapper/server/internal/observability"
)

const (
	// NoEntriesMarker replaces the context when nothing relevant was found.
	NoEntriesMarker = "No relevant entries found."
	// DefaultMaxContextChars bounds the assembled context.
	DefaultMaxContextChars = 8000
)

const chatSystemPrompt = `You are an AI assistant that answers questions based on the user's journal entries.
You will be given relevant entries from their journal.
Use this context to give insightful, personalized answers.
If the context does not contain relevant information, say so and give a general answer.
Keep a conversational, helpful tone.`

// Searcher is the retrieval step the responder depends on.
type Searcher interface {
	Search(ctx context.Context, query, ownerID string, k int) ([]*SearchResult, error)
}

// Source identifies an entry that was included in the chat context.
type Source struct {
	EntryID    string
	DisplayID  int32
	Similarity float64
}

// Answer is a chat reply together with the entries it was grounded on.
type Answer struct {
	Text    string
	Sources []Source
}

// Responder answers questions with retrieved journal context.
type Responder struct {
	searcher        Searcher
	llm             ai.LLMService
	maxContextChars int
}

// NewResponder creates a Responder. maxContextChars <= 0 uses DefaultMaxContextChars.
func NewResponder(searcher Searcher, llm ai.LLMService, maxContextChars int) *Responder {
	if maxContextChars <= 0 {
		maxContextChars = DefaultMaxContextChars
	}
	return &Responder{searcher: searcher, llm: llm, maxContextChars: maxContextChars}
}

// Answer retrieves up to k entries for question and asks the chat model.
func (r *Responder) Answer(ctx context.Context, question, ownerID string, k int) (*Answer, error) {
	results, err := r.searcher.Search(ctx, question, ownerID, k)
	if err != nil {
		return nil, err
	}
	log := observability.Logger(ctx, "chat", ownerID)

	contextBlock, sources := r.buildContext(results)
	if len(results) > len(sources) {
		log.Debug("context truncated", slog.Int("dropped", len(results)-len(sources)))
	}
	empty := len(sources) == 0
	if empty {
		contextBlock = NoEntriesMarker
	}

	userContent := fmt.Sprintf("Context from journal entries:\n\n%s\n\nUser question: %s", contextBlock, question)
	reply, err := r.llm.Chat(ctx, ai.FormatMessages(chatSystemPrompt, userContent, nil))
	if err != nil {
		log.Warn("completion failed", slog.String("error", err.Error()))
		return nil, err
	}

	if empty {
		reply = NoEntriesMarker + " " + strings.TrimSpace(reply)
	}
	return &Answer{Text: reply, Sources: sources}, nil
}

// buildContext concatenates results in rank order. The first block that
// does not fit is cut to the remaining budget and marked with an ellipsis, as
// long as some of its content fits; assembly stops after it. Sources lists
// exactly the included entries.
func (r *Responder) buildContext(results []*SearchResult) (string, []Source) {
	var b strings.Builder
	sources := make([]Source, 0, len(results))
	for _, res := range results {
		header := fmt.Sprintf("Entry #%d (similarity: %.2f):\n",
			res.DisplayID, vector.Round(res.Similarity, displayPrecision))
		content := res.NormalizedContent
		full := b.Len()+len(header)+len(content)+len(blockSeparator) <= r.maxContextChars
		if !full {
			room := r.maxContextChars - b.Len() - len(header) - len(ellipsis) - len(blockSeparator)
			content = truncateUTF8(content, room)
			if content == "" {
				break
			}
			content += ellipsis
		}
		b.WriteString(header)
		b.WriteString(content)
		b.WriteString(blockSeparator)
		sources = append(sources, Source{EntryID: res.EntryID, DisplayID: res.DisplayID, Similarity: res.Similarity})
		if !full {
			break
		}
	}
	return strings.TrimRight(b.String(), "\n"), sources
}

const (
	ellipsis       = "…"
	blockSeparator = "\n\n"
)

// truncateUTF8 returns the longest prefix of s of at most n bytes that ends
// on a rune boundary.
func truncateUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
