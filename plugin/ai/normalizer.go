package ai

import (
	"context"
	"fmt"
	"strings"
)

const normalizeSystemPrompt = `You refine journal text for clarity, conciseness and structured understanding.
Restate the given text in one or more paragraphs while keeping its original meaning:
- remove vague phrasing and redundant detail;
- shorten long passages without dropping essential facts;
- keep a neutral tone unless the emotion is part of the meaning;
- never add, remove or distort information.

Examples:
Input: Hey, I was wondering if you could help me figure out why my code isn't running? It's just freezing up and not giving me any errors...
Output: The user's code is freezing without displaying errors. They need help diagnosing the issue.

Input: Why is my internet so slow all of a sudden? It was fine earlier but now everything's lagging.
Output: The user is experiencing sudden internet slowdowns and seeks troubleshooting assistance.`

// Normalizer restates raw entry content into the text that gets embedded.
type Normalizer interface {
	Normalize(ctx context.Context, content string) (string, error)
}

type llmNormalizer struct {
	llm LLMService
}

// NewNormalizer creates a Normalizer backed by the given LLM.
func NewNormalizer(llm LLMService) Normalizer {
	return &llmNormalizer{llm: llm}
}

func (n *llmNormalizer) Normalize(ctx context.Context, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", &EmptyInputError{Field: "content"}
	}

	messages := FormatMessages(normalizeSystemPrompt,
		fmt.Sprintf("Process and refine the following user input: %s", content), nil)
	out, err := n.llm.Chat(ctx, messages)
	if err != nil {
		return "", err
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", &CompletionError{Reason: ReasonMalformed, Cause: fmt.Errorf("normalizer returned empty text")}
	}
	return out, nil
}
