package ebookbot

import "context"

// Client sends one system/user prompt pair to a language model and returns
// the text of its reply.
type Client interface {
	SendMessage(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
