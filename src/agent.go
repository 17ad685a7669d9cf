package ebookbot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Agent is the shared model-calling capability each step is built from.
type Agent struct {
	Name         string
	SystemPrompt string
	client       Client
	logger       *slog.Logger
}

func NewAgent(name, systemPrompt string, client Client, logger *slog.Logger) *Agent {
	return &Agent{
		Name:         name,
		SystemPrompt: systemPrompt,
		client:       client,
		logger:       loggerOr(logger).With("agent", name),
	}
}

// Invoke sends userPrompt and decodes the JSON object in the reply into out.
func (a *Agent) Invoke(ctx context.Context, userPrompt string, out interface{}) error {
	a.Log("calling model", "prompt_chars", len(userPrompt))
	response, err := a.client.SendMessage(ctx, a.SystemPrompt, userPrompt)
	if err != nil {
		return a.HandleFailure(err)
	}
	if err := decodeJSONResponse(response, out); err != nil {
		return a.HandleFailure(err)
	}
	return nil
}

func (a *Agent) Log(msg string, args ...interface{}) {
	a.logger.Info(msg, args...)
}

// HandleFailure logs err and names the agent in it. The error class is kept
// so the orchestrator can still tell transient failures from schema ones.
func (a *Agent) HandleFailure(err error) error {
	a.logger.Warn("agent failed", "err", err)
	return fmt.Errorf("%s agent: %w", a.Name, err)
}

// decodeJSONResponse strips markdown fences and decodes the outermost JSON
// object of a model reply.
func decodeJSONResponse(response string, out interface{}) error {
	raw, err := extractJSONObject(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return schemaErrorf("decoding model response: %v", err)
	}
	return nil
}

func extractJSONObject(response string) (string, error) {
	s := strings.TrimSpace(response)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", schemaErrorf("no JSON object in model response")
	}
	return s[start : end+1], nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
