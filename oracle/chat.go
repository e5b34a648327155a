/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Seednode/wordduel/duel"
)

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// DefaultModels are tried in this order.
var DefaultModels = []string{"llama3-70b-8192", "mistral-saba-24b", "gemma2-9b-it"}

// ChatProvider judges with a single model behind an OpenAI-compatible chat
// completions API.
type ChatProvider struct {
	client openai.Client
	model  string
	logf   func(format string, args ...any)
}

// NewChatProviders returns one provider per model, all sharing a client.
func NewChatProviders(baseURL, apiKey string, models []string, logf func(string, ...any)) []Provider {
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	)

	providers := make([]Provider, 0, len(models))
	for _, m := range models {
		providers = append(providers, &ChatProvider{client: client, model: m, logf: logf})
	}

	return providers
}

func (p *ChatProvider) Name() string {
	return p.model
}

func (p *ChatProvider) Judge(ctx context.Context, seed, guess, persona string) (duel.Verdict, error) {
	startTime := time.Now()

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf("You are a %s judge. Decide if guess beats seed. Reply YES or NO.", persona)),
			openai.UserMessage(fmt.Sprintf("%s vs %s", guess, seed)),
		},
		MaxTokens:   openai.Int(1),
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response")
	}

	reply := resp.Choices[0].Message.Content

	if p.logf != nil {
		p.logf("ORACLE: %s judged %q vs %q as %q (%d prompt + %d completion tokens) in %s",
			p.model,
			guess,
			seed,
			reply,
			resp.Usage.PromptTokens,
			resp.Usage.CompletionTokens,
			time.Since(startTime).Round(time.Millisecond),
		)
	}

	return ParseVerdict(reply)
}
