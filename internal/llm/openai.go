package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIClient implements the Client interface using OpenAI's API.
type OpenAIClient struct {
	client openai.Client
	config Config
}

// NewOpenAIClient creates an OpenAI-backed generation client.
// Returns an error if the API key is missing or invalid.
func NewOpenAIClient(config Config) (*OpenAIClient, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing API key (set OPENAI_API_KEY or provide in config)", ErrInvalidConfig)
	}
	if config.Model == "" {
		return nil, fmt.Errorf("%w: missing model name", ErrInvalidConfig)
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &OpenAIClient{
		client: client,
		config: config,
	}, nil
}

// Complete sends the system and user messages and returns the concatenated
// response text. Non-2xx responses and timeouts surface as ErrTransport.
func (o *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	if req.User == "" {
		return Response{}, fmt.Errorf("%w: user message cannot be empty", ErrInvalidConfig)
	}

	model := req.Model
	if model == "" {
		model = o.config.Model
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.config.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if len(completion.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: no choices returned", ErrEmptyResponse)
	}

	// Concatenate all returned segments into one raw text body.
	var text string
	for _, choice := range completion.Choices {
		text += choice.Message.Content
	}
	if text == "" {
		return Response{}, fmt.Errorf("%w: blank completion", ErrEmptyResponse)
	}

	return Response{Text: text, StatusCode: http.StatusOK}, nil
}
