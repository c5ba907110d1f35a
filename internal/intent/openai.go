package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/njt/schedule365/internal/logging"
)

const schemaName = "meeting_intent"

var instructions = template.Must(template.New("instructions").Parse(`The current time is {{.Now}}.

You are a helpful scheduling assistant that creates meetings in the future in Outlook calendars.
Always use current or future dates (never before today).

Extract the meeting details from the user's request, including:
1. Meeting subject/title
2. Start date and time
3. End date and time
4. Time zone
5. Meeting attendees (if specified)
6. Meeting location (if specified)
7. Meeting description (if specified)

Convert dates and times to ISO 8601 format (YYYY-MM-DDThh:mm:ss).
For time zones, use Microsoft Graph compatible Windows time zones like:
- Pacific Standard Time
- Eastern Standard Time
- UTC

If time zone is not specified, default to "{{.TimeZone}}".
If no end time or duration is given, the meeting lasts 30 minutes.
Attendees are the people's names exactly as written; never invent email addresses.
If a meeting description or location is not provided, leave it empty.
`))

// OpenAIConfig configures an OpenAIParser.
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	TimeZone string

	// MaxTries bounds attempts on rate limiting and server errors.
	MaxTries uint
	Now      func() time.Time
	Logger   *slog.Logger
}

// OpenAIParser extracts intents with a chat-completions model constrained
// to the MeetingIntent JSON schema.
type OpenAIParser struct {
	client   *openai.Client
	model    string
	timeZone string
	maxTries uint
	now      func() time.Time
	logger   *slog.Logger
	schema   *jsonschema.Definition
}

// NewOpenAIParser creates a parser backed by an OpenAI-compatible API.
func NewOpenAIParser(cfg OpenAIConfig) (*OpenAIParser, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (OPENAI_KEY)")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = "Pacific Standard Time"
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	schema, err := jsonschema.GenerateSchemaForType(MeetingIntent{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate intent schema: %w", err)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIParser{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    cfg.Model,
		timeZone: cfg.TimeZone,
		maxTries: cfg.MaxTries,
		now:      cfg.Now,
		logger:   logging.WithOperation(cfg.Logger, "parse_intent"),
		schema:   schema,
	}, nil
}

// Instructions renders the system prompt for the given moment.
func (p *OpenAIParser) Instructions(now time.Time) string {
	var sb strings.Builder
	_ = instructions.Execute(&sb, struct {
		Now      string
		TimeZone string
	}{
		Now:      now.Format("2006-01-02 15:04:05 (Monday)"),
		TimeZone: p.timeZone,
	})
	return sb.String()
}

// Parse implements Parser.
func (p *OpenAIParser) Parse(ctx context.Context, text string) (*MeetingIntent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyRequest
	}

	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.Instructions(p.now())},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName,
				Schema: p.schema,
				Strict: true,
			},
		},
	}

	resp, err := backoff.Retry(ctx, func() (openai.ChatCompletionResponse, error) {
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil && !retryableCompletion(err) {
			return resp, backoff.Permanent(err)
		}
		return resp, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(p.maxTries),
		backoff.WithMaxElapsedTime(30*time.Second),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.logger.Warn("completion failed, retrying", logging.Err(err), "retry_in", next)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse meeting request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("failed to parse meeting request: model returned no choices")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("model refused the request: %s", choice.Message.Refusal)
	}

	var m MeetingIntent
	if err := json.Unmarshal([]byte(choice.Message.Content), &m); err != nil {
		return nil, fmt.Errorf("failed to decode meeting intent: %w", err)
	}
	m.normalize(p.timeZone)

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("model produced an unusable intent: %w", err)
	}

	p.logger.Debug("parsed meeting request",
		"subject", m.Subject,
		"start", m.StartDateTime,
		"attendee_count", len(m.Attendees),
		"tokens", resp.Usage.TotalTokens,
	)
	return &m, nil
}

func retryableCompletion(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}

var _ Parser = (*OpenAIParser)(nil)
