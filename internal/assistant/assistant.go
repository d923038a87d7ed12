// Package assistant answers questions about a stored summary with an OpenAI
// chat model and keeps the conversation in the notes store.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"smartnotes/internal/logger"
	"smartnotes/internal/notes"
)

const (
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = openai.GPT4oMini

	// DefaultMaxContextChars caps the summary text sent with each question.
	DefaultMaxContextChars = 12000

	truncationMarker = "\n[...]"
)

var (
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrNoAnswer is returned when the model replies with nothing.
	ErrNoAnswer = errors.New("assistant returned no answer")
)

// Completer is the part of the OpenAI client the assistant needs.
type Completer interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Store is where summaries are read and chats are kept.
type Store interface {
	notes.Repository
	notes.ChatStore
}

// Config configures the assistant.
type Config struct {
	Model           string
	Temperature     float32
	MaxTokens       int
	MaxContextChars int
	MaxRetries      uint
	RetryDelay      time.Duration
}

// AskRequest is one question about a summary. An empty ChatID starts a new chat.
type AskRequest struct {
	UserID    string
	SummaryID string
	ChatID    string
	Question  string
}

// Answer is the assistant's reply.
type Answer struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Service answers questions about summaries.
type Service struct {
	client Completer
	store  Store
	config Config
	log    zerolog.Logger
}

// New creates a service backed by the OpenAI API.
func New(apiKey string, store Store, config Config) (*Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	return NewWithClient(openai.NewClient(apiKey), store, config), nil
}

// NewWithClient creates a service with an explicit completion client.
func NewWithClient(client Completer, store Store, config Config) *Service {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxContextChars <= 0 {
		config.MaxContextChars = DefaultMaxContextChars
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 800
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}
	return &Service{
		client: client,
		store:  store,
		config: config,
		log:    logger.WithComponent("assistant"),
	}
}

// Ask answers a question about the summary and records both turns in the chat.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	const op = "Ask"

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	summary, err := s.store.GetSummary(ctx, req.SummaryID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if summary.UserID != req.UserID {
		return nil, fmt.Errorf("%s: summary %q: %w", op, req.SummaryID, notes.ErrNotFound)
	}

	pages, err := s.store.ListPages(ctx, summary.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	notesText, truncated := s.summaryContext(pages)

	var history []notes.Message
	if req.ChatID != "" {
		chat, err := s.store.GetChat(ctx, req.ChatID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if chat.SummaryID != summary.ID {
			return nil, fmt.Errorf("%s: chat %q: %w", op, req.ChatID, notes.ErrNotFound)
		}
		history, err = s.store.ListMessages(ctx, req.ChatID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt(summary.Title, notesText),
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Sender == notes.SenderAI {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: question,
	})

	s.log.Debug().
		Str("summary_id", summary.ID).
		Int("history", len(history)).
		Int("context_chars", len([]rune(notesText))).
		Bool("truncated", truncated).
		Str("model", s.config.Model).
		Msg("Sending question to assistant")

	text, err := s.complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	chatID, err := s.record(ctx, summary.ID, req.ChatID, question, text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Answer{ChatID: chatID, Text: text, Truncated: truncated}, nil
}

func (s *Service) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	var text string
	err := retry.Do(
		func() error {
			resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       s.config.Model,
				Temperature: s.config.Temperature,
				MaxTokens:   s.config.MaxTokens,
				Messages:    messages,
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return retry.Unrecoverable(ErrNoAnswer)
			}
			text = strings.TrimSpace(resp.Choices[0].Message.Content)
			if text == "" {
				return retry.Unrecoverable(ErrNoAnswer)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.config.MaxRetries),
		retry.Delay(s.config.RetryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.log.Warn().Err(err).Uint("attempt", n+1).Msg("Assistant request failed, retrying")
		}),
	)
	return text, err
}

func (s *Service) record(ctx context.Context, summaryID, chatID, question, answer string) (string, error) {
	if chatID == "" {
		id, err := s.store.CreateChat(ctx, notes.Chat{SummaryID: summaryID})
		if err != nil {
			return "", err
		}
		chatID = id
	}
	if _, err := s.store.AddMessage(ctx, notes.Message{ChatID: chatID, Sender: notes.SenderUser, Text: question}); err != nil {
		return "", err
	}
	if _, err := s.store.AddMessage(ctx, notes.Message{ChatID: chatID, Sender: notes.SenderAI, Text: answer}); err != nil {
		return "", err
	}
	return chatID, s.store.TouchChat(ctx, chatID)
}

// summaryContext joins the page texts and cuts them to MaxContextChars.
func (s *Service) summaryContext(pages []notes.Page) (string, bool) {
	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		texts = append(texts, p.RecognizedText)
	}
	return truncate(strings.Join(texts, "\n\n"), s.config.MaxContextChars)
}

func truncate(text string, limit int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}
	return string(runes[:limit]) + truncationMarker, true
}

func systemPrompt(title, notesText string) string {
	var b strings.Builder
	b.WriteString("You are a study assistant. Answer questions about the student's handwritten notes below. ")
	b.WriteString("Base your answers on the notes; say so when the notes do not cover the question. ")
	b.WriteString("Reply in the language of the question.\n\n")
	fmt.Fprintf(&b, "Notes title: %s\n\n", title)
	b.WriteString("Notes:\n")
	b.WriteString(notesText)
	return b.String()
}
