// Package classifier wraps the external language-understanding service. All
// failure modes (rate-limit wait aborted, request timeout, malformed reply)
// degrade to a not-a-task result so classification can never stall or crash
// message processing.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"chat-task-scanner-go/internal/config"
	"chat-task-scanner-go/internal/models"
)

const systemPrompt = `You are a message analyzer for a household chat assistant.
Decide whether the message describes an actionable item: an event, a payment,
a reminder, or a request.

Reply with a single JSON object and nothing else:
{
  "is_task": boolean,
  "types": ["event"|"payment"|"reminder"|"request", ...],
  "summary": "short description of the task",
  "event_time": "ISO-8601 timestamp, only when a concrete time is mentioned",
  "amount": "amount string, only for payments",
  "link": "URL, only when the message contains one",
  "confidence": 0.0-1.0
}

Resolve relative dates ("tomorrow", "next Friday") against the reference date
given with the message. If the message is not actionable, reply {"is_task": false}.`

// Result is the validated outcome of a classification call.
type Result struct {
	IsTask     bool
	Types      []models.TaskType
	Summary    string
	EventTime  *time.Time
	Amount     string
	Link       string
	Confidence float64
}

// response is the raw wire schema. IsTask is a pointer so a missing
// discriminant is distinguishable from an explicit false; both fail closed.
type response struct {
	IsTask     *bool    `json:"is_task"`
	Types      []string `json:"types"`
	Summary    string   `json:"summary"`
	EventTime  string   `json:"event_time"`
	Amount     string   `json:"amount"`
	Link       string   `json:"link"`
	Confidence float64  `json:"confidence"`
}

// Gateway serializes and throttles calls to the classification service. One
// shared instance per process: the limiter is the single serialization point
// respecting the global external rate ceiling.
type Gateway struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	timeout time.Duration
}

// New creates a classifier gateway from configuration
func New(cfg *config.ClassifierConfig) *Gateway {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Gateway{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		timeout: cfg.Timeout,
	}
}

// Classify analyzes a message against the given reference date. It blocks
// cooperatively until the minimum inter-call spacing has elapsed, then issues
// one request under a bounded timeout. It never returns an error: any failure
// yields a not-a-task result.
func (g *Gateway) Classify(ctx context.Context, msg models.Message, referenceDate time.Time) Result {
	// The wait runs on the caller's context: queueing behind the limiter is
	// not part of the call and must not be charged against its timeout.
	if err := g.limiter.Wait(ctx); err != nil {
		logrus.Warnf("Classifier rate-limit wait aborted for message %s: %v", msg.ID, err)
		return Result{}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf("Reference date: %s\n\nMessage:\n%s",
		referenceDate.Format("Monday, January 2, 2006 15:04"), msg.Body)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.1,
		MaxTokens:   300,
	})
	if err != nil {
		logrus.Warnf("Classification call failed for message %s: %v", msg.ID, err)
		return Result{}
	}
	if len(resp.Choices) == 0 {
		logrus.Warnf("Classification returned no choices for message %s", msg.ID)
		return Result{}
	}

	return decodeResult(resp.Choices[0].Message.Content)
}

// decodeResult parses a raw model reply into a validated Result. Malformed
// payloads and a missing is_task discriminant fold to not-a-task.
func decodeResult(raw string) Result {
	raw = stripFences(raw)

	var r response
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		logrus.Warnf("Failed to decode classification response: %v", err)
		return Result{}
	}
	if r.IsTask == nil || !*r.IsTask {
		return Result{}
	}

	out := Result{
		IsTask:     true,
		Summary:    strings.TrimSpace(r.Summary),
		Amount:     strings.TrimSpace(r.Amount),
		Link:       strings.TrimSpace(r.Link),
		Confidence: clamp(r.Confidence, 0, 1),
	}

	for _, t := range r.Types {
		tt := models.TaskType(strings.ToLower(strings.TrimSpace(t)))
		if models.ValidTaskType(tt) {
			out.Types = append(out.Types, tt)
		}
	}

	if r.EventTime != "" {
		if ts, ok := parseEventTime(r.EventTime); ok {
			out.EventTime = &ts
		}
	}

	return out
}

// stripFences removes a markdown code fence some models wrap JSON in
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func parseEventTime(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return ts, true
		}
	}
	logrus.Debugf("Unparseable event_time in classification response: %q", s)
	return time.Time{}, false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
