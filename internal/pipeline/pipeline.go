// Package pipeline orchestrates the per-message classification flow:
// pre-filter, dedup check, classifier call, task persistence.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"chat-task-scanner-go/internal/classifier"
	"chat-task-scanner-go/internal/indicators"
	"chat-task-scanner-go/internal/metrics"
	"chat-task-scanner-go/internal/models"
	"chat-task-scanner-go/internal/store"
)

// Classifier is the classification gateway surface the pipeline depends on.
type Classifier interface {
	Classify(ctx context.Context, msg models.Message, referenceDate time.Time) classifier.Result
}

// Ingestor runs each message through the classification pipeline. Side
// effects are append-only; once a message is marked analyzed it is never
// re-classified.
type Ingestor struct {
	processed  *store.ProcessedStore
	tasks      *store.TaskStore
	directory  *ChatDirectory
	classifier Classifier
	metrics    *metrics.Metrics
	minLength  int
}

// NewIngestor creates an ingestion pipeline
func NewIngestor(processed *store.ProcessedStore, tasks *store.TaskStore, directory *ChatDirectory, cls Classifier, m *metrics.Metrics, minLength int) *Ingestor {
	return &Ingestor{
		processed:  processed,
		tasks:      tasks,
		directory:  directory,
		classifier: cls,
		metrics:    m,
		minLength:  minLength,
	}
}

// Handle processes one message event. A failure for one message never halts
// processing of the next: panics are recovered, errors logged and absorbed.
func (in *Ingestor) Handle(ctx context.Context, msg models.Message) {
	defer func() {
		if r := recover(); r != nil {
			in.metrics.HandlerPanics.Inc()
			logrus.Errorf("Recovered panic handling message %s: %v", msg.ID, r)
		}
	}()

	if err := in.handle(ctx, msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"message_id": msg.ID,
			"chat_id":    msg.ChatID,
		}).Errorf("Failed to process message: %v", err)
	}
}

func (in *Ingestor) handle(ctx context.Context, msg models.Message) error {
	in.metrics.MessagesSeen.Inc()

	if !in.directory.IsMonitored(msg.ChatID) || in.directory.IsCommandChat(msg.ChatID) {
		return nil
	}

	body := strings.TrimSpace(msg.Body)
	if len(body) < in.minLength {
		return nil
	}

	seen, err := in.processed.IsProcessed(ctx, msg.ID)
	if err != nil {
		return err
	}
	if seen {
		in.metrics.DuplicatesIgnored.Inc()
		return nil
	}

	hadIndicators := indicators.HasIndicators(body)
	if err := in.processed.MarkProcessed(ctx, msg.ID, msg.ChatID, hadIndicators); err != nil {
		return err
	}
	if !hadIndicators {
		return nil
	}
	in.metrics.IndicatorHits.Inc()

	// Mark analyzed before the call: a timed-out classification must not be
	// retried on redelivery.
	if err := in.processed.MarkAnalyzed(ctx, msg.ID); err != nil {
		return err
	}

	in.metrics.ClassifierCalls.Inc()
	started := time.Now()
	result := in.classifier.Classify(ctx, msg, msg.Timestamp)
	in.metrics.ClassifyDuration.Observe(time.Since(started).Seconds())

	if !result.IsTask {
		in.metrics.ClassifierNoTask.Inc()
		return nil
	}

	task := &models.Task{
		MessageID:  msg.ID,
		ChatID:     msg.ChatID,
		ChatName:   in.directory.Name(msg.ChatID),
		Sender:     msg.Sender,
		Text:       body,
		Types:      models.JoinTypes(result.Types),
		Summary:    result.Summary,
		EventTime:  result.EventTime,
		Amount:     result.Amount,
		Link:       result.Link,
		Confidence: result.Confidence,
	}

	created, err := in.tasks.CreateTask(ctx, task)
	if err != nil {
		return err
	}
	if !created {
		in.metrics.DuplicatesIgnored.Inc()
		return nil
	}

	in.metrics.TasksCreated.Inc()
	logrus.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"chat":       task.ChatName,
		"types":      task.Types,
		"confidence": task.Confidence,
	}).Info("Task created")
	return nil
}
