// Package backfill reconciles the coverage gap left by downtime: it walks
// monitored chats for messages since the persisted checkpoint and feeds them
// through the same classification path as live ingestion.
package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chat-task-scanner-go/internal/config"
	"chat-task-scanner-go/internal/metrics"
	"chat-task-scanner-go/internal/models"
	"chat-task-scanner-go/internal/pipeline"
	"chat-task-scanner-go/internal/store"
	"chat-task-scanner-go/internal/transport"
)

// maxFetchGrowth caps the window-growth refetch loop so a pathologically
// message-dense chat cannot keep the scan alive forever. The lookback cutoff
// already bounds it implicitly; this makes termination explicit.
const maxFetchGrowth = 6

// Scanner runs the one-shot startup backfill.
type Scanner struct {
	client      transport.Client
	directory   *pipeline.ChatDirectory
	ingestor    *pipeline.Ingestor
	checkpoints *store.CheckpointStore
	cfg         config.BackfillConfig
	metrics     *metrics.Metrics
}

// NewScanner creates a backfill scanner
func NewScanner(client transport.Client, directory *pipeline.ChatDirectory, ingestor *pipeline.Ingestor, checkpoints *store.CheckpointStore, cfg config.BackfillConfig, m *metrics.Metrics) *Scanner {
	return &Scanner{
		client:      client,
		directory:   directory,
		ingestor:    ingestor,
		checkpoints: checkpoints,
		cfg:         cfg,
		metrics:     m,
	}
}

// Run scans every monitored chat for messages newer than the checkpoint,
// bounded by the lookback cap and the scan timeout. The checkpoint advances
// to "now" only after the whole scan completes with findings, never to a
// per-message timestamp.
func (s *Scanner) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		logrus.Info("Startup backfill disabled, skipping")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	runID := uuid.NewString()[:8]
	log := logrus.WithField("scan", runID)

	cp, err := s.checkpoints.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	now := time.Now()
	lookbackFloor := now.AddDate(0, 0, -s.cfg.MaxLookbackDays)
	cutoff := cp.LastSeenAt
	if lookbackFloor.After(cutoff) {
		cutoff = lookbackFloor
	}

	chats := s.directory.Monitored()
	log.Infof("Backfill scan started: %d chats, cutoff %s", len(chats), cutoff.Format(time.RFC3339))
	s.metrics.BackfillScans.Inc()

	found := 0
	for i, chat := range chats {
		if ctx.Err() != nil {
			return fmt.Errorf("backfill scan aborted: %w", ctx.Err())
		}

		msgs, err := s.scanChat(ctx, chat.ChatID, cutoff)
		if err != nil {
			log.Warnf("Failed to scan chat %s: %v", chat.Name, err)
			continue
		}

		// Oldest first so classifier reference dates follow chat order.
		for j := len(msgs) - 1; j >= 0; j-- {
			s.ingestor.Handle(ctx, msgs[j])
			s.metrics.BackfillMessages.Inc()
		}

		found += len(msgs)
		progress := (i + 1) * 100 / len(chats)
		log.Infof("Scanned chat %q: %d messages since cutoff (%d%%)", chat.Name, len(msgs), progress)
	}

	if found > 0 {
		if err := s.checkpoints.Advance(ctx, now); err != nil {
			return fmt.Errorf("failed to advance checkpoint: %w", err)
		}
	}

	log.Infof("Backfill scan completed: %d messages", found)
	return nil
}

// scanChat fetches the most-recent page of a chat and grows the window while
// every fetched message still qualifies, meaning older qualifying messages
// may exist beyond the page. A message exactly at the cutoff is included.
func (s *Scanner) scanChat(ctx context.Context, chatID string, cutoff time.Time) ([]models.Message, error) {
	limit := s.cfg.FetchPageSize

	var qualifying []models.Message
	for iter := 0; iter < maxFetchGrowth; iter++ {
		msgs, err := s.client.FetchMessages(ctx, chatID, limit)
		if err != nil {
			return nil, err
		}

		qualifying = filterSince(msgs, cutoff)

		// Window is wide enough once the fetch came back short or some
		// fetched message predates the cutoff.
		if len(msgs) < limit || len(qualifying) < len(msgs) {
			return qualifying, nil
		}

		limit *= 2
		logrus.Debugf("Growing backfill window for chat %s to %d", chatID, limit)
	}

	logrus.Warnf("Backfill window growth ceiling reached for chat %s, proceeding with %d messages", chatID, len(qualifying))
	return qualifying, nil
}

func filterSince(msgs []models.Message, cutoff time.Time) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Timestamp.Before(cutoff) {
			out = append(out, m)
		}
	}
	return out
}
