package services

import (
	"context"
	"time"

	"haven/models"
	"haven/repositories"
	"haven/utils"

	"github.com/sirupsen/logrus"
)

// ISO-8601 with millisecond precision in UTC, as stored by earlier clients.
const recordTimestampLayout = "2006-01-02T15:04:05.000Z"

type HistoryService struct {
	store repositories.ProfileStore
}

func NewHistoryService(store repositories.ProfileStore) *HistoryService {
	return &HistoryService{store: store}
}

// BuildRecord turns a finished session into a history entry.
func BuildRecord(status models.SessionStatus, trigger models.TriggerReason, startedAt, endedAt time.Time, substance string) models.SessionRecord {
	record := models.SessionRecord{
		ID:              utils.GenerateUUID(),
		Timestamp:       endedAt.UTC().Format(recordTimestampLayout),
		DurationSeconds: utils.ElapsedSeconds(startedAt, endedAt),
		Substance:       substance,
		Status:          status,
	}
	if status == models.SessionStatusAlert {
		record.Trigger = trigger
	}
	return record
}

// Record persists a finished session. Write failures are returned so the caller
// can log them; the session itself carries on regardless.
func (hs *HistoryService) Record(ctx context.Context, scope string, effect RecordHistoryEffect) (models.SessionRecord, error) {
	record := BuildRecord(effect.Status, effect.Trigger, effect.StartedAt, effect.EndedAt, effect.Substance)

	if err := hs.store.AppendHistory(ctx, scope, record); err != nil {
		return record, err
	}

	logrus.WithFields(logrus.Fields{
		"scope":    scope,
		"status":   record.Status,
		"duration": record.DurationSeconds,
	}).Info("Session recorded")
	return record, nil
}

func (hs *HistoryService) List(ctx context.Context, scope string) ([]models.SessionRecord, error) {
	return hs.store.GetHistory(ctx, scope)
}

func (hs *HistoryService) Summary(ctx context.Context, scope string) (models.HistorySummary, error) {
	records, err := hs.store.GetHistory(ctx, scope)
	if err != nil {
		return models.HistorySummary{}, err
	}
	return Summarize(records), nil
}

func Summarize(records []models.SessionRecord) models.HistorySummary {
	summary := models.HistorySummary{Total: len(records)}
	for _, r := range records {
		summary.TotalSeconds += r.DurationSeconds
		switch r.Status {
		case models.SessionStatusSafe:
			summary.Safe++
		case models.SessionStatusAlert:
			summary.Alert++
		}
	}
	summary.TotalDuration = utils.FormatDuration(summary.TotalSeconds)
	return summary
}
