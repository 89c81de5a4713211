package app

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"fhe-quiz-client/internal/domain"
)

const quizIDPrefix = "quiz-"

// Mirror is the client-side cache of remote quiz records plus the local
// answer selections and the append-only submission history. Hydration is
// wholesale: every pass replaces the entire collection; the remote store
// stays the source of truth and entries are never deleted locally.
type Mirror struct {
	logger *slog.Logger
	clock  func() time.Time

	mu         sync.RWMutex
	quizzes    []domain.QuizEntity
	selections map[int64]int
	history    []domain.HistoryEntry
}

func NewMirror(logger *slog.Logger) *Mirror {
	return newMirrorWithClock(logger, time.Now)
}

// newMirrorWithClock allows deterministic fallback ids in tests.
func newMirrorWithClock(logger *slog.Logger, now func() time.Time) *Mirror {
	return &Mirror{
		logger:     logger,
		clock:      now,
		selections: make(map[int64]int),
	}
}

// NewMirrorWithClock is test-only for deterministic timestamps.
func NewMirrorWithClock(logger *slog.Logger, now func() time.Time) *Mirror {
	return newMirrorWithClock(logger, now)
}

// Hydrate enumerates all remote record ids and rebuilds the collection.
// A record whose fetch fails is logged and skipped; one bad record must not
// hide all others. A record whose id does not parse keeps a fallback id
// derived from the clock rather than being dropped.
func (m *Mirror) Hydrate(ctx context.Context, gw ReadGateway) error {
	ids, err := gw.AllRecordIDs(ctx)
	if err != nil {
		return err
	}

	quizzes := make([]domain.QuizEntity, 0, len(ids))
	for _, id := range ids {
		data, err := gw.RecordData(ctx, id)
		if err != nil {
			m.logger.Warn("skipping record during hydration", "record", id, "err", err)
			continue
		}
		quizzes = append(quizzes, m.buildEntity(id, data))
	}

	m.mu.Lock()
	m.quizzes = quizzes
	m.mu.Unlock()
	return nil
}

func (m *Mirror) buildEntity(recordID string, data domain.RecordData) domain.QuizEntity {
	id, err := strconv.ParseInt(strings.TrimPrefix(recordID, quizIDPrefix), 10, 64)
	if err != nil {
		id = m.clock().UnixMilli()
	}
	return domain.QuizEntity{
		ID:             id,
		Question:       data.Name,
		Options:        domain.OptionLabels,
		CorrectAnswer:  int(data.PublicValue1),
		Creator:        data.Creator,
		Timestamp:      data.Timestamp,
		PublicValue1:   data.PublicValue1,
		PublicValue2:   data.PublicValue2,
		Verified:       data.IsVerified,
		DecryptedValue: data.DecryptedValue,
	}
}

// UpsertAfterCreate inserts or replaces a freshly confirmed entity. It is
// the fallback when the post-create hydration pass fails; the next
// successful hydration replaces the collection wholesale anyway.
func (m *Mirror) UpsertAfterCreate(entity domain.QuizEntity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, q := range m.quizzes {
		if q.ID == entity.ID {
			m.quizzes[i] = entity
			return
		}
	}
	m.quizzes = append(m.quizzes, entity)
}

// Quizzes returns a copy of the current collection.
func (m *Mirror) Quizzes() []domain.QuizEntity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.QuizEntity, len(m.quizzes))
	copy(out, m.quizzes)
	return out
}

// Quiz returns the mirrored entity for id.
func (m *Mirror) Quiz(id int64) (domain.QuizEntity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.quizzes {
		if q.ID == id {
			return q, true
		}
	}
	return domain.QuizEntity{}, false
}

// RecordSubmission stores the local selection for a quiz (last-write-wins)
// and appends one history entry. Called only after the remote write reached
// finality.
func (m *Mirror) RecordSubmission(quizID int64, answer int) domain.HistoryEntry {
	entry := domain.HistoryEntry{
		QuizID:    quizID,
		Answer:    answer,
		Timestamp: m.clock(),
		Status:    "submitted",
	}
	m.mu.Lock()
	m.selections[quizID] = answer
	m.history = append(m.history, entry)
	m.mu.Unlock()
	return entry
}

// Selection returns the locally chosen option for a quiz, if any.
func (m *Mirror) Selection(quizID int64) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	answer, ok := m.selections[quizID]
	return answer, ok
}

// Selections returns a copy of the selection map.
func (m *Mirror) Selections() map[int64]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]int, len(m.selections))
	for k, v := range m.selections {
		out[k] = v
	}
	return out
}

// History returns a copy of the submission log.
func (m *Mirror) History() []domain.HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.HistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}

// Stats summarizes the mirror for the presentation layer.
func (m *Mirror) Stats() domain.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	verified := 0
	for _, q := range m.quizzes {
		if q.Verified {
			verified++
		}
	}
	return domain.Stats{
		TotalQuizzes:  len(m.quizzes),
		VerifiedCount: verified,
		Submissions:   len(m.history),
	}
}

// Reset clears selections and history. Only a full session reset calls this.
func (m *Mirror) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selections = make(map[int64]int)
	m.history = nil
}
