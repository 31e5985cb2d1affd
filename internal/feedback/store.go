// Package feedback collects user ratings of answers and turns them into
// training data. Records are append-only: once collected they are never
// edited or deleted, only transitioned Created→Processed by the pipeline.
package feedback

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aneven/knowd/internal/storage"
)

// ErrInvalid wraps all feedback validation failures.
var ErrInvalid = errors.New("invalid feedback")

// RoleValidator reports whether a role name exists in the role table.
type RoleValidator interface {
	ValidRole(role string) bool
}

// Submission is the caller-supplied portion of a feedback record.
type Submission struct {
	Query      string
	Response   string
	Rating     int
	Comment    string
	Correction string
	Role       string
}

// Store validates and persists feedback submissions.
type Store struct {
	db    *storage.Store
	roles RoleValidator
	log   *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewStore creates a feedback Store.
func NewStore(db *storage.Store, roles RoleValidator, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		db:    db,
		roles: roles,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Collect validates a submission and appends it in the Created state.
// Returns the stored record, or an error wrapping ErrInvalid on bad input.
func (s *Store) Collect(sub Submission) (storage.FeedbackRecord, error) {
	if strings.TrimSpace(sub.Query) == "" {
		return storage.FeedbackRecord{}, fmt.Errorf("%w: query is required", ErrInvalid)
	}
	if strings.TrimSpace(sub.Response) == "" {
		return storage.FeedbackRecord{}, fmt.Errorf("%w: response is required", ErrInvalid)
	}
	if sub.Rating < 1 || sub.Rating > 5 {
		return storage.FeedbackRecord{}, fmt.Errorf("%w: rating must be between 1 and 5, got %d", ErrInvalid, sub.Rating)
	}
	if !s.roles.ValidRole(sub.Role) {
		return storage.FeedbackRecord{}, fmt.Errorf("%w: unknown role %q", ErrInvalid, sub.Role)
	}

	rec := storage.FeedbackRecord{
		ID:         s.newID(),
		Query:      sub.Query,
		Response:   sub.Response,
		Rating:     sub.Rating,
		Comment:    sub.Comment,
		Correction: sub.Correction,
		Role:       sub.Role,
		State:      storage.StateCreated,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.db.SaveFeedback(rec); err != nil {
		return storage.FeedbackRecord{}, fmt.Errorf("saving feedback: %w", err)
	}

	s.log.Info("feedback collected",
		"id", rec.ID,
		"rating", rec.Rating,
		"role", rec.Role,
		"has_correction", rec.Correction != "")
	return rec, nil
}

// Stats aggregates the feedback table.
func (s *Store) Stats() (storage.FeedbackStats, error) {
	return s.db.GetFeedbackStats()
}
