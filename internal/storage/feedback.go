package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveFeedback appends a feedback record in the Created state.
func (s *Store) SaveFeedback(f FeedbackRecord) error {
	state := f.State
	if state == "" {
		state = StateCreated
	}
	_, err := s.db.Exec(`
		INSERT INTO feedback (id, query, response, rating, comment, correction, role, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Query, f.Response, f.Rating, f.Comment, f.Correction, f.Role,
		string(state), f.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetFeedback returns a single feedback record by ID.
func (s *Store) GetFeedback(id string) (FeedbackRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, query, response, rating, comment, correction, role, state, created_at
		FROM feedback WHERE id = ?`, id)
	f, err := scanFeedback(row)
	if err == sql.ErrNoRows {
		return FeedbackRecord{}, ErrNotFound
	}
	return f, err
}

// ListUnprocessedFeedback returns all feedback records still in the Created
// state, oldest first for deterministic processing order.
func (s *Store) ListUnprocessedFeedback() ([]FeedbackRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, query, response, rating, comment, correction, role, state, created_at
		FROM feedback WHERE state = ? ORDER BY created_at ASC, id ASC`, string(StateCreated))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FeedbackRecord
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

// MarkFeedbackProcessed performs the Created→Processed transition. Returns
// ErrAlreadyProcessed if the record exists but has already transitioned, or
// ErrNotFound if it does not exist. The transition never reverses.
func (s *Store) MarkFeedbackProcessed(id string) error {
	res, err := s.db.Exec(`UPDATE feedback SET state = ? WHERE id = ? AND state = ?`,
		string(StateProcessed), id, string(StateCreated))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM feedback WHERE id = ?", id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrAlreadyProcessed
}

// GetFeedbackStats aggregates the feedback table.
func (s *Store) GetFeedbackStats() (FeedbackStats, error) {
	var st FeedbackStats
	var avg sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN state = ? THEN 1 END),
			AVG(rating),
			COUNT(CASE WHEN rating >= 4 THEN 1 END),
			COUNT(CASE WHEN rating <= 2 THEN 1 END)
		FROM feedback`, string(StateProcessed),
	).Scan(&st.Total, &st.Processed, &avg, &st.Positive, &st.Negative)
	if err != nil {
		return FeedbackStats{}, fmt.Errorf("aggregating feedback: %w", err)
	}
	st.AvgRating = avg.Float64
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeedback(row rowScanner) (FeedbackRecord, error) {
	var f FeedbackRecord
	var state, createdAt string
	if err := row.Scan(&f.ID, &f.Query, &f.Response, &f.Rating, &f.Comment, &f.Correction, &f.Role, &state, &createdAt); err != nil {
		return FeedbackRecord{}, err
	}
	f.State = FeedbackState(state)
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return FeedbackRecord{}, fmt.Errorf("parsing created_at for feedback %s: %w", f.ID, err)
	}
	f.CreatedAt = t
	return f, nil
}

// --- Training pairs ---

// SaveTrainingPair inserts a training pair. Pairs are immutable once created.
func (s *Store) SaveTrainingPair(p TrainingPair) error {
	_, err := s.db.Exec(`
		INSERT INTO training_pairs (id, instruction, input, output, quality_score, source, needs_review, feedback_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Instruction, p.Input, p.Output, p.QualityScore, p.Source,
		boolToInt(p.NeedsReview), p.FeedbackID, p.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListTrainingPairs returns all pairs with quality_score >= minQuality,
// ordered by created_at ascending for deterministic export.
func (s *Store) ListTrainingPairs(minQuality float64) ([]TrainingPair, error) {
	rows, err := s.db.Query(`
		SELECT id, instruction, input, output, quality_score, source, needs_review, feedback_id, created_at
		FROM training_pairs WHERE quality_score >= ? ORDER BY created_at ASC, id ASC`, minQuality)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TrainingPair
	for rows.Next() {
		var p TrainingPair
		var review int
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Instruction, &p.Input, &p.Output, &p.QualityScore, &p.Source, &review, &p.FeedbackID, &createdAt); err != nil {
			return nil, err
		}
		p.NeedsReview = review != 0
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for pair %s: %w", p.ID, err)
		}
		p.CreatedAt = t
		results = append(results, p)
	}
	return results, rows.Err()
}

// GetTrainingStats aggregates the training_pairs table.
func (s *Store) GetTrainingStats() (TrainingStats, error) {
	var st TrainingStats
	var avg sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT COUNT(*), AVG(quality_score), COUNT(CASE WHEN needs_review != 0 THEN 1 END)
		FROM training_pairs`,
	).Scan(&st.TotalPairs, &avg, &st.NeedsReview)
	if err != nil {
		return TrainingStats{}, fmt.Errorf("aggregating training pairs: %w", err)
	}
	st.AvgQuality = avg.Float64
	return st, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
