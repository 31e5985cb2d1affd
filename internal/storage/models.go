package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyProcessed is returned when a feedback record has already left the
// Created state. The Created→Processed transition happens exactly once.
var ErrAlreadyProcessed = errors.New("feedback already processed")

// FeedbackState is the lifecycle state of a feedback record.
// The only legal transition is Created→Processed; records are never deleted.
type FeedbackState string

const (
	StateCreated   FeedbackState = "created"
	StateProcessed FeedbackState = "processed"
)

// FeedbackRecord is an append-only user rating of a query/response pair.
type FeedbackRecord struct {
	ID         string
	Query      string
	Response   string
	Rating     int // 1–5
	Comment    string
	Correction string
	Role       string
	State      FeedbackState
	CreatedAt  time.Time
}

// Training pair source tags.
const (
	SourceFeedback  = "feedback"
	SourceSynthetic = "synthetic"
)

// TrainingPair is a quality-scored (input, output) example derived from
// feedback or synthetic seeding. Immutable once created.
type TrainingPair struct {
	ID           string
	Instruction  string
	Input        string
	Output       string
	QualityScore float64 // 1.0–5.0
	Source       string
	NeedsReview  bool // negative examples are flagged for human review
	FeedbackID   string
	CreatedAt    time.Time
}

// Chunk is a document fragment with its access category and embedding.
type Chunk struct {
	ID        string
	Content   string
	Category  string
	Metadata  string // JSON object stored as text
	Embedding []float32
	CreatedAt time.Time
}

// FeedbackStats aggregates the feedback table.
type FeedbackStats struct {
	Total     int
	Processed int
	AvgRating float64
	Positive  int // rating >= 4
	Negative  int // rating <= 2
}

// TrainingStats aggregates the training_pairs table.
type TrainingStats struct {
	TotalPairs  int
	AvgQuality  float64
	NeedsReview int
}
