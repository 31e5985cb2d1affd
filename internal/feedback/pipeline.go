package feedback

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aneven/knowd/internal/query"
	"github.com/aneven/knowd/internal/storage"
)

// defaultInstruction is the instruction field stamped on every derived pair.
const defaultInstruction = "Answer the question using the internal knowledge base."

// ResponseInvalidator evicts cached responses for a (query, role) pair.
// Wired to the response cache so processed corrections take effect
// immediately instead of waiting out the TTL.
type ResponseInvalidator interface {
	InvalidateQuery(normalizedQuery, role string) int
}

// Pipeline converts unprocessed feedback into training pairs.
//
// Each record is claimed with the Created→Processed transition before its
// pair is written, so a record yields at most one pair no matter how many
// times Process runs or how many workers run it concurrently.
type Pipeline struct {
	db        *storage.Store
	responses ResponseInvalidator
	log       *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewPipeline creates a Pipeline. The invalidator may be nil when no
// response cache is wired (CLI batch runs).
func NewPipeline(db *storage.Store, responses ResponseInvalidator, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		db:        db,
		responses: responses,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// ProcessReport summarizes one Process run.
type ProcessReport struct {
	Processed    int `json:"processed"`
	PairsCreated int `json:"pairs_created"`
	Skipped      int `json:"skipped"`
}

// Process converts all unprocessed feedback into training pairs:
//
//   - a correction becomes a pair with the corrected output at quality 5.0
//   - rating >= 4 endorses the response as a pair at the rating's quality
//   - rating <= 2 becomes a negative example flagged for review
//   - rating 3 without a correction produces no pair
//
// Processing a correction also evicts the cached response for that query and
// role. Records another worker claimed first are counted as skipped.
func (p *Pipeline) Process(ctx context.Context) (ProcessReport, error) {
	records, err := p.db.ListUnprocessedFeedback()
	if err != nil {
		return ProcessReport{}, fmt.Errorf("listing unprocessed feedback: %w", err)
	}

	var report ProcessReport
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		// Claim before writing the pair: at most one pair per record.
		if err := p.db.MarkFeedbackProcessed(rec.ID); err != nil {
			if err == storage.ErrAlreadyProcessed {
				report.Skipped++
				continue
			}
			return report, fmt.Errorf("marking feedback %s processed: %w", rec.ID, err)
		}
		report.Processed++

		pair, ok := p.derivePair(rec)
		if ok {
			if err := p.db.SaveTrainingPair(pair); err != nil {
				return report, fmt.Errorf("saving pair for feedback %s: %w", rec.ID, err)
			}
			report.PairsCreated++
		}

		if rec.Correction != "" && p.responses != nil {
			evicted := p.responses.InvalidateQuery(query.Normalize(rec.Query), rec.Role)
			if evicted > 0 {
				p.log.Info("correction invalidated cached responses",
					"feedback_id", rec.ID, "evicted", evicted)
			}
		}
	}

	p.log.Info("feedback processing complete",
		"processed", report.Processed,
		"pairs_created", report.PairsCreated,
		"skipped", report.Skipped)
	return report, nil
}

// derivePair maps one feedback record to its training pair, if any.
func (p *Pipeline) derivePair(rec storage.FeedbackRecord) (storage.TrainingPair, bool) {
	pair := storage.TrainingPair{
		ID:          p.newID(),
		Instruction: defaultInstruction,
		Input:       rec.Query,
		Source:      storage.SourceFeedback,
		FeedbackID:  rec.ID,
		CreatedAt:   p.now().UTC(),
	}

	switch {
	case rec.Correction != "":
		pair.Output = rec.Correction
		pair.QualityScore = 5.0
	case rec.Rating >= 4:
		pair.Output = rec.Response
		pair.QualityScore = float64(rec.Rating)
	case rec.Rating <= 2:
		pair.Output = rec.Response
		pair.QualityScore = float64(rec.Rating)
		pair.NeedsReview = true
	default:
		return storage.TrainingPair{}, false
	}
	return pair, true
}

// AddSynthetic seeds a hand-written training pair not tied to any feedback.
func (p *Pipeline) AddSynthetic(input, output string, quality float64) (storage.TrainingPair, error) {
	if input == "" || output == "" {
		return storage.TrainingPair{}, fmt.Errorf("%w: synthetic pair needs both input and output", ErrInvalid)
	}
	if quality < 1 || quality > 5 {
		return storage.TrainingPair{}, fmt.Errorf("%w: quality must be between 1 and 5, got %g", ErrInvalid, quality)
	}
	pair := storage.TrainingPair{
		ID:           p.newID(),
		Instruction:  defaultInstruction,
		Input:        input,
		Output:       output,
		QualityScore: quality,
		Source:       storage.SourceSynthetic,
		CreatedAt:    p.now().UTC(),
	}
	if err := p.db.SaveTrainingPair(pair); err != nil {
		return storage.TrainingPair{}, fmt.Errorf("saving synthetic pair: %w", err)
	}
	return pair, nil
}

// ExportReport summarizes one export run.
type ExportReport struct {
	Path    string `json:"path"`
	Pairs   int    `json:"pairs"`
	Skipped int    `json:"skipped"`
}

// Export writes training pairs with quality >= minQuality to a timestamped
// file under dir, oldest first. Format is "jsonl" or "csv". Pairs missing an
// input or output are skipped and counted rather than aborting the export.
func (p *Pipeline) Export(dir, format string, minQuality float64) (ExportReport, error) {
	if format != "jsonl" && format != "csv" {
		return ExportReport{}, fmt.Errorf("%w: unsupported export format %q", ErrInvalid, format)
	}

	pairs, err := p.db.ListTrainingPairs(minQuality)
	if err != nil {
		return ExportReport{}, fmt.Errorf("listing training pairs: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ExportReport{}, fmt.Errorf("creating export dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("training_%s.%s", p.now().UTC().Format("20060102_150405"), format))

	f, err := os.Create(path)
	if err != nil {
		return ExportReport{}, fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	report := ExportReport{Path: path}
	switch format {
	case "jsonl":
		err = exportJSONL(f, pairs, &report)
	case "csv":
		err = exportCSV(f, pairs, &report)
	}
	if err != nil {
		return ExportReport{}, err
	}
	if err := f.Close(); err != nil {
		return ExportReport{}, fmt.Errorf("closing export file: %w", err)
	}

	p.log.Info("training data exported",
		"path", path, "format", format, "pairs", report.Pairs, "skipped", report.Skipped)
	return report, nil
}

type exportRow struct {
	Instruction  string  `json:"instruction"`
	Input        string  `json:"input"`
	Output       string  `json:"output"`
	QualityScore float64 `json:"quality_score"`
	Source       string  `json:"source"`
}

func exportJSONL(f *os.File, pairs []storage.TrainingPair, report *ExportReport) error {
	enc := json.NewEncoder(f)
	for _, p := range pairs {
		if p.Input == "" || p.Output == "" {
			report.Skipped++
			continue
		}
		row := exportRow{
			Instruction:  p.Instruction,
			Input:        p.Input,
			Output:       p.Output,
			QualityScore: p.QualityScore,
			Source:       p.Source,
		}
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("writing pair %s: %w", p.ID, err)
		}
		report.Pairs++
	}
	return nil
}

func exportCSV(f *os.File, pairs []storage.TrainingPair, report *ExportReport) error {
	w := csv.NewWriter(f)
	if err := w.Write([]string{"instruction", "input", "output", "quality_score", "source"}); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, p := range pairs {
		if p.Input == "" || p.Output == "" {
			report.Skipped++
			continue
		}
		row := []string{
			p.Instruction,
			p.Input,
			p.Output,
			strconv.FormatFloat(p.QualityScore, 'f', 1, 64),
			p.Source,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing pair %s: %w", p.ID, err)
		}
		report.Pairs++
	}
	w.Flush()
	return w.Error()
}

// TrainingStats aggregates the training pair table.
func (p *Pipeline) TrainingStats() (storage.TrainingStats, error) {
	return p.db.GetTrainingStats()
}
