package analyzer

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/tbxark/salesagent/types"
	"golang.org/x/sync/errgroup"
)

const defaultRepetitionConcurrency = 4

// RepetitionDetector compares every extracted question with the question log,
// most recent entries first, and stops at the first match.
type RepetitionDetector struct {
	checker     RepetitionChecker
	concurrency int
	logger      *slog.Logger
}

type DetectorOption func(*RepetitionDetector)

func WithConcurrency(n int) DetectorOption {
	return func(d *RepetitionDetector) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func WithDetectorLogger(logger *slog.Logger) DetectorOption {
	return func(d *RepetitionDetector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func NewRepetitionDetector(checker RepetitionChecker, opts ...DetectorOption) *RepetitionDetector {
	d := &RepetitionDetector{
		checker:     checker,
		concurrency: defaultRepetitionConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Classify returns a copy of questions with their repetition status filled in.
// A failed comparison is logged and counted as "not the same question".
func (d *RepetitionDetector) Classify(ctx context.Context, questions []types.ExtractedQuestion, log []types.QuestionEntry) ([]types.ExtractedQuestion, error) {
	out := slices.Clone(questions)
	if len(out) == 0 {
		return out, nil
	}
	ordered := mostRecentFirst(log)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i := range out {
		g.Go(func() error {
			out[i] = d.classifyOne(gctx, out[i], ordered)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *RepetitionDetector) classifyOne(ctx context.Context, q types.ExtractedQuestion, ordered []types.QuestionEntry) types.ExtractedQuestion {
	q.Repetition = types.RepetitionNone
	q.OriginalTurn = 0
	q.OriginalText = ""
	if d.checker == nil {
		return q
	}
	for _, entry := range ordered {
		if ctx.Err() != nil {
			return q
		}
		same, err := d.checker.IsRepetition(ctx, q.CoreText, entry.CoreText)
		if err != nil {
			d.logger.Warn("repetition check failed", "question", q.CoreText, "logged", entry.CoreText, "error", err)
			continue
		}
		if same {
			q.Repetition = types.RepetitionFromLogged(entry.Status)
			q.OriginalTurn = entry.TurnAsked
			q.OriginalText = entry.CoreText
			return q
		}
	}
	return q
}

// mostRecentFirst orders the log by turn descending; entries logged later in
// the same turn come first.
func mostRecentFirst(log []types.QuestionEntry) []types.QuestionEntry {
	ordered := slices.Clone(log)
	slices.Reverse(ordered)
	slices.SortStableFunc(ordered, func(a, b types.QuestionEntry) int {
		return cmp.Compare(b.TurnAsked, a.TurnAsked)
	})
	return ordered
}
