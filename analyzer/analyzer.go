package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tbxark/salesagent/types"
)

// Analyzer turns a raw customer message into a TurnAnalysis and owns the
// repetition policy on top of the understanding collaborator.
type Analyzer struct {
	understander Understander
	detector     *RepetitionDetector
}

func NewAnalyzer(understander Understander, detector *RepetitionDetector) (*Analyzer, error) {
	if understander == nil {
		return nil, errors.New("analyzer: understander is required")
	}
	if detector == nil {
		return nil, errors.New("analyzer: repetition detector is required")
	}
	return &Analyzer{understander: understander, detector: detector}, nil
}

func (a *Analyzer) Analyze(ctx context.Context, req *Request) (*types.TurnAnalysis, error) {
	if req == nil || strings.TrimSpace(req.CustomerText) == "" {
		return nil, ErrEmptyInput
	}
	analysis, err := a.understander.Understand(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("understand customer input: %w", err)
	}
	if analysis == nil {
		return nil, ErrEmptyAnalysis
	}
	analysis = normalizeAnalysis(analysis, req)

	var log []types.QuestionEntry
	if req.State != nil {
		log = req.State.QuestionLog
	}
	questions, err := a.detector.Classify(ctx, analysis.Questions, log)
	if err != nil {
		return nil, fmt.Errorf("classify repetitions: %w", err)
	}
	analysis.Questions = questions
	return analysis, nil
}

func normalizeAnalysis(in *types.TurnAnalysis, req *Request) *types.TurnAnalysis {
	out := in.Clone()
	out.CustomerText = req.CustomerText
	if out.Intent == "" {
		out.Intent = types.IntentStatingInfo
	}
	if req.LastAgentAction == nil {
		out.ResponseToLastAction = types.ResponseNotApplicable
	} else if out.ResponseToLastAction == "" {
		out.ResponseToLastAction = types.ResponsePartiallyAnswered
	}

	seen := map[string]bool{}
	questions := out.Questions[:0]
	for _, q := range out.Questions {
		q.CoreText = NormalizeQuestion(q.CoreText)
		if q.CoreText == "" || seen[q.CoreText] {
			continue
		}
		seen[q.CoreText] = true
		q.Repetition = ""
		questions = append(questions, q)
	}
	out.Questions = questions
	out.Objections = uniqueTexts(out.Objections)
	out.Needs = uniqueTexts(out.Needs)
	out.PainPoints = uniqueTexts(out.PainPoints)
	return out
}

// NormalizeQuestion reduces a question to the lower-case core phrase used in
// the question log.
func NormalizeQuestion(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = strings.TrimRight(q, "?!.¿ ")
	return strings.Join(strings.Fields(q), " ")
}

func uniqueTexts(in []string) []string {
	out := make([]string, 0, len(in))
	for _, text := range in {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		dup := false
		for _, existing := range out {
			if types.SameText(existing, text) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, text)
		}
	}
	return out
}
