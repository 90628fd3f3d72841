package analyzer

import (
	"context"
	"strings"
	"unicode"

	"github.com/tbxark/salesagent/types"
)

// LocalUnderstander reads customer messages with keyword lists. It is meant
// for tests and as the last link of a FailbackUnderstander.
type LocalUnderstander struct {
	GreetingKeywords      []string
	FarewellKeywords      []string
	ObjectionKeywords     []string
	NeedKeywords          []string
	PainKeywords          []string
	PositiveKeywords      []string
	NegativeKeywords      []string
	NextStepKeywords      []string
	ClarificationKeywords []string
	VagueKeywords         []string
	OffTopicKeywords      []string
}

func NewLocalUnderstander() *LocalUnderstander {
	return &LocalUnderstander{
		GreetingKeywords:      []string{"olá", "ola", "oi", "bom dia", "boa tarde", "boa noite", "hello", "hi", "hey"},
		FarewellKeywords:      []string{"tchau", "até logo", "ate logo", "adeus", "bye", "goodbye", "see you"},
		ObjectionKeywords:     []string{"caro", "preço muito alto", "muito alto", "não tenho interesse", "nao tenho interesse", "sem orçamento", "não confio", "expensive", "too much", "not interested", "no budget", "don't trust"},
		NeedKeywords:          []string{"preciso", "necessito", "quero", "gostaria", "procuro", "i need", "we need", "i want", "looking for"},
		PainKeywords:          []string{"problema", "dificuldade", "lento", "demora", "perco", "perda", "problem", "difficult", "slow", "losing", "struggle"},
		PositiveKeywords:      []string{"sim", "claro", "ótimo", "otimo", "perfeito", "gostei", "excelente", "interessante", "yes", "great", "perfect", "sure", "sounds good", "i like"},
		NegativeKeywords:      []string{"não", "nao", "nunca", "no", "nope", "never"},
		NextStepKeywords:      []string{"quero comprar", "vamos fechar", "fechado", "pode fechar", "como compro", "onde assino", "let's do it", "how do i buy", "where do i sign", "i'll take it"},
		ClarificationKeywords: []string{"não entendi", "nao entendi", "como assim", "o que quer dizer", "what do you mean", "i don't understand"},
		VagueKeywords:         []string{"talvez", "sei lá", "sei la", "hmm", "depende", "maybe", "not sure", "whatever"},
		OffTopicKeywords:      []string{"futebol", "clima", "novela", "football", "weather", "movie"},
	}
}

func (u *LocalUnderstander) Understand(ctx context.Context, req *Request) (*types.TurnAnalysis, error) {
	text := strings.TrimSpace(req.CustomerText)
	normalized := strings.ToLower(text)
	analysis := &types.TurnAnalysis{
		CustomerText: text,
		Certainty:    map[string]int{},
	}

	for _, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence.text)
		switch {
		case sentence.question && !containsAny(lower, u.ClarificationKeywords):
			analysis.Questions = append(analysis.Questions, types.ExtractedQuestion{CoreText: NormalizeQuestion(sentence.text)})
		case containsAny(lower, u.ObjectionKeywords):
			analysis.Objections = append(analysis.Objections, trimSentence(lower))
		case containsAny(lower, u.PainKeywords):
			analysis.PainPoints = append(analysis.PainPoints, trimSentence(lower))
		case containsAny(lower, u.NeedKeywords) && !containsAny(lower, u.NextStepKeywords):
			analysis.Needs = append(analysis.Needs, trimSentence(lower))
		}
	}

	analysis.PrimarilyOffTopic = analysis.ExtractedNothing() && containsAny(normalized, u.OffTopicKeywords)
	analysis.PrimarilyVague = analysis.ExtractedNothing() && !analysis.PrimarilyOffTopic && containsAny(normalized, u.VagueKeywords)
	analysis.Intent = u.intent(normalized, analysis)
	analysis.ResponseToLastAction = u.response(normalized, req.LastAgentAction, analysis)
	return analysis, nil
}

func (u *LocalUnderstander) intent(normalized string, a *types.TurnAnalysis) types.Intent {
	switch {
	case len(a.Objections) > 0:
		return types.IntentObjection
	case containsAny(normalized, u.NextStepKeywords):
		return types.IntentRequestNextStep
	case len(a.Questions) > 0:
		return types.IntentQuestioning
	case containsAny(normalized, u.ClarificationKeywords):
		return types.IntentRequestingClarification
	case len(a.Needs) > 0 || len(a.PainPoints) > 0:
		return types.IntentNeedOrPain
	case a.PrimarilyOffTopic:
		return types.IntentOffTopic
	case a.PrimarilyVague:
		return types.IntentVague
	case containsAny(normalized, u.FarewellKeywords):
		return types.IntentFarewell
	case containsAny(normalized, u.PositiveKeywords):
		return types.IntentPositiveFeedback
	case containsAny(normalized, u.NegativeKeywords):
		return types.IntentNegativeFeedback
	case containsAny(normalized, u.GreetingKeywords):
		return types.IntentGreeting
	default:
		return types.IntentStatingInfo
	}
}

func (u *LocalUnderstander) response(normalized string, last *types.AgentAction, a *types.TurnAnalysis) types.ResponseType {
	if last == nil {
		return types.ResponseNotApplicable
	}
	switch {
	case a.PrimarilyOffTopic:
		return types.ResponseIgnored
	case len(a.Needs) > 0 || len(a.PainPoints) > 0:
		return types.ResponseAnsweredClearly
	case a.Intent == types.IntentPositiveFeedback || a.Intent == types.IntentRequestNextStep:
		return types.ResponseAnsweredClearly
	case a.Intent == types.IntentNegativeFeedback:
		return types.ResponseAnsweredClearly
	case a.ExtractedNothing() && len(strings.Fields(normalized)) <= 3:
		return types.ResponseAcknowledged
	case len(a.Questions) > 0 || len(a.Objections) > 0:
		return types.ResponsePartiallyAnswered
	default:
		return types.ResponsePartiallyAnswered
	}
}

type sentence struct {
	text     string
	question bool
}

func splitSentences(text string) []sentence {
	var out []sentence
	var current strings.Builder
	flush := func(question bool) {
		s := strings.TrimSpace(current.String())
		current.Reset()
		if s != "" {
			out = append(out, sentence{text: s, question: question})
		}
	}
	for _, r := range text {
		switch r {
		case '?':
			flush(true)
		case '.', '!', '\n', ';':
			flush(false)
		default:
			current.WriteRune(r)
		}
	}
	flush(false)
	return out
}

func trimSentence(s string) string {
	return strings.Join(strings.Fields(strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})), " ")
}

// containsAny matches keywords on word boundaries so that "no" does not
// match inside "novo".
func containsAny(text string, keywords []string) bool {
	padded := " " + strings.Join(tokens(text), " ") + " "
	for _, keyword := range keywords {
		k := strings.Join(tokens(keyword), " ")
		if k != "" && strings.Contains(padded, " "+k+" ") {
			return true
		}
	}
	return false
}

func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// LocalRepetitionChecker treats two questions as the same when their
// significant words overlap above Threshold.
type LocalRepetitionChecker struct {
	Threshold float64
	StopWords map[string]bool
}

func NewLocalRepetitionChecker() *LocalRepetitionChecker {
	stop := map[string]bool{}
	for _, w := range []string{
		"o", "a", "os", "as", "um", "uma", "de", "do", "da", "dos", "das", "e", "é", "que", "qual", "quais", "como", "para", "pra", "com", "em", "no", "na", "vocês", "voces", "você", "voce", "me", "se",
		"the", "an", "of", "is", "are", "what", "how", "do", "does", "you", "your", "to", "for", "in", "on", "it", "can", "i",
	} {
		stop[w] = true
	}
	return &LocalRepetitionChecker{Threshold: 0.6, StopWords: stop}
}

func (c *LocalRepetitionChecker) IsRepetition(ctx context.Context, newQuestion, loggedQuestion string) (bool, error) {
	a, b := NormalizeQuestion(newQuestion), NormalizeQuestion(loggedQuestion)
	if a == "" || b == "" {
		return false, nil
	}
	if a == b {
		return true, nil
	}
	setA, setB := c.significant(a), c.significant(b)
	if len(setA) == 0 || len(setB) == 0 {
		return false, nil
	}
	shared := 0
	for w := range setA {
		if setB[w] {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return float64(shared)/float64(union) >= c.Threshold, nil
}

func (c *LocalRepetitionChecker) significant(text string) map[string]bool {
	out := map[string]bool{}
	for _, w := range tokens(text) {
		if !c.StopWords[w] {
			out[w] = true
		}
	}
	return out
}

// FailbackUnderstander tries each understander in order and returns the first
// successful analysis.
type FailbackUnderstander struct {
	understanders []Understander
}

func NewFailbackUnderstander(understanders ...Understander) *FailbackUnderstander {
	return &FailbackUnderstander{understanders: understanders}
}

func (f *FailbackUnderstander) Understand(ctx context.Context, req *Request) (*types.TurnAnalysis, error) {
	var lastErr error
	for _, u := range f.understanders {
		analysis, err := u.Understand(ctx, req)
		if err == nil && analysis != nil {
			return analysis, nil
		}
		if err == nil {
			err = ErrEmptyAnalysis
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrEmptyAnalysis
	}
	return nil, lastErr
}

// FailbackRepetitionChecker tries each checker in order.
type FailbackRepetitionChecker struct {
	checkers []RepetitionChecker
}

func NewFailbackRepetitionChecker(checkers ...RepetitionChecker) *FailbackRepetitionChecker {
	return &FailbackRepetitionChecker{checkers: checkers}
}

func (f *FailbackRepetitionChecker) IsRepetition(ctx context.Context, newQuestion, loggedQuestion string) (bool, error) {
	var lastErr error
	for _, c := range f.checkers {
		same, err := c.IsRepetition(ctx, newQuestion, loggedQuestion)
		if err == nil {
			return same, nil
		}
		lastErr = err
	}
	return false, lastErr
}
