package types

import (
	"maps"
	"slices"
)

// ExtractedQuestion is a customer question reduced to its core phrase and
// classified against the question log.
type ExtractedQuestion struct {
	CoreText     string           `json:"core_text"`
	Repetition   RepetitionStatus `json:"repetition_status"`
	OriginalTurn int              `json:"original_turn,omitempty"`
	OriginalText string           `json:"original_core_text,omitempty"`
}

func (q ExtractedQuestion) IsRepetition() bool {
	return q.Repetition != "" && q.Repetition != RepetitionNone
}

// TurnAnalysis is the structured reading of one customer message.
type TurnAnalysis struct {
	CustomerText         string              `json:"customer_text"`
	Intent               Intent              `json:"overall_intent"`
	Questions            []ExtractedQuestion `json:"extracted_questions"`
	Objections           []string            `json:"extracted_objections"`
	Needs                []string            `json:"extracted_needs"`
	PainPoints           []string            `json:"extracted_pain_points"`
	ResponseToLastAction ResponseType        `json:"response_to_last_action"`
	PrimarilyVague       bool                `json:"is_primarily_vague"`
	PrimarilyOffTopic    bool                `json:"is_primarily_off_topic"`
	Certainty            map[string]int      `json:"certainty,omitempty"`
}

func (a *TurnAnalysis) Clone() *TurnAnalysis {
	if a == nil {
		return nil
	}
	out := *a
	out.Questions = slices.Clone(a.Questions)
	out.Objections = slices.Clone(a.Objections)
	out.Needs = slices.Clone(a.Needs)
	out.PainPoints = slices.Clone(a.PainPoints)
	out.Certainty = maps.Clone(a.Certainty)
	return &out
}

// ExtractedNothing reports whether the message carried no question,
// objection, need or pain point.
func (a *TurnAnalysis) ExtractedNothing() bool {
	if a == nil {
		return true
	}
	return len(a.Questions) == 0 && len(a.Objections) == 0 && len(a.Needs) == 0 && len(a.PainPoints) == 0
}

// MinimalAcknowledgement reports whether the customer only acknowledged the
// last agent action without moving the conversation.
func (a *TurnAnalysis) MinimalAcknowledgement() bool {
	if a == nil || a.ResponseToLastAction != ResponseAcknowledged || !a.ExtractedNothing() {
		return false
	}
	switch a.Intent {
	case IntentPositiveFeedback, IntentRequestNextStep, IntentNegativeFeedback, IntentObjection, IntentFarewell:
		return false
	default:
		return true
	}
}

// Positive reports whether the reply reads as agreement with the last action.
func (a *TurnAnalysis) Positive() bool {
	if a == nil {
		return false
	}
	if a.Intent == IntentNegativeFeedback || a.Intent == IntentObjection {
		return false
	}
	if a.Intent.BuyingSignal() {
		return true
	}
	return a.ResponseToLastAction == ResponseAnsweredClearly || a.ResponseToLastAction == ResponseAcknowledged
}

// Negative reports whether the reply pushes back on the last action.
func (a *TurnAnalysis) Negative() bool {
	if a == nil {
		return false
	}
	return a.Intent == IntentNegativeFeedback || a.Intent == IntentObjection
}
