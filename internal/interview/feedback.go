package interview

import (
	"fmt"
	"strconv"

	"github.com/lexiqai/interview-gateway/internal/question"
)

// ScoreCard is one 0-10 score
type ScoreCard struct {
	Label string
	Score float64
	Text  string // e.g. "8.5/10"
}

// FeedbackView is the display model of one answer's feedback
type FeedbackView struct {
	Scores           []ScoreCard
	FillerWords      string
	FeedbackText     string
	SuggestedAnswer  string // empty hides the block
	FollowUpQuestion string // empty hides the block
	NextLabel        string
	NextStage        bool // next leaves the interview for the coding stage
}

const (
	nextQuestionLabel = "Next Question"
	nextStageLabel    = "Continue to Coding Test"
)

// RenderFeedback projects feedback into its display model
func RenderFeedback(fb *question.Feedback) FeedbackView {
	view := FeedbackView{
		Scores: []ScoreCard{
			scoreCard("Grammar", fb.GrammarScore),
			scoreCard("Relevance", fb.RelevanceScore),
			scoreCard("Confidence", fb.ConfidenceScore),
			scoreCard("STAR Method", fb.StarScore),
		},
		FillerWords:      fmt.Sprintf("%d filler words detected (um, uh, like, etc.)", fb.FillerWordCount),
		FeedbackText:     fb.FeedbackText,
		SuggestedAnswer:  fb.SuggestedAnswer,
		FollowUpQuestion: fb.FollowUpQuestion,
		NextLabel:        nextQuestionLabel,
	}
	if !fb.HasNextQuestion {
		view.NextLabel = nextStageLabel
		view.NextStage = true
	}
	return view
}

func scoreCard(label string, score float64) ScoreCard {
	return ScoreCard{
		Label: label,
		Score: score,
		Text:  strconv.FormatFloat(score, 'f', -1, 64) + "/10",
	}
}
