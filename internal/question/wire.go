package question

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// flexibleID accepts numeric or string ids
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("question id: %w", err)
	}
	*f = flexibleID(n.String())
	return nil
}

type wireQuestion struct {
	ID            flexibleID `json:"id"`
	QuestionText  string     `json:"question_text"`
	QuestionType  string     `json:"question_type"`
	Difficulty    string     `json:"difficulty"`
	Category      string     `json:"category"`
	TimeAllocated float64    `json:"time_allocated"`
}

type nextQuestionResponse struct {
	Status         string        `json:"status"`
	Message        string        `json:"message"`
	Question       *wireQuestion `json:"question"`
	CurrentIndex   int           `json:"current_index"`
	TotalQuestions int           `json:"total_questions"`
}

type analyzeRequest struct {
	QuestionID string `json:"question_id"`
	AnswerText string `json:"answer_text"`
	Transcript string `json:"transcript"`
	Duration   int    `json:"duration"`
}

type wireAnalysis struct {
	GrammarScore       float64 `json:"grammar_score"`
	RelevanceScore     float64 `json:"relevance_score"`
	ConfidenceScore    float64 `json:"confidence_score"`
	StarScore          float64 `json:"star_score"`
	FillerWordsCount   float64 `json:"filler_words_count"`
	Feedback           string  `json:"feedback"`
	SuggestedAnswer    string  `json:"suggested_answer"`
	CrossQuestion      string  `json:"cross_question"`
	NeedsCrossQuestion bool    `json:"needs_cross_question"`
}

type analyzeResponse struct {
	Status                string        `json:"status"`
	Message               string        `json:"message"`
	Analysis              *wireAnalysis `json:"analysis"`
	NextQuestionAvailable bool          `json:"next_question_available"`
	CrossQuestion         string        `json:"cross_question"`
}

type speechStatusRequest struct {
	Active bool `json:"active"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (w *wireQuestion) toQuestion() *Question {
	allocated := int(math.Round(w.TimeAllocated))
	if allocated <= 0 {
		allocated = DefaultAllocatedSeconds
	}
	return &Question{
		ID:               string(w.ID),
		Text:             w.QuestionText,
		Type:             parseType(w.QuestionType),
		Difficulty:       Difficulty(strings.ToLower(strings.TrimSpace(w.Difficulty))),
		Category:         w.Category,
		AllocatedSeconds: allocated,
	}
}

func parseType(s string) Type {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeTechnical, TypeBehavioral, TypeSituational:
		return t
	default:
		return TypeOther
	}
}

// decodeNext maps a next-question body onto a NextResult
func decodeNext(body []byte) (*NextResult, error) {
	var resp nextQuestionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &TransportError{Op: "next-question", Err: fmt.Errorf("decode response: %w", err)}
	}

	switch resp.Status {
	case "completed":
		return &NextResult{Completed: true}, nil
	case "success":
		if resp.Question == nil {
			return nil, &TransportError{Op: "next-question", Message: "success response without question"}
		}
		return &NextResult{
			Question: resp.Question.toQuestion(),
			Progress: Progress{Index: resp.CurrentIndex, Total: resp.TotalQuestions},
		}, nil
	default:
		return nil, &TransportError{Op: "next-question", Message: statusMessage(resp.Status, resp.Message)}
	}
}

// decodeAnalysis maps an analyze-answer body onto Feedback
func decodeAnalysis(body []byte) (*Feedback, error) {
	var resp analyzeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &TransportError{Op: "analyze-answer", Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Status != "success" || resp.Analysis == nil {
		return nil, &TransportError{Op: "analyze-answer", Message: statusMessage(resp.Status, resp.Message)}
	}

	a := resp.Analysis
	followUp := a.CrossQuestion
	if followUp == "" {
		followUp = resp.CrossQuestion
	}

	return &Feedback{
		GrammarScore:     clampScore(a.GrammarScore),
		RelevanceScore:   clampScore(a.RelevanceScore),
		ConfidenceScore:  clampScore(a.ConfidenceScore),
		StarScore:        clampScore(a.StarScore),
		FillerWordCount:  max(0, int(math.Round(a.FillerWordsCount))),
		FeedbackText:     a.Feedback,
		SuggestedAnswer:  a.SuggestedAnswer,
		FollowUpQuestion: followUp,
		HasNextQuestion:  resp.NextQuestionAvailable,
	}, nil
}

func decodeStatus(op string, body []byte) error {
	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Status != "success" {
		return &TransportError{Op: op, Message: statusMessage(resp.Status, resp.Message)}
	}
	return nil
}

func newAnalyzeRequest(s AnswerSubmission) analyzeRequest {
	return analyzeRequest{
		QuestionID: s.QuestionID,
		AnswerText: s.AnswerText,
		Transcript: s.TranscriptText,
		Duration:   s.DurationSeconds,
	}
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(10, v))
}

func statusMessage(status, message string) string {
	if message != "" {
		return message
	}
	if status == "" {
		return "missing status"
	}
	return "unexpected status " + strconv.Quote(status)
}
