package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/lexiqai/interview-gateway/internal/device"
	"github.com/lexiqai/interview-gateway/internal/interview"
	"github.com/lexiqai/interview-gateway/internal/question"
)

// ClientMessage is a JSON text frame from the browser
type ClientMessage struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`       // answer_changed
	Action     string `json:"action,omitempty"`     // confirm
	Accepted   bool   `json:"accepted,omitempty"`   // confirm
	Permission string `json:"permission,omitempty"` // device_status
}

// ServerMessage is a JSON text frame to the browser
type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type questionPayload struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	Type             string `json:"type"`
	Difficulty       string `json:"difficulty,omitempty"`
	Category         string `json:"category,omitempty"`
	AllocatedSeconds int    `json:"allocated_seconds"`
	Index            int    `json:"index"`
	Total            int    `json:"total,omitempty"`
}

type countdownPayload struct {
	Remaining int     `json:"remaining"`
	Allocated int     `json:"allocated"`
	Display   string  `json:"display"`
	Fraction  float64 `json:"fraction"`
	ArcOffset float64 `json:"arc_offset"`
	Running   bool    `json:"running"`
}

type scorePayload struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

type feedbackPayload struct {
	Scores           []scorePayload `json:"scores"`
	FillerWords      string         `json:"filler_words"`
	FeedbackText     string         `json:"feedback_text"`
	SuggestedAnswer  string         `json:"suggested_answer,omitempty"`
	FollowUpQuestion string         `json:"follow_up_question,omitempty"`
	NextLabel        string         `json:"next_label"`
	NextStage        bool           `json:"next_stage"`
}

type transcriptPayload struct {
	Finalized string `json:"finalized"`
	Interim   string `json:"interim"`
}

type textPayload struct {
	Text string `json:"text"`
}

type enabledPayload struct {
	Enabled bool `json:"enabled"`
}

type speechStatePayload struct {
	Capturing bool `json:"capturing"`
	Supported bool `json:"supported"`
}

type notificationPayload struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type confirmPayload struct {
	Action string `json:"action"`
	Prompt string `json:"prompt"`
}

type navigatePayload struct {
	Stage string `json:"stage"`
}

func newQuestionPayload(q *question.Question, progress question.Progress) questionPayload {
	return questionPayload{
		ID:               q.ID,
		Text:             q.Text,
		Type:             string(q.Type),
		Difficulty:       string(q.Difficulty),
		Category:         q.Category,
		AllocatedSeconds: q.AllocatedSeconds,
		Index:            progress.Index,
		Total:            progress.Total,
	}
}

func newFeedbackPayload(f interview.FeedbackView) feedbackPayload {
	scores := make([]scorePayload, 0, len(f.Scores))
	for _, s := range f.Scores {
		scores = append(scores, scorePayload{Label: s.Label, Score: s.Score, Text: s.Text})
	}
	return feedbackPayload{
		Scores:           scores,
		FillerWords:      f.FillerWords,
		FeedbackText:     f.FeedbackText,
		SuggestedAnswer:  f.SuggestedAnswer,
		FollowUpQuestion: f.FollowUpQuestion,
		NextLabel:        f.NextLabel,
		NextStage:        f.NextStage,
	}
}

// parseClientMessage maps a text frame to a session event
func parseClientMessage(data []byte) (interview.Event, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid client message: %w", err)
	}

	switch msg.Type {
	case "answer_changed":
		return interview.AnswerChanged{Text: msg.Text}, nil
	case "submit":
		return interview.Submit{}, nil
	case "skip":
		return interview.Skip{}, nil
	case "finish":
		return interview.Finish{}, nil
	case "next":
		return interview.Next{}, nil
	case "confirm":
		action := interview.Action(msg.Action)
		if action != interview.ActionSkip && action != interview.ActionFinish {
			return nil, fmt.Errorf("unknown confirm action %q", msg.Action)
		}
		return interview.Confirm{Action: action, Accepted: msg.Accepted}, nil
	case "speech_start":
		return interview.StartSpeech{}, nil
	case "speech_stop":
		return interview.StopSpeech{}, nil
	case "transcript_clear":
		return interview.ClearTranscript{}, nil
	case "timer_start":
		return interview.StartTimer{}, nil
	case "timer_stop":
		return interview.StopTimer{}, nil
	case "device_status":
		return interview.DeviceStatus{Permission: device.PermissionState(msg.Permission)}, nil
	default:
		return nil, fmt.Errorf("unknown client message type %q", msg.Type)
	}
}
