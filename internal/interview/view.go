package interview

import "github.com/lexiqai/interview-gateway/internal/question"

// View is the UI of one session. Every method is called from the session
// loop and must not block on the user.
type View interface {
	ShowQuestion(q *question.Question, progress question.Progress)
	ShowCountdown(c Countdown)
	ShowFeedback(f FeedbackView)
	HideFeedback()
	ShowTranscript(finalized, interim string)
	SetAnswer(text string)
	SetSubmitEnabled(enabled bool)
	SetCaptureState(capturing, supported bool)
	Notify(n Notification)

	// RequestConfirmation asks a yes/no question; the answer comes back as
	// a Confirm event.
	RequestConfirmation(action Action, prompt string)

	Navigate(stage Stage)
}
