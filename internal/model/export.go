package model

import "time"

// AttemptsExport is the top-level JSON structure for attempt result export.
type AttemptsExport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Results     []AttemptResult `json:"results"`
}

// AttemptResult holds one attempt with its graded questions for export.
type AttemptResult struct {
	AttemptID   string           `json:"attempt_id"`
	UserID      string           `json:"user_id"`
	DisplayName string           `json:"display_name"`
	ExamID      string           `json:"exam_id"`
	ExamTitle   string           `json:"exam_title"`
	Score       int              `json:"score"`
	Timestamp   time.Time        `json:"timestamp"`
	Questions   []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	QuestionID string       `json:"question_id"`
	Text       string       `json:"text"`
	Type       QuestionType `json:"type"`
	Answer     any          `json:"answer"`
	Correct    bool         `json:"correct"`
}
