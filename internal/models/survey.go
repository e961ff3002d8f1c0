package models

import "time"

// SurveyState represents the current state of a survey run.
type SurveyState string

const (
	// SurveyStateReady - waiting for a survey request
	SurveyStateReady SurveyState = "ready"
	// SurveyStateRunning - probing hosts
	SurveyStateRunning SurveyState = "running"
	// SurveyStateCanceling - survey cancelling its workers
	SurveyStateCanceling SurveyState = "canceling"
	// SurveyStateCanceled - survey canceled
	SurveyStateCanceled SurveyState = "canceled"
	// SurveyStateTimedOut - survey aborted after exceeding its deadline
	SurveyStateTimedOut SurveyState = "timed_out"
	// SurveyStateCompleted - survey complete
	SurveyStateCompleted SurveyState = "completed"
	// SurveyStateError - error during the survey
	SurveyStateError SurveyState = "error"
)

func (s SurveyState) Value() string {
	return string(s)
}

// Terminal reports whether the survey will make no further progress.
func (s SurveyState) Terminal() bool {
	switch s {
	case SurveyStateCanceled, SurveyStateTimedOut, SurveyStateCompleted, SurveyStateError:
		return true
	default:
		return false
	}
}

// SurveyStatus holds the current survey state and metadata.
type SurveyStatus struct {
	ID    string
	State SurveyState
	Error error
}

// Survey is the persisted record of one survey run.
type Survey struct {
	ID         string
	State      SurveyState
	Targets    []string
	Total      int
	Completed  int
	StartedAt  time.Time
	FinishedAt time.Time
}
