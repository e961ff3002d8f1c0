// Package v1 defines the wire types served by the HTTP API.
package v1

// Host is one inventory entry as served over the API.
type Host struct {
	Address   string  `json:"address"`
	Hostname  string  `json:"hostname,omitempty"`
	Subnet    string  `json:"subnet,omitempty"`
	Reachable bool    `json:"reachable"`
	OpenPorts []int   `json:"openPorts,omitempty"`
	OSClass   string  `json:"osClass"`
	LatencyMS float64 `json:"latencyMs"`
	SurveyID  string  `json:"surveyId,omitempty"`
}

// HostList is a paginated host listing.
type HostList struct {
	Hosts []Host `json:"hosts"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Pages int    `json:"pages"`
}

// SurveyStatusState enumerates the survey lifecycle over the wire.
type SurveyStatusState string

const (
	SurveyStatusStateReady     SurveyStatusState = "ready"
	SurveyStatusStateRunning   SurveyStatusState = "running"
	SurveyStatusStateCanceling SurveyStatusState = "canceling"
	SurveyStatusStateCanceled  SurveyStatusState = "canceled"
	SurveyStatusStateTimedOut  SurveyStatusState = "timed_out"
	SurveyStatusStateCompleted SurveyStatusState = "completed"
	SurveyStatusStateError     SurveyStatusState = "error"
)

// SurveyStatus reports the running (or last) survey and its progress.
type SurveyStatus struct {
	ID       string            `json:"id,omitempty"`
	State    SurveyStatusState `json:"state"`
	Error    *string           `json:"error,omitempty"`
	Progress *SurveyProgress   `json:"progress,omitempty"`
}

// SurveyProgress mirrors the scheduler's progress snapshot.
type SurveyProgress struct {
	Total            int     `json:"total"`
	Completed        int     `json:"completed"`
	ActiveWorkers    int     `json:"activeWorkers"`
	Percent          float64 `json:"percent"`
	Rate             float64 `json:"rate"`
	SecondsRemaining int     `json:"secondsRemaining"`
}

// SurveyCreated acknowledges a newly started survey.
type SurveyCreated struct {
	ID string `json:"id"`
}

// Error is the API error envelope.
type Error struct {
	Message string `json:"message"`
}
