package v1

import (
	"github.com/netsweep/network-survey-agent/internal/models"
	"github.com/netsweep/network-survey-agent/pkg/pipeline"
)

// NewHostFromModel converts a models.Host to an API Host.
func NewHostFromModel(host models.Host) Host {
	return Host{
		Address:   host.Address,
		Hostname:  host.Hostname,
		Subnet:    host.Subnet,
		Reachable: host.Reachable,
		OpenPorts: host.OpenPorts,
		OSClass:   host.OSClass.Value(),
		LatencyMS: float64(host.Latency.Microseconds()) / 1000.0,
		SurveyID:  host.SurveyID,
	}
}

// NewSurveyStatus converts the service status plus the latest progress
// snapshot to the API representation.
func NewSurveyStatus(status models.SurveyStatus, progress pipeline.ProgressSnapshot) SurveyStatus {
	s := SurveyStatus{
		ID:    status.ID,
		State: SurveyStatusState(status.State.Value()),
	}

	if status.Error != nil {
		e := status.Error.Error()
		s.Error = &e
	}

	if status.State == models.SurveyStateRunning || status.State == models.SurveyStateCanceling {
		s.Progress = &SurveyProgress{
			Total:            progress.Total,
			Completed:        progress.Completed,
			ActiveWorkers:    progress.ActiveWorkers,
			Percent:          progress.Percent,
			Rate:             progress.Rate,
			SecondsRemaining: progress.SecondsRemaining,
		}
	}

	return s
}
