package services

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netsweep/network-survey-agent/internal/config"
	"github.com/netsweep/network-survey-agent/internal/models"
	"github.com/netsweep/network-survey-agent/internal/report"
	"github.com/netsweep/network-survey-agent/internal/store"
	srvErrors "github.com/netsweep/network-survey-agent/pkg/errors"
	"github.com/netsweep/network-survey-agent/pkg/netscan"
	"github.com/netsweep/network-survey-agent/pkg/pipeline"
)

// HostProber is the lookup surface the survey needs; *netscan.Prober
// satisfies it.
type HostProber interface {
	Lookup(ctx context.Context, addr netip.Addr) (models.Host, error)
	Validate() error
}

// SurveyOption customizes a SurveyService.
type SurveyOption func(*SurveyService)

// WithProgressSink forwards progress snapshots to an additional consumer,
// e.g. the CLI renderer.
func WithProgressSink(sink pipeline.ProgressFunc) SurveyOption {
	return func(s *SurveyService) { s.progressSink = sink }
}

// SurveyService owns the lifecycle of one survey at a time: enumerate the
// targets, fan the probes out through the pipeline scheduler, stream results
// into the inventory and render the report.
type SurveyService struct {
	cfg    *config.Configuration
	prober HostProber
	store  *store.Store

	progressSink pipeline.ProgressFunc

	mu       sync.Mutex
	status   models.SurveyStatus
	progress pipeline.ProgressSnapshot
	cancel   context.CancelFunc
}

func NewSurveyService(cfg *config.Configuration, prober HostProber, st *store.Store, opts ...SurveyOption) *SurveyService {
	s := &SurveyService{
		cfg:    cfg,
		prober: prober,
		store:  st,
		status: models.SurveyStatus{State: models.SurveyStateReady},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches a survey in the background and returns its id. Only one
// survey runs at a time.
func (s *SurveyService) Start(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.status.State == models.SurveyStateRunning || s.status.State == models.SurveyStateCanceling {
		id := s.status.ID
		s.mu.Unlock()
		return "", srvErrors.NewSurveyAlreadyRunningError(id)
	}
	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.status = models.SurveyStatus{ID: id, State: models.SurveyStateRunning}
	s.progress = pipeline.ProgressSnapshot{}
	s.mu.Unlock()

	go s.run(runCtx, id)
	return id, nil
}

// Cancel requests cooperative cancellation of the running survey.
func (s *SurveyService) Cancel() {
	s.mu.Lock()
	var cancel context.CancelFunc
	if s.status.State == models.SurveyStateRunning {
		s.status.State = models.SurveyStateCanceling
		cancel = s.cancel
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Status returns the current survey state.
func (s *SurveyService) Status() models.SurveyStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Progress returns the latest progress snapshot.
func (s *SurveyService) Progress() pipeline.ProgressSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Wait blocks until the current survey reaches a terminal state. Intended
// for the one-shot CLI path.
func (s *SurveyService) Wait(ctx context.Context) models.SurveyStatus {
	for {
		status := s.Status()
		if status.State.Terminal() || status.State == models.SurveyStateReady {
			return status
		}
		select {
		case <-ctx.Done():
			return status
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (s *SurveyService) run(ctx context.Context, id string) {
	log := zap.S().Named("survey_service")

	prefixes, err := netscan.ParseTargets(s.cfg.Scan.Targets)
	if err != nil {
		s.finish(ctx, id, models.SurveyStateError, err, nil, 0, time.Now())
		return
	}
	addrs, err := netscan.ExpandAll(prefixes)
	if err != nil {
		s.finish(ctx, id, models.SurveyStateError, err, nil, 0, time.Now())
		return
	}

	startedAt := time.Now()
	log.Infow("survey started", "survey", id, "targets", s.cfg.Scan.Targets, "hosts", len(addrs))

	if err := s.store.Survey().Save(ctx, models.Survey{
		ID:        id,
		State:     models.SurveyStateRunning,
		Targets:   s.cfg.Scan.Targets,
		Total:     len(addrs),
		StartedAt: startedAt,
	}); err != nil {
		log.Errorw("failed to persist survey", "survey", id, "error", err)
	}

	dispatcher := pipeline.NewDispatcher(s.pipelineConfig(), s.importSet(), s.processFunc(id, prefixes))
	run := dispatcher.Run(ctx, addrs)

	var sawTimeout, sawCancel bool
	var diagWG sync.WaitGroup
	diagWG.Add(1)
	go func() {
		defer diagWG.Done()
		for diag := range run.Diagnostics() {
			switch diag.Kind {
			case pipeline.DiagnosticTimeout:
				sawTimeout = true
				log.Warnw("survey timed out", "survey", id, "error", diag.Err)
			case pipeline.DiagnosticCanceled:
				sawCancel = true
				log.Warnw("survey canceled", "survey", id, "error", diag.Err)
			default:
				log.Warnw("survey diagnostic", "survey", id, "kind", diag.Kind, "worker", diag.WorkerID, "error", diag.Err)
			}
		}
	}()

	var hosts []models.Host
	for host := range run.Output() {
		if err := s.store.Host().Save(ctx, host); err != nil {
			log.Errorw("failed to persist host", "address", host.Address, "error", err)
		}
		hosts = append(hosts, host)
	}

	runErr := run.Wait()
	diagWG.Wait()

	state := models.SurveyStateCompleted
	switch {
	case runErr != nil:
		state = models.SurveyStateError
	case sawCancel:
		state = models.SurveyStateCanceled
	case sawTimeout:
		state = models.SurveyStateTimedOut
	}

	s.finish(ctx, id, state, runErr, hosts, len(addrs), startedAt)
	log.Infow("survey finished", "survey", id, "state", state, "hosts", len(hosts))
}

func (s *SurveyService) finish(ctx context.Context, id string, state models.SurveyState, err error, hosts []models.Host, total int, startedAt time.Time) {
	log := zap.S().Named("survey_service")

	survey := models.Survey{
		ID:         id,
		State:      state,
		Targets:    s.cfg.Scan.Targets,
		Total:      total,
		Completed:  len(hosts),
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
	if saveErr := s.store.Survey().Save(ctx, survey); saveErr != nil {
		log.Errorw("failed to persist survey result", "survey", id, "error", saveErr)
	}

	if s.cfg.Report.Enabled && len(hosts) > 0 {
		if reportErr := report.Write(s.cfg.Report.OutputPath, survey, hosts); reportErr != nil {
			log.Errorw("failed to write report", "path", s.cfg.Report.OutputPath, "error", reportErr)
		} else {
			log.Infow("report written", "path", s.cfg.Report.OutputPath, "hosts", len(hosts))
		}
	}

	s.mu.Lock()
	s.status = models.SurveyStatus{ID: id, State: state, Error: err}
	s.cancel = nil
	s.mu.Unlock()
}

func (s *SurveyService) pipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.MaxPipelines = s.cfg.Agent.MaxPipelines
	cfg.MaxDuration = s.cfg.Agent.MaxDuration
	cfg.DisplayInterval = s.cfg.Agent.DisplayInterval
	cfg.TickInterval = s.cfg.Agent.TickInterval
	cfg.MaxRestarts = s.cfg.Agent.MaxRestarts
	cfg.NoProgress = s.cfg.Agent.NoProgress
	cfg.OnProgress = func(p pipeline.ProgressSnapshot) {
		s.mu.Lock()
		s.progress = p
		s.mu.Unlock()
		if s.progressSink != nil {
			s.progressSink(p)
		}
	}
	return cfg
}

// importSet carries the shared probe parameters into every worker and
// validates the prober before a worker accepts queue work.
func (s *SurveyService) importSet() pipeline.ImportSet {
	return pipeline.ImportSet{
		Variables: map[string]any{
			"ports":         s.cfg.Scan.Ports,
			"probe_timeout": s.cfg.Scan.ProbeTimeout,
		},
		InitScript: func(ctx context.Context, env *pipeline.Environment) error {
			return s.prober.Validate()
		},
	}
}

func (s *SurveyService) processFunc(id string, prefixes []netip.Prefix) pipeline.ProcessFunc[netip.Addr, models.Host] {
	return func(ctx context.Context, env *pipeline.Environment, addr netip.Addr) ([]models.Host, error) {
		host, err := s.prober.Lookup(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", addr, err)
		}
		if !host.Reachable {
			return nil, nil
		}
		host.Subnet = subnetOf(addr, prefixes)
		host.SurveyID = id
		return []models.Host{host}, nil
	}
}

func subnetOf(addr netip.Addr, prefixes []netip.Prefix) string {
	for _, prefix := range prefixes {
		if prefix.Contains(addr) {
			return prefix.String()
		}
	}
	return ""
}
