// Package config defines the configuration structure for the
// network-survey-agent. Configuration is organized into logical sections
// (Agent, Scan, Report, Server) with defaults applied through struct tags
// and overrides through functional options.
package config

import (
	"time"

	"github.com/creasty/defaults"
)

// Configuration is the root configuration consumed at process start.
type Configuration struct {
	Agent     Agent
	Scan      Scan
	Report    Report
	Server    Server
	LogLevel  string `default:"info"`
	LogFormat string `default:"console"`
}

// Agent configures the pipeline scheduler driving the survey.
type Agent struct {
	// MaxPipelines is the worker pool size, clipped to the number of
	// enumerated addresses.
	MaxPipelines int `default:"10"`
	// MaxDuration bounds one survey run; the default is effectively
	// unbounded.
	MaxDuration time.Duration `default:"8760h"`
	// DisplayInterval rate-limits progress output.
	DisplayInterval time.Duration `default:"1s"`
	// TickInterval is the dispatcher's idle wait between ticks.
	TickInterval time.Duration `default:"100ms"`
	// MaxRestarts caps replacement workers after failures.
	MaxRestarts int `default:"100"`
	// NoProgress disables progress output.
	NoProgress bool
	// DataFolder is where the inventory database lives; empty means
	// in-memory.
	DataFolder string
}

// Scan configures what gets surveyed and how.
type Scan struct {
	// Targets are CIDR prefixes or single addresses.
	Targets []string
	// Ports is the TCP connect sweep used for the OS heuristic.
	Ports []int `default:"[22,23,80,135,139,443,445,3389]"`
	// ProbeTimeout bounds each connection attempt.
	ProbeTimeout time.Duration `default:"2s"`
}

// Report configures the workbook written after a run.
type Report struct {
	Enabled    bool   `default:"true"`
	OutputPath string `default:"survey-report.xlsx"`
}

// Server configures the optional HTTP API.
type Server struct {
	Enabled    bool
	ServerMode string `default:"dev"`
	HTTPPort   int    `default:"8000"`
}

// Option overrides part of a Configuration.
type Option func(*Configuration)

func WithAgent(agent Agent) Option {
	return func(c *Configuration) { c.Agent = agent }
}

func WithScan(scan Scan) Option {
	return func(c *Configuration) { c.Scan = scan }
}

func WithReport(report Report) Option {
	return func(c *Configuration) { c.Report = report }
}

func WithServer(server Server) Option {
	return func(c *Configuration) { c.Server = server }
}

func WithLogLevel(level string) Option {
	return func(c *Configuration) { c.LogLevel = level }
}

func WithLogFormat(format string) Option {
	return func(c *Configuration) { c.LogFormat = format }
}

// NewConfiguration builds a Configuration with defaults applied first and
// options on top.
func NewConfiguration(opts ...Option) (*Configuration, error) {
	cfg := &Configuration{}
	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg, nil
}

// DebugMap returns a map of configuration values safe for structured
// logging.
func (c *Configuration) DebugMap() map[string]any {
	return map[string]any{
		"agent.maxPipelines":    c.Agent.MaxPipelines,
		"agent.maxDuration":     c.Agent.MaxDuration.String(),
		"agent.displayInterval": c.Agent.DisplayInterval.String(),
		"agent.tickInterval":    c.Agent.TickInterval.String(),
		"agent.maxRestarts":     c.Agent.MaxRestarts,
		"agent.noProgress":      c.Agent.NoProgress,
		"agent.dataFolder":      c.Agent.DataFolder,
		"scan.targets":          c.Scan.Targets,
		"scan.ports":            c.Scan.Ports,
		"scan.probeTimeout":     c.Scan.ProbeTimeout.String(),
		"report.enabled":        c.Report.Enabled,
		"report.outputPath":     c.Report.OutputPath,
		"server.enabled":        c.Server.Enabled,
		"server.mode":           c.Server.ServerMode,
		"server.httpPort":       c.Server.HTTPPort,
		"logLevel":              c.LogLevel,
		"logFormat":             c.LogFormat,
	}
}
