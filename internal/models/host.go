package models

import (
	"time"
)

// OSClass is a coarse operating-system classification derived from a host's
// open-port profile.
type OSClass string

const (
	OSClassWindows OSClass = "windows"
	OSClassUnix    OSClass = "unix"
	OSClassNetwork OSClass = "network"
	OSClassUnknown OSClass = "unknown"
)

func (c OSClass) Value() string {
	return string(c)
}

// Host is one surveyed address with whatever could be learned about it.
type Host struct {
	Address   string
	Hostname  string
	Subnet    string
	Reachable bool
	OpenPorts []int
	OSClass   OSClass
	Latency   time.Duration
	SurveyID  string
}
