// Package errors defines typed service errors shared by the store and the
// HTTP handlers.
package errors

import (
	"errors"
	"fmt"
)

// ResourceNotFoundError marks a lookup for a resource that does not exist.
type ResourceNotFoundError struct {
	Resource string
	ID       string
}

func (e *ResourceNotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NewHostNotFoundError returns a not-found error for a host address.
func NewHostNotFoundError(address string) error {
	return &ResourceNotFoundError{Resource: "host", ID: address}
}

// NewSurveyNotFoundError returns a not-found error for a survey run.
func NewSurveyNotFoundError(id string) error {
	return &ResourceNotFoundError{Resource: "survey", ID: id}
}

// IsResourceNotFoundError reports whether err wraps a ResourceNotFoundError.
func IsResourceNotFoundError(err error) bool {
	var notFound *ResourceNotFoundError
	return errors.As(err, &notFound)
}

// SurveyAlreadyRunningError marks an attempt to start a survey while one is
// in progress.
type SurveyAlreadyRunningError struct {
	ID string
}

func (e *SurveyAlreadyRunningError) Error() string {
	return fmt.Sprintf("survey %s is already running", e.ID)
}

// NewSurveyAlreadyRunningError returns an already-running error for a survey.
func NewSurveyAlreadyRunningError(id string) error {
	return &SurveyAlreadyRunningError{ID: id}
}

// IsSurveyAlreadyRunningError reports whether err wraps a
// SurveyAlreadyRunningError.
func IsSurveyAlreadyRunningError(err error) bool {
	var running *SurveyAlreadyRunningError
	return errors.As(err, &running)
}
