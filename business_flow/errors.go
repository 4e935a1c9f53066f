// Package businessflow contains the core business logic and use cases for the edition pipeline
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Profile-related errors
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileInactive = errors.New("profile is inactive")

	// Credential-related errors
	ErrNotConnected      = errors.New("profile is not connected to the esp")
	ErrConcurrentRefresh = errors.New("another refresh is in flight for this profile")
	ErrAuthRejected      = errors.New("esp rejected the credential after refresh")

	// Edition-related errors
	ErrEditionNotFound     = errors.New("edition not found")
	ErrEditionAccessDenied = errors.New("edition access denied")
	ErrInvalidEditionState = errors.New("edition is not in a state that allows this operation")
	ErrEditionNotPushed    = errors.New("edition has no esp campaign on record")

	// Story-related errors
	ErrStoryGenerationFailed = errors.New("story generation failed")
	ErrHeadlineRequired      = errors.New("story headline is required")
	ErrSummaryRequired       = errors.New("story summary is required")

	// Schedule-related errors
	ErrInvalidWeekday   = errors.New("weekday must be a lowercase English day name")
	ErrInvalidTimeOfDay = errors.New("time of day must be in HH:MM format")

	// ESP connect errors
	ErrAuthorizationCodeRequired = errors.New("authorization code is required")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsProfileNotFound(err error) bool {
	return errors.Is(err, ErrProfileNotFound)
}

func IsProfileInactive(err error) bool {
	return errors.Is(err, ErrProfileInactive)
}

func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

func IsConcurrentRefresh(err error) bool {
	return errors.Is(err, ErrConcurrentRefresh)
}

func IsAuthRejected(err error) bool {
	return errors.Is(err, ErrAuthRejected)
}

func IsEditionNotFound(err error) bool {
	return errors.Is(err, ErrEditionNotFound)
}

func IsEditionAccessDenied(err error) bool {
	return errors.Is(err, ErrEditionAccessDenied)
}

func IsInvalidEditionState(err error) bool {
	return errors.Is(err, ErrInvalidEditionState)
}

func IsEditionNotPushed(err error) bool {
	return errors.Is(err, ErrEditionNotPushed)
}

func IsStoryGenerationFailed(err error) bool {
	return errors.Is(err, ErrStoryGenerationFailed)
}

func IsHeadlineRequired(err error) bool {
	return errors.Is(err, ErrHeadlineRequired)
}

func IsSummaryRequired(err error) bool {
	return errors.Is(err, ErrSummaryRequired)
}

func IsInvalidWeekday(err error) bool {
	return errors.Is(err, ErrInvalidWeekday)
}

func IsInvalidTimeOfDay(err error) bool {
	return errors.Is(err, ErrInvalidTimeOfDay)
}

func IsAuthorizationCodeRequired(err error) bool {
	return errors.Is(err, ErrAuthorizationCodeRequired)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}
