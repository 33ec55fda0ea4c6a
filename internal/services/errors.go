// Package services defines the business logic for sessions, documents,
// answers, and feedback. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Session-related errors.
var (
	// ErrSessionNotFound indicates that the requested session does not exist
	// or is not accessible to the current user.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyQuestion is returned when a request to answer a question
	// contains an empty question.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrTooLong is returned when a request to answer a question exceeds the
	// maximum configured length limit.
	ErrTooLong = errors.New("question too long")

	// ErrInvalidFeedback is returned when a feedback value is outside the
	// allowed set (currently -1 or 1).
	ErrInvalidFeedback = errors.New("feedback value must be -1 or 1")

	// ErrExchangeNotFound indicates that the requested exchange does not exist
	// or is not accessible to the current user.
	ErrExchangeNotFound = errors.New("exchange not found")

	// ErrForbiddenFeedback is returned when a user attempts to leave feedback
	// on an exchange they are not permitted to rate.
	ErrForbiddenFeedback = errors.New("cannot leave feedback on this exchange")

	// ErrDuplicateFeedback is returned when a user attempts to leave feedback
	// on an exchange that they have already rated.
	ErrDuplicateFeedback = errors.New("feedback already exists")
)
