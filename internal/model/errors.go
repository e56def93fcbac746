package model

import "errors"

// Sentinel errors for the grading core. Handlers map these to HTTP statuses;
// internal layers wrap them with %w and callers test with errors.Is.
var (
	// ErrNotFound means the referenced attempt, result, section, or user
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotAuthorized means the attempt or result does not belong to the
	// caller or the caller's scope.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidState means the operation is not valid in the attempt's
	// current lifecycle state.
	ErrInvalidState = errors.New("invalid attempt state")

	// ErrValidation means a bad or missing reference at assignment-creation
	// time.
	ErrValidation = errors.New("validation failed")

	// ErrProviderExhausted means every model/credential combination failed.
	// Rate limiting is retried internally and never surfaced on its own; it
	// either resolves via rotation or degrades into this error.
	ErrProviderExhausted = errors.New("all provider models exhausted")

	// ErrParseFailure means a provider answered but the payload contained no
	// extractable JSON. Kept distinct from ErrProviderExhausted so operators
	// can tell "no provider answered" from "a provider answered nonsense".
	ErrParseFailure = errors.New("unparseable provider response")
)
