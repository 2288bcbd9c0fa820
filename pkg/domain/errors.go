package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Status classifies the outcome of a core operation. Transport layers map a
// status onto their own codes.
type Status string

// Status classes surfaced by StatusOf.
const (
	StatusOK           Status = "ok"
	StatusInvalid      Status = "invalid"
	StatusNotFound     Status = "not_found"
	StatusConflict     Status = "conflict"
	StatusUnauthorized Status = "unauthorized"
	StatusUnavailable  Status = "unavailable"
	StatusFailed       Status = "failed"
)

// ValidationError reports malformed input such as incomplete settings or an
// unacceptable email or password.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string { return e.Message }

// CapacityKind distinguishes why no slot could be handed out.
type CapacityKind string

// Capacity failure kinds.
const (
	CapacityExhausted    CapacityKind = "exhausted"
	CapacityWindowClosed CapacityKind = "window_closed"
)

// Capacity messages shown to submitters.
const (
	MessageSubmissionClosed = "Sample submission is closed for this week."
	MessageAllSamplesTaken  = "All samples have been taken this week."
	MessageNoSamplesLeft    = "No more samples left this week."
)

// CapacityError is returned when the week's plate is full or the submission
// window has closed.
type CapacityError struct {
	Kind    CapacityKind
	Message string
}

func (e CapacityError) Error() string { return e.Message }

// NotFoundError is returned when a referenced record does not exist. Message
// overrides the default rendering when set.
type NotFoundError struct {
	Entity  EntityType
	ID      string
	Message string
}

func (e NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ParseError reports a reference file that could not be read.
type ParseError struct {
	Filename string
	Err      error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("Failed to parse reference sequence file '%s': %v", e.Filename, e.Err)
}

func (e ParseError) Unwrap() error { return e.Err }

// NamingMismatchError reports a results archive whose filename does not carry
// the primary key it was uploaded for.
type NamingMismatchError struct {
	PrimaryKey string
	Filename   string
}

func (e NamingMismatchError) Error() string {
	return fmt.Sprintf("Invalid filename '%s': results file for %s must be named %s_*.zip", e.Filename, e.PrimaryKey, e.PrimaryKey)
}

// MissingArtifactsError reports required files absent from a results archive.
type MissingArtifactsError struct {
	PrimaryKey string
	Files      []string
}

func (e MissingArtifactsError) Error() string {
	return fmt.Sprintf("Results file for %s saved, but the following files are missing from it: %s", e.PrimaryKey, strings.Join(e.Files, ", "))
}

// IntegrityError reports a uniqueness violation at insert time.
type IntegrityError struct {
	Entity EntityType
	Key    string
}

func (e IntegrityError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.Key)
}

// TransportError wraps a failed notification delivery.
type TransportError struct {
	Message string
	Err     error
}

func (e TransportError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("notification failed: %v", e.Err)
}

func (e TransportError) Unwrap() error { return e.Err }

// AuthError reports failed authentication or authorization.
type AuthError struct {
	Message string
}

func (e AuthError) Error() string { return e.Message }

// StatusOf maps an error returned by a core operation to its status class.
// A nil error is StatusOK.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var (
		validation ValidationError
		capacity   CapacityError
		notFound   NotFoundError
		parse      ParseError
		naming     NamingMismatchError
		missing    MissingArtifactsError
		integrity  IntegrityError
		transport  TransportError
		auth       AuthError
		rules      RuleViolationError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &parse), errors.As(err, &naming), errors.As(err, &missing):
		return StatusInvalid
	case errors.As(err, &capacity), errors.As(err, &integrity), errors.As(err, &rules):
		return StatusConflict
	case errors.As(err, &notFound):
		return StatusNotFound
	case errors.As(err, &auth):
		return StatusUnauthorized
	case errors.As(err, &transport):
		return StatusUnavailable
	default:
		return StatusFailed
	}
}
