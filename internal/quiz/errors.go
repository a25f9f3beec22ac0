package quiz

import (
	"errors"
	"fmt"
)

// Kind classifies failures so transports can map them to a response.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindNotFound
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is the domain error carried across package boundaries.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Error codes shared with clients.
const (
	CodeInvalidState     = "invalid_state"
	CodeInvalidRequest   = "invalid_request"
	CodeNoMoreQuestions  = "no_more_questions"
	CodeNotFound         = "not_found"
	CodeAlreadyAnswered  = "already_answered"
	CodeStaleSubmission  = "stale_submission"
	CodeConflict         = "conflict"
	CodeHostActionBusy   = "host_action_in_progress"
	CodeNotHost          = "not_host"
	CodeNotMember        = "not_member"
	CodeUnavailable      = "service_unavailable"
	CodeAccessCodeTaken  = "access_code_taken"
	CodeCapacityExceeded = "capacity_exceeded"
)

var (
	ErrSessionNotFound     = &Error{Kind: KindNotFound, Code: CodeNotFound, Message: "session not found"}
	ErrQuestionNotFound    = &Error{Kind: KindNotFound, Code: CodeNotFound, Message: "question not found"}
	ErrParticipantNotFound = &Error{Kind: KindNotFound, Code: CodeNotFound, Message: "participant not found"}
	ErrAlreadyAnswered     = &Error{Kind: KindConflict, Code: CodeAlreadyAnswered, Message: "question already answered"}
	ErrStaleVersion        = &Error{Kind: KindConflict, Code: CodeConflict, Message: "session changed concurrently"}
	ErrHostActionBusy      = &Error{Kind: KindConflict, Code: CodeHostActionBusy, Message: "another host action is in progress"}
	ErrAccessCodeTaken     = &Error{Kind: KindConflict, Code: CodeAccessCodeTaken, Message: "access code already in use"}
	ErrIdentityTaken       = &Error{Kind: KindConflict, Code: CodeConflict, Message: "identity already joined this session"}
	ErrNoMoreQuestions     = &Error{Kind: KindValidation, Code: CodeNoMoreQuestions, Message: "no more questions, end the quiz instead"}
	ErrSessionActive       = &Error{Kind: KindValidation, Code: CodeInvalidState, Message: "questions can only be added before the session goes live"}
)

// Validation builds a validation error with the given code.
func Validation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// InvalidState reports a transition that the current state does not allow.
func InvalidState(from State, action string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("cannot %s while session is %s", action, from),
	}
}

// Transient wraps an infrastructure failure that callers may retry.
func Transient(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Code: CodeUnavailable, Message: msg, Err: err}
}

// KindOf returns the kind of err, treating unknown errors as transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// CodeOf returns the client-facing code of err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnavailable
}
