package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service layer wraps exactly one of these.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalid      = errors.New("invalid request")
	ErrDependency   = errors.New("dependency failure")
)

// Domain errors
var (
	ErrPlayerNotFound     = fmt.Errorf("%w: player not found", ErrNotFound)
	ErrMatchNotFound      = fmt.Errorf("%w: match not found", ErrNotFound)
	ErrQueueEntryNotFound = fmt.Errorf("%w: queue entry not found", ErrNotFound)
	ErrLeagueNotFound     = fmt.Errorf("%w: league not found", ErrNotFound)

	ErrAlreadyInQueue    = fmt.Errorf("%w: already in queue", ErrConflict)
	ErrQueueEntryClaimed = fmt.Errorf("%w: queue entry already claimed by a match", ErrConflict)
	ErrVotingClosed      = fmt.Errorf("%w: match is no longer pending approval", ErrConflict)
	ErrMatchNotScheduled = fmt.Errorf("%w: match is not scheduled", ErrConflict)
	ErrNotScheduling     = fmt.Errorf("%w: match is not in scheduling", ErrConflict)
	ErrNegotiationClosed = fmt.Errorf("%w: negotiation deadline has passed", ErrConflict)

	ErrNotParticipant = fmt.Errorf("%w: player is not a participant of the match", ErrForbidden)
	ErrNotCaptain     = fmt.Errorf("%w: only the captain can confirm the schedule", ErrForbidden)

	ErrInvalidGender = fmt.Errorf("%w: unknown gender", ErrInvalid)
	ErrInvalidSide   = fmt.Errorf("%w: unknown side preference", ErrInvalid)
	ErrInvalidResult = fmt.Errorf("%w: inconsistent match result", ErrInvalid)
	ErrSelfPartner   = fmt.Errorf("%w: a player cannot partner with themselves", ErrInvalid)
	ErrInvalidTime   = fmt.Errorf("%w: scheduled time must be in the future", ErrInvalid)

	ErrMissingCredentials = fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid bearer token", ErrUnauthorized)
)

// Dependency wraps a collaborator failure so callers can tell it apart from a bad request.
func Dependency(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDependency, op, err)
}

// Invalidf builds an ErrInvalidResult with detail.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidResult, fmt.Sprintf(format, args...))
}

// KindOf returns the kind sentinel an error wraps, or nil if it wraps none.
func KindOf(err error) error {
	for _, kind := range []error{ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict, ErrInvalid, ErrDependency} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
