package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/darsh8000an/study-buddy-matcher/internal/models"
)

var (
	ErrSelfRequest       = errors.New("cannot send a match request to yourself")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrDuplicateRequest  = errors.New("match request already exists")
	ErrRelationNotFound  = errors.New("match request not found")
	ErrNotRecipient      = errors.New("only the recipient can respond to a match request")
	ErrInvalidStatus     = errors.New("invalid match status")
	ErrPartialWrite      = errors.New("match request only partially saved")
	ErrProfileNotFound   = errors.New("profile not found")
)

// DuplicateRequestError carries the status of the relation that already
// exists between the pair.
type DuplicateRequestError struct {
	Status models.RelationStatus
}

func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("match request already %s", e.Status)
}

func (e *DuplicateRequestError) Is(target error) bool {
	return target == ErrDuplicateRequest
}

// PartialWriteError means one side of a pair was written and the other could
// not be brought in line. The pair is recorded for reconciliation.
type PartialWriteError struct {
	Op            string
	OwnerID       uuid.UUID
	CounterpartID uuid.UUID
	Err           error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s %s -> %s: partial write: %v", e.Op, e.OwnerID, e.CounterpartID, e.Err)
}

func (e *PartialWriteError) Is(target error) bool {
	return target == ErrPartialWrite
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}
