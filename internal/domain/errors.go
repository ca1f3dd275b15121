package domain

import "github.com/cockroachdb/errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")

	ErrUnknownVenue     = errors.New("unknown turf")
	ErrInvalidSlot      = errors.New("time slot is not on the turf's schedule")
	ErrSlotTaken        = errors.New("time slot already booked")
	ErrSlotBusy         = errors.New("time slot is being booked by another request, try again")
	ErrAlreadyCancelled = errors.New("booking already cancelled")

	ErrExternalService = errors.New("external service failure")
	ErrPersistence     = errors.New("persistence failure")
)

// IsValidation reports whether err rejects a booking request before anything was written.
func IsValidation(err error) bool {
	return errors.IsAny(err, ErrInvalidInput, ErrUnknownVenue, ErrInvalidSlot, ErrSlotTaken)
}

// Persistence marks err as a failure of the backing store.
func Persistence(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrPersistence)
}
