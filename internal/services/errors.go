package services

import "errors"

var (
	ErrNoIdentity           = errors.New("ticket carries no identity")
	ErrUndecryptable        = errors.New("ticket identity cannot be decrypted")
	ErrInvalidTicketNumber  = errors.New("ticket number must not be negative")
	ErrInvalidPrice         = errors.New("ticket price must not be negative")
	ErrInvalidCount         = errors.New("count must be positive")
	ErrMigrationUnsupported = errors.New("migration requires the encrypted identity mode")
	ErrPrizeNotFound        = errors.New("prize not found")
	ErrPrizeLimitReached    = errors.New("maximum number of prizes reached")
	ErrPrizeFieldsRequired  = errors.New("prize name and value are required")
	ErrInvalidPrizeOrder    = errors.New("reorder must list every prize exactly once")
	ErrPrizeInactive        = errors.New("prize is not active")
	ErrPrizeAlreadyWon      = errors.New("prize already has a winner")
	ErrNoEligibleTickets    = errors.New("no eligible tickets left to draw")
)
