package trading

import "errors"

// Sentinel errors for the trade lifecycle. Callers discriminate with
// errors.Is; messages carry the specifics.
var (
	// ErrValidation indicates bad input, rejected before any mutation.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound indicates an unknown user, trade or portfolio.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the trade or portfolio belongs to a
	// different user.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientMargin indicates the ledger refused a reserve.
	ErrInsufficientMargin = errors.New("insufficient margin")

	// ErrTradeNotActive indicates the trade already reached a terminal
	// status, possibly through a concurrent close.
	ErrTradeNotActive = errors.New("trade is not active")

	// ErrPortfolioExists indicates the user already has a ledger record.
	ErrPortfolioExists = errors.New("portfolio already exists")
)
