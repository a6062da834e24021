// Package service implements the cart and checkout business logic on top of
// the repository layer. Services are constructed in main with their
// dependencies injected and exposed to handlers as interfaces.
package service

import (
	"errors"

	"github.com/dukerupert/vagn/internal/repository"
)

// isNotFound reports whether a repository error means "no such row".
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

// isVersionConflict reports whether a cart write lost the optimistic race.
func isVersionConflict(err error) bool {
	return errors.Is(err, repository.ErrVersionConflict)
}

// isInsufficientInventory reports whether a conditional decrement was refused.
func isInsufficientInventory(err error) bool {
	return errors.Is(err, repository.ErrInsufficientInventory)
}
