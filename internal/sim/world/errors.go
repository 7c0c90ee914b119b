package world

import (
	"errors"
	"fmt"

	"voxelrealm.ai/internal/protocol"
	"voxelrealm.ai/internal/sim/inventory"
)

// actionError is a failure reported to the requesting client.
type actionError struct {
	code  string
	msg   string
	dead  bool
	cause error
}

func (e *actionError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *actionError) Unwrap() error { return e.cause }

func badRequest(format string, args ...any) error {
	return &actionError{code: protocol.ErrBadRequest, msg: fmt.Sprintf(format, args...)}
}

func rejected(format string, args ...any) error {
	return &actionError{code: protocol.ErrRejected, msg: fmt.Sprintf(format, args...)}
}

func conflict(msg string) error    { return &actionError{code: protocol.ErrConflict, msg: msg} }
func forbidden(msg string) error   { return &actionError{code: protocol.ErrNoPermission, msg: msg} }
func rateLimited(msg string) error { return &actionError{code: protocol.ErrRateLimit, msg: msg} }

func storageErr(op string, err error) error {
	return &actionError{code: protocol.ErrStorage, msg: "storage error", cause: fmt.Errorf("%s: %w", op, err)}
}

var (
	errNotAuthenticated = &actionError{code: protocol.ErrNotAuthenticated, msg: "not authenticated"}
	errNotInWorld       = &actionError{code: protocol.ErrNotInWorld, msg: "not in world"}
	errDead             = &actionError{code: protocol.ErrDead, msg: "you are dead", dead: true}
)

// errorPayload converts any handler error into its wire form. Errors that are
// not an actionError are internal failures.
func errorPayload(err error) (protocol.ErrorPayload, bool) {
	var ae *actionError
	if !errors.As(err, &ae) {
		return protocol.ErrorPayload{Error: "internal error", Code: protocol.ErrInternal}, true
	}
	if !protocol.IsKnownCode(ae.code) {
		return protocol.ErrorPayload{Error: "internal error", Code: protocol.ErrInternal}, true
	}
	logIt := ae.code == protocol.ErrStorage || ae.code == protocol.ErrInternal
	return protocol.ErrorPayload{Error: ae.msg, Code: ae.code, Dead: ae.dead}, logIt
}

// inventoryErr maps inventory engine errors onto client errors and anything
// else onto a storage failure.
func inventoryErr(op string, err error) error {
	switch {
	case errors.Is(err, inventory.ErrBadSlot),
		errors.Is(err, inventory.ErrSameSlot),
		errors.Is(err, inventory.ErrBadQuantity):
		return badRequest("%s", err.Error())
	case errors.Is(err, inventory.ErrEmptySlot),
		errors.Is(err, inventory.ErrUnknownItem),
		errors.Is(err, inventory.ErrNotEnough),
		errors.Is(err, inventory.ErrDifferentItem),
		errors.Is(err, inventory.ErrDestinationFull),
		errors.Is(err, inventory.ErrNoRoom),
		errors.Is(err, inventory.ErrNotHotbar),
		errors.Is(err, inventory.ErrNotConsumable):
		return rejected("%s", err.Error())
	}
	var ae *actionError
	if errors.As(err, &ae) {
		return err
	}
	return storageErr(op, err)
}
