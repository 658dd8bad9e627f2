package bulk

import (
	"github.com/joomcode/errorx"
)

var (
	// Errors is a namespace for bulk action errors.
	Errors = errorx.NewNamespace("bulk")

	// ErrInvalidAction - action descriptor is malformed.
	ErrInvalidAction = Errors.NewType("invalid_action")
	// ErrUnsupportedKind - unknown action kind.
	ErrUnsupportedKind = ErrInvalidAction.NewSubtype("unsupported_kind")
	// ErrInvalidParams - parameters don't fit action kind.
	ErrInvalidParams = ErrInvalidAction.NewSubtype("invalid_params")

	// ErrActionNotFound - no live action with such id.
	ErrActionNotFound = Errors.NewType("not_found", errorx.NotFound())
	// ErrForbidden - action belongs to other owner.
	ErrForbidden = Errors.NewType("forbidden")
	// ErrAlreadyStarted - Runner.Run called twice.
	ErrAlreadyStarted = Errors.NewType("already_started")
	// ErrRegistryClosed - registry does not accept actions anymore.
	ErrRegistryClosed = Errors.NewType("registry_closed")
	// ErrNothingScanned - no node could be scanned.
	ErrNothingScanned = Errors.NewType("nothing_scanned")

	// EKActionID - id of action.
	EKActionID = errorx.RegisterProperty("action_id")
	// EKOwner - owner of action.
	EKOwner = errorx.RegisterProperty("owner")
	// EKKind - kind of action.
	EKKind = errorx.RegisterProperty("kind")
)
