package databases

import (
	"github.com/joomcode/errorx"
)

var (
	// Errors is a namespace for database registry errors.
	Errors = errorx.NewNamespace("databases")

	// ErrConfig - connection record is malformed.
	ErrConfig = Errors.NewType("config")
	// ErrUnknownDatabase - no record with such id.
	ErrUnknownDatabase = Errors.NewType("unknown_database", errorx.NotFound())
	// ErrPoolClosed - pool is closed.
	ErrPoolClosed = Errors.NewType("closed")
	// ErrConnect - connection failed with non-redis error.
	ErrConnect = Errors.NewType("connect")

	// EKDatabase - database id.
	EKDatabase = errorx.RegisterProperty("database")
)

func decorate(err error, id string) error {
	if xerr := errorx.Cast(err); xerr != nil {
		return errorx.Decorate(xerr, "database %s", id).WithProperty(EKDatabase, id)
	}
	return ErrConnect.Wrap(err, "database %s", id)
}
