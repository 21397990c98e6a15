package history

import (
	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
)

var (
	// ErrOpenFailed indicates the SQLite database could not be opened.
	ErrOpenFailed = errors.HistoryError("could not open history database").Build()

	// ErrSchemaFailed indicates the schema could not be created.
	ErrSchemaFailed = errors.HistoryError("failed to initialize history schema").Build()

	// ErrAppendFailed indicates a record could not be written.
	ErrAppendFailed = errors.HistoryError("failed to append build event").Build()

	// ErrQueryFailed indicates a query or row scan failed.
	ErrQueryFailed = errors.HistoryError("failed to query build history").Build()
)

func wrap(sentinel *errors.ClassifiedError, err error) error {
	return errors.HistoryError(sentinel.Message()).WithCause(err).Build()
}
