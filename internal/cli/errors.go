package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/osvaldoandrade/storemigrate/internal/app/dataop"
	"github.com/osvaldoandrade/storemigrate/internal/app/migration"
	statusapp "github.com/osvaldoandrade/storemigrate/internal/app/status"
	"github.com/osvaldoandrade/storemigrate/internal/config"
	"github.com/osvaldoandrade/storemigrate/internal/domain"
	"github.com/osvaldoandrade/storemigrate/internal/infra/schemafile"
)

type ErrorKind string

const (
	KindInternal   ErrorKind = "internal"
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
)

const (
	ExitInternal = 1
	ExitInvalid  = 2
	ExitNotFound = 3
	ExitConflict = 4
)

type ExitError struct {
	Code    int
	Kind    ErrorKind
	Message string
	Err     error
}

func (e ExitError) Error() string {
	return errorMessage(e)
}

func NormalizeError(err error) ExitError {
	if err == nil {
		return ExitError{Code: 0}
	}
	var exitErr ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Code == 0 {
			exitErr.Code = ExitInternal
		}
		return exitErr
	}

	switch {
	case errors.Is(err, domain.ErrStoreNotFound),
		errors.Is(err, domain.ErrIndexNotFound),
		errors.Is(err, fs.ErrNotExist):
		return ExitError{Code: ExitNotFound, Kind: KindNotFound, Err: err}
	case errors.Is(err, domain.ErrStoreExists),
		errors.Is(err, domain.ErrIndexExists),
		errors.Is(err, domain.ErrConstraint),
		errors.Is(err, domain.ErrKeyChanged),
		errors.Is(err, migration.ErrVersionDowngrade):
		return ExitError{Code: ExitConflict, Kind: KindConflict, Err: err}
	case errors.Is(err, domain.ErrInvalidSchema),
		errors.Is(err, domain.ErrInvalidRecord),
		errors.Is(err, domain.ErrKeyRequired),
		errors.Is(err, migration.ErrInvalidVersion),
		errors.Is(err, schemafile.ErrInvalidDocument),
		errors.Is(err, schemafile.ErrPathRequired),
		errors.Is(err, dataop.ErrUnknownKind),
		errors.Is(err, dataop.ErrStoreRequired),
		errors.Is(err, dataop.ErrEmptyOperation),
		errors.Is(err, statusapp.ErrInvalidLimit),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, config.ErrDBRequired),
		errors.Is(err, config.ErrSchemaRequired):
		return ExitError{Code: ExitInvalid, Kind: KindValidation, Err: err}
	default:
		return ExitError{Code: ExitInternal, Kind: KindInternal, Err: err}
	}
}

func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return NormalizeError(err).Code
}

func writeCLIError(w io.Writer, exitErr ExitError, asJSON bool) error {
	if exitErr.Code == 0 {
		return nil
	}
	message := errorMessage(exitErr)
	if asJSON {
		payload := struct {
			Code    int    `json:"code"`
			Kind    string `json:"kind"`
			Message string `json:"message"`
		}{
			Code:    exitErr.Code,
			Kind:    string(exitErr.Kind),
			Message: message,
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(payload)
	}

	ui := newRenderer(w, false)
	prefix := "Error"
	if exitErr.Kind != "" {
		prefix = fmt.Sprintf("Error (%s)", exitErr.Kind)
	}
	prefix = ui.bad(prefix)
	_, err := fmt.Fprintf(w, "%s: %s\n", prefix, message)
	return err
}

func errorMessage(exitErr ExitError) string {
	if exitErr.Message != "" {
		return exitErr.Message
	}
	if exitErr.Err != nil {
		return exitErr.Err.Error()
	}
	return "unknown error"
}
