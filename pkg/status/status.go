// Package status defines the closed set of result codes returned at
// the nvmtree public boundary.
package status

// Code is one of the closed set of result codes the engine returns.
type Code int

const (
	OK Code = iota
	UnknownError
	NotFound
	NotSupported
	InvalidArgument
	ConfigParsingError
	ConfigTypeError
	StoppedByCB
	OutOfMemory
	WrongEngineName
	TransactionScopeError
	DefragError
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case UnknownError:
		return "UNKNOWN_ERROR"
	case NotFound:
		return "NOT_FOUND"
	case NotSupported:
		return "NOT_SUPPORTED"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case ConfigParsingError:
		return "CONFIG_PARSING_ERROR"
	case ConfigTypeError:
		return "CONFIG_TYPE_ERROR"
	case StoppedByCB:
		return "STOPPED_BY_CB"
	case OutOfMemory:
		return "OUT_OF_MEMORY"
	case WrongEngineName:
		return "WRONG_ENGINE_NAME"
	case TransactionScopeError:
		return "TRANSACTION_SCOPE_ERROR"
	case DefragError:
		return "DEFRAG_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Error wraps a Code with an optional human-readable message, so callers
// that want a Go error and callers that want a bare status code can both
// be served from the same return value.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Message
}

// New builds a status error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// FromError maps a plain Go error to a status code, defaulting to
// UnknownError when the error carries no status of its own.
func FromError(err error) Code {
	if err == nil {
		return OK
	}
	var se *Error
	if as, ok := err.(*Error); ok {
		se = as
	}
	if se != nil {
		return se.Code
	}
	return UnknownError
}
