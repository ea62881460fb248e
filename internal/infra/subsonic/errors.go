package subsonic

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Subsonic API error codes.
const (
	CodeGeneric               = 0
	CodeMissingParameter      = 10
	CodeClientMustUpgrade     = 20
	CodeServerMustUpgrade     = 30
	CodeWrongCredentials      = 40
	CodeTokenAuthNotSupported = 41
	CodeNotAuthorized         = 50
	CodeTrialExpired          = 60
	CodeNotFound              = 70
)

var codeDescriptions = map[int]string{
	CodeGeneric:               "Generic Error.",
	CodeMissingParameter:      "Required Parameter Missing.",
	CodeClientMustUpgrade:     "Incompatible Subsonic REST protocol version. Client must upgrade.",
	CodeServerMustUpgrade:     "Incompatible Subsonic REST protocol version. Server must upgrade.",
	CodeWrongCredentials:      "Wrong username or password.",
	CodeTokenAuthNotSupported: "Token authentication not supported for LDAP users.",
	CodeNotAuthorized:         "User is not authorized for the given operation.",
	CodeTrialExpired:          "The trial period for the Subsonic server is over.",
	CodeNotFound:              "The requested data was not found.",
}

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("subsonic client closed")

// Error is a structured error reported by the Subsonic server.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("subsonic error %d: %s", e.Code, Describe(e.Code))
	}
	return fmt.Sprintf("subsonic error %d: %s", e.Code, e.Message)
}

// Describe returns the description of a Subsonic error code.
func Describe(code int) string {
	if d, ok := codeDescriptions[code]; ok {
		return d
	}
	return "Unknown Error Code."
}

// IsCode reports whether err is a Subsonic error with the given code.
func IsCode(err error, code int) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
