package sheetapi

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind classifies a failed request.
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindConfig
	KindHTTP
	KindMalformed
	KindApplication
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindConfig:
		return "config"
	case KindHTTP:
		return "http"
	case KindMalformed:
		return "malformed"
	case KindApplication:
		return "application"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

const bodySnippetLimit = 200

// Error is returned for every failed remote call.
type Error struct {
	Kind          Kind
	Action        string
	CorrelationID string
	Status        int
	Body          string
	Message       string
	RequestID     string
	Timeout       bool
	Err           error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Action, e.Kind)
	switch {
	case e.Kind == KindHTTP:
		fmt.Fprintf(&b, ": HTTP %d", e.Status)
		if e.Body != "" {
			fmt.Fprintf(&b, ": %s", e.Body)
		}
	case e.Message != "":
		fmt.Fprintf(&b, ": %s", e.Message)
	case e.Err != nil:
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request %s)", e.RequestID)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the request may be repeated automatically.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork:
		return true
	case KindHTTP:
		return e.Status >= 500
	}
	return false
}

const htmlMessage = "The server returned HTML instead of JSON. This usually means the Apps Script web app requires authorization or is not publicly accessible."

// UserMessage is the banner text for this error.
func (e *Error) UserMessage() string {
	var msg string
	switch e.Kind {
	case KindConfig:
		msg = htmlMessage
	case KindNetwork:
		if e.Timeout {
			msg = fmt.Sprintf("%s timed out", e.Action)
		} else {
			msg = fmt.Sprintf("%s could not reach the server", e.Action)
		}
	case KindHTTP:
		msg = fmt.Sprintf("HTTP %d", e.Status)
		if e.Body != "" {
			msg += ": " + e.Body
		}
	case KindMalformed:
		msg = fmt.Sprintf("%s returned an unreadable response", e.Action)
	case KindApplication, KindValidation:
		msg = e.Message
		if msg == "" {
			msg = fmt.Sprintf("%s was rejected", e.Action)
		}
	default:
		msg = e.Error()
	}
	if e.RequestID != "" {
		msg += fmt.Sprintf(" (Request ID: %s)", e.RequestID)
	}
	return msg
}

// Hint suggests what to check, or "" when nothing useful applies.
func (e *Error) Hint() string {
	switch e.Kind {
	case KindConfig:
		return "Check the web app deployment permissions and access settings."
	case KindNetwork:
		return "Network/CORS/deployment issue likely. Confirm the web app URL and that it is deployed to anyone."
	case KindHTTP:
		if e.Status >= 500 {
			return "The server failed; try again shortly."
		}
		return "Confirm the api_url points at the /exec deployment."
	}
	return ""
}

// NewValidationError reports a payload that decoded but failed shape checks.
func NewValidationError(action, message string) *Error {
	return &Error{Kind: KindValidation, Action: action, Message: message}
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// Describe renders any error for display, using the typed message when
// available.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		msg := apiErr.UserMessage()
		if hint := apiErr.Hint(); hint != "" {
			msg += " " + hint
		}
		return msg
	}
	return err.Error()
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= bodySnippetLimit {
		return s
	}
	n := bodySnippetLimit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
