// Package ota receives firmware images over the network, installs them
// and tells the device loop about the progress through events.
package ota

import (
	"errors"
	"fmt"
	"time"

	"flamingods.net/ledplans/plan"
)

var (
	// ErrBusy is returned when a session is already in progress.
	ErrBusy = errors.New("OTA already in progress")
	// ErrNotArmed rejects pushes that were not announced via POST /ota.
	ErrNotArmed = errors.New("OTA not armed")
	ErrAuth     = errors.New("OTA authentication failed")
)

type Kind int

const (
	Start Kind = iota
	Progress
	End
	Error
)

func (k Kind) String() string {
	switch k {
	case Start:
		return "start"
	case Progress:
		return "progress"
	case End:
		return "end"
	case Error:
		return "error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type ErrorCode int

const (
	NoError ErrorCode = iota
	AuthError
	BeginError
	ConnectError
	ReceiveError
	EndError
)

var codeNames = map[ErrorCode]string{
	NoError:      "OTA_NO_ERROR",
	AuthError:    "OTA_AUTH_ERROR",
	BeginError:   "OTA_BEGIN_ERROR",
	ConnectError: "OTA_CONNECT_ERROR",
	ReceiveError: "OTA_RECEIVE_ERROR",
	EndError:     "OTA_END_ERROR",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("OTA_ERROR_%d", int(c))
}

// ParseErrorCode is the inverse of ErrorCode.String.
func ParseErrorCode(name string) (ErrorCode, bool) {
	for c, n := range codeNames {
		if n == name {
			return c, true
		}
	}
	return NoError, false
}

// Event is what the receiver reports to the device loop.
type Event struct {
	Kind    Kind
	Session string
	Percent int
	Code    ErrorCode
}

// CodedError carries the error code an install or transfer failure is
// reported with.
type CodedError struct {
	Code ErrorCode
	Err  error
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *CodedError) Unwrap() error {
	return e.Err
}

func codedf(code ErrorCode, format string, args ...any) error {
	return &CodedError{Code: code, Err: fmt.Errorf(format, args...)}
}

// Session is the device side view of a firmware transfer. It is owned by
// the device loop.
type Session struct {
	ID         string
	InProgress bool
	Progress   int
	StartTime  time.Time
	// Plan that was active when the transfer started.
	PriorPlan plan.Plan
}

// Begin starts a new session.
func (s *Session) Begin(id string, now time.Time, prior plan.Plan) {
	*s = Session{ID: id, InProgress: true, StartTime: now, PriorPlan: prior}
}

// SetProgress records the percentage, ignoring values for other sessions.
func (s *Session) SetProgress(id string, percent int) {
	if !s.InProgress || id != s.ID {
		return
	}
	s.Progress = min(max(percent, 0), 100)
}

func (s *Session) Finish() {
	s.InProgress = false
	s.Progress = 100
}

func (s *Session) Fail() {
	s.InProgress = false
}

// Duration is the time since the session started, 0 when none runs.
func (s *Session) Duration(now time.Time) time.Duration {
	if !s.InProgress {
		return 0
	}
	return now.Sub(s.StartTime)
}
