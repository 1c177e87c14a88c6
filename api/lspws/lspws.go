/*
	Interfaces of lspws commands.

	Like the other packages under 'api', everything here is either a
	function signature or a serializable type: callers have already done
	all config loading, and only hand over plain values.
*/
package lspws

import (
	"context"

	"github.com/polydawn/lspws/api"
)

/*
	Ensure a working tree exists for the repository, checked out at the
	commit the revision resolves to, and return where it is.
*/
type OpenWorkspaceFunc func(
	ctx context.Context, // Long-running call.  Cancellable.
	repository api.RepositoryURI, // Which bare repository to check out.
	revision api.Revision, // Which revision; only head (or the commit head points to) is supported.
) (api.Workspace, error)

/*
	Monitoring configuration structs, and message types used.
*/
type (
	/*
		Configuration for what intermediate reports a process should send,
		and slot for the channel the caller wishes them to be sent to.
	*/
	Monitor struct {
		// Channel to which events will be sent as the process proceeds.
		// A nil channel will disable all intermediate reporting.
		//
		// Sends block; whoever owns the channel must keep draining it
		// for as long as the monitored handler is in use.
		Chan chan<- Event
	}

	/*
		A "union" type of all the kinds of event that may be generated.

		The "Result" message is never sent to Monitor.Chan --
		its values are converted into the function returns --
		but *is* seen in the serial form emitted by the command line.
	*/
	Event struct {
		Log    *Event_Log    `refmt:"log,omitempty"`
		Result *Event_Result `refmt:"result,omitempty"`
	}

	Event_Log struct {
		Level  LogLevel    `refmt:"lvl"`
		Msg    string      `refmt:"msg"`
		Detail [][2]string `refmt:"detail,omitempty"`
	}

	Event_Result struct {
		Workspace *api.Workspace `refmt:"workspace,omitempty"`
		Source    *api.GitURI    `refmt:"source,omitempty"` // The git uri that was resolved, canonicalized.
		URI       string         `refmt:"uri,omitempty"`
		Error     *Error         `refmt:"error,omitempty"`
	}

	/*
		Serial form of an error: the category string and the message.
	*/
	Error struct {
		Category ErrorCategory `refmt:"category"`
		Message  string        `refmt:"message"`
	}
)

type LogLevel string

const (
	LogError = LogLevel("error")
	LogWarn  = LogLevel("warn")
	LogInfo  = LogLevel("info")
	LogDebug = LogLevel("debug")
)

type ErrorCategory string
type ExitCode int

const (
	ExitSuccess                                   = ExitCode(0)
	ExitUsage, ErrUsage                           = ExitCode(1), ErrorCategory("lspws-usage-error")           // Indicates some piece of user input to a command was invalid and unrunnable.
	ExitPanic                                     = ExitCode(2)                                               // Placeholder.  We don't use this.  '2' happens when golang exits due to panic.
	ExitBadRequest, ErrBadRequest                 = ExitCode(3), ErrorCategory("lspws-bad-request")           // A well-formed request we refuse to serve, e.g. a revision other than head.
	ExitRepoNotFound, ErrRepoNotFound             = ExitCode(4), ErrorCategory("lspws-repo-not-found")        // Repository 404 -- no bare repository at that uri.
	ExitRevisionNotFound, ErrRevisionNotFound     = ExitCode(5), ErrorCategory("lspws-revision-not-found")    // The bare repository exists but the revision does not resolve to a commit.
	ExitInternal, ErrInternal                     = ExitCode(6), ErrorCategory("lspws-internal")              // Checkout, reset, or other git operations failed midway.
	ExitLocalCacheProblem, ErrLocalCacheProblem   = ExitCode(7), ErrorCategory("lspws-local-cache-problem")   // The workspace area on the local filesystem is unusable (permissions, locks, corrupt clones).
	ExitCancelled, ErrCancelled                   = ExitCode(8), ErrorCategory("lspws-cancelled")             // The operation timed out or was cancelled
	ExitRPCBreakdown, ErrRPCBreakdown             = ExitCode(120), ErrorCategory("lspws-rpc-breakdown")       // Raised when the language server or the client stream is lost, or sends unparsable messages.
)

/*
	Return the exit code paired with an error category.
	Categories we don't know (or a nil category) map to ExitInternal.
*/
func ExitCodeForCategory(category interface{}) ExitCode {
	switch category {
	case ErrUsage:
		return ExitUsage
	case ErrBadRequest:
		return ExitBadRequest
	case ErrRepoNotFound:
		return ExitRepoNotFound
	case ErrRevisionNotFound:
		return ExitRevisionNotFound
	case ErrLocalCacheProblem:
		return ExitLocalCacheProblem
	case ErrCancelled:
		return ExitCancelled
	case ErrRPCBreakdown:
		return ExitRPCBreakdown
	default:
		return ExitInternal
	}
}
