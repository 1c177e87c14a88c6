/*
	Helper functions for emitting structured logs to the lspws.Monitor.

	These cover the common lifecycle events of a workspace and of proxied
	requests, so the wording and detail keys stay the same everywhere.
	Anyone can of course also write their own log events raw; it is freetext.
*/
package log

import (
	"fmt"

	"github.com/polydawn/lspws/api"
	"github.com/polydawn/lspws/api/lspws"
)

func send(mon lspws.Monitor, lvl lspws.LogLevel, msg string, detail ...[2]string) {
	if mon.Chan == nil {
		return
	}
	mon.Chan <- lspws.Event{
		Log: &lspws.Event_Log{
			Level:  lvl,
			Msg:    msg,
			Detail: detail,
		},
	}
}

func WorkspaceCloned(mon lspws.Monitor, repo api.RepositoryURI, dir string, from string) {
	send(mon, lspws.LogInfo, fmt.Sprintf("clone workspace %s from url %s", dir, from),
		[2]string{"repository", string(repo)},
		[2]string{"workspace", dir},
	)
}

func WorkspaceFetched(mon lspws.Monitor, repo api.RepositoryURI, dir string) {
	send(mon, lspws.LogInfo, fmt.Sprintf("fetch workspace %s from origin", dir),
		[2]string{"repository", string(repo)},
		[2]string{"workspace", dir},
	)
}

func WorkspaceReset(mon lspws.Monitor, dir string, commit string) {
	send(mon, lspws.LogInfo, fmt.Sprintf("checkout %s to commit %s", dir, commit),
		[2]string{"workspace", dir},
		[2]string{"commit", commit},
	)
}

// Emitted when a workspace directory is unreadable as a repository and is about to be re-cloned.
func WorkspaceDiscarded(mon lspws.Monitor, dir string, err error) {
	send(mon, lspws.LogWarn, fmt.Sprintf("discard broken workspace %s: %s", dir, err),
		[2]string{"workspace", dir},
		[2]string{"error", err.Error()},
	)
}

// Emitted when a workspace was already at the target commit and nothing was touched.
func WorkspaceCurrent(mon lspws.Monitor, ws api.Workspace) {
	send(mon, lspws.LogDebug, fmt.Sprintf("workspace %s already at %s", ws.Path, ws.Revision),
		[2]string{"workspace", ws.Path},
		[2]string{"revision", ws.Revision},
	)
}

// Typically called with errors from translating a request; the client gets an error response.
func RequestFailed(mon lspws.Monitor, method string, err error) {
	send(mon, lspws.LogWarn, fmt.Sprintf("request %s failed: %s", method, err),
		[2]string{"method", method},
		[2]string{"error", err.Error()},
	)
}

func URIResolved(mon lspws.Monitor, from string, to string) {
	send(mon, lspws.LogDebug, fmt.Sprintf("resolved %s to %s", from, to),
		[2]string{"from", from},
		[2]string{"to", to},
	)
}
