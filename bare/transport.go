package bare

import (
	"gopkg.in/src-d/go-git.v4/plumbing/transport/client"
	"gopkg.in/src-d/go-git.v4/plumbing/transport/server"
)

/*
	Serve "file" transport in-process.

	By default go-git shells out to git-upload-pack for local clones and fetches.
	Bare repositories are always local to us, so we swap in go-git's own
	server, loading repositories straight off the filesystem
	(the default loader resolves endpoint paths against '/').
	Workspace clones and fetches then need nothing from the host.
*/
func init() {
	client.InstallProtocol("file", server.NewClient(server.DefaultLoader))
}
