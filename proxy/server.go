package proxy

import (
	"context"
	"io"
	"os/exec"

	"github.com/kballard/go-shellquote"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lspws/api/lspws"
)

/*
	A language server running as a child process, spoken to over its stdio.
	Reads come from its stdout; writes go to its stdin.
*/
type ServerProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

/*
	Launch a language server from a shell-quoted command line.
	Its stderr goes to the given writer, or nowhere if nil.
	The process is killed if ctx is done.

	May return errors of category:

	  - `lspws.ErrUsage` -- if the command is blank, unparsable, or can't be started
*/
func StartServer(ctx context.Context, command string, stderr io.Writer) (*ServerProcess, error) {
	args, err := shellquote.Split(command)
	if err != nil {
		return nil, Errorf(lspws.ErrUsage, "cannot parse server command %q: %s", command, err)
	}
	if len(args) == 0 {
		return nil, Errorf(lspws.ErrUsage, "no server command given")
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, Errorf(lspws.ErrInternal, "cannot set up server stdin: %s", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, Errorf(lspws.ErrInternal, "cannot set up server stdout: %s", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, Errorf(lspws.ErrUsage, "cannot start server %q: %s", args[0], err)
	}
	return &ServerProcess{cmd, stdin, stdout}, nil
}

func (s *ServerProcess) Read(p []byte) (int, error)  { return s.stdout.Read(p) }
func (s *ServerProcess) Write(p []byte) (int, error) { return s.stdin.Write(p) }

// Hang up on the server.  It should exit once it sees its stdin close.
func (s *ServerProcess) Close() error {
	err := s.stdin.Close()
	s.stdout.Close()
	return err
}

// Wait for the server to exit.  Call after Close.
func (s *ServerProcess) Wait() error {
	if err := s.cmd.Wait(); err != nil {
		return Errorf(lspws.ErrRPCBreakdown, "language server exited: %s", err)
	}
	return nil
}
