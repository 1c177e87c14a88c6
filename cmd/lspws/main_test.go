package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/lspws/api"
	"github.com/polydawn/lspws/api/lspws"
	"github.com/polydawn/lspws/fs"
	"github.com/polydawn/lspws/testutil"
)

func TestWithoutArgs(t *testing.T) {
	Convey("lspws: usage printed to stderr", t, func() {
		args := []string{"lspws"}
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		stdin := &bytes.Buffer{}
		ctx := context.Background()
		exitCode := Main(ctx, args, stdin, stdout, stderr)
		t.Log(string(stdout.Bytes()))
		t.Log(string(stderr.Bytes()))
		So(string(stdout.Bytes()), ShouldBeBlank)
		So(string(stderr.Bytes()), ShouldNotBeBlank)
		firstLine, err := stderr.ReadString('\n')
		So(err, ShouldBeNil)
		So(string(firstLine), ShouldContainSubstring, "usage: lspws [<flags>] <command> [<args> ...]")
		So(string(stderr.Bytes()), ShouldNotContainSubstring, "usage: lspws [<flags>] <command> [<args> ...]")
		So(exitCode, ShouldEqual, lspws.ExitUsage)
	})
}

func TestOpenAndResolve(t *testing.T) {
	Convey("lspws: opening workspaces from the command line", t, func() {
		testutil.WithTmpdir(func(tmpDir fs.AbsolutePath) {
			repoRoot := tmpDir.Join(fs.MustRelPath("repos"))
			workspaceRoot := tmpDir.Join(fs.MustRelPath("workspace"))
			fixture := testutil.NewRepoFixture(repoRoot, tmpDir, api.RepositoryURI("github.com/a/b"))
			head := fixture.Commit(map[string]string{"src/x.ts": "export const x = 1;\n"})
			wsPath := workspaceRoot.Join(fs.MustRelPath("github.com/a/b/head")).String()
			run := func(args ...string) (lspws.ExitCode, string, string) {
				stdout := &bytes.Buffer{}
				stderr := &bytes.Buffer{}
				full := append([]string{"lspws", "--repos=" + repoRoot.String(), "--workspaces=" + workspaceRoot.String()}, args...)
				exitCode := Main(context.Background(), full, &bytes.Buffer{}, stdout, stderr)
				t.Log(stdout.String())
				t.Log(stderr.String())
				return exitCode, stdout.String(), stderr.String()
			}

			Convey("open prints the workspace path and revision", func() {
				exitCode, stdout, stderr := run("open", "github.com/a/b")
				So(exitCode, ShouldEqual, lspws.ExitSuccess)
				So(stdout, ShouldEqual, wsPath+" "+head.String()[:7]+"\n")
				So(stderr, ShouldContainSubstring, "info: clone workspace "+wsPath)
			})
			Convey("open in json", func() {
				exitCode, stdout, _ := run("--format=json", "open", "github.com/a/b")
				So(exitCode, ShouldEqual, lspws.ExitSuccess)
				So(stdout, ShouldStartWith, `{"result":{"workspace":{`)
				So(stdout, ShouldContainSubstring, `"path":"`+wsPath+`"`)
				So(stdout, ShouldContainSubstring, `"commit":"`+head.String()+`"`)
			})
			Convey("open of a missing repository exits with its category", func() {
				exitCode, stdout, _ := run("--format=json", "open", "github.com/a/nope")
				So(exitCode, ShouldEqual, lspws.ExitRepoNotFound)
				So(stdout, ShouldContainSubstring, `"category":"lspws-repo-not-found"`)
			})
			Convey("open of a malformed repository uri is a usage error", func() {
				exitCode, _, _ := run("open", "github.com")
				So(exitCode, ShouldEqual, lspws.ExitUsage)
			})
			Convey("open of another revision is refused", func() {
				fixture.Commit(map[string]string{"src/y.ts": "\n"})
				exitCode, _, stderr := run("open", "github.com/a/b", "--revision="+head.String())
				So(exitCode, ShouldEqual, lspws.ExitBadRequest)
				So(stderr, ShouldContainSubstring, "revision must be HEAD.")
			})
			Convey("resolve prints the file uri", func() {
				exitCode, stdout, _ := run("resolve", "git://github.com/a/b?HEAD#src/x.ts")
				So(exitCode, ShouldEqual, lspws.ExitSuccess)
				So(stdout, ShouldEqual, "file://"+wsPath+"/src/x.ts\n")
			})
			Convey("resolve in json names the canonical source", func() {
				exitCode, stdout, _ := run("--format=json", "resolve", "git://github.com/a/b?HEAD#/src/x.ts")
				So(exitCode, ShouldEqual, lspws.ExitSuccess)
				So(stdout, ShouldContainSubstring, `"source":"git://github.com/a/b?head#src/x.ts"`)
				So(stdout, ShouldContainSubstring, `"uri":"file://`+wsPath+`/src/x.ts"`)
			})
			Convey("resolve of a repository nested deeper than owner/name is a bad request", func() {
				exitCode, _, _ := run("resolve", "git://gitlab.com/group/sub/proj?head#x.ts")
				So(exitCode, ShouldEqual, lspws.ExitBadRequest)
			})
			Convey("roots can come from a config file", func() {
				cfgPath := filepath.Join(tmpDir.String(), "lspws.jsonc")
				So(os.WriteFile(cfgPath, []byte(`{
					// relative to this file
					"repos": "repos",
					"workspaces": "workspace",
				}`), 0644), ShouldBeNil)
				stdout := &bytes.Buffer{}
				exitCode := Main(context.Background(), []string{"lspws", "--config=" + cfgPath, "open", "github.com/a/b"}, &bytes.Buffer{}, stdout, &bytes.Buffer{})
				So(exitCode, ShouldEqual, lspws.ExitSuccess)
				So(stdout.String(), ShouldStartWith, wsPath+" ")
			})
		})
	})
}

func TestServeUsage(t *testing.T) {
	Convey("lspws: serve without a server command", t, testutil.Requires(
		testutil.RequiresEnvBlank("LSPWS_SERVER"),
		func() {
			stderr := &bytes.Buffer{}
			exitCode := Main(context.Background(), []string{"lspws", "--repos=/tmp/r", "--workspaces=/tmp/w", "serve"}, &bytes.Buffer{}, &bytes.Buffer{}, stderr)
			So(exitCode, ShouldEqual, lspws.ExitUsage)
			So(stderr.String(), ShouldContainSubstring, "no server command given")
		},
	))
}
