package testutil

import (
	"os"
	"path/filepath"
	"time"

	"github.com/smartystreets/goconvey/convey"
	srcd_git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/config"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/object"

	"github.com/polydawn/lspws/api"
	"github.com/polydawn/lspws/fs"
)

/*
	A bare repository under a repository root, plus a scratch clone
	used to author commits and push them into it.

	All the helpers assert with convey; use them inside a Convey block.
*/
type RepoFixture struct {
	URI      api.RepositoryURI
	BarePath fs.AbsolutePath

	scratch *srcd_git.Repository
	workdir string
	commits int
}

/*
	Create an empty bare repository at repoRoot/uri,
	with its authoring clone somewhere under scratchRoot.

	Bare repositories here are pushed to through go-git's in-process
	file transport, so make sure the package under test (or this one's
	caller) links in the 'bare' package, which installs it.
*/
func NewRepoFixture(repoRoot, scratchRoot fs.AbsolutePath, uri api.RepositoryURI) *RepoFixture {
	barePath := repoRoot.Join(fs.MustRelPath(string(uri)))
	convey.So(os.MkdirAll(barePath.String(), 0755), convey.ShouldBeNil)
	_, err := srcd_git.PlainInit(barePath.String(), true)
	convey.So(err, convey.ShouldBeNil)

	workdir, err := os.MkdirTemp(scratchRoot.String(), "scratch-")
	convey.So(err, convey.ShouldBeNil)
	scratch, err := srcd_git.PlainInit(workdir, false)
	convey.So(err, convey.ShouldBeNil)
	_, err = scratch.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{barePath.String()},
	})
	convey.So(err, convey.ShouldBeNil)

	return &RepoFixture{
		URI:      uri,
		BarePath: barePath,
		scratch:  scratch,
		workdir:  workdir,
	}
}

/*
	Write the files (path -> body), commit them, and push the commit
	to the bare repository's master branch, which its HEAD points at.
	Returns the new commit hash.
*/
func (f *RepoFixture) Commit(files map[string]string) plumbing.Hash {
	wt, err := f.scratch.Worktree()
	convey.So(err, convey.ShouldBeNil)
	for name, body := range files {
		full := filepath.Join(f.workdir, filepath.FromSlash(name))
		convey.So(os.MkdirAll(filepath.Dir(full), 0755), convey.ShouldBeNil)
		convey.So(os.WriteFile(full, []byte(body), 0644), convey.ShouldBeNil)
		_, err := wt.Add(name)
		convey.So(err, convey.ShouldBeNil)
	}
	f.commits++
	hash, err := wt.Commit("fixture commit", &srcd_git.CommitOptions{
		Author: &object.Signature{
			Name:  "lspws fixture",
			Email: "fixture@lspws.invalid",
			When:  time.Unix(1500000000+int64(f.commits)*60, 0).UTC(),
		},
	})
	convey.So(err, convey.ShouldBeNil)
	err = f.scratch.Push(&srcd_git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{"refs/heads/master:refs/heads/master"},
	})
	if err != srcd_git.NoErrAlreadyUpToDate {
		convey.So(err, convey.ShouldBeNil)
	}
	return hash
}
