package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/warpfork/go-errcat"
	srcd_git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"github.com/polydawn/lspws/api"
	"github.com/polydawn/lspws/api/lspws"
	"github.com/polydawn/lspws/fs"
	"github.com/polydawn/lspws/testutil"
)

func shouldHaveHead(path string) plumbing.Hash {
	repo, err := srcd_git.PlainOpen(path)
	So(err, ShouldBeNil)
	ref, err := repo.Head()
	So(err, ShouldBeNil)
	return ref.Hash()
}

func shouldReadFile(ws api.Workspace, name string) string {
	body, err := os.ReadFile(filepath.Join(ws.Path, name))
	So(err, ShouldBeNil)
	return string(body)
}

// Wait until n callers hold or are queued on the key.
func waitForLockers(locks *keyedLocks, key string, n int) {
	for deadline := time.Now().Add(10 * time.Second); time.Now().Before(deadline); time.Sleep(5 * time.Millisecond) {
		locks.mu.Lock()
		kl := locks.m[key]
		ok := kl != nil && kl.refs >= n
		locks.mu.Unlock()
		if ok {
			return
		}
	}
	So("timed out waiting for lockers", ShouldBeEmpty)
}

func TestOpenWorkspace(t *testing.T) {
	Convey("OpenWorkspace:", t, func() {
		testutil.WithTmpdir(func(tmpDir fs.AbsolutePath) {
			repoRoot := tmpDir.Join(fs.MustRelPath("repos"))
			workspaceRoot := tmpDir.Join(fs.MustRelPath("workspace"))
			uri := api.RepositoryURI("github.com/polydawn/lspws")
			fixture := testutil.NewRepoFixture(repoRoot, tmpDir, uri)
			first := fixture.Commit(map[string]string{
				"README":      "hello\n",
				"src/main.go": "package main\n",
			})
			events := make(chan lspws.Event, 100)
			handler := NewHandler(repoRoot, workspaceRoot, lspws.Monitor{Chan: events})
			ctx := context.Background()

			Convey("A first open clones the bare repository at HEAD", func() {
				ws, err := handler.OpenWorkspace(ctx, uri, api.RevisionHead)
				So(err, ShouldBeNil)
				So(ws.Path, ShouldEqual, workspaceRoot.Join(fs.MustRelPath("github.com/polydawn/lspws/head")).String())
				So(ws.Commit, ShouldEqual, first.String())
				So(ws.Revision, ShouldEqual, first.String()[:7])
				So(shouldHaveHead(ws.Path), ShouldResemble, first)
				So(shouldReadFile(ws, "src/main.go"), ShouldEqual, "package main\n")

				Convey("and records the short hash in the revision map", func() {
					rev, ok := handler.Revisions().Get("github.com/polydawn/lspws/head")
					So(ok, ShouldBeTrue)
					So(rev, ShouldEqual, ws.Revision)
				})
				Convey("and reports the clone to the monitor", func() {
					So(len(events), ShouldBeGreaterThan, 0)
					ev := <-events
					So(ev.Log, ShouldNotBeNil)
					So(ev.Log.Msg, ShouldStartWith, "clone workspace ")
				})

				Convey("Opening again without changes leaves the workspace alone", func() {
					ws2, err := handler.OpenWorkspace(ctx, uri, api.RevisionHead)
					So(err, ShouldBeNil)
					So(ws2, ShouldResemble, ws)
				})

				Convey("After the bare repository moves on", func() {
					second := fixture.Commit(map[string]string{"src/main.go": "package main\n\nfunc main() {}\n"})

					Convey("opening fetches and checks out the new HEAD", func() {
						ws2, err := handler.OpenWorkspace(ctx, uri, api.RevisionHead)
						So(err, ShouldBeNil)
						So(ws2.Path, ShouldEqual, ws.Path)
						So(ws2.Revision, ShouldEqual, second.String()[:7])
						So(shouldHaveHead(ws2.Path), ShouldResemble, second)
						So(shouldReadFile(ws2, "src/main.go"), ShouldEqual, "package main\n\nfunc main() {}\n")
						rev, _ := handler.Revisions().Get("github.com/polydawn/lspws/head")
						So(rev, ShouldEqual, ws2.Revision)
					})
					Convey("the old commit is no longer acceptable", func() {
						_, err := handler.OpenWorkspace(ctx, uri, api.Revision(first.String()))
						So(err, errcat.ErrorShouldHaveCategory, lspws.ErrBadRequest)
					})
				})

				Convey("An open queued behind another picks up HEAD as of when it gets the lock", func() {
					key := WorkspaceKey(uri).Unprefixed()
					release, err := handler.locks.acquire(ctx, key)
					So(err, ShouldBeNil)
					var ws2 api.Workspace
					var err2 error
					done := make(chan struct{})
					go func() {
						defer close(done)
						ws2, err2 = handler.OpenWorkspace(ctx, uri, api.RevisionHead)
					}()
					waitForLockers(handler.locks, key, 2)
					second := fixture.Commit(map[string]string{"README": "moved on\n"})
					release()
					<-done

					So(err2, ShouldBeNil)
					So(ws2.Commit, ShouldEqual, second.String())
					So(shouldHaveHead(ws2.Path), ShouldResemble, second)
					So(shouldReadFile(ws2, "README"), ShouldEqual, "moved on\n")
					rev, _ := handler.Revisions().Get(key)
					So(rev, ShouldEqual, second.String()[:7])
				})

				Convey("A fresh handler (as after a restart) reuses the workspace", func() {
					handler2 := NewHandler(repoRoot, workspaceRoot, lspws.Monitor{})
					So(handler2.Revisions().Snapshot(), ShouldBeEmpty)
					ws2, err := handler2.OpenWorkspace(ctx, uri, api.RevisionHead)
					So(err, ShouldBeNil)
					So(ws2, ShouldResemble, ws)
					So(handler2.Revisions().Snapshot(), ShouldResemble, map[string]string{
						"github.com/polydawn/lspws/head": ws.Revision,
					})
				})
			})

			Convey("A workspace dir left broken by an interrupted clone is replaced", func() {
				dir := workspaceRoot.Join(WorkspaceKey(uri)).String()
				So(os.MkdirAll(filepath.Join(dir, ".git"), 0755), ShouldBeNil)
				So(os.WriteFile(filepath.Join(dir, "junk"), []byte("x"), 0644), ShouldBeNil)

				ws, err := handler.OpenWorkspace(ctx, uri, api.RevisionHead)
				So(err, ShouldBeNil)
				So(ws.Path, ShouldEqual, dir)
				So(ws.Commit, ShouldEqual, first.String())
				So(shouldHaveHead(ws.Path), ShouldResemble, first)
				So(shouldReadFile(ws, "README"), ShouldEqual, "hello\n")
				_, err = os.Stat(filepath.Join(dir, "junk"))
				So(os.IsNotExist(err), ShouldBeTrue)
				ev := <-events
				So(ev.Log.Level, ShouldEqual, lspws.LogWarn)
				So(ev.Log.Msg, ShouldStartWith, "discard broken workspace "+dir)
				ev = <-events
				So(ev.Log.Msg, ShouldStartWith, "clone workspace "+dir)
			})
			Convey("A revision naming the HEAD commit is accepted", func() {
				ws, err := handler.OpenWorkspace(ctx, uri, api.Revision(first.String()))
				So(err, ShouldBeNil)
				So(ws.Commit, ShouldEqual, first.String())
				So(ws.Path, ShouldEndWith, "/head")
			})
			Convey("A revision other than HEAD is a bad request", func() {
				fixture.Commit(map[string]string{"README": "bye\n"})
				_, err := handler.OpenWorkspace(ctx, uri, api.Revision(first.String()))
				So(err, errcat.ErrorShouldHaveCategory, lspws.ErrBadRequest)
				_, err = os.Stat(workspaceRoot.Join(WorkspaceKey(uri)).String())
				So(os.IsNotExist(err), ShouldBeTrue)
			})
			Convey("An unknown repository is not found", func() {
				_, err := handler.OpenWorkspace(ctx, api.RepositoryURI("github.com/polydawn/nope"), api.RevisionHead)
				So(err, errcat.ErrorShouldHaveCategory, lspws.ErrRepoNotFound)
			})
			Convey("An unknown revision is not found", func() {
				_, err := handler.OpenWorkspace(ctx, uri, api.Revision("no-such-branch"))
				So(err, errcat.ErrorShouldHaveCategory, lspws.ErrRevisionNotFound)
			})
			Convey("A cancelled context stops before touching anything", func() {
				cctx, cancel := context.WithCancel(ctx)
				cancel()
				_, err := handler.OpenWorkspace(cctx, uri, api.RevisionHead)
				So(err, errcat.ErrorShouldHaveCategory, lspws.ErrCancelled)
			})
			Convey("Concurrent opens of one workspace all agree", testutil.Requires(testutil.RequiresLongRun, func() {
				const n = 8
				var wg sync.WaitGroup
				results := make([]api.Workspace, n)
				errs := make([]error, n)
				for i := 0; i < n; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						results[i], errs[i] = handler.OpenWorkspace(ctx, uri, api.RevisionHead)
					}(i)
				}
				wg.Wait()
				for i := 0; i < n; i++ {
					So(errs[i], ShouldBeNil)
					So(results[i].Commit, ShouldEqual, first.String())
				}
				So(shouldHaveHead(results[0].Path), ShouldResemble, first)
			}))
		})
	})
}

func TestKeyedLocks(t *testing.T) {
	Convey("Keyed locks:", t, func() {
		locks := newKeyedLocks()
		ctx := context.Background()

		Convey("a held key blocks a second acquire until cancelled", func() {
			release, err := locks.acquire(ctx, "a")
			So(err, ShouldBeNil)
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err = locks.acquire(cctx, "a")
			So(err, errcat.ErrorShouldHaveCategory, lspws.ErrCancelled)
			release()
			So(locks.m, ShouldBeEmpty)
		})
		Convey("different keys don't contend", func() {
			releaseA, err := locks.acquire(ctx, "a")
			So(err, ShouldBeNil)
			releaseB, err := locks.acquire(ctx, "b")
			So(err, ShouldBeNil)
			releaseA()
			releaseB()
			So(locks.m, ShouldBeEmpty)
		})
	})
}

func TestLockFile(t *testing.T) {
	Convey("Lock files:", t, func() {
		testutil.WithTmpdir(func(tmpDir fs.AbsolutePath) {
			ctx := context.Background()
			unlock, err := lockFile(ctx, tmpDir.Join(fs.MustRelPath("a/b")), "head.lock")
			So(err, ShouldBeNil)

			Convey("a second holder waits until the first lets go", func() {
				cctx, cancel := context.WithCancel(ctx)
				cancel()
				_, err := lockFile(cctx, tmpDir.Join(fs.MustRelPath("a/b")), "head.lock")
				So(err, errcat.ErrorShouldHaveCategory, lspws.ErrCancelled)

				unlock()
				unlock2, err := lockFile(ctx, tmpDir.Join(fs.MustRelPath("a/b")), "head.lock")
				So(err, ShouldBeNil)
				unlock2()
			})
		})
	})
}
