/*
	The workspace package keeps working trees checked out from bare
	repositories, so a language server has real files to read.

	Workspaces are laid out under the workspace root as
	"$root/<repository uri>/head": only the head revision is ever
	checked out, and it's updated in place as the bare repository moves.
	The directory is the state; there is no other record of a workspace
	except the in-memory RevisionMap, which is rebuilt as workspaces
	are opened again after a restart.
*/
package workspace

import (
	"context"
	"os"

	. "github.com/warpfork/go-errcat"
	srcd_git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"github.com/polydawn/lspws/api"
	"github.com/polydawn/lspws/api/lspws"
	"github.com/polydawn/lspws/bare"
	"github.com/polydawn/lspws/fs"
	"github.com/polydawn/lspws/log"
)

var (
	_ lspws.OpenWorkspaceFunc = (*Handler)(nil).OpenWorkspace
)

type Handler struct {
	repoRoot      fs.AbsolutePath
	workspaceRoot fs.AbsolutePath
	mon           lspws.Monitor
	revisions     *RevisionMap
	locks         *keyedLocks
}

/*
	Create a handler which opens bare repositories under repoRoot
	and checks out workspaces under workspaceRoot.
	The monitor may be the zero value to discard log events.
*/
func NewHandler(repoRoot, workspaceRoot fs.AbsolutePath, mon lspws.Monitor) *Handler {
	return &Handler{
		repoRoot:      repoRoot,
		workspaceRoot: workspaceRoot,
		mon:           mon,
		revisions:     NewRevisionMap(),
		locks:         newKeyedLocks(),
	}
}

func (h *Handler) WorkspaceRoot() fs.AbsolutePath {
	return h.workspaceRoot
}

func (h *Handler) Revisions() *RevisionMap {
	return h.revisions
}

/*
	Relative path of the workspace for a repository, under the workspace root.
	This is also its key in the RevisionMap.
*/
func WorkspaceKey(repository api.RepositoryURI) fs.RelPath {
	return fs.MustRelPath(string(repository)).Join(fs.MustRelPath(string(api.RevisionHead)))
}

/*
	Open the workspace for a repository, updating it from the bare repository if need be.

	Only head is supported: any other revision must resolve to the same
	commit the bare repository's HEAD does, or the request is refused.
	On success the workspace's HEAD is the resolved commit, and the
	RevisionMap records its short hash.

	Opens of the same repository are serialized, both within this process
	and (by a lock file next to the workspace) against other processes.

	May return errors of category:

	  - `lspws.ErrBadRequest` -- for invalid uris, or revisions other than head
	  - `lspws.ErrRepoNotFound` -- if there's no bare repository for the uri
	  - `lspws.ErrRevisionNotFound` -- if the revision doesn't resolve
	  - `lspws.ErrInternal` -- if cloning, fetching, or the checkout fails
	  - `lspws.ErrLocalCacheProblem` -- if the workspace area is unusable
	  - `lspws.ErrCancelled` -- if the context is done first
*/
func (h *Handler) OpenWorkspace(ctx context.Context, repository api.RepositoryURI, revision api.Revision) (_ api.Workspace, err error) {
	defer RequireErrorHasCategory(&err, lspws.ErrorCategory(""))

	if ctx.Err() != nil {
		return api.Workspace{}, Errorf(lspws.ErrCancelled, "cancelled")
	}
	// Refuse bad requests before touching the workspace area at all.
	if _, _, err := h.resolveTarget(repository, revision); err != nil {
		return api.Workspace{}, err
	}

	key := WorkspaceKey(repository)
	release, err := h.locks.acquire(ctx, key.Unprefixed())
	if err != nil {
		return api.Workspace{}, err
	}
	defer release()
	unlock, err := lockFile(ctx, h.workspaceRoot.Join(key.Dir()), key.Last()+".lock")
	if err != nil {
		return api.Workspace{}, err
	}
	defer unlock()

	// HEAD may have moved while we waited for the locks.
	bareRepo, target, err := h.resolveTarget(repository, revision)
	if err != nil {
		return api.Workspace{}, err
	}

	dir := h.workspaceRoot.Join(key)
	workspaceRepo, err := h.openExisting(dir)
	if err != nil {
		return api.Workspace{}, err
	}
	if workspaceRepo != nil {
		if err := h.updateWorkspace(ctx, repository, workspaceRepo, dir, target); err != nil {
			return api.Workspace{}, err
		}
	} else {
		workspaceRepo, err = h.cloneWorkspace(ctx, bareRepo, dir)
		if err != nil {
			return api.Workspace{}, err
		}
	}

	headHash, err := headOf(workspaceRepo, dir)
	if err != nil {
		return api.Workspace{}, err
	}
	ws := api.Workspace{
		Repository: repository,
		Path:       dir.String(),
		Revision:   bare.ShortHash(target),
		Commit:     target.String(),
	}
	if headHash != target {
		if err := h.checkout(workspaceRepo, dir, target); err != nil {
			return api.Workspace{}, err
		}
	} else {
		log.WorkspaceCurrent(h.mon, ws)
	}
	h.revisions.Set(key.Unprefixed(), ws.Revision)
	return ws, nil
}

/*
	Open the bare repository and resolve the revision to the commit to check out.
	Revisions other than head must name the same commit head does.
*/
func (h *Handler) resolveTarget(repository api.RepositoryURI, revision api.Revision) (*bare.Repository, plumbing.Hash, error) {
	bareRepo, err := bare.Open(h.repoRoot, repository)
	if err != nil {
		return nil, plumbing.ZeroHash, err
	}
	targetCommit, err := bareRepo.ResolveCommit(revision)
	if err != nil {
		return nil, plumbing.ZeroHash, err
	}
	target := targetCommit.Hash
	if !revision.IsHead() {
		// We only support HEAD now.
		head, err := bareRepo.Head()
		if err != nil {
			return nil, plumbing.ZeroHash, err
		}
		if head != target {
			return nil, plumbing.ZeroHash, ErrorDetailed(lspws.ErrBadRequest, "revision must be HEAD.", map[string]string{
				"repository": string(repository),
				"revision":   string(revision),
			})
		}
	}
	return bareRepo, target, nil
}

/*
	Open the workspace at dir, if there is one.
	Returns nil and no error if there's nothing there.

	A directory that isn't a usable repository (as left by a clone that
	was killed midway) is removed, and treated as if it weren't there.
*/
func (h *Handler) openExisting(dir fs.AbsolutePath) (*srcd_git.Repository, error) {
	_, err := os.Stat(dir.String())
	switch {
	case os.IsNotExist(err):
		return nil, nil
	case err != nil:
		return nil, Errorf(lspws.ErrLocalCacheProblem, "cannot stat workspace %s: %s", dir, err)
	}
	workspaceRepo, err := srcd_git.PlainOpen(dir.String())
	if err == nil {
		_, err = headOf(workspaceRepo, dir)
	}
	if err == nil {
		return workspaceRepo, nil
	}
	log.WorkspaceDiscarded(h.mon, dir.String(), err)
	if err := os.RemoveAll(dir.String()); err != nil {
		return nil, Errorf(lspws.ErrLocalCacheProblem, "cannot remove broken workspace %s: %s", dir, err)
	}
	return nil, nil
}

func headOf(repo *srcd_git.Repository, dir fs.AbsolutePath) (plumbing.Hash, error) {
	ref, err := repo.Head()
	if err != nil {
		return plumbing.ZeroHash, Errorf(lspws.ErrLocalCacheProblem, "cannot read HEAD of workspace %s: %s", dir, err)
	}
	return ref.Hash(), nil
}

/*
	Fetch from origin if the workspace's HEAD isn't the target.
	Fetching doesn't move HEAD; the caller still has to check out the target.
*/
func (h *Handler) updateWorkspace(ctx context.Context, repository api.RepositoryURI, workspaceRepo *srcd_git.Repository, dir fs.AbsolutePath, target plumbing.Hash) error {
	workspaceHead, err := headOf(workspaceRepo, dir)
	if err != nil {
		return err
	}
	if workspaceHead == target {
		return nil
	}
	log.WorkspaceFetched(h.mon, repository, dir.String())
	err = workspaceRepo.FetchContext(ctx, &srcd_git.FetchOptions{
		RemoteName: "origin",
	})
	switch {
	case err == nil, err == srcd_git.NoErrAlreadyUpToDate:
		return nil
	case ctx.Err() != nil:
		return Errorf(lspws.ErrCancelled, "cancelled: %s", err)
	default:
		return Errorf(lspws.ErrInternal, "fetch workspace %s from origin failed: %s", dir, err)
	}
}

/*
	Clone the bare repository into a new workspace.
	A failed clone is removed again, so the next attempt starts clean.
*/
func (h *Handler) cloneWorkspace(ctx context.Context, bareRepo *bare.Repository, dir fs.AbsolutePath) (*srcd_git.Repository, error) {
	if err := os.MkdirAll(dir.Dir().String(), 0755); err != nil {
		return nil, Errorf(lspws.ErrLocalCacheProblem, "cannot create workspace parent dir: %s", err)
	}
	log.WorkspaceCloned(h.mon, bareRepo.URI(), dir.String(), bareRepo.Path().String())
	workspaceRepo, err := srcd_git.PlainCloneContext(ctx, dir.String(), false, &srcd_git.CloneOptions{
		URL:        bareRepo.Path().String(),
		RemoteName: "origin",
		// Language servers don't look into submodules of a workspace.
		RecurseSubmodules: srcd_git.NoRecurseSubmodules,
	})
	if err != nil {
		os.RemoveAll(dir.String())
		if ctx.Err() != nil {
			return nil, Errorf(lspws.ErrCancelled, "cancelled: %s", err)
		}
		return nil, Errorf(lspws.ErrInternal, "unable to clone workspace %s: %s", dir, err)
	}
	return workspaceRepo, nil
}

/*
	Hard reset the workspace to the target commit, and check it took.
*/
func (h *Handler) checkout(workspaceRepo *srcd_git.Repository, dir fs.AbsolutePath, target plumbing.Hash) error {
	if _, err := workspaceRepo.CommitObject(target); err != nil {
		return Errorf(lspws.ErrInternal, "checkout workspace to commit %s failed: commit not in workspace: %s", target, err)
	}
	wt, err := workspaceRepo.Worktree()
	if err != nil {
		return Errorf(lspws.ErrLocalCacheProblem, "workspace %s has no worktree: %s", dir, err)
	}
	log.WorkspaceReset(h.mon, dir.String(), target.String())
	if err := wt.Reset(&srcd_git.ResetOptions{
		Commit: target,
		Mode:   srcd_git.HardReset,
	}); err != nil {
		return Errorf(lspws.ErrInternal, "checkout workspace to commit %s failed: %s", target, err)
	}
	headHash, err := headOf(workspaceRepo, dir)
	if err != nil {
		return err
	}
	if headHash != target {
		return Errorf(lspws.ErrInternal, "checkout workspace to commit %s failed: HEAD is %s", target, headHash)
	}
	return nil
}
