/*
	The bare package opens the canonical, bare copy of a repository
	by repository uri and answers questions about its commits.

	Bare repositories are never written to by lspws.
	They're laid out under a single root directory, one per repository uri:
	"github.com/polydawn/rio" lives at "$root/github.com/polydawn/rio".

	Workspaces are cloned from the path of the bare repository;
	see transport.go for how that works without the host's git binaries.
*/
package bare

import (
	"encoding/hex"

	. "github.com/warpfork/go-errcat"
	srcd_osfs "gopkg.in/src-d/go-billy.v4/osfs"
	srcd_git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/cache"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
	"gopkg.in/src-d/go-git.v4/storage/filesystem"

	"github.com/polydawn/lspws/api"
	"github.com/polydawn/lspws/api/lspws"
	"github.com/polydawn/lspws/fs"
)

// Length of the abbreviated commit hashes used in git uris.
const ShortHashLen = 7

type Repository struct {
	uri  api.RepositoryURI
	path fs.AbsolutePath
	repo *srcd_git.Repository
}

/*
	Open the bare repository for the given uri under the repository root.

	May return errors of category:

	  - `lspws.ErrBadRequest` -- if the uri is not a clean relative path
	  - `lspws.ErrRepoNotFound` -- if there's no repository at that uri
	  - `lspws.ErrLocalCacheProblem` -- if the repository exists but can't be opened
*/
func Open(root fs.AbsolutePath, uri api.RepositoryURI) (*Repository, error) {
	if _, err := api.ParseRepositoryURI(string(uri)); err != nil {
		return nil, Errorf(lspws.ErrBadRequest, "invalid repository uri: %s", err)
	}
	rel, err := fs.ParseRelPath(string(uri))
	if err != nil {
		return nil, Errorf(lspws.ErrBadRequest, "invalid repository uri: %s", err)
	}
	pth := root.Join(rel)
	// Bare: the storage is the directory itself, and there's no worktree.
	store := filesystem.NewStorage(srcd_osfs.New(pth.String()), cache.NewObjectLRUDefault())
	repo, err := srcd_git.Open(store, nil)
	if err == srcd_git.ErrRepositoryNotExists {
		return nil, ErrorDetailed(lspws.ErrRepoNotFound, "repository does not exist", map[string]string{
			"repository": string(uri),
			"path":       pth.String(),
		})
	} else if err != nil {
		return nil, Errorf(lspws.ErrLocalCacheProblem, "unable to open repository %q: %s", uri, err)
	}
	return &Repository{uri, pth, repo}, nil
}

func (r *Repository) URI() api.RepositoryURI {
	return r.uri
}

/*
	Path of the repository on disk.  Usable as a clone url.
*/
func (r *Repository) Path() fs.AbsolutePath {
	return r.path
}

/*
	Returns the hash of the commit HEAD points to.
*/
func (r *Repository) Head() (plumbing.Hash, error) {
	ref, err := r.repo.Head()
	if err == plumbing.ErrReferenceNotFound {
		return plumbing.ZeroHash, Errorf(lspws.ErrRevisionNotFound, "repository %q has no HEAD commit", r.uri)
	} else if err != nil {
		return plumbing.ZeroHash, Errorf(lspws.ErrInternal, "failed to read HEAD of %q: %s", r.uri, err)
	}
	return ref.Hash(), nil
}

/*
	Resolve a revision to a commit.

	The head token means whatever HEAD points to;
	a full 40 character hash is looked up directly;
	anything else (branch and tag names) is left to git's revision parser.

	May return errors of category:

	  - `lspws.ErrRevisionNotFound` -- if the revision doesn't name a commit
	  - `lspws.ErrInternal` -- if the object store can't be read
*/
func (r *Repository) ResolveCommit(rev api.Revision) (*object.Commit, error) {
	var hash plumbing.Hash
	if rev.IsHead() {
		h, err := r.Head()
		if err != nil {
			return nil, err
		}
		hash = h
	} else if h, err := StringToHash(string(rev)); err == nil {
		hash = h
	} else {
		h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
		if err != nil {
			return nil, Errorf(lspws.ErrRevisionNotFound, "revision %q not found in %q: %s", rev, r.uri, err)
		}
		hash = *h
	}
	commit, err := r.repo.CommitObject(hash)
	if err == plumbing.ErrObjectNotFound {
		return nil, Errorf(lspws.ErrRevisionNotFound, "commit %s not found in %q", hash, r.uri)
	} else if err != nil {
		return nil, Errorf(lspws.ErrInternal, "failed to get commit %s: %s", hash, err)
	}
	return commit, nil
}

/*
	Abbreviate a hash to the form used in git uris.
*/
func ShortHash(h plumbing.Hash) string {
	return h.String()[:ShortHashLen]
}

/*
	Transform a commit ID string to a git hash.
	Performs some basic checks on inputs.
*/
func StringToHash(hash string) (plumbing.Hash, error) {
	if err := mustBeFullHash(hash); err != nil {
		return plumbing.Hash{}, err
	}
	return plumbing.NewHash(hash), nil
}

/*
	A git hash must be exactly 40 hex characters
*/
func mustBeFullHash(hash string) error {
	if len(hash) != 40 {
		return Errorf(lspws.ErrBadRequest, "git commit hashes are 40 characters")
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return Errorf(lspws.ErrBadRequest, "git commit hashes are hex strings")
	}
	return nil
}
