package api

/*
	This file is all serializable types used in lspws
	to address repositories, revisions, and the files inside them.
*/

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/polydawn/refmt/obj/atlas"
)

/*
	RepositoryURI names a bare repository, in "domain/owner/name" form,
	for example "github.com/polydawn/rio".

	The same string is used as the relative path of the bare repository
	under the repository root, and of its workspaces under the workspace root,
	so it must be a clean relative path.  Exactly three segments: workspace
	paths are split back into repository and revision by position.
*/
type RepositoryURI string

func ParseRepositoryURI(x string) (RepositoryURI, error) {
	x = strings.Trim(x, "/")
	ss := strings.Split(x, "/")
	if len(ss) != 3 {
		return "", fmt.Errorf("repository uris must have exactly three segments (they are of form \"<domain>/<owner>/<name>\"): %q", x)
	}
	for _, s := range ss {
		switch s {
		case "", ".", "..":
			return "", fmt.Errorf("repository uri %q contains an empty or relative segment", x)
		}
	}
	return RepositoryURI(x), nil
}

/*
	Revision is either the literal token "head" or a commit identifier.

	The head token is matched case-insensitively and always normalized to
	lower case; other revisions are kept as given, since branch and tag
	names are case sensitive.
*/
type Revision string

const RevisionHead = Revision("head")

func NormalizeRevision(x string) Revision {
	x = strings.TrimSpace(x)
	if x == "" || strings.EqualFold(x, string(RevisionHead)) {
		return RevisionHead
	}
	return Revision(x)
}

func (r Revision) IsHead() bool {
	return r == "" || strings.EqualFold(string(r), string(RevisionHead))
}

const GitScheme = "git"

/*
	GitURI is the virtual addressing scheme for a file inside a repository
	at a revision:

		git://{domain}/{owner}/{repo}?{revision}#{path}

	The query is the bare revision (not key=value), and the fragment is the
	path of the file relative to the repository root.
	A missing revision means head; a missing path means the repository root.
*/
type GitURI struct {
	Repository RepositoryURI
	Revision   Revision
	File       string
}

func IsGitURI(x string) bool {
	return strings.HasPrefix(x, GitScheme+"://")
}

func ParseGitURI(x string) (GitURI, error) {
	if !IsGitURI(x) {
		return GitURI{}, fmt.Errorf("git uris must start with %q", GitScheme+"://")
	}
	u, err := url.Parse(x)
	if err != nil {
		return GitURI{}, fmt.Errorf("malformed git uri: %s", err)
	}
	repo, err := ParseRepositoryURI(u.Host + u.Path)
	if err != nil {
		return GitURI{}, err
	}
	return GitURI{
		Repository: repo,
		Revision:   NormalizeRevision(strings.ToLower(u.RawQuery)),
		File:       strings.TrimPrefix(u.Fragment, "/"),
	}, nil
}

func (x GitURI) String() string {
	s := GitScheme + "://" + string(x.Repository)
	if x.Revision != "" {
		s += "?" + string(x.Revision)
	}
	if x.File != "" {
		s += "#" + x.File
	}
	return s
}

var GitURI_AtlasEntry = atlas.BuildEntry(GitURI{}).Transform().
	TransformMarshal(atlas.MakeMarshalTransformFunc(
		func(x GitURI) (string, error) {
			return x.String(), nil
		})).
	TransformUnmarshal(atlas.MakeUnmarshalTransformFunc(
		func(x string) (GitURI, error) {
			return ParseGitURI(x)
		})).
	Complete()

/*
	Workspace describes a working tree checked out from a bare repository.

	Path is absolute.  Revision is the short hash of the commit checked out,
	which is also what responses carry in their git uris; Commit is the full hash.
*/
type Workspace struct {
	Repository RepositoryURI `refmt:"repository"`
	Path       string        `refmt:"path"`
	Revision   string        `refmt:"revision"`
	Commit     string        `refmt:"commit"`
}
