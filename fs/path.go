package fs

import (
	"fmt"
	"path"
	"strings"
)

// Meta: yep, these *are not* interchangeable.
// Roots (the repository root, the workspace root) are AbsolutePath;
//  anything keyed by repository uri underneath them is a RelPath
//  until the very moment we hand it to the OS or put it in a file uri.

type RelPath struct {
	path      string
	lastSplit int
}

func MustRelPath(p string) RelPath {
	p2, err := ParseRelPath(p)
	if err != nil {
		panic(err)
	}
	return p2
}

/*
	Parse a relative path, cleaning it.

	Paths which would escape upwards ("..", "../x", "a/../..") are rejected,
	since every RelPath we deal in is meant to stay under some root.
*/
func ParseRelPath(p string) (RelPath, error) {
	p = path.Clean(p)
	if p[0] == '/' {
		return RelPath{}, fmt.Errorf("path %q is absolute, expected relative", p)
	}
	if p == ".." || strings.HasPrefix(p, "../") {
		return RelPath{}, fmt.Errorf("path %q escapes upwards", p)
	}
	if p == "." { // We can't stop people from using the zero value, so, use it.
		return RelPath{}, nil
	}
	return RelPath{p, strings.LastIndexByte(p, '/')}, nil
}

func (p RelPath) String() string {
	if p.path == "" {
		return "."
	}
	return "./" + p.path
}

/*
	The path without the leading "./"; blank for the zero value.
	This is the form used in map keys and uris.
*/
func (p RelPath) Unprefixed() string {
	return p.path
}

func (p RelPath) Dir() RelPath {
	if p.path == "" {
		return p
	} else if p.lastSplit == -1 {
		return RelPath{}
	} else {
		p2 := p.path[0:p.lastSplit]
		return RelPath{p2, strings.LastIndexByte(p2, '/')}
	}
}

func (p RelPath) Last() string {
	if p.path == "" {
		return "."
	} else if p.lastSplit == -1 {
		return p.path
	} else {
		return p.path[p.lastSplit+1:]
	}
}

func (p RelPath) Join(p2 RelPath) RelPath {
	switch {
	case p2.path == "":
		return p
	case p.path == "":
		return p2
	default:
		return RelPath{p.path + "/" + p2.path, len(p.path) + p2.lastSplit + 1}
	}
}

func (p RelPath) Segments() []string {
	if p.path == "" {
		return nil
	}
	return strings.Split(p.path, "/")
}

/*
	Cut the path after its first n segments.

	Returns false if the path has fewer than n segments;
	the rest may be the zero value if there are exactly n.
*/
func (p RelPath) Cut(n int) (head RelPath, rest RelPath, ok bool) {
	if n <= 0 {
		return RelPath{}, p, true
	}
	idx := -1
	for i := 0; i < n; i++ {
		next := strings.IndexByte(p.path[idx+1:], '/')
		if next == -1 {
			if i == n-1 && p.path != "" {
				return p, RelPath{}, true
			}
			return RelPath{}, RelPath{}, false
		}
		idx += next + 1
	}
	h := p.path[:idx]
	r := p.path[idx+1:]
	return RelPath{h, strings.LastIndexByte(h, '/')}, RelPath{r, strings.LastIndexByte(r, '/')}, true
}

type AbsolutePath struct {
	path      string
	lastSplit int
}

func MustAbsolutePath(p string) AbsolutePath {
	p = path.Clean(p)
	if p[0] != '/' {
		panic(fmt.Errorf("path %q is relative, expected absolute", p))
	}
	if p == "/" { // We can't stop people from using the zero value, so, use it.
		return AbsolutePath{}
	}
	return AbsolutePath{p, strings.LastIndexByte(p, '/')}
}

func (p AbsolutePath) String() string {
	if p.path == "" {
		return "/"
	}
	return p.path
}

func (p AbsolutePath) Dir() AbsolutePath {
	if p.path == "" {
		return p
	} else if p.lastSplit == 0 {
		return AbsolutePath{}
	} else {
		p2 := p.path[0:p.lastSplit]
		return AbsolutePath{p2, strings.LastIndexByte(p2, '/')}
	}
}

func (p AbsolutePath) Last() string {
	if p.path == "" {
		return "/"
	} else {
		return p.path[p.lastSplit+1:]
	}
}

func (p AbsolutePath) Join(p2 RelPath) AbsolutePath {
	switch {
	case p2.path == "":
		return p
	default:
		return AbsolutePath{p.path + "/" + p2.path, len(p.path) + p2.lastSplit + 1}
	}
}

/*
	Return the path of target relative to p,
	or false if target is not p or underneath it.

	Purely lexical: symlinks are not consulted.
*/
func (p AbsolutePath) Rel(target AbsolutePath) (RelPath, bool) {
	switch {
	case target.path == p.path:
		return RelPath{}, true
	case p.path == "":
		r := target.path[1:]
		return RelPath{r, strings.LastIndexByte(r, '/')}, true
	case strings.HasPrefix(target.path, p.path+"/"):
		r := target.path[len(p.path)+1:]
		return RelPath{r, strings.LastIndexByte(r, '/')}, true
	default:
		return RelPath{}, false
	}
}
