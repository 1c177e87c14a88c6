/*
	Package translate rewrites language server traffic between the
	virtual git:// addressing clients use and the file:// paths of
	checked out workspaces which the language server can actually read.

	Requests carrying a git:// document uri get their workspace opened
	(cloned or updated as need be) and the uri replaced by a file:// uri.
	Locations in responses pointing into the workspace root get turned
	back into git:// uris, carrying the short hash of the commit checked
	out there.
*/
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lspws/api"
	"github.com/polydawn/lspws/api/lspws"
	"github.com/polydawn/lspws/fs"
	"github.com/polydawn/lspws/log"
	"github.com/polydawn/lspws/lsp"
	"github.com/polydawn/lspws/workspace"
)

const fileScheme = "file://"

// Methods whose params carry a textDocument we resolve.
const (
	MethodDefinition     = "textDocument/definition"
	MethodHover          = "textDocument/hover"
	MethodReferences     = "textDocument/references"
	MethodDocumentSymbol = "textDocument/documentSymbol"
	MethodFull           = "textDocument/full"
)

func handled(method string) bool {
	switch method {
	case MethodDefinition, MethodHover, MethodReferences, MethodDocumentSymbol, MethodFull:
		return true
	}
	return false
}

/*
	A request on its way to the language server.

	The Workspace fields are filled in by HandleRequest when the request's
	document was resolved; they stay blank for anything passed through.
*/
type Request struct {
	Method string
	Params json.RawMessage

	ResolvedFilePath  string // The file:// uri substituted into the params.
	WorkspacePath     string
	WorkspaceRevision string
}

// The outcome of resolving a git:// uri.
type Resolved struct {
	Source    api.GitURI
	FileURI   string
	Workspace api.Workspace
}

type Translator struct {
	workspaces *workspace.Handler
	mon        lspws.Monitor
}

func NewTranslator(workspaces *workspace.Handler, mon lspws.Monitor) *Translator {
	return &Translator{workspaces, mon}
}

/*
	Open the workspace a git:// uri points into,
	and return the file:// uri of the file it names.
	A uri without a file names the workspace root.

	May return errors of category:

	  - `lspws.ErrBadRequest` -- if the uri is malformed or tries to leave the workspace
	  - anything `workspace.Handler.OpenWorkspace` may return
*/
func (t *Translator) ResolveURI(ctx context.Context, uri string) (_ Resolved, err error) {
	defer RequireErrorHasCategory(&err, lspws.ErrorCategory(""))

	gitURI, err := api.ParseGitURI(uri)
	if err != nil {
		return Resolved{}, Errorf(lspws.ErrBadRequest, "invalid document uri %q: %s", uri, err)
	}
	ws, err := t.workspaces.OpenWorkspace(ctx, gitURI.Repository, gitURI.Revision)
	if err != nil {
		return Resolved{}, err
	}
	pth := ws.Path
	if gitURI.File != "" {
		pth, err = securejoin.SecureJoin(ws.Path, gitURI.File)
		if err != nil {
			return Resolved{}, Errorf(lspws.ErrBadRequest, "cannot resolve %q in workspace: %s", gitURI.File, err)
		}
	}
	resolved := Resolved{gitURI, fileScheme + pth, ws}
	log.URIResolved(t.mon, uri, resolved.FileURI)
	return resolved, nil
}

/*
	Resolve the request's document uri, if it's a method we handle and a git:// uri.
	On success the request's params are rewritten in place.
	Params we don't recognize the shape of are left alone.
*/
func (t *Translator) HandleRequest(ctx context.Context, req *Request) error {
	if !handled(req.Method) || len(req.Params) == 0 {
		return nil
	}
	params, ok := decode(req.Params).(map[string]interface{})
	if !ok {
		return nil
	}
	doc, ok := params["textDocument"].(map[string]interface{})
	if !ok {
		return nil
	}
	uri, ok := doc["uri"].(string)
	if !ok || !api.IsGitURI(uri) {
		return nil
	}
	resolved, err := t.ResolveURI(ctx, uri)
	if err != nil {
		return err
	}
	doc["uri"] = resolved.FileURI
	raw, err := encode(params)
	if err != nil {
		return err
	}
	req.Params = raw
	req.ResolvedFilePath = resolved.FileURI
	req.WorkspacePath = resolved.Workspace.Path
	req.WorkspaceRevision = resolved.Workspace.Revision
	return nil
}

/*
	Rewrite the locations in a response to the given request back into git:// uris.

	Error responses, null results, and methods that carry no locations come
	back untouched.  So does any response where nothing needed rewriting.
	Fields we don't know about are kept as they were.
*/
func (t *Translator) HandleResponse(req *Request, resp *lsp.Message) (*lsp.Message, error) {
	if resp.Error != nil || len(resp.Result) == 0 {
		return resp, nil
	}
	result := decode(resp.Result)
	if result == nil {
		return resp, nil
	}
	var changed bool
	switch req.Method {
	case MethodDefinition:
		// Either a single location, or a list of them.
		if list, ok := result.([]interface{}); ok {
			for _, loc := range list {
				changed = t.convertLocation(loc) || changed
			}
		} else {
			changed = t.convertLocation(result)
		}
	case MethodReferences:
		for _, loc := range asList(result) {
			changed = t.convertLocation(loc) || changed
		}
	case MethodDocumentSymbol:
		for _, sym := range asList(result) {
			changed = t.convertLocation(field(sym, "location")) || changed
		}
	case MethodFull:
		fulls, ok := result.([]interface{})
		if !ok {
			fulls = []interface{}{result}
		}
		for _, full := range fulls {
			for _, sym := range asList(field(full, "symbols")) {
				changed = t.convertLocation(field(field(sym, "symbolInformation"), "location")) || changed
			}
			for _, ref := range asList(field(full, "references")) {
				changed = t.convertLocation(field(ref, "location")) || changed
			}
		}
	default:
		return resp, nil
	}
	if !changed {
		return resp, nil
	}
	raw, err := encode(result)
	if err != nil {
		return nil, err
	}
	out := *resp
	out.Result = raw
	return &out, nil
}

func (t *Translator) convertLocation(loc interface{}) bool {
	m, ok := loc.(map[string]interface{})
	if !ok {
		return false
	}
	uri, ok := m["uri"].(string)
	if !ok {
		return false
	}
	converted := t.ConvertLocationURI(uri)
	if converted == uri {
		return false
	}
	m["uri"] = converted
	return true
}

/*
	Turn a file:// uri inside a workspace into the git:// uri for the same file.

	The path under the workspace root must be "<domain>/<owner>/<repo>/<rev dir>/<file>".
	The revision used is the one the RevisionMap recorded for that workspace,
	or failing that the name of the revision dir itself.
	Any other uri is returned unchanged.
*/
func (t *Translator) ConvertLocationURI(uri string) string {
	if !strings.HasPrefix(uri, fileScheme) {
		return uri
	}
	pth := strings.TrimPrefix(uri, fileScheme)
	if !strings.HasPrefix(pth, "/") {
		return uri
	}
	rel, ok := t.workspaces.WorkspaceRoot().Rel(fs.MustAbsolutePath(pth))
	if !ok {
		return uri
	}
	repo, rest, ok := rel.Cut(3)
	if !ok {
		return uri
	}
	revDir, file, ok := rest.Cut(1)
	if !ok || file.Unprefixed() == "" {
		return uri
	}
	key := repo.Join(revDir).Unprefixed()
	rev, ok := t.workspaces.Revisions().Get(key)
	if !ok {
		rev = revDir.Unprefixed()
	}
	return api.GitURI{
		Repository: api.RepositoryURI(repo.Unprefixed()),
		Revision:   api.Revision(rev),
		File:       file.Unprefixed(),
	}.String()
}

func decode(raw json.RawMessage) interface{} {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

func encode(v interface{}) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, Errorf(lspws.ErrInternal, "cannot encode rewritten message: %s", err)
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func field(v interface{}, name string) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	return m[name]
}

func asList(v interface{}) []interface{} {
	list, _ := v.([]interface{})
	return list
}
