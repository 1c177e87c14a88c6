/*
	Package proxy sits between a language client and a language server,
	translating git:// documents into workspace files on the way in and
	workspace locations back into git:// uris on the way out.
*/
package proxy

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	. "github.com/warpfork/go-errcat"
	"golang.org/x/sync/errgroup"

	"github.com/polydawn/lspws/api/lspws"
	"github.com/polydawn/lspws/log"
	"github.com/polydawn/lspws/lsp"
	"github.com/polydawn/lspws/translate"
)

/*
	Proxy pumps messages in both directions until either side hangs up.

	Client requests are translated and forwarded one at a time, in order.
	A request that can't be translated is answered with an error right away
	and never reaches the server.  Responses to forwarded requests are
	translated back; everything else passes through verbatim.

	If Client or Server are also io.Closers, they're closed when the
	conversation ends, so the other direction stops too.
*/
type Proxy struct {
	Translator *translate.Translator
	Client     io.ReadWriter
	Server     io.ReadWriter
	Monitor    lspws.Monitor

	mu      sync.Mutex
	pending map[string]*translate.Request
}

/*
	Serve until the client or the server closes its stream, or ctx is done.

	May return errors of category:

	  - `lspws.ErrRPCBreakdown` -- if either stream broke mid-message
	  - `lspws.ErrCancelled` -- if ctx was done first
*/
func (p *Proxy) Serve(ctx context.Context) error {
	p.pending = make(map[string]*translate.Request)
	var (
		clientR = lsp.NewReader(p.Client)
		clientW = lsp.NewWriter(p.Client)
		serverR = lsp.NewReader(p.Server)
		serverW = lsp.NewWriter(p.Server)
	)

	var closing atomic.Bool
	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			closing.Store(true)
			closeIfCloser(p.Server)
			closeIfCloser(p.Client)
		})
	}
	ended := func(err error) error {
		if err == io.EOF || closing.Load() {
			return nil
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer shutdown()
		for {
			msg, err := clientR.Read()
			if err != nil {
				return ended(err)
			}
			if err := p.fromClient(gctx, msg, clientW, serverW); err != nil {
				return ended(err)
			}
		}
	})
	g.Go(func() error {
		defer shutdown()
		for {
			msg, err := serverR.Read()
			if err != nil {
				return ended(err)
			}
			if err := p.fromServer(msg, clientW); err != nil {
				return ended(err)
			}
		}
	})

	stop := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
			shutdown()
		case <-stop:
		}
	}()
	err := g.Wait()
	close(stop)
	if err == nil && ctx.Err() != nil {
		return Errorf(lspws.ErrCancelled, "cancelled")
	}
	return err
}

func (p *Proxy) fromClient(ctx context.Context, msg *lsp.Message, clientW, serverW *lsp.Writer) error {
	if !msg.IsRequest() {
		return serverW.Write(msg)
	}
	req := &translate.Request{
		Method: msg.Method,
		Params: msg.Params,
	}
	if err := p.Translator.HandleRequest(ctx, req); err != nil {
		log.RequestFailed(p.Monitor, msg.Method, err)
		return clientW.Write(lsp.ErrorResponse(msg, lsp.ErrorFromCategory(err)))
	}
	msg.Params = req.Params
	p.mu.Lock()
	p.pending[msg.IDKey()] = req
	p.mu.Unlock()
	return serverW.Write(msg)
}

func (p *Proxy) fromServer(msg *lsp.Message, clientW *lsp.Writer) error {
	if !msg.IsResponse() {
		return clientW.Write(msg)
	}
	p.mu.Lock()
	req, ok := p.pending[msg.IDKey()]
	delete(p.pending, msg.IDKey())
	p.mu.Unlock()
	if !ok {
		// Not something we forwarded; pass it on.
		return clientW.Write(msg)
	}
	resp, err := p.Translator.HandleResponse(req, msg)
	if err != nil {
		log.RequestFailed(p.Monitor, req.Method, err)
		return clientW.Write(lsp.ErrorResponse(msg, lsp.ErrorFromCategory(err)))
	}
	return clientW.Write(resp)
}

func closeIfCloser(x interface{}) {
	if c, ok := x.(io.Closer); ok {
		c.Close()
	}
}
