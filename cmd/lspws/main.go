package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/json"
	. "github.com/warpfork/go-errcat"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/polydawn/lspws/api"
	"github.com/polydawn/lspws/api/lspws"
	"github.com/polydawn/lspws/config"
	"github.com/polydawn/lspws/proxy"
	"github.com/polydawn/lspws/translate"
	"github.com/polydawn/lspws/workspace"
)

/*
	Output serialization formats
*/
const (
	FmtJson = "json"
	FmtDumb = "dumb"
)

type baseCLI struct {
	Config     string        // Config file path
	Format     string        // Output api format, eg. json
	Repos      string        // Bare repository root, overriding config
	Workspaces string        // Workspace root, overriding config
	Timeout    time.Duration // Timeout duration eg. "60s"
	OpenCLI    struct {
		Repository string // Repository uri "<domain>/<owner>/<name>"
		Revision   string // Revision; head, or the commit head points to
	}
	ResolveCLI struct {
		URI string // git:// uri
	}
	ServeCLI struct {
		Server string // Language server command line, shell quoted
	}
}

/*
	Blocks until a sigint is received or the context is done, then calls cancel.
*/
func CancelOnInterrupt(ctx context.Context, cancel context.CancelFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	defer signal.Stop(signalChan)
	select {
	case <-signalChan:
		cancel()
	case <-ctx.Done():
	}
}

func main() {
	ctx := context.Background()
	exitCode := Main(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	os.Exit(int(exitCode))
}

func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) lspws.ExitCode {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go CancelOnInterrupt(ctx, cancel)

	cli := baseCLI{}

	app := kingpin.New("lspws", "Git workspaces for language servers")
	app.HelpFlag.Short('h')

	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	app.Flag("config", "Config file (JSON, comments allowed)").
		StringVar(&cli.Config)
	app.Flag("repos", "Root of the bare repositories").
		StringVar(&cli.Repos)
	app.Flag("workspaces", "Root of the workspaces").
		StringVar(&cli.Workspaces)
	app.Flag("timeout", "Timeout for command").
		DurationVar(&cli.Timeout)
	app.Flag("format", "Output api format").
		Default(FmtDumb).
		EnumVar(&cli.Format, FmtJson, FmtDumb)

	appOpen := app.Command("open", "check out (or update) the workspace of a repository")
	appOpen.Arg("repository", "Repository uri").
		Required().
		StringVar(&cli.OpenCLI.Repository)
	appOpen.Flag("revision", "Revision to check out; only head is supported").
		Default(string(api.RevisionHead)).
		StringVar(&cli.OpenCLI.Revision)

	appResolve := app.Command("resolve", "check out the workspace a git uri points into, and print the file uri")
	appResolve.Arg("uri", "git:// uri").
		Required().
		StringVar(&cli.ResolveCLI.URI)

	appServe := app.Command("serve", "proxy a language server over stdio")
	appServe.Flag("server", "Language server command line").
		StringVar(&cli.ServeCLI.Server)

	var termErr error
	app.Terminate(func(status int) {
		termErr = fmt.Errorf("parsing error: %d\n", status)
	})
	cmd, err := app.Parse(args[1:])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return lspws.ExitUsage
	}
	if termErr != nil {
		fmt.Fprintln(stderr, termErr)
		return lspws.ExitUsage
	}

	if cli.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, cli.Timeout)
		defer cancelTimeout()
	}
	mon, wait := startMonitor(cli.Format, stderr)

	var result lspws.Event_Result
	switch cmd {
	case appOpen.FullCommand():
		err = executeOpen(ctx, cli, mon, &result)
		close(mon.Chan)
		wait()
		SerializeResult(cli.Format, result, err, stdout, stderr)
	case appResolve.FullCommand():
		err = executeResolve(ctx, cli, mon, &result)
		close(mon.Chan)
		wait()
		SerializeResult(cli.Format, result, err, stdout, stderr)
	case appServe.FullCommand():
		// Stdout belongs to the protocol; only errors get reported, on stderr.
		err = executeServe(ctx, cli, mon, stdin, stdout, stderr)
		close(mon.Chan)
		wait()
		if err != nil {
			fmt.Fprintln(stderr, err)
		}
	}
	if err != nil {
		return lspws.ExitCodeForCategory(Category(err))
	}
	return lspws.ExitSuccess
}

/*
	Start draining a monitor to stderr.
	Close the monitor's channel and call wait when done, to flush it.
*/
func startMonitor(format string, stderr io.Writer) (lspws.Monitor, func()) {
	ch := make(chan lspws.Event)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		marshaller := refmt.NewMarshallerAtlased(json.EncodeOptions{}, stderr, lspws.Atlas)
		for ev := range ch {
			switch format {
			case FmtJson:
				if err := marshaller.Marshal(&ev); err != nil {
					panic(err)
				}
				fmt.Fprintln(stderr)
			default:
				if ev.Log != nil {
					fmt.Fprintf(stderr, "%s: %s\n", ev.Log.Level, ev.Log.Msg)
				}
			}
		}
	}()
	return lspws.Monitor{Chan: ch}, wg.Wait
}

func SerializeResult(format string, result lspws.Event_Result, resultErr error, stdout io.Writer, stderr io.Writer) {
	result.SetError(resultErr)
	ev := lspws.Event{Result: &result}
	switch format {
	case FmtJson:
		marshaller := refmt.NewMarshallerAtlased(json.EncodeOptions{}, stdout, lspws.Atlas)
		err := marshaller.Marshal(&ev)
		if err != nil {
			panic(err)
		}
		fmt.Fprintln(stdout)
	case FmtDumb:
		switch {
		case resultErr != nil:
			fmt.Fprintln(stderr, resultErr)
		case result.URI != "":
			fmt.Fprintln(stdout, result.URI)
		case result.Workspace != nil:
			fmt.Fprintf(stdout, "%s %s\n", result.Workspace.Path, result.Workspace.Revision)
		}
	default:
		panic(fmt.Errorf("lspws: invalid format %s", format))
	}
}

func loadConfig(cli baseCLI) (config.Config, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return cfg, err
	}
	cfg.Overlay(config.Config{
		Repos:      cli.Repos,
		Workspaces: cli.Workspaces,
		Server:     cli.ServeCLI.Server,
	})
	return cfg, nil
}

func newHandler(cli baseCLI, mon lspws.Monitor) (*workspace.Handler, config.Config, error) {
	cfg, err := loadConfig(cli)
	if err != nil {
		return nil, cfg, err
	}
	repos, workspaces, err := cfg.Roots()
	if err != nil {
		return nil, cfg, err
	}
	return workspace.NewHandler(repos, workspaces, mon), cfg, nil
}

func executeOpen(ctx context.Context, cli baseCLI, mon lspws.Monitor, result *lspws.Event_Result) error {
	repository, err := api.ParseRepositoryURI(cli.OpenCLI.Repository)
	if err != nil {
		return Errorf(lspws.ErrUsage, "%s", err)
	}
	handler, _, err := newHandler(cli, mon)
	if err != nil {
		return err
	}
	ws, err := handler.OpenWorkspace(ctx, repository, api.NormalizeRevision(cli.OpenCLI.Revision))
	if err != nil {
		return err
	}
	result.Workspace = &ws
	return nil
}

func executeResolve(ctx context.Context, cli baseCLI, mon lspws.Monitor, result *lspws.Event_Result) error {
	handler, _, err := newHandler(cli, mon)
	if err != nil {
		return err
	}
	resolved, err := translate.NewTranslator(handler, mon).ResolveURI(ctx, cli.ResolveCLI.URI)
	if err != nil {
		return err
	}
	result.Workspace = &resolved.Workspace
	result.Source = &resolved.Source
	result.URI = resolved.FileURI
	return nil
}

// The client side of a stdio proxy.
type stdio struct {
	io.Reader
	io.Writer
}

func (s stdio) Close() error {
	if c, ok := s.Reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func executeServe(ctx context.Context, cli baseCLI, mon lspws.Monitor, stdin io.Reader, stdout, stderr io.Writer) error {
	handler, cfg, err := newHandler(cli, mon)
	if err != nil {
		return err
	}
	srv, err := proxy.StartServer(ctx, cfg.Server, stderr)
	if err != nil {
		return err
	}
	p := &proxy.Proxy{
		Translator: translate.NewTranslator(handler, mon),
		Client:     stdio{stdin, stdout},
		Server:     srv,
		Monitor:    mon,
	}
	err = p.Serve(ctx)
	srv.Close()
	if waitErr := srv.Wait(); err == nil && waitErr != nil && ctx.Err() == nil {
		err = waitErr
	}
	return err
}
