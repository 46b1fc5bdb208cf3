package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/derpies/inliner/internal/config"
)

const appName = "inliner"

type envKey struct{}

// env keeps everything commands need in a single place.
type env struct {
	Cfg   *config.Config
	Log   *zap.Logger
	start time.Time
}

func envFromContext(ctx context.Context) *env {
	if e, ok := ctx.Value(envKey{}).(*env); ok {
		return e
	}
	panic("inliner: command context carries no env")
}

// initializeAppContext prepares configuration and logging after command line
// has been parsed
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error

	e := envFromContext(ctx)

	configFile := cmd.String("config")
	if e.Cfg, err = config.LoadConfiguration(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.Bool("debug") {
		e.Cfg.Logging.ConsoleLogger.Level = "debug"
	}
	if e.Log, err = e.Cfg.Logging.Prepare(); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}

	e.Log.Debug("Program started", zap.Strings("args", os.Args), zap.String("runtime", runtime.Version()))
	if len(configFile) == 0 {
		e.Log.Debug("Using defaults (no configuration file)")
	}
	return ctx, nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	if e.Log != nil {
		e.Log.Debug("Program ended", zap.Duration("elapsed", time.Since(e.start)), zap.Strings("parsed args", cmd.Args().Slice()))
		_ = e.Log.Sync()
	}
	return nil
}

// exitErrHandler logs command failures. Failures before the log exists are
// reported by main.
func exitErrHandler(ctx context.Context, cmd *cli.Command, err error) {
	if e := envFromContext(ctx); e.Log != nil {
		e.Log.Error("Command failed", zap.String("command", cmd.Name), zap.Error(err))
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func main() {
	e := &env{start: time.Now()}
	ctx, stop := signal.NotifyContext(context.WithValue(context.Background(), envKey{}, e), os.Interrupt, syscall.SIGTERM)

	err := newApp().Run(ctx, os.Args)
	stop()
	if err != nil {
		if e.Log == nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		}
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:            appName,
		Usage:           "moves CSS from <style> and <link> elements into inline style attributes",
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, DefaultText: "", Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "log debug details to console"},
		},
		Commands: []*cli.Command{
			{
				Name:         "inline",
				Usage:        "Inlines CSS of HTML document(s)",
				OnUsageError: usageErrorHandler,
				Action:       runInline,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "css", Usage: "apply stylesheet `FILE` after the document's own CSS (repeatable)"},
					&cli.BoolFlag{Name: "preserve-media", Usage: "keep @media, @import and @font-face rules in <style> elements"},
					&cli.BoolFlag{Name: "preserve-unknown", Usage: "with --preserve-media also keep unknown at-rules"},
					&cli.BoolFlag{Name: "conditional-comments", Usage: "restore markup inside <!--[if ...]> conditional comments"},
					&cli.BoolFlag{Name: "ignore-unsupported", Usage: "skip selectors that cannot be evaluated instead of failing"},
					&cli.BoolFlag{Name: "stats", Usage: "report processing statistics"},
				},
				ArgsUsage: "[SOURCE [DESTINATION]]",
				CustomHelpTemplate: cli.CommandHelpTemplate + `
SOURCE is an HTML file, an http(s) URL or a directory. Standard input is read
when it is omitted. Directories are walked recursively and every .html or .htm
file is inlined into the same relative path under DESTINATION.

DESTINATION is the output file, or the output directory for a directory
SOURCE. Standard output is used when it is omitted.

Command line flags take precedence over the configuration file.
`,
			},
			{
				Name:  "dumpconfig",
				Usage: "Dumps either default or actual configuration (YAML)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
				},
				OnUsageError: usageErrorHandler,
				Action:       outputConfiguration,
				ArgsUsage:    "DESTINATION",
				CustomHelpTemplate: cli.CommandHelpTemplate + `
Writes the configuration in effect, the embedded defaults merged with the
--config file, as YAML to DESTINATION or standard output. With --default
only the embedded defaults are written.
`,
			},
		},
	}
}

func outputConfiguration(ctx context.Context, cmd *cli.Command) (err error) {
	e := envFromContext(ctx)
	if cmd.Args().Len() > 1 {
		e.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	fname := cmd.Args().Get(0)

	var (
		data  []byte
		state string
	)

	if cmd.Bool("default") {
		state = "default"
		data, err = config.Prepare()
	} else {
		state = "actual"
		data, err = config.Dump(e.Cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	out, closer, err := createOutput(fname)
	if err != nil {
		return err
	}
	defer closer(&err)

	if len(fname) == 0 {
		fname = "STDOUT"
	}
	e.Log.Debug("Writing configuration", zap.String("state", state), zap.String("file", fname))

	if _, err = out.Write(data); err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}
