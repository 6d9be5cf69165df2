package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"tplc-go/packages/bootstrap"
	compiler "tplc-go/packages/compiler/src"
	"tplc-go/packages/compiler/src/config"
)

var errUsage = errors.New("usage")

func exitCode(err error) int {
	if err == errUsage {
		return 2
	}
	return 1
}

type options struct {
	input          string
	output         string
	project        string
	packageName    string
	charset        string
	contentType    string
	extensions     stringList
	verbose        bool
	failFast       bool
	workers        int
	lineDirectives bool
	sourceMaps     bool
	preserveSpace  bool
	interval       time.Duration
}

type stringList []string

func (l *stringList) String() string {
	return fmt.Sprint([]string(*l))
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func newFlagSet(name string, o *options) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&o.input, "in", "", "template input directory (default \".\")")
	fs.StringVar(&o.output, "out", "", "generated code output directory (default: the input directory)")
	fs.StringVar(&o.project, "config", "", "tplc.json project file")
	fs.StringVar(&o.packageName, "package", "", "package name of files generated at the output root")
	fs.StringVar(&o.charset, "charset", "", "template source charset (default utf-8)")
	fs.StringVar(&o.contentType, "content-type", "", "auto, raw or html")
	fs.Var(&o.extensions, "ext", "template file extension, repeatable (default .html and .txt)")
	fs.BoolVar(&o.verbose, "v", false, "log every file")
	fs.BoolVar(&o.failFast, "fail-fast", true, "stop at the first failing template")
	fs.IntVar(&o.workers, "workers", 0, "templates compiled concurrently (default: number of CPUs)")
	fs.BoolVar(&o.lineDirectives, "line-directives", false, "emit //line directives pointing at the templates")
	fs.BoolVar(&o.sourceMaps, "source-maps", false, "write a source map next to each generated file")
	fs.BoolVar(&o.preserveSpace, "preserve-whitespace", true, "keep template whitespace as written")
	return fs
}

// load parses args and builds the compiler. Explicit flags override the
// project file, which overrides the defaults.
func load(fs *flag.FlagSet, o *options, args []string) (*compiler.Compiler, error) {
	if err := fs.Parse(args); err != nil {
		// The flag set already reported the problem.
		return nil, errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %v\n", fs.Args())
		return nil, errUsage
	}

	var opts []config.CompilerConfigOption
	if o.project != "" {
		project, err := config.ParseProjectFile(o.project)
		if err != nil {
			return nil, err
		}
		projectOpts, err := project.Options()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", o.project, err)
		}
		opts = append(opts, projectOpts...)
		if o.input == "" {
			o.input = project.Input
		}
		if o.output == "" {
			o.output = project.Output
		}
	}
	if o.input == "" {
		o.input = "."
	}
	if o.output == "" {
		o.output = o.input
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "package":
			opts = append(opts, config.WithPackageName(o.packageName))
		case "charset":
			opts = append(opts, config.WithCharset(o.charset))
		case "content-type":
			ct, err := config.ParseContentType(o.contentType)
			if err != nil {
				flagErr = err
			}
			opts = append(opts, config.WithContentType(ct))
		case "ext":
			opts = append(opts, config.WithExtensions(o.extensions...))
		case "fail-fast":
			opts = append(opts, config.WithFailFast(o.failFast))
		case "workers":
			opts = append(opts, config.WithWorkers(o.workers))
		case "line-directives":
			opts = append(opts, config.WithLineDirectives(o.lineDirectives))
		case "source-maps":
			opts = append(opts, config.WithSourceMaps(o.sourceMaps))
		case "preserve-whitespace":
			opts = append(opts, config.WithPreserveWhitespaces(o.preserveSpace))
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}
	opts = append(opts, config.WithLogger(newLogger(os.Stderr, o.verbose)))
	return compiler.NewCompiler(config.NewCompilerConfig(opts...))
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runCompile(args []string) error {
	var o options
	fs := newFlagSet("compile", &o)
	c, err := load(fs, &o, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := c.Compile(ctx, o.input, o.output)
	if result != nil {
		printSummary(os.Stdout, result)
	}
	return err
}

func printSummary(w io.Writer, result *compiler.BatchResult) {
	p := message.NewPrinter(language.English)
	written := result.Written()
	p.Fprintf(w, "compiled %d templates, %d unchanged, %d failed\n",
		written, len(result.Files)-written, len(result.Failed))
}

func runWatch(args []string) error {
	var o options
	fs := newFlagSet("watch", &o)
	fs.DurationVar(&o.interval, "interval", time.Second, "polling interval")
	c, err := load(fs, &o, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := bootstrap.NewReloading(c, o.input, o.output)
	r.AddCallback(func(path string, t *bootstrap.Template, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return
		}
		fmt.Printf("compiled %s -> %s\n", path, t.Output)
	})
	if _, err := r.Check(); err != nil {
		fmt.Fprintf(os.Stderr, "initial compile finished with errors\n")
	}
	fmt.Printf("watching %s\n", o.input)
	if err := r.Watch(ctx, o.interval); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
