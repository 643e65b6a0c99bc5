package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/orizon-lang/minic/internal/build"
	"github.com/orizon-lang/minic/internal/cli"
	"github.com/orizon-lang/minic/internal/config"
	"github.com/orizon-lang/minic/internal/watch"
)

const toolName = "minic-arm32"

func main() {
	var (
		showVersion   = flag.Bool("version", false, "show version information")
		jsonOutput    = flag.Bool("json", false, "output version in JSON format")
		output        = flag.String("o", "", "output file for a single input, or output directory")
		configPath    = flag.String("config", "", "JSON configuration file")
		showIR        = flag.Bool("show-ir", false, "interleave IR instructions as comments")
		stripComments = flag.Bool("strip-comments", false, "omit comments from the assembly")
		keepEmpty     = flag.Bool("keep-empty", false, "print an empty line for every suppressed instruction")
		peephole      = flag.Bool("peephole", false, "run the peephole pass")
		jobs          = flag.Int("j", 0, "number of files compiled in parallel (default from config)")
		watchMode     = flag.Bool("watch", false, "recompile inputs when they change")
		verbose       = flag.Bool("v", false, "verbose output")
		debug         = flag.Bool("debug", false, "debug output")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] FILE.ir...\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Compiles minic IR to ARMv7 assembly.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		cli.PrintVersion(os.Stdout, toolName, *jsonOutput)
		os.Exit(0)
	}

	inputs := flag.Args()
	if len(inputs) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := cli.NewLogger(*verbose, *debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		cli.ExitWithError("failed to load config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "show-ir":
			cfg.ShowIR = *showIR
		case "strip-comments":
			cfg.StripComments = *stripComments
		case "keep-empty":
			cfg.KeepEmptyLines = *keepEmpty
		case "peephole":
			cfg.Peephole = *peephole
		case "j":
			cfg.Jobs = *jobs
		}
	})
	if err := cfg.Validate(); err != nil {
		cli.ExitWithError("invalid configuration: %v", err)
	}

	jobList, err := plan(inputs, *output)
	if err != nil {
		cli.ExitWithError("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	builder := build.NewBuilder(cfg, build.NewCache(cfg.CacheSize), logger)
	ok := run(ctx, builder, jobList, logger)

	if !*watchMode {
		if !ok {
			os.Exit(1)
		}
		return
	}

	w, err := watch.New(inputs, 100*time.Millisecond)
	if err != nil {
		cli.ExitWithError("failed to start watching: %v", err)
	}
	defer w.Close()

	logger.Info("watching %d file(s)", len(inputs))
	byInput, err := indexJobs(jobList)
	if err != nil {
		cli.ExitWithError("%v", err)
	}
	err = w.Run(ctx, func(changed []string) {
		run(ctx, builder, rebuild(byInput, changed), logger)
	})
	if err != nil && ctx.Err() == nil {
		cli.HandleError(err, logger)
	}
}

// plan pairs every input with its output file.
func plan(inputs []string, output string) ([]build.Job, error) {
	jobs := make([]build.Job, 0, len(inputs))
	if output != "" && len(inputs) == 1 {
		if info, err := os.Stat(output); err != nil || !info.IsDir() {
			return append(jobs, build.Job{Input: inputs[0], Output: output}), nil
		}
	}
	if output != "" {
		if err := os.MkdirAll(output, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	for _, in := range inputs {
		jobs = append(jobs, build.Job{Input: in, Output: build.OutputPath(in, output)})
	}
	return jobs, nil
}

// indexJobs keys jobs by the absolute path of their input, the form the
// watcher reports changes in.
func indexJobs(jobs []build.Job) (map[string]build.Job, error) {
	byInput := make(map[string]build.Job, len(jobs))
	for _, j := range jobs {
		abs, err := filepath.Abs(j.Input)
		if err != nil {
			return nil, err
		}
		byInput[abs] = j
	}
	return byInput, nil
}

// rebuild returns the jobs whose inputs are among changed.
func rebuild(byInput map[string]build.Job, changed []string) []build.Job {
	var again []build.Job
	for _, p := range changed {
		if j, ok := byInput[p]; ok {
			again = append(again, j)
		}
	}
	return again
}

// run builds jobs and reports the outcome of each; it returns false if any
// job failed.
func run(ctx context.Context, b *build.Builder, jobs []build.Job, logger *cli.Logger) bool {
	outcomes, err := b.BuildAll(ctx, jobs)
	for _, o := range outcomes {
		if o.Job.Input == "" {
			continue
		}
		// Fresh compilations already logged their faults.
		if o.Cached {
			for _, f := range o.Faults {
				logger.Warn("%s: %s", o.Job.Input, f)
			}
		}
		if o.Took > 0 {
			logger.Info("%s -> %s (%s, cached=%t)", o.Job.Input, o.Job.Output, o.Took.Round(time.Microsecond), o.Cached)
		}
	}
	if err != nil {
		logger.Error("%v", err)
		return false
	}
	return true
}
