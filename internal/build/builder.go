// Package build drives compilation of IR files to assembly: it caches
// compiled output by content hash and compiles independent files
// concurrently.
package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/minic/internal/codegen"
	"github.com/orizon-lang/minic/internal/codegen/emit"
	"github.com/orizon-lang/minic/internal/config"
	"github.com/orizon-lang/minic/internal/errors"
	"github.com/orizon-lang/minic/internal/ir/irtext"
)

// Job is one IR file and the assembly file it produces.
type Job struct {
	Input  string
	Output string
}

// Outcome reports how a job was served.
type Outcome struct {
	Job    Job
	Cached bool
	Faults []string
	Took   time.Duration
}

// Builder compiles IR files under one configuration.
type Builder struct {
	cfg   *config.Config
	cache *Cache
	log   codegen.Logger
}

// NewBuilder returns a builder. A nil cache disables caching.
func NewBuilder(cfg *config.Config, cache *Cache, log codegen.Logger) *Builder {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Builder{cfg: cfg, cache: cache, log: log}
}

// Fingerprint renders every setting that affects the generated text.
func (b *Builder) Fingerprint() string {
	c := b.cfg
	return fmt.Sprintf("%s;reserve=%d;align=%d;ir=%t;strip=%t;empty=%t;peep=%t",
		c.Target, c.SpillReserve, c.FrameAlign, c.ShowIR, c.StripComments, c.KeepEmptyLines, c.Peephole)
}

func (b *Builder) options() (codegen.Options, emit.WriteOptions) {
	return codegen.Options{
			SpillReserve: b.cfg.SpillReserve,
			FrameAlign:   b.cfg.FrameAlign,
			ShowIR:       b.cfg.ShowIR,
			Peephole:     b.cfg.Peephole,
		}, emit.WriteOptions{
			KeepEmpty:     b.cfg.KeepEmptyLines,
			StripComments: b.cfg.StripComments,
		}
}

// Compile turns IR text into assembly, consulting the cache first.
func (b *Builder) Compile(name string, src []byte) (Artifact, bool, error) {
	key := KeyFor(src, b.Fingerprint())
	if b.cache != nil {
		if a, ok := b.cache.Get(key); ok {
			return a, true, nil
		}
	}

	m, err := irtext.Parse(name, bytes.NewReader(src))
	if err != nil {
		return Artifact{}, false, err
	}
	opts, wopts := b.options()
	p, err := codegen.CompileModule(m, opts, b.log)
	if err != nil {
		return Artifact{}, false, err
	}

	var buf bytes.Buffer
	if err := p.Write(&buf, wopts); err != nil {
		return Artifact{}, false, fmt.Errorf("failed to render %s: %w", name, err)
	}
	a := Artifact{Asm: buf.Bytes()}
	for _, f := range p.Faults() {
		a.Faults = append(a.Faults, f.Message)
	}
	if b.cache != nil {
		b.cache.Put(key, a)
	}
	return a, false, nil
}

// Build compiles one job and writes its output file.
func (b *Builder) Build(ctx context.Context, job Job) (Outcome, error) {
	start := time.Now()
	out := Outcome{Job: job}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	src, err := os.ReadFile(job.Input)
	if err != nil {
		return out, errors.FileError(job.Input, err)
	}
	a, cached, err := b.Compile(job.Input, src)
	if err != nil {
		return out, err
	}
	if err := os.WriteFile(job.Output, a.Asm, 0o644); err != nil {
		return out, errors.FileError(job.Output, err)
	}

	out.Cached = cached
	out.Faults = a.Faults
	out.Took = time.Since(start)
	return out, nil
}

// BuildAll compiles jobs concurrently, at most Jobs at a time. Outcomes
// keep the order of jobs; the first error cancels the remaining work.
func (b *Builder) BuildAll(ctx context.Context, jobs []Job) ([]Outcome, error) {
	outcomes := make([]Outcome, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	limit := b.cfg.Jobs
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			o, err := b.Build(ctx, job)
			outcomes[i] = o
			if err != nil {
				return fmt.Errorf("%s: %w", job.Input, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return outcomes, err
}

// OutputPath returns the assembly file for input: the same name with a .s
// extension, placed in dir when dir is not empty.
func OutputPath(input, dir string) string {
	base := strings.TrimSuffix(input, filepath.Ext(input)) + ".s"
	if dir == "" {
		return base
	}
	return filepath.Join(dir, filepath.Base(base))
}
