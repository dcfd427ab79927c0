// Package pipeline converts raw samples into a rendered flamegraph.
//
// Three external stages run in strict order: convert raw binary
// samples to a textual event script, collapse the script into folded
// stack counts, render the folded stacks into an SVG. Each stage must
// fully complete with non-empty output before the next starts; any
// failure discards the run and reports the failing stage.
package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/flamerun/flamerun/internal/config"
	"github.com/flamerun/flamerun/internal/errdefs"
)

// timestampLayout is the shared token format; one token is generated
// per run and names all three artifacts.
const timestampLayout = "20060102_150405"

// ArtifactSet names the three files produced per completed session.
// Never mutated after creation.
type ArtifactSet struct {
	// Samples is the textual per-event script (out_<ts>.perf).
	Samples string
	// Folded is the folded stack-count file (out_<ts>.folded).
	Folded string
	// Image is the rendered flamegraph (<mode>_<ts>.svg).
	Image string
}

// Names derives the artifact paths for a mode tag and timestamp token.
// The names depend on {modeTag, timestamp} only, so a completed
// session's files are always reconstructible.
func Names(outputDir, modeTag, timestamp string) ArtifactSet {
	return ArtifactSet{
		Samples: filepath.Join(outputDir, fmt.Sprintf("out_%s.perf", timestamp)),
		Folded:  filepath.Join(outputDir, fmt.Sprintf("out_%s.folded", timestamp)),
		Image:   filepath.Join(outputDir, fmt.Sprintf("%s_%s.svg", modeTag, timestamp)),
	}
}

// Runner invokes the three pipeline stages.
type Runner struct {
	cfg    *config.Config
	logger zerolog.Logger

	// now is injectable so tests can pin the timestamp token.
	now func() time.Time
}

// NewRunner creates a pipeline runner.
func NewRunner(cfg *config.Config, logger zerolog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		logger: logger.With().Str("component", "pipeline").Logger(),
		now:    time.Now,
	}
}

// Run executes the pipeline against a raw-sample file and returns the
// artifact set. The timestamp token is generated once at invocation
// start. There is no partial or resumable pipeline.
func (r *Runner) Run(rawPath, modeTag string) (*ArtifactSet, error) {
	timestamp := r.now().Format(timestampLayout)
	artifacts := Names(r.cfg.OutputDir, modeTag, timestamp)

	r.logger.Info().
		Str("raw", rawPath).
		Str("mode", modeTag).
		Str("timestamp", timestamp).
		Msg("Generating artifacts")

	// Stage 1: raw binary samples -> textual per-event script.
	if err := r.runStage("conversion", artifacts.Samples,
		r.cfg.SamplerPath, "script", "-i", rawPath); err != nil {
		return nil, err
	}

	// Stage 2: textual script -> folded stack counts.
	if err := r.runStage("collapse", artifacts.Folded,
		r.cfg.CollapseToolPath, artifacts.Samples); err != nil {
		r.discard(artifacts.Samples)
		return nil, err
	}

	// Stage 3: folded stacks -> rendered SVG.
	if err := r.runStage("render", artifacts.Image,
		r.cfg.RenderToolPath, artifacts.Folded); err != nil {
		r.discard(artifacts.Samples)
		r.discard(artifacts.Folded)
		return nil, err
	}

	r.logger.Info().Str("image", artifacts.Image).Msg("Flamegraph rendered")

	return &artifacts, nil
}

// runStage runs one external tool with stdout redirected to outPath
// and validates that the output is non-empty.
func (r *Runner) runStage(stage, outPath, tool string, args ...string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return errdefs.Pipelinef("%s failed: cannot create %s: %v", stage, outPath, err)
	}
	defer errdefs.DeferClose(r.logger, out, "failed to close stage output")

	var stderr bytes.Buffer
	cmd := exec.Command(tool, args...)
	cmd.Stdout = out
	cmd.Stderr = &stderr

	r.logger.Debug().
		Str("stage", stage).
		Str("tool", tool).
		Strs("args", args).
		Msg("Running pipeline stage")

	if err := cmd.Run(); err != nil {
		r.discard(outPath)
		return errdefs.Pipelinef("%s failed: %v: %s", stage, err, bytes.TrimSpace(stderr.Bytes()))
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return errdefs.Pipelinef("%s failed: output missing: %v", stage, err)
	}
	if info.Size() == 0 {
		r.discard(outPath)
		return errdefs.Pipelinef("%s failed: empty output %s", stage, outPath)
	}

	return nil
}

// discard removes the output of a failed stage; there is no partial
// or resumable pipeline.
func (r *Runner) discard(path string) {
	if err := os.Remove(path); err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove discarded stage output")
	}
}
