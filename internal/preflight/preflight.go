// Package preflight verifies the external environment before any
// subprocess is started. All checks are preconditions, not transient
// failures: nothing is retried.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/flamerun/flamerun/internal/config"
	"github.com/flamerun/flamerun/internal/errdefs"
)

// Check ensures the output directory exists (creating it if absent),
// the sampler is resolvable, and the flamegraph toolchain is present.
func Check(cfg *config.Config, logger zerolog.Logger) error {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return errdefs.Environmentf("cannot create output directory %s: %v", cfg.OutputDir, err)
	}

	samplerPath, err := resolveTool(cfg.SamplerPath)
	if err != nil {
		return errdefs.Environmentf("sampler not installed: %v", err)
	}

	for _, tool := range []string{cfg.CollapseToolPath, cfg.RenderToolPath} {
		if _, err := os.Stat(tool); err != nil {
			return errdefs.Environmentf(
				"flamegraph toolchain missing: %s (install https://github.com/brendangregg/FlameGraph and set collapse_tool/render_tool)",
				tool)
		}
	}

	logger.Debug().
		Str("sampler", samplerPath).
		Str("collapse_tool", cfg.CollapseToolPath).
		Str("render_tool", cfg.RenderToolPath).
		Str("output_dir", cfg.OutputDir).
		Msg("Preflight checks passed")

	return nil
}

// resolveTool resolves a tool either on PATH or, when the name
// contains a path separator, directly on the filesystem.
func resolveTool(name string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		info, err := os.Stat(name)
		if err != nil {
			return "", err
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s is a directory", name)
		}
		return name, nil
	}
	return exec.LookPath(name)
}
