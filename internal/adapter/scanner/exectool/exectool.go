// Package exectool wraps external static-analysis binaries as scanning
// backends. Each tool runs against a temporary tree materialized from
// the reconstructed change files; its JSON report is normalized into
// domain findings with paths mapped back to the original change paths.
//
// A missing binary, a failed invocation, or unparsable output makes the
// backend contribute nothing; the aggregator treats that as degradation,
// not failure.
package exectool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cfernhout/reviewd/internal/domain"
	"github.com/cfernhout/reviewd/internal/usecase/scan"
)

// parseFunc converts a tool's raw JSON report into findings. mapPath
// resolves a tool-reported path (relative to the temp tree) back to the
// original change path.
type parseFunc func(output []byte, mapPath func(string) string) ([]domain.Finding, error)

// runFunc executes the tool and returns its stdout. Split out for tests.
type runFunc func(ctx context.Context, binary string, args []string) ([]byte, error)

// Tool is a generic exec-based scanning backend.
type Tool struct {
	name      string
	binary    string
	args      func(dir string) []string
	parse     parseFunc
	available bool
	run       runFunc
}

// Name returns the backend name recorded on findings.
func (t *Tool) Name() string { return t.name }

// Available reports whether the tool binary was found on PATH at
// construction time. The registry is built once at startup; there is no
// hidden re-probing during scans.
func (t *Tool) Available() bool { return t.available }

// NewGosec builds a backend around the gosec binary.
func NewGosec() *Tool {
	return newTool("gosec", "gosec", func(dir string) []string {
		return []string{"-quiet", "-fmt=json", dir + "/..."}
	}, parseGosec)
}

// NewSemgrep builds a backend around the semgrep binary.
func NewSemgrep() *Tool {
	return newTool("semgrep", "semgrep", func(dir string) []string {
		return []string{"--config=auto", "--json", "--quiet", dir}
	}, parseSemgrep)
}

func newTool(name, binary string, args func(string) []string, parse parseFunc) *Tool {
	_, lookErr := exec.LookPath(binary)
	return &Tool{
		name:      name,
		binary:    binary,
		args:      args,
		parse:     parse,
		available: lookErr == nil,
		run:       runCommand,
	}
}

// Scan materializes the reconstructed files under a temporary directory,
// invokes the tool there, and normalizes its report.
func (t *Tool) Scan(ctx context.Context, files []scan.SourceFile) ([]domain.Finding, error) {
	if !t.available {
		return nil, nil
	}

	dir, err := os.MkdirTemp("", "reviewd-"+t.name+"-*")
	if err != nil {
		return nil, fmt.Errorf("create scan dir: %w", err)
	}
	defer os.RemoveAll(dir)

	pathsByRel := make(map[string]string, len(files))
	for _, f := range files {
		rel := filepath.FromSlash(f.Path)
		target := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("create scan tree: %w", err)
		}
		if err := os.WriteFile(target, []byte(f.Content), 0o644); err != nil {
			return nil, fmt.Errorf("write scan file: %w", err)
		}
		pathsByRel[rel] = f.Path
	}

	output, runErr := t.runIn(ctx, dir)
	// Scanners conventionally exit non-zero when they report findings,
	// so a run error alone is not fatal as long as there is output.
	if len(bytes.TrimSpace(output)) == 0 {
		if runErr != nil {
			return nil, fmt.Errorf("%s invocation: %w", t.name, runErr)
		}
		return nil, nil
	}

	mapPath := func(reported string) string {
		rel := reported
		if filepath.IsAbs(reported) {
			if r, err := filepath.Rel(dir, reported); err == nil {
				rel = r
			}
		}
		rel = filepath.FromSlash(strings.TrimPrefix(filepath.ToSlash(rel), "./"))
		if original, ok := pathsByRel[rel]; ok {
			return original
		}
		return filepath.ToSlash(rel)
	}

	findings, err := t.parse(output, mapPath)
	if err != nil {
		return nil, fmt.Errorf("parse %s output: %w", t.name, err)
	}
	return findings, nil
}

func (t *Tool) runIn(ctx context.Context, dir string) ([]byte, error) {
	args := t.args(dir)
	return t.run(ctx, t.binary, args)
}

func runCommand(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	err := cmd.Run()
	return stdout.Bytes(), err
}
