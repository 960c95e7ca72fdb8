// Copyright 2023 Ross Light
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//		 https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package mathcache

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// LaTeXRenderer renders snippets with a LaTeX installation:
// "latex" produces a DVI file and "dvisvgm" converts it to SVG.
type LaTeXRenderer struct {
	// LaTeX is the latex executable. Defaults to "latex".
	LaTeX string
	// DVISVGM is the dvisvgm executable. Defaults to "dvisvgm".
	DVISVGM string
	// TempDir is the parent of the per-snippet working directories.
	// Defaults to [os.TempDir].
	TempDir string
}

// Document returns the standalone LaTeX document for a snippet.
func Document(source, macros string) string {
	sb := new(strings.Builder)
	sb.WriteString("\\documentclass{standalone}\n")
	if macros = strings.TrimSpace(macros); macros != "" {
		sb.WriteString("% --- document macros ---\n")
		sb.WriteString(macros)
		sb.WriteString("\n% --- end macros ---\n")
	}
	sb.WriteString("\\begin{document}\n$")
	sb.WriteString(source)
	sb.WriteString("$\n\\end{document}\n")
	return sb.String()
}

// RenderSVG implements [Renderer].
func (r *LaTeXRenderer) RenderSVG(ctx context.Context, source, macros string) ([]byte, error) {
	dir, err := os.MkdirTemp(r.TempDir, "orgmath")
	if err != nil {
		return nil, fmt.Errorf("render math: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, "math.tex"), []byte(Document(source, macros)), 0o666); err != nil {
		return nil, fmt.Errorf("render math: %w", err)
	}
	latex := r.LaTeX
	if latex == "" {
		latex = "latex"
	}
	if err := run(ctx, dir, latex, "-interaction=nonstopmode", "-halt-on-error", "math.tex"); err != nil {
		return nil, fmt.Errorf("render math: %w", err)
	}
	dvisvgm := r.DVISVGM
	if dvisvgm == "" {
		dvisvgm = "dvisvgm"
	}
	if err := run(ctx, dir, dvisvgm, "-n", "-a", "-o", "math.svg", "math.dvi"); err != nil {
		return nil, fmt.Errorf("render math: %w", err)
	}
	svg, err := os.ReadFile(filepath.Join(dir, "math.svg"))
	if err != nil {
		return nil, fmt.Errorf("render math: %w", err)
	}
	return svg, nil
}

func run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	output := new(bytes.Buffer)
	cmd.Stdout = output
	cmd.Stderr = output
	if err := cmd.Run(); err != nil {
		if out := bytes.TrimSpace(output.Bytes()); len(out) > 0 {
			return fmt.Errorf("%s: %w\n%s", name, err, out)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
