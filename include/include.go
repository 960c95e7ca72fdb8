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

// Package include expands "#+INCLUDE:" directives
// into a single flattened sequence of document lines.
package include

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"zombiezen.com/go/org"
)

// DefaultMaxDepth is the nesting limit used when [Resolver.MaxDepth] is zero.
const DefaultMaxDepth = 16

var (
	// ErrCycle is returned when a file includes itself,
	// directly or through other files.
	ErrCycle = errors.New("include cycle")
	// ErrDepth is returned when includes nest deeper than the resolver allows.
	ErrDepth = errors.New("includes nested too deeply")
)

// A Resolver reads documents from a filesystem and expands their includes
// depth-first.
//
// An include directive names a file relative to the including file's directory.
// Directives inside verbatim blocks, drawers, and comment blocks
// are left as literal lines.
// Included files have their preamble filtered:
// leading blank lines and header lines whose keys are in
// [org.Config.SkipHeaderKeys] are dropped,
// up to the first other line.
type Resolver struct {
	// FS is the filesystem documents are read from.
	FS fs.FS
	// Config is the classification configuration.
	// If nil, [org.DefaultConfig] is used.
	Config *org.Config
	// MaxDepth limits how many include directives may be followed
	// from the root document to the deepest included file.
	// The root document itself is not counted.
	// If zero, DefaultMaxDepth is used.
	MaxDepth int
	// Logger receives diagnostics. If nil, nothing is logged.
	Logger *zerolog.Logger
}

// Lines returns the lines of the named document with includes expanded.
func (r *Resolver) Lines(name string) ([]string, error) {
	cfg := r.Config
	if cfg == nil {
		cfg = org.DefaultConfig()
	}
	x := &expander{Resolver: r, cfg: cfg}
	lines, err := x.expand(nil, path.Clean(name), nil)
	if err != nil {
		return nil, err
	}
	return lines, nil
}

type expander struct {
	*Resolver
	cfg *org.Config
}

func (x *expander) logger() *zerolog.Logger {
	if x.Logger == nil {
		l := zerolog.Nop()
		return &l
	}
	return x.Logger
}

// expand appends the lines of the named file to dst.
// chain lists the files that are including it, outermost first.
func (x *expander) expand(dst []string, name string, chain []string) ([]string, error) {
	if slices.Contains(chain, name) {
		return dst, fmt.Errorf("include %s: %w (%s)", name, ErrCycle, strings.Join(append(chain, name), " -> "))
	}
	maxDepth := x.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if len(chain) > maxDepth {
		return dst, fmt.Errorf("include %s: %w (limit %d)", name, ErrDepth, maxDepth)
	}
	data, err := fs.ReadFile(x.FS, name)
	if err != nil {
		return dst, fmt.Errorf("include %s: %w", name, err)
	}
	lines, err := org.ReadLines(bytes.NewReader(data))
	if err != nil {
		return dst, fmt.Errorf("include %s: %w", name, err)
	}

	p := org.NewParser(x.cfg)
	inPreamble := len(chain) > 0
	for _, line := range lines {
		if inPreamble {
			if x.skipsPreambleLine(line) {
				continue
			}
			inPreamble = false
		}

		p.ParseLine(line)
		if !x.cfg.Include.MatchString(line) || p.InsideVerbatimBlock() || p.InsideDrawer() || p.InsideComment() {
			dst = append(dst, line)
			continue
		}
		target := Target(x.cfg, line)
		if target == "" {
			x.logger().Debug().Str("file", name).Str("line", line).Msg("Include directive without target")
			dst = append(dst, line)
			continue
		}
		child := path.Join(path.Dir(name), target)
		if !fs.ValidPath(child) {
			return dst, fmt.Errorf("include %s: %q is outside the root", name, target)
		}
		x.logger().Debug().Str("file", name).Str("include", child).Msg("Expanding include")
		dst, err = x.expand(dst, child, append(chain[:len(chain):len(chain)], name))
		if err != nil {
			return dst, err
		}
	}
	return dst, nil
}

// skipsPreambleLine reports whether a line at the start of an included file
// is dropped.
func (x *expander) skipsPreambleLine(line string) bool {
	if strings.TrimSpace(line) == "" {
		return true
	}
	m := x.cfg.Header.FindStringSubmatch(line)
	return m != nil && len(m) > 1 && x.cfg.SkipsHeader(strings.TrimSpace(m[1]))
}

// Target returns the file named by an include directive,
// or the empty string if the directive does not name one.
// A quoted name is unquoted; otherwise the name ends at the first space
// so that trailing include options are ignored.
func Target(cfg *org.Config, line string) string {
	loc := cfg.Include.FindStringIndex(line)
	if loc == nil {
		return ""
	}
	rest := strings.TrimSpace(strings.TrimLeft(line[loc[1]:], ": \t"))
	if rest == "" {
		return ""
	}
	for _, q := range cfg.Quotes {
		if !strings.HasPrefix(rest, q.Open) {
			continue
		}
		if end := strings.Index(rest[len(q.Open):], q.Close); end >= 0 {
			return strings.TrimSpace(rest[len(q.Open) : len(q.Open)+end])
		}
	}
	if i := strings.IndexAny(rest, " \t"); i >= 0 {
		rest = rest[:i]
	}
	return cfg.Unquote(rest)
}
