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

// Package mathcache stores inline math snippets by content hash
// and renders them to SVG images on demand.
//
// Each snippet is recorded in a directory as "<digest>.tex"
// when a page referencing it is rendered.
// The SVG is produced later, when "<digest>.svg" is first requested.
// Since the digest covers both the snippet and its macro definitions,
// entries never change once written and concurrent writers are harmless.
package mathcache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by [*Cache.SVG] and [*Cache.Source]
// for digests that have no stored snippet.
var ErrNotFound = errors.New("math snippet not found")

// DefaultURLPrefix is the URL prefix used when [Cache.URLPrefix] is empty.
const DefaultURLPrefix = "/math/"

// Key returns the hex-encoded SHA-1 digest identifying a snippet.
// Surrounding whitespace in macros does not affect the key.
func Key(source, macros string) string {
	h := sha1.New()
	h.Write([]byte(strings.TrimSpace(macros)))
	h.Write([]byte("\n%%MATH%%\n"))
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// ValidDigest reports whether s has the form of a [Key] result.
func ValidDigest(s string) bool {
	if len(s) != sha1.Size*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

const (
	containerHeader = "%% org-math-cache-v1"
	macrosMarker    = "%% macros"
	mathMarker      = "%% math"
)

// Encode returns the stored form of a snippet and its macro definitions.
func Encode(source, macros string) []byte {
	var sb strings.Builder
	sb.WriteString(containerHeader + "\n")
	sb.WriteString(macrosMarker + "\n")
	sb.WriteString(strings.TrimSpace(macros))
	sb.WriteString("\n" + mathMarker + "\n")
	sb.WriteString(source)
	sb.WriteString("\n")
	return []byte(sb.String())
}

// Decode parses the stored form of a snippet.
// Data without the container header is treated as a bare snippet
// with no macros, as is a container missing either section marker.
// Both results are trimmed of surrounding whitespace.
func Decode(data []byte) (source, macros string) {
	raw := string(data)
	if !strings.HasPrefix(raw, containerHeader) {
		return strings.TrimSpace(raw), ""
	}
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	macrosLine, mathLine := -1, -1
	for i, line := range lines {
		switch {
		case line == macrosMarker && macrosLine < 0:
			macrosLine = i
		case line == mathMarker && mathLine < 0:
			mathLine = i
		}
	}
	if macrosLine < 0 || mathLine < 0 {
		return strings.TrimSpace(raw), ""
	}
	if macrosLine < mathLine {
		macros = strings.Join(lines[macrosLine+1:mathLine], "\n")
	}
	source = strings.Join(lines[mathLine+1:], "\n")
	return strings.TrimSpace(source), strings.TrimSpace(macros)
}

// A Renderer converts a math snippet into an SVG image.
type Renderer interface {
	RenderSVG(ctx context.Context, source, macros string) ([]byte, error)
}

// Cache is a directory of math snippets and their rendered images.
// It is safe to call methods on a Cache from multiple goroutines.
type Cache struct {
	// Dir is the cache directory. It is created as needed.
	Dir string
	// URLPrefix is prepended to "<digest>.svg" in URLs
	// returned by MathURL.
	// If empty, [DefaultURLPrefix] is used.
	URLPrefix string
	// Renderer produces images for SVG.
	// If nil, SVG only returns previously rendered images.
	Renderer Renderer
	// Logger receives diagnostics. If nil, nothing is logged.
	Logger *zerolog.Logger
}

func (c *Cache) logger() *zerolog.Logger {
	if c.Logger == nil {
		l := zerolog.Nop()
		return &l
	}
	return c.Logger
}

// MathURL records a snippet in the cache if it is not already present
// and returns the URL of its image.
func (c *Cache) MathURL(source, macros string) (string, error) {
	key := Key(source, macros)
	path := filepath.Join(c.Dir, key+".tex")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(c.Dir, 0o777); err != nil {
			return "", fmt.Errorf("math cache: %w", err)
		}
		if err := renameio.WriteFile(path, Encode(source, macros), 0o666); err != nil {
			return "", fmt.Errorf("math cache: %w", err)
		}
		c.logger().Debug().Str("digest", key).Msg("Stored math snippet")
	} else if err != nil {
		return "", fmt.Errorf("math cache: %w", err)
	}
	prefix := c.URLPrefix
	if prefix == "" {
		prefix = DefaultURLPrefix
	}
	return prefix + key + ".svg", nil
}

// Source returns the snippet stored under the given digest.
func (c *Cache) Source(digest string) (source, macros string, err error) {
	if !ValidDigest(digest) {
		return "", "", fmt.Errorf("math cache: %q: %w", digest, ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(c.Dir, digest+".tex"))
	if errors.Is(err, fs.ErrNotExist) {
		return "", "", fmt.Errorf("math cache: %s: %w", digest, ErrNotFound)
	}
	if err != nil {
		return "", "", fmt.Errorf("math cache: %w", err)
	}
	source, macros = Decode(data)
	return source, macros, nil
}

// SVG returns the path of the rendered image for the given digest,
// rendering and storing it first if necessary.
func (c *Cache) SVG(ctx context.Context, digest string) (string, error) {
	if !ValidDigest(digest) {
		return "", fmt.Errorf("math cache: %q: %w", digest, ErrNotFound)
	}
	svgPath := filepath.Join(c.Dir, digest+".svg")
	if _, err := os.Stat(svgPath); err == nil {
		return svgPath, nil
	}
	source, macros, err := c.Source(digest)
	if err != nil {
		return "", err
	}
	if c.Renderer == nil {
		return "", fmt.Errorf("math cache: render %s: no renderer", digest)
	}
	svg, err := c.Renderer.RenderSVG(ctx, source, macros)
	if err != nil {
		return "", fmt.Errorf("math cache: render %s: %w", digest, err)
	}
	if err := renameio.WriteFile(svgPath, svg, 0o666); err != nil {
		return "", fmt.Errorf("math cache: %w", err)
	}
	c.logger().Debug().Str("digest", digest).Int("size", len(svg)).Msg("Rendered math image")
	return svgPath, nil
}
