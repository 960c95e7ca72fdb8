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
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	const (
		macros = `\newcommand{\R}{\mathbb{R}}`
		source = `x \in \R`
	)
	k := Key(source, macros)
	assert.True(t, ValidDigest(k), "Key(...) = %q is not a valid digest", k)
	assert.Equal(t, k, Key(source, macros), "Key is not deterministic")
	assert.Equal(t, k, Key(source, "\n"+macros+"  \n"), "surrounding whitespace in macros changed the key")
	assert.NotEqual(t, k, Key(source+" ", macros), "source change did not change the key")
	assert.NotEqual(t, k, Key(source, macros+"x"), "macro change did not change the key")
	assert.NotEqual(t, Key("a", "b"), Key("b", "a"))
}

func TestValidDigest(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"da39a3ee5e6b4b0d3255bfef95601890afd80709", true},
		{"DA39A3EE5E6B4B0D3255BFEF95601890AFD80709", false},
		{"da39a3ee5e6b4b0d3255bfef95601890afd8070", false},
		{"da39a3ee5e6b4b0d3255bfef95601890afd807090", false},
		{"../39a3ee5e6b4b0d3255bfef95601890afd80709", false},
		{"", false},
	}
	for _, test := range tests {
		if got := ValidDigest(test.s); got != test.want {
			t.Errorf("ValidDigest(%q) = %t; want %t", test.s, got, test.want)
		}
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantSource string
		wantMacros string
	}{
		{
			name:       "Container",
			data:       "%% org-math-cache-v1\n%% macros\n\\def\\a{1}\n\\def\\b{2}\n%% math\nx^2\n",
			wantSource: "x^2",
			wantMacros: "\\def\\a{1}\n\\def\\b{2}",
		},
		{
			name:       "EmptyMacros",
			data:       "%% org-math-cache-v1\n%% macros\n\n%% math\n\\alpha\n",
			wantSource: `\alpha`,
		},
		{
			name:       "CRLF",
			data:       "%% org-math-cache-v1\r\n%% macros\r\n\\def\\a{1}\r\n%% math\r\ny\r\n",
			wantSource: "y",
			wantMacros: `\def\a{1}`,
		},
		{
			name:       "Legacy",
			data:       "  \\sum_{i=0}^n i\n",
			wantSource: `\sum_{i=0}^n i`,
		},
		{
			name:       "MissingMathMarker",
			data:       "%% org-math-cache-v1\n%% macros\nz\n",
			wantSource: "%% org-math-cache-v1\n%% macros\nz",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			source, macros := Decode([]byte(test.data))
			assert.Equal(t, test.wantSource, source, "source")
			assert.Equal(t, test.wantMacros, macros, "macros")
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	const (
		source = `\frac{a}{b}`
		macros = "\\def\\x{1}\n\\def\\y{2}"
	)
	gotSource, gotMacros := Decode(Encode(source, macros))
	assert.Equal(t, source, gotSource)
	assert.Equal(t, macros, gotMacros)
}

type fakeRenderer struct {
	calls int
	err   error
}

func (f *fakeRenderer) RenderSVG(ctx context.Context, source, macros string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("<svg><!-- " + macros + " | " + source + " --></svg>"), nil
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	renderer := new(fakeRenderer)
	c := &Cache{Dir: dir, Renderer: renderer}

	const (
		source = `e^{i\pi}`
		macros = `\def\one{1}`
	)
	u, err := c.MathURL(source, macros)
	require.NoError(t, err)
	digest := Key(source, macros)
	assert.Equal(t, "/math/"+digest+".svg", u)

	data, err := os.ReadFile(filepath.Join(dir, digest+".tex"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%% org-math-cache-v1\n"), "stored data = %q", data)

	gotSource, gotMacros, err := c.Source(digest)
	require.NoError(t, err)
	assert.Equal(t, source, gotSource)
	assert.Equal(t, macros, gotMacros)

	path, err := c.SVG(ctx, digest)
	require.NoError(t, err)
	svg, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `<svg><!-- \def\one{1} | e^{i\pi} --></svg>`, string(svg))

	_, err = c.SVG(ctx, digest)
	require.NoError(t, err)
	assert.Equal(t, 1, renderer.calls, "renderer calls")
}

func TestCacheURLPrefix(t *testing.T) {
	c := &Cache{Dir: t.TempDir(), URLPrefix: "/static/math/"}
	u, err := c.MathURL("x", "")
	require.NoError(t, err)
	assert.Equal(t, "/static/math/"+Key("x", "")+".svg", u)
}

func TestCacheNotFound(t *testing.T) {
	c := &Cache{Dir: t.TempDir(), Renderer: new(fakeRenderer)}
	_, err := c.SVG(context.Background(), Key("never stored", ""))
	assert.True(t, errors.Is(err, ErrNotFound), "err = %v; want ErrNotFound", err)
	_, err = c.SVG(context.Background(), "../../etc/passwd")
	assert.True(t, errors.Is(err, ErrNotFound), "err = %v; want ErrNotFound", err)
}

func TestCacheRenderError(t *testing.T) {
	renderFailure := errors.New("latex failed")
	dir := t.TempDir()
	c := &Cache{Dir: dir, Renderer: &fakeRenderer{err: renderFailure}}
	_, err := c.MathURL(`\bad`, "")
	require.NoError(t, err)
	digest := Key(`\bad`, "")
	_, err = c.SVG(context.Background(), digest)
	assert.True(t, errors.Is(err, renderFailure), "err = %v; want to wrap %v", err, renderFailure)
	_, statErr := os.Stat(filepath.Join(dir, digest+".svg"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "svg written after failed render")
}

func TestDocument(t *testing.T) {
	got := Document(`a+b`, "  \\def\\a{1}\n")
	want := "\\documentclass{standalone}\n" +
		"% --- document macros ---\n" +
		"\\def\\a{1}\n" +
		"% --- end macros ---\n" +
		"\\begin{document}\n" +
		"$a+b$\n" +
		"\\end{document}\n"
	assert.Equal(t, want, got)
	assert.NotContains(t, Document("x", ""), "macros")
}
