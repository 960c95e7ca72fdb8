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

package org

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	for _, name := range []string{"example", "SRC", "Verbatim", "export", "quote"} {
		if !cfg.IsVerbatim(name) {
			t.Errorf("IsVerbatim(%q) = false; want true", name)
		}
	}
	for _, name := range []string{"center", "verse", "comment"} {
		if cfg.IsVerbatim(name) {
			t.Errorf("IsVerbatim(%q) = true; want false", name)
		}
	}
	for _, key := range []string{"TITLE", "author", "Date", "options"} {
		if !cfg.SkipsHeader(key) {
			t.Errorf("SkipsHeader(%q) = false; want true", key)
		}
	}
	if cfg.SkipsHeader("language") {
		t.Error("SkipsHeader(\"language\") = true; want false")
	}
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		s    string
		want string
	}{
		{`"a.org"`, "a.org"},
		{`' b.org '`, "b.org"},
		{`"mixed'`, `"mixed'`},
		{`"`, `"`},
		{`plain`, "plain"},
		{`""`, ""},
	}
	cfg := DefaultConfig()
	for _, test := range tests {
		if got := cfg.Unquote(test.s); got != test.want {
			t.Errorf("Unquote(%q) = %q; want %q", test.s, got, test.want)
		}
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
verbatim_blocks: [src, Notes]
skip_header_keys: []
quotes:
  "<": ">"
regex:
  unordered_list_re: '^\s*[-]\s+(.*)$'
  latex_macro_re: '\\DeclareMathOperator'
`))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.IsVerbatim("notes") || cfg.IsVerbatim("example") {
		t.Errorf("VerbatimBlocks = %v; want only src and notes", cfg.VerbatimBlocks)
	}
	if cfg.SkipsHeader("title") {
		t.Error("SkipsHeader(\"title\") = true after clearing skip_header_keys")
	}
	if diff := cmp.Diff([]Quote{{Open: "<", Close: ">"}}, cfg.Quotes); diff != "" {
		t.Errorf("Quotes (-want +got):\n%s", diff)
	}
	if cfg.UnorderedList.MatchString("+ item") {
		t.Error("custom unordered_list_re still matches \"+ item\"")
	}
	if !cfg.UnorderedList.MatchString("- item") {
		t.Error("custom unordered_list_re does not match \"- item\"")
	}
	if !cfg.LaTeXMacro.MatchString(`\DeclareMathOperator{\sgn}{sgn}`) {
		t.Error("custom latex_macro_re does not match")
	}
	if cfg.LaTeXMacro.MatchString(`\declaremathoperator`) {
		t.Error("latex_macro_re matched case-insensitively")
	}
	// Unspecified patterns keep their defaults.
	if !cfg.Heading.MatchString("* Heading") {
		t.Error("default section_heading_re lost")
	}
}

func TestParseConfigAnchorsPatterns(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
regex:
  unordered_list_re: '[-]\s+(.*)$'
  latex_macro_re: 'newcommand'
`))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.UnorderedList.MatchString("- item") {
		t.Error("unordered_list_re does not match \"- item\"")
	}
	if cfg.UnorderedList.MatchString("a - b") {
		t.Error("unordered_list_re matched \"a - b\" in the middle of the line")
	}
	if !cfg.LaTeXMacro.MatchString(`\newcommand{\R}{\mathbb{R}}`) {
		t.Error("latex_macro_re does not search the whole value")
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "BadYAML", data: "verbatim_blocks: [src"},
		{name: "BadRegex", data: "regex:\n  block_re: '('\n"},
		{name: "WrongType", data: "verbatim_blocks: 3\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(test.data)); err == nil {
				t.Error("ParseConfig(...) did not return an error")
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "org.yaml")
	if err := os.WriteFile(path, []byte("verbatim_blocks: [raw]\n"), 0o666); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.IsVerbatim("raw") {
		t.Error("IsVerbatim(\"raw\") = false; want true")
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig(missing) did not return an error")
	}
}
