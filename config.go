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
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// Config is the set of patterns and option sets that drive line classification.
// The parser never hardcodes these patterns,
// so a Config must be fully populated before use.
// [DefaultConfig] returns a suitable starting point.
// [ParseConfig] anchors every configured pattern except latex_macro_re
// at the start of the line.
type Config struct {
	// VerbatimBlocks is the set of case-folded block names
	// whose content is preserved literally.
	VerbatimBlocks map[string]bool
	// SkipHeaderKeys is the set of case-folded header keys
	// dropped from the preamble of included files.
	SkipHeaderKeys map[string]bool
	// Quotes lists the quotation mark pairs stripped from wrapped values
	// such as include targets.
	Quotes []Quote

	// Block matches "#+begin_NAME args" and "#+end_NAME" lines.
	// Group 1 is "begin" or "end", group 2 is the block name,
	// and the optional group 3 holds the remaining arguments.
	Block *regexp.Regexp
	// Header matches "#+KEY:" lines. Group 1 is the key.
	Header *regexp.Regexp
	// Include matches include directives.
	Include *regexp.Regexp
	// Heading matches heading lines.
	// Group 1 is the marker run, group 2 the title
	// and group 3 the trailing tag segment.
	Heading *regexp.Regexp
	// UnorderedList matches bullet items. Group 1 is the item text.
	UnorderedList *regexp.Regexp
	// OrderedList matches numbered items.
	// Group 1 is the number and group 2 the item text.
	OrderedList *regexp.Regexp
	// DrawerBegin matches ":NAME:" lines. Group 1 is the drawer name.
	DrawerBegin *regexp.Regexp
	// DrawerEnd matches ":END:" lines.
	DrawerEnd *regexp.Regexp
	// CommentBegin and CommentEnd delimit comment blocks.
	CommentBegin *regexp.Regexp
	CommentEnd   *regexp.Regexp
	// LaTeXMacro finds macro-definition commands in "#+LATEX:" values.
	LaTeXMacro *regexp.Regexp
}

// Quote is a pair of quotation marks.
type Quote struct {
	Open  string
	Close string
}

// Default pattern sources.
// All but the LaTeX macro pattern are matched case-insensitively.
const (
	defaultBlockPattern         = `^\s*#\+(begin|end)_(\w+)\b\s*(.*)$`
	defaultHeaderPattern        = `^\s*#\+([A-Za-z0-9_-]+)\s*:`
	defaultIncludePattern       = `^\s*#\+include\b`
	defaultHeadingPattern       = `^([*]+)\s+([^:]*)(.*)$`
	defaultUnorderedListPattern = `^\s*[-+]\s+(.*)$`
	defaultOrderedListPattern   = `^\s*(\d+)[.)]\s+(.*)$`
	defaultDrawerBeginPattern   = `^\s*:([A-Za-z0-9_@#%]+):\s*$`
	defaultDrawerEndPattern     = `^\s*:END:\s*$`
	defaultCommentBeginPattern  = `^\s*#\+begin_comment\b`
	defaultCommentEndPattern    = `^\s*#\+end_comment\b`
	defaultLaTeXMacroPattern    = `\\(?:def|newcommand|renewcommand|providecommand|newenvironment|renewenvironment)\b`
)

// foldKey returns the case-folded form of a key or block name.
// A Caser must not be shared between goroutines.
func foldKey(s string) string {
	return cases.Fold().String(s)
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		VerbatimBlocks: stringSet("example", "src", "verbatim", "export", "quote"),
		SkipHeaderKeys: stringSet("title", "author", "date", "options"),
		Quotes: []Quote{
			{Open: `"`, Close: `"`},
			{Open: `'`, Close: `'`},
		},
		Block:         regexp.MustCompile(`(?i)` + defaultBlockPattern),
		Header:        regexp.MustCompile(`(?i)` + defaultHeaderPattern),
		Include:       regexp.MustCompile(`(?i)` + defaultIncludePattern),
		Heading:       regexp.MustCompile(`(?i)` + defaultHeadingPattern),
		UnorderedList: regexp.MustCompile(`(?i)` + defaultUnorderedListPattern),
		OrderedList:   regexp.MustCompile(`(?i)` + defaultOrderedListPattern),
		DrawerBegin:   regexp.MustCompile(`(?i)` + defaultDrawerBeginPattern),
		DrawerEnd:     regexp.MustCompile(`(?i)` + defaultDrawerEndPattern),
		CommentBegin:  regexp.MustCompile(`(?i)` + defaultCommentBeginPattern),
		CommentEnd:    regexp.MustCompile(`(?i)` + defaultCommentEndPattern),
		LaTeXMacro:    regexp.MustCompile(defaultLaTeXMacroPattern),
	}
}

func stringSet(elems ...string) map[string]bool {
	m := make(map[string]bool, len(elems))
	for _, e := range elems {
		m[foldKey(e)] = true
	}
	return m
}

// IsVerbatim reports whether the named block preserves its content literally.
func (cfg *Config) IsVerbatim(name string) bool {
	return cfg.VerbatimBlocks[foldKey(name)]
}

// SkipsHeader reports whether a header key is dropped
// from the preamble of included files.
func (cfg *Config) SkipsHeader(key string) bool {
	return cfg.SkipHeaderKeys[foldKey(key)]
}

// Unquote removes a single matching pair of surrounding quotation marks
// from s and trims the result.
// s is returned unchanged if it is not wrapped in any configured pair.
func (cfg *Config) Unquote(s string) string {
	for _, q := range cfg.Quotes {
		if len(s) >= len(q.Open)+len(q.Close) && strings.HasPrefix(s, q.Open) && strings.HasSuffix(s, q.Close) {
			return strings.TrimSpace(s[len(q.Open) : len(s)-len(q.Close)])
		}
	}
	return s
}

// configFile is the YAML shape of a configuration file.
// Pointer fields distinguish a missing key from an empty one.
type configFile struct {
	VerbatimBlocks *[]string          `yaml:"verbatim_blocks"`
	SkipHeaderKeys *[]string          `yaml:"skip_header_keys"`
	Quotes         *map[string]string `yaml:"quotes"`
	Regex          map[string]string  `yaml:"regex"`
}

// LoadConfig reads a YAML configuration file.
// See [ParseConfig] for the format.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes a YAML configuration document.
// Keys that are not present keep their [DefaultConfig] values.
// Patterns under the "regex" mapping are compiled case-insensitively,
// except for latex_macro_re.
func ParseConfig(data []byte) (*Config, error) {
	var f configFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg := DefaultConfig()
	if f.VerbatimBlocks != nil {
		cfg.VerbatimBlocks = stringSet(*f.VerbatimBlocks...)
	}
	if f.SkipHeaderKeys != nil {
		cfg.SkipHeaderKeys = stringSet(*f.SkipHeaderKeys...)
	}
	if f.Quotes != nil {
		cfg.Quotes = cfg.Quotes[:0:0]
		opens := make([]string, 0, len(*f.Quotes))
		for open := range *f.Quotes {
			opens = append(opens, open)
		}
		sort.Strings(opens)
		for _, open := range opens {
			cfg.Quotes = append(cfg.Quotes, Quote{Open: open, Close: (*f.Quotes)[open]})
		}
	}

	patterns := []struct {
		key string
		dst **regexp.Regexp
		// match patterns are anchored at the start of the line
		// and ignore case. Others search the whole value.
		match bool
	}{
		{"block_re", &cfg.Block, true},
		{"header_kv_re", &cfg.Header, true},
		{"include_keyword", &cfg.Include, true},
		{"section_heading_re", &cfg.Heading, true},
		{"unordered_list_re", &cfg.UnorderedList, true},
		{"ordered_list_re", &cfg.OrderedList, true},
		{"drawer_begin_re", &cfg.DrawerBegin, true},
		{"drawer_end_re", &cfg.DrawerEnd, true},
		{"comment_begin_re", &cfg.CommentBegin, true},
		{"comment_end_re", &cfg.CommentEnd, true},
		{"latex_macro_re", &cfg.LaTeXMacro, false},
	}
	for _, p := range patterns {
		src, ok := f.Regex[p.key]
		if !ok {
			continue
		}
		if p.match {
			src = `(?i)^(?:` + src + `)`
		}
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("parse config: regex.%s: %w", p.key, err)
		}
		*p.dst = re
	}
	return cfg, nil
}
