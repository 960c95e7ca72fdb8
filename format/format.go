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

// Package format writes the event stream of an Org document
// as line-oriented text, one event per output line.
// The output is meant for people debugging a document's structure;
// its exact layout may change between versions.
package format

import (
	"io"
	"strconv"

	"zombiezen.com/go/org"
)

// Options is the set of optional parameters to [Events].
type Options struct {
	// Config is the classification configuration.
	// If nil, [org.DefaultConfig] is used.
	Config *org.Config
	// Tokens includes the inline tokens of every line in the output.
	Tokens bool
	// Color highlights line numbers with ANSI terminal escapes.
	Color bool
}

const (
	grayEscape  = "\x1b[90m"
	resetEscape = "\x1b[0m"
)

// Events classifies the given lines and writes each resulting event to w
// prefixed by its 1-based line number.
func Events(w io.Writer, lines []string, opts *Options) error {
	if opts == nil {
		opts = new(Options)
	}
	ww := &errWriter{w: w}
	p := org.NewParser(opts.Config)
	var buf []byte
	for i, line := range lines {
		for _, ev := range p.ParseLine(line) {
			if ev.Kind() == org.LineTokensKind && !opts.Tokens {
				continue
			}
			buf = buf[:0]
			if opts.Color {
				buf = append(buf, grayEscape...)
			}
			buf = strconv.AppendInt(buf, int64(i+1), 10)
			if opts.Color {
				buf = append(buf, resetEscape...)
			}
			buf = append(buf, '\t')
			buf = AppendEvent(buf, ev)
			buf = append(buf, '\n')
			ww.Write(buf)
		}
		if ww.err != nil {
			return ww.err
		}
	}
	return nil
}

// AppendEvent appends a single-line description of ev to dst
// and returns the resulting byte slice.
// The description starts with the event's kind.
func AppendEvent(dst []byte, ev org.Event) []byte {
	dst = append(dst, ev.Kind().String()...)
	switch ev := ev.(type) {
	case *org.PreambleEntry:
		dst = appendField(dst, "key", ev.Key)
		dst = appendQuotedField(dst, "value", ev.Value)
	case *org.Heading:
		dst = appendIntField(dst, "level", ev.Level)
		dst = appendQuotedField(dst, "title", ev.Title)
		dst = appendListField(dst, "tags", ev.Tags)
		dst = appendAnchor(dst, ev.Anchor)
	case *org.BlockBegin:
		dst = appendField(dst, "name", ev.Name)
		dst = appendFlag(dst, "verbatim", ev.Verbatim)
		if ev.Args != "" {
			dst = appendQuotedField(dst, "args", ev.Args)
		}
		dst = appendAnchor(dst, ev.Anchor)
	case *org.BlockEnd:
		dst = appendField(dst, "name", ev.Name)
		dst = appendFlag(dst, "verbatim", ev.Verbatim)
		dst = appendFlag(dst, "orphan", ev.Orphan)
		if ev.Mismatch {
			dst = appendField(dst, "expected", ev.Expected)
		}
	case *org.SrcBegin:
		dst = appendSrcOptions(dst, ev.Options)
		dst = appendAnchor(dst, ev.Anchor)
		if ev.HeadingLevel > 0 {
			dst = appendIntField(dst, "heading-level", ev.HeadingLevel)
		}
		dst = appendListField(dst, "heading-tags", ev.HeadingTags)
	case *org.SrcEnd:
		dst = appendSrcOptions(dst, ev.Options)
	case *org.ListItem:
		dst = appendIntField(dst, "indent", ev.Indent)
		dst = appendQuotedField(dst, "text", ev.Text)
	case *org.OrderedListItem:
		dst = appendIntField(dst, "indent", ev.Indent)
		dst = appendField(dst, "index", ev.RawIndex)
		dst = appendQuotedField(dst, "text", ev.Text)
	case *org.Name:
		dst = appendQuotedField(dst, "name", ev.Name)
	case *org.Caption:
		dst = appendQuotedField(dst, "caption", ev.Raw)
	case *org.AttrHTML:
		for _, a := range ev.Attrs {
			dst = appendQuotedField(dst, a.Key, a.Value)
		}
	case *org.Drawer:
		dst = appendField(dst, "name", ev.Name)
		dst = appendIntField(dst, "lines", len(ev.Lines))
		dst = appendFlag(dst, "orphan", ev.Orphan)
	case *org.TableRow:
		for _, cell := range ev.Cells {
			dst = append(dst, ' ')
			dst = strconv.AppendQuote(dst, cell)
		}
	case *org.TableFormula:
		for _, f := range ev.Formulas {
			dst = append(dst, ' ')
			dst = strconv.AppendQuote(dst, f)
		}
	case *org.LineTokens:
		for _, tok := range ev.Tokens {
			dst = appendQuotedField(dst, tok.Kind.String(), tok.Text)
		}
	case *org.Comment:
		dst = appendQuotedField(dst, "text", ev.Text)
		dst = appendAnchor(dst, ev.Anchor)
	case *org.CommentBlock:
		dst = appendIntField(dst, "lines", len(ev.Lines))
		dst = appendAnchor(dst, ev.Anchor)
	case *org.LaTeXMacro:
		dst = appendQuotedField(dst, "raw", ev.Raw)
		dst = appendFlag(dst, "added", ev.Added)
		dst = appendFlag(dst, "ignored", ev.Ignored)
	}
	return dst
}

func appendSrcOptions(dst []byte, opts org.SrcOptions) []byte {
	if opts.Language != "" {
		dst = appendField(dst, "lang", opts.Language)
	}
	for _, a := range opts.Args {
		dst = appendQuotedField(dst, ":"+a.Key, a.Value)
	}
	return dst
}

func appendField(dst []byte, key, value string) []byte {
	dst = append(dst, ' ')
	dst = append(dst, key...)
	dst = append(dst, '=')
	return append(dst, value...)
}

func appendQuotedField(dst []byte, key, value string) []byte {
	dst = append(dst, ' ')
	dst = append(dst, key...)
	dst = append(dst, '=')
	return strconv.AppendQuote(dst, value)
}

func appendIntField(dst []byte, key string, value int) []byte {
	dst = append(dst, ' ')
	dst = append(dst, key...)
	dst = append(dst, '=')
	return strconv.AppendInt(dst, int64(value), 10)
}

func appendListField(dst []byte, key string, values []string) []byte {
	if len(values) == 0 {
		return dst
	}
	dst = append(dst, ' ')
	dst = append(dst, key...)
	dst = append(dst, '=')
	for i, v := range values {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, v...)
	}
	return dst
}

func appendFlag(dst []byte, name string, set bool) []byte {
	if !set {
		return dst
	}
	dst = append(dst, ' ')
	return append(dst, name...)
}

func appendAnchor(dst []byte, anchor string) []byte {
	if anchor == "" {
		return dst
	}
	return appendQuotedField(dst, "anchor", anchor)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (w *errWriter) Write(p []byte) (n int, err error) {
	if w.err != nil {
		return 0, w.err
	}
	n, w.err = w.w.Write(p)
	return n, w.err
}
