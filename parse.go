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

// Package org converts Org-style outline markup into a stream of structural
// events and renders that stream as HTML.
package org

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// A Parser classifies lines of a document into [Event] values.
// Lines must be passed to [*Parser.ParseLine] once each, in document order.
// A Parser must not be used from multiple goroutines,
// and separate reading passes over a document need separate Parsers.
type Parser struct {
	cfg *Config

	inPreamble bool
	preamble   Preamble

	blocks       []blockFrame
	headingLevel int
	headingTags  []string

	drawer  *drawerCapture
	comment *commentCapture

	pendingAnchor  string
	pendingCaption []Token
	pendingAttrs   Attrs

	macros   []string
	macroSet map[string]struct{}
}

// blockFrame is an entry on the block stack.
type blockFrame struct {
	name     string
	verbatim bool
	// src is non-nil for source blocks.
	src *SrcOptions
}

type drawerCapture struct {
	name  string
	lines []string
}

type commentCapture struct {
	anchor string
	lines  []string
}

// NewParser returns a parser at the start of a document.
// If cfg is nil, [DefaultConfig] is used.
func NewParser(cfg *Config) *Parser {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Parser{
		cfg:        cfg,
		inPreamble: true,
		macroSet:   make(map[string]struct{}),
	}
}

// Config returns the configuration the parser was created with.
func (p *Parser) Config() *Config {
	return p.cfg
}

// InPreamble reports whether the parser has not yet seen document content.
func (p *Parser) InPreamble() bool {
	return p.inPreamble
}

// Preamble returns the header directives seen so far.
// The returned value must not be modified.
func (p *Parser) Preamble() *Preamble {
	return &p.preamble
}

// BlockDepth returns the number of open blocks.
func (p *Parser) BlockDepth() int {
	return len(p.blocks)
}

// InsideVerbatimBlock reports whether any open block is verbatim.
func (p *Parser) InsideVerbatimBlock() bool {
	for _, b := range p.blocks {
		if b.verbatim {
			return true
		}
	}
	return false
}

// InsideDrawer reports whether the parser is capturing a drawer.
func (p *Parser) InsideDrawer() bool {
	return p.drawer != nil
}

// InsideComment reports whether the parser is capturing a comment block.
func (p *Parser) InsideComment() bool {
	return p.comment != nil
}

// HeadingLevel returns the level of the most recent heading
// or zero if none has been seen.
func (p *Parser) HeadingLevel() int {
	return p.headingLevel
}

// MacroLines returns the distinct LaTeX macro definitions seen so far
// in order of first appearance.
func (p *Parser) MacroLines() []string {
	return p.macros[:len(p.macros):len(p.macros)]
}

// TakeAnchor returns the pending "#+NAME:" value and clears it.
func (p *Parser) TakeAnchor() string {
	a := p.pendingAnchor
	p.pendingAnchor = ""
	return a
}

// TakeCaption returns the pending "#+CAPTION:" tokens and clears them.
func (p *Parser) TakeCaption() []Token {
	c := p.pendingCaption
	p.pendingCaption = nil
	return c
}

// TakeHTMLAttrs returns the pending "#+ATTR_HTML:" attributes and clears them.
func (p *Parser) TakeHTMLAttrs() Attrs {
	a := p.pendingAttrs
	p.pendingAttrs = nil
	return a
}

// HasPendingAttachments reports whether a name, caption, or HTML attributes
// are waiting for the next eligible element.
func (p *Parser) HasPendingAttachments() bool {
	return p.pendingAnchor != "" || len(p.pendingCaption) > 0 || len(p.pendingAttrs) > 0
}

// ParseLine classifies a single line (without its line terminator)
// and returns the events it produces in order.
func (p *Parser) ParseLine(line string) []Event {
	var events []Event

	if p.inPreamble {
		if isBlankLine(line) {
			return nil
		}
		if m := p.cfg.Header.FindStringSubmatch(line); m != nil {
			key := foldKey(strings.TrimSpace(m[1]))
			value := directiveValue(line)
			p.preamble.Headers.Set(key, value)
			events = append(events, &PreambleEntry{Key: key, Value: value})
			if key == "latex" {
				events = append(events, p.cacheMacro(value))
			}
			return append(events, &LineTokens{Tokens: Tokenize(line)})
		}
		p.inPreamble = false
		events = append(events, &PreambleEnd{})
	}

	if p.InsideVerbatimBlock() {
		// Only a closer for the enclosing block is structural.
		if ev := p.blockEnd(line); ev != nil {
			events = append(events, ev)
		}
		return append(events, &LineTokens{Tokens: Tokenize(line)})
	}

	if ev, consumed := p.commentLine(line); ev != nil || consumed {
		if ev != nil {
			events = append(events, ev)
		}
		return events
	}
	if ev, consumed := p.drawerLine(line); ev != nil || consumed {
		if ev != nil {
			events = append(events, ev)
		}
		return events
	}
	if ev := parseTableLine(line); ev != nil {
		return append(events, ev)
	}
	if ev := p.directive(line); ev != nil {
		events = append(events, ev)
		return append(events, &LineTokens{Tokens: Tokenize(line)})
	}

	heading := p.heading(line)
	if heading != nil {
		events = append(events, heading)
	}
	if ev := p.blockMarker(line); ev != nil {
		events = append(events, ev)
	}
	if heading == nil {
		if ev := p.listItem(line); ev != nil {
			events = append(events, ev)
		}
	}
	return append(events, &LineTokens{Tokens: Tokenize(line)})
}

// directiveValue returns the trimmed text after the first colon of a
// "#+KEY:" line.
func directiveValue(line string) string {
	_, value, _ := strings.Cut(line, ":")
	return strings.TrimSpace(value)
}

func (p *Parser) commentLine(line string) (ev Event, consumed bool) {
	if p.comment != nil {
		if p.cfg.CommentEnd.MatchString(line) {
			ev := &CommentBlock{
				Anchor: p.comment.anchor,
				Lines:  p.comment.lines,
			}
			p.comment = nil
			return ev, true
		}
		p.comment.lines = append(p.comment.lines, line)
		return nil, true
	}
	if p.cfg.CommentBegin.MatchString(line) {
		p.comment = &commentCapture{anchor: p.TakeAnchor()}
		return nil, true
	}
	stripped := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(stripped, "#") && !strings.HasPrefix(stripped, "#+") {
		text := strings.TrimPrefix(stripped[1:], " ")
		return &Comment{Anchor: p.TakeAnchor(), Text: text}, true
	}
	return nil, false
}

func (p *Parser) drawerLine(line string) (ev Event, consumed bool) {
	if p.drawer != nil {
		if p.cfg.DrawerEnd.MatchString(line) {
			ev := &Drawer{
				Name:  p.drawer.name,
				Lines: p.drawer.lines,
			}
			p.drawer = nil
			return ev, true
		}
		p.drawer.lines = append(p.drawer.lines, line)
		return nil, true
	}
	if p.cfg.DrawerEnd.MatchString(line) {
		return &Drawer{Name: strings.Trim(strings.TrimSpace(line), ":"), Orphan: true}, true
	}
	if m := p.cfg.DrawerBegin.FindStringSubmatch(line); m != nil {
		p.drawer = &drawerCapture{name: m[1]}
		return nil, true
	}
	return nil, false
}

// parseTableLine returns a [*TableRow] or [*TableHline] event
// if the line is part of a table.
func parseTableLine(line string) Event {
	core := strings.TrimSpace(line)
	if !strings.HasPrefix(core, "|") {
		return nil
	}
	inner := strings.TrimSpace(strings.Trim(core, "|"))
	if inner != "" && strings.Trim(inner, "-+ ") == "" {
		return &TableHline{Raw: line}
	}
	rowInner := strings.TrimPrefix(core, "|")
	rowInner = strings.TrimSuffix(rowInner, "|")
	cells := strings.Split(rowInner, "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return &TableRow{Cells: cells, Raw: line}
}

// directive handles the keyword lines that attach to later elements.
func (p *Parser) directive(line string) Event {
	m := p.cfg.Header.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	value := directiveValue(line)
	switch foldKey(strings.TrimSpace(m[1])) {
	case "tblfm":
		var formulas []string
		for _, part := range strings.Split(value, "::") {
			if part = strings.TrimSpace(part); part != "" {
				formulas = append(formulas, part)
			}
		}
		return &TableFormula{Raw: value, Formulas: formulas}
	case "name":
		p.pendingAnchor = value
		return &Name{Name: value}
	case "caption":
		var tokens []Token
		if value != "" {
			tokens = Tokenize(value)
		}
		p.pendingCaption = tokens
		return &Caption{Raw: value, Tokens: tokens}
	case "attr_html":
		attrs := ParseHTMLAttrs(value)
		p.pendingAttrs = attrs
		return &AttrHTML{Raw: value, Attrs: attrs}
	case "latex":
		return p.cacheMacro(value)
	default:
		return nil
	}
}

func (p *Parser) cacheMacro(value string) *LaTeXMacro {
	if value == "" || !p.cfg.LaTeXMacro.MatchString(value) {
		return &LaTeXMacro{Raw: value, Ignored: true}
	}
	if _, seen := p.macroSet[value]; seen {
		return &LaTeXMacro{Raw: value}
	}
	p.macroSet[value] = struct{}{}
	p.macros = append(p.macros, value)
	return &LaTeXMacro{Raw: value, Added: true}
}

func (p *Parser) heading(line string) *Heading {
	m := p.cfg.Heading.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	p.inPreamble = false
	level := len(m[1])
	var trailing string
	if len(m) > 3 {
		trailing = m[3]
	}
	tags := headingTags(trailing)
	p.headingLevel = level
	p.headingTags = tags

	title := strings.TrimSpace(strings.TrimLeft(line, "*"))
	if tags != nil && strings.HasSuffix(title, ":") {
		if i := strings.LastIndex(title, " :"); i >= 0 {
			title = strings.TrimRight(title[:i], " \t")
		}
	}
	return &Heading{
		Level:  level,
		Title:  title,
		Tags:   tags,
		Anchor: p.TakeAnchor(),
	}
}

// headingTags extracts tags from a trailing " :tag1:tag2:" segment.
// It returns nil unless the whole segment is delimited by colons.
func headingTags(trailing string) []string {
	s := strings.TrimSpace(trailing)
	if len(s) < 2 || !strings.HasPrefix(s, ":") || !strings.HasSuffix(s, ":") {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ":") {
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func (p *Parser) matchBlock(line string) (begin bool, name, args string, ok bool) {
	m := p.cfg.Block.FindStringSubmatch(line)
	if m == nil || len(m) < 3 {
		return false, "", "", false
	}
	if len(m) > 3 {
		args = strings.TrimSpace(m[3])
	}
	return foldKey(m[1]) == "begin", foldKey(m[2]), args, true
}

func (p *Parser) blockMarker(line string) Event {
	begin, name, args, ok := p.matchBlock(line)
	if !ok {
		return nil
	}
	if !begin {
		return p.closeBlock(name)
	}

	frame := blockFrame{
		name:     name,
		verbatim: p.cfg.IsVerbatim(name),
	}
	anchor := p.TakeAnchor()
	if name == "src" {
		opts := ParseSrcOptions(args)
		frame.src = &opts
		p.blocks = append(p.blocks, frame)
		return &SrcBegin{
			Options:      opts,
			Anchor:       anchor,
			HeadingLevel: p.headingLevel,
			HeadingTags:  p.headingTags,
		}
	}
	p.blocks = append(p.blocks, frame)
	return &BlockBegin{
		Name:     name,
		Verbatim: frame.verbatim,
		Args:     args,
		Anchor:   anchor,
	}
}

// blockEnd recognizes only closing markers.
func (p *Parser) blockEnd(line string) Event {
	begin, name, _, ok := p.matchBlock(line)
	if !ok || begin {
		return nil
	}
	return p.closeBlock(name)
}

func (p *Parser) closeBlock(name string) Event {
	if len(p.blocks) == 0 {
		return &BlockEnd{Name: name, Orphan: true}
	}
	top := p.blocks[len(p.blocks)-1]
	if top.name != name {
		return &BlockEnd{Name: name, Mismatch: true, Expected: top.name}
	}
	p.blocks = p.blocks[:len(p.blocks)-1]
	if top.src != nil {
		return &SrcEnd{
			Options:      *top.src,
			HeadingLevel: p.headingLevel,
			HeadingTags:  p.headingTags,
		}
	}
	return &BlockEnd{Name: name, Verbatim: top.verbatim}
}

func (p *Parser) listItem(line string) Event {
	indent := len(line) - len(strings.TrimLeft(line, " "))
	if m := p.cfg.UnorderedList.FindStringSubmatch(line); m != nil {
		var text string
		if len(m) > 1 {
			text = m[1]
		}
		return &ListItem{Indent: indent, Text: text}
	}
	if m := p.cfg.OrderedList.FindStringSubmatch(line); m != nil && len(m) > 1 {
		item := &OrderedListItem{
			Indent:   indent,
			RawIndex: m[1],
			Index:    -1,
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			item.Index = n
		}
		if len(m) > 2 {
			item.Text = m[2]
		}
		return item
	}
	return nil
}

// ParseHTMLAttrs parses a ":key value :key2 value2" argument string.
// Values extend until the next ":key" token.
// A key without a value maps to "true".
// Tokens before the first key are ignored.
func ParseHTMLAttrs(s string) Attrs {
	var attrs Attrs
	fields := strings.Fields(s)
	for i := 0; i < len(fields); {
		if !strings.HasPrefix(fields[i], ":") {
			i++
			continue
		}
		key := fields[i][1:]
		i++
		start := i
		for i < len(fields) && !strings.HasPrefix(fields[i], ":") {
			i++
		}
		value := "true"
		if i > start {
			value = strings.Join(fields[start:i], " ")
		}
		attrs.Set(key, value)
	}
	return attrs
}

// ParseSrcOptions parses source block header arguments
// such as "python :results output :session foo".
// The first token is the language unless it starts with a colon.
// Each ":key" takes at most one following token as its value;
// a key without a value maps to "true".
func ParseSrcOptions(s string) SrcOptions {
	var opts SrcOptions
	fields := strings.Fields(s)
	if len(fields) > 0 && !strings.HasPrefix(fields[0], ":") {
		opts.Language = fields[0]
		fields = fields[1:]
	}
	for i := 0; i < len(fields); {
		if !strings.HasPrefix(fields[i], ":") {
			i++
			continue
		}
		key := fields[i][1:]
		i++
		if i >= len(fields) || strings.HasPrefix(fields[i], ":") {
			opts.Args.Set(key, "true")
			continue
		}
		opts.Args.Set(key, fields[i])
		i++
	}
	return opts
}

// ReadLines splits the content of r into lines without their terminators.
// Both "\n" and "\r\n" terminators are accepted.
// NUL bytes are replaced with the Unicode replacement character.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimSuffix(line, []byte("\n"))
			line = bytes.TrimSuffix(line, []byte("\r"))
			if bytes.IndexByte(line, 0) >= 0 {
				line = bytes.ReplaceAll(line, []byte{0}, []byte("\ufffd"))
			}
			lines = append(lines, string(line))
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return lines, fmt.Errorf("read lines: %w", err)
		}
	}
}

// SplitLines splits source into lines like [ReadLines].
func SplitLines(source string) []string {
	lines, _ := ReadLines(strings.NewReader(source))
	return lines
}

func isBlankLine(line string) bool {
	return strings.TrimSpace(line) == ""
}
