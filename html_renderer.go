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
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/html/atom"
	"zombiezen.com/go/org/tblfm"
)

// A MathRenderer maps an inline math snippet to the URL of an image.
// macros is the newline-joined list of macro definitions
// seen in the document before the snippet.
type MathRenderer interface {
	MathURL(source, macros string) (string, error)
}

// An HTMLRenderer converts a document's lines into an HTML fragment.
//
// Rendering never fails because of content:
// unterminated constructs are closed at the end of the document
// and stray closers are ignored.
//
// # Security considerations
//
// Text content and attribute values are always escaped,
// but link destinations are passed through [NormalizeURI] only.
// Documents from untrusted sources should have their output
// sent through an HTML sanitizer.
type HTMLRenderer struct {
	// Config is the classification configuration.
	// If nil, [DefaultConfig] is used.
	Config *Config
	// Math renders inline math.
	// If nil, math is written as escaped source text.
	Math MathRenderer
	// AssetPrefix is prepended to relative image paths.
	// If empty, [DefaultAssetPrefix] is used.
	AssetPrefix string
	// Logger receives diagnostics. If nil, nothing is logged.
	Logger *zerolog.Logger
}

// RenderHTML writes the given document lines to w as an HTML fragment
// using the default options for [HTMLRenderer].
func RenderHTML(w io.Writer, lines []string) (*Preamble, error) {
	return new(HTMLRenderer).Render(w, lines)
}

// Render writes the given document lines to w as an HTML fragment.
// Lines must already have any include directives expanded.
// It returns the document's preamble
// and the first error encountered while writing, if any.
func (r *HTMLRenderer) Render(w io.Writer, lines []string) (*Preamble, error) {
	body, preamble := r.AppendHTML(nil, lines)
	if _, err := w.Write(body); err != nil {
		return preamble, fmt.Errorf("render org to html: %w", err)
	}
	return preamble, nil
}

// RenderDocument writes the given document lines to w
// as a complete HTML page (see [WriteDocument]).
func (r *HTMLRenderer) RenderDocument(w io.Writer, lines []string) (*Preamble, error) {
	body, preamble := r.AppendHTML(nil, lines)
	if err := WriteDocument(w, preamble, body); err != nil {
		return preamble, fmt.Errorf("render org to html: %w", err)
	}
	return preamble, nil
}

// AppendHTML appends the HTML fragment for the given document lines to dst
// and returns the resulting byte slice along with the document's preamble.
func (r *HTMLRenderer) AppendHTML(dst []byte, lines []string) ([]byte, *Preamble) {
	state := &renderState{
		HTMLRenderer: r,
		parser:       NewParser(r.Config),
		dst:          dst,
	}
	for _, line := range lines {
		state.line(line)
	}
	state.finish()
	return state.dst, state.parser.Preamble()
}

func (r *HTMLRenderer) logger() *zerolog.Logger {
	if r.Logger == nil {
		l := zerolog.Nop()
		return &l
	}
	return r.Logger
}

type resultsMode int8

const (
	noResults resultsMode = iota
	awaitingResults
	collectingResults
)

// renderState holds the open regions of a document being rendered.
// At most one capture is collecting lines at a time.
type renderState struct {
	*HTMLRenderer
	parser *Parser
	dst    []byte
	macros string

	paragraph [][]Token
	list      atom.Atom
	// containers is the stack of open non-verbatim block names.
	containers []string

	pre      *preCapture
	verse    *verseCapture
	table    *tableCapture
	noexport *noexportCapture

	results     resultsMode
	resultLines []string

	commentCount  int
	noexportCount int
}

type preCapture struct {
	name     string
	anchor   string
	isResult bool
	src      *SrcOptions
	lines    []string
}

type verseCapture struct {
	anchor string
	lines  []string
}

type tableCapture struct {
	rows     []tblfm.Row
	formulas []string
	anchor   string
	caption  []Token
}

type noexportCapture struct {
	level  int
	anchor string
	title  string
	lines  []string
}

func (r *renderState) openTagAttr(name atom.Atom) {
	r.dst = append(r.dst, '<')
	r.dst = append(r.dst, name.String()...)
}

func (r *renderState) openTag(name atom.Atom) {
	r.openTagAttr(name)
	r.dst = append(r.dst, '>')
}

func (r *renderState) closeTag(name atom.Atom) {
	r.dst = append(r.dst, "</"...)
	r.dst = append(r.dst, name.String()...)
	r.dst = append(r.dst, '>')
}

// attr writes a single attribute of an open start tag.
func (r *renderState) attr(key, value string) {
	r.dst = append(r.dst, ' ')
	r.dst = escapeHTML(r.dst, key)
	r.dst = append(r.dst, `="`...)
	r.dst = escapeHTML(r.dst, value)
	r.dst = append(r.dst, '"')
}

func (r *renderState) idAttr(anchor string) {
	if anchor != "" {
		r.attr("id", anchor)
	}
}

func (r *renderState) line(line string) {
	events := r.parser.ParseLine(line)
	if r.parser.InsideDrawer() {
		return
	}

	tokens := []Token{{Kind: TextToken, Text: line}}
	var (
		structural []Event
		tableRows  []tblfm.Row
		formulas   []string
		heading    *Heading
	)
	for _, ev := range events {
		switch ev := ev.(type) {
		case *Drawer:
			if ev.Orphan {
				r.logger().Debug().Str("line", line).Msg("Ignoring drawer end without start")
			}
			return
		case *LineTokens:
			tokens = ev.Tokens
		case *TableRow:
			tableRows = append(tableRows, tblfm.Row{Cells: ev.Cells})
		case *TableHline:
			tableRows = append(tableRows, tblfm.Row{Hline: true})
		case *TableFormula:
			formulas = append(formulas, ev.Formulas...)
		case *LaTeXMacro:
			if ev.Added {
				r.macros = strings.Join(r.parser.MacroLines(), "\n")
			}
		case *PreambleEntry, *PreambleEnd, *Name, *Caption, *AttrHTML:
			// Attachments are held by the parser until taken.
		case *Heading:
			heading = ev
			structural = append(structural, ev)
		default:
			structural = append(structural, ev)
		}
	}

	if r.pre != nil {
		for _, ev := range structural {
			if isBlockClose(ev) {
				r.flushPre()
				return
			}
		}
		r.pre.lines = append(r.pre.lines, line)
		return
	}

	if r.noexport != nil {
		if heading == nil || heading.Level > r.noexport.level {
			r.noexport.lines = append(r.noexport.lines, line)
			return
		}
		r.flushNoexport()
	}

	if r.table != nil && len(formulas) > 0 {
		r.table.formulas = append(r.table.formulas, formulas...)
		return
	}
	if len(tableRows) > 0 {
		if r.table == nil {
			r.flushParagraph()
			r.closeList()
			r.table = &tableCapture{
				anchor:  r.parser.TakeAnchor(),
				caption: r.parser.TakeCaption(),
			}
			r.parser.TakeHTMLAttrs()
		}
		r.table.rows = append(r.table.rows, tableRows...)
		return
	}
	r.flushTable()

	if isResultsLine(line) {
		if r.results == collectingResults {
			r.flushResults()
		}
		r.results = awaitingResults
		r.resultLines = nil
		return
	}

	if heading != nil && heading.HasTag("noexport") {
		title := heading.Title
		if title == "" {
			title = "noexport"
		}
		r.noexport = &noexportCapture{
			level:  heading.Level,
			anchor: heading.Anchor,
			title:  title,
		}
		r.parser.TakeCaption()
		r.parser.TakeHTMLAttrs()
		return
	}

	if r.results == collectingResults {
		if !isBlankLine(line) {
			r.resultLines = append(r.resultLines, line)
			return
		}
		r.flushResults()
	}

	if r.verse != nil {
		for _, ev := range structural {
			if end, ok := ev.(*BlockEnd); ok && end.Name == "verse" && !end.Ignored() {
				r.flushVerse()
				return
			}
		}
		r.verse.lines = append(r.verse.lines, line)
		return
	}

	if r.results == awaitingResults && !hasBlockOpen(structural) {
		if isBlankLine(line) {
			r.results = noResults
		} else {
			r.results = collectingResults
			r.resultLines = append(r.resultLines, line)
			return
		}
	}

	consumed := false
	for _, ev := range structural {
		consumed = true
		switch ev := ev.(type) {
		case *Heading:
			r.heading(ev)
		case *SrcBegin:
			r.results = noResults
			r.openPre(&preCapture{name: "src", anchor: ev.Anchor, src: &ev.Options})
		case *BlockBegin:
			r.blockBegin(ev)
		case *SrcEnd:
			r.flushPre()
		case *BlockEnd:
			r.blockEnd(ev)
		case *ListItem:
			r.flushParagraph()
			r.parser.TakeHTMLAttrs()
			r.openList(atom.Ul, -1)
			r.listItem(ev.Text)
		case *OrderedListItem:
			r.flushParagraph()
			r.parser.TakeHTMLAttrs()
			r.openList(atom.Ol, ev.Index)
			r.listItem(ev.Text)
		case *Comment:
			r.comment(ev.Anchor, []string{ev.Text})
		case *CommentBlock:
			r.comment(ev.Anchor, ev.Lines)
		default:
			consumed = false
		}
	}
	if consumed || r.parser.InsideComment() {
		return
	}

	if isDirectiveLine(line) {
		return
	}
	if isImageLine(tokens) {
		r.figure(tokens[0])
		return
	}
	if isBlankLine(line) {
		r.flushParagraph()
		return
	}
	r.closeList()
	r.paragraph = append(r.paragraph, tokens)
}

// isBlockClose reports whether ev closes the innermost open block.
func isBlockClose(ev Event) bool {
	switch ev := ev.(type) {
	case *SrcEnd:
		return true
	case *BlockEnd:
		return !ev.Ignored()
	default:
		return false
	}
}

func hasBlockOpen(events []Event) bool {
	for _, ev := range events {
		switch ev.(type) {
		case *SrcBegin, *BlockBegin:
			return true
		}
	}
	return false
}

func isResultsLine(line string) bool {
	const prefix = "#+results"
	s := strings.TrimLeft(line, " \t")
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func isDirectiveLine(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), "#+")
}

func isImageLine(tokens []Token) bool {
	if len(tokens) != 1 || tokens[0].Kind != LinkToken {
		return false
	}
	dest, _ := tokens[0].Link()
	return IsImageTarget(dest)
}

func (r *renderState) heading(h *Heading) {
	r.flushParagraph()
	r.closeList()
	r.parser.TakeHTMLAttrs()

	tag := headingAtoms[min(max(h.Level, 1), len(headingAtoms))-1]
	r.openTagAttr(tag)
	r.idAttr(h.Anchor)
	r.dst = append(r.dst, '>')
	r.inline(Tokenize(h.Title))
	if len(h.Tags) > 0 {
		r.openTagAttr(atom.Span)
		r.attr("class", "tags")
		r.dst = append(r.dst, ">["...)
		for i, t := range h.Tags {
			if i > 0 {
				r.dst = append(r.dst, ", "...)
			}
			r.dst = escapeHTML(r.dst, t)
		}
		r.dst = append(r.dst, ']')
		r.closeTag(atom.Span)
	}
	r.closeTag(tag)
	r.dst = append(r.dst, '\n')
}

var headingAtoms = [...]atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6}

func (r *renderState) blockBegin(ev *BlockBegin) {
	isResult := false
	if r.results == awaitingResults {
		isResult = ev.Verbatim && ev.Name == "example"
		r.results = noResults
	}
	switch {
	case ev.Name == "verse":
		r.flushParagraph()
		r.closeList()
		r.flushTable()
		r.parser.TakeHTMLAttrs()
		r.parser.TakeCaption()
		r.verse = &verseCapture{anchor: ev.Anchor}
	case !ev.Verbatim:
		r.openContainer(ev.Name, ev.Anchor)
		r.parser.TakeHTMLAttrs()
	default:
		r.openPre(&preCapture{name: ev.Name, anchor: ev.Anchor, isResult: isResult})
	}
}

func (r *renderState) blockEnd(ev *BlockEnd) {
	switch {
	case ev.Ignored():
		r.logger().Debug().
			Str("block", ev.Name).
			Str("expected", ev.Expected).
			Bool("orphan", ev.Orphan).
			Msg("Ignoring unmatched block end")
	case ev.Name == "verse":
		r.flushVerse()
	case !ev.Verbatim && len(r.containers) > 0 && r.containers[len(r.containers)-1] == ev.Name:
		r.closeContainer()
	default:
		r.flushPre()
	}
}

func (r *renderState) openPre(p *preCapture) {
	r.flushParagraph()
	r.closeList()
	r.flushTable()
	r.parser.TakeHTMLAttrs()
	r.pre = p
}

func (r *renderState) flushPre() {
	if r.pre == nil {
		return
	}
	p := r.pre
	r.pre = nil
	r.closeList()

	r.openTagAttr(atom.Pre)
	var class []string
	if p.name != "" {
		class = append(class, "block", "block-"+p.name)
	}
	if p.isResult {
		class = append(class, "result")
	}
	if p.src != nil && p.src.Language != "" {
		class = append(class, "lang-"+p.src.Language)
	}
	if len(class) > 0 {
		r.attr("class", strings.Join(class, " "))
	}
	if p.src != nil {
		if p.src.Language != "" {
			r.attr("data-language", p.src.Language)
		}
		for _, a := range p.src.Args {
			r.attr("data-"+a.Key, a.Value)
		}
	}
	r.idAttr(p.anchor)
	r.dst = append(r.dst, '>')
	r.openTag(atom.Code)
	r.dst = escapeHTML(r.dst, strings.Join(p.lines, "\n"))
	r.closeTag(atom.Code)
	r.closeTag(atom.Pre)
	r.dst = append(r.dst, '\n')
}

func (r *renderState) flushResults() {
	lines := r.resultLines
	r.resultLines = nil
	r.results = noResults
	if len(lines) == 0 {
		return
	}
	r.flushParagraph()
	r.closeList()
	r.openTagAttr(atom.Pre)
	r.attr("class", "block result")
	r.dst = append(r.dst, '>')
	r.openTag(atom.Code)
	r.dst = escapeHTML(r.dst, strings.Join(lines, "\n"))
	r.closeTag(atom.Code)
	r.closeTag(atom.Pre)
	r.dst = append(r.dst, '\n')
}

func (r *renderState) flushVerse() {
	if r.verse == nil {
		return
	}
	v := r.verse
	r.verse = nil
	r.flushParagraph()
	r.closeList()
	r.flushPre()
	r.flushTable()

	r.openTagAttr(atom.Div)
	r.attr("class", "verse block block-verse")
	r.idAttr(v.anchor)
	r.dst = append(r.dst, ">\n"...)
	for i, line := range v.lines {
		if i > 0 {
			r.dst = append(r.dst, "<br />\n"...)
		}
		r.inline(Tokenize(line))
	}
	r.dst = append(r.dst, '\n')
	r.closeTag(atom.Div)
	r.dst = append(r.dst, '\n')
}

func (r *renderState) openContainer(name, anchor string) {
	r.flushParagraph()
	r.closeList()
	r.flushPre()
	r.flushTable()
	r.openTagAttr(atom.Div)
	r.attr("class", "block block-"+name)
	r.idAttr(anchor)
	r.dst = append(r.dst, ">\n"...)
	r.containers = append(r.containers, name)
}

func (r *renderState) closeContainer() {
	r.flushParagraph()
	r.closeList()
	r.flushPre()
	r.flushTable()
	r.closeTag(atom.Div)
	r.dst = append(r.dst, '\n')
	r.containers = r.containers[:len(r.containers)-1]
}

// openList starts a list of the given kind, closing any list of the other kind.
// start is the first item's number for ordered lists, or -1 if unknown.
func (r *renderState) openList(kind atom.Atom, start int) {
	if r.list == kind {
		return
	}
	r.closeList()
	r.list = kind
	r.openTagAttr(kind)
	if kind == atom.Ol && start >= 0 && start != 1 {
		r.dst = append(r.dst, ` start="`...)
		r.dst = strconv.AppendInt(r.dst, int64(start), 10)
		r.dst = append(r.dst, '"')
	}
	r.dst = append(r.dst, ">\n"...)
}

func (r *renderState) closeList() {
	if r.list == 0 {
		return
	}
	r.closeTag(r.list)
	r.dst = append(r.dst, '\n')
	r.list = 0
}

func (r *renderState) listItem(text string) {
	r.openTag(atom.Li)
	r.inline(Tokenize(text))
	r.closeTag(atom.Li)
	r.dst = append(r.dst, '\n')
}

func (r *renderState) flushParagraph() {
	if len(r.paragraph) == 0 {
		return
	}
	lines := r.paragraph
	r.paragraph = nil
	r.appendParagraph(lines)
}

// appendParagraph writes the given token lines joined by spaces
// as a single paragraph followed by a newline.
// Lines that render as whitespace are dropped,
// and nothing is written if no line remains.
func (r *renderState) appendParagraph(lines [][]Token) {
	start := len(r.dst)
	r.openTag(atom.P)
	contentStart := len(r.dst)
	for _, tokens := range lines {
		lineStart := len(r.dst)
		if lineStart > contentStart {
			r.dst = append(r.dst, ' ')
		}
		r.inline(tokens)
		if len(bytes.TrimSpace(r.dst[lineStart:])) == 0 {
			r.dst = r.dst[:lineStart]
		}
	}
	if len(bytes.TrimSpace(r.dst[contentStart:])) == 0 {
		r.dst = r.dst[:start]
		return
	}
	r.closeTag(atom.P)
	r.dst = append(r.dst, '\n')
}

func (r *renderState) flushTable() {
	if r.table == nil {
		return
	}
	t := r.table
	r.table = nil
	if len(t.rows) == 0 {
		return
	}
	tblfm.Apply(t.rows, t.formulas)
	headerEnd := tblfm.HeaderEnd(t.rows)
	width := max(tblfm.Width(t.rows), 1)

	if len(t.caption) > 0 {
		r.openTagAttr(atom.Figure)
		r.attr("class", "table")
		r.idAttr(t.anchor)
		r.dst = append(r.dst, ">\n"...)
		r.openTag(atom.Figcaption)
		r.inline(t.caption)
		r.closeTag(atom.Figcaption)
		r.dst = append(r.dst, '\n')
		r.openTag(atom.Table)
	} else {
		r.openTagAttr(atom.Table)
		r.idAttr(t.anchor)
		r.dst = append(r.dst, '>')
	}
	r.dst = append(r.dst, '\n')

	body := t.rows
	if headerEnd > 0 {
		r.openTag(atom.Thead)
		r.dst = append(r.dst, '\n')
		for _, row := range t.rows[:headerEnd] {
			if !row.Hline {
				r.tableRow(atom.Th, row.Cells)
			}
		}
		r.closeTag(atom.Thead)
		r.dst = append(r.dst, '\n')
		body = t.rows[headerEnd+1:]
	}
	r.openTag(atom.Tbody)
	r.dst = append(r.dst, '\n')
	for _, row := range body {
		if row.Hline {
			r.dst = append(r.dst, `<tr class="hline"><td colspan="`...)
			r.dst = strconv.AppendInt(r.dst, int64(width), 10)
			r.dst = append(r.dst, "\"></td></tr>\n"...)
			continue
		}
		r.tableRow(atom.Td, row.Cells)
	}
	r.closeTag(atom.Tbody)
	r.dst = append(r.dst, '\n')
	r.closeTag(atom.Table)
	r.dst = append(r.dst, '\n')
	if len(t.caption) > 0 {
		r.closeTag(atom.Figure)
		r.dst = append(r.dst, '\n')
	}
}

func (r *renderState) tableRow(cell atom.Atom, cells []string) {
	r.openTag(atom.Tr)
	for _, c := range cells {
		r.openTag(cell)
		r.inline(Tokenize(c))
		r.closeTag(cell)
	}
	r.closeTag(atom.Tr)
	r.dst = append(r.dst, '\n')
}

func (r *renderState) figure(link Token) {
	r.flushParagraph()
	r.closeList()
	anchor := r.parser.TakeAnchor()
	caption := r.parser.TakeCaption()
	extra := r.parser.TakeHTMLAttrs()

	dest, desc := link.Link()
	attrs := Attrs{
		{Key: "src", Value: r.imageSource(dest)},
		{Key: "alt", Value: desc},
		{Key: "title", Value: desc},
		{Key: "class", Value: "inline-image"},
	}
	for _, a := range extra {
		key := strings.TrimSpace(a.Key)
		if key == "" {
			continue
		}
		value := strings.TrimSpace(a.Value)
		if key == "class" {
			old, _ := attrs.Get("class")
			value = strings.TrimSpace(old + " " + value)
		}
		attrs.Set(key, value)
	}

	r.openTagAttr(atom.Figure)
	r.idAttr(anchor)
	r.dst = append(r.dst, '>')
	r.image(attrs)
	if len(caption) > 0 {
		r.openTag(atom.Figcaption)
		r.inline(caption)
		r.closeTag(atom.Figcaption)
	}
	r.closeTag(atom.Figure)
	r.dst = append(r.dst, '\n')
}

func (r *renderState) comment(anchor string, lines []string) {
	r.flushParagraph()
	r.closeList()
	r.flushPre()
	r.flushTable()
	r.commentCount++
	r.hiddenBlock("comment-"+strconv.Itoa(r.commentCount), anchor, "Show comment", lines)
}

func (r *renderState) flushNoexport() {
	if r.noexport == nil {
		return
	}
	n := r.noexport
	r.noexport = nil
	r.flushResults()
	r.flushVerse()
	r.flushParagraph()
	r.closeList()
	r.flushPre()
	r.flushTable()
	r.noexportCount++
	r.hiddenBlock("noexport-"+strconv.Itoa(r.noexportCount), n.anchor, "Show section: "+n.title, n.lines)
}

// hiddenBlock writes lines as paragraphs inside a collapsed box
// with a button that reveals it.
// Directive lines are skipped.
func (r *renderState) hiddenBlock(id, anchor, label string, lines []string) {
	r.openTagAttr(atom.Div)
	r.attr("class", "comment-wrapper")
	r.idAttr(anchor)
	r.dst = append(r.dst, '>')
	r.openTagAttr(atom.Button)
	r.attr("type", "button")
	r.attr("class", "comment-toggle")
	r.attr("data-target", id)
	r.dst = append(r.dst, '>')
	r.dst = escapeHTML(r.dst, label)
	r.closeTag(atom.Button)
	r.openTagAttr(atom.Div)
	r.attr("class", "comment-box")
	r.attr("id", id)
	r.dst = append(r.dst, " hidden>"...)

	var para [][]Token
	flush := func() {
		r.appendParagraph(para)
		para = nil
	}
	for _, line := range lines {
		switch {
		case isBlankLine(line):
			flush()
		case isDirectiveLine(line):
		default:
			para = append(para, Tokenize(line))
		}
	}
	flush()

	r.closeTag(atom.Div)
	r.closeTag(atom.Div)
	r.dst = append(r.dst, '\n')
}

// finish closes every region still open at the end of the document.
func (r *renderState) finish() {
	r.flushResults()
	r.flushVerse()
	r.flushParagraph()
	r.flushPre()
	r.closeList()
	r.flushTable()
	r.flushNoexport()
	for len(r.containers) > 0 {
		r.closeContainer()
	}
}
