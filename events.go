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

import "strconv"

// Event is a structural fact about a single line,
// as reported by [*Parser.ParseLine].
// The set of implementations is closed:
// every Event is a pointer to one of the types in this file.
type Event interface {
	Kind() EventKind
	event()
}

// EventKind is an enumeration of values returned by [Event.Kind].
type EventKind uint8

const (
	PreambleEntryKind EventKind = 1 + iota
	PreambleEndKind
	HeadingKind
	BlockBeginKind
	BlockEndKind
	SrcBeginKind
	SrcEndKind
	ListItemKind
	OrderedListItemKind
	NameKind
	CaptionKind
	AttrHTMLKind
	DrawerKind
	TableRowKind
	TableHlineKind
	LineTokensKind
	TableFormulaKind
	CommentKind
	CommentBlockKind
	LaTeXMacroKind
)

var eventKindNames = [...]string{
	PreambleEntryKind:   "preamble-entry",
	PreambleEndKind:     "preamble-end",
	HeadingKind:         "heading",
	BlockBeginKind:      "block-begin",
	BlockEndKind:        "block-end",
	SrcBeginKind:        "src-begin",
	SrcEndKind:          "src-end",
	ListItemKind:        "list-item",
	OrderedListItemKind: "ordered-list-item",
	NameKind:            "name",
	CaptionKind:         "caption",
	AttrHTMLKind:        "attr-html",
	DrawerKind:          "drawer",
	TableRowKind:        "table-row",
	TableHlineKind:      "table-hline",
	LineTokensKind:      "line-tokens",
	TableFormulaKind:    "tblfm",
	CommentKind:         "comment",
	CommentBlockKind:    "comment-block",
	LaTeXMacroKind:      "latex-macro",
}

func (kind EventKind) String() string {
	if int(kind) < len(eventKindNames) && eventKindNames[kind] != "" {
		return eventKindNames[kind]
	}
	return "EventKind(" + strconv.Itoa(int(kind)) + ")"
}

// PreambleEntry is a "#+KEY: value" line in the document preamble.
type PreambleEntry struct {
	// Key is case-folded.
	Key   string
	Value string
}

// PreambleEnd marks the first line of document content.
type PreambleEnd struct{}

// Heading is a section heading line.
type Heading struct {
	Level int
	// Title is the heading text with markers and the tag suffix removed.
	Title string
	// Tags is nil if the heading has no tag suffix.
	Tags   []string
	Anchor string
}

// HasTag reports whether the heading carries the given tag,
// ignoring case.
func (h *Heading) HasTag(tag string) bool {
	tag = foldKey(tag)
	for _, t := range h.Tags {
		if foldKey(t) == tag {
			return true
		}
	}
	return false
}

// BlockBegin opens a named block other than "src".
type BlockBegin struct {
	// Name is case-folded.
	Name     string
	Verbatim bool
	// Args is the trimmed text after the block name.
	Args   string
	Anchor string
}

// BlockEnd closes a named block other than "src".
// Orphan and Mismatch closers do not change the block stack
// and should be treated as no-ops.
type BlockEnd struct {
	Name     string
	Verbatim bool
	// Orphan is set when no block was open.
	Orphan bool
	// Mismatch is set when the innermost open block has a different name,
	// which is reported in Expected.
	Mismatch bool
	Expected string
}

// Ignored reports whether the closer did not close anything.
func (e *BlockEnd) Ignored() bool {
	return e.Orphan || e.Mismatch
}

// SrcOptions holds the header arguments of a source block.
type SrcOptions struct {
	Language string
	// Args holds ":key value" pairs in order of appearance.
	// A bare ":flag" has the value "true".
	Args Attrs
}

// SrcBegin opens a source block.
type SrcBegin struct {
	Options      SrcOptions
	Anchor       string
	HeadingLevel int
	HeadingTags  []string
}

// SrcEnd closes a source block.
type SrcEnd struct {
	Options      SrcOptions
	HeadingLevel int
	HeadingTags  []string
}

// ListItem is an unordered list item.
type ListItem struct {
	Indent int
	Text   string
}

// OrderedListItem is a numbered list item.
type OrderedListItem struct {
	Indent   int
	RawIndex string
	// Index is the parsed RawIndex or -1 if it could not be parsed.
	Index int
	Text  string
}

// Name is a "#+NAME:" directive.
type Name struct {
	Name string
}

// Caption is a "#+CAPTION:" directive.
type Caption struct {
	Raw    string
	Tokens []Token
}

// AttrHTML is a "#+ATTR_HTML:" directive.
type AttrHTML struct {
	Raw   string
	Attrs Attrs
}

// Drawer is a complete ":NAME: ... :END:" region,
// reported on its closing line.
type Drawer struct {
	Name  string
	Lines []string
	// Orphan is set for a closing line without an opener.
	Orphan bool
}

// TableRow is a table line with cells.
type TableRow struct {
	Cells []string
	Raw   string
}

// TableHline is a table separator line.
type TableHline struct {
	Raw string
}

// LineTokens is the inline tokenization of a line.
type LineTokens struct {
	Tokens []Token
}

// TableFormula is a "#+TBLFM:" directive.
type TableFormula struct {
	Raw      string
	Formulas []string
}

// Comment is a single-line "# text" comment.
type Comment struct {
	Anchor string
	Text   string
}

// CommentBlock is a complete comment block,
// reported on its closing line.
type CommentBlock struct {
	Anchor string
	Lines  []string
}

// LaTeXMacro is a "#+LATEX:" directive.
type LaTeXMacro struct {
	Raw string
	// Added is set when Raw was a new macro definition.
	Added bool
	// Ignored is set when Raw does not define a macro.
	Ignored bool
}

func (*PreambleEntry) Kind() EventKind   { return PreambleEntryKind }
func (*PreambleEnd) Kind() EventKind     { return PreambleEndKind }
func (*Heading) Kind() EventKind         { return HeadingKind }
func (*BlockBegin) Kind() EventKind      { return BlockBeginKind }
func (*BlockEnd) Kind() EventKind        { return BlockEndKind }
func (*SrcBegin) Kind() EventKind        { return SrcBeginKind }
func (*SrcEnd) Kind() EventKind          { return SrcEndKind }
func (*ListItem) Kind() EventKind        { return ListItemKind }
func (*OrderedListItem) Kind() EventKind { return OrderedListItemKind }
func (*Name) Kind() EventKind            { return NameKind }
func (*Caption) Kind() EventKind         { return CaptionKind }
func (*AttrHTML) Kind() EventKind        { return AttrHTMLKind }
func (*Drawer) Kind() EventKind          { return DrawerKind }
func (*TableRow) Kind() EventKind        { return TableRowKind }
func (*TableHline) Kind() EventKind      { return TableHlineKind }
func (*LineTokens) Kind() EventKind      { return LineTokensKind }
func (*TableFormula) Kind() EventKind    { return TableFormulaKind }
func (*Comment) Kind() EventKind         { return CommentKind }
func (*CommentBlock) Kind() EventKind    { return CommentBlockKind }
func (*LaTeXMacro) Kind() EventKind      { return LaTeXMacroKind }

func (*PreambleEntry) event()   {}
func (*PreambleEnd) event()     {}
func (*Heading) event()         {}
func (*BlockBegin) event()      {}
func (*BlockEnd) event()        {}
func (*SrcBegin) event()        {}
func (*SrcEnd) event()          {}
func (*ListItem) event()        {}
func (*OrderedListItem) event() {}
func (*Name) event()            {}
func (*Caption) event()         {}
func (*AttrHTML) event()        {}
func (*Drawer) event()          {}
func (*TableRow) event()        {}
func (*TableHline) event()      {}
func (*LineTokens) event()      {}
func (*TableFormula) event()    {}
func (*Comment) event()         {}
func (*CommentBlock) event()    {}
func (*LaTeXMacro) event()      {}

// Attr is a single key-value pair.
type Attr struct {
	Key   string
	Value string
}

// Attrs is an ordered list of key-value pairs with unique keys.
type Attrs []Attr

// Get returns the value associated with key.
func (attrs Attrs) Get(key string) (string, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Set replaces the value associated with key
// or appends a new pair if key is not present.
func (attrs *Attrs) Set(key, value string) {
	for i := range *attrs {
		if (*attrs)[i].Key == key {
			(*attrs)[i].Value = value
			return
		}
	}
	*attrs = append(*attrs, Attr{Key: key, Value: value})
}

// Preamble is the set of header directives at the start of a document.
type Preamble struct {
	// Headers holds entries in order of first appearance.
	// Keys are case-folded.
	Headers Attrs
}

// Get returns the value of the header with the given key, ignoring case.
func (p *Preamble) Get(key string) string {
	if p == nil {
		return ""
	}
	v, _ := p.Headers.Get(foldKey(key))
	return v
}

// Title returns the "#+TITLE:" value.
func (p *Preamble) Title() string { return p.Get("title") }

// Author returns the "#+AUTHOR:" value.
func (p *Preamble) Author() string { return p.Get("author") }

// Date returns the "#+DATE:" value.
func (p *Preamble) Date() string { return p.Get("date") }

// Options returns the "#+OPTIONS:" value.
func (p *Preamble) Options() string { return p.Get("options") }
