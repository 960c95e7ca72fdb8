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
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is a typed span of inline text produced by [Tokenize].
type Token struct {
	Kind TokenKind
	// Text is the span's content without its delimiters.
	// For [LinkToken], Text packs the destination and description
	// separated by a NUL byte. Use [Token.Link] to unpack it.
	Text string
}

// TokenKind is an enumeration of values for [Token.Kind].
type TokenKind uint8

const (
	TextToken TokenKind = 1 + iota
	BoldToken
	ItalicToken
	CodeToken
	MathToken
	LinkToken
)

// String returns the kind's name as used in event dumps.
func (kind TokenKind) String() string {
	switch kind {
	case TextToken:
		return "plaintext"
	case BoldToken:
		return "bold"
	case ItalicToken:
		return "italic"
	case CodeToken:
		return "code"
	case MathToken:
		return "math-inline"
	case LinkToken:
		return "link"
	default:
		return "TokenKind(" + strconv.Itoa(int(kind)) + ")"
	}
}

const linkSeparator = "\x00"

// Link returns the destination and description of a [LinkToken].
// If the token has no separate description, desc is the destination.
func (tok Token) Link() (url, desc string) {
	url, desc, ok := strings.Cut(tok.Text, linkSeparator)
	if !ok {
		desc = url
	}
	url = strings.TrimSpace(url)
	desc = strings.TrimSpace(desc)
	if desc == "" {
		desc = url
	}
	return url, desc
}

func linkText(url, desc string) string {
	return url + linkSeparator + desc
}

// delimiterKinds maps emphasis delimiters to their token kinds.
var delimiterKinds = map[byte]TokenKind{
	'*': BoldToken,
	'/': ItalicToken,
	'=': CodeToken,
	'~': CodeToken,
}

const (
	openingPunctuation = "([{\"'"
	closingPunctuation = ".,;:!?)]}\"'"
)

// Tokenize splits a single line of text into inline spans.
// It never fails: unterminated constructs fall back to plain text.
// Emphasis does not nest.
func Tokenize(line string) []Token {
	var tokens []Token
	var plain strings.Builder
	flush := func() {
		if plain.Len() > 0 {
			tokens = append(tokens, Token{Kind: TextToken, Text: plain.String()})
			plain.Reset()
		}
	}

	for i := 0; i < len(line); {
		if strings.HasPrefix(line[i:], `\(`) {
			if end := strings.Index(line[i+2:], `\)`); end >= 0 {
				flush()
				tokens = append(tokens, Token{Kind: MathToken, Text: line[i+2 : i+2+end]})
				i += 2 + end + 2
				continue
			}
		}

		c := line[i]
		if c == '$' {
			if strings.HasPrefix(line[i+1:], "$") {
				if end := strings.Index(line[i+2:], "$$"); end >= 0 {
					// Display math stays literal.
					n := 2 + end + 2
					plain.WriteString(line[i : i+n])
					i += n
					continue
				}
			}
			if end := strings.IndexByte(line[i+1:], '$'); end >= 0 {
				if inner := line[i+1 : i+1+end]; strings.TrimSpace(inner) != "" {
					flush()
					tokens = append(tokens, Token{Kind: MathToken, Text: inner})
					i += 1 + end + 1
					continue
				}
			}
			plain.WriteByte('$')
			i++
			continue
		}

		if strings.HasPrefix(line[i:], "[[") {
			if end := strings.Index(line[i+2:], "]]"); end >= 0 {
				inner := line[i+2 : i+2+end]
				url, desc, ok := strings.Cut(inner, "][")
				if !ok {
					desc = url
				}
				flush()
				tokens = append(tokens, Token{
					Kind: LinkToken,
					Text: linkText(strings.TrimSpace(url), strings.TrimSpace(desc)),
				})
				i += 2 + end + 2
				continue
			}
		}

		if kind, isDelim := delimiterKinds[c]; isDelim && canOpenEmphasis(line, i) {
			closed := false
			for j := i + 1; j < len(line); j++ {
				if line[j] == c && canCloseEmphasis(line, j) {
					flush()
					tokens = append(tokens, Token{Kind: kind, Text: line[i+1 : j]})
					i = j + 1
					closed = true
					break
				}
			}
			if closed {
				continue
			}
		}

		plain.WriteByte(c)
		i++
	}
	flush()
	return tokens
}

// canOpenEmphasis reports whether the delimiter at line[pos] may open a span.
func canOpenEmphasis(line string, pos int) bool {
	if pos == 0 && strings.HasPrefix(line, "* ") {
		// Heading marker.
		return false
	}
	if pos+1 >= len(line) {
		return false
	}
	if next, _ := utf8.DecodeRuneInString(line[pos+1:]); unicode.IsSpace(next) {
		return false
	}
	if pos > 0 {
		prev, _ := utf8.DecodeLastRuneInString(line[:pos])
		if !unicode.IsSpace(prev) && !strings.ContainsRune(openingPunctuation, prev) {
			return false
		}
	}
	return true
}

// canCloseEmphasis reports whether the delimiter at line[pos] may close a span.
func canCloseEmphasis(line string, pos int) bool {
	if pos == 0 {
		return false
	}
	if prev, _ := utf8.DecodeLastRuneInString(line[:pos]); unicode.IsSpace(prev) {
		return false
	}
	if pos+1 < len(line) {
		next, _ := utf8.DecodeRuneInString(line[pos+1:])
		if !unicode.IsSpace(next) && !strings.ContainsRune(closingPunctuation, next) {
			return false
		}
	}
	return true
}
