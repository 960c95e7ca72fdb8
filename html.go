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
	"io"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/atom"
)

// DefaultAssetPrefix is the URL prefix for relative image paths
// used when [HTMLRenderer.AssetPrefix] is empty.
const DefaultAssetPrefix = "/assets/"

// AppendInline appends the HTML for a tokenized line to dst
// and returns the resulting byte slice.
// Math tokens are rendered with r.Math using the given macro preamble.
func (r *HTMLRenderer) AppendInline(dst []byte, tokens []Token, macros string) []byte {
	state := &renderState{HTMLRenderer: r, dst: dst, macros: macros}
	state.inline(tokens)
	return state.dst
}

func (r *renderState) inline(tokens []Token) {
	for _, tok := range tokens {
		switch tok.Kind {
		case BoldToken:
			r.openTag(atom.Strong)
			r.dst = escapeHTML(r.dst, tok.Text)
			r.closeTag(atom.Strong)
		case ItalicToken:
			r.openTag(atom.Em)
			r.dst = escapeHTML(r.dst, tok.Text)
			r.closeTag(atom.Em)
		case CodeToken:
			r.openTag(atom.Code)
			r.dst = escapeHTML(r.dst, tok.Text)
			r.closeTag(atom.Code)
		case MathToken:
			r.math(tok.Text)
		case LinkToken:
			dest, desc := tok.Link()
			if IsImageTarget(dest) {
				r.image(Attrs{
					{Key: "src", Value: r.imageSource(dest)},
					{Key: "alt", Value: desc},
					{Key: "title", Value: desc},
					{Key: "class", Value: "inline-image"},
				})
				continue
			}
			r.openTagAttr(atom.A)
			r.attr("href", NormalizeURI(dest))
			r.dst = append(r.dst, '>')
			r.dst = escapeHTML(r.dst, desc)
			r.closeTag(atom.A)
		default:
			r.dst = escapeHTML(r.dst, tok.Text)
		}
	}
}

func (r *renderState) math(source string) {
	alt := strings.TrimSpace(source)
	if alt == "" {
		alt = "math"
	}
	if r.Math != nil {
		src, err := r.Math.MathURL(source, r.macros)
		if err == nil {
			r.image(Attrs{
				{Key: "src", Value: src},
				{Key: "alt", Value: alt},
				{Key: "class", Value: "math-inline"},
			})
			return
		}
		r.logger().Warn().Err(err).Str("math", source).Msg("Math image unavailable")
	}
	r.openTagAttr(atom.Span)
	r.attr("class", "math-inline")
	r.dst = append(r.dst, '>')
	r.dst = escapeHTML(r.dst, `\(`+source+`\)`)
	r.closeTag(atom.Span)
}

// image writes an <img> element with the given attributes in order.
// Attributes with empty values are omitted.
func (r *renderState) image(attrs Attrs) {
	r.openTagAttr(atom.Img)
	for _, a := range attrs {
		if a.Value != "" {
			r.attr(a.Key, a.Value)
		}
	}
	r.dst = append(r.dst, " />"...)
}

func (r *renderState) imageSource(dest string) string {
	prefix := r.AssetPrefix
	if prefix == "" {
		prefix = DefaultAssetPrefix
	}
	return NormalizeImageSource(dest, prefix)
}

// NormalizeImageSource converts an image link destination into a web URL.
// A "file:" scheme is removed along with any leading slashes after it.
// Absolute URLs and rooted paths are returned unchanged.
// Any other path is treated as relative to the document root
// and is joined to prefix.
func NormalizeImageSource(dest, prefix string) string {
	if rest, ok := strings.CutPrefix(dest, "file:"); ok {
		dest = strings.TrimLeft(rest, "/")
	}
	if strings.HasPrefix(dest, "/") {
		return dest
	}
	if u, err := url.Parse(dest); err == nil && u.Scheme != "" {
		return dest
	}
	return prefix + dest
}

var imageExtensions = []string{
	".png",
	".jpg",
	".jpeg",
	".gif",
	".svg",
	".webp",
	".bmp",
}

// IsImageTarget reports whether a link destination names an image file,
// judging by its extension.
// The query string and fragment are ignored.
func IsImageTarget(dest string) bool {
	base, _, _ := strings.Cut(dest, "?")
	base, _, _ = strings.Cut(base, "#")
	base = strings.ToLower(base)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(base, ext) {
			return true
		}
	}
	return false
}

// WriteDocument writes a complete HTML page around a rendered body.
// The page title comes from the preamble, falling back to "Org Export".
// Author and date become <meta> elements,
// options are recorded in a comment,
// and any other header is written as an "x-org-" <meta> element.
func WriteDocument(w io.Writer, p *Preamble, body []byte) error {
	var dst []byte
	dst = append(dst, "<!doctype html>\n<html lang=\"en\">\n<head>\n  <meta charset=\"utf-8\" />\n  <title>"...)
	title := strings.TrimSpace(p.Title())
	if title == "" {
		title = "Org Export"
	}
	dst = escapeHTML(dst, title)
	dst = append(dst, "</title>\n  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1\" />\n"...)
	meta := func(name, content string) {
		dst = append(dst, `  <meta name="`...)
		dst = escapeHTML(dst, name)
		dst = append(dst, `" content="`...)
		dst = escapeHTML(dst, content)
		dst = append(dst, "\" />\n"...)
	}
	if author := strings.TrimSpace(p.Author()); author != "" {
		meta("author", author)
	}
	if date := strings.TrimSpace(p.Date()); date != "" {
		meta("date", date)
	}
	if opts := strings.TrimSpace(p.Options()); opts != "" {
		dst = append(dst, "  <!-- org-options: "...)
		dst = escapeHTML(dst, opts)
		dst = append(dst, " -->\n"...)
	}
	if p != nil {
		for _, h := range p.Headers {
			key := strings.TrimSpace(h.Key)
			value := strings.TrimSpace(h.Value)
			switch key {
			case "title", "author", "date", "options", "":
				continue
			}
			if value != "" {
				meta("x-org-"+key, value)
			}
		}
	}
	dst = append(dst, "  <link rel=\"stylesheet\" href=\"/static/org.css\" />\n"+
		"  <script src=\"/static/viewer.js\" defer></script>\n"+
		"</head>\n<body>\n"...)
	dst = append(dst, body...)
	dst = append(dst, "</body>\n</html>\n"...)
	if _, err := w.Write(dst); err != nil {
		return fmt.Errorf("write html document: %w", err)
	}
	return nil
}

// escapeHTML appends the HTML-escaped version of a string to a byte slice.
func escapeHTML(dst []byte, src string) []byte {
	verbatimStart := 0
	for i := 0; i < len(src); i++ {
		var esc string
		switch src[i] {
		case '&':
			esc = "&amp;"
		case '\'':
			// "&#39;" is shorter than "&apos;" and apos was not in HTML until HTML5.
			esc = "&#39;"
		case '<':
			esc = "&lt;"
		case '>':
			esc = "&gt;"
		case '"':
			esc = "&quot;"
		default:
			continue
		}
		dst = append(dst, src[verbatimStart:i]...)
		dst = append(dst, esc...)
		verbatimStart = i + 1
	}
	return append(dst, src[verbatimStart:]...)
}

// NormalizeURI percent-encodes any characters in a string
// that are not reserved or unreserved URI characters.
// This is used for transforming link destinations
// into strings suitable for href attributes.
func NormalizeURI(s string) string {
	// RFC 3986 reserved and unreserved characters.
	const safeSet = `;/?:@&=+$,-_.!~*'()#`

	sb := new(strings.Builder)
	sb.Grow(len(s))
	skip := 0
	var buf [utf8.UTFMax]byte
	for i, c := range s {
		if skip > 0 {
			skip--
			sb.WriteRune(c)
			continue
		}
		switch {
		case c == '%':
			if i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
				skip = 2
				sb.WriteByte('%')
			} else {
				sb.WriteString("%25")
			}
		case (c < 0x80 && isASCIIAlnum(byte(c))) || strings.ContainsRune(safeSet, c):
			sb.WriteRune(c)
		default:
			n := utf8.EncodeRune(buf[:], c)
			for _, b := range buf[:n] {
				sb.WriteByte('%')
				sb.WriteByte(urlHexDigit(b >> 4))
				sb.WriteByte(urlHexDigit(b & 0x0f))
			}
		}
	}
	return sb.String()
}

func isASCIIAlnum(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}

func isHex(c byte) bool {
	return 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F' || '0' <= c && c <= '9'
}

func urlHexDigit(x byte) byte {
	switch {
	case x < 0xa:
		return '0' + x
	case x < 0x10:
		return 'A' + x - 0xa
	default:
		panic("out of bounds")
	}
}
