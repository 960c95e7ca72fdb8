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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"zombiezen.com/go/org/internal/normhtml"
)

func TestNormalizeURI(t *testing.T) {
	tests := []struct {
		s    string
		want string
	}{
		{"https://example.com/a?b=c#d", "https://example.com/a?b=c#d"},
		{"a b", "a%20b"},
		{"café", "caf%C3%A9"},
		{"100%", "100%25"},
		{"x%2Fy", "x%2Fy"},
		{"<script>", "%3Cscript%3E"},
	}
	for _, test := range tests {
		if got := NormalizeURI(test.s); got != test.want {
			t.Errorf("NormalizeURI(%q) = %q; want %q", test.s, got, test.want)
		}
	}
}

func TestNormalizeImageSource(t *testing.T) {
	tests := []struct {
		dest string
		want string
	}{
		{"img/a.png", "/assets/img/a.png"},
		{"file:img/a.png", "/assets/img/a.png"},
		{"file:///abs/a.png", "/assets/abs/a.png"},
		{"/rooted/a.png", "/rooted/a.png"},
		{"https://example.com/a.png", "https://example.com/a.png"},
		{"data:image/png;base64,AAAA", "data:image/png;base64,AAAA"},
	}
	for _, test := range tests {
		if got := NormalizeImageSource(test.dest, DefaultAssetPrefix); got != test.want {
			t.Errorf("NormalizeImageSource(%q, %q) = %q; want %q", test.dest, DefaultAssetPrefix, got, test.want)
		}
	}
}

func TestIsImageTarget(t *testing.T) {
	tests := []struct {
		dest string
		want bool
	}{
		{"a.png", true},
		{"dir/b.JPEG", true},
		{"https://example.com/c.svg?v=2", true},
		{"d.webp#frag", true},
		{"e.bmp", true},
		{"f.gif", true},
		{"g.jpg", true},
		{"page.html", false},
		{"https://example.com/png", false},
		{"notes.png.txt", false},
	}
	for _, test := range tests {
		if got := IsImageTarget(test.dest); got != test.want {
			t.Errorf("IsImageTarget(%q) = %t; want %t", test.dest, got, test.want)
		}
	}
}

func TestAppendInline(t *testing.T) {
	r := new(HTMLRenderer)
	got := r.AppendInline([]byte("> "), Tokenize("=a<b= and [[https://x.org/?q=1&r=2][x & y]]"), "")
	want := `> <code>a&lt;b</code> and <a href="https://x.org/?q=1&amp;r=2">x &amp; y</a>`
	if string(got) != want {
		t.Errorf("AppendInline(...) = %q; want %q", got, want)
	}
}

func TestWriteDocument(t *testing.T) {
	p := &Preamble{Headers: Attrs{
		{Key: "title", Value: "A & B"},
		{Key: "author", Value: "Me"},
		{Key: "options", Value: "toc:nil"},
		{Key: "language", Value: "en"},
		{Key: "email", Value: ""},
	}}
	buf := new(bytes.Buffer)
	if err := WriteDocument(buf, p, []byte("<p>x</p>\n")); err != nil {
		t.Fatal(err)
	}
	want := "<!doctype html>\n" +
		"<html lang=\"en\">\n" +
		"<head>\n" +
		"  <meta charset=\"utf-8\" />\n" +
		"  <title>A &amp; B</title>\n" +
		"  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1\" />\n" +
		"  <meta name=\"author\" content=\"Me\" />\n" +
		"  <!-- org-options: toc:nil -->\n" +
		"  <meta name=\"x-org-language\" content=\"en\" />\n" +
		"  <link rel=\"stylesheet\" href=\"/static/org.css\" />\n" +
		"  <script src=\"/static/viewer.js\" defer></script>\n" +
		"</head>\n" +
		"<body>\n" +
		"<p>x</p>\n" +
		"</body>\n" +
		"</html>\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("WriteDocument(...) (-want +got):\n%s", diff)
	}
}

func TestWriteDocumentDefaultTitle(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := WriteDocument(buf, nil, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "<title>Org Export</title>") {
		t.Errorf("WriteDocument(nil preamble) = %q; want default title", buf.String())
	}
	if strings.Contains(buf.String(), `name="author"`) {
		t.Errorf("WriteDocument(nil preamble) = %q; want no author", buf.String())
	}
}

func TestRenderDocument(t *testing.T) {
	buf := new(bytes.Buffer)
	source := "#+TITLE: Doc\n#+DATE: 2023-01-02\n\n* Hello\nWorld"
	if _, err := new(HTMLRenderer).RenderDocument(buf, SplitLines(source)); err != nil {
		t.Fatal(err)
	}
	want := `<!DOCTYPE html><html lang="en"><head>` +
		`<meta charset="utf-8"><title>Doc</title>` +
		`<meta content="width=device-width, initial-scale=1" name="viewport">` +
		`<meta content="2023-01-02" name="date">` +
		`<link href="/static/org.css" rel="stylesheet">` +
		`<script defer src="/static/viewer.js"></script>` +
		`</head><body><h1>Hello</h1><p>World</p></body></html>`
	got := string(normhtml.NormalizeHTML(buf.Bytes()))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RenderDocument(...) (-want +got):\n%s", diff)
	}
}
