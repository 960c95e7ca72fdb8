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
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func TestHTMLRenderer(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "Paragraphs",
			source: "Hello *world*\nsecond line\n\n\nNext",
			want:   "<p>Hello <strong>world</strong> second line</p>\n<p>Next</p>\n",
		},
		{
			name:   "Escaping",
			source: `a < b & "c" 'd'`,
			want:   "<p>a &lt; b &amp; &quot;c&quot; &#39;d&#39;</p>\n",
		},
		{
			name:   "Headings",
			source: "* Intro :a:b:\n** /Sub/ heading\n******* Deep",
			want: "<h1>Intro<span class=\"tags\">[a, b]</span></h1>\n" +
				"<h2><em>Sub</em> heading</h2>\n" +
				"<h6>Deep</h6>\n",
		},
		{
			name:   "HeadingAnchor",
			source: "text\n#+NAME: top\n* T",
			want:   "<p>text</p>\n<h1 id=\"top\">T</h1>\n",
		},
		{
			name: "SrcBlock",
			source: "* S\n" +
				"#+NAME: code\n" +
				"#+begin_src python :results output\n" +
				"print('<hi>')\n" +
				"\n" +
				"* not a heading\n" +
				"#+end_src\n",
			want: "<h1>S</h1>\n" +
				"<pre class=\"block block-src lang-python\" data-language=\"python\" data-results=\"output\" id=\"code\">" +
				"<code>print(&#39;&lt;hi&gt;&#39;)\n\n* not a heading</code></pre>\n",
		},
		{
			name:   "IncludeInsideSrcBlock",
			source: "#+begin_src org\n#+INCLUDE: \"x.org\"\n#+end_src",
			want: "<pre class=\"block block-src lang-org\" data-language=\"org\">" +
				"<code>#+INCLUDE: &quot;x.org&quot;</code></pre>\n",
		},
		{
			name:   "UnterminatedSrcBlock",
			source: "#+begin_src\nx",
			want:   "<pre class=\"block block-src\"><code>x</code></pre>\n",
		},
		{
			name:   "NestedMarkersInsideVerbatim",
			source: "#+begin_example\n#+begin_src\nx\n#+end_src\n#+end_example",
			want:   "<pre class=\"block block-example\"><code>#+begin_src\nx\n#+end_src</code></pre>\n",
		},
		{
			name: "ResultsLines",
			source: "#+begin_src sh\n" +
				"echo hi\n" +
				"#+end_src\n" +
				"\n" +
				"#+RESULTS:\n" +
				": hi\n" +
				": there\n" +
				"\n" +
				"After",
			want: "<pre class=\"block block-src lang-sh\" data-language=\"sh\"><code>echo hi</code></pre>\n" +
				"<pre class=\"block result\"><code>: hi\n: there</code></pre>\n" +
				"<p>After</p>\n",
		},
		{
			name:   "ResultsExampleBlock",
			source: "text\n\n#+results: run\n#+begin_example\nout\n#+end_example\n",
			want: "<p>text</p>\n" +
				"<pre class=\"block block-example result\"><code>out</code></pre>\n",
		},
		{
			name:   "ResultsCancelledByBlankLine",
			source: "text\n\n#+RESULTS:\n\nplain",
			want:   "<p>text</p>\n<p>plain</p>\n",
		},
		{
			name:   "Verse",
			source: "text\n\n#+begin_verse\nRoses are *red*\n- not a list\n#+end_verse",
			want: "<p>text</p>\n" +
				"<div class=\"verse block block-verse\">\n" +
				"Roses are <strong>red</strong><br />\n" +
				"- not a list\n" +
				"</div>\n",
		},
		{
			name: "TableWithFormulaAndCaption",
			source: "text\n" +
				"#+NAME: tbl\n" +
				"#+CAPTION: Sums\n" +
				"| a | b |\n" +
				"|---+---|\n" +
				"| 1 | 2 |\n" +
				"| 3 | 4 |\n" +
				"#+TBLFM: $3=$1+$2\n" +
				"after\n",
			want: "<p>text</p>\n" +
				"<figure class=\"table\" id=\"tbl\">\n" +
				"<figcaption>Sums</figcaption>\n" +
				"<table>\n" +
				"<thead>\n" +
				"<tr><th>a</th><th>b</th><th></th></tr>\n" +
				"</thead>\n" +
				"<tbody>\n" +
				"<tr><td>1</td><td>2</td><td>3</td></tr>\n" +
				"<tr><td>3</td><td>4</td><td>7</td></tr>\n" +
				"</tbody>\n" +
				"</table>\n" +
				"</figure>\n" +
				"<p>after</p>\n",
		},
		{
			name:   "TableTrailingRule",
			source: "| x |\n| *y* |\n|---|\n",
			want: "<table>\n" +
				"<tbody>\n" +
				"<tr><td>x</td></tr>\n" +
				"<tr><td><strong>y</strong></td></tr>\n" +
				"<tr class=\"hline\"><td colspan=\"1\"></td></tr>\n" +
				"</tbody>\n" +
				"</table>\n",
		},
		{
			name: "Figure",
			source: "text\n\n" +
				"#+NAME: fig1\n" +
				"#+CAPTION: A /cat/\n" +
				"#+ATTR_HTML: :width 300 :class wide\n" +
				"[[file:img/cat.png][Cat]]\n",
			want: "<p>text</p>\n" +
				"<figure id=\"fig1\"><img src=\"/assets/img/cat.png\" alt=\"Cat\" title=\"Cat\" class=\"inline-image wide\" width=\"300\" />" +
				"<figcaption>A <em>cat</em></figcaption></figure>\n",
		},
		{
			name:   "InlineLinksAndImages",
			source: "See [[https://x.org/a.png]] and [[https://go.dev][Go]]",
			want: "<p>See <img src=\"https://x.org/a.png\" alt=\"https://x.org/a.png\" title=\"https://x.org/a.png\" class=\"inline-image\" />" +
				" and <a href=\"https://go.dev\">Go</a></p>\n",
		},
		{
			name:   "AttributesDiscardedByList",
			source: "* H\n#+ATTR_HTML: :class x\n- item\n[[a.png]]",
			want: "<h1>H</h1>\n" +
				"<ul>\n<li>item</li>\n</ul>\n" +
				"<figure><img src=\"/assets/a.png\" alt=\"a.png\" title=\"a.png\" class=\"inline-image\" /></figure>\n",
		},
		{
			name:   "LineComment",
			source: "text\n# hidden <note>\nmore",
			want: "<p>text</p>\n" +
				"<div class=\"comment-wrapper\"><button type=\"button\" class=\"comment-toggle\" data-target=\"comment-1\">Show comment</button>" +
				"<div class=\"comment-box\" id=\"comment-1\" hidden><p>hidden &lt;note&gt;</p>\n</div></div>\n" +
				"<p>more</p>\n",
		},
		{
			name:   "CommentBlock",
			source: "#+begin_comment\na\n#+CAPTION: skipped\n\nb\n#+end_comment\n# second",
			want: "<div class=\"comment-wrapper\"><button type=\"button\" class=\"comment-toggle\" data-target=\"comment-1\">Show comment</button>" +
				"<div class=\"comment-box\" id=\"comment-1\" hidden><p>a</p>\n<p>b</p>\n</div></div>\n" +
				"<div class=\"comment-wrapper\"><button type=\"button\" class=\"comment-toggle\" data-target=\"comment-2\">Show comment</button>" +
				"<div class=\"comment-box\" id=\"comment-2\" hidden><p>second</p>\n</div></div>\n",
		},
		{
			name:   "Noexport",
			source: "* Public\ntext\n* Draft :noexport:\nsecret *x*\n\nmore\n* Next\n",
			want: "<h1>Public</h1>\n" +
				"<p>text</p>\n" +
				"<div class=\"comment-wrapper\"><button type=\"button\" class=\"comment-toggle\" data-target=\"noexport-1\">Show section: Draft</button>" +
				"<div class=\"comment-box\" id=\"noexport-1\" hidden><p>secret <strong>x</strong></p>\n<p>more</p>\n</div></div>\n" +
				"<h1>Next</h1>\n",
		},
		{
			name:   "NoexportAtEnd",
			source: "* Draft :NOEXPORT:\n| not | a table |\n",
			want: "<div class=\"comment-wrapper\"><button type=\"button\" class=\"comment-toggle\" data-target=\"noexport-1\">Show section: Draft</button>" +
				"<div class=\"comment-box\" id=\"noexport-1\" hidden><p>| not | a table |</p>\n</div></div>\n",
		},
		{
			name:   "Lists",
			source: "- a\n- *b*\n\n3. x\n4. y\nplain",
			want: "<ul>\n<li>a</li>\n<li><strong>b</strong></li>\n</ul>\n" +
				"<ol start=\"3\">\n<li>x</li>\n<li>y</li>\n</ol>\n" +
				"<p>plain</p>\n",
		},
		{
			name:   "OrderedListFromOne",
			source: "1. a\n2. b",
			want:   "<ol>\n<li>a</li>\n<li>b</li>\n</ol>\n",
		},
		{
			name:   "Container",
			source: "#+begin_center\nHi\n#+end_center",
			want:   "<div class=\"block block-center\">\n<p>Hi</p>\n</div>\n",
		},
		{
			name:   "UnclosedContainer",
			source: "#+NAME: n\n* H\n#+begin_note\nHi",
			want:   "<h1>H</h1>\n<div class=\"block block-note\">\n<p>Hi</p>\n</div>\n",
		},
		{
			name:   "StrayBlockEnd",
			source: "#+end_center\ntext",
			want:   "<p>text</p>\n",
		},
		{
			name:   "DrawerHidden",
			source: ":PROPERTIES:\n:ID: x\n:END:\ntext\n:END:",
			want:   "<p>text</p>\n",
		},
		{
			name:   "MathWithoutRenderer",
			source: "area $x^2$ and \\(a<b\\)",
			want:   "<p>area <span class=\"math-inline\">\\(x^2\\)</span> and <span class=\"math-inline\">\\(a&lt;b\\)</span></p>\n",
		},
		{
			name:   "PreambleOnly",
			source: "#+TITLE: Nothing\n#+AUTHOR: Nobody\n",
			want:   "",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, _ := new(HTMLRenderer).AppendHTML(nil, SplitLines(test.source))
			if diff := cmp.Diff(test.want, string(got)); diff != "" {
				t.Errorf("Input:\n%s\nOutput (-want +got):\n%s", test.source, diff)
			}
		})
	}
}

type fakeMath struct {
	sources []string
	macros  []string
	err     error
}

func (f *fakeMath) MathURL(source, macros string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sources = append(f.sources, source)
	f.macros = append(f.macros, macros)
	return "/math/" + string(rune('0'+len(f.sources))) + ".svg", nil
}

func TestHTMLRendererMath(t *testing.T) {
	m := new(fakeMath)
	r := &HTMLRenderer{Math: m}
	source := "#+LATEX: \\def\\a{1}\nfirst $x$\n\n#+LATEX: \\def\\b{2}\n#+LATEX: \\def\\a{1}\nsecond \\( y \\)"
	got, _ := r.AppendHTML(nil, SplitLines(source))
	want := "<p>first <img src=\"/math/1.svg\" alt=\"x\" class=\"math-inline\" /></p>\n" +
		"<p>second <img src=\"/math/2.svg\" alt=\"y\" class=\"math-inline\" /></p>\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"x", " y "}, m.sources); diff != "" {
		t.Errorf("math sources (-want +got):\n%s", diff)
	}
	wantMacros := []string{`\def\a{1}`, "\\def\\a{1}\n\\def\\b{2}"}
	if diff := cmp.Diff(wantMacros, m.macros); diff != "" {
		t.Errorf("math macros (-want +got):\n%s", diff)
	}
}

func TestHTMLRendererMathError(t *testing.T) {
	logBuf := new(bytes.Buffer)
	logger := zerolog.New(logBuf)
	r := &HTMLRenderer{
		Math:   &fakeMath{err: errors.New("latex exploded")},
		Logger: &logger,
	}
	got, _ := r.AppendHTML(nil, []string{"see $e$"})
	want := "<p>see <span class=\"math-inline\">\\(e\\)</span></p>\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
	if !strings.Contains(logBuf.String(), "latex exploded") {
		t.Errorf("log = %q; want it to mention the math error", logBuf.String())
	}
}

func TestHTMLRendererLogsIgnoredMarkers(t *testing.T) {
	logBuf := new(bytes.Buffer)
	logger := zerolog.New(logBuf).Level(zerolog.DebugLevel)
	r := &HTMLRenderer{Logger: &logger}
	r.AppendHTML(nil, []string{"#+end_quote", ":END:"})
	for _, msg := range []string{"Ignoring unmatched block end", "Ignoring drawer end without start"} {
		if !strings.Contains(logBuf.String(), msg) {
			t.Errorf("log = %q; want %q", logBuf.String(), msg)
		}
	}
}

func TestHTMLRendererAssetPrefix(t *testing.T) {
	r := &HTMLRenderer{AssetPrefix: "/static/"}
	got, _ := r.AppendHTML(nil, []string{"[[file:/pics/a.svg]]"})
	want := "<figure><img src=\"/static/pics/a.svg\" alt=\"file:/pics/a.svg\" title=\"file:/pics/a.svg\" class=\"inline-image\" /></figure>\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
}

func TestHTMLRendererConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte("verbatim_blocks: [src, example, ascii]\n"))
	if err != nil {
		t.Fatal(err)
	}
	r := &HTMLRenderer{Config: cfg}
	got, _ := r.AppendHTML(nil, SplitLines("#+begin_ascii\n*raw*\n#+end_ascii\n#+begin_quote\n*q*\n#+end_quote"))
	want := "<pre class=\"block block-ascii\"><code>*raw*</code></pre>\n" +
		"<div class=\"block block-quote\">\n<p><strong>q</strong></p>\n</div>\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
}

func TestRenderHTMLPreamble(t *testing.T) {
	buf := new(bytes.Buffer)
	p, err := RenderHTML(buf, SplitLines("#+TITLE: My Doc\n#+options: toc:nil\n\nBody"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := p.Title(), "My Doc"; got != want {
		t.Errorf("Title() = %q; want %q", got, want)
	}
	if got, want := p.Options(), "toc:nil"; got != want {
		t.Errorf("Options() = %q; want %q", got, want)
	}
	if got, want := buf.String(), "<p>Body</p>\n"; got != want {
		t.Errorf("output = %q; want %q", got, want)
	}
}

type errWriter struct{ err error }

func (w errWriter) Write(p []byte) (int, error) { return 0, w.err }

func TestRenderWriteError(t *testing.T) {
	wantErr := errors.New("disk full")
	_, err := new(HTMLRenderer).Render(errWriter{wantErr}, []string{"x"})
	if !errors.Is(err, wantErr) {
		t.Errorf("Render(...) error = %v; want %v", err, wantErr)
	}
	_, err = new(HTMLRenderer).RenderDocument(errWriter{wantErr}, []string{"x"})
	if !errors.Is(err, wantErr) {
		t.Errorf("RenderDocument(...) error = %v; want %v", err, wantErr)
	}
}

func BenchmarkRenderHTML(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("* Section :tag:\n")
		sb.WriteString("Some *bold* and /italic/ text with a [[https://example.com][link]].\n\n")
		sb.WriteString("#+begin_src go\nfmt.Println(\"hi\")\n#+end_src\n\n")
		sb.WriteString("| a | b |\n|---+---|\n| 1 | 2 |\n#+TBLFM: $3=$1+$2\n\n")
		sb.WriteString("- item one\n- item two\n\n")
	}
	lines := SplitLines(sb.String())
	r := new(HTMLRenderer)
	b.ResetTimer()

	var buf []byte
	for i := 0; i < b.N; i++ {
		buf, _ = r.AppendHTML(buf[:0], lines)
	}
}
