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

package main

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"zombiezen.com/go/org"
	"zombiezen.com/go/org/include"
	"zombiezen.com/go/org/mathcache"
)

var (
	//go:embed templates
	templateFiles embed.FS

	//go:embed static
	staticFiles embed.FS
)

type serverOptions struct {
	// FS holds the documents and their assets.
	FS     fs.FS
	Config *org.Config
	// Math renders inline math. If nil, math is shown as source text.
	Math   *mathcache.Cache
	Logger *zerolog.Logger
}

type server struct {
	fsys   fs.FS
	cfg    *org.Config
	math   *mathcache.Cache
	logger *zerolog.Logger
	tmpl   *template.Template
	mux    *http.ServeMux
}

func newServer(opts *serverOptions) (*server, error) {
	tmpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, err
	}
	s := &server{
		fsys:   opts.FS,
		cfg:    opts.Config,
		math:   opts.Math,
		logger: opts.Logger,
		tmpl:   tmpl,
		mux:    http.NewServeMux(),
	}
	if s.cfg == nil {
		s.cfg = org.DefaultConfig()
	}
	if s.logger == nil {
		l := zerolog.Nop()
		s.logger = &l
	}
	s.mux.HandleFunc("GET /{$}", s.index)
	s.mux.HandleFunc("GET /view/{path...}", s.view)
	s.mux.HandleFunc("GET /math/{file}", s.mathImage)
	s.mux.HandleFunc("GET /assets/{path...}", s.asset)
	s.mux.Handle("GET /static/", http.FileServerFS(staticFiles))
	return s, nil
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", rec.status).
		Dur("duration", time.Since(start)).
		Msg("Request")
}

type pageData struct {
	Title  string
	Author string
	Date   string
	Tree   []*treeNode
	Body   template.HTML
}

func (s *server) index(w http.ResponseWriter, r *http.Request) {
	tree, err := buildTree(s.fsys)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.page(w, r, "index.html", &pageData{
		Title: "Documents",
		Tree:  tree,
	})
}

func (s *server) view(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("path")
	if !fs.ValidPath(name) || isHidden(name) || path.Ext(name) != ".org" {
		http.NotFound(w, r)
		return
	}
	if info, err := fs.Stat(s.fsys, name); err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	resolver := &include.Resolver{
		FS:     s.fsys,
		Config: s.cfg,
		Logger: s.logger,
	}
	lines, err := resolver.Lines(name)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	renderer := &org.HTMLRenderer{
		Config: s.cfg,
		Logger: s.logger,
	}
	if s.math != nil {
		renderer.Math = s.math
	}
	body, preamble := renderer.AppendHTML(nil, lines)

	tree, err := buildTree(s.fsys)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	markActive(tree, name)
	title := strings.TrimSpace(preamble.Title())
	if title == "" {
		title = path.Base(name)
	}
	s.page(w, r, "view.html", &pageData{
		Title:  title,
		Author: preamble.Author(),
		Date:   preamble.Date(),
		Tree:   tree,
		// Rendered output escapes all document text.
		Body: template.HTML(body),
	})
}

func (s *server) mathImage(w http.ResponseWriter, r *http.Request) {
	digest, ok := strings.CutSuffix(r.PathValue("file"), ".svg")
	if !ok || s.math == nil || !mathcache.ValidDigest(digest) {
		http.NotFound(w, r)
		return
	}
	svgPath, err := s.math.SVG(r.Context(), digest)
	if errors.Is(err, mathcache.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, svgPath)
}

// asset serves a file from the document tree.
// Hidden files and paths leaving the tree are not served.
func (s *server) asset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("path")
	if !fs.ValidPath(name) || name == "." || isHidden(name) {
		http.NotFound(w, r)
		return
	}
	info, err := fs.Stat(s.fsys, name)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, s.fsys, name)
}

func (s *server) page(w http.ResponseWriter, r *http.Request, name string, data *pageData) {
	buf := new(bytes.Buffer)
	if err := s.tmpl.ExecuteTemplate(buf, name, data); err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// isHidden reports whether any element of a slash-separated path
// starts with a dot.
func isHidden(name string) bool {
	for _, elem := range strings.Split(name, "/") {
		if strings.HasPrefix(elem, ".") && elem != "." {
			return true
		}
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}
