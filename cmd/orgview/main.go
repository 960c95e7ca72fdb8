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

// orgview serves a directory of Org documents as HTML.
//
// Usage:
//
//	orgview [flags]
//
// The index page lists every ".org" file under the root directory.
// Inline math is rendered to SVG on first request
// with the "latex" and "dvisvgm" programs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"zombiezen.com/go/org"
	"zombiezen.com/go/org/mathcache"
)

type options struct {
	root       string
	addr       string
	configPath string
	mathCache  string
	latex      string
	dvisvgm    string
	verbose    bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "orgview:", err)
		os.Exit(2)
	}
	level := zerolog.InfoLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := run(ctx, opts, &logger); err != nil {
		logger.Error().Err(err).Msg("Server failed")
		os.Exit(1)
	}
}

func parseFlags(args []string, usageOutput io.Writer) (*options, error) {
	opts := new(options)
	flags := pflag.NewFlagSet("orgview", pflag.ContinueOnError)
	flags.SetOutput(usageOutput)
	flags.StringVar(&opts.root, "root", ".", "`dir`ectory of documents to serve")
	flags.StringVar(&opts.addr, "addr", "localhost:8080", "`address` to listen on")
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML pattern configuration `file`")
	flags.StringVar(&opts.mathCache, "math-cache", "", "math cache `dir`ectory (default is in the user cache directory)")
	flags.StringVar(&opts.latex, "latex", "latex", "latex `program`")
	flags.StringVar(&opts.dvisvgm, "dvisvgm", "dvisvgm", "dvisvgm `program`")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every request")
	flags.Usage = func() {
		fmt.Fprintln(usageOutput, "usage: orgview [flags]")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if flags.NArg() > 0 {
		flags.Usage()
		return nil, fmt.Errorf("unexpected arguments")
	}
	return opts, nil
}

func run(ctx context.Context, opts *options, logger *zerolog.Logger) error {
	cfg := org.DefaultConfig()
	if opts.configPath != "" {
		var err error
		cfg, err = org.LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
	}
	root, err := filepath.Abs(opts.root)
	if err != nil {
		return err
	}
	cacheDir := opts.mathCache
	if cacheDir == "" {
		userCache, err := os.UserCacheDir()
		if err != nil {
			return fmt.Errorf("math cache: %w", err)
		}
		cacheDir = filepath.Join(userCache, "orgview", "math")
	}

	srv, err := newServer(&serverOptions{
		FS:     os.DirFS(root),
		Config: cfg,
		Math: &mathcache.Cache{
			Dir: cacheDir,
			Renderer: &mathcache.LaTeXRenderer{
				LaTeX:   opts.latex,
				DVISVGM: opts.dvisvgm,
			},
			Logger: logger,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              opts.addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", opts.addr).Str("root", root).Msg("Serving documents")
		errChan <- httpServer.ListenAndServe()
	}()
	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
