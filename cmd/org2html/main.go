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

// org2html converts an Org document to HTML.
//
// Usage:
//
//	org2html [flags] [input]
//
// If no input is given or the input is "-", the document is read from stdin.
// Include directives are expanded only for file inputs.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/term"
	"zombiezen.com/go/org"
	"zombiezen.com/go/org/format"
	"zombiezen.com/go/org/include"
	"zombiezen.com/go/org/mathcache"
)

type options struct {
	configPath string
	output     string
	bodyOnly   bool
	mathCache  string
	mathURL    string
	assets     string
	events     bool
	tokens     bool
	verbose    bool

	input string
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "org2html:", err)
		os.Exit(2)
	}
	logger := newLogger(os.Stderr, opts.verbose)
	if err := run(opts, os.Stdin, os.Stdout, &logger); err != nil {
		logger.Error().Err(err).Msg("Conversion failed")
		os.Exit(1)
	}
}

func parseFlags(args []string, usageOutput io.Writer) (*options, error) {
	opts := new(options)
	flags := pflag.NewFlagSet("org2html", pflag.ContinueOnError)
	flags.SetOutput(usageOutput)
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML pattern configuration `file`")
	flags.StringVarP(&opts.output, "output", "o", "", "write HTML to `file` instead of stdout")
	flags.BoolVar(&opts.bodyOnly, "body-only", false, "write the HTML fragment without the page wrapper")
	flags.StringVar(&opts.mathCache, "math-cache", "", "store inline math snippets in `dir` and link them as images")
	flags.StringVar(&opts.mathURL, "math-url", mathcache.DefaultURLPrefix, "URL `prefix` for math images")
	flags.StringVar(&opts.assets, "assets", org.DefaultAssetPrefix, "URL `prefix` for relative image paths")
	flags.BoolVar(&opts.events, "events", false, "print the classifier events instead of HTML")
	flags.BoolVar(&opts.tokens, "tokens", false, "include inline tokens in --events output")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log debugging information")
	flags.Usage = func() {
		fmt.Fprintln(usageOutput, "usage: org2html [flags] [input]")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	switch flags.NArg() {
	case 0:
		opts.input = "-"
	case 1:
		opts.input = flags.Arg(0)
	default:
		flags.Usage()
		return nil, fmt.Errorf("at most one input allowed")
	}
	return opts, nil
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func run(opts *options, stdin io.Reader, stdout io.Writer, logger *zerolog.Logger) error {
	cfg := org.DefaultConfig()
	if opts.configPath != "" {
		var err error
		cfg, err = org.LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
	}
	lines, err := readInput(opts.input, stdin, cfg, logger)
	if err != nil {
		return err
	}

	if opts.events {
		return format.Events(stdout, lines, &format.Options{
			Config: cfg,
			Tokens: opts.tokens,
			Color:  opts.output == "" && isTerminal(stdout),
		})
	}

	r := &org.HTMLRenderer{
		Config:      cfg,
		AssetPrefix: opts.assets,
		Logger:      logger,
	}
	if opts.mathCache != "" {
		r.Math = &mathcache.Cache{
			Dir:       opts.mathCache,
			URLPrefix: opts.mathURL,
			Logger:    logger,
		}
	}
	buf := new(bytes.Buffer)
	var preamble *org.Preamble
	if opts.bodyOnly {
		preamble, err = r.Render(buf, lines)
	} else {
		preamble, err = r.RenderDocument(buf, lines)
	}
	if err != nil {
		return err
	}
	logger.Debug().
		Str("title", preamble.Title()).
		Int("lines", len(lines)).
		Int("bytes", buf.Len()).
		Msg("Rendered document")

	if opts.output == "" {
		_, err := stdout.Write(buf.Bytes())
		return err
	}
	if err := renameio.WriteFile(opts.output, buf.Bytes(), 0o666); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// readInput returns the lines of the named input.
// File inputs have their includes expanded relative to the file's directory.
// Includes may not reach outside that directory.
func readInput(name string, stdin io.Reader, cfg *org.Config, logger *zerolog.Logger) ([]string, error) {
	if name == "-" {
		lines, err := org.ReadLines(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return lines, nil
	}
	abs, err := filepath.Abs(name)
	if err != nil {
		return nil, err
	}
	resolver := &include.Resolver{
		FS:     os.DirFS(filepath.Dir(abs)),
		Config: cfg,
		Logger: logger,
	}
	lines, err := resolver.Lines(filepath.Base(abs))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return lines, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
