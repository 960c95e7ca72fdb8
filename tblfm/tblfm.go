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

// Package tblfm evaluates spreadsheet-style column formulas over table rows.
//
// A formula assigns an arithmetic expression to a column:
//
//	$3=$1+$2
//	$>=round($2 * 1.19, 2)
//	$4=@-1 + $2
//
// Inside the expression, $N refers to column N of the current row,
// @-1$N to column N of the previous data row,
// and a bare @-1 to the destination column of the previous data row.
// Only arithmetic operators and a small set of functions are available.
package tblfm

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Row is a single table line: either a horizontal rule or a row of cells.
type Row struct {
	Hline bool
	Cells []string
}

// Assignment is a parsed column formula.
type Assignment struct {
	// Column is the 1-based destination column,
	// or zero for the last column ("$>").
	Column int
	// Expr is the expression text after the equals sign.
	Expr string
}

var lhsPattern = regexp.MustCompile(`^\s*(\$>|\$\d+)\s*$`)

// ParseAssignment parses a formula of the form "$N=expr" or "$>=expr".
// Calc options after a semicolon are discarded.
// ok is false if the formula does not assign to a column.
func ParseAssignment(formula string) (a Assignment, ok bool) {
	core, _, _ := strings.Cut(formula, ";")
	lhs, rhs, hasEq := strings.Cut(strings.TrimSpace(core), "=")
	if !hasEq {
		return Assignment{}, false
	}
	lhs = strings.TrimSpace(lhs)
	rhs = strings.TrimSpace(rhs)
	if rhs == "" || !lhsPattern.MatchString(lhs) {
		return Assignment{}, false
	}
	if lhs == "$>" {
		return Assignment{Column: 0, Expr: rhs}, true
	}
	col, err := strconv.Atoi(lhs[1:])
	if err != nil || col <= 0 {
		return Assignment{}, false
	}
	return Assignment{Column: col, Expr: rhs}, true
}

// Width returns the number of columns in the widest row.
func Width(rows []Row) int {
	n := 0
	for _, r := range rows {
		if !r.Hline && len(r.Cells) > n {
			n = len(r.Cells)
		}
	}
	return n
}

// Pad extends every non-rule row to at least n cells with empty strings.
func Pad(rows []Row, n int) {
	for i := range rows {
		r := &rows[i]
		if r.Hline || len(r.Cells) >= n {
			continue
		}
		cells := make([]string, n)
		copy(cells, r.Cells)
		r.Cells = cells
	}
}

// HeaderEnd returns the index of the first horizontal rule
// that has at least one row of cells after it, or -1 if there is none.
// Rows before that index form the table header.
func HeaderEnd(rows []Row) int {
	for i, r := range rows {
		if !r.Hline {
			continue
		}
		for _, rr := range rows[i+1:] {
			if !rr.Hline {
				return i
			}
		}
	}
	return -1
}

// Apply evaluates formulas against rows in place.
//
// Rows are first padded to the widest row
// or the highest explicit destination column, whichever is larger.
// Each formula is applied in order to every data row below the header.
// A formula that fails to parse or evaluate leaves its destination cell
// unchanged. Apply never reports an error.
func Apply(rows []Row, formulas []string) {
	var assignments []Assignment
	width := Width(rows)
	if width == 0 {
		return
	}
	for _, f := range formulas {
		a, ok := ParseAssignment(f)
		if !ok {
			continue
		}
		if a.Column > width {
			width = a.Column
		}
		assignments = append(assignments, a)
	}
	Pad(rows, width)
	if len(assignments) == 0 {
		return
	}

	type compiled struct {
		column int
		expr   node
		err    error
	}
	programs := make([]compiled, len(assignments))
	for i, a := range assignments {
		col := a.Column
		if col == 0 {
			col = width
		}
		expr, err := parse(Rewrite(a.Expr, col))
		programs[i] = compiled{column: col, expr: expr, err: err}
	}

	headerEnd := HeaderEnd(rows)
	var prev []string
	env := make(map[string]float64, 2*width)
	for i := range rows {
		r := &rows[i]
		if r.Hline || i < headerEnd {
			continue
		}
		for col := 1; col <= width; col++ {
			env[cellName(col)] = CoerceNumber(r.Cells[col-1])
			p := 0.0
			if prev != nil {
				p = CoerceNumber(prev[col-1])
			}
			env[prevName(col)] = p
		}
		for _, prog := range programs {
			if prog.err != nil {
				continue
			}
			x, err := prog.expr.eval(env)
			if err != nil {
				continue
			}
			r.Cells[prog.column-1] = FormatNumber(x)
			env[cellName(prog.column)] = CoerceNumber(r.Cells[prog.column-1])
		}
		prev = append(prev[:0:0], r.Cells...)
	}
}

func cellName(col int) string { return "c" + strconv.Itoa(col) }
func prevName(col int) string { return "p" + strconv.Itoa(col) }

var (
	prevRowColumnPattern = regexp.MustCompile(`@-1\$(\d+)`)
	columnPattern        = regexp.MustCompile(`\$(\d+)`)
)

// Rewrite translates formula syntax into evaluator variable names:
// "^" becomes "**", "@-1$K" becomes "pK",
// a bare "@-1" becomes "p<dest>", and "$K" becomes "cK".
func Rewrite(expr string, dest int) string {
	expr = strings.ReplaceAll(expr, "^", "**")
	expr = prevRowColumnPattern.ReplaceAllString(expr, "p$1")
	expr = replaceBarePrevRow(expr, prevName(dest))
	return columnPattern.ReplaceAllString(expr, "c$1")
}

// replaceBarePrevRow replaces "@-1" occurrences
// that are not adjacent to a word character or "$".
func replaceBarePrevRow(expr, repl string) string {
	const ref = "@-1"
	sb := new(strings.Builder)
	last := 0
	for i := 0; i+len(ref) <= len(expr); {
		end := i + len(ref)
		if expr[i:end] == ref &&
			(i == 0 || !isRefNeighbor(expr[i-1])) &&
			(end == len(expr) || !isRefNeighbor(expr[end])) {
			sb.WriteString(expr[last:i])
			sb.WriteString(repl)
			last = end
			i = end
			continue
		}
		i++
	}
	sb.WriteString(expr[last:])
	return sb.String()
}

func isRefNeighbor(c byte) bool {
	return c == '_' || c == '$' ||
		'a' <= c && c <= 'z' ||
		'A' <= c && c <= 'Z' ||
		'0' <= c && c <= '9'
}

// CoerceNumber converts a cell to a number.
// Empty or unparseable cells are zero.
// A comma decimal separator is accepted.
func CoerceNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if x, ok := parseFloat(s); ok {
		return x
	}
	if x, ok := parseFloat(strings.ReplaceAll(s, ",", ".")); ok {
		return x
	}
	return 0
}

func parseFloat(s string) (float64, bool) {
	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && numErr.Err == strconv.ErrRange {
			return x, true
		}
		return 0, false
	}
	return x, true
}

// FormatNumber formats a formula result.
// Values within 1e-12 of an integer are written as integers.
// Other values use the shortest decimal representation,
// switching to exponent notation for very large or small magnitudes.
func FormatNumber(x float64) string {
	if r := math.RoundToEven(x); math.Abs(x-r) < 1e-12 {
		if r == 0 {
			return "0"
		}
		return strconv.FormatFloat(r, 'f', 0, 64)
	}
	e := strconv.FormatFloat(x, 'e', -1, 64)
	if exp, err := strconv.Atoi(e[strings.LastIndexByte(e, 'e')+1:]); err == nil && (exp < -4 || exp >= 16) {
		return e
	}
	return strconv.FormatFloat(x, 'f', -1, 64)
}
