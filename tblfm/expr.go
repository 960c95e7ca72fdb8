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

package tblfm

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Grammar:
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/" | "%") unary }
//	unary   = ("+" | "-") unary | power
//	power   = primary [ "**" unary ]
//	primary = number | name | name "(" [ expr { "," expr } ] ")" | "(" expr ")"
//
// Exponentiation binds tighter than a unary sign on its left
// and is right-associative.

// Eval parses and evaluates an expression that has already been rewritten
// with [Rewrite], looking up variables in env.
func Eval(expr string, env map[string]float64) (float64, error) {
	n, err := parse(expr)
	if err != nil {
		return 0, err
	}
	return n.eval(env)
}

type node interface {
	eval(env map[string]float64) (float64, error)
}

type (
	numberNode float64
	nameNode   string
	unaryNode  struct {
		op byte
		x  node
	}
	binaryNode struct {
		op   string
		x, y node
	}
	callNode struct {
		fn   string
		args []node
	}
)

// functions is the complete set of callable names.
var functions = map[string]func(args []float64) (float64, error){
	"abs":   unaryFunc(math.Abs),
	"float": unaryFunc(func(x float64) float64 { return x }),
	"int": func(args []float64) (float64, error) {
		if len(args) != 1 {
			return 0, errArgCount
		}
		if math.IsInf(args[0], 0) || math.IsNaN(args[0]) {
			return 0, errors.New("cannot convert to integer")
		}
		return math.Trunc(args[0]), nil
	},
	"sqrt": func(args []float64) (float64, error) {
		if len(args) != 1 {
			return 0, errArgCount
		}
		if args[0] < 0 {
			return 0, errors.New("math domain error")
		}
		return math.Sqrt(args[0]), nil
	},
	"round": func(args []float64) (float64, error) {
		switch len(args) {
		case 1:
			return math.RoundToEven(args[0]), nil
		case 2:
			scale := math.Pow(10, math.Trunc(args[1]))
			return math.RoundToEven(args[0]*scale) / scale, nil
		default:
			return 0, errArgCount
		}
	},
	"min": extremum(func(x, best float64) bool { return x < best }),
	"max": extremum(func(x, best float64) bool { return x > best }),
}

var errArgCount = errors.New("wrong number of arguments")

func unaryFunc(f func(float64) float64) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) {
		if len(args) != 1 {
			return 0, errArgCount
		}
		return f(args[0]), nil
	}
}

func extremum(better func(x, best float64) bool) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) {
		if len(args) < 2 {
			return 0, errArgCount
		}
		best := args[0]
		for _, x := range args[1:] {
			if better(x, best) {
				best = x
			}
		}
		return best, nil
	}
}

func (n numberNode) eval(env map[string]float64) (float64, error) {
	return float64(n), nil
}

func (n nameNode) eval(env map[string]float64) (float64, error) {
	x, ok := env[string(n)]
	if !ok {
		return 0, fmt.Errorf("undefined name %q", string(n))
	}
	return x, nil
}

func (n *unaryNode) eval(env map[string]float64) (float64, error) {
	x, err := n.x.eval(env)
	if err != nil {
		return 0, err
	}
	if n.op == '-' {
		return -x, nil
	}
	return x, nil
}

func (n *binaryNode) eval(env map[string]float64) (float64, error) {
	x, err := n.x.eval(env)
	if err != nil {
		return 0, err
	}
	y, err := n.y.eval(env)
	if err != nil {
		return 0, err
	}
	var z float64
	switch n.op {
	case "+":
		z = x + y
	case "-":
		z = x - y
	case "*":
		z = x * y
	case "/":
		if y == 0 {
			return 0, errors.New("division by zero")
		}
		z = x / y
	case "%":
		if y == 0 {
			return 0, errors.New("modulo by zero")
		}
		// Result takes the sign of the divisor.
		z = math.Mod(x, y)
		if z != 0 && (z < 0) != (y < 0) {
			z += y
		}
	case "**":
		if x == 0 && y < 0 {
			return 0, errors.New("zero to a negative power")
		}
		z = math.Pow(x, y)
	default:
		return 0, fmt.Errorf("unknown operator %q", n.op)
	}
	if math.IsInf(z, 0) || math.IsNaN(z) {
		return 0, fmt.Errorf("%v %s %v out of range", x, n.op, y)
	}
	return z, nil
}

func (n *callNode) eval(env map[string]float64) (float64, error) {
	args := make([]float64, len(n.args))
	for i, arg := range n.args {
		x, err := arg.eval(env)
		if err != nil {
			return 0, err
		}
		args[i] = x
	}
	z, err := functions[n.fn](args)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", n.fn, err)
	}
	if math.IsInf(z, 0) || math.IsNaN(z) {
		return 0, fmt.Errorf("%s: result out of range", n.fn)
	}
	return z, nil
}

type tokenKind uint8

const (
	eofToken tokenKind = iota
	numberToken
	nameToken
	opToken
)

type token struct {
	kind tokenKind
	text string
}

// lex splits an expression into tokens.
// Any character outside the grammar is an error.
func lex(s string) ([]token, error) {
	var tokens []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case isDigit(c) || c == '.' && i+1 < len(s) && isDigit(s[i+1]):
			start := i
			for i < len(s) && (isDigit(s[i]) || s[i] == '.' || s[i] == '_') {
				i++
			}
			if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
				j := i + 1
				if j < len(s) && (s[j] == '+' || s[j] == '-') {
					j++
				}
				if j < len(s) && isDigit(s[j]) {
					for i = j; i < len(s) && isDigit(s[i]); i++ {
					}
				}
			}
			tokens = append(tokens, token{numberToken, s[start:i]})
		case isNameStart(c):
			start := i
			for i < len(s) && (isNameStart(s[i]) || isDigit(s[i])) {
				i++
			}
			tokens = append(tokens, token{nameToken, s[start:i]})
		case strings.HasPrefix(s[i:], "**"):
			tokens = append(tokens, token{opToken, "**"})
			i += 2
		case strings.IndexByte("+-*/%(),", c) >= 0:
			tokens = append(tokens, token{opToken, s[i : i+1]})
			i++
		default:
			return nil, fmt.Errorf("unexpected %q", s[i:i+1])
		}
	}
	return append(tokens, token{kind: eofToken}), nil
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isNameStart(c byte) bool {
	return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

type exprParser struct {
	tokens []token
	pos    int
}

// parse builds an expression tree, rejecting any syntax outside the grammar
// and any call to a function not in the allowed set.
func parse(s string) (node, error) {
	tokens, err := lex(s)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", s, err)
	}
	p := &exprParser{tokens: tokens}
	n, err := p.expr()
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", s, err)
	}
	if tok := p.peek(); tok.kind != eofToken {
		return nil, fmt.Errorf("parse %q: unexpected %q", s, tok.text)
	}
	return n, nil
}

func (p *exprParser) peek() token {
	return p.tokens[p.pos]
}

func (p *exprParser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != eofToken {
		p.pos++
	}
	return tok
}

func (p *exprParser) isOp(ops ...string) bool {
	tok := p.peek()
	if tok.kind != opToken {
		return false
	}
	for _, op := range ops {
		if tok.text == op {
			return true
		}
	}
	return false
}

func (p *exprParser) expr() (node, error) {
	x, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		op := p.next().text
		y, err := p.term()
		if err != nil {
			return nil, err
		}
		x = &binaryNode{op: op, x: x, y: y}
	}
	return x, nil
}

func (p *exprParser) term() (node, error) {
	x, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/", "%") {
		op := p.next().text
		y, err := p.unary()
		if err != nil {
			return nil, err
		}
		x = &binaryNode{op: op, x: x, y: y}
	}
	return x, nil
}

func (p *exprParser) unary() (node, error) {
	if p.isOp("+", "-") {
		op := p.next().text[0]
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, x: x}, nil
	}
	return p.power()
}

func (p *exprParser) power() (node, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	if p.isOp("**") {
		p.next()
		y, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: "**", x: x, y: y}, nil
	}
	return x, nil
}

func (p *exprParser) primary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case numberToken:
		x, err := strconv.ParseFloat(strings.ReplaceAll(tok.text, "_", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", tok.text)
		}
		return numberNode(x), nil
	case nameToken:
		if !p.isOp("(") {
			return nameNode(tok.text), nil
		}
		if _, ok := functions[tok.text]; !ok {
			return nil, fmt.Errorf("function %s not allowed", tok.text)
		}
		p.next()
		call := &callNode{fn: tok.text}
		if p.isOp(")") {
			p.next()
			return call, nil
		}
		for {
			arg, err := p.expr()
			if err != nil {
				return nil, err
			}
			call.args = append(call.args, arg)
			if p.isOp(")") {
				p.next()
				return call, nil
			}
			if !p.isOp(",") {
				return nil, fmt.Errorf("expected , or ) in call to %s", tok.text)
			}
			p.next()
		}
	case opToken:
		if tok.text == "(" {
			x, err := p.expr()
			if err != nil {
				return nil, err
			}
			if !p.isOp(")") {
				return nil, errors.New("missing )")
			}
			p.next()
			return x, nil
		}
		return nil, fmt.Errorf("unexpected %q", tok.text)
	default:
		return nil, errors.New("unexpected end of expression")
	}
}
