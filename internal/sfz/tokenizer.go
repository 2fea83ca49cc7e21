// Package sfz implements a streaming tokenizer and loader for the SFZ
// instrument format: header sections (<region>, <group>, <master>,
// <global>, <control>, <curve>), opcode key=value pairs, // comments, and
// import= file inclusion (spec.md §4.3).
//
// Grounded on cbegin-mmlfm-go/internal/mml/parser.go for the Go
// hand-rolled-scanner idiom (plain byte-index cursor, character-class
// dispatch, no parser-combinator library); the state machine itself follows
// original_source/sfzparser.c's handler-function chain (handle_char,
// handle_header, handle_key, scan_for_value's "trim back to the previous
// key" trailing-whitespace rule) translated into a single scanning loop.
package sfz

import (
	"fmt"
	"strings"
)

// TokenKind distinguishes a header token (<region>, <group>, ...) from a
// key=value opcode token.
type TokenKind int

const (
	TokenHeader TokenKind = iota
	TokenKeyValue
)

// Token is one lexical unit produced by Tokenize.
type Token struct {
	Kind  TokenKind
	Line  int
	Name  string // header name, lowercase, without angle brackets
	Key   string
	Value string
}

// Tokenize scans src into a flat token stream. Mirrors sfzparser.c's
// handle_char state machine: whitespace separates tokens, // starts a
// line comment, <name> opens a header, key=value pairs run until the next
// key= or end of line (scan_for_value's backward trim handles values that
// themselves contain spaces, e.g. sample=my sample.wav).
func Tokenize(src string) ([]Token, error) {
	var toks []Token
	line := 1
	i := 0
	n := len(src)

	skipLineComment := func() {
		for i < n && src[i] != '\n' && src[i] != '\r' {
			i++
		}
	}

	for i < n {
		ch := src[i]
		switch {
		case ch == '\n':
			line++
			i++
		case ch == '\r' || ch == ' ' || ch == '\t':
			i++
		case ch == '/' && i+1 < n && src[i+1] == '/':
			skipLineComment()
		case ch == '<':
			start := i + 1
			j := start
			for j < n && src[j] != '>' {
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("sfz: line %d: unterminated header", line)
			}
			name := strings.ToLower(strings.TrimSpace(src[start:j]))
			toks = append(toks, Token{Kind: TokenHeader, Line: line, Name: name})
			i = j + 1
		case isKeyStartChar(ch):
			keyStart := i
			j := i
			for j < n && isKeyChar(src[j]) {
				j++
			}
			if j >= n || src[j] != '=' {
				return nil, fmt.Errorf("sfz: line %d: expected '=' after key %q", line, src[keyStart:j])
			}
			key := src[keyStart:j]
			valStart := j + 1
			valEnd := valStart
			for valEnd < n && src[valEnd] != '\n' && src[valEnd] != '\r' {
				if isNextKeyBoundary(src, valEnd, n) {
					break
				}
				valEnd++
			}
			// Trim trailing whitespace the next key's lookahead left behind
			// (scan_for_value trims back over the space(s) before the next
			// key as well as the key token itself).
			trimmed := strings.TrimRight(src[valStart:valEnd], " \t")
			toks = append(toks, Token{Kind: TokenKeyValue, Line: line, Key: key, Value: trimmed})
			line += strings.Count(src[keyStart:valEnd], "\n")
			i = valEnd
		default:
			return nil, fmt.Errorf("sfz: line %d: unexpected character %q", line, ch)
		}
	}
	return toks, nil
}

func isKeyStartChar(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_'
}

func isKeyChar(ch byte) bool {
	return isKeyStartChar(ch)
}

// isNextKeyBoundary looks ahead from pos for "<whitespace>*<key chars>=" and
// reports whether pos is the boundary right before that whitespace run,
// i.e. whether the value scan should stop here. This mirrors
// scan_for_value's single-pass "found '=' later, so back off to the
// previous key" logic without needing sfzparser.c's two-phase rescan.
func isNextKeyBoundary(src string, pos, n int) bool {
	if src[pos] != ' ' && src[pos] != '\t' {
		return false
	}
	j := pos
	for j < n && (src[j] == ' ' || src[j] == '\t') {
		j++
	}
	k := j
	for k < n && isKeyChar(src[k]) {
		k++
	}
	return k > j && k < n && src[k] == '='
}
