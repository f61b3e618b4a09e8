// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package agentcode

import "strings"

// literalState follows string literals and bracket nesting across the lines
// of one declaration. It only needs to know whether the declaration is still
// open at a line boundary, not what the literals contain.
type literalState struct {
	closer byte // delimiter ending the open literal, 0 when none
	opener byte // paired opener for %-literals that nest, e.g. '{'
	nest   int
	depth  int // open ( [ { outside literals
}

func (l *literalState) inLiteral() bool { return l.closer != 0 }

func (l *literalState) unbalanced() bool { return l.closer != 0 || l.depth > 0 }

var pairs = map[byte]byte{'(': ')', '[': ']', '{': '}', '<': '>'}

// scan advances the state over one line.
func (l *literalState) scan(line string) {
	prev := byte(0) // last significant byte outside literals
	for i := 0; i < len(line); i++ {
		c := line[i]
		if l.closer != 0 {
			switch {
			case c == '\\':
				i++
			case l.opener != 0 && c == l.opener:
				l.nest++
			case c == l.closer:
				if l.nest > 0 {
					l.nest--
				} else {
					l.closer, l.opener = 0, 0
					prev = c
				}
			}
			continue
		}

		switch c {
		case '#':
			return
		case '"', '\'', '`':
			l.closer = c
		case '/':
			if startsOperand(prev) {
				l.closer = '/'
			}
		case '%':
			if n := percentLiteral(line[i+1:], prev); n > 0 {
				delim := line[i+n]
				if close, ok := pairs[delim]; ok {
					l.opener, l.closer = delim, close
				} else {
					l.closer = delim
				}
				i += n
			}
		case '?':
			// Character literal such as ?" or ?{.
			if startsOperand(prev) && i+1 < len(line) && line[i+1] != ' ' {
				i++
			}
		case '(', '[', '{':
			l.depth++
		case ')', ']', '}':
			if l.depth > 0 {
				l.depth--
			}
		}
		if c != ' ' && c != '\t' {
			prev = c
		}
	}
}

// startsOperand reports whether a literal may begin after prev.
func startsOperand(prev byte) bool {
	return prev == 0 || strings.IndexByte("(,=!~|&{[;:+-*<>?", prev) >= 0
}

// percentLiteral returns the offset of the delimiter when rest follows a '%'
// that opens a literal like %q{...} or %w[...], and 0 for the modulo operator.
func percentLiteral(rest string, prev byte) int {
	if rest == "" {
		return 0
	}
	n := 0
	if strings.IndexByte("qQwWiIrsx", rest[0]) >= 0 {
		n = 1
	} else if !startsOperand(prev) {
		return 0
	}
	if n >= len(rest) {
		return 0
	}
	d := rest[n]
	if d == ' ' || d == '\t' || d == '\n' || d == '\r' || isWordByte(d) {
		return 0
	}
	return n + 1
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
