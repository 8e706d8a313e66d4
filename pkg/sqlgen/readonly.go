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

package sqlgen

import (
	"fmt"
	"strings"
)

// readOnlyVerbs are the statement-leading keywords a generated query may
// start with. Everything else is rejected before the statement reaches any
// engine.
var readOnlyVerbs = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"SHOW":     true,
	"DESCRIBE": true,
	"DESC":     true,
	"EXPLAIN":  true,
	"HELP":     true,
}

// mutatingVerbs are rejected explicitly, anywhere a new statement could
// start, so a read-only prefix cannot smuggle one in.
var mutatingVerbs = map[string]bool{
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"MERGE":    true,
	"DROP":     true,
	"CREATE":   true,
	"ALTER":    true,
	"TRUNCATE": true,
	"RENAME":   true,
	"GRANT":    true,
	"REVOKE":   true,
	"REPLACE":  true,
	"CALL":     true,
	"EXEC":     true,
	"EXECUTE":  true,
	"SET":      true,
}

// EnsureReadOnly verifies that sql is a single read-only statement. The
// check runs on generated SQL before execution; model output is never
// trusted to be safe on its own.
func EnsureReadOnly(sql string) error {
	stripped := stripSQLComments(sql)
	stripped = strings.TrimSpace(stripped)
	if stripped == "" {
		return fmt.Errorf("empty statement")
	}

	// A trailing semicolon is tolerated; an interior one means a second
	// statement.
	body := strings.TrimSuffix(stripped, ";")
	if hasBareSemicolon(body) {
		return fmt.Errorf("multiple statements are not allowed")
	}

	verb := leadingVerb(body)
	if !readOnlyVerbs[verb] {
		if mutatingVerbs[verb] {
			return fmt.Errorf("statement %q is not read-only", verb)
		}
		return fmt.Errorf("statement must start with a read-only verb, got %q", verb)
	}

	// WITH only names CTEs; the statement that follows them is the one
	// that executes, and it must be a SELECT.
	if verb == "WITH" {
		main := mainVerbAfterCTEs(body)
		switch {
		case main == "SELECT":
		case mutatingVerbs[main]:
			return fmt.Errorf("statement %q after WITH clause is not read-only", main)
		default:
			return fmt.Errorf("WITH clause must introduce a SELECT statement")
		}
	}
	return nil
}

// mainVerbAfterCTEs returns the verb of the statement following a leading
// WITH clause. CTE bodies are parenthesized, so the main statement's verb
// is the first word at the WITH keyword's own paren depth that names a
// statement. Returns "" when no such word exists.
func mainVerbAfterCTEs(sql string) string {
	depth := 0
	base := -1
	inString := false
	seenWith := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case inString:
			if c == '\'' {
				// '' is an escaped quote inside the literal
				if i+1 < len(sql) && sql[i+1] == '\'' {
					i++
				} else {
					inString = false
				}
			}
		case c == '\'':
			inString = true
		case c == '(':
			depth++
		case c == ')':
			depth--
		case isWordByte(c):
			j := i
			for j < len(sql) && isWordByte(sql[j]) {
				j++
			}
			word := strings.ToUpper(sql[i:j])
			if !seenWith {
				if word == "WITH" {
					seenWith = true
					base = depth
				}
			} else if depth == base && (word == "SELECT" || mutatingVerbs[word]) {
				return word
			}
			i = j - 1
		}
	}
	return ""
}

func isWordByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

// leadingVerb returns the first keyword of the statement, skipping any
// leading parentheses.
func leadingVerb(sql string) string {
	s := strings.TrimSpace(sql)
	for strings.HasPrefix(s, "(") {
		s = strings.TrimSpace(s[1:])
	}
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			end++
			continue
		}
		break
	}
	return strings.ToUpper(s[:end])
}

// stripSQLComments removes -- line comments and /* */ block comments,
// leaving string literals untouched.
func stripSQLComments(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	inString := false
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch {
		case inString:
			b.WriteByte(c)
			if c == '\'' {
				// '' is an escaped quote inside the literal
				if i+1 < len(sql) && sql[i+1] == '\'' {
					b.WriteByte('\'')
					i++
				} else {
					inString = false
				}
			}
			i++
		case c == '\'':
			inString = true
			b.WriteByte(c)
			i++
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			i += 2
			for i+1 < len(sql) && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			i += 2
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// hasBareSemicolon reports whether any semicolon appears outside a
// single-quoted literal.
func hasBareSemicolon(sql string) bool {
	inString := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				return true
			}
		}
	}
	return false
}
