package param

import (
	"strings"

	"github.com/syssam/dbx"
	"github.com/syssam/dbx/dialect"
)

type tokenKind uint8

const (
	textToken tokenKind = iota
	formatToken
	questionToken
	namedToken
)

// token is a run of output text or one input placeholder.
type token struct {
	kind tokenKind
	text string
	name string
}

// lex splits query into text runs and placeholders. Placeholders are only
// recognized outside string literals, quoted identifiers and comments.
// Literal percent signs are written in the form the target driver expects.
func lex(query string, d dialect.Descriptor) ([]token, error) {
	var (
		toks    []token
		buf     strings.Builder
		percent = "%"
	)
	if d.Placeholder.IsFormat() {
		percent = "%%"
	}
	flush := func() {
		if buf.Len() > 0 {
			toks = append(toks, token{kind: textToken, text: buf.String()})
			buf.Reset()
		}
	}
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || (c == '[' && d.QuoteOpen == '['):
			closing := c
			if c == '[' {
				closing = ']'
			}
			end := quoted(query, i, closing)
			// % inside literals is data, never a conversion.
			buf.WriteString(strings.ReplaceAll(query[i:end], "%", percent))
			i = end - 1
		case c == '-' && strings.HasPrefix(query[i:], "--"):
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				end = len(query) - i
			}
			buf.WriteString(strings.ReplaceAll(query[i:i+end], "%", percent))
			i += end - 1
		case c == '/' && strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				end = len(query)
			} else {
				end += i + 4
			}
			buf.WriteString(strings.ReplaceAll(query[i:end], "%", percent))
			i = end - 1
		case c == '?':
			flush()
			toks = append(toks, token{kind: questionToken, text: "?"})
		case c == '%' && i+1 < len(query):
			switch query[i+1] {
			case '%':
				buf.WriteString(percent)
				i++
			case 's':
				flush()
				toks = append(toks, token{kind: formatToken, text: "%s"})
				i++
			case '(':
				end := strings.Index(query[i:], ")s")
				if end < 0 {
					return nil, dbx.NewParameterError("unterminated named parameter at offset %d", i)
				}
				name := query[i+2 : i+end]
				if !validName(name) {
					return nil, dbx.NewParameterError("malformed named parameter %q", query[i:i+end+2])
				}
				flush()
				toks = append(toks, token{kind: namedToken, text: query[i : i+end+2], name: name})
				i += end + 1
			default:
				buf.WriteString(percent)
			}
		case c == '%':
			buf.WriteString(percent)
		default:
			buf.WriteByte(c)
		}
	}
	flush()
	return toks, nil
}

// quoted returns the offset just past the quoted run starting at i.
// A doubled closing character is an escape.
func quoted(s string, i int, closing byte) int {
	for j := i + 1; j < len(s); j++ {
		if s[j] != closing {
			continue
		}
		if j+1 < len(s) && s[j+1] == closing {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

func validName(name string) bool {
	if name == "" || !isLetter(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isIdent(name[i]) {
			return false
		}
	}
	return true
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdent(c byte) bool {
	return isLetter(c) || c >= '0' && c <= '9' || c == '_'
}

// position is the syntactic position of a placeholder, judged from the
// text around it.
type position uint8

const (
	plainPos position = iota
	// inPos is "IN %s": the placeholder supplies the parentheses.
	inPos
	// inParenPos is "IN (%s)": the query supplies the parentheses.
	inParenPos
	// isPos is "IS %s" or "IS NOT %s".
	isPos
)

func positionOf(before, after string) position {
	s := strings.TrimRight(before, " \t\r\n")
	if strings.HasSuffix(s, "(") {
		if endsWithWord(strings.TrimRight(s[:len(s)-1], " \t\r\n"), "IN") &&
			strings.HasPrefix(strings.TrimLeft(after, " \t\r\n"), ")") {
			return inParenPos
		}
		return plainPos
	}
	switch {
	case endsWithWord(s, "IN"):
		return inPos
	case endsWithWord(s, "IS"):
		return isPos
	case endsWithWord(s, "NOT"):
		if endsWithWord(strings.TrimRight(s[:len(s)-3], " \t\r\n"), "IS") {
			return isPos
		}
	}
	return plainPos
}

func endsWithWord(s, word string) bool {
	n := len(s) - len(word)
	if n < 0 || !strings.EqualFold(s[n:], word) {
		return false
	}
	return n == 0 || !isIdent(s[n-1])
}
