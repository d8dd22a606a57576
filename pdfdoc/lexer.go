package pdfdoc

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// tokenType classifies a lexical token.
type tokenType int

const (
	tokenEOF tokenType = iota
	tokenComment
	tokenKeyword // true, false, null, obj, endobj, stream, R, ...
	tokenInteger
	tokenReal
	tokenString    // (literal)
	tokenHexString // <hex>
	tokenName      // /Name
	tokenArrayOpen
	tokenArrayClose
	tokenDictOpen
	tokenDictClose
)

// token is one lexical token with its byte position in the input.
type token struct {
	kind  tokenType
	value []byte
	pos   int64
}

// lexer tokenizes PDF syntax from a reader. Binary stream payloads are
// read out of band with readRaw after the parser sees the stream
// keyword.
type lexer struct {
	r   *bufio.Reader
	pos int64
}

func newLexer(r io.Reader) *lexer {
	return &lexer{r: bufio.NewReader(r)}
}

// next returns the next token.
func (l *lexer) next() (*token, error) {
	if err := l.skipWhitespace(); err != nil && err != io.EOF {
		return nil, err
	}

	b, err := l.peek()
	if err == io.EOF {
		return &token{kind: tokenEOF, pos: l.pos}, nil
	}
	if err != nil {
		return nil, err
	}

	switch {
	case b == '%':
		return l.readComment()
	case b == '[':
		l.readByte()
		return &token{kind: tokenArrayOpen, pos: l.pos - 1}, nil
	case b == ']':
		l.readByte()
		return &token{kind: tokenArrayClose, pos: l.pos - 1}, nil
	case b == '(':
		return l.readLiteralString()
	case b == '<':
		two, err := l.r.Peek(2)
		if err == nil && len(two) == 2 && two[1] == '<' {
			l.readByte()
			l.readByte()
			return &token{kind: tokenDictOpen, pos: l.pos - 2}, nil
		}
		return l.readHexString()
	case b == '>':
		two, err := l.r.Peek(2)
		if err == nil && len(two) == 2 && two[1] == '>' {
			l.readByte()
			l.readByte()
			return &token{kind: tokenDictClose, pos: l.pos - 2}, nil
		}
		return nil, fmt.Errorf("stray '>' at offset %d", l.pos)
	case b == '/':
		return l.readName()
	case isDigit(b) || b == '-' || b == '+' || b == '.':
		return l.readNumber()
	case isRegular(b):
		return l.readKeyword()
	}
	return nil, fmt.Errorf("unexpected byte %#x at offset %d", b, l.pos)
}

func (l *lexer) readByte() (byte, error) {
	b, err := l.r.ReadByte()
	if err != nil {
		return 0, err
	}
	l.pos++
	return b, nil
}

func (l *lexer) peek() (byte, error) {
	b, err := l.r.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// skipWhitespace consumes PDF whitespace: space, tab, CR, LF, FF, NUL.
func (l *lexer) skipWhitespace() error {
	for {
		b, err := l.peek()
		if err != nil {
			return err
		}
		if !isWhitespace(b) {
			return nil
		}
		l.readByte()
	}
}

// readComment consumes from % to end of line.
func (l *lexer) readComment() (*token, error) {
	start := l.pos
	var buf bytes.Buffer
	for {
		b, err := l.readByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if b == '\r' || b == '\n' {
			if b == '\r' {
				if n, err := l.peek(); err == nil && n == '\n' {
					l.readByte()
				}
			}
			break
		}
		buf.WriteByte(b)
	}
	return &token{kind: tokenComment, value: buf.Bytes(), pos: start}, nil
}

// readLiteralString consumes a (string) with escape sequences and
// balanced nested parentheses.
func (l *lexer) readLiteralString() (*token, error) {
	start := l.pos
	l.readByte() // (
	var buf bytes.Buffer
	depth := 1
	for depth > 0 {
		b, err := l.readByte()
		if err != nil {
			return nil, fmt.Errorf("unterminated string at offset %d", start)
		}
		switch b {
		case '(':
			depth++
			buf.WriteByte(b)
		case ')':
			depth--
			if depth > 0 {
				buf.WriteByte(b)
			}
		case '\\':
			next, err := l.readByte()
			if err != nil {
				return nil, fmt.Errorf("unterminated escape at offset %d", l.pos)
			}
			switch next {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '(', ')', '\\':
				buf.WriteByte(next)
			case '\r':
				// Escaped newline continues the string.
				if n, err := l.peek(); err == nil && n == '\n' {
					l.readByte()
				}
			case '\n':
			case '0', '1', '2', '3', '4', '5', '6', '7':
				val := next - '0'
				for i := 0; i < 2; i++ {
					p, err := l.peek()
					if err != nil || p < '0' || p > '7' {
						break
					}
					l.readByte()
					val = val*8 + (p - '0')
				}
				buf.WriteByte(val)
			default:
				buf.WriteByte(next)
			}
		default:
			buf.WriteByte(b)
		}
	}
	return &token{kind: tokenString, value: buf.Bytes(), pos: start}, nil
}

// readHexString consumes a <hex> string, ignoring embedded whitespace.
func (l *lexer) readHexString() (*token, error) {
	start := l.pos
	l.readByte() // <
	var buf bytes.Buffer
	for {
		b, err := l.readByte()
		if err != nil {
			return nil, fmt.Errorf("unterminated hex string at offset %d", start)
		}
		if b == '>' {
			break
		}
		if isWhitespace(b) {
			continue
		}
		if !isHexDigit(b) {
			return nil, fmt.Errorf("bad hex digit %q at offset %d", b, l.pos-1)
		}
		buf.WriteByte(b)
	}
	return &token{kind: tokenHexString, value: buf.Bytes(), pos: start}, nil
}

// readName consumes a /Name, handling #xx escapes.
func (l *lexer) readName() (*token, error) {
	start := l.pos
	l.readByte() // /
	var buf bytes.Buffer
	for {
		b, err := l.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if isWhitespace(b) || isDelimiter(b) {
			break
		}
		l.readByte()
		if b == '#' {
			h1, err1 := l.readByte()
			h2, err2 := l.readByte()
			if err1 != nil || err2 != nil || !isHexDigit(h1) || !isHexDigit(h2) {
				return nil, fmt.Errorf("bad name escape at offset %d", l.pos)
			}
			buf.WriteByte(hexValue(h1)<<4 | hexValue(h2))
			continue
		}
		buf.WriteByte(b)
	}
	return &token{kind: tokenName, value: buf.Bytes(), pos: start}, nil
}

// readNumber consumes an integer or real. A second decimal point ends
// the number.
func (l *lexer) readNumber() (*token, error) {
	start := l.pos
	var buf bytes.Buffer
	real := false
	for {
		b, err := l.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch {
		case b == '.' && !real:
			real = true
		case isDigit(b):
		case buf.Len() == 0 && (b == '-' || b == '+'):
		default:
			kind := tokenInteger
			if real {
				kind = tokenReal
			}
			return &token{kind: kind, value: buf.Bytes(), pos: start}, nil
		}
		l.readByte()
		buf.WriteByte(b)
	}
	kind := tokenInteger
	if real {
		kind = tokenReal
	}
	return &token{kind: kind, value: buf.Bytes(), pos: start}, nil
}

// readKeyword consumes a bare keyword such as obj, endobj or R.
func (l *lexer) readKeyword() (*token, error) {
	start := l.pos
	var buf bytes.Buffer
	for {
		b, err := l.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !isRegular(b) {
			break
		}
		l.readByte()
		buf.WriteByte(b)
	}
	return &token{kind: tokenKeyword, value: buf.Bytes(), pos: start}, nil
}

// readRaw reads exactly n bytes of binary stream payload.
func (l *lexer) readRaw(n int) ([]byte, error) {
	data := make([]byte, n)
	if _, err := io.ReadFull(l.r, data); err != nil {
		return nil, fmt.Errorf("stream payload: %w", err)
	}
	l.pos += int64(n)
	return data, nil
}

// skipStreamEOL consumes the end-of-line after the stream keyword: a
// single LF or a CR LF pair.
func (l *lexer) skipStreamEOL() error {
	b, err := l.readByte()
	if err != nil {
		return err
	}
	if b == '\n' {
		return nil
	}
	if b == '\r' {
		if n, err := l.peek(); err == nil && n == '\n' {
			l.readByte()
		}
		return nil
	}
	return fmt.Errorf("missing EOL after stream keyword at offset %d", l.pos-1)
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == 0
}

func isDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// isRegular reports a byte that can appear inside a keyword or name.
func isRegular(b byte) bool {
	return !isWhitespace(b) && !isDelimiter(b)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func hexValue(b byte) byte {
	switch {
	case b >= '0' && b <= '9':
		return b - '0'
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10
	}
	return 0
}
