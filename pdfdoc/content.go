package pdfdoc

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// contentOp is one content stream operation: an operator keyword and
// the operands pushed before it.
type contentOp struct {
	op       string
	operands []Object
}

// contentParser walks a content stream operation by operation. Each
// parser owns its operand stack, so pages can be processed
// concurrently.
type contentParser struct {
	lex      *lexer
	operands []Object
}

func newContentParser(data []byte) *contentParser {
	return &contentParser{lex: newLexer(bytes.NewReader(data))}
}

// next returns the next operation, or io.EOF when the stream ends.
// Inline images are consumed and skipped; they surface as a BI
// operation with no operands.
func (p *contentParser) next() (contentOp, error) {
	for {
		t, err := p.lex.next()
		if err != nil {
			return contentOp{}, err
		}
		switch t.kind {
		case tokenEOF:
			return contentOp{}, io.EOF
		case tokenComment:
			continue
		case tokenKeyword:
			kw := string(t.value)
			switch kw {
			case "true":
				p.operands = append(p.operands, Bool(true))
				continue
			case "false":
				p.operands = append(p.operands, Bool(false))
				continue
			case "null":
				p.operands = append(p.operands, Null{})
				continue
			case "BI":
				if err := p.skipInlineImage(); err != nil {
					return contentOp{}, err
				}
				p.operands = p.operands[:0]
				return contentOp{op: "BI"}, nil
			}
			op := contentOp{op: kw, operands: p.operands}
			p.operands = nil
			return op, nil
		default:
			obj, err := p.value(t)
			if err != nil {
				return contentOp{}, err
			}
			p.operands = append(p.operands, obj)
		}
	}
}

// value converts a token to an object, reading further tokens for
// arrays and dictionaries. Content streams hold only direct objects.
func (p *contentParser) value(t *token) (Object, error) {
	switch t.kind {
	case tokenInteger:
		v, err := strconv.ParseInt(string(t.value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad integer %q at offset %d", t.value, t.pos)
		}
		return Int(v), nil
	case tokenReal:
		v, err := strconv.ParseFloat(string(t.value), 64)
		if err != nil {
			return nil, fmt.Errorf("bad real %q at offset %d", t.value, t.pos)
		}
		return Real(v), nil
	case tokenString:
		return String(t.value), nil
	case tokenHexString:
		return decodeHexString(t.value)
	case tokenName:
		return Name(t.value), nil
	case tokenKeyword:
		switch string(t.value) {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		case "null":
			return Null{}, nil
		}
		return nil, fmt.Errorf("keyword %q inside a composite operand at offset %d", t.value, t.pos)
	case tokenArrayOpen:
		var arr Array
		for {
			el, err := p.lex.next()
			if err != nil {
				return nil, err
			}
			if el.kind == tokenArrayClose {
				return arr, nil
			}
			if el.kind == tokenEOF {
				return nil, fmt.Errorf("unterminated array at offset %d", t.pos)
			}
			if el.kind == tokenComment {
				continue
			}
			obj, err := p.value(el)
			if err != nil {
				return nil, err
			}
			arr = append(arr, obj)
		}
	case tokenDictOpen:
		dict := Dict{}
		for {
			key, err := p.lex.next()
			if err != nil {
				return nil, err
			}
			if key.kind == tokenDictClose {
				return dict, nil
			}
			if key.kind == tokenComment {
				continue
			}
			if key.kind != tokenName {
				return nil, fmt.Errorf("dictionary key is not a name at offset %d", key.pos)
			}
			val, err := p.lex.next()
			if err != nil {
				return nil, err
			}
			obj, err := p.value(val)
			if err != nil {
				return nil, err
			}
			dict[string(key.value)] = obj
		}
	}
	return nil, fmt.Errorf("unexpected token at offset %d", t.pos)
}

// skipInlineImage consumes key/value pairs up to ID, then scans the
// binary payload for the EI terminator: E, I, then whitespace or end
// of stream, preceded by whitespace.
func (p *contentParser) skipInlineImage() error {
	for {
		t, err := p.lex.next()
		if err != nil {
			return err
		}
		if t.kind == tokenEOF {
			return fmt.Errorf("inline image without ID")
		}
		if t.kind == tokenKeyword && string(t.value) == "ID" {
			break
		}
	}
	// One whitespace byte separates ID from the payload.
	if b, err := p.lex.peek(); err == nil && isWhitespace(b) {
		p.lex.readByte()
	}
	prev := byte(' ')
	for {
		b, err := p.lex.readByte()
		if err == io.EOF {
			return fmt.Errorf("inline image without EI")
		}
		if err != nil {
			return err
		}
		if b == 'E' && isWhitespace(prev) {
			next, err := p.lex.peek()
			if err == nil && next == 'I' {
				p.lex.readByte()
				after, err := p.lex.peek()
				if err == io.EOF || (err == nil && isWhitespace(after)) {
					return nil
				}
			}
		}
		prev = b
	}
}

// ===== Operand helpers =====

func opNumber(operands []Object, i int) (float64, bool) {
	if i < 0 || i >= len(operands) {
		return 0, false
	}
	return toNumber(operands[i])
}

func opName(operands []Object, i int) (string, bool) {
	if i < 0 || i >= len(operands) {
		return "", false
	}
	n, ok := operands[i].(Name)
	return string(n), ok
}

func opString(operands []Object, i int) ([]byte, bool) {
	if i < 0 || i >= len(operands) {
		return nil, false
	}
	s, ok := operands[i].(String)
	return []byte(string(s)), ok
}

// opMatrix reads six numbers as a transform.
func opMatrix(operands []Object) ([6]float64, bool) {
	var m [6]float64
	if len(operands) < 6 {
		return m, false
	}
	for i := 0; i < 6; i++ {
		n, ok := toNumber(operands[i])
		if !ok {
			return m, false
		}
		m[i] = n
	}
	return m, true
}
