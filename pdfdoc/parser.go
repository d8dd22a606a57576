package pdfdoc

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
)

// resolver looks up an indirect object, used while parsing to chase an
// indirect /Length on a stream dictionary.
type resolver func(Ref) (Object, error)

// parser builds objects from a token stream. It keeps two tokens of
// lookahead so that "n g R" and "n g obj" can be folded into a single
// reference or indirect object header.
type parser struct {
	lex     *lexer
	cur     *token
	ahead   *token
	resolve resolver
}

func newParser(r io.Reader, res resolver) (*parser, error) {
	p := &parser{lex: newLexer(r), resolve: res}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

// advance shifts the lookahead window by one token, skipping comments.
// After a stream keyword the window is not refilled, because the bytes
// that follow are binary payload, not tokens.
func (p *parser) advance() error {
	p.cur = p.ahead
	if p.cur != nil && p.cur.kind == tokenKeyword && string(p.cur.value) == "stream" {
		p.ahead = nil
		return nil
	}
	for {
		t, err := p.lex.next()
		if err != nil {
			return err
		}
		if t.kind == tokenComment {
			continue
		}
		p.ahead = t
		return nil
	}
}

// parseObject parses one object at the current token.
func (p *parser) parseObject() (Object, error) {
	t := p.cur
	if t == nil {
		return nil, io.ErrUnexpectedEOF
	}
	switch t.kind {
	case tokenEOF:
		return nil, io.EOF
	case tokenInteger:
		return p.parseNumber()
	case tokenReal:
		v, err := strconv.ParseFloat(string(t.value), 64)
		if err != nil {
			return nil, fmt.Errorf("bad real %q at offset %d", t.value, t.pos)
		}
		p.advance()
		return Real(v), nil
	case tokenString:
		s := String(t.value)
		p.advance()
		return s, nil
	case tokenHexString:
		s, err := decodeHexString(t.value)
		if err != nil {
			return nil, fmt.Errorf("bad hex string at offset %d: %w", t.pos, err)
		}
		p.advance()
		return s, nil
	case tokenName:
		n := Name(t.value)
		p.advance()
		return n, nil
	case tokenArrayOpen:
		return p.parseArray()
	case tokenDictOpen:
		return p.parseDictOrStream()
	case tokenKeyword:
		switch string(t.value) {
		case "true":
			p.advance()
			return Bool(true), nil
		case "false":
			p.advance()
			return Bool(false), nil
		case "null":
			p.advance()
			return Null{}, nil
		}
		return nil, fmt.Errorf("unexpected keyword %q at offset %d", t.value, t.pos)
	}
	return nil, fmt.Errorf("unexpected token at offset %d", t.pos)
}

// parseNumber folds "n g R" into a Ref when the lookahead shows one.
func (p *parser) parseNumber() (Object, error) {
	t := p.cur
	num, err := strconv.ParseInt(string(t.value), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad integer %q at offset %d", t.value, t.pos)
	}
	if p.ahead != nil && p.ahead.kind == tokenInteger {
		gen, genErr := strconv.ParseInt(string(p.ahead.value), 10, 64)
		if genErr == nil && gen >= 0 {
			// Peek past the generation for the R keyword. A copy of
			// the lookahead state cannot help here; consume and
			// restore is not possible with a streaming lexer, so
			// check the token after the generation directly.
			save := *p.ahead
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.ahead != nil && p.ahead.kind == tokenKeyword && string(p.ahead.value) == "R" {
				if err := p.advance(); err != nil {
					return nil, err
				}
				p.advance()
				return Ref{Num: int(num), Gen: int(gen)}, nil
			}
			// Not a reference. The generation token becomes the
			// current token and parsing continues from there.
			p.cur = &save
			return Int(num), nil
		}
	}
	p.advance()
	return Int(num), nil
}

func (p *parser) parseArray() (Object, error) {
	start := p.cur.pos
	if err := p.advance(); err != nil { // [
		return nil, err
	}
	var arr Array
	for {
		if p.cur == nil || p.cur.kind == tokenEOF {
			return nil, fmt.Errorf("unterminated array at offset %d", start)
		}
		if p.cur.kind == tokenArrayClose {
			p.advance()
			return arr, nil
		}
		obj, err := p.parseObject()
		if err != nil {
			return nil, err
		}
		arr = append(arr, obj)
	}
}

// parseDictOrStream parses a dictionary and, when the stream keyword
// follows, its binary payload sized by /Length.
func (p *parser) parseDictOrStream() (Object, error) {
	start := p.cur.pos
	if err := p.advance(); err != nil { // <<
		return nil, err
	}
	dict := Dict{}
	for {
		if p.cur == nil || p.cur.kind == tokenEOF {
			return nil, fmt.Errorf("unterminated dictionary at offset %d", start)
		}
		if p.cur.kind == tokenDictClose {
			p.advance()
			break
		}
		if p.cur.kind != tokenName {
			return nil, fmt.Errorf("dictionary key is not a name at offset %d", p.cur.pos)
		}
		key := string(p.cur.value)
		if err := p.advance(); err != nil {
			return nil, err
		}
		val, err := p.parseObject()
		if err != nil {
			return nil, err
		}
		dict[key] = val
	}

	if p.cur != nil && p.cur.kind == tokenKeyword && string(p.cur.value) == "stream" {
		return p.parseStreamPayload(dict)
	}
	return dict, nil
}

// parseStreamPayload reads the raw bytes after the stream keyword. The
// length may be an indirect reference, resolved through the parser's
// resolver.
func (p *parser) parseStreamPayload(dict Dict) (Object, error) {
	length, err := p.streamLength(dict)
	if err != nil {
		return nil, err
	}
	if err := p.lex.skipStreamEOL(); err != nil {
		return nil, err
	}
	raw, err := p.lex.readRaw(length)
	if err != nil {
		return nil, err
	}
	// Refill the lookahead window past the payload.
	if err := p.refill(); err != nil {
		return nil, err
	}
	if p.cur == nil || p.cur.kind != tokenKeyword || string(p.cur.value) != "endstream" {
		return nil, fmt.Errorf("missing endstream keyword")
	}
	p.advance()
	return &Stream{Dict: dict, Raw: raw}, nil
}

func (p *parser) streamLength(dict Dict) (int, error) {
	obj, ok := dict["Length"]
	if !ok {
		return 0, fmt.Errorf("stream dictionary has no /Length")
	}
	if ref, isRef := obj.(Ref); isRef {
		if p.resolve == nil {
			return 0, fmt.Errorf("indirect /Length %s with no resolver", ref)
		}
		resolved, err := p.resolve(ref)
		if err != nil {
			return 0, fmt.Errorf("resolving /Length %s: %w", ref, err)
		}
		obj = resolved
	}
	n, ok := toNumber(obj)
	if !ok || n < 0 {
		return 0, fmt.Errorf("stream /Length is not a valid number")
	}
	return int(n), nil
}

// refill restarts the two-token lookahead after binary payload.
func (p *parser) refill() error {
	p.cur = nil
	p.ahead = nil
	for {
		t, err := p.lex.next()
		if err != nil {
			return err
		}
		if t.kind == tokenComment {
			continue
		}
		p.cur = t
		break
	}
	for {
		t, err := p.lex.next()
		if err != nil {
			return err
		}
		if t.kind == tokenComment {
			continue
		}
		p.ahead = t
		return nil
	}
}

// parseAnyIndirect parses "n g obj ... endobj" and returns the header
// reference along with the body object.
func (p *parser) parseAnyIndirect() (Ref, Object, error) {
	if p.cur == nil || p.cur.kind != tokenInteger {
		return Ref{}, nil, fmt.Errorf("indirect object header does not start with a number")
	}
	num, err := strconv.Atoi(string(p.cur.value))
	if err != nil {
		return Ref{}, nil, fmt.Errorf("bad object number %q", p.cur.value)
	}
	if err := p.advance(); err != nil {
		return Ref{}, nil, err
	}
	if p.cur == nil || p.cur.kind != tokenInteger {
		return Ref{}, nil, fmt.Errorf("object %d: missing generation number", num)
	}
	gen, err := strconv.Atoi(string(p.cur.value))
	if err != nil {
		return Ref{}, nil, fmt.Errorf("object %d: bad generation number", num)
	}
	if err := p.advance(); err != nil {
		return Ref{}, nil, err
	}
	if p.cur == nil || p.cur.kind != tokenKeyword || string(p.cur.value) != "obj" {
		return Ref{}, nil, fmt.Errorf("object %d: missing obj keyword", num)
	}
	if err := p.advance(); err != nil {
		return Ref{}, nil, err
	}

	ref := Ref{Num: num, Gen: gen}
	obj, err := p.parseObject()
	if err != nil {
		return ref, nil, fmt.Errorf("object %s: %w", ref, err)
	}
	// endobj is customary but tolerated when absent; some writers
	// leave it out after streams.
	if p.cur != nil && p.cur.kind == tokenKeyword && string(p.cur.value) == "endobj" {
		p.advance()
	}
	return ref, obj, nil
}

// parseIndirectObject parses "n g obj ... endobj" and verifies the
// header matches the expected reference from the xref table.
func (p *parser) parseIndirectObject(want Ref) (Object, error) {
	ref, obj, err := p.parseAnyIndirect()
	if err != nil {
		return nil, err
	}
	if ref.Num != want.Num {
		return nil, fmt.Errorf("object %s: header says %s", want, ref)
	}
	return obj, nil
}

// decodeHexString converts hex digits to bytes, padding a trailing odd
// digit with zero.
func decodeHexString(digits []byte) (String, error) {
	if len(digits)%2 == 1 {
		digits = append(append([]byte{}, digits...), '0')
	}
	out := make([]byte, len(digits)/2)
	if _, err := hex.Decode(out, digits); err != nil {
		return "", err
	}
	return String(out), nil
}
