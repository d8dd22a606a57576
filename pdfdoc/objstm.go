package pdfdoc

import (
	"bytes"
	"fmt"
	"strconv"
)

// objectStream holds a decoded /ObjStm: a header of object number and
// offset pairs followed by the serialized objects themselves. Objects
// stored this way are always generation zero and never streams.
type objectStream struct {
	first int
	data  []byte
	pairs []objStmPair
}

type objStmPair struct {
	num int
	off int
}

func newObjectStream(stm *Stream) (*objectStream, error) {
	if typ, ok := stm.Dict.GetName("Type"); !ok || typ != "ObjStm" {
		return nil, fmt.Errorf("stream /Type is not /ObjStm")
	}
	n, ok := stm.Dict.GetInt("N")
	if !ok || n < 0 {
		return nil, fmt.Errorf("object stream /N is missing or negative")
	}
	first, ok := stm.Dict.GetInt("First")
	if !ok || first < 0 {
		return nil, fmt.Errorf("object stream /First is missing or negative")
	}

	data, err := stm.Decoded()
	if err != nil {
		return nil, fmt.Errorf("decoding object stream: %w", err)
	}
	if int(first) > len(data) {
		return nil, fmt.Errorf("object stream /First %d beyond payload", first)
	}

	pairs, err := parseObjStmHeader(data[:first], int(n))
	if err != nil {
		return nil, err
	}
	return &objectStream{first: int(first), data: data, pairs: pairs}, nil
}

// parseObjStmHeader reads n pairs of "number offset" integers.
func parseObjStmHeader(header []byte, n int) ([]objStmPair, error) {
	lex := newLexer(bytes.NewReader(header))
	pairs := make([]objStmPair, 0, n)
	for i := 0; i < n; i++ {
		num, err := objStmHeaderInt(lex)
		if err != nil {
			return nil, fmt.Errorf("object stream header pair %d: %w", i, err)
		}
		off, err := objStmHeaderInt(lex)
		if err != nil {
			return nil, fmt.Errorf("object stream header pair %d: %w", i, err)
		}
		pairs = append(pairs, objStmPair{num: num, off: off})
	}
	return pairs, nil
}

func objStmHeaderInt(lex *lexer) (int, error) {
	t, err := lex.next()
	if err != nil {
		return 0, err
	}
	if t.kind != tokenInteger {
		return 0, fmt.Errorf("expected integer")
	}
	return strconv.Atoi(string(t.value))
}

// object parses the object at idx and returns its number alongside it.
func (o *objectStream) object(idx int) (int, Object, error) {
	if idx < 0 || idx >= len(o.pairs) {
		return 0, nil, fmt.Errorf("object stream index %d out of range (have %d)", idx, len(o.pairs))
	}
	start := o.first + o.pairs[idx].off
	end := len(o.data)
	if idx+1 < len(o.pairs) {
		end = o.first + o.pairs[idx+1].off
	}
	if start < o.first || start > end || end > len(o.data) {
		return 0, nil, fmt.Errorf("object stream entry %d has bad offsets", idx)
	}

	p, err := newParser(bytes.NewReader(o.data[start:end]), nil)
	if err != nil {
		return 0, nil, err
	}
	obj, err := p.parseObject()
	if err != nil {
		return 0, nil, fmt.Errorf("object stream entry %d: %w", idx, err)
	}
	return o.pairs[idx].num, obj, nil
}
