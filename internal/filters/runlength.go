package filters

import "fmt"

// RunLengthDecode expands run-length encoded data. The encoding is a
// sequence of runs, each introduced by a length byte: 0 through 127 mean
// the next length+1 bytes are literal, 129 through 255 mean the next
// single byte repeats 257-length times, and 128 marks the end of data.
// Input that simply runs out without the end marker is accepted, since
// plenty of writers omit it.
func RunLengthDecode(data []byte) ([]byte, error) {
	var out []byte

	for i := 0; i < len(data); {
		length := data[i]
		i++

		switch {
		case length == 128:
			return out, nil
		case length < 128:
			n := int(length) + 1
			if i+n > len(data) {
				return nil, fmt.Errorf("run length data truncated: literal run of %d bytes at offset %d", n, i-1)
			}
			out = append(out, data[i:i+n]...)
			i += n
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("run length data truncated: repeat run at offset %d", i-1)
			}
			n := 257 - int(length)
			for j := 0; j < n; j++ {
				out = append(out, data[i])
			}
			i++
		}
	}

	return out, nil
}
