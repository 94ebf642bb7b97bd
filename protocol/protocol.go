// Package protocol implements the line-oriented wire format clients speak
// over TCP: "insert <key> <value>\n", "delete <key>\n", "get <key>\n", and
// blank lines to ignore. It is a direct port of
// original_source/src/serverv2/message.rs's Message::parse/Into<Bytes>,
// generalised from a Bytes/Cursor parser to one over a plain []byte so it
// can be driven by a bufio.Reader instead of tokio's buffered stream.
package protocol

import "bytes"

// Kind distinguishes the parsed command variants.
type Kind int

const (
	KindInsert Kind = iota
	KindDelete
	KindGet
	// KindIgnore marks bytes that carried no command: a blank line, or an
	// unrecognised verb. Ignored input is silently dropped, never replied
	// to.
	KindIgnore
)

// Command is one fully parsed client request.
type Command struct {
	Kind  Kind
	Key   []byte
	Value []byte
}

// Parse looks for one complete command at the front of buf. It returns
// ok=false when buf does not yet hold a full command (the caller should
// read more bytes and retry). Input that starts with none of the verbs
// becomes a KindIgnore command that consumes the rest of buf, matching the
// original's "drop the line and move on" behaviour. A malformed line is not
// detected by its newline: a buffer too short to tell the verb (4 bytes or
// fewer, or fewer than 7 when it does not start with "get"), or an insert
// with no space after its key, reports ok=false just as incomplete input
// does.
//
// n is the number of bytes the command occupies at the front of buf; the
// caller advances its read buffer by n after a successful parse.
func Parse(buf []byte) (cmd Command, n int, ok bool) {
	if len(buf) > 0 && buf[0] == '\n' {
		return Command{Kind: KindIgnore}, 1, true
	}

	if len(buf) <= 4 {
		// Not yet enough to tell "get " from anything else.
		return Command{}, 0, false
	}

	if bytes.Equal(buf[0:3], []byte("get")) {
		key, klen, ok := readUntil(buf[4:], '\n')
		if !ok {
			return Command{}, 0, false
		}
		return Command{Kind: KindGet, Key: key}, 4 + klen + 1, true
	}

	if len(buf) < 7 {
		return Command{}, 0, false
	}

	switch {
	case bytes.Equal(buf[0:6], []byte("insert")):
		key, klen, ok := readUntil(buf[7:], ' ')
		if !ok {
			return Command{}, 0, false
		}
		value, vlen, ok := readUntil(buf[7+klen+1:], '\n')
		if !ok {
			return Command{}, 0, false
		}
		return Command{Kind: KindInsert, Key: key, Value: value}, 7 + klen + 1 + vlen + 1, true

	case bytes.Equal(buf[0:6], []byte("delete")):
		key, klen, ok := readUntil(buf[7:], '\n')
		if !ok {
			return Command{}, 0, false
		}
		return Command{Kind: KindDelete, Key: key}, 7 + klen + 1, true

	default:
		return Command{Kind: KindIgnore}, len(buf), true
	}
}

// readUntil returns a copy of buf up to (not including) the first
// occurrence of c, the number of bytes before c, and ok=false if c does not
// appear in buf yet.
func readUntil(buf []byte, c byte) (tok []byte, n int, ok bool) {
	i := bytes.IndexByte(buf, c)
	if i < 0 {
		return nil, 0, false
	}
	tok = make([]byte, i)
	copy(tok, buf[:i])
	return tok, i, true
}

// EncodeSuccess is the reply to a completed insert or delete.
func EncodeSuccess() []byte {
	return []byte("Success\n")
}

// EncodeResult is the reply to a get that found a value: "<key> <value>\n".
func EncodeResult(key, value []byte) []byte {
	out := make([]byte, 0, len(key)+1+len(value)+1)
	out = append(out, key...)
	out = append(out, ' ')
	out = append(out, value...)
	out = append(out, '\n')
	return out
}
