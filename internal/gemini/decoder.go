package gemini

import (
	"bytes"
	"regexp"
	"strconv"

	"github.com/tidwall/gjson"
)

// textPath is where the generation endpoint puts the text payload in
// each streamed record.
const textPath = "candidates.0.content.parts.0.text"

// FallbackNotice is emitted once when a stream ends without any
// recoverable text, so the caller never renders an empty response.
const FallbackNotice = "Sorry, I couldn't come up with a response just now. Please try asking again."

// Decoder incrementally recovers text fragments from a stream of JSON
// records separated by an optional comma plus a newline. Network chunk
// boundaries do not align with record boundaries: a record may span many
// chunks, and one chunk may carry many records.
//
// State is one accumulating buffer. Feed consumes exactly the bytes of
// each successfully decoded record plus its separator and nothing else;
// an undecodable prefix stays buffered verbatim until more bytes arrive
// or Finish runs. The trailing candidate (no separator yet) is never
// decoded by Feed, because a read boundary may have split it mid-record.
//
// A Decoder belongs to exactly one stream. Not safe for concurrent use.
type Decoder struct {
	buf      []byte
	emitted  bool
	finished bool
}

// Feed appends chunk to the buffer and returns the text fragments of
// every record that became complete, in arrival order. Records that
// decode without a text payload (safety metadata, finish markers) are
// consumed silently. A zero-length return means no record completed yet.
func (d *Decoder) Feed(chunk []byte) []string {
	d.buf = append(d.buf, chunk...)

	var fragments []string
	for {
		nl := bytes.IndexByte(d.buf, '\n')
		if nl < 0 {
			// No separator: the whole buffer is one unproven candidate.
			break
		}

		text, ok := decodeRecord(d.buf[:nl])
		if !ok {
			// Incomplete or malformed — expected transient state, keep
			// every byte and retry once more arrives.
			break
		}

		// Consume the record plus its one separator byte.
		d.buf = d.buf[nl+1:]

		if text != "" {
			fragments = append(fragments, text)
			d.emitted = true
		}
	}
	return fragments
}

// Finish signals end of stream. The trailing candidate is now proven
// complete and gets a final decode attempt. If the stream never yielded
// any text, a lenient salvage pass scans the leftover buffer for a text
// field; if that finds nothing either, the fixed fallback notice is
// returned. Finish is idempotent — later calls return nil.
func (d *Decoder) Finish() []string {
	if d.finished {
		return nil
	}
	d.finished = true

	var fragments []string
	if text, ok := decodeRecord(d.buf); ok {
		d.buf = nil
		if text != "" {
			fragments = append(fragments, text)
			d.emitted = true
		}
	}

	if !d.emitted {
		if salvaged := salvageText(d.buf); len(salvaged) > 0 {
			d.emitted = true
			fragments = append(fragments, salvaged...)
		}
	}

	if !d.emitted {
		d.emitted = true
		fragments = append(fragments, FallbackNotice)
	}

	return fragments
}

// Buffered returns how many unconsumed bytes the decoder holds.
func (d *Decoder) Buffered() int { return len(d.buf) }

// decodeRecord attempts to decode one candidate as a complete record.
// ok is false when the candidate is not (yet) valid JSON. ok true with
// empty text means a valid record without a text payload.
//
// The endpoint frames the record array with '[' and ']' and sometimes
// puts the comma before the newline instead of after it; trimRecord
// strips that framing so the candidate is a bare object.
func decodeRecord(candidate []byte) (text string, ok bool) {
	rec := trimRecord(candidate)
	if len(rec) == 0 {
		// Blank line or pure framing — nothing to emit, safe to consume.
		return "", true
	}
	if !gjson.ValidBytes(rec) {
		return "", false
	}
	return gjson.GetBytes(rec, textPath).String(), true
}

// trimRecord drops surrounding whitespace and one layer of array
// framing (leading '[' or ',', trailing ',' or ']') from a candidate.
func trimRecord(candidate []byte) []byte {
	rec := bytes.TrimSpace(candidate)
	for len(rec) > 0 && (rec[0] == '[' || rec[0] == ',') {
		rec = bytes.TrimSpace(rec[1:])
	}
	for len(rec) > 0 && (rec[len(rec)-1] == ']' || rec[len(rec)-1] == ',') {
		rec = bytes.TrimSpace(rec[:len(rec)-1])
	}
	return rec
}

// textFieldPattern matches a "text" field and its JSON string value even
// when the surrounding structure never became valid JSON.
var textFieldPattern = regexp.MustCompile(`"text"\s*:\s*("(?:[^"\\]|\\.)*")`)

// salvageText extracts whatever text payloads survive in an
// undecodable buffer. Best effort: unquotable matches are skipped.
func salvageText(buf []byte) []string {
	var out []string
	for _, m := range textFieldPattern.FindAllSubmatch(buf, -1) {
		s, err := strconv.Unquote(string(m[1]))
		if err != nil || s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
