package gemini

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// record builds one stream record carrying text at the expected path.
func record(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, text)
}

// drain feeds the whole stream in the given chunk sizes and returns all
// emitted fragments, Finish included.
func drain(stream string, chunkSize int) []string {
	dec := &Decoder{}
	var got []string
	for i := 0; i < len(stream); i += chunkSize {
		end := min(i+chunkSize, len(stream))
		got = append(got, dec.Feed([]byte(stream[i:end]))...)
	}
	return append(got, dec.Finish()...)
}

func TestRecordSplitMidKeyEmitsOnce(t *testing.T) {
	// The classic failure mode: the chunk boundary lands inside the
	// "text" key itself.
	dec := &Decoder{}

	got := dec.Feed([]byte(`{"candidates":[{"content":{"parts":[{"te`))
	assert.Empty(t, got, "half a record must not emit")

	got = dec.Feed([]byte("xt\":\"Hello\"}]}}]}\n"))
	require.Equal(t, []string{"Hello"}, got, "exactly one fragment, not two, not zero")

	assert.Empty(t, dec.Finish(), "nothing left to salvage")
}

func TestWholeRecordInOneChunkEmitsOnThatPass(t *testing.T) {
	dec := &Decoder{}

	got := dec.Feed([]byte(record("complete") + "\n"))
	assert.Equal(t, []string{"complete"}, got)
}

func TestTrailingRecordWithoutSeparatorEmitsOnFinish(t *testing.T) {
	dec := &Decoder{}

	got := dec.Feed([]byte(record("tail")))
	assert.Empty(t, got, "final candidate stays until proven complete")

	assert.Equal(t, []string{"tail"}, dec.Finish())
}

func TestChunkingInvariance(t *testing.T) {
	stream := "[" + record("alpha") + ",\n" + record("beta") + ",\n" + record("gamma") + "\n]"

	want := drain(stream, len(stream)) // all at once
	require.Equal(t, []string{"alpha", "beta", "gamma"}, want)

	for chunkSize := 1; chunkSize <= len(stream); chunkSize++ {
		got := drain(stream, chunkSize)
		assert.Equal(t, strings.Join(want, ""), strings.Join(got, ""),
			"concatenation must not depend on chunk size %d", chunkSize)
	}
}

func TestRecordSpanningManyChunksEmitsExactlyOnce(t *testing.T) {
	stream := record("spread out over many tiny reads") + "\n"

	dec := &Decoder{}
	var got []string
	for i := 0; i < len(stream); i++ {
		got = append(got, dec.Feed([]byte{stream[i]})...)
	}
	got = append(got, dec.Finish()...)

	assert.Equal(t, []string{"spread out over many tiny reads"}, got)
}

func TestCommaBeforeNewlineSeparator(t *testing.T) {
	stream := record("one") + ",\n" + record("two") + "\n"
	assert.Equal(t, []string{"one", "two"}, drain(stream, 7))
}

func TestNewlineThenCommaSeparator(t *testing.T) {
	stream := record("one") + "\n," + record("two") + "\n"
	assert.Equal(t, []string{"one", "two"}, drain(stream, 5))
}

func TestArrayFramingIgnored(t *testing.T) {
	stream := "[\n" + record("framed") + "\n]\n"
	assert.Equal(t, []string{"framed"}, drain(stream, len(stream)))
}

func TestRecordWithoutTextPayloadConsumedSilently(t *testing.T) {
	stream := `{"candidates":[{"finishReason":"STOP"}]}` + "\n" + record("after") + "\n"

	dec := &Decoder{}
	got := dec.Feed([]byte(stream))
	got = append(got, dec.Finish()...)

	assert.Equal(t, []string{"after"}, got)
}

func TestUnparsedBytesAreNeverDropped(t *testing.T) {
	dec := &Decoder{}

	partial := `{"candidates":[{"content"`
	dec.Feed([]byte(partial))
	assert.Equal(t, len(partial), dec.Buffered(), "undecoded bytes stay verbatim")

	dec.Feed([]byte(`:{"parts":[{"text":"x"}]}}]}`))
	assert.Empty(t, dec.Feed([]byte{}))

	got := dec.Finish()
	assert.Equal(t, []string{"x"}, got)
}

func TestSalvagePassRecoversTextFromBrokenStructure(t *testing.T) {
	// Structure never validates (truncated), but a text field survives.
	dec := &Decoder{}
	dec.Feed([]byte(`{"candidates":[{"content":{"parts":[{"text":"rescued"}],"role":"model"`))

	assert.Equal(t, []string{"rescued"}, dec.Finish())
}

func TestSalvageDecodesEscapes(t *testing.T) {
	dec := &Decoder{}
	dec.Feed([]byte(`{"broken":true,"text":"line one\nline \"two\""`))

	assert.Equal(t, []string{"line one\nline \"two\""}, dec.Finish())
}

func TestSalvageSkippedWhenSomethingWasEmitted(t *testing.T) {
	dec := &Decoder{}
	got := dec.Feed([]byte(record("real") + "\n" + `{"text":"leftover garbage"`))
	require.Equal(t, []string{"real"}, got)

	assert.Empty(t, dec.Finish(), "salvage only runs when nothing was emitted")
}

func TestFallbackNoticeWhenNothingExtractable(t *testing.T) {
	dec := &Decoder{}
	dec.Feed([]byte("%% not json at all %%"))

	got := dec.Finish()
	require.Equal(t, []string{FallbackNotice}, got, "exactly one fallback fragment")

	assert.Empty(t, dec.Finish(), "finish is idempotent")
}

func TestFallbackNoticeOnCompletelyEmptyStream(t *testing.T) {
	dec := &Decoder{}
	assert.Equal(t, []string{FallbackNotice}, dec.Finish())
}

func TestBlankLinesBetweenRecords(t *testing.T) {
	stream := record("a") + "\n\n\n" + record("b") + "\n"
	assert.Equal(t, []string{"a", "b"}, drain(stream, 3))
}

func TestOrderingMatchesArrival(t *testing.T) {
	var parts []string
	for i := range 20 {
		parts = append(parts, record(fmt.Sprintf("frag-%02d", i)))
	}
	stream := strings.Join(parts, ",\n") + "\n"

	got := drain(stream, 11)
	require.Len(t, got, 20)
	for i, f := range got {
		assert.Equal(t, fmt.Sprintf("frag-%02d", i), f)
	}
}
