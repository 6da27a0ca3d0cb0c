package mi

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type collector struct {
	recs []*Record
	errs []error
}

func (c *collector) HandleRecord(rec *Record, err error) {
	c.recs = append(c.recs, rec)
	c.errs = append(c.errs, err)
}

func (c *collector) lines() []string {
	out := make([]string, len(c.recs))
	for i, r := range c.recs {
		out[i] = r.Line
	}
	return out
}

func TestDemux_SplitsAcrossWrites(t *testing.T) {
	c := &collector{}
	d := NewDemux(c)

	chunks := []string{
		"1^do", "ne\n2^running\r\n*run",
		"ning,thread-id=\"all\"\n(gdb) \n",
		"partial",
	}
	for _, chunk := range chunks {
		n, err := d.Write([]byte(chunk))
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}

	assert.Equal(t, []string{"1^done", "2^running", `*running,thread-id="all"`}, c.lines())
	assert.Equal(t, len("partial"), d.Pending())

	require.NoError(t, d.Close())
	assert.Equal(t, "partial", c.recs[3].Line)
	assert.Equal(t, KindRaw, c.recs[3].Kind)
	assert.Equal(t, 0, d.Pending())

	_, err := d.Write([]byte("late\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.NoError(t, d.Close())
}

func TestDemux_ConsoleSink(t *testing.T) {
	var console bytes.Buffer
	c := &collector{}
	d := NewDemux(c, WithConsole(&console))

	_, err := d.Write([]byte("~\"Breakpoint 1\\n\"\n&\"log\\n\"\ninferior says hi\n^done\n99999999999999999999999^done\n"))
	require.NoError(t, err)

	assert.Equal(t, "Breakpoint 1\nlog\ninferior says hi\n", console.String())
	require.Len(t, c.recs, 5)
	assert.Equal(t, KindResult, c.recs[3].Kind)
	assert.Equal(t, KindResult, c.recs[4].Kind)
}

func TestDemux_MalformedRecordReported(t *testing.T) {
	c := &collector{}
	d := NewDemux(c)
	_, err := d.Write([]byte("9^done,x={\n"))
	require.NoError(t, err)
	require.Len(t, c.errs, 1)
	assert.ErrorIs(t, c.errs[0], ErrSyntax)
	assert.Equal(t, 9, c.recs[0].Token)
}

func TestDemux_ReadFrom(t *testing.T) {
	c := &collector{}
	d := NewDemux(c)

	input := "=thread-group-added,id=\"i1\"\n~\"hello\"\n5^done"
	n, err := d.ReadFrom(iotestOneByte(strings.NewReader(input)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(input)), n)
	require.Len(t, c.recs, 3)
	assert.Equal(t, KindNotify, c.recs[0].Kind)
	assert.Equal(t, KindConsole, c.recs[1].Kind)
	assert.Equal(t, 5, c.recs[2].Token)
}

func TestDemux_ReadFromError(t *testing.T) {
	boom := errors.New("pipe broke")
	c := &collector{}
	d := NewDemux(c)

	r := io.MultiReader(strings.NewReader("1^done\n2^do"), errReader{boom})
	_, err := d.ReadFrom(r)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"1^done", "2^do"}, c.lines())
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func iotestOneByte(r io.Reader) io.Reader { return oneByteReader{r} }

func TestRecord_JSON(t *testing.T) {
	rec, err := ParseRecord(`7^done,bkpt={number="2",thread-groups=["i1","i2"]},stack=[frame={level="0"},frame={level="1"}],ids={thread-id="1",thread-id="2"}`)
	require.NoError(t, err)

	assert.Equal(t, "2", rec.Query("bkpt.number").String())
	assert.Equal(t, "i2", rec.Query("bkpt.thread-groups.1").String())
	assert.Equal(t, int64(2), rec.Query("stack.#").Int())
	assert.Equal(t, "1", rec.Query("stack.1.level").String())
	assert.Equal(t, []string{"1", "2"}, stringsOf(rec.Query("ids.thread-id").Array()))

	doc := rec.JSON()
	assert.Contains(t, doc, `"kind":"result"`)
	assert.Contains(t, doc, `"token":7`)
	assert.Contains(t, doc, `"class":"done"`)

	out := &Output{Result: rec}
	assert.Equal(t, "2", out.Query("bkpt.number").String())
	assert.False(t, (*Output)(nil).Query("x").Exists())

	stream, err := ParseRecord(`~"text\n"`)
	require.NoError(t, err)
	assert.Contains(t, stream.JSON(), `"text":"text\n"`)
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "thread-id", escapePath("thread-id"))
	assert.Equal(t, `a\.b`, escapePath("a.b"))
}

func TestOutput_Console(t *testing.T) {
	out := &Output{OOB: []*Record{
		{Kind: KindConsole, Text: "a"},
		{Kind: KindLog, Text: "ignored"},
		{Kind: KindConsole, Text: "b\n"},
	}}
	assert.Equal(t, "ab\n", out.Console())
	assert.Equal(t, "", (*Output)(nil).Console())
}

func stringsOf(rs []gjson.Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.String()
	}
	return out
}
