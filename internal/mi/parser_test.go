package mi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord_Result(t *testing.T) {
	rec, err := ParseRecord(`12^done,bkpt={number="1",type="breakpoint",enabled="y",addr="0x0000000000401136",func="main",file="hello.c",line="5",thread-groups=["i1"],times="0"}`)
	require.NoError(t, err)

	assert.Equal(t, KindResult, rec.Kind)
	assert.True(t, rec.HasToken)
	assert.Equal(t, 12, rec.Token)
	assert.Equal(t, ClassDone, rec.Class)

	v, ok := rec.Get("bkpt")
	require.True(t, ok)
	bkpt, ok := v.(Tuple)
	require.True(t, ok)
	assert.Equal(t, "1", bkpt.Field("number"))
	assert.Equal(t, "main", bkpt.Field("func"))

	groups, ok := bkpt.Get("thread-groups")
	require.True(t, ok)
	assert.Equal(t, List{Values: []Value{Const("i1")}}, groups)
}

func TestParseRecord_Error(t *testing.T) {
	rec, err := ParseRecord(`3^error,msg="No symbol \"foo\" in current context."`)
	require.NoError(t, err)
	assert.True(t, rec.IsError())
	assert.Equal(t, `No symbol "foo" in current context.`, rec.ErrorMessage())

	rec, err = ParseRecord(`4^error,message="old style"`)
	require.NoError(t, err)
	assert.Equal(t, "old style", rec.ErrorMessage())
}

func TestParseRecord_Async(t *testing.T) {
	tests := []struct {
		line  string
		kind  Kind
		class string
	}{
		{`*stopped,reason="breakpoint-hit",thread-id="1",stopped-threads="all"`, KindExec, "stopped"},
		{`*running,thread-id="all"`, KindExec, "running"},
		{`=thread-group-started,id="i1",pid="4242"`, KindNotify, "thread-group-started"},
		{`+download,section=".text",section-size="6668"`, KindStatus, "download"},
		{`=library-loaded`, KindNotify, "library-loaded"},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			rec, err := ParseRecord(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, rec.Kind)
			assert.True(t, rec.Kind.IsAsync())
			assert.Equal(t, tt.class, rec.Class)
			assert.False(t, rec.HasToken)
		})
	}
}

func TestParseRecord_Stream(t *testing.T) {
	rec, err := ParseRecord(`~"GNU gdb (GDB) 13.2\n"`)
	require.NoError(t, err)
	assert.Equal(t, KindConsole, rec.Kind)
	assert.Equal(t, "GNU gdb (GDB) 13.2\n", rec.Text)

	rec, err = ParseRecord(`&"warning: \"x\"\n"`)
	require.NoError(t, err)
	assert.Equal(t, KindLog, rec.Kind)
	assert.Equal(t, "warning: \"x\"\n", rec.Text)

	rec, err = ParseRecord(`@"target out"`)
	require.NoError(t, err)
	assert.Equal(t, KindTarget, rec.Kind)
}

func TestParseRecord_PromptAndRaw(t *testing.T) {
	rec, err := ParseRecord("(gdb) ")
	require.NoError(t, err)
	assert.Equal(t, KindPrompt, rec.Kind)

	for _, line := range []string{
		"Hello from the inferior",
		"",
		"12345",
		`~"unterminated`,
		`7~"tokens do not prefix streams"`,
	} {
		rec, err := ParseRecord(line)
		require.NoError(t, err, line)
		assert.Equal(t, KindRaw, rec.Kind, line)
		assert.Equal(t, line, rec.Text)
	}
}

func TestParseRecord_Malformed(t *testing.T) {
	for _, line := range []string{
		`5^done,bkpt={number="1"`,
		`5^done,=x`,
		`5^`,
		`5^done,a="1"b`,
		`*stopped,frame={level="0"}]`,
		`99999999999999999999999^done`,
	} {
		rec, err := ParseRecord(line)
		require.Error(t, err, line)
		assert.ErrorIs(t, err, ErrSyntax)
		require.NotNil(t, rec)
		assert.NotEqual(t, KindRaw, rec.Kind)
	}

	rec, _ := ParseRecord(`5^done,bkpt={`)
	assert.True(t, rec.HasToken)
	assert.Equal(t, 5, rec.Token)

	rec, _ = ParseRecord(`99999999999999999999999^done`)
	assert.Equal(t, KindResult, rec.Kind)
	assert.False(t, rec.HasToken)
}

func TestParseRecord_Lists(t *testing.T) {
	rec, err := ParseRecord(`^done,stack=[frame={level="0",func="f"},frame={level="1",func="main"}],empty=[],nested=[["a"],["b","c"]],t={}`)
	require.NoError(t, err)

	stack, _ := rec.Get("stack")
	l := stack.(List)
	require.Len(t, l.Results, 2)
	assert.Equal(t, "frame", l.Results[1].Name)
	assert.Equal(t, "main", l.Results[1].Value.(Tuple).Field("func"))
	assert.Equal(t, 2, l.Len())

	empty, _ := rec.Get("empty")
	assert.Equal(t, 0, empty.(List).Len())

	nested, _ := rec.Get("nested")
	assert.Len(t, nested.(List).Values, 2)

	tup, _ := rec.Get("t")
	assert.Empty(t, tup.(Tuple))
}

func TestRecord_StringRoundTrip(t *testing.T) {
	line := `^done,stack=[frame={level="0",func="f"}],names=["a","b\n"]`
	rec, err := ParseRecord(line)
	require.NoError(t, err)

	rec.Line = ""
	again, err := ParseRecord(rec.String())
	require.NoError(t, err)
	assert.Equal(t, rec.Results, again.Results)
}

func TestQuoteUnquote(t *testing.T) {
	tests := []struct {
		raw    string
		quoted string
	}{
		{"plain", `"plain"`},
		{"a\"b", `"a\"b"`},
		{`back\slash`, `"back\\slash"`},
		{"line\nnext\ttab\r", `"line\nnext\ttab\r"`},
		{"\x01\x1f\x7f", `"\001\037\177"`},
		{"", `""`},
		{"ünï", `"ünï"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.quoted, Quote(tt.raw))
		got, err := Unquote(tt.quoted)
		require.NoError(t, err)
		assert.Equal(t, tt.raw, got)
	}

	got, err := Unquote(`"\303\251t\303\251 \e[0m"`)
	require.NoError(t, err)
	assert.Equal(t, "été \x1b[0m", got)

	_, err = Unquote(`"open`)
	assert.ErrorIs(t, err, ErrSyntax)
	_, err = Unquote(`"a"b`)
	assert.ErrorIs(t, err, ErrSyntax)
	_, err = Unquote(`nope`)
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestParser_Charset(t *testing.T) {
	p, err := NewParser("ISO-8859-1")
	require.NoError(t, err)

	rec, err := p.Parse(`~"caf\351\n"`)
	require.NoError(t, err)
	assert.Equal(t, "café\n", rec.Text)

	rec, err = p.Parse(`^done,value="\351"`)
	require.NoError(t, err)
	assert.Equal(t, "é", rec.Field("value"))

	utf, err := NewParser("UTF-8")
	require.NoError(t, err)
	rec, err = utf.Parse(`~"caf\351"`)
	require.NoError(t, err)
	assert.Equal(t, "caf�", rec.Text)

	_, err = NewParser("no-such-charset")
	assert.Error(t, err)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "result", KindResult.String())
	assert.Equal(t, "notify", KindNotify.String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
	assert.True(t, KindLog.IsStream())
	assert.False(t, KindResult.IsAsync())
}
