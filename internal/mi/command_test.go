package mi

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_Encode(t *testing.T) {
	tests := []struct {
		name string
		cmd  *Command
		want string
	}{
		{
			name: "verb only",
			cmd:  NewCommand("-exec-run"),
			want: "-exec-run",
		},
		{
			name: "params get the marker",
			cmd:  NewCommand("-break-insert", "main"),
			want: "-break-insert -- main",
		},
		{
			name: "options without params omit the marker",
			cmd:  NewCommand("-exec-continue").WithOptions("--all"),
			want: "-exec-continue --all",
		},
		{
			name: "options and params",
			cmd:  NewCommand("-var-list-children", "var1").WithOptions("--all-values"),
			want: "-var-list-children --all-values -- var1",
		},
		{
			name: "whitespace is quoted",
			cmd:  NewCommand("-environment-cd", "/tmp/my dir"),
			want: `-environment-cd -- "/tmp/my dir"`,
		},
		{
			name: "quotes and backslashes are escaped",
			cmd:  NewCommand("-data-evaluate-expression", `s == "a\b"`),
			want: `-data-evaluate-expression -- "s == \"a\\b\""`,
		},
		{
			name: "tab is whitespace",
			cmd:  NewCommand("-gdb-set", "a\tb"),
			want: "-gdb-set -- \"a\tb\"",
		},
		{
			name: "empty token survives",
			cmd:  NewCommand("-exec-arguments", ""),
			want: `-exec-arguments -- ""`,
		},
		{
			name: "raw command has no marker",
			cmd:  NewRawCommand("info", "registers"),
			want: "info registers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Encode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, tt.cmd.String())
		})
	}
}

func TestCommand_EncodeIsDeterministic(t *testing.T) {
	cmd := NewCommand("-break-insert", "file.c:10").WithOptions("-t")
	a, err := cmd.Encode()
	require.NoError(t, err)
	b, err := cmd.Encode()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCommand_EncodeErrors(t *testing.T) {
	tests := []struct {
		name string
		cmd  *Command
	}{
		{"empty verb", &Command{}},
		{"verb with space", NewCommand("-exec run")},
		{"verb without dash", NewCommand("exec-run")},
		{"newline in param", NewCommand("-gdb-set", "a\nb")},
		{"carriage return in option", NewCommand("-gdb-set").WithOptions("x\r")},
		{"nul in param", NewCommand("-gdb-set", "a\x00")},
		{"newline in raw arg", NewRawCommand("echo", "hi\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cmd.Encode()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEncoding)
			var ee *EncodeError
			assert.ErrorAs(t, err, &ee)
		})
	}
}

func TestCommand_Clone(t *testing.T) {
	cmd := NewCommand("-stack-list-locals", "1").WithOptions("--thread", "2")
	c := cmd.Clone()
	c.Options[1] = "3"
	c.Params = append(c.Params, "x")
	assert.Equal(t, []string{"--thread", "2"}, cmd.Options)
	assert.Equal(t, []string{"1"}, cmd.Params)
}

const tokenAlphabet = "ab \t\"\\-=.x1é"

func randomToken(rng *rand.Rand) string {
	runes := []rune(tokenAlphabet)
	n := rng.Intn(8)
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteRune(runes[rng.Intn(len(runes))])
	}
	return sb.String()
}

func TestCommand_QuotingRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		cmd := &Command{Verb: "-test-verb"}
		for j := rng.Intn(3); j > 0; j-- {
			opt := randomToken(rng)
			if opt == "--" {
				continue
			}
			cmd.Options = append(cmd.Options, opt)
		}
		for j := rng.Intn(4); j > 0; j-- {
			cmd.Params = append(cmd.Params, randomToken(rng))
		}

		line, err := cmd.Encode()
		require.NoError(t, err)

		args, err := SplitArgs(line)
		require.NoError(t, err, line)

		want := append([]string{cmd.Verb}, cmd.Options...)
		if len(cmd.Params) > 0 {
			want = append(want, "--")
			want = append(want, cmd.Params...)
		}
		require.Equal(t, want, args, line)
	}
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand(`-var-create --thread 1 -- - * "a b"`)
	require.NoError(t, err)
	assert.Equal(t, "-var-create", cmd.Verb)
	assert.Equal(t, []string{"--thread", "1"}, cmd.Options)
	assert.Equal(t, []string{"-", "*", "a b"}, cmd.Params)
	assert.False(t, cmd.Raw)

	raw, err := ParseCommand("info frame")
	require.NoError(t, err)
	assert.True(t, raw.Raw)
	assert.Equal(t, []string{"frame"}, raw.Params)

	_, err = ParseCommand(`-x -- "open`)
	assert.ErrorIs(t, err, ErrSyntax)

	_, err = ParseCommand("   ")
	assert.ErrorIs(t, err, ErrSyntax)
}
