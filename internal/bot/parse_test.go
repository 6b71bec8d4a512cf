package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vkrelay/internal/poster"
)

func TestSplitCommand(t *testing.T) {
	word, rest, ok := splitCommand("/Post@vkrelay_bot 123 hello\nworld")
	require.True(t, ok)
	require.Equal(t, "post", word)
	require.Equal(t, "123 hello\nworld", rest)

	_, _, ok = splitCommand("hello")
	require.False(t, ok)
	_, _, ok = splitCommand("/")
	require.False(t, ok)
}

func TestSplitArgsKeepsText(t *testing.T) {
	args, rest := splitArgs("  1,2  3 5m first line\n\nsecond line ", 3)
	require.Equal(t, []string{"1,2", "3", "5m"}, args)
	require.Equal(t, "first line\n\nsecond line", rest)

	args, rest = splitArgs("only", 3)
	require.Equal(t, []string{"only"}, args)
	require.Empty(t, rest)
}

func TestParseInterval(t *testing.T) {
	cases := map[string]time.Duration{
		"5":     5 * time.Minute,
		"0":     0,
		"90s":   90 * time.Second,
		"1h30m": 90 * time.Minute,
	}
	for in, want := range cases {
		got, err := parseInterval(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	for _, bad := range []string{"-1", "-5s", "soon", ""} {
		_, err := parseInterval(bad)
		require.Error(t, err, bad)
	}
}

func TestParseTargets(t *testing.T) {
	got, err := parseTargets("100,-200,club300,100,vk.com/public400")
	require.NoError(t, err)
	require.Equal(t, []poster.Target{100, 200, 300, 400}, got)

	_, err = parseTargets("100,abc")
	require.ErrorIs(t, err, errBadTarget)
	_, err = parseTargets(",")
	require.ErrorIs(t, err, errBadTarget)
	_, err = parseTarget("0")
	require.ErrorIs(t, err, errBadTarget)
}

func TestParseCount(t *testing.T) {
	n, err := parseCount("7")
	require.NoError(t, err)
	require.Equal(t, 7, n)
	for _, bad := range []string{"0", "-2", "x"} {
		_, err := parseCount(bad)
		require.Error(t, err, bad)
	}
}

func TestParsePostRef(t *testing.T) {
	g, id, err := parsePostRef([]string{"123", "45"})
	require.NoError(t, err)
	require.Equal(t, poster.Target(123), g)
	require.Equal(t, int64(45), id)

	g, id, err = parsePostRef([]string{"https://vk.com/wall-123_45?reply=1"})
	require.NoError(t, err)
	require.Equal(t, poster.Target(123), g)
	require.Equal(t, int64(45), id)

	_, _, err = parsePostRef([]string{"https://vk.com/club123"})
	require.ErrorIs(t, err, errBadPostRef)
	_, _, err = parsePostRef([]string{"123", "x"})
	require.ErrorIs(t, err, errBadPostRef)
}

func TestNewReqIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := newReqID()
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestParseSaved(t *testing.T) {
	cases := []struct {
		in   string
		kind savedKind
		want poster.Target
	}{
		{"-100", savedGroup, 100},
		{"club100", savedGroup, 100},
		{"https://vk.com/public7", savedGroup, 7},
		{"2000000001", savedChat, 2000000001},
		{" 5 ", savedChat, 5},
	}
	for _, tc := range cases {
		kind, got, err := parseSaved(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.kind, kind, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
	_, _, err := parseSaved("0")
	require.ErrorIs(t, err, errBadTarget)
	_, _, err = parseSaved("chat")
	require.ErrorIs(t, err, errBadTarget)
}

func TestParseDelay(t *testing.T) {
	cases := map[string]time.Duration{
		"10":  10 * time.Second,
		"90s": 90 * time.Second,
		"2m":  2 * time.Minute,
	}
	for in, want := range cases {
		got, err := parseDelay(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	for _, bad := range []string{"0", "-3", "0s", "soon", ""} {
		_, err := parseDelay(bad)
		require.Error(t, err, bad)
	}
}
