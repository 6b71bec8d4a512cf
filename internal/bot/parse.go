package bot

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"vkrelay/internal/poster"
)

var ridSeq atomic.Uint64

// newReqID is short: base36 timestamp + seq + 2 random chars.
func newReqID() string {
	n := ridSeq.Add(1)
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(n, 36) + randSuffix(2)
}

func randSuffix(n int) string {
	const alpha = "abcdefghijklmnopqrstuvwxyz0123456789"
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alpha[rand.IntN(len(alpha))])
	}
	return b.String()
}

// splitCommand returns the command word (without "/" and "@botname") and
// the raw text after it.
func splitCommand(text string) (word, rest string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	end := strings.IndexFunc(text, unicode.IsSpace)
	if end < 0 {
		end = len(text)
	}
	word = strings.TrimPrefix(text[:end], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", "", false
	}
	return strings.ToLower(word), strings.TrimSpace(text[end:]), true
}

// splitArgs takes up to n leading words from raw and returns the rest
// verbatim, so post text keeps its line breaks.
func splitArgs(raw string, n int) (args []string, rest string) {
	rest = strings.TrimSpace(raw)
	for len(args) < n && rest != "" {
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			args = append(args, rest)
			return args, ""
		}
		args = append(args, rest[:end])
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
	}
	return args, rest
}

var errBadTarget = errors.New("bad group id")

// parseTarget accepts 123, -123, club123 and public123.
func parseTarget(s string) (poster.Target, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "vk.com/")
	for _, p := range []string{"club", "public"} {
		s = strings.TrimPrefix(s, p)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q", errBadTarget, s)
	}
	if n < 0 {
		n = -n
	}
	return poster.Target(n), nil
}

// parseTargets splits a comma-separated list, dropping duplicates but
// keeping order.
func parseTargets(s string) ([]poster.Target, error) {
	var out []poster.Target
	seen := map[poster.Target]bool{}
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := parseTarget(part)
		if err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, errBadTarget
	}
	return out, nil
}

// parseInterval accepts a Go duration ("90s", "5m") or a bare integer
// meaning minutes.
func parseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("interval must be >= 0: %q", s)
		}
		return time.Duration(n) * time.Minute, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("bad interval %q (use 90s, 5m or minutes)", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("interval must be >= 0: %q", s)
	}
	return d, nil
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad count %q (must be a positive integer)", s)
	}
	return n, nil
}

func looksLikeCount(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n > 0
}

var errBadPostRef = errors.New("bad post reference")

// parsePostRef accepts "<group> <post_id>" or a wall link such as
// https://vk.com/wall-123_45.
func parsePostRef(args []string) (poster.Target, int64, error) {
	if len(args) == 1 {
		s := args[0]
		i := strings.Index(s, "wall")
		if i < 0 {
			return 0, 0, errBadPostRef
		}
		owner, post, ok := strings.Cut(s[i+len("wall"):], "_")
		if !ok {
			return 0, 0, errBadPostRef
		}
		if j := strings.IndexAny(post, "?#/"); j >= 0 {
			post = post[:j]
		}
		args = []string{owner, post}
	}
	if len(args) != 2 {
		return 0, 0, errBadPostRef
	}
	t, err := parseTarget(args[0])
	if err != nil {
		return 0, 0, err
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, 0, fmt.Errorf("%w: post id %q", errBadPostRef, args[1])
	}
	return t, id, nil
}

type savedKind int

const (
	savedGroup savedKind = iota
	savedChat
)

func (k savedKind) String() string {
	if k == savedChat {
		return "chat"
	}
	return "group"
}

// parseSaved tells groups from conversations the way VK ids do: a negative
// id or a club/public name is a community, a positive id is a peer.
func parseSaved(s string) (savedKind, poster.Target, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil && n > 0 {
		return savedChat, poster.Target(n), nil
	}
	t, err := parseTarget(s)
	if err != nil {
		return 0, 0, err
	}
	return savedGroup, t, nil
}

// parseDelay accepts a Go duration or a bare integer meaning seconds.
func parseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	d, err := time.ParseDuration(s)
	if n, aerr := strconv.Atoi(s); aerr == nil {
		d, err = time.Duration(n)*time.Second, nil
	}
	if err != nil {
		return 0, fmt.Errorf("bad delay %q (use 10, 10s or 2m)", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("delay must be positive: %q", s)
	}
	return d, nil
}
