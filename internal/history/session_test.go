package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivershell/corefish/internal/iothread"
	"github.com/rivershell/corefish/internal/variable"
)

func TestEscapeUnescapeBijection(t *testing.T) {
	cases := []string{
		"plain",
		`back\slash`,
		"multi\nline\ncommand",
		`mix\of\nboth` + "\nreal\nnewlines",
		"unicode: é中文\U0001F600",
	}
	for _, s := range cases {
		require.True(t, utf8.ValidString(s))
		got := unescape(escape(s))
		assert.Equal(t, s, got)
	}
}

func TestAddMergesSameCommandTail(t *testing.T) {
	s := NewSession("fish", t.TempDir())
	t1 := time.Unix(1000, 0)
	t2 := time.Unix(2000, 0)

	s.Add(Item{Command: "ls -la", When: t1, Paths: []string{"a"}})
	s.Add(Item{Command: "ls -la", When: t2, Paths: []string{"a", "b"}})

	require.Len(t, s.newItems, 1)
	assert.Equal(t, t2, s.newItems[0].When)
	assert.Equal(t, []string{"a", "b"}, s.newItems[0].Paths)
}

func TestItemAtIndexAndGetStringRecencyOrder(t *testing.T) {
	s := NewSession("fish", t.TempDir())
	s.Add(Item{Command: "first", When: time.Unix(1, 0)})
	s.Add(Item{Command: "second", When: time.Unix(2, 0)})
	s.Add(Item{Command: "third", When: time.Unix(3, 0)})

	first, ok := s.ItemAtIndex(1)
	require.True(t, ok)
	assert.Equal(t, "third", first.Command)

	third, ok := s.ItemAtIndex(3)
	require.True(t, ok)
	assert.Equal(t, "first", third.Command)

	_, ok = s.ItemAtIndex(4)
	assert.False(t, ok)

	assert.Equal(t, "third;second;first", s.GetString(";"))
}

func TestSaveLoadRoundTripSuperset(t *testing.T) {
	dir := t.TempDir()

	s1 := NewSession("fish", dir)
	s1.Add(Item{Command: "alpha", When: time.Unix(10, 0)})
	s1.Add(Item{Command: "beta", When: time.Unix(20, 0)})
	require.NoError(t, s1.Save())

	s2 := NewSession("fish", dir)
	item, ok := s2.ItemAtIndex(1)
	require.True(t, ok)
	assert.Equal(t, "beta", item.Command)

	cmds := map[string]bool{}
	for i := 1; ; i++ {
		it, ok := s2.ItemAtIndex(i)
		if !ok {
			break
		}
		cmds[it.Command] = true
	}
	assert.True(t, cmds["alpha"])
	assert.True(t, cmds["beta"])
}

func TestSearchContainsNeverReturnsExactMatch(t *testing.T) {
	s := NewSession("fish", t.TempDir())
	s.Add(Item{Command: "git status", When: time.Unix(1, 0)})
	s.Add(Item{Command: "git stash", When: time.Unix(2, 0)})

	it := s.Search("git status", MatchContains, nil)
	_, ok := it.Next()
	assert.False(t, ok, "exact-text match must not be returned for contains search")
}

func TestSearchPrefixAndSkipsAndDedup(t *testing.T) {
	s := NewSession("fish", t.TempDir())
	s.Add(Item{Command: "git push origin main", When: time.Unix(1, 0)})
	s.Add(Item{Command: "git pull", When: time.Unix(2, 0)})
	s.Add(Item{Command: "git push origin main", When: time.Unix(3, 0)})

	it := s.Search("git p", MatchPrefix, []string{"git pull"})

	var results []string
	for {
		item, ok := it.Next()
		if !ok {
			break
		}
		results = append(results, item.Command)
	}
	assert.Equal(t, []string{"git push origin main"}, results)
}

func TestClearEmptiesAndDeletesFile(t *testing.T) {
	dir := t.TempDir()
	s := NewSession("fish", dir)
	s.Add(Item{Command: "something", When: time.Unix(1, 0)})
	require.NoError(t, s.Save())

	require.NoError(t, s.Clear())

	_, ok := s.ItemAtIndex(1)
	assert.False(t, ok)
	_, err := os.Stat(filepath.Join(dir, "fish_history"))
	assert.True(t, os.IsNotExist(err))
}

func TestMergeOnSavePreservesConcurrentSessionItems(t *testing.T) {
	dir := t.TempDir()

	s1 := NewSession("fish", dir)
	s1.Add(Item{Command: "a", When: time.Unix(100, 0)})
	s1.Add(Item{Command: "b", When: time.Unix(200, 0)})

	s2 := NewSession("fish", dir)
	s2.Add(Item{Command: "c", When: time.Unix(150, 0)})
	require.NoError(t, s2.Save())

	require.NoError(t, s1.Save())

	s3 := NewSession("fish", dir)
	seen := map[string]bool{}
	for i := 1; ; i++ {
		it, ok := s3.ItemAtIndex(i)
		if !ok {
			break
		}
		seen[it.Command] = true
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
	assert.True(t, seen["c"])
}

func TestAddWithFileDetectionAsyncRecordsExistingPaths(t *testing.T) {
	dir := t.TempDir()
	s := NewSession("fish", dir)

	realFile := filepath.Join(dir, "present.txt")
	require.NoError(t, os.WriteFile(realFile, []byte("x"), 0o644))

	store := variable.New()
	store.Set("PWD", variable.Values{dir}, variable.Local)
	snap := store.Snapshot("PWD")

	pool := iothread.New(1, 4, nil)
	defer pool.Close()

	ok := s.AddWithFileDetectionAsync(pool, "cat present.txt missing.txt -x", snap)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		pool.Drain()
		item, ok := s.ItemAtIndex(1)
		return ok && item.Command == "cat present.txt missing.txt -x"
	}, time.Second, time.Millisecond)

	item, ok := s.ItemAtIndex(1)
	require.True(t, ok)
	assert.Equal(t, []string{"present.txt"}, item.Paths)
}
