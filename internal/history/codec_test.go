package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanItemsBasic(t *testing.T) {
	data := []byte("- cmd: ls -la\n   when: 100\n   paths:\n    - /tmp\n" +
		"- cmd: git status\n   when: 200\n")

	items := scanItems(data)
	require.Len(t, items, 2)
	assert.Equal(t, "ls -la", items[0].Command)
	assert.Equal(t, []string{"/tmp"}, items[0].Paths)
	assert.Equal(t, "git status", items[1].Command)
	assert.Nil(t, items[1].Paths)
}

func TestScanItemsSkipsDocDelimitersAndCorruptBlocks(t *testing.T) {
	data := []byte("%YAML 1.1\n---\n- cmd: ok\n   when: 5\n...\n- cmd: \n   when: 6\n")

	items := scanItems(data)
	require.Len(t, items, 1)
	assert.Equal(t, "ok", items[0].Command)
}

func TestScanItemsDecodesEscapedCommand(t *testing.T) {
	data := []byte(`- cmd: echo "a\nb" and a\\b` + "\n   when: 1\n")

	items := scanItems(data)
	require.Len(t, items, 1)
	assert.Equal(t, "echo \"a\nb\" and a\\b", items[0].Command)
}
