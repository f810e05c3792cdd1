package buildsys

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cachePath := filepath.Join(root, ".task-cache.gob")

	helper := &Task{Short: "auto#1", Hidden: true, Cmds: []TaskCmd{TaskCmdScript{Content: "npm install"}}}
	list := TaskList{
		"frontend": {
			Short: "frontend",
			Desc:  "Compile the stylesheet",
			Pos:   2,
			Cmds: []TaskCmd{
				TaskCmdTaskRef{Task: helper},
				TaskCmdScript{Content: "npx tailwindcss", NonFatal: true},
			},
		},
	}

	require.NoError(t, WriteCache(cachePath, map[string]string{"port": "9000"}, list))

	options, loaded, err := ReadCache(cachePath)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"port": "9000"}, options)

	frontend := loaded["frontend"]
	require.NotNil(t, frontend)
	assert.Equal(t, 2, frontend.Pos)

	ref, ok := frontend.Cmds[0].(TaskCmdTaskRef)
	require.True(t, ok)
	assert.Equal(t, "auto#1", ref.Task.Short)

	script, ok := frontend.Cmds[1].(TaskCmdScript)
	require.True(t, ok)
	assert.True(t, script.NonFatal)
}

func TestCacheFresh(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	scriptPath := filepath.Join(root, "tasks.star")
	cachePath := filepath.Join(root, ".task-cache.gob")

	require.NoError(t, os.WriteFile(scriptPath, []byte("x = 1\n"), 0600))

	assert.False(t, CacheFresh(cachePath, scriptPath))

	require.NoError(t, WriteCache(cachePath, map[string]string{}, TaskList{}))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(cachePath, future, future))
	assert.True(t, CacheFresh(cachePath, scriptPath))

	// editing the script invalidates the cache
	later := future.Add(time.Minute)
	require.NoError(t, os.Chtimes(scriptPath, later, later))
	assert.False(t, CacheFresh(cachePath, scriptPath))
}
