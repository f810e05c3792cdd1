package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTestScript(t *testing.T, script string, options map[string]string) (TaskList, map[string]ScriptOption) {
	t.Helper()

	root := t.TempDir()
	scriptPath := filepath.Join(root, "tasks.star")
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0600))

	logger := zerolog.Nop()
	ctx := WithLogger(context.Background(), &logger)

	tasks, opts, err := RunScript(ctx, scriptPath, root, options, true)
	require.NoError(t, err)

	return tasks, opts
}

func TestRunScript_CollectsDeclaredTasks(t *testing.T) {
	t.Parallel()

	tasks, _ := runTestScript(t, `
def configure():
    task("clean", desc="Remove build artifacts", cmds=["rm -rf build"])
    task("install", desc="Install dependencies", deps=["clean"], cmds=["uv sync"])
`, nil)

	require.Len(t, tasks, 2)
	require.Contains(t, tasks, "install")
	assert.Equal(t, []string{"clean"}, tasks["install"].Deps)
	assert.Equal(t, "Install dependencies", tasks["install"].Desc)
}

func TestRunScript_DeclarationOrderIsRecorded(t *testing.T) {
	t.Parallel()

	tasks, _ := runTestScript(t, `
def configure():
    task("zeta", desc="z", cmds=["echo z"])
    task("alpha", desc="a", cmds=["echo a"])
`, nil)

	assert.Less(t, tasks["zeta"].Pos, tasks["alpha"].Pos)
}

func TestRunScript_LeadingDashMarksActionNonFatal(t *testing.T) {
	t.Parallel()

	tasks, _ := runTestScript(t, `
def configure():
    task("lint", desc="lint", cmds=["-ruff check --fix app", "ruff format app"])
`, nil)

	cmds := tasks["lint"].Cmds
	require.Len(t, cmds, 2)

	first, ok := cmds[0].(TaskCmdScript)
	require.True(t, ok)
	assert.True(t, first.NonFatal)
	assert.Equal(t, "ruff check --fix app", first.Content)

	second, ok := cmds[1].(TaskCmdScript)
	require.True(t, ok)
	assert.False(t, second.NonFatal)
	assert.Equal(t, "ruff format app", second.Content)
}

func TestRunScript_TasksWithoutShortNameAreHidden(t *testing.T) {
	t.Parallel()

	tasks, _ := runTestScript(t, `
def configure():
    helper = task(cmds=["echo helper"])
    task("main", desc="main", cmds=[helper])
`, nil)

	require.Len(t, tasks, 1)
	main := tasks["main"]

	ref, ok := main.Cmds[0].(TaskCmdTaskRef)
	require.True(t, ok)
	assert.True(t, ref.Task.Hidden)
	assert.NotEmpty(t, ref.Task.Short)
}

func TestRunScript_HelpNameIsReserved(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	scriptPath := filepath.Join(root, "tasks.star")
	script := `
def configure():
    task("help", desc="nope", cmds=["echo nope"])
`
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0600))

	logger := zerolog.Nop()
	ctx := WithLogger(context.Background(), &logger)

	_, _, err := RunScript(ctx, scriptPath, root, nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestRunScript_OptionOverrides(t *testing.T) {
	t.Parallel()

	script := `
port = option("port", "8000", help="Port the dev server binds to")

def configure():
    task("serve", desc="serve", cmds=["run --port %s" % port])
`

	tasks, opts := runTestScript(t, script, map[string]string{"port": "9999"})

	require.Contains(t, opts, "port")
	assert.Equal(t, "8000", opts["port"].Default())

	cmd := tasks["serve"].Cmds[0].(TaskCmdScript)
	assert.Contains(t, cmd.Content, "9999")
}

func TestRunScript_SetenvAppliesToAllTasks(t *testing.T) {
	t.Parallel()

	tasks, _ := runTestScript(t, `
def configure():
    setenv("UV_PROJECT_ENVIRONMENT", ".venv")
    task("test", desc="test", cmds=["pytest"])
`, nil)

	assert.Equal(t, ".venv", tasks["test"].Env["UV_PROJECT_ENVIRONMENT"])
}

func TestRunScript_TupleCommandsAreEncoded(t *testing.T) {
	t.Parallel()

	tasks, _ := runTestScript(t, `
def configure():
    task("docs", desc="docs", cmds=[("sphinx-build", "-M", "html", "docs", "docs/_build")])
`, nil)

	cmd := tasks["docs"].Cmds[0].(TaskCmdScript)
	assert.Equal(t, "sphinx-build -M html docs docs/_build", cmd.Content)
}

func TestRunScript_MissingConfigureFails(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	scriptPath := filepath.Join(root, "tasks.star")
	require.NoError(t, os.WriteFile(scriptPath, []byte("x = 1\n"), 0600))

	logger := zerolog.Nop()
	ctx := WithLogger(context.Background(), &logger)

	_, _, err := RunScript(ctx, scriptPath, root, nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configure")
}
