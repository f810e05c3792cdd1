package buildsys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listFromTasks(tasks ...*Task) TaskList {
	list := TaskList{}
	for _, task := range tasks {
		list[task.Short] = task
	}
	return list
}

func TestValidateTasks_AcceptsValidGraph(t *testing.T) {
	t.Parallel()

	list := listFromTasks(
		&Task{Short: "clean"},
		&Task{Short: "install", Deps: []string{"clean"}},
		&Task{Short: "test", Deps: []string{"install"}},
	)

	assert.NoError(t, ValidateTasks(list))
}

func TestValidateTasks_RejectsUnknownDependency(t *testing.T) {
	t.Parallel()

	list := listFromTasks(
		&Task{Short: "install", Deps: []string{"clean"}},
	)

	err := ValidateTasks(list)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task clean")
}

func TestValidateTasks_RejectsSelfDependency(t *testing.T) {
	t.Parallel()

	list := listFromTasks(
		&Task{Short: "loop", Deps: []string{"loop"}},
	)

	err := ValidateTasks(list)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidateTasks_RejectsIndirectCycle(t *testing.T) {
	t.Parallel()

	list := listFromTasks(
		&Task{Short: "a", Deps: []string{"b"}},
		&Task{Short: "b", Deps: []string{"c"}},
		&Task{Short: "c", Deps: []string{"a"}},
	)

	err := ValidateTasks(list)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidateTasks_FollowsInlinedSubtasks(t *testing.T) {
	t.Parallel()

	helper := &Task{Short: "auto#1", Hidden: true, Deps: []string{"missing"}}
	list := listFromTasks(
		&Task{Short: "frontend", Cmds: []TaskCmd{TaskCmdTaskRef{Task: helper}}},
	)

	err := ValidateTasks(list)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task missing")
}
