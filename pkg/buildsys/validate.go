package buildsys

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	markerUnvisited = iota
	markerInProgress
	markerDone
)

// ValidateTasks checks the dependency relation of the whole task list before
// anything runs: every dependency name must exist and the relation must be
// acyclic. Inlined subtasks are followed as well since they can pull in
// further dependencies.
func ValidateTasks(tasks TaskList) error {
	markers := make(map[string]int, len(tasks))

	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		err := visitTask(tasks[name], tasks, markers, []string{})
		if err != nil {
			return err
		}
	}

	return nil
}

func visitTask(task *Task, tasks TaskList, markers map[string]int, stack []string) error {
	switch markers[task.Short] {
	case markerDone:
		return nil
	case markerInProgress:
		cycle := append(stack, task.Short)
		return eris.Errorf("dependency cycle detected: %s", strings.Join(cycle, " -> "))
	}

	markers[task.Short] = markerInProgress
	stack = append(stack, task.Short)

	for _, dep := range task.Deps {
		depTask, ok := tasks[dep]
		if !ok {
			return eris.Errorf("Task %s depends on unknown task %s", task.Short, dep)
		}

		err := visitTask(depTask, tasks, markers, stack)
		if err != nil {
			return err
		}
	}

	for _, cmd := range task.Cmds {
		subTask, err := cmd.ToTask()
		if err != nil {
			return err
		}

		if subTask != nil {
			err = visitTask(subTask, tasks, markers, stack)
			if err != nil {
				return err
			}
		}
	}

	markers[task.Short] = markerDone
	return nil
}
