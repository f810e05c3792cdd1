// Package cmd implements the CLI for the buildsys package
package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"mvdan.cc/sh/v3/interp"

	"github.com/JacobCoffee/python-source-builds/pkg/buildsys"
)

const (
	scriptName = "tasks.star"
	cacheName  = ".task-cache.gob"
)

var RootCmd = &cobra.Command{
	Use:   "task [name...] [key=value...]",
	Short: "Runs the declared project tasks",
	Long: `This command parses the first tasks.star file it finds and executes the given
tasks, running each task's dependencies first. Without arguments it lists the
available tasks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		taskArgs := make([]string, 0)
		options := make(map[string]string)
		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		noCache, err := cmd.Flags().GetBool("no-cache")
		if err != nil {
			return err
		}

		for _, part := range args {
			pos := strings.Index(part, "=")
			if pos > -1 {
				options[part[:pos]] = part[pos+1:]
			} else {
				taskArgs = append(taskArgs, part)
			}
		}

		logger := zerolog.New(NewConsoleWriter())
		ctx := context.Background()
		ctx = buildsys.WithLogger(ctx, &logger)

		taskPath, err := findTaskScript()
		if err != nil {
			logger.Fatal().Err(err).Msgf("No %s file found", scriptName)
		}

		projectRoot := filepath.Dir(taskPath)
		taskList, err := loadTasks(ctx, taskPath, projectRoot, options, noCache)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to parse tasks")
		}

		err = buildsys.ValidateTasks(taskList)
		if err != nil {
			logger.Fatal().Err(err).Msg("The task script declares a broken dependency graph")
		}

		if len(taskArgs) == 0 || (len(taskArgs) == 1 && taskArgs[0] == "help") {
			printTaskList(os.Stdout, taskList)
			return nil
		}

		// reject unknown names before anything runs
		for _, name := range taskArgs {
			if _, ok := taskList[name]; !ok {
				logger.Fatal().Msgf("Task %s not found", name)
			}
		}

		for _, name := range taskArgs {
			err = buildsys.RunTask(ctx, projectRoot, name, taskList, dryRun, force)
			if err != nil {
				logger.Error().Err(err).Msgf("Failed task %s", name)

				if status, ok := interp.IsExitStatus(eris.Cause(err)); ok {
					os.Exit(int(status))
				}
				os.Exit(1)
			}
		}

		return nil
	},
}

func init() {
	RootCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	RootCmd.Flags().BoolP("force", "f", false, "force build; always execute the passed tasks even if they don't have to run")
	RootCmd.Flags().Bool("no-cache", false, "ignore the cached task list and re-parse the task script")
}

// findTaskScript walks from the working directory towards the filesystem root
// and returns the first tasks.star it encounters.
func findTaskScript() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", eris.Wrap(err, "failed to retrieve the current working directory")
	}

	path := wd
	for {
		taskPath := filepath.Join(path, scriptName)
		_, err := os.Stat(taskPath)
		if err == nil {
			relPath, err := filepath.Rel(wd, taskPath)
			if err != nil {
				return taskPath, nil
			}
			return relPath, nil
		}
		if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(err, "failed to check %s", taskPath)
		}

		parent := filepath.Dir(path)
		if parent == path {
			return "", eris.Errorf("no %s file found", scriptName)
		}

		path = parent
	}
}

// loadTasks returns the parsed task list, reusing the gob cache when it's
// newer than the script and was built with the same option values.
func loadTasks(ctx context.Context, taskPath, projectRoot string, options map[string]string, noCache bool) (buildsys.TaskList, error) {
	cachePath := filepath.Join(projectRoot, cacheName)

	if !noCache && buildsys.CacheFresh(cachePath, taskPath) {
		cachedOptions, taskList, err := buildsys.ReadCache(cachePath)
		if err == nil && maps.Equal(cachedOptions, options) {
			return taskList, nil
		}
	}

	taskList, _, err := buildsys.RunScript(ctx, taskPath, projectRoot, options, true)
	if err != nil {
		return nil, err
	}

	err = buildsys.WriteCache(cachePath, options, taskList)
	if err != nil {
		// a broken cache only costs us the next parse
		os.Remove(cachePath)
	}

	return taskList, nil
}

// printTaskList writes the help listing: every visible task that carries a
// description, in declaration order.
func printTaskList(out io.Writer, taskList buildsys.TaskList) {
	fmt.Fprintln(out, "Available tasks:")

	maxNameLen := 0
	tasks := make([]*buildsys.Task, 0, len(taskList))
	for _, task := range taskList {
		if task.Hidden || task.Desc == "" {
			continue
		}

		if len(task.Short) > maxNameLen {
			maxNameLen = len(task.Short)
		}

		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Pos < tasks[j].Pos })

	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, task := range tasks {
		fmt.Fprintf(out, lineFmt, task.Short+":", task.Desc)
	}
}
