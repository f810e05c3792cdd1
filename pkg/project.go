package pkg

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
)

// GetProjectRoot walks from the working directory towards the filesystem root
// and returns the first directory containing a .git entry.
func GetProjectRoot() (string, error) {
	path, err := os.Getwd()
	if err != nil {
		return "", eris.Wrap(err, "Failed to retrieve the current working directory")
	}

	for {
		gitPath := filepath.Join(path, ".git")
		_, err := os.Stat(gitPath)
		if err == nil {
			return path, nil
		}

		if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrap(err, "Error occurred while searching for project root")
		}

		nextPath := filepath.Dir(path)
		if path == nextPath {
			break
		}
		path = nextPath
	}

	return "", eris.New("Project root not found")
}

func PrintTask(msg string) {
	colorstring.Printf("[blue][bold]==>[default] %s\n", msg)
}

func PrintSubtask(msg string) {
	colorstring.Printf("[green][bold]  ->[reset] %s\n", msg)
}

func PrintError(msg string) {
	colorstring.Printf("[red][bold]  ->[reset] %s\n", msg)
}
