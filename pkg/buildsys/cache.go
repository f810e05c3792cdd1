package buildsys

import (
	"encoding/gob"
	"os"
)

func init() {
	gob.Register(TaskList{})
	gob.Register(Task{})
	gob.Register(TaskCmdScript{})
	gob.Register(TaskCmdTaskRef{})
}

// WriteCache stores the parsed task list along with the option values it was
// parsed with.
func WriteCache(file string, options map[string]string, list TaskList) error {
	handle, err := os.Create(file)
	if err != nil {
		return err
	}
	defer handle.Close()

	encoder := gob.NewEncoder(handle)
	err = encoder.Encode(options)
	if err != nil {
		return err
	}

	return encoder.Encode(list)
}

func ReadCache(file string) (map[string]string, TaskList, error) {
	handle, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	defer handle.Close()

	decoder := gob.NewDecoder(handle)

	var options map[string]string
	err = decoder.Decode(&options)
	if err != nil {
		return nil, nil, err
	}

	var result TaskList
	err = decoder.Decode(&result)
	if err != nil {
		return options, nil, err
	}

	return options, result, nil
}

// CacheFresh reports whether the cache file is newer than the task script.
func CacheFresh(cacheFile, scriptFile string) bool {
	cacheInfo, err := os.Stat(cacheFile)
	if err != nil {
		return false
	}

	scriptInfo, err := os.Stat(scriptFile)
	if err != nil {
		return false
	}

	return cacheInfo.ModTime().After(scriptInfo.ModTime())
}
