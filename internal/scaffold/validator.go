package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckExisting returns an error if dir already holds larder.yml or
// defaults.yaml.
func CheckExisting(dir string) error {
	var existingFiles []string
	for _, name := range []string{ConfigFile, DefaultsFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			existingFiles = append(existingFiles, name)
		}
	}

	if len(existingFiles) == 0 {
		return nil
	}

	errMsg := "configuration already initialized\n\nFound existing"
	if len(existingFiles) == 1 {
		errMsg += fmt.Sprintf(": %s\n", existingFiles[0])
	} else {
		errMsg += " files:\n"
		for _, file := range existingFiles {
			errMsg += fmt.Sprintf("  - %s\n", file)
		}
	}
	errMsg += "\nUse 'larder init --force' to reinitialize (this will overwrite existing configuration)"

	return fmt.Errorf("%s", errMsg)
}
