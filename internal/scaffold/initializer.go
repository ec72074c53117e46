// Package scaffold writes a starter larder configuration.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/larder/internal/normalize"
	"gopkg.in/yaml.v3"
)

//go:embed templates/*
var templatesFS embed.FS

// Files written by Initialize, relative to the target directory.
const (
	ConfigFile   = "larder.yml"
	DefaultsFile = "defaults.yaml"
)

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize writes larder.yml and defaults.yaml into dir.
// If force is true, existing files are replaced.
func Initialize(dir string, force bool) error {
	if force {
		if err := handleForce(dir); err != nil {
			return err
		}
	} else if err := CheckExisting(dir); err != nil {
		return err
	}

	files, err := getTemplateFiles()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := writeFiles(dir, files); err != nil {
		return err
	}

	return validateCreatedFiles(dir)
}

// handleForce removes existing files if --force was specified
func handleForce(dir string) error {
	for _, name := range []string{ConfigFile, DefaultsFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("⚠️  Removing existing %s...\n", name)
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove %s: %w", name, err)
			}
		}
	}
	return nil
}

// getTemplateFiles collects the configuration template and the built-in
// default tables.
func getTemplateFiles() ([]FileInfo, error) {
	cfg, err := templatesFS.ReadFile("templates/larder.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read larder.yml template: %w", err)
	}

	return []FileInfo{
		{Path: ConfigFile, Content: cfg, Permissions: 0644},
		{Path: DefaultsFile, Content: normalize.DefaultTablesYAML(), Permissions: 0644},
	}, nil
}

// writeFiles writes all template files to disk
func writeFiles(dir string, files []FileInfo) error {
	for _, file := range files {
		path := filepath.Join(dir, file.Path)
		if err := os.WriteFile(path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}
	return nil
}

// validateCreatedFiles checks that larder.yml is well-formed and that the
// default tables produce valid artifacts.
func validateCreatedFiles(dir string) error {
	content, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return fmt.Errorf("failed to read created %s: %w", ConfigFile, err)
	}

	var doc struct {
		Version string `yaml:"version"`
	}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("created %s is not valid YAML: %w", ConfigFile, err)
	}
	if doc.Version != "1.0" {
		return fmt.Errorf("created %s has unsupported version %q", ConfigFile, doc.Version)
	}

	defaults, err := normalize.LoadDefaults(filepath.Join(dir, DefaultsFile))
	if err != nil {
		return fmt.Errorf("created %s is invalid: %w", DefaultsFile, err)
	}
	if _, err := normalize.New(defaults); err != nil {
		return fmt.Errorf("created %s is invalid: %w", DefaultsFile, err)
	}

	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess(dir string) {
	fmt.Println("\n✅ Successfully initialized larder configuration!")
	fmt.Println("\nCreated:")
	fmt.Printf("  ✓ %s\n", filepath.Join(dir, ConfigFile))
	fmt.Printf("  ✓ %s\n", filepath.Join(dir, DefaultsFile))
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Export LARDER_GENERATOR_API_KEY with your Gemini API key")
	fmt.Println("  2. Adjust daily limits, lifetimes and sources in larder.yml")
	fmt.Println("  3. Run 'larder serve' to start the HTTP API")
}
