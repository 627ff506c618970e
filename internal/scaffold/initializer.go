package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/burrow/internal/config"
	"gopkg.in/yaml.v3"
)

//go:embed templates/*
var templatesFS embed.FS

// Files and directories created by Initialize, relative to the project directory
const (
	ConfigFile   = "burrow.yml"
	EnvExample   = ".env.example"
	DataDir      = "data"
	templateRoot = "templates"
)

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize creates the burrow project structure in dir
// If force is true, it will remove an existing burrow.yml first. The data/ directory
// is never removed since it holds the source datasets.
func Initialize(dir string, force bool) error {
	// Handle --force flag
	if force {
		if err := handleForce(dir); err != nil {
			return err
		}
	}

	// Get template files
	files, err := getTemplateFiles()
	if err != nil {
		return err
	}

	// Create directories
	if err := os.MkdirAll(filepath.Join(dir, DataDir), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", DataDir, err)
	}

	// Write files
	if err := writeFiles(dir, files); err != nil {
		return err
	}

	// Validate created files
	if err := validateCreatedFiles(dir); err != nil {
		return err
	}

	return nil
}

// handleForce removes existing files if --force was specified
func handleForce(dir string) error {
	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("⚠️  Removing existing %s...\n", ConfigFile)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", ConfigFile, err)
		}
	}

	return nil
}

// getTemplateFiles reads all template files
func getTemplateFiles() ([]FileInfo, error) {
	templates := []struct {
		name string
		path string
	}{
		{"burrow.yml.tmpl", ConfigFile},
		{"env.tmpl", EnvExample},
	}

	files := make([]FileInfo, 0, len(templates))
	for _, tmpl := range templates {
		content, err := templatesFS.ReadFile(templateRoot + "/" + tmpl.name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", tmpl.path, err)
		}
		files = append(files, FileInfo{
			Path:        tmpl.path,
			Content:     content,
			Permissions: 0644,
		})
	}

	return files, nil
}

// writeFiles writes all template files to disk
func writeFiles(dir string, files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(filepath.Join(dir, file.Path), file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return nil
}

// validateCreatedFiles validates that the created burrow.yml is a loadable configuration
func validateCreatedFiles(dir string) error {
	path := filepath.Join(dir, ConfigFile)
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read created %s: %w", ConfigFile, err)
	}

	var yamlData interface{}
	if err := yaml.Unmarshal(content, &yamlData); err != nil {
		return fmt.Errorf("created %s is not valid YAML: %w", ConfigFile, err)
	}

	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("created %s is not a valid configuration: %w", ConfigFile, err)
	}

	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess() {
	fmt.Println("\n✅ Successfully initialized burrow project!")
	fmt.Println("\nCreated:")
	fmt.Println("  ✓ burrow.yml")
	fmt.Println("  ✓ .env.example")
	fmt.Println("  ✓ data/")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Copy the source shapefiles (.shp, .shx, .dbf, .prj) and the crime CSV into data/")
	fmt.Println("  2. Adjust the file names in burrow.yml to match")
	fmt.Println("  3. Run 'burrow run' to build the container and export the CSV tables")
}
