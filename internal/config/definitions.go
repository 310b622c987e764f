package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openbridge/objectsync/internal/model"
)

// definitionsFile is the shape of a YAML file holding synchronization
// definitions. A file may also hold a single bare definition.
type definitionsFile struct {
	Synchronizations []*model.Synchronization `yaml:"synchronizations"`
}

// LoadDefinitions reads synchronization definitions from a YAML file or
// from every .yaml/.yml file in a directory. Each definition's UpdatedAt
// is set to the file's modification time so configuration edits invalidate
// the unchanged-object fast path.
func LoadDefinitions(path string) ([]*model.Synchronization, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions path: %w", err)
	}

	if !info.IsDir() {
		return loadDefinitionsFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)

	var definitions []*model.Synchronization
	for _, file := range files {
		loaded, err := loadDefinitionsFile(file)
		if err != nil {
			return nil, err
		}
		definitions = append(definitions, loaded...)
	}

	if err := validateDefinitions(definitions); err != nil {
		return nil, err
	}
	return definitions, nil
}

func loadDefinitionsFile(path string) ([]*model.Synchronization, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	definitions := file.Synchronizations
	if len(definitions) == 0 {
		// A file may hold one bare definition instead of a list.
		single := &model.Synchronization{}
		if err := yaml.Unmarshal(data, single); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if single.ID == "" {
			return nil, fmt.Errorf("%s: no synchronizations found", path)
		}
		definitions = []*model.Synchronization{single}
	}

	modTime := info.ModTime().UTC()
	for _, def := range definitions {
		if def.UpdatedAt.IsZero() {
			def.UpdatedAt = modTime
		}
	}

	if err := validateDefinitions(definitions); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return definitions, nil
}

func validateDefinitions(definitions []*model.Synchronization) error {
	seen := make(map[string]bool, len(definitions))
	for i, def := range definitions {
		if def.ID == "" {
			return fmt.Errorf("synchronization[%d]: id is required", i)
		}
		if seen[def.ID] {
			return fmt.Errorf("synchronization[%d]: duplicate id %q", i, def.ID)
		}
		seen[def.ID] = true

		if def.SourceType == "" {
			return fmt.Errorf("synchronization %s: sourceType is required", def.ID)
		}
		if def.TargetType == "" {
			return fmt.Errorf("synchronization %s: targetType is required", def.ID)
		}
		if def.SourceID == "" {
			return fmt.Errorf("synchronization %s: sourceId is required", def.ID)
		}
	}
	return nil
}
