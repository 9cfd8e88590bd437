package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
	"gopkg.in/yaml.v3"
)

// missionFile is the on-disk YAML shape of a mission template.
type missionFile struct {
	Name    string                          `yaml:"name" validate:"required"`
	Version int                             `yaml:"version" validate:"required,min=1"`
	Params  map[string]interface{}          `yaml:"params"`
	Tasks   map[string]*missionFileTask     `yaml:"tasks" validate:"required,min=1,dive,required"`
}

type missionFileTask struct {
	Party     string                 `yaml:"party" validate:"required"`
	Class     string                 `yaml:"class" validate:"required"`
	ClassPath string                 `yaml:"class_path" validate:"required"`
	Args      map[string]interface{} `yaml:"args"`
	Depends   []string               `yaml:"depends"`
}

// LoadMissionsFromDir parses every *.yml/*.yaml mission template in dir
// and saves the revisions that do not exist yet. Revisions already in
// storage are skipped, missions are immutable once saved.
func LoadMissionsFromDir(ctx context.Context, logger arbor.ILogger, missions interfaces.MissionStorage, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read missions directory %s: %w", dir, err)
	}

	validate := validator.New()
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		mission, err := parseMissionFile(validate, path)
		if err != nil {
			return loaded, err
		}
		if err := missions.SaveMission(ctx, mission); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				continue
			}
			return loaded, err
		}
		logger.Info().
			Str("mission", mission.Name).
			Int("version", mission.Version).
			Str("file", entry.Name()).
			Msg("Mission template loaded")
		loaded++
	}
	return loaded, nil
}

func parseMissionFile(validate *validator.Validate, path string) (*models.Mission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mission file %s: %w", path, err)
	}
	var file missionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse mission file %s: %w", path, err)
	}
	if err := validate.Struct(&file); err != nil {
		return nil, fmt.Errorf("invalid mission file %s: %w", path, err)
	}

	dag := &models.MissionDAG{
		Params: file.Params,
		Tasks:  make(map[string]*models.OperatorSpec, len(file.Tasks)),
	}
	for name, task := range file.Tasks {
		dag.Tasks[name] = &models.OperatorSpec{
			Party:     task.Party,
			Class:     task.Class,
			ClassPath: task.ClassPath,
			Args:      task.Args,
			Depends:   task.Depends,
		}
	}
	for name, spec := range dag.Tasks {
		for _, dep := range spec.Depends {
			if _, ok := dag.Tasks[dep]; !ok {
				return nil, fmt.Errorf("invalid mission file %s: task %s depends on unknown task %s", path, name, dep)
			}
		}
	}

	mission := &models.Mission{Name: file.Name, Version: file.Version}
	if err := mission.SetDAG(dag); err != nil {
		return nil, err
	}
	return mission, nil
}
