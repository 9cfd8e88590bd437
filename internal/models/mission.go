package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Mission is a versioned workflow template. The DAG field holds the
// JSON-encoded MissionDAG so storage stays schema-free.
type Mission struct {
	Name       string    `json:"name" badgerhold:"index"`
	Version    int       `json:"version"`
	DAG        []byte    `json:"dag"`
	CreateTime time.Time `json:"create_time"`
}

// Key returns the unique storage key for this mission revision.
func (m *Mission) Key() string {
	return fmt.Sprintf("%s@%d", m.Name, m.Version)
}

// ParseDAG decodes the stored workflow definition.
func (m *Mission) ParseDAG() (*MissionDAG, error) {
	var dag MissionDAG
	if err := json.Unmarshal(m.DAG, &dag); err != nil {
		return nil, fmt.Errorf("mission %s: invalid dag: %w", m.Key(), err)
	}
	return &dag, nil
}

// SetDAG encodes and stores the workflow definition.
func (m *Mission) SetDAG(dag *MissionDAG) error {
	data, err := json.Marshal(dag)
	if err != nil {
		return fmt.Errorf("mission %s: encode dag: %w", m.Key(), err)
	}
	m.DAG = data
	return nil
}

// MissionDAG is the declarative workflow carried by a mission.
type MissionDAG struct {
	Params map[string]interface{}   `json:"params,omitempty"`
	Tasks  map[string]*OperatorSpec `json:"tasks" validate:"required,min=1,dive"`
}

// OperatorSpec declares one task template inside a mission DAG.
type OperatorSpec struct {
	Party     string                 `json:"party" validate:"required"`
	Class     string                 `json:"class" validate:"required"`
	ClassPath string                 `json:"class_path" validate:"required"`
	Args      map[string]interface{} `json:"args,omitempty"`
	Depends   []string               `json:"depends,omitempty"`
}
