package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
)

// Manager bundles every Badger-backed storage behind one handle.
type Manager struct {
	db       *BadgerDB
	missions *MissionStorage
	jobs     *JobStorage
	tasks    *TaskStorage
	users    *UserStorage
	configs  *ConfigStorage
}

// NewManager opens the database and wires the storage services.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}
	return &Manager{
		db:       db,
		missions: NewMissionStorage(db, logger),
		jobs:     NewJobStorage(db, logger),
		tasks:    NewTaskStorage(db, logger),
		users:    NewUserStorage(db, logger),
		configs:  NewConfigStorage(db, logger),
	}, nil
}

func (m *Manager) Missions() interfaces.MissionStorage { return m.missions }
func (m *Manager) Jobs() interfaces.JobStorage         { return m.jobs }
func (m *Manager) Tasks() interfaces.TaskStorage       { return m.tasks }
func (m *Manager) Users() interfaces.UserStorage       { return m.users }
func (m *Manager) Configs() interfaces.ConfigStorage   { return m.configs }

// Close releases the underlying database.
func (m *Manager) Close() error {
	return m.db.Close()
}
