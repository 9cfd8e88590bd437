package models

import "time"

// GlobalConfigEntry is a platform-wide key/value setting.
type GlobalConfigEntry struct {
	Key        string    `json:"key" badgerhold:"key"`
	Value      string    `json:"value"`
	UpdateTime time.Time `json:"update_time"`
}

// MissionContextEntry is a mission-scoped key/value pair with a TTL.
// Entries past ExpireTime are invisible to readers and purged by the
// background sweeper. VersionID implements optimistic locking.
type MissionContextEntry struct {
	MissionName string    `json:"mission_name" badgerhold:"index"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	ExpireTime  time.Time `json:"expire_time"`
	VersionID   string    `json:"version_id"`
}

// StorageKey returns the unique key for this entry.
func (e *MissionContextEntry) StorageKey() string {
	return e.MissionName + "/" + e.Key
}

// Expired reports whether the entry is past its TTL at the given time.
func (e *MissionContextEntry) Expired(now time.Time) bool {
	return now.After(e.ExpireTime)
}
