package store

import (
	"encoding/json"
	"fmt"
	"time"
)

const versionKey = "current_version"

// VersionMarker records which version is installed and when it got there.
type VersionMarker struct {
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CurrentVersion reads the installed-version marker. An absent marker
// returns a nil marker and no error: nothing has been installed yet.
func CurrentVersion(s Store) (*VersionMarker, error) {
	data, ok, err := s.Get(versionKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var m VersionMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal version marker: %w", err)
	}
	return &m, nil
}

// CommitVersion writes the installed-version marker. This is the last step
// of a successful apply.
func CommitVersion(s Store, version string, at time.Time) error {
	data, err := json.MarshalIndent(VersionMarker{Version: version, UpdatedAt: at.UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal version marker: %w", err)
	}
	return s.Set(versionKey, data)
}
