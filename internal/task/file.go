package task

import (
	"encoding/json"
	"fmt"
	"os"
)

// Capture is a task dropped into the inbox directory by capture tooling
// (camera, geolocation, quick-entry scripts). It carries content fields
// only; the importer assigns a local identifier and timestamps.
type Capture struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Location    json.RawMessage `json:"location,omitempty"`
	Photo       json.RawMessage `json:"photo,omitempty"`
}

// ReadCaptureFile reads and validates a capture JSON file.
func ReadCaptureFile(path string) (*Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture file %s: %w", path, err)
	}

	var c Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse capture file %s: %w", path, err)
	}

	if c.Title == "" {
		return nil, fmt.Errorf("invalid capture file %s: title is required", path)
	}

	return &c, nil
}

// ToTask converts a capture into a new dirty local task.
func (c *Capture) ToTask() *Task {
	t := New(c.Title, c.Description)
	t.Location = c.Location
	t.Photo = c.Photo
	return t
}
