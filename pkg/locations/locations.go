// Package locations reads the user-maintained directory of named places
// used to attach geofences to new reminders.
package locations

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// FileName is the directory file inside the data directory.
const FileName = "locations.json"

// DefaultRadius in meters, used when an entry has no radius.
const DefaultRadius = 100.0

// ErrMalformedDirectory means the location file exists but cannot be read.
var ErrMalformedDirectory = errors.New("malformed location directory")

type Location struct {
	Name   string   `json:"name"`
	Lat    float64  `json:"lat"`
	Lon    float64  `json:"lon"`
	Radius *float64 `json:"radius,omitempty"`
}

// RadiusOrDefault returns the entry radius, or DefaultRadius.
func (l Location) RadiusOrDefault() float64 {
	if l.Radius == nil || *l.Radius <= 0 {
		return DefaultRadius
	}
	return *l.Radius
}

type Directory struct {
	Locations map[string]Location `json:"locations"`
}

// Load reads the directory at path. A missing file is an empty directory.
func Load(path string) (*Directory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Directory{Locations: map[string]Location{}}, nil
		}
		return nil, fmt.Errorf("read location directory %s: %w", path, err)
	}

	var d Directory
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDirectory, path, err)
	}
	if d.Locations == nil {
		d.Locations = map[string]Location{}
	}
	return &d, nil
}

// Lookup resolves name against the directory, case-insensitively: first an
// exact key, then a key starting with name, then an entry whose display
// name contains it. Keys are visited in sorted order so ties resolve the
// same way on every run.
func (d *Directory) Lookup(name string) (Location, bool) {
	if d == nil || len(d.Locations) == 0 {
		return Location{}, false
	}
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return Location{}, false
	}

	keys := make([]string, 0, len(d.Locations))
	for k := range d.Locations {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	passes := []func(key string, loc Location) bool{
		func(key string, _ Location) bool { return strings.ToLower(key) == needle },
		func(key string, _ Location) bool { return strings.HasPrefix(strings.ToLower(key), needle) },
		func(_ string, loc Location) bool { return strings.Contains(strings.ToLower(loc.Name), needle) },
	}
	for _, match := range passes {
		for _, k := range keys {
			if loc := d.Locations[k]; match(k, loc) {
				if loc.Name == "" {
					loc.Name = k
				}
				return loc, true
			}
		}
	}
	return Location{}, false
}
