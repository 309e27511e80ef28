package locations

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func radius(v float64) *float64 { return &v }

func testDirectory() *Directory {
	return &Directory{Locations: map[string]Location{
		"home":     {Name: "Home", Lat: 52.52, Lon: 13.40},
		"homebase": {Name: "Climbing gym", Lat: 52.50, Lon: 13.41, Radius: radius(50)},
		"office":   {Name: "ACME Headquarters", Lat: 48.13, Lon: 11.58, Radius: radius(250)},
		"market":   {Name: "Farmers market at home street", Lat: 1, Lon: 2},
	}}
}

func TestLookup_Precedence(t *testing.T) {
	d := testDirectory()

	tests := []struct {
		name    string
		query   string
		wantKey string
		found   bool
	}{
		{"exact key wins over prefix", "home", "Home", true},
		{"exact key is case-insensitive", "OFFICE", "ACME Headquarters", true},
		{"key prefix", "off", "ACME Headquarters", true},
		{"key prefix before name substring", "homeb", "Climbing gym", true},
		{"name substring", "headquarters", "ACME Headquarters", true},
		{"name substring mid-word", "farmers", "Farmers market at home street", true},
		{"no match", "airport", "", false},
		{"blank query", "  ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, ok := d.Lookup(tt.query)
			require.Equal(t, tt.found, ok)
			assert.Equal(t, tt.wantKey, loc.Name)
		})
	}
}

func TestLookup_PrefixTieIsStable(t *testing.T) {
	d := &Directory{Locations: map[string]Location{
		"storeb": {Name: "B"},
		"storea": {Name: "A"},
		"storec": {Name: "C"},
	}}
	for i := 0; i < 20; i++ {
		loc, ok := d.Lookup("store")
		require.True(t, ok)
		assert.Equal(t, "A", loc.Name)
	}
}

func TestLookup_NilDirectory(t *testing.T) {
	var d *Directory
	_, ok := d.Lookup("home")
	assert.False(t, ok)
}

func TestRadiusOrDefault(t *testing.T) {
	assert.Equal(t, DefaultRadius, Location{}.RadiusOrDefault())
	assert.Equal(t, DefaultRadius, Location{Radius: radius(0)}.RadiusOrDefault())
	assert.Equal(t, 250.0, Location{Radius: radius(250)}.RadiusOrDefault())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		d, err := Load(filepath.Join(dir, "missing.json"))
		require.NoError(t, err)
		assert.Empty(t, d.Locations)
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, FileName)
		require.NoError(t, os.WriteFile(path, []byte(`{"locations": {"home": {"name": "Home", "lat": 1.5, "lon": 2.5, "radius": 75}}}`), 0o600))

		d, err := Load(path)
		require.NoError(t, err)
		require.Contains(t, d.Locations, "home")
		assert.Equal(t, 1.5, d.Locations["home"].Lat)
		assert.Equal(t, 75.0, d.Locations["home"].RadiusOrDefault())
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"locations": [`), 0o600))

		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedDirectory))
	})
}
