package fixture

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/station-globe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadGeocoder(t *testing.T) {
	path := writeFile(t, "geocode.json", `{
		", United Kingdom": {"latitude": 51.5074, "longitude": -0.1278},
		"Jalisco, Mexico": {"latitude": 20.6597, "longitude": -103.3496}
	}`)

	g, err := LoadGeocoder(path)
	require.NoError(t, err)

	c, err := g.Geocode(context.Background(), ", United Kingdom")
	require.NoError(t, err)
	assert.Equal(t, domain.GeoCoordinate{Latitude: 51.5074, Longitude: -0.1278}, c)

	_, err = g.Geocode(context.Background(), "United Kingdom")
	require.ErrorIs(t, err, domain.ErrGeocodeNotFound)
}

func TestLoadGeocoder_BadJSON(t *testing.T) {
	_, err := LoadGeocoder(writeFile(t, "geocode.json", `[`))
	require.Error(t, err)

	_, err = LoadGeocoder(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestGeocoder_SetAndCancelledContext(t *testing.T) {
	g := NewGeocoder(nil)
	g.Set(", France", domain.GeoCoordinate{Latitude: 46.2276, Longitude: 2.2137})

	_, err := g.Geocode(context.Background(), ", France")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Geocode(ctx, ", France")
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadStations(t *testing.T) {
	path := writeFile(t, "stations.json", `[
		{"id": "s1", "name": "BBC Radio 1", "url": "http://example.invalid/r1", "country": "United Kingdom"},
		{"id": "s2", "name": "Radio Mexicana", "country": "Mexico", "state": "Jalisco"}
	]`)

	stations, err := LoadStations(path)
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.Equal(t, domain.PlaceKey{Country: "United Kingdom"}, stations[0].Key())
	assert.Equal(t, "Jalisco, Mexico", stations[1].Key().Address())
}
