package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/couchcryptid/station-globe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_LastWriteWins(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(domain.StationRecord{ID: "s1", Name: "Radio One", Country: "United Kingdom"}))
	require.NoError(t, r.Register(domain.StationRecord{ID: "s1", Name: "Radio 1", Country: "United Kingdom", State: "England"}))

	got, err := r.Lookup("s1")
	require.NoError(t, err)
	assert.Equal(t, "Radio 1", got.Name)
	assert.Equal(t, "England", got.State)
	assert.Equal(t, 1, r.Len(), "re-registration must not add an entry")
}

func TestLookup_Missing(t *testing.T) {
	r := New()

	_, err := r.Lookup("nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegister_RejectsMalformedRecords(t *testing.T) {
	r := New()

	err := r.Register(domain.StationRecord{Name: "no id", Country: "France"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	err = r.Register(domain.StationRecord{ID: "s2", Name: "no country"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Zero(t, r.Len())
}

func TestRegistry_ConcurrentRegisterAndLookup(t *testing.T) {
	r := New()

	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				id := fmt.Sprintf("s%d", i)
				assert.NoError(t, r.Register(domain.StationRecord{ID: id, Name: fmt.Sprintf("writer %d", w), Country: "Chile"}))
			}
		}()
		go func() {
			defer wg.Done()
			for i := range perWriter {
				if rec, err := r.Lookup(fmt.Sprintf("s%d", i)); err == nil {
					assert.Equal(t, "Chile", rec.Country)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, perWriter, r.Len())
}
