package store

import (
	"fmt"
	"testing"

	"percolator/core/keys"
	"percolator/internal/slab"

	"github.com/stretchr/testify/require"
)

type memDB struct {
	data map[string][]byte
}

func newMemDB() *memDB { return &memDB{data: map[string][]byte{}} }

func (m *memDB) Put(key, value []byte) error {
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *memDB) Get(key []byte) ([]byte, error) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return v, nil
}

func (m *memDB) Close() error { return nil }

func TestSaveAndLoadSlabRoundTrips(t *testing.T) {
	db := newMemDB()
	s := slab.New(keys.Pubkey{1}, keys.Pubkey{2}, 7, slab.MarketConfig{MaintenanceFeeBps: 50})
	idx, err := s.AllocateAccount(keys.Pubkey{9}, slab.KindUser)
	require.NoError(t, err)
	s.Accounts[idx].Capital = 12345

	require.NoError(t, SaveSlab(db, s))

	loaded, err := LoadSlab(db)
	require.NoError(t, err)
	require.Equal(t, s.Header.UnitScale, loaded.Header.UnitScale)
	require.Equal(t, uint64(12345), loaded.Accounts[idx].Capital)
	require.Equal(t, s.Config.MaintenanceFeeBps, loaded.Config.MaintenanceFeeBps)
}
