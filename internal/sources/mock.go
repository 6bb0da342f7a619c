package sources

import (
	"context"

	"github.com/dkrugman/pf-aspect/internal/domain"
)

var _ Source = (*MockSource)(nil)

// MockSource is an in-memory source for tests. Playlists and items can be
// mutated between calls to simulate remote edits, and each method can be
// forced to fail.
type MockSource struct {
	SourceName string

	Lists    []domain.RemotePlaylist
	Media    map[string][]domain.MediaItem
	Versions map[string]int64

	LoginErr error
	ListErr  error
	ItemsErr error

	LoginCalls int
	ListCalls  int
	ItemsCalls map[string]int
}

func NewMockSource(name string) *MockSource {
	return &MockSource{
		SourceName: name,
		Media:      make(map[string][]domain.MediaItem),
		Versions:   make(map[string]int64),
		ItemsCalls: make(map[string]int),
	}
}

func (m *MockSource) Name() string {
	return m.SourceName
}

func (m *MockSource) Login(ctx context.Context) error {
	m.LoginCalls++
	return m.LoginErr
}

func (m *MockSource) Playlists(ctx context.Context) ([]domain.RemotePlaylist, error) {
	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	lists := make([]domain.RemotePlaylist, len(m.Lists))
	copy(lists, m.Lists)
	return lists, nil
}

func (m *MockSource) Items(ctx context.Context, playlistID string) ([]domain.MediaItem, int64, error) {
	m.ItemsCalls[playlistID]++
	if m.ItemsErr != nil {
		return nil, 0, m.ItemsErr
	}
	items := make([]domain.MediaItem, len(m.Media[playlistID]))
	copy(items, m.Media[playlistID])
	return items, m.Versions[playlistID], nil
}

// AddPlaylist installs or replaces a playlist with its items and version.
func (m *MockSource) AddPlaylist(pl domain.RemotePlaylist, version int64, items ...domain.MediaItem) {
	for i := range m.Lists {
		if m.Lists[i].ID == pl.ID {
			m.Lists[i] = pl
			m.Media[pl.ID] = items
			m.Versions[pl.ID] = version
			return
		}
	}
	m.Lists = append(m.Lists, pl)
	m.Media[pl.ID] = items
	m.Versions[pl.ID] = version
}

// RemovePlaylist drops a playlist from the listing, as if deleted remotely.
func (m *MockSource) RemovePlaylist(id string) {
	for i := range m.Lists {
		if m.Lists[i].ID == id {
			m.Lists = append(m.Lists[:i], m.Lists[i+1:]...)
			break
		}
	}
	delete(m.Media, id)
	delete(m.Versions, id)
}
