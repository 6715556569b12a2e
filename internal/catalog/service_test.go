package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justchokingaround/vguide/internal/config"
	"github.com/justchokingaround/vguide/internal/database"
	"github.com/justchokingaround/vguide/internal/stream"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return NewService(db)
}

func seed(t *testing.T, s *Service) {
	t.Helper()
	for _, g := range []database.Guide{
		{Slug: "welcome", Title: "Welcome tour", VideoURL: "https://iframe.videodelivery.net/abc123"},
		{Slug: "billing", Title: "Billing basics", VideoURL: "https://iframe.mediadelivery.net/embed/42/def456", Language: "DE"},
		{Slug: "offline", Title: "Offline mode", VideoURL: "/srv/guides/offline.mp4", Provider: "local"},
	} {
		_, err := s.Add(g)
		require.NoError(t, err, g.Slug)
	}
}

func TestService_AddInfersProviderAndNormalizes(t *testing.T) {
	s := newTestService(t)

	g, err := s.Add(database.Guide{
		Slug:     " Welcome-Tour ",
		Title:    " Welcome ",
		VideoURL: "https://customer-xyz.cloudflarestream.com/abc/iframe",
	})
	require.NoError(t, err)

	assert.Equal(t, "welcome-tour", g.Slug)
	assert.Equal(t, "Welcome", g.Title)
	assert.Equal(t, stream.ProviderCloudflare, g.Provider)
	assert.Equal(t, "en", g.Language)
	assert.Len(t, g.ID, 36)
	assert.Zero(t, g.Plays)
	assert.Nil(t, g.LastPlayed)
}

func TestService_AddValidation(t *testing.T) {
	s := newTestService(t)
	seed(t, s)

	tests := []struct {
		name  string
		guide database.Guide
		isErr error
		msg   string
	}{
		{name: "bad slug", guide: database.Guide{Slug: "no spaces", Title: "x", VideoURL: "/a.mp4"}, msg: "invalid slug"},
		{name: "missing title", guide: database.Guide{Slug: "a", VideoURL: "/a.mp4"}, msg: "title"},
		{name: "missing url", guide: database.Guide{Slug: "a", Title: "A"}, msg: "video URL"},
		{name: "unknown provider", guide: database.Guide{Slug: "a", Title: "A", VideoURL: "/a.mp4", Provider: "vimeo"}, msg: "unknown provider"},
		{name: "duplicate", guide: database.Guide{Slug: "welcome", Title: "A", VideoURL: "/a.mp4"}, isErr: ErrDuplicateSlug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Add(tt.guide)
			require.Error(t, err)
			if tt.isErr != nil {
				assert.ErrorIs(t, err, tt.isErr)
			}
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestService_GetBySlugOrID(t *testing.T) {
	s := newTestService(t)
	seed(t, s)

	bySlug, err := s.Get("billing")
	require.NoError(t, err)
	assert.Equal(t, stream.ProviderBunny, bySlug.Provider)
	assert.Equal(t, "de", bySlug.Language)

	byID, err := s.Get(bySlug.ID)
	require.NoError(t, err)
	assert.Equal(t, "billing", byID.Slug)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_List(t *testing.T) {
	s := newTestService(t)
	seed(t, s)

	slugs := func(items []Guide) []string {
		out := make([]string, len(items))
		for i, g := range items {
			out[i] = g.Slug
		}
		return out
	}

	tests := []struct {
		name   string
		filter FilterOptions
		want   []string
	}{
		{name: "title order", filter: FilterOptions{}, want: []string{"billing", "offline", "welcome"}},
		{name: "title desc", filter: FilterOptions{SortBy: SortTitleDesc}, want: []string{"welcome", "offline", "billing"}},
		{name: "language", filter: FilterOptions{Language: "de"}, want: []string{"billing"}},
		{name: "provider", filter: FilterOptions{Provider: stream.ProviderLocal}, want: []string{"offline"}},
		{name: "search", filter: FilterOptions{SearchQuery: "tour"}, want: []string{"welcome"}},
		{name: "paging", filter: FilterOptions{Limit: 1, Offset: 1}, want: []string{"offline"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := s.List(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, slugs(items))
		})
	}
}

func TestService_SessionsFeedStats(t *testing.T) {
	s := newTestService(t)
	seed(t, s)
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	welcome, err := s.Get("welcome")
	require.NoError(t, err)
	offline, err := s.Get("offline")
	require.NoError(t, err)

	first, err := s.StartSession(welcome.ID, stream.Descriptor{ResolvedURL: "https://videodelivery.net/abc123/manifest/video.m3u8"})
	require.NoError(t, err)
	require.NoError(t, s.EndSession(first, 30*time.Second, false))

	s.now = func() time.Time { return base.Add(time.Hour) }
	second, err := s.StartSession(offline.ID, stream.Local("/srv/guides/offline.mp4"))
	require.NoError(t, err)
	require.NoError(t, s.EndSession(second, 15*time.Second, true))

	assert.Error(t, s.EndSession(999, 0, false))

	g, err := s.Get("welcome")
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.Plays)
	require.NotNil(t, g.LastPlayed)
	assert.True(t, g.LastPlayed.Equal(base), g.LastPlayed)

	recent, err := s.List(FilterOptions{SortBy: SortRecentlyUsed})
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "offline", recent[0].Slug)
	assert.Equal(t, "welcome", recent[1].Slug)
	assert.Equal(t, "billing", recent[2].Slug)

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Guides)
	assert.Equal(t, int64(2), stats.Sessions)
	assert.Equal(t, int64(1), stats.ExhaustedCount)
	assert.Equal(t, 45*time.Second, stats.TotalWatchTime)
}

func TestService_RemoveDeletesSessions(t *testing.T) {
	s := newTestService(t)
	seed(t, s)

	g, err := s.Get("welcome")
	require.NoError(t, err)
	_, err = s.StartSession(g.ID, stream.Descriptor{ResolvedURL: "x"})
	require.NoError(t, err)

	require.NoError(t, s.Remove("welcome"))
	_, err = s.Get("welcome")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Remove("welcome"), ErrNotFound)

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Zero(t, stats.Sessions)
}

func TestService_Cleanup(t *testing.T) {
	s := newTestService(t)
	seed(t, s)
	g, err := s.Get("welcome")
	require.NoError(t, err)

	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now.AddDate(0, 0, -60) }
	_, err = s.StartSession(g.ID, stream.Descriptor{ResolvedURL: "old"})
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	_, err = s.StartSession(g.ID, stream.Descriptor{ResolvedURL: "new"})
	require.NoError(t, err)

	removed, err := s.Cleanup(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestService_NilDB(t *testing.T) {
	s := NewService(nil)
	_, err := s.List(FilterOptions{})
	assert.Error(t, err)
	_, err = s.Add(database.Guide{})
	assert.Error(t, err)
}

func TestService_Suggest(t *testing.T) {
	s := newTestService(t)
	seed(t, s)

	tests := []struct {
		query string
		want  []string
	}{
		{"welcom", []string{"welcome"}},
		{"ofln", []string{"offline"}},
		{"BIL", []string{"billing"}},
		{"zzz", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := s.Suggest(tt.query, 3)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
