package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	"gorm.io/gorm"

	"github.com/justchokingaround/vguide/internal/database"
	"github.com/justchokingaround/vguide/internal/stream"
)

var (
	// ErrNotFound is returned when no guide matches
	ErrNotFound = errors.New("guide not found")
	// ErrDuplicateSlug is returned when adding a guide whose slug is taken
	ErrDuplicateSlug = errors.New("guide slug already exists")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Service manages guides and their playback sessions
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// SortOrder defines the sorting order for guide listings
type SortOrder string

const (
	SortTitleAsc     SortOrder = "title_asc"
	SortTitleDesc    SortOrder = "title_desc"
	SortNewestFirst  SortOrder = "newest_first"
	SortRecentlyUsed SortOrder = "recently_played"
)

// FilterOptions defines filtering options for guide queries
type FilterOptions struct {
	Language    string
	Provider    stream.Provider
	SearchQuery string // matched against title and slug
	Limit       int    // 0 = no limit
	Offset      int
	SortBy      SortOrder
}

// Guide is a catalog entry with its playback statistics
type Guide struct {
	ID            string          `json:"id"`
	Slug          string          `json:"slug"`
	Title         string          `json:"title"`
	Provider      stream.Provider `json:"provider"`
	VideoURL      string          `json:"video_url"`
	Language      string          `json:"language"`
	FallbackAsset string          `json:"fallback_asset,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Plays         int64           `json:"plays"`
	LastPlayed    *time.Time      `json:"last_played,omitempty"`
}

// Stats summarizes playback across the catalog
type Stats struct {
	Guides         int64
	Sessions       int64
	ExhaustedCount int64
	TotalWatchTime time.Duration
}

// NewService creates a new catalog service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

func (s *Service) ready() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return nil
}

// Add validates and stores a new guide. An empty provider is inferred from the URL.
func (s *Service) Add(g database.Guide) (*Guide, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	g.Slug = strings.ToLower(strings.TrimSpace(g.Slug))
	g.Title = strings.TrimSpace(g.Title)
	g.VideoURL = strings.TrimSpace(g.VideoURL)
	g.Language = strings.ToLower(strings.TrimSpace(g.Language))

	if !slugPattern.MatchString(g.Slug) {
		return nil, fmt.Errorf("invalid slug %q: use lowercase letters, digits and dashes", g.Slug)
	}
	if g.Title == "" {
		return nil, fmt.Errorf("guide %s needs a title", g.Slug)
	}
	if g.VideoURL == "" {
		return nil, fmt.Errorf("guide %s needs a video URL", g.Slug)
	}
	if g.Language == "" {
		g.Language = "en"
	}

	provider, err := parseProvider(g.Provider)
	if err != nil {
		return nil, err
	}
	if provider == stream.ProviderUnknown {
		provider = stream.InferProvider(g.VideoURL)
	}
	g.Provider = string(provider)

	var count int64
	if err := s.db.Model(&database.Guide{}).Where("slug = ?", g.Slug).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSlug, g.Slug)
	}

	if err := s.db.Create(&g).Error; err != nil {
		return nil, fmt.Errorf("failed to add guide: %w", err)
	}
	return s.Get(g.Slug)
}

func parseProvider(name string) (stream.Provider, error) {
	switch p := stream.Provider(strings.ToLower(strings.TrimSpace(name))); p {
	case stream.ProviderUnknown, stream.ProviderCloudflare, stream.ProviderBunny, stream.ProviderLocal:
		return p, nil
	default:
		return "", fmt.Errorf("unknown provider %q (want cloudflare, bunny or local)", name)
	}
}

// Get returns the guide with the given slug or ID
func (s *Service) Get(slugOrID string) (*Guide, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var record database.Guide
	err := s.db.Where("slug = ? OR id = ?", strings.ToLower(slugOrID), slugOrID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slugOrID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch guide: %w", err)
	}

	items, err := s.withStats([]database.Guide{record})
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// Suggest returns up to limit slugs whose slug or title fuzzily matches query, best first
func (s *Service) Suggest(query string, limit int) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var records []database.Guide
	if err := s.db.Select("slug", "title").Order("slug").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load guides: %w", err)
	}

	candidates := make([]string, 0, 2*len(records))
	owners := make([]string, 0, 2*len(records))
	for _, r := range records {
		candidates = append(candidates, r.Slug, strings.ToLower(r.Title))
		owners = append(owners, r.Slug, r.Slug)
	}

	var out []string
	seen := make(map[string]bool)
	for _, m := range fuzzy.Find(strings.ToLower(strings.TrimSpace(query)), candidates) {
		slug := owners[m.Index]
		if seen[slug] {
			continue
		}
		seen[slug] = true
		out = append(out, slug)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// List retrieves guides with filtering and sorting
func (s *Service) List(filter FilterOptions) ([]Guide, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	query := s.db.Model(&database.Guide{})

	if filter.Language != "" {
		query = query.Where("language = ?", strings.ToLower(filter.Language))
	}
	if filter.Provider != stream.ProviderUnknown {
		query = query.Where("provider = ?", string(filter.Provider))
	}
	if filter.SearchQuery != "" {
		like := "%" + filter.SearchQuery + "%"
		query = query.Where("title LIKE ? OR slug LIKE ?", like, like)
	}

	switch filter.SortBy {
	case SortTitleDesc:
		query = query.Order("title DESC")
	case SortNewestFirst:
		query = query.Order("created_at DESC").Order("title ASC")
	case SortRecentlyUsed:
		query = query.Order("(SELECT MAX(started_at) FROM sessions WHERE sessions.guide_id = guides.id) DESC").Order("title ASC")
	default: // SortTitleAsc
		query = query.Order("title ASC")
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var records []database.Guide
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch guides: %w", err)
	}

	return s.withStats(records)
}

// withStats attaches play counts and last play times
func (s *Service) withStats(records []database.Guide) ([]Guide, error) {
	items := make([]Guide, len(records))
	if len(records) == 0 {
		return items, nil
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}

	var rows []struct {
		GuideID    string
		Plays      int64
		LastPlayed string
	}
	if err := s.db.Model(&database.Session{}).
		Select("guide_id, COUNT(*) AS plays, MAX(started_at) AS last_played").
		Where("guide_id IN ?", ids).
		Group("guide_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch play counts: %w", err)
	}

	type stat struct {
		plays int64
		last  string
	}
	stats := make(map[string]stat, len(rows))
	for _, row := range rows {
		stats[row.GuideID] = stat{plays: row.Plays, last: row.LastPlayed}
	}

	for i, r := range records {
		items[i] = Guide{
			ID:            r.ID,
			Slug:          r.Slug,
			Title:         r.Title,
			Provider:      stream.Provider(r.Provider),
			VideoURL:      r.VideoURL,
			Language:      r.Language,
			FallbackAsset: r.FallbackAsset,
			CreatedAt:     r.CreatedAt,
		}
		if st, ok := stats[r.ID]; ok {
			items[i].Plays = st.plays
			if t, ok := parseTimestamp(st.last); ok {
				items[i].LastPlayed = &t
			}
		}
	}
	return items, nil
}

// sqlite returns aggregate timestamps as text in the driver's storage format
func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Remove deletes a guide and its sessions
func (s *Service) Remove(slugOrID string) error {
	guide, err := s.Get(slugOrID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("guide_id = ?", guide.ID).Delete(&database.Session{}).Error; err != nil {
			return err
		}
		return tx.Delete(&database.Guide{}, "id = ?", guide.ID).Error
	})
}

// StartSession records the start of a playback run
func (s *Service) StartSession(guideID string, desc stream.Descriptor) (uint, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	session := database.Session{
		GuideID:     guideID,
		ResolvedURL: desc.ResolvedURL,
		Resolution:  desc.Resolution,
		StartedAt:   s.now(),
	}
	if err := s.db.Create(&session).Error; err != nil {
		return 0, fmt.Errorf("failed to record session: %w", err)
	}
	return session.ID, nil
}

// EndSession stores where a run stopped and whether it ended on the local asset
func (s *Service) EndSession(id uint, position time.Duration, exhausted bool) error {
	if err := s.ready(); err != nil {
		return err
	}

	ended := s.now()
	res := s.db.Model(&database.Session{}).Where("id = ?", id).Updates(map[string]any{
		"position_seconds": position.Seconds(),
		"exhausted":        exhausted,
		"ended_at":         ended,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to close session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %d not found", id)
	}
	return nil
}

// GetStats retrieves catalog-wide playback statistics
func (s *Service) GetStats() (*Stats, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var stats Stats
	if err := s.db.Model(&database.Guide{}).Count(&stats.Guides).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&database.Session{}).Count(&stats.Sessions).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&database.Session{}).Where("exhausted = ?", true).Count(&stats.ExhaustedCount).Error; err != nil {
		return nil, err
	}

	var seconds float64
	if err := s.db.Model(&database.Session{}).Select("COALESCE(SUM(position_seconds), 0)").Scan(&seconds).Error; err != nil {
		return nil, err
	}
	stats.TotalWatchTime = time.Duration(seconds * float64(time.Second))

	return &stats, nil
}

// Cleanup removes sessions older than the retention period
func (s *Service) Cleanup(retention time.Duration) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-retention)
	res := s.db.Where("started_at < ?", cutoff).Delete(&database.Session{})
	return res.RowsAffected, res.Error
}
