package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/justchokingaround/vguide/internal/catalog"
	"github.com/justchokingaround/vguide/internal/database"
	"github.com/justchokingaround/vguide/internal/httpclient"
	"github.com/justchokingaround/vguide/internal/scraper"
	"github.com/justchokingaround/vguide/internal/stream"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	slugStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(14)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

// guideCmd manages the guide catalog
var guideCmd = &cobra.Command{
	Use:     "guide",
	Aliases: []string{"guides"},
	Short:   "Manage the guide catalog",
}

var guideAddCmd = &cobra.Command{
	Use:   "add <slug> <url>",
	Short: "Add a guide video to the catalog",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		provider, _ := cmd.Flags().GetString("provider")
		language, _ := cmd.Flags().GetString("language")
		fallback, _ := cmd.Flags().GetString("fallback")
		fromPage, _ := cmd.Flags().GetBool("from-page")

		videoURL := args[1]
		if fromPage {
			embed, err := discoverEmbed(cmd.Context(), videoURL)
			if err != nil {
				return err
			}
			videoURL = embed.URL
			if title == "" {
				title = embed.Title
			}
		}
		if title == "" {
			title = titleFromSlug(args[0])
		}

		guide, err := catalog.NewService(database.DB).Add(database.Guide{
			Slug:          args[0],
			Title:         title,
			Provider:      provider,
			VideoURL:      videoURL,
			Language:      language,
			FallbackAsset: fallback,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Added %s (%s, %s)\n", slugStyle.Render(guide.Slug), guide.Provider, guide.ID)
		return nil
	},
}

var guideListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog guides",
	RunE: func(cmd *cobra.Command, args []string) error {
		language, _ := cmd.Flags().GetString("language")
		provider, _ := cmd.Flags().GetString("provider")
		query, _ := cmd.Flags().GetString("search")
		sortBy, _ := cmd.Flags().GetString("sort")
		limit, _ := cmd.Flags().GetInt("limit")

		guides, err := catalog.NewService(database.DB).List(catalog.FilterOptions{
			Language:    language,
			Provider:    stream.Provider(provider),
			SearchQuery: query,
			Limit:       limit,
			SortBy:      catalog.SortOrder(sortBy),
		})
		if err != nil {
			return err
		}
		if len(guides) == 0 {
			fmt.Println(mutedStyle.Render("No guides yet. Add one with: vguide guide add <slug> <url>"))
			return nil
		}

		for _, g := range guides {
			fmt.Printf("%s  %s\n", slugStyle.Render(g.Slug), titleStyle.Render(g.Title))
			meta := []string{string(g.Provider), g.Language, playsLabel(g.Plays)}
			if g.LastPlayed != nil {
				meta = append(meta, "last played "+humanize.Time(*g.LastPlayed))
			}
			fmt.Printf("  %s\n", mutedStyle.Render(strings.Join(meta, " · ")))
		}
		return nil
	},
}

var guideShowCmd = &cobra.Command{
	Use:   "show <slug|id>",
	Short: "Show a guide and its playable stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := catalog.NewService(database.DB).Get(args[0])
		if err != nil {
			return err
		}

		rows := [][2]string{
			{"ID", g.ID},
			{"Slug", g.Slug},
			{"Provider", string(g.Provider)},
			{"Language", g.Language},
			{"Video URL", g.VideoURL},
		}
		if desc, err := newResolver().Resolve(g.VideoURL, g.Provider, false); err == nil {
			rows = append(rows, [2]string{"Stream", desc.ResolvedURL})
		} else {
			rows = append(rows, [2]string{"Stream", "unresolvable: " + err.Error()})
		}
		if g.FallbackAsset != "" {
			rows = append(rows, [2]string{"Fallback", g.FallbackAsset})
		}
		rows = append(rows,
			[2]string{"Added", humanize.Time(g.CreatedAt)},
			[2]string{"Plays", humanize.Comma(g.Plays)},
		)
		if g.LastPlayed != nil {
			rows = append(rows, [2]string{"Last played", humanize.Time(*g.LastPlayed)})
		}

		lines := []string{titleStyle.Render(g.Title), ""}
		for _, row := range rows {
			lines = append(lines, labelStyle.Render(row[0])+row[1])
		}
		fmt.Println(boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
		return nil
	},
}

var guideRemoveCmd = &cobra.Command{
	Use:     "remove <slug|id>",
	Aliases: []string{"rm"},
	Short:   "Remove a guide and its sessions",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := catalog.NewService(database.DB).Remove(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

var guideStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show playback statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := catalog.NewService(database.DB).GetStats()
		if err != nil {
			return err
		}
		fmt.Printf("%s%s\n", labelStyle.Render("Guides"), humanize.Comma(stats.Guides))
		fmt.Printf("%s%s\n", labelStyle.Render("Sessions"), humanize.Comma(stats.Sessions))
		fmt.Printf("%s%s\n", labelStyle.Render("Exhausted"), humanize.Comma(stats.ExhaustedCount))
		fmt.Printf("%s%s\n", labelStyle.Render("Watch time"), stats.TotalWatchTime.Round(time.Second))
		return nil
	},
}

var guidePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old playback sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		n, err := catalog.NewService(database.DB).Cleanup(olderThan)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %s sessions\n", humanize.Comma(n))
		return nil
	},
}

func init() {
	guideAddCmd.Flags().StringP("title", "t", "", "display title (default: derived from slug)")
	guideAddCmd.Flags().StringP("provider", "p", "", "stream provider: cloudflare, bunny, local (default: infer from URL)")
	guideAddCmd.Flags().StringP("language", "l", "en", "guide language")
	guideAddCmd.Flags().String("fallback", "", "local file played when every resolution fails")
	guideAddCmd.Flags().Bool("from-page", false, "treat <url> as a web page and use the first video embedded in it")

	guideListCmd.Flags().StringP("language", "l", "", "only guides in this language")
	guideListCmd.Flags().StringP("provider", "p", "", "only guides from this provider")
	guideListCmd.Flags().StringP("search", "s", "", "match title or slug")
	guideListCmd.Flags().String("sort", string(catalog.SortTitleAsc), "title_asc, title_desc, newest_first, recently_played")
	guideListCmd.Flags().Int("limit", 0, "maximum number of guides (0 = all)")

	guidePruneCmd.Flags().Duration("older-than", 90*24*time.Hour, "delete sessions started before this age")

	guideCmd.AddCommand(guideAddCmd)
	guideCmd.AddCommand(guideListCmd)
	guideCmd.AddCommand(guideShowCmd)
	guideCmd.AddCommand(guideRemoveCmd)
	guideCmd.AddCommand(guideStatsCmd)
	guideCmd.AddCommand(guidePruneCmd)
}

// discoverEmbed fetches pageURL and picks its first provider embed, or its first video file
func discoverEmbed(ctx context.Context, pageURL string) (*scraper.Embed, error) {
	client := httpclient.NewClient(httpclient.ClientConfig{
		Timeout:    cfg.Stream.ProbeTimeout,
		MaxRetries: cfg.Stream.ProbeRetries,
		UserAgent:  cfg.Stream.UserAgent,
		Debug:      cfg.Advanced.Debug,
		Logger:     logger,
	})
	embeds, err := scraper.FindEmbeds(ctx, client, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", pageURL, err)
	}
	if len(embeds) == 0 {
		return nil, fmt.Errorf("no video embeds found on %s", pageURL)
	}

	chosen := embeds[0]
	for _, e := range embeds {
		if e.Provider != stream.ProviderUnknown {
			chosen = e
			break
		}
	}
	if len(embeds) > 1 {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("Found %d videos, using %s", len(embeds), chosen.URL)))
	}
	return &chosen, nil
}

func playsLabel(n int64) string {
	if n == 1 {
		return "1 play"
	}
	return humanize.Comma(n) + " plays"
}

// titleFromSlug turns "getting-started" into "Getting Started"
func titleFromSlug(slug string) string {
	words := strings.Fields(strings.ReplaceAll(strings.TrimSpace(slug), "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
