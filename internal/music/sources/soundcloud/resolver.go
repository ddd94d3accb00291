package soundcloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/keshon/listenparty/internal/music/sources"
)

var (
	trackLinkRegex  = regexp.MustCompile(`(?s)<a class="result__url"[^>]*>\s*(soundcloud\.com/[^<]+)\s*</a>`)
	ErrNoTrackMatch = fmt.Errorf("soundcloud: no track found for the given query: %w", sources.ErrNoMatch)
	ErrNoStreamURL  = errors.New("yt-dlp returned no stream url")
)

const printTemplate = "%(webpage_url)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(id)s\t%(thumbnail)s"

type SoundCloudResolver struct {
	Client *http.Client
	Proxy  string
}

func NewSoundCloudResolver(client *http.Client, proxy string) *SoundCloudResolver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SoundCloudResolver{Client: client, Proxy: proxy}
}

func (r *SoundCloudResolver) ytdlp() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig()
	if r.Proxy != "" {
		cmd.Proxy(r.Proxy)
	}
	return cmd
}

// SearchFirstTrackURL asks DuckDuckGo for the first soundcloud.com hit.
func (r *SoundCloudResolver) SearchFirstTrackURL(ctx context.Context, query string) (string, error) {
	searchURL := fmt.Sprintf("https://duckduckgo.com/html/?q=site:soundcloud.com+%s", url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return "", err
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("DuckDuckGo search failed with status code %v", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return extractTrackURL(string(body))
}

// Search runs yt-dlp's own SoundCloud search.
func (r *SoundCloudResolver) Search(ctx context.Context, query string) ([]entry, error) {
	res, err := r.ytdlp().
		FlatPlaylist().
		Print(printTemplate).
		Run(ctx, "scsearch1:"+query)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp search: %w", err)
	}
	return parseEntries(res.Stdout), nil
}

// Lookup expands a track or set link into its entries.
func (r *SoundCloudResolver) Lookup(ctx context.Context, link string) ([]entry, string, error) {
	res, err := r.ytdlp().
		Print("%(playlist_title)s\t" + printTemplate).
		Run(ctx, "--skip-download", link)
	if err != nil {
		return nil, "", fmt.Errorf("yt-dlp lookup: %w", err)
	}

	var (
		playlist string
		lines    []string
	)
	for _, l := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		head, rest, ok := strings.Cut(l, "\t")
		if !ok {
			continue
		}
		if playlist == "" && head != "NA" {
			playlist = head
		}
		lines = append(lines, rest)
	}
	return parseEntries(strings.Join(lines, "\n")), playlist, nil
}

func (r *SoundCloudResolver) StreamURL(ctx context.Context, link string) (string, error) {
	res, err := r.ytdlp().Run(ctx, "-f", "bestaudio/best", "--get-url", link)
	if err != nil {
		return "", fmt.Errorf("yt-dlp stream url: %w", err)
	}
	for _, l := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if isURL(strings.TrimSpace(l)) {
			return strings.TrimSpace(l), nil
		}
	}
	return "", ErrNoStreamURL
}
