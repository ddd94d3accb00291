package soundcloud

import (
	"strings"
	"time"
)

type entry struct {
	URL       string
	Title     string
	Uploader  string
	Duration  time.Duration
	ID        string
	Thumbnail string
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isSoundCloudURL(s string) bool {
	return isURL(s) && (strings.Contains(s, "://soundcloud.com/") ||
		strings.Contains(s, "://www.soundcloud.com/") ||
		strings.Contains(s, "://m.soundcloud.com/") ||
		strings.Contains(s, "://on.soundcloud.com/"))
}

func extractTrackURL(html string) (string, error) {
	matches := trackLinkRegex.FindStringSubmatch(html)
	if len(matches) < 2 {
		return "", ErrNoTrackMatch
	}
	return "https://" + strings.TrimSpace(matches[1]), nil
}

// parseEntries reads yt-dlp --print output laid out as printTemplate.
// yt-dlp prints "NA" for missing fields.
func parseEntries(out string) []entry {
	var entries []entry
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 5 || !isURL(ps[0]) {
			continue
		}
		e := entry{
			URL:      ps[0],
			Title:    na(ps[1]),
			Uploader: na(ps[2]),
			ID:       na(ps[4]),
		}
		if d, err := time.ParseDuration(ps[3] + "s"); err == nil {
			e.Duration = d.Round(time.Second)
		}
		if len(ps) > 5 {
			e.Thumbnail = na(ps[5])
		}
		if e.ID == "" {
			e.ID = e.URL
		}
		entries = append(entries, e)
	}
	return entries
}

func na(s string) string {
	if s == "NA" {
		return ""
	}
	return s
}
