package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	_ "github.com/bdandy/go-socks4"
	kkdai "github.com/kkdai/youtube/v2"
	"github.com/ppalone/ytsearch"
	"golang.org/x/net/proxy"
)

// NewHTTPClient returns a client that routes through proxyStr when set.
// Supported schemes: http, https, socks5, socks4.
func NewHTTPClient(proxyStr string, log *slog.Logger) *http.Client {
	plain := &http.Client{Timeout: 15 * time.Second}
	if proxyStr == "" {
		return plain
	}

	proxyURL, err := url.Parse(proxyStr)
	if err != nil {
		log.Warn("Invalid proxy, going direct", "error", err)
		return plain
	}

	var transport *http.Transport

	switch proxyURL.Scheme {
	case "http", "https":
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	case "socks5", "socks4":
		dialer, err := proxy.FromURL(proxyURL, &net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 10 * time.Second,
		})
		if err != nil {
			log.Warn("Proxy dialer error, going direct", "scheme", proxyURL.Scheme, "error", err)
			return plain
		}
		transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := dialer.(proxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return dialer.Dial(network, addr)
			},
		}
	default:
		log.Warn("Unsupported proxy scheme, going direct", "scheme", proxyURL.Scheme)
		return plain
	}

	log.Info("Using proxy", "scheme", proxyURL.Scheme)
	return &http.Client{Timeout: 15 * time.Second, Transport: transport}
}

// Resolver talks to YouTube: metadata through kkdai, search through ytsearch.
type Resolver struct {
	client *kkdai.Client
	search *ytsearch.Client
}

func NewResolver(httpClient *http.Client) *Resolver {
	return &Resolver{
		client: &kkdai.Client{HTTPClient: httpClient},
		search: ytsearch.NewClient(httpClient),
	}
}

type searchHit struct {
	VideoID  string
	Title    string
	Channel  string
	Duration time.Duration
}

func (r *Resolver) SearchFirst(ctx context.Context, query string) (searchHit, error) {
	res, err := r.search.Search(ctx, query)
	if err != nil {
		return searchHit{}, fmt.Errorf("youtube search: %w", err)
	}
	for _, v := range res.Results {
		if v.VideoID == "" {
			continue
		}
		return searchHit{
			VideoID:  v.VideoID,
			Title:    v.Title,
			Channel:  v.Channel,
			Duration: parseClock(v.Duration),
		}, nil
	}
	return searchHit{}, ErrNoVideoMatch
}

func (r *Resolver) Video(ctx context.Context, link string) (*kkdai.Video, error) {
	return r.client.GetVideoContext(ctx, link)
}

func (r *Resolver) Playlist(ctx context.Context, link string) (*kkdai.Playlist, error) {
	return r.client.GetPlaylistContext(ctx, link)
}

// AudioURL picks an audio-only format when one exists.
func (r *Resolver) AudioURL(ctx context.Context, videoID string) (string, error) {
	video, err := r.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("get video: %w", err)
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return "", ErrNoAudioFormat
	}

	chosen := &formats[0]
	for i := range formats {
		if formats[i].AudioChannels > 0 && formats[i].Width == 0 {
			chosen = &formats[i]
			break
		}
	}

	link, err := r.client.GetStreamURLContext(ctx, video, chosen)
	if err != nil {
		return "", fmt.Errorf("get stream url: %w", err)
	}
	return link, nil
}
