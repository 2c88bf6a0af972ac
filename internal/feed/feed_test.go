package feed

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"podsnip/internal/logging"
	"podsnip/internal/store"
	"podsnip/internal/testsupport"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>The Acme Show</title>
    <link>https://acme.example.com</link>
    <description>Weekly acme news &amp; reviews</description>
    <itunes:author>Acme Media</itunes:author>
    <itunes:image href="https://acme.example.com/cover.jpg"/>
    <item>
      <title>Episode 2</title>
      <guid isPermaLink="false">acme-ep-2</guid>
      <pubDate>Fri, 21 Aug 2026 06:00:00 +0000</pubDate>
      <enclosure url="https://cdn.example.com/ep2.mp3?token=a&amp;b=c" type="audio/mpeg" length="52428800"/>
    </item>
    <item>
      <title>Episode 1</title>
      <guid isPermaLink="false">acme-ep-1</guid>
      <pubDate>Fri, 14 Aug 2026 06:00:00 +0000</pubDate>
      <enclosure url='https://cdn.example.com/ep1.mp3' type="audio/mpeg" length=""/>
    </item>
    <item>
      <title>Text-only bonus post</title>
      <guid>acme-bonus</guid>
    </item>
  </channel>
</rss>`

func TestParseExtractsItemsAndSkipsEnclosurelessEntries(t *testing.T) {
	channel, err := Parse([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if channel.Title != "The Acme Show" {
		t.Fatalf("unexpected title: %q", channel.Title)
	}
	if channel.ArtworkURL != "https://acme.example.com/cover.jpg" {
		t.Fatalf("unexpected artwork url: %q", channel.ArtworkURL)
	}
	if len(channel.Items) != 2 {
		t.Fatalf("expected 2 items with enclosures, got %d", len(channel.Items))
	}
	first := channel.Items[0]
	if first.GUID != "acme-ep-2" {
		t.Fatalf("unexpected guid: %q", first.GUID)
	}
	if first.Enclosure.URL != "https://cdn.example.com/ep2.mp3?token=a&b=c" {
		t.Fatalf("entity not unescaped by parser: %q", first.Enclosure.URL)
	}
	if first.Enclosure.Length != 52428800 {
		t.Fatalf("unexpected length: %d", first.Enclosure.Length)
	}
	if channel.Items[1].Enclosure.Length != 0 {
		t.Fatalf("empty length should parse as zero, got %d", channel.Items[1].Enclosure.Length)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Fatal("expected error for empty document")
	}
	if _, err := Parse([]byte("{\"not\":\"xml\"}")); err == nil {
		t.Fatal("expected error for non-XML document")
	}
}

func TestRewriteReplacesOnlyEnclosureURLs(t *testing.T) {
	raw := []byte(sampleFeed)
	rewritten := Rewrite(raw, func(enclosureURL string) string {
		switch enclosureURL {
		case "https://cdn.example.com/ep2.mp3?token=a&b=c":
			return "http://localhost:8321/episodes/acme-show/aaaa.mp3"
		case "https://cdn.example.com/ep1.mp3":
			return "http://localhost:8321/episodes/acme-show/bbbb.mp3"
		default:
			return ""
		}
	})

	out := string(rewritten)
	if !strings.Contains(out, `url="http://localhost:8321/episodes/acme-show/aaaa.mp3"`) {
		t.Fatalf("double-quoted enclosure not rewritten:\n%s", out)
	}
	if !strings.Contains(out, `url='http://localhost:8321/episodes/acme-show/bbbb.mp3'`) {
		t.Fatalf("single-quoted enclosure not rewritten:\n%s", out)
	}
	if strings.Contains(out, "cdn.example.com") {
		t.Fatalf("original enclosure URL leaked through:\n%s", out)
	}

	// Everything outside the enclosure url attributes is byte-identical.
	restore := Rewrite(rewritten, func(enclosureURL string) string {
		switch enclosureURL {
		case "http://localhost:8321/episodes/acme-show/aaaa.mp3":
			return "https://cdn.example.com/ep2.mp3?token=a&b=c"
		case "http://localhost:8321/episodes/acme-show/bbbb.mp3":
			return "https://cdn.example.com/ep1.mp3"
		default:
			return ""
		}
	})
	if !bytes.Equal(restore, raw) {
		t.Fatal("rewrite is not byte-preserving outside enclosure urls")
	}
}

func TestRewriteLeavesUnresolvedEnclosuresAlone(t *testing.T) {
	raw := []byte(sampleFeed)
	rewritten := Rewrite(raw, func(string) string { return "" })
	if !bytes.Equal(rewritten, raw) {
		t.Fatal("nil resolution must leave document untouched")
	}
}

func TestRewriteEscapesAmpersands(t *testing.T) {
	raw := []byte(`<rss><channel><item><enclosure url="https://a.example.com/x.mp3" type="audio/mpeg"/></item></channel></rss>`)
	rewritten := Rewrite(raw, func(string) string {
		return "http://localhost/ep.mp3?a=1&b=2"
	})
	if !strings.Contains(string(rewritten), `url="http://localhost/ep.mp3?a=1&amp;b=2"`) {
		t.Fatalf("replacement not escaped:\n%s", rewritten)
	}
}

func TestFetcherSendsUserAgentAndRejectsErrors(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	fetcher := NewFetcher(FetcherOptions{UserAgent: "podsnip-test/1.0"})
	body, err := fetcher.Fetch(context.Background(), server.URL+"/feed.xml")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotUA != "podsnip-test/1.0" {
		t.Fatalf("unexpected user agent: %q", gotUA)
	}
	if !bytes.Equal(body, []byte(sampleFeed)) {
		t.Fatal("body altered in transit")
	}

	if _, err := fetcher.Fetch(context.Background(), server.URL+"/missing"); err == nil {
		t.Fatal("expected error for 404")
	}
	if _, err := fetcher.Fetch(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestRefreshPodcastCachesFeedAndSyncsEpisodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "acme-show", server.URL+"/feed.xml")

	refresher := NewRefresher(st, NewFetcher(FetcherOptions{}), cfg.Paths.DataDir, logging.NewNop())
	result, err := refresher.RefreshPodcast(context.Background(), podcast)
	if err != nil {
		t.Fatalf("RefreshPodcast: %v", err)
	}
	if result.Episodes != 2 || result.New != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	cached, err := os.ReadFile(CachePath(cfg.Paths.DataDir, "acme-show"))
	if err != nil {
		t.Fatalf("read cached feed: %v", err)
	}
	if !bytes.Equal(cached, []byte(sampleFeed)) {
		t.Fatal("cached feed differs from upstream bytes")
	}

	episodes, err := st.ListEpisodes(context.Background(), podcast.ID)
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(episodes) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(episodes))
	}

	updated, _ := st.GetPodcastBySlug(context.Background(), "acme-show")
	if updated.Title != "The Acme Show" {
		t.Fatalf("channel title not recorded: %q", updated.Title)
	}
	if updated.ArtworkURL != "https://acme.example.com/cover.jpg" {
		t.Fatalf("channel artwork not recorded: %q", updated.ArtworkURL)
	}
	if updated.LastRefreshedAt == nil {
		t.Fatal("refresh timestamp not recorded")
	}
	if updated.LastRefreshError != "" {
		t.Fatalf("unexpected refresh error: %q", updated.LastRefreshError)
	}

	// A second refresh discovers nothing new and keeps episode statuses.
	result, err = refresher.RefreshPodcast(context.Background(), podcast)
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if result.New != 0 {
		t.Fatalf("expected no new episodes, got %d", result.New)
	}
}

func TestRefreshPodcastRecordsFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "acme-show", server.URL+"/feed.xml")

	var notified bool
	refresher := NewRefresher(st, NewFetcher(FetcherOptions{}), cfg.Paths.DataDir, logging.NewNop())
	refresher.OnError(func(p *store.Podcast, err error) {
		if p.Slug == "acme-show" && err != nil {
			notified = true
		}
	})

	if _, err := refresher.RefreshPodcast(context.Background(), podcast); err == nil {
		t.Fatal("expected refresh error")
	}
	if !notified {
		t.Fatal("error callback not invoked")
	}

	updated, _ := st.GetPodcastBySlug(context.Background(), "acme-show")
	if updated.LastRefreshError == "" {
		t.Fatal("refresh error not recorded")
	}
}
