package store

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// EpisodeKeyLength is the hex length of episode keys derived from feed identity.
const EpisodeKeyLength = 16

// EpisodeKey derives a stable short identifier for an episode. The GUID is
// preferred; episodes without one fall back to the enclosure URL. Keys stay
// stable across feed refreshes so cached artifacts survive.
func EpisodeKey(guid, enclosureURL string) string {
	identity := strings.TrimSpace(guid)
	if identity == "" {
		identity = strings.TrimSpace(enclosureURL)
	}
	if identity == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])[:EpisodeKeyLength]
}

// SanitizeSlug normalizes a user-supplied podcast slug into a filesystem and
// URL safe segment.
func SanitizeSlug(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	var b strings.Builder
	b.Grow(len(value))
	lastDash := true
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// ArtifactPaths locates every per-episode artifact under the data directory.
// Layout: <data_dir>/<slug>/<episode_key>/{original.mp3,processed.mp3,...}.
type ArtifactPaths struct {
	Dir        string
	Original   string
	Processed  string
	Transcript string
	AdRanges   string
	WorkDir    string
}

// EpisodeArtifacts returns the artifact layout for an episode.
func EpisodeArtifacts(dataDir, slug, episodeKey string) ArtifactPaths {
	dir := filepath.Join(dataDir, slug, episodeKey)
	return ArtifactPaths{
		Dir:        dir,
		Original:   filepath.Join(dir, "original.mp3"),
		Processed:  filepath.Join(dir, "processed.mp3"),
		Transcript: filepath.Join(dir, "transcript.txt"),
		AdRanges:   filepath.Join(dir, "ad_ranges.json"),
		WorkDir:    filepath.Join(dir, "work"),
	}
}
