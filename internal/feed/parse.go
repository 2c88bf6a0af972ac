package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// Channel holds the feed metadata and items needed for episode tracking.
// Parsing is lossy on purpose; serving rewrites the raw bytes instead of
// re-encoding this struct.
type Channel struct {
	Title       string
	Link        string
	Description string
	ArtworkURL  string
	Items       []Item
}

// Item is a single feed entry.
type Item struct {
	GUID      string
	Title     string
	Link      string
	PubDate   string
	Enclosure Enclosure
}

// Enclosure points at the episode audio.
type Enclosure struct {
	URL    string
	Type   string
	Length int64
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string      `xml:"title"`
	Link        string      `xml:"link"`
	Description string      `xml:"description"`
	Image       rssImage    `xml:"image"`
	ItunesImage itunesImage `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd image"`
	Items       []rssItem   `xml:"item"`
}

type rssImage struct {
	URL string `xml:"url"`
}

type itunesImage struct {
	Href string `xml:"href,attr"`
}

type rssItem struct {
	GUID      string       `xml:"guid"`
	Title     string       `xml:"title"`
	Link      string       `xml:"link"`
	PubDate   string       `xml:"pubDate"`
	Enclosure rssEnclosure `xml:"enclosure"`
}

type rssEnclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
	// Kept as a string; feeds routinely publish empty or junk length values.
	Length string `xml:"length,attr"`
}

// Parse decodes an RSS document into the subset of fields episode tracking
// needs. Items without an enclosure URL are skipped; podcast feeds carry one
// per item and entries without audio have nothing to process.
func Parse(data []byte) (*Channel, error) {
	if len(data) == 0 {
		return nil, errors.New("parse feed: empty document")
	}

	var doc rssDocument
	decoder := xml.NewDecoder(strings.NewReader(string(data)))
	decoder.Strict = false
	decoder.CharsetReader = charsetReader
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	channel := &Channel{
		Title:       strings.TrimSpace(doc.Channel.Title),
		Link:        strings.TrimSpace(doc.Channel.Link),
		Description: strings.TrimSpace(doc.Channel.Description),
		ArtworkURL:  strings.TrimSpace(doc.Channel.ItunesImage.Href),
	}
	if channel.ArtworkURL == "" {
		channel.ArtworkURL = strings.TrimSpace(doc.Channel.Image.URL)
	}
	for _, item := range doc.Channel.Items {
		enclosureURL := strings.TrimSpace(item.Enclosure.URL)
		if enclosureURL == "" {
			continue
		}
		channel.Items = append(channel.Items, Item{
			GUID:    strings.TrimSpace(item.GUID),
			Title:   strings.TrimSpace(item.Title),
			Link:    strings.TrimSpace(item.Link),
			PubDate: strings.TrimSpace(item.PubDate),
			Enclosure: Enclosure{
				URL:    enclosureURL,
				Type:   strings.TrimSpace(item.Enclosure.Type),
				Length: parseLength(item.Enclosure.Length),
			},
		})
	}
	return channel, nil
}

// charsetReader handles feeds declaring non-UTF-8 encodings such as
// ISO-8859-1 or windows-1252.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(input), nil
}

func parseLength(value string) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	var length int64
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0
		}
		length = length*10 + int64(r-'0')
	}
	return length
}
