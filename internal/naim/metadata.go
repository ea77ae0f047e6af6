package naim

import (
	"bytes"
	"encoding/xml"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tessro/nstream/internal/core"
)

// didlLite represents the DIDL-Lite metadata format used by UPnP.
type didlLite struct {
	XMLName xml.Name   `xml:"urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/ DIDL-Lite"`
	Items   []didlItem `xml:"urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/ item"`
}

// didlItem represents a single item in DIDL-Lite metadata.
type didlItem struct {
	// Dublin Core namespace elements
	Title   string `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creator string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	// UPnP namespace elements
	Artist      string `xml:"urn:schemas-upnp-org:metadata-1-0/upnp/ artist"`
	Album       string `xml:"urn:schemas-upnp-org:metadata-1-0/upnp/ album"`
	AlbumArtURI string `xml:"urn:schemas-upnp-org:metadata-1-0/upnp/ albumArtURI"`
	// Default namespace
	Res didlRes `xml:"res"`
}

type didlRes struct {
	Duration string `xml:"duration,attr"`
	URI      string `xml:",chardata"`
}

// TrackMeta is the result of a DIDL-Lite parse.
type TrackMeta struct {
	Track    core.Track
	Duration time.Duration
}

// ParseTrackMetadata parses DIDL-Lite track metadata. baseURL resolves
// relative album-art references, which Naim firmwares emit for local art.
// Returns nil when no usable metadata is present.
func ParseTrackMetadata(metadata, baseURL string) *TrackMeta {
	if metadata == "" {
		return nil
	}

	// Unescape HTML entities; Naim payloads arrive double-encoded.
	metadata = html.UnescapeString(metadata)
	// Bare ampersands inside text content would break the parse.
	metadata = strings.ReplaceAll(metadata, "&", "&amp;")
	metadata = strings.ReplaceAll(metadata, "&amp;amp;", "&amp;")

	// Try namespace-aware parsing first.
	var didl didlLite
	if err := xml.Unmarshal([]byte(metadata), &didl); err == nil && len(didl.Items) > 0 {
		item := didl.Items[0]
		artist := item.Artist
		if artist == "" {
			artist = item.Creator
		}
		if item.Title != "" || item.Res.URI != "" {
			return &TrackMeta{
				Track: core.Track{
					URI:    strings.TrimSpace(item.Res.URI),
					Title:  item.Title,
					Artist: artist,
					Album:  item.Album,
					ArtURI: resolveArtURI(item.AlbumArtURI, baseURL),
				},
				Duration: parseUPnPTime(item.Res.Duration),
			}
		}
	}

	// Fallback: extract elements using regex (handles any namespace prefix).
	title := extractXMLElement(metadata, "title")
	artist := extractXMLElement(metadata, "artist")
	if artist == "" {
		artist = extractXMLElement(metadata, "creator")
	}
	album := extractXMLElement(metadata, "album")
	art := extractXMLElement(metadata, "albumArtURI")
	uri := extractXMLElement(metadata, "res")

	if title == "" && uri == "" {
		return nil
	}

	return &TrackMeta{
		Track: core.Track{
			URI:    strings.TrimSpace(uri),
			Title:  title,
			Artist: artist,
			Album:  album,
			ArtURI: resolveArtURI(art, baseURL),
		},
	}
}

// extractXMLElement extracts content from an XML element, ignoring namespace prefixes.
func extractXMLElement(xmlStr, localName string) string {
	re := regexp.MustCompile(`<(?:\w+:)?` + localName + `[^>]*>([^<]*)</(?:\w+:)?` + localName + `>`)
	matches := re.FindStringSubmatch(xmlStr)
	if len(matches) > 1 {
		return html.UnescapeString(strings.TrimSpace(matches[1]))
	}
	return ""
}

// resolveArtURI normalizes album-art references against the device base URL.
func resolveArtURI(art, baseURL string) string {
	art = strings.TrimSpace(art)
	if art == "" || baseURL == "" {
		return art
	}
	if strings.HasPrefix(art, "http://") || strings.HasPrefix(art, "https://") {
		return art
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return art
	}
	ref, err := url.Parse(art)
	if err != nil {
		return art
	}
	return base.ResolveReference(ref).String()
}

// buildDIDL constructs minimal DIDL-Lite metadata for a stream URL.
func buildDIDL(uri, title, artist, album, albumArt, protocolInfo string) string {
	var buf bytes.Buffer
	buf.WriteString(`<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"` +
		` xmlns:dc="http://purl.org/dc/elements/1.1/"` +
		` xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/">`)
	buf.WriteString(`<item id="0" parentID="-1" restricted="1">`)
	buf.WriteString("<dc:title>" + escape(title) + "</dc:title>")
	if artist != "" {
		buf.WriteString("<upnp:artist>" + escape(artist) + "</upnp:artist>")
	}
	if album != "" {
		buf.WriteString("<upnp:album>" + escape(album) + "</upnp:album>")
	}
	if albumArt != "" {
		buf.WriteString("<upnp:albumArtURI>" + escape(albumArt) + "</upnp:albumArtURI>")
	}
	buf.WriteString(`<res protocolInfo="` + protocolInfo + `">` + escape(uri) + "</res>")
	buf.WriteString("</item>")
	buf.WriteString("</DIDL-Lite>")
	return buf.String()
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
