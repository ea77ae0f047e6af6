package naim

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tessro/nstream/internal/core"
	"go.uber.org/zap"
)

// Change is the decoded delta carried by one NOTIFY event. Every field is
// optional: nil means the event did not mention it, and the reconciler must
// leave the corresponding snapshot field untouched.
type Change struct {
	SID string
	Seq uint32

	TransportState  *core.TransportState
	TransportStatus *string
	Track           *core.Track
	Position        *time.Duration
	Duration        *time.Duration
	URI             *string
	Volume          *int
	Mute            *bool

	// Malformed counts inner properties that failed to decode. The event as
	// a whole is still applied; the reconciler escalates only when the count
	// keeps recurring.
	Malformed int
}

// Empty returns true if the change carries no decoded fields.
func (c *Change) Empty() bool {
	return c.TransportState == nil && c.TransportStatus == nil && c.Track == nil &&
		c.Position == nil && c.Duration == nil && c.URI == nil && c.Volume == nil &&
		c.Mute == nil
}

// EventParser decodes GENA NOTIFY payloads from the streamer.
type EventParser struct {
	// BaseURL resolves relative album-art references in event metadata.
	BaseURL string
	Log     *zap.Logger
}

// Parse decodes a NOTIFY body into a Change. The payload is an event
// propertyset whose interesting values (LastChange) are themselves
// XML-encoded as text. A malformed outer envelope is an error; a malformed
// inner property is tolerated and reported through Change.Malformed.
func (p *EventParser) Parse(sid string, seq uint32, body []byte) (*Change, error) {
	change := &Change{SID: sid, Seq: seq}

	dec := xml.NewDecoder(bytes.NewReader(body))
	var text strings.Builder
	sawPropertySet := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse propertyset: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "propertyset" {
				sawPropertySet = true
			}
			text.Reset()
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			p.applyProperty(change, t.Name.Local, text.String())
			text.Reset()
		}
	}

	if !sawPropertySet {
		return nil, fmt.Errorf("payload is not an event propertyset")
	}
	return change, nil
}

// applyProperty decodes one changed property into the change set.
func (p *EventParser) applyProperty(change *Change, name, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	switch name {
	case "LastChange":
		p.parseLastChange(change, value)
	// Some firmwares notify volume and mute as bare properties instead of a
	// RenderingControl LastChange blob.
	case "CurrentVolume", "Volume":
		if vol, err := strconv.Atoi(value); err == nil {
			change.Volume = &vol
		} else {
			change.Malformed++
		}
	case "Mute", "CurrentMute":
		if value == "0" || value == "1" {
			mute := value == "1"
			change.Mute = &mute
		} else {
			change.Malformed++
		}
	}
}

// parseLastChange decodes the inner LastChange event document. The value is
// double-encoded: the outer parse already unescaped it once, and Naim
// firmwares escape the metadata a second time.
func (p *EventParser) parseLastChange(change *Change, value string) {
	inner := html.UnescapeString(value)

	dec := xml.NewDecoder(strings.NewReader(inner))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			p.logDiag("malformed LastChange document", err)
			change.Malformed++
			return
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		val, hasVal := attrValue(start, "val")
		if !hasVal {
			continue
		}

		switch start.Name.Local {
		case "TransportState":
			ts := core.TransportState(strings.ToUpper(val))
			change.TransportState = &ts
		case "TransportStatus":
			status := strings.ToUpper(val)
			change.TransportStatus = &status
		case "CurrentTrackDuration":
			if d := parseUPnPTime(val); d > 0 {
				change.Duration = &d
			}
		case "CurrentTrackURI", "AVTransportURI":
			if uri := strings.TrimSpace(val); uri != "" {
				change.URI = &uri
			}
		case "CurrentTrackMetaData":
			// The DIDL blob is escaped once more inside the LastChange text.
			meta := ParseTrackMetadata(html.UnescapeString(val), p.BaseURL)
			if meta == nil {
				if strings.TrimSpace(val) != "" && val != "NOT_IMPLEMENTED" {
					p.logDiag("malformed CurrentTrackMetaData, keeping previous track", nil)
					change.Malformed++
				}
				continue
			}
			track := meta.Track
			change.Track = &track
			if meta.Duration > 0 {
				change.Duration = &meta.Duration
			}
		case "Volume":
			// RenderingControl events carry one Volume element per channel.
			if ch, _ := attrValue(start, "channel"); ch != "" && ch != "Master" {
				continue
			}
			if vol, err := strconv.Atoi(val); err == nil {
				change.Volume = &vol
			} else {
				p.logDiag("malformed Volume value", err)
				change.Malformed++
			}
		case "Mute":
			if ch, _ := attrValue(start, "channel"); ch != "" && ch != "Master" {
				continue
			}
			if val == "0" || val == "1" {
				mute := val == "1"
				change.Mute = &mute
			} else {
				p.logDiag("malformed Mute value", nil)
				change.Malformed++
			}
		}
	}
}

func (p *EventParser) logDiag(msg string, err error) {
	if p.Log == nil {
		return
	}
	if err != nil {
		p.Log.Warn(msg, zap.Error(err))
		return
	}
	p.Log.Warn(msg)
}

func attrValue(el xml.StartElement, name string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
