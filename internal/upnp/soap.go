package upnp

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// UPnP service URNs used by Naim streamers.
const (
	AVTransportService       = "urn:schemas-upnp-org:service:AVTransport:1"
	RenderingControlService  = "urn:schemas-upnp-org:service:RenderingControl:1"
	ConnectionManagerService = "urn:schemas-upnp-org:service:ConnectionManager:1"
)

// Values holds the argument values extracted from an action response,
// keyed by local tag name.
type Values map[string]string

// Client makes SOAP requests to UPnP devices.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new SOAP client with a bounded per-call timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Invoke sends a SOAP action to a control URL and returns the response
// argument values. Failures are always a *TransportError: network errors and
// timeouts are KindNetwork, SOAP faults are KindFault with the device fault
// code, and anything unparseable is KindMalformed.
func (c *Client) Invoke(ctx context.Context, controlURL, service, action string, args map[string]string) (Values, error) {
	body := buildEnvelope(service, action, args)

	req, err := http.NewRequestWithContext(ctx, "POST", controlURL, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Kind: KindNetwork, Action: action, Err: err}
	}

	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", fmt.Sprintf("%q", service+"#"+action))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Kind: KindNetwork, Action: action, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Kind: KindNetwork, Action: action, Err: err}
	}

	// Devices report action faults as HTTP 500 with a fault envelope.
	if resp.StatusCode != http.StatusOK {
		if code := parseFaultCode(respBody); code != "" {
			return nil, &TransportError{Kind: KindFault, Action: action, FaultCode: code}
		}
		return nil, &TransportError{
			Kind:   KindMalformed,
			Action: action,
			Err:    fmt.Errorf("status %d: %s", resp.StatusCode, truncate(respBody, 200)),
		}
	}

	values, err := parseResponseValues(respBody)
	if err != nil {
		return nil, &TransportError{Kind: KindMalformed, Action: action, Err: err}
	}

	return values, nil
}

// buildEnvelope constructs the SOAP request envelope.
func buildEnvelope(service, action string, args map[string]string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	buf.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	buf.WriteString(`<s:Body>`)
	buf.WriteString(fmt.Sprintf(`<u:%s xmlns:u="%s">`, action, service))

	for k, v := range args {
		buf.WriteString(fmt.Sprintf("<%s>%s</%s>", k, xmlEscape(v), k))
	}

	buf.WriteString(fmt.Sprintf(`</u:%s>`, action))
	buf.WriteString(`</s:Body>`)
	buf.WriteString(`</s:Envelope>`)

	return buf.Bytes()
}

// parseResponseValues extracts leaf element text from a response envelope,
// keyed by local name. Namespace prefixes vary across firmwares, so the parse
// is namespace-agnostic.
func parseResponseValues(body []byte) (Values, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	values := Values{}

	var current string
	sawEnvelope := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse envelope: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "Envelope" {
				sawEnvelope = true
			}
			current = t.Name.Local
		case xml.CharData:
			if current != "" {
				text := string(t)
				if strings.TrimSpace(text) != "" {
					values[current] += text
				}
			}
		case xml.EndElement:
			current = ""
		}
	}

	if !sawEnvelope {
		return nil, fmt.Errorf("response is not a SOAP envelope")
	}
	return values, nil
}

// parseFaultCode extracts the UPnP error code from a fault envelope, or "".
func parseFaultCode(body []byte) string {
	var fault struct {
		Body struct {
			Fault struct {
				FaultString string `xml:"faultstring"`
				Detail      struct {
					UPnPError struct {
						ErrorCode        string `xml:"errorCode"`
						ErrorDescription string `xml:"errorDescription"`
					} `xml:"UPnPError"`
				} `xml:"detail"`
			} `xml:"Fault"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(body, &fault); err != nil {
		return ""
	}
	if code := fault.Body.Fault.Detail.UPnPError.ErrorCode; code != "" {
		return code
	}
	if fault.Body.Fault.FaultString != "" {
		return fault.Body.Fault.FaultString
	}
	return ""
}

// xmlEscape escapes special XML characters.
func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
