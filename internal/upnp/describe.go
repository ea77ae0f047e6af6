package upnp

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tessro/nstream/internal/core"
)

// deviceDescription mirrors the parts of a UPnP device description document
// we care about.
type deviceDescription struct {
	URLBase string `xml:"URLBase"`
	Device  struct {
		DeviceType   string `xml:"deviceType"`
		FriendlyName string `xml:"friendlyName"`
		Manufacturer string `xml:"manufacturer"`
		ModelName    string `xml:"modelName"`
		UDN          string `xml:"UDN"`
		Services     []struct {
			ServiceType string `xml:"serviceType"`
			ControlURL  string `xml:"controlURL"`
			EventSubURL string `xml:"eventSubURL"`
		} `xml:"serviceList>service"`
	} `xml:"device"`
}

// Describe fetches and parses the device description document at location
// and resolves all service URLs against the device base.
func (c *Client) Describe(ctx context.Context, location string) (*core.Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", location, nil)
	if err != nil {
		return nil, &TransportError{Kind: KindNetwork, Action: "Describe", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Kind: KindNetwork, Action: "Describe", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Kind: KindNetwork, Action: "Describe", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Kind: KindNetwork, Action: "Describe", Err: err}
	}

	var desc deviceDescription
	if err := xml.Unmarshal(body, &desc); err != nil {
		return nil, &TransportError{Kind: KindMalformed, Action: "Describe", Err: err}
	}

	base, err := url.Parse(location)
	if err != nil {
		return nil, &TransportError{Kind: KindMalformed, Action: "Describe", Err: err}
	}
	if desc.URLBase != "" {
		if u, err := url.Parse(desc.URLBase); err == nil {
			base = u
		}
	}

	d := &core.Descriptor{
		UDN:          strings.TrimPrefix(desc.Device.UDN, "uuid:"),
		Name:         desc.Device.FriendlyName,
		Manufacturer: desc.Device.Manufacturer,
		Model:        desc.Device.ModelName,
		BaseURL:      base.Scheme + "://" + base.Host,
	}

	for _, svc := range desc.Device.Services {
		ep := &core.ServiceEndpoints{
			ControlURL: resolveURL(base, svc.ControlURL),
			EventURL:   resolveURL(base, svc.EventSubURL),
		}
		switch {
		case strings.HasPrefix(svc.ServiceType, "urn:schemas-upnp-org:service:AVTransport"):
			d.AVTransport = ep
		case strings.HasPrefix(svc.ServiceType, "urn:schemas-upnp-org:service:RenderingControl"):
			d.RenderingControl = ep
		case strings.HasPrefix(svc.ServiceType, "urn:schemas-upnp-org:service:ConnectionManager"):
			d.ConnectionManager = ep
		}
	}

	return d, nil
}

func resolveURL(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
