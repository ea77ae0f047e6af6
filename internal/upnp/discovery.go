package upnp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	ssdpAddr    = "239.255.255.250:1900"
	rendererURN = "urn:schemas-upnp-org:device:MediaRenderer:1"
)

var mSearchRequest = []byte(
	"M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"MX: 2\r\n" +
		"ST: " + rendererURN + "\r\n" +
		"\r\n",
)

// Found is a raw SSDP discovery hit, before the description document has
// been fetched.
type Found struct {
	IP       string
	UUID     string
	Location string
	Server   string
}

// Discover performs SSDP discovery for media renderers. Used when the
// configured streamer disappears and needs to be located again; there is no
// interactive discovery surface.
func Discover(ctx context.Context, timeout time.Duration) ([]*Found, error) {
	if timeout == 0 {
		timeout = 3 * time.Second
	}

	addr, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve ssdp addr: %w", err)
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)

	if _, err := conn.WriteToUDP(mSearchRequest, addr); err != nil {
		return nil, fmt.Errorf("send m-search: %w", err)
	}

	var found []*Found
	seen := make(map[string]bool)
	buf := make([]byte, 2048)

	for {
		select {
		case <-ctx.Done():
			return found, ctx.Err()
		default:
		}

		n, remoteAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				break // discovery window closed
			}
			continue
		}

		hit, err := parseSSDPResponse(buf[:n], remoteAddr)
		if err != nil || hit == nil {
			continue
		}
		if seen[hit.UUID] {
			continue
		}
		seen[hit.UUID] = true
		found = append(found, hit)
	}

	return found, nil
}

// parseSSDPResponse parses an SSDP response into a Found.
func parseSSDPResponse(data []byte, addr *net.UDPAddr) (*Found, error) {
	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(string(data))), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	st := resp.Header.Get("ST")
	if st != rendererURN {
		return nil, nil
	}

	uuid := extractUUID(resp.Header.Get("USN"))
	if uuid == "" {
		return nil, nil
	}

	return &Found{
		IP:       addr.IP.String(),
		UUID:     uuid,
		Location: resp.Header.Get("Location"),
		Server:   resp.Header.Get("Server"),
	}, nil
}

// extractUUID extracts the UUID from a USN header
// (format: uuid:xxx::urn:schemas-upnp-org:device:MediaRenderer:1).
func extractUUID(usn string) string {
	if !strings.HasPrefix(usn, "uuid:") {
		return ""
	}
	parts := strings.Split(usn, "::")
	if len(parts) < 1 {
		return ""
	}
	return strings.TrimPrefix(parts[0], "uuid:")
}
