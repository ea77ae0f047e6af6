package upnp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Subscription is an active GENA event subscription. Owned by the transport
// layer; torn down and re-created on renewal failure or expiry.
type Subscription struct {
	SID         string
	EventURL    string
	CallbackURL string
	Lease       time.Duration
	ExpiresAt   time.Time
}

// SubscriptionError is a failure to establish or renew a subscription.
type SubscriptionError struct {
	EventURL string
	Status   int
	Err      error
}

func (e *SubscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("subscribe %s: %s", e.EventURL, e.Err)
	}
	return fmt.Sprintf("subscribe %s: status %d", e.EventURL, e.Status)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// Subscribe requests a new event subscription at eventURL, asking the device
// to deliver NOTIFY callbacks to callbackURL for the given lease.
func (c *Client) Subscribe(ctx context.Context, eventURL, callbackURL string, lease time.Duration) (*Subscription, error) {
	req, err := http.NewRequestWithContext(ctx, "SUBSCRIBE", eventURL, nil)
	if err != nil {
		return nil, &SubscriptionError{EventURL: eventURL, Err: err}
	}
	req.Header.Set("CALLBACK", "<"+callbackURL+">")
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("TIMEOUT", fmt.Sprintf("Second-%d", int(lease.Seconds())))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &SubscriptionError{EventURL: eventURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SubscriptionError{EventURL: eventURL, Status: resp.StatusCode}
	}

	sid := resp.Header.Get("SID")
	if sid == "" {
		return nil, &SubscriptionError{EventURL: eventURL, Err: fmt.Errorf("no SID in response")}
	}

	granted := parseLease(resp.Header.Get("TIMEOUT"), lease)
	return &Subscription{
		SID:         sid,
		EventURL:    eventURL,
		CallbackURL: callbackURL,
		Lease:       granted,
		ExpiresAt:   time.Now().Add(granted),
	}, nil
}

// Renew extends an existing subscription. The device may issue a new SID.
func (c *Client) Renew(ctx context.Context, sub *Subscription) (*Subscription, error) {
	req, err := http.NewRequestWithContext(ctx, "SUBSCRIBE", sub.EventURL, nil)
	if err != nil {
		return nil, &SubscriptionError{EventURL: sub.EventURL, Err: err}
	}
	req.Header.Set("SID", sub.SID)
	req.Header.Set("TIMEOUT", fmt.Sprintf("Second-%d", int(sub.Lease.Seconds())))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &SubscriptionError{EventURL: sub.EventURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SubscriptionError{EventURL: sub.EventURL, Status: resp.StatusCode}
	}

	sid := resp.Header.Get("SID")
	if sid == "" {
		sid = sub.SID
	}
	granted := parseLease(resp.Header.Get("TIMEOUT"), sub.Lease)
	return &Subscription{
		SID:         sid,
		EventURL:    sub.EventURL,
		CallbackURL: sub.CallbackURL,
		Lease:       granted,
		ExpiresAt:   time.Now().Add(granted),
	}, nil
}

// Unsubscribe cancels a subscription. Errors are returned but a dead device
// is expected here; callers typically just log them.
func (c *Client) Unsubscribe(ctx context.Context, sub *Subscription) error {
	req, err := http.NewRequestWithContext(ctx, "UNSUBSCRIBE", sub.EventURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("SID", sub.SID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unsubscribe %s: status %d", sub.EventURL, resp.StatusCode)
	}
	return nil
}

// parseLease parses a GENA TIMEOUT header value ("Second-300"), falling back
// to the requested lease when the device answers something unusable.
func parseLease(header string, requested time.Duration) time.Duration {
	header = strings.TrimSpace(header)
	if rest, ok := strings.CutPrefix(header, "Second-"); ok {
		if secs, err := strconv.Atoi(rest); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return requested
}
