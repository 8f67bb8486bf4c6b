package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"courier/internal/domain"
)

// staleReport is the 409 response body for a mismatched envelope device set.
type staleReport struct {
	Missing map[domain.UserID][]domain.DeviceID `json:"missing,omitempty"`
	Extra   map[domain.UserID][]domain.DeviceID `json:"extra,omitempty"`
}

// batchPreKeyRequest asks for one bundle per listed device.
type batchPreKeyRequest struct {
	Missing map[domain.UserID][]domain.DeviceID `json:"missing"`
}

// HTTP talks to the relay server over JSON/HTTP.
type HTTP struct {
	Base string
	HTTP *http.Client
}

// NewHTTP returns a relay client for the given base URL.
func NewHTTP(base string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{Base: base, HTTP: client}
}

// IsConnected probes the relay health endpoint with a short deadline.
func (c *HTTP) IsConnected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode/100 == 2
}

// RegisterDevice publishes one device's bundle and one-time prekeys.
func (c *HTTP) RegisterDevice(ctx context.Context, reg domain.DeviceRegistration) error {
	return c.post(ctx, "/register", reg, nil)
}

// CreateConversation creates a conversation with creator as first member.
func (c *HTTP) CreateConversation(ctx context.Context, conv domain.ConversationID, creator domain.UserID) error {
	return c.post(ctx, "/conversations", struct {
		ID      domain.ConversationID `json:"id"`
		Creator domain.UserID         `json:"creator"`
	}{conv, creator}, nil)
}

// JoinConversation adds user to an existing conversation.
func (c *HTTP) JoinConversation(ctx context.Context, conv domain.ConversationID, user domain.UserID) error {
	return c.post(ctx, "/conversations/"+url.PathEscape(conv.String())+"/join", struct {
		User domain.UserID `json:"user"`
	}{user}, nil)
}

// DetailedMembers fetches the conversation membership with current device lists.
func (c *HTTP) DetailedMembers(ctx context.Context, conv domain.ConversationID) ([]domain.RecipientContact, error) {
	var out []domain.RecipientContact
	err := c.getJSON(ctx, "/conversations/"+url.PathEscape(conv.String())+"/members", &out)
	return out, err
}

// FetchPreKeys fetches bundles for a batch of missing devices in one round
// trip. Devices the relay no longer knows are absent from the response.
func (c *HTTP) FetchPreKeys(ctx context.Context, missing map[domain.UserID][]domain.DeviceID) ([]domain.DevicePreKeyBundle, error) {
	var out []domain.DevicePreKeyBundle
	err := c.post(ctx, "/prekeys/batch", batchPreKeyRequest{Missing: missing}, &out)
	return out, err
}

// SendEnvelope submits env. A 409 is decoded into *domain.StaleDevicesError.
func (c *HTTP) SendEnvelope(ctx context.Context, conv domain.ConversationID, env domain.TransportEnvelope) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(env); err != nil {
		return err
	}
	path := "/conversations/" + url.PathEscape(conv.String()) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		var rep staleReport
		if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
			return fmt.Errorf("relay post %s: decoding stale report: %w", path, err)
		}
		return &domain.StaleDevicesError{Missing: rep.Missing, Extra: rep.Extra}
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay post %s: %s", path, resp.Status)
	}
	return nil
}

// FetchMailbox returns up to limit pending items for (user, device).
func (c *HTTP) FetchMailbox(ctx context.Context, user domain.UserID, device domain.DeviceID, limit int) ([]domain.MailboxItem, error) {
	path := "/mailbox/" + url.PathEscape(user.String()) + "/" + url.PathEscape(device.String())
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []domain.MailboxItem
	err := c.getJSON(ctx, path, &out)
	return out, err
}

// AckMailbox removes the first count items from the mailbox of (user, device).
func (c *HTTP) AckMailbox(ctx context.Context, user domain.UserID, device domain.DeviceID, count int) error {
	path := "/mailbox/" + url.PathEscape(user.String()) + "/" + url.PathEscape(device.String()) + "/ack"
	return c.post(ctx, path, struct {
		Count int `json:"count"`
	}{count}, nil)
}

func (c *HTTP) post(ctx context.Context, path string, in, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay post %s: %s", path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTP) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay get %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Compile-time assertion that HTTP implements domain.RelayClient.
var _ domain.RelayClient = (*HTTP)(nil)
