package accounts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/keybound/identity-vault-backend/accessctl"
	"github.com/keybound/identity-vault-backend/auth"
	"github.com/keybound/identity-vault-backend/interfaces"
)

// ErrValidation reports a request the server rejected as malformed before
// any credential check.
var ErrValidation = errors.New("request rejected as malformed")

// Client is a typed HTTP client for the account endpoints. It translates
// the handler's status codes back into the access-control error taxonomy,
// so callers handle the same sentinels on both sides of the wire.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an account client for the service at baseURL
// (e.g. "http://localhost:8080").
func NewClient(baseURL string, timeout ...time.Duration) *Client {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// Inspect fetches the account projection for creds.
func (c *Client) Inspect(accountID string, creds auth.Credentials) (*accessctl.IdentityInfo, error) {
	resp, err := c.do(http.MethodGet, accountID, creds, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := mapStatus(resp); err != nil {
		return nil, err
	}

	var info accessctl.IdentityInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("could not parse account info: %w", err)
	}
	return &info, nil
}

// ChangePassphrase rotates the account passphrase. The old passphrase is
// carried in creds, the new one in the request body.
func (c *Client) ChangePassphrase(accountID string, creds auth.Credentials, newPassphrase string) error {
	body, err := json.Marshal(ChangePassphraseRequest{Passphrase: newPassphrase})
	if err != nil {
		return fmt.Errorf("could not encode request: %w", err)
	}

	resp, err := c.do(http.MethodPut, accountID, creds, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return mapStatus(resp)
}

// Destroy removes the account and all of its documents.
func (c *Client) Destroy(accountID string, creds auth.Credentials) error {
	resp, err := c.do(http.MethodDelete, accountID, creds, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return mapStatus(resp)
}

func (c *Client) do(method, accountID string, creds auth.Credentials, body io.Reader) (*http.Response, error) {
	endpoint := fmt.Sprintf("%s/api/v1/accounts/%s", c.baseURL, url.PathEscape(accountID))

	req, err := http.NewRequest(method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.SetBasicAuth(creds.Identifier, creds.Passphrase)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("account request failed: %w", err)
	}
	return resp, nil
}

// mapStatus converts non-success responses into taxonomy errors.
func mapStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return accessctl.ErrNotFound
	case http.StatusUnauthorized:
		return accessctl.ErrChallenge
	case http.StatusConflict:
		return interfaces.ErrStaleIdentity
	case http.StatusUnprocessableEntity:
		return ErrValidation
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("account request failed with code %d: %s", resp.StatusCode, string(body))
	}
}
