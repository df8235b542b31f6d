package fetcher

import (
	"context"
	"fmt"
	"net/url"

	"github.com/wikitools/delsort/internal/types"
)

type loginResult struct {
	Result string `json:"result"`
	Reason string `json:"reason"`
}

// HasCredentials reports whether a bot password is configured.
func (c *Client) HasCredentials() bool {
	return c.cfg.Username != "" && c.cfg.Password != ""
}

// Login signs in with the configured bot password. The session cookie stays
// in the client's jar for subsequent requests.
func (c *Client) Login(ctx context.Context) error {
	if !c.HasCredentials() {
		return fmt.Errorf("%w: no credentials configured", types.ErrLoginFailed)
	}

	resp, err := c.get(ctx, url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
		"type":   {"login"},
	})
	if err != nil {
		return fmt.Errorf("fetch login token: %w", err)
	}
	if resp.Query == nil || resp.Query.Tokens.LoginToken == "" {
		return fmt.Errorf("%w: no login token returned", types.ErrLoginFailed)
	}

	resp, err = c.post(ctx, url.Values{
		"action":     {"login"},
		"lgname":     {c.cfg.Username},
		"lgpassword": {c.cfg.Password},
		"lgtoken":    {resp.Query.Tokens.LoginToken},
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.Login == nil || resp.Login.Result != "Success" {
		reason := "no login result"
		if resp.Login != nil {
			reason = resp.Login.Result + ": " + resp.Login.Reason
		}
		return fmt.Errorf("%w: %s", types.ErrLoginFailed, reason)
	}

	c.logger.Info("logged in", "user", c.cfg.Username)
	return nil
}
