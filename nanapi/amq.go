package nanapi

import (
	"context"
	"net/url"
)

// AMQAccount links a Discord member to an AMQ username.
type AMQAccount struct {
	DiscordID string `json:"discord_id"`
	Username  string `json:"username"`
}

// AMQSetting is a stored AMQ room setting.
type AMQSetting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// AMQAccounts lists linked AMQ accounts.
func (c *Client) AMQAccounts(ctx context.Context) ([]AMQAccount, error) {
	var r []AMQAccount
	if err := call(ctx, c, "GET", "/amq/accounts", nil, nil, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// UpsertAMQAccount links a member to an AMQ username.
func (c *Client) UpsertAMQAccount(ctx context.Context, discordID, username string) (*AMQAccount, error) {
	body := struct {
		Username string `json:"username"`
	}{username}
	var r AMQAccount
	if err := call(ctx, c, "PATCH", "/amq/accounts/"+url.PathEscape(discordID), nil, &body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// AMQSettings gets the stored room settings.
func (c *Client) AMQSettings(ctx context.Context) (map[string]string, error) {
	var r []AMQSetting
	if err := call(ctx, c, "GET", "/amq/settings", nil, nil, &r); err != nil {
		return nil, err
	}
	m := make(map[string]string, len(r))
	for _, s := range r {
		m[s.Key] = s.Value
	}
	return m, nil
}

// UpdateAMQSettings stores room settings.
func (c *Client) UpdateAMQSettings(ctx context.Context, settings map[string]string) error {
	body := struct {
		Settings []AMQSetting `json:"settings"`
	}{}
	for k, v := range settings {
		body.Settings = append(body.Settings, AMQSetting{k, v})
	}
	return call[none](ctx, c, "PATCH", "/amq/settings", nil, &body, nil)
}
