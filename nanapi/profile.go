package nanapi

import (
	"context"
	"net/url"
)

// Profile is a server member's profile.
type Profile struct {
	DiscordID       string `json:"discord_id"`
	DiscordUsername string `json:"discord_username"`
	FullName        string `json:"full_name,omitempty"`
	// Birthday is YYYY-MM-DD.
	Birthday       string `json:"birthday,omitempty"`
	GraduationYear int    `json:"graduation_year,omitempty"`
	Photo          string `json:"photo,omitempty"`
	Pronouns       string `json:"pronouns,omitempty"`
}

// ProfileUpdate is a partial profile. Nil fields are unchanged.
type ProfileUpdate struct {
	DiscordUsername string  `json:"discord_username"`
	FullName        *string `json:"full_name,omitempty"`
	Birthday        *string `json:"birthday,omitempty"`
	GraduationYear  *int    `json:"graduation_year,omitempty"`
	Photo           *string `json:"photo,omitempty"`
	Pronouns        *string `json:"pronouns,omitempty"`
}

// Profile gets a member's profile.
func (c *Client) Profile(ctx context.Context, discordID string) (*Profile, error) {
	var r Profile
	if err := call(ctx, c, "GET", "/user/profiles/"+url.PathEscape(discordID), nil, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpsertProfile creates or updates a member's profile.
func (c *Client) UpsertProfile(ctx context.Context, discordID string, p *ProfileUpdate) (*Profile, error) {
	var r Profile
	if err := call(ctx, c, "PATCH", "/user/profiles/"+url.PathEscape(discordID), nil, p, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// profileBatch is the most IDs sent in one profile search.
const profileBatch = 100

// Profiles gets the profiles of the given members. Members without profiles
// are absent from the result.
func (c *Client) Profiles(ctx context.Context, discordIDs []string) ([]Profile, error) {
	var r []Profile
	for len(discordIDs) > 0 {
		n := min(len(discordIDs), profileBatch)
		var batch []Profile
		q := url.Values{"discord_ids": discordIDs[:n]}
		if err := call(ctx, c, "GET", "/user/profiles/search", q, nil, &batch); err != nil {
			return nil, err
		}
		r = append(r, batch...)
		discordIDs = discordIDs[n:]
	}
	return r, nil
}

// FindProfiles searches profiles by name.
func (c *Client) FindProfiles(ctx context.Context, pattern string) ([]Profile, error) {
	var r []Profile
	q := url.Values{"pattern": {pattern}}
	if err := call(ctx, c, "GET", "/user/profiles", q, nil, &r); err != nil {
		return nil, err
	}
	return r, nil
}
