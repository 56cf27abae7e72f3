package twitch

import (
	"context"
	"fmt"
	"net/url"
)

// User is the response type from https://dev.twitch.tv/docs/api/reference/#get-users.
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Type            string `json:"type"`
	BroadcasterType string `json:"broadcaster_type"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
	OfflineImageURL string `json:"offline_image_url"`
	ViewCount       int    `json:"view_count"`
	Email           string `json:"email"`
	CreatedAt       string `json:"created_at"`
}

// Users gets information about up to 100 users by ID or login.
// For each user in the given list, the ID is used if present and the login
// otherwise.
// The result reuses the memory in users, but may be of different length and
// in any order.
func Users(ctx context.Context, client Client, users []User) ([]User, error) {
	v := url.Values{}
	for _, u := range users {
		switch {
		case u.ID != "":
			v.Add("id", u.ID)
		case u.Login != "":
			v.Add("login", u.Login)
		}
	}
	if len(v) == 0 {
		return users[:0], nil
	}
	users = users[:0]
	if _, err := reqjson(ctx, client, client.apiurl("/helix/users", v), &users); err != nil {
		return nil, fmt.Errorf("couldn't get users info: %w", err)
	}
	return users, nil
}
