package twitch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Stream is the response type from https://dev.twitch.tv/docs/api/reference/#get-streams.
type Stream struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameID       string    `json:"game_id"`
	GameName     string    `json:"game_name"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Tags         []string  `json:"tags"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	Language     string    `json:"language"`
	ThumbnailURL string    `json:"thumbnail_url"`
	IsMature     bool      `json:"is_mature"`
	// tag_ids is deprecated and always empty
}

// Thumbnail returns the stream thumbnail URL at the given size.
func (s *Stream) Thumbnail(width, height int) string {
	r := strings.NewReplacer("{width}", fmt.Sprint(width), "{height}", fmt.Sprint(height))
	return r.Replace(s.ThumbnailURL)
}

// UserStreams gets stream information for a list of up to 100 users.
// For each stream in the given list, if the user ID is provided, then the
// query is made by user ID, and otherwise it is made by user login.
// (NOTE: the ID field is not used as input; only UserID.)
// Logins used to search are normalized to lower case.
// Only users who are live appear in the result.
// The result reuses the memory in streams, but may be of different length and
// in any order.
func UserStreams(ctx context.Context, client Client, streams []Stream) ([]Stream, error) {
	v := url.Values{}
	for _, s := range streams {
		if s.UserID != "" {
			v.Add("user_id", s.UserID)
			continue
		}
		if s.UserLogin != "" {
			v.Add("user_login", strings.ToLower(s.UserLogin))
		}
	}
	if len(v) == 0 {
		return streams[:0], nil
	}
	streams = streams[:0]
	if _, err := reqjson(ctx, client, client.apiurl("/helix/streams", v), &streams); err != nil {
		return nil, fmt.Errorf("couldn't get streams info: %w", err)
	}
	return streams, nil
}
