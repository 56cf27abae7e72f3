package anilist

import (
	"context"
	"fmt"
	"strings"
)

// MediaType is the type of a media entry.
type MediaType string

const (
	Anime MediaType = "ANIME"
	Manga MediaType = "MANGA"
)

// Title is a media title in several languages.
type Title struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
	Native  string `json:"native"`
}

// String returns the preferred title.
func (t Title) String() string {
	switch {
	case t.English != "":
		return t.English
	case t.Romaji != "":
		return t.Romaji
	default:
		return t.Native
	}
}

// Name is the name of a character or staff member.
type Name struct {
	Full   string `json:"full"`
	Native string `json:"native"`
}

// Image is a cover or portrait image.
type Image struct {
	Large string `json:"large"`
	Color string `json:"color"`
}

// Date is a possibly incomplete date.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// String formats the date with as much precision as is known.
func (d Date) String() string {
	switch {
	case d.Year == 0:
		return "?"
	case d.Month == 0:
		return fmt.Sprintf("%04d", d.Year)
	case d.Day == 0:
		return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
	default:
		return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	}
}

// Media is an anime or manga entry.
type Media struct {
	ID           int       `json:"id"`
	Type         MediaType `json:"type"`
	Format       string    `json:"format"`
	Status       string    `json:"status"`
	Episodes     int       `json:"episodes"`
	Chapters     int       `json:"chapters"`
	Volumes      int       `json:"volumes"`
	SiteURL      string    `json:"siteUrl"`
	AverageScore int       `json:"averageScore"`
	Genres       []string  `json:"genres"`
	Description  string    `json:"description"`
	Title        Title     `json:"title"`
	CoverImage   Image     `json:"coverImage"`
	StartDate    Date      `json:"startDate"`
	Season       string    `json:"season"`
	SeasonYear   int       `json:"seasonYear"`
}

// Character is a character entry.
type Character struct {
	ID          int    `json:"id"`
	SiteURL     string `json:"siteUrl"`
	Name        Name   `json:"name"`
	Image       Image  `json:"image"`
	Description string `json:"description"`
	Favourites  int    `json:"favourites"`
	Media       struct {
		Nodes []struct {
			Title   Title  `json:"title"`
			SiteURL string `json:"siteUrl"`
		} `json:"nodes"`
	} `json:"media"`
}

// Staff is a staff entry.
type Staff struct {
	ID                 int      `json:"id"`
	SiteURL            string   `json:"siteUrl"`
	Name               Name     `json:"name"`
	Image              Image    `json:"image"`
	Description        string   `json:"description"`
	PrimaryOccupations []string `json:"primaryOccupations"`
	Favourites         int      `json:"favourites"`
}

const mediaQuery = `query ($search: String, $type: MediaType) {
	Page(perPage: 10) {
		media(search: $search, type: $type, isAdult: false) {
			id type format status episodes chapters volumes siteUrl averageScore genres
			description(asHtml: true)
			title { romaji english native }
			coverImage { large color }
			startDate { year month day }
			season seasonYear
		}
	}
}`

const characterQuery = `query ($search: String) {
	Page(perPage: 10) {
		characters(search: $search) {
			id siteUrl favourites
			name { full native }
			image { large }
			description(asHtml: true)
			media(perPage: 3) { nodes { title { romaji english native } siteUrl } }
		}
	}
}`

const staffQuery = `query ($search: String) {
	Page(perPage: 10) {
		staff(search: $search) {
			id siteUrl favourites primaryOccupations
			name { full native }
			image { large }
			description(asHtml: true)
		}
	}
}`

// Media searches for anime or manga.
// The result has at least one element if the error is nil.
func (c *Client) Media(ctx context.Context, kind MediaType, search string) ([]Media, error) {
	var r struct {
		Page struct {
			Media []Media `json:"media"`
		} `json:"Page"`
	}
	vars := map[string]any{"search": search, "type": string(kind)}
	if err := query(ctx, c, cacheKey(strings.ToLower(string(kind)), search), mediaQuery, vars, &r); err != nil {
		return nil, err
	}
	if len(r.Page.Media) == 0 {
		return nil, ErrNotFound
	}
	return r.Page.Media, nil
}

// Character searches for characters.
// The result has at least one element if the error is nil.
func (c *Client) Character(ctx context.Context, search string) ([]Character, error) {
	var r struct {
		Page struct {
			Characters []Character `json:"characters"`
		} `json:"Page"`
	}
	vars := map[string]any{"search": search}
	if err := query(ctx, c, cacheKey("character", search), characterQuery, vars, &r); err != nil {
		return nil, err
	}
	if len(r.Page.Characters) == 0 {
		return nil, ErrNotFound
	}
	return r.Page.Characters, nil
}

// Staff searches for staff members.
// The result has at least one element if the error is nil.
func (c *Client) Staff(ctx context.Context, search string) ([]Staff, error) {
	var r struct {
		Page struct {
			Staff []Staff `json:"staff"`
		} `json:"Page"`
	}
	vars := map[string]any{"search": search}
	if err := query(ctx, c, cacheKey("staff", search), staffQuery, vars, &r); err != nil {
		return nil, err
	}
	if len(r.Page.Staff) == 0 {
		return nil, ErrNotFound
	}
	return r.Page.Staff, nil
}
