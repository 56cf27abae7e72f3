package waicolle

import (
	"context"
	"fmt"

	"github.com/nanachan-bot/nanachan/nanapi"
)

// ValidateReroll checks a reroll request: exactly count distinct IDs.
func ValidateReroll(ids []string, count int) error {
	if len(ids) != count {
		return fmt.Errorf("a reroll takes exactly %d waifus, not %d", count, len(ids))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("empty waifu ID")
		}
		if seen[id] {
			return fmt.Errorf("waifu %s listed twice", id)
		}
		seen[id] = true
	}
	return nil
}

// Reroll validates and performs a reroll.
func Reroll(ctx context.Context, api API, player string, ids []string, count int, botID string) (*nanapi.RerollResult, error) {
	if err := ValidateReroll(ids, count); err != nil {
		return nil, err
	}
	r, err := api.Reroll(ctx, player, ids, botID)
	if err != nil {
		return nil, fmt.Errorf("couldn't reroll: %w", err)
	}
	return r, nil
}
