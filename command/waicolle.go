package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/nanachan-bot/nanachan/nanapi"
	"github.com/nanachan-bot/nanachan/waicolle"
)

const (
	dropPrefix  = "drop"
	tradePrefix = "trade"
	// waifusPerPage is the number of waifus listed per page.
	waifusPerPage = 15
)

// WaicolleCommand returns the waicolle command.
func WaicolleCommand() *Command {
	sub := func(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        name,
			Description: desc,
			Options:     opts,
		}
	}
	str := func(name, desc string, req bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: name, Description: desc, Required: req}
	}
	user := func(name, desc string, req bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: name, Description: desc, Required: req}
	}
	return &Command{
		Def: &discordgo.ApplicationCommand{
			Name:        "waicolle",
			Description: "Waifu collection game",
			Options: []*discordgo.ApplicationCommandOption{
				sub("register", "Join the game"),
				sub("coins", "Show your moecoins", user("user", "Player to show", false)),
				sub("list", "List waifus", user("user", "Player to show", false)),
				sub("rolls", "List available rolls"),
				sub("roll", "Buy a roll", str("roll", "Roll ID", true)),
				sub("reroll", "Trade waifus for new ones", str("waifus", "Space separated waifu IDs", true)),
				sub("trade", "Offer a trade",
					user("with", "Player to trade with", true),
					str("give", "Space separated IDs of your waifus to give", false),
					str("take", "Space separated IDs of their waifus to take", false),
					&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionInteger, Name: "coins", Description: "Moecoins to give"},
				),
			},
		},
		Subs: map[string]Func{
			"register": Register,
			"coins":    Coins,
			"list":     ListWaifus,
			"rolls":    Rolls,
			"roll":     Roll,
			"reroll":   Reroll,
			"trade":    Trade,
		},
		Components: map[string]Component{
			dropPrefix:  Claim,
			tradePrefix: SettleTrade,
		},
	}
}

func playerErr(err error) error {
	if errors.Is(err, nanapi.ErrNotFound) {
		return Failf("Not registered. Use `/waicolle register` first.")
	}
	return err
}

// Register joins the invoking user to the game.
func Register(ctx context.Context, robo *Robot, call *Invocation) error {
	p, err := robo.Players.UpsertPlayer(ctx, call.User.ID, call.User.Username, "WAIFU")
	if err != nil {
		return err
	}
	return call.Resp.ReplyText(ctx, fmt.Sprintf("Welcome to waicolle, <@%s>! You have %d moecoins.", p.DiscordID, p.Moecoins))
}

// Coins shows a player's moecoins.
func Coins(ctx context.Context, robo *Robot, call *Invocation) error {
	u := call.User
	if o := call.UserOption("user"); o != nil {
		u = o
	}
	p, err := robo.Players.Player(ctx, u.ID)
	if err != nil {
		return playerErr(err)
	}
	s := fmt.Sprintf("<@%s> has %d moecoins and %d blood shards.", p.DiscordID, p.Moecoins, p.Blood)
	if robo.Game != nil {
		if n := robo.Game.Rewarder.Pending(u.ID); n > 0 {
			s += fmt.Sprintf(" %d more are on the way.", n)
		}
		for _, e := range robo.Game.Multiplier.Active(time.Now()) {
			s += fmt.Sprintf("\n%s: drops ×%g until <t:%d:R>", e.Name, e.Factor, e.End.Unix())
		}
	}
	return call.Resp.ReplyText(ctx, s)
}

func waifuLine(w *nanapi.Waifu) string {
	name := w.CharacterName
	if name == "" {
		name = "#" + strconv.Itoa(w.CharacterID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "`%s` **%s**", w.ID, name)
	if w.Level > 0 {
		fmt.Fprintf(&b, " ★%d", w.Level)
	}
	if w.Locked {
		b.WriteString(" 🔒")
	}
	if w.Frozen {
		b.WriteString(" ❄️")
	}
	if w.Blooded {
		b.WriteString(" 🩸")
	}
	return b.String()
}

// waifuPages lays waifus out over pages.
func waifuPages(title string, ws []nanapi.Waifu) []*discordgo.MessageEmbed {
	var pages []*discordgo.MessageEmbed
	for i := 0; i < len(ws); i += waifusPerPage {
		var lines []string
		for j := i; j < min(i+waifusPerPage, len(ws)); j++ {
			lines = append(lines, waifuLine(&ws[j]))
		}
		pages = append(pages, &discordgo.MessageEmbed{Title: title, Description: strings.Join(lines, "\n")})
	}
	return pages
}

// ListWaifus lists a player's waifus.
func ListWaifus(ctx context.Context, robo *Robot, call *Invocation) error {
	u := call.User
	if o := call.UserOption("user"); o != nil {
		u = o
	}
	ws, err := robo.Players.Waifus(ctx, u.ID)
	if err != nil {
		return playerErr(err)
	}
	if len(ws) == 0 {
		return Failf("No waifus yet.")
	}
	return robo.Pages.Send(ctx, call, waifuPages(fmt.Sprintf("%s's waifus (%d)", u.Username, len(ws)), ws))
}

// Rolls lists the rolls the invoking user can buy.
func Rolls(ctx context.Context, robo *Robot, call *Invocation) error {
	rs, err := robo.Players.Rolls(ctx, call.User.ID)
	if err != nil {
		return playerErr(err)
	}
	if len(rs) == 0 {
		return Failf("No rolls are available.")
	}
	lines := make([]string, 0, len(rs))
	for _, r := range rs {
		lines = append(lines, fmt.Sprintf("`%s` %s: %d moecoins", r.ID, r.Name, r.Price))
	}
	return call.Resp.Reply(ctx, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{{Title: "Rolls", Description: strings.Join(lines, "\n")}},
	})
}

// Roll buys a roll.
func Roll(ctx context.Context, robo *Robot, call *Invocation) error {
	if err := call.Resp.Defer(ctx, false); err != nil {
		return err
	}
	ws, err := robo.Players.Roll(ctx, call.User.ID, call.String("roll"), "roll")
	if err != nil {
		switch {
		case errors.Is(err, nanapi.ErrConflict):
			return Fail(err, "Not enough moecoins for that roll.")
		case errors.Is(err, nanapi.ErrNotFound):
			return Fail(err, "No such roll, or you aren't registered.")
		}
		return err
	}
	return call.Resp.Reply(ctx, &discordgo.InteractionResponseData{
		Embeds: obtained(fmt.Sprintf("%s rolled", call.User.Username), ws),
	})
}

func obtained(title string, ws []nanapi.Waifu) []*discordgo.MessageEmbed {
	var lines []string
	image := ""
	for i := range ws {
		lines = append(lines, waifuLine(&ws[i]))
		if image == "" {
			image = ws[i].CharacterImage
		}
	}
	e := &discordgo.MessageEmbed{Title: title, Description: strings.Join(lines, "\n")}
	if image != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: image}
	}
	return []*discordgo.MessageEmbed{e}
}

// Reroll exchanges waifus for new ones.
func Reroll(ctx context.Context, robo *Robot, call *Invocation) error {
	ids := strings.Fields(call.String("waifus"))
	if err := waicolle.ValidateReroll(ids, robo.RerollCount); err != nil {
		return Failf("%v", err)
	}
	if err := call.Resp.Defer(ctx, false); err != nil {
		return err
	}
	r, err := waicolle.Reroll(ctx, robo.Game.API, call.User.ID, ids, robo.RerollCount, robo.BotID)
	if err != nil {
		if errors.Is(err, nanapi.ErrConflict) || errors.Is(err, nanapi.ErrForbidden) {
			return Fail(err, "Some of those waifus can't be rerolled.")
		}
		return err
	}
	embeds := obtained(fmt.Sprintf("%s rerolled", call.User.Username), r.Obtained)
	if len(r.Nanascends) > 0 {
		embeds = append(embeds, obtained("Nanascended!", r.Nanascends)...)
	}
	return call.Resp.Reply(ctx, &discordgo.InteractionResponseData{Embeds: embeds})
}

// Trade offers a trade to another player.
func Trade(ctx context.Context, robo *Robot, call *Invocation) error {
	with := call.UserOption("with")
	give := strings.Fields(call.String("give"))
	take := strings.Fields(call.String("take"))
	coins, _ := call.Int("coins")
	switch {
	case with == nil || with.ID == call.User.ID:
		return Failf("You can't trade with yourself.")
	case with.Bot:
		return Failf("Bots don't collect waifus.")
	case coins < 0:
		return Failf("You can't give negative moecoins.")
	case len(give) == 0 && len(take) == 0 && coins == 0:
		return Failf("That trade is empty.")
	}
	if err := call.Resp.Defer(ctx, false); err != nil {
		return err
	}
	o, err := robo.Game.Trades.Offer(ctx, call.User.ID, with.ID, give, take, int(coins), time.Now())
	if err != nil {
		if errors.Is(err, nanapi.ErrConflict) || errors.Is(err, nanapi.ErrForbidden) {
			return Fail(err, "Some of those waifus aren't tradable.")
		}
		return err
	}
	return call.Resp.Reply(ctx, tradeMessage(o))
}

func tradeMessage(o *waicolle.Offer) *discordgo.InteractionResponseData {
	list := func(ids []string) string {
		if len(ids) == 0 {
			return "nothing"
		}
		return "`" + strings.Join(ids, "` `") + "`"
	}
	desc := fmt.Sprintf("<@%s> gives %s", o.Author, list(o.Offered))
	if o.Coins > 0 {
		desc += fmt.Sprintf(" and %d moecoins", o.Coins)
	}
	desc += fmt.Sprintf("\n<@%s> gives %s", o.Recipient, list(o.Requested))
	id := o.ID.String()
	return &discordgo.InteractionResponseData{
		Content: fmt.Sprintf("<@%s>, you have a trade offer!", o.Recipient),
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Trade offer",
			Description: desc,
			Timestamp:   o.Expires.Format(time.RFC3339),
			Footer:      &discordgo.MessageEmbedFooter{Text: "expires"},
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Accept", Style: discordgo.SuccessButton, CustomID: tradePrefix + ":accept:" + id},
				discordgo.Button{Label: "Decline", Style: discordgo.DangerButton, CustomID: tradePrefix + ":decline:" + id},
				discordgo.Button{Label: "Cancel", Style: discordgo.SecondaryButton, CustomID: tradePrefix + ":cancel:" + id},
			}},
		},
		AllowedMentions: &discordgo.MessageAllowedMentions{Users: []string{o.Recipient}},
	}
}

// SettleTrade handles trade buttons.
func SettleTrade(ctx context.Context, robo *Robot, call *Invocation, payload string) error {
	action, ids, _ := strings.Cut(payload, ":")
	id, err := uuid.Parse(ids)
	if err != nil {
		return fmt.Errorf("bad trade payload %q: %w", payload, err)
	}
	var (
		settle func(context.Context, uuid.UUID, string, time.Time) (*waicolle.Offer, error)
		done   string
	)
	t := robo.Game.Trades
	switch action {
	case "accept":
		settle, done = t.Accept, "Trade completed!"
	case "decline":
		settle, done = t.Decline, "Trade declined."
	case "cancel":
		settle, done = t.Cancel, "Trade cancelled."
	default:
		return fmt.Errorf("unknown trade action %q", action)
	}
	if err := call.Resp.Defer(ctx, true); err != nil {
		return err
	}
	_, err = settle(ctx, id, call.User.ID, time.Now())
	switch {
	case errors.Is(err, waicolle.ErrNoOffer):
		return Failf("That offer has expired.")
	case errors.Is(err, waicolle.ErrNotParty):
		return Failf("That isn't your call.")
	case errors.Is(err, waicolle.ErrSettled):
		return Failf("That offer is already being handled.")
	case err != nil:
		if errors.Is(err, nanapi.ErrConflict) {
			return Fail(err, "Some waifus in that trade changed hands. Make a new offer.")
		}
		return err
	}
	return call.Resp.Update(ctx, &discordgo.InteractionResponseData{
		Content:    done,
		Components: []discordgo.MessageComponent{},
	})
}

// DropMessage announces a drop with a claim button.
func DropMessage(d *waicolle.Drop) *discordgo.MessageSend {
	noun := "waifus"
	if d.Size == 1 {
		noun = "waifu"
	}
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "A drop appeared!",
			Description: fmt.Sprintf("%d %s up for grabs.", d.Size, noun),
			Timestamp:   d.Expires.Format(time.RFC3339),
			Footer:      &discordgo.MessageEmbedFooter{Text: "expires"},
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Claim", Style: discordgo.PrimaryButton, CustomID: dropPrefix + ":" + d.ID},
			}},
		},
	}
}

// Claim handles drop claim buttons.
func Claim(ctx context.Context, robo *Robot, call *Invocation, payload string) error {
	if err := call.Resp.Defer(ctx, true); err != nil {
		return err
	}
	d, ws, err := robo.Game.Claim(ctx, payload, call.User.ID, time.Now())
	switch {
	case errors.Is(err, waicolle.ErrClaimed):
		return Failf("Someone else got there first.")
	case errors.Is(err, waicolle.ErrNoDrop):
		return Failf("That drop has expired.")
	case err != nil:
		return playerErr(err)
	}
	embeds := obtained(fmt.Sprintf("%s claimed the drop", call.User.Username), ws)
	embeds[0].Footer = &discordgo.MessageEmbedFooter{Text: d.Reason}
	return call.Resp.Update(ctx, &discordgo.InteractionResponseData{
		Embeds:     embeds,
		Components: []discordgo.MessageComponent{},
	})
}
