package command

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nanachan-bot/nanachan/nanapi"
)

// ProfileCommands returns the profile commands.
func ProfileCommands() []*Command {
	sub := func(name, desc string, opt *discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
		s := &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionSubCommand, Name: name, Description: desc}
		if opt != nil {
			s.Options = []*discordgo.ApplicationCommandOption{opt}
		}
		return s
	}
	str := func(name, desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: name, Description: desc, Required: true}
	}
	return []*Command{
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "profile",
				Description: "Member profiles",
				Options: []*discordgo.ApplicationCommandOption{
					sub("show", "Show a profile", &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to show"}),
					sub("name", "Set your full name", str("name", "Your full name")),
					sub("birthday", "Set your birthday", str("date", "YYYY-MM-DD")),
					sub("graduation", "Set your graduation year", &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionInteger, Name: "year", Description: "Graduation year", Required: true}),
					sub("photo", "Set your photo", str("url", "Photo URL")),
					sub("pronouns", "Set your pronouns", str("pronouns", "Your pronouns")),
					sub("search", "Find members by name", str("name", "Part of a name")),
				},
			},
			Subs: map[string]Func{
				"show":       ShowProfile,
				"name":       SetName,
				"birthday":   SetBirthday,
				"graduation": SetGraduation,
				"photo":      SetPhoto,
				"pronouns":   SetPronouns,
				"search":     SearchProfiles,
			},
		},
		{
			Def:  &discordgo.ApplicationCommand{Name: "Profile", Type: discordgo.UserApplicationCommand},
			Func: ShowProfileTarget,
		},
	}
}

func profileEmbed(p *nanapi.Profile, u *discordgo.User) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{Title: p.FullName}
	if e.Title == "" {
		e.Title = p.DiscordUsername
	}
	if u != nil {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: u.AvatarURL("256")}
	}
	if p.Photo != "" {
		e.Image = &discordgo.MessageEmbedImage{URL: p.Photo}
	}
	field := func(name, value string) {
		if value != "" {
			e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: name, Value: value, Inline: true})
		}
	}
	field("Discord", "<@"+p.DiscordID+">")
	field("Birthday", p.Birthday)
	if p.GraduationYear > 0 {
		field("Graduation", strconv.Itoa(p.GraduationYear))
	}
	field("Pronouns", p.Pronouns)
	return e
}

func showProfile(ctx context.Context, robo *Robot, call *Invocation, u *discordgo.User) error {
	p, err := robo.Profiles.Profile(ctx, u.ID)
	if err != nil {
		if errors.Is(err, nanapi.ErrNotFound) {
			return Failf("%s has no profile.", u.Username)
		}
		return err
	}
	return call.Resp.Reply(ctx, &discordgo.InteractionResponseData{
		Embeds:          []*discordgo.MessageEmbed{profileEmbed(p, u)},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
}

// ShowProfile shows a member's profile.
func ShowProfile(ctx context.Context, robo *Robot, call *Invocation) error {
	u := call.User
	if o := call.UserOption("user"); o != nil {
		u = o
	}
	return showProfile(ctx, robo, call, u)
}

// ShowProfileTarget shows the profile of a user command's target.
func ShowProfileTarget(ctx context.Context, robo *Robot, call *Invocation) error {
	data := call.Interaction.ApplicationCommandData()
	u := &discordgo.User{ID: data.TargetID}
	if data.Resolved != nil && data.Resolved.Users[data.TargetID] != nil {
		u = data.Resolved.Users[data.TargetID]
	}
	return showProfile(ctx, robo, call, u)
}

func updateProfile(ctx context.Context, robo *Robot, call *Invocation, upd *nanapi.ProfileUpdate) error {
	upd.DiscordUsername = call.User.Username
	p, err := robo.Profiles.UpsertProfile(ctx, call.User.ID, upd)
	if err != nil {
		return err
	}
	return call.Resp.Reply(ctx, &discordgo.InteractionResponseData{
		Content:         "Profile updated.",
		Embeds:          []*discordgo.MessageEmbed{profileEmbed(p, call.User)},
		Flags:           discordgo.MessageFlagsEphemeral,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
}

// SetName sets the invoking member's full name.
func SetName(ctx context.Context, robo *Robot, call *Invocation) error {
	name := strings.TrimSpace(call.String("name"))
	if name == "" {
		return Failf("Your name can't be empty.")
	}
	return updateProfile(ctx, robo, call, &nanapi.ProfileUpdate{FullName: &name})
}

// ParseBirthday validates a YYYY-MM-DD birthday that is not in the future.
func ParseBirthday(s string, now time.Time) (string, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return "", Failf("Birthdays look like 2003-07-21.")
	}
	if t.After(now) {
		return "", Failf("That birthday is in the future.")
	}
	return t.Format(time.DateOnly), nil
}

// SetBirthday sets the invoking member's birthday.
func SetBirthday(ctx context.Context, robo *Robot, call *Invocation) error {
	b, err := ParseBirthday(call.String("date"), time.Now())
	if err != nil {
		return err
	}
	return updateProfile(ctx, robo, call, &nanapi.ProfileUpdate{Birthday: &b})
}

// SetGraduation sets the invoking member's graduation year.
func SetGraduation(ctx context.Context, robo *Robot, call *Invocation) error {
	y, _ := call.Int("year")
	if y < 1900 || y > int64(time.Now().Year())+10 {
		return Failf("%d isn't a plausible graduation year.", y)
	}
	n := int(y)
	return updateProfile(ctx, robo, call, &nanapi.ProfileUpdate{GraduationYear: &n})
}

// SetPhoto sets the invoking member's photo.
func SetPhoto(ctx context.Context, robo *Robot, call *Invocation) error {
	s := strings.TrimSpace(call.String("url"))
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return Failf("That isn't a link to a photo.")
	}
	return updateProfile(ctx, robo, call, &nanapi.ProfileUpdate{Photo: &s})
}

// SetPronouns sets the invoking member's pronouns.
func SetPronouns(ctx context.Context, robo *Robot, call *Invocation) error {
	s := strings.TrimSpace(call.String("pronouns"))
	return updateProfile(ctx, robo, call, &nanapi.ProfileUpdate{Pronouns: &s})
}

// SearchProfiles finds members by name.
func SearchProfiles(ctx context.Context, robo *Robot, call *Invocation) error {
	q := strings.TrimSpace(call.String("name"))
	if len([]rune(q)) < 2 {
		return Failf("Search for at least two letters.")
	}
	ps, err := robo.Profiles.FindProfiles(ctx, q)
	if err != nil {
		return err
	}
	if len(ps) == 0 {
		return Failf("Nobody matches %q.", q)
	}
	pages := make([]*discordgo.MessageEmbed, 0, len(ps))
	for i := range ps {
		pages = append(pages, profileEmbed(&ps[i], nil))
	}
	return robo.Pages.Send(ctx, call, pages)
}

// Birthdays lists the members whose birthday is on the month and day of t.
func Birthdays(ctx context.Context, profiles Profiles, ids []string, t time.Time) ([]nanapi.Profile, error) {
	ps, err := profiles.Profiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("couldn't get profiles: %w", err)
	}
	md := t.Format("-01-02")
	// Leap day birthdays are celebrated on the 28th in other years.
	leap := md == "-02-28" && !isLeap(t.Year())
	var r []nanapi.Profile
	for _, p := range ps {
		if strings.HasSuffix(p.Birthday, md) || (leap && strings.HasSuffix(p.Birthday, "-02-29")) {
			r = append(r, p)
		}
	}
	return r, nil
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
