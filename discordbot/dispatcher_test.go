package discordbot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/logger"
)

type sent struct {
	channel string
	msg     *discordgo.MessageSend
}

type fakeClient struct {
	sent       []sent
	sendErr    error
	users      map[string]*User
	lookupErr  error
	pages      [][]*discordgo.Member
	afterCalls []string
}

func (f *fakeClient) SendMessage(_ context.Context, channelID string, msg *discordgo.MessageSend) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, sent{channelID, msg})
	return "msg-" + channelID, nil
}

func (f *fakeClient) LookupUser(_ context.Context, userID string) (*User, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.users[userID], nil
}

func (f *fakeClient) GuildMembers(_ context.Context, _, after string, _ int) ([]*discordgo.Member, error) {
	f.afterCalls = append(f.afterCalls, after)
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

// configured resolves every key to a synthetic channel id.
func configured(key string) string { return "chan:" + key }

func newTestDispatcher(c Client, lookup func(string) string) *Dispatcher {
	d := NewDispatcher(c, lookup, "https://img.test/", logger.Nop())
	d.now = func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }
	return d
}

func TestEveryTypeRendersWellFormedMessage(t *testing.T) {
	for _, key := range ApplicationTypes() {
		cfg := applicationTypes[key]
		_, ok := images[cfg.ImageKey]
		assert.True(t, ok, "image key %q of %s does not resolve", cfg.ImageKey, key)

		for _, status := range []string{"approved", "rejected", "on_hold", "closed"} {
			c := &fakeClient{}
			d := newTestDispatcher(c, configured)
			id, err := d.DispatchApplication(context.Background(), ApplicationNotice{
				ApplicationType:    key,
				ApplicantName:      "Franklin",
				ApplicantDiscordID: "111",
				Status:             status,
				ModeratorName:      "Lamar",
				AdminNotes:         "Good luck",
			})
			require.NoError(t, err, key)
			require.Len(t, c.sent, 1)
			assert.Equal(t, "msg-chan:"+cfg.ChannelEnv, id)

			msg := c.sent[0].msg
			assert.Equal(t, "<@111>", msg.Content)
			require.Len(t, msg.Embeds, 1)
			e := msg.Embeds[0]
			assert.NotEmpty(t, e.Title)
			assert.NotEmpty(t, e.Description)
			assert.NotZero(t, e.Color)
			require.GreaterOrEqual(t, len(e.Fields), 4)
			for i, name := range []string{"Applicant", "Reviewer", "Status"} {
				assert.Equal(t, name, e.Fields[i].Name)
				assert.True(t, e.Fields[i].Inline)
				assert.NotEmpty(t, e.Fields[i].Value)
			}
			assert.Equal(t, "Notes", e.Fields[3].Name)
			require.NotNil(t, e.Image)
			assert.True(t, strings.HasPrefix(e.Image.URL, "https://img.test/applications/"), e.Image.URL)
			assert.True(t, strings.HasSuffix(e.Image.URL, "-"+status+".png"), e.Image.URL)
			assert.NotContains(t, e.Image.URL, "default")
		}
	}
}

func TestEveryChannelKeyIsCoveredByConfiguredDeployment(t *testing.T) {
	env := map[string]string{}
	for _, k := range ChannelKeys() {
		env[k] = "123"
	}
	for _, key := range ApplicationTypes() {
		assert.NotEmpty(t, env[applicationTypes[key].ChannelEnv], key)
	}
}

func TestUnknownTypeAndMissingChannelAreConfigurationErrors(t *testing.T) {
	c := &fakeClient{}
	d := newTestDispatcher(c, configured)
	_, err := d.DispatchApplication(context.Background(), ApplicationNotice{ApplicationType: "racing", Status: "approved"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.TypeConfiguration))

	d = newTestDispatcher(c, func(string) string { return "" })
	_, err = d.DispatchApplication(context.Background(), ApplicationNotice{ApplicationType: "whitelist", Status: "approved"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.TypeConfiguration))
	assert.Contains(t, apperrors.Get(err).Details, "DISCORD_WHITELIST_CHANNEL_ID")
	assert.Empty(t, c.sent)
}

func TestTypeNormalisationAndAliases(t *testing.T) {
	c := &fakeClient{}
	d := newTestDispatcher(c, configured)
	for _, raw := range []string{"Weazel News", "weazel-news", "WEAZEL", "Ban", "LSPD"} {
		_, err := d.DispatchApplication(context.Background(), ApplicationNotice{ApplicationType: raw, Status: "Approved"})
		assert.NoError(t, err, raw)
	}
	assert.Equal(t, "chan:DISCORD_POLICE_CHANNEL_ID", c.sent[4].channel)
}

func TestReviewerLookup(t *testing.T) {
	c := &fakeClient{users: map[string]*User{
		"222": {User: discordgo.User{ID: "222", Username: "lamar.davis", Avatar: "abc"}},
		"333": {User: discordgo.User{ID: "333", Username: "simeon.y"}, GlobalName: "Simeon Yetarian"},
	}}
	d := newTestDispatcher(c, configured)
	_, msg, err := d.BuildApplicationMessage(context.Background(), ApplicationNotice{
		ApplicationType: "gang", Status: "rejected", ModeratorName: "Lamar", ModeratorDiscordID: "222",
	})
	require.NoError(t, err)
	e := msg.Embeds[0]
	assert.Equal(t, "lamar.davis", e.Fields[1].Value)
	assert.Contains(t, e.Author.IconURL, "abc")
	assert.Empty(t, msg.Content)

	_, msg, err = d.BuildApplicationMessage(context.Background(), ApplicationNotice{
		ApplicationType: "gang", Status: "approved", ModeratorName: "Simeon", ModeratorDiscordID: "333",
	})
	require.NoError(t, err)
	assert.Equal(t, "Simeon Yetarian", msg.Embeds[0].Fields[1].Value)
	assert.Equal(t, "Simeon Yetarian", msg.Embeds[0].Author.Name)

	c.lookupErr = errors.New("discord down")
	_, msg, err = d.BuildApplicationMessage(context.Background(), ApplicationNotice{
		ApplicationType: "gang", Status: "rejected", ModeratorName: "Lamar", ModeratorDiscordID: "222",
	})
	require.NoError(t, err)
	assert.Equal(t, "Lamar", msg.Embeds[0].Fields[1].Value)
}

func TestUserDecodesGlobalName(t *testing.T) {
	var u User
	require.NoError(t, json.Unmarshal([]byte(`{"id":"333","username":"simeon.y","global_name":"Simeon Yetarian","avatar":"f00"}`), &u))
	assert.Equal(t, "333", u.ID)
	assert.Equal(t, "Simeon Yetarian", u.DisplayName())
	assert.Contains(t, u.AvatarURL("128"), "f00")

	var legacy User
	require.NoError(t, json.Unmarshal([]byte(`{"id":"222","username":"lamar.davis","global_name":null}`), &legacy))
	assert.Equal(t, "lamar.davis", legacy.DisplayName())
}

func TestUnsupportedStatus(t *testing.T) {
	d := newTestDispatcher(&fakeClient{}, configured)
	_, _, err := d.BuildApplicationMessage(context.Background(), ApplicationNotice{ApplicationType: "pdm", Status: "pending"})
	assert.True(t, apperrors.Is(err, apperrors.TypeValidation))
}

func TestRemoteFailureSurfacesBody(t *testing.T) {
	restErr := &discordgo.RESTError{
		Response:     &http.Response{StatusCode: http.StatusInternalServerError, Status: "500 Internal Server Error"},
		ResponseBody: []byte(`{"message": "500: Internal Server Error", "code": 0}`),
	}
	c := &fakeClient{sendErr: remoteError("failed to post Discord message", restErr)}
	d := newTestDispatcher(c, configured)

	_, err := d.DispatchApplication(context.Background(), ApplicationNotice{ApplicationType: "staff", Status: "approved"})
	require.Error(t, err)
	appErr := apperrors.Get(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.TypeRemoteService, appErr.Type)
	assert.Contains(t, appErr.Details, "Internal Server Error")
	assert.True(t, errors.Is(err, restErr))
}

func TestTicketRouting(t *testing.T) {
	ticket := ds.Ticket{ID: "t1", TicketNumber: "T-20261019-ABC123", Category: "bug", Priority: ds.PriorityHigh, Subject: "Car vanished"}

	lookup := func(key string) string {
		if key == supportRoleEnv {
			return "999"
		}
		return configured(key)
	}
	c := &fakeClient{}
	d := newTestDispatcher(c, lookup)

	_, err := d.DispatchTicket(context.Background(), TicketNotice{Ticket: ticket, Status: ds.TicketOpen, IsNew: true, OwnerDiscordID: "111"})
	require.NoError(t, err)
	_, err = d.DispatchTicket(context.Background(), TicketNotice{Ticket: ticket, Status: ds.TicketInProgress, OwnerDiscordID: "111"})
	require.NoError(t, err)
	_, err = d.DispatchTicket(context.Background(), TicketNotice{
		Ticket: ticket, Status: ds.TicketResolved, OwnerDiscordID: "111", Resolution: "Refunded", AdminNotes: "Logged",
	})
	require.NoError(t, err)

	require.Len(t, c.sent, 3)
	assert.Equal(t, "chan:"+ticketStaffChannelEnv, c.sent[0].channel)
	assert.Equal(t, "<@&999>", c.sent[0].msg.Content)
	assert.Contains(t, c.sent[0].msg.Embeds[0].Title, "New Support Ticket")

	assert.Equal(t, "chan:"+ticketResponseChannelEnv, c.sent[1].channel)
	assert.Equal(t, "<@111>", c.sent[1].msg.Content)
	assert.Contains(t, c.sent[1].msg.Embeds[0].Image.URL, "ticket_progress")

	resolved := c.sent[2].msg.Embeds[0]
	names := []string{}
	for _, f := range resolved.Fields {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "Resolution")
	assert.Contains(t, names, "Staff Notes")
	assert.Contains(t, resolved.Image.URL, "ticket_resolved")
}

func TestTicketWithoutChannel(t *testing.T) {
	d := newTestDispatcher(&fakeClient{}, func(string) string { return "" })
	_, err := d.DispatchTicket(context.Background(), TicketNotice{Ticket: ds.Ticket{TicketNumber: "T-1"}, Status: ds.TicketOnHold})
	assert.True(t, apperrors.Is(err, apperrors.TypeConfiguration))
}

func TestGuildUsersPaginates(t *testing.T) {
	full := make([]*discordgo.Member, guildPageSize)
	for i := range full {
		full[i] = &discordgo.Member{User: &discordgo.User{ID: "u" + string(rune('a'+i%26))}, Roles: []string{"r"}}
	}
	full[guildPageSize-1].User.ID = "last"
	c := &fakeClient{pages: [][]*discordgo.Member{
		full,
		{{User: &discordgo.User{ID: "tail", Username: "tail"}, Nick: "T"}, {User: nil}},
	}}

	users, err := GuildUsers(context.Background(), c, "guild")
	require.NoError(t, err)
	assert.Len(t, users, guildPageSize+1)
	assert.Equal(t, []string{"", "last"}, c.afterCalls)
	assert.Equal(t, "T", users[len(users)-1].Nickname)

	_, err = GuildUsers(context.Background(), c, "")
	assert.True(t, apperrors.Is(err, apperrors.TypeConfiguration))
}

func TestNotificationType(t *testing.T) {
	assert.Equal(t, "ems", NotificationType(ds.KindJob, "ems"))
	assert.Equal(t, "job", NotificationType(ds.KindJob, "mechanic"))
	assert.Equal(t, "gang", NotificationType(ds.KindJob, "gang"))
	assert.Equal(t, "whitelist", NotificationType(ds.KindWhitelist, "police"))
}
