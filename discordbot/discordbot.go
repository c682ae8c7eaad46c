// Package discordbot posts workflow notifications to Discord and reads the
// guild roster.
package discordbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"gtarp/main_backend/apperrors"
)

// Client is the slice of the Discord REST API the portal uses.
type Client interface {
	SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) (string, error)
	LookupUser(ctx context.Context, userID string) (*User, error)
	GuildMembers(ctx context.Context, guildID, after string, limit int) ([]*discordgo.Member, error)
}

// SessionClient implements Client on a REST-only discordgo session.
type SessionClient struct {
	s *discordgo.Session
}

// NewSessionClient creates a bot session. The gateway is never opened; the
// portal only needs REST calls. timeout bounds every request.
func NewSessionClient(token string, timeout time.Duration) (*SessionClient, error) {
	if token == "" {
		return nil, apperrors.NewConfigurationError("Discord bot token is not configured")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Client = &http.Client{Timeout: timeout}
	s.ShouldRetryOnRateLimit = false
	return &SessionClient{s: s}, nil
}

func (c *SessionClient) SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m, err := c.s.ChannelMessageSendComplex(channelID, msg)
	if err != nil {
		return "", remoteError("failed to post Discord message", err)
	}
	return m.ID, nil
}

// User is a Discord user including global_name, which discordgo v0.27 does
// not decode.
type User struct {
	discordgo.User
	GlobalName string `json:"global_name"`
}

// DisplayName is the name Discord shows for the user.
func (u *User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func (c *SessionClient) LookupUser(ctx context.Context, userID string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := c.s.RequestWithBucketID(http.MethodGet, discordgo.EndpointUser(userID), nil, discordgo.EndpointUsers)
	if err != nil {
		return nil, remoteError("failed to look up Discord user", err)
	}
	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("failed to decode Discord user: %w", err)
	}
	return &u, nil
}

func (c *SessionClient) GuildMembers(ctx context.Context, guildID, after string, limit int) ([]*discordgo.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	members, err := c.s.GuildMembers(guildID, after, limit)
	if err != nil {
		return nil, remoteError("failed to list guild members", err)
	}
	return members, nil
}

// remoteError keeps the Discord response body so it reaches the log.
func remoteError(message string, err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		return apperrors.NewRemoteServiceError(message, string(rest.ResponseBody), err)
	}
	return apperrors.NewRemoteServiceError(message, err.Error(), err)
}

// GuildUser represents a concise view of a Discord user in a guild with their role IDs.
type GuildUser struct {
	ID            string   `json:"id"`
	Username      string   `json:"username"`
	Discriminator string   `json:"discriminator"`
	Nickname      string   `json:"nickname,omitempty"`
	Roles         []string `json:"roles"`
}

// GuildUsersResponse is a wrapper object that can be extended later.
type GuildUsersResponse struct {
	GuildID string      `json:"guild_id"`
	Users   []GuildUser `json:"users"`
}

const guildPageSize = 1000

// GuildUsers fetches every guild member and returns simplified user objects with roles.
func GuildUsers(ctx context.Context, c Client, guildID string) ([]GuildUser, error) {
	if guildID == "" {
		return nil, apperrors.NewConfigurationError("Discord guild id is not configured")
	}
	// Discord limits list members; use pagination.
	var all []GuildUser
	var after string

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		members, err := c.GuildMembers(ctx, guildID, after, guildPageSize)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if m.User == nil {
				continue
			}
			u := m.User
			all = append(all, GuildUser{
				ID:            u.ID,
				Username:      u.Username,
				Discriminator: u.Discriminator,
				Nickname:      m.Nick,
				Roles:         append([]string{}, m.Roles...),
			})
			after = u.ID
		}
		if len(members) < guildPageSize {
			break
		}
	}
	return all, nil
}
