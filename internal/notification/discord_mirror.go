package notification

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/katatrina/schoolhub-BE/internal/util"
)

const discordMessageLimit = 1900

// DiscordMirror posts high-priority notifications to a staff Discord channel.
type DiscordMirror struct {
	discord   *discordgo.Session
	channelID string
}

func NewDiscordMirror(botToken, channelID string) (*DiscordMirror, error) {
	// Initialize Discord
	discord, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	return &DiscordMirror{
		discord:   discord,
		channelID: channelID,
	}, nil
}

func (m *DiscordMirror) Mirror(ctx context.Context, n Notification) error {
	_, err := m.discord.ChannelMessageSend(m.channelID, formatDiscordMessage(n), discordgo.WithContext(ctx))
	return err
}

func formatDiscordMessage(n Notification) string {
	message := fmt.Sprintf("**[%s] %s**\nAudience: %s | Posted by: %s | %s\n\n%s",
		n.Type,
		n.Title,
		n.TargetAudience,
		n.PostedByRole,
		// Format time in HH:MM:SS dd/mm/yyyy
		n.CreatedAt.Format("15:04:05 02/01/2006"),
		n.Body,
	)
	return util.TruncateContent(message, discordMessageLimit)
}
