package sys

import (
	"context"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

// --- Components V2 Builders ---

// NewTextContainer wraps text blocks in one container, with a divider between blocks.
func NewTextContainer(blocks ...string) discord.ContainerComponent {
	var parts []discord.ContainerSubComponent
	for i, b := range blocks {
		if b == "" {
			continue
		}
		if i > 0 && len(parts) > 0 {
			parts = append(parts, discord.NewSeparator(discord.SeparatorSpacingSizeSmall).WithDivider(true))
		}
		parts = append(parts, discord.NewTextDisplay(b))
	}
	return discord.NewContainer(parts...)
}

// NewThumbnailSection shows text with an image on the side. Without an image
// it degrades to a plain text display.
func NewThumbnailSection(content, imageURL string) discord.ContainerSubComponent {
	if imageURL == "" {
		return discord.NewTextDisplay(content)
	}
	return discord.NewSection(discord.NewTextDisplay(content)).WithAccessory(discord.NewThumbnail(imageURL))
}

// --- Interaction Replies ---

// Respond sends an immediate V2 reply. If the interaction was already
// acknowledged it edits the original response instead.
func Respond(event *events.ApplicationCommandInteractionCreate, content string, ephemeral bool) {
	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(NewTextContainer(content)).
		SetEphemeral(ephemeral).
		Build())
	if err != nil {
		_ = EditReply(event, NewTextContainer(content))
	}
}

// EditReply replaces the deferred response with the given components.
func EditReply(event *events.ApplicationCommandInteractionCreate, components ...discord.LayoutComponent) error {
	_, err := event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), discord.NewMessageUpdateBuilder().
		SetIsComponentsV2(true).
		AddComponents(components...).
		Build())
	if err != nil {
		LogError("Failed to edit interaction response: %v", err)
	}
	return err
}

// EditReplyText is EditReply with a single text container.
func EditReplyText(event *events.ApplicationCommandInteractionCreate, content string) error {
	return EditReply(event, NewTextContainer(content))
}

// SendChannelText posts a V2 text message to a channel outside any interaction.
func SendChannelText(ctx context.Context, client *bot.Client, channelID snowflake.ID, content string) error {
	_, err := client.Rest.CreateMessage(channelID, discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(NewTextContainer(content)).
		Build(), rest.WithCtx(ctx))
	return err
}
