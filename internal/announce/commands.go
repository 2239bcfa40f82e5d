package announce

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/sneakerbid/internal/auction"
	"github.com/jensholdgaard/sneakerbid/internal/notification"
)

// maxListed caps how many auctions /auctions prints.
const maxListed = 10

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "auctions",
			Description: "List auctions that are still open",
		},
		{
			Name:        "auction",
			Description: "Show one auction",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "id",
					Description: "Auction ID",
					Required:    true,
				},
			},
		},
	}
}

// InteractionCreate handles incoming slash command interactions.
func (a *Announcer) InteractionCreate(i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	name := i.ApplicationCommandData().Name
	ctx, span := a.tracer.Start(context.Background(), "InteractionCreate",
		trace.WithAttributes(attribute.String("command", name)),
	)
	defer span.End()

	switch name {
	case "auctions":
		a.respond(i, a.handleList(ctx))
	case "auction":
		opts := i.ApplicationCommandData().Options
		if len(opts) == 0 {
			a.respond(i, "Missing auction ID.")
			return
		}
		a.respond(i, a.handleShow(ctx, opts[0].StringValue()))
	default:
		a.respond(i, "Unknown command")
	}
}

func (a *Announcer) handleList(ctx context.Context) string {
	open, err := a.auctions.ListOpen(ctx)
	if err != nil {
		return "Could not load auctions right now."
	}
	if len(open) == 0 {
		return "No open auctions."
	}

	var b strings.Builder
	b.WriteString("**Open auctions**\n")
	for i, auc := range open {
		if i == maxListed {
			fmt.Fprintf(&b, "…and %d more\n", len(open)-maxListed)
			break
		}
		fmt.Fprintf(&b, "%d. **%s** at %s, ends <t:%d:R> (`%s`)\n",
			i+1, auc.Title, notification.Price(auc.CurrentPrice), auc.EndsAt.Unix(), auc.ID)
	}
	return b.String()
}

func (a *Announcer) handleShow(ctx context.Context, id string) string {
	auc, err := a.auctions.Get(ctx, id)
	if errors.Is(err, auction.ErrNotFound) {
		return fmt.Sprintf("Auction `%s` not found.", id)
	}
	if err != nil {
		return "Could not load the auction right now."
	}

	status := fmt.Sprintf("ends <t:%d:R>", auc.EndsAt.Unix())
	if auc.IsClosed {
		status = "closed"
	}
	msg := fmt.Sprintf("**%s** (%s)\nCurrent price: **%s**, %s",
		auc.Title, auc.Category, notification.Price(auc.CurrentPrice), status)
	if auc.BuyNowPrice != nil && !auc.IsClosed {
		msg += fmt.Sprintf("\nBuy now: %s", notification.Price(*auc.BuyNowPrice))
	}
	return msg
}

func (a *Announcer) respond(i *discordgo.InteractionCreate, msg string) {
	_ = a.sender.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
		},
	})
}
