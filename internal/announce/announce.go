// Package announce mirrors finished auctions to a Discord channel and
// answers a couple of read-only slash commands about open auctions.
package announce

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/sneakerbid/internal/broadcast"
	"github.com/jensholdgaard/sneakerbid/internal/config"
	"github.com/jensholdgaard/sneakerbid/internal/event"
	"github.com/jensholdgaard/sneakerbid/internal/notification"
	"github.com/jensholdgaard/sneakerbid/internal/store"
)

// Auctions is the read side of the auction manager.
type Auctions interface {
	Get(ctx context.Context, id string) (*store.Auction, error)
	ListOpen(ctx context.Context) ([]store.Auction, error)
}

// sender is the subset of *discordgo.Session the announcer calls.
type sender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// Announcer wraps the Discord session.
type Announcer struct {
	session  *discordgo.Session
	sender   sender
	cfg      config.DiscordConfig
	hub      *broadcast.Hub
	auctions Auctions
	logger   *slog.Logger
	tracer   trace.Tracer
	cmds     []*discordgo.ApplicationCommand
}

// New creates a new Announcer. Nothing connects until Start.
func New(cfg config.DiscordConfig, hub *broadcast.Hub, auctions Auctions, logger *slog.Logger, tp trace.TracerProvider) (*Announcer, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	a := newAnnouncer(session, cfg, hub, auctions, logger, tp)
	a.session = session
	return a, nil
}

func newAnnouncer(s sender, cfg config.DiscordConfig, hub *broadcast.Hub, auctions Auctions, logger *slog.Logger, tp trace.TracerProvider) *Announcer {
	return &Announcer{
		sender:   s,
		cfg:      cfg,
		hub:      hub,
		auctions: auctions,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/sneakerbid/internal/announce"),
	}
}

// Start opens the Discord connection and registers slash commands.
func (a *Announcer) Start(ctx context.Context) error {
	a.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		a.logger.InfoContext(ctx, "announcer is ready", slog.String("user", s.State.User.Username))
	})
	a.session.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		a.InteractionCreate(i)
	})

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}

	registered, err := a.session.ApplicationCommandBulkOverwrite(a.session.State.User.ID, a.cfg.GuildID, SlashCommands())
	if err != nil {
		return fmt.Errorf("registering slash commands: %w", err)
	}
	a.cmds = registered

	a.logger.InfoContext(ctx, "slash commands registered", slog.Int("count", len(registered)))
	return nil
}

// Run announces auction-ended events from the global room until ctx is
// done.
func (a *Announcer) Run(ctx context.Context) {
	sub := a.hub.Subscribe(broadcast.GlobalRoom)
	defer a.hub.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if e.Type != event.AuctionEnded {
				continue
			}
			if err := a.announce(ctx, e); err != nil {
				a.logger.ErrorContext(ctx, "failed to announce auction end",
					slog.String("auction_id", e.AuctionID),
					slog.Any("error", err),
				)
			}
		}
	}
}

// Stop removes the slash commands and closes the Discord connection.
func (a *Announcer) Stop() error {
	for _, cmd := range a.cmds {
		if err := a.session.ApplicationCommandDelete(a.session.State.User.ID, a.cfg.GuildID, cmd.ID); err != nil {
			a.logger.Error("failed to delete command", slog.String("command", cmd.Name), slog.Any("error", err))
		}
	}
	return a.session.Close()
}

func (a *Announcer) announce(ctx context.Context, e event.Event) error {
	ctx, span := a.tracer.Start(ctx, "Announcer.announce",
		trace.WithAttributes(attribute.String("auction.id", e.AuctionID)),
	)
	defer span.End()

	var data event.AuctionEndedData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return fmt.Errorf("decoding auction-ended payload: %w", err)
	}

	title := e.AuctionID
	if auc, err := a.auctions.Get(ctx, e.AuctionID); err == nil {
		title = auc.Title
	}

	if _, err := a.sender.ChannelMessageSendEmbed(a.cfg.ChannelID, endedEmbed(title, data)); err != nil {
		return fmt.Errorf("sending discord message: %w", err)
	}
	return nil
}

func endedEmbed(title string, d event.AuctionEndedData) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Auction ended: %s", title),
		Color: 0x2ecc71,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Final price", Value: notification.Price(d.FinalPrice), Inline: true},
		},
	}
	switch {
	case d.WinnerID == nil:
		embed.Description = "Closed with no bids."
		embed.Color = 0x95a5a6
	case d.Reason == event.ReasonBuyNow:
		embed.Description = fmt.Sprintf("Sold via buy now to `%s`.", *d.WinnerID)
	default:
		embed.Description = fmt.Sprintf("Won by `%s`.", *d.WinnerID)
	}
	return embed
}
