package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/stackedroll-bot/internal/export"
	"github.com/jensholdgaard/stackedroll-bot/internal/stackedroll"
)

// Handlers process Discord interactions.
type Handlers struct {
	mgr    *stackedroll.Manager
	logger *slog.Logger
	tracer trace.Tracer
}

// NewHandlers creates new command handlers.
func NewHandlers(mgr *stackedroll.Manager, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	return &Handlers{
		mgr:    mgr,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/stackedroll-bot/internal/bot/commands"),
	}
}

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "sr-import",
			Description: "Import stacked roll standings from pasted roster data",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "data",
					Description: "Roster lines: name, points, alias... (use \\n between lines)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "show-overview",
					Description: "Post the standings overview after importing",
					Required:    false,
				},
			},
		},
		{
			Name:        "sr",
			Description: "Look up a player's stacked roll points and roll range",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "player",
					Description: "Player name or alias",
					Required:    true,
				},
			},
		},
		{
			Name:        "sr-overview",
			Description: "Post the current stacked roll standings",
		},
		{
			Name:        "sr-range",
			Description: "Check whether a roll range is a legitimate stacked roll",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "min",
					Description: "Lower bound of the claimed roll range",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "max",
					Description: "Upper bound of the claimed roll range",
					Required:    true,
				},
			},
		},
		{
			Name:        "sr-set",
			Description: "Set a player's stacked roll points (admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "player",
					Description: "Player name or alias",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "points",
					Description: "New point total",
					Required:    true,
				},
			},
		},
		{
			Name:        "sr-adjust",
			Description: "Add or subtract stacked roll points (admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "player",
					Description: "Player name or alias",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "delta",
					Description: "Points to add (negative to subtract)",
					Required:    true,
				},
			},
		},
		{
			Name:        "sr-clear",
			Description: "Clear all imported stacked roll data (admin only)",
		},
		{
			Name:        "sr-export",
			Description: "Export the standings as a spreadsheet",
		},
	}
}

// InteractionCreate handles incoming slash command interactions.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, span := h.tracer.Start(context.Background(), "InteractionCreate",
		trace.WithAttributes(attribute.String("command", i.ApplicationCommandData().Name)),
	)
	defer span.End()

	switch i.ApplicationCommandData().Name {
	case "sr-import":
		h.handleImport(ctx, s, i)
	case "sr":
		h.handleLookup(ctx, s, i)
	case "sr-overview":
		h.handleOverview(ctx, s, i)
	case "sr-range":
		h.handleRange(ctx, s, i)
	case "sr-set":
		h.handleSet(ctx, s, i)
	case "sr-adjust":
		h.handleAdjust(ctx, s, i)
	case "sr-clear":
		h.handleClear(ctx, s, i)
	case "sr-export":
		h.handleExport(ctx, s, i)
	default:
		respond(s, i, "Unknown command")
	}
}

func (h *Handlers) handleImport(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options
	// Discord strips real newlines from option values, so accept literal \n.
	raw := strings.ReplaceAll(opts[0].StringValue(), `\n`, "\n")

	showOverview := false
	for _, opt := range opts[1:] {
		if opt.Name == "show-overview" {
			showOverview = opt.BoolValue()
		}
	}

	if err := h.mgr.Import(ctx, raw, showOverview); err != nil {
		if errors.Is(err, stackedroll.ErrDisabled) {
			respond(s, i, "Stacked roll tracking is disabled.")
			return
		}
		respond(s, i, fmt.Sprintf("Import failed: %s", err))
		return
	}
	respond(s, i, fmt.Sprintf("Imported stacked roll data for **%d** players.", len(h.mgr.Records())))
}

func (h *Handlers) handleLookup(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Options[0].StringValue()

	points := h.mgr.GetPoints(ctx, name, -1)
	if points < 0 {
		respond(s, i, fmt.Sprintf("**%s** is not on the roster.", name))
		return
	}

	calc := h.mgr.Calculator()
	msg := fmt.Sprintf("**%s** — %d points, rolls **%d-%d**",
		name, points, calc.MinStackedRoll(points), calc.MaxStackedRoll(points))
	if reserve := calc.Reserve(points); reserve > 0 {
		msg += fmt.Sprintf(" (%d in reserve)", reserve)
	}
	respond(s, i, msg)
}

func (h *Handlers) handleOverview(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := h.mgr.Draw(ctx); err != nil {
		if errors.Is(err, stackedroll.ErrDisabled) {
			respond(s, i, "Stacked roll tracking is disabled.")
			return
		}
		respond(s, i, fmt.Sprintf("Failed to show standings: %s", err))
		return
	}
	respond(s, i, "Standings posted.")
}

func (h *Handlers) handleRange(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options
	low := int(opts[0].IntValue())
	high := int(opts[1].IntValue())

	if h.mgr.Calculator().IsStackedRoll(low, high) {
		respond(s, i, fmt.Sprintf("**%d-%d** is a valid stacked roll range.", low, high))
		return
	}
	respond(s, i, fmt.Sprintf("**%d-%d** is not a stacked roll range.", low, high))
}

func (h *Handlers) handleSet(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options
	name := opts[0].StringValue()
	points := int(opts[1].IntValue())

	if h.mgr.GetPoints(ctx, name, -1) < 0 {
		respond(s, i, fmt.Sprintf("**%s** is not on the roster.", name))
		return
	}
	if err := h.mgr.SetPoints(ctx, name, points); err != nil {
		respond(s, i, fmt.Sprintf("Failed to set points: %s", err))
		return
	}
	respond(s, i, fmt.Sprintf("Set **%s** to **%d** points.", name, h.mgr.GetPoints(ctx, name, 0)))
}

func (h *Handlers) handleAdjust(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options
	name := opts[0].StringValue()
	delta := int(opts[1].IntValue())

	if h.mgr.GetPoints(ctx, name, -1) < 0 {
		respond(s, i, fmt.Sprintf("**%s** is not on the roster.", name))
		return
	}
	if err := h.mgr.ModifyPoints(ctx, name, delta); err != nil {
		respond(s, i, fmt.Sprintf("Failed to adjust points: %s", err))
		return
	}
	respond(s, i, fmt.Sprintf("**%s** now has **%d** points (%+d).", name, h.mgr.GetPoints(ctx, name, 0), delta))
}

func (h *Handlers) handleClear(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := h.mgr.Clear(ctx); err != nil {
		respond(s, i, fmt.Sprintf("Failed to clear standings: %s", err))
		return
	}
	respond(s, i, "Stacked roll data cleared.")
}

func (h *Handlers) handleExport(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	records := h.mgr.Records()
	if len(records) == 0 {
		respond(s, i, "The roster is empty, nothing to export.")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteStandings(&buf, records, h.mgr.Calculator()); err != nil {
		h.logger.ErrorContext(ctx, "standings export failed", slog.Any("error", err))
		respond(s, i, fmt.Sprintf("Export failed: %s", err))
		return
	}

	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("Standings for %d players.", len(records)),
			Files: []*discordgo.File{
				{
					Name:        "standings.xlsx",
					ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
					Reader:      &buf,
				},
			},
		},
	})
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
		},
	})
}
