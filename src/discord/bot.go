// Package discord exposes investigations as guild slash commands and posts
// finished reports back to the channel that asked for them.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/consolidate"
	"github.com/stake-plus/osintops/src/investigations"
	"github.com/stake-plus/osintops/src/logging"
	"github.com/stake-plus/osintops/src/shared/osint"
)

const commandTimeout = 10 * time.Second

// Service is the part of the investigation service the bot drives.
type Service interface {
	Submit(ctx context.Context, req investigations.Request) (investigations.Ack, error)
	Status(ctx context.Context, id string) (investigations.StatusView, error)
	Cancel(ctx context.Context, id string) error
	Report(ctx context.Context, id string) (osint.Report, error)
	Agents() []agentcore.Descriptor
}

type Config struct {
	Token          string
	GuildID        string
	OperatorRoleID string
}

type origin struct {
	channelID string
	userID    string
}

// Bot handles slash commands for one guild.
type Bot struct {
	session *discordgo.Session
	svc     Service
	cfg     Config
	logger  *zap.Logger
	send    func(channelID, content string) error

	mu      sync.Mutex
	origins map[string]origin
}

func newBot(cfg Config, svc Service, logger *zap.Logger) *Bot {
	return &Bot{
		svc:     svc,
		cfg:     cfg,
		logger:  logging.OrNop(logger).Named("discord"),
		origins: map[string]origin{},
	}
}

// New creates a bot session. Call Start to connect.
func New(cfg Config, svc Service, logger *zap.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	b := newBot(cfg, svc, logger)
	b.session = dg
	b.send = func(channelID, content string) error {
		_, err := dg.ChannelMessageSend(channelID, content)
		return err
	}

	dg.AddHandler(b.handleReady)
	dg.AddHandler(b.handleInteraction)
	dg.Identify.Intents = discordgo.IntentsGuilds
	return b, nil
}

func (b *Bot) Start() error {
	return b.session.Open()
}

func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) handleReady(s *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord bot logged in", zap.String("user", event.User.Username))
	if err := RegisterSlashCommands(s, b.cfg.GuildID, b.logger); err != nil {
		b.logger.Error("slash command registration failed", zap.Error(err))
	}
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	userID := interactionUserID(i)

	if !HasRole(i.Member, b.cfg.OperatorRoleID) {
		b.respond(s, i.Interaction, "You don't have permission to use this command.", true)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	reply := b.dispatch(ctx, data.Name, data.Options, i.ChannelID, userID)

	chunks := BuildLongMessages(reply, "")
	b.respond(s, i.Interaction, chunks[0], false)
	for _, chunk := range chunks[1:] {
		if err := b.send(i.ChannelID, chunk); err != nil {
			b.logger.Warn("send follow-up failed", zap.String("channel", i.ChannelID), zap.Error(err))
			return
		}
	}
}

func (b *Bot) respond(s *discordgo.Session, interaction *discordgo.Interaction, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: WrapURLsNoEmbed(content)}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.logger.Warn("interaction response failed", zap.Error(err))
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// dispatch runs one command and returns the reply text.
func (b *Bot) dispatch(ctx context.Context, name string, opts []*discordgo.ApplicationCommandInteractionDataOption, channelID, userID string) string {
	options := optionMap(opts)
	switch name {
	case CommandInvestigate:
		req, err := buildRequest(options, userID)
		if err != nil {
			return errorMessage(err)
		}
		ack, err := b.svc.Submit(ctx, req)
		if err != nil {
			return errorMessage(err)
		}
		b.mu.Lock()
		b.origins[ack.InvestigationID] = origin{channelID: channelID, userID: userID}
		b.mu.Unlock()
		return formatAck(req.Target, ack)

	case CommandStatus:
		view, err := b.svc.Status(ctx, stringOption(options, "id"))
		if err != nil {
			return errorMessage(err)
		}
		return formatStatus(view)

	case CommandCancel:
		id := stringOption(options, "id")
		if err := b.svc.Cancel(ctx, id); err != nil {
			return errorMessage(err)
		}
		return fmt.Sprintf("Cancelling investigation `%s`.", id)

	case CommandReport:
		report, err := b.svc.Report(ctx, stringOption(options, "id"))
		if err != nil {
			return errorMessage(err)
		}
		return consolidate.RenderMarkdown(report, 0)

	case CommandAgents:
		return formatAgents(b.svc.Agents())
	}
	return fmt.Sprintf("Unknown command `%s`.", name)
}

// Notify posts a finished investigation to the channel it was started from.
// Investigations started elsewhere are ignored.
func (b *Bot) Notify(_ context.Context, note investigations.Notification) {
	b.mu.Lock()
	from, ok := b.origins[note.Investigation.ID]
	delete(b.origins, note.Investigation.ID)
	b.mu.Unlock()
	if !ok || b.send == nil {
		return
	}

	var body string
	switch {
	case note.Report != nil:
		body = consolidate.RenderMarkdown(*note.Report, 0)
	case note.Err != nil:
		body = fmt.Sprintf("Investigation `%s` finished as %s but no report could be built: %v",
			note.Investigation.ID, note.Investigation.Status, note.Err)
	default:
		body = fmt.Sprintf("Investigation `%s` finished as %s.", note.Investigation.ID, note.Investigation.Status)
	}

	for _, chunk := range BuildLongMessages(body, from.userID) {
		if err := b.send(from.channelID, chunk); err != nil {
			b.logger.Warn("report delivery failed",
				zap.String("investigation", note.Investigation.ID),
				zap.String("channel", from.channelID),
				zap.Error(err))
			return
		}
	}
}

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, opt := range opts {
		out[opt.Name] = opt
	}
	return out
}

func stringOption(options map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	opt, ok := options[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionString {
		return ""
	}
	return strings.TrimSpace(opt.StringValue())
}

func buildRequest(options map[string]*discordgo.ApplicationCommandInteractionDataOption, userID string) (investigations.Request, error) {
	targetType, err := osint.ParseTargetType(stringOption(options, "type"))
	if err != nil {
		return investigations.Request{}, err
	}
	req := investigations.Request{
		Target:      osint.Target{Type: targetType, Value: stringOption(options, "value")},
		RequestedBy: "discord:" + userID,
	}
	if raw := stringOption(options, "scope"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				req.Scope = append(req.Scope, part)
			}
		}
	}
	if opt, ok := options["deadline"]; ok && opt.Type == discordgo.ApplicationCommandOptionInteger {
		minutes := opt.IntValue()
		if minutes < 0 {
			return investigations.Request{}, fmt.Errorf("%w: deadline must not be negative", investigations.ErrInvalidRequest)
		}
		req.Deadline = time.Duration(minutes) * time.Minute
	}
	return req, nil
}

func formatAck(target osint.Target, ack investigations.Ack) string {
	return fmt.Sprintf("Investigation `%s` started for `%s` with %d agent(s): %s. Deadline <t:%d:R>.",
		ack.InvestigationID, target, len(ack.Adapters), strings.Join(ack.Adapters, ", "), ack.Deadline.Unix())
}

func formatStatus(view investigations.StatusView) string {
	inv := view.Investigation
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** `%s`: %s", inv.Target, inv.ID, inv.Status)
	if inv.DeadlineExceeded {
		b.WriteString(" (deadline exceeded)")
	}
	b.WriteByte('\n')
	for _, task := range view.Tasks {
		fmt.Fprintf(&b, "- `%s` %s (%d/%d)", task.Adapter, task.State, task.Attempts, task.MaxAttempts)
		if task.Error != "" {
			fmt.Fprintf(&b, ": %s", task.Error)
		}
		b.WriteByte('\n')
	}
	if view.Report != nil {
		fmt.Fprintf(&b, "Report ready: %d finding(s). Use `/report id:%s`.\n", view.Report.Summary.TotalFindings, inv.ID)
	}
	return b.String()
}

func formatAgents(agents []agentcore.Descriptor) string {
	if len(agents) == 0 {
		return "No agents registered."
	}
	var b strings.Builder
	for _, d := range agents {
		state := "ready"
		if !d.Available {
			state = "unavailable"
			if d.Reason != "" {
				state += ": " + d.Reason
			}
		}
		fmt.Fprintf(&b, "- `%s` %s (%s)\n", d.Name, d.Category, state)
	}
	return b.String()
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, osint.ErrUnsupportedTarget):
		return "No agent can investigate that target type in the requested scope."
	case errors.Is(err, osint.ErrInvalidTarget), errors.Is(err, investigations.ErrInvalidRequest):
		return "Invalid request: " + err.Error()
	case errors.Is(err, osint.ErrNotFound):
		return "Investigation not found."
	case errors.Is(err, osint.ErrInvestigationNotTerminal):
		return "The investigation is still running; try again when it finishes."
	case errors.Is(err, investigations.ErrAlreadyTerminal):
		return "The investigation has already finished."
	case errors.Is(err, osint.ErrDuplicateInvestigation):
		return "An investigation with that ID already exists."
	}
	return "Something went wrong: " + err.Error()
}
