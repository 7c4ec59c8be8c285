package discord

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/stake-plus/osintops/src/shared/osint"
)

const (
	CommandInvestigate = "investigate"
	CommandStatus      = "status"
	CommandCancel      = "cancel"
	CommandReport      = "report"
	CommandAgents      = "agents"
)

func targetTypeChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(osint.TargetTypes))
	for _, tt := range osint.TargetTypes {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: string(tt), Value: string(tt)})
	}
	return choices
}

func investigationIDOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "id",
		Description: "Investigation ID",
		Required:    true,
	}
}

var commandDefinitions = map[string]*discordgo.ApplicationCommand{
	CommandInvestigate: {
		Name:        CommandInvestigate,
		Description: "Start an OSINT investigation",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "type",
				Description: "Target type",
				Required:    true,
				Choices:     targetTypeChoices(),
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "value",
				Description: "Domain, username, phone number or email",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "scope",
				Description: "Comma-separated categories, e.g. subdomain-enum,search",
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "deadline",
				Description: "Deadline in minutes",
			},
		},
	},
	CommandStatus: {
		Name:        CommandStatus,
		Description: "Show the state of an investigation",
		Options:     []*discordgo.ApplicationCommandOption{investigationIDOption()},
	},
	CommandCancel: {
		Name:        CommandCancel,
		Description: "Cancel a running investigation",
		Options:     []*discordgo.ApplicationCommandOption{investigationIDOption()},
	},
	CommandReport: {
		Name:        CommandReport,
		Description: "Show the report of a finished investigation",
		Options:     []*discordgo.ApplicationCommandOption{investigationIDOption()},
	},
	CommandAgents: {
		Name:        CommandAgents,
		Description: "List the registered collection agents",
	},
}

var defaultCommandOrder = []string{
	CommandInvestigate,
	CommandStatus,
	CommandCancel,
	CommandReport,
	CommandAgents,
}

// RegisterSlashCommands registers the requested slash commands for a guild.
// When no command names are provided, all known commands are registered.
func RegisterSlashCommands(s *discordgo.Session, guildID string, logger *zap.Logger, names ...string) error {
	if guildID == "" {
		return fmt.Errorf("discord: guildID is required to register slash commands")
	}

	if len(names) == 0 {
		names = defaultCommandOrder
	}

	var failures []string
	for _, name := range names {
		definition, ok := commandDefinitions[name]
		if !ok {
			logger.Warn("unknown slash command", zap.String("command", name))
			continue
		}

		_, err := s.ApplicationCommandCreate(s.State.User.ID, guildID, definition)
		if err != nil {
			if isDuplicateCommandError(err) {
				logger.Debug("slash command already registered", zap.String("command", name))
				continue
			}
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			logger.Error("failed to register slash command", zap.String("command", name), zap.Error(err))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("discord: slash command registration errors: %s", strings.Join(failures, "; "))
	}

	return nil
}

func isDuplicateCommandError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			msg := strings.ToLower(restErr.Message.Message)
			if strings.Contains(msg, "already exists") {
				return true
			}
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "50035") && strings.Contains(msg, "already exists")
}
