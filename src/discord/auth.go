package discord

import "github.com/bwmarrin/discordgo"

// HasRole reports whether member holds roleID. Empty roleID always returns true.
func HasRole(member *discordgo.Member, roleID string) bool {
	if roleID == "" {
		return true
	}
	if member == nil {
		return false
	}
	for _, role := range member.Roles {
		if role == roleID {
			return true
		}
	}
	return false
}
