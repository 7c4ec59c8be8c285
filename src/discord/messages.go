package discord

import (
	"fmt"
	"strings"
)

const (
	MaxDiscordMessageLen = 2000
	SafeChunkLen         = 1900
)

// BuildLongMessages chunks a line-oriented message for Discord. The first
// chunk mentions userID when set; lines longer than a chunk are hard-split.
func BuildLongMessages(message string, userID string) []string {
	mention := ""
	if userID != "" {
		mention = fmt.Sprintf("<@%s> ", userID)
	}
	message = WrapURLsNoEmbed(strings.TrimRight(message, "\n"))
	if len(mention)+len(message) <= MaxDiscordMessageLen {
		return []string{mention + message}
	}

	var chunks []string
	var current strings.Builder
	current.WriteString(mention)
	flush := func() {
		if strings.TrimSpace(current.String()) != "" {
			chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
		}
		current.Reset()
	}
	for _, line := range strings.Split(message, "\n") {
		for len(line) > SafeChunkLen {
			flush()
			chunks = append(chunks, line[:SafeChunkLen])
			line = line[SafeChunkLen:]
		}
		if current.Len()+len(line)+1 > SafeChunkLen {
			flush()
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()

	for i := 0; i < len(chunks)-1; i++ {
		chunks[i] += "\n*(continued...)*"
	}
	return chunks
}
