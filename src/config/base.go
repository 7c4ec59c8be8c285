package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/stake-plus/osintops/src/data"
)

// Base contains common configuration fields
type Base struct {
	Token          string
	GuildID        string
	OperatorRoleID string
	MySQLDSN       string
	RedisURL       string
	LogLevel       string
}

// LoadEnvFile loads a .env file into the process environment without
// overriding variables that are already set. A missing default file is not an
// error; a missing explicitly requested file is.
func LoadEnvFile(path string, explicit bool) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// LoadBase loads common configuration (discord token, guild ID, DSNs).
// Call data.LoadSettings first when a database is available.
func LoadBase() Base {
	return Base{
		Token:          GetSetting("discord_token", "DISCORD_TOKEN", ""),
		GuildID:        GetSetting("guild_id", "GUILD_ID", ""),
		OperatorRoleID: GetSetting("operator_role_id", "OPERATOR_ROLE_ID", ""),
		MySQLDSN:       os.Getenv("MYSQL_DSN"),
		RedisURL:       GetSetting("redis_url", "REDIS_URL", ""),
		LogLevel:       GetSetting("log_level", "LOG_LEVEL", "info"),
	}
}

// GetSetting retrieves a setting with env fallback
func GetSetting(name, envKey, defaultValue string) string {
	val := data.GetSetting(name)
	if val == "" {
		val = os.Getenv(envKey)
	}
	if val == "" {
		val = defaultValue
	}
	return val
}

func getIntSetting(name, envKey string, def int) int {
	raw := GetSetting(name, envKey, "")
	if val, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && val > 0 {
		return val
	}
	return def
}

func getFloatSetting(name, envKey string, def float64) float64 {
	raw := GetSetting(name, envKey, "")
	if val, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil && val >= 0 {
		return val
	}
	return def
}

func getBoolSetting(name, envKey string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(GetSetting(name, envKey, ""))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func getMillis(name, envKey string, def int) time.Duration {
	return time.Duration(getIntSetting(name, envKey, def)) * time.Millisecond
}

func getSeconds(name, envKey string, def int) time.Duration {
	return time.Duration(getIntSetting(name, envKey, def)) * time.Second
}

func parseCSV(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == ' '
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			out = append(out, strings.ToLower(trimmed))
		}
	}
	return out
}
