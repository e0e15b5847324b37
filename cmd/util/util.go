package util

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arbordb/arbor/lib/engine"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupEngineFlags adds the engine configuration flags to a command
func SetupEngineFlags(cmd *cobra.Command) {
	defaults := engine.DefaultConfig()

	key := "backend"
	cmd.PersistentFlags().String(key, defaults.Backend, WrapString("storage backend to use (linden, cedar)"))

	key = "path"
	cmd.PersistentFlags().String(key, "", WrapString("database file for the cedar backend, defaults to :memory:"))

	key = "max-memory"
	cmd.PersistentFlags().Int64(key, defaults.MaxMemorySize/(1024*1024), WrapString("memory budget in MB, drives cache sizing and pressure detection"))

	key = "compression"
	cmd.PersistentFlags().Bool(key, defaults.CompressionEnabled, WrapString("compress payloads above the size threshold"))

	key = "encryption-key"
	cmd.PersistentFlags().String(key, "", WrapString("encryption key material, enables encryption when set (prefer the ARBOR_ENCRYPTION_KEY environment variable)"))

	key = "cache"
	cmd.PersistentFlags().Bool(key, defaults.CacheEnabled, WrapString("keep a read cache of hot records"))

	key = "wal"
	cmd.PersistentFlags().Bool(key, defaults.TransactionSupport, WrapString("log write intents to the in-memory write-ahead log"))

	key = "log-level"
	cmd.PersistentFlags().String(key, defaults.LogLevel, WrapString("log level (debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("arbor")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetEngineConfig reads the engine configuration from viper
func GetEngineConfig() engine.Config {
	cfg := engine.DefaultConfig()

	cfg.Backend = viper.GetString("backend")
	cfg.Path = viper.GetString("path")
	if mb := viper.GetInt64("max-memory"); mb > 0 {
		cfg.MaxMemorySize = mb * 1024 * 1024
	}
	cfg.CompressionEnabled = viper.GetBool("compression")
	if key := viper.GetString("encryption-key"); key != "" {
		cfg.EncryptionEnabled = true
		cfg.EncryptionKey = key
	}
	cfg.CacheEnabled = viper.GetBool("cache")
	cfg.TransactionSupport = viper.GetBool("wal")
	cfg.LogLevel = viper.GetString("log-level")

	return cfg
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
