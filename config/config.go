package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	APIKey  string `toml:"APIKey"`
	APIBase string `toml:"APIBase"`
	Model   string `toml:"Model"`
	LogFile string `toml:"LogFile"`
	DBPATH  string `toml:"DBPATH"`
	// TTS
	TTS_ENABLED  bool    `toml:"TTS_ENABLED"`
	TTS_PROVIDER string  `toml:"TTS_PROVIDER"` // KOKORO, GOOGLE
	TTS_URL      string  `toml:"TTS_URL"`
	TTS_SPEED    float64 `toml:"TTS_SPEED"`
	TTS_LANGUAGE string  `toml:"TTS_LANGUAGE"`
	// STT
	STT_ENABLED     bool   `toml:"STT_ENABLED"`
	STT_URL         string `toml:"STT_URL"`
	STT_SR          int    `toml:"STT_SR"`
	STT_LANG        string `toml:"STT_LANG"`
	STT_INTERVAL_MS int    `toml:"STT_INTERVAL_MS"`
	// mood annotation prefixed to the prompt when enabled
	MoodEnabled bool   `toml:"MoodEnabled"`
	Mood        string `toml:"Mood"`
}

func LoadConfig(fn string) (*Config, error) {
	if fn == "" {
		fn = "config.toml"
	}
	config := &Config{}
	_, err := toml.DecodeFile(fn, &config)
	if err != nil {
		return nil, err
	}
	config.fillDefaults()
	return config, nil
}

// if any value is empty fill with default
func (c *Config) fillDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.APIBase == "" {
		c.APIBase = "https://generativelanguage.googleapis.com/v1beta"
	}
	if c.Model == "" {
		c.Model = "gemini-2.5-flash"
	}
	if c.LogFile == "" {
		c.LogFile = "vandvik.log"
	}
	if c.DBPATH == "" {
		c.DBPATH = "vandvik.db"
	}
	if c.TTS_SPEED <= 0 {
		c.TTS_SPEED = 1.0
	}
	if c.TTS_LANGUAGE == "" {
		c.TTS_LANGUAGE = "en"
	}
	if c.STT_SR == 0 {
		c.STT_SR = 16000
	}
	if c.STT_LANG == "" {
		c.STT_LANG = "en-US"
	}
	if c.STT_INTERVAL_MS == 0 {
		c.STT_INTERVAL_MS = 1500
	}
	if c.Mood == "" {
		c.Mood = "neutral"
	}
}
