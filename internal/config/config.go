// Package config manages lxst-phone's persistent user preferences,
// stored as JSON at os.UserConfigDir()/lxst-phone/config.json (spec
// §6: "config.json — user preferences ... Schema is stable; unknown
// keys preserved on rewrite").
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/kc1awv/lxst-phone/internal/signaling"
)

// Config holds all persistent user preferences (spec §6: "audio device
// indices, codec type and bitrate, announce settings, rate-limit
// parameters, display name").
type Config struct {
	DisplayName string `json:"display_name"`

	InputDeviceID  int `json:"input_device_id"`
	OutputDeviceID int `json:"output_device_id"`

	Codec signaling.CodecPreference `json:"codec"`

	AnnounceEnabled    bool `json:"announce_enabled"`
	AnnouncePeriodMins int  `json:"announce_period_mins"`

	RateLimitMaxPerMinute int `json:"rate_limit_max_per_minute"`
	RateLimitMaxPerHour   int `json:"rate_limit_max_per_hour"`

	// RecordMissedCalls enables a history entry for an invite auto-rejected
	// because the local side was already busy (spec §8 scenario 5: "only
	// if configuration enables it, default: not recorded").
	RecordMissedCalls bool `json:"record_missed_calls"`

	// unknown preserves any JSON object keys this version of Config
	// doesn't recognize, so Save doesn't drop fields written by a newer
	// or older build (spec §6: "unknown keys preserved on rewrite").
	unknown map[string]json.RawMessage
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		InputDeviceID:         -1,
		OutputDeviceID:        -1,
		Codec:                 signaling.CodecPreference{Type: signaling.CodecOpus, Bitrate: 24000},
		AnnounceEnabled:       true,
		AnnouncePeriodMins:    30,
		RateLimitMaxPerMinute: 5,
		RateLimitMaxPerHour:   20,
	}
}

// Path returns the absolute path to the config file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "lxst-phone", "config.json"), nil
}

// Load reads the config file and returns it. If the file is missing or
// unreadable, the default config is returned — never an error.
func Load() Config {
	path, err := Path()
	if err != nil {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	return parse(data)
}

func parse(data []byte) Config {
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default()
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err == nil {
		for _, known := range knownKeys {
			delete(raw, known)
		}
		cfg.unknown = raw
	}
	return cfg
}

var knownKeys = []string{
	"display_name", "input_device_id", "output_device_id", "codec",
	"announce_enabled", "announce_period_mins",
	"rate_limit_max_per_minute", "rate_limit_max_per_hour",
	"record_missed_calls",
}

// Save writes cfg to disk, creating the directory if needed, preserving
// any unknown keys collected at Load.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	merged, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(merged, &out); err != nil {
		return err
	}
	for k, v := range cfg.unknown {
		if _, known := out[k]; !known {
			out[k] = v
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
