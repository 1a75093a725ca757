// Package config handles configuration loading, validation, and management
// for voiced.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Trigger configuration for the hotkey gesture.
	Trigger TriggerConfig `toml:"trigger" json:"trigger" yaml:"trigger"`

	// Audio configuration for the capture device.
	Audio AudioConfig `toml:"audio" json:"audio" yaml:"audio"`

	// VAD configuration for silence auto-pause.
	VAD VADConfig `toml:"vad" json:"vad" yaml:"vad"`

	// Session configuration for recording time budgets.
	Session SessionConfig `toml:"session" json:"session" yaml:"session"`

	// ASR configuration for the transcription endpoint.
	ASR ASRConfig `toml:"asr" json:"asr" yaml:"asr"`

	// Paste configuration for clipboard handoff.
	Paste PasteConfig `toml:"paste" json:"paste" yaml:"paste"`

	// PostProcess configuration for the text filter.
	PostProcess PostProcessConfig `toml:"post_process" json:"post_process" yaml:"post_process"`

	// Notifications configuration for desktop notifications.
	Notifications NotificationConfig `toml:"notifications" json:"notifications" yaml:"notifications"`

	// Storage configuration for session history.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// TriggerConfig holds hotkey gesture configuration.
type TriggerConfig struct {
	// Key is the double-tap trigger key: "Shift", "Control", "Alt", or
	// "Super". Both left and right variants arm the gesture.
	Key string `toml:"key" json:"key" yaml:"key"`

	// DoubleTapMs is the window between release and re-press in
	// milliseconds.
	DoubleTapMs int `toml:"double_tap_ms" json:"double_tap_ms" yaml:"double_tap_ms"`

	// PollMs is the key-state poll interval in milliseconds.
	PollMs int `toml:"poll_ms" json:"poll_ms" yaml:"poll_ms"`
}

// AudioConfig holds capture device configuration.
type AudioConfig struct {
	// SampleRate is the capture sample rate in Hz.
	SampleRate int `toml:"sample_rate" json:"sample_rate" yaml:"sample_rate"`

	// DeviceIndex selects a capture device; -1 uses the default device.
	DeviceIndex int `toml:"device_index" json:"device_index" yaml:"device_index"`

	// TempDir is where session WAV files are written.
	TempDir string `toml:"temp_dir" json:"temp_dir" yaml:"temp_dir"`
}

// VADConfig holds voice activity detection configuration.
type VADConfig struct {
	// Threshold is the level above which a sample counts as voice, in
	// [0, 1].
	Threshold float64 `toml:"threshold" json:"threshold" yaml:"threshold"`

	// SilenceTimeoutMs is how long the level must stay below Threshold
	// before the session auto-pauses.
	SilenceTimeoutMs int `toml:"silence_timeout_ms" json:"silence_timeout_ms" yaml:"silence_timeout_ms"`
}

// SessionConfig holds recording time budget configuration.
type SessionConfig struct {
	// MaxRecordMin is the active-recording budget per session in minutes.
	MaxRecordMin int `toml:"max_record_min" json:"max_record_min" yaml:"max_record_min"`

	// ExtendMin is the amount each '+' keypress adds, in minutes. Zero
	// means use MaxRecordMin.
	ExtendMin int `toml:"extend_min" json:"extend_min" yaml:"extend_min"`

	// TickMs is the controller tick interval in milliseconds.
	TickMs int `toml:"tick_ms" json:"tick_ms" yaml:"tick_ms"`
}

// ASRConfig holds transcription endpoint configuration.
type ASRConfig struct {
	// Endpoint is the whisper-server style inference URL.
	Endpoint string `toml:"endpoint" json:"endpoint" yaml:"endpoint"`

	// Model, Language, and Prompt are forwarded as form fields when set.
	Model    string `toml:"model" json:"model" yaml:"model"`
	Language string `toml:"language" json:"language" yaml:"language"`
	Prompt   string `toml:"prompt" json:"prompt" yaml:"prompt"`

	// TextPath is the gjson path of the transcript in the response body.
	TextPath string `toml:"text_path" json:"text_path" yaml:"text_path"`

	// TimeoutSec bounds a single upload attempt.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`

	// MaxRetries is the total number of upload attempts.
	MaxRetries int `toml:"max_retries" json:"max_retries" yaml:"max_retries"`

	// RetryBaseDelayMs is the initial backoff delay; it doubles per retry.
	RetryBaseDelayMs int `toml:"retry_base_delay_ms" json:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
}

// PasteConfig holds clipboard handoff configuration.
type PasteConfig struct {
	// SettleMs is the wait after focus restoration before the paste chord.
	SettleMs int `toml:"settle_ms" json:"settle_ms" yaml:"settle_ms"`

	// ServeTimeoutMs bounds the selection-request serve loop.
	ServeTimeoutMs int `toml:"serve_timeout_ms" json:"serve_timeout_ms" yaml:"serve_timeout_ms"`
}

// PostProcessConfig holds the optional text filter configuration.
type PostProcessConfig struct {
	// Command is a shell command run with the transcript on stdin. The
	// command's stdout replaces the text. Empty disables the filter.
	Command string `toml:"command" json:"command" yaml:"command"`

	// TimeoutSec bounds the filter run; on timeout the text passes
	// through unchanged.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// NotificationConfig holds desktop notification configuration.
type NotificationConfig struct {
	// Enabled turns org.freedesktop.Notifications delivery on or off.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`
}

// StorageConfig holds session history configuration.
type StorageConfig struct {
	// Enabled turns session history recording on or off.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file when Output includes "file".
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: Version,
		Trigger: TriggerConfig{
			Key:         "Shift",
			DoubleTapMs: 400,
			PollMs:      10,
		},
		Audio: AudioConfig{
			SampleRate:  16000,
			DeviceIndex: -1,
			TempDir:     os.TempDir(),
		},
		VAD: VADConfig{
			Threshold:        0.05,
			SilenceTimeoutMs: 2000,
		},
		Session: SessionConfig{
			MaxRecordMin: 5,
			ExtendMin:    0,
			TickMs:       100,
		},
		ASR: ASRConfig{
			Endpoint:         "http://127.0.0.1:8080/inference",
			TextPath:         "text",
			TimeoutSec:       60,
			MaxRetries:       3,
			RetryBaseDelayMs: 500,
		},
		Paste: PasteConfig{
			SettleMs:       100,
			ServeTimeoutMs: 2000,
		},
		PostProcess: PostProcessConfig{
			TimeoutSec: 10,
		},
		Notifications: NotificationConfig{
			Enabled: true,
		},
		Storage: StorageConfig{
			Enabled: true,
			Path:    defaultStorePath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		homeDir, _ := os.UserHomeDir()
		configHome = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configHome, "voiced", "config.toml")
}

func defaultStorePath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		homeDir, _ := os.UserHomeDir()
		dataHome = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataHome, "voiced", "history.db")
}

// validTriggerKeys are the key names the gesture detector accepts.
var validTriggerKeys = map[string]bool{
	"Shift":   true,
	"Control": true,
	"Alt":     true,
	"Super":   true,
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error

	if !validTriggerKeys[c.Trigger.Key] {
		errs = append(errs, fmt.Errorf("trigger.key: unknown key %q (want Shift, Control, Alt, or Super)", c.Trigger.Key))
	}
	if c.Trigger.DoubleTapMs <= 0 {
		errs = append(errs, errors.New("trigger.double_tap_ms: must be positive"))
	}
	if c.Trigger.PollMs <= 0 {
		errs = append(errs, errors.New("trigger.poll_ms: must be positive"))
	}
	if c.Audio.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate: %d is too low", c.Audio.SampleRate))
	}
	if c.VAD.Threshold < 0 || c.VAD.Threshold > 1 {
		errs = append(errs, fmt.Errorf("vad.threshold: %v outside [0, 1]", c.VAD.Threshold))
	}
	if c.VAD.SilenceTimeoutMs < 100 {
		errs = append(errs, fmt.Errorf("vad.silence_timeout_ms: %d is too short", c.VAD.SilenceTimeoutMs))
	}
	if c.Session.MaxRecordMin <= 0 {
		errs = append(errs, errors.New("session.max_record_min: must be positive"))
	}
	if c.Session.ExtendMin < 0 {
		errs = append(errs, errors.New("session.extend_min: must not be negative"))
	}
	if c.Session.TickMs <= 0 {
		errs = append(errs, errors.New("session.tick_ms: must be positive"))
	}
	if c.ASR.Endpoint == "" {
		errs = append(errs, errors.New("asr.endpoint: must not be empty"))
	}
	if c.ASR.TextPath == "" {
		errs = append(errs, errors.New("asr.text_path: must not be empty"))
	}
	if c.ASR.MaxRetries < 1 {
		errs = append(errs, errors.New("asr.max_retries: must be at least 1"))
	}
	if c.Paste.ServeTimeoutMs <= 0 {
		errs = append(errs, errors.New("paste.serve_timeout_ms: must be positive"))
	}
	if c.Storage.Enabled && c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path: must not be empty when storage is enabled"))
	}
	if _, err := parseLevelName(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	return errors.Join(errs...)
}

func parseLevelName(s string) (string, error) {
	switch strings.ToLower(s) {
	case "", "debug", "info", "warn", "warning", "error":
		return strings.ToLower(s), nil
	default:
		return "", fmt.Errorf("unknown level %q", s)
	}
}

// ApplyEnvOverrides applies VOICED_* environment variables over the loaded
// configuration. Only settings that are useful to flip per-invocation are
// exposed this way.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("VOICED_TRIGGER_KEY"); v != "" {
		c.Trigger.Key = v
	}
	if v := os.Getenv("VOICED_ASR_ENDPOINT"); v != "" {
		c.ASR.Endpoint = v
	}
	if v := os.Getenv("VOICED_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VOICED_VAD_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.VAD.Threshold = f
		}
	}
	if v := os.Getenv("VOICED_MAX_RECORD_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Session.MaxRecordMin = n
		}
	}
	if v := os.Getenv("VOICED_DEVICE_INDEX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Audio.DeviceIndex = n
		}
	}
}

// ExtendAmount returns the duration added per extension keypress.
func (c *Config) ExtendAmount() int {
	if c.Session.ExtendMin > 0 {
		return c.Session.ExtendMin
	}
	return c.Session.MaxRecordMin
}
