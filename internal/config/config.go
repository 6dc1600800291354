package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

const envPrefix = "EMA_DUPLEX_"

type ServerConfig struct {
	URL                string `yaml:"url" jsonschema:"description=WebSocket endpoint of the voice service"`
	Token              string `yaml:"token" jsonschema:"description=Bearer token; prefer EMA_DUPLEX_TOKEN"`
	BotID              string `yaml:"bot_id"`
	UID                string `yaml:"uid"`
	HandshakeTimeoutMS int    `yaml:"handshake_timeout_ms"`
	WriteTimeoutMS     int    `yaml:"write_timeout_ms"`
}

type AudioConfig struct {
	Input           string  `yaml:"input" jsonschema:"enum=auto,enum=miniaudio,enum=portaudio,enum=file,enum=none"`
	File            string  `yaml:"file" jsonschema:"description=Raw PCM file used by the file input and as fallback"`
	SampleRate      int     `yaml:"sample_rate"`
	Channels        int     `yaml:"channels"`
	Format          string  `yaml:"format" jsonschema:"enum=linear16,enum=mulaw,enum=alaw"`
	FrameDurationMS int     `yaml:"frame_duration_ms"`
	EnergyThreshold float64 `yaml:"energy_threshold"`
}

type TurnConfig struct {
	SilenceMS              int  `yaml:"silence_ms"`
	InterruptDebounceMS    int  `yaml:"interrupt_debounce_ms"`
	CaptureQueue           int  `yaml:"capture_queue"`
	PlaybackQueue          int  `yaml:"playback_queue"`
	HeartbeatIntervalMS    int  `yaml:"heartbeat_interval_ms"`
	LegacyEndOfStreamIndex bool `yaml:"legacy_end_of_stream_index"`
}

type PlaybackConfig struct {
	Sink    string `yaml:"sink" jsonschema:"enum=ffplay,enum=miniaudio"`
	Command string `yaml:"command" jsonschema:"description=Player command reading mp3 from stdin"`
}

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	LogFormat      string `yaml:"log_format" jsonschema:"enum=text,enum=json"`
	ServiceName    string `yaml:"service_name"`
	Traces         string `yaml:"traces" jsonschema:"enum=none,enum=stdout,enum=otlp"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Turn      TurnConfig      `yaml:"turn"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			URL:                "wss://api.example.com/ws/duplex",
			HandshakeTimeoutMS: 10000,
			WriteTimeoutMS:     5000,
		},
		Audio: AudioConfig{
			Input:           "auto",
			File:            "test.pcm",
			SampleRate:      16000,
			Channels:        1,
			Format:          "linear16",
			FrameDurationMS: 120,
			EnergyThreshold: 0.01,
		},
		Turn: TurnConfig{
			SilenceMS:           700,
			InterruptDebounceMS: 800,
			CaptureQueue:        50,
			PlaybackQueue:       200,
			HeartbeatIntervalMS: 10000,
		},
		Playback: PlaybackConfig{
			Sink:    "ffplay",
			Command: "ffplay -nodisp -autoexit -loglevel quiet -f mp3 -i pipe:0",
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			LogFormat:      "text",
			ServiceName:    "ema-duplex",
			Traces:         "none",
			OTLPInsecure:   true,
			PrometheusBind: "",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies EMA_DUPLEX_*
// environment overrides and validates the result. An empty path loads the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Server.URL, envPrefix+"SERVER_URL")
	overrideString(&cfg.Server.Token, envPrefix+"TOKEN")
	overrideString(&cfg.Server.BotID, envPrefix+"BOT_ID")
	overrideString(&cfg.Server.UID, envPrefix+"UID")
	overrideInt(&cfg.Server.HandshakeTimeoutMS, envPrefix+"HANDSHAKE_TIMEOUT_MS")
	overrideInt(&cfg.Server.WriteTimeoutMS, envPrefix+"WRITE_TIMEOUT_MS")
	overrideString(&cfg.Audio.Input, envPrefix+"AUDIO_INPUT")
	overrideString(&cfg.Audio.File, envPrefix+"AUDIO_FILE")
	overrideInt(&cfg.Audio.SampleRate, envPrefix+"AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, envPrefix+"AUDIO_CHANNELS")
	overrideString(&cfg.Audio.Format, envPrefix+"AUDIO_FORMAT")
	overrideInt(&cfg.Audio.FrameDurationMS, envPrefix+"AUDIO_FRAME_DURATION_MS")
	overrideFloat(&cfg.Audio.EnergyThreshold, envPrefix+"AUDIO_ENERGY_THRESHOLD")
	overrideInt(&cfg.Turn.SilenceMS, envPrefix+"TURN_SILENCE_MS")
	overrideInt(&cfg.Turn.InterruptDebounceMS, envPrefix+"TURN_INTERRUPT_DEBOUNCE_MS")
	overrideInt(&cfg.Turn.CaptureQueue, envPrefix+"TURN_CAPTURE_QUEUE")
	overrideInt(&cfg.Turn.PlaybackQueue, envPrefix+"TURN_PLAYBACK_QUEUE")
	overrideInt(&cfg.Turn.HeartbeatIntervalMS, envPrefix+"TURN_HEARTBEAT_INTERVAL_MS")
	overrideBool(&cfg.Turn.LegacyEndOfStreamIndex, envPrefix+"TURN_LEGACY_END_OF_STREAM_INDEX")
	overrideString(&cfg.Playback.Sink, envPrefix+"PLAYBACK_SINK")
	overrideString(&cfg.Playback.Command, envPrefix+"PLAYBACK_COMMAND")
	overrideString(&cfg.Telemetry.LogLevel, envPrefix+"LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, envPrefix+"LOG_FORMAT")
	overrideString(&cfg.Telemetry.ServiceName, envPrefix+"SERVICE_NAME")
	overrideString(&cfg.Telemetry.Traces, envPrefix+"TRACES")
	overrideString(&cfg.Telemetry.OTLPEndpoint, envPrefix+"OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, envPrefix+"OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, envPrefix+"PROMETHEUS_BIND")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			*target = parsed
		}
	}
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.URL) == "" {
		errs = append(errs, errors.New("server.url must not be empty"))
	}
	if !oneOf(c.Audio.Input, "auto", "miniaudio", "portaudio", "file", "none") {
		errs = append(errs, fmt.Errorf("audio.input %q is not supported", c.Audio.Input))
	}
	if c.Audio.Input == "file" && strings.TrimSpace(c.Audio.File) == "" {
		errs = append(errs, errors.New("audio.file is required for the file input"))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, errors.New("audio.sample_rate must be positive"))
	}
	if c.Audio.Channels <= 0 {
		errs = append(errs, errors.New("audio.channels must be positive"))
	}
	if !oneOf(c.Audio.Format, "linear16", "mulaw", "alaw") {
		errs = append(errs, fmt.Errorf("audio.format %q is not supported", c.Audio.Format))
	}
	if c.Audio.FrameDurationMS <= 0 {
		errs = append(errs, errors.New("audio.frame_duration_ms must be positive"))
	}
	if c.Audio.EnergyThreshold <= 0 || c.Audio.EnergyThreshold >= 1 {
		errs = append(errs, errors.New("audio.energy_threshold must be between 0 and 1"))
	}
	if c.Turn.SilenceMS <= 0 || c.Turn.InterruptDebounceMS <= 0 || c.Turn.HeartbeatIntervalMS <= 0 {
		errs = append(errs, errors.New("turn durations must be positive"))
	}
	if c.Turn.CaptureQueue <= 0 || c.Turn.PlaybackQueue <= 0 {
		errs = append(errs, errors.New("turn queue capacities must be positive"))
	}
	if !oneOf(c.Playback.Sink, "ffplay", "miniaudio") {
		errs = append(errs, fmt.Errorf("playback.sink %q is not supported", c.Playback.Sink))
	}
	if !oneOf(c.Telemetry.Traces, "none", "stdout", "otlp") {
		errs = append(errs, fmt.Errorf("telemetry.traces %q is not supported", c.Telemetry.Traces))
	}
	if c.Telemetry.Traces == "otlp" && strings.TrimSpace(c.Telemetry.OTLPEndpoint) == "" {
		errs = append(errs, errors.New("telemetry.otlp_endpoint is required for otlp traces"))
	}
	return errors.Join(errs...)
}

func oneOf(value string, allowed ...string) bool {
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (c ServerConfig) HandshakeTimeout() time.Duration { return ms(c.HandshakeTimeoutMS) }
func (c ServerConfig) WriteTimeout() time.Duration     { return ms(c.WriteTimeoutMS) }
func (c AudioConfig) FrameDuration() time.Duration     { return ms(c.FrameDurationMS) }
func (c TurnConfig) Silence() time.Duration            { return ms(c.SilenceMS) }
func (c TurnConfig) InterruptDebounce() time.Duration  { return ms(c.InterruptDebounceMS) }
func (c TurnConfig) HeartbeatInterval() time.Duration  { return ms(c.HeartbeatIntervalMS) }

// Schema returns the JSON schema of the config file.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{DoNotReference: true, FieldNameTag: "yaml"}
	schema := reflector.Reflect(&Config{})
	return json.MarshalIndent(schema, "", "  ")
}
