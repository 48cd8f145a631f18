// ABOUTME: YAML tuning file for zones and the render pipeline
// ABOUTME: Loads defaults, overlays the file and validates the result
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/internal/player"
	"github.com/Resonate-Protocol/resonate-zones/internal/protocol"
	"github.com/Resonate-Protocol/resonate-zones/internal/sink"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio/output"
	"gopkg.in/yaml.v3"
)

// Config is the full tuning file
type Config struct {
	Pipeline  PipelineConfig `yaml:"pipeline"`
	Audio     AudioConfig    `yaml:"audio"`
	Primary   ZoneConfig     `yaml:"primary"`
	Secondary ZoneConfig     `yaml:"secondary"`
}

type PipelineConfig struct {
	StartedCacheRatio    float64       `yaml:"started_cache_ratio"`
	DriftFloor           time.Duration `yaml:"drift_floor"`
	MaxSpeedAdjust       float64       `yaml:"max_speed_adjust"`
	SecondaryMergeFrames int           `yaml:"secondary_merge_frames"`
	MaxDataSize          int           `yaml:"max_data_size"`
	MaxTime              time.Duration `yaml:"max_time"`
	UseDisplayAsClock    bool          `yaml:"use_display_as_clock"`
}

type AudioConfig struct {
	VolumeAmplification float64 `yaml:"volume_amplification"` // dB
	CenterMixLevel      float64 `yaml:"center_mix_level"`     // dB
	AllowDTSHD          bool    `yaml:"allow_dtshd"`
	TempoMin            float64 `yaml:"tempo_min"`
	TempoMax            float64 `yaml:"tempo_max"`
}

// ZoneConfig describes one output zone
type ZoneConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Name         string        `yaml:"name"`
	Output       string        `yaml:"output"` // "speaker", "null" or "wav"
	Path         string        `yaml:"path"`   // wav only
	Latency      time.Duration `yaml:"latency"`
	BufferTime   time.Duration `yaml:"buffer_time"`
	DeviceBuffer time.Duration `yaml:"device_buffer"`
	DeviceRate   int           `yaml:"device_rate"`
	Passthrough  []string      `yaml:"passthrough"`
	Dumb         bool          `yaml:"dumb"`
}

var validOutputs = []string{"speaker", "null", "wav"}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			StartedCacheRatio:    0.75,
			DriftFloor:           50 * time.Millisecond,
			MaxSpeedAdjust:       5.0,
			SecondaryMergeFrames: 1024,
			MaxDataSize:          6 * 1024 * 1024,
			MaxTime:              8 * time.Second,
		},
		Audio: AudioConfig{
			AllowDTSHD: true,
			TempoMin:   1.0,
			TempoMax:   1.0,
		},
		Primary: ZoneConfig{
			Enabled:      true,
			Name:         "main",
			Output:       "speaker",
			BufferTime:   500 * time.Millisecond,
			DeviceBuffer: 50 * time.Millisecond,
		},
		Secondary: ZoneConfig{
			Name:         "zone2",
			Output:       "null",
			BufferTime:   500 * time.Millisecond,
			DeviceBuffer: 50 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("Config file not found (%s), using defaults", path)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Printf("Config loaded from %s: primary=%s(%s) secondary=%s(%s, enabled=%v)",
		path, cfg.Primary.Name, cfg.Primary.Output, cfg.Secondary.Name, cfg.Secondary.Output, cfg.Secondary.Enabled)
	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.StartedCacheRatio <= 0 || p.StartedCacheRatio > 1 {
		return fmt.Errorf("invalid started_cache_ratio: %v (must be in (0, 1])", p.StartedCacheRatio)
	}
	if p.DriftFloor <= 0 {
		return fmt.Errorf("invalid drift_floor: %v (must be positive)", p.DriftFloor)
	}
	if p.MaxSpeedAdjust < 0 {
		return fmt.Errorf("invalid max_speed_adjust: %v (must not be negative)", p.MaxSpeedAdjust)
	}
	if p.SecondaryMergeFrames < 0 {
		return fmt.Errorf("invalid secondary_merge_frames: %d (must not be negative)", p.SecondaryMergeFrames)
	}
	if p.MaxDataSize <= 0 || p.MaxTime <= 0 {
		return fmt.Errorf("invalid queue limits: %d bytes, %v", p.MaxDataSize, p.MaxTime)
	}

	if c.Audio.TempoMin > c.Audio.TempoMax {
		return fmt.Errorf("invalid tempo range: %v > %v", c.Audio.TempoMin, c.Audio.TempoMax)
	}

	if !c.Primary.Enabled {
		return fmt.Errorf("primary zone cannot be disabled")
	}
	if err := c.Primary.validate(); err != nil {
		return fmt.Errorf("primary zone: %w", err)
	}
	if c.Secondary.Enabled {
		if err := c.Secondary.validate(); err != nil {
			return fmt.Errorf("secondary zone: %w", err)
		}
	}
	return nil
}

func (z ZoneConfig) validate() error {
	valid := false
	for _, o := range validOutputs {
		if strings.ToLower(z.Output) == o {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid output: %s (must be one of: %v)", z.Output, validOutputs)
	}
	if strings.ToLower(z.Output) == "wav" && z.Path == "" {
		return fmt.Errorf("wav output requires a path")
	}
	if z.BufferTime < 100*time.Millisecond {
		return fmt.Errorf("invalid buffer_time: %v (must be at least 100ms)", z.BufferTime)
	}
	if z.DeviceBuffer <= 0 || z.DeviceBuffer > z.BufferTime {
		return fmt.Errorf("invalid device_buffer: %v (must be positive and within buffer_time)", z.DeviceBuffer)
	}
	if z.Latency < 0 {
		return fmt.Errorf("invalid latency: %v", z.Latency)
	}
	if _, err := z.StreamTypes(); err != nil {
		return err
	}
	return nil
}

// StreamTypes parses the passthrough list
func (z ZoneConfig) StreamTypes() ([]audio.StreamType, error) {
	var types []audio.StreamType
	for _, name := range z.Passthrough {
		t := audio.ParseStreamType(strings.ToLower(name))
		if t == audio.StreamTypeNone {
			return nil, fmt.Errorf("invalid passthrough format: %s", name)
		}
		types = append(types, t)
	}
	return types, nil
}

// SinkConfig converts the zone to soft sink settings
func (z ZoneConfig) SinkConfig() sink.Config {
	cfg := sink.DefaultConfig(z.Name)
	cfg.BufferTime = z.BufferTime
	cfg.DeviceBuffer = z.DeviceBuffer
	cfg.DeviceRate = z.DeviceRate
	cfg.Passthrough, _ = z.StreamTypes()
	cfg.Dumb = z.Dumb
	return cfg
}

// NewOutput creates the device backend for the zone
func (z ZoneConfig) NewOutput() output.Output {
	switch strings.ToLower(z.Output) {
	case "wav":
		return output.NewWAV(z.Path)
	case "null":
		return output.NewNull(z.Latency)
	default:
		return output.NewOto(z.Latency)
	}
}

// Zone builds the sink description for the zone
func (z ZoneConfig) Zone() sink.Zone {
	return sink.Zone{Config: z.SinkConfig(), Output: z.NewOutput()}
}

// PlayerConfig converts the pipeline section to render pipeline settings
func (c *Config) PlayerConfig() player.Config {
	cfg := player.DefaultConfig()
	cfg.DualOutput = c.Secondary.Enabled
	cfg.UseDisplayAsClock = c.Pipeline.UseDisplayAsClock
	cfg.StartedCacheRatio = c.Pipeline.StartedCacheRatio
	cfg.DriftFloor = float64(c.Pipeline.DriftFloor.Microseconds())
	cfg.MaxSpeedAdjust = c.Pipeline.MaxSpeedAdjust
	cfg.SecondaryMergeFrames = c.Pipeline.SecondaryMergeFrames
	cfg.MaxDataSize = c.Pipeline.MaxDataSize
	cfg.MaxTimeSize = c.Pipeline.MaxTime.Seconds()
	return cfg
}

// ApplyTo copies the audio section into process info
func (c *Config) ApplyTo(pi *player.ProcessInfo) {
	pi.SetSettings(player.AudioSettings{
		VolumeAmplification: c.Audio.VolumeAmplification,
		CenterMixLevel:      c.Audio.CenterMixLevel,
	})
	pi.SetAllowDTSHDDecode(c.Audio.AllowDTSHD)
	pi.SetTempoRange(c.Audio.TempoMin, c.Audio.TempoMax)
}

// Support describes what this host can play, for a stream server
func (c *Config) Support() protocol.PlayerSupport {
	support := protocol.PlayerSupport{
		BufferCapacity:    c.Pipeline.MaxDataSize,
		SupportedCommands: []string{"play", "pause", "flush", "volume", "mute"},
	}
	for _, codec := range []string{"opus", "flac", "mp3", "pcm"} {
		support.SupportFormats = append(support.SupportFormats,
			protocol.AudioFormat{Codec: codec, Channels: 2, SampleRate: 48000})
	}

	// a bitstream is only offered when every active zone takes it
	secondary := map[string]bool{}
	for _, name := range c.Secondary.Passthrough {
		secondary[strings.ToLower(name)] = true
	}
	for _, name := range c.Primary.Passthrough {
		name = strings.ToLower(name)
		if c.Secondary.Enabled && !secondary[name] {
			continue
		}
		support.Passthrough = append(support.Passthrough, name)
	}
	return support
}
