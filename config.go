package goxl

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/roffe/goxl/pkg/vxlapi"
	"gopkg.in/yaml.v2"
)

// Config holds the settings of a session and the front ends using it
type Config struct {
	DLL           string        `yaml:"dll"`
	AppName       string        `yaml:"appName"`
	AppChannel    uint32        `yaml:"appChannel"`
	RxQueueSize   uint32        `yaml:"rxQueueSize"`
	QueueLevel    int32         `yaml:"queueLevel"`
	WaitTimeout   time.Duration `yaml:"waitTimeout"`
	Bitrate       uint32        `yaml:"bitrate"`
	ActivateFlags uint32        `yaml:"activateFlags"`
	SendAttempts  uint          `yaml:"sendAttempts"`
	SendDelay     time.Duration `yaml:"sendDelay"`
	Virtual       bool          `yaml:"virtual"`
	Debug         bool          `yaml:"debug"`
	LogFile       string        `yaml:"logFile"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		DLL:           "vxlapi64.dll",
		AppName:       "CANoe",
		AppChannel:    0,
		RxQueueSize:   256,
		QueueLevel:    1,
		WaitTimeout:   time.Second,
		Bitrate:       0,
		ActivateFlags: vxlapi.ACTIVATE_NONE,
		SendAttempts:  1,
		SendDelay:     10 * time.Millisecond,
	}
}

// LoadConfig reads filename on top of the defaults, applies environment
// overrides and validates the result. An empty filename skips the file.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	if filename != "" {
		if err := loadFromFile(cfg, filename); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", filename, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if dll := os.Getenv("XLDEMO_DLL"); dll != "" {
		cfg.DLL = dll
	}
	if name := os.Getenv("XLDEMO_APP_NAME"); name != "" {
		cfg.AppName = name
	}
	if v := os.Getenv("XLDEMO_VIRTUAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Virtual = b
		}
	}
}

// Validate checks the values the driver would reject later
func (c *Config) Validate() error {
	if c.AppName == "" {
		return fmt.Errorf("appName must be set")
	}
	if len(c.AppName) > vxlapi.MAX_LENGTH {
		return fmt.Errorf("appName %q is longer than %d characters", c.AppName, vxlapi.MAX_LENGTH)
	}
	if !c.Virtual && c.DLL == "" {
		return fmt.Errorf("dll must be set")
	}
	if c.RxQueueSize < 16 || c.RxQueueSize > 32768 || c.RxQueueSize&(c.RxQueueSize-1) != 0 {
		return fmt.Errorf("rxQueueSize %d must be a power of two between 16 and 32768", c.RxQueueSize)
	}
	if c.QueueLevel < 1 || uint32(c.QueueLevel) > c.RxQueueSize {
		return fmt.Errorf("queueLevel %d must be between 1 and rxQueueSize", c.QueueLevel)
	}
	if c.WaitTimeout < time.Millisecond {
		return fmt.Errorf("waitTimeout %s must be at least 1ms", c.WaitTimeout)
	}
	if c.SendAttempts < 1 {
		return fmt.Errorf("sendAttempts must be at least 1")
	}
	if c.SendDelay < 0 {
		return fmt.Errorf("sendDelay must not be negative")
	}
	return nil
}
