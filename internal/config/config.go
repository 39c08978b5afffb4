// Package config loads the dynrds YAML settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	TransmitterNone   = "None"
	TransmitterQN8066 = "QN8066"
	TransmitterSi4713 = "Si4713"

	StartFPPD     = "FPPDStart"
	StartPlaylist = "PlaylistStart"
	StartNever    = "Never"

	StopPlaylist = "PlaylistStop"
	StopNever    = "Never"
)

type Config struct {
	Transmitter string  `yaml:"transmitter"`
	Frequency   float64 `yaml:"frequency"`   // MHz
	Preemphasis string  `yaml:"preemphasis"` // "50us" or "75us"
	EnableRDS   bool    `yaml:"enable_rds"`
	PICode      string  `yaml:"pi_code"` // 4 hex digits
	PTY         int     `yaml:"pty"`
	RBDS        bool    `yaml:"rbds"` // PTY names, North American table

	Start string `yaml:"start"`
	Stop  string `yaml:"stop"`

	PS PSConfig `yaml:"ps"`
	RT RTConfig `yaml:"rt"`

	QN8066 QN8066Config `yaml:"qn8066"`
	Si4713 Si4713Config `yaml:"si4713"`

	I2C    I2CConfig    `yaml:"i2c"`
	Log    LogConfig    `yaml:"log"`
	FIFO   string       `yaml:"fifo"`
	Status StatusConfig `yaml:"status"`
	FPP    FPPConfig    `yaml:"fpp"`
}

type PSConfig struct {
	Style      string `yaml:"style"`
	UpdateRate int    `yaml:"update_rate"` // seconds per fragment
}

type RTConfig struct {
	Style      string `yaml:"style"`
	UpdateRate int    `yaml:"update_rate"`
	Size       int    `yaml:"size"` // fragment size, 32 or 64
}

type QN8066Config struct {
	SoftClipping   bool   `yaml:"soft_clipping"`
	BufferGain     int    `yaml:"buffer_gain"`     // 0..5, 3 bits
	DigitalGain    int    `yaml:"digital_gain"`    // 0..2, 2 bits
	InputImpedance int    `yaml:"input_impedance"` // 0..3, 2 bits
	AGC            bool   `yaml:"agc"`
	ChipPower      int    `yaml:"chip_power"`
	AmpPower       int    `yaml:"amp_power"` // PWM duty, 0..300 (x61ns of a 18300ns period)
	PWM            bool   `yaml:"pwm"`
	PWMPin         string `yaml:"pwm_pin"`
}

type Si4713Config struct {
	ResetPin  string `yaml:"reset_pin"`
	ChipPower int    `yaml:"chip_power"` // dBuV, 88..115
	TuningCap int    `yaml:"tuning_cap"` // 0 = auto
}

type I2CConfig struct {
	Bus string `yaml:"bus"` // "" picks the first bus
}

type LogConfig struct {
	Level string `yaml:"level"` // EXCESSIVE, DEBUG, INFO, WARNING, ERROR
	File  string `yaml:"file"`  // "" logs to stderr
}

type StatusConfig struct {
	File     string `yaml:"file"`     // JSON snapshot, "" disables
	Interval int    `yaml:"interval"` // seconds between transmitter status reads
}

type FPPConfig struct {
	API string `yaml:"api"` // base URL of the FPP REST API
}

// Defaults mirror the stock plugin settings.
func Defaults() *Config {
	return &Config{
		Transmitter: TransmitterNone,
		Frequency:   100.1,
		Preemphasis: "75us",
		EnableRDS:   true,
		PICode:      "819b",
		PTY:         2,
		RBDS:        true,
		Start:       StartFPPD,
		Stop:        StopNever,
		PS: PSConfig{
			Style:      "Merry|Christ-|  -mas!|{T}|{A}|[{N} of {C}]",
			UpdateRate: 4,
		},
		RT: RTConfig{
			Style:      "Merry Christmas!|{T}[ by {A}]|[Track {N} of {C}]",
			UpdateRate: 8,
			Size:       32,
		},
		QN8066: QN8066Config{
			ChipPower: 122,
			PWMPin:    "GPIO18",
		},
		Si4713: Si4713Config{
			ResetPin:  "GPIO4",
			ChipPower: 115,
		},
		Log:    LogConfig{Level: "INFO"},
		FIFO:   "/home/fpp/media/plugins/Dynamic_RDS/Dynamic_RDS_FIFO",
		Status: StatusConfig{Interval: 60},
		FPP:    FPPConfig{API: "http://localhost/api"},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", path).Msg("no config file found, using defaults")
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// PIBytes returns the PI code high and low bytes. Validate first.
func (c *Config) PIBytes() (byte, byte) {
	var pi uint16
	fmt.Sscanf(c.PICode, "%x", &pi)
	return byte(pi >> 8), byte(pi)
}

// PI returns the PI code as a number.
func (c *Config) PI() uint16 {
	hi, lo := c.PIBytes()
	return uint16(hi)<<8 | uint16(lo)
}

func (c *Config) PSDelay() time.Duration {
	return time.Duration(c.PS.UpdateRate) * time.Second
}

func (c *Config) RTDelay() time.Duration {
	return time.Duration(c.RT.UpdateRate) * time.Second
}

func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Status.Interval) * time.Second
}
