package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type SummarizerConfig struct {
	Endpoint string        `yaml:"endpoint" validate:"required,url"`
	Model    string        `yaml:"model" validate:"required"`
	Timeout  time.Duration `yaml:"timeout" validate:"min=0"`
}

type MainConfig struct {
	NodeName         string           `yaml:"node_name" validate:"required"`
	BindHost         string           `yaml:"bind_host" validate:"required,ip|hostname"`
	Port             int              `yaml:"port" validate:"min=0,max=65535"`
	Peers            []string         `yaml:"peers" validate:"dive,peer_addr"`
	LogPath          string           `yaml:"log_path"`
	LogLevel         string           `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	StartupDelay     time.Duration    `yaml:"startup_delay" validate:"min=0"`
	DialTimeout      time.Duration    `yaml:"dial_timeout" validate:"gt=0"`
	DialRetries      int              `yaml:"dial_retries" validate:"min=0,max=10"`
	WriteTimeout     time.Duration    `yaml:"write_timeout" validate:"gt=0"`
	MaxPacketSize    int              `yaml:"max_packet_size" validate:"min=64"`
	MaxConnections   int              `yaml:"max_connections" validate:"min=1"`
	SeenCapacity     int              `yaml:"seen_capacity" validate:"min=1"`
	MaxConcurrentSOS int              `yaml:"max_concurrent_sos" validate:"min=1"`
	Summarizer       SummarizerConfig `yaml:"summarizer"`
}

// DefaultConfig returns the settings used when no config file is present.
func DefaultConfig() MainConfig {
	return MainConfig{
		NodeName:         "MeshMate Node",
		BindHost:         "127.0.0.1",
		Port:             9000,
		LogPath:          "./log",
		LogLevel:         "info",
		StartupDelay:     time.Second,
		DialTimeout:      5 * time.Second,
		DialRetries:      0,
		WriteTimeout:     2 * time.Second,
		MaxPacketSize:    1 << 20,
		MaxConnections:   64,
		SeenCapacity:     65536,
		MaxConcurrentSOS: 4,
		Summarizer: SummarizerConfig{
			Endpoint: "http://127.0.0.1:11434",
			Model:    "gemma:2b",
			Timeout:  2 * time.Minute,
		},
	}
}

// LoadMainConfig Read the configuration file and return the configuration object.
// Keys missing from the file keep their default value. When the file cannot
// be read the defaults are returned together with the error.
func LoadMainConfig(basePath string) (*MainConfig, error) {
	defaultCfg := DefaultConfig()

	if basePath == "" {
		exePath, err := os.Executable()
		if err != nil {
			return &defaultCfg, err
		}
		basePath = filepath.Dir(exePath)
	}
	configPath := filepath.Join(basePath, "config", "meshnode.yml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return &defaultCfg, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &defaultCfg, fmt.Errorf("[ERROR] failed to parse config file %s: %w", configPath, err)
	}

	return &cfg, nil
}

var (
	validate  = newValidator()
	hostCheck = validator.New()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("peer_addr", validPeerAddr)
	return v
}

// validPeerAddr accepts host:port where host follows the same ip|hostname
// rule as bind_host, so IPv6 peers like [::1]:9002 pass.
func validPeerAddr(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return false
	}
	return hostCheck.Var(host, "required,ip|hostname") == nil
}

// Validate checks the configuration and reports every invalid field at once.
func (c *MainConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// ListenAddr is the address the acceptor binds.
func (c *MainConfig) ListenAddr() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.Port))
}

// ParsePeers turns a comma separated peer list into dialable addresses.
// A bare port is taken to be on host.
func ParsePeers(list string, host string) ([]string, error) {
	var peers []string
	for _, raw := range strings.Split(list, ",") {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		if port, err := strconv.Atoi(p); err == nil {
			if port <= 0 || port > 65535 {
				return nil, fmt.Errorf("peer port out of range: %s", p)
			}
			peers = append(peers, net.JoinHostPort(host, p))
			continue
		}
		if _, _, err := net.SplitHostPort(p); err != nil {
			return nil, fmt.Errorf("unexpected peer format %q: %w", p, err)
		}
		peers = append(peers, p)
	}
	return peers, nil
}
