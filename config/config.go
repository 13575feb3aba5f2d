// Package config loads the options a discovery node needs: its
// domain and lease durations, which PDP variant to run, the server
// peers to join, and the ambient logging/metrics settings. Parsing
// arbitrary user config files is out of scope (spec.md §1); this
// package only understands the fields this program needs.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// PDPKind selects the PDP variant a node runs (spec.md §4.3).
type PDPKind string

const (
	PDPSimple PDPKind = "simple"
	PDPServer PDPKind = "server"
)

type Config struct {
	Participant struct {
		DomainID     int           `mapstructure:"domain_id"`
		LeaseDuration time.Duration `mapstructure:"lease_duration"`
		LogLevel     string        `mapstructure:"log_level"`
	} `mapstructure:"participant"`

	PDP struct {
		Kind           PDPKind  `mapstructure:"kind"`
		AnnouncePeriod time.Duration `mapstructure:"announce_period"`
		ServerPeers    []string `mapstructure:"server_peers"`
		PersistenceDir string   `mapstructure:"persistence_dir"`
	} `mapstructure:"pdp"`

	WLP struct {
		AutomaticLeaseDuration           time.Duration `mapstructure:"automatic_lease_duration"`
		ManualByParticipantLeaseDuration time.Duration `mapstructure:"manual_by_participant_lease_duration"`
		ManualByTopicLeaseDuration       time.Duration `mapstructure:"manual_by_topic_lease_duration"`
	} `mapstructure:"wlp"`

	Metrics struct {
		ListenAddr string `mapstructure:"listen_addr"`
	} `mapstructure:"metrics"`
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("RTPSDISCOVERY")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if c.PDP.Kind != PDPSimple && c.PDP.Kind != PDPServer {
		return nil, fmt.Errorf("config: pdp.kind must be %q or %q, got %q", PDPSimple, PDPServer, c.PDP.Kind)
	}
	if c.PDP.Kind == PDPServer && len(c.PDP.ServerPeers) == 0 {
		return nil, fmt.Errorf("config: pdp.kind=server requires at least one pdp.server_peers entry")
	}

	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("participant.domain_id", 0)
	v.SetDefault("participant.lease_duration", 20*time.Second)
	v.SetDefault("participant.log_level", "info")
	v.SetDefault("pdp.kind", string(PDPSimple))
	v.SetDefault("pdp.announce_period", 3*time.Second)
	v.SetDefault("wlp.automatic_lease_duration", 3*time.Second)
	v.SetDefault("wlp.manual_by_participant_lease_duration", 5*time.Second)
	v.SetDefault("wlp.manual_by_topic_lease_duration", 5*time.Second)
	v.SetDefault("metrics.listen_addr", ":9100")
}
