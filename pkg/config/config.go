package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemLoop  string = "memloop"
	DriverAFPacket string = "afpacket"
)

const (
	defaultFile        string = "config.yaml"
	defaultDriver      string = DriverMemLoop
	defaultPorts       int    = 2
	defaultBurstSize   int    = 32
	defaultDrainPolls  int    = 2
	defaultStatsPeriod int    = 10
	defaultQueues      int    = 1
	defaultPoolSize    int    = 8192
	defaultBufferSize  int    = 2048
)

// Error reports an invalid startup topology. Startup aborts before any
// port is configured or worker launched.
type Error struct {
	Field  string
	Reason string
}

func (e Error) Error() string {
	return fmt.Sprintf("invalid config %v: %v", e.Field, e.Reason)
}

type Config struct {
	// Driver selects the port layer: memloop for in-memory loopback
	// ports, afpacket for kernel AF_PACKET sockets.
	Driver string `yaml:"driver"`
	// Interfaces are the links used by the afpacket driver; port ids
	// follow the listed order.
	Interfaces []string `yaml:"interfaces"`
	// Ports is the number of memloop ports to create.
	Ports int `yaml:"ports"`

	BurstSize       int `yaml:"burstSize"`
	DrainPolls      int `yaml:"drainPolls"`
	QueuesPerWorker int `yaml:"queuesPerWorker"`
	// Workers caps the number of forwarding workers; 0 means one per
	// queue group, bounded by available cores.
	Workers int `yaml:"workers"`
	// Cores pins workers to these cores, in order. Empty means the
	// process affinity mask decides.
	Cores []int `yaml:"cores"`

	PoolSize   int `yaml:"poolSize"`
	BufferSize int `yaml:"bufferSize"`

	// StatsPeriod is the reporting interval in seconds, 0 to disable.
	// A pointer so an explicit 0 survives defaulting.
	StatsPeriod *int `yaml:"statsPeriod"`
	// MetricsAddress enables the Prometheus endpoint when set.
	MetricsAddress string `yaml:"metricsAddress"`
}

func newWithDefaults() *Config {
	config := &Config{}
	ApplyDefaults(config)
	return config
}

func ApplyDefaults(config *Config) {
	if config.Driver == "" {
		config.Driver = defaultDriver
	}
	if config.Ports == 0 {
		config.Ports = defaultPorts
	}
	if config.BurstSize == 0 {
		config.BurstSize = defaultBurstSize
	}
	if config.DrainPolls == 0 {
		config.DrainPolls = defaultDrainPolls
	}
	if config.QueuesPerWorker == 0 {
		config.QueuesPerWorker = defaultQueues
	}
	if config.PoolSize == 0 {
		config.PoolSize = defaultPoolSize
	}
	if config.BufferSize == 0 {
		config.BufferSize = defaultBufferSize
	}
	if config.StatsPeriod == nil {
		period := defaultStatsPeriod
		config.StatsPeriod = &period
	}
}

func (c *Config) Validate() error {
	switch c.Driver {
	case DriverMemLoop:
		if c.Ports <= 0 {
			return Error{Field: "ports", Reason: "no enabled ports"}
		}
	case DriverAFPacket:
		if len(c.Interfaces) == 0 {
			return Error{Field: "interfaces", Reason: "no enabled ports"}
		}
	default:
		return Error{Field: "driver", Reason: fmt.Sprintf("unknown driver %q", c.Driver)}
	}
	if c.BurstSize <= 0 {
		return Error{Field: "burstSize", Reason: "must be positive"}
	}
	if c.DrainPolls < 0 {
		return Error{Field: "drainPolls", Reason: "must not be negative"}
	}
	if c.QueuesPerWorker <= 0 {
		return Error{Field: "queuesPerWorker", Reason: "must be positive"}
	}
	if c.Workers < 0 {
		return Error{Field: "workers", Reason: "must not be negative"}
	}
	if c.PoolSize <= 0 {
		return Error{Field: "poolSize", Reason: "must be positive"}
	}
	if c.BufferSize <= 0 {
		return Error{Field: "bufferSize", Reason: "must be positive"}
	}
	if c.StatsPeriod != nil && *c.StatsPeriod < 0 {
		return Error{Field: "statsPeriod", Reason: "must not be negative"}
	}
	for _, core := range c.Cores {
		if core < 0 {
			return Error{Field: "cores", Reason: fmt.Sprintf("invalid core id %v", core)}
		}
	}
	return nil
}

// StatsEvery returns the statistics reporting period, zero when
// reporting is disabled.
func (c *Config) StatsEvery() time.Duration {
	if c.StatsPeriod == nil {
		return time.Duration(defaultStatsPeriod) * time.Second
	}
	return time.Duration(*c.StatsPeriod) * time.Second
}

// NumPorts reports how many ports the selected driver will configure.
func (c *Config) NumPorts() int {
	if c.Driver == DriverAFPacket {
		return len(c.Interfaces)
	}
	return c.Ports
}

func FromFile(filename string) (*Config, error) {
	configFile, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %v - err: %w", filename, err)
	}

	var config Config
	err = yaml.Unmarshal(configFile, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %v - err: %w", filename, err)
	}
	ApplyDefaults(&config)

	logrus.Debugf("Parsed config file %v: %+v", filename, config)
	return &config, nil
}

func FromCmdline() (*Config, error) {
	filename := flag.String("conf", defaultFile, "Default config file")
	flag.Parse()

	if _, err := os.Stat(*filename); os.IsNotExist(err) && *filename == defaultFile {
		// No config given and the default file is absent: run with
		// defaults (two in-memory loopback ports).
		return newWithDefaults(), nil
	}
	return FromFile(*filename)
}
