package choke

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned for a Config that a ChokeQueue cannot run with.
var ErrInvalidConfig = errors.New("choke: invalid config")

// QueueMode selects the unit used for queue limits, thresholds and averages.
type QueueMode int

const (
	QueueModePackets QueueMode = iota
	QueueModeBytes
)

func (m QueueMode) String() string {
	switch m {
	case QueueModePackets:
		return "packets"
	case QueueModeBytes:
		return "bytes"
	default:
		return "QueueMode(" + strconv.Itoa(int(m)) + ")"
	}
}

func (m QueueMode) valid() bool {
	return m == QueueModePackets || m == QueueModeBytes
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *QueueMode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch strings.ToLower(s) {
	case "packets":
		*m = QueueModePackets
	case "bytes":
		*m = QueueModeBytes
	default:
		return fmt.Errorf("line %d: unknown queue mode %q", value.Line, s)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (m QueueMode) MarshalYAML() (any, error) {
	if !m.valid() {
		return nil, fmt.Errorf("unknown queue mode %d", int(m))
	}
	return m.String(), nil
}

// Bitrate is a link rate in bits per second.
type Bitrate int64

const (
	Bps  Bitrate = 1
	Kbps         = 1_000 * Bps
	Mbps         = 1_000 * Kbps
	Gbps         = 1_000 * Mbps
)

var bitrateUnits = []struct {
	suffix string
	rate   Bitrate
}{
	// longest suffixes first so "Mbps" is not read as "bps"
	{"gbps", Gbps},
	{"mbps", Mbps},
	{"kbps", Kbps},
	{"bps", Bps},
}

// ParseBitrate parses rates such as "1.5Mbps", "800kbps" or "1000000".
func ParseBitrate(s string) (Bitrate, error) {
	str := strings.ToLower(strings.TrimSpace(s))
	unit := Bps
	for _, u := range bitrateUnits {
		if strings.HasSuffix(str, u.suffix) {
			str = strings.TrimSpace(strings.TrimSuffix(str, u.suffix))
			unit = u.rate
			break
		}
	}
	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bitrate %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative bitrate %q", s)
	}
	return Bitrate(v * float64(unit)), nil
}

func (b Bitrate) String() string {
	switch {
	case b >= Gbps && b%Gbps == 0:
		return strconv.FormatInt(int64(b/Gbps), 10) + "Gbps"
	case b >= Mbps && b%Mbps == 0:
		return strconv.FormatInt(int64(b/Mbps), 10) + "Mbps"
	case b >= Kbps && b%Kbps == 0:
		return strconv.FormatInt(int64(b/Kbps), 10) + "Kbps"
	default:
		return strconv.FormatInt(int64(b), 10) + "bps"
	}
}

// BytesPerSecond returns the rate in bytes per second.
func (b Bitrate) BytesPerSecond() float64 {
	return float64(b) / 8.0
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *Bitrate) UnmarshalYAML(value *yaml.Node) error {
	r, err := ParseBitrate(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = r
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (b Bitrate) MarshalYAML() (any, error) {
	return b.String(), nil
}

// Config holds the parameters of a ChokeQueue. It is read once, when the
// queue is created.
type Config struct {
	// Mode is the unit for QueueLimit, MinTh and MaxTh.
	Mode QueueMode `yaml:"mode"`
	// MeanPktSize is the expected packet size in bytes. It sets the packet
	// rate used to age the average across idle periods and scales byte mode
	// drop probabilities.
	MeanPktSize int `yaml:"mean_pkt_size"`
	// MinTh and MaxTh bound the region of early drops, in packets or bytes.
	MinTh float64 `yaml:"min_th"`
	MaxTh float64 `yaml:"max_th"`
	// QueueWeight is the EWMA weight given to each queue size sample.
	QueueWeight float64 `yaml:"queue_weight"`
	// LInterm is the inverse of the drop probability reached at MaxTh.
	LInterm float64 `yaml:"l_interm"`
	// LinkBandwidth and LinkDelay describe the link the queue feeds.
	LinkBandwidth Bitrate       `yaml:"link_bandwidth"`
	LinkDelay     time.Duration `yaml:"link_delay"`
	// Wait spaces early drops further apart.
	Wait bool `yaml:"wait"`
	// NS1Compat resets the drop counters on forced drops.
	NS1Compat bool `yaml:"ns1_compat"`
	// UseECN marks ECN capable packets instead of dropping them.
	UseECN bool `yaml:"use_ecn"`
	// UseHardDrop always drops above MaxTh, even with UseECN.
	UseHardDrop bool `yaml:"use_hard_drop"`
	// QueueLimit is the capacity of the queue, in packets or bytes.
	QueueLimit int `yaml:"queue_limit"`
}

// DefaultConfig returns the classic CHOKe parameters.
func DefaultConfig() Config {
	return Config{
		Mode:          QueueModePackets,
		MeanPktSize:   500,
		MinTh:         5,
		MaxTh:         15,
		QueueWeight:   0.002,
		LInterm:       50,
		LinkBandwidth: 1_500 * Kbps,
		LinkDelay:     20 * time.Millisecond,
		Wait:          true,
		NS1Compat:     false,
		UseECN:        false,
		UseHardDrop:   true,
		QueueLimit:    25,
	}
}

// Validate reports the first problem that would stop a ChokeQueue from
// running with c. Returned errors wrap ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case !c.Mode.valid():
		return fmt.Errorf("%w: unknown mode %v", ErrInvalidConfig, c.Mode)
	case c.MinTh < 0:
		return fmt.Errorf("%w: negative min threshold %v", ErrInvalidConfig, c.MinTh)
	case c.MinTh > c.MaxTh:
		return fmt.Errorf("%w: min threshold %v above max threshold %v", ErrInvalidConfig, c.MinTh, c.MaxTh)
	case c.QueueWeight <= 0 || c.QueueWeight >= 1:
		return fmt.Errorf("%w: queue weight %v outside (0, 1)", ErrInvalidConfig, c.QueueWeight)
	case c.LInterm <= 0:
		return fmt.Errorf("%w: l_interm %v must be positive", ErrInvalidConfig, c.LInterm)
	case c.MeanPktSize <= 0:
		return fmt.Errorf("%w: mean packet size %d must be positive", ErrInvalidConfig, c.MeanPktSize)
	case c.QueueLimit <= 0:
		return fmt.Errorf("%w: queue limit %d must be positive", ErrInvalidConfig, c.QueueLimit)
	case c.LinkBandwidth < 0:
		return fmt.Errorf("%w: negative link bandwidth %v", ErrInvalidConfig, c.LinkBandwidth)
	case c.LinkDelay < 0:
		return fmt.Errorf("%w: negative link delay %v", ErrInvalidConfig, c.LinkDelay)
	}
	return nil
}

// ParseConfig decodes a YAML document on top of DefaultConfig and validates
// the result. Unknown keys are an error.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML config file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
