package config

// HTTPClientConfig defines outbound HTTP defaults shared by the web, crawl and
// grounding retrievers.
type HTTPClientConfig struct {
	TimeoutMs              int      `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty" mapstructure:"timeout_ms"`
	Retry                  int      `json:"retry,omitempty" yaml:"retry,omitempty" mapstructure:"retry"`
	BackoffMinMs           int      `json:"backoff_min_ms,omitempty" yaml:"backoff_min_ms,omitempty" mapstructure:"backoff_min_ms"`
	BackoffMaxMs           int      `json:"backoff_max_ms,omitempty" yaml:"backoff_max_ms,omitempty" mapstructure:"backoff_max_ms"`
	HostAllowlist          []string `json:"host_allowlist,omitempty" yaml:"host_allowlist,omitempty" mapstructure:"host_allowlist"`
	MaxConsecutiveFailures int      `json:"max_consecutive_failures,omitempty" yaml:"max_consecutive_failures,omitempty" mapstructure:"max_consecutive_failures"`
	CircuitOpenSeconds     int      `json:"circuit_open_seconds,omitempty" yaml:"circuit_open_seconds,omitempty" mapstructure:"circuit_open_seconds"`
}
