package model

// ResourceLimits are the execution constraints applied per call. They are
// read once from configuration at startup and apply uniformly unless a test
// case overrides time or memory.
type ResourceLimits struct {
	TimeoutMs      int64 `json:"timeout_ms" yaml:"timeoutMs"`
	MemoryLimitMb  int64 `json:"memory_limit_mb" yaml:"memoryLimitMb"`
	MaxOutputBytes int64 `json:"max_output_bytes" yaml:"maxOutputBytes"`
	NetworkEnabled bool  `json:"network_enabled" yaml:"networkEnabled"`
	MaxTestCases   int   `json:"max_test_cases" yaml:"maxTestCases"`
}

// DefaultResourceLimits returns the limits used when configuration leaves
// them unset.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		TimeoutMs:      5000,
		MemoryLimitMb:  256,
		MaxOutputBytes: 1 << 20,
		NetworkEnabled: false,
		MaxTestCases:   50,
	}
}

// ForCase resolves the effective time and memory limits for one test case,
// falling back to the global defaults when the case carries no override.
func (l ResourceLimits) ForCase(tc TestCase) (timeoutMs, memoryMb int64) {
	timeoutMs = l.TimeoutMs
	if tc.TimeLimitMs > 0 {
		timeoutMs = tc.TimeLimitMs
	}
	memoryMb = l.MemoryLimitMb
	if tc.MemoryLimitMb > 0 {
		memoryMb = tc.MemoryLimitMb
	}
	return timeoutMs, memoryMb
}

// Normalize fills zero fields with defaults.
func (l ResourceLimits) Normalize() ResourceLimits {
	def := DefaultResourceLimits()
	if l.TimeoutMs <= 0 {
		l.TimeoutMs = def.TimeoutMs
	}
	if l.MemoryLimitMb <= 0 {
		l.MemoryLimitMb = def.MemoryLimitMb
	}
	if l.MaxOutputBytes <= 0 {
		l.MaxOutputBytes = def.MaxOutputBytes
	}
	if l.MaxTestCases <= 0 {
		l.MaxTestCases = def.MaxTestCases
	}
	return l
}
