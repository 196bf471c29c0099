package types

// Config is the single JSON document the pipeline is started with
// (spec.md §6). Field names stay close to the upstream Klever configuration
// keys; they are re-expressed as idiomatic Go identifiers via JSON tags.
type Config struct {
	Identifier string `json:"identifier"`

	Bridge BridgeConfig `json:"Klever Bridge"`

	WorkingDirectory     string `json:"working directory"`
	MainWorkingDirectory string `json:"main working directory"`

	KeepIntermediateFiles bool `json:"keep intermediate files"`
	KeepWorkingDirectory  bool `json:"keep working directory"`

	WorkingSourceTrees []string `json:"working source trees"`

	UploadVerifierInputFiles          bool `json:"upload verifier input files"`
	UploadStaticVerifierInputFiles    bool `json:"upload input files of static verifiers"`

	CodeCoverageDetails CoverageDetail `json:"code coverage details"`

	ResourceLimits ResourceLimits `json:"resource limits"`

	VTGStrategy VTGStrategy `json:"VTG strategy"`
}

// BridgeConfig is the host and credentials for the report-bridge HTTP API.
type BridgeConfig struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// ResourceLimits bounds what a job or task may reserve on the node.
type ResourceLimits struct {
	MemorySize int64  `json:"memory size"`
	CPUModel   string `json:"CPU model,omitempty"`
	CPUTime    int64  `json:"cpu time"`
	WallTime   int64  `json:"wall time"`
	CPUsNum    int    `json:"CPUs num"`
}

// VTGStrategy configures the verifier a chain of tasks should use.
type VTGStrategy struct {
	Verifier struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"verifier"`
	ResourceLimits    ResourceLimits `json:"resource limits"`
	MergeSourceFiles  bool           `json:"merge source files"`
}

// Validate checks the fields every component reads before a job starts.
// It returns a *ConfigError wrapping the first problem found.
func (c *Config) Validate() error {
	if c == nil {
		return &ConfigError{Field: "<root>", Msg: "configuration is nil"}
	}
	if c.Identifier == "" {
		return &ConfigError{Field: "identifier", Msg: "must not be empty"}
	}
	if c.Bridge.Host == "" {
		return &ConfigError{Field: "Klever Bridge.host", Msg: "must not be empty"}
	}
	if c.MainWorkingDirectory == "" {
		return &ConfigError{Field: "main working directory", Msg: "must not be empty"}
	}
	switch c.CodeCoverageDetails {
	case "", CoverageNone, CoverageLines, CoverageConditions:
	default:
		return &ConfigError{Field: "code coverage details", Msg: "must be one of None, lines, conditions"}
	}
	if c.ResourceLimits.MemorySize <= 0 {
		return &ConfigError{Field: "resource limits.memory size", Msg: "must be positive"}
	}
	return nil
}
