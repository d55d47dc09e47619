package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectType represents the type of project detected.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeUnknown ProjectType = "unknown"
)

// Config represents the complete configuration for the indexing and
// retrieval pipeline.
type Config struct {
	Version      int                `yaml:"version" json:"version"`
	Paths        PathsConfig        `yaml:"paths" json:"paths"`
	Store        StoreConfig        `yaml:"store" json:"store"`
	Chunking     ChunkingConfig     `yaml:"chunking" json:"chunking"`
	Embeddings   EmbeddingsConfig   `yaml:"embeddings" json:"embeddings"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" json:"orchestrator"`
	Indexer      IndexerConfig      `yaml:"indexer" json:"indexer"`
	Retrieval    RetrievalConfig    `yaml:"retrieval" json:"retrieval"`
	Server       ServerConfig       `yaml:"server" json:"server"`
}

// PathsConfig configures which paths to include and exclude.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// StoreConfig configures the two-tier content and relationship stores.
type StoreConfig struct {
	// GlobalDir is the per-user cache root; per-repo state lives under
	// GlobalDir/<sha256(abs repo path)[:16]>/.
	GlobalDir string `yaml:"global_dir" json:"global_dir"`
	// StaleThreshold is T_stale: the maximum snapshot-timestamp delta
	// between tiers tolerated before an immediate sync is forced.
	StaleThreshold time.Duration `yaml:"stale_threshold" json:"stale_threshold"`
	// SQLiteCacheMB is the page cache size given to the metadata store.
	SQLiteCacheMB int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// ChunkingConfig configures the AST-aware chunker (C3).
type ChunkingConfig struct {
	// TargetBytes is the byte budget a chunk should target so it embeds
	// within the active model's input limit.
	TargetBytes int `yaml:"target_bytes" json:"target_bytes"`
	// LineWindowSize is the fallback line-window size for languages with
	// no AST parser available.
	LineWindowSize int `yaml:"line_window_size" json:"line_window_size"`
	// LineWindowOverlap is the overlap between consecutive fallback windows.
	LineWindowOverlap int `yaml:"line_window_overlap" json:"line_window_overlap"`
}

// EmbeddingsConfig configures the embedding providers available to the
// orchestrator (C5).
type EmbeddingsConfig struct {
	// Primary selects the default provider ("worker-pool" or "remote-http").
	Primary string `yaml:"primary" json:"primary"`
	// Fallback selects the failover provider; empty disables failover.
	Fallback string `yaml:"fallback" json:"fallback"`
	Model    string `yaml:"model" json:"model"`
	// Dimensions is 0 to auto-detect from the active provider.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	MaxBatchSize int `yaml:"max_batch_size" json:"max_batch_size"`

	// WorkerPoolSize is the number of OS-process embedding workers (C4)
	// started by the worker-pool provider.
	WorkerPoolSize int `yaml:"worker_pool_size" json:"worker_pool_size"`
	// RemoteEndpoint is the HTTP endpoint for the remote provider.
	RemoteEndpoint string `yaml:"remote_endpoint" json:"remote_endpoint"`
	// BatchTimeout bounds a single embed_batch call.
	BatchTimeout time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
}

// OrchestratorConfig configures the embedding orchestrator's adaptive
// concurrency, rate limiting, circuit breaker, and resource guard (C5).
type OrchestratorConfig struct {
	// ConcurrencyMin/Max bound the adaptive semaphore permit count N.
	ConcurrencyMin int `yaml:"concurrency_min" json:"concurrency_min"`
	ConcurrencyMax int `yaml:"concurrency_max" json:"concurrency_max"`
	// ConcurrencyInitial is N at startup.
	ConcurrencyInitial int `yaml:"concurrency_initial" json:"concurrency_initial"`
	// TargetLatencyLowMs / TargetLatencyHighMs gate the N+1 / N-1 adjustments.
	TargetLatencyLowMs  int `yaml:"target_latency_low_ms" json:"target_latency_low_ms"`
	TargetLatencyHighMs int `yaml:"target_latency_high_ms" json:"target_latency_high_ms"`

	// RateLimitCapacity / RateLimitRefillPerSec configure the per-provider
	// token bucket.
	RateLimitCapacity     int     `yaml:"rate_limit_capacity" json:"rate_limit_capacity"`
	RateLimitRefillPerSec float64 `yaml:"rate_limit_refill_per_sec" json:"rate_limit_refill_per_sec"`

	// CircuitMaxFailures is F: consecutive failures before OPEN.
	CircuitMaxFailures int `yaml:"circuit_max_failures" json:"circuit_max_failures"`
	// CircuitResetTimeout is T: how long OPEN rejects before probing.
	CircuitResetTimeout time.Duration `yaml:"circuit_reset_timeout" json:"circuit_reset_timeout"`
	// CircuitSuccessThreshold is S: consecutive probe successes to close.
	CircuitSuccessThreshold int `yaml:"circuit_success_threshold" json:"circuit_success_threshold"`

	// RetryMaxAttempts / RetryInitialDelay / RetryMaxDelay configure the
	// exponential-backoff-with-jitter retry policy for transient failures.
	RetryMaxAttempts  int           `yaml:"retry_max_attempts" json:"retry_max_attempts"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay" json:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay" json:"retry_max_delay"`

	// ResourceGuard thresholds, expressed as a fraction of total capacity.
	ResourceSampleInterval   time.Duration `yaml:"resource_sample_interval" json:"resource_sample_interval"`
	MemoryStopThreshold      float64       `yaml:"memory_stop_threshold" json:"memory_stop_threshold"`
	MemoryResumeThreshold    float64       `yaml:"memory_resume_threshold" json:"memory_resume_threshold"`
	CPUGuardThreshold        float64       `yaml:"cpu_guard_threshold" json:"cpu_guard_threshold"`
}

// IndexerConfig configures the top-level indexing driver (C6).
type IndexerConfig struct {
	MaxFiles int `yaml:"max_files" json:"max_files"`
	// DebounceWindow coalesces multiple live-ingress changes per file.
	DebounceWindow time.Duration `yaml:"debounce_window" json:"debounce_window"`
	// BatchSize is B: the max files processed per live-ingress batch.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// RetrievalConfig configures vector search, traversal, and MMR selection
// (C8/C9/C10).
type RetrievalConfig struct {
	// ExactScanThreshold is the chunk-count ceiling below which similarity
	// search uses an exact linear scan instead of the approximate index.
	ExactScanThreshold int `yaml:"exact_scan_threshold" json:"exact_scan_threshold"`

	// HopDecay is the per-hop weight multiplier applied during traversal.
	HopDecay float64 `yaml:"hop_decay" json:"hop_decay"`
	// MaxDepth bounds traversal breadth-first expansion.
	MaxDepth int `yaml:"max_depth" json:"max_depth"`

	// MMRLambda trades relevance against diversity in the MMR loop.
	MMRLambda float64 `yaml:"mmr_lambda" json:"mmr_lambda"`
	// MMRCriticalCoverage is c_min: minimum fraction of the critical set
	// that must be selected before the general MMR loop runs.
	MMRCriticalCoverage float64 `yaml:"mmr_critical_coverage" json:"mmr_critical_coverage"`
	// MMRCushion is the token-budget cushion reserved during selection.
	MMRCushion float64 `yaml:"mmr_cushion" json:"mmr_cushion"`
	// MMRFallbackSize is the candidate-count ceiling below which MMR is
	// skipped entirely.
	MMRFallbackSize int `yaml:"mmr_fallback_size" json:"mmr_fallback_size"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	Port      int    `yaml:"port" json:"port"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Store: StoreConfig{
			GlobalDir:      defaultGlobalStoreDir(),
			StaleThreshold: 24 * time.Hour,
			SQLiteCacheMB:  64,
		},
		Chunking: ChunkingConfig{
			TargetBytes:       1500,
			LineWindowSize:    60,
			LineWindowOverlap: 10,
		},
		Embeddings: EmbeddingsConfig{
			Primary:        "worker-pool",
			Fallback:       "",
			Model:          "",
			Dimensions:     0,
			MaxBatchSize:   32,
			WorkerPoolSize: runtime.NumCPU(),
			RemoteEndpoint: "",
			BatchTimeout:   30 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			ConcurrencyMin:          1,
			ConcurrencyMax:          16,
			ConcurrencyInitial:      4,
			TargetLatencyLowMs:      200,
			TargetLatencyHighMs:     2000,
			RateLimitCapacity:       20,
			RateLimitRefillPerSec:   10,
			CircuitMaxFailures:      5,
			CircuitResetTimeout:     60 * time.Second,
			CircuitSuccessThreshold: 2,
			RetryMaxAttempts:        3,
			RetryInitialDelay:       100 * time.Millisecond,
			RetryMaxDelay:           5 * time.Second,
			ResourceSampleInterval:  15 * time.Second,
			MemoryStopThreshold:     0.78,
			MemoryResumeThreshold:   0.70,
			CPUGuardThreshold:       0.55,
		},
		Indexer: IndexerConfig{
			MaxFiles:       100000,
			DebounceWindow: 500 * time.Millisecond,
			BatchSize:      50,
		},
		Retrieval: RetrievalConfig{
			ExactScanThreshold:  500000,
			HopDecay:            0.8,
			MaxDepth:            3,
			MMRLambda:           0.7,
			MMRCriticalCoverage: 0.95,
			MMRCushion:          0.20,
			MMRFallbackSize:     20,
		},
		Server: ServerConfig{
			Transport: "stdio",
			Port:      8765,
			LogLevel:  "info",
		},
	}
}

// defaultGlobalStoreDir returns the default global-tier cache root.
func defaultGlobalStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".codeintel")
	}
	return filepath.Join(home, ".codeintel")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/codeintel/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/codeintel/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codeintel", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codeintel", "config.yaml")
	}
	return filepath.Join(home, ".config", "codeintel", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory, applying
// configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/codeintel/config.yaml)
//  3. Project config (.codeintel.yaml in project root)
//  4. Environment variables (CODEINTEL_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .codeintel.yaml or .codeintel.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".codeintel.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".codeintel.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Store.GlobalDir != "" {
		c.Store.GlobalDir = other.Store.GlobalDir
	}
	if other.Store.StaleThreshold != 0 {
		c.Store.StaleThreshold = other.Store.StaleThreshold
	}
	if other.Store.SQLiteCacheMB != 0 {
		c.Store.SQLiteCacheMB = other.Store.SQLiteCacheMB
	}

	if other.Chunking.TargetBytes != 0 {
		c.Chunking.TargetBytes = other.Chunking.TargetBytes
	}
	if other.Chunking.LineWindowSize != 0 {
		c.Chunking.LineWindowSize = other.Chunking.LineWindowSize
	}
	if other.Chunking.LineWindowOverlap != 0 {
		c.Chunking.LineWindowOverlap = other.Chunking.LineWindowOverlap
	}

	if other.Embeddings.Primary != "" {
		c.Embeddings.Primary = other.Embeddings.Primary
	}
	if other.Embeddings.Fallback != "" {
		c.Embeddings.Fallback = other.Embeddings.Fallback
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.MaxBatchSize != 0 {
		c.Embeddings.MaxBatchSize = other.Embeddings.MaxBatchSize
	}
	if other.Embeddings.WorkerPoolSize != 0 {
		c.Embeddings.WorkerPoolSize = other.Embeddings.WorkerPoolSize
	}
	if other.Embeddings.RemoteEndpoint != "" {
		c.Embeddings.RemoteEndpoint = other.Embeddings.RemoteEndpoint
	}
	if other.Embeddings.BatchTimeout != 0 {
		c.Embeddings.BatchTimeout = other.Embeddings.BatchTimeout
	}

	if other.Orchestrator.ConcurrencyMin != 0 {
		c.Orchestrator.ConcurrencyMin = other.Orchestrator.ConcurrencyMin
	}
	if other.Orchestrator.ConcurrencyMax != 0 {
		c.Orchestrator.ConcurrencyMax = other.Orchestrator.ConcurrencyMax
	}
	if other.Orchestrator.ConcurrencyInitial != 0 {
		c.Orchestrator.ConcurrencyInitial = other.Orchestrator.ConcurrencyInitial
	}
	if other.Orchestrator.TargetLatencyLowMs != 0 {
		c.Orchestrator.TargetLatencyLowMs = other.Orchestrator.TargetLatencyLowMs
	}
	if other.Orchestrator.TargetLatencyHighMs != 0 {
		c.Orchestrator.TargetLatencyHighMs = other.Orchestrator.TargetLatencyHighMs
	}
	if other.Orchestrator.RateLimitCapacity != 0 {
		c.Orchestrator.RateLimitCapacity = other.Orchestrator.RateLimitCapacity
	}
	if other.Orchestrator.RateLimitRefillPerSec != 0 {
		c.Orchestrator.RateLimitRefillPerSec = other.Orchestrator.RateLimitRefillPerSec
	}
	if other.Orchestrator.CircuitMaxFailures != 0 {
		c.Orchestrator.CircuitMaxFailures = other.Orchestrator.CircuitMaxFailures
	}
	if other.Orchestrator.CircuitResetTimeout != 0 {
		c.Orchestrator.CircuitResetTimeout = other.Orchestrator.CircuitResetTimeout
	}
	if other.Orchestrator.CircuitSuccessThreshold != 0 {
		c.Orchestrator.CircuitSuccessThreshold = other.Orchestrator.CircuitSuccessThreshold
	}
	if other.Orchestrator.RetryMaxAttempts != 0 {
		c.Orchestrator.RetryMaxAttempts = other.Orchestrator.RetryMaxAttempts
	}
	if other.Orchestrator.RetryInitialDelay != 0 {
		c.Orchestrator.RetryInitialDelay = other.Orchestrator.RetryInitialDelay
	}
	if other.Orchestrator.RetryMaxDelay != 0 {
		c.Orchestrator.RetryMaxDelay = other.Orchestrator.RetryMaxDelay
	}
	if other.Orchestrator.ResourceSampleInterval != 0 {
		c.Orchestrator.ResourceSampleInterval = other.Orchestrator.ResourceSampleInterval
	}
	if other.Orchestrator.MemoryStopThreshold != 0 {
		c.Orchestrator.MemoryStopThreshold = other.Orchestrator.MemoryStopThreshold
	}
	if other.Orchestrator.MemoryResumeThreshold != 0 {
		c.Orchestrator.MemoryResumeThreshold = other.Orchestrator.MemoryResumeThreshold
	}
	if other.Orchestrator.CPUGuardThreshold != 0 {
		c.Orchestrator.CPUGuardThreshold = other.Orchestrator.CPUGuardThreshold
	}

	if other.Indexer.MaxFiles != 0 {
		c.Indexer.MaxFiles = other.Indexer.MaxFiles
	}
	if other.Indexer.DebounceWindow != 0 {
		c.Indexer.DebounceWindow = other.Indexer.DebounceWindow
	}
	if other.Indexer.BatchSize != 0 {
		c.Indexer.BatchSize = other.Indexer.BatchSize
	}

	if other.Retrieval.ExactScanThreshold != 0 {
		c.Retrieval.ExactScanThreshold = other.Retrieval.ExactScanThreshold
	}
	if other.Retrieval.HopDecay != 0 {
		c.Retrieval.HopDecay = other.Retrieval.HopDecay
	}
	if other.Retrieval.MaxDepth != 0 {
		c.Retrieval.MaxDepth = other.Retrieval.MaxDepth
	}
	if other.Retrieval.MMRLambda != 0 {
		c.Retrieval.MMRLambda = other.Retrieval.MMRLambda
	}
	if other.Retrieval.MMRCriticalCoverage != 0 {
		c.Retrieval.MMRCriticalCoverage = other.Retrieval.MMRCriticalCoverage
	}
	if other.Retrieval.MMRCushion != 0 {
		c.Retrieval.MMRCushion = other.Retrieval.MMRCushion
	}
	if other.Retrieval.MMRFallbackSize != 0 {
		c.Retrieval.MMRFallbackSize = other.Retrieval.MMRFallbackSize
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies CODEINTEL_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODEINTEL_EMBEDDINGS_PRIMARY"); v != "" {
		c.Embeddings.Primary = v
	}
	if v := os.Getenv("CODEINTEL_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CODEINTEL_REMOTE_ENDPOINT"); v != "" {
		c.Embeddings.RemoteEndpoint = v
	}
	if v := os.Getenv("CODEINTEL_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("CODEINTEL_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}

	if v := os.Getenv("CODEINTEL_ORCHESTRATOR_CONCURRENCY_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Orchestrator.ConcurrencyMax = n
		}
	}
	if v := os.Getenv("CODEINTEL_ORCHESTRATOR_CIRCUIT_MAX_FAILURES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Orchestrator.CircuitMaxFailures = n
		}
	}

	if v := os.Getenv("CODEINTEL_RETRIEVAL_MMR_LAMBDA"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 && f <= 1 {
			c.Retrieval.MMRLambda = f
		}
	}
	if v := os.Getenv("CODEINTEL_RETRIEVAL_HOP_DECAY"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 && f <= 1 {
			c.Retrieval.HopDecay = f
		}
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// DetectProjectType detects the project type based on marker files.
// Priority: go.mod > package.json > pyproject.toml/requirements.txt
func DetectProjectType(dir string) ProjectType {
	if fileExists(filepath.Join(dir, "go.mod")) {
		return ProjectTypeGo
	}

	if fileExists(filepath.Join(dir, "package.json")) {
		return ProjectTypeNode
	}

	if fileExists(filepath.Join(dir, "pyproject.toml")) ||
		fileExists(filepath.Join(dir, "requirements.txt")) {
		return ProjectTypePython
	}

	return ProjectTypeUnknown
}

// FindProjectRoot finds the project root directory.
// It looks for a .git directory or .codeintel.yaml/.yml file by walking up
// the directory tree.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		if fileExists(filepath.Join(currentDir, ".codeintel.yaml")) ||
			fileExists(filepath.Join(currentDir, ".codeintel.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// DiscoverSourceDirs discovers common source directories in the project.
func DiscoverSourceDirs(dir string) []string {
	commonSourceDirs := []string{"src", "lib", "pkg", "internal", "cmd"}
	frameworkDirs := []string{"app", "pages"}

	var found []string

	for _, d := range commonSourceDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}

	if isNextJS(dir) {
		for _, d := range frameworkDirs {
			if dirExists(filepath.Join(dir, d)) {
				found = append(found, d)
			}
		}
	}

	return found
}

// DiscoverDocsDirs discovers documentation directories in the project.
func DiscoverDocsDirs(dir string) []string {
	commonDocDirs := []string{"docs", "doc"}
	commonDocFiles := []string{"README.md", "readme.md", "README.markdown"}

	var found []string

	for _, d := range commonDocDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}

	for _, f := range commonDocFiles {
		if fileExists(filepath.Join(dir, f)) {
			found = append(found, f)
			break
		}
	}

	return found
}

// isNextJS checks if the project is a Next.js project.
func isNextJS(dir string) bool {
	pkgPath := filepath.Join(dir, "package.json")
	if !fileExists(pkgPath) {
		return false
	}

	data, err := os.ReadFile(pkgPath)
	if err != nil {
		return false
	}

	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}

	_, hasNext := pkg.Dependencies["next"]
	_, hasNextDev := pkg.DevDependencies["next"]
	return hasNext || hasNextDev
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// String returns a string representation of ProjectType.
func (p ProjectType) String() string {
	return string(p)
}

// IsKnown returns true if the project type is known (not unknown).
func (p ProjectType) IsKnown() bool {
	return p != ProjectTypeUnknown
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Orchestrator.ConcurrencyMin < 1 {
		return fmt.Errorf("orchestrator.concurrency_min must be >= 1, got %d", c.Orchestrator.ConcurrencyMin)
	}
	if c.Orchestrator.ConcurrencyMax < c.Orchestrator.ConcurrencyMin {
		return fmt.Errorf("orchestrator.concurrency_max must be >= concurrency_min, got %d < %d",
			c.Orchestrator.ConcurrencyMax, c.Orchestrator.ConcurrencyMin)
	}
	if c.Orchestrator.MemoryStopThreshold <= c.Orchestrator.MemoryResumeThreshold {
		return fmt.Errorf("orchestrator.memory_stop_threshold must be > memory_resume_threshold, got %f <= %f",
			c.Orchestrator.MemoryStopThreshold, c.Orchestrator.MemoryResumeThreshold)
	}

	if c.Retrieval.MMRLambda < 0 || c.Retrieval.MMRLambda > 1 {
		return fmt.Errorf("retrieval.mmr_lambda must be between 0 and 1, got %f", c.Retrieval.MMRLambda)
	}
	if c.Retrieval.MMRCriticalCoverage < 0 || c.Retrieval.MMRCriticalCoverage > 1 {
		return fmt.Errorf("retrieval.mmr_critical_coverage must be between 0 and 1, got %f", c.Retrieval.MMRCriticalCoverage)
	}
	if c.Retrieval.HopDecay <= 0 || c.Retrieval.HopDecay > 1 {
		return fmt.Errorf("retrieval.hop_decay must be in (0, 1], got %f", c.Retrieval.HopDecay)
	}
	if math.IsNaN(c.Retrieval.MMRCushion) || c.Retrieval.MMRCushion < 0 || c.Retrieval.MMRCushion > 1 {
		return fmt.Errorf("retrieval.mmr_cushion must be between 0 and 1, got %f", c.Retrieval.MMRCushion)
	}

	validProviders := map[string]bool{"worker-pool": true, "remote-http": true, "": true}
	if !validProviders[strings.ToLower(c.Embeddings.Primary)] {
		return fmt.Errorf("embeddings.primary must be 'worker-pool', 'remote-http', or empty, got %s", c.Embeddings.Primary)
	}

	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// MergeNewDefaults adds new default fields while preserving existing values.
// Returns a list of field names that were added with their default values.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	if c.Orchestrator.CircuitSuccessThreshold == 0 {
		c.Orchestrator.CircuitSuccessThreshold = defaults.Orchestrator.CircuitSuccessThreshold
		added = append(added, "orchestrator.circuit_success_threshold")
	}
	if c.Retrieval.MMRCushion == 0 {
		c.Retrieval.MMRCushion = defaults.Retrieval.MMRCushion
		added = append(added, "retrieval.mmr_cushion")
	}
	if c.Store.SQLiteCacheMB == 0 {
		c.Store.SQLiteCacheMB = defaults.Store.SQLiteCacheMB
		added = append(added, "store.sqlite_cache_mb")
	}

	return added
}
