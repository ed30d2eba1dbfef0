package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"gamepause/internal/hotkeys"
	"gamepause/internal/process"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	// Windows file lock releases (antivirus/indexing) typically settle quickly.
	// Use a short linear backoff: baseDelay * (1..maxRenameRetry).
	renameRetryBaseDelay = 10 * time.Millisecond

	minPollInterval = 100 * time.Millisecond
	maxPollInterval = time.Minute

	// MinimizeOnPauseKey is the boolean-as-string flag stored alongside the
	// hotkey combos.
	MinimizeOnPauseKey = "minimize_on_pause"

	defaultPathDBName = "paths.db"
)

var userHomeDirFn = os.UserHomeDir
var yamlUnmarshalProbeFn = func(raw []byte, out *rawStatusFeedEnabledProbe) error {
	return yaml.Unmarshal(raw, out)
}
var defaultPathWarningState struct {
	mu       sync.Mutex
	messages []string
}

func recordDefaultPathWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	defaultPathWarningState.mu.Lock()
	defaultPathWarningState.messages = append(defaultPathWarningState.messages, trimmed)
	defaultPathWarningState.mu.Unlock()
}

// ConsumeDefaultPathWarnings returns and clears path-resolution warnings
// accumulated during DefaultPath() calls.
func ConsumeDefaultPathWarnings() []string {
	defaultPathWarningState.mu.Lock()
	defer defaultPathWarningState.mu.Unlock()
	if len(defaultPathWarningState.messages) == 0 {
		return nil
	}
	out := make([]string, len(defaultPathWarningState.messages))
	copy(out, defaultPathWarningState.messages)
	defaultPathWarningState.messages = nil
	return out
}

// StatusFeedConfig controls the local WebSocket status feed.
type StatusFeedConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Addr is the listen address. Port 0 lets the OS assign one.
	Addr string `yaml:"addr" json:"addr"`
}

// Config is gamepause runtime configuration.
type Config struct {
	// Hotkeys is a flat mapping from action name to a combo string, plus
	// boolean-as-string flags such as minimize_on_pause. Unknown keys are
	// preserved on save.
	Hotkeys map[string]string `yaml:"hotkeys" json:"hotkeys"`
	// Targets lists the executable names the user switches between.
	Targets []string `yaml:"targets" json:"targets"`
	// Selected is the target hotkeys act on. Always one of Targets when
	// Targets is non-empty.
	Selected string `yaml:"selected" json:"selected"`
	// SuspendTool is the suspend utility file name or absolute path.
	SuspendTool  string           `yaml:"suspend_tool" json:"suspend_tool"`
	PollInterval time.Duration    `yaml:"poll_interval" json:"poll_interval"`
	StatusFeed   StatusFeedConfig `yaml:"status_feed" json:"status_feed"`
	// PathDB is the sqlite file holding learned executable paths. Empty
	// means paths.db next to the config file.
	PathDB string `yaml:"path_db,omitempty" json:"path_db,omitempty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	keys := map[string]string{MinimizeOnPauseKey: "true"}
	for action, combo := range hotkeys.DefaultBindings() {
		keys[string(action)] = combo
	}
	return Config{
		Hotkeys:      keys,
		Targets:      []string{},
		SuspendTool:  process.DefaultSuspendTool,
		PollInterval: time.Second,
		StatusFeed: StatusFeedConfig{
			Enabled: true,
			Addr:    "127.0.0.1:0",
		},
	}
}

// DefaultPath resolves the config file path, preferring LOCALAPPDATA over
// APPDATA, falling back to ~/.config when both are unset, and then to
// os.TempDir() if the home directory cannot be resolved.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			// Keep config path resolvable even in restricted environments.
			slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
			recordDefaultPathWarning(
				"Config path fallback: failed to resolve LOCALAPPDATA/APPDATA/home directory. Using temp directory; settings persistence may be limited.",
			)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "gamepause", "config.yaml")
}

// PathDBPath returns the sqlite path for cfg loaded from configPath.
func PathDBPath(cfg Config, configPath string) string {
	if strings.TrimSpace(cfg.PathDB) != "" {
		return cfg.PathDB
	}
	return filepath.Join(filepath.Dir(configPath), defaultPathDBName)
}

// Load reads config file. If file does not exist, defaults are returned.
// Parse failures return the defaults together with the error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	// Decode into a zero Config so that absent keys are distinguishable
	// from explicit values; defaults are applied afterwards.
	var parsed Config
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), err
	}
	hasFeedEnabled, probeErr := probeRawStatusFeedEnabled(raw)
	if probeErr != nil {
		slog.Warn("[WARN-CONFIG] failed to resolve status_feed.enabled metadata, preserving parsed value", "error", probeErr)
	} else if !hasFeedEnabled {
		parsed.StatusFeed.Enabled = DefaultConfig().StatusFeed.Enabled
	}
	if err := applyDefaultsAndValidate(&parsed); err != nil {
		return parsed, err
	}
	return parsed, nil
}

// EnsureFile writes default config if missing and returns loaded config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Clone returns a deep copy of cfg.
// Use this when sharing config snapshots across goroutines or package boundaries.
func Clone(src Config) Config {
	dst := src
	if src.Hotkeys != nil {
		dst.Hotkeys = maps.Clone(src.Hotkeys)
	}
	if src.Targets != nil {
		dst.Targets = slices.Clone(src.Targets)
	}
	return dst
}

// Save validates cfg, fills defaults, and atomically writes to path.
// Returns the normalized config that was actually written to disk.
func Save(path string, cfg Config) (Config, error) {
	normalizedPath, err := validateConfigPath(path)
	if err != nil {
		return cfg, err
	}
	cfg = Clone(cfg)
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(normalizedPath, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", path)
	return cfg, nil
}

// HotkeyBindings returns the combo for every known action.
func (c Config) HotkeyBindings() hotkeys.Bindings {
	bindings := hotkeys.Bindings{}
	for _, action := range hotkeys.Actions() {
		bindings[action] = strings.TrimSpace(c.Hotkeys[string(action)])
	}
	return bindings
}

// MinimizeOnPause reports the minimize_on_pause flag. Missing or malformed
// values fall back to true.
func (c Config) MinimizeOnPause() bool {
	raw, ok := c.Hotkeys[MinimizeOnPauseKey]
	if !ok {
		return true
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return true
	}
	return v
}

// SetHotkey binds combo to action. Malformed or conflicting combos are
// rejected and the previous value is kept. An empty combo unbinds.
func (c *Config) SetHotkey(action hotkeys.Action, combo string) error {
	if !action.Valid() {
		return fmt.Errorf("unknown hotkey action %q", action)
	}
	combo = strings.TrimSpace(combo)
	if combo != "" {
		binding, err := hotkeys.ParseBinding(combo)
		if err != nil {
			return err
		}
		if hotkeys.DetectConflict(c.HotkeyBindings(), action, combo) {
			return fmt.Errorf("hotkey %s is already bound to another action", binding.Normalized())
		}
		combo = binding.Normalized()
	}
	if c.Hotkeys == nil {
		c.Hotkeys = map[string]string{}
	}
	c.Hotkeys[string(action)] = combo
	return nil
}

// SetMinimizeOnPause stores the minimize_on_pause flag.
func (c *Config) SetMinimizeOnPause(v bool) {
	if c.Hotkeys == nil {
		c.Hotkeys = map[string]string{}
	}
	c.Hotkeys[MinimizeOnPauseKey] = strconv.FormatBool(v)
}

// AddTarget appends name unless an equivalent target is already listed.
// It reports whether the list changed.
func (c *Config) AddTarget(name string) bool {
	name = strings.TrimSpace(name)
	if !process.NewTarget(name).Valid() || c.indexOfTarget(name) >= 0 {
		return false
	}
	c.Targets = append(c.Targets, name)
	if c.Selected == "" {
		c.Selected = name
	}
	return true
}

// RemoveTarget removes name. When it was selected, the first remaining
// target becomes selected.
func (c *Config) RemoveTarget(name string) bool {
	i := c.indexOfTarget(name)
	if i < 0 {
		return false
	}
	removed := c.Targets[i]
	c.Targets = slices.Delete(c.Targets, i, i+1)
	if sameTarget(c.Selected, removed) {
		c.Selected = ""
		if len(c.Targets) > 0 {
			c.Selected = c.Targets[0]
		}
	}
	return true
}

// Select makes name the selected target, adding it to Targets if needed.
func (c *Config) Select(name string) error {
	name = strings.TrimSpace(name)
	if !process.NewTarget(name).Valid() {
		return process.ErrInvalidTarget
	}
	if i := c.indexOfTarget(name); i >= 0 {
		c.Selected = c.Targets[i]
		return nil
	}
	c.Targets = append(c.Targets, name)
	c.Selected = name
	return nil
}

func (c Config) indexOfTarget(name string) int {
	return slices.IndexFunc(c.Targets, func(existing string) bool {
		return sameTarget(existing, name)
	})
}

func sameTarget(a, b string) bool {
	ka := process.NewTarget(a).BaseName()
	return ka != "" && ka == process.NewTarget(b).BaseName()
}

// atomicWrite writes config data using temp-file + rename to avoid partial
// writes and retries rename on Windows to tolerate transient file locks.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	// Atomic write: temp file + rename in same directory ensures
	// same-filesystem rename and prevents partial writes on crash.
	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

func validateConfigPath(path string) (string, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return "", errors.New("config path required")
	}
	absolutePath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return "", fmt.Errorf("save config: resolve path: %w", err)
	}
	return absolutePath, nil
}

// applyDefaultsAndValidate fills missing defaults and validates cfg in-place.
// MUTATES: cfg is directly modified.
// Used by both Load and Save to ensure consistent normalization.
func applyDefaultsAndValidate(cfg *Config) error {
	defaults := DefaultConfig()
	if isZeroConfig(*cfg) {
		*cfg = defaults
		return nil
	}

	normalizeHotkeys(cfg, defaults.Hotkeys)
	normalizeTargets(cfg)

	cfg.SuspendTool = strings.TrimSpace(cfg.SuspendTool)
	if cfg.SuspendTool == "" {
		cfg.SuspendTool = defaults.SuspendTool
	}
	if strings.ContainsRune(cfg.SuspendTool, 0) {
		return errors.New("suspend_tool contains null byte")
	}

	validatePollInterval(cfg, defaults.PollInterval)
	validateStatusFeedAddr(cfg, defaults.StatusFeed.Addr)

	cfg.PathDB = strings.TrimSpace(cfg.PathDB)
	if strings.ContainsRune(cfg.PathDB, 0) {
		return errors.New("path_db contains null byte")
	}
	return nil
}

// normalizeHotkeys lower-cases keys, fills missing actions with defaults and
// keeps unknown keys untouched. Invalid combos are kept so the registration
// result can report them to the user.
func normalizeHotkeys(cfg *Config, defaults map[string]string) {
	normalized := make(map[string]string, len(cfg.Hotkeys)+len(defaults))
	for key, value := range cfg.Hotkeys {
		normalized[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	for key, value := range defaults {
		if _, ok := normalized[key]; !ok {
			normalized[key] = value
		}
	}
	cfg.Hotkeys = normalized

	for _, c := range hotkeys.Conflicts(cfg.HotkeyBindings()) {
		slog.Warn("[WARN-CONFIG] hotkey conflict", "first", c.First, "second", c.Second, "combo", c.Combo)
	}
}

// normalizeTargets trims and de-duplicates targets and keeps Selected in
// the list. An unusable Selected is cleared; the first target is selected
// when none is.
func normalizeTargets(cfg *Config) {
	targets := make([]string, 0, len(cfg.Targets))
	for _, name := range cfg.Targets {
		name = strings.TrimSpace(name)
		if !process.NewTarget(name).Valid() {
			continue
		}
		if slices.ContainsFunc(targets, func(existing string) bool { return sameTarget(existing, name) }) {
			slog.Debug("[DEBUG-CONFIG] duplicate target ignored", "target", name)
			continue
		}
		targets = append(targets, name)
	}
	cfg.Targets = targets

	cfg.Selected = strings.TrimSpace(cfg.Selected)
	if cfg.Selected != "" && !process.NewTarget(cfg.Selected).Valid() {
		slog.Warn("[WARN-CONFIG] invalid selected target ignored", "selected", cfg.Selected)
		cfg.Selected = ""
	}
	if cfg.Selected == "" {
		if len(cfg.Targets) > 0 {
			cfg.Selected = cfg.Targets[0]
		}
		return
	}
	if i := cfg.indexOfTarget(cfg.Selected); i >= 0 {
		cfg.Selected = cfg.Targets[i]
		return
	}
	cfg.Targets = append(cfg.Targets, cfg.Selected)
}

// validatePollInterval resets out-of-range intervals to the default with a
// warning instead of failing, so a bad value never prevents startup.
func validatePollInterval(cfg *Config, fallback time.Duration) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = fallback
		return
	}
	if cfg.PollInterval < minPollInterval || cfg.PollInterval > maxPollInterval {
		slog.Warn("[WARN-CONFIG] poll_interval out of range, falling back to default",
			"configured", cfg.PollInterval, "min", minPollInterval, "max", maxPollInterval, "default", fallback)
		cfg.PollInterval = fallback
	}
}

func validateStatusFeedAddr(cfg *Config, fallback string) {
	addr := strings.TrimSpace(cfg.StatusFeed.Addr)
	if addr == "" {
		cfg.StatusFeed.Addr = fallback
		return
	}
	_, port, err := net.SplitHostPort(addr)
	if err == nil {
		var n int
		n, err = strconv.Atoi(port)
		if err == nil && (n < 0 || n > 65535) {
			err = fmt.Errorf("port %d out of range", n)
		}
	}
	if err != nil {
		slog.Warn("[WARN-CONFIG] status_feed.addr invalid, falling back to default",
			"configured", addr, "default", fallback, "error", err)
		cfg.StatusFeed.Addr = fallback
		return
	}
	cfg.StatusFeed.Addr = addr
}

type rawStatusFeedEnabledProbe struct {
	StatusFeed *struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"status_feed"`
}

// probeRawStatusFeedEnabled reports whether status_feed.enabled is present,
// so that an omitted key takes the default rather than false.
func probeRawStatusFeedEnabled(raw []byte) (bool, error) {
	var probe rawStatusFeedEnabledProbe
	if err := yamlUnmarshalProbeFn(raw, &probe); err != nil {
		return false, err
	}
	if probe.StatusFeed == nil {
		return false, nil
	}
	return probe.StatusFeed.Enabled != nil, nil
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func isZeroConfig(cfg Config) bool {
	// reflect.DeepEqual guards against field-addition drift that manual checks miss.
	return reflect.DeepEqual(cfg, Config{})
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
