package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"notechat/internal/logger"
	"notechat/internal/settings"
	"notechat/internal/stringprocessing"
	"notechat/internal/version"
	"notechat/pkg/chattypes"
)

// ConfigFileName is the settings file inside the configuration directory.
const ConfigFileName = "config.yaml"

// ConfigurationService owns the plugin-wide settings and the API keys.
// Settings are read from a YAML file through viper and published as an
// immutable snapshot; a reload swaps the snapshot atomically, so an operation
// that captured one keeps seeing consistent values.
// API keys come from the process environment, a local .env file and a .env
// file in the configuration directory, in that priority order.
type ConfigurationService struct {
	initialized bool
	configDir   string
	workDir     string

	mu       sync.Mutex
	v        *viper.Viper
	snapshot atomic.Pointer[settings.Settings]

	localEnv  map[string]string
	configEnv map[string]string
}

// NewConfigurationService creates a ConfigurationService. An empty configDir
// means the user configuration directory; an empty workDir means the working directory.
func NewConfigurationService(configDir, workDir string) *ConfigurationService {
	return &ConfigurationService{
		configDir: configDir,
		workDir:   workDir,
	}
}

// Name returns the service name "configuration" for registration.
func (c *ConfigurationService) Name() string {
	return "configuration"
}

// Initialize loads the settings file and the .env files.
func (c *ConfigurationService) Initialize() error {
	if c.initialized {
		return nil
	}
	logger.ServiceOperation("configuration", "initialize", "starting")

	if c.configDir == "" {
		userDir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("failed to locate configuration directory: %w", err)
		}
		c.configDir = filepath.Join(userDir, "notechat")
	}
	if c.workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		c.workDir = wd
	}

	c.v = viper.New()
	c.v.SetConfigFile(c.ConfigPath())
	c.v.SetConfigType("yaml")
	setSettingsDefaults(c.v)

	if err := c.reload(); err != nil {
		return err
	}

	var err error
	if c.configEnv, err = readDotEnv(filepath.Join(c.configDir, ".env")); err != nil {
		return fmt.Errorf("failed to load config .env: %w", err)
	}
	if c.localEnv, err = readDotEnv(filepath.Join(c.workDir, ".env")); err != nil {
		return fmt.Errorf("failed to load local .env: %w", err)
	}

	c.initialized = true
	logger.ServiceOperation("configuration", "initialize", "completed", "config", c.ConfigPath())
	return nil
}

// ConfigPath returns the settings file path.
func (c *ConfigurationService) ConfigPath() string {
	return filepath.Join(c.configDir, ConfigFileName)
}

// Settings returns the current settings snapshot.
func (c *ConfigurationService) Settings() settings.Settings {
	if s := c.snapshot.Load(); s != nil {
		return *s
	}
	return settings.Defaults()
}

// Reload re-reads the settings file and swaps the snapshot.
func (c *ConfigurationService) Reload() error {
	if !c.initialized {
		return fmt.Errorf("configuration service not initialized")
	}
	return c.reload()
}

func (c *ConfigurationService) reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.ConfigPath()); err == nil {
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read settings %s: %w", c.ConfigPath(), err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat settings %s: %w", c.ConfigPath(), err)
	}

	return c.publishLocked()
}

func (c *ConfigurationService) publishLocked() error {
	var s settings.Settings
	if err := c.v.Unmarshal(&s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if s.Providers == nil {
		s.Providers = map[string]settings.ProviderSettings{}
	}
	if s.MinVersion != "" {
		ok, err := version.Satisfies(">= " + s.MinVersion)
		if err != nil {
			return fmt.Errorf("invalid min_version: %w", err)
		}
		if !ok {
			return fmt.Errorf("settings require notechat %s or newer, running %s", s.MinVersion, version.GetVersion())
		}
	}
	c.snapshot.Store(&s)
	logger.Debug("Settings snapshot published", "default_llm", s.DefaultLLM, "chat_folder", s.ChatFolder)
	return nil
}

// Set changes a settings key and writes the settings file. The value is
// parsed as YAML, so "2" and "[a, b]" keep their types; boolean keys also
// accept "yes", "on" and "enabled".
func (c *ConfigurationService) Set(key, value string) error {
	if !c.initialized {
		return fmt.Errorf("configuration service not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var parsed interface{}
	if _, isBool := c.v.Get(key).(bool); isBool {
		parsed = stringprocessing.IsTruthy(value)
	} else if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}

	c.v.Set(key, parsed)
	if err := c.publishLocked(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	if err := os.MkdirAll(c.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create configuration directory: %w", err)
	}
	if err := c.v.WriteConfigAs(c.ConfigPath()); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	logger.Debug("Setting saved", "key", key, "file", c.ConfigPath())
	return nil
}

// AllSettings returns every settings key with its current value, sorted by key.
func (c *ConfigurationService) AllSettings() []string {
	c.mu.Lock()
	keys := c.v.AllKeys()
	values := make(map[string]interface{}, len(keys))
	for _, key := range keys {
		values[key] = c.v.Get(key)
	}
	c.mu.Unlock()

	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s = %v", key, values[key]))
	}
	return lines
}

// Watch reloads the snapshot whenever the settings file changes on disk.
// Nothing is watched while the configuration directory does not exist.
func (c *ConfigurationService) Watch() {
	if !c.initialized {
		logger.Warn("Settings watch requested before initialization")
		return
	}
	if info, err := os.Stat(c.configDir); err != nil || !info.IsDir() {
		logger.Debug("Settings directory missing, not watching", "dir", c.configDir)
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := c.reload(); err != nil {
			logger.Warn("Settings reload failed", "file", e.Name, "error", err)
			return
		}
		logger.Info("Settings reloaded", "file", e.Name)
	})
	c.v.WatchConfig()
	logger.Debug("Watching settings", "file", c.ConfigPath())
}

// GetAPIKey returns the API key for a provider. Process environment wins over
// the local .env file, which wins over the configuration directory's .env.
func (c *ConfigurationService) GetAPIKey(provider string) (string, error) {
	if !c.initialized {
		return "", fmt.Errorf("configuration service not initialized")
	}

	names := apiKeyNames(provider)
	for _, source := range []func(string) string{
		os.Getenv,
		func(key string) string { return c.localEnv[key] },
		func(key string) string { return c.configEnv[key] },
	} {
		for _, name := range names {
			if value := strings.TrimSpace(source(name)); value != "" {
				logger.Debug("API key found for provider", "provider", provider, "env_var", name)
				return value, nil
			}
		}
	}

	return "", fmt.Errorf("API key not configured for provider %s (expected %s)", provider, strings.Join(names, " or "))
}

// apiKeyNames lists the variables an API key for provider may be stored in.
func apiKeyNames(provider string) []string {
	upper := strings.ToUpper(strings.ReplaceAll(provider, "-", "_"))
	names := []string{"NOTECHAT_" + upper + "_API_KEY", upper + "_API_KEY"}
	if chattypes.LLM(provider) == chattypes.LLMGemini {
		names = append(names, "GOOGLE_API_KEY")
	}
	return names
}

func readDotEnv(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	envMap, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse .env file %s: %w", path, err)
	}
	return envMap, nil
}

func setSettingsDefaults(v *viper.Viper) {
	d := settings.Defaults()
	v.SetDefault("default_llm", d.DefaultLLM)
	v.SetDefault("chat_folder", d.ChatFolder)
	v.SetDefault("chat_template_folder", d.ChatTemplateFolder)
	v.SetDefault("default_chat_frontmatter", d.DefaultChatFrontmatter)
	v.SetDefault("auto_infer_title", d.AutoInferTitle)
	v.SetDefault("date_format", d.DateFormat)
	v.SetDefault("heading_level", d.HeadingLevel)
	v.SetDefault("infer_title_language", d.InferTitleLanguage)
}
