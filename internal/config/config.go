// Package config provides XML or YAML configuration for the upload backend.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"HomeworkLens" yaml:"-"`

	// Server configuration
	Server ServerConfig `xml:"Server" yaml:"server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage" yaml:"storage"`

	// Processing configuration
	Processing ProcessingConfig `xml:"Processing" yaml:"processing"`

	// Remote workflow configuration
	Workflow WorkflowConfig `xml:"Workflow" yaml:"workflow"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced" yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port" yaml:"port"`
	BindAddress  string `xml:"BindAddress" yaml:"bindAddress"`
	EnableCORS   bool   `xml:"EnableCORS" yaml:"enableCors"`
	AllowOrigins string `xml:"AllowOrigins" yaml:"allowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds" yaml:"readTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds" yaml:"writeTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds" yaml:"idleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit" yaml:"bodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory     string `xml:"DataDirectory" yaml:"dataDirectory"`
	UploadsDirectory  string `xml:"UploadsDirectory" yaml:"uploadsDirectory"`
	ManifestFile      string `xml:"ManifestFile" yaml:"manifestFile"`
	EnablePersistence bool   `xml:"EnablePersistence" yaml:"enablePersistence"`

	// AllowedSourceRoots lists the directories HTTP callers may cache local
	// files from. Empty means no local file access.
	AllowedSourceRoots []string `xml:"AllowedSourceRoots>Root" yaml:"allowedSourceRoots"`
	// AllowRemoteSources lets HTTP callers cache http and https URLs.
	AllowRemoteSources bool `xml:"AllowRemoteSources" yaml:"allowRemoteSources"`
}

// ProcessingConfig contains ingestion settings
type ProcessingConfig struct {
	BatchPolicy         string `xml:"BatchPolicy" yaml:"batchPolicy"`
	MaxConcurrentCaches int    `xml:"MaxConcurrentCaches" yaml:"maxConcurrentCaches"`
	FetchTimeoutSeconds int    `xml:"FetchTimeoutSeconds" yaml:"fetchTimeoutSeconds"`
}

// WorkflowConfig points at the remote correction workflow
type WorkflowConfig struct {
	APIURL                string `xml:"ApiURL" yaml:"apiUrl"`
	APIKey                string `xml:"ApiKey" yaml:"apiKey"`
	WorkflowID            string `xml:"WorkflowID" yaml:"workflowId"`
	RequestTimeoutSeconds int    `xml:"RequestTimeoutSeconds" yaml:"requestTimeoutSeconds"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel" yaml:"logLevel"`
	LogFormat            string `xml:"LogFormat" yaml:"logFormat"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging" yaml:"enableRequestLogging"`
}

// MissingConfigError names a required setting that is empty.
type MissingConfigError struct {
	Key string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("missing configuration: %s", e.Key)
}

// Validate checks that every value needed to call the workflow is set.
func (w WorkflowConfig) Validate() error {
	switch {
	case w.APIURL == "":
		return &MissingConfigError{Key: EnvWorkflowAPIURL}
	case w.APIKey == "":
		return &MissingConfigError{Key: EnvWorkflowAPIKey}
	case w.WorkflowID == "":
		return &MissingConfigError{Key: EnvWorkflowID}
	}
	return nil
}

// Environment variables that override the configuration file.
const (
	EnvPort           = "PORT"
	EnvDataDir        = "DATA_DIR"
	EnvWorkflowAPIURL = "WORKFLOW_API_URL"
	EnvWorkflowAPIKey = "WORKFLOW_API_KEY"
	EnvWorkflowID     = "WORKFLOW_ID"
	EnvConfigPath     = "HOMEWORK_LENS_CONFIG"
)

// DefaultFileName is the config file looked up beside the executable.
const DefaultFileName = "homework-lens.config"

// legacyWorkflowEnv maps the mobile app's variable names onto ours.
var legacyWorkflowEnv = map[string]string{
	EnvWorkflowAPIURL: "EXPO_PUBLIC_DIFY_API_URL",
	EnvWorkflowAPIKey: "EXPO_PUBLIC_DIFY_API_KEY",
	EnvWorkflowID:     "EXPO_PUBLIC_DIFY_WORKFLOW_ID",
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "127.0.0.1",
			EnableCORS:   true,
			AllowOrigins: "",
			ReadTimeout:  30,
			WriteTimeout: 120,
			IdleTimeout:  120,
			BodyLimit:    "64M",
		},
		Storage: StorageConfig{
			DataDirectory:     "./data",
			UploadsDirectory:  "./data/uploads",
			ManifestFile:      "./data/uploads.manifest",
			EnablePersistence: true,
		},
		Processing: ProcessingConfig{
			BatchPolicy:         "all-or-nothing",
			MaxConcurrentCaches: 4,
			FetchTimeoutSeconds: 30,
		},
		Workflow: WorkflowConfig{
			RequestTimeoutSeconds: 120,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			LogFormat:            "text",
			EnableRequestLogging: true,
		},
	}
}

// Load loads configuration from an XML or YAML file, chosen by extension.
// A missing file is created with defaults.
func Load(configPath string) (*AppConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(configPath) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = xml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration in the format implied by the file extension
func (c *AppConfig) Save(configPath string) error {
	var content []byte
	if isYAML(configPath) {
		out, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		content = append([]byte("# Homework Lens upload backend configuration\n"), out...)
	} else {
		out, err := xml.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		header := []byte(xml.Header + "\n<!-- Homework Lens upload backend configuration -->\n\n")
		content = append(header, out...)
	}

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv(EnvPort); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv(EnvDataDir); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.ManifestFile = filepath.Join(dataDir, "uploads.manifest")
	}

	if v := lookupWorkflowEnv(EnvWorkflowAPIURL); v != "" {
		c.Workflow.APIURL = v
	}
	if v := lookupWorkflowEnv(EnvWorkflowAPIKey); v != "" {
		c.Workflow.APIKey = v
	}
	if v := lookupWorkflowEnv(EnvWorkflowID); v != "" {
		c.Workflow.WorkflowID = v
	}
}

func lookupWorkflowEnv(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return os.Getenv(legacyWorkflowEnv[key])
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	paths := []*string{&c.Storage.DataDirectory, &c.Storage.UploadsDirectory, &c.Storage.ManifestFile}
	for i := range c.Storage.AllowedSourceRoots {
		paths = append(paths, &c.Storage.AllowedSourceRoots[i])
	}
	for _, p := range paths {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetAllowOrigins returns the configured CORS origins. An empty result means
// cross-origin requests are not allowed.
func (c *AppConfig) GetAllowOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.Server.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.DataDirectory, c.Storage.UploadsDirectory} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ResolvePath picks the config file location: explicit wins, then
// HOMEWORK_LENS_CONFIG, then DefaultFileName beside the executable.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	exePath, err := os.Executable()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(filepath.Dir(exePath), DefaultFileName)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
