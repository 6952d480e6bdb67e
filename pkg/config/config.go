package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = "sdb"
	configFile string = "config.yml"

	// DefaultDisassembleCount is the number of instructions printed by
	// the disassemble command when no count is given.
	DefaultDisassembleCount = 5
	// DefaultMemoryReadBytes is the number of bytes printed by the memory
	// read command when no count is given.
	DefaultMemoryReadBytes = 32
	// DefaultHistorySize is the number of commands kept in the history file.
	DefaultHistorySize = 1000
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`

	// DisassembleFlavor is the assembly syntax used by the disassemble
	// command: gnu (the default), intel or go.
	DisassembleFlavor string `yaml:"disassemble-flavor,omitempty"`
	// DisassembleCount is the default number of instructions printed by
	// the disassemble command.
	DisassembleCount *int `yaml:"disassemble-count,omitempty"`
	// MemoryReadBytes is the default number of bytes printed by memory read.
	MemoryReadBytes *int `yaml:"memory-read-bytes,omitempty"`

	// HistorySize is the number of commands kept in the history file.
	HistorySize *int `yaml:"history-size,omitempty"`
}

// GetDisassembleCount returns DisassembleCount or its default.
func (c *Config) GetDisassembleCount() int {
	if c == nil || c.DisassembleCount == nil || *c.DisassembleCount <= 0 {
		return DefaultDisassembleCount
	}
	return *c.DisassembleCount
}

// GetMemoryReadBytes returns MemoryReadBytes or its default.
func (c *Config) GetMemoryReadBytes() int {
	if c == nil || c.MemoryReadBytes == nil || *c.MemoryReadBytes <= 0 {
		return DefaultMemoryReadBytes
	}
	return *c.MemoryReadBytes
}

// GetHistorySize returns HistorySize or its default.
func (c *Config) GetHistorySize() int {
	if c == nil || c.HistorySize == nil || *c.HistorySize <= 0 {
		return DefaultHistorySize
	}
	return *c.HistorySize
}

// LoadConfig attempts to populate a Config object from the config.yml file.
// A commented default file is created if there is none.
func LoadConfig() (*Config, error) {
	err := createConfigPath()
	if err != nil {
		return &Config{}, fmt.Errorf("could not create config directory: %v", err)
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to get config file path: %v", err)
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			return &Config{}, fmt.Errorf("error creating default config file: %v", err)
		}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to read config data: %v", err)
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to decode config file: %v", err)
	}

	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	if err := createConfigPath(); err != nil {
		return err
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for the sdb debugger.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Assembly syntax used by the disassemble command: gnu, intel or go.
# disassemble-flavor: gnu

# Number of instructions printed by disassemble when -c is not given.
# disassemble-count: 5

# Number of bytes printed by memory read when no count is given.
# memory-read-bytes: 32

# Number of commands kept in the history file.
# history-size: 1000
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
// The directory is $XDG_CONFIG_HOME/sdb, or ~/.config/sdb when
// XDG_CONFIG_HOME is not set.
func GetConfigFilePath(file string) (string, error) {
	if configPath := os.Getenv("XDG_CONFIG_HOME"); configPath != "" {
		return path.Join(configPath, configDir, file), nil
	}

	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, ".config", configDir, file), nil
}
