package config

import (
	"errors"
	"io/fs"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// DefaultFile is where the CLI looks for a config when none is given
const DefaultFile = "imgmin.yaml"

type Config struct {
	Compressor Compressor `yaml:"compressor"`
	UI         UI         `yaml:"ui"`
	Logger     Logger     `yaml:"logger"`
	Server     Server     `yaml:"server"`
}

// Compressor selects the compression engine. Wasm takes precedence over Binary when set.
type Compressor struct {
	Binary           string `yaml:"binary"`
	Wasm             string `yaml:"wasm"`
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`
	DefaultFile      string `yaml:"default_file"`
}

type UI struct {
	Modes        []string `yaml:"modes"`
	DefaultMode  string   `yaml:"default_mode"`
	Progressive  bool     `yaml:"progressive"`
	AutoDownload bool     `yaml:"auto_download"`
	OutputDir    string   `yaml:"output_dir"`
}

type Logger struct {
	Project string `yaml:"project"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	File    string `yaml:"file"`
}

type Server struct {
	Addr           string `yaml:"addr"`
	Port           string `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// Address joins Addr and Port
func (s Server) Address() string {
	return s.Addr + ":" + s.Port
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Compressor: Compressor{
			Binary:      "ect",
			DefaultFile: "input.png",
		},
		UI: UI{
			Modes:       []string{"9", "5", "1", "strip"},
			DefaultMode: "9",
		},
		Logger: Logger{
			Project: "imgmin",
			Level:   "info",
			Format:  "console",
		},
		Server: Server{
			Addr:           "127.0.0.1",
			Port:           "8080",
			MaxUploadBytes: 32 << 20,
		},
	}
}

func LoadConfig(filename string, cfg interface{}) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return err
	}

	return nil
}

// Load reads filename over the defaults. A missing file is only an error
// when it was asked for explicitly, not for the default path.
func Load(filename string) (Config, error) {
	cfg := Default()
	if filename == "" {
		filename = DefaultFile
	}

	err := LoadConfig(filename, &cfg)
	if errors.Is(err, fs.ErrNotExist) && filename == DefaultFile {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	if !slices.Contains(cfg.UI.Modes, cfg.UI.DefaultMode) && len(cfg.UI.Modes) > 0 {
		cfg.UI.DefaultMode = cfg.UI.Modes[0]
	}
	return cfg, nil
}
