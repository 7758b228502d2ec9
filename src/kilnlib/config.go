package kilnlib

import (
	"os"

	"gopkg.in/yaml.v3"
)

type KilnConfig struct {
	RecipesDir    string `yaml:"recipes_dir"`
	SrcCache      string `yaml:"src_cache"`
	BuildDir      string `yaml:"build_dir"`
	StagingDir    string `yaml:"staging_dir"`
	DatabaseRoot  string `yaml:"db_root"`
	LogDir        string `yaml:"log_dir"`
	FetchCmd      string `yaml:"fetch_cmd"`
	Makeflags     string `yaml:"makeflags"`
	StripCmd      string `yaml:"strip_cmd"`
	InstallPrefix string `yaml:"install_prefix"`
	Jobs          int    `yaml:"jobs"`
	Color         *bool  `yaml:"color"`
}

// DefaultConfigPath is used when neither the -c flag nor the KILN_CONFIG
// environment variable is set.
const DefaultConfigPath = "/etc/kiln.conf"

// ReadConfig loads the configuration file at the given path. Every key is
// required; the returned value is never mutated afterwards.
func ReadConfig(configPath string) (*KilnConfig, error) {
	config := &KilnConfig{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	err = yaml.NewDecoder(file).Decode(config)
	if err != nil {
		return nil, err
	}

	// Ensure all required keys are present
	missing := make([]string, 0)
	stringKeys := []struct {
		key   string
		value string
	}{
		{"recipes_dir", config.RecipesDir},
		{"src_cache", config.SrcCache},
		{"build_dir", config.BuildDir},
		{"staging_dir", config.StagingDir},
		{"db_root", config.DatabaseRoot},
		{"log_dir", config.LogDir},
		{"fetch_cmd", config.FetchCmd},
		{"makeflags", config.Makeflags},
		{"strip_cmd", config.StripCmd},
		{"install_prefix", config.InstallPrefix},
	}
	for _, entry := range stringKeys {
		if entry.value == "" {
			missing = append(missing, entry.key)
		}
	}
	if config.Jobs <= 0 {
		missing = append(missing, "jobs")
	}
	if config.Color == nil {
		missing = append(missing, "color")
	}
	if len(missing) != 0 {
		return nil, ConfigErr{missing: missing}
	}

	return config, nil
}

// ColorEnabled reports whether ANSI coloring was requested.
func (config *KilnConfig) ColorEnabled() bool {
	return config.Color != nil && *config.Color
}
