package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
)

type Config struct {
	InputPath string
	OutputDir string
	Overwrite bool
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if c.OutputDir == "" {
		return errors.New("missing -out")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		OutputDir: "messages",
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Path to the mbox export of sent mail")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Directory to write per-message .eml files into (usable as voicepackd --source-dir)")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing output files")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.InputPath != "" {
		cfg.InputPath = filepath.Clean(cfg.InputPath)
	}
	cfg.OutputDir = filepath.Clean(cfg.OutputDir)
	return cfg, nil
}
