package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port            int         `yaml:"port"`
	Origin          string      `yaml:"origin"`
	Provider        string      `yaml:"provider"`
	DBFile          string      `yaml:"dbFile"`
	Redis           RedisConfig `yaml:"redis"`
	Manifest        string      `yaml:"manifest"`
	DefaultLocale   string      `yaml:"defaultLocale"`
	PreviewToken    string      `yaml:"previewToken"`
	RevalidateToken string      `yaml:"revalidateToken"`
	CatchAllPage    string      `yaml:"catchAllPage"`
	Dev             bool        `yaml:"dev"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
