package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "GROUPLAN_"

type Application struct {
	Host      string    `koanf:"host"`
	Listen    string    `koanf:"listen"`
	System    System    `koanf:"system"`
	Database  Database  `koanf:"db"`
	Storage   Storage   `koanf:"storage"`
	RateLimit RateLimit `koanf:"ratelimit"`
}

// System holds the static identity of the deployment. It is read once at start-up.
type System struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
	// AdminUuid is always treated as an administrator, whatever role the users table holds.
	AdminUuid string `koanf:"adminuuid"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
}

type Storage struct {
	ImageDir      string `koanf:"imagedir"`
	MaxImageBytes int    `koanf:"maximagebytes"`
}

type RateLimit struct {
	Enabled   bool `koanf:"enabled"`
	PerMinute int  `koanf:"perminute"`
	Burst     int  `koanf:"burst"`
}

func Defaults() Application {
	return Application{
		Host:   "http://localhost:3000",
		Listen: ":8181",
		System: System{
			Name:    "grouplan",
			Version: "dev",
		},
		Database: Database{
			Host:   "localhost",
			Port:   5432,
			User:   "grouplan",
			Pass:   "",
			Name:   "grouplan",
			Schema: "grouplan",
		},
		Storage: Storage{
			ImageDir:      "storage/images",
			MaxImageBytes: 5 << 20,
		},
		RateLimit: RateLimit{
			Enabled:   true,
			PerMinute: 120,
			Burst:     120,
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, envPrefix)), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}
