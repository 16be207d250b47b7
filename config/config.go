// Package config loads and validates the static configuration for a
// queue-server process: the bakeries it serves, each one's bread-type
// prep times, and the storage/timezone settings shared across them.
package config

import (
	"io/ioutil"
	"time"

	"github.com/juju/loggo"
	"github.com/juju/schema"
	"gopkg.in/errgo.v1"
	"gopkg.in/juju/environschema.v1"
	"gopkg.in/yaml.v2"
)

var logger = loggo.GetLogger("config")

// BakeryConfig describes one bakery's static bread schedule.
type BakeryConfig struct {
	ID               int   `yaml:"id"`
	BreadTypeIDs     []int `yaml:"bread_type_ids"`
	PrepTimePerBread []int `yaml:"prep_time_per_bread"`
	BakingTimeS      int   `yaml:"baking_time_s"`
	TimeoutS         int   `yaml:"timeout_s"`
}

// Config is the top-level configuration document.
type Config struct {
	// Timezone is the IANA zone used for daily-lifecycle resets. Defaults
	// to Asia/Tehran if empty.
	Timezone string `yaml:"timezone"`

	// Storage selects the journal backend: "memory", "postgres" or
	// "mongo".
	Storage string `yaml:"storage"`

	// DSN is the backend-specific connection string; unused for
	// "memory".
	DSN string `yaml:"dsn"`

	Bakeries []BakeryConfig `yaml:"bakeries"`
}

// bakeryFields describes the shape of one bakery entry, in the same
// environschema.Fields idiom the form package uses to describe
// structured, user-supplied data: a name mapped to a type and whether
// it is required. coerceBakeryFields below walks it the same way
// PromptingFiller walks its fields, applying a juju/schema Checker
// appropriate to each attribute's declared type.
var bakeryFields = environschema.Fields{
	"id": {
		Description: "numeric bakery identifier",
		Type:        environschema.Tint,
		Mandatory:   true,
	},
	"baking_time_s": {
		Description: "oven cycle time in seconds",
		Type:        environschema.Tint,
		Mandatory:   true,
	},
	"timeout_s": {
		Description: "additive padding applied to in-queue wait estimates",
		Type:        environschema.Tint,
	},
}

// coerceBakeryFields checks that each attribute present in raw coerces
// to the type bakeryFields declares for it, the same validation step
// PromptingFiller.prompt applies to a single form answer.
func coerceBakeryFields(raw map[string]interface{}) error {
	for name, attr := range bakeryFields {
		val, ok := raw[name]
		if !ok {
			if attr.Mandatory {
				return errgo.Newf("missing required field %q", name)
			}
			continue
		}
		switch attr.Type {
		case environschema.Tint:
			if _, err := schema.Int().Coerce(val, nil); err != nil {
				return errgo.Notef(err, "field %q", name)
			}
		case environschema.Tbool:
			if _, err := schema.Bool().Coerce(val, nil); err != nil {
				return errgo.Notef(err, "field %q", name)
			}
		}
	}
	return nil
}

// Load reads and validates the configuration document at path.
func Load(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errgo.Notef(err, "cannot read config file %q", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errgo.Notef(err, "cannot parse config file %q", path)
	}

	var doc struct {
		Bakeries []map[string]interface{} `yaml:"bakeries"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errgo.Notef(err, "cannot parse config file %q", path)
	}
	for i, b := range doc.Bakeries {
		if err := coerceBakeryFields(b); err != nil {
			return nil, errgo.Notef(err, "bakery entry %d", i)
		}
	}

	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Tehran"
	}
	if cfg.Storage == "" {
		cfg.Storage = "memory"
	}
	if err := cfg.validate(); err != nil {
		return nil, errgo.Mask(err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errgo.Notef(err, "invalid timezone %q", c.Timezone)
	}
	switch c.Storage {
	case "memory", "postgres", "mongo":
	default:
		return errgo.Newf("unknown storage backend %q", c.Storage)
	}
	if len(c.Bakeries) == 0 {
		return errgo.Newf("config must declare at least one bakery")
	}
	seen := make(map[int]bool)
	for _, b := range c.Bakeries {
		if seen[b.ID] {
			return errgo.Newf("duplicate bakery id %d", b.ID)
		}
		seen[b.ID] = true
		if len(b.BreadTypeIDs) == 0 {
			return errgo.Newf("bakery %d: bread_type_ids must be non-empty", b.ID)
		}
		if len(b.PrepTimePerBread) != len(b.BreadTypeIDs) {
			return errgo.Newf("bakery %d: prep_time_per_bread must align with bread_type_ids", b.ID)
		}
		if b.BakingTimeS <= 0 {
			return errgo.Newf("bakery %d: baking_time_s must be positive", b.ID)
		}
	}
	logger.Infof("loaded config for %d bakeries, storage=%s", len(c.Bakeries), c.Storage)
	return nil
}

// Location returns the configured IANA timezone as a *time.Location.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
