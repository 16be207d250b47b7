package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
)

func writeTemp(c *qt.C, content string) string {
	dir := c.Mkdir()
	path := filepath.Join(dir, "config.yaml")
	c.Assert(ioutil.WriteFile(path, []byte(content), 0o644), qt.IsNil)
	return path
}

func TestLoadValidConfig(t *testing.T) {
	c := qt.New(t)
	path := writeTemp(c, `
timezone: UTC
storage: memory
bakeries:
  - id: 1
    bread_type_ids: [1, 2]
    prep_time_per_bread: [30, 45]
    baking_time_s: 60
    timeout_s: 15
`)
	cfg, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Bakeries, qt.HasLen, 1)
	c.Assert(cfg.Bakeries[0].BakingTimeS, qt.Equals, 60)
	c.Assert(cfg.Location().String(), qt.Equals, "UTC")
}

func TestLoadDefaultsTimezoneAndStorage(t *testing.T) {
	c := qt.New(t)
	path := writeTemp(c, `
bakeries:
  - id: 1
    bread_type_ids: [1]
    prep_time_per_bread: [30]
    baking_time_s: 60
`)
	cfg, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Timezone, qt.Equals, "Asia/Tehran")
	c.Assert(cfg.Storage, qt.Equals, "memory")
}

func TestLoadRejectsMismatchedPrepTimes(t *testing.T) {
	c := qt.New(t)
	path := writeTemp(c, `
bakeries:
  - id: 1
    bread_type_ids: [1, 2]
    prep_time_per_bread: [30]
    baking_time_s: 60
`)
	_, err := Load(path)
	c.Assert(err, qt.ErrorMatches, ".*prep_time_per_bread must align with bread_type_ids.*")
}

func TestLoadRejectsDuplicateBakeryID(t *testing.T) {
	c := qt.New(t)
	path := writeTemp(c, `
bakeries:
  - id: 1
    bread_type_ids: [1]
    prep_time_per_bread: [30]
    baking_time_s: 60
  - id: 1
    bread_type_ids: [1]
    prep_time_per_bread: [30]
    baking_time_s: 60
`)
	_, err := Load(path)
	c.Assert(err, qt.ErrorMatches, ".*duplicate bakery id.*")
}

func TestLoadRejectsNonIntegerID(t *testing.T) {
	c := qt.New(t)
	path := writeTemp(c, `
bakeries:
  - id: "not-a-number"
    bread_type_ids: [1]
    prep_time_per_bread: [30]
    baking_time_s: 60
`)
	_, err := Load(path)
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestLoadMissingFile(t *testing.T) {
	c := qt.New(t)
	_, err := Load(filepath.Join(os.TempDir(), "does-not-exist.yaml"))
	c.Assert(err, qt.ErrorMatches, "cannot read config file.*")
}
