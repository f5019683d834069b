/*
 * This file is part of Artiswarm.
 *
 * Artiswarm is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * Artiswarm is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with Artiswarm.  If not, see <http://www.gnu.org/licenses/>.
 */

package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// EnvConfigFile overrides the default config file location.
const EnvConfigFile = "ARTISWARM_CONFIG"

var (
	configFile = "config.json"
	fileSet    bool
	config     Map
	once       sync.Once
)

type Map map[string]interface{}

// SetFile changes the file read on first access. It has no effect once any getter was called.
func SetFile(path string) {
	configFile = path
	fileSet = true
}

func Get(s string, defaultValue string) (string, bool) {
	once.Do(readConfig)
	return config.Get(s, defaultValue)
}

func GetBool(s string, defaultValue bool) (bool, bool) {
	once.Do(readConfig)
	return config.GetBool(s, defaultValue)
}

func GetInt(s string, defaultValue int) (int, bool) {
	once.Do(readConfig)
	return config.GetInt(s, defaultValue)
}

func Section(s string) Map {
	once.Do(readConfig)
	return config.Section(s)
}

func (m Map) Get(s string, defaultValue string) (string, bool) {
	if result, exists := m[s].(string); exists {
		return result, true
	}

	return defaultValue, false
}

func (m Map) GetInt(s string, defaultValue int) (int, bool) {
	if result, exists := m[s].(json.Number); exists {
		res, _ := result.Int64()
		return int(res), true
	}

	return defaultValue, false
}

func (m Map) GetBool(s string, defaultValue bool) (bool, bool) {
	if result, exists := m[s].(bool); exists {
		return result, true
	}

	return defaultValue, false
}

// GetDuration reads a number of seconds.
func (m Map) GetDuration(s string, defaultValue time.Duration) (time.Duration, bool) {
	if result, exists := m[s].(json.Number); exists {
		if f, err := result.Float64(); err == nil {
			return time.Duration(f * float64(time.Second)), true
		}
	}

	return defaultValue, false
}

// GetStrings reads a list of strings; a single string is treated as a one-element list.
func (m Map) GetStrings(s string, defaultValue []string) ([]string, bool) {
	switch v := m[s].(type) {
	case string:
		return []string{v}, true
	case []interface{}:
		result := make([]string, 0, len(v))

		for _, item := range v {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}

		return result, true
	}

	return defaultValue, false
}

func (m Map) Section(s string) Map {
	result, _ := m[s].(map[string]interface{})
	return result
}

func readConfig() {
	if path := os.Getenv(EnvConfigFile); path != "" && !fileSet {
		configFile = path
	}

	f, err := os.Open(configFile)
	if err != nil {
		slog.Warn("unable to open config file, defaults will be used", "file", configFile, "err", err)
		return
	}

	defer f.Close()

	decoder := json.NewDecoder(f)
	decoder.UseNumber()

	if err = decoder.Decode(&config); err != nil {
		slog.Error("can not parse config file, defaults will be used", "file", configFile, "err", err)
		return
	}
}
