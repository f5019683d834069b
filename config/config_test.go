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
	"os"
	"reflect"
	"testing"
	"time"
)

var configTest Map

func TestMain(m *testing.M) {
	tempPath, err := os.MkdirTemp(os.TempDir(), "artiswarm_config-*")
	if err != nil {
		panic(err)
	}

	if err := os.Chdir(tempPath); err != nil {
		panic(err)
	}

	_ = os.Unsetenv(EnvConfigFile)

	f, err := os.OpenFile("config.json", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		panic(err)
	}

	configTest = make(Map)
	registryConfig := map[string]interface{}{
		"journal":                 "registry.journal",
		"capacity":                json.Number("3"),
		"delete_evicted_torrents": true,
	}
	engineConfig := map[string]interface{}{
		"tracker": "http://127.0.0.1:34000/announce",
		"listen":  []interface{}{"0.0.0.0:6881", "[::]:6881"},
	}
	configTest["registry"] = registryConfig
	configTest["engine"] = engineConfig
	configTest["addr"] = ":34000"
	configTest["numwant"] = json.Number("25")
	configTest["flush"] = json.Number("1.5")
	configTest["watch"] = true

	if err = json.NewEncoder(f).Encode(&configTest); err != nil {
		panic(err)
	}

	_ = f.Close()

	code := m.Run()

	_ = os.Remove("config.json")
	_ = os.RemoveAll(tempPath)

	os.Exit(code)
}

func TestReadConfig(t *testing.T) {
	once.Do(readConfig)

	if config == nil {
		t.Fatalf("Config is nil!")
	}

	if same := reflect.DeepEqual(config, configTest); !same {
		t.Fatalf("Config (%v) was not same as the config that was written (%v)!", config, configTest)
	}
}

func TestGet(t *testing.T) {
	got, exists := Get("addr", "")
	expected := configTest["addr"]

	if !exists || got != expected {
		t.Fatalf("Got %s whereas expected %s for \"addr\"!", got, expected)
	}
}

func TestGetDefault(t *testing.T) {
	got, exists := Get("idontexist", "iamdefault")

	if exists || got != "iamdefault" {
		t.Fatalf("Got %s whereas expected iamdefault for \"idontexist\"!", got)
	}
}

func TestGetBool(t *testing.T) {
	got, _ := GetBool("watch", false)

	if got != true {
		t.Fatalf("Got %v whereas expected true for \"watch\"!", got)
	}
}

func TestGetInt(t *testing.T) {
	got, _ := GetInt("numwant", 0)

	if got != 25 {
		t.Fatalf("Got %v whereas expected 25 for \"numwant\"!", got)
	}
}

func TestGetIntDefault(t *testing.T) {
	got, _ := GetInt("idontexist", 64)

	if got != 64 {
		t.Fatalf("Got %v whereas expected 64 for \"intnotexist\"!", got)
	}
}

func TestGetDuration(t *testing.T) {
	once.Do(readConfig)

	got, exists := config.GetDuration("flush", time.Minute)
	if !exists || got != 1500*time.Millisecond {
		t.Fatalf("Got %v whereas expected 1.5s for \"flush\"!", got)
	}

	got, exists = config.GetDuration("idontexist", time.Minute)
	if exists || got != time.Minute {
		t.Fatalf("Got %v whereas expected default 1m for \"idontexist\"!", got)
	}
}

func TestGetStrings(t *testing.T) {
	got, exists := Section("engine").GetStrings("listen", nil)
	expected := []string{"0.0.0.0:6881", "[::]:6881"}

	if !exists || !reflect.DeepEqual(got, expected) {
		t.Fatalf("Got %v whereas expected %v for \"listen\"!", got, expected)
	}

	got, _ = Section("engine").GetStrings("tracker", nil)
	if !reflect.DeepEqual(got, []string{"http://127.0.0.1:34000/announce"}) {
		t.Fatalf("Single string should be returned as one-element list, got %v", got)
	}
}

func TestSection(t *testing.T) {
	got := Section("registry")
	gotMap := make(map[string]interface{}, len(got))

	for k, v := range got {
		gotMap[k] = v
	}

	expected := configTest["registry"]
	if same := reflect.DeepEqual(gotMap, expected); !same {
		t.Fatalf("Got (%v) whereas expected (%v) for \"registry\"", gotMap, expected)
	}

	if capacity, _ := got.GetInt("capacity", 0); capacity != 3 {
		t.Fatalf("Got capacity %d whereas expected 3", capacity)
	}
}

func TestMissingSection(t *testing.T) {
	got := Section("idontexist")

	if v, exists := got.Get("anything", "fallback"); exists || v != "fallback" {
		t.Fatalf("Missing section should yield defaults, got %v (%v)", v, exists)
	}
}
