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


package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"artiswarm/config"
	"artiswarm/registry"
)

// provided at compile-time
var (
	BuildDate    = "0000-00-00T00:00:00+0000"
	BuildVersion = "development"
)

func help() {
	fmt.Printf("Usage of %s:\n", os.Args[0])
	fmt.Println("  dump [journal]       converts the registry journal into a readable JSON file")
	fmt.Println("  restore [journal]    converts the JSON file back into a registry journal")
	fmt.Println()
	fmt.Println("The journal defaults to registry.journal from the config file.")
}

func main() {
	fmt.Printf("journal utility for artiswarm, ver=%s date=%s runtime=%s\n\n",
		BuildVersion, BuildDate, runtime.Version())

	if len(os.Args) < 2 {
		help()
		return
	}

	journal, _ := config.Section("registry").Get("journal", "registry.journal")
	if len(os.Args) > 2 {
		journal = os.Args[2]
	}

	switch os.Args[1] {
	case "dump":
		dump(journal)
	case "restore":
		restore(journal)
	default:
		help()
	}
}

func dump(journal string) {
	fmt.Printf("Dumping entries of %s, this might take a while...", journal)

	journalFile, err := os.OpenFile(journal, os.O_RDONLY, 0600)
	if err != nil {
		panic(err)
	}

	jsonFile, err := os.OpenFile(fmt.Sprintf("%s.json", journal), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		panic(err)
	}

	entries, skipped, err := registry.ReadJournal(journalFile)
	if err != nil {
		panic(err)
	}

	if entries == nil {
		entries = []registry.Entry{}
	}

	encoder := json.NewEncoder(jsonFile)
	encoder.SetIndent("", "\t")

	if err = encoder.Encode(entries); err != nil {
		panic(err)
	}

	_ = journalFile.Close()
	_ = jsonFile.Close()

	fmt.Printf("...Done! (%d entries, %d malformed lines skipped)\n", len(entries), skipped)
}

func restore(journal string) {
	fmt.Printf("Restoring entries of %s, this might take a while...", journal)

	jsonFile, err := os.OpenFile(fmt.Sprintf("%s.json", journal), os.O_RDONLY, 0600)
	if err != nil {
		panic(err)
	}

	var entries []registry.Entry

	if err = json.NewDecoder(jsonFile).Decode(&entries); err != nil {
		panic(err)
	}

	journalFile, err := os.OpenFile(journal, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		panic(err)
	}

	if err = registry.WriteJournal(journalFile, entries); err != nil {
		panic(err)
	}

	_ = jsonFile.Close()
	_ = journalFile.Close()

	fmt.Printf("...Done! (%d entries)\n", len(entries))
}
