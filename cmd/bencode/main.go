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
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/zeebo/bencode"
)

var (
	decode, inspect, help bool
)

// provided at compile-time
var (
	BuildDate    = "0000-00-00T00:00:00+0000"
	BuildVersion = "development"
)

type torrentSummary struct {
	InfoHash     string    `json:"info_hash"`
	Name         string    `json:"name"`
	Length       int64     `json:"length"`
	PieceLength  int64     `json:"piece_length"`
	Pieces       int       `json:"pieces"`
	Announce     string    `json:"announce,omitempty"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreationDate time.Time `json:"creation_date"`
}

func init() {
	flag.BoolVar(&decode, "d", false, "Decodes data instead of encoding")
	flag.BoolVar(&inspect, "t", false, "Summarizes a torrent file read from stdin")
	flag.BoolVar(&help, "h", false, "Prints this help message")
}

func main() {
	fmt.Fprintf(os.Stderr, "bencode for artiswarm, ver=%s date=%s runtime=%s\n\n",
		BuildVersion, BuildDate, runtime.Version())

	flag.Parse()

	if help {
		fmt.Printf("Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()

		return
	}

	var val interface{}

	switch {
	case inspect:
		mi, err := metainfo.Load(os.Stdin)
		if err != nil {
			panic(err)
		}

		info, err := mi.UnmarshalInfo()
		if err != nil {
			panic(err)
		}

		val = torrentSummary{
			InfoHash:     mi.HashInfoBytes().HexString(),
			Name:         info.Name,
			Length:       info.TotalLength(),
			PieceLength:  info.PieceLength,
			Pieces:       info.NumPieces(),
			Announce:     mi.Announce,
			CreatedBy:    mi.CreatedBy,
			CreationDate: time.Unix(mi.CreationDate, 0).UTC(),
		}

		printJSON(val)
	case decode:
		decoder := bencode.NewDecoder(os.Stdin)

		err := decoder.Decode(&val)
		if err != nil {
			panic(err)
		}

		printJSON(val)
	default:
		decoder := json.NewDecoder(os.Stdin)
		decoder.UseNumber()

		err := decoder.Decode(&val)
		if err != nil {
			panic(err)
		}

		encoder := bencode.NewEncoder(os.Stdout)
		err = encoder.Encode(val)
		if err != nil {
			panic(err)
		}
	}
}

func printJSON(val interface{}) {
	out, err := json.MarshalIndent(val, "", "\t")
	if err != nil {
		panic(err)
	}

	fmt.Println(string(out))
}
