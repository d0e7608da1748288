// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Command rowmerge loads primary-key rowset compaction tunables from a
// YAML config file, applies its command-line overrides, and takes the
// rowset directories as arguments.
//
// No on-disk Rowset/Writer implementation is linked into this binary, so
// it does not run rowmerge.CompactionMergeRowsets: after validating its
// flags and arguments it reports that a storage layer must supply those
// and exits with status 1.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sneller-contrib/rowmerge/rowmerge"
)

func main() {
	var (
		configPath = flag.String("c", "", "merge config YAML file")
		algo       = flag.String("algorithm", "", "override config algorithm: horizontal or vertical")
		tabletID   = flag.Int64("tablet", 0, "tablet id, for logging and spill-file naming")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "rowmerge: ", log.LstdFlags)

	cfg := rowmerge.DefaultMergeConfig()
	if *configPath != "" {
		var err error
		cfg, err = rowmerge.LoadMergeConfig(*configPath)
		if err != nil {
			logger.Fatal(err)
		}
	}
	if *tabletID != 0 {
		cfg.TabletID = *tabletID
	}
	switch *algo {
	case "vertical":
		cfg.Algorithm = rowmerge.Vertical
	case "horizontal":
		cfg.Algorithm = rowmerge.Horizontal
	case "":
	default:
		logger.Fatalf("unknown -algorithm %q", *algo)
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: rowmerge -c config.yaml [-algorithm horizontal|vertical] [-tablet id] <rowset-dir>...")
		os.Exit(2)
	}

	fmt.Fprintln(os.Stderr, "rowmerge: no on-disk Rowset implementation is wired into this command;")
	fmt.Fprintln(os.Stderr, "link a storage layer that builds []rowset.Rowset and rowset.Writer from")
	fmt.Fprintln(os.Stderr, "the given directories and call rowmerge.CompactionMergeRowsets directly.")
	os.Exit(1)
}
