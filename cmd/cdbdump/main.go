// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgryski/go-farm"

	"github.com/bswanson/cdb"
)

func main() {
	var (
		dbPath      = flag.String("db", "", "path to the CDB file")
		buildFrom   = flag.String("build", "", "build -db from a key\\tvalue per line input file")
		dump        = flag.Bool("dump", false, "dump every record in insertion order")
		get         = flag.String("get", "", "look up a single key")
		fingerprint = flag.Bool("fingerprint", false, "print a fast content fingerprint of the record region")
	)
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("cdbdump: -db is required")
	}

	if *buildFrom != "" {
		if err := build(*buildFrom, *dbPath); err != nil {
			log.Fatalf("cdbdump: build: %v", err)
		}
		return
	}

	r, err := cdb.Open(*dbPath)
	if err != nil {
		log.Fatalf("cdbdump: open: %v", err)
	}
	defer r.Close()

	switch {
	case *get != "":
		value, ok, err := r.Fetch([]byte(*get))
		if err != nil {
			log.Fatalf("cdbdump: fetch: %v", err)
		}
		if !ok {
			os.Exit(1)
		}
		fmt.Println(string(value))
	case *dump:
		records, err := r.Iterate()
		if err != nil {
			log.Fatalf("cdbdump: iterate: %v", err)
		}
		for _, rec := range records {
			fmt.Printf("%s\t%s\n", rec.Key, rec.Value)
		}
	case *fingerprint:
		records, err := r.Iterate()
		if err != nil {
			log.Fatalf("cdbdump: iterate: %v", err)
		}
		var h uint64
		for _, rec := range records {
			h ^= farm.Hash64(rec.Key)
			h ^= farm.Hash64(rec.Value)
		}
		fmt.Printf("%016x\n", h)
	default:
		stat, err := r.Stat()
		if err != nil {
			log.Fatalf("cdbdump: stat: %v", err)
		}
		fmt.Printf("records: %d\nrecords size: %d bytes\ntable size: %d bytes\n", stat.NumRecords, stat.RecordsSize, stat.TableSize)
	}
}

// build reads tab-separated key/value pairs, one per line, from path and
// writes a CDB file to dbPath.
func build(path, dbPath string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	b, err := cdb.NewBuilder(dbPath)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "\t")
		if !ok {
			return fmt.Errorf("cdbdump: malformed line %q (want key\\tvalue)", line)
		}
		if err := b.Insert([]byte(k), []byte(v)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	return b.Finish()
}
