// Copyright 2019 Michael J. Fromberger. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Program riverctl is a minimal command-line front end for a river,
// useful for smoke-testing an adapter and for poking at a river's
// contents by hand. It is demonstration and debugging tooling, not a
// production client.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/creachadair/ctrl"

	"github.com/eastein/riverfish/kv"
	"github.com/eastein/riverfish/kv/filekv"
	"github.com/eastein/riverfish/kv/memkv"
	"github.com/eastein/riverfish/river"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %[1]s <command> -store <spec> [options] <river-name> [args]

Commands:
  create  -ktr <name> -unq       <river-name>
  add     -record <json-object>  <river-name>
  get     -key <json-value>      <river-name>
  iterate -lower <json-value> -upper <json-value> -reverse   <river-name>

A store spec is "memory" for a process-local, non-persistent store, or a
directory path for a store persisted to local files (see kv/filekv).
Records and keys are given and printed as JSON.
`, os.Args[0])
}

func main() {
	log.SetFlags(0)
	ctrl.Run(func() error {
		if len(os.Args) < 2 {
			usage()
			ctrl.Exitf(1, "a command is required")
		}
		cmd, args := os.Args[1], os.Args[2:]
		switch cmd {
		case "create":
			return runCreate(args)
		case "add":
			return runAdd(args)
		case "get":
			return runGet(args)
		case "iterate":
			return runIterate(args)
		default:
			usage()
			ctrl.Exitf(1, "unknown command %q", cmd)
			return nil
		}
	})
}

func openStore(spec string) (kv.Adapter, error) {
	if spec == "" || spec == "memory" {
		return memkv.New(), nil
	}
	return filekv.New(spec)
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	storeSpec := fs.String("store", "memory", "Store spec")
	ktr := fs.String("ktr", "", "Key transform name (stringcrc, allzero, cast), or empty for none")
	unq := fs.Bool("unq", false, "Enforce uniqueness of user keys")
	fs.Parse(args)
	if fs.NArg() != 1 {
		ctrl.Fatalf("usage: riverctl create -store <spec> [-ktr name] [-unq] <river-name>")
	}

	adapter, err := openStore(*storeSpec)
	if err != nil {
		return fmt.Errorf("opening store %q: %w", *storeSpec, err)
	}
	name := fs.Arg(0)
	if _, err := river.Create(context.Background(), adapter, name, river.Options{KTR: *ktr, UNQ: *unq}); err != nil {
		return fmt.Errorf("create %q: %w", name, err)
	}
	log.Printf("created river %q", name)
	return nil
}

func runAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	storeSpec := fs.String("store", "memory", "Store spec")
	recordJSON := fs.String("record", "", "Record to insert, as a JSON object with a KEY field")
	fs.Parse(args)
	if fs.NArg() != 1 || *recordJSON == "" {
		ctrl.Fatalf("usage: riverctl add -store <spec> -record <json-object> <river-name>")
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(*recordJSON), &record); err != nil {
		return fmt.Errorf("parsing -record: %w", err)
	}

	adapter, err := openStore(*storeSpec)
	if err != nil {
		return fmt.Errorf("opening store %q: %w", *storeSpec, err)
	}
	name := fs.Arg(0)
	r, err := river.Open(context.Background(), adapter, name)
	if err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}
	if err := r.Add(context.Background(), record); err != nil {
		return fmt.Errorf("add to %q: %w", name, err)
	}
	log.Printf("added record to %q", name)
	return nil
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	storeSpec := fs.String("store", "memory", "Store spec")
	keyJSON := fs.String("key", "", "User key to look up, as a JSON value")
	fs.Parse(args)
	if fs.NArg() != 1 || *keyJSON == "" {
		ctrl.Fatalf("usage: riverctl get -store <spec> -key <json-value> <river-name>")
	}

	var key any
	if err := json.Unmarshal([]byte(*keyJSON), &key); err != nil {
		return fmt.Errorf("parsing -key: %w", err)
	}

	adapter, err := openStore(*storeSpec)
	if err != nil {
		return fmt.Errorf("opening store %q: %w", *storeSpec, err)
	}
	name := fs.Arg(0)
	r, err := river.Open(context.Background(), adapter, name)
	if err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}
	records, err := r.Get(context.Background(), key)
	if err != nil {
		return fmt.Errorf("get from %q: %w", name, err)
	}
	return printRecords(records)
}

func runIterate(args []string) error {
	fs := flag.NewFlagSet("iterate", flag.ExitOnError)
	storeSpec := fs.String("store", "memory", "Store spec")
	lowerJSON := fs.String("lower", "", "Lower bound user key, as a JSON value")
	upperJSON := fs.String("upper", "", "Upper bound user key, as a JSON value")
	reverse := fs.Bool("reverse", false, "Iterate in descending sort-key order")
	fs.Parse(args)
	if fs.NArg() != 1 {
		ctrl.Fatalf("usage: riverctl iterate -store <spec> [-lower k] [-upper k] [-reverse] <river-name>")
	}

	adapter, err := openStore(*storeSpec)
	if err != nil {
		return fmt.Errorf("opening store %q: %w", *storeSpec, err)
	}
	name := fs.Arg(0)
	r, err := river.Open(context.Background(), adapter, name)
	if err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}

	if *lowerJSON != "" {
		var k any
		if err := json.Unmarshal([]byte(*lowerJSON), &k); err != nil {
			return fmt.Errorf("parsing -lower: %w", err)
		}
		if r, err = r.Lowerbound(k); err != nil {
			return fmt.Errorf("lowerbound: %w", err)
		}
	}
	if *upperJSON != "" {
		var k any
		if err := json.Unmarshal([]byte(*upperJSON), &k); err != nil {
			return fmt.Errorf("parsing -upper: %w", err)
		}
		if r, err = r.Upperbound(k); err != nil {
			return fmt.Errorf("upperbound: %w", err)
		}
	}
	if *reverse {
		if r, err = r.Reverse(); err != nil {
			return fmt.Errorf("reverse: %w", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	for item, err := range r.Records(context.Background()) {
		if err != nil {
			return fmt.Errorf("iterate %q: %w", name, err)
		}
		if err := enc.Encode(map[string]any{"key": item.Key, "record": item.Record}); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
	}
	return nil
}

func printRecords(records []map[string]any) error {
	enc := json.NewEncoder(os.Stdout)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
	}
	return nil
}
