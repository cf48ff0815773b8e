// Command syngd is a small operations tool for a syng object store: enough
// surface to drive the library end-to-end (apply edits, inspect the graph,
// generate and apply deltas) without a front-end transport.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/gops/agent"
	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/syng/config"
	"github.com/nicolagi/syng/delta"
	"github.com/nicolagi/syng/object"
	"github.com/nicolagi/syng/objectstore"
	"github.com/nicolagi/syng/storage"
	"github.com/nicolagi/syng/tree"
)

var (
	baseDir  = flag.String("base", config.DefaultBaseDirectoryPath, "base directory holding the config file")
	withGops = flag.Bool("gops", false, "start a gops diagnostics agent")
)

func main() {
	flag.Parse()
	if *withGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Warnf("could not start gops agent: %v", err)
		} else {
			defer agent.Close()
		}
	}

	args := flag.Args()
	if len(args) == 0 {
		log.Fatal("usage: syngd [-base dir] [-gops] <apply|show|delta-from|delta-apply> ...")
	}

	cfg, err := config.Load(*baseDir)
	if err != nil {
		log.Fatalf("could not load config from %q: %v", *baseDir, err)
	}
	backend, err := storage.NewStore(cfg)
	if err != nil {
		log.Fatalf("could not create store: %v", err)
	}
	store, err := objectstore.New(backend)
	if err != nil {
		log.Fatalf("could not open object store: %v", err)
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "apply":
		if len(rest) != 1 {
			log.Fatal("usage: syngd apply <script-file>")
		}
		if err := runApply(store, rest[0]); err != nil {
			log.Fatal(err)
		}
	case "show":
		if err := runShow(store); err != nil {
			log.Fatal(err)
		}
	case "delta-from":
		if len(rest) != 1 {
			log.Fatal("usage: syngd delta-from <past-root-id>")
		}
		if err := runDeltaFrom(store, rest[0]); err != nil {
			log.Fatal(err)
		}
	case "delta-apply":
		if err := runDeltaApply(store); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("unknown command %q", cmd)
	}
}

// runApply reads an edit script, one operation per line, and applies each
// in order:
//
//	update <path>            <fields-json> <children-json>
//	insert <parent-path> end|<index> <fields-json> <children-json>
//	remove <path>
//
// A path is a comma-separated list of child indices, or "-" for the empty
// path.
func runApply(store *objectstore.ObjectStore, scriptPath string) error {
	f, err := os.Open(scriptPath)
	if err != nil {
		return fmt.Errorf("runApply: %w", err)
	}
	defer func() { _ = f.Close() }()

	t := tree.New(store)
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "update":
			path, err := parsePath(fields[1])
			if err != nil {
				return err
			}
			obj, err := parseObject(fields[2], fields[3])
			if err != nil {
				return err
			}
			newRootID, err := t.UpdateAt(path, obj)
			if err != nil {
				return fmt.Errorf("runApply: update %v: %w", path, err)
			}
			log.WithField("root", newRootID).Info("applied update")
		case "insert":
			path, err := parsePath(fields[1])
			if err != nil {
				return err
			}
			position, err := parsePosition(fields[2])
			if err != nil {
				return err
			}
			obj, err := parseObject(fields[3], fields[4])
			if err != nil {
				return err
			}
			childID, newRootID, err := t.InsertChild(path, obj, position)
			if err != nil {
				return fmt.Errorf("runApply: insert %v: %w", path, err)
			}
			log.WithFields(log.Fields{"child": childID, "root": newRootID}).Info("applied insert")
		case "remove":
			path, err := parsePath(fields[1])
			if err != nil {
				return err
			}
			newRootID, err := t.RemoveAt(path)
			if err != nil {
				return fmt.Errorf("runApply: remove %v: %w", path, err)
			}
			log.WithField("root", newRootID).Info("applied remove")
		default:
			return fmt.Errorf("runApply: unknown operation %q", fields[0])
		}
	}
	return s.Err()
}

// runShow prints the current root identifier and every identifier
// reachable from it.
func runShow(store *objectstore.ObjectStore) error {
	rootID, err := store.RootID()
	if err != nil {
		return fmt.Errorf("runShow: %w", err)
	}
	fmt.Printf("root %s\n", rootID)
	ids, err := tree.New(store).Descendants(rootID)
	if err != nil {
		return fmt.Errorf("runShow: %w", err)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

// runDeltaFrom writes, to stdout, the CBOR encoding of the delta from
// pastRootID to the current root.
func runDeltaFrom(store *objectstore.ObjectStore, pastRootID string) error {
	currentRootID, err := store.RootID()
	if err != nil {
		return fmt.Errorf("runDeltaFrom: %w", err)
	}
	d, err := delta.GenerateFrom(store, pastRootID, currentRootID)
	if err != nil {
		return fmt.Errorf("runDeltaFrom: %w", err)
	}
	b, err := delta.Encode(d, delta.CBOR)
	if err != nil {
		return fmt.Errorf("runDeltaFrom: %w", err)
	}
	_, err = os.Stdout.Write(b)
	return err
}

// runDeltaApply reads a CBOR-encoded delta from stdin and applies it.
func runDeltaApply(store *objectstore.ObjectStore) error {
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("runDeltaApply: %w", err)
	}
	d, err := delta.Decode(b, delta.CBOR)
	if err != nil {
		return fmt.Errorf("runDeltaApply: %w", err)
	}
	newRootID, _, err := delta.Apply(store, d)
	if err != nil {
		return fmt.Errorf("runDeltaApply: %w", err)
	}
	log.WithField("root", newRootID).Info("applied delta")
	return nil
}

func parsePath(s string) (tree.Path, error) {
	if s == "-" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	path := make(tree.Path, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parsePath: %q: %w", s, err)
		}
		path[i] = n
	}
	return path, nil
}

func parsePosition(s string) (tree.Position, error) {
	if s == "end" {
		return tree.AtEnd(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return tree.Position{}, fmt.Errorf("parsePosition: %q: %w", s, err)
	}
	return tree.AtIndex(n), nil
}

func parseObject(fieldsJSON, childrenJSON string) (object.Object, error) {
	var fields map[string]string
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return object.Object{}, fmt.Errorf("parseObject: fields: %w", err)
	}
	var children []string
	if err := json.Unmarshal([]byte(childrenJSON), &children); err != nil {
		return object.Object{}, fmt.Errorf("parseObject: children: %w", err)
	}
	return object.New(fields, children), nil
}
