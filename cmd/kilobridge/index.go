package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/kilobridge/kilobridge/internal/fsindex"
)

// runIndex prints the file index of a directory as JSON.
func runIndex(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	depth := fs.Int("max-depth", fsindex.DefaultIndexDepth, "maximum directory depth")
	var ignore stringList
	fs.Var(&ignore, "ignore", "doublestar pattern to skip (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	root := "."
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}
	tool, err := fsindex.New(fsindex.Options{
		AllowedPaths: []string{root},
		Ignore:       ignore,
	})
	if err != nil {
		return err
	}
	idx, err := tool.Index(context.Background(), "", *depth)
	if err != nil {
		return fmt.Errorf("index %s: %w", root, err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(idx)
}

type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
