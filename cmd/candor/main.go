// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The candor tool is a command-line front end for exercising the candor
// managed heap directly: allocating cells, running collections, and poking
// at object properties, without a lexer/parser/codegen front end attached.
// Run "candor help" for a list of commands.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/candor-lang/candor/internal/core"
	"github.com/candor-lang/candor/internal/heap"
)

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}

// session bundles a heap together with the conservative-root stack arena a
// compiler would otherwise maintain; the CLI plays the role codegen would
// play in a full build, populating roots by hand.
type session struct {
	h     *heap.Heap
	stack *core.Arena
}

func newSession(pageSize int64, gcTrace bool) *session {
	h, err := heap.NewHeap(heap.Config{PageSize: pageSize, GCTrace: gcTrace})
	if err != nil {
		exitf("candor: %v\n", err)
	}
	stack, err := core.NewArena(1 << 16)
	if err != nil {
		exitf("candor: %v\n", err)
	}
	h.SetStack(stack, stack.End())
	return &session{h: h, stack: stack}
}

func (s *session) close() {
	s.h.Close()
	s.stack.Close()
}

// full is the stackTop a one-shot CLI invocation uses: nothing is spilled
// to the root stack ahead of time, so the entire arena is live for scanning.
func (s *session) full() core.Address {
	return s.stack.Base()
}

func main() {
	pageSize := int64(heap.DefaultPageSize)
	gcTrace := false

	root := &cobra.Command{
		Use:   "candor",
		Short: "Exercise the candor managed heap from the command line",
	}
	root.PersistentFlags().Int64Var(&pageSize, "pagesize", pageSize, "heap page size in bytes")
	root.PersistentFlags().BoolVar(&gcTrace, "gctrace", gcTrace, "log a line per collection at debug level")

	root.AddCommand(allocCmd(&pageSize, &gcTrace))
	root.AddCommand(gcCmd(&pageSize, &gcTrace))
	root.AddCommand(objectCmd(&pageSize, &gcTrace))
	root.AddCommand(replCmd(&pageSize, &gcTrace))

	if err := root.Execute(); err != nil {
		exitf("candor: %v\n", err)
	}
}

func allocCmd(pageSize *int64, gcTrace *bool) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "alloc",
		Short: "Allocate count boxed numbers and report heap usage",
		Run: func(cmd *cobra.Command, args []string) {
			s := newSession(*pageSize, *gcTrace)
			defer s.close()
			for i := 0; i < count; i++ {
				if _, err := s.h.NewNumber(float64(i), s.full()); err != nil {
					exitf("candor: %v\n", err)
				}
			}
			fmt.Printf("allocated %d numbers; %d bytes in use, %d collections run\n", count, s.h.BytesInUse(), s.h.GCCount())
		},
	}
	cmd.Flags().IntVar(&count, "count", 1000, "number of cells to allocate")
	return cmd
}

func gcCmd(pageSize *int64, gcTrace *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Run a collection on a freshly built heap and report before/after usage",
		Run: func(cmd *cobra.Command, args []string) {
			s := newSession(*pageSize, *gcTrace)
			defer s.close()
			for i := 0; i < 4096; i++ {
				if _, err := s.h.NewString([]byte("scratch"), s.full()); err != nil {
					exitf("candor: %v\n", err)
				}
			}
			before := s.h.BytesInUse()
			if err := s.h.CollectGarbage(s.full()); err != nil {
				exitf("candor: %v\n", err)
			}
			fmt.Printf("before gc: %d bytes in use\nafter gc:  %d bytes in use\n", before, s.h.BytesInUse())
		},
	}
	return cmd
}

func objectCmd(pageSize *int64, gcTrace *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "object",
		Short: "Build an object with the given key=value pairs and print it back",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s := newSession(*pageSize, *gcTrace)
			defer s.close()
			obj, err := s.h.NewObject()
			if err != nil {
				exitf("candor: %v\n", err)
			}
			for _, kv := range args {
				k, v, ok := splitKV(kv)
				if !ok {
					exitf("candor: bad key=value pair %q\n", kv)
				}
				if err := setField(s, obj, k, v); err != nil {
					exitf("candor: %v\n", err)
				}
			}
			printObject(s, obj)
		},
	}
	return cmd
}

func replCmd(pageSize *int64, gcTrace *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive session over one heap: new/set/get/gc/stats commands, one per line",
		Run: func(cmd *cobra.Command, args []string) {
			runRepl(*pageSize, *gcTrace)
		},
	}
	return cmd
}

func runRepl(pageSize int64, gcTrace bool) {
	s := newSession(pageSize, gcTrace)
	defer s.close()

	rl, err := readline.New("candor> ")
	if err != nil {
		exitf("candor: %v\n", err)
	}
	defer rl.Close()

	var objects []core.Address
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			return
		}
		switch {
		case line == "":
		case line == "help":
			fmt.Println("commands: new, set <obj> <k>=<v>, get <obj> <k>, gc, stats, quit")
		case line == "new":
			addr, err := s.h.NewObject()
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			objects = append(objects, addr)
			fmt.Printf("object %d created\n", len(objects)-1)
		case line == "gc":
			if err := s.h.CollectGarbage(s.full()); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			fmt.Printf("collection #%d complete\n", s.h.GCCount())
		case line == "stats":
			fmt.Printf("%d bytes in use, %d collections run\n", s.h.BytesInUse(), s.h.GCCount())
		case line == "quit" || line == "exit":
			return
		case strings.HasPrefix(line, "set "):
			obj, rest, err := resolveObject(objects, strings.TrimPrefix(line, "set "))
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			k, v, ok := splitKV(strings.TrimSpace(rest))
			if !ok {
				fmt.Fprintf(os.Stderr, "usage: set <obj> <k>=<v>\n")
				continue
			}
			if err := setField(s, obj, k, v); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
		case strings.HasPrefix(line, "get "):
			obj, rest, err := resolveObject(objects, strings.TrimPrefix(line, "get "))
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			keyAddr, err := s.h.NewString([]byte(strings.TrimSpace(rest)), s.full())
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			slotAddr, err := s.h.LookupProperty(obj, heap.FromAddr(keyAddr), false, s.full())
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			if slotAddr == heap.NotFound {
				fmt.Println("undefined")
				continue
			}
			fmt.Println(s.h.Describe(s.h.ReadSlot(slotAddr)))
		default:
			fmt.Fprintf(os.Stderr, "unrecognized command %q; try 'help'\n", line)
		}
	}
}

// resolveObject parses a leading "<index> " token off rest, using it to
// index into the REPL's object table, and returns the remainder unparsed.
func resolveObject(objects []core.Address, rest string) (core.Address, string, error) {
	fields := strings.SplitN(rest, " ", 2)
	idx, err := strconv.Atoi(fields[0])
	if err != nil || idx < 0 || idx >= len(objects) {
		return 0, "", fmt.Errorf("no such object %q (try 'new' first)", fields[0])
	}
	if len(fields) < 2 {
		return 0, "", fmt.Errorf("missing argument after object index")
	}
	return objects[idx], fields[1], nil
}

func splitKV(s string) (k, v string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func setField(s *session, obj core.Address, key, value string) error {
	keyAddr, err := s.h.NewString([]byte(key), s.full())
	if err != nil {
		return err
	}
	slotAddr, err := s.h.LookupProperty(obj, heap.FromAddr(keyAddr), true, s.full())
	if err != nil {
		return err
	}
	numeric, isNum := parseInt(value)
	var v heap.Value
	if isNum {
		v = heap.TagInt(numeric)
	} else {
		valAddr, err := s.h.NewString([]byte(value), s.full())
		if err != nil {
			return err
		}
		v = heap.FromAddr(valAddr)
	}
	return s.h.WriteSlot(slotAddr, v)
}

func parseInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	neg := false
	i := 0
	if s[0] == '-' {
		neg = true
		i = 1
	}
	if i == len(s) {
		return 0, false
	}
	var n int64
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int64(s[i]-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}

func printObject(s *session, obj core.Address) {
	fmt.Printf("object @ %v\n", obj)
	for k, v := range s.h.Properties(obj) {
		fmt.Printf("  %s = %s\n", k, s.h.Describe(v))
	}
}
