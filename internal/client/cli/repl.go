package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/notesync/internal/common"
)

// command is one REPL verb.
type command struct {
	name  string
	usage string
	// minArgs is checked before run is called.
	minArgs int
	// locked commands need the content key.
	locked bool
	run    func(ctx context.Context, args []string) error
}

// errExit ends the REPL.
var errExit = errors.New("exit")

// runREPL reads a line at a time from in, looks the first token up in
// cmds and runs it with the remaining tokens. Commands prompting for more
// input read from the same reader. Errors are reported and the
// loop goes on; it ends on EOF or when a command returns errExit.
//
// unlocked reports whether commands marked locked may run.
func runREPL(ctx context.Context, cmds []command, statusFn func() string, in *bufio.Reader, out io.Writer, unlocked func() bool) {
	byName := make(map[string]command, len(cmds))
	for _, c := range cmds {
		byName[c.name] = c
	}

	for {
		fmt.Fprintf(out, "notes %s> ", statusFn())
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(out)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		name, args := parts[0], parts[1:]

		if name == "help" {
			printHelp(out, cmds)
			continue
		}

		c, ok := byName[name]
		if !ok {
			fmt.Fprintln(out, "Unknown command:", name)
			continue
		}
		if len(args) < c.minArgs {
			fmt.Fprintln(out, "Usage:", c.usage)
			continue
		}
		if c.locked && !unlocked() {
			fmt.Fprintln(out, "Error:", common.ErrLocked, "(use login or unlock)")
			continue
		}

		err = c.run(ctx, args)
		if errors.Is(err, errExit) {
			fmt.Fprintln(out, "Bye!")
			return
		}
		if err != nil {
			fmt.Fprintln(out, "Error:", err)
		}
	}
}

func printHelp(out io.Writer, cmds []command) {
	fmt.Fprintln(out, "Available commands:")
	for _, c := range cmds {
		fmt.Fprintf(out, "  %s\n", c.usage)
	}
}
