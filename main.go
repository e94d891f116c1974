package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"slosh/vm"
)

const historyFile = "history"

var debugFlag = flag.Bool("debug", false, "print each REPL form's disassembly before running it")

func init() {
	flag.Parse()
}

func main() {
	machine := vm.NewVM()

	files := flag.Args()
	for _, f := range files {
		if _, err := machine.LoadFile(f); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "slosh> ",
		HistoryFile: historyFile,
	})
	if err != nil {
		// HistoryFile couldn't be opened (e.g. unwritable directory); fall
		// back to a plain prompt with no persisted history rather than
		// refusing to start.
		fmt.Fprintln(os.Stderr, "warning: could not open history file:", err)
		rl, err = readline.New("slosh> ")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF (Ctrl-D) or readline.ErrInterrupt (Ctrl-C)
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := evalLine(machine, rl, line); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

// evalLine reads, compiles, and runs every top-level form on line. On a
// runtime error it pulls the VM's error-frame and drops into the
// interactive debug helper before returning, per spec.md §4.6.
func evalLine(machine *vm.VM, rl *readline.Instance, line string) error {
	exprs, err := vm.ReadAll(machine, "<stdin>", line)
	if err != nil {
		return err
	}
	for _, exp := range exprs {
		chunk, err := vm.Compile(machine, "<stdin>", 0, exp)
		if err != nil {
			return err
		}
		if *debugFlag {
			fmt.Fprint(os.Stderr, machine.Disassemble(chunk))
		}
		result, err := machine.Run(chunk)
		if err != nil {
			if frame := machine.LastErrorFrame(); frame != nil {
				fmt.Fprintln(os.Stderr, frame.String())
				debugPrompt(machine, rl, err)
			}
			return err
		}
		fmt.Println(machine.Display(result))
	}
	return nil
}

// debugPrompt is the REPL's minimal interactive debug helper: after a
// runtime error it takes over the prompt so the error-frame can be
// re-inspected before control returns to ordinary evaluation.
func debugPrompt(machine *vm.VM, rl *readline.Instance, cause error) {
	rl.SetPrompt("debug> ")
	defer rl.SetPrompt("slosh> ")
	fmt.Fprintln(os.Stderr, "entering debug helper after:", cause)
	fmt.Fprintln(os.Stderr, "commands: f (reprint error-frame), c (continue)")
	for {
		line, err := rl.Readline()
		if err != nil {
			return
		}
		switch strings.TrimSpace(line) {
		case "f":
			if frame := machine.LastErrorFrame(); frame != nil {
				fmt.Fprintln(os.Stderr, frame.String())
			}
		case "c", "":
			return
		default:
			fmt.Fprintln(os.Stderr, "unknown debug command:", line)
		}
	}
}
