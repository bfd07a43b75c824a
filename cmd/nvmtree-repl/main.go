package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/nvmtree/nvmtree/pkg/config"
	"github.com/nvmtree/nvmtree/pkg/enginefacade"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".close"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem(".defrag"),
	readline.PcItem("PUT"),
	readline.PcItem("GET"),
	readline.PcItem("EXISTS"),
	readline.PcItem("DELETE"),
	readline.PcItem("COUNT"),
	readline.PcItem("SCAN",
		readline.PcItem("ALL"),
		readline.PcItem("ABOVE"),
		readline.PcItem("BELOW"),
		readline.PcItem("BETWEEN"),
	),
)

const helpText = `
nvmtree-repl - interactive shell for the persistent ordered key-value engine

Usage:
  nvmtree-repl [pool_path]   - Start with an optional pool file path

Commands:
  .help                     - Show this help message
  .open PATH [SIZE]         - Open (or create) a pool at PATH, SIZE bytes on first creation
  .close                    - Close the current pool
  .exit                     - Exit the program
  .stats                    - Show engine statistics
  .defrag START AMOUNT      - Run a defrag pass over [START%, START%+AMOUNT%) of the leaf chain

  PUT key value             - Store a key-value pair
  GET key                   - Retrieve a value by key
  EXISTS key                - Report whether a key is present
  DELETE key                - Delete a key-value pair
  COUNT [ALL|ABOVE|BELOW|BETWEEN] [args]

  SCAN ALL                  - Visit every entry in ascending key order
  SCAN ABOVE key            - Visit entries with key strictly greater than the bound
  SCAN BELOW key            - Visit entries with key strictly less than the bound
  SCAN BETWEEN lo hi        - Visit entries with lo < key < hi
`

func main() {
	fmt.Println("nvmtree-repl")
	fmt.Println("Enter .help for usage hints.")

	var eng *enginefacade.Engine
	var err error

	if len(os.Args) > 1 {
		eng, err = openEngine(os.Args[1], 64*1024*1024)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", os.Args[1], err)
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "nvmtree> ",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       ".exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		if eng != nil {
			rl.SetPrompt("nvmtree> ")
		} else {
			rl.SetPrompt("nvmtree (no pool)> ")
		}

		line, err := rl.Readline()
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if handleDotCommand(line, &eng) {
				break
			}
			continue
		}

		if eng == nil {
			fmt.Println("No pool open. Use .open PATH [SIZE] first.")
			continue
		}
		runCommand(eng, line)
	}

	if eng != nil {
		eng.Close()
	}
}

func openEngine(path string, size int64) (*enginefacade.Engine, error) {
	cfg := config.NewDefaultConfig(path)
	cfg.Size = size
	return enginefacade.Open(cfg)
}

func handleDotCommand(line string, eng **enginefacade.Engine) (exit bool) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case ".help":
		fmt.Print(helpText)
	case ".exit", ".quit":
		return true
	case ".open":
		if len(fields) < 2 {
			fmt.Println("Usage: .open PATH [SIZE]")
			return false
		}
		size := int64(64 * 1024 * 1024)
		if len(fields) >= 3 {
			if parsed, err := strconv.ParseInt(fields[2], 10, 64); err == nil {
				size = parsed
			}
		}
		if *eng != nil {
			(*eng).Close()
		}
		e, err := openEngine(fields[1], size)
		if err != nil {
			fmt.Printf("Error opening %s: %v\n", fields[1], err)
			return false
		}
		*eng = e
		fmt.Printf("Opened %s\n", fields[1])
	case ".close":
		if *eng == nil {
			fmt.Println("No pool open.")
			return false
		}
		if err := (*eng).Close(); err != nil {
			fmt.Printf("Error closing: %v\n", err)
		}
		*eng = nil
	case ".stats":
		if *eng == nil {
			fmt.Println("No pool open.")
			return false
		}
		for k, v := range (*eng).Stats().GetStats() {
			fmt.Printf("%s: %v\n", k, v)
		}
	case ".defrag":
		if *eng == nil {
			fmt.Println("No pool open.")
			return false
		}
		if len(fields) != 3 {
			fmt.Println("Usage: .defrag START AMOUNT")
			return false
		}
		start, _ := strconv.Atoi(fields[1])
		amount, _ := strconv.Atoi(fields[2])
		if err := (*eng).Defrag(start, amount); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	default:
		fmt.Printf("Unknown command: %s\n", fields[0])
	}
	return false
}

func runCommand(eng *enginefacade.Engine, line string) {
	fields := strings.Fields(line)
	cmd := strings.ToUpper(fields[0])

	switch cmd {
	case "PUT":
		if len(fields) < 3 {
			fmt.Println("Usage: PUT key value")
			return
		}
		if err := eng.Put([]byte(fields[1]), []byte(strings.Join(fields[2:], " "))); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Println("OK")

	case "GET":
		if len(fields) != 2 {
			fmt.Println("Usage: GET key")
			return
		}
		v, err := eng.Get([]byte(fields[1]))
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Println(string(v))

	case "EXISTS":
		if len(fields) != 2 {
			fmt.Println("Usage: EXISTS key")
			return
		}
		fmt.Println(eng.Exists([]byte(fields[1])))

	case "DELETE":
		if len(fields) != 2 {
			fmt.Println("Usage: DELETE key")
			return
		}
		if err := eng.Remove([]byte(fields[1])); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Println("OK")

	case "COUNT":
		runCount(eng, fields[1:])

	case "SCAN":
		runScan(eng, fields[1:])

	default:
		fmt.Printf("Unknown command: %s\n", cmd)
	}
}

func runCount(eng *enginefacade.Engine, args []string) {
	if len(args) == 0 {
		fmt.Println(eng.CountAll())
		return
	}
	switch strings.ToUpper(args[0]) {
	case "ALL":
		fmt.Println(eng.CountAll())
	case "ABOVE":
		fmt.Println(eng.CountAbove([]byte(args[1])))
	case "BELOW":
		fmt.Println(eng.CountBelow([]byte(args[1])))
	case "BETWEEN":
		fmt.Println(eng.CountBetween([]byte(args[1]), []byte(args[2])))
	default:
		fmt.Println("Usage: COUNT [ALL|ABOVE|BELOW|BETWEEN] [args]")
	}
}

func runScan(eng *enginefacade.Engine, args []string) {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	visit := func(k, v []byte) bool {
		fmt.Fprintf(w, "%s = %s\n", k, v)
		return true
	}

	if len(args) == 0 {
		fmt.Println("Usage: SCAN ALL|ABOVE key|BELOW key|BETWEEN lo hi")
		return
	}

	switch strings.ToUpper(args[0]) {
	case "ALL":
		eng.All(visit)
	case "ABOVE":
		eng.Above([]byte(args[1]), visit)
	case "BELOW":
		eng.Below([]byte(args[1]), visit)
	case "BETWEEN":
		eng.Between([]byte(args[1]), []byte(args[2]), visit)
	default:
		fmt.Println("Usage: SCAN ALL|ABOVE key|BELOW key|BETWEEN lo hi")
	}
}
