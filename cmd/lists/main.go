package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"durable-lists/internal/config"
	"durable-lists/internal/logging"
	"durable-lists/internal/stores"
	"durable-lists/pkg/flight"
	"durable-lists/pkg/quest"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv("LISTS_CONFIG"))
	if err != nil {
		fatal("config: %v", err)
	}
	logging.Setup(os.Stderr, cfg.Log)

	ctx := context.Background()
	engines, err := stores.Open(ctx, cfg.DB)
	if err != nil {
		fatal("open store: %v", err)
	}
	defer engines.Close()

	switch os.Args[1] {
	case "character":
		handleCharacter(ctx, engines.Quests, os.Args[2:])
	case "quest":
		handleQuest(ctx, engines.Quests, os.Args[2:])
	case "flight":
		handleFlight(ctx, engines.Flights, os.Args[2:])
	case "status":
		handleStatus(ctx, engines)
	case "init":
		// stores.Open has already created any missing tables.
		fmt.Println("tables ready")
	default:
		usage()
		os.Exit(1)
	}
}

func handleCharacter(ctx context.Context, q *quest.Queue, args []string) {
	if len(args) == 0 {
		fatal("Usage: lists character <create|get|quests|assign|complete>")
	}

	switch args[0] {
	case "create":
		flags := parseFlags(args[1:])
		c, err := q.CreateCharacter(ctx, flags["name"])
		if err != nil {
			fatal("create character: %v", err)
		}
		printJSON(c)

	case "get":
		need(args, 2, "lists character get <id>")
		c, err := q.Character(ctx, args[1])
		if err != nil {
			fatal("get character: %v", err)
		}
		printJSON(c)

	case "quests":
		need(args, 2, "lists character quests <id>")
		quests, err := q.List(ctx, args[1])
		if err != nil {
			fatal("list queue: %v", err)
		}
		printJSON(quests)

	case "assign":
		need(args, 3, "lists character assign <id> <quest-id>")
		res, err := q.Enqueue(ctx, args[1], args[2])
		if err != nil {
			fatal("assign: %v", err)
		}
		printJSON(res)

	case "complete":
		need(args, 2, "lists character complete <id>")
		res, err := q.DequeueFront(ctx, args[1])
		if err != nil {
			fatal("complete: %v", err)
		}
		printJSON(res)

	default:
		fatal("unknown character command: %s", args[0])
	}
}

func handleQuest(ctx context.Context, q *quest.Queue, args []string) {
	if len(args) == 0 {
		fatal("Usage: lists quest <create|list|get|search>")
	}

	switch args[0] {
	case "create":
		flags := parseFlags(args[1:])
		created, err := q.CreateQuest(ctx, flags["name"], flags["description"], intFlag(flags, "xp", 0))
		if err != nil {
			fatal("create quest: %v", err)
		}
		printJSON(created)

	case "list":
		flags := parseFlags(args[1:])
		quests, err := q.Quests(ctx, flags["status"], intFlag(flags, "limit", 20))
		if err != nil {
			fatal("list quests: %v", err)
		}
		if flags["format"] == "short" {
			for _, qu := range quests {
				fmt.Printf("%-36s  %-10s  %5d  %s\n", qu.ID, qu.Status, qu.Experience, qu.Name)
			}
			return
		}
		printJSON(quests)

	case "get":
		need(args, 2, "lists quest get <id>")
		got, err := q.Quest(ctx, args[1])
		if err != nil {
			fatal("get quest: %v", err)
		}
		printJSON(got)

	case "search":
		need(args, 2, "lists quest search <pattern> [--limit=N]")
		flags := parseFlags(args[2:])
		quests, err := q.SearchQuests(ctx, args[1], intFlag(flags, "limit", 10))
		if err != nil {
			fatal("search: %v", err)
		}
		printJSON(quests)

	default:
		fatal("unknown quest command: %s", args[0])
	}
}

func handleFlight(ctx context.Context, l *flight.List, args []string) {
	if len(args) == 0 {
		fatal("Usage: lists flight <add|insert|list|all|size|front|back|pop-front|pop-back|remove|reorder|verify|get>")
	}

	switch args[0] {
	case "add":
		flags := parseFlags(args[1:])
		_, emergency := flags["emergency"]
		f, err := l.Add(ctx, flightFromFlags(flags), emergency)
		if err != nil {
			fatal("add flight: %v", err)
		}
		printJSON(f)

	case "insert":
		flags := parseFlags(args[1:])
		pos, err := strconv.Atoi(flags["position"])
		if err != nil {
			fatal("--position must be an integer")
		}
		f, err := l.InsertAt(ctx, flightFromFlags(flags), pos)
		if err != nil {
			fatal("insert flight: %v", err)
		}
		printJSON(f)

	case "list":
		flags := parseFlags(args[1:])
		seq, err := l.Sequence(ctx)
		if err != nil {
			fatal("list flights: %v", err)
		}
		if flags["format"] == "short" {
			printShortFlights(seq)
			return
		}
		printJSON(seq)

	case "all":
		all, err := l.Flights(ctx)
		if err != nil {
			fatal("all flights: %v", err)
		}
		printJSON(all)

	case "size":
		n, err := l.Len(ctx)
		if err != nil {
			fatal("size: %v", err)
		}
		fmt.Println(n)

	case "front", "back":
		peek := l.PeekFront
		if args[0] == "back" {
			peek = l.PeekBack
		}
		f, ok, err := peek(ctx)
		if err != nil {
			fatal("peek: %v", err)
		}
		if !ok {
			fatal("no flights in the list")
		}
		printJSON(f)

	case "pop-front":
		f, err := l.RemoveFront(ctx)
		if err != nil {
			fatal("pop front: %v", err)
		}
		printJSON(f)

	case "pop-back":
		f, err := l.RemoveBack(ctx)
		if err != nil {
			fatal("pop back: %v", err)
		}
		printJSON(f)

	case "remove":
		need(args, 2, "lists flight remove <position>")
		pos, err := strconv.Atoi(args[1])
		if err != nil {
			fatal("position must be an integer")
		}
		f, err := l.RemoveAt(ctx, pos)
		if err != nil {
			fatal("remove: %v", err)
		}
		printJSON(f)

	case "reorder":
		need(args, 2, "lists flight reorder <"+strings.Join(flight.CriterionNames(), "|")+">")
		seq, err := l.ReorderBy(ctx, args[1])
		if err != nil {
			fatal("reorder: %v", err)
		}
		printShortFlights(seq)

	case "verify":
		rep, err := l.Verify(ctx)
		if err != nil {
			fatal("verify: %v", err)
		}
		printJSON(rep)
		if !rep.Valid {
			os.Exit(2)
		}

	case "get":
		need(args, 2, "lists flight get <id>")
		f, err := l.Flight(ctx, args[1])
		if err != nil {
			fatal("get flight: %v", err)
		}
		printJSON(f)

	default:
		fatal("unknown flight command: %s", args[0])
	}
}

func handleStatus(ctx context.Context, e *stores.Engines) {
	characters, quests, err := e.Quests.Counts(ctx)
	if err != nil {
		fatal("count quests: %v", err)
	}
	size, err := e.Flights.Len(ctx)
	if err != nil {
		fatal("flight size: %v", err)
	}
	fmt.Printf("Characters: %d\nQuests: %d\nFlights in list: %d\n", characters, quests, size)
}

func flightFromFlags(flags map[string]string) *flight.Flight {
	f := &flight.Flight{
		ID:          flags["id"],
		Code:        flags["code"],
		Status:      flags["status"],
		Origin:      flags["origin"],
		Destination: flags["destination"],
	}
	if at := flags["at"]; at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			fatal("--at must be RFC 3339: %v", err)
		}
		f.ScheduledAt = t
	}
	return f
}

func printShortFlights(flights []flight.Flight) {
	for i, f := range flights {
		fmt.Printf("%3d  %-8s  %-10s  %s  %s->%s\n", i, f.Code, f.Status,
			f.ScheduledAt.Format("2006-01-02 15:04"), f.Origin, f.Destination)
	}
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fatal("Usage: %s", usage)
	}
}

func parseFlags(args []string) map[string]string {
	flags := make(map[string]string)
	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		arg = strings.TrimPrefix(arg, "--")
		if idx := strings.Index(arg, "="); idx >= 0 {
			flags[arg[:idx]] = arg[idx+1:]
		} else {
			flags[arg] = ""
		}
	}
	return flags
}

func intFlag(flags map[string]string, key string, defaultVal int) int {
	if v, ok := flags[key]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("encode JSON: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "lists: "+format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: lists <command>

Commands:
  character  Character operations (create, get, quests, assign, complete)
  quest      Quest operations (create, list, get, search)
  flight     Flight list operations (add, insert, list, all, size, front, back,
             pop-front, pop-back, remove, reorder, verify, get)
  status     Show store summary
  init       Create missing tables

The store is configured by LISTS_CONFIG (TOML path) and LISTS_* variables.`)
}
