// Package main is the kontext CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/hyperjump/kontext/internal/cli"
	"github.com/hyperjump/kontext/internal/config"
	"github.com/hyperjump/kontext/internal/graph"
	"github.com/hyperjump/kontext/internal/memory"
	"github.com/hyperjump/kontext/internal/models"
	"github.com/hyperjump/kontext/internal/pipeline"
	"github.com/hyperjump/kontext/internal/storage"
	"github.com/hyperjump/kontext/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kontext/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory takes precedence, and if neither file exists the built-in defaults rooted at the
// current directory are used. Returns the config and the path that was loaded ("" for
// built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		fallback := filepath.Join(cwd, "config.yaml")
		if _, err := os.Stat(fallback); err == nil {
			cfg, err := config.Load(fallback)
			if err != nil {
				return nil, "", err
			}
			return cfg, fallback, nil
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(cwd), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "ask":
		runAsk(args)
	case "record":
		runRecord(args)
	case "reset":
		runReset(args)
	case "ingest":
		runIngest(args)
	case "delete":
		runDelete(args)
	case "config":
		runConfigSet(subcommand(args, "config", "set"))
	case "rule":
		runRuleAdd(subcommand(args, "rule", "add"))
	case "node":
		runNodeAdd(subcommand(args, "node", "add"))
	case "rel":
		runRelAdd(subcommand(args, "rel", "add"))
	case "cache":
		runCache(args)
	case "status":
		runStatus(args)
	case "watch":
		runWatch(args)
	case "version", "--version", "-v":
		fmt.Printf("kontext version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// subcommand checks that args starts with want and returns the rest.
func subcommand(args []string, command, want string) []string {
	if len(args) == 0 || args[0] != want {
		fatalf("Usage: kontext %s %s [flags]", command, want)
	}
	return args[1:]
}

// argsReorder moves any flags (and their values) that appear after the positional arguments
// to the front so flag.Parse sees them. "kontext ask what is x -output json" would otherwise
// leave -output unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildQuestion joins all positional args with spaces so multi-word questions work with or
// without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// propsFlag collects repeated -prop key=value flags.
type propsFlag map[string]string

func (p propsFlag) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + p[k]
	}
	return strings.Join(parts, ",")
}

func (p propsFlag) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("property must be key=value, got %q", v)
	}
	p[strings.TrimSpace(k)] = val
	return nil
}

// env is the config and logger shared by every subcommand.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func setup(configPath string, debug bool) *env {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return &env{cfg: cfg, logger: logger}
}

func (e *env) openSystem(ctx context.Context) *pipeline.System {
	sys, err := pipeline.Open(ctx, e.cfg, e.logger)
	if err != nil {
		e.logger.Fatal("Failed to initialize", zap.Error(err))
	}
	return sys
}

func (e *env) openMemory() *memory.Store {
	mem, err := memory.New(e.cfg.Storage.MemoryDir,
		memory.WithWindow(e.cfg.Memory.WindowSize),
		memory.WithLogger(e.logger))
	if err != nil {
		fatalf("Failed to open memory: %v", err)
	}
	return mem
}

func (e *env) openStorage() *storage.SQLiteStorage {
	store, err := storage.NewSQLiteStorage(e.cfg.Storage.DatabasePath)
	if err != nil {
		fatalf("Failed to open storage: %v", err)
	}
	return store
}

func (e *env) openGraph() *graph.Store {
	g, err := graph.Open(e.cfg.Storage.GraphPath, graph.WithLogger(e.logger))
	if err != nil {
		fatalf("Failed to open graph: %v", err)
	}
	return g
}

func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))

	question := buildQuestion(fs.Args())
	if question == "" {
		fatalf("Usage: kontext ask [flags] <question>")
	}
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fatalf("%v", err)
	}

	if !ask(context.Background(), setup(*configPath, *debug), question, format, os.Stdout) {
		os.Exit(1)
	}
}

// ask answers one question and reports whether it succeeded. The system is closed and the
// logger synced before it returns, so the caller may exit right after.
func ask(ctx context.Context, e *env, question string, format cli.OutputFormat, w io.Writer) bool {
	defer e.logger.Sync()
	sys := e.openSystem(ctx)
	defer func() {
		if err := sys.Close(); err != nil {
			e.logger.Warn("close failed", zap.Error(err))
		}
	}()

	res := sys.Pipeline.Process(ctx, question)
	if err := cli.WriteResult(w, res, format); err != nil {
		e.logger.Error("output failed", zap.Error(err))
		return false
	}
	return !res.Failed
}

func runRecord(args []string) {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	user := fs.String("user", "", "user message")
	assistant := fs.String("assistant", "", "assistant reply")
	_ = fs.Parse(args)
	if *user == "" {
		fatalf("Usage: kontext record -user <text> [-assistant <text>]")
	}

	e := setup(*configPath, false)
	defer e.logger.Sync()
	if err := e.openMemory().Record(*user, *assistant); err != nil {
		fatalf("Record failed: %v", err)
	}
	fmt.Println("Turn recorded")
}

func runReset(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(args)

	e := setup(*configPath, false)
	defer e.logger.Sync()
	if err := e.openMemory().Reset(); err != nil {
		fatalf("Reset failed: %v", err)
	}
	fmt.Println("Memory cleared")
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 1 {
		fatalf("Usage: kontext ingest [flags] <file-or-directory>...")
	}

	e := setup(*configPath, *debug)
	defer e.logger.Sync()
	ctx := context.Background()
	sys := e.openSystem(ctx)
	defer sys.Close()

	failed := false
	for _, path := range fs.Args() {
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to stat %s: %v\n", path, err)
			failed = true
			continue
		}
		if info.IsDir() {
			n, err := sys.Indexer.IndexDirectory(ctx, path, e.cfg.Watch.Extensions)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Indexing directory %s failed: %v\n", path, err)
				failed = true
				continue
			}
			fmt.Printf("Indexed %d file(s) from %s\n", n, path)
			continue
		}
		skipped, err := sys.Indexer.IndexFile(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Indexing %s failed: %v\n", path, err)
			failed = true
			continue
		}
		if skipped {
			fmt.Printf("Unchanged: %s\n", path)
			continue
		}
		fmt.Printf("Indexed: %s\n", path)
	}
	if err := sys.Indexer.Flush(); err != nil {
		fatalf("Saving vector index failed: %v", err)
	}
	if failed {
		os.Exit(1)
	}
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		fatalf("Usage: kontext delete [flags] <document-id>")
	}
	docID := fs.Arg(0)

	e := setup(*configPath, false)
	defer e.logger.Sync()
	ctx := context.Background()
	sys := e.openSystem(ctx)
	defer sys.Close()

	if err := sys.Indexer.DeleteDocument(ctx, docID); err != nil {
		fatalf("Deletion failed: %v", err)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runConfigSet(args []string) {
	fs := flag.NewFlagSet("config set", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	key := fs.String("key", "", "config key")
	value := fs.String("value", "", "config value")
	description := fs.String("description", "", "description")
	category := fs.String("category", "", "category")
	_ = fs.Parse(args)
	if *key == "" {
		fatalf("Usage: kontext config set -key <key> -value <value> [-description d] [-category c]")
	}

	e := setup(*configPath, false)
	defer e.logger.Sync()
	store := e.openStorage()
	defer store.Close()
	err := store.PutConfig(context.Background(), models.ConfigEntry{
		Key: *key, Value: *value, Description: *description, Category: *category,
	})
	if err != nil {
		fatalf("Saving config entry failed: %v", err)
	}
	fmt.Printf("Config entry saved: %s\n", *key)
}

func runRuleAdd(args []string) {
	fs := flag.NewFlagSet("rule add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	name := fs.String("name", "", "rule name")
	condition := fs.String("condition", "", "when the rule applies")
	action := fs.String("action", "", "what the rule does")
	category := fs.String("category", "", "category")
	_ = fs.Parse(args)
	if *name == "" {
		fatalf("Usage: kontext rule add -name <name> -condition <c> -action <a> [-category c]")
	}

	e := setup(*configPath, false)
	defer e.logger.Sync()
	store := e.openStorage()
	defer store.Close()
	rule := &models.Rule{Name: *name, Condition: *condition, Action: *action, Category: *category}
	if err := store.AddRule(context.Background(), rule); err != nil {
		fatalf("Saving rule failed: %v", err)
	}
	fmt.Printf("Rule saved: %s (id %d)\n", rule.Name, rule.ID)
}

func runNodeAdd(args []string) {
	fs := flag.NewFlagSet("node add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	id := fs.String("id", "", "node id")
	label := fs.String("label", "", "node label")
	props := propsFlag{}
	fs.Var(props, "prop", "property key=value (repeatable)")
	_ = fs.Parse(args)
	if *id == "" {
		fatalf("Usage: kontext node add -id <id> [-label l] [-prop 职位=工程师]...")
	}

	e := setup(*configPath, false)
	defer e.logger.Sync()
	if err := e.openGraph().AddNode(*id, *label, props); err != nil {
		fatalf("Saving node failed: %v", err)
	}
	fmt.Printf("Node saved: %s\n", *id)
}

func runRelAdd(args []string) {
	fs := flag.NewFlagSet("rel add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	from := fs.String("from", "", "source node id")
	to := fs.String("to", "", "target node id")
	relation := fs.String("type", "", "relationship type")
	props := propsFlag{}
	fs.Var(props, "prop", "property key=value (repeatable)")
	_ = fs.Parse(args)
	if *from == "" || *to == "" || *relation == "" {
		fatalf("Usage: kontext rel add -from <id> -to <id> -type <relation> [-prop k=v]...")
	}

	e := setup(*configPath, false)
	defer e.logger.Sync()
	if err := e.openGraph().AddRelationship(*from, *to, *relation, props); err != nil {
		fatalf("Saving relationship failed: %v", err)
	}
	fmt.Printf("Relationship saved: %s -[%s]-> %s\n", *from, *relation, *to)
}

func runCache(args []string) {
	if len(args) < 1 {
		fatalf("Usage: kontext cache <stats|clear> [flags]")
	}
	sub := args[0]
	fs := flag.NewFlagSet("cache "+sub, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json (stats)")
	expired := fs.Bool("expired", false, "only remove expired, stale or corrupt entries (clear)")
	_ = fs.Parse(args[1:])

	e := setup(*configPath, false)
	defer e.logger.Sync()
	store := e.openStorage()
	defer store.Close()
	c, err := pipeline.NewCache(e.cfg, store, e.openGraph(), e.logger)
	if err != nil {
		fatalf("Failed to open cache: %v", err)
	}

	switch sub {
	case "stats":
		format, err := cli.ParseOutputFormat(*output)
		if err != nil {
			fatalf("%v", err)
		}
		st, err := c.Stats()
		if err != nil {
			fatalf("Cache stats failed: %v", err)
		}
		if err := cli.WriteCacheStats(os.Stdout, st, format); err != nil {
			fatalf("Output failed: %v", err)
		}
	case "clear":
		n, err := c.Clear(*expired)
		if err != nil {
			fatalf("Cache clear failed: %v", err)
		}
		fmt.Printf("Removed %d cache entr%s\n", n, plural(n, "y", "ies"))
	default:
		fatalf("Unknown cache subcommand: %s", sub)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fatalf("%v", err)
	}

	e := setup(*configPath, false)
	defer e.logger.Sync()
	ctx := context.Background()
	sys := e.openSystem(ctx)
	defer sys.Close()

	var st cli.Status
	if st.Documents, err = sys.Storage.CountDocuments(ctx); err != nil {
		fatalf("Count documents failed: %v", err)
	}
	if st.Chunks, err = sys.Storage.CountChunks(ctx); err != nil {
		fatalf("Count chunks failed: %v", err)
	}
	if st.VectorSize, err = sys.Vectors.Size(ctx); err != nil {
		fatalf("Vector index size failed: %v", err)
	}
	st.Nodes, st.Relationships = sys.Graph.Stats()
	if st.Cache, err = sys.Cache.Stats(); err != nil {
		fatalf("Cache stats failed: %v", err)
	}
	st.MemoryTurns = len(sys.Memory.Turns())
	if err := cli.WriteStatus(os.Stdout, st, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	e := setup(*configPath, *debug)
	defer e.logger.Sync()
	e.cfg.Watch.Dirs = append(e.cfg.Watch.Dirs, absAll(fs.Args())...)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	sys := e.openSystem(ctx)
	defer sys.Close()

	if err := sys.Watch(ctx); err != nil {
		e.logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	e.logger.Info("watching",
		zap.String("graph", e.cfg.Storage.GraphPath),
		zap.Strings("dirs", e.cfg.Watch.Dirs))
	<-ctx.Done()
	e.logger.Info("Shutting down...")
}

func absAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	return out
}

func printUsage() {
	fmt.Println(`kontext - retrieval-orchestration pipeline

Usage:
  kontext ask [flags] <question>       Route, retrieve and print the assembled prompt
  kontext record -user u -assistant a  Append a conversation turn to memory
  kontext reset                        Clear conversation memory
  kontext ingest [flags] <path>...     Index text files or directories into the document store
  kontext delete [flags] <id>          Delete a document
  kontext config set [flags]           Add or replace a structured config entry
  kontext rule add [flags]             Add a structured rule
  kontext node add [flags]             Add a graph node
  kontext rel add [flags]              Add a graph relationship
  kontext cache stats|clear [flags]    Inspect or sweep the retrieval cache
  kontext status [flags]               Show store, index and cache status
  kontext watch [flags] [dir]...       Keep documents and the graph in sync with files on disk
  kontext version                      Show version
  kontext help                         Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kontext/config.yaml,
                     or ./config.yaml when present)
  --output string    Output format for ask, status and cache stats: text or json
  --debug            Enable debug logging (ask, ingest, watch)

Cache Flags:
  --expired          With clear, only remove expired, stale or corrupt entries

Embeddings:
  Without a config file the built-in mock embedder is used. Its vectors are
  hash-seeded, so routing and semantic ranking ignore meaning. Set
  embedding.provider: http (an Ollama-compatible /api/embeddings endpoint)
  for real results.

Examples:
  kontext config set -key api_limit -value 100/min -description "API rate limit" -category api
  kontext node add -id 张三 -label Person -prop 职位=工程师
  kontext rel add -from 张三 -to 李四 -type 合作
  kontext ingest ./docs
  kontext ask What is the API rate limit?
  kontext ask --output json 张三的合作者有哪些
  kontext record -user "What is the API rate limit?" -assistant "100 requests per minute"
  kontext cache clear --expired`)
}
