package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/config"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/proxy"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/domain/store"
	"github.com/Lean-Agent-Protocol/ultra-lean-mcp-proxy/internal/service"
)

// runFlags holds every CLI surface flag, bound by cobra and layered
// onto the resolved config as the outermost precedence tier (defaults
// <- config file <- environment <- CLI).
type runFlags struct {
	stats               bool
	traceRPC            bool
	verbose             bool
	sessionID           string
	strictConfig        bool
	dumpEffectiveConfig bool

	enableResultCompression  bool
	disableResultCompression bool
	enableDeltaResponses     bool
	disableDeltaResponses    bool
	enableLazyLoading        bool
	disableLazyLoading       bool
	enableToolsHashSync      bool
	disableToolsHashSync     bool
	enableCaching            bool
	disableCaching           bool

	cacheTTL                 int
	deltaMinSavings          float64
	lazyMode                 string
	toolsHashRefreshInterval int
	searchTopK               int
	resultCompressionMode    string
}

var rf runFlags

var runCmd = &cobra.Command{
	Use:   "run [flags] -- upstream-command [args...]",
	Short: "Run the proxy in front of an upstream MCP server",
	Long: `run launches the configured upstream MCP server as a subprocess and
relays newline-delimited JSON-RPC 2.0 between it and this process's own
stdin/stdout, applying the optimization pipeline to tools/list and
tools/call along the way.

Everything after "--" is the upstream command line, e.g.:

  ultra-lean-mcp-proxy run -- npx @modelcontextprotocol/server-filesystem /tmp`,
	RunE:               runRun,
	DisableFlagParsing: false,
}

func init() {
	f := runCmd.Flags()
	f.BoolVar(&rf.stats, "stats", false, "print summary statistics to stderr on exit")
	f.BoolVar(&rf.traceRPC, "trace-rpc", false, "log every relayed JSON-RPC message")
	f.BoolVarP(&rf.verbose, "verbose", "v", false, "enable debug logging")
	f.StringVar(&rf.sessionID, "session-id", "", "session identifier used to key cache/history/tools-hash scopes (default: random)")
	f.BoolVar(&rf.strictConfig, "strict-config", false, "fail on unknown config keys instead of ignoring them")
	f.BoolVar(&rf.dumpEffectiveConfig, "dump-effective-config", false, "print the fully resolved config as YAML and exit")

	f.BoolVar(&rf.enableResultCompression, "enable-result-compression", false, "force result compression on")
	f.BoolVar(&rf.disableResultCompression, "disable-result-compression", false, "force result compression off")
	f.BoolVar(&rf.enableDeltaResponses, "enable-delta-responses", false, "force the delta engine on")
	f.BoolVar(&rf.disableDeltaResponses, "disable-delta-responses", false, "force the delta engine off")
	f.BoolVar(&rf.enableLazyLoading, "enable-lazy-loading", false, "force lazy tool visibility on")
	f.BoolVar(&rf.disableLazyLoading, "disable-lazy-loading", false, "force lazy tool visibility off")
	f.BoolVar(&rf.enableToolsHashSync, "enable-tools-hash-sync", false, "force tools-hash sync on")
	f.BoolVar(&rf.disableToolsHashSync, "disable-tools-hash-sync", false, "force tools-hash sync off")
	f.BoolVar(&rf.enableCaching, "enable-caching", false, "force the response cache on")
	f.BoolVar(&rf.disableCaching, "disable-caching", false, "force the response cache off")

	f.IntVar(&rf.cacheTTL, "cache-ttl", 0, "base cache TTL in seconds")
	f.Float64Var(&rf.deltaMinSavings, "delta-min-savings", 0, "minimum delta savings ratio to accept a patch")
	f.StringVar(&rf.lazyMode, "lazy-mode", "", "lazy visibility mode: off|minimal|catalog|search_only")
	f.IntVar(&rf.toolsHashRefreshInterval, "tools-hash-refresh-interval", 0, "force a real tools/list fetch every N matching conditionals")
	f.IntVar(&rf.searchTopK, "search-top-k", 0, "number of matches returned by the search meta-tool")
	f.StringVar(&rf.resultCompressionMode, "result-compression-mode", "", "result compression mode: off|balanced|aggressive")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	upstreamCommand := args
	if cmd.ArgsLenAtDash() >= 0 {
		upstreamCommand = args[cmd.ArgsLenAtDash():]
	}

	v := config.InitViper(cfgFile)
	cfg, err := config.LoadConfig(v, rf.strictConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyCLIOverrides(cfg, cmd)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed after CLI overrides: %w", err)
	}

	if rf.dumpEffectiveConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal effective config: %w", err)
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	if len(upstreamCommand) == 0 {
		return fmt.Errorf("no upstream command given; pass it after \"--\"")
	}

	logger := newLogger(rf.verbose || cfg.Proxy.TraceRPC, cfg.Proxy.LogLevel)
	if configFile := config.ConfigFileUsed(v); configFile != "" {
		logger.Debug("loaded config file", "path", configFile)
	}

	sessionID := rf.sessionID
	if sessionID == "" {
		sessionID = cfg.Proxy.SessionID
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	joinedCommand := strings.Join(upstreamCommand, " ")
	resolver := config.NewResolver(cfg, joinedCommand)

	session := &proxy.Session{
		ID:              sessionID,
		ServerName:      upstreamCommand[0],
		UpstreamCommand: joinedCommand,
	}

	st := store.New(cfg.Proxy.MaxCacheEntries)

	statsEnabled := rf.stats || cfg.Proxy.Stats
	var statsService *service.StatsService
	var recorder proxy.StatsRecorder
	if statsEnabled {
		statsService = service.NewStatsService()
		recorder = statsService
	}

	pipeline := proxy.NewPipeline(st, resolver, session, logger, statsEnabled, recorder)

	client := service.NewStdioUpstreamClient(upstreamCommand)
	svc := service.NewProxyService(client, pipeline, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := svc.Run(ctx, os.Stdin, os.Stdout)

	if statsEnabled && statsService != nil {
		printStats(statsService.GetStats())
	}

	exitCode := service.UpstreamExitCode(runErr)
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// applyCLIOverrides layers every explicitly-set flag onto cfg, the
// outermost tier of the "defaults <- config file <- environment <- CLI"
// precedence chain. Only flags the user actually passed are applied;
// Changed() distinguishes "not passed" from "passed its zero value".
func applyCLIOverrides(cfg *config.ProxyConfig, cmd *cobra.Command) {
	flags := cmd.Flags()
	o := &cfg.Optimizations

	if flags.Changed("stats") {
		cfg.Proxy.Stats = rf.stats
	}
	if flags.Changed("trace-rpc") {
		cfg.Proxy.TraceRPC = rf.traceRPC
	}
	if flags.Changed("strict-config") {
		cfg.Proxy.StrictConfig = rf.strictConfig
	}
	if flags.Changed("session-id") {
		cfg.Proxy.SessionID = rf.sessionID
	}

	if rf.enableResultCompression {
		o.ResultCompression.Enabled = true
	}
	if rf.disableResultCompression {
		o.ResultCompression.Enabled = false
		o.ResultCompression.Mode = "off"
	}
	if rf.enableDeltaResponses {
		o.DeltaResponses.Enabled = true
	}
	if rf.disableDeltaResponses {
		o.DeltaResponses.Enabled = false
	}
	if rf.enableLazyLoading {
		o.LazyLoading.Enabled = true
		if o.LazyLoading.Mode == "off" || o.LazyLoading.Mode == "" {
			o.LazyLoading.Mode = "minimal"
		}
	}
	if rf.disableLazyLoading {
		o.LazyLoading.Enabled = false
		o.LazyLoading.Mode = "off"
	}
	if rf.enableToolsHashSync {
		o.ToolsHashSync.Enabled = true
	}
	if rf.disableToolsHashSync {
		o.ToolsHashSync.Enabled = false
	}
	if rf.enableCaching {
		o.Caching.Enabled = true
	}
	if rf.disableCaching {
		o.Caching.Enabled = false
	}

	if flags.Changed("cache-ttl") {
		o.Caching.TTLSeconds = rf.cacheTTL
	}
	if flags.Changed("delta-min-savings") {
		o.DeltaResponses.MinSavingsRatio = rf.deltaMinSavings
	}
	if flags.Changed("lazy-mode") {
		o.LazyLoading.Mode = rf.lazyMode
	}
	if flags.Changed("tools-hash-refresh-interval") {
		o.ToolsHashSync.RefreshInterval = rf.toolsHashRefreshInterval
	}
	if flags.Changed("search-top-k") {
		o.LazyLoading.SearchTopK = rf.searchTopK
	}
	if flags.Changed("result-compression-mode") {
		o.ResultCompression.Mode = rf.resultCompressionMode
	}
}

func newLogger(verbose bool, configuredLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(configuredLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func printStats(s service.Stats) {
	fmt.Fprintf(os.Stderr, "--- ultra-lean-mcp-proxy summary ---\n")
	fmt.Fprintf(os.Stderr, "cache:       %d hits / %d misses\n", s.CacheHits, s.CacheMisses)
	fmt.Fprintf(os.Stderr, "hash-sync:   %d conditional / %d full\n", s.HashSyncConditional, s.HashSyncFull)
	fmt.Fprintf(os.Stderr, "lazy search: %d calls\n", s.LazySearches)
	fmt.Fprintf(os.Stderr, "compression: %d applied / %d skipped\n", s.ResultCompressed, s.ResultSkipped)
	fmt.Fprintf(os.Stderr, "delta:       %d applied / %d snapshots\n", s.DeltaApplied, s.DeltaSnapshot)
	fmt.Fprintf(os.Stderr, "bytes saved: %d\n", s.BytesSaved)
	if len(s.ToolCalls) > 0 {
		fmt.Fprintf(os.Stderr, "tool calls:\n")
		for tool, n := range s.ToolCalls {
			fmt.Fprintf(os.Stderr, "  %s: %d\n", tool, n)
		}
	}
}
