// cmd/tradebot runs one strategy headless, either over historical candles
// from SQLite (backtest) or against a live WebSocket kline feed (live).
//
// Usage:
//
//	tradebot backtest [--config=config.yaml] [--strategy=ma_rsi] [--from=2023-01-01] [--to=2023-01-31] [--delay-ms=0]
//	tradebot live     [--config=config.yaml] [--strategy=ma_rsi] [--feed-url=wss://...]
//	tradebot gateway  [--config=config.yaml]
//	tradebot strategies
//	tradebot init-config [--config=config.yaml]
//
// Every subcommand accepts --log-level (DEBUG, INFO, WARNING, ERROR).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/config"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/strategy"
)

const usage = `usage: tradebot <backtest|live|gateway|strategies|init-config> [flags]`

// options are the flags shared by the run subcommands.
type options struct {
	configPath string
	logLevel   string
	strategy   string
	symbol     string
	from, to   string
	delayMs    int
	feedURL    string
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	opts := options{delayMs: -1}
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.StringVar(&opts.configPath, "config", "config.yaml", "Path to YAML config file (optional)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Override logging level (DEBUG, INFO, WARNING, ERROR)")
	fs.StringVar(&opts.strategy, "strategy", "", "Strategy kind (overrides trading.strategy)")
	fs.StringVar(&opts.symbol, "symbol", "", "Symbol (overrides trading.symbol)")
	switch cmd {
	case "backtest":
		fs.StringVar(&opts.from, "from", "", "Start date YYYY-MM-DD (overrides backtesting.start_date)")
		fs.StringVar(&opts.to, "to", "", "End date YYYY-MM-DD, inclusive (overrides backtesting.end_date)")
		fs.IntVar(&opts.delayMs, "delay-ms", -1, "Per-tick replay delay in ms (overrides backtesting.processing_delay_ms)")
	case "live":
		fs.StringVar(&opts.feedURL, "feed-url", "", "WebSocket feed URL (overrides live.feed_url)")
	}
	fs.Parse(args)

	switch cmd {
	case "init-config":
		if err := config.Save(config.Default(), opts.configPath); err != nil {
			log.Fatalf("[tradebot] %v", err)
		}
		log.Printf("[tradebot] wrote default config to %s", opts.configPath)
		return
	case "strategies":
		printStrategies(strategy.DefaultRegistry())
		return
	case "backtest", "live", "gateway":
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		log.Fatalf("[tradebot] config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[tradebot] received %s, stopping run...", sig)
		cancel()
	}()

	if cmd == "gateway" {
		if err := runGateway(ctx, cfg); err != nil {
			log.Fatalf("[tradebot] gateway: %v", err)
		}
		return
	}

	a, err := newApp(cfg, cmd == "live")
	if err != nil {
		log.Fatalf("[tradebot] startup: %v", err)
	}

	if cmd == "backtest" {
		err = a.backtest(ctx)
	} else {
		err = a.live(ctx)
	}
	a.close()
	if err != nil {
		log.Printf("[tradebot] run failed: %v", err)
		os.Exit(1)
	}
}

// loadConfig applies command-line overrides after file and env.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(opts.logLevel)
	}
	if opts.strategy != "" {
		cfg.Trading.Strategy = opts.strategy
	}
	if opts.symbol != "" {
		cfg.Trading.Symbol = strings.ToUpper(opts.symbol)
	}
	if opts.from != "" {
		cfg.Backtesting.StartDate = opts.from
	}
	if opts.to != "" {
		cfg.Backtesting.EndDate = opts.to
	}
	if opts.delayMs >= 0 {
		cfg.Backtesting.ProcessingDelayMs = opts.delayMs
	}
	if opts.feedURL != "" {
		cfg.Live.FeedURL = opts.feedURL
	}
	return cfg, cfg.Validate()
}

func printStrategies(reg *strategy.Registry) {
	for _, f := range reg.Kinds() {
		fmt.Printf("%s  %s\n", f.ID, f.Description)
		params := append([]strategy.ParamSpec(nil), f.Params...)
		sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
		for _, p := range params {
			fmt.Printf("    %-18s default=%-8g range=[%g, %g]  %s\n", p.Name, p.Default, p.Min, p.Max, p.Description)
		}
	}
}
