package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

// DefaultFeedProxies are tried in order after a direct feed request fails.
// Each template wraps the target URL at the {url} placeholder.
var DefaultFeedProxies = []string{
	"https://api.allorigins.win/raw?url={url}",
	"https://corsproxy.io/?url={url}",
	"https://api.codetabs.com/v1/proxy?quest={url}",
}

const DefaultPageProxy = "https://api.allorigins.win/get?url={url}"

type rawCfg struct {
	// Storage configuration
	DBPath       string `long:"db-path" env:"DB_PATH" default:"./data/calcomb.db" description:"SQLite database path"`
	KVPath       string `long:"kv-path" env:"KV_PATH" default:"./data/kv.json" description:"File key-value store used when Redis is unavailable"`
	RedisAddr    string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the durable key-value tier (optional)"`
	CalendarsDir string `long:"calendars-dir" env:"CALENDARS_DIR" default:"./calendars" description:"Directory containing calendar source files"`

	// Sync configuration
	SyncInterval         int    `long:"sync-interval" env:"SYNC_INTERVAL" default:"900" description:"Foreground sync interval in seconds"`
	BackgroundCron       string `long:"background-cron" env:"BACKGROUND_CRON" default:"@every 12h" description:"Schedule for periodic background sync"`
	EnableBackgroundSync bool   `long:"background-sync" env:"BACKGROUND_SYNC" description:"Enable the detached background sync context"`
	EnablePeriodicSync   bool   `long:"periodic-sync" env:"PERIODIC_SYNC" description:"Enable periodic background sync"`
	BackgroundTimeout    int    `long:"background-timeout" env:"BACKGROUND_TIMEOUT" default:"5" description:"Background registration timeout in seconds"`
	RequestTimeout       int    `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"30" description:"Upstream request timeout in seconds"`
	CacheTTL             int    `long:"cache-ttl" env:"CACHE_TTL" default:"21600" description:"Cache freshness window in seconds"`
	YearWindow           int    `long:"year-window" env:"YEAR_WINDOW" description:"Year to expand recurring events into (defaults to the current year at each sync)"`

	// Source fetching
	FeedProxies []string `long:"feed-proxy" env:"FEED_PROXIES" env-delim:"," description:"Ordered proxy templates for calendar feeds, {url} is replaced with the target"`
	PageProxy   string   `long:"page-proxy" env:"PAGE_PROXY" description:"Envelope proxy template for scraped pages"`
	RenderPages bool     `long:"render-pages" env:"RENDER_PAGES" description:"Render scraped pages with headless Chromium before parsing"`

	// HTTP API
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for mutating endpoints (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Cal Comb/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Viewer timezone (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs parses the given arguments instead of os.Args when args is non-nil.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := fromRaw(raw)

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func fromRaw(raw rawCfg) *Cfg {
	feedProxies := raw.FeedProxies
	if len(feedProxies) == 0 {
		feedProxies = append([]string(nil), DefaultFeedProxies...)
	}

	return &Cfg{
		DBPath:               raw.DBPath,
		KVPath:               raw.KVPath,
		RedisAddr:            raw.RedisAddr,
		CalendarsDir:         raw.CalendarsDir,
		SyncInterval:         seconds(raw.SyncInterval, 900),
		BackgroundCron:       cmp.Or(raw.BackgroundCron, "@every 12h"),
		EnableBackgroundSync: raw.EnableBackgroundSync,
		EnablePeriodicSync:   raw.EnablePeriodicSync,
		BackgroundTimeout:    seconds(raw.BackgroundTimeout, 5),
		RequestTimeout:       seconds(raw.RequestTimeout, 30),
		CacheTTL:             seconds(raw.CacheTTL, 6*3600),
		YearWindow:           max(raw.YearWindow, 0),
		FeedProxies:          feedProxies,
		PageProxy:            cmp.Or(raw.PageProxy, DefaultPageProxy),
		RenderPages:          raw.RenderPages,
		Port:                 raw.Port,
		APIAccessKey:         raw.APIAccessKey,
		UserAgent:            raw.UserAgent,
		Timezone:             raw.Timezone,
		Debug:                raw.Debug,
		Version:              GetVersion(),
	}
}

func seconds(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
