package cfg

import "time"

type Cfg struct {
	// Storage configuration
	DBPath       string
	KVPath       string
	RedisAddr    string
	CalendarsDir string

	// Sync configuration
	SyncInterval         time.Duration
	BackgroundCron       string
	EnableBackgroundSync bool
	EnablePeriodicSync   bool
	BackgroundTimeout    time.Duration
	RequestTimeout       time.Duration
	CacheTTL             time.Duration
	YearWindow           int // zero follows the current year

	// Source fetching
	FeedProxies []string
	PageProxy   string
	RenderPages bool

	// HTTP API
	Port         string
	APIAccessKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
