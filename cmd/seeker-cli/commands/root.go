package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"scholar-seeker-ai/lib/browser/restybrowser"
	"scholar-seeker-ai/lib/configutil"
	"scholar-seeker-ai/lib/restyutil"
	"scholar-seeker-ai/lib/scrapers/arxiv/auth"
	"scholar-seeker-ai/lib/scrapers/arxiv/session"
	"scholar-seeker-ai/lib/serviceutil"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "seeker-cli",
	Short: "seeker-cli scans arxiv papers for authors who can endorse.",
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Config is read from config.json5, every field has a usable default.
type Config struct {
	SiteUrl string `json:"site_url"`
	// seconds between paper fetches
	DelaySeconds int `json:"delay_seconds"`
	// session state file, defaults to ~/.scholar-seeker/arxiv_auth_state.json
	SessionFile string `json:"session_file"`
	// scan history db, defaults to ~/.scholar-seeker/history.db
	HistoryDb string `json:"history_db"`
	// listing page cache dir, empty disables caching
	CacheDir string `json:"cache_dir"`
}

func readConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("failed to read config", err)
	}
	if cfg.SiteUrl == "" {
		cfg.SiteUrl = "https://arxiv.org"
	}
	if cfg.SessionFile == "" {
		path, err := session.DefaultPath()
		if err != nil {
			serviceutil.Fatal("failed to resolve session file path", err)
		}
		cfg.SessionFile = path
	}
	if cfg.HistoryDb == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			serviceutil.Fatal("failed to resolve home directory", err)
		}
		cfg.HistoryDb = home + "/.scholar-seeker/history.db"
	}
	return cfg
}

// readCredentials pulls credentials from the environment, .env
// included. They only ever live in memory, the session file holds
// cookies, never the password.
func readCredentials() auth.Credentials {
	godotenv.Load()

	username := os.Getenv("ARXIV_USER")
	if username == "" {
		username = os.Getenv("ARXIV_USERNAME")
	}
	password := os.Getenv("ARXIV_PASS")
	if password == "" {
		password = os.Getenv("ARXIV_PASSWORD")
	}
	return auth.Credentials{Username: username, Password: password}
}

func createBrowser(ctx context.Context, cfg Config) *restybrowser.Browser {
	var output restyutil.InstrumentOutput
	if os.Getenv("SEEKER_DEBUG_HTTP") != "" {
		output = restyutil.NewFilesystemOutput(".dev/resty/seeker")
	}

	b, err := restybrowser.New(ctx, restybrowser.Options{
		BaseUrl:          cfg.SiteUrl,
		Timeout:          time.Second * 30,
		InstrumentOutput: output,
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize browser", err)
	}
	return b
}

func createAuthManager(b *restybrowser.Browser, cfg Config) *auth.Manager {
	authCfg := auth.DefaultConfig()
	authCfg.SiteUrl = cfg.SiteUrl

	mgr, err := auth.NewManager(b, session.NewStore(cfg.SessionFile), authCfg)
	if err != nil {
		serviceutil.Fatal("failed to initialize auth manager", err)
	}
	return mgr
}
