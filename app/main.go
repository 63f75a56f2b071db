package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	gonotify "github.com/go-pkgz/notify"
	"github.com/joho/godotenv"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/jobtrack/app/importer"
	"github.com/umputun/jobtrack/app/jobs"
	"github.com/umputun/jobtrack/app/kv"
	"github.com/umputun/jobtrack/app/notify"
	"github.com/umputun/jobtrack/app/refresh"
	"github.com/umputun/jobtrack/app/resumes"
	"github.com/umputun/jobtrack/app/web"
)

var opts struct {
	Listen            string `long:"listen" env:"JOBTRACK_LISTEN" default:":8080" description:"web server listen address"`
	BaseURL           string `long:"base-url" env:"JOBTRACK_BASE_URL" description:"base URL path for reverse proxy (e.g., /jobtrack)"`
	Import            string `long:"import" env:"JOBTRACK_IMPORT" description:"yaml file with jobs to import on start, jobs with known company and date skipped"`
	ImportConcurrency int    `long:"import-concurrency" env:"JOBTRACK_IMPORT_CONCURRENCY" default:"4" description:"parallel writes during import"`
	Dbg               bool   `long:"dbg" env:"JOBTRACK_DEBUG" description:"debug mode"`

	KV struct {
		Type      string        `long:"type" env:"TYPE" choice:"memory" choice:"sqlite" choice:"mysql" choice:"redis" default:"sqlite" description:"key-value backend"`
		SQLite    string        `long:"sqlite" env:"SQLITE" default:"jobtrack.db" description:"sqlite database file"`
		MySQL     string        `long:"mysql" env:"MYSQL" description:"mysql dsn, user:pass@tcp(host:3306)/db"`
		Redis     string        `long:"redis" env:"REDIS" default:"redis://localhost:6379/0" description:"redis url"`
		Namespace string        `long:"namespace" env:"NAMESPACE" description:"redis key namespace"`
		Attempts  int           `long:"attempts" env:"ATTEMPTS" default:"1" description:"how many times to try a failed call"`
		Duration  time.Duration `long:"duration" env:"DURATION" default:"100ms" description:"initial retry delay"`
		Factor    float64       `long:"factor" env:"FACTOR" default:"2" description:"retry backoff factor"`
		Jitter    bool          `long:"jitter" env:"JITTER" description:"retry jitter"`
	} `group:"kv" namespace:"kv" env-namespace:"JOBTRACK_KV"`

	Sync struct {
		Schedule string `long:"schedule" env:"SCHEDULE" default:"@every 5m" description:"reload schedule, empty to disable"`
	} `group:"sync" namespace:"sync" env-namespace:"JOBTRACK_SYNC"`

	Auth struct {
		PasswordHash string        `long:"password-hash" env:"PASSWORD_HASH" description:"bcrypt hash of web ui password"`
		TTL          time.Duration `long:"ttl" env:"TTL" default:"168h" description:"login session lifetime"`
	} `group:"auth" namespace:"auth" env-namespace:"JOBTRACK_AUTH"`

	Notify struct {
		To       []string      `long:"to" env:"TO" env-delim:"," description:"notification destinations, webhook urls or mailto: links"`
		Timeout  time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"notification send timeout"`
		HostName string        `long:"host" env:"HOSTNAME" description:"host name shown in notifications and ui"`
		SMTP     struct {
			Host     string        `long:"host" env:"HOST" description:"SMTP host"`
			Port     int           `long:"port" env:"PORT" default:"587" description:"SMTP port"`
			Username string        `long:"username" env:"USERNAME" description:"SMTP user name"`
			Password string        `long:"password" env:"PASSWORD" description:"SMTP password"`
			TLS      bool          `long:"tls" env:"TLS" description:"enable SMTP TLS"`
			StartTLS bool          `long:"starttls" env:"STARTTLS" description:"enable SMTP STARTTLS"`
			TimeOut  time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"SMTP TCP connection timeout"`
		} `group:"smtp" namespace:"smtp" env-namespace:"SMTP"`
	} `group:"notify" namespace:"notify" env-namespace:"JOBTRACK_NOTIFY"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"write logs to file"`
		Filename        string `long:"file" env:"FILE" default:"jobtrack.log" description:"log file name"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max log file size in MB"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"10" description:"max number of rotated files"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max days to keep rotated files, 0 to keep all"`
		EnabledCompress bool   `long:"compress" env:"COMPRESS" description:"compress rotated files"`
	} `group:"log" namespace:"log" env-namespace:"JOBTRACK_LOG"`
}

var revision = "unknown"

func main() {
	fmt.Printf("jobtrack %s\n", revision)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("failed to load .env, %v\n", err)
	}
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}
	setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals(cancel) // handle SIGQUIT, SIGINT and SIGTERM

	if err := run(ctx); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
	log.Printf("[INFO] jobtrack stopped")
}

func run(ctx context.Context) error {
	store, err := makeKV(ctx)
	if err != nil {
		return fmt.Errorf("failed to make key-value store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("[WARN] failed to close key-value store, %v", err)
		}
	}()

	var storeOpts []jobs.Option
	if notifier := makeNotifier(); notifier != nil {
		storeOpts = append(storeOpts, jobs.WithObserver(notifier))
		defer notifier.Wait()
	}
	jobStore := jobs.New(store, storeOpts...)

	// failed initial load is shown in the ui and retried by refresh or reload
	if err := jobStore.Load(ctx); err != nil {
		log.Printf("[WARN] initial load failed, %v", err)
	}

	if opts.Import != "" {
		if err := importJobs(ctx, jobStore); err != nil {
			return err
		}
	}

	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	waitRefresh, err := startRefresh(refreshCtx, jobStore, opts.Sync.Schedule)
	if err != nil {
		cancelRefresh()
		return err
	}
	// refresher stopped before the key-value store gets closed
	defer func() {
		cancelRefresh()
		waitRefresh()
	}()

	srv, err := web.New(web.Config{
		Jobs:         jobStore,
		Resumes:      resumes.New(store),
		BaseURL:      validateBaseURL(opts.BaseURL),
		Hostname:     makeHostName(),
		Version:      revision,
		PasswordHash: opts.Auth.PasswordHash,
		LoginTTL:     opts.Auth.TTL,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx, opts.Listen)
}

// startRefresh runs scheduled reloads in background, returned func blocks until the refresher
// stops. Empty schedule disables refresh.
func startRefresh(ctx context.Context, loader refresh.Loader, schedule string) (wait func(), err error) {
	if schedule == "" {
		return func() {}, nil
	}
	r, err := refresh.New(loader, schedule)
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	return func() { <-done }, nil
}

// makeKV creates key-value backend selected by --kv.type, wrapped with retries
func makeKV(ctx context.Context) (kv.Store, error) {
	var store kv.Store
	switch opts.KV.Type {
	case "memory":
		log.Printf("[WARN] memory key-value store, data lost on restart")
		store = kv.NewMemory()
	case "sqlite", "":
		s, err := kv.NewSQLite(opts.KV.SQLite)
		if err != nil {
			return nil, err
		}
		log.Printf("[INFO] sqlite key-value store %s", opts.KV.SQLite)
		store = s
	case "mysql":
		if opts.KV.MySQL == "" {
			return nil, errors.New("mysql dsn is required for mysql key-value store")
		}
		s, err := kv.NewMySQL(opts.KV.MySQL)
		if err != nil {
			return nil, err
		}
		log.Printf("[INFO] mysql key-value store")
		store = s
	case "redis":
		s, err := kv.NewRedis(ctx, opts.KV.Redis, opts.KV.Namespace)
		if err != nil {
			return nil, err
		}
		log.Printf("[INFO] redis key-value store, namespace %q", opts.KV.Namespace)
		store = s
	default:
		return nil, fmt.Errorf("unknown key-value store type %q", opts.KV.Type)
	}

	return kv.NewRetry(store, kv.RetryParams{Attempts: opts.KV.Attempts, Duration: opts.KV.Duration,
		Factor: opts.KV.Factor, Jitter: opts.KV.Jitter}), nil
}

func makeNotifier() *notify.Service {
	return notify.NewService(notify.Params{
		Destinations: opts.Notify.To,
		Timeout:      opts.Notify.Timeout,
		HostName:     makeHostName(),
		SMTP: gonotify.SMTPParams{
			Host:     opts.Notify.SMTP.Host,
			Port:     opts.Notify.SMTP.Port,
			TLS:      opts.Notify.SMTP.TLS,
			StartTLS: opts.Notify.SMTP.StartTLS,
			Username: opts.Notify.SMTP.Username,
			Password: opts.Notify.SMTP.Password,
			TimeOut:  opts.Notify.SMTP.TimeOut,
		},
	})
}

func importJobs(ctx context.Context, store *jobs.Store) error {
	f, err := importer.Load(opts.Import)
	if err != nil {
		return fmt.Errorf("failed to load import file: %w", err)
	}
	items := importer.SkipExisting(store.Jobs(), f.Jobs)
	if len(items) < len(f.Jobs) {
		log.Printf("[INFO] %d of %d jobs from %s already stored, skipped", len(f.Jobs)-len(items), len(f.Jobs), opts.Import)
	}
	n, err := importer.Import(ctx, store, items, opts.ImportConcurrency)
	if err != nil {
		return fmt.Errorf("import stopped after %d jobs: %w", n, err)
	}
	log.Printf("[INFO] imported %d jobs from %s", n, opts.Import)
	return nil
}

func makeHostName() string {
	if opts.Notify.HostName != "" {
		return opts.Notify.HostName
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// setupLogs configures lgr output, stdout or rotated file, and returns the writer
func setupLogs() io.Writer {
	var out io.Writer = os.Stdout
	if opts.Log.Enabled && opts.Log.Filename != "" {
		out = &lumberjack.Logger{
			Filename:   opts.Log.Filename,
			MaxSize:    opts.Log.MaxSize,
			MaxBackups: opts.Log.MaxBackups,
			MaxAge:     opts.Log.MaxAge,
			Compress:   opts.Log.EnabledCompress,
			LocalTime:  true,
		}
	}

	logOpts := []log.Option{log.Out(out), log.Err(out), log.Msec, log.LevelBraces}
	if opts.Dbg {
		logOpts = append(logOpts, log.Debug, log.CallerFile, log.CallerFunc)
	}
	var secrets []string
	for _, s := range []string{opts.Auth.PasswordHash, opts.Notify.SMTP.Password} {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	if len(secrets) > 0 {
		logOpts = append(logOpts, log.Secret(secrets...))
	}
	log.Setup(logOpts...)
	return out
}

// validateBaseURL normalizes base URL, "/" and "" mean root, trailing slash removed
func validateBaseURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" || u == "/" {
		return ""
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return strings.TrimRight(u, "/")
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			log.Printf("[INFO] %s received, shutting down", sig)
			cancel()
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
}
