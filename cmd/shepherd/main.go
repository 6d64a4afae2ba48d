package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fluxcd/shepherd/pkg/capability"
	"github.com/fluxcd/shepherd/pkg/config"
	"github.com/fluxcd/shepherd/pkg/daemon"
	fluxerr "github.com/fluxcd/shepherd/pkg/errors"
	daemonhttp "github.com/fluxcd/shepherd/pkg/http/daemon"
	"github.com/fluxcd/shepherd/pkg/notify"
	"github.com/fluxcd/shepherd/pkg/registry"
	"github.com/fluxcd/shepherd/pkg/registry/middleware"
	"github.com/fluxcd/shepherd/pkg/swarm"
	"github.com/fluxcd/shepherd/pkg/update"
)

var version = "unversioned"

const (
	// startupTimeout bounds the engine version query.
	startupTimeout = 30 * time.Second
	// drainTimeout bounds the wait for notifications still in flight
	// at exit.
	drainTimeout = 10 * time.Second
)

func main() {
	// Flag domain.
	fs := pflag.NewFlagSet("default", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "DESCRIPTION\n")
		fmt.Fprintf(os.Stderr, "  shepherd keeps docker swarm services up to date with their image tags.\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		fs.PrintDefaults()
	}

	v := viper.New()
	defineConfigFlags(fs, v, func(err error) {
		fmt.Fprintf(os.Stderr, "error defining flags: %s\n", err)
		os.Exit(1)
	})
	configFile := fs.String("config-file", "", "path to a YAML file with configuration; flags and environment take precedence")
	versionFlag := fs.Bool("version", false, "print version and exit")
	fs.Parse(os.Args[1:])

	if *versionFlag {
		println(version)
		os.Exit(0)
	}

	cfg, err := loadConfig(v, *configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}

	// Logger domain.
	var logger log.Logger
	{
		switch cfg.LogFormat {
		case config.LogFormatJSON:
			logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
		default:
			logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
		}
		if cfg.Verbose {
			logger = level.NewFilter(logger, level.AllowDebug())
		} else {
			logger = level.NewFilter(logger, level.AllowInfo())
		}
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	if err := cfg.Validate(notify.Formats); err != nil {
		logger.Log("err", err)
		os.Exit(1)
	}
	if cfg.Hostname == "" {
		cfg.Hostname, _ = os.Hostname()
	}
	logger.Log("version", version, "probe", cfg.Probe, "run-once", cfg.RunOnce)

	// Control plane component.
	cluster := swarm.NewCLI(cfg.DockerBinary, cfg.DockerConfigRoot, log.With(logger, "component", "swarm"))
	cluster.Trace = cfg.Verbose

	var caps capability.Set
	{
		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		caps, err = capability.Detect(ctx, cluster, capability.Declarations{
			RegistryUser:     cfg.RegistryUser,
			WithRegistryAuth: cfg.WithRegistryAuth,
			Insecure:         cfg.Insecure,
			NoResolveImage:   cfg.NoResolveImage,
		})
		cancel()
		if err != nil {
			logFatal(logger, err)
			os.Exit(1)
		}
		logger.Log("capabilities", caps)
	}

	// Registry component.
	var auth *registry.Authenticator
	var checker registry.ManifestChecker
	{
		logger := log.With(logger, "component", "registry")
		var primary *swarm.Credential
		if cfg.RegistryUser != "" {
			primary = &swarm.Credential{Host: cfg.RegistryHost, User: cfg.RegistryUser, Secret: cfg.RegistryPassword}
		}
		auth = &registry.Authenticator{
			Session: cluster,
			Primary: primary,
			File:    cfg.RegistriesFile,
			Logger:  logger,
		}

		switch cfg.Probe {
		case config.ProbeRegistry:
			checker = &registry.Prober{
				Credentials: auth.Credentials,
				Limiters: &middleware.RateLimiters{
					RPS:    cfg.RegistryRPS,
					Burst:  cfg.RegistryBurst,
					Logger: logger,
				},
				Logger: logger,
				Trace:  cfg.RegistryTrace,
			}
		default:
			checker = cluster
		}
		checker = registry.NewInstrumentedChecker(checker)
	}

	// Notifier component.
	var notifier notify.Notifier = notify.Nop{}
	var httpNotifier *notify.HTTP
	if cfg.NotifyURL != "" {
		httpNotifier = notify.NewHTTP(cfg.NotifyURL, cfg.NotifyFormat, cfg.NotifyUsername, log.With(logger, "component", "notify"))
		notifier = httpNotifier
	}

	// Daemon (business logic) domain.
	var d *daemon.Daemon
	{
		loop := &daemon.LoopVars{Interval: cfg.Interval, RunOnce: cfg.RunOnce}
		if cfg.Schedule != "" {
			// validated above
			loop.Schedule, _ = config.ScheduleParser.Parse(cfg.Schedule)
		}

		updateLogger := log.With(logger, "component", "update")
		d = &daemon.Daemon{
			V:        version,
			Cluster:  cluster,
			Registry: auth,
			Prober:   &update.Prober{Checker: checker, Capabilities: caps},
			Executor: &update.Executor{
				Cluster:       cluster,
				Capabilities:  caps,
				Timeout:       cfg.Timeout,
				Rollback:      cfg.Rollback,
				UpdateExtra:   cfg.UpdateExtra(),
				RollbackExtra: cfg.RollbackExtra(),
				Logger:        updateLogger,
			},
			Notifier: notifier,
			Messages: notify.Messages{Hostname: cfg.Hostname},
			Filter:   cfg.Filter,
			Ignore:   cfg.IgnoreSet(),
			Logger:   log.With(logger, "component", "daemon"),
			LoopVars: loop,
		}
		if cfg.AutocleanLimit > 0 {
			d.Collector = &update.Collector{Store: cluster, Limit: cfg.AutocleanLimit, Logger: updateLogger}
		}
		if len(d.Ignore) > 0 {
			logger.Log("ignoring", fmt.Sprint(d.Ignore.Names()))
		}
	}

	// Mechanical stuff.
	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	if cfg.Listen != "" {
		go func() {
			handler := daemonhttp.NewHandler(d, daemonhttp.NewRouter())
			logger.Log("addr", cfg.Listen, "msg", "serving API and metrics")
			errc <- http.ListenAndServe(cfg.Listen, handler)
		}()
	}
	if cfg.ListenMetrics != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Log("addr", cfg.ListenMetrics, "msg", "serving metrics")
			errc <- http.ListenAndServe(cfg.ListenMetrics, mux)
		}()
	}

	shutdown := make(chan struct{})
	shutdownWg := &sync.WaitGroup{}
	done := make(chan error, 1)
	shutdownWg.Add(1)
	go func() {
		done <- d.Loop(shutdown, shutdownWg, log.With(logger, "component", "loop"))
	}()

	var passErr error
	select {
	case err := <-errc:
		logger.Log("exiting", err)
	case passErr = <-done:
	}
	close(shutdown)
	shutdownWg.Wait()

	if httpNotifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := httpNotifier.Wait(ctx); err != nil {
			logger.Log("msg", "notifications still in flight at exit", "err", err)
		}
		cancel()
	}

	if passErr != nil {
		logFatal(logger, passErr)
		os.Exit(1)
	}
}

// logFatal logs err, along with the operator-facing help when there
// is some.
func logFatal(logger log.Logger, err error) {
	if ferr, ok := fluxerr.Find(err); ok && ferr.Help != "" {
		level.Error(logger).Log("err", err, "help", ferr.Help)
		return
	}
	level.Error(logger).Log("err", err)
}
