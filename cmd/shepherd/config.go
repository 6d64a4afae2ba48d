package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fluxcd/shepherd/pkg/config"
	"github.com/fluxcd/shepherd/pkg/notify"
	"github.com/fluxcd/shepherd/pkg/update"
)

// legacyEnv maps config fields to the environment variables earlier
// releases were configured through, so existing stack files keep
// working.
var legacyEnv = map[string]string{
	"Interval":         "SLEEP_TIME",
	"Filter":           "FILTER_SERVICES",
	"Ignore":           "IGNORELIST_SERVICES",
	"Timeout":          "TIMEOUT",
	"AutocleanLimit":   "IMAGE_AUTOCLEAN_LIMIT",
	"RunOnce":          "RUN_ONCE_AND_EXIT",
	"RegistryUser":     "REGISTRY_USER",
	"RegistryPassword": "REGISTRY_PASSWORD",
	"RegistryHost":     "REGISTRY_HOST",
	"RegistriesFile":   "REGISTRIES_FILE",
	"Rollback":         "ROLLBACK_ON_FAILURE",
	"UpdateOptions":    "UPDATE_OPTIONS",
	"RollbackOptions":  "ROLLBACK_OPTIONS",
	"WithRegistryAuth": "WITH_REGISTRY_AUTH",
	"Insecure":         "WITH_INSECURE_REGISTRY",
	"NoResolveImage":   "WITH_NO_RESOLVE_IMAGE",
	"NotifyURL":        "APPRISE_SIDECAR_URL",
	"Verbose":          "VERBOSE",
}

// mappedName gives the key viper knows a config field by.
func mappedName(fieldName string) (string, error) {
	configStruct := reflect.TypeOf(config.Config{})
	field, ok := configStruct.FieldByName(fieldName)
	if !ok {
		return "", fmt.Errorf("attempt to bind a flag to a field not present in config.Config, %q", fieldName)
	}
	// this parallels the logic in
	// github.com/mitchellh/mapstructure, except that we want to
	// bail if a field is mentioned that is marked ignore, like
	// this: `mapstructure:"-"`
	name := field.Name
	mapstructureTagParts := strings.Split(field.Tag.Get("mapstructure"), ",")
	if namePart := mapstructureTagParts[0]; namePart != "" {
		if namePart == "-" { // means ignore this field
			return "", fmt.Errorf(`attempt to bind a flag to a config field tagged as ignored, %q`, field.Name)
		}
		name = namePart
	}
	return name, nil
}

// defineConfigFlags defines the flags that can also be set in
// a config file or the environment. These need special treatment,
// because some care must be taken to match them ("bind") with config
// file field names.
func defineConfigFlags(fs *pflag.FlagSet, v *viper.Viper, bail func(error)) {

	bind := func(fieldName, flagName string) error {
		name, err := mappedName(fieldName)
		if err != nil {
			return err
		}
		if err := v.BindPFlag(name, fs.Lookup(flagName)); err != nil {
			return err
		}
		if env, ok := legacyEnv[fieldName]; ok {
			return v.BindEnv(name, env)
		}
		return nil
	}

	bindOrBail := func(fieldName, flagName string) {
		if err := bind(fieldName, flagName); err != nil {
			bail(err)
		}
	}

	defineString := func(fieldName, flagName, def, desc string) {
		fs.String(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineBool := func(fieldName, flagName string, def bool, desc string) {
		fs.Bool(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineDuration := func(fieldName, flagName string, def time.Duration, desc string) {
		fs.Duration(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineInt := func(fieldName, flagName string, def int, desc string) {
		fs.Int(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineFloat64 := func(fieldName, flagName string, def float64, desc string) {
		fs.Float64(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineString("LogFormat", "log-format", config.LogFormatFmt, "change the log format (one of {fmt,json})")
	defineBool("Verbose", "verbose", false, "also log debug lines, e.g., services that did not change")
	defineString("Listen", "listen", ":3030", "listen address where /metrics and the API will be served; empty disables both")
	defineString("ListenMetrics", "listen-metrics", "", "listen address for a separate /metrics endpoint")
	defineString("Hostname", "hostname", "", "name of this node in notifications; defaults to the hostname")

	// which services, and when
	defineString("Filter", "filter", "", "only consider services matching this `docker service ls` filter, e.g., label=shepherd.enable=true")
	defineString("Ignore", "ignore", "", "whitespace-separated names of services never to update")
	defineDuration("Interval", "interval", 5*time.Minute, "pause between the end of one pass and the start of the next")
	defineString("Schedule", "schedule", "", "cron expression for starting passes; overrides --interval")
	defineBool("RunOnce", "run-once", false, "make one pass, then exit")

	// updating
	defineDuration("Timeout", "timeout", update.DefaultTimeout, "duration after which an update is considered failed")
	defineInt("AutocleanLimit", "autoclean-limit", 0, "after an update, keep at most this many local images of the repository; 0 disables cleanup")
	defineBool("Rollback", "rollback", false, "roll a service back when its update fails")
	defineString("UpdateOptions", "update-options", "", "extra options for `docker service update`, e.g., --update-parallelism=2")
	defineString("RollbackOptions", "rollback-options", "", "extra options for `docker service update --rollback`")
	defineBool("WithRegistryAuth", "with-registry-auth", false, "send registry authentication details to swarm agents; implied by --registry-user")
	defineBool("Insecure", "insecure", false, "allow insecure registries (HTTP, or TLS without verification)")
	defineBool("NoResolveImage", "no-resolve-image", false, "do not query the registry to resolve image digests when updating")

	// registries
	defineString("RegistryUser", "registry-user", "", "user name for the primary registry login")
	defineString("RegistryPassword", "registry-password", "", "password for the primary registry login; prefer --registry-password-file")
	defineString("RegistryPasswordFile", "registry-password-file", config.DefaultPasswordFile, "file holding the password for the primary registry login, used if present")
	defineString("RegistryHost", "registry-host", "", "host of the primary registry; empty means Docker Hub")
	defineString("RegistriesFile", "registries-file", "", "file of further logins, one per line: config-scope, host, user, password, tab-separated")
	defineFloat64("RegistryRPS", "registry-rps", 20, "maximum registry requests per second per host, with --probe=registry")
	defineInt("RegistryBurst", "registry-burst", 10, "maximum burst of registry requests per host, with --probe=registry")
	defineBool("RegistryTrace", "registry-trace", false, "output trace of image registry requests to log")

	// control plane
	defineString("Probe", "probe", config.ProbeCLI, fmt.Sprintf("how to check that an image exists (one of {%s,%s})", config.ProbeCLI, config.ProbeRegistry))
	defineString("DockerBinary", "docker-binary", "docker", "docker client to run")
	defineString("DockerConfigRoot", "docker-config-root", "", "directory holding one docker config directory per auth scope; defaults to ~/.docker")

	// notifications
	defineString("NotifyURL", "notify-url", "", "URL to post notifications to; empty disables notifications")
	defineString("NotifyFormat", "notify-format", notify.FormatApprise, fmt.Sprintf("notification payload format (one of {%s})", strings.Join(notify.Formats, ",")))
	defineString("NotifyUsername", "notify-username", "shepherd", "sender name shown in slack notifications")
}

// loadConfig reads the optional config file, then decodes everything
// viper knows into a config.Config.
func loadConfig(v *viper.Viper, configFile string) (config.Config, error) {
	var cfg config.Config
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType(config.ConfigType)
		if err := v.ReadInConfig(); err != nil {
			return cfg, errors.Wrapf(err, "reading config file %s", configFile)
		}
	}
	// SLEEP_TIME and TIMEOUT used to be handed to sleep(1) and
	// timeout(1), which read a bare number as seconds.
	for _, field := range []string{"Interval", "Timeout"} {
		name, _ := mappedName(field)
		if s := strings.TrimSpace(v.GetString(name)); isDigits(s) {
			v.Set(name, s+"s")
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decoding configuration")
	}

	if cfg.RegistryPassword == "" && cfg.RegistryPasswordFile != "" {
		bytes, err := ioutil.ReadFile(cfg.RegistryPasswordFile)
		switch {
		case err == nil:
			cfg.RegistryPassword = strings.TrimRight(string(bytes), "\r\n")
		case os.IsNotExist(err):
		default:
			return cfg, errors.Wrap(err, "reading registry password file")
		}
	}
	return cfg, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
