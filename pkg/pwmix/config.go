package pwmix

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MixyLabs/pwmix/pkg/pwmix/util"
)

type ConfigManager struct {
	logger             *zap.SugaredLogger
	notifier           Notifier
	stopWatcherChannel chan bool

	reloadConsumers []chan bool

	userConfig *viper.Viper

	// lock guards current, which the watcher goroutine replaces on
	// reload while other goroutines read it
	lock    sync.Mutex
	current Config
}

type Config struct {
	// Marker is the substring a node's description must contain
	// (case-insensitively) to take part in the patchbay
	Marker string `mapstructure:"marker"`

	// OutputPolicy decides which matching outputs get patched.
	// Only "first" is implemented; "all" is reserved for fan-out.
	OutputPolicy string `mapstructure:"output_policy"`

	// ActiveLinks makes created links engage the hardware immediately
	// instead of waiting for another consumer
	ActiveLinks bool `mapstructure:"active_links"`

	DisableTray bool `mapstructure:"disable_tray"`
}

const (
	userConfigFilepath = "config.yaml"

	userConfigName = "config"
	userConfigPath = "."

	configType = "yaml"

	configKeyMarker       = "marker"
	configKeyOutputPolicy = "output_policy"
	configKeyActiveLinks  = "active_links"
	configKeyDisableTray  = "disable_tray"

	defaultMarker = "SPDIF"

	outputPolicyFirst = "first"
	outputPolicyAll   = "all"
)

func NewConfig(logger *zap.SugaredLogger, notifier Notifier) (*ConfigManager, error) {
	logger = logger.Named("config")

	cc := &ConfigManager{
		logger:             logger,
		notifier:           notifier,
		reloadConsumers:    []chan bool{},
		stopWatcherChannel: make(chan bool),
	}

	userConfig := viper.New()
	userConfig.SetConfigName(userConfigName)
	userConfig.SetConfigType(configType)
	userConfig.AddConfigPath(userConfigPath)

	userConfig.SetDefault(configKeyMarker, defaultMarker)
	userConfig.SetDefault(configKeyOutputPolicy, outputPolicyFirst)
	userConfig.SetDefault(configKeyActiveLinks, true)
	userConfig.SetDefault(configKeyDisableTray, false)

	cc.userConfig = userConfig

	logger.Debug("Created config instance")

	return cc, nil
}

func (cc *ConfigManager) Load() error {
	cc.logger.Debugw("Loading config", "path", userConfigFilepath)

	// the defaults make a working patchbay, so a missing file is fine
	if !util.FileExists(userConfigFilepath) {
		cc.logger.Debugw("Config file not found, using defaults", "path", userConfigFilepath)

		return cc.populateFromViper()
	}

	if err := cc.userConfig.ReadInConfig(); err != nil {
		cc.logger.Warnw("Viper failed to read user config", "error", err)

		// if the error is yaml-format-related, show a sensible error. otherwise, show 'em to the logs
		if strings.Contains(err.Error(), "yaml:") {
			cc.notifier.Notify("Invalid configuration!",
				fmt.Sprintf("Please make sure %s is in a valid YAML format.", userConfigFilepath))
		} else {
			cc.notifier.Notify("Error loading configuration!", "Please check pwmix's logs for more details.")
		}

		return fmt.Errorf("read user config: %w", err)
	}

	if err := cc.populateFromViper(); err != nil {
		cc.logger.Warnw("Failed to populate config fields", "error", err)
		return fmt.Errorf("populate config fields: %w", err)
	}

	loaded := cc.Current()
	cc.logger.Info("Loaded config successfully")
	cc.logger.Infow("Config values",
		"marker", loaded.Marker,
		"outputPolicy", loaded.OutputPolicy,
		"activeLinks", loaded.ActiveLinks)

	return nil
}

// Current returns a copy of the most recently loaded config
func (cc *ConfigManager) Current() Config {
	cc.lock.Lock()
	defer cc.lock.Unlock()

	return cc.current
}

// SubscribeToChanges allows external components to receive updates when the config is reloaded
func (cc *ConfigManager) SubscribeToChanges() chan bool {
	c := make(chan bool)
	cc.reloadConsumers = append(cc.reloadConsumers, c)

	return c
}

// WatchConfigFileChanges starts watching for configuration file changes
// and attempts reloading the config when they happen
func (cc *ConfigManager) WatchConfigFileChanges() {
	cc.logger.Debugw("Starting to watch user config file for changes", "path", userConfigFilepath)

	const (
		minTimeBetweenReloadAttempts = time.Millisecond * 500
		delayBetweenEventAndReload   = time.Millisecond * 50
	)

	lastAttemptedReload := time.Now()

	// establish watch using viper as opposed to doing it ourselves, though our internal cooldown is still required
	cc.userConfig.WatchConfig()
	cc.userConfig.OnConfigChange(func(event fsnotify.Event) {
		if event.Op&fsnotify.Write == fsnotify.Write {
			now := time.Now()

			// ... check if it's not a duplicate (many editors will write to a file twice)
			if lastAttemptedReload.Add(minTimeBetweenReloadAttempts).Before(now) {
				// and attempt reload if appropriate
				cc.logger.Debugw("Config file modified, attempting reload", "event", event)

				// wait a bit to let the editor actually flush the new file contents to disk
				<-time.After(delayBetweenEventAndReload)

				if err := cc.Load(); err != nil {
					cc.logger.Warnw("Failed to reload config file", "error", err)
				} else {
					cc.logger.Info("Reloaded config successfully")
					cc.notifier.Notify("Configuration reloaded!", "Your changes have been applied.")

					cc.onConfigReloaded()
				}

				// don't forget to update the time
				lastAttemptedReload = now
			}
		}
	})

	// wait till they stop us
	<-cc.stopWatcherChannel
	cc.logger.Debug("Stopping user config file watcher")
	cc.userConfig.OnConfigChange(nil)
}

// StopWatchingConfigFile signals our filesystem watcher to stop
func (cc *ConfigManager) StopWatchingConfigFile() {
	cc.stopWatcherChannel <- true
}

func (cc *ConfigManager) populateFromViper() error {
	var parsed Config

	err := cc.userConfig.Unmarshal(&parsed, func(dConf *mapstructure.DecoderConfig) {
		dConf.WeaklyTypedInput = false
	})
	if err != nil {
		return err
	}

	if err := parsed.validate(); err != nil {
		return err
	}

	cc.lock.Lock()
	cc.current = parsed
	cc.lock.Unlock()

	cc.logger.Debug("Populated config fields from viper")

	return nil
}

func (config *Config) validate() error {
	if config.Marker == "" {
		return fmt.Errorf("%s must not be empty", configKeyMarker)
	}

	switch config.OutputPolicy {
	case outputPolicyFirst:
	case outputPolicyAll:
		return fmt.Errorf("%s %q is not implemented yet, use %q", configKeyOutputPolicy, outputPolicyAll, outputPolicyFirst)
	default:
		return fmt.Errorf("invalid %s %q (expected %q)", configKeyOutputPolicy, config.OutputPolicy, outputPolicyFirst)
	}

	return nil
}

func (cc *ConfigManager) onConfigReloaded() {
	cc.logger.Debug("Notifying consumers about configuration reload")

	for _, consumer := range cc.reloadConsumers {
		consumer <- true
	}
}
