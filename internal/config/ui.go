package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// UIConfig tunes the form controller. It is read from ui.yml and reloaded
// when the file changes; running controllers pick up new values on their
// next timer.
type UIConfig struct {
	NotificationDuration time.Duration `mapstructure:"notification_duration"`
	ReconnectAttempts    int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
	SessionIdleTimeout   time.Duration `mapstructure:"session_idle_timeout"`
}

func DefaultUIConfig() UIConfig {
	return UIConfig{
		NotificationDuration: 3 * time.Second,
		ReconnectAttempts:    3,
		ReconnectDelay:       5 * time.Second,
		SessionIdleTimeout:   30 * time.Minute,
	}
}

type UIConfigHolder struct {
	current atomic.Value // holds UIConfig
}

// NewStaticUIConfigHolder returns a holder that never reloads.
func NewStaticUIConfigHolder(cfg UIConfig) *UIConfigHolder {
	holder := &UIConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewUIConfigHolder(log *zap.Logger) (*UIConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("ui")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/productdesk")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PRODUCTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultUIConfig()
	v.SetDefault("ui.notification_duration", defaults.NotificationDuration)
	v.SetDefault("ui.reconnect_attempts", defaults.ReconnectAttempts)
	v.SetDefault("ui.reconnect_delay", defaults.ReconnectDelay)
	v.SetDefault("ui.session_idle_timeout", defaults.SessionIdleTimeout)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg UIConfig
	if err := v.UnmarshalKey("ui", &cfg); err != nil {
		return nil, err
	}
	if err := validateUIConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticUIConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated UIConfig
		if err := v.UnmarshalKey("ui", &updated); err != nil {
			log.Warn("ui config reload failed", zap.Error(err))
			return
		}
		if err := validateUIConfig(updated); err != nil {
			log.Warn("invalid ui config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("ui config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *UIConfigHolder) Get() UIConfig {
	return h.current.Load().(UIConfig)
}

func validateUIConfig(cfg UIConfig) error {
	if cfg.NotificationDuration <= 0 {
		return errors.New("ui.notification_duration must be positive")
	}
	if cfg.ReconnectAttempts < 0 {
		return errors.New("ui.reconnect_attempts cannot be negative")
	}
	if cfg.ReconnectDelay < 0 {
		return errors.New("ui.reconnect_delay cannot be negative")
	}
	if cfg.SessionIdleTimeout <= 0 {
		return errors.New("ui.session_idle_timeout must be positive")
	}
	return nil
}
