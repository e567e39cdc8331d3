package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

const envPrefix = "YACALL"

type Config struct {
	Server    Server    `mapstructure:"server"`
	WebSocket WebSocket `mapstructure:"websocket"`
	Auth      Auth      `mapstructure:"auth"`
	Users     Users     `mapstructure:"users"`
	Presence  Presence  `mapstructure:"presence"`
	Signaling Signaling `mapstructure:"signaling"`
	Log       Log       `mapstructure:"log"`
}

type Server struct {
	Address         string        `mapstructure:"address"`
	AllowedOrigins  []string      `mapstructure:"allowedOrigins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	MetricsEnabled  bool          `mapstructure:"metricsEnabled"`
}

type WebSocket struct {
	ReadBufferSize  int           `mapstructure:"readBufferSize"`
	WriteBufferSize int           `mapstructure:"writeBufferSize"`
	SendBuffer      int           `mapstructure:"sendBuffer"`
	MaxMessageSize  int64         `mapstructure:"maxMessageSize"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	PongTimeout     time.Duration `mapstructure:"pongTimeout"`
	CheckOrigin     bool          `mapstructure:"checkOrigin"`
}

type Auth struct {
	AccessSecret  string        `mapstructure:"accessSecret"`
	RefreshSecret string        `mapstructure:"refreshSecret"`
	AccessTTL     time.Duration `mapstructure:"accessTTL"`
	RefreshTTL    time.Duration `mapstructure:"refreshTTL"`
	Issuer        string        `mapstructure:"issuer"`
	AllowRawID    bool          `mapstructure:"allowRawId"`
	CookieSecure  bool          `mapstructure:"cookieSecure"`
}

type Users struct {
	// Driver is "sqlite" or "memory".
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type Presence struct {
	// Driver is "redis", "nats" or "memory".
	Driver          string        `mapstructure:"driver"`
	SetName         string        `mapstructure:"setName"`
	OpTimeout       time.Duration `mapstructure:"opTimeout"`
	MaxRetries      uint64        `mapstructure:"maxRetries"`
	InitialInterval time.Duration `mapstructure:"initialInterval"`
	Redis           Redis         `mapstructure:"redis"`
	NATS            NATS          `mapstructure:"nats"`
}

type Redis struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"keyPrefix"`
}

type NATS struct {
	URL          string `mapstructure:"url"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	BucketPrefix string `mapstructure:"bucketPrefix"`
	FileStorage  bool   `mapstructure:"fileStorage"`
}

type Signaling struct {
	NotifyOffline bool          `mapstructure:"notifyOffline"`
	RingTimeout   time.Duration `mapstructure:"ringTimeout"`
}

type Log struct {
	Level     string `mapstructure:"level"`
	Console   bool   `mapstructure:"console"`
	ErrorFile string `mapstructure:"errorFile"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":4000")
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:5173"})
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.metricsEnabled", true)

	v.SetDefault("websocket.readBufferSize", 1024)
	v.SetDefault("websocket.writeBufferSize", 1024)
	v.SetDefault("websocket.sendBuffer", 64)
	v.SetDefault("websocket.maxMessageSize", 64*1024)
	v.SetDefault("websocket.writeTimeout", "10s")
	v.SetDefault("websocket.pongTimeout", "60s")
	v.SetDefault("websocket.checkOrigin", false)

	v.SetDefault("auth.accessSecret", "change-me-access")
	v.SetDefault("auth.refreshSecret", "change-me-refresh")
	v.SetDefault("auth.accessTTL", "15m")
	v.SetDefault("auth.refreshTTL", "168h")
	v.SetDefault("auth.issuer", "yacall")
	v.SetDefault("auth.allowRawId", true)
	v.SetDefault("auth.cookieSecure", true)

	v.SetDefault("users.driver", "sqlite")
	v.SetDefault("users.path", "data/yacall.db")

	v.SetDefault("presence.driver", "memory")
	v.SetDefault("presence.setName", "online-users")
	v.SetDefault("presence.opTimeout", "2s")
	v.SetDefault("presence.maxRetries", 3)
	v.SetDefault("presence.initialInterval", "50ms")
	v.SetDefault("presence.redis.addr", "localhost:6379")
	v.SetDefault("presence.redis.keyPrefix", "yacall:")
	v.SetDefault("presence.nats.url", "nats://localhost:4222")
	v.SetDefault("presence.nats.bucketPrefix", "YACALL_")

	v.SetDefault("signaling.notifyOffline", false)
	v.SetDefault("signaling.ringTimeout", "0s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.errorFile", "logs/error.log")
}

// Load reads defaults, then the optional config file, then YACALL_*
// environment variables. An empty path looks for config.yaml in the working
// directory and is not an error when absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			v.SetConfigType("yaml")
		case ".json":
			v.SetConfigType("json")
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Users.Driver {
	case "sqlite", "memory":
	default:
		return errors.Newf("config: unknown users.driver %q", c.Users.Driver)
	}
	switch c.Presence.Driver {
	case "redis", "nats", "memory":
	default:
		return errors.Newf("config: unknown presence.driver %q", c.Presence.Driver)
	}
	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		return errors.New("config: auth secrets must not be empty")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return errors.New("config: websocket.sendBuffer must be positive")
	}
	return nil
}
