package core

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lisuiheng/rtvoice/pkg/protocol"
	"github.com/spf13/viper"
)

// Config 是客户端配置结构（与 YAML 文件结构对应）
type Config struct {
	System struct {
		DeviceID string `mapstructure:"device_id"`
		ClientID string `mapstructure:"client_id"`

		Network struct {
			Websocket WebsocketConfig `mapstructure:"websocket"`
		} `mapstructure:"network"`
	} `mapstructure:"system"`

	Reconnect struct {
		Strategy    string        `mapstructure:"strategy"`
		MaxAttempts int           `mapstructure:"max_attempts"`
		Interval    time.Duration `mapstructure:"interval"`
	} `mapstructure:"reconnect"`

	Audio struct {
		InputSampleRate  int           `mapstructure:"input_sample_rate"`
		OutputSampleRate int           `mapstructure:"output_sample_rate"`
		Channels         int           `mapstructure:"channels"`
		FrameInterval    time.Duration `mapstructure:"frame_interval"`
		OutputFrameMs    int           `mapstructure:"output_frame_ms"`
		Gain             float64       `mapstructure:"gain"`
	} `mapstructure:"audio"`

	// Session 非空时在每次连接建立后发送 session.update
	Session protocol.SessionConfig `mapstructure:"session"`

	Logging struct {
		Level   string        `mapstructure:"level"`
		Outputs []string      `mapstructure:"outputs"`
		MaxAge  time.Duration `mapstructure:"max_age"`
	} `mapstructure:"logging"`

	Metrics struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"metrics"`
}

type WebsocketConfig struct {
	URL             string        `mapstructure:"url"`
	AccessToken     string        `mapstructure:"access_token"`
	ProtocolVersion int           `mapstructure:"protocol_version"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
}

// SetDefaults 写入所有配置项的默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("system.network.websocket.protocol_version", 1)
	v.SetDefault("system.network.websocket.dial_timeout", 10*time.Second)

	v.SetDefault("reconnect.strategy", "fixed")
	v.SetDefault("reconnect.max_attempts", 5)
	v.SetDefault("reconnect.interval", 3000*time.Millisecond)

	v.SetDefault("audio.input_sample_rate", 16000)
	v.SetDefault("audio.output_sample_rate", 24000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.frame_interval", 250*time.Millisecond)
	v.SetDefault("audio.output_frame_ms", 20)
	v.SetDefault("audio.gain", 3.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.outputs", []string{"stdout"})
	v.SetDefault("logging.max_age", 7*24*time.Hour)
}

// LoadEnv 把 .env 文件中的变量载入环境，不覆盖已有变量。文件不存在不算错误。
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// LoadConfig 加载配置文件。configPath 为空时在默认路径中搜索 config.yaml。
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		// 使用命令行指定的路径
		v.SetConfigFile(configPath)
	} else {
		// 默认多路径搜索
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/rtvoice")
	}

	SetDefaults(v)
	v.SetEnvPrefix("RTVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig 返回只填充默认值的配置，未做校验
func DefaultConfig() (Config, error) {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.System.Network.Websocket.URL == "" {
		return fmt.Errorf("%w: system.network.websocket.url is required", ErrInvalidConfig)
	}
	if c.Audio.OutputSampleRate <= 0 || c.Audio.InputSampleRate <= 0 {
		return fmt.Errorf("%w: sample rates must be positive", ErrInvalidConfig)
	}
	if c.Audio.Channels != 1 {
		return fmt.Errorf("%w: only mono audio is supported", ErrInvalidConfig)
	}
	if c.Audio.FrameInterval <= 0 {
		return fmt.Errorf("%w: audio.frame_interval must be positive", ErrInvalidConfig)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("%w: reconnect.max_attempts must not be negative", ErrInvalidConfig)
	}
	return nil
}
