package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// PlaceholderAPIKey is the sentinel shipped in the sample config. The engine
// refuses to fetch while the key still carries it.
const PlaceholderAPIKey = "REPLACE_WITH_YOUR_API_KEY"

type AppConfig struct {
	ServerAddr string `mapstructure:"SERVER_ADDR" validate:"min=2"`
	GinMode    string `mapstructure:"GIN_MODE" validate:"min=4"`
	DataDir    string `mapstructure:"DATA_DIR" validate:"min=1"`

	StorageMode string `mapstructure:"STORAGE_MODE" validate:"oneof=file bbolt"`

	APIKey    string `mapstructure:"YOUTUBE_API_KEY"`
	UserAgent string `mapstructure:"USER_AGENT" validate:"min=1"`

	FetchPageSize int           `mapstructure:"FETCH_PAGE_SIZE" validate:"min=1,max=50"`
	FetchTimeout  time.Duration `mapstructure:"FETCH_TIMEOUT" validate:"nonzero_duration"`
	MaxTracks     int           `mapstructure:"MAX_TRACKS" validate:"min=1"`

	UnlockPolicy    string `mapstructure:"UNLOCK_POLICY" validate:"oneof=batch pertrack"`
	UnlockUnitCost  int    `mapstructure:"UNLOCK_UNIT_COST" validate:"min=1"`
	UnlockBatchSize int    `mapstructure:"UNLOCK_BATCH_SIZE" validate:"min=1"`

	TrackEndReward int           `mapstructure:"TRACK_END_REWARD" validate:"min=0"`
	ClickReward    int           `mapstructure:"CLICK_REWARD" validate:"min=0"`
	AckTTL         time.Duration `mapstructure:"ACK_TTL" validate:"nonzero_duration"`

	CompactInterval time.Duration `mapstructure:"COMPACT_INTERVAL" validate:"nonzero_duration"`
	CompactTimeout  time.Duration `mapstructure:"COMPACT_TIMEOUT" validate:"nonzero_duration"`

	ArtworkDir       string        `mapstructure:"ARTWORK_DIR" validate:"min=1"`
	ArtworkWorkers   int           `mapstructure:"ARTWORK_WORKERS" validate:"min=1"`
	ArtworkQueueSize int           `mapstructure:"ARTWORK_QUEUE_SIZE" validate:"min=1"`
	ArtworkTimeout   time.Duration `mapstructure:"ARTWORK_TIMEOUT" validate:"nonzero_duration"`
}

func (c *AppConfig) Validate() error {
	v := validator.New()

	_ = v.RegisterValidation("nonzero_duration", func(fl validator.FieldLevel) bool {
		if d, ok := fl.Field().Interface().(time.Duration); ok {
			return d > 0
		} else {
			return false
		}
	})
	if err := v.Struct(c); err != nil {
		return err
	}
	return nil
}

// APIKeyUsable reports whether the credential is present and not the
// shipped placeholder.
func (c *AppConfig) APIKeyUsable() bool {
	return c.APIKey != "" && c.APIKey != PlaceholderAPIKey
}

func LoadAppConfig(name, ext string, paths ...string) (*AppConfig, error) {
	for _, path := range paths {
		viper.AddConfigPath(path)
	}
	viper.SetConfigName(name)
	viper.SetConfigType(ext)
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_ADDR", ":8082")
	viper.SetDefault("GIN_MODE", "debug")
	viper.SetDefault("DATA_DIR", "./data")
	viper.SetDefault("STORAGE_MODE", "bbolt")
	viper.SetDefault("YOUTUBE_API_KEY", PlaceholderAPIKey)
	viper.SetDefault("USER_AGENT", "Mozilla/5.0 (compatible; QuestPlayer/1.0; +https://github.com/ludio/questplayer)")
	viper.SetDefault("FETCH_PAGE_SIZE", 3)
	viper.SetDefault("FETCH_TIMEOUT", 15*time.Second)
	viper.SetDefault("MAX_TRACKS", 40)
	viper.SetDefault("UNLOCK_POLICY", "pertrack")
	viper.SetDefault("UNLOCK_UNIT_COST", 20)
	viper.SetDefault("UNLOCK_BATCH_SIZE", 3)
	viper.SetDefault("TRACK_END_REWARD", 20)
	viper.SetDefault("CLICK_REWARD", 1)
	viper.SetDefault("ACK_TTL", time.Second)
	viper.SetDefault("COMPACT_INTERVAL", 15*time.Minute)
	viper.SetDefault("COMPACT_TIMEOUT", time.Minute)
	viper.SetDefault("ARTWORK_DIR", "./data/artwork")
	viper.SetDefault("ARTWORK_WORKERS", 2)
	viper.SetDefault("ARTWORK_QUEUE_SIZE", 64)
	viper.SetDefault("ARTWORK_TIMEOUT", 20*time.Second)

	err := viper.ReadInConfig()

	if err != nil {
		return nil, err
	}
	cfg := &AppConfig{}
	err = viper.Unmarshal(cfg)
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
