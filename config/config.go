package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode   string `mapstructure:"mode"`
	Server struct {
		HTTPPort string        `mapstructure:"HTTPPort"`
		Timeout  time.Duration `mapstructure:"HTTPTimeout"`
	} `mapstructure:"server"`
	Repositories struct {
		Postgres struct {
			Host     string `mapstructure:"host"`
			Password string `mapstructure:"password"`
			Port     string `mapstructure:"port"`
			Username string `mapstructure:"username"`
			DB       string `mapstructure:"db"`
			SSLMode  string `mapstructure:"sslmode"`
		} `mapstructure:"postgres"`
	} `mapstructure:"repositories"`
	Gemini struct {
		Model       string  `mapstructure:"model"`
		Temperature float32 `mapstructure:"temperature"`
	} `mapstructure:"gemini"`
	Providers struct {
		Geocoding struct {
			BaseURL        string        `mapstructure:"baseURL"`
			Timeout        time.Duration `mapstructure:"timeout"`
			BreakerMaxFail uint32        `mapstructure:"breakerMaxFailures"`
			BreakerCooloff time.Duration `mapstructure:"breakerCooloff"`
		} `mapstructure:"geocoding"`
		Places struct {
			BaseURL   string        `mapstructure:"baseURL"`
			Timeout   time.Duration `mapstructure:"timeout"`
			RateLimit float64       `mapstructure:"rateLimit"`
			RateBurst int           `mapstructure:"rateBurst"`
		} `mapstructure:"places"`
	} `mapstructure:"providers"`
	Recommendation struct {
		ResultsPerCategory  int           `mapstructure:"resultsPerCategory"`
		CategoryTimeout     time.Duration `mapstructure:"categoryTimeout"`
		PlanningTimeout     time.Duration `mapstructure:"planningTimeout"`
		LocaleBias          string        `mapstructure:"localeBias"`
		ConfidenceThreshold float64       `mapstructure:"confidenceThreshold"`
		// Geocode result types that count as administratively distinct
		// candidates when grouping same-named locations.
		AdministrativeTypes []string `mapstructure:"administrativeTypes"`
		// Suffixes stripped when comparing same-named cities across
		// administrative levels ("Gwangju" vs "Gwangju-si").
		CitySuffixes []string `mapstructure:"citySuffixes"`
	} `mapstructure:"recommendation"`
	Prompts struct {
		SearchStrategy     string        `mapstructure:"searchStrategy"`
		ItineraryNarrative string        `mapstructure:"itineraryNarrative"`
		CacheTTL           time.Duration `mapstructure:"cacheTTL"`
	} `mapstructure:"prompts"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	// Add file-based config paths
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Try to load file-based config
	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %s", err)
		}
	}

	// Unmarshal the config into the Config struct
	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %s", err)
	}
	return config, nil
}
