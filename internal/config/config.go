package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/google/logger"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the raffle service configuration.
type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer

	Storage  Storage  `envPrefix:"STORAGE_"`
	Raffle   Raffle   `envPrefix:"RIFA_"`
	Admin    Admin    `envPrefix:"ADMIN_"`
	Pix      Pix      `envPrefix:"PIX_"`
	WhatsApp WhatsApp `envPrefix:"WHATSAPP_"`
}

// CatalogConfig is the catalog service configuration.
type CatalogConfig struct {
	Environment Environment
	Log         Log
	HTTP        CatalogHTTPServer

	Database Database `envPrefix:"DATABASE_"`
	Catalog  Catalog  `envPrefix:"CATALOG_"`
}

// StoreConfig is the catalog store front configuration.
type StoreConfig struct {
	Environment Environment
	Log         Log
	HTTP        StoreHTTPServer

	Store Store `envPrefix:"STORE_"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

// IsProduction reports whether gin should run in release mode.
func (e Environment) IsProduction() bool {
	return e.Name == "production"
}

type Log struct {
	Verbose bool `env:"LOG_VERBOSE" envDefault:"true"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

func (h HTTPServer) Addr() string {
	return h.Host + ":" + h.Port
}

type CatalogHTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8001"`
}

func (h CatalogHTTPServer) Addr() string {
	return h.Host + ":" + h.Port
}

type StoreHTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"3000"`
}

func (h StoreHTTPServer) Addr() string {
	return h.Host + ":" + h.Port
}

// Storage selects the backend standing in for browser local storage.
type Storage struct {
	Driver        string `env:"DRIVER" envDefault:"sqlite"` // sqlite, mysql, redis
	DSN           string `env:"DSN" envDefault:"rifa.db"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	Secure        bool   `env:"SECURE" envDefault:"true"`
	SecretKey     string `env:"SECRET_KEY" envDefault:"rifa-malu-2024-secure-key-v1"`
}

type Raffle struct {
	TotalNumbers int             `env:"TOTAL_NUMBERS" envDefault:"200"`
	UnitPrice    decimal.Decimal `env:"UNIT_PRICE" envDefault:"1.00"`
	Prize        decimal.Decimal `env:"PRIZE" envDefault:"400"`
	SyncInterval time.Duration   `env:"SYNC_INTERVAL" envDefault:"5s"`
	DrawTicks    int             `env:"DRAW_TICKS" envDefault:"20"`
	DrawInterval time.Duration   `env:"DRAW_INTERVAL" envDefault:"100ms"`
}

type Admin struct {
	Username      string        `env:"USERNAME" envDefault:"admin"`
	Password      string        `env:"PASSWORD,required,notEmpty"`
	SessionSecret string        `env:"SESSION_SECRET,required,notEmpty"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
}

type Pix struct {
	Key          string `env:"KEY"`
	MerchantName string `env:"MERCHANT_NAME" envDefault:"RIFA DA MALU"`
	MerchantCity string `env:"MERCHANT_CITY" envDefault:"SAO PAULO"`
	StaticCode   string `env:"STATIC_CODE"`
}

type WhatsApp struct {
	Number string `env:"NUMBER"`
}

type Database struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DSN" envDefault:"catalog.db"`
}

type Catalog struct {
	AdminPassword string        `env:"ADMIN_PASSWORD,required,notEmpty"`
	SessionSecret string        `env:"SESSION_SECRET,required,notEmpty"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	Seed          bool          `env:"SEED" envDefault:"true"`
}

// Store points the store front at the catalog API.
type Store struct {
	APIURL       string        `env:"API_URL" envDefault:"http://localhost:8001"`
	SecureCookie bool          `env:"SECURE_COOKIE" envDefault:"false"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`
}

// Load reads the raffle configuration from the environment, after merging an
// optional .env file.
func Load() (*Config, error) {
	loadDotEnv()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadCatalog reads the catalog configuration.
func LoadCatalog() (*CatalogConfig, error) {
	loadDotEnv()
	cfg := &CatalogConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStore reads the store front configuration.
func LoadStore() (*StoreConfig, error) {
	loadDotEnv()
	cfg := &StoreConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found (ok in prod)")
	}
}
