// Package config carrega o config.yaml do crawler. O arquivo é opcional:
// sem ele valem os defaults e tudo pode ser sobrescrito por flag.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config representa a estrutura completa do config.yaml
type Config struct {
	Crawl struct {
		MaxComments      int     `yaml:"max_comments"`
		SleepSeconds     float64 `yaml:"sleep_seconds"`
		PageDelayMS      int     `yaml:"page_delay_ms"`
		OutputDir        string  `yaml:"output_dir"`
		Headless         bool    `yaml:"headless"`
		LoginWaitSeconds int     `yaml:"login_wait_seconds"`
		StateDir         string  `yaml:"state_dir"`
	} `yaml:"crawl"`

	// Cookie no formato "nome=valor; nome=valor" copiado do navegador,
	// igual ao header Cookie de uma requisição logada.
	Cookies string `yaml:"cookies"`

	// Marcadores de risk-control. A plataforma muda esses sinais com
	// frequência, então eles são configuração e não código.
	RiskControl struct {
		Selectors   []string `yaml:"selectors"`
		URLPatterns []string `yaml:"url_patterns"`
		TextMarkers []string `yaml:"text_markers"`
	} `yaml:"risk_control"`

	Checkpoint struct {
		Path string `yaml:"path"`
	} `yaml:"checkpoint"`

	// Sink alternativo via JetStream (sink: nats na CLI).
	Nats struct {
		URL     string `yaml:"url"`
		Stream  string `yaml:"stream"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`

	// Marcação opcional de vídeos já entregues, para pular repetidos
	// quando o sink não deixa arquivos locais para conferir.
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTLHours int    `yaml:"ttl_hours"`
	} `yaml:"redis"`
}

// LoadConfig procura o config.yaml: primeiro CONFIG_PATH, depois caminhos
// relativos comuns. Arquivo ausente não é erro.
func LoadConfig() (*Config, error) {
	cfg := defaults()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		for _, p := range []string{"config.yaml", "config/config.yaml"} {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}
	if configPath == "" {
		return cfg, nil
	}

	f, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("erro lendo config %s: %w", configPath, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("erro ao decodificar YAML %s: %w", configPath, err)
	}
	applyFloor(cfg)
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Crawl.MaxComments = 2000
	cfg.Crawl.SleepSeconds = 3.0
	cfg.Crawl.PageDelayMS = 800
	cfg.Crawl.OutputDir = "output"
	cfg.Crawl.LoginWaitSeconds = 60
	cfg.Crawl.StateDir = "./browser_state"
	cfg.Checkpoint.Path = "checkpoints.db"
	cfg.Nats.URL = "nats://localhost:4222"
	cfg.Nats.Stream = "MIXCRAWL"
	cfg.Nats.Subject = "mixcrawl.results"
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.TTLHours = 48
	return cfg
}

func applyFloor(cfg *Config) {
	if cfg.Crawl.MaxComments <= 0 {
		cfg.Crawl.MaxComments = 2000
	}
	if cfg.Crawl.SleepSeconds < 0.2 {
		cfg.Crawl.SleepSeconds = 0.2
	}
	if cfg.Crawl.PageDelayMS <= 0 {
		cfg.Crawl.PageDelayMS = 800
	}
}

// ParseCookieString quebra um header Cookie em pares nome/valor.
func ParseCookieString(s string) [][2]string {
	var cookies [][2]string
	for _, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		cookies = append(cookies, [2]string{strings.TrimSpace(name), strings.TrimSpace(value)})
	}
	return cookies
}
