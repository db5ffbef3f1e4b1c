package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Site surface. The defaults target the Tsinghua e-reserve platform;
	// a profile can repoint them at a mirror.
	EntryURL       string `yaml:"entry_url"`
	DetailTemplate string `yaml:"detail_template"`
	ChaptersAPI    string `yaml:"chapters_api"`
	ChapterAPI     string `yaml:"chapter_api"`
	ImageAPI       string `yaml:"image_api"`

	// Viewer hand-off.
	ClickSelector string `yaml:"click_selector"`
	TokenElemID   string `yaml:"token_elem_id"`
	CookieName    string `yaml:"cookie_name"`

	// Timing.
	NavTimeout   time.Duration `yaml:"nav_timeout"`
	ScanTimeout  time.Duration `yaml:"scan_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// Output.
	DownloadsDir string  `yaml:"downloads_dir"`
	OutputDir    string  `yaml:"output_dir"`
	ExportDPI    float64 `yaml:"export_dpi"`

	// Headers.
	AcceptLanguage string `yaml:"accept_language"`
	UserAgent      string `yaml:"user_agent"`

	Debug bool `yaml:"debug"`
}

type Options struct {
	IgnoreConfig bool
	Debug        bool
	DownloadsDir string
	OutputDir    string
	ScanTimeout  time.Duration
	UserAgent    string
}

func DefaultConfig() *Config {
	return &Config{
		EntryURL:       "https://ereserves.lib.tsinghua.edu.cn/",
		DetailTemplate: "https://ereserves.lib.tsinghua.edu.cn/bookDetail/%s",
		ChaptersAPI:    "https://ereserves.lib.tsinghua.edu.cn/readkernel/KernelAPI/BookInfo/selectJgpBookChapters",
		ChapterAPI:     "https://ereserves.lib.tsinghua.edu.cn/readkernel/KernelAPI/BookInfo/selectJgpBookChapter",
		ImageAPI:       "https://ereserves.lib.tsinghua.edu.cn/readkernel/JPGFile/DownJPGJsNetPage",

		ClickSelector: "#app > div > div.main-body > div > div.booksDetail_lft > div.flex_cc_row > " +
			"div.booksDetail_right > div.booksBtn > div:nth-child(1) > button",
		TokenElemID: "scanid",
		CookieName:  "BotuReadKernel",

		NavTimeout:   45 * time.Second,
		ScanTimeout:  90 * time.Second,
		PollInterval: 200 * time.Millisecond,

		DownloadsDir: "downloads",
		OutputDir:    "output",
		ExportDPI:    144,

		AcceptLanguage: "zh-CN,zh;q=0.9",
		UserAgent:      "",

		Debug: false,
	}
}

func SaveYAML(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func loadYAML(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	return &c, nil
}

func LoadMerged(opts Options) (*Config, string, error) {
	if opts.IgnoreConfig {
		cfg := DefaultConfig()
		mergeConfig(cfg, opts)
		normalizeDefaults(cfg)
		return cfg, "(ignored config)", nil
	}

	activePath, err := ActiveConfigPath()
	if err == ErrNoConfig || activePath == "" {
		cfg := DefaultConfig()
		mergeConfig(cfg, opts)
		normalizeDefaults(cfg)
		return cfg, "(default config in memory)\nRun `ereserve-dl config init` to create an actual config\n", nil
	}
	if err != nil {
		return nil, "", err
	}

	cfg, err := loadYAML(activePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config %s: %w", activePath, err)
	}

	mergeConfig(cfg, opts)
	normalizeDefaults(cfg)

	return cfg, activePath, nil
}

func mergeConfig(c *Config, o Options) {
	if o.Debug {
		c.Debug = true
	}
	if o.DownloadsDir != "" {
		c.DownloadsDir = o.DownloadsDir
	}
	if o.OutputDir != "" {
		c.OutputDir = o.OutputDir
	}
	if o.ScanTimeout != 0 {
		c.ScanTimeout = o.ScanTimeout
	}
	if o.UserAgent != "" {
		c.UserAgent = o.UserAgent
	}
}

// normalizeDefaults backfills anything a hand-edited profile left empty.
func normalizeDefaults(c *Config) {
	def := DefaultConfig()

	if c.EntryURL == "" {
		c.EntryURL = def.EntryURL
	}
	if c.DetailTemplate == "" {
		c.DetailTemplate = def.DetailTemplate
	}
	if c.ChaptersAPI == "" {
		c.ChaptersAPI = def.ChaptersAPI
	}
	if c.ChapterAPI == "" {
		c.ChapterAPI = def.ChapterAPI
	}
	if c.ImageAPI == "" {
		c.ImageAPI = def.ImageAPI
	}
	if c.ClickSelector == "" {
		c.ClickSelector = def.ClickSelector
	}
	if c.TokenElemID == "" {
		c.TokenElemID = def.TokenElemID
	}
	if c.CookieName == "" {
		c.CookieName = def.CookieName
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = def.NavTimeout
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = def.ScanTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.DownloadsDir == "" {
		c.DownloadsDir = def.DownloadsDir
	}
	if c.OutputDir == "" {
		c.OutputDir = def.OutputDir
	}
	if c.ExportDPI <= 0 {
		c.ExportDPI = def.ExportDPI
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = def.AcceptLanguage
	}
}

func (c *Config) Print() {
	fmt.Printf(" -entry_url: %s\n", c.EntryURL)
	fmt.Printf(" -detail_template: %s\n", c.DetailTemplate)
	fmt.Printf(" -downloads_dir: %s\n", c.DownloadsDir)
	fmt.Printf(" -output_dir: %s\n", c.OutputDir)
	fmt.Printf(" -export_dpi: %g\n", c.ExportDPI)
	fmt.Printf(" -nav_timeout: %s\n", c.NavTimeout)
	fmt.Printf(" -scan_timeout: %s\n", c.ScanTimeout)
	fmt.Printf(" -poll_interval: %s\n", c.PollInterval)
	fmt.Printf(" -cookie_name: %s\n", c.CookieName)
	if c.UserAgent != "" {
		fmt.Printf(" -user_agent: %s\n", c.UserAgent)
	}
	if c.Debug {
		fmt.Printf(" -debug: %t\n", c.Debug)
	}
}
