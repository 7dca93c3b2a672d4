// Package config provides configuration loading with layered overrides.
// Load order: defaults -> YAML file -> environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	configloader "github.com/GabrielNunesIT/go-libs/config-loader"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// MOTION_RELAY_SYNC_LOCALFOLDER -> sync.localfolder.
const EnvPrefix = "MOTION_RELAY_"

// Config is the root configuration structure for the relay agent.
type Config struct {
	LogLevel     string             `koanf:"loglevel" yaml:"log_level" json:"log_level"`
	Sensor       SensorConfig       `koanf:"sensor"`
	Sync         SyncConfig         `koanf:"sync"`
	Sleep        SleepConfig        `koanf:"sleep"`
	MaxWait      MaxWaitConfig      `koanf:"maxwait" yaml:"max_wait" json:"max_wait"`
	Destinations DestinationsConfig `koanf:"destinations"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`

	// Messages overrides notification texts by catalog key, e.g.
	// "started.subject" or "motion_detected.message".
	Messages map[string]string `koanf:"messages"`
}

// SensorConfig configures the motion sensor and camera collaborator.
type SensorConfig struct {
	Enabled       bool          `koanf:"enabled" yaml:"use_sensors" json:"use_sensors"`
	GPIOValuePath string        `koanf:"gpiovaluepath" yaml:"gpio_value_path" json:"gpio_value_path"`
	InitDelay     time.Duration `koanf:"initdelay" yaml:"sensors_init" json:"sensors_init"`
	Warmup        time.Duration `koanf:"warmup" yaml:"sensors_warmup" json:"sensors_warmup"`
	Camera        CameraConfig  `koanf:"camera"`

	// Script replays a fixed sequence of levels (0 or 1) instead of reading
	// the GPIO pin, for dry runs without hardware.
	Script []int `koanf:"script"`
}

// CameraConfig configures the command based camera.
type CameraConfig struct {
	ImageCommand  []string      `koanf:"imagecommand" yaml:"image_command" json:"image_command"`
	ImageCount    int           `koanf:"imagecount" yaml:"nr_to_take" json:"nr_to_take"`
	BetweenImages time.Duration `koanf:"betweenimages" yaml:"between_images" json:"between_images"`
	VideoEnabled  bool          `koanf:"videoenabled" yaml:"video_active" json:"video_active"`
	VideoCommand  []string      `koanf:"videocommand" yaml:"video_command" json:"video_command"`
	VideoLength   time.Duration `koanf:"videolength" yaml:"video_seconds" json:"video_seconds"`
	FilePrefix    string        `koanf:"fileprefix" yaml:"file_prefix" json:"file_prefix"`
}

// SyncConfig configures the sync engine.
type SyncConfig struct {
	LocalFolder    string  `koanf:"localfolder" yaml:"local_sync_folder_name" json:"local_sync_folder_name"`
	InitialCleanup bool    `koanf:"initialcleanup" yaml:"initial_folder_cleanup" json:"initial_folder_cleanup"`
	VideoSuffix    string  `koanf:"videosuffix" yaml:"video_suffix" json:"video_suffix"`
	Whitelist      RuleSet `koanf:"whitelist"`
	Blacklist      RuleSet `koanf:"blacklist"`
}

// RuleSet is a list of case-insensitive prefix/suffix rules plus exact names.
type RuleSet struct {
	Prefixes []string `koanf:"prefixes"`
	Suffixes []string `koanf:"suffixes"`
	Names    []string `koanf:"names"`
}

// SleepConfig holds the fixed intervals of the control loop and waits.
type SleepConfig struct {
	MainLoop         time.Duration `koanf:"mainloop" yaml:"main_loop" json:"main_loop"`
	CheckSensors     time.Duration `koanf:"checksensors" yaml:"check_sensors" json:"check_sensors"`
	SyncDone         time.Duration `koanf:"syncdone" yaml:"sync_done" json:"sync_done"`
	SenderFinished   time.Duration `koanf:"senderfinished" yaml:"sender_finished" json:"sender_finished"`
	FileSyncFinished time.Duration `koanf:"filesyncfinished" yaml:"file_sync_finished" json:"file_sync_finished"`
}

// MaxWaitConfig bounds the shutdown waits.
type MaxWaitConfig struct {
	SenderTasks   time.Duration `koanf:"sendertasks" yaml:"finish_sender_tasks" json:"finish_sender_tasks"`
	FileSyncTasks time.Duration `koanf:"filesynctasks" yaml:"finish_filesyncer_tasks" json:"finish_filesyncer_tasks"`
}

// DestinationsConfig holds configuration for every backend kind.
type DestinationsConfig struct {
	Log          LogDestinationConfig          `koanf:"log"`
	Mail         MailDestinationConfig         `koanf:"mail"`
	CloudStorage CloudStorageDestinationConfig `koanf:"cloudstorage"`
	ChatBot      ChatBotDestinationConfig      `koanf:"chatbot"`
}

// Policy is the backend independent part of a destination configuration.
type Policy struct {
	Active          bool
	SendMessages    bool
	SendImages      bool
	SendVideos      bool
	MessageInterval time.Duration
	Prefix          string
}

// LogDestinationConfig configures the log destination.
type LogDestinationConfig struct {
	Active          bool          `koanf:"active"`
	SendMessages    bool          `koanf:"sendmessages" yaml:"send_messages" json:"send_messages"`
	SendImages      bool          `koanf:"sendimages" yaml:"send_images" json:"send_images"`
	SendVideos      bool          `koanf:"sendvideos" yaml:"send_videos" json:"send_videos"`
	MessageInterval time.Duration `koanf:"messageinterval" yaml:"interval_messages_send" json:"interval_messages_send"`
	Prefix          string        `koanf:"prefix"`

	// JournalPath enables the rotating JSON-lines event journal.
	JournalPath       string `koanf:"journalpath" yaml:"journal_path" json:"journal_path"`
	JournalMaxSizeMB  int    `koanf:"journalmaxsizemb" yaml:"journal_max_size_mb" json:"journal_max_size_mb"`
	JournalMaxBackups int    `koanf:"journalmaxbackups" yaml:"journal_max_backups" json:"journal_max_backups"`
	JournalMaxAgeDays int    `koanf:"journalmaxagedays" yaml:"journal_max_age_days" json:"journal_max_age_days"`
	JournalCompress   bool   `koanf:"journalcompress" yaml:"journal_compress" json:"journal_compress"`
}

// Policy returns the backend independent settings.
func (c LogDestinationConfig) Policy() Policy {
	return Policy{c.Active, c.SendMessages, c.SendImages, c.SendVideos, c.MessageInterval, c.Prefix}
}

// MailDestinationConfig configures the mail destination.
type MailDestinationConfig struct {
	Active          bool          `koanf:"active"`
	SendMessages    bool          `koanf:"sendmessages" yaml:"send_messages" json:"send_messages"`
	MessageInterval time.Duration `koanf:"messageinterval" yaml:"interval_messages_send" json:"interval_messages_send"`
	Prefix          string        `koanf:"prefix"`

	Server     string   `koanf:"server"`
	ServerPort int      `koanf:"serverport" yaml:"server_port" json:"server_port"`
	Address    string   `koanf:"address"`
	Password   string   `koanf:"password"`
	To         []string `koanf:"to"`
	StartTLS   bool     `koanf:"starttls" yaml:"start_tls" json:"start_tls"`
	SkipVerify bool     `koanf:"skipverify" yaml:"skip_verify" json:"skip_verify"`
}

// Policy returns the backend independent settings. Mail never carries media.
func (c MailDestinationConfig) Policy() Policy {
	return Policy{Active: c.Active, SendMessages: c.SendMessages, MessageInterval: c.MessageInterval, Prefix: c.Prefix}
}

// CloudStorageDestinationConfig configures the S3 compatible storage destination.
type CloudStorageDestinationConfig struct {
	Active     bool `koanf:"active"`
	SendImages bool `koanf:"sendimages" yaml:"sync_images" json:"sync_images"`
	SendVideos bool `koanf:"sendvideos" yaml:"sync_videos" json:"sync_videos"`

	Bucket          string   `koanf:"bucket"`
	Region          string   `koanf:"region"`
	Endpoint        string   `koanf:"endpoint"`
	PathStyle       bool     `koanf:"pathstyle" yaml:"path_style" json:"path_style"`
	AccessKeyID     string   `koanf:"accesskeyid" yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string   `koanf:"secretaccesskey" yaml:"secret_access_key" json:"secret_access_key"`
	RemoteFolder    string   `koanf:"remotefolder" yaml:"remote_folder_name" json:"remote_folder_name"`
	AgeRecipients   []string `koanf:"agerecipients" yaml:"age_recipients" json:"age_recipients"`
}

// Policy returns the backend independent settings. Storage never carries messages.
func (c CloudStorageDestinationConfig) Policy() Policy {
	return Policy{Active: c.Active, SendImages: c.SendImages, SendVideos: c.SendVideos}
}

// ChatBotDestinationConfig configures the chat bot destination.
type ChatBotDestinationConfig struct {
	Active          bool          `koanf:"active"`
	SendMessages    bool          `koanf:"sendmessages" yaml:"send_messages" json:"send_messages"`
	SendImages      bool          `koanf:"sendimages" yaml:"send_images" json:"send_images"`
	SendVideos      bool          `koanf:"sendvideos" yaml:"send_videos" json:"send_videos"`
	MessageInterval time.Duration `koanf:"messageinterval" yaml:"interval_messages_send" json:"interval_messages_send"`
	Prefix          string        `koanf:"prefix"`

	Token             string        `koanf:"token"`
	ChatID            string        `koanf:"chatid" yaml:"chat_id" json:"chat_id"`
	APIURL            string        `koanf:"apiurl" yaml:"api_url" json:"api_url"`
	Timeout           time.Duration `koanf:"timeout"`
	MaxImageDimension int           `koanf:"maximagedimension" yaml:"max_image_dimension" json:"max_image_dimension"`
}

// Policy returns the backend independent settings.
func (c ChatBotDestinationConfig) Policy() Policy {
	return Policy{c.Active, c.SendMessages, c.SendImages, c.SendVideos, c.MessageInterval, c.Prefix}
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	ServiceName  string `koanf:"servicename" yaml:"service_name" json:"service_name"`
	OTLPEndpoint string `koanf:"otlpendpoint" yaml:"otlp_endpoint" json:"otlp_endpoint"`
	Environment  string `koanf:"environment"`
}

// defaults returns the default configuration values.
func defaults() Config {
	return Config{
		LogLevel: "info",
		Sensor: SensorConfig{
			Enabled:       false,
			GPIOValuePath: "/sys/class/gpio/gpio4/value",
			InitDelay:     2 * time.Second,
			Warmup:        10 * time.Second,
			Camera: CameraConfig{
				ImageCommand:  []string{"rpicam-still", "-n", "-t", "1", "-o", "{output}"},
				ImageCount:    4,
				BetweenImages: 500 * time.Millisecond,
				VideoEnabled:  false,
				VideoCommand:  []string{"rpicam-vid", "-n", "--codec", "libav", "-t", "{millis}", "-o", "{output}"},
				VideoLength:   3 * time.Second,
				FilePrefix:    "rs",
			},
		},
		Sync: SyncConfig{
			LocalFolder:    "/tmp/motion-relay",
			InitialCleanup: true,
			VideoSuffix:    ".mp4",
			Whitelist: RuleSet{
				Suffixes: []string{".jpg", ".jpeg", ".png", ".mp4"},
			},
			Blacklist: RuleSet{
				Prefixes: []string{"."},
			},
		},
		Sleep: SleepConfig{
			MainLoop:         500 * time.Millisecond,
			CheckSensors:     15 * time.Second,
			SyncDone:         2 * time.Second,
			SenderFinished:   500 * time.Millisecond,
			FileSyncFinished: 500 * time.Millisecond,
		},
		MaxWait: MaxWaitConfig{
			SenderTasks:   30 * time.Second,
			FileSyncTasks: 60 * time.Second,
		},
		Destinations: DestinationsConfig{
			Log: LogDestinationConfig{
				Active:            true,
				SendMessages:      true,
				SendImages:        true,
				SendVideos:        true,
				JournalMaxSizeMB:  10,
				JournalMaxBackups: 3,
				JournalMaxAgeDays: 7,
				JournalCompress:   true,
			},
			Mail: MailDestinationConfig{
				SendMessages:    true,
				MessageInterval: 5 * time.Minute,
				ServerPort:      465,
			},
			CloudStorage: CloudStorageDestinationConfig{
				SendImages:   true,
				SendVideos:   true,
				Region:       "us-east-1",
				RemoteFolder: "motion-relay",
			},
			ChatBot: ChatBotDestinationConfig{
				SendMessages:    true,
				SendImages:      true,
				SendVideos:      true,
				MessageInterval: time.Minute,
				APIURL:          "https://api.telegram.org",
				Timeout:         30 * time.Second,
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "motion-relay",
			OTLPEndpoint: "localhost:4317",
			Environment:  "production",
		},
	}
}

// Default returns a copy of the built-in defaults.
func Default() *Config {
	cfg := defaults()
	return &cfg
}

// Load reads configuration from all sources with proper override order.
// Order: defaults -> config file -> environment variables.
func Load(configPath string) (*Config, error) {
	opts := []configloader.Option[Config]{
		configloader.WithDefaults[Config](defaults()),
	}

	// Add file source if path provided or if default config exists
	if configPath != "" {
		opts = append(opts, configloader.WithFile[Config](configPath))
	} else {
		for _, path := range []string{"./config.yaml", "/etc/motion-relay/config.yaml"} {
			if _, err := os.Stat(path); err == nil {
				opts = append(opts, configloader.WithFile[Config](path))
				break
			}
		}
	}

	opts = append(opts, configloader.WithEnv[Config](EnvPrefix))

	loader := configloader.NewConfigLoader[Config](opts...)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks structural settings. Backend credentials are validated by
// the transports so a bad backend only removes itself from the active set.
func (c *Config) Validate() error {
	var errs []error

	switch c.Sync.LocalFolder {
	case "", "/":
		errs = append(errs, fmt.Errorf("sync.localfolder %q is not a valid folder", c.Sync.LocalFolder))
	}
	if c.Sleep.MainLoop <= 0 {
		errs = append(errs, fmt.Errorf("sleep.mainloop must be positive, got %v", c.Sleep.MainLoop))
	}
	if c.Sleep.SyncDone < 0 || c.Sleep.CheckSensors < 0 {
		errs = append(errs, errors.New("sleep intervals must not be negative"))
	}
	if c.MaxWait.SenderTasks < 0 || c.MaxWait.FileSyncTasks < 0 {
		errs = append(errs, errors.New("maxwait bounds must not be negative"))
	}
	if c.Sensor.Enabled && c.Sensor.Camera.ImageCount < 0 {
		errs = append(errs, fmt.Errorf("sensor.camera.imagecount must not be negative, got %d", c.Sensor.Camera.ImageCount))
	}

	return errors.Join(errs...)
}
