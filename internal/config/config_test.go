package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Ensure no config file affects the test
	origDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	_ = os.Chdir(tmpDir)
	defer os.Chdir(origDir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("expected loglevel=info, got %s", cfg.LogLevel)
	}
	if cfg.Sync.LocalFolder != "/tmp/motion-relay" {
		t.Errorf("expected default sync folder, got %s", cfg.Sync.LocalFolder)
	}
	if !cfg.Sync.InitialCleanup {
		t.Error("expected initial cleanup enabled by default")
	}
	if cfg.Sleep.MainLoop != 500*time.Millisecond {
		t.Errorf("expected mainloop=500ms, got %v", cfg.Sleep.MainLoop)
	}
	if cfg.MaxWait.SenderTasks != 30*time.Second {
		t.Errorf("expected sendertasks=30s, got %v", cfg.MaxWait.SenderTasks)
	}

	// Only the log destination is active out of the box
	if !cfg.Destinations.Log.Active {
		t.Error("expected log destination active by default")
	}
	if cfg.Destinations.Mail.Active || cfg.Destinations.CloudStorage.Active || cfg.Destinations.ChatBot.Active {
		t.Error("expected remote destinations inactive by default")
	}
	if cfg.Sensor.Enabled {
		t.Error("expected sensors disabled by default")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	origDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	_ = os.Chdir(tmpDir)
	defer os.Chdir(origDir)

	// MOTION_RELAY_LOGLEVEL -> loglevel
	t.Setenv("MOTION_RELAY_LOGLEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("expected loglevel=debug from env, got %s", cfg.LogLevel)
	}
}

func TestLoad_NestedEnvOverride(t *testing.T) {
	origDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	_ = os.Chdir(tmpDir)
	defer os.Chdir(origDir)

	// MOTION_RELAY_DESTINATIONS_CHATBOT_ACTIVE -> destinations.chatbot.active
	t.Setenv("MOTION_RELAY_DESTINATIONS_CHATBOT_ACTIVE", "true")
	t.Setenv("MOTION_RELAY_SYNC_LOCALFOLDER", "/var/lib/motion-relay")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.Destinations.ChatBot.Active {
		t.Error("expected chatbot active from nested env")
	}
	if cfg.Sync.LocalFolder != "/var/lib/motion-relay" {
		t.Errorf("expected sync folder from env, got %s", cfg.Sync.LocalFolder)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
loglevel: warn
sync:
  localfolder: /data/captures
  initialcleanup: false
  whitelist:
    suffixes: [".jpg"]
  blacklist:
    names: ["tmp"]
destinations:
  mail:
    active: true
    server: smtp.example.com
    address: cam@example.com
  log:
    active: false
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("expected loglevel=warn from file, got %s", cfg.LogLevel)
	}
	if cfg.Sync.LocalFolder != "/data/captures" {
		t.Errorf("expected sync folder from file, got %s", cfg.Sync.LocalFolder)
	}
	if cfg.Sync.InitialCleanup {
		t.Error("expected initial cleanup disabled from file")
	}
	if len(cfg.Sync.Whitelist.Suffixes) != 1 || cfg.Sync.Whitelist.Suffixes[0] != ".jpg" {
		t.Errorf("expected whitelist suffixes [.jpg], got %v", cfg.Sync.Whitelist.Suffixes)
	}
	if len(cfg.Sync.Blacklist.Names) != 1 || cfg.Sync.Blacklist.Names[0] != "tmp" {
		t.Errorf("expected blacklist names [tmp], got %v", cfg.Sync.Blacklist.Names)
	}
	if !cfg.Destinations.Mail.Active || cfg.Destinations.Mail.Server != "smtp.example.com" {
		t.Errorf("expected mail destination from file, got %+v", cfg.Destinations.Mail)
	}
	if cfg.Destinations.Mail.ServerPort != 465 {
		t.Errorf("expected default mail port to survive file merge, got %d", cfg.Destinations.Mail.ServerPort)
	}
	if cfg.Destinations.Log.Active {
		t.Error("expected log destination disabled from file")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `loglevel: warn`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("MOTION_RELAY_LOGLEVEL", "error")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("expected env to override file, got %s", cfg.LogLevel)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidContent := `
loglevel: info
  invalid_indent: true
`
	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestLoad_RejectsRootSyncFolder(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("sync:\n  localfolder: /\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for / as sync folder")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"empty folder", func(c *Config) { c.Sync.LocalFolder = "" }, true},
		{"zero main loop", func(c *Config) { c.Sleep.MainLoop = 0 }, true},
		{"negative settle", func(c *Config) { c.Sleep.SyncDone = -time.Second }, true},
		{"negative bound", func(c *Config) { c.MaxWait.FileSyncTasks = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPolicy_BackendRestrictions(t *testing.T) {
	d := defaults()

	mail := d.Destinations.Mail.Policy()
	if mail.SendImages || mail.SendVideos {
		t.Error("expected mail policy to never carry media")
	}

	storage := d.Destinations.CloudStorage.Policy()
	if storage.SendMessages {
		t.Error("expected cloud storage policy to never carry messages")
	}
	if !storage.SendImages || !storage.SendVideos {
		t.Error("expected cloud storage to sync media by default")
	}

	chat := d.Destinations.ChatBot.Policy()
	if chat.MessageInterval != time.Minute {
		t.Errorf("expected chatbot interval=1m, got %v", chat.MessageInterval)
	}
}
