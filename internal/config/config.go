package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
)

const (
	ModeInstaller = "installer"
	ModeServer    = "server"
)

type Config struct {
	Mode      string
	Server    ServerConfig
	State     StateConfig
	Ansible   AnsibleConfig
	Auth      AuthConfig
	WireGuard WireGuardConfig
	SSH       SSHConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Addr           string
	FrontendOrigin string
	ReadTimeout    time.Duration
}

type StateConfig struct {
	Dir     string
	DBPath  string
	RunsDir string
	TempDir string
	KeyName string
}

type AnsibleConfig struct {
	Dir           string
	PlaybookBin   string
	DeployPlay    string
	StackPlay     string
	InventoryName string
}

type AuthConfig struct {
	JWTSecret     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	CookieSecure  bool
	AdminEmail    string
	AdminPassword string
}

type WireGuardConfig struct {
	Mode       string
	Container  string
	Interface  string
	Host       string
	Port       int
	Subnet     string
	DNS        string
	AllowedIPs string
}

type SSHConfig struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	DefaultUser    string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func LoadConfig() *Config {
	stateDir := getEnvAsString("STATE_DIR", "/app/state")
	return &Config{
		Mode: getEnvAsString("APP_MODE", ModeServer),
		Server: ServerConfig{
			Addr:           getEnvAsString("SERVER_ADDR", "127.0.0.1:8080"),
			FrontendOrigin: getEnvAsString("FRONTEND_ORIGIN", "http://localhost:3000"),
			ReadTimeout:    time.Duration(getEnvAsInt("READ_TIMEOUT", 30)) * time.Second,
		},
		State: StateConfig{
			Dir:     stateDir,
			DBPath:  getEnvAsString("DB_PATH", filepath.Join(stateDir, "autovpn.db")),
			RunsDir: getEnvAsString("RUNS_DIR", filepath.Join(stateDir, "runs")),
			TempDir: getEnvAsString("TMP_DIR", os.TempDir()),
			KeyName: getEnvAsString("KEY_NAME", "autovpn_id"),
		},
		Ansible: AnsibleConfig{
			Dir:           getEnvAsString("ANSIBLE_DIR", "/app/ansible"),
			PlaybookBin:   getEnvAsString("ANSIBLE_PLAYBOOK_BIN", "ansible-playbook"),
			DeployPlay:    getEnvAsString("ANSIBLE_DEPLOY_PLAY", "site-deploy.yml"),
			StackPlay:     getEnvAsString("ANSIBLE_STACK_PLAY", "site-stack.yml"),
			InventoryName: getEnvAsString("ANSIBLE_INVENTORY", "cloud"),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnvAsString("JWT_SECRET", "change-me"),
			AccessTTL:     time.Duration(getEnvAsInt("JWT_ACCESS_TTL_MIN", 15)) * time.Minute,
			RefreshTTL:    time.Duration(getEnvAsInt("JWT_REFRESH_TTL_DAYS", 7)) * 24 * time.Hour,
			CookieSecure:  getEnvAsBool("COOKIE_SECURE", true),
			AdminEmail:    getEnvAsString("ADMIN_EMAIL", ""),
			AdminPassword: getEnvAsString("ADMIN_PASSWORD", ""),
		},
		WireGuard: WireGuardConfig{
			Mode:       getEnvAsString("WG_MODE", "container"),
			Container:  getEnvAsString("WG_CONTAINER_NAME", "wireguard"),
			Interface:  getEnvAsString("WG_INTERFACE", "wg0"),
			Host:       getEnvAsString("WG_HOST", "127.0.0.1"),
			Port:       getEnvAsInt("WG_PORT", 51820),
			Subnet:     getEnvAsString("WG_SUBNET", "10.13.13.0/24"),
			DNS:        getEnvAsString("WG_DNS", "10.13.13.1"),
			AllowedIPs: getEnvAsString("WG_ALLOWED_IPS", "0.0.0.0/0, ::/0"),
		},
		SSH: SSHConfig{
			ConnectTimeout: time.Duration(getEnvAsInt("SSH_CONNECT_TIMEOUT", 8)) * time.Second,
			CommandTimeout: time.Duration(getEnvAsInt("SSH_COMMAND_TIMEOUT", 300)) * time.Second,
			DefaultUser:    getEnvAsString("SSH_DEFAULT_USER", "ubuntu"),
		},
		Logging: LoggingConfig{
			Level:  getEnvAsString("LOG_LEVEL", "info"),
			Format: getEnvAsString("LOG_FORMAT", "console"),
		},
	}
}

func (c *Config) IsInstaller() bool {
	return c.Mode == ModeInstaller
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := cast.ToIntE(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := cast.ToBoolE(value); err == nil {
			return b
		}
	}
	return defaultValue
}
