package harbor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of a Harbor instance. It is loaded from a TOML
// or YAML file (selected by extension) and decoded with mapstructure so
// field names may be written in either the struct's Go casing or the
// file's natural snake_case, matching the ambient configuration style the
// rest of this codebase's dependency set favors.
type Config struct {
	AppName string `mapstructure:"app_name"`
	Address string `mapstructure:"address"`

	LoggerEnabled bool   `mapstructure:"logger_enabled"`
	LoggerFormat  string `mapstructure:"logger_format"`
	DebugMode     bool   `mapstructure:"debug_mode"`

	HandlerPoolSize int `mapstructure:"handler_pool_size"`

	TempDir string `mapstructure:"temp_dir"`

	// TLSCertFile/TLSKeyFile locate the PEM certificate chain and PKCS#8
	// private key loaded into a Keystore (see tls.go). AutoCertHosts/
	// AutoCertCacheDir configure golang.org/x/crypto/acme/autocert instead,
	// when set. Neither path negotiates HTTP/2 (golang.org/x/net/http2):
	// that is an explicit Non-goal, so the TLS config's NextProtos never
	// advertises "h2".
	TLSCertFile      string   `mapstructure:"tls_cert_file"`
	TLSKeyFile       string   `mapstructure:"tls_key_file"`
	AutoCertHosts    []string `mapstructure:"autocert_hosts"`
	AutoCertCacheDir string   `mapstructure:"autocert_cache_dir"`

	PROXYEnabled            bool          `mapstructure:"proxy_enabled"`
	PROXYRelayerIPWhitelist []string      `mapstructure:"proxy_relayer_ip_whitelist"`
	PROXYReadHeaderTimeout  time.Duration `mapstructure:"proxy_read_header_timeout"`

	WebSocketReadTimeout          time.Duration `mapstructure:"websocket_read_timeout"`
	WebSocketFragmentationMax     int           `mapstructure:"websocket_fragmentation_max"`
	PermessageDeflateThreshold    int           `mapstructure:"permessage_deflate_threshold"`
	PermessageDeflateMaxDecompressed int        `mapstructure:"permessage_deflate_max_decompressed"`
	PermessageDeflateLevel        int           `mapstructure:"permessage_deflate_level"`

	PassphraseCharset string `mapstructure:"passphrase_charset"`

	ShareCacheEnabled        bool  `mapstructure:"share_cache_enabled"`
	ShareCacheMaxMemoryBytes int   `mapstructure:"share_cache_max_memory_bytes"`
	ShareIndexFile           string `mapstructure:"share_index_file"`

	MinifierEnabled   bool     `mapstructure:"minifier_enabled"`
	MinifierMIMETypes []string `mapstructure:"minifier_mime_types"`
}

// DefaultConfig returns the configuration a Harbor uses when none is
// supplied.
func DefaultConfig() *Config {
	return &Config{
		AppName:                          "harbor",
		Address:                          ":8080",
		LoggerEnabled:                    true,
		LoggerFormat:                     `{"app_name":"{{.app_name}}","time":"{{.time_rfc3339}}","level":"{{.level}}","file":"{{.short_file}}","line":"{{.line}}"}`,
		HandlerPoolSize:                  25,
		TempDir:                          os.TempDir(),
		PROXYReadHeaderTimeout:           200 * time.Millisecond,
		WebSocketReadTimeout:             5 * time.Minute,
		WebSocketFragmentationMax:        0,
		PermessageDeflateThreshold:       512,
		PermessageDeflateMaxDecompressed: 100 * 1024 * 1024,
		PermessageDeflateLevel:           -1,
		PassphraseCharset:                "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789",
		ShareCacheEnabled:                true,
		ShareCacheMaxMemoryBytes:         32 * 1024 * 1024,
		ShareIndexFile:                   "index.html",
		MinifierEnabled:                  false,
		MinifierMIMETypes:                []string{"text/html", "text/css", "application/javascript"},
	}
}

// LoadConfig reads path (a .toml, .yaml, or .yml file) on top of
// DefaultConfig and returns the merged Config.
func LoadConfig(path string) (*Config, error) {
	raw := make(map[string]interface{})

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, &raw); err != nil {
			return nil, fmt.Errorf("harbor: failed to parse toml config: %w", err)
		}
	case ".yaml", ".yml":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("harbor: failed to read yaml config: %w", err)
		}
		if err := yaml.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("harbor: failed to parse yaml config: %w", err)
		}
	default:
		return nil, fmt.Errorf("harbor: unsupported config extension %q", ext)
	}

	cfg := DefaultConfig()

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("harbor: failed to build config decoder: %w", err)
	}

	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("harbor: failed to decode config: %w", err)
	}

	return cfg, nil
}
