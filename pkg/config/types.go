package config

import (
	"time"

	"github.com/getmockd/switchboard/pkg/pool"
)

// InheritMarker is the override entry that stands for the inherited chain.
const InheritMarker = "..."

// Config is the complete switchboard configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Admin     AdminConfig     `yaml:"admin" envconfig:"ADMIN"`
	Log       LogConfig       `yaml:"log" envconfig:"LOG"`
	Pool      pool.Config     `yaml:"pool" envconfig:"POOL"`
	Protocols ProtocolsConfig `yaml:"protocols" envconfig:"PROTOCOLS"`

	// Middleware declares named middleware instances referenced by routes.
	Middleware map[string]MiddlewareSpec `yaml:"middleware" ignored:"true"`

	// Routes holds the route set of each protocol, keyed by protocol tag.
	Routes map[string]RouteSet `yaml:"routes" ignored:"true"`
}

// ServerConfig configures the listener.
type ServerConfig struct {
	Listen            string        `yaml:"listen" envconfig:"LISTEN"`
	MaxConnectionTime time.Duration `yaml:"maxConnectionTime" envconfig:"MAX_CONNECTION_TIME"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT"`
	ReadBufferSize    int           `yaml:"readBufferSize" envconfig:"READ_BUFFER_SIZE"`
}

// AdminConfig configures the admin HTTP surface.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
	Listen  string `yaml:"listen" envconfig:"LISTEN"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
	File   string `yaml:"file" envconfig:"FILE"`
}

// ProtocolsConfig configures detection and the bundled protocols.
type ProtocolsConfig struct {
	// Order lists the detected protocols by priority. Protocols left out are
	// not served.
	Order         []string      `yaml:"order" envconfig:"ORDER"`
	DetectTimeout time.Duration `yaml:"detectTimeout" envconfig:"DETECT_TIMEOUT"`
	PeekSize      int           `yaml:"peekSize" envconfig:"PEEK_SIZE"`

	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	MQTT      MQTTConfig      `yaml:"mqtt" envconfig:"MQTT"`
	Mux       MuxConfig       `yaml:"mux" envconfig:"MUX"`
}

// WebSocketConfig configures the websocket protocol reached by upgrade.
type WebSocketConfig struct {
	Enabled        bool     `yaml:"enabled" envconfig:"ENABLED"`
	OriginPatterns []string `yaml:"originPatterns" envconfig:"ORIGIN_PATTERNS"`
	ReadLimit      int64    `yaml:"readLimit" envconfig:"READ_LIMIT"`
}

// MQTTConfig configures the embedded MQTT broker.
type MQTTConfig struct {
	ListenerID string `yaml:"listenerId" envconfig:"LISTENER_ID"`
}

// MuxConfig configures the multiplexed stream protocol.
type MuxConfig struct {
	MaxStreams     int           `yaml:"maxStreams" envconfig:"MAX_STREAMS"`
	KeepAlive      time.Duration `yaml:"keepAlive" envconfig:"KEEP_ALIVE"`
	AcceptBacklog  int           `yaml:"acceptBacklog" envconfig:"ACCEPT_BACKLOG"`
	StreamDeadline time.Duration `yaml:"streamDeadline" envconfig:"STREAM_DEADLINE"`
}

// Middleware types understood by the application.
const (
	MiddlewareLogging   = "logging"
	MiddlewareRecover   = "recover"
	MiddlewareRequestID = "request_id"
	MiddlewareTiming    = "timing"
	MiddlewareMetrics   = "metrics"
	MiddlewareRateLimit = "rate_limit"
	MiddlewareJWTAuth   = "jwt_auth"
	MiddlewareGuard     = "guard"
	MiddlewareGzip      = "gzip"
)

// BuiltinMiddleware lists the middleware types that need no options. Each
// can be referenced by its type name without a declaration.
var BuiltinMiddleware = []string{
	MiddlewareLogging,
	MiddlewareRecover,
	MiddlewareRequestID,
	MiddlewareTiming,
	MiddlewareMetrics,
	MiddlewareGzip,
}

// MiddlewareSpec declares a configured middleware instance.
type MiddlewareSpec struct {
	Type string `yaml:"type"`

	// rate_limit
	Rate           float64  `yaml:"rate,omitempty"`
	Burst          int      `yaml:"burst,omitempty"`
	TrustedProxies []string `yaml:"trustedProxies,omitempty"`

	// jwt_auth
	Secret   string `yaml:"secret,omitempty"`
	Issuer   string `yaml:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty"`
	Header   string `yaml:"header,omitempty"`

	// guard
	Expression string `yaml:"expression,omitempty"`

	// gzip
	Level   int `yaml:"level,omitempty"`
	MinSize int `yaml:"minSize,omitempty"`
}

// RouteSet is the route tree configuration of one protocol.
type RouteSet struct {
	// Middleware is the protocol-level list, run before every route's chain.
	Middleware []string      `yaml:"middleware"`
	Routes     []RouteConfig `yaml:"routes"`
}

// RouteConfig configures one node of a route tree.
type RouteConfig struct {
	Path       string   `yaml:"path"`
	Middleware []string `yaml:"middleware,omitempty"`
	// Override replaces the inherited chain for this node only. A nil
	// list means no override; an empty one is an error.
	Override []string `yaml:"override,omitempty"`

	Response *ResponseConfig `yaml:"response,omitempty"`
	Proxy    string          `yaml:"proxy,omitempty"`
}

// ResponseConfig is a static response. "{name}" in the body is replaced
// with the route parameter of that name.
type ResponseConfig struct {
	Status  int               `yaml:"status"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    string            `yaml:"body"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:            ":8080",
			MaxConnectionTime: 10 * time.Minute,
			ShutdownTimeout:   15 * time.Second,
			ReadBufferSize:    4096,
		},
		Admin: AdminConfig{
			Enabled: true,
			Listen:  "127.0.0.1:9090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Pool: pool.DefaultConfig(),
		Protocols: ProtocolsConfig{
			Order:         []string{"mqtt", "mux", "h2c", "http", "text"},
			DetectTimeout: 10 * time.Second,
			PeekSize:      64,
			WebSocket: WebSocketConfig{
				Enabled:   true,
				ReadLimit: 32 << 10,
			},
			MQTT: MQTTConfig{ListenerID: "switchboard"},
			Mux: MuxConfig{
				MaxStreams:     256,
				KeepAlive:      30 * time.Second,
				AcceptBacklog:  256,
				StreamDeadline: time.Minute,
			},
		},
		Middleware: map[string]MiddlewareSpec{},
		Routes:     map[string]RouteSet{},
	}
}
