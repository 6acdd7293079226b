package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type NSQ struct {
	NsqdTCPAddr     string // e.g. nsqd:4150
	LookupHTTPAddr  string // e.g. http://nsqlookupd:4161
	EventsTopic     string // NSQ topic domain producers publish events to
	DispatchChannel string // NSQ channel name for dispatchd consumers
}

type Dispatch struct {
	MaxInFlight int // concurrent outbound deliveries per trigger call
}

type API struct {
	Keys map[string]string // apiKey -> ownerID
}

type FakeReceiver struct {
	FailFirstN      int           // Number of requests to fail initially
	EndpointSecret  string        // Secret for webhook signature verification
	MaxSkew         time.Duration // Allowed X-Formerr-Timestamp age; 0 disables the check
	ResponseDelayMS int           // Simulated response delay in milliseconds
	Port            string        // Server listen port
}

type Config struct {
	AppName      string
	HTTPPort     string // :8080
	DB           DB
	NSQ          NSQ
	Dispatch     Dispatch
	API          API
	FakeReceiver FakeReceiver
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parseAPIKeys parses "owner1:key1,owner2:key2" into key -> owner. Malformed
// pairs are skipped.
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			continue
		}
		owner := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])
		if owner == "" || key == "" {
			continue
		}
		keys[key] = owner
	}
	return keys
}

func FromEnv() Config {
	return Config{
		AppName:  getenv("APP_NAME", "formerr-hooks"),
		HTTPPort: getenv("HTTP_PORT", ":8080"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "formerr"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:     getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr:  getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			EventsTopic:     getenv("NSQ_EVENTS_TOPIC", "form-events"),
			DispatchChannel: getenv("NSQ_DISPATCH_CHANNEL", "dispatchers"),
		},
		Dispatch: Dispatch{
			MaxInFlight: getenvInt("DISPATCH_MAX_IN_FLIGHT", 20),
		},
		API: API{
			Keys: parseAPIKeys(getenv("API_KEYS", "")),
		},
		FakeReceiver: FakeReceiver{
			FailFirstN:      getenvInt("FAIL_FIRST_N", 0),
			EndpointSecret:  getenv("ENDPOINT_SECRET", ""),
			MaxSkew:         getenvDuration("SIGNING_MAX_SKEW", 5*time.Minute),
			ResponseDelayMS: getenvInt("RESPONSE_DELAY_MS", 0),
			Port:            getenv("FAKE_RECEIVER_PORT", ":8081"),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
