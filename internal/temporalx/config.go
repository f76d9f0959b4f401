package temporalx

import (
	"strings"
	"time"

	"github.com/yungbote/groundwork-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	DialTimeout time.Duration
	Dial        Backoff

	// AutoRegisterNamespace creates Namespace on self-hosted clusters when it is missing.
	AutoRegisterNamespace bool
	RetentionDays         int
	NamespaceEnsure       Backoff

	WorkerStart Backoff
}

// LoadConfig reads TEMPORAL_*. An empty Address disables Temporal; jobs then run on the poll worker.
func LoadConfig() Config {
	cfg := Config{
		Address:   strings.TrimSpace(envutil.String("TEMPORAL_ADDRESS", "")),
		Namespace: strings.TrimSpace(envutil.String("TEMPORAL_NAMESPACE", "groundwork")),
		TaskQueue: strings.TrimSpace(envutil.String("TEMPORAL_TASK_QUEUE", "groundwork")),

		ClientCertPath: strings.TrimSpace(envutil.String("TEMPORAL_CLIENT_CERT_PATH", "")),
		ClientKeyPath:  strings.TrimSpace(envutil.String("TEMPORAL_CLIENT_KEY_PATH", "")),
		ClientCAPath:   strings.TrimSpace(envutil.String("TEMPORAL_CLIENT_CA_PATH", "")),

		DialTimeout: envutil.Seconds("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5*time.Second),
		Dial:        backoffFromEnv("TEMPORAL_DIAL", 60*time.Second),

		AutoRegisterNamespace: envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionDays:         envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7),
		NamespaceEnsure:       backoffFromEnv("TEMPORAL_NAMESPACE_ENSURE", 10*time.Second),

		WorkerStart: backoffFromEnv("TEMPORAL_WORKER_START", 60*time.Second),
	}
	if cfg.RetentionDays < 1 || cfg.RetentionDays > 365 {
		cfg.RetentionDays = 7
	}
	return cfg
}

func (c Config) mTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

// backoffFromEnv reads <prefix>_MAX_WAIT_SECONDS, <prefix>_BACKOFF_MS and <prefix>_BACKOFF_MAX_MS.
func backoffFromEnv(prefix string, maxWait time.Duration) Backoff {
	ms := func(key string, def int) time.Duration {
		n := envutil.Int(key, def)
		if n < 0 {
			n = 0
		}
		return time.Duration(n) * time.Millisecond
	}
	return Backoff{
		Base:    ms(prefix+"_BACKOFF_MS", 250),
		Max:     ms(prefix+"_BACKOFF_MAX_MS", 5000),
		MaxWait: envutil.Seconds(prefix+"_MAX_WAIT_SECONDS", maxWait),
	}
}
