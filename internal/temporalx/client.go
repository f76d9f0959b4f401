package temporalx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

// NewClient dials the frontend, retrying per cfg.Dial. It returns nil, nil when
// TEMPORAL_ADDRESS is unset.
func NewClient(log *logger.Logger) (temporalsdkclient.Client, error) {
	if log == nil {
		log = logger.Nop()
	}
	cfg := LoadConfig()
	if cfg.Address == "" {
		log.Warn("TEMPORAL_ADDRESS not set; jobs run on the poll worker")
		return nil, nil
	}
	opts, err := clientOptions(cfg, log)
	if err != nil {
		return nil, err
	}
	opts.Namespace = cfg.Namespace

	var c temporalsdkclient.Client
	err = cfg.Dial.Retry(context.Background(), func(ctx context.Context, attempt int) (bool, error) {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		var dialErr error
		c, dialErr = temporalsdkclient.DialContext(dialCtx, opts)
		if dialErr != nil {
			log.Warn("temporal not reachable", "address", cfg.Address, "attempt", attempt, "error", dialErr)
			return true, dialErr
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("temporal dial %s/%s: %w", cfg.Address, cfg.Namespace, err)
	}
	log.Info("temporal connected", "address", cfg.Address, "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)

	if cfg.AutoRegisterNamespace {
		if err := EnsureNamespace(context.Background(), c, cfg.Namespace, log); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// EnsureNamespace registers namespace when it does not exist yet. Managed clusters should
// provision namespaces ahead of time; this is for local and self-hosted setups.
func EnsureNamespace(ctx context.Context, c temporalsdkclient.Client, namespace string, log *logger.Logger) error {
	cfg := LoadConfig()
	if c == nil || namespace == "" || cfg.Address == "" {
		return nil
	}
	if log == nil {
		log = logger.Nop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	wait := cfg.NamespaceEnsure.MaxWait
	if wait <= 0 {
		wait = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	// The namespace client sends no namespace header, so it can create a missing one.
	opts, err := clientOptions(cfg, log)
	if err != nil {
		return err
	}
	ns, err := temporalsdkclient.NewNamespaceClient(opts)
	if err != nil {
		return fmt.Errorf("temporal namespace client: %w", err)
	}
	defer ns.Close()

	return cfg.NamespaceEnsure.Retry(ctx, func(ctx context.Context, attempt int) (bool, error) {
		_, err := ns.Describe(ctx, namespace)
		var notFound *serviceerror.NamespaceNotFound
		switch {
		case err == nil:
			return false, nil
		case !errors.As(err, &notFound):
			log.Warn("temporal namespace describe failed", "namespace", namespace, "attempt", attempt, "error", err)
			return retryableRPC(err), fmt.Errorf("describe namespace %s: %w", namespace, err)
		}

		err = ns.Register(ctx, &workflowservice.RegisterNamespaceRequest{
			Namespace:                        namespace,
			Description:                      "groundwork coding jobs",
			WorkflowExecutionRetentionPeriod: durationpb.New(time.Duration(cfg.RetentionDays) * 24 * time.Hour),
		})
		var exists *serviceerror.NamespaceAlreadyExists
		switch {
		case err == nil:
			log.Info("temporal namespace registered", "namespace", namespace, "retention_days", cfg.RetentionDays)
			return false, nil
		case errors.As(err, &exists):
			return false, nil
		}
		log.Warn("temporal namespace register failed", "namespace", namespace, "attempt", attempt, "error", err)
		return retryableRPC(err), fmt.Errorf("register namespace %s: %w", namespace, err)
	})
}

func clientOptions(cfg Config, log *logger.Logger) (temporalsdkclient.Options, error) {
	opts := temporalsdkclient.Options{HostPort: cfg.Address, Logger: log}
	if cfg.mTLS() {
		tlsCfg, err := loadTLSConfig(cfg)
		if err != nil {
			return opts, err
		}
		opts.ConnectionOptions.TLS = tlsCfg
	}
	return opts, nil
}

func loadTLSConfig(cfg Config) (*tls.Config, error) {
	if cfg.ClientCertPath == "" || cfg.ClientKeyPath == "" {
		return nil, fmt.Errorf("temporal mTLS needs TEMPORAL_CLIENT_CERT_PATH and TEMPORAL_CLIENT_KEY_PATH")
	}
	cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("temporal mTLS key pair: %w", err)
	}
	out := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if cfg.ClientCAPath == "" {
		return out, nil
	}
	pem, err := os.ReadFile(cfg.ClientCAPath)
	if err != nil {
		return nil, fmt.Errorf("temporal mTLS CA: %w", err)
	}
	out.RootCAs = x509.NewCertPool()
	if !out.RootCAs.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("temporal mTLS CA %s: no certificates", cfg.ClientCAPath)
	}
	return out, nil
}

func retryableRPC(err error) bool {
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
			return true
		}
		return false
	}
	return errors.Is(err, context.DeadlineExceeded)
}
