package app

import (
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strings"

	"github.com/yungbote/groundwork-backend/internal/data/similarity"
	"github.com/yungbote/groundwork-backend/internal/platform/embeddings"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
	"github.com/yungbote/groundwork-backend/internal/platform/qdrant"
)

var newQdrantVectorStore = qdrant.NewVectorStore

type SimilarityBootstrapErrorCode string

const (
	SimilarityBootstrapMissingURL        SimilarityBootstrapErrorCode = "missing_qdrant_url"
	SimilarityBootstrapInvalidURL        SimilarityBootstrapErrorCode = "invalid_qdrant_url"
	SimilarityBootstrapMissingCollection SimilarityBootstrapErrorCode = "missing_qdrant_collection"
	SimilarityBootstrapInvalidVectorDim  SimilarityBootstrapErrorCode = "invalid_qdrant_vector_dim"
	SimilarityBootstrapConfigFailed      SimilarityBootstrapErrorCode = "qdrant_config_failed"
	SimilarityBootstrapConnectFailed     SimilarityBootstrapErrorCode = "connect_failed"
	SimilarityBootstrapInitFailed        SimilarityBootstrapErrorCode = "init_failed"
)

type SimilarityBootstrapError struct {
	Code  SimilarityBootstrapErrorCode
	Cause error
}

func (e *SimilarityBootstrapError) Error() string {
	if e == nil {
		return "similarity index bootstrap failed"
	}
	return fmt.Sprintf("similarity index bootstrap failed (code=%s): %v", e.Code, e.Cause)
}

func (e *SimilarityBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveSimilarityIndex returns nil (and no error) when either the embedder or QDRANT_URL is
// missing; the engine then reports similarity_disabled on checks.
func resolveSimilarityIndex(log *logger.Logger, embedder embeddings.Client) (similarity.Index, error) {
	cfg, ok, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		classified := classifySimilarityBootstrapError(err)
		log.Error("Similarity index config invalid", "error_code", similarityBootstrapErrorCode(classified), "error", classified)
		return nil, classified
	}
	if !ok {
		log.Warn("QDRANT_URL not set; similarity lookups disabled")
		return nil, nil
	}
	if embedder == nil {
		log.Warn("EMBEDDINGS_URL not set; similarity lookups disabled", "qdrant_url", cfg.URL)
		return nil, nil
	}

	log.Info("Selecting similarity index",
		"qdrant_url", cfg.URL,
		"qdrant_collection", cfg.Collection,
		"qdrant_namespace_prefix", cfg.NamespacePrefix,
		"qdrant_vector_dim", cfg.VectorDim,
	)
	vs, err := newQdrantVectorStore(log, cfg)
	if err != nil {
		classified := classifySimilarityBootstrapError(err)
		log.Error("Similarity index bootstrap failed", "error_code", similarityBootstrapErrorCode(classified), "error", classified)
		return nil, classified
	}
	idx := similarity.NewVectorIndex(log, embedder, instrumentVectorStore(vs))
	if idx == nil {
		return nil, nil
	}
	return idx, nil
}

func classifySimilarityBootstrapError(err error) error {
	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return &SimilarityBootstrapError{Code: SimilarityBootstrapConnectFailed, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &SimilarityBootstrapError{Code: SimilarityBootstrapConnectFailed, Cause: err}
	}
	if strings.Contains(strings.ToLower(err.Error()), "connection refused") {
		return &SimilarityBootstrapError{Code: SimilarityBootstrapConnectFailed, Cause: err}
	}

	var cfgErr *qdrant.ConfigError
	if errors.As(err, &cfgErr) {
		code := SimilarityBootstrapConfigFailed
		switch cfgErr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = SimilarityBootstrapMissingURL
		case qdrant.ConfigErrorInvalidURL:
			code = SimilarityBootstrapInvalidURL
		case qdrant.ConfigErrorMissingCollection:
			code = SimilarityBootstrapMissingCollection
		case qdrant.ConfigErrorInvalidVectorDim:
			code = SimilarityBootstrapInvalidVectorDim
		}
		return &SimilarityBootstrapError{Code: code, Cause: err}
	}
	return &SimilarityBootstrapError{Code: SimilarityBootstrapInitFailed, Cause: err}
}

func similarityBootstrapErrorCode(err error) SimilarityBootstrapErrorCode {
	var be *SimilarityBootstrapError
	if errors.As(err, &be) && be.Code != "" {
		return be.Code
	}
	return SimilarityBootstrapInitFailed
}
