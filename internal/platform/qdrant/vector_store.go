package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

const (
	payloadNamespaceKey = "_gw_namespace"
	payloadVectorIDKey  = "_gw_vector_id"
	maxErrorBodyBytes   = 1024
)

// Match is one nearest-neighbour hit. Score is normalised so that higher is more similar.
type Match struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// VectorStore is the read side of the similarity collection. Vectors are written by the
// embedding pipeline, which lives outside this service.
type VectorStore interface {
	Search(ctx context.Context, namespace string, vector []float32, topK int, filter Filter) ([]Match, error)
	Ping(ctx context.Context) error
}

type vectorStore struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	nsPrefix string
	distance string
	http     *http.Client
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// NewVectorStore validates the config and reads the collection's distance metric.
// A failing readiness probe is returned so callers can decide to run degraded.
func NewVectorStore(log *logger.Logger, cfg Config) (VectorStore, error) {
	s, err := newVectorStore(log, cfg, nil)
	if s == nil {
		return nil, err
	}
	return s, err
}

func newVectorStore(log *logger.Logger, cfg Config, transport http.RoundTripper) (*vectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	s := &vectorStore{
		log:      log.With("service", "QdrantVectorStore"),
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		nsPrefix: strings.TrimSpace(cfg.NamespacePrefix),
		http:     &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}
	if err := s.Ping(context.Background()); err != nil {
		return s, err
	}
	s.log.Info("qdrant similarity index ready",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"namespace_prefix", s.nsPrefix,
		"distance", s.distance,
	)
	return s, nil
}

func (s *vectorStore) Search(ctx context.Context, namespace string, vector []float32, topK int, filter Filter) ([]Match, error) {
	if s == nil {
		return nil, opErr("search", OperationErrorTransportFailed, "vector store unavailable", nil)
	}
	const op = "search"
	if len(vector) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if s.cfg.VectorDim > 0 && len(vector) != s.cfg.VectorDim {
		return nil, opErr(op, OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(vector)), nil)
	}
	if topK <= 0 {
		topK = 10
	}

	qualifiedNS := s.qualifyNamespace(namespace)
	qf, err := filter.translate(qualifiedNS)
	if err != nil {
		return nil, err
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
		"filter":       qf,
	}
	var raw []qdrantSearchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &raw); err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(raw))
	for _, item := range raw {
		id := vectorID(item)
		if id == "" {
			continue
		}
		payload := make(map[string]any, len(item.Payload))
		for k, v := range item.Payload {
			if k == payloadNamespaceKey || k == payloadVectorIDKey {
				continue
			}
			payload[k] = v
		}
		out = append(out, Match{ID: id, Score: s.normalizeScore(item.Score), Payload: payload})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (s *vectorStore) Ping(ctx context.Context) error {
	const op = "ping"
	var result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &result); err != nil {
		return err
	}
	size := result.Config.Params.Vectors.Size
	if s.cfg.VectorDim > 0 && size != 0 && size != s.cfg.VectorDim {
		return &OperationError{
			Code:      OperationErrorValidation,
			Operation: op,
			Message: fmt.Sprintf("qdrant collection %q vector size mismatch: expected=%d actual=%d",
				s.cfg.Collection, s.cfg.VectorDim, size),
		}
	}
	s.distance = strings.TrimSpace(result.Config.Params.Vectors.Distance)
	return nil
}

// doJSON sends in as the JSON body and decodes the "result" field of Qdrant's response
// envelope into out.
func (s *vectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		code := OperationErrorTransportFailed
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			code = OperationErrorTimeout
		}
		return opErr(op, code, method+" "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response", err)
	}
	if resp.StatusCode/100 != 2 {
		if len(raw) > maxErrorBodyBytes {
			raw = append(raw[:maxErrorBodyBytes:maxErrorBodyBytes], "..."...)
		}
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s %s: %s", method, path, raw),
		}
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Status json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode envelope", err)
	}
	if msg := envelopeError(envelope.Status); msg != "" {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || len(envelope.Result) == 0 || bytes.Equal(envelope.Result, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode result", err)
	}
	return nil
}

// envelopeError returns "" for a missing or "ok" status. Errors arrive either as a bare string
// or as {"error": "..."}.
func envelopeError(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var str string
	if json.Unmarshal(raw, &str) == nil {
		if strings.EqualFold(str, "ok") {
			return ""
		}
		return "qdrant status " + str
	}
	var obj struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Error != "" {
		return obj.Error
	}
	return "qdrant status " + string(raw)
}

func (s *vectorStore) qualifyNamespace(namespace string) string {
	if ns := strings.TrimSpace(namespace); ns != "" {
		return s.nsPrefix + ":" + ns
	}
	return s.nsPrefix
}

func (s *vectorStore) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

// vectorID prefers the id stored in the payload, since Qdrant point ids must be uuids or
// integers and the upstream embedder keys vectors by code id.
func vectorID(item qdrantSearchResultItem) string {
	if id, _ := item.Payload[payloadVectorIDKey].(string); strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(item.ID))
	dec.UseNumber()
	if dec.Decode(&v) != nil {
		return strings.TrimSpace(string(item.ID))
	}
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

// normalizeScore maps distance metrics to "higher is closer".
func (s *vectorStore) normalizeScore(score float64) float64 {
	switch strings.ToLower(s.distance) {
	case "euclid", "manhattan":
		return 1 / (1 + math.Abs(score))
	}
	return score
}
