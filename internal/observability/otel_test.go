package observability

import "testing"

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" authorization=Bearer abc , x-team=coding,broken,=novalue,empty= ")
	if len(got) != 2 {
		t.Fatalf("expected 2 headers, got %v", got)
	}
	if got["authorization"] != "Bearer abc" || got["x-team"] != "coding" {
		t.Fatalf("unexpected headers: %v", got)
	}
	if parseHeaders("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestExporterConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "yes")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("OTEL_SAMPLER_RATIO", "3")

	ec := exporterConfigFromEnv()
	if !ec.Enabled || !ec.Insecure {
		t.Fatalf("flags not read: %+v", ec)
	}
	if ec.Endpoint != "collector:4318" {
		t.Fatalf("endpoint: got=%q", ec.Endpoint)
	}
	if ec.SampleRatio != 1 {
		t.Fatalf("ratio must clamp to 1, got %v", ec.SampleRatio)
	}

	t.Setenv("OTEL_SAMPLER_RATIO", "-0.5")
	if r := exporterConfigFromEnv().SampleRatio; r != 0 {
		t.Fatalf("ratio must clamp to 0, got %v", r)
	}
	t.Setenv("OTEL_SAMPLER_RATIO", "")
	if r := exporterConfigFromEnv().SampleRatio; r != 0.1 {
		t.Fatalf("default ratio: got %v", r)
	}
}
