// Package doctor provides preflight checks for piiscan configuration,
// model artifacts and provider connectivity. Used by `piiscan doctor`.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dativo-io/piiscan/internal/classifier"
	"github.com/dativo-io/piiscan/internal/config"
	"github.com/dativo-io/piiscan/internal/dataset"
	"github.com/dativo-io/piiscan/internal/ensemble"
	"github.com/dativo-io/piiscan/internal/provider"
	"github.com/dativo-io/piiscan/internal/redact"
)

// Check statuses, from best to worst.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which check categories to run.
type Options struct {
	SkipUpstream bool // Skip NER sidecar and embeddings API checks (for CI/offline)
}

// Run executes all doctor checks against cfg and returns a report.
func Run(ctx context.Context, cfg *config.Config, opts Options) *Report {
	report := &Report{}

	report.Checks = append(report.Checks, checkModels(cfg)...)
	if !opts.SkipUpstream {
		report.Checks = append(report.Checks, checkProviders(ctx, cfg)...)
	}
	report.Checks = append(report.Checks, checkPipeline(cfg))

	report.summarize()
	return report
}

func (r *Report) summarize() {
	r.Summary = Summary{}
	for _, c := range r.Checks {
		switch c.Status {
		case StatusPass:
			r.Summary.Pass++
		case StatusWarn:
			r.Summary.Warn++
		case StatusFail:
			r.Summary.Fail++
		}
	}

	r.Status = StatusPass
	if r.Summary.Warn > 0 {
		r.Status = StatusWarn
	}
	if r.Summary.Fail > 0 {
		r.Status = StatusFail
	}
}

func checkModels(cfg *config.Config) []CheckResult {
	return []CheckResult{
		checkModelDir(cfg),
		checkCalibrator(cfg),
		checkClassifier(cfg),
		checkAPIKey(cfg),
	}
}

func checkModelDir(cfg *config.Config) CheckResult {
	if err := os.MkdirAll(cfg.ModelDir, 0o755); err != nil {
		return CheckResult{
			Name: "model_dir_writable", Category: "models", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", cfg.ModelDir, err),
			Fix:     "Ensure the directory exists and is writable, or set PIISCAN_MODEL_DIR",
		}
	}
	testFile := filepath.Join(cfg.ModelDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "model_dir_writable", Category: "models", Status: StatusFail,
			Message: fmt.Sprintf("%s not writable: %v", cfg.ModelDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "model_dir_writable", Category: "models", Status: StatusPass,
		Message: fmt.Sprintf("%s (writable)", cfg.ModelDir),
	}
}

func checkCalibrator(cfg *config.Config) CheckResult {
	path := cfg.CalibratorPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return CheckResult{
			Name: "calibrator", Category: "models", Status: StatusWarn,
			Message: "Not trained; scores are uncalibrated",
			Fix:     "Run 'piiscan calibrate -i <labeled.jsonl>'",
		}
	}
	if _, err := ensemble.LoadCalibrator(path); err != nil {
		return CheckResult{
			Name: "calibrator", Category: "models", Status: StatusFail,
			Message: err.Error(),
			Fix:     "Re-run 'piiscan calibrate' to rewrite the file",
		}
	}
	return CheckResult{Name: "calibrator", Category: "models", Status: StatusPass, Message: path}
}

func checkClassifier(cfg *config.Config) CheckResult {
	if !cfg.Embeddings.Enabled {
		return CheckResult{Name: "embed_classifier", Category: "models", Status: StatusPass, Message: "Embeddings disabled"}
	}
	path := cfg.ClassifierPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return CheckResult{
			Name: "embed_classifier", Category: "models", Status: StatusWarn,
			Message: "Not trained; the embedding signal is neutral",
			Fix:     "Run 'piiscan train-embed -i <labeled.jsonl>'",
		}
	}
	if _, err := provider.NewEmbedding(cfg.Embeddings); err != nil {
		fix := "Re-run 'piiscan train-embed' to rewrite the file"
		if errors.Is(err, provider.ErrEncoderMismatch) {
			fix = "Retrain with the configured encoder, or switch embeddings.encoder back"
		}
		return CheckResult{
			Name: "embed_classifier", Category: "models", Status: StatusFail,
			Message: err.Error(), Fix: fix,
		}
	}
	return CheckResult{
		Name: "embed_classifier", Category: "models", Status: StatusPass,
		Message: fmt.Sprintf("%s (%s encoder)", path, cfg.Embeddings.Encoder),
	}
}

func checkAPIKey(cfg *config.Config) CheckResult {
	if !cfg.Embeddings.Enabled || cfg.Embeddings.Encoder != provider.EncoderOpenAI {
		return CheckResult{Name: "embeddings_api_key", Category: "models", Status: StatusPass, Message: "Not required"}
	}
	if cfg.Embeddings.APIKey == "" {
		return CheckResult{
			Name: "embeddings_api_key", Category: "models", Status: StatusFail,
			Message: "No API key for the openai encoder",
			Fix:     "Set PIISCAN_EMBEDDINGS_API_KEY or embeddings.api_key",
		}
	}
	if cfg.UsingEnvAPIKey() {
		return CheckResult{
			Name: "embeddings_api_key", Category: "models", Status: StatusWarn,
			Message: "Using OPENAI_API_KEY",
			Fix:     "Set PIISCAN_EMBEDDINGS_API_KEY for production",
		}
	}
	return CheckResult{Name: "embeddings_api_key", Category: "models", Status: StatusPass, Message: "Configured"}
}

func checkProviders(ctx context.Context, cfg *config.Config) []CheckResult {
	client := &http.Client{Timeout: 5 * time.Second}
	var results []CheckResult
	if cfg.NER.Enabled && cfg.NER.Provider == provider.NERHTTP {
		results = append(results, checkUpstream(ctx, client, "ner", cfg.NER.URL)...)
	}
	if cfg.Embeddings.Enabled && cfg.Embeddings.Encoder == provider.EncoderOpenAI {
		baseURL := cfg.Embeddings.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com"
		}
		results = append(results, checkUpstream(ctx, client, "embeddings", baseURL)...)
		if r, ok := checkModelsEndpoint(ctx, client, baseURL); ok {
			results = append(results, r)
		}
	}
	return results
}

func checkUpstream(ctx context.Context, client *http.Client, name, baseURL string) []CheckResult {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
	if reqErr != nil {
		return []CheckResult{{
			Name: "upstream_" + name, Category: "providers", Status: StatusFail,
			Message: fmt.Sprintf("Invalid URL: %v", reqErr),
		}}
	}
	start := time.Now()
	resp, err := client.Do(req) //nolint:gosec // G704: URL from operator-controlled config, not user input
	latency := time.Since(start)

	if err != nil {
		return []CheckResult{{
			Name: "upstream_" + name, Category: "providers", Status: StatusFail,
			Message: fmt.Sprintf("Connection failed: %v", err),
			Fix:     "Check network connectivity and the configured URL",
		}}
	}
	resp.Body.Close()

	results := []CheckResult{{
		Name: "upstream_" + name, Category: "providers", Status: StatusPass,
		Message: fmt.Sprintf("%s (%dms)", baseURL, latency.Milliseconds()),
	}}

	// Scans degrade to a neutral signal after the per-call timeout, so
	// slow upstreams silently cost accuracy.
	if latency > 2*time.Second {
		results = append(results, CheckResult{
			Name: "upstream_latency_" + name, Category: "providers", Status: StatusFail,
			Message: fmt.Sprintf("%.1fs (> 2s threshold)", latency.Seconds()),
			Fix:     "Run the sidecar closer to piiscan or raise the provider timeout",
		})
	} else if latency > time.Second {
		results = append(results, CheckResult{
			Name: "upstream_latency_" + name, Category: "providers", Status: StatusWarn,
			Message: fmt.Sprintf("%.1fs (> 1s threshold)", latency.Seconds()),
		})
	}
	return results
}

func checkModelsEndpoint(ctx context.Context, client *http.Client, baseURL string) (CheckResult, bool) {
	modelsURL := baseURL + "/v1/models"
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, modelsURL, nil)
	if reqErr != nil {
		return CheckResult{
			Name: "embeddings_models", Category: "providers", Status: StatusFail,
			Message: fmt.Sprintf("invalid models URL %s: %v", modelsURL, reqErr),
			Fix:     "Check embeddings.base_url",
		}, true
	}
	resp, err := client.Do(req)
	if err != nil {
		return CheckResult{
			Name: "embeddings_models", Category: "providers", Status: StatusWarn,
			Message: fmt.Sprintf("GET %s failed: %v", modelsURL, err),
			Fix:     "Verify embeddings.base_url points to an OpenAI-compatible API",
		}, true
	}
	resp.Body.Close()
	if resp.StatusCode < 500 {
		return CheckResult{
			Name: "embeddings_models", Category: "providers", Status: StatusPass,
			Message: fmt.Sprintf("GET /v1/models: %d", resp.StatusCode),
		}, true
	}
	return CheckResult{}, false
}

// checkPipeline compiles the configured recognizers and builds sanitized
// contexts for a synthetic example, which must not leak any value.
func checkPipeline(cfg *config.Config) CheckResult {
	scanner, err := classifier.NewScanner(cfg.ScannerOptions()...)
	if err != nil {
		return CheckResult{
			Name: "pipeline_self_test", Category: "pipeline", Status: StatusFail,
			Message: err.Error(),
			Fix:     "Fix rules.pattern_file or rules.enabled_types",
		}
	}

	builder := redact.NewBuilder(cfg.Window)
	candidates := 0
	for _, ex := range dataset.GenerateSynthetic(20, 1) {
		cands := scanner.Propose(context.Background(), ex.Text)
		candidates += len(cands)
		if _, err := builder.Contexts(ex.Text, cands, ex.Labels); err != nil {
			return CheckResult{
				Name: "pipeline_self_test", Category: "pipeline", Status: StatusFail,
				Message: err.Error(),
				Fix:     "Check custom recognizers for patterns that match redaction tokens",
			}
		}
	}
	return CheckResult{
		Name: "pipeline_self_test", Category: "pipeline", Status: StatusPass,
		Message: fmt.Sprintf("%d types, %d candidates on synthetic data, contexts clean", len(scanner.Types()), candidates),
	}
}
