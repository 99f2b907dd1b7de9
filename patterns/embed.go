// Package patterns provides embedded default recognizer definitions.
// YAML files in this directory use the Presidio-compatible recognizer format
// with piiscan extensions (validator, on_invalid, context_boost, stopwords).
package patterns

import _ "embed"

//go:embed pii_rules.yaml
var piiRulesYAML []byte

//go:embed metadata_keywords.yaml
var metadataKeywordsYAML []byte

// PIIRulesYAML returns the embedded default PII recognizer definitions.
func PIIRulesYAML() []byte { return piiRulesYAML }

// MetadataKeywordsYAML returns the embedded column-metadata keyword lists.
func MetadataKeywordsYAML() []byte { return metadataKeywordsYAML }
