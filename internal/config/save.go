package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultHeader = `# threadsync configuration.
# Every key can be overridden with THREADSYNC_<SECTION>_<KEY>, e.g. THREADSYNC_TRANSPORT_URL.`

// WriteDefault writes DefaultConfig as YAML to path. An existing file is left untouched
// unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	var doc yaml.Node
	if err := doc.Encode(DefaultConfig()); err != nil {
		return fmt.Errorf("encoding defaults: %w", err)
	}
	annotate(&doc)

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	// Write atomically (write to temp, then rename)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".threadsync.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(buf.Bytes()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

var sectionComments = map[string]string{
	"api":       "# Feedback REST service. history_cache_ttl 0 disables caching.",
	"transport": "# Live discussion transport: websocket or nats.",
	"typing":    "# Local typing indicator auto-expiry.",
	"tracing":   "# OpenTelemetry exporter: none or stdout.",
	"metrics":   "# Prometheus listen address, empty to disable.",
}

func annotate(doc *yaml.Node) {
	if doc.Kind != yaml.MappingNode || len(doc.Content) == 0 {
		return
	}
	doc.Content[0].HeadComment = defaultHeader
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if c, ok := sectionComments[doc.Content[i].Value]; ok {
			doc.Content[i].HeadComment = c
		}
	}
}
