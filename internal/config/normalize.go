package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeImport()
	c.normalizeArchive()
	c.normalizeLogging()
	c.Hashing.Algorithm = strings.ToLower(strings.TrimSpace(c.Hashing.Algorithm))
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Hashing.Algorithm == "" {
		c.Hashing.Algorithm = defaultHashAlgorithm
	}
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"paths.library_dir", &c.Paths.LibraryDir},
		{"paths.data_dir", &c.Paths.DataDir},
		{"paths.log_dir", &c.Paths.LogDir},
		{"paths.import_dir", &c.Paths.ImportDir},
		{"paths.export_dir", &c.Paths.ExportDir},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.MaxBacklog < c.Workflow.WorkerCount {
		c.Workflow.MaxBacklog = c.Workflow.WorkerCount
	}
}

func (c *Config) normalizeImport() {
	if len(c.Import.Extensions) == 0 {
		c.Import.Extensions = append([]string(nil), defaultImportExtensions...)
		return
	}
	exts := make([]string, 0, len(c.Import.Extensions))
	seen := make(map[string]struct{}, len(c.Import.Extensions))
	for _, ext := range c.Import.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	c.Import.Extensions = exts
}

func (c *Config) normalizeArchive() {
	c.Archive.DefaultTarget = strings.ToLower(strings.TrimSpace(c.Archive.DefaultTarget))
	if c.Archive.DefaultTarget == "" {
		c.Archive.DefaultTarget = defaultArchiveTarget
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// HasImportExtension reports whether name carries one of the configured import extensions.
func (c *Config) HasImportExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range c.Import.Extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
