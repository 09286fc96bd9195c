// ABOUTME: XML-backed prompt template store keyed by name
// ABOUTME: Bootstraps a default file when missing; reloads atomically

package prompts

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// DefaultPath is where the template file lives when none is configured.
const DefaultPath = "prompts.xml"

// ErrTemplateNotFound is returned by Get for an unknown template name.
var ErrTemplateNotFound = errors.New("template not found")

// Well-known template names.
const (
	Clarification = "clarification"
	System        = "system"
	Thinking      = "thinking"
)

type promptFile struct {
	XMLName xml.Name      `xml:"prompts"`
	Prompts []promptEntry `xml:"prompt"`
}

type promptEntry struct {
	Name string `xml:"name,attr"`
	Text string `xml:",chardata"`
}

var defaults = []promptEntry{
	{Name: Clarification, Text: `
Before responding, please consider if you need any clarification about the request.
If the request is ambiguous or lacks important details, ask for clarification first.
Be specific about what information would help you provide a better response.
`},
	{Name: System, Text: `
You are a helpful AI assistant participating in a collaborative conversation.
Provide clear, accurate, and helpful responses.
`},
	{Name: Thinking, Text: `
Think step by step about the problem before providing a solution.
Consider edge cases and potential issues.
`},
}

// Store holds the parsed templates. Readers never see a half-loaded set.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	prompts map[string]string
}

// Open loads templates from path, writing the default file first if it does
// not exist.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		logger: logger.With("component", "prompts"),
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeDefaults(path); err != nil {
			return nil, err
		}
		s.logger.Info("created default prompt file", "path", path)
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the template text for name.
func (s *Store) Get(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.prompts[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return text, nil
}

// Names returns the loaded template names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.prompts))
	for name := range s.prompts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Reload re-reads the file. On error the previous templates stay in place.
func (s *Store) Reload() error {
	loaded, err := parseFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.prompts = loaded
	s.mu.Unlock()
	s.logger.Debug("prompts loaded", "path", s.path, "count", len(loaded))
	return nil
}

func parseFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt file: %w", err)
	}
	var f promptFile
	if err := xml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing prompt file %s: %w", path, err)
	}
	out := make(map[string]string, len(f.Prompts))
	for _, p := range f.Prompts {
		if p.Name == "" {
			continue
		}
		out[p.Name] = strings.TrimSpace(p.Text)
	}
	return out, nil
}

func writeDefaults(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating prompt directory: %w", err)
		}
	}
	data, err := xml.MarshalIndent(promptFile{Prompts: defaults}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding default prompts: %w", err)
	}
	data = append([]byte(xml.Header), data...)
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing default prompt file: %w", err)
	}
	return nil
}
