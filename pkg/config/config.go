package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"lcdprint-go/pkg/errors"
)

// Config provides access to a configuration file with access tracking.
type Config struct {
	mu       sync.RWMutex
	sections map[string]*Section
	order    []string

	accessedSections map[string]struct{}

	// dir is the directory of the top-level file; relative paths in
	// options (material profiles) resolve against it.
	dir string
}

// New creates a new empty Config.
func New() *Config {
	return &Config{
		sections:         make(map[string]*Section),
		accessedSections: make(map[string]struct{}),
	}
}

// Load reads a configuration file and returns a Config.
// Supports [include path] directives for including other config files.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: invalid path %s: %w", path, err)
	}
	c := New()
	c.dir = filepath.Dir(abs)
	if err := c.parseFile(abs, make(map[string]bool)); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses a configuration from a string. Includes resolve
// against the working directory.
func LoadString(data string) (*Config, error) {
	c := New()
	c.dir = "."
	if err := c.parse(strings.NewReader(data), "<string>", ".", nil); err != nil {
		return nil, err
	}
	return c, nil
}

// Dir returns the directory relative option paths resolve against.
func (c *Config) Dir() string {
	return c.dir
}

// Resolve returns path joined to the config directory unless absolute.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.dir, path)
}

func (c *Config) parseFile(abs string, visited map[string]bool) error {
	if visited[abs] {
		return fmt.Errorf("config: recursive include: %s", abs)
	}
	visited[abs] = true
	defer func() { visited[abs] = false }()

	f, err := os.Open(abs)
	if err != nil {
		return errors.WithConfigPath(
			errors.Wrap(err, errors.ErrConfigSection, "unable to open config"), abs)
	}
	defer f.Close()
	return c.parse(f, abs, filepath.Dir(abs), visited)
}

// parse reads sections from r. visited is nil when includes are not
// tracked across files.
func (c *Config) parse(r io.Reader, name, dir string, visited map[string]bool) error {
	if visited == nil {
		visited = make(map[string]bool)
	}

	var section string
	var options map[string]string
	flush := func() {
		if section != "" {
			c.addSection(section, options)
		}
		section, options = "", nil
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if idx := strings.IndexAny(line, "#;"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			header := strings.TrimSpace(line[1 : len(line)-1])
			if header == "" {
				return ErrSyntax(name, lineNum, "empty section header")
			}
			if pattern, ok := strings.CutPrefix(header, "include "); ok {
				if err := c.include(dir, strings.TrimSpace(pattern), name, lineNum, visited); err != nil {
					return err
				}
				continue
			}
			section = header
			options = make(map[string]string)
			continue
		}

		if section == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			key, value, ok = strings.Cut(line, "=")
		}
		if !ok {
			return ErrSyntax(name, lineNum, fmt.Sprintf("expected 'key: value', got %q", line))
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		options[key] = strings.TrimSpace(value)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("config: error reading %s: %w", name, err)
	}
	return nil
}

func (c *Config) include(dir, pattern, name string, lineNum int, visited map[string]bool) error {
	if pattern == "" {
		return ErrSyntax(name, lineNum, "empty include")
	}
	glob := filepath.Join(dir, pattern)
	matches, err := filepath.Glob(glob)
	if err != nil {
		return fmt.Errorf("config: invalid include pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)
	if len(matches) == 0 && !strings.ContainsAny(glob, "*?[") {
		return ErrSyntax(name, lineNum, "include file does not exist: "+glob)
	}
	for _, m := range matches {
		abs, err := filepath.Abs(m)
		if err != nil {
			return err
		}
		if err := c.parseFile(abs, visited); err != nil {
			return err
		}
	}
	return nil
}

// addSection adds a section, merging options into an existing one.
func (c *Config) addSection(name string, options map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.sections[name]; ok {
		for k, v := range options {
			existing.options[strings.ToLower(k)] = v
		}
		return
	}
	c.sections[name] = newSection(name, options)
	c.order = append(c.order, name)
}

// GetSection returns a Section by name, or error if not found.
func (c *Config) GetSection(name string) (*Section, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sec, ok := c.sections[name]
	if !ok {
		return nil, ErrMissingSection(name)
	}
	c.accessedSections[name] = struct{}{}
	return sec, nil
}

// GetSectionOptional returns a Section if it exists, or an empty section
// so option fallbacks still apply.
func (c *Config) GetSectionOptional(name string) *Section {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sec, ok := c.sections[name]; ok {
		c.accessedSections[name] = struct{}{}
		return sec
	}
	return newSection(name, nil)
}

// HasSection checks if a section exists.
func (c *Config) HasSection(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sections[name]
	return ok
}

// GetSectionNames returns all section names in order.
func (c *Config) GetSectionNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]string, len(c.order))
	copy(result, c.order)
	return result
}

// GetUnusedSections returns a list of sections that were not accessed.
func (c *Config) GetUnusedSections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []string
	for name := range c.sections {
		if _, ok := c.accessedSections[name]; !ok {
			result = append(result, name)
		}
	}
	sort.Strings(result)
	return result
}

// CheckUnusedOptions returns an error if any accessed section carries
// options nobody read, which usually means a typo.
func (c *Config) CheckUnusedOptions() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var problems []string
	for name, sec := range c.sections {
		if _, ok := c.accessedSections[name]; !ok {
			continue
		}
		if unused := sec.GetUnusedOptions(); len(unused) > 0 {
			sort.Strings(unused)
			problems = append(problems, fmt.Sprintf("[%s]: unused options %v", name, unused))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return errors.New(errors.ErrConfigOption, strings.Join(problems, "; "))
	}
	return nil
}
