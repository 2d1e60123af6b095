package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// PrefsVersion is the on-disk format version of Preferences.
const PrefsVersion = 1

// maxRecentExports bounds the recent export list.
const maxRecentExports = 10

// Preferences is the small amount of client state kept between runs of the
// interactive shell.
type Preferences struct {
	Version       int       `yaml:"version"`
	SavedAt       time.Time `yaml:"savedAt"`
	BackendURL    string    `yaml:"backendURL,omitempty"`
	LastReportID  string    `yaml:"lastReportID,omitempty"`
	RecentExports []string  `yaml:"recentExports,omitempty"`
}

// NewPreferences returns empty preferences.
func NewPreferences() *Preferences {
	return &Preferences{Version: PrefsVersion, RecentExports: []string{}}
}

// DefaultPrefsPath returns the OS-specific default preferences file.
func DefaultPrefsPath() string {
	return filepath.Join(userConfigDir(), "esginsight", "state.yaml")
}

// userConfigDir attempts to resolve a configuration directory in a portable way.
func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config")
	}
	return "."
}

// LoadPreferences reads path, returning empty preferences if it does not
// exist.
func LoadPreferences(path string) (*Preferences, error) {
	if path == "" {
		path = DefaultPrefsPath()
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewPreferences(), nil
		}
		return nil, fmt.Errorf("state: read failed: %w", err)
	}
	var p Preferences
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("state: parse failed: %w", err)
	}
	if p.Version <= 0 {
		p.Version = PrefsVersion
	}
	if p.RecentExports == nil {
		p.RecentExports = []string{}
	}
	return &p, nil
}

// SavePreferences persists p atomically.
func SavePreferences(p *Preferences, path string) error {
	if p == nil {
		return errors.New("state: nil Preferences")
	}
	if path == "" {
		path = DefaultPrefsPath()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("state: mkdir failed: %w", err)
	}
	p.SavedAt = time.Now().UTC()

	out, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("state: marshal failed: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state.tmp-*")
	if err != nil {
		return fmt.Errorf("state: temp create failed: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(out); err != nil {
		return fmt.Errorf("state: temp write failed: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("state: chmod failed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("state: sync failed: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("state: atomic rename failed: %w", err)
	}
	return nil
}

// RememberReport records the last selected report for backendURL. A
// different backend invalidates the remembered id.
func (p *Preferences) RememberReport(backendURL, reportID string) {
	p.BackendURL = backendURL
	p.LastReportID = reportID
}

// LastReport returns the remembered report id if it belongs to backendURL.
func (p *Preferences) LastReport(backendURL string) (string, bool) {
	if p.LastReportID == "" || p.BackendURL != backendURL {
		return "", false
	}
	return p.LastReportID, true
}

// AppendRecentExport adds a file path to the MRU list (de-duped, size-limited).
func (p *Preferences) AppendRecentExport(path string) {
	if path == "" {
		return
	}
	filtered := make([]string, 0, len(p.RecentExports)+1)
	for _, existing := range p.RecentExports {
		if existing != path {
			filtered = append(filtered, existing)
		}
	}
	p.RecentExports = append([]string{path}, filtered...)
	if len(p.RecentExports) > maxRecentExports {
		p.RecentExports = p.RecentExports[:maxRecentExports]
	}
}
