package rollback

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Config captures the repository settings for a single rollback run. It is
// built once at startup and never modified by the state machine.
type Config struct {
	// RemoteURL is the clone source. When empty, the authenticated URL built
	// from HostURL, UserName, Token, RepoOwner and RepoName is used.
	RemoteURL string

	Token     string
	UserName  string
	UserEmail string

	HostURL   string
	RepoOwner string
	RepoName  string

	Branch       string
	TargetCommit string

	// ClonePath is the absolute directory the run owns exclusively. It is
	// removed and recreated by Clone.
	ClonePath string
}

// Validate reports the first missing or malformed field.
func (c Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"token", c.Token},
		{"user name", c.UserName},
		{"user email", c.UserEmail},
		{"host url", c.HostURL},
		{"repository owner", c.RepoOwner},
		{"repository name", c.RepoName},
		{"branch", c.Branch},
		{"target commit", c.TargetCommit},
		{"clone path", c.ClonePath},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%s is required", field.name)
		}
	}

	if !filepath.IsAbs(c.ClonePath) {
		return fmt.Errorf("clone path %q must be absolute", c.ClonePath)
	}
	cleaned := filepath.Clean(c.ClonePath)
	if cleaned == filepath.Dir(cleaned) {
		return fmt.Errorf("clone path %q must not be a filesystem root", c.ClonePath)
	}

	return nil
}
