// Package config holds the fixed ingestion ceilings, shared defaults, and
// loaders for the application and repository configuration files.
package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultMaxFileSizeBytes is the per-file inclusion ceiling unless a
	// locator overrides it.
	DefaultMaxFileSizeBytes int64 = 10 * 1024 * 1024

	// MaxDirectoryDepth bounds traversal recursion.
	MaxDirectoryDepth = 20

	// MaxFileCount bounds how many files one ingestion may include.
	MaxFileCount = 10_000

	// MaxTotalSizeBytes bounds the combined size of all included files.
	MaxTotalSizeBytes int64 = 500 * 1024 * 1024

	// DefaultOutputFileName is where the CLI writes the digest unless told otherwise.
	DefaultOutputFileName = "digest.txt"

	// RepositoryConfigFileName is the per-repository configuration file read
	// at the ingestion root before traversal starts.
	RepositoryConfigFileName = ".ingest.toml"

	// TemporaryDirectoryName is the directory under the system temp root that
	// holds cloned repositories and stored digests.
	TemporaryDirectoryName = "ingest"

	// DigestDisplayLimit caps the content length returned inline by the HTTP
	// API; the full digest stays available for download.
	DigestDisplayLimit = 300_000

	// DigestRetention is how long served digests and their clone roots are
	// kept before eviction.
	DigestRetention = time.Hour

	// EvictionInterval is how often the server sweeps expired artifacts.
	EvictionInterval = time.Minute

	// DefaultServerHost is the interface the HTTP service binds by default.
	DefaultServerHost = "127.0.0.1"

	// DefaultServerPort is the TCP port the HTTP service binds by default.
	DefaultServerPort = 8000
)

// KnownGitHosts lists the hosts the locator resolver accepts, in probe
// priority order.
var KnownGitHosts = []string{
	"github.com",
	"gitlab.com",
	"bitbucket.org",
	"gitea.com",
	"codeberg.org",
	"gist.github.com",
}

// TempBasePath returns the root directory for clones and stored digests.
func TempBasePath() string {
	return filepath.Join(os.TempDir(), TemporaryDirectoryName)
}

// DefaultIgnorePatterns returns a fresh copy of the built-in exclusion set
// applied to every ingestion before user patterns are merged in.
func DefaultIgnorePatterns() []string {
	return append([]string(nil), defaultIgnorePatterns...)
}

var defaultIgnorePatterns = []string{
	// Python
	"*.pyc",
	"*.pyo",
	"*.pyd",
	"__pycache__",
	".pytest_cache",
	".coverage",
	".tox",
	".nox",
	".mypy_cache",
	".ruff_cache",
	".hypothesis",
	"poetry.lock",
	"Pipfile.lock",
	// JavaScript
	"node_modules",
	"bower_components",
	"package-lock.json",
	"yarn.lock",
	".npm",
	".yarn",
	".pnpm-store",
	"bun.lock",
	"bun.lockb",
	// Java
	"*.class",
	"*.jar",
	"*.war",
	"*.ear",
	"*.nar",
	".gradle/",
	"build/",
	".settings/",
	".classpath",
	"gradle-app.setting",
	"*.gradle",
	".project",
	// C and C++
	"*.o",
	"*.obj",
	"*.dll",
	"*.dylib",
	"*.exe",
	"*.lib",
	"*.out",
	"*.a",
	"*.pdb",
	// Xcode
	".build/",
	"*.xcodeproj/",
	"*.xcworkspace/",
	"*.pbxuser",
	"*.mode1v3",
	"*.mode2v3",
	"*.perspectivev3",
	"*.xcuserstate",
	"xcuserdata/",
	".swiftpm/",
	// Ruby
	"*.gem",
	".bundle/",
	"vendor/bundle",
	"Gemfile.lock",
	".ruby-version",
	".ruby-gemset",
	".rvmrc",
	// Rust
	"Cargo.lock",
	"**/*.rs.bk",
	"target/",
	// Go
	"pkg/",
	// .NET
	"obj/",
	"*.suo",
	"*.user",
	"*.userosscache",
	"*.sln.docstates",
	"packages/",
	"*.nupkg",
	"bin/",
	// Version control
	".git",
	".svn",
	".hg",
	".gitignore",
	".gitattributes",
	".gitmodules",
	// Images and media
	"*.svg",
	"*.png",
	"*.jpg",
	"*.jpeg",
	"*.gif",
	"*.ico",
	"*.pdf",
	"*.mov",
	"*.mp4",
	"*.mp3",
	"*.wav",
	// Virtual environments
	"venv",
	".venv",
	"env",
	".env",
	"virtualenv",
	// IDE litter
	".idea",
	".vscode",
	".vs",
	"*.swo",
	"*.swn",
	".settings",
	"*.sublime-*",
	// Caches and temporary files
	"*.log",
	"*.bak",
	"*.swp",
	"*.tmp",
	"*.temp",
	".cache",
	".sass-cache",
	".eslintcache",
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	// Build output
	"build",
	"dist",
	"target",
	"out",
	"*.egg-info",
	"*.egg",
	"*.whl",
	"*.so",
	"site-packages",
	".docusaurus",
	".next",
	".nuxt",
	// Minified bundles and source maps
	"*.min.js",
	"*.min.css",
	"*.map",
	// Terraform state
	".terraform",
	"*.tfstate*",
	// Vendored dependencies
	"vendor/",
}
