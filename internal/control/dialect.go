package control

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"
)

// Version is a GDB release number.
type Version struct {
	Major int
	Minor int
}

// Less reports whether v precedes o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

func (v Version) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// The release number is the last whitespace-separated number on the
// banner line; a distribution tag in parentheses may contain others.
var versionPattern = regexp.MustCompile(`GNU gdb\b[^\n]*\s(\d+)\.(\d+)`)

// ParseVersion extracts the release number from the banner printed by
// "-gdb-version", for example "GNU gdb (Ubuntu 12.1-0ubuntu1) 12.1".
func ParseVersion(banner string) (Version, error) {
	m := versionPattern.FindStringSubmatch(banner)
	if m == nil {
		return Version{}, fmt.Errorf("no GDB version in %q", banner)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return Version{Major: major, Minor: minor}, nil
}

// Dialect holds the protocol differences between GDB releases. It is
// chosen once, when the connection starts.
type Dialect struct {
	// Name identifies the dialect in configuration and logs.
	Name string

	// MinVersion is the oldest GDB release the dialect applies to.
	MinVersion Version

	// Interpreter is the argument of gdb's --interpreter flag.
	Interpreter string

	// ThreadFrameOptions selects how commands are targeted at a thread or
	// frame: with --thread and --frame options, or by switching GDB's
	// current selection first.
	ThreadFrameOptions bool

	// ListFeatures reports whether "-list-features" is available.
	ListFeatures bool
}

// DialectFactory creates a dialect.
type DialectFactory func() *Dialect

// DialectRegistry maps dialect names to factories. Built-in dialects are
// registered by NewDialectRegistry.
type DialectRegistry struct {
	mu        sync.RWMutex
	factories map[string]DialectFactory
}

// Built-in dialect names.
const (
	DialectMI2Legacy = "mi2-legacy"
	DialectMI2       = "mi2"
	DialectMI3       = "mi3"
)

// NewDialectRegistry creates a registry with the built-in dialects.
func NewDialectRegistry() *DialectRegistry {
	r := &DialectRegistry{
		factories: make(map[string]DialectFactory),
	}

	r.Register(DialectMI2Legacy, func() *Dialect {
		return &Dialect{
			Name:        DialectMI2Legacy,
			MinVersion:  Version{Major: 6, Minor: 8},
			Interpreter: "mi2",
		}
	})
	r.Register(DialectMI2, func() *Dialect {
		return &Dialect{
			Name:               DialectMI2,
			MinVersion:         Version{Major: 7, Minor: 0},
			Interpreter:        "mi2",
			ThreadFrameOptions: true,
			ListFeatures:       true,
		}
	})
	r.Register(DialectMI3, func() *Dialect {
		return &Dialect{
			Name:               DialectMI3,
			MinVersion:         Version{Major: 9, Minor: 1},
			Interpreter:        "mi3",
			ThreadFrameOptions: true,
			ListFeatures:       true,
		}
	})

	return r
}

// Register adds or replaces a dialect factory.
func (r *DialectRegistry) Register(name string, factory DialectFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the named dialect.
func (r *DialectRegistry) Create(name string) (*Dialect, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDialect, name)
	}
	return factory(), nil
}

// Available returns the registered dialect names, sorted.
func (r *DialectRegistry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForVersion returns the dialect with the highest MinVersion not above v.
// Versions older than every dialect get the oldest one.
func (r *DialectRegistry) ForVersion(v Version) *Dialect {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best, oldest *Dialect
	for _, factory := range r.factories {
		d := factory()
		if oldest == nil || d.MinVersion.Less(oldest.MinVersion) {
			oldest = d
		}
		if v.Less(d.MinVersion) {
			continue
		}
		if best == nil || best.MinVersion.Less(d.MinVersion) {
			best = d
		}
	}
	if best == nil {
		return oldest
	}
	return best
}
