package plugin

import (
	"path"
	"strings"
	"sync"

	"github.com/voidking/incubator-seatunnel/model"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
)

// Spec describes one resolvable connector plugin.
type Spec struct {
	Name   string
	JarURL string
}

// Loader resolves connector plugins for exactly one job, from the plugin
// locations the job descriptor declared. Loaders of different jobs never
// share mutable state, so plugins of one job cannot leak into another.
type Loader struct {
	jobID model.JobID

	mu      sync.RWMutex
	plugins map[string]Spec
}

// NewLoader builds a loader for jobID from the descriptor's plugin jar URLs.
// The plugin name is the jar's base name without extension, e.g.
// ".../connector-jdbc.jar" registers "connector-jdbc".
func NewLoader(jobID model.JobID, jarURLs []string) *Loader {
	l := &Loader{
		jobID:   jobID,
		plugins: make(map[string]Spec, len(jarURLs)),
	}
	for _, jarURL := range jarURLs {
		name := strings.TrimSuffix(path.Base(jarURL), path.Ext(jarURL))
		if name == "" || name == "." {
			continue
		}
		l.plugins[name] = Spec{Name: name, JarURL: jarURL}
	}
	return l
}

// Register adds a plugin spec directly, overriding any jar-derived entry of
// the same name.
func (l *Loader) Register(spec Spec) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.plugins[spec.Name] = spec
}

// Resolve returns the spec registered under name.
func (l *Loader) Resolve(name string) (Spec, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	spec, ok := l.plugins[name]
	if !ok {
		return Spec{}, derror.ErrPluginNotFound.GenWithStackByArgs(name, l.jobID)
	}
	return spec, nil
}

// JobID returns the job this loader is scoped to.
func (l *Loader) JobID() model.JobID {
	return l.jobID
}
