package rotation

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

// Class describes how a rotated secret must be applied.
type Class string

const (
	// ClassRestart means an owned subordinate service holds a connection
	// authenticated with the secret and must be relaunched with new
	// connection parameters.
	ClassRestart Class = "restart"

	// ClassReconfigure means the secret is consumed from the cache by other
	// components; refreshing the cache is sufficient.
	ClassReconfigure Class = "reconfigure"
)

type pathPolicy struct {
	Class Class `yaml:"class"`
}

type policyFile struct {
	Paths        map[string]pathPolicy `yaml:"paths"`
	DefaultClass Class                 `yaml:"default_class"`
}

// Policy classifies secret paths. The built-in policy is embedded; a
// deployment may override it with its own file.
type Policy struct {
	paths        map[string]Class
	defaultClass Class
}

// LoadPolicy parses the embedded policy.
func LoadPolicy() (*Policy, error) {
	return parsePolicy(policyYAML)
}

// LoadPolicyFile parses a policy override from disk.
func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rotation policy: %w", err)
	}
	return parsePolicy(data)
}

func parsePolicy(data []byte) (*Policy, error) {
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse rotation policy: %w", err)
	}

	p := &Policy{
		paths:        make(map[string]Class, len(pf.Paths)),
		defaultClass: pf.DefaultClass,
	}
	if p.defaultClass == "" {
		p.defaultClass = ClassReconfigure
	}

	for path, pol := range pf.Paths {
		switch pol.Class {
		case ClassRestart, ClassReconfigure:
			p.paths[path] = pol.Class
		default:
			return nil, fmt.Errorf("unknown rotation class %q for path %s", pol.Class, path)
		}
	}

	return p, nil
}

// Classify returns the class for a secret path. Exact match wins; otherwise
// the longest configured prefix (path-segment aligned) applies, falling back
// to the default class.
func (p *Policy) Classify(path string) Class {
	if class, ok := p.paths[path]; ok {
		return class
	}

	best := ""
	for candidate := range p.paths {
		if strings.HasPrefix(path, candidate+"/") && len(candidate) > len(best) {
			best = candidate
		}
	}
	if best != "" {
		return p.paths[best]
	}
	return p.defaultClass
}
