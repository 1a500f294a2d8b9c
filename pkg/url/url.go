// Package url implements TremorURL, the artefact/instance addressing
// scheme of spec.md §6, ported from original_source's
// src/repository/artefact.rs TremorURL handling (trim_to_artefact,
// trim_to_instance, instance_port_required, set_instance, and the
// percent-encoded `{placeholder}` convention).
package url

import (
	"fmt"
	"net/url"
	"strings"
)

// ResourceType is the kind of artefact a URL addresses.
type ResourceType int

const (
	Pipeline ResourceType = iota
	OnRamp
	OffRamp
	Binding
)

func (r ResourceType) String() string {
	switch r {
	case Pipeline:
		return "pipeline"
	case OnRamp:
		return "onramp"
	case OffRamp:
		return "offramp"
	case Binding:
		return "binding"
	default:
		return "unknown"
	}
}

func parseResourceType(s string) (ResourceType, error) {
	switch s {
	case "pipeline":
		return Pipeline, nil
	case "onramp":
		return OnRamp, nil
	case "offramp":
		return OffRamp, nil
	case "binding":
		return Binding, nil
	default:
		return 0, fmt.Errorf("url: unknown resource type %q", s)
	}
}

// TremorURL addresses an artefact, optionally scoped down to a specific
// instance and port: tremor://<host>/<resource-type>/<artefact-id>/<instance-id>/<port>
type TremorURL struct {
	Host     string
	Type     ResourceType
	Artefact string
	Instance string // "" if unscoped
	Port     string // "" if unscoped
}

// Parse decodes a tremor:// URL string. Placeholder characters `{`/`}`
// arrive percent-encoded (%7B/%7D) and are decoded back into literal
// braces so downstream placeholder substitution can find them.
func Parse(raw string) (TremorURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return TremorURL{}, fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "tremor" {
		return TremorURL{}, fmt.Errorf("url: expected scheme tremor://, got %q", u.Scheme)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return TremorURL{}, fmt.Errorf("url: path must have at least resource-type/artefact-id, got %q", u.Path)
	}
	rt, err := parseResourceType(parts[0])
	if err != nil {
		return TremorURL{}, err
	}
	t := TremorURL{Host: u.Host, Type: rt, Artefact: decodePlaceholder(parts[1])}
	if len(parts) > 2 {
		t.Instance = decodePlaceholder(parts[2])
	}
	if len(parts) > 3 {
		t.Port = decodePlaceholder(parts[3])
	}
	return t, nil
}

func decodePlaceholder(s string) string {
	s = strings.ReplaceAll(s, "%7B", "{")
	s = strings.ReplaceAll(s, "%7b", "{")
	s = strings.ReplaceAll(s, "%7D", "}")
	s = strings.ReplaceAll(s, "%7d", "}")
	return s
}

func encodePlaceholder(s string) string {
	s = strings.ReplaceAll(s, "{", "%7B")
	s = strings.ReplaceAll(s, "}", "%7D")
	return s
}

// String renders the URL back to tremor:// form, re-encoding braces.
func (t TremorURL) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tremor://%s/%s/%s", t.Host, t.Type, encodePlaceholder(t.Artefact))
	if t.Instance != "" {
		fmt.Fprintf(&b, "/%s", encodePlaceholder(t.Instance))
	}
	if t.Port != "" {
		fmt.Fprintf(&b, "/%s", encodePlaceholder(t.Port))
	}
	return b.String()
}

// TrimToArtefact drops the instance and port segments.
func (t TremorURL) TrimToArtefact() TremorURL {
	t.Instance = ""
	t.Port = ""
	return t
}

// TrimToInstance drops the port segment.
func (t TremorURL) TrimToInstance() TremorURL {
	t.Port = ""
	return t
}

// InstancePortRequired fails if either instance or port is unset.
func (t TremorURL) InstancePortRequired() error {
	if t.Instance == "" || t.Port == "" {
		return fmt.Errorf("url: instance and port required on %s", t)
	}
	return nil
}

// SetInstance returns a copy with the instance segment replaced.
func (t TremorURL) SetInstance(instance string) TremorURL {
	t.Instance = instance
	return t
}

// SetPort returns a copy with the port segment replaced.
func (t TremorURL) SetPort(port string) TremorURL {
	t.Port = port
	return t
}

// Substitute replaces every `{name}` placeholder occurrence in Artefact,
// Instance, and Port with mapping[name], used by the binding resolver to
// turn a templated link into a concrete one.
func (t TremorURL) Substitute(mapping map[string]string) TremorURL {
	t.Artefact = substitute(t.Artefact, mapping)
	t.Instance = substitute(t.Instance, mapping)
	t.Port = substitute(t.Port, mapping)
	return t
}

func substitute(s string, mapping map[string]string) string {
	for name, val := range mapping {
		s = strings.ReplaceAll(s, "{"+name+"}", val)
	}
	return s
}
