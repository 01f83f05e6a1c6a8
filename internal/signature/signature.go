// Package signature holds the pattern-based threat signature library.
// Signatures are data (name, category, weight, patterns) compiled into
// matchers at load time, so new signatures can be added and tested
// without touching the scoring logic.
package signature

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/crowsnest-systems/crowsnest/internal/models"
)

// Signature is one named threat pattern with its severity weight.
type Signature struct {
	Name     string          `yaml:"name"`
	Category string          `yaml:"category"`
	Severity models.Severity `yaml:"severity"`
	Patterns []string        `yaml:"patterns"`

	compiled []*regexp.Regexp
}

// Points returns the additive score contribution for a match.
func (s *Signature) Points() int {
	switch s.Severity {
	case models.SeverityCritical:
		return 30
	case models.SeverityHigh:
		return 20
	case models.SeverityMedium:
		return 10
	default:
		return 5
	}
}

// Match represents one signature that matched an event payload.
type Match struct {
	Signature *Signature
	Field     string
}

// Library is the loaded signature set. Lookups take a read lock so the
// scoring path never blocks a concurrent reload for long.
type Library struct {
	mu         sync.RWMutex
	signatures []*Signature
	tools      *regexp.Regexp
}

// toolFingerprints matches known scanner and exploit tool identity
// markers in user-agent style payload fields.
var toolFingerprints = regexp.MustCompile(`(?i)\b(sqlmap|nikto|nmap|masscan|metasploit|hydra|gobuster|dirbuster|wpscan|burp|zgrab|acunetix)\b`)

// Defaults returns the built-in signature set.
func Defaults() []*Signature {
	return []*Signature{
		{
			Name:     "sql_injection",
			Category: "injection",
			Severity: models.SeverityCritical,
			Patterns: []string{
				`(?i)(union\s+select|select\s+.*\s+from\s+|insert\s+into|drop\s+table|delete\s+from)`,
				`(?i)('\s*(or|and)\s+'?\d+'?\s*=\s*'?\d+|--\s|;\s*--)`,
				`(?i)\b(sleep|benchmark|waitfor\s+delay)\s*\(`,
			},
		},
		{
			Name:     "command_injection",
			Category: "injection",
			Severity: models.SeverityCritical,
			Patterns: []string{
				`(?i)(;|\|\||&&)\s*(cat|ls|id|whoami|curl|wget|nc|bash|sh)\b`,
				"`[^`]+`|\\$\\([^)]+\\)",
			},
		},
		{
			Name:     "cross_site_scripting",
			Category: "injection",
			Severity: models.SeverityHigh,
			Patterns: []string{
				`(?i)<script[^>]*>`,
				`(?i)\bon(error|load|click|mouseover)\s*=`,
				`(?i)javascript\s*:`,
			},
		},
		{
			Name:     "path_traversal",
			Category: "access",
			Severity: models.SeverityHigh,
			Patterns: []string{
				`(\.\./|\.\.\\){2,}`,
				`(?i)(/etc/passwd|/etc/shadow|boot\.ini|win\.ini)`,
			},
		},
		{
			Name:     "template_injection",
			Category: "injection",
			Severity: models.SeverityMedium,
			Patterns: []string{
				`\{\{\s*[\w.]+\s*\}\}`,
				`\$\{[\w.]+\}`,
			},
		},
		{
			Name:     "suspicious_encoding",
			Category: "evasion",
			Severity: models.SeverityLow,
			Patterns: []string{
				`(?i)(%2e%2e%2f|%252e|%00|\\x[0-9a-f]{2}){2,}`,
			},
		},
	}
}

// NewLibrary compiles the given signatures into a library. Invalid
// patterns are rejected as a whole so a bad reload never replaces a
// working set.
func NewLibrary(signatures []*Signature) (*Library, error) {
	if err := compile(signatures); err != nil {
		return nil, err
	}
	return &Library{signatures: signatures, tools: toolFingerprints}, nil
}

// NewDefaultLibrary returns a library with the built-in signature set.
func NewDefaultLibrary() *Library {
	lib, err := NewLibrary(Defaults())
	if err != nil {
		// Built-in patterns are covered by tests; a compile failure
		// here is a programming error.
		panic(err)
	}
	return lib
}

func compile(signatures []*Signature) error {
	for _, sig := range signatures {
		if sig.Name == "" {
			return fmt.Errorf("signature with empty name")
		}
		if len(sig.Patterns) == 0 {
			return fmt.Errorf("signature %q has no patterns", sig.Name)
		}
		sig.compiled = make([]*regexp.Regexp, 0, len(sig.Patterns))
		for _, p := range sig.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return fmt.Errorf("signature %q: invalid pattern %q: %w", sig.Name, p, err)
			}
			sig.compiled = append(sig.compiled, re)
		}
	}
	return nil
}

// LoadFile reads signatures from a YAML file and replaces the current
// set. Used both at startup and for hot reload.
func (l *Library) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read signature file: %w", err)
	}

	var doc struct {
		Signatures []*Signature `yaml:"signatures"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse signature file: %w", err)
	}
	if len(doc.Signatures) == 0 {
		return fmt.Errorf("signature file %s contains no signatures", path)
	}
	if err := compile(doc.Signatures); err != nil {
		return err
	}

	l.mu.Lock()
	l.signatures = doc.Signatures
	l.mu.Unlock()
	return nil
}

// Match returns every signature that matches any payload field. A
// signature matches at most once per event regardless of how many
// fields or patterns hit.
func (l *Library) Match(payload map[string]string) []Match {
	l.mu.RLock()
	signatures := l.signatures
	l.mu.RUnlock()

	var matches []Match
	for _, sig := range signatures {
		if field, ok := matchFields(sig, payload); ok {
			matches = append(matches, Match{Signature: sig, Field: field})
		}
	}
	return matches
}

func matchFields(sig *Signature, payload map[string]string) (string, bool) {
	for field, value := range payload {
		for _, re := range sig.compiled {
			if re.MatchString(value) {
				return field, true
			}
		}
	}
	return "", false
}

// MatchTool reports whether any payload field carries a known
// automated-tool fingerprint, returning the matched marker.
func (l *Library) MatchTool(payload map[string]string) (string, bool) {
	for _, value := range payload {
		if m := l.tools.FindString(value); m != "" {
			return strings.ToLower(m), true
		}
	}
	return "", false
}

// Names returns the names of the loaded signatures, for status output.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.signatures))
	for _, sig := range l.signatures {
		names = append(names, sig.Name)
	}
	return names
}
