package robots

import "strings"

// Directives holds page-level robots directives from a meta robots tag
// or an X-Robots-Tag header.
type Directives struct {
	NoIndex   bool
	NoFollow  bool
	NoArchive bool
	NoSnippet bool
	Raw       string
}

// ParseDirectives parses a comma-separated robots directive string.
func ParseDirectives(content string) *Directives {
	d := &Directives{Raw: content}

	for _, token := range strings.Split(strings.ToLower(content), ",") {
		switch strings.TrimSpace(token) {
		case "noindex":
			d.NoIndex = true
		case "nofollow":
			d.NoFollow = true
		case "noarchive":
			d.NoArchive = true
		case "nosnippet":
			d.NoSnippet = true
		case "none":
			d.NoIndex = true
			d.NoFollow = true
		}
	}
	return d
}

// ParseHeaderDirectives merges one or more X-Robots-Tag header values.
// Agent-scoped values ("googlebot: noindex") apply only when the token
// appears in the given agent.
func ParseHeaderDirectives(values []string, agent string) *Directives {
	merged := &Directives{Raw: strings.Join(values, ", ")}
	agent = strings.ToLower(agent)

	for _, value := range values {
		value = strings.TrimSpace(value)

		if idx := strings.Index(value, ":"); idx != -1 {
			scope := strings.ToLower(strings.TrimSpace(value[:idx]))
			if scope != "" && !strings.Contains(scope, " ") && !strings.HasPrefix(scope, "max-") {
				if !strings.Contains(agent, scope) {
					continue
				}
				value = strings.TrimSpace(value[idx+1:])
			}
		}

		d := ParseDirectives(value)
		merged.NoIndex = merged.NoIndex || d.NoIndex
		merged.NoFollow = merged.NoFollow || d.NoFollow
		merged.NoArchive = merged.NoArchive || d.NoArchive
		merged.NoSnippet = merged.NoSnippet || d.NoSnippet
	}
	return merged
}

// Followable reports whether links on the page may be followed.
func (d *Directives) Followable() bool {
	return d == nil || !d.NoFollow
}

// Indexable reports whether the page may be indexed.
func (d *Directives) Indexable() bool {
	return d == nil || !d.NoIndex
}
