package firewall

// Rule is one firewall rule as reported by the firewall CLI.
// Values are kept verbatim; an empty ApplicationPath means the rule is not program-scoped.
type Rule struct {
	Name            string `json:"name"`
	Direction       string `json:"direction"`
	Action          string `json:"action"`
	ApplicationPath string `json:"application_path,omitempty"`

	// Display-only fields, never used for matching
	Enabled    string `json:"enabled,omitempty"`
	Profiles   string `json:"profiles,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
	LocalPort  string `json:"local_port,omitempty"`
	RemotePort string `json:"remote_port,omitempty"`
}

// HasProgram reports whether the rule is bound to an executable
func (r Rule) HasProgram() bool {
	return r.ApplicationPath != ""
}

// RuleList contains a list of rules
type RuleList struct {
	Rules []Rule `json:"rules"`
	Total int    `json:"total"`
}

// NewRuleList wraps rules for API responses
func NewRuleList(rules []Rule) *RuleList {
	if rules == nil {
		rules = []Rule{}
	}
	return &RuleList{Rules: rules, Total: len(rules)}
}
