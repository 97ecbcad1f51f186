package firewall

import "strings"

const ruleNameLabel = "Rule Name:"

// fieldSetters maps a recognised line label to the Rule field it fills
var fieldSetters = map[string]func(*Rule, string){
	ruleNameLabel: func(r *Rule, v string) { r.Name = v },
	"Direction:":  func(r *Rule, v string) { r.Direction = v },
	"Action:":     func(r *Rule, v string) { r.Action = v },
	"Program:":    func(r *Rule, v string) { r.ApplicationPath = v },
	"Enabled:":    func(r *Rule, v string) { r.Enabled = v },
	"Profiles:":   func(r *Rule, v string) { r.Profiles = v },
	"Protocol:":   func(r *Rule, v string) { r.Protocol = v },
	"LocalPort:":  func(r *Rule, v string) { r.LocalPort = v },
	"RemotePort:": func(r *Rule, v string) { r.RemotePort = v },
}

var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Parse converts the text of a full rule listing into rules, in source order.
// Every line starting with "Rule Name:" opens a new rule; anything before the
// first one is banner text. Unknown or malformed lines are skipped.
func Parse(output string) []Rule {
	rules := []Rule{}

	var current *Rule
	for _, raw := range strings.Split(newlines.Replace(output), "\n") {
		line := strings.TrimSpace(raw)

		if strings.HasPrefix(line, ruleNameLabel) {
			if current != nil {
				rules = append(rules, *current)
			}
			current = &Rule{}
		}
		if current == nil {
			continue
		}

		label, value, ok := splitField(line)
		if !ok {
			continue
		}
		if set, known := fieldSetters[label]; known {
			set(current, value)
		}
	}

	if current != nil {
		rules = append(rules, *current)
	}

	return rules
}

// splitField splits "Label: value" at the first colon, keeping the colon on the label
func splitField(line string) (label, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	return line[:idx+1], strings.TrimSpace(line[idx+1:]), true
}
