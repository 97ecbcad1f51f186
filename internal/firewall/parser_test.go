package firewall

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleListing = "\r\n" +
	"Rule Name:                            Allow HTTP\r\n" +
	"----------------------------------------------------------------------\r\n" +
	"Enabled:                              Yes\r\n" +
	"Direction:                            In\r\n" +
	"Profiles:                             Domain,Private,Public\r\n" +
	"Grouping:                             \r\n" +
	"LocalIP:                              Any\r\n" +
	"RemoteIP:                             Any\r\n" +
	"Protocol:                             TCP\r\n" +
	"LocalPort:                            80\r\n" +
	"RemotePort:                           Any\r\n" +
	"Edge traversal:                       No\r\n" +
	"Program:                              C:\\svc\\http.exe\r\n" +
	"Action:                               Allow\r\n" +
	"\r\n" +
	"Rule Name:                            Core Networking - DNS (UDP-Out)\r\n" +
	"----------------------------------------------------------------------\r\n" +
	"Enabled:                              Yes\r\n" +
	"Direction:                            Out\r\n" +
	"Protocol:                             UDP\r\n" +
	"Action:                               Allow\r\n" +
	"Ok.\r\n"

func TestParse_Empty(t *testing.T) {
	rules := Parse("")
	assert.NotNil(t, rules)
	assert.Empty(t, rules)
}

func TestParse_BannerOnly(t *testing.T) {
	assert.Empty(t, Parse("\nNo rules match the specified criteria.\n"))
}

func TestParse_WellFormedSection(t *testing.T) {
	rules := Parse("Rule Name: Allow HTTP\nDirection: In\nAction: Allow\nProgram: C:\\svc\\http.exe\n")

	require.Len(t, rules, 1)
	assert.Equal(t, Rule{
		Name:            "Allow HTTP",
		Direction:       "In",
		Action:          "Allow",
		ApplicationPath: "C:\\svc\\http.exe",
	}, rules[0])
}

func TestParse_NetshListing(t *testing.T) {
	rules := Parse(sampleListing)
	require.Len(t, rules, 2)

	http := rules[0]
	assert.Equal(t, "Allow HTTP", http.Name)
	assert.Equal(t, "In", http.Direction)
	assert.Equal(t, "Allow", http.Action)
	assert.Equal(t, "C:\\svc\\http.exe", http.ApplicationPath)
	assert.Equal(t, "Yes", http.Enabled)
	assert.Equal(t, "Domain,Private,Public", http.Profiles)
	assert.Equal(t, "TCP", http.Protocol)
	assert.Equal(t, "80", http.LocalPort)
	assert.Equal(t, "Any", http.RemotePort)

	dns := rules[1]
	assert.Equal(t, "Core Networking - DNS (UDP-Out)", dns.Name)
	assert.Equal(t, "Out", dns.Direction)
	assert.False(t, dns.HasProgram(), "section without Program: has no application path")
}

func TestParse_PreservesSourceOrder(t *testing.T) {
	var b strings.Builder
	b.WriteString("banner line\n\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "Rule Name: rule-%02d\nDirection: In\nAction: Block\n\n", i)
	}

	rules := Parse(b.String())
	require.Len(t, rules, 25)
	for i, rule := range rules {
		assert.Equal(t, fmt.Sprintf("rule-%02d", i), rule.Name)
		assert.Equal(t, "Block", rule.Action)
	}
}

func TestParse_LineEndings(t *testing.T) {
	for name, sep := range map[string]string{"lf": "\n", "crlf": "\r\n", "cr": "\r"} {
		t.Run(name, func(t *testing.T) {
			text := strings.Join([]string{"Rule Name: a", "Action: Allow", "Rule Name: b", "Action: Block"}, sep)
			rules := Parse(text)
			require.Len(t, rules, 2)
			assert.Equal(t, "a", rules[0].Name)
			assert.Equal(t, "Allow", rules[0].Action)
			assert.Equal(t, "b", rules[1].Name)
			assert.Equal(t, "Block", rules[1].Action)
		})
	}
}

func TestParse_IndentedBoundary(t *testing.T) {
	rules := Parse("   Rule Name: spaced\n\tDirection: Out\n")
	require.Len(t, rules, 1)
	assert.Equal(t, "spaced", rules[0].Name)
	assert.Equal(t, "Out", rules[0].Direction)
}

func TestParse_IgnoresUnknownAndMalformedLines(t *testing.T) {
	text := "Rule Name: odd\n" +
		"this line has no colon\n" +
		"Some Future Field: whatever\n" +
		"Direction:\n" +
		"Program: \\\\?\\C:\\a:b.exe\n"

	rules := Parse(text)
	require.Len(t, rules, 1)
	assert.Equal(t, "odd", rules[0].Name)
	assert.Empty(t, rules[0].Direction)
	assert.Empty(t, rules[0].Action)
	assert.Equal(t, "\\\\?\\C:\\a:b.exe", rules[0].ApplicationPath, "value is everything after the first colon")
}

func TestParse_EmptyRuleName(t *testing.T) {
	rules := Parse("Rule Name:\nAction: Allow\n")
	require.Len(t, rules, 1)
	assert.Empty(t, rules[0].Name)
	assert.Equal(t, "Allow", rules[0].Action)
}
