package observability

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sabha-admin/sabha/internal/audit"
	jobmetrics "github.com/sabha-admin/sabha/internal/jobs"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertFile struct {
	Groups []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	} `yaml:"groups"`
}

var metricName = regexp.MustCompile(`sabha_[a-z_]+`)

func loadSecurityRules(t *testing.T) []alertRule {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "security.yml"))
	require.NoError(t, err)
	var file alertFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	for _, g := range file.Groups {
		if g.Name == "security" {
			return g.Rules
		}
	}
	t.Fatal("security alert group missing")
	return nil
}

func TestSecurityAlertRules(t *testing.T) {
	expected := map[string]string{
		"UnauthorizedAccessSpike": "warning",
		"GateStoreUnavailable":    "critical",
		"AuditEventsDropped":      "warning",
		"AuditExportFailing":      "warning",
	}
	runbook, err := os.ReadFile(filepath.Join("..", "..", "docs", "runbook-security.md"))
	require.NoError(t, err)

	rules := loadSecurityRules(t)
	require.Len(t, rules, len(expected))
	for _, rule := range rules {
		severity, ok := expected[rule.Alert]
		require.True(t, ok, "unexpected rule %q", rule.Alert)
		assert.Equal(t, severity, rule.Labels["severity"], rule.Alert)
		assert.NotEmpty(t, rule.Expr, rule.Alert)
		_, err := time.ParseDuration(rule.For)
		assert.NoError(t, err, "%s hold duration", rule.Alert)
		assert.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		assert.NotEmpty(t, rule.Annotations["description"], rule.Alert)

		anchor := regexp.MustCompile(`^docs/runbook-security\.md#([a-z-]+)$`).FindStringSubmatch(rule.Annotations["runbook"])
		require.Len(t, anchor, 2, "%s runbook link", rule.Alert)
		heading := strings.ReplaceAll(anchor[1], "-", " ")
		assert.Regexp(t, `(?mi)^## `+heading+`$`, string(runbook), "%s runbook section", rule.Alert)
	}
}

// Every metric an alert queries must be one the binaries export.
func TestAlertExpressionsUseExportedMetrics(t *testing.T) {
	m := NewMetrics()
	m.RegisterAuditStats(func() audit.Stats { return audit.Stats{} })
	m.ObserveGate("denied", "no_grant", time.Millisecond)
	jobs := jobmetrics.NewMetrics(m.Registerer())
	_ = jobs.Track("audit:export").End(errors.New("smtp down"))

	families, err := m.registry.Gather()
	require.NoError(t, err)
	exported := map[string]bool{}
	for _, f := range families {
		exported[f.GetName()] = true
	}

	for _, rule := range loadSecurityRules(t) {
		names := metricName.FindAllString(rule.Expr, -1)
		require.NotEmpty(t, names, rule.Alert)
		for _, name := range names {
			assert.True(t, exported[name], "%s queries unknown metric %s", rule.Alert, name)
		}
	}
}
