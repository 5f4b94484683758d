package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/catalog"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/services"
)

func (a *app) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(a.out)
	t.SetStyle(table.StyleRounded)
	return t
}

func (a *app) renderJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func header(cols ...string) table.Row {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = text.FgHiCyan.Sprint(strings.ToUpper(c))
	}
	return row
}

func statusColor(s models.Status) string {
	switch s {
	case models.StatusActive:
		return text.FgGreen.Sprint(s)
	case models.StatusFailed:
		return text.FgRed.Sprint(s)
	case models.StatusPending, models.StatusDeploying:
		return text.FgYellow.Sprint(s)
	default:
		return text.FgHiBlack.Sprint(s)
	}
}

func levelColor(l models.LogLevel) string {
	switch l {
	case models.LevelError:
		return text.FgRed.Sprint(l)
	case models.LevelWarning:
		return text.FgYellow.Sprint(l)
	default:
		return string(l)
	}
}

func since(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func (a *app) renderTemplates(items []catalog.Template) error {
	if a.output() == outputJSON {
		return a.renderJSON(items)
	}
	if len(items) == 0 {
		fmt.Fprintln(a.out, text.FgYellow.Sprint("No templates found"))
		return nil
	}
	t := a.newTable()
	t.AppendHeader(header("id", "name", "monthly", "yearly", "services"))
	for _, tpl := range items {
		t.AppendRow(table.Row{
			tpl.ID,
			tpl.Name,
			fmt.Sprintf("$%.2f", tpl.Pricing.Monthly),
			fmt.Sprintf("$%.2f", tpl.Pricing.Yearly),
			strings.Join(tpl.IncludedServices, ", "),
		})
	}
	t.Render()
	return nil
}

func (a *app) renderTemplate(tpl *catalog.Template) error {
	if a.output() == outputJSON {
		return a.renderJSON(tpl)
	}
	t := a.newTable()
	t.AppendRows([]table.Row{
		{"ID", tpl.ID},
		{"Name", tpl.Name},
		{"Description", tpl.Description},
		{"Pricing", fmt.Sprintf("$%.2f / month, $%.2f / year", tpl.Pricing.Monthly, tpl.Pricing.Yearly)},
		{"Features", strings.Join(tpl.Features, "\n")},
		{"Services", strings.Join(tpl.IncludedServices, ", ")},
		{"Customizable", strings.Join(tpl.AllowedCustomizations, ", ")},
	})
	t.Render()
	return nil
}

func (a *app) renderDeployments(items []models.Deployment) error {
	if a.output() == outputJSON {
		return a.renderJSON(items)
	}
	if len(items) == 0 {
		fmt.Fprintln(a.out, text.FgYellow.Sprint("No deployments found"))
		return nil
	}
	t := a.newTable()
	t.AppendHeader(header("id", "tenant", "app", "status", "domain", "version", "last deployed"))
	for _, d := range items {
		t.AppendRow(table.Row{d.ID, d.TenantID, d.AppName, statusColor(d.Status), d.Domain, d.Version, since(d.LastDeployedAt)})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "total", len(items)})
	t.Render()
	return nil
}

func (a *app) renderDeployment(d *models.Deployment) error {
	if a.output() == outputJSON {
		return a.renderJSON(d)
	}
	cfg := d.Config()
	t := a.newTable()
	t.AppendRows([]table.Row{
		{"ID", d.ID},
		{"Tenant", d.TenantID},
		{"Template", d.TemplateID},
		{"App", d.AppName},
		{"Status", statusColor(d.Status)},
		{"Environment", d.Environment},
		{"Domain", d.Domain},
		{"Version", d.Version},
		{"Deployed", since(d.DeployedAt)},
		{"Last deployed", since(d.LastDeployedAt)},
		{"Features", strings.Join(cfg.EnabledFeatures(), ", ")},
		{"Integrations", strings.Join(cfg.EnabledIntegrations(), ", ")},
		{"SSL", cfg.Customizations.SSLEnabled},
		{"Maintenance", cfg.Customizations.MaintenanceMode},
	})
	if cfg.Customizations.CustomDomain != "" {
		t.AppendRow(table.Row{"Custom domain", cfg.Customizations.CustomDomain})
	}
	t.Render()
	return nil
}

func (a *app) renderLogs(entries []models.DeploymentLog) error {
	if a.output() == outputJSON {
		return a.renderJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, text.FgYellow.Sprint("No log entries"))
		return nil
	}
	t := a.newTable()
	t.AppendHeader(header("time", "level", "message", "details"))
	for _, e := range entries {
		t.AppendRow(table.Row{e.Timestamp.Local().Format(time.DateTime), levelColor(e.Level), e.Message, details(e.Details)})
	}
	t.Render()
	return nil
}

// details flattens a log entry's details into sorted key=value pairs.
func details(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, " ")
}

func (a *app) renderHealth(res *services.HealthResult) error {
	if a.output() == outputJSON {
		return a.renderJSON(res)
	}
	status := res.Status
	if status == services.StatusUnhealthy {
		status = text.FgRed.Sprint(status)
	} else {
		status = statusColor(models.Status(status))
	}
	t := a.newTable()
	t.AppendRows([]table.Row{
		{"Status", status},
		{"Response time", (time.Duration(res.ResponseTimeMs) * time.Millisecond).String()},
		{"Uptime", (time.Duration(res.UptimeMs) * time.Millisecond).Round(time.Second).String()},
		{"Checked", res.CheckedAt.Local().Format(time.DateTime)},
	})
	t.Render()
	return nil
}
