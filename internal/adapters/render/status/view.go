// Package status renders accounts, installations and running processes for
// the terminal.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/emberlaunch/ember/internal/domain"
)

// Model is everything one status view needs, assembled by the caller.
type Model struct {
	Accounts      []domain.Account
	ActiveID      domain.PlayerID
	Installations []domain.Installation
	Running       []domain.RunningProcess
	Now           time.Time
}

func Render(model Model) string {
	return renderView(model, newStyles())
}

func renderView(model Model, s styles) string {
	lines := []string{
		s.title.Render("Ember"),
		s.header.Render(fmt.Sprintf("accounts: %d  installations: %d  running: %d",
			len(model.Accounts), len(model.Installations), len(model.Running))),
	}

	lines = append(lines, s.section.Render(renderAccounts(model, s)))

	if len(model.Installations) > 0 {
		lines = append(lines, s.section.Render(renderInstallations(model, s)))
	}
	if len(model.Running) > 0 {
		lines = append(lines, s.section.Render(renderRunning(model, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderAccounts(model Model, s styles) string {
	if len(model.Accounts) == 0 {
		return s.empty.Render("No accounts. Run `ember login` to sign in.")
	}

	parts := make([]string, 0, len(model.Accounts))
	for _, account := range model.Accounts {
		parts = append(parts, renderAccountLine(account, model, s))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderAccountLine(account domain.Account, model Model, s styles) string {
	marker := "  "
	nameStyle := s.account
	if account.PlayerID == model.ActiveID {
		marker = s.active.Render("* ")
		nameStyle = s.active
	}

	line := marker + nameStyle.Render(account.Name) +
		s.meta.Render(fmt.Sprintf(" (%s, via %s)", account.PlayerID, flowLabel(account.Provenance)))

	if !model.Now.IsZero() && account.Credentials.Expired(model.Now) {
		line += " " + s.warning.Render("[token expired]")
	}

	return line
}

func flowLabel(kind domain.FlowKind) string {
	switch kind {
	case domain.FlowAuthorizationCode:
		return "browser"
	case domain.FlowDeviceCode:
		return "device code"
	default:
		return "unknown"
	}
}

func renderInstallations(model Model, s styles) string {
	parts := []string{s.header.Render("installations")}
	for _, installation := range model.Installations {
		detail := fmt.Sprintf("  %s", installation.Name)
		meta := fmt.Sprintf(" (%s, %s%s)", installation.ID, installation.Loader, lastPlayedLabel(installation, model.Now))
		parts = append(parts, s.detail.Render(detail)+s.meta.Render(meta))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func lastPlayedLabel(installation domain.Installation, now time.Time) string {
	last := installation.Stats.LastPlayed
	if last.IsZero() {
		return ", never played"
	}
	if now.IsZero() {
		return ", last played " + last.Format("2006-01-02")
	}

	days := int(now.Sub(last).Hours() / 24)
	switch {
	case days <= 0:
		return ", played today"
	case days == 1:
		return ", played yesterday"
	default:
		return fmt.Sprintf(", played %d days ago", days)
	}
}

func renderRunning(model Model, s styles) string {
	names := make(map[domain.InstallationID]string, len(model.Installations))
	for _, installation := range model.Installations {
		names[installation.ID] = installation.Name
	}

	parts := []string{s.header.Render("running")}
	for _, proc := range model.Running {
		name := names[proc.InstallationID]
		if name == "" {
			name = string(proc.InstallationID)
		}
		parts = append(parts, s.detail.Render(fmt.Sprintf("  pid %d", proc.PID))+s.meta.Render(" "+name))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// RenderDeviceInstruction formats the code-entry prompt for a device-code
// session.
func RenderDeviceInstruction(userCode, verificationURL string, expiresAt time.Time, now time.Time) string {
	s := newStyles()

	lines := []string{
		s.title.Render("Sign in"),
		s.detail.Render("Open ") + s.account.Render(verificationURL) +
			s.detail.Render(" and enter the code ") + s.active.Render(strings.TrimSpace(userCode)),
	}
	if !expiresAt.IsZero() && !now.IsZero() {
		minutes := int(expiresAt.Sub(now).Minutes())
		if minutes > 0 {
			lines = append(lines, s.meta.Render(fmt.Sprintf("The code expires in %d minutes.", minutes)))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
