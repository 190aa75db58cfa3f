// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/morganforge/ember/internal/session"
	"github.com/morganforge/ember/internal/ui/styles"
	"github.com/morganforge/ember/internal/util"
)

// =============================================================================
// ERROR BANNER
// =============================================================================

// ErrorBanner renders a failed exchange: what went wrong and what to try.
type ErrorBanner struct {
	Width int

	theme *styles.Theme
}

// NewErrorBanner creates a new error banner.
func NewErrorBanner(theme *styles.Theme) *ErrorBanner {
	return &ErrorBanner{Width: 80, theme: theme}
}

// SetWidth updates the banner width.
func (b *ErrorBanner) SetWidth(width int) {
	b.Width = width
}

// bannerTitle maps a failure kind to a short headline.
func bannerTitle(kind session.Kind) string {
	switch kind {
	case session.KindNetwork:
		return "Connection failed"
	case session.KindProtocol:
		return "Malformed reply"
	case session.KindUpstream:
		return "Server reported an error"
	case session.KindCancelled:
		return "Cancelled"
	default:
		return "Something went wrong"
	}
}

// View renders the banner for a classified failure. Returns "" when nil.
func (b *ErrorBanner) View(cerr *session.ClassifiedError) string {
	if cerr == nil {
		return ""
	}

	maxWidth := b.Width - 6
	if maxWidth < 20 {
		maxWidth = 20
	}

	var sb strings.Builder
	sb.WriteString(b.theme.ErrorTitle.Render(
		styles.StatusIndicators.Error + " " + bannerTitle(cerr.Kind)))

	if cerr.Err != nil {
		sb.WriteString("\n")
		sb.WriteString(b.theme.ErrorMessage.Render(
			util.TruncateWidth(cerr.Err.Error(), maxWidth)))
	}
	if cerr.Hint != "" {
		sb.WriteString("\n")
		sb.WriteString(b.theme.ErrorHint.Render(cerr.Hint))
	}

	return b.theme.ErrorBox.MaxWidth(b.Width).Render(sb.String())
}
