// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the ember TUI.

All colors use Lip Gloss AdaptiveColor so the palette resolves correctly on
both light and dark terminals. The Theme struct bundles the styles the chat
view and its components draw with, plus runtime capability detection.

# Key Types

  - Theme: styled components plus terminal capability flags
  - LayoutMode: narrow/medium/wide breakpoints driven by terminal width
  - StatusIndicatorSet: ASCII shape indicators for colorblind accessibility

# Usage

	theme := styles.NewTheme(cfg.UI.Theme)
	if theme.IsDark {
		// Dark palette active
	}
	header := theme.Header.Width(width).Render(title)
*/
package styles
