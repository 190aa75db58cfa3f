// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"strings"
	"time"

	"github.com/morganforge/ember/internal/model"
)

// ExportMarkdown renders the conversation as a markdown transcript with
// role labels and timestamps. Tool invocations appear as fenced JSON so
// the transcript stays readable in any markdown viewer.
func ExportMarkdown(conv *model.Conversation) string {
	var sb strings.Builder

	sb.WriteString("# " + conv.GetTitle() + "\n\n")
	if conv.Model != "" {
		sb.WriteString("Model: " + conv.Model + "\n\n")
	}
	sb.WriteString("Created: " + conv.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range conv.Messages {
		sb.WriteString("**" + msg.Role.DisplayName() + "** (" + msg.CreatedAt.Format("15:04") + "):\n\n")

		for _, part := range msg.Parts {
			switch part.Kind {
			case model.PartText:
				sb.WriteString(part.Text)
				sb.WriteString("\n")
			case model.PartTool:
				sb.WriteString("\n`tool: " + part.Tool.Name + "`\n\n")
				if len(part.Tool.Arguments) > 0 {
					sb.WriteString("```json\n" + string(part.Tool.Arguments) + "\n```\n")
				}
				if part.Tool.Resolved() {
					sb.WriteString("```json\n" + string(part.Tool.Result) + "\n```\n")
				}
			case model.PartFile:
				sb.WriteString("\n`attachment: " + part.File.MimeType + "`\n")
			}
		}

		if msg.StopReason == model.StopCancelled {
			sb.WriteString("\n*(stopped by user)*\n")
		}
		sb.WriteString("\n---\n\n")
	}

	return sb.String()
}
