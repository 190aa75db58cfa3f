// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import "encoding/json"

// =============================================================================
// PART KIND
// =============================================================================

// PartKind discriminates the Part variant.
type PartKind string

const (
	PartText PartKind = "text"
	PartTool PartKind = "tool"
	PartFile PartKind = "file"
)

// =============================================================================
// PART
// =============================================================================

// Part is one fragment of a message's content. The variant is closed: every
// consumer switches exhaustively on Kind, so an unrecognized part kind is a
// programming error, never a silent drop.
type Part struct {
	Kind PartKind `json:"kind"`

	// PartText
	Text string `json:"text,omitempty"`

	// PartTool
	Tool *ToolInvocation `json:"tool,omitempty"`

	// PartFile
	File *FileData `json:"file,omitempty"`
}

// ToolInvocation records a tool call requested by the model. Result stays
// nil until the matching tool-result arrives; an invocation with a nil
// Result is "open".
type ToolInvocation struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// Resolved reports whether the invocation has received its result.
func (ti *ToolInvocation) Resolved() bool {
	return ti.Result != nil
}

// FileData is an inline file attachment.
type FileData struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// NewTextPart creates a text part.
func NewTextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// NewToolPart creates an open tool invocation part.
func NewToolPart(id, name string, args json.RawMessage) Part {
	return Part{Kind: PartTool, Tool: &ToolInvocation{ID: id, Name: name, Arguments: args}}
}

// NewFilePart creates a file part.
func NewFilePart(mimeType string, data []byte) Part {
	return Part{Kind: PartFile, File: &FileData{MimeType: mimeType, Data: data}}
}

// Clone returns a deep copy of the part.
func (p Part) Clone() Part {
	out := Part{Kind: p.Kind, Text: p.Text}
	if p.Tool != nil {
		tool := *p.Tool
		tool.Arguments = append(json.RawMessage(nil), p.Tool.Arguments...)
		if p.Tool.Result != nil {
			tool.Result = append(json.RawMessage(nil), p.Tool.Result...)
		}
		out.Tool = &tool
	}
	if p.File != nil {
		file := FileData{MimeType: p.File.MimeType}
		file.Data = append([]byte(nil), p.File.Data...)
		out.File = &file
	}
	return out
}
