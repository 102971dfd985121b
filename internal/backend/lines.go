/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package backend

import (
	"strings"

	"talekit/internal/dialogue"
)

// CollectLines flattens a parsed project into push payload lines, one per
// dialogue line and choice, in sorted node order.
func CollectLines(proj *dialogue.Project) []PushedLine {
	if proj == nil {
		return nil
	}
	var out []PushedLine
	for _, title := range proj.Titles() {
		collectPushLines(title, proj.Node(title).Body, &out)
	}
	return out
}

func collectPushLines(node string, lines []dialogue.Line, out *[]PushedLine) {
	for _, ln := range lines {
		switch v := ln.(type) {
		case *dialogue.DialogueLine:
			if strings.TrimSpace(v.Text) == "" {
				continue
			}
			*out = append(*out, PushedLine{
				Node:    node,
				Speaker: v.Speaker,
				LineID:  v.ID,
				Tags:    strings.Join(v.Tags, " "),
				Text:    v.Text,
			})
		case *dialogue.ChoiceSet:
			for i := range v.Choices {
				c := &v.Choices[i]
				if strings.TrimSpace(c.Text) != "" {
					*out = append(*out, PushedLine{
						Node: node,
						Tags: strings.Join(c.Tags, " "),
						Text: c.Text,
					})
				}
				collectPushLines(node, c.Body, out)
			}
		case *dialogue.ConditionalLine:
			collectPushLines(node, v.Then, out)
			collectPushLines(node, v.Else, out)
		}
	}
}
