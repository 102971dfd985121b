/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders a parsed story into shareable artifacts: a
// readable script PDF and a Graphviz DOT file of the node jump graph.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"talekit/internal/dialogue"
	"talekit/internal/storage"
)

// PDFOptions controls script PDF export behavior.
// Units are points (pt). Built-in Helvetica keeps text vector without
// embedding; core fonts cover Latin-1 which is enough for a draft script.
type PDFOptions struct {
	// Title printed on the first page; defaults to the story name.
	Title string
	// Nodes restricts export to the named nodes; empty means all nodes
	// in sorted title order.
	Nodes []string
	// ShowConditions prints choice and branch conditions inline.
	ShowConditions bool
	// FontSize is the body size in points; default 11.
	FontSize float64
}

const (
	pdfMarginPt = 54.0 // 3/4 inch
	pdfIndentPt = 18.0
)

// ExportScriptPDF writes the parsed story as a multi-page script PDF at
// outPath. A relative outPath lands in the story's exports folder.
func ExportScriptPDF(ph *storage.StoryHandle, proj *dialogue.Project, outPath string, opt PDFOptions) error {
	if ph == nil {
		return fmt.Errorf("story handle is nil")
	}
	if proj == nil {
		return fmt.Errorf("project is nil")
	}
	title := opt.Title
	if title == "" {
		title = ph.Story.Name
	}
	size := opt.FontSize
	if size <= 0 {
		size = 11
	}

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor("TaleKit", false)
	pdf.SetMargins(pdfMarginPt, pdfMarginPt, pdfMarginPt)
	pdf.SetAutoPageBreak(true, pdfMarginPt)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", size+7)
	pdf.MultiCell(0, size+10, title, "", "L", false)
	if ph.Story.Metadata.Author != "" {
		pdf.SetFont("Helvetica", "", size)
		pdf.MultiCell(0, size+4, "by "+ph.Story.Metadata.Author, "", "L", false)
	}
	pdf.Ln(size)

	titles := opt.Nodes
	if len(titles) == 0 {
		titles = proj.Titles()
	}
	for _, t := range titles {
		node := proj.Node(t)
		if node == nil {
			return fmt.Errorf("node %q not found", t)
		}
		writeNodePDF(pdf, node, size, opt.ShowConditions)
	}

	if !filepath.IsAbs(outPath) {
		outPath = filepath.Join(ph.Root, "exports", outPath)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func writeNodePDF(pdf *gofpdf.Fpdf, node *dialogue.Node, size float64, showCond bool) {
	pdf.SetFont("Helvetica", "B", size+3)
	heading := node.Title
	if len(node.Tags) > 0 {
		heading += "  [" + strings.Join(node.Tags, " ") + "]"
	}
	pdf.MultiCell(0, size+8, heading, "", "L", false)
	pdf.Ln(2)
	writeLinesPDF(pdf, node.Body, 0, size, showCond)
	pdf.Ln(size)
}

func writeLinesPDF(pdf *gofpdf.Fpdf, lines []dialogue.Line, depth int, size float64, showCond bool) {
	indent := pdfMarginPt + float64(depth)*pdfIndentPt
	lh := size + 4
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, ln := range lines {
		pdf.SetLeftMargin(indent)
		pdf.SetX(indent)
		switch v := ln.(type) {
		case *dialogue.DialogueLine:
			if v.Speaker != "" {
				pdf.SetFont("Helvetica", "B", size)
				pdf.Write(lh, tr(v.Speaker+": "))
			}
			pdf.SetFont("Helvetica", "", size)
			pdf.Write(lh, tr(v.Text))
			pdf.Ln(lh)
		case *dialogue.ChoiceSet:
			for i := range v.Choices {
				c := &v.Choices[i]
				pdf.SetX(indent)
				pdf.SetFont("Helvetica", "I", size)
				label := "> " + c.Text
				if showCond && c.Condition != "" {
					label += "  [if " + c.Condition + "]"
				}
				pdf.Write(lh, tr(label))
				pdf.Ln(lh)
				writeLinesPDF(pdf, c.Body, depth+1, size, showCond)
				pdf.SetLeftMargin(indent)
			}
		case *dialogue.ConditionalLine:
			if showCond {
				pdf.SetFont("Courier", "", size-1)
				pdf.Write(lh, tr("if "+v.Condition))
				pdf.Ln(lh)
			}
			writeLinesPDF(pdf, v.Then, depth+1, size, showCond)
			pdf.SetLeftMargin(indent)
			if len(v.Else) > 0 {
				if showCond {
					pdf.SetX(indent)
					pdf.SetFont("Courier", "", size-1)
					pdf.Write(lh, "else")
					pdf.Ln(lh)
				}
				writeLinesPDF(pdf, v.Else, depth+1, size, showCond)
				pdf.SetLeftMargin(indent)
			}
		case *dialogue.CommandLine:
			pdf.SetFont("Courier", "", size-1)
			cmd := v.Name
			if len(v.Args) > 0 {
				cmd += " " + strings.Join(v.Args, " ")
			}
			pdf.Write(lh, tr("<<"+cmd+">>"))
			pdf.Ln(lh)
		case *dialogue.JumpLine:
			pdf.SetFont("Courier", "", size-1)
			pdf.Write(lh, tr("-> "+v.Target))
			pdf.Ln(lh)
		}
	}
	pdf.SetLeftMargin(pdfMarginPt)
}
