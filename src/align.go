package ebookbot

// MaxImagesPerEntry caps how many images are placed next to one entry.
const MaxImagesPerEntry = 1

// Align merges the chapter tree, the design tokens and the resolved images
// into the plan the renderer draws. It makes no external calls.
func Align(doc StructuredDocument, tokens DesignTokens, assets []ImageAsset, tocDepth int) LayoutPlan {
	if tocDepth <= 0 {
		tocDepth = 2
	}
	byChapter := map[string][]ImageAsset{}
	for _, a := range assets {
		if len(byChapter[a.ChapterID]) < MaxImagesPerEntry {
			byChapter[a.ChapterID] = append(byChapter[a.ChapterID], a)
		}
	}

	plan := LayoutPlan{
		Title:   doc.Title,
		Entries: []LayoutEntry{},
		TOC:     []TOCEntry{},
		Tokens:  tokens.Clone(),
	}
	doc.Walk(func(n ChapterNode) {
		images := byChapter[n.ID]
		plan.Entries = append(plan.Entries, LayoutEntry{
			ChapterID: n.ID,
			Title:     n.Title,
			Level:     n.Level,
			Body:      n.Body,
			Style:     styleFor(tokens, n.Level),
			Layout:    layoutType(n.Body, len(images)),
			Images:    images,
		})
		if n.Level <= tocDepth {
			plan.TOC = append(plan.TOC, TOCEntry{ChapterID: n.ID, Title: n.Title, Level: n.Level})
		}
	})
	return plan
}

func layoutType(body string, images int) string {
	switch {
	case images == 0:
		return LayoutFullWidthText
	case body == "":
		return LayoutImageFullWidth
	default:
		return LayoutImageWithText
	}
}

func styleFor(t DesignTokens, level int) EntryStyle {
	def := DefaultDesignTokens()
	sizeToken := TokenHeading3Size
	switch level {
	case 1:
		sizeToken = TokenHeading1Size
	case 2:
		sizeToken = TokenHeading2Size
	}
	return EntryStyle{
		HeadingFont:     t.String(TokenHeadingFont, def.String(TokenHeadingFont, "")),
		HeadingSize:     t.Float(sizeToken, def.Float(sizeToken, 0)),
		HeadingColor:    t.String(TokenHeadingColor, def.String(TokenHeadingColor, "")),
		BodyFont:        t.String(TokenBodyFont, def.String(TokenBodyFont, "")),
		BodySize:        t.Float(TokenBodySize, def.Float(TokenBodySize, 0)),
		LineHeight:      t.Float(TokenLineHeight, def.Float(TokenLineHeight, 0)),
		PageBreakBefore: level == 1 && t.Float(TokenChapterPageBreak, 1) != 0,
	}
}
