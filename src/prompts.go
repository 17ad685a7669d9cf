package ebookbot

func GetStructurePrompt() string {
	return `You are a book editor. Split the raw text of an ebook into its chapter tree.
    Return a single JSON object and nothing else, in this shape:
    {
      "document_title": "Title of the book",
      "chapters": [
        {
          "title": "Chapter title, cleaned of numbering artifacts",
          "anchor": "The heading line exactly as it appears in the text",
          "body": "",
          "children": [ { "title": "...", "anchor": "...", "body": "", "children": [] } ]
        }
      ]
    }
    Rules:
    1. Keep the chapters in the order they appear in the text.
    2. Nest sections under their chapter using "children". Do not go deeper than three levels.
    3. Leave "body" empty unless the text has no usable heading line for that section,
       in which case put the section's full text in "body".
    4. Skip front matter such as copyright pages and the original table of contents.
    5. Do not invent chapters that are not in the text.`
}

func GetLayoutPrompt() string {
	return `You are a book designer. Read the page geometry and sample text of a reference
    document and describe its visual style as design tokens.
    Return a single JSON object and nothing else, in this shape:
    {
      "tokens": {
        "page_width": 595.28, "page_height": 841.89,
        "margin_left": 56, "margin_right": 56, "margin_top": 64, "margin_bottom": 64,
        "heading_font_family": "Helvetica", "heading1_font_size": 24,
        "heading2_font_size": 18, "heading3_font_size": 14, "heading_color": "#1F2937",
        "body_font_family": "Times", "body_font_size": 11, "line_height": 1.4,
        "paragraph_spacing": 6, "accent_color": "#2563EB", "chapter_page_break": 1
      }
    }
    All sizes are in points. Font families must be one of Arial, Helvetica, Times or Courier.
    Colors are hex strings. Keep the page size of the reference document.`
}

func GetIllustrationPrompt() string {
	return `You are an art director for an ebook. For each chapter in the outline decide
    whether an illustration would add high value for the reader.
    Return a single JSON object and nothing else, in this shape:
    {
      "images": [
        {
          "chapter_id": "chapter_1",
          "value": "high",
          "prompt": "A detailed image generation prompt describing the scene",
          "caption": "A short caption for the printed image"
        }
      ]
    }
    Rules:
    1. Use "value": "high" only for chapters where a picture clearly helps; use "low" otherwise.
    2. At most one image per chapter.
    3. Prompts describe the picture only. No text, letters or logos in the image.
    4. Use the chapter_id values exactly as given in the outline.`
}
