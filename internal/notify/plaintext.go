package notify

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText はサニタイズ済みHTMLをメール本文用のプレーンテキストに変換する。
// ブロック要素とbrは改行に、liは「・」付きの行に、aはテキストの後ろにURLを括弧書きで出力する。
func PlainText(htmlBody string) string {
	if htmlBody == "" {
		return ""
	}

	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(htmlBody))
	var hrefs []string

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return collapseBlankLines(b.String())

		case html.TextToken:
			b.WriteString(string(tokenizer.Text()))

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			switch string(tn) {
			case "br":
				b.WriteString("\n")
			case "p", "blockquote", "ul", "ol", "h3", "h4":
				b.WriteString("\n")
			case "li":
				b.WriteString("\n・")
			case "a":
				href := ""
				for hasAttr {
					key, val, more := tokenizer.TagAttr()
					if string(key) == "href" {
						href = string(val)
					}
					hasAttr = more
				}
				hrefs = append(hrefs, href)
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "p", "blockquote", "ul", "ol", "h3", "h4":
				b.WriteString("\n")
			case "a":
				if n := len(hrefs); n > 0 {
					if href := hrefs[n-1]; href != "" {
						b.WriteString(" (" + href + ")")
					}
					hrefs = hrefs[:n-1]
				}
			}
		}
	}
}

// collapseBlankLines は行末の空白を除き、連続する空行を1つにまとめる。
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
