package extract

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"hakken/internal/model"
)

// Images returns the position-indexed list of images found in the
// page. Data URIs and empty sources are skipped; an image counts as
// responsive when it carries srcset or sizes, or a class mentioning
// "responsive".
func Images(htmlStr, baseURL string) []model.PageImage {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil
	}

	base, _ := url.Parse(baseURL)
	var out []model.PageImage

	doc.Find("img").Each(func(i int, sel *goquery.Selection) {
		src := strings.TrimSpace(sel.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}

		imgURL, err := url.Parse(src)
		if err != nil {
			return
		}
		if base != nil && !imgURL.IsAbs() {
			imgURL = base.ResolveReference(imgURL)
		}
		if imgURL.Scheme != "http" && imgURL.Scheme != "https" {
			return
		}

		_, hasSrcset := sel.Attr("srcset")
		_, hasSizes := sel.Attr("sizes")
		responsive := hasSrcset || hasSizes ||
			strings.Contains(strings.ToLower(sel.AttrOr("class", "")), "responsive")

		out = append(out, model.PageImage{
			URL:        imgURL.String(),
			Alt:        sel.AttrOr("alt", ""),
			Title:      sel.AttrOr("title", ""),
			Width:      atoiOrZero(sel.AttrOr("width", "")),
			Height:     atoiOrZero(sel.AttrOr("height", "")),
			Responsive: responsive,
			Position:   len(out),
		})
	})

	return out
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
