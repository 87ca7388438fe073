package mailer

import (
	"fmt"
	"strings"

	"github.com/osteele/liquid"
)

const htmlSource = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, Helvetica, sans-serif; font-size: 14px; line-height: 1.5; color: #222;">
{% for para in paragraphs %}<p>{% for line in para %}{{ line | escape }}{% unless forloop.last %}<br>{% endunless %}{% endfor %}</p>
{% endfor %}{% if signature.size > 0 %}<p style="color: #555;">{% for line in signature %}{{ line | escape }}{% unless forloop.last %}<br>{% endunless %}{% endfor %}</p>
{% endif %}</body>
</html>
`

var htmlTemplate = func() *liquid.Template {
	tpl, err := liquid.NewEngine().ParseString(htmlSource)
	if err != nil {
		panic(fmt.Sprintf("mailer: html template: %v", err))
	}
	return tpl
}()

// paragraphs splits text on blank lines, then each paragraph into lines.
func paragraphs(text string) [][]string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	var out [][]string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		out = append(out, strings.Split(block, "\n"))
	}
	return out
}

func lines(text string) []string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return []string{}
	}
	return strings.Split(text, "\n")
}

// renderBodies returns the HTML and plain-text bodies for content.
func renderBodies(content, signature string) (string, string, error) {
	html, err := htmlTemplate.RenderString(liquid.Bindings{
		"paragraphs": paragraphs(content),
		"signature":  lines(signature),
	})
	if err != nil {
		return "", "", err
	}

	text := strings.TrimSpace(content)
	if signature != "" {
		text += "\n\n-- \n" + signature
	}
	return html, text, nil
}
