package handlers

import (
	"strings"
)

type submissionForm struct {
	Link        string
	Title       string
	Description string
}

var formLabels = map[string]string{
	"title":       "title",
	"заголовок":   "title",
	"description": "description",
	"описание":    "description",
	"link":        "link",
	"url":         "link",
	"ссылка":      "link",
}

// parseSubmission accepts either labelled lines
//
//	TITLE: ...
//	DESCRIPTION: ...
//	LINK: ...
//
// (English or Russian labels, any case, description may span lines) or a bare
// "<url> [title words]".
func parseSubmission(text string) (submissionForm, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return submissionForm{}, false
	}

	var form submissionForm
	labelled := false
	field := ""
	for _, line := range strings.Split(text, "\n") {
		if label, value, ok := strings.Cut(line, ":"); ok {
			if name, known := formLabels[strings.ToLower(strings.TrimSpace(label))]; known {
				labelled = true
				field = name
				form.set(field, strings.TrimSpace(value))
				continue
			}
		}
		if labelled && field == "description" {
			form.Description = strings.TrimSpace(form.Description + "\n" + strings.TrimSpace(line))
		}
	}
	if labelled {
		return form, form.Link != ""
	}

	fields := strings.Fields(text)
	if !strings.Contains(fields[0], "://") {
		return submissionForm{}, false
	}
	form.Link = fields[0]
	form.Title = strings.Join(fields[1:], " ")
	return form, true
}

func (f *submissionForm) set(field, value string) {
	switch field {
	case "title":
		f.Title = value
	case "description":
		f.Description = value
	case "link":
		f.Link = value
	}
}

// looksLikeSubmission reports whether plain text was meant as a submission.
func looksLikeSubmission(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if label, _, ok := strings.Cut(line, ":"); ok {
			if formLabels[strings.ToLower(strings.TrimSpace(label))] == "link" {
				return true
			}
		}
	}
	return false
}
