// Package evaluation turns a pending evaluation into a saved one: it reads the
// evaluation page, maps its fields onto the questionnaire layout and drives the
// portal's two-phase save.
package evaluation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MalformedPageError means the evaluation page is missing the token, the fields or
// the layout the answers are mapped onto. Nothing should be submitted for it.
type MalformedPageError struct {
	Reason string
	Err    error
}

func (e *MalformedPageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed evaluation page: %s: %s", e.Reason, e.Err.Error())
	}
	return fmt.Sprintf("malformed evaluation page: %s", e.Reason)
}

func (e *MalformedPageError) Unwrap() error {
	return e.Err
}

// Field is one element of the evaluation page that carries a name attribute.
type Field struct {
	Name string
	// Tag is the lowercase element name (input, textarea, select, ...).
	Tag string
	// Type is the lowercase type attribute, empty when absent.
	Type  string
	Value string
}

// Form is what an evaluation page provides to a submission.
type Form struct {
	Token string
	// Fields are in document order, duplicate names are kept.
	Fields []Field
}

// ExtractForm reads the submission token and every named element from an
// evaluation page. It knows nothing about what the fields mean.
func ExtractForm(page []byte) (Form, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return Form{}, &MalformedPageError{Reason: "parse html", Err: err}
	}

	token := doc.Find("input[name=tokenValue]").First().AttrOr("value", "")
	if token == "" {
		return Form{}, &MalformedPageError{Reason: "could not find submission token"}
	}

	var fields []Field
	doc.Find("[name]").Each(func(_ int, sel *goquery.Selection) {
		fields = append(fields, Field{
			Name:  sel.AttrOr("name", ""),
			Tag:   goquery.NodeName(sel),
			Type:  strings.ToLower(sel.AttrOr("type", "")),
			Value: sel.AttrOr("value", ""),
		})
	})
	if len(fields) == 0 {
		return Form{}, &MalformedPageError{Reason: "could not find any form field"}
	}

	return Form{Token: token, Fields: fields}, nil
}
