package notion

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Title builds a title property.
func Title(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Type:  notionapi.PropertyTypeTitle,
		Title: []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}},
	}
}

// Text builds a rich text property. Notion caps a text block at 2000 chars.
func Text(s string) notionapi.RichTextProperty {
	if len(s) > 2000 {
		s = s[:2000]
	}
	return notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}},
	}
}

// Select builds a select property.
func Select(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Type: notionapi.PropertyTypeSelect, Select: notionapi.Option{Name: name}}
}

// Number builds a number property.
func Number(f float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: f}
}

// Checkbox builds a checkbox property.
func Checkbox(b bool) notionapi.CheckboxProperty {
	return notionapi.CheckboxProperty{Type: notionapi.PropertyTypeCheckbox, Checkbox: b}
}

// Date builds a date property.
func Date(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{Type: notionapi.PropertyTypeDate, Date: &notionapi.DateObject{Start: &d}}
}

// QueryAll pages through every result of a database query.
func QueryAll(ctx context.Context, c Client, dbID string, req *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	q := notionapi.DatabaseQueryRequest{}
	if req != nil {
		q = *req
	}

	var pages []notionapi.Page
	for {
		resp, err := c.QueryDatabase(ctx, dbID, &q)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}
		pages = append(pages, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return pages, nil
		}
		q.StartCursor = resp.NextCursor
	}
}

// UpsertByKey updates the page whose rich text property keyProp equals key,
// or creates one when none exists. It returns the page id.
func UpsertByKey(ctx context.Context, c Client, dbID, keyProp, key string, props notionapi.Properties) (string, error) {
	existing, err := QueryAll(ctx, c, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: keyProp,
			RichText: &notionapi.TextFilterCondition{Equals: key},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", eris.Wrapf(err, "notion: find %s=%s", keyProp, key)
	}

	props[keyProp] = Text(key)
	if len(existing) > 0 {
		id := string(existing[0].ID)
		if _, err := c.UpdatePage(ctx, id, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
			return "", err
		}
		return id, nil
	}

	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", err
	}
	return string(page.ID), nil
}
