package services

import (
	"context"
	"net/url"
)

// BorrowDirect hands off to the Project ReShare resource-sharing search.
// Depending on how it is called it redirects to the bare search page,
// a fielded search built from a record, or a fielded search built from
// OpenURL parameters.
type BorrowDirect struct {
	Base
	Endpoints Endpoints
}

func (s *BorrowDirect) ServiceURL(_ context.Context, req *Request) (string, error) {
	openURL := reshareOpenURLParams(req.Params)

	if req.Record == nil && len(openURL) == 0 {
		return s.Endpoints.ReshareBaseURL, nil
	}

	var query string
	if req.Record != nil {
		query = s.queryFromRecord(req)
	} else {
		query = s.queryFromOpenURL(openURL)
	}
	if query == "" {
		return s.Endpoints.ReshareBaseURL, nil
	}

	return s.Endpoints.ReshareBaseURL + "/Search/Results?" + query, nil
}

// reshareOpenURLParams lowercases the incoming keys and keeps only what
// could be OpenURL fields.
func reshareOpenURLParams(params url.Values) map[string]string {
	openURL := make(map[string]string)
	for key := range params {
		value := params.Get(key)
		if value == "" {
			continue
		}
		openURL[lower(key)] = value
	}
	delete(openURL, "id")
	return openURL
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

// queryFromRecord prefers an identifier search: ISSN first, then ISBN,
// then a quoted title search joined with the author when one exists.
func (s *BorrowDirect) queryFromRecord(req *Request) string {
	record := req.Record

	if issns := record.ISSNs(); len(issns) > 0 {
		return "type=ISN&lookfor=" + url.QueryEscape(issns[0])
	}
	if isbns := record.ISBNs(); len(isbns) > 0 {
		return "type=ISN&lookfor=" + url.QueryEscape(isbns[0])
	}

	return titleAuthorQuery(record.TitleBrief(), record.Author())
}

// queryFromOpenURL mirrors queryFromRecord for OpenURL input. ReShare
// has a single ISBN/ISSN search field, so either identifier serves.
func (s *BorrowDirect) queryFromOpenURL(params map[string]string) string {
	for _, key := range []string{"issn", "rft.issn", "isbn", "rft.isbn"} {
		if isn := params[key]; isn != "" {
			return "type=ISN&lookfor=" + url.QueryEscape(isn)
		}
	}

	var title string
	for _, key := range []string{"title", "stitle", "rft.title", "rft.btitle", "rft.stitle", "rft.jtitle", "loantitle"} {
		if title = params[key]; title != "" {
			break
		}
	}
	if title == "" {
		return ""
	}
	return titleAuthorQuery(title, params["author"])
}

func titleAuthorQuery(title, author string) string {
	query := `type0[]=Title&lookfor0[]="` + url.QueryEscape(title) + `"`
	if author != "" {
		query += `&type0[]=Author&lookfor0[]="` + url.QueryEscape(author) + `"&join=AND`
	}
	return query
}
