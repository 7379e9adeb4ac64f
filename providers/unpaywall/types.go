package unpaywall

import "oa-workflow/mappers"

// Location ist ein Eintrag in oa_locations bzw. best_oa_location.
type Location struct {
	URL               string `json:"url"`
	URLForLandingPage string `json:"url_for_landing_page"`
	URLForPDF         string `json:"url_for_pdf"`
	HostType          string `json:"host_type"`
	Version           string `json:"version"`
	License           string `json:"license"`
	Evidence          string `json:"evidence"`
}

// Response repräsentiert die JSON-Antwort der Unpaywall-API.
type Response struct {
	DOI            string     `json:"doi"`
	Title          string     `json:"title"`
	IsOA           bool       `json:"is_oa"`
	OAStatus       string     `json:"oa_status"`
	JournalName    string     `json:"journal_name"`
	Publisher      string     `json:"publisher"`
	Year           int        `json:"year"`
	BestOALocation *Location  `json:"best_oa_location"`
	OALocations    []Location `json:"oa_locations"`
}

// MatchableTitle is the normalized title used for DOI verification.
func (r *Response) MatchableTitle() string {
	return mappers.MatchableTitle(r.Title)
}

// PDFLink gibt den PDF-Link der besten OA-Location zurück, falls vorhanden.
func (r *Response) PDFLink() string {
	if r.BestOALocation == nil {
		return ""
	}
	return r.BestOALocation.URLForPDF
}

type searchResponse struct {
	Results []struct {
		Response Response `json:"response"`
		Score    float64  `json:"score"`
	} `json:"results"`
}
