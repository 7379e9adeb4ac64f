// Package activityinsight spricht mit der Activity-Insight-Webservice-API
// (Dateidownload und Export des Postprint-Status).
package activityinsight

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"oa-workflow/config"
	"oa-workflow/models"
	"oa-workflow/providers/httpclient"
)

// Doer is satisfied by *httpclient.Client.
type Doer interface {
	Get(ctx context.Context, rawURL string, opts ...httpclient.RequestOption) (string, error)
	Post(ctx context.Context, rawURL, contentType string, body []byte, opts ...httpclient.RequestOption) (string, error)
}

// Client kapselt die Activity-Insight-Aufrufe.
type Client struct {
	baseURL  string
	username string
	password string
	http     Doer
	logger   *zap.Logger
}

// NewClient erstellt einen neuen Activity-Insight-Client.
func NewClient(cfg *config.Config, http Doer, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.ActivityInsightBaseURL, "/"),
		username: cfg.ActivityInsightUsername,
		password: cfg.ActivityInsightPassword,
		http:     http,
		logger:   logger,
	}
}

func (c *Client) auth() httpclient.RequestOption {
	return httpclient.WithBasicAuth(c.username, c.password)
}

// FileURL builds the download URL for an Activity Insight file path.
func (c *Client) FileURL(location string) string {
	segments := strings.Split(strings.TrimLeft(location, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.baseURL + "/UserFile/" + strings.Join(segments, "/")
}

// DownloadFile lädt eine gemeldete Manuskriptdatei herunter.
func (c *Client) DownloadFile(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, fmt.Errorf("activity insight file has no location")
	}
	body, err := c.http.Get(ctx, c.FileURL(location), c.auth())
	if err != nil {
		return nil, fmt.Errorf("download activity insight file: %w", err)
	}
	return []byte(body), nil
}

type exportData struct {
	XMLName xml.Name     `xml:"Data"`
	Record  exportRecord `xml:"Record"`
}

type exportRecord struct {
	Username   string           `xml:"username,attr"`
	Intellcont exportIntellcont `xml:"INTELLCONT"`
}

type exportIntellcont struct {
	ID       string         `xml:"id,attr"`
	PostFile exportPostFile `xml:"POST_FILE"`
}

type exportPostFile struct {
	ID              string `xml:"id,attr"`
	PostprintStatus string `xml:"POSTPRINT_STATUS"`
}

// PostprintStatusXML renders the SchemaData payload for one file.
func PostprintStatusXML(file *models.ActivityInsightOAFile, status models.PostprintStatus) ([]byte, error) {
	payload := exportData{
		Record: exportRecord{
			Username: file.UserWebaccessID,
			Intellcont: exportIntellcont{
				ID: file.IntellcontID,
				PostFile: exportPostFile{
					ID:              file.PostFileID,
					PostprintStatus: string(status),
				},
			},
		},
	}
	out, err := xml.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// ExportPostprintStatus schreibt den Postprint-Status einer Datei nach Activity Insight zurück.
func (c *Client) ExportPostprintStatus(ctx context.Context, file *models.ActivityInsightOAFile, status models.PostprintStatus) error {
	if file.UserWebaccessID == "" || file.IntellcontID == "" {
		return fmt.Errorf("file %d is missing its activity insight identifiers", file.ID)
	}
	body, err := PostprintStatusXML(file, status)
	if err != nil {
		return fmt.Errorf("encode postprint status: %w", err)
	}

	reqURL := c.baseURL + "/SchemaData:append/INDIVIDUAL-ACTIVITIES-University"
	c.logger.Info("Exportiere Postprint-Status nach Activity Insight",
		zap.Uint("file_id", file.ID),
		zap.String("status", string(status)))

	if _, err := c.http.Post(ctx, reqURL, "text/xml", body, c.auth()); err != nil {
		return fmt.Errorf("export postprint status: %w", err)
	}
	return nil
}
