package gcp

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/platform/envutil"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
	"github.com/yungbote/hypermind-backend/internal/platform/web"
)

const documentService = "documentai"

type DocumentConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
}

func DocumentConfigFromEnv() DocumentConfig {
	return DocumentConfig{
		ProjectID:        envutil.String("DOCUMENTAI_PROJECT_ID", envutil.String("GCP_PROJECT_ID", "")),
		Location:         envutil.String("DOCUMENTAI_LOCATION", "us"),
		ProcessorID:      envutil.String("DOCUMENTAI_PROCESSOR_ID", ""),
		ProcessorVersion: envutil.String("DOCUMENTAI_PROCESSOR_VERSION", ""),
	}
}

// Extractor turns fetched documents into plain text. Text and HTML are
// handled locally; PDFs and images go through Document AI when a processor
// is configured.
type Extractor struct {
	log       *logger.Logger
	docClient *documentai.DocumentProcessorClient
	processor string
}

// NewExtractor returns a local-only extractor when cfg names no processor.
func NewExtractor(ctx context.Context, log *logger.Logger, cfg DocumentConfig) (*Extractor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	e := &Extractor{log: log.With("service", "gcp.Document")}
	name := processorName(cfg.ProjectID, cfg.Location, cfg.ProcessorID, cfg.ProcessorVersion)
	if name == "" {
		e.log.Warn("Document AI not configured; PDF extraction disabled")
		return e, nil
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	e.docClient = c
	e.processor = name
	e.log.Info("Document AI initialized", "endpoint", endpoint)
	return e, nil
}

func (e *Extractor) Close() error {
	if e == nil || e.docClient == nil {
		return nil
	}
	return e.docClient.Close()
}

func (e *Extractor) Extract(ctx context.Context, blob adapters.Blob, fileName string) (string, error) {
	mt := MediaType(blob.ContentType, fileName)
	switch {
	case mt == "text/plain" || mt == "text/markdown" || mt == "text/csv":
		if !utf8.Valid(blob.Data) {
			return "", adapters.Errorf(documentService, adapters.Unsupported, "%s is not valid UTF-8", fileName)
		}
		return strings.TrimSpace(string(blob.Data)), nil
	case mt == "text/html":
		text, err := web.HTMLText(bytes.NewReader(blob.Data))
		if err != nil {
			return "", adapters.Wrap(documentService, adapters.InvalidResponse, err)
		}
		return text, nil
	case mt == "application/pdf" || strings.HasPrefix(mt, "image/"):
		return e.process(ctx, blob.Data, mt)
	default:
		return "", adapters.Errorf(documentService, adapters.Unsupported, "unsupported file type %q", mt)
	}
}

func (e *Extractor) process(ctx context.Context, data []byte, mimeType string) (string, error) {
	if e.docClient == nil {
		return "", adapters.Missing(documentService)
	}
	if len(data) == 0 {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	resp, err := e.docClient.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: e.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: data, MimeType: mimeType},
		},
	})
	if err != nil {
		return "", grpcError(documentService, err)
	}
	return documentText(resp.GetDocument()), nil
}

// documentText is the document text followed by any tables rendered as
// markdown, which the plain text flattens.
func documentText(doc *documentaipb.Document) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(doc.Text))
	for _, p := range doc.Pages {
		for _, table := range p.GetTables() {
			if md := strings.TrimSpace(tableToMarkdown(doc.Text, table)); md != "" {
				b.WriteString("\n\n")
				b.WriteString(md)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// MediaType resolves a bare media type from the content type, falling back
// to the file extension when the server sent a generic type.
func MediaType(contentType, fileName string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || mt == "" || mt == "application/octet-stream" || mt == "binary/octet-stream" {
		switch strings.ToLower(filepath.Ext(fileName)) {
		case ".pdf":
			return "application/pdf"
		case ".txt":
			return "text/plain"
		case ".md", ".markdown":
			return "text/markdown"
		case ".csv":
			return "text/csv"
		case ".html", ".htm":
			return "text/html"
		case ".png":
			return "image/png"
		case ".jpg", ".jpeg":
			return "image/jpeg"
		}
		if mt == "" {
			return "application/octet-stream"
		}
	}
	return strings.ToLower(mt)
}

// grpcError maps Google API status codes to adapter kinds.
func grpcError(service string, err error) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return adapters.Wrap(service, adapters.ServiceUnavailable, err)
		case codes.ResourceExhausted:
			return adapters.Wrap(service, adapters.RateLimited, err)
		case codes.NotFound:
			return adapters.Wrap(service, adapters.NotFound, err)
		case codes.Canceled:
			return err
		}
	}
	return adapters.Wrap(service, adapters.InvalidResponse, err)
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || len(anchor.TextSegments) == 0 || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		start := int(seg.StartIndex)
		end := int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}

func tableToMarkdown(full string, t *documentaipb.Document_Page_Table) string {
	if t == nil {
		return ""
	}

	rows := [][]string{}
	header := []string{}
	if len(t.HeaderRows) > 0 && t.HeaderRows[0] != nil {
		header = tableRowToCells(full, t.HeaderRows[0])
	}
	bodyRows := append([]*documentaipb.Document_Page_Table_TableRow{}, t.BodyRows...)

	if len(header) == 0 && len(bodyRows) > 0 && bodyRows[0] != nil {
		header = tableRowToCells(full, bodyRows[0])
		bodyRows = bodyRows[1:]
	}
	if len(header) == 0 {
		return ""
	}

	rows = append(rows, header)
	for _, r := range bodyRows {
		if r == nil {
			continue
		}
		rows = append(rows, tableRowToCells(full, r))
	}
	if len(rows) == 0 {
		return ""
	}

	maxCols := 0
	for _, r := range rows {
		if len(r) > maxCols {
			maxCols = len(r)
		}
	}
	if maxCols == 0 {
		return ""
	}
	for i := range rows {
		for len(rows[i]) < maxCols {
			rows[i] = append(rows[i], "")
		}
	}

	var out strings.Builder
	out.WriteString("| ")
	out.WriteString(strings.Join(escapePipes(rows[0]), " | "))
	out.WriteString(" |\n| ")
	sep := make([]string, maxCols)
	for i := 0; i < maxCols; i++ {
		sep[i] = "---"
	}
	out.WriteString(strings.Join(sep, " | "))
	out.WriteString(" |\n")

	for i := 1; i < len(rows); i++ {
		out.WriteString("| ")
		out.WriteString(strings.Join(escapePipes(rows[i]), " | "))
		out.WriteString(" |\n")
	}
	return out.String()
}

func tableRowToCells(full string, r *documentaipb.Document_Page_Table_TableRow) []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Cells))
	for _, c := range r.Cells {
		if c == nil || c.Layout == nil || c.Layout.TextAnchor == nil {
			out = append(out, "")
			continue
		}
		out = append(out, strings.TrimSpace(textFromAnchor(full, c.Layout.TextAnchor)))
	}
	return out
}

func escapePipes(row []string) []string {
	out := make([]string, len(row))
	for i, s := range row {
		out[i] = strings.ReplaceAll(s, "|", "\\|")
	}
	return out
}

func processorName(project, location, processorID, version string) string {
	project = strings.TrimSpace(project)
	location = strings.TrimSpace(location)
	processorID = strings.TrimSpace(processorID)
	version = strings.TrimSpace(version)

	if project == "" || location == "" || processorID == "" {
		return ""
	}
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if version != "" {
		return base + "/processorVersions/" + version
	}
	return base
}

