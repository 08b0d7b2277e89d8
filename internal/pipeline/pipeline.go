// Package pipeline orchestrates one preview pass: discover items flagged for
// processing, claim them, render preview artifacts, auto-tag, and post
// terminal status back to the content store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hallwaytech/previewd/internal/store"
	"github.com/hallwaytech/previewd/internal/termextract"
)

// Preview size classes. Small previews fit a 180x225 box; normal and large
// are bounded at 700 pixels wide with height derived from the aspect ratio.
const (
	SizeSmall  = "small"
	SizeNormal = "normal"
	SizeLarge  = "large"

	smallMaxWidth  = 180
	smallMaxHeight = 225
	normalMaxWidth = 700
	largeMaxWidth  = 700
)

// defaultPostTimeout bounds terminal property posts so a stuck repository
// cannot stall the rest of the batch.
const defaultPostTimeout = 20 * time.Second

// Item outcomes recorded in the run journal.
const (
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
	OutcomeIgnored   = "ignored"
)

// ContentStore is the remote repository surface the pipeline needs.
type ContentStore interface {
	ListNeedsProcessing(ctx context.Context) ([]store.ContentItem, error)
	GetMetadata(ctx context.Context, id string) (map[string]any, error)
	GetUserMeta(ctx context.Context, userID string) (store.UserMeta, error)
	DownloadBody(ctx context.Context, id, destPath string) error
	ClaimBatch(ctx context.Context, ids []string, owner string) error
	PostProperties(ctx context.Context, id string, props map[string]string, timeout time.Duration) error
	UploadPreview(ctx context.Context, id string, page int, sizeClass, filePath string) error
	PostTags(ctx context.Context, id string, tags []string) error
	CreateNotification(ctx context.Context, to, from, subject, body string) error
}

// DocumentConverter turns office documents into PDFs.
type DocumentConverter interface {
	ConvertToPDF(ctx context.Context, inputPath, outputPath string) error
}

// PageRasterizer renders PDF pages to JPEG files named <prefix><page>.jpg.
type PageRasterizer interface {
	RasterizePages(pdfPath, outputPrefix string, maxPages int) (int, error)
}

// Thumbnailer scales an image into a bounding box, preserving aspect ratio.
type Thumbnailer interface {
	Resize(inputPath, outputPath string, maxWidth, maxHeight int) error
}

// PDFRenderer renders web pages into a single PDF. Only needed when rendered
// document types are configured.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, urls []string, cookieName, cookieValue, outputPath string) error
}

// TermExtractor produces candidate tag terms from extracted text.
type TermExtractor interface {
	Process(text string) []termextract.ExtractedTerm
}

// RunJournal records pass history locally. All methods are optional
// best-effort bookkeeping; the pipeline logs and continues on journal errors.
type RunJournal interface {
	BeginRun(ctx context.Context, runID, workerID string) error
	RecordItem(ctx context.Context, runID, contentID, outcome string, pages int, elapsed time.Duration) error
	FinishRun(ctx context.Context, runID string, processed, failed int) error
}

// Deps are the pipeline's collaborators. Store, Converter, Rasterizer,
// Thumbnailer and ExtractText are required; the rest degrade gracefully when
// nil (no tagging, no journal, no rendered documents).
type Deps struct {
	Store       ContentStore
	Converter   DocumentConverter
	Rasterizer  PageRasterizer
	Thumbnailer Thumbnailer
	Renderer    PDFRenderer
	Terms       TermExtractor
	ExtractText func(path, mimetype string) (string, error)
	Journal     RunJournal
}

// Options tune one pipeline instance.
type Options struct {
	// BaseDir is the scratch root; downloads go under docs/<id> and
	// rendered artifacts under previews/<id>.
	BaseDir string

	// ForceTagging tags every document regardless of the owner's
	// auto-tagging preference.
	ForceTagging bool

	// MaxTags caps the tags applied per item. Defaults to 10.
	MaxTags int

	// Parallelism bounds concurrent item processing. Defaults to 1.
	Parallelism int

	// ReclaimOwn retries items this worker claimed on a previous pass but
	// never finished.
	ReclaimOwn bool

	// PostTimeout bounds each property post. Defaults to 20s.
	PostTimeout time.Duration

	MimeTable          *MimeTable
	IgnoreTypes        TypeSet
	FirstPageOnlyTypes TypeSet

	// RenderTypes are mimetypes whose canonical form is a set of web pages
	// rendered via the PDFRenderer rather than a downloadable body.
	RenderTypes  TypeSet
	ServerURL    string
	RenderCookie [2]string

	// NotifyFrom is the sender of tag notification messages.
	NotifyFrom string
}

// Stats summarizes one pass.
type Stats struct {
	Discovered int
	Claimed    int
	Processed  int
	Failed     int
	Ignored    int
}

// Pipeline runs preview passes. Safe for use by a single goroutine; item
// fan-out inside a pass is managed internally.
type Pipeline struct {
	deps     Deps
	opts     Options
	workerID string
	logger   *slog.Logger

	metaMu   sync.Mutex
	userMeta map[string]store.UserMeta
}

// New validates deps and builds a Pipeline. The worker identity is pid@host,
// which doubles as the advisory claim marker in the content store.
func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Store == nil || deps.Converter == nil || deps.Rasterizer == nil || deps.Thumbnailer == nil {
		return nil, fmt.Errorf("store, converter, rasterizer and thumbnailer are required")
	}
	if deps.ExtractText == nil && deps.Terms != nil {
		return nil, fmt.Errorf("tagging requires a text extractor")
	}
	if len(opts.RenderTypes) > 0 && deps.Renderer == nil {
		return nil, fmt.Errorf("rendered document types configured but no pdf renderer available")
	}
	if opts.BaseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if opts.MaxTags <= 0 {
		opts.MaxTags = 10
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.PostTimeout <= 0 {
		opts.PostTimeout = defaultPostTimeout
	}
	if opts.MimeTable == nil {
		opts.MimeTable = DefaultMimeTable()
	}
	if opts.IgnoreTypes == nil {
		opts.IgnoreTypes = DefaultIgnoreTypes()
	}

	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("resolving hostname: %w", err)
	}
	return &Pipeline{
		deps:     deps,
		opts:     opts,
		workerID: fmt.Sprintf("%d@%s", os.Getpid(), host),
		logger:   slog.Default(),
	}, nil
}

// WorkerID returns the identity used as the claim marker.
func (p *Pipeline) WorkerID() string { return p.workerID }

// Run performs one pass. A pass has no cross-item transactionality: each item
// reaches its own terminal state independently and a pass error only means
// discovery or claiming failed before any item was touched.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	items, err := p.deps.Store.ListNeedsProcessing(ctx)
	if err != nil {
		return stats, fmt.Errorf("discovering work: %w", err)
	}
	stats.Discovered = len(items)

	claimable := items[:0:0]
	for _, item := range items {
		switch {
		case item.ProcessedBy == "":
			claimable = append(claimable, item)
		case item.ProcessedBy == p.workerID && p.opts.ReclaimOwn:
			claimable = append(claimable, item)
		default:
			p.logger.Debug("skipping claimed item", "content_id", item.Path, "claimed_by", item.ProcessedBy)
		}
	}
	if len(claimable) == 0 {
		p.logger.Info("no claimable items", "discovered", stats.Discovered)
		return stats, nil
	}

	ids := make([]string, len(claimable))
	for i, item := range claimable {
		ids[i] = item.Path
	}
	if err := p.deps.Store.ClaimBatch(ctx, ids, p.workerID); err != nil {
		return stats, fmt.Errorf("claiming batch: %w", err)
	}
	stats.Claimed = len(claimable)
	p.logger.Info("claimed batch", "items", stats.Claimed, "worker", p.workerID)

	runID := uuid.New().String()
	if p.deps.Journal != nil {
		if err := p.deps.Journal.BeginRun(ctx, runID, p.workerID); err != nil {
			p.logger.Error("journal begin failed", "run_id", runID, "error", err)
		}
	}

	p.metaMu.Lock()
	p.userMeta = make(map[string]store.UserMeta)
	p.metaMu.Unlock()

	var statsMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Parallelism)
	for _, item := range claimable {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			start := time.Now()
			outcome, pages := p.processItem(gctx, item)

			statsMu.Lock()
			switch outcome {
			case OutcomeProcessed:
				stats.Processed++
			case OutcomeFailed:
				stats.Failed++
			case OutcomeIgnored:
				stats.Ignored++
			}
			statsMu.Unlock()

			if p.deps.Journal != nil {
				if err := p.deps.Journal.RecordItem(gctx, runID, item.Path, outcome, pages, time.Since(start)); err != nil {
					p.logger.Error("journal record failed", "content_id", item.Path, "error", err)
				}
			}
			return nil
		})
	}
	g.Wait()

	if p.deps.Journal != nil {
		if err := p.deps.Journal.FinishRun(ctx, runID, stats.Processed, stats.Failed); err != nil {
			p.logger.Error("journal finish failed", "run_id", runID, "error", err)
		}
	}
	p.logger.Info("pass complete",
		"processed", stats.Processed, "failed", stats.Failed, "ignored", stats.Ignored)
	return stats, nil
}

// processItem drives a single item to a terminal state: ignored (claim only),
// processed (previews uploaded, needsProcessing cleared) or failed
// (processingFailed set). Scratch directories are removed regardless of
// outcome.
func (p *Pipeline) processItem(ctx context.Context, item store.ContentItem) (outcome string, pages int) {
	logger := p.logger.With("content_id", item.Path)

	// Search results can lag behind the store. Refresh the fields that steer
	// processing from the item's live metadata before deciding anything.
	if meta, err := p.deps.Store.GetMetadata(ctx, item.Path); err != nil {
		logger.Warn("metadata refresh failed, using search result", "error", err)
	} else {
		if v, ok := meta[store.PropMimeType].(string); ok {
			item.MimeType = v
		}
		if v, ok := meta[store.PropFileExtension].(string); ok {
			item.FileExtension = v
		}
		if v, ok := meta[store.PropCreatedFor].(string); ok {
			item.CreatedFor = v
		}
	}

	if item.MimeType == "" || p.opts.IgnoreTypes.Contains(item.MimeType) {
		logger.Info("ignoring item", "mimetype", item.MimeType)
		return OutcomeIgnored, 0
	}

	docsDir := filepath.Join(p.opts.BaseDir, "docs", item.Path)
	previewsDir := filepath.Join(p.opts.BaseDir, "previews", item.Path)
	defer func() {
		for _, dir := range []string{docsDir, previewsDir} {
			if err := os.RemoveAll(dir); err != nil {
				logger.Error("scratch cleanup failed", "dir", dir, "error", err)
			}
		}
	}()

	pages, err := p.handleItem(ctx, item, docsDir, previewsDir, logger)
	if err != nil {
		logger.Warn("processing failed", "error", err)
		failProps := map[string]string{store.PropProcessingFailed: "true"}
		if postErr := p.deps.Store.PostProperties(ctx, item.Path, failProps, p.opts.PostTimeout); postErr != nil {
			// Leave needsProcessing set so another pass retries the item.
			logger.Error("failure status post failed", "error", postErr)
			return OutcomeFailed, pages
		}
		p.finishItem(ctx, item.Path, logger)
		return OutcomeFailed, pages
	}

	p.finishItem(ctx, item.Path, logger)
	logger.Info("item processed", "pages", pages)
	return OutcomeProcessed, pages
}

// finishItem posts the shared terminal properties: the processing timestamp
// and the cleared needs-processing flag.
func (p *Pipeline) finishItem(ctx context.Context, id string, logger *slog.Logger) {
	props := map[string]string{
		store.PropProcessedAt:     strconv.FormatInt(time.Now().UnixMilli(), 10),
		store.PropNeedsProcessing: "false",
	}
	if err := p.deps.Store.PostProperties(ctx, id, props, p.opts.PostTimeout); err != nil {
		logger.Error("terminal status post failed", "error", err)
	}
}

// handleItem does the actual preview work and posts the success properties.
func (p *Pipeline) handleItem(ctx context.Context, item store.ContentItem, docsDir, previewsDir string, logger *slog.Logger) (int, error) {
	if err := os.MkdirAll(previewsDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating previews dir: %w", err)
	}

	props := map[string]string{}

	var (
		pages     int
		bodyPath  string
		mimetype  = normalizeMimetype(item.MimeType)
		isImage   bool
		tagSource string
		tagType   string
	)

	switch {
	case p.opts.RenderTypes.Contains(mimetype):
		pdfPath := filepath.Join(docsDir, "rendered.pdf")
		if err := os.MkdirAll(docsDir, 0o755); err != nil {
			return 0, fmt.Errorf("creating docs dir: %w", err)
		}
		urls := p.pageURLs(item)
		if err := p.deps.Renderer.RenderPDF(ctx, urls, p.opts.RenderCookie[0], p.opts.RenderCookie[1], pdfPath); err != nil {
			return 0, fmt.Errorf("rendering pages: %w", err)
		}
		var err error
		pages, err = p.rasterizeAndUpload(ctx, item, pdfPath, previewsDir, mimetype)
		if err != nil {
			return pages, err
		}
		props[store.PropPageCount] = strconv.Itoa(pages)
		tagSource, tagType = pdfPath, "application/pdf"

	default:
		bodyPath = filepath.Join(docsDir, "body")
		if err := p.deps.Store.DownloadBody(ctx, item.Path, bodyPath); err != nil {
			return 0, fmt.Errorf("downloading body: %w", err)
		}

		sniffed, err := sniffMimetype(bodyPath)
		if err != nil {
			return 0, fmt.Errorf("sniffing content type: %w", err)
		}
		if sniffed != "" && sniffed != mimetype {
			logger.Debug("sniffed mimetype differs", "stored", mimetype, "sniffed", sniffed)
			mimetype = sniffed
			props[store.PropMimeType] = sniffed
		}

		ext := p.extensionFor(mimetype, item)
		props[store.PropFileExtension] = ext
		withExt := bodyPath + "." + ext
		if err := os.Rename(bodyPath, withExt); err != nil {
			return 0, fmt.Errorf("naming download: %w", err)
		}
		bodyPath = withExt
		isImage = strings.HasPrefix(mimetype, "image/")

		if isImage {
			if err := p.uploadImagePreviews(ctx, item.Path, bodyPath, previewsDir, ext); err != nil {
				return 0, err
			}
			pages = 1
		} else {
			pdfPath := bodyPath
			if mimetype != "application/pdf" {
				pdfPath = filepath.Join(docsDir, "converted.pdf")
				if err := p.deps.Converter.ConvertToPDF(ctx, bodyPath, pdfPath); err != nil {
					return 0, fmt.Errorf("converting to pdf: %w", err)
				}
			}
			pages, err = p.rasterizeAndUpload(ctx, item, pdfPath, previewsDir, mimetype)
			if err != nil {
				return pages, err
			}
			props[store.PropPageCount] = strconv.Itoa(pages)
		}
		tagSource, tagType = bodyPath, mimetype
	}

	// Page count and type corrections land first; hasPreview flips last so a
	// client never sees the flag without the metadata behind it.
	if len(props) > 0 {
		if err := p.deps.Store.PostProperties(ctx, item.Path, props, p.opts.PostTimeout); err != nil {
			return pages, fmt.Errorf("posting success properties: %w", err)
		}
	}
	hasPreview := map[string]string{store.PropHasPreview: "true"}
	if err := p.deps.Store.PostProperties(ctx, item.Path, hasPreview, p.opts.PostTimeout); err != nil {
		return pages, fmt.Errorf("posting preview flag: %w", err)
	}

	if !isImage {
		p.tagItem(ctx, item, tagSource, tagType, logger)
	}
	return pages, nil
}

// extensionFor resolves the file extension: the effective mimetype through
// the table first, then the item's stored extension, then a generic fallback.
func (p *Pipeline) extensionFor(mimetype string, item store.ContentItem) string {
	if ext := p.opts.MimeTable.ExtensionFor(mimetype); ext != "" {
		return ext
	}
	if ext := strings.TrimPrefix(item.FileExtension, "."); ext != "" {
		return ext
	}
	return "bin"
}

// uploadImagePreviews produces the two image artifacts: a small thumbnail and
// a normal-size preview, both as page 1.
func (p *Pipeline) uploadImagePreviews(ctx context.Context, id, imagePath, previewsDir, ext string) error {
	for _, size := range []struct {
		class      string
		maxW, maxH int
	}{
		{SizeSmall, smallMaxWidth, smallMaxHeight},
		{SizeNormal, normalMaxWidth, 0},
	} {
		out := filepath.Join(previewsDir, "page1."+size.class+"."+ext)
		if err := p.deps.Thumbnailer.Resize(imagePath, out, size.maxW, size.maxH); err != nil {
			return fmt.Errorf("resizing %s preview: %w", size.class, err)
		}
		if err := p.deps.Store.UploadPreview(ctx, id, 1, size.class, out); err != nil {
			return fmt.Errorf("uploading %s preview: %w", size.class, err)
		}
	}
	return nil
}

// rasterizeAndUpload renders PDF pages and uploads three resized artifacts
// per page. Every class goes through the thumbnailer, so even the large
// artifact stays within its width bound. A document that rasterizes to zero
// pages uploads nothing and is not an error.
func (p *Pipeline) rasterizeAndUpload(ctx context.Context, item store.ContentItem, pdfPath, previewsDir, mimetype string) (int, error) {
	maxPages := -1
	if p.opts.FirstPageOnlyTypes.Contains(mimetype) {
		maxPages = 1
	}

	prefix := filepath.Join(previewsDir, "page")
	pages, err := p.deps.Rasterizer.RasterizePages(pdfPath, prefix, maxPages)
	if err != nil {
		return 0, fmt.Errorf("rasterizing pages: %w", err)
	}

	for page := 1; page <= pages; page++ {
		raster := fmt.Sprintf("%s%d.jpg", prefix, page)
		for _, size := range []struct {
			class      string
			maxW, maxH int
		}{
			{SizeLarge, largeMaxWidth, 0},
			{SizeNormal, normalMaxWidth, 0},
			{SizeSmall, smallMaxWidth, smallMaxHeight},
		} {
			out := fmt.Sprintf("%s%d.%s.jpg", prefix, page, size.class)
			if err := p.deps.Thumbnailer.Resize(raster, out, size.maxW, size.maxH); err != nil {
				return pages, fmt.Errorf("resizing page %d %s: %w", page, size.class, err)
			}
			if err := p.deps.Store.UploadPreview(ctx, item.Path, page, size.class, out); err != nil {
				return pages, fmt.Errorf("uploading page %d %s: %w", page, size.class, err)
			}
		}
	}
	return pages, nil
}

var tagMessageTemplate = template.Must(template.New("tagmsg").Parse(
	`The following tags were automatically added to your content "{{.Path}}":
{{range .Tags}}  - {{.}}
{{end}}`))

// tagItem extracts text, selects tags and applies them. Tagging is best
// effort: any failure here is logged without failing the item.
func (p *Pipeline) tagItem(ctx context.Context, item store.ContentItem, path, mimetype string, logger *slog.Logger) {
	if p.deps.Terms == nil || item.CreatedFor == "" {
		return
	}
	meta, err := p.ownerMeta(ctx, item.CreatedFor)
	if err != nil {
		logger.Warn("owner metadata lookup failed", "owner", item.CreatedFor, "error", err)
		return
	}
	if !p.opts.ForceTagging && !meta.User.Properties.AutoTagging {
		return
	}

	text, err := p.deps.ExtractText(path, mimetype)
	if err != nil {
		logger.Warn("text extraction failed", "error", err)
		return
	}
	tags := termextract.SelectTags(p.deps.Terms.Process(text), p.opts.MaxTags)
	if len(tags) == 0 {
		return
	}
	if err := p.deps.Store.PostTags(ctx, item.Path, tags); err != nil {
		logger.Warn("tag post failed", "error", err)
		return
	}
	logger.Info("tags applied", "tags", tags)

	if meta.User.Properties.SendTagMsg {
		var body strings.Builder
		if err := tagMessageTemplate.Execute(&body, map[string]any{"Path": item.Path, "Tags": tags}); err != nil {
			logger.Error("building tag notification", "error", err)
			return
		}
		from := p.opts.NotifyFrom
		if from == "" {
			from = "admin"
		}
		if err := p.deps.Store.CreateNotification(ctx, item.CreatedFor, from, "Tags added to your content", body.String()); err != nil {
			logger.Warn("tag notification failed", "owner", item.CreatedFor, "error", err)
		}
	}
}

// ownerMeta caches user metadata for the duration of a pass so a batch of
// items with a shared owner costs one lookup.
func (p *Pipeline) ownerMeta(ctx context.Context, userID string) (store.UserMeta, error) {
	p.metaMu.Lock()
	meta, ok := p.userMeta[userID]
	p.metaMu.Unlock()
	if ok {
		return meta, nil
	}

	meta, err := p.deps.Store.GetUserMeta(ctx, userID)
	if err != nil {
		return store.UserMeta{}, err
	}
	p.metaMu.Lock()
	p.userMeta[userID] = meta
	p.metaMu.Unlock()
	return meta, nil
}

// pageURLs derives the rendered-page URLs for a structured document from its
// page references, in stable order. A document without structure renders as a
// single page at its own address.
func (p *Pipeline) pageURLs(item store.ContentItem) []string {
	var refs []string
	for _, v := range item.Structure {
		page, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if ref, ok := page["_ref"].(string); ok && ref != "" {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)

	base := strings.TrimRight(p.opts.ServerURL, "/")
	if len(refs) == 0 {
		return []string{base + "/p/" + item.Path + ".html"}
	}
	urls := make([]string, len(refs))
	for i, ref := range refs {
		urls[i] = base + "/p/" + ref + ".html"
	}
	return urls
}
