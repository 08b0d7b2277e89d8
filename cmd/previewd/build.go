package main

import (
	"fmt"
	"os"

	"github.com/hallwaytech/previewd/internal/config"
	"github.com/hallwaytech/previewd/internal/convert"
	"github.com/hallwaytech/previewd/internal/journal"
	"github.com/hallwaytech/previewd/internal/pipeline"
	"github.com/hallwaytech/previewd/internal/preview"
	"github.com/hallwaytech/previewd/internal/store"
	"github.com/hallwaytech/previewd/internal/termextract"
	"github.com/hallwaytech/previewd/internal/textextract"
)

// buildPipeline wires the pipeline from configuration. The returned cleanup
// closes the journal.
func buildPipeline(cfg config.Config) (*pipeline.Pipeline, *journal.Journal, func(), error) {
	client, err := store.New(cfg.Server.URL, cfg.Server.ContentURL, cfg.Server.User, cfg.Server.Password)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building store client: %w", err)
	}

	if err := os.MkdirAll(cfg.Worker.BaseDir, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("creating base directory: %w", err)
	}

	tagger, err := buildTagger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	extractor := termextract.NewExtractor(tagger, termextract.Filter{
		SingleStrengthMinOccur: cfg.Tagging.SingleStrengthOccurs,
		MinStrength:            1,
		MaxStrength:            2,
		MinLength:              cfg.Tagging.MinTermLength,
		MaxLength:              cfg.Tagging.MaxTermLength,
	})

	jrnl, err := journal.Open(cfg.Status.DataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening journal: %w", err)
	}

	deps := pipeline.Deps{
		Store:       client,
		Converter:   convert.NewOfficeClient(cfg.Converter.Host, cfg.Converter.Port),
		Rasterizer:  &convert.Rasterizer{},
		Thumbnailer: &preview.Renderer{},
		Terms:       extractor,
		ExtractText: textextract.ForFile,
		Journal:     jrnl,
	}

	// wkhtmltopdf is only required when rendered document types are
	// configured; a missing binary is then a startup error, not a per-item
	// one.
	if len(cfg.Worker.RenderTypes) > 0 {
		renderer, err := convert.NewHTMLRenderer()
		if err != nil {
			jrnl.Close()
			return nil, nil, nil, err
		}
		deps.Renderer = renderer
	}

	mimeTable := pipeline.DefaultMimeTable()
	if cfg.Worker.MimeTypesFile != "" {
		if mimeTable, err = pipeline.LoadMimeTable(cfg.Worker.MimeTypesFile); err != nil {
			jrnl.Close()
			return nil, nil, nil, err
		}
	}
	ignoreTypes, err := parseTypeOptions(cfg.Worker.IgnoreTypesFile, pipeline.DefaultIgnoreTypes(), nil)
	if err != nil {
		jrnl.Close()
		return nil, nil, nil, err
	}

	// A cookie value makes wkhtmltopdf fetch pages as an authenticated
	// session; without one only public pages render.
	var renderCookie [2]string
	if cfg.Worker.RenderCookieValue != "" {
		renderCookie = [2]string{cfg.Worker.RenderCookieName, cfg.Worker.RenderCookieValue}
	}

	p, err := pipeline.New(deps, pipeline.Options{
		BaseDir:            cfg.Worker.BaseDir,
		ForceTagging:       cfg.Tagging.Force,
		MaxTags:            cfg.Tagging.MaxTags,
		Parallelism:        cfg.Worker.Parallelism,
		ReclaimOwn:         cfg.Worker.ReclaimOwn,
		PostTimeout:        cfg.Worker.PostTimeout.Std(),
		MimeTable:          mimeTable,
		IgnoreTypes:        ignoreTypes,
		FirstPageOnlyTypes: pipeline.NewTypeSet(cfg.Worker.FirstPageOnlyTypes...),
		RenderTypes:        pipeline.NewTypeSet(cfg.Worker.RenderTypes...),
		ServerURL:          cfg.Server.URL,
		RenderCookie:       renderCookie,
		NotifyFrom:         cfg.Tagging.NotifyFrom,
	})
	if err != nil {
		jrnl.Close()
		return nil, nil, nil, fmt.Errorf("building pipeline: %w", err)
	}
	return p, jrnl, func() { jrnl.Close() }, nil
}

func buildTagger(cfg config.Config) (*termextract.Tagger, error) {
	if cfg.Tagging.LexiconFile != "" {
		tagger, err := termextract.NewTaggerFromFile(cfg.Tagging.LexiconFile)
		if err != nil {
			return nil, fmt.Errorf("loading lexicon: %w", err)
		}
		return tagger, nil
	}
	tagger, err := termextract.NewTagger()
	if err != nil {
		return nil, fmt.Errorf("loading embedded lexicon: %w", err)
	}
	return tagger, nil
}
