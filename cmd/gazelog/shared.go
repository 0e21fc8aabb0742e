package main

import (
	"context"
	"fmt"
	"time"

	"github.com/teslashibe/gazelog/internal/config"
	"github.com/teslashibe/gazelog/internal/log"
	"github.com/teslashibe/gazelog/pkg/catalog"
	"github.com/teslashibe/gazelog/pkg/upload"
)

// openCatalog opens the configured catalog. Recording continues without
// one, so callers treat a nil catalog as "not indexing".
func openCatalog(cfg config.Config) *catalog.Catalog {
	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		log.Warn("session catalog unavailable", "path", cfg.CatalogPath, "error", err)
		return nil
	}
	return cat
}

// destination builds the configured upload target. kind is "http",
// "drive" or "" to pick whichever is configured, preferring HTTP.
func destination(ctx context.Context, cfg config.UploadConfig, kind string) (upload.Destination, error) {
	if kind == "" {
		switch {
		case cfg.Endpoint != "":
			kind = "http"
		case cfg.DriveFolderID != "" || cfg.DriveCredentialsPath != "":
			kind = "drive"
		default:
			return nil, nil
		}
	}

	switch kind {
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("upload endpoint not configured (GAZELOG_UPLOAD_ENDPOINT)")
		}
		return upload.NewHTTPDestination(cfg.Endpoint, cfg.AuthToken), nil
	case "drive":
		d, err := upload.NewDriveDestination(ctx, upload.DriveConfig{
			CredentialsPath: cfg.DriveCredentialsPath,
			TokenPath:       cfg.DriveTokenPath,
			FolderID:        cfg.DriveFolderID,
		})
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown upload destination %q (want http or drive)", kind)
	}
}

// uploadPipeline runs a worker that uploads finished logs and records the
// outcome in the catalog.
type uploadPipeline struct {
	worker *upload.Worker
	dest   upload.Destination
	cancel context.CancelFunc
	done   chan struct{}
}

func startUploads(dest upload.Destination, cat *catalog.Catalog) *uploadPipeline {
	ctx, cancel := context.WithCancel(context.Background())
	p := &uploadPipeline{
		worker: upload.NewWorker(upload.DefaultConfig()),
		dest:   dest,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if cat != nil {
		p.worker.OnDone(func(r upload.Result) {
			if !r.OK() {
				return
			}
			if err := cat.MarkUploaded(context.Background(), r.Path, r.Location, time.Now()); err != nil {
				log.Warn("failed to mark upload in catalog", "path", r.Path, "error", err)
			}
		})
	}
	go func() {
		p.worker.Run(ctx)
		close(p.done)
	}()
	return p
}

// close stops the worker and waits for it to exit.
func (p *uploadPipeline) close() {
	p.cancel()
	<-p.done
}
