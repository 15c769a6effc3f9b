// Package covers materializes cover images and their resized renditions.
package covers

import (
	"context"
	"image"
	"io"
	"mime"
	"strings"

	"catalog-sync/pkg/domain"
	"catalog-sync/pkg/httpclient"
	"catalog-sync/pkg/wiki"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// ErrUnsupportedImage is returned when the image CDN doesn't answer with
	// WebP.
	ErrUnsupportedImage = eris.New("covers: image is not served as webp")
	// ErrDownload is returned for a non-2xx image response.
	ErrDownload = eris.New("covers: image download failed")
)

// ImageInfoSource streams image metadata for "File:" titles.
type ImageInfoSource interface {
	ImageInfo(files []string) *wiki.Stream[wiki.ImageInfo]
}

// Progress receives one tick per processed image.
type Progress interface {
	Add(n int) error
}

// Pipeline fills the cover fields of drafts.
type Pipeline struct {
	images   ImageInfoSource
	storage  Storage
	http     *httpclient.HTTPClient
	stats    *wiki.Stats
	logger   *zap.Logger
	progress Progress
}

// NewPipeline creates a new cover Pipeline.
func NewPipeline(images ImageInfoSource, storage Storage, http *httpclient.HTTPClient, stats *wiki.Stats, logger *zap.Logger) *Pipeline {
	if stats == nil {
		stats = &wiki.Stats{}
	}
	return &Pipeline{
		images:  images,
		storage: storage,
		http:    http,
		stats:   stats,
		logger:  logger.Named("covers"),
	}
}

// SetProgress installs a progress sink.
func (p *Pipeline) SetProgress(pr Progress) {
	p.progress = pr
}

// Run resolves the cover of every draft that names one. priors holds the
// cover state persisted by the previous run, keyed by media title.
func (p *Pipeline) Run(ctx context.Context, ws *domain.WorkingSet, priors map[string]domain.PriorCover) error {
	byFile := make(map[string][]*domain.Draft)
	var files []string
	for _, d := range ws.Drafts {
		if d.CoverSource == "" {
			continue
		}
		if _, ok := byFile[d.CoverSource]; !ok {
			files = append(files, "File:"+d.CoverSource)
		}
		byFile[d.CoverSource] = append(byFile[d.CoverSource], d)
	}

	p.logger.Info("fetching imageinfo", zap.Int("files", len(files)))
	stream := p.images.ImageInfo(files)
	for stream.Next(ctx) {
		info := stream.Value()
		requested := info.Title
		if info.NormalizedFrom != "" {
			requested = info.NormalizedFrom
		}
		drafts := byFile[strings.TrimPrefix(requested, "File:")]
		if len(drafts) == 0 {
			continue
		}
		if info.Missing || info.URL == "" {
			p.logger.Warn("cover image does not exist",
				zap.String("title", drafts[0].Title),
				zap.String("file", info.Title))
			continue
		}
		if err := p.cover(ctx, info, drafts, priors); err != nil {
			return err
		}
		if p.progress != nil {
			_ = p.progress.Add(1)
		}
	}
	if err := stream.Err(); err != nil {
		return eris.Wrap(err, "covers: fetch imageinfo")
	}
	return nil
}

func (p *Pipeline) cover(ctx context.Context, info wiki.ImageInfo, drafts []*domain.Draft, priors map[string]domain.PriorCover) error {
	title := drafts[0].Title
	name := WebPName(strings.TrimPrefix(info.Title, "File:"))
	prior, known := priors[title]

	var fields domain.PriorCover
	stale := !known || prior.Cover == "" || prior.CoverTimestamp < info.Timestamp
	if !stale {
		missing, err := p.anyMissing(ctx, name)
		if err != nil {
			return err
		}
		stale = missing
	}

	if stale {
		var err error
		fields, err = p.materialize(ctx, info, name, title)
		if err != nil {
			return err
		}
		if known && prior.Cover != "" && prior.Cover != name {
			p.logger.Info("deleting old cover",
				zap.String("old", prior.Cover),
				zap.String("new", name))
			for _, size := range Sizes {
				if err := p.storage.Delete(ctx, size, prior.Cover); err != nil {
					return err
				}
			}
		}
	} else {
		fields = prior
	}

	if err := ValidateHash(fields.CoverHash); err != nil {
		p.logger.Error("cover blurhash is invalid",
			zap.String("title", title),
			zap.String("file", info.Title),
			zap.Error(err))
	}

	for _, d := range drafts {
		d.Cover = fields.Cover
		d.CoverWidth = fields.CoverWidth
		d.CoverHeight = fields.CoverHeight
		d.CoverTimestamp = fields.CoverTimestamp
		d.CoverSha1 = fields.CoverSha1
		d.CoverHash = fields.CoverHash
	}
	return nil
}

func (p *Pipeline) anyMissing(ctx context.Context, name string) (bool, error) {
	for _, size := range Sizes {
		ok, err := p.storage.Exists(ctx, size, name)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
	}
	return false, nil
}

// materialize makes sure every rendition of the cover exists and returns the
// resulting cover fields.
func (p *Pipeline) materialize(ctx context.Context, info wiki.ImageInfo, name, title string) (domain.PriorCover, error) {
	data, err := p.full(ctx, info, name, title)
	if err != nil {
		return domain.PriorCover{}, err
	}
	img, err := decodeWebP(data)
	if err != nil {
		return domain.PriorCover{}, eris.Wrapf(err, "cover %q", name)
	}

	var thumb image.Image
	for _, size := range Sizes[1:] {
		variant := resize(img, widths[size])
		if size == Thumb {
			thumb = variant
		}
		exists, err := p.storage.Exists(ctx, size, name)
		if err != nil {
			return domain.PriorCover{}, err
		}
		if exists {
			continue
		}
		encoded, err := encodeWebP(variant)
		if err != nil {
			return domain.PriorCover{}, err
		}
		if err := p.storage.Write(ctx, size, name, encoded); err != nil {
			return domain.PriorCover{}, err
		}
		p.stats.StorageWrites++
	}

	hash, err := BlurHash(thumb)
	if err != nil {
		return domain.PriorCover{}, eris.Wrapf(err, "cover %q", name)
	}

	return domain.PriorCover{
		Title:          title,
		Cover:          name,
		CoverWidth:     img.Bounds().Dx(),
		CoverHeight:    img.Bounds().Dy(),
		CoverTimestamp: info.Timestamp,
		CoverSha1:      info.Sha1,
		CoverHash:      hash,
	}, nil
}

// full returns the full-size cover, from storage when present, else
// downloaded and stored.
func (p *Pipeline) full(ctx context.Context, info wiki.ImageInfo, name, title string) ([]byte, error) {
	exists, err := p.storage.Exists(ctx, Full, name)
	if err != nil {
		return nil, err
	}
	if exists {
		p.stats.StorageReads++
		return p.storage.Read(ctx, Full, name)
	}

	resp, err := p.http.Get(ctx, info.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "covers: download %q", info.URL)
	}
	defer resp.Body.Close()
	p.stats.Requests++

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, eris.Wrapf(ErrDownload, "%q: status %d", info.URL, resp.StatusCode)
	}
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType != "image/webp" {
		return nil, eris.Wrapf(ErrUnsupportedImage, "article %q, file %q, content type %q",
			title, name, resp.Header.Get("Content-Type"))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "covers: read %q", info.URL)
	}
	p.stats.ImageBytes += int64(len(data))
	p.logger.Info("received image",
		zap.String("file", info.Title),
		zap.String("size", humanize.Bytes(uint64(len(data)))))

	p.logger.Info("writing cover", zap.String("title", title), zap.String("cover", name))
	if err := p.storage.Write(ctx, Full, name, data); err != nil {
		return nil, err
	}
	p.stats.StorageWrites++
	return data, nil
}
