package forwarder

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
)

var ErrUnsupportedMedia = errors.New("unsupported media type")

// MediaCopier turns received media into media that can be sent again. The
// returned cleanup removes any temporary files and must always be called.
type MediaCopier interface {
	Prepare(ctx context.Context, media tg.MessageMediaClass) (tg.InputMediaClass, func(), error)
}

// fileCopier downloads media into dir and uploads it again.
type fileCopier struct {
	api        *tg.Client
	dir        string
	downloader *downloader.Downloader
	uploader   *uploader.Uploader
}

func newFileCopier(api *tg.Client, dir string) *fileCopier {
	if dir == "" {
		dir = os.TempDir()
	}
	return &fileCopier{
		api:        api,
		dir:        dir,
		downloader: downloader.NewDownloader(),
		uploader:   uploader.NewUploader(api),
	}
}

func (c *fileCopier) Prepare(ctx context.Context, media tg.MessageMediaClass) (tg.InputMediaClass, func(), error) {
	src, err := mediaSource(media)
	if err != nil {
		return nil, func() {}, err
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, func() {}, errors.Wrap(err, "create media dir")
	}
	path := filepath.Join(c.dir, uuid.NewString()+src.ext)
	cleanup := func() { _ = os.Remove(path) }

	if _, err := c.downloader.Download(c.api, src.location).ToPath(ctx, path); err != nil {
		cleanup()
		return nil, func() {}, errors.Wrap(err, "download media")
	}

	file, err := c.uploader.FromPath(ctx, path)
	if err != nil {
		cleanup()
		return nil, func() {}, errors.Wrap(err, "upload media")
	}

	return src.build(file), cleanup, nil
}

type mediaSpec struct {
	location tg.InputFileLocationClass
	ext      string
	build    func(file tg.InputFileClass) tg.InputMediaClass
}

// mediaSource describes how to fetch and re-send photos and documents.
// Everything else (polls, geo, contacts, web pages) is unsupported.
func mediaSource(media tg.MessageMediaClass) (*mediaSpec, error) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		// Expired self-destructing media arrives without the photo.
		if m.Photo == nil {
			return nil, errors.Wrap(ErrUnsupportedMedia, "no photo")
		}
		photo, ok := m.Photo.AsNotEmpty()
		if !ok {
			return nil, errors.Wrap(ErrUnsupportedMedia, "empty photo")
		}
		size := largestPhotoSize(photo.Sizes)
		if size == "" {
			return nil, errors.Wrap(ErrUnsupportedMedia, "no downloadable photo size")
		}
		spoiler := m.Spoiler
		return &mediaSpec{
			location: &tg.InputPhotoFileLocation{
				ID:            photo.ID,
				AccessHash:    photo.AccessHash,
				FileReference: photo.FileReference,
				ThumbSize:     size,
			},
			ext: ".jpg",
			build: func(file tg.InputFileClass) tg.InputMediaClass {
				return &tg.InputMediaUploadedPhoto{File: file, Spoiler: spoiler}
			},
		}, nil

	case *tg.MessageMediaDocument:
		if m.Document == nil {
			return nil, errors.Wrap(ErrUnsupportedMedia, "no document")
		}
		doc, ok := m.Document.AsNotEmpty()
		if !ok {
			return nil, errors.Wrap(ErrUnsupportedMedia, "empty document")
		}
		spoiler := m.Spoiler
		return &mediaSpec{
			location: &tg.InputDocumentFileLocation{
				ID:            doc.ID,
				AccessHash:    doc.AccessHash,
				FileReference: doc.FileReference,
			},
			ext: documentExt(doc),
			build: func(file tg.InputFileClass) tg.InputMediaClass {
				return &tg.InputMediaUploadedDocument{
					File:       file,
					MimeType:   doc.MimeType,
					Attributes: doc.Attributes,
					Spoiler:    spoiler,
				}
			},
		}, nil

	default:
		return nil, errors.Wrapf(ErrUnsupportedMedia, "%T", media)
	}
}

// largestPhotoSize returns the type letter of the biggest downloadable size.
func largestPhotoSize(sizes []tg.PhotoSizeClass) string {
	var (
		best    string
		bestDim int
	)
	for _, s := range sizes {
		var dim int
		var typ string
		switch size := s.(type) {
		case *tg.PhotoSize:
			dim, typ = max(size.W, size.H), size.Type
		case *tg.PhotoSizeProgressive:
			dim, typ = max(size.W, size.H), size.Type
		default:
			continue
		}
		if dim > bestDim {
			bestDim, best = dim, typ
		}
	}
	return best
}

func documentExt(doc *tg.Document) string {
	for _, a := range doc.Attributes {
		if attr, ok := a.(*tg.DocumentAttributeFilename); ok {
			if ext := filepath.Ext(attr.FileName); ext != "" && len(ext) <= 10 && !strings.ContainsAny(ext, `/\`) {
				return ext
			}
		}
	}
	if i := strings.IndexByte(doc.MimeType, '/'); i >= 0 {
		sub := doc.MimeType[i+1:]
		if j := strings.IndexByte(sub, ';'); j >= 0 {
			sub = sub[:j]
		}
		sub = strings.TrimSpace(sub)
		if sub != "" && len(sub) < 10 && !strings.ContainsAny(sub, `/\ `) {
			return "." + sub
		}
	}
	return ".bin"
}
