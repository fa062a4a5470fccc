package employee

import (
	"context"
	"io"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"hrdash/internal/platform/storage"
)

// Attachments manages the per-kind document slots of a project's records.
type Attachments struct {
	Schema Schema
	Store  Repository
	Files  Files
	Log    *logrus.Entry
}

func NewAttachments(schema Schema, store Repository, files Files, log *logrus.Entry) *Attachments {
	return &Attachments{Schema: schema, Store: store, Files: files, Log: log.WithField("project", schema.Project)}
}

// Upload is the metadata of a file accepted by the upload gate.
type Upload struct {
	Filename string
	MimeType string
	Content  io.Reader
}

// Upload stores the file and points the slot at it in one update. The
// previous file is removed after the write; a failed write removes the new
// file instead.
func (a *Attachments) Upload(ctx context.Context, id int64, rawKind string, upload Upload) (Record, DocumentSlot, error) {
	kind, err := a.Schema.DocumentKind(rawKind)
	if err != nil {
		return Record{}, DocumentSlot{}, err
	}
	if _, err := a.Store.Get(ctx, id); err != nil {
		return Record{}, DocumentSlot{}, err
	}

	obj, err := a.Files.Save(a.Schema.Project, string(kind), id, upload.Filename, upload.Content)
	if err != nil {
		return Record{}, DocumentSlot{}, errors.Wrap(ErrStorage, err.Error())
	}
	if _, err := a.Files.Stat(obj.Path); err != nil {
		a.discard(obj.Path, id, kind)
		return Record{}, DocumentSlot{}, errors.Wrap(ErrStorage, "stored file is not readable")
	}

	slot := DocumentSlot{
		Filename: displayName(upload.Filename, obj.Name),
		Filepath: obj.Path,
		MimeType: upload.MimeType,
		Size:     obj.Size,
	}
	fn, fp, mt, fs := SlotColumns(kind)
	before, after, err := a.Store.Update(ctx, id, func(Record) (map[string]any, error) {
		return map[string]any{fn: slot.Filename, fp: slot.Filepath, mt: slot.MimeType, fs: slot.Size}, nil
	})
	if err != nil {
		a.discard(obj.Path, id, kind)
		return Record{}, DocumentSlot{}, err
	}

	if previous, ok := before.Document(kind); ok && previous.Filepath != slot.Filepath {
		a.discard(previous.Filepath, id, kind)
	}
	return after, slot, nil
}

// Download opens the file behind a slot. An empty slot and a file missing on
// disk both report ErrNotFound.
func (a *Attachments) Download(ctx context.Context, id int64, rawKind string) (storage.File, DocumentSlot, error) {
	kind, err := a.Schema.DocumentKind(rawKind)
	if err != nil {
		return nil, DocumentSlot{}, err
	}
	rec, err := a.Store.Get(ctx, id)
	if err != nil {
		return nil, DocumentSlot{}, err
	}
	slot, ok := rec.Document(kind)
	if !ok {
		return nil, DocumentSlot{}, errors.Wrapf(ErrNotFound, "no %s document", kind)
	}
	f, err := a.Files.Open(slot.Filepath)
	if err != nil {
		a.Log.WithError(err).WithFields(logrus.Fields{
			"employeeId": id,
			"docType":    kind,
			"path":       slot.Filepath,
		}).Warn("stored document missing on disk")
		return nil, DocumentSlot{}, errors.Wrapf(ErrNotFound, "%s file missing", kind)
	}
	return f, slot, nil
}

// Remove clears the slot and then deletes the file. Clearing an empty slot
// succeeds.
func (a *Attachments) Remove(ctx context.Context, id int64, rawKind string) (Record, error) {
	kind, err := a.Schema.DocumentKind(rawKind)
	if err != nil {
		return Record{}, err
	}
	fn, fp, mt, fs := SlotColumns(kind)
	before, after, err := a.Store.Update(ctx, id, func(current Record) (map[string]any, error) {
		if _, ok := current.Document(kind); !ok {
			return nil, nil
		}
		return map[string]any{fn: nil, fp: nil, mt: nil, fs: nil}, nil
	})
	if err != nil {
		return Record{}, err
	}
	if previous, ok := before.Document(kind); ok {
		a.discard(previous.Filepath, id, kind)
	}
	return after, nil
}

func (a *Attachments) discard(path string, id int64, kind DocumentKind) {
	if err := a.Files.Remove(path); err != nil {
		a.Log.WithError(err).WithFields(logrus.Fields{
			"employeeId": id,
			"docType":    kind,
			"path":       path,
		}).Warn("stored document cleanup failed")
	}
}

func displayName(original, stored string) string {
	name := strings.TrimSpace(storage.SanitizeFileName(original))
	if name == "" || name == "file" {
		return stored
	}
	return name
}
