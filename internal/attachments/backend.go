// Package attachments tracks uploaded files referenced from migrated bodies
// and decides where each one lives at the destination.
//
// Bodies reference attachments with project-relative upload paths
// ("/uploads/<hash>/<name>"). During body rewriting each referenced origin
// is registered exactly once; after all entities are converted the caller
// drains the registry and transfers the bytes (or nothing, for the
// pass-through backend).
package attachments

import (
	"crypto/md5"
	"encoding/hex"
	"mime"
	"path"
	"strings"
)

// Metadata records where one attachment came from and where it goes.
type Metadata struct {
	Origin      string // project-relative source URL, e.g. "/uploads/0a1b/x.png"
	Destination string // final URL or storage key the rewritten link points at
	MimeType    string // best-effort, may be empty
}

// Backend decides the destination location for an attachment origin.
// Preprocess must be pure: the same origin always yields the same
// destination within a run. Byte transfer is not a backend concern; the
// caller drives it from the drained registry.
type Backend interface {
	Preprocess(origin string) Metadata
}

// PassthroughBackend rewrites attachment links to absolute URLs on the
// original host. No bytes are transferred; the links keep working for as
// long as the source project exists.
type PassthroughBackend struct {
	SourceHost  string // e.g. "https://gitlab.example.com"
	ProjectPath string // e.g. "group/project"
}

func (b *PassthroughBackend) Preprocess(origin string) Metadata {
	return Metadata{
		Origin:      origin,
		Destination: strings.TrimSuffix(b.SourceHost, "/") + "/" + b.ProjectPath + origin,
		MimeType:    mimeTypeOf(origin),
	}
}

// UploadBackend computes a content-addressed destination key for each
// attachment: a hash of the origin URL, preserving the original basename so
// downloaded files keep a recognizable name. The actual byte transfer
// happens later, driven by the drained registry.
type UploadBackend struct {
	BaseURL string // public base URL of the storage bucket
	Prefix  string // optional key namespace, e.g. "group/project"
}

func (b *UploadBackend) Preprocess(origin string) Metadata {
	return Metadata{
		Origin:      origin,
		Destination: strings.TrimSuffix(b.BaseURL, "/") + "/" + b.Key(origin),
		MimeType:    mimeTypeOf(origin),
	}
}

// Key returns the storage key for an origin: prefix/hash/basename.
func (b *UploadBackend) Key(origin string) string {
	sum := md5.Sum([]byte(origin))
	key := hex.EncodeToString(sum[:]) + "/" + path.Base(origin)
	if b.Prefix != "" {
		key = strings.Trim(b.Prefix, "/") + "/" + key
	}
	return key
}

func mimeTypeOf(origin string) string {
	return mime.TypeByExtension(path.Ext(origin))
}
