package player

import (
	"io"
	"net/url"

	"github.com/grafov/m3u8"
	"github.com/pkg/errors"
)

var ErrEmptyManifest = errors.New("manifest has no variants or segments")

// ParseManifest decodes a master or media playlist read from r.
// Variant and segment URIs are resolved against src.
func ParseManifest(src string, r io.Reader) (Manifest, error) {
	p, listType, err := m3u8.DecodeFrom(r, false)
	if err != nil {
		return Manifest{}, errors.WithMessagef(err, "decoding manifest %s", src)
	}

	m := Manifest{Url: src}
	switch listType {
	case m3u8.MASTER:
		master := p.(*m3u8.MasterPlaylist)
		m.Master = true
		for _, v := range master.Variants {
			if v == nil {
				continue
			}
			m.Variants = append(m.Variants, ManifestVariant{
				Uri:        resolveUri(src, v.URI),
				Bandwidth:  v.Bandwidth,
				Resolution: v.Resolution,
			})
		}
		if len(m.Variants) == 0 {
			return Manifest{}, errors.WithMessagef(ErrEmptyManifest, "%s", src)
		}
	case m3u8.MEDIA:
		media := p.(*m3u8.MediaPlaylist)
		m.TargetDuration = media.TargetDuration
		for _, seg := range media.Segments {
			if seg == nil {
				break
			}
			m.SegmentUris = append(m.SegmentUris, resolveUri(src, seg.URI))
		}
		m.Segments = len(m.SegmentUris)
		if m.Segments == 0 {
			return Manifest{}, errors.WithMessagef(ErrEmptyManifest, "%s", src)
		}
	}
	return m, nil
}

func resolveUri(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
