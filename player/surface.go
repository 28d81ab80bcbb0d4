package player

// Surface is where video ends up: an external player process in the
// CLI, a fake in tests.
type Surface interface {
	SetSource(url string) error
	Play() error
	Stop() error
}

type ManifestVariant struct {
	Uri        string `json:"uri"`
	Bandwidth  uint32 `json:"bandwidth"`
	Resolution string `json:"resolution,omitempty"`
}

// Manifest summarises a parsed HLS playlist.
type Manifest struct {
	Url            string            `json:"url"`
	Master         bool              `json:"master"`
	Variants       []ManifestVariant `json:"variants,omitempty"`
	Segments       int               `json:"segments,omitempty"`
	TargetDuration float64           `json:"targetDuration,omitempty"`
	SegmentUris    []string          `json:"-"`
}

// Decoder sits between a segmented stream and a Surface. Handlers are
// invoked from the decoder's own goroutine, never from inside LoadSource
// or AttachMedia, and never after Destroy returned. The attached surface
// is only a start condition; a decoder never sets its source.
type Decoder interface {
	LoadSource(url string)
	AttachMedia(s Surface)
	OnManifestParsed(func(Manifest))
	OnError(func(error))
	Destroy()
}

type DecoderFactory func() Decoder
