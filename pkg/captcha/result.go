package captcha

import (
	"bytes"
	"encoding/base64"
	"image"
	"io"
	"time"

	"github.com/disintegration/imaging"
)

// MediaType is the content type of [Result.PNG].
const MediaType = "image/png"

// Result is one synthesized captcha. Image is exactly Width×Height pixels and
// PNG is its lossless encoding.
type Result struct {
	Challenge string
	Image     *image.NRGBA
	PNG       []byte
	Stats     Stats
}

// Stats records how long each pipeline stage took.
type Stats struct {
	WordTime       time.Duration
	BackgroundTime time.Duration
	TextTime       time.Duration
	FilterTime     time.Duration
	EncodeTime     time.Duration
	Total          time.Duration
}

// DataURI returns the image as a base64 data URI suitable for an <img> src.
func (r *Result) DataURI() string {
	return "data:" + MediaType + ";base64," + base64.StdEncoding.EncodeToString(r.PNG)
}

// WriteTo streams the PNG bytes to w.
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.PNG)
	return int64(n), err
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
