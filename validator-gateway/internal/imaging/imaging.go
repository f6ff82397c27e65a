// Package imaging normalises uploaded images before they are forwarded: the
// upload is decoded (which rejects non-images) and encoded again in the format it
// arrived in.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage is returned when the upload is not a decodable image or
// exceeds the decode limits.
var ErrUnsupportedImage = errors.New("unsupported or corrupt image")

const jpegQuality = 90

// Limits bounds the memory a single decode may allocate. Zero fields take the
// DefaultLimits value.
type Limits struct {
	// MaxPixels caps width*height, summed over every frame for gifs.
	MaxPixels int64
	MaxFrames int
}

var DefaultLimits = Limits{
	MaxPixels: 25_000_000,
	MaxFrames: 500,
}

func (l Limits) withDefaults() Limits {
	if l.MaxPixels <= 0 {
		l.MaxPixels = DefaultLimits.MaxPixels
	}
	if l.MaxFrames <= 0 {
		l.MaxFrames = DefaultLimits.MaxFrames
	}
	return l
}

// Reencode decodes data and encodes it again in its detected format. WebP has no
// encoder available, so a WebP upload is validated and returned unchanged.
// The header is checked against lim before any pixel data is decoded.
func Reencode(data []byte, lim Limits) ([]byte, string, error) {
	lim = lim.withDefaults()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: empty %dx%d canvas", ErrUnsupportedImage, cfg.Width, cfg.Height)
	}
	pixels := int64(cfg.Width) * int64(cfg.Height)
	if pixels > lim.MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUnsupportedImage, cfg.Width, cfg.Height, lim.MaxPixels)
	}

	var buf bytes.Buffer
	switch format {
	case "gif":
		frames, err := countGIFFrames(data)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
		}
		if frames > lim.MaxFrames {
			return nil, "", fmt.Errorf("%w: %d frames exceeds %d", ErrUnsupportedImage, frames, lim.MaxFrames)
		}
		if int64(frames)*pixels > lim.MaxPixels {
			return nil, "", fmt.Errorf("%w: %d frames of %dx%d exceeds %d pixels", ErrUnsupportedImage, frames, cfg.Width, cfg.Height, lim.MaxPixels)
		}
		// Keep every frame of animated gifs.
		anim, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
		}
		if err := gif.EncodeAll(&buf, anim); err != nil {
			return nil, "", fmt.Errorf("encode gif: %w", err)
		}
		return buf.Bytes(), format, nil
	case "webp":
		if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
		}
		return data, format, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	case "bmp":
		err = bmp.Encode(&buf, img)
	case "tiff":
		err = tiff.Encode(&buf, img, nil)
	default:
		return nil, "", fmt.Errorf("%w: format %q", ErrUnsupportedImage, format)
	}
	if err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), format, nil
}

// ReencodeBase64 is Reencode followed by standard base64 encoding.
func ReencodeBase64(data []byte, lim Limits) (string, string, error) {
	out, format, err := Reencode(data, lim)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(out), format, nil
}

// countGIFFrames walks the gif block structure without decompressing any
// frame and returns the number of image descriptors.
func countGIFFrames(data []byte) (int, error) {
	errTruncated := errors.New("gif: truncated block structure")
	const headerLen = 6 + 7
	if len(data) < headerLen {
		return 0, errTruncated
	}
	pos := headerLen
	if flags := data[10]; flags&0x80 != 0 {
		pos += 3 << ((flags & 0x07) + 1)
	}

	skipSubBlocks := func() error {
		for {
			if pos >= len(data) {
				return errTruncated
			}
			n := int(data[pos])
			pos++
			if n == 0 {
				return nil
			}
			pos += n
		}
	}

	frames := 0
	for {
		if pos >= len(data) {
			return 0, errTruncated
		}
		switch data[pos] {
		case 0x21: // extension: introducer, label, sub-blocks
			pos += 2
			if err := skipSubBlocks(); err != nil {
				return 0, err
			}
		case 0x2C: // image descriptor
			if pos+10 > len(data) {
				return 0, errTruncated
			}
			flags := data[pos+9]
			pos += 10
			if flags&0x80 != 0 {
				pos += 3 << ((flags & 0x07) + 1)
			}
			pos++ // LZW minimum code size
			if err := skipSubBlocks(); err != nil {
				return 0, err
			}
			frames++
		case 0x3B: // trailer
			return frames, nil
		default:
			return 0, fmt.Errorf("gif: unknown block 0x%02x", data[pos])
		}
	}
}
