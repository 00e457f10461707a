package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
)

var ErrUnsupportedType = errors.New("only JPG/PNG images are supported")

// ImageFile is an uploaded file as the client declared it.
type ImageFile struct {
	Name     string
	MIMEType string
	Data     []byte
}

// DecodeError reports bytes that do not decode as an image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ResolveMIMEType returns the declared type, or the sniffed one when the client
// did not declare anything useful.
func ResolveMIMEType(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if len(data) == 0 {
		return declared
	}
	return mimetype.Detect(data).String()
}

func IsSupportedType(mimeType string) bool {
	switch mimeType {
	case MIMEJPEG, MIMEPNG:
		return true
	}
	return false
}

// ValidateFile rejects anything that is not a JPEG or PNG by declared type.
func ValidateFile(file ImageFile) error {
	if !IsSupportedType(file.MIMEType) {
		return ErrUnsupportedType
	}
	return nil
}

// Decode turns file bytes into a bitmap.
func Decode(file ImageFile) (image.Image, error) {
	if len(file.Data) == 0 {
		return nil, &DecodeError{Err: errors.New("empty image data")}
	}
	img, _, err := image.Decode(bytes.NewReader(file.Data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("image has zero size %dx%d", b.Dx(), b.Dy())}
	}
	return img, nil
}
