package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-image-detector/internal/transport/http/response"
	"ai-image-detector/internal/vision"
)

const imageField = "image"

var errUploadTooLarge = errors.New("image too large")

// readUpload reads the multipart "image" field. The MIME type is taken from
// the part header and sniffed when the client did not send a usable one.
func readUpload(c *gin.Context, maxBytes int64) (vision.ImageFile, error) {
	header, err := c.FormFile(imageField)
	if err != nil {
		return vision.ImageFile{}, fmt.Errorf("missing image file (form field '%s')", imageField)
	}
	if maxBytes > 0 && header.Size > maxBytes {
		return vision.ImageFile{}, fmt.Errorf("%w (max %d bytes)", errUploadTooLarge, maxBytes)
	}

	f, err := header.Open()
	if err != nil {
		return vision.ImageFile{}, errors.New("failed to open uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return vision.ImageFile{}, errors.New("failed to read image")
	}

	return vision.ImageFile{
		Name:     header.Filename,
		MIMEType: vision.ResolveMIMEType(header.Header.Get("Content-Type"), data),
		Data:     data,
	}, nil
}

func uploadError(c *gin.Context, err error) {
	if errors.Is(err, errUploadTooLarge) {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeBadRequest, err.Error())
		return
	}
	response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
}
