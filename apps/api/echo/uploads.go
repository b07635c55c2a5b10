package echoapi

import (
	"mime/multipart"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fundisha/backend/core"
)

// saveUpload streams a multipart file into the object store under a
// collision-free key and returns its public URL.
func saveUpload(ctx echo.Context, storage core.FileStorage, prefix string, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", errors.Wrap(err, "opening upload")
	}
	defer src.Close()

	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	key := prefix + "/" + uuid.New().String() + filepath.Ext(fh.Filename)
	return storage.Save(ctx.Request().Context(), key, contentType, src)
}
