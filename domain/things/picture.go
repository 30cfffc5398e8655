package things

import (
	"net/http"
	"strings"
)

// pictureTypes maps accepted image content types to file extensions.
var pictureTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// DetectPicture sniffs data and returns its content type and extension.
// ok is false for anything that is not an accepted image type.
func DetectPicture(data []byte) (contentType, ext string, ok bool) {
	contentType = http.DetectContentType(data)
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	ext, ok = pictureTypes[contentType]
	return contentType, ext, ok
}
