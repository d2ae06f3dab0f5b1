package pathgen

// mimeExtensions maps content types to file extensions for uploads that
// arrive without one. Unknown types fall back to "bin".
var mimeExtensions = map[string]string{
	"application/gzip":              "gz",
	"application/json":              "json",
	"application/msword":            "doc",
	"application/octet-stream":      "bin",
	"application/pdf":               "pdf",
	"application/rtf":               "rtf",
	"application/vnd.ms-excel":      "xls",
	"application/vnd.ms-powerpoint": "ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "pptx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         "xlsx",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   "docx",
	"application/xml":       "xml",
	"application/zip":       "zip",
	"audio/mpeg":            "mp3",
	"audio/ogg":             "ogg",
	"audio/wav":             "wav",
	"image/bmp":             "bmp",
	"image/gif":             "gif",
	"image/jpeg":            "jpg",
	"image/png":             "png",
	"image/svg+xml":         "svg",
	"image/tiff":            "tiff",
	"image/webp":            "webp",
	"text/calendar":         "ics",
	"text/css":              "css",
	"text/csv":              "csv",
	"text/html":             "html",
	"text/plain":            "txt",
	"video/mp4":             "mp4",
	"video/mpeg":            "mpeg",
	"video/quicktime":       "mov",
	"video/webm":            "webm",
	"video/x-msvideo":       "avi",
	"message/rfc822":        "eml",
	"application/x-tar":     "tar",
	"application/x-7z-compressed": "7z",
}

// ExtensionForMime returns the extension for a content type, "bin" when
// unknown or empty.
func ExtensionForMime(mimeType string) string {
	if ext, ok := mimeExtensions[mimeType]; ok {
		return ext
	}
	return "bin"
}
