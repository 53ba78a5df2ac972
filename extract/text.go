package extract

// extractText handles plain text and markdown. Safe decode never fails, so
// this backend cannot reject content; the input media type is echoed back.
func extractText(data []byte, mediaType, charset string) *Result {
	return &Result{
		Content:  SafeDecode(data, charset),
		MimeType: mediaType,
		Metadata: Metadata{},
	}
}
