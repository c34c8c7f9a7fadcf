package ipernity

import (
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/bluescreen10/ipernity/api"
)

// forwardedHeaders are copied from the media server so that browsers can
// cache proxied files.
var forwardedHeaders = []string{"Cache-Control", "ETag", "Last-Modified"}

// DocHandler streams a document's media from Ipernity. It expects the
// {doc_id} and {label} path values; label "original" selects the original
// file, anything else the thumbnail of that label.
func (ip *Ipernity) DocHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		docID, label := r.PathValue("doc_id"), r.PathValue("label")
		ip.logger.Debugw("proxying doc", "doc", docID, "label", label)

		a := ip.API(r)
		res, err := a.Call(r.Context(), "doc.getMedias", api.Params{"doc_id": docID})
		if api.IsCode(err, api.CodeNotFound) {
			http.Error(w, "Document not found.", http.StatusNotFound)
			return
		}
		if err != nil {
			ip.onError(w, r, err)
			return
		}

		mediaURL, filename, ok := findMedia(res, docID, label)
		if !ok {
			http.Error(w, "Media not found.", http.StatusNotFound)
			return
		}

		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, mediaURL, nil)
		if err != nil {
			ip.onError(w, r, err)
			return
		}
		resp, err := a.Client().HTTPClient().Do(req)
		if err != nil {
			ip.onError(w, r, fmt.Errorf("fetching media: %w", err))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			http.Error(w, fmt.Sprintf("upstream returned %d", resp.StatusCode), http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
		for _, h := range forwardedHeaders {
			if v := resp.Header.Get(h); v != "" {
				w.Header().Set(h, v)
			}
		}
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": filename}))
		if resp.ContentLength >= 0 {
			w.Header().Set("Content-Length", fmt.Sprint(resp.ContentLength))
		}
		if _, err := io.Copy(w, resp.Body); err != nil {
			ip.logger.Warnw("streaming media interrupted", "doc", docID, "error", err)
		}
	})
}

// findMedia picks the URL and download name of a label in a
// doc.getMedias reply.
func findMedia(res api.Response, docID, label string) (mediaURL, filename string, ok bool) {
	doc := res.Map("doc")
	if doc == nil {
		doc = res
	}

	if label == "original" {
		orig := doc.Map("original")
		if orig == nil || orig.String("url") == "" {
			return "", "", false
		}
		return orig.String("url"), orig.String("filename"), true
	}

	for _, t := range doc.Map("thumbs").Slice("thumb") {
		thumb := api.Response(asMap(t))
		if thumb.String("label") == label {
			return thumb.String("url"), fmt.Sprintf("%s.%s%s", docID, label, thumb.String("ext")), true
		}
	}
	return "", "", false
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
