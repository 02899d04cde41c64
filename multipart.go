package littlewebserver

import (
	"io"
	"io/ioutil"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
)

// parseMultipartBody streams every file part of a multipart/form-data body
// to a temp file under <tempRoot>/<host-name-or-"default">/<uuid>, per spec
// §4.2 and §6's temp filesystem layout. Non-file parts are collected into
// form, keyed by field name. The caller is responsible for deleting the
// returned UploadedFiles on every request exit path (spec §3's "On
// completion, uploaded temp files are deleted").
func parseMultipartBody(body io.Reader, boundary, host, tempRoot string, c *coffer) (files []*UploadedFile, form map[string][]string, err error) {
	host = sanitizeHostDir(host)

	dir := filepath.Join(tempRoot, host)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nil, err
	}

	mr := multipart.NewReader(body, boundary)
	form = map[string][]string{}

	for {
		part, perr := mr.NextPart()
		if perr == io.EOF {
			break
		}
		if perr != nil {
			cleanupPartialUploads(files)
			return nil, nil, &BadRequestError{Reason: "malformed multipart body: " + perr.Error()}
		}

		fileName := part.FileName()
		if fileName == "" {
			b, rerr := ioutil.ReadAll(io.LimitReader(part, 1<<20))
			part.Close()
			if rerr != nil {
				cleanupPartialUploads(files)
				return nil, nil, &BadRequestError{Reason: "reading form field: " + rerr.Error()}
			}
			form[part.FormName()] = append(form[part.FormName()], string(b))
			continue
		}

		id, uerr := newSessionID()
		if uerr != nil {
			part.Close()
			cleanupPartialUploads(files)
			return nil, nil, uerr
		}

		dest := filepath.Join(dir, id)
		f, cerr := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if cerr != nil {
			part.Close()
			cleanupPartialUploads(files)
			return nil, nil, cerr
		}

		n, werr := io.Copy(f, part)
		f.Close()
		part.Close()
		if werr != nil {
			os.Remove(dest)
			cleanupPartialUploads(files)
			return nil, nil, &BadRequestError{Reason: "streaming upload: " + werr.Error()}
		}

		ct := part.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		} else if mt, _, err := mime.ParseMediaType(ct); err == nil {
			ct = mt
		}

		uf := &UploadedFile{
			Path:         dest,
			FieldName:    part.FormName(),
			OriginalName: fileName,
			ContentType:  ct,
			Size:         n,
		}
		files = append(files, uf)
		if c != nil {
			c.watch(dest)
		}
	}

	return files, form, nil
}

func cleanupPartialUploads(files []*UploadedFile) {
	for _, f := range files {
		os.Remove(f.Path)
	}
}

// sanitizeHostDir reduces an arbitrary Host header value to a safe
// path-component for the temp filesystem layout in spec §6, falling back
// to "default" for an empty or unusable host (matching the grammar
// "<host-name-or-\"default\">").
func sanitizeHostDir(host string) string {
	if host == "" {
		return "default"
	}
	clean := make([]byte, 0, len(host))
	for i := 0; i < len(host); i++ {
		b := host[i]
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9', b == '.', b == '-', b == '_':
			clean = append(clean, b)
		}
	}
	if len(clean) == 0 {
		return "default"
	}
	return string(clean)
}
