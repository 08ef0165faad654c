// Package gateway exposes the media controller over HTTP.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"mediagw/internal/media"
	"mediagw/internal/transfer"
)

// Server routes media requests to a Controller.
type Server struct {
	media *media.Controller
}

func NewServer(controller *media.Controller) *Server {
	return &Server{media: controller}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	res, err := s.media.Create(r.Context(), multipartDecoder(r))
	if err != nil {
		writeError(w, r, "Create media", err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request, id string) {
	obj, err := s.media.Read(r.Context(), id)
	if err != nil {
		writeError(w, r, "Read media", err)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := obj.WriteTo(w); err != nil {
		// The status line is gone; the only thing left is to cut the
		// connection so the client sees a truncated body.
		slog.Error("Stream media", "id", id, "err", err)
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	res, err := s.media.Update(r.Context(), id, multipartDecoder(r))
	if err != nil {
		writeError(w, r, "Update media", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.media.Delete(r.Context(), id); err != nil {
		writeError(w, r, "Delete media", err)
		return
	}

	writeText(w, http.StatusOK, "File deleted successfully")
}

// multipartDecoder returns the first file part of r's multipart body.
// Parts without a filename are skipped.
func multipartDecoder(r *http.Request) media.Decoder {
	return func() (media.Upload, error) {
		mr, err := r.MultipartReader()
		if err != nil {
			return media.Upload{}, fmt.Errorf("%w: %w", media.ErrDecode, err)
		}

		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return media.Upload{}, fmt.Errorf("%w: no file part", media.ErrDecode)
			}
			if err != nil {
				return media.Upload{}, fmt.Errorf("%w: %w", media.ErrDecode, err)
			}

			if part.FileName() == "" {
				_ = part.Close()
				continue
			}

			return media.Upload{
				Filename: part.FileName(),
				MimeType: part.Header.Get("Content-Type"),
				Body:     part,
			}, nil
		}
	}
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, transfer.ErrInvalidType):
		return http.StatusBadRequest, "Invalid file type"
	case errors.Is(err, media.ErrDecode):
		return http.StatusBadRequest, "Malformed request body"
	case errors.Is(err, media.ErrNotFound), errors.Is(err, transfer.ErrObjectNotFound):
		return http.StatusNotFound, "File not found"
	case errors.Is(err, transfer.ErrUpload):
		return http.StatusInternalServerError, "Error uploading file"
	case errors.Is(err, transfer.ErrDelete):
		return http.StatusInternalServerError, "Error deleting file"
	case errors.Is(err, transfer.ErrTransfer):
		return http.StatusInternalServerError, "Error retrieving file"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// writeError logs err and replies with a generic message for its class.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, message := statusFor(err)

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), op, "url", r.URL.Path, "err", err)
	} else {
		slog.DebugContext(r.Context(), op, "url", r.URL.Path, "err", err)
	}

	writeText(w, status, message)
}

func writeNotFound(w http.ResponseWriter) {
	writeText(w, http.StatusNotFound, "Not found")
}

func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Encode JSON response", "err", err)
		writeText(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
