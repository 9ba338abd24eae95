package storage

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrEmptyFile    = errors.New("file is empty")
)

// StoredFile описывает загруженное вложение
type StoredFile struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	URL        string `json:"url"`
	Size       int64  `json:"size"`
	ObjectName string `json:"objectName"`
}

// FileStore хранилище вложений. URL в ответе публичный и больше не меняется.
type FileStore interface {
	Upload(ctx context.Context, file *multipart.FileHeader) (*StoredFile, error)
	Delete(ctx context.Context, objectName string) error
}

func checkSize(file *multipart.FileHeader, maxSize int64) error {
	if file.Size <= 0 {
		return ErrEmptyFile
	}
	if maxSize > 0 && file.Size > maxSize {
		return fmt.Errorf("%w (%d MB)", ErrFileTooLarge, maxSize/(1024*1024))
	}
	return nil
}

// ObjectName раскладывает файлы по датам: attachments/2006/01/02/<uuid>.ext
func ObjectName(filename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("attachments/%s/%s%s", now.Format("2006/01/02"), uuid.New().String(), ext)
}

// ContentType определяет тип по заголовку формы, затем по расширению
func ContentType(file *multipart.FileHeader) string {
	if ct := file.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}

	contentTypes := map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".gif":  "image/gif",
		".webp": "image/webp",
		".pdf":  "application/pdf",
		".txt":  "text/plain",
		".csv":  "text/csv",
		".doc":  "application/msword",
		".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		".zip":  "application/zip",
	}

	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(file.Filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}
