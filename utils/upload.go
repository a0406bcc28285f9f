package utils

import (
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// UploadFile stores the multipart payload inside baseDir under a generated unique name
// and returns the stored path. The original filename is not used for uniqueness.
func UploadFile(baseDir string, fh *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	dst := filepath.Join(baseDir, UniqueName(fh.Filename))
	if err := SaveAs(dst, fh); err != nil {
		return "", err
	}
	return dst, nil
}

// SaveAs writes the multipart payload to dst, replacing any existing file.
// A partially written file is removed on failure.
func SaveAs(dst string, fh *multipart.FileHeader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create upload directory: %w", err)
	}
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}

// RemoveFile deletes a stored file; a file that is already gone is not an error.
func RemoveFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// UniqueName prefixes the base of the original name with a random UUID.
func UniqueName(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "file"
	}
	return uuid.NewString() + "_" + base
}

// DetectContentType sniffs the MIME type of a stored file.
func DetectContentType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

// FormatSize renders a byte count as e.g. "1.5 KB" or "1,000 KB"; non-positive sizes render as "0".
func FormatSize(size int64) string {
	if size <= 0 {
		return "0"
	}
	group := int(math.Log10(float64(size)) / math.Log10(1024))
	if group >= len(sizeUnits) {
		group = len(sizeUnits) - 1
	}
	value := float64(size) / math.Pow(1024, float64(group))
	return groupThousands(strconv.FormatFloat(value, 'f', 1, 64)) + " " + sizeUnits[group]
}

func groupThousands(num string) string {
	intPart, frac, _ := strings.Cut(num, ".")
	if frac == "0" {
		frac = ""
	}
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
