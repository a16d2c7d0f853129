// Package retrieval serves finished artifacts and removes them again.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	apperrors "github.com/reelfetch/backend/internal/errors"
	"github.com/reelfetch/backend/internal/logger"
)

var ErrNotFound = errors.New("artifact not found")

// Store locates artifacts named "<id>_<filename>" in one directory.
type Store struct {
	dir   string
	grace time.Duration
	log   *logger.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewStore creates a Store. Served artifacts are deleted grace after the
// first completed response.
func NewStore(dir string, grace time.Duration, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Default()
	}
	return &Store{
		dir:     dir,
		grace:   grace,
		log:     log.WithComponent("retrieval"),
		pending: make(map[string]*time.Timer),
	}
}

// Dir returns the artifact directory
func (s *Store) Dir() string {
	return s.dir
}

// Locate finds the artifact for id by prefix scan.
func (s *Store) Locate(id string) (string, error) {
	if !validID(id) {
		return "", ErrNotFound
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read downloads dir: %w", err)
	}

	prefix := id + "_"
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || isTemporary(strings.TrimPrefix(name, prefix)) {
			continue
		}
		return filepath.Join(s.dir, name), nil
	}
	return "", ErrNotFound
}

// Serve streams the artifact for id as an attachment. filename overrides
// the name offered to the client.
func (s *Store) Serve(w http.ResponseWriter, r *http.Request, id, filename string) error {
	path, err := s.Locate(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperrors.FileNotFound()
		}
		return apperrors.InternalError("Failed to read downloads").WithCause(err)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperrors.FileNotFound()
		}
		return apperrors.InternalError("Failed to open file").WithCause(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return apperrors.InternalError("Failed to open file").WithCause(err)
	}

	name := cleanName(filename)
	if name == "" {
		name = strings.TrimPrefix(filepath.Base(path), id+"_")
	}

	w.Header().Set("Content-Disposition", ContentDisposition(name))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, name, info.ModTime(), f)

	if r.Context().Err() == nil {
		s.ScheduleDelete(path)
	}
	s.log.Info(r.Context(), "artifact served", map[string]interface{}{
		"download_id": id,
		"filename":    name,
		"size":        info.Size(),
	})
	return nil
}

// ScheduleDelete removes path after the grace period. Repeated calls for
// the same path keep the first schedule.
func (s *Store) ScheduleDelete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[path]; ok {
		return
	}
	s.pending[path] = time.AfterFunc(s.grace, func() {
		s.mu.Lock()
		delete(s.pending, path)
		s.mu.Unlock()
		if err := RemoveQuietly(path); err != nil {
			s.log.Warn(context.Background(), "failed to delete served artifact", map[string]interface{}{"path": path, "error": err.Error()})
			return
		}
		s.log.Debug(context.Background(), "served artifact deleted", map[string]interface{}{"path": path})
	})
}

// Close cancels pending deletions
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, t := range s.pending {
		t.Stop()
		delete(s.pending, path)
	}
}

// RemoveQuietly deletes path. A file that is already gone is not an error.
func RemoveQuietly(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ContentDisposition builds an attachment header. Non-ASCII names get an
// RFC 5987 filename* parameter next to an ASCII fallback.
func ContentDisposition(name string) string {
	ascii := make([]rune, 0, len(name))
	plain := true
	for _, r := range name {
		if r > unicode.MaxASCII || r < 0x20 {
			plain = false
			ascii = append(ascii, '_')
			continue
		}
		if r == '"' || r == '\\' {
			ascii = append(ascii, '_')
			continue
		}
		ascii = append(ascii, r)
	}
	header := fmt.Sprintf(`attachment; filename="%s"`, string(ascii))
	if !plain {
		header += "; filename*=UTF-8''" + url.PathEscape(name)
	}
	return header
}

// cleanName reduces a client supplied filename to a bare file name.
func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
}

func validID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		if !(r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// isTemporary matches in-flight files: stream temps and yt-dlp partials.
func isTemporary(name string) bool {
	return strings.HasPrefix(name, "video_temp.") ||
		strings.HasPrefix(name, "audio_temp.") ||
		strings.HasPrefix(name, "output_temp.") ||
		strings.HasSuffix(name, ".part") ||
		strings.HasSuffix(name, ".ytdl") ||
		strings.HasSuffix(name, ".tmp")
}
