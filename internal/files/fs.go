package files

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"ytdl-inline-bot/internal/chat"
)

var (
	// ErrFileNotFound — папки передачи нет (загрузка не запускалась или уже удалена)
	ErrFileNotFound = errors.New("scratch folder not found")
	// ErrSizeExceeded — файл больше потолка Telegram
	ErrSizeExceeded = errors.New("file size exceeds upload limit")
)

// DefaultCeiling — 2147000000 байт, чуть меньше 2 GiB
const DefaultCeiling int64 = 2147000000

// расширения по типу медиа
var (
	audioExt = []string{".mp3", ".flac", ".wav", ".m4a"}
	videoExt = []string{".mkv", ".mp4", ".webm"}
	photoExt = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}
)

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// IsPhoto — картинка, годная в превью
func IsPhoto(name string) bool { return hasExt(name, photoExt) }

// IsJPEG — превью без конвертации
func IsJPEG(name string) bool { return hasExt(name, photoExt[:2]) }

// EnsureDir — создать директорию, если нет
func EnsureDir(dir string) error { return os.MkdirAll(dir, 0o755) }

// Exists — проверка существования файла
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// HumanSize — человекочитаемый размер (KiB/MiB/GiB)
func HumanSize(b int64) string {
	if b <= 0 {
		return ""
	}
	return humanize.IBytes(uint64(b))
}

// SafeJoin — безопасно соединяет базовую директорию и относительное имя
// не позволяет выйти за пределы baseDir
func SafeJoin(baseDir, name string) (string, error) {
	baseAbs, err := filepath.Abs(baseDir)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid relative path")
	}
	p := filepath.Join(baseAbs, clean)
	if p != baseAbs && !strings.HasPrefix(p, baseAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes base directory")
	}
	return p, nil
}

// ScratchDir — папка передачи по ключу
func ScratchDir(downloadDir, key string) (string, error) {
	return SafeJoin(downloadDir, key)
}

// Found — найденный медиафайл и превью рядом с ним
type Found struct {
	Path     string
	FileName string
	Size     int64
	Thumb    string
}

// FindMedia — первый непустой файл нужного типа в папке и первая картинка.
// Файл больше ceiling — ErrSizeExceeded, загрузка не начинается.
func FindMedia(dir string, kind chat.Kind, ceiling int64) (*Found, error) {
	var exts []string
	switch kind {
	case chat.KindAudio:
		exts = audioExt
	case chat.KindVideo:
		exts = videoExt
	default:
		return nil, fmt.Errorf("unsupported media kind: %q", kind)
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, dir)
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	found := &Found{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if found.Path == "" && hasExt(name, exts) {
			fi, err := e.Info()
			if err != nil || fi.Size() == 0 {
				continue
			}
			if fi.Size() > ceiling {
				return nil, fmt.Errorf("%w: %s is %s", ErrSizeExceeded, name, HumanSize(fi.Size()))
			}
			p, err := UnquoteFilename(filepath.Join(dir, name))
			if err != nil {
				return nil, err
			}
			found.Path, found.FileName, found.Size = p, filepath.Base(p), fi.Size()
		}
		if found.Thumb == "" && IsPhoto(name) {
			found.Thumb = filepath.Join(dir, name)
		}
		if found.Path != "" && found.Thumb != "" {
			break
		}
	}
	if found.Path == "" {
		return nil, fmt.Errorf("%w: no %s file in %s", ErrFileNotFound, kind, dir)
	}
	return found, nil
}

// UnquoteFilename — убрать кавычки из имени (ffmpeg на них спотыкается)
func UnquoteFilename(path string) (string, error) {
	dir, name := filepath.Split(path)
	clean := strings.NewReplacer(`"`, "", "'", "").Replace(name)
	if clean == name {
		return path, nil
	}
	np := filepath.Join(dir, clean)
	if err := os.Rename(path, np); err != nil {
		return "", err
	}
	return np, nil
}

// StartCleanup — фоновая очистка старых папок передач
func StartCleanup(ctx context.Context, dir string, ttlHours int, log *logrus.Entry) {
	if ttlHours <= 0 {
		return
	}
	interval := time.Hour
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := CleanupOnce(dir, time.Duration(ttlHours)*time.Hour, log)
				if err != nil {
					log.WithError(err).Error("[cleanup] failed")
					continue
				}
				if n > 0 {
					log.WithField("removed", n).Info("[cleanup] removed stale entries")
				}
			}
		}
	}()
}

// CleanupOnce — разовая очистка файлов и папок старше заданного возраста
func CleanupOnce(dir string, olderThan time.Duration, log *logrus.Entry) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().Before(cutoff) {
			if err := os.RemoveAll(p); err != nil {
				log.WithError(err).WithField("path", p).Warn("[cleanup] remove failed")
				continue
			}
			removed++
		}
	}
	return removed, nil
}
