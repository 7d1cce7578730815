// Package reliability packages store snapshots into checksummed archives and
// ships them to object storage.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradeledger/internal/events"
)

const (
	archivePrefix   = "tradeledger-backup-"
	archiveSuffix   = ".tar.gz"
	archiveTime     = "2006-01-02-150405"
	metadataMember  = "backup-metadata.json"
	metadataVersion = "1"
)

// BackupMetadata is stored inside every archive as backup-metadata.json
type BackupMetadata struct {
	Timestamp time.Time       `json:"timestamp"`
	Version   string          `json:"version"`
	Stores    []StoreMetadata `json:"stores"`
}

// StoreMetadata describes one store snapshot inside the archive
type StoreMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupResult describes an uploaded archive
type BackupResult struct {
	Key       string         `json:"key"`
	SizeBytes int64          `json:"size_bytes"`
	Checksum  string         `json:"checksum"`
	Duration  time.Duration  `json:"duration"`
	Metadata  BackupMetadata `json:"metadata"`
}

// BackupInfo represents a stored backup
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// BackupConfig configures a BackupService
type BackupConfig struct {
	StagingDir string // scratch space for snapshots; removed after each run
	Prefix     string // object key prefix
	Retention  int    // archives kept by RotateOldBackups; 0 keeps everything
}

// BackupService snapshots stores, packages them and uploads the archive
type BackupService struct {
	snapshotters []Snapshotter
	uploader     Uploader
	cfg          BackupConfig
	events       *events.Manager
	log          zerolog.Logger
	now          func() time.Time
}

// NewBackupService creates a backup service. eventManager may be nil.
func NewBackupService(
	snapshotters []Snapshotter,
	uploader Uploader,
	cfg BackupConfig,
	eventManager *events.Manager,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		snapshotters: snapshotters,
		uploader:     uploader,
		cfg:          cfg,
		events:       eventManager,
		log:          log.With().Str("service", "backup").Logger(),
		now:          time.Now,
	}
}

// CreateAndUpload snapshots every store into a tar.gz archive with checksum
// metadata and uploads it.
func (s *BackupService) CreateAndUpload(ctx context.Context) (BackupResult, error) {
	s.log.Info().Int("stores", len(s.snapshotters)).Msg("Starting backup")
	startTime := s.now()

	if err := os.MkdirAll(s.cfg.StagingDir, 0755); err != nil {
		return BackupResult{}, fmt.Errorf("failed to create staging directory: %w", err)
	}
	stagingDir, err := os.MkdirTemp(s.cfg.StagingDir, "staging-")
	if err != nil {
		return BackupResult{}, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := BackupMetadata{
		Timestamp: startTime.UTC(),
		Version:   metadataVersion,
		Stores:    make([]StoreMetadata, 0, len(s.snapshotters)),
	}
	members := make([]string, 0, len(s.snapshotters)+1)

	for _, snap := range s.snapshotters {
		dst := filepath.Join(stagingDir, snap.Filename())
		s.log.Debug().Str("store", snap.Name()).Msg("Snapshotting store")

		if err := snap.Snapshot(ctx, dst); err != nil {
			return BackupResult{}, fmt.Errorf("failed to snapshot %s: %w", snap.Name(), err)
		}
		size, checksum, err := fileChecksum(dst)
		if err != nil {
			return BackupResult{}, fmt.Errorf("failed to checksum %s: %w", snap.Name(), err)
		}
		metadata.Stores = append(metadata.Stores, StoreMetadata{
			Name:      snap.Name(),
			Filename:  snap.Filename(),
			SizeBytes: size,
			Checksum:  checksum,
		})
		members = append(members, snap.Filename())
	}

	if err := writeMetadata(filepath.Join(stagingDir, metadataMember), metadata); err != nil {
		return BackupResult{}, fmt.Errorf("failed to write metadata: %w", err)
	}
	members = append(members, metadataMember)

	archiveName := archivePrefix + startTime.UTC().Format(archiveTime) + archiveSuffix
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, members); err != nil {
		return BackupResult{}, fmt.Errorf("failed to create archive: %w", err)
	}
	size, checksum, err := fileChecksum(archivePath)
	if err != nil {
		return BackupResult{}, fmt.Errorf("failed to checksum archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return BackupResult{}, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	key := s.key(archiveName)
	if err := s.uploader.Upload(ctx, key, archiveFile, size); err != nil {
		return BackupResult{}, fmt.Errorf("failed to upload backup: %w", err)
	}

	result := BackupResult{
		Key:       key,
		SizeBytes: size,
		Checksum:  checksum,
		Duration:  s.now().Sub(startTime),
		Metadata:  metadata,
	}
	s.log.Info().
		Dur("duration_ms", result.Duration).
		Str("key", key).
		Int64("size_bytes", size).
		Msg("Backup completed successfully")

	if s.events != nil {
		s.events.Emit("", "reliability", &events.BackupCompletedData{Key: key, SizeBytes: size, Checksum: checksum})
	}
	return result, nil
}

// ListBackups lists stored archives, newest first
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.uploader.List(ctx, s.key(archivePrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), archiveSuffix)
		ts, err := time.Parse(archiveTime, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from backup key")
			continue
		}
		backups = append(backups, BackupInfo{Key: obj.Key, Timestamp: ts, SizeBytes: obj.SizeBytes})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes all but the newest Retention archives and returns
// how many were removed.
func (s *BackupService) RotateOldBackups(ctx context.Context) (int, error) {
	if s.cfg.Retention <= 0 {
		return 0, nil
	}
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= s.cfg.Retention {
		return 0, nil
	}

	deleted := 0
	for _, backup := range backups[s.cfg.Retention:] {
		if err := s.uploader.Delete(ctx, backup.Key); err != nil {
			s.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}
	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")
	return deleted, nil
}

func (s *BackupService) key(name string) string {
	if s.cfg.Prefix == "" {
		return name
	}
	return strings.TrimSuffix(s.cfg.Prefix, "/") + "/" + name
}

// VerifyArchive reads a tar.gz archive produced by CreateAndUpload and checks
// every member against the embedded metadata.
func VerifyArchive(r io.Reader) (BackupMetadata, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return BackupMetadata{}, fmt.Errorf("not a gzip archive: %w", err)
	}
	defer gz.Close()

	sums := make(map[string]string)
	var metadata BackupMetadata
	var haveMetadata bool

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return BackupMetadata{}, fmt.Errorf("corrupt archive: %w", err)
		}
		if header.Name == metadataMember {
			if err := json.NewDecoder(tr).Decode(&metadata); err != nil {
				return BackupMetadata{}, fmt.Errorf("corrupt metadata: %w", err)
			}
			haveMetadata = true
			continue
		}
		hash := sha256.New()
		if _, err := io.Copy(hash, tr); err != nil {
			return BackupMetadata{}, fmt.Errorf("failed to read %s: %w", header.Name, err)
		}
		sums[header.Name] = "sha256:" + hex.EncodeToString(hash.Sum(nil))
	}

	if !haveMetadata {
		return BackupMetadata{}, fmt.Errorf("archive has no %s", metadataMember)
	}
	for _, store := range metadata.Stores {
		got, ok := sums[store.Filename]
		if !ok {
			return metadata, fmt.Errorf("archive is missing %s", store.Filename)
		}
		if got != store.Checksum {
			return metadata, fmt.Errorf("checksum mismatch for %s: got %s, want %s", store.Filename, got, store.Checksum)
		}
	}
	return metadata, nil
}

// fileChecksum returns the size and SHA256 checksum of a file
func fileChecksum(filePath string) (int64, string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, "", err
	}
	defer file.Close()

	hash := sha256.New()
	n, err := io.Copy(hash, file)
	if err != nil {
		return 0, "", err
	}
	return n, "sha256:" + hex.EncodeToString(hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(metadata); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// createArchive writes members of sourceDir into a tar.gz at archivePath
func createArchive(archivePath, sourceDir string, members []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, name := range members {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			archiveFile.Close()
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		archiveFile.Close()
		return err
	}
	if err := gzipWriter.Close(); err != nil {
		archiveFile.Close()
		return err
	}
	return archiveFile.Close()
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode().Perm()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tarWriter, file)
	return err
}
