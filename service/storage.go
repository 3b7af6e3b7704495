package service

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"os"
	"path"
	"path/filepath"
	"strings"

	gstorage "cloud.google.com/go/storage"
	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube/interface/storage"
	"github.com/airbusgeo/geocube/interface/storage/uri"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jlaffaye/ftp"
)

// ErrFileNotFound is an error returned by Import or Delete
type ErrFileNotFound struct {
	File string
}

func (e ErrFileNotFound) Error() string {
	return fmt.Sprintf("File not found: %s", e.File)
}

func isErrNotFound(err error) bool {
	var epath *os.PathError
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	var ftpErr *textproto.Error
	return errors.Is(err, gstorage.ErrObjectNotExist) ||
		(errors.As(err, &epath) && os.IsNotExist(epath)) ||
		errors.As(err, &nsk) || errors.As(err, &nf) ||
		(errors.As(err, &ftpErr) && ftpErr.Code == ftp.StatusFileUnavailable)
}

// Storage is a service to archive the exported rasters
type Storage interface {
	// Save persists the local file into the storage under the given name and returns its uri
	Save(ctx context.Context, localPath, name string) (string, error)
	// Import copies the file from the storage to localPath
	// Raise ErrFileNotFound
	Import(ctx context.Context, name, localPath string) error
	// Delete deletes the file from the storage
	// Raise ErrFileNotFound
	Delete(ctx context.Context, name string) error
}

// StorageOptions are the credentials of the storages that do not use the environment
type StorageOptions struct {
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Endpoint        string
	FTPUser           string
	FTPPassword       string
}

// NewStorage returns the Storage that handles the uri:
// s3://bucket/prefix, ftp://host:port/dir, gs://bucket/prefix or a local directory
func NewStorage(ctx context.Context, storageURI string, opts StorageOptions) (Storage, error) {
	switch {
	case strings.HasPrefix(storageURI, "s3://"):
		return NewS3Storage(ctx, storageURI, opts.S3AccessKeyID, opts.S3SecretAccessKey, opts.S3Region, opts.S3Endpoint)
	case strings.HasPrefix(storageURI, "ftp://"):
		return NewFTPStorage(storageURI, opts.FTPUser, opts.FTPPassword)
	}
	return NewStorageStrategy(ctx, storageURI)
}

// StorageStrategy implements Storage using geocube.Strategy (local and gs)
type StorageStrategy struct {
	storage storage.Strategy
	uri     uri.DefaultUri
}

// NewStorageStrategy creates a new StorageStrategy
func NewStorageStrategy(ctx context.Context, storageURI string) (*StorageStrategy, error) {
	uri, err := uri.ParseUri(storageURI)
	if err != nil {
		return nil, fmt.Errorf("NewStorageStrategy.ParseURI: %w", err)
	}

	storageClient, err := uri.NewStorageStrategy(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewStorageStrategy: %w", err)
	}

	return &StorageStrategy{storage: storageClient, uri: uri}, nil
}

// Save implements Storage
func (ss *StorageStrategy) Save(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("Save.Open: %w", err)
	}
	defer f.Close()

	dst := ss.getPath(name)
	if !strings.Contains(dst, "://") {
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return "", fmt.Errorf("Save.MkdirAll: %w", err)
		}
	}
	if err := ss.storage.UploadFile(ctx, dst, f); err != nil {
		return "", fmt.Errorf("Save.UploadFile to %s: %w", dst, err)
	}
	return dst, nil
}

// Import implements Storage
func (ss *StorageStrategy) Import(ctx context.Context, name, localPath string) error {
	src := ss.getPath(name)
	if err := ss.storage.DownloadToFile(ctx, src, localPath); err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{src}
		}
		return fmt.Errorf("Import.DownloadToFile from %s: %w", src, err)
	}
	return nil
}

// Delete implements Storage
func (ss *StorageStrategy) Delete(ctx context.Context, name string) error {
	file := ss.getPath(name)
	if err := ss.storage.Delete(ctx, file); err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{file}
		}
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

func (ss *StorageStrategy) getPath(name string) string {
	uri := ss.uri.String()
	if !strings.HasSuffix(uri, "/") {
		uri += "/"
	}
	return uri + name
}

// ArchiveName returns the name of the raster in an archive: {region}/{year}/{file}
func ArchiveName(d common.ExportDescriptor, localPath string) string {
	return path.Join(common.SafeName(d.Region), fmt.Sprintf("%d", d.Window.Year), filepath.Base(localPath))
}

// WithExt replaces the extension of the file
func WithExt(filePath string, ext common.Extension) string {
	filePath = strings.TrimSuffix(filePath, filepath.Ext(filePath))
	if ext != "" {
		return fmt.Sprintf("%s.%s", filePath, string(ext))
	}
	return filePath
}

// GetExt returns the extension of the file (without the dot)
func GetExt(filePath string) common.Extension {
	ext := path.Ext(filePath)
	if ext == "" {
		return ""
	}
	return common.Extension(strings.ToLower(ext[1:]))
}
