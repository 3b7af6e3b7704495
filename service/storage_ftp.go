package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPStorage implements Storage on a FTP server
// A new connection is opened for each operation
type FTPStorage struct {
	host  string
	dir   string
	user  string
	pword string
	tls   bool
}

// NewFTPStorage creates a Storage on ftp://[user:password@]host[:port]/dir
// user and pword are used if the uri has no userinfo. Port 990 enables implicit TLS.
func NewFTPStorage(storageURI, user, pword string) (*FTPStorage, error) {
	u, err := url.Parse(storageURI)
	if err != nil {
		return nil, fmt.Errorf("NewFTPStorage.Parse: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("NewFTPStorage: missing host in %s", storageURI)
	}
	host := u.Host
	if u.Port() == "" {
		host += ":21"
	}
	if u.User != nil {
		user = u.User.Username()
		pword, _ = u.User.Password()
	}
	if user == "" {
		user = "anonymous"
	}
	return &FTPStorage{
		host:  host,
		dir:   strings.Trim(u.Path, "/"),
		user:  user,
		pword: pword,
		tls:   u.Port() == "990",
	}, nil
}

func (s *FTPStorage) connect(ctx context.Context) (*ftp.ServerConn, error) {
	ftpOption := []ftp.DialOption{ftp.DialWithTimeout(5 * time.Second), ftp.DialWithContext(ctx)}
	if s.tls {
		ftpOption = append(ftpOption, ftp.DialWithTLS(&tls.Config{InsecureSkipVerify: true})) //nolint:gosec
	}
	c, err := ftp.Dial(s.host, ftpOption...)
	if err != nil {
		return nil, MakeTemporary(fmt.Errorf("Dial: %w", err))
	}
	if err = c.Login(s.user, s.pword); err != nil {
		c.Quit()
		return nil, fmt.Errorf("Login: %w", err)
	}
	return c, nil
}

func (s *FTPStorage) path(name string) string {
	return "/" + path.Join(s.dir, name)
}

func (s *FTPStorage) uri(name string) string {
	return "ftp://" + s.host + s.path(name)
}

// Save implements Storage
func (s *FTPStorage) Save(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("FTPStorage.Save.Open: %w", err)
	}
	defer f.Close()

	c, err := s.connect(ctx)
	if err != nil {
		return "", fmt.Errorf("FTPStorage.Save.%w", err)
	}
	defer c.Quit()

	dst := s.path(name)
	// Create the folder tree, ignoring the errors of the already existing ones
	dir := "/"
	for _, d := range strings.Split(strings.Trim(path.Dir(dst), "/"), "/") {
		if d == "" {
			continue
		}
		dir = path.Join(dir, d)
		_ = c.MakeDir(dir)
	}
	if err := c.Stor(dst, f); err != nil {
		return "", fmt.Errorf("FTPStorage.Save.Stor: %w", err)
	}
	return s.uri(name), nil
}

// Import implements Storage
func (s *FTPStorage) Import(ctx context.Context, name, localPath string) error {
	c, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("FTPStorage.Import.%w", err)
	}
	defer c.Quit()

	r, err := c.Retr(s.path(name))
	if err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{s.uri(name)}
		}
		return fmt.Errorf("FTPStorage.Import.Retr: %w", err)
	}
	defer r.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("FTPStorage.Import.Create: %w", err)
	}
	if _, err := f.ReadFrom(r); err != nil {
		f.Close()
		os.Remove(localPath)
		return fmt.Errorf("FTPStorage.Import.Copy: %w", err)
	}
	return f.Close()
}

// Delete implements Storage
func (s *FTPStorage) Delete(ctx context.Context, name string) error {
	c, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("FTPStorage.Delete.%w", err)
	}
	defer c.Quit()

	if err := c.Delete(s.path(name)); err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{s.uri(name)}
		}
		return fmt.Errorf("FTPStorage.Delete: %w", err)
	}
	return nil
}
