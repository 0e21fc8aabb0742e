package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveConfig locates the OAuth client and saved token for Drive uploads.
type DriveConfig struct {
	// CredentialsPath is the OAuth client JSON downloaded from Google Cloud.
	CredentialsPath string

	// TokenPath is where the user token is stored after Login.
	TokenPath string

	// FolderID is the Drive folder logs are placed in. Empty means My Drive.
	FolderID string
}

// DriveDestination uploads logs to Google Drive.
type DriveDestination struct {
	service  *drive.Service
	folderID string
}

// OAuthConfig reads the OAuth client from the credentials file with the
// drive.file scope.
func OAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read drive credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("parse drive credentials: %w", err)
	}
	return cfg, nil
}

// NewDriveDestination builds a destination from a saved token. Run Login
// first when no token exists.
func NewDriveDestination(ctx context.Context, cfg DriveConfig) (*DriveDestination, error) {
	oauthCfg, err := OAuthConfig(cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}
	token, err := LoadToken(cfg.TokenPath)
	if err != nil {
		return nil, err
	}

	service, err := drive.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return NewDriveDestinationWithService(service, cfg.FolderID), nil
}

// NewDriveDestinationWithService wraps an existing Drive service.
func NewDriveDestinationWithService(service *drive.Service, folderID string) *DriveDestination {
	return &DriveDestination{service: service, folderID: folderID}
}

// Name implements Destination.
func (d *DriveDestination) Name() string {
	return "drive"
}

// Upload creates a new Drive file with the log's name and contents and
// returns its web link, or a drive:// location when Drive returns none.
func (d *DriveDestination) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()

	meta := &drive.File{
		Name:     filepath.Base(path),
		MimeType: "text/tab-separated-values",
	}
	if d.folderID != "" {
		meta.Parents = []string{d.folderID}
	}

	created, err := d.service.Files.Create(meta).
		Media(f).
		Fields("id", "webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("drive upload: %w", err)
	}
	if created.WebViewLink != "" {
		return created.WebViewLink, nil
	}
	return "drive://" + created.Id, nil
}

// AuthURL returns the consent URL for the offline-access login flow.
func AuthURL(cfg *oauth2.Config) string {
	return cfg.AuthCodeURL("gazelog", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Login exchanges an authorization code and saves the token to tokenPath.
func Login(ctx context.Context, cfg *oauth2.Config, code, tokenPath string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}
	return SaveToken(tokenPath, token)
}

// LoadToken reads a saved OAuth token.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no token at %s", ErrNotAuthenticated, path)
		}
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return &token, nil
}

// SaveToken writes token to path with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
