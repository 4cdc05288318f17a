package infra

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"crypto_terminal/internal/domain"
)

// IconSize is the edge length of stored icons in pixels.
const IconSize = 24

// AssetStore records which base assets are listed and where their icons live.
type AssetStore interface {
	UpsertAsset(asset *domain.AssetInfo) error
	GetAsset(asset string) (*domain.AssetInfo, error)
	SetActiveAssets(assets []string) error
}

// IconDownloader handles downloading and caching base asset icons
type IconDownloader struct {
	basePath   string
	urlPattern string // printf pattern taking the lower-case asset
	client     *http.Client
	store      AssetStore
	logger     *slog.Logger
}

// NewIconDownloader creates a downloader writing into basePath.
// An empty basePath resolves to the per-user config directory.
func NewIconDownloader(basePath, urlPattern string, store AssetStore) (*IconDownloader, error) {
	if basePath == "" {
		path, err := getAssetsPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve assets path: %w", err)
		}
		basePath = path
	}

	// Ensure directory exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create assets directory: %w", err)
	}

	// Optimize HTTP Transport to prevent connection leaks
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxConnsPerHost = 10
	transport.IdleConnTimeout = 30 * time.Second

	return &IconDownloader{
		basePath:   basePath,
		urlPattern: urlPattern,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
		store:  store,
		logger: slog.Default().With("module", "assets"),
	}, nil
}

// DownloadIcon downloads the icon for an asset if it doesn't exist
// Returns the local file path on success
// Images are resized to IconSize pixels for consistent UI display
func (d *IconDownloader) DownloadIcon(ctx context.Context, asset string) (string, error) {
	// Security: Sanitize asset to prevent path traversal
	safe := strings.ToLower(sanitizeSymbol(asset))
	if safe == "" {
		return "", fmt.Errorf("invalid asset: %q", asset)
	}

	filePath := filepath.Join(d.basePath, safe+".png")

	// Check if exists
	if _, err := os.Stat(filePath); err == nil {
		return filePath, nil // Cache hit
	}

	url := fmt.Sprintf(d.urlPattern, safe)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", domain.NewNetworkError("icon download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bad status: %s", resp.Status)
	}

	// Decode the image
	srcImg, err := imaging.Decode(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	resized := imaging.Resize(srcImg, IconSize, IconSize, imaging.Lanczos)

	if err := imaging.Save(resized, filePath); err != nil {
		return "", fmt.Errorf("failed to save resized image: %w", err)
	}

	return filePath, nil
}

// GetIconPath returns the local path for an asset's icon
func (d *IconDownloader) GetIconPath(asset string) string {
	return filepath.Join(d.basePath, strings.ToLower(sanitizeSymbol(asset))+".png")
}

// SyncAssets marks exactly the given base assets active and fetches any
// icon not on disk yet. Download failures are logged and skipped; the
// number of icons newly stored is returned.
func (d *IconDownloader) SyncAssets(ctx context.Context, assets []string) (int, error) {
	if d.store != nil {
		if err := d.store.SetActiveAssets(assets); err != nil {
			return 0, fmt.Errorf("failed to mark active assets: %w", err)
		}
	}

	fetched := 0
	for _, asset := range assets {
		if ctx.Err() != nil {
			return fetched, ctx.Err()
		}

		existed := d.hasIcon(asset)
		path, err := d.DownloadIcon(ctx, asset)
		if err != nil {
			d.logger.Warn("Icon download failed", "asset", asset, "error", err)
			continue
		}
		if !existed {
			fetched++
		}

		if d.store == nil {
			continue
		}
		info, err := d.store.GetAsset(asset)
		if err != nil {
			d.logger.Warn("Asset lookup failed", "asset", asset, "error", err)
			continue
		}
		if info == nil {
			info = &domain.AssetInfo{Asset: asset, IsActive: true}
		}
		if info.IconPath == path && existed {
			continue
		}
		info.IconPath = path
		info.LastSyncedAt = time.Now()
		if err := d.store.UpsertAsset(info); err != nil {
			d.logger.Warn("Asset save failed", "asset", asset, "error", err)
		}
	}

	if fetched > 0 {
		d.logger.Info("🖼️ Icons synced", "fetched", fetched, "assets", len(assets))
	}
	return fetched, nil
}

func (d *IconDownloader) hasIcon(asset string) bool {
	_, err := os.Stat(d.GetIconPath(asset))
	return err == nil
}

func getAssetsPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "CryptoTerminal", "assets", "icons"), nil
}

func sanitizeSymbol(symbol string) string {
	res := make([]rune, 0, len(symbol))
	for _, r := range symbol {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			res = append(res, r)
		}
	}
	return string(res)
}
