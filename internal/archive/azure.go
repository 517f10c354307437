package archive

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"docbot/internal/logging"
)

// AzureMirror uploads archived outputs to an Azure blob container.
type AzureMirror struct {
	client    *azblob.Client
	container string
	logger    *slog.Logger
}

// NewAzureMirror connects to the storage account and ensures the container
// exists.
func NewAzureMirror(ctx context.Context, connectionString, container string, logger *slog.Logger) (*AzureMirror, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	logger = logging.NewComponentLogger(logger, "archive")
	if _, err := client.CreateContainer(ctx, container, nil); err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, fmt.Errorf("create container %s: %w", container, err)
	}
	logger.Info("blob mirror ready", logging.String("container", container))
	return &AzureMirror{client: client, container: container, logger: logger}, nil
}

// Upload streams the file at path to key.
func (m *AzureMirror) Upload(ctx context.Context, key, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	opts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	}
	if _, err := m.client.UploadStream(ctx, m.container, key, file, opts); err != nil {
		return fmt.Errorf("upload blob %s: %w", key, err)
	}
	return nil
}
