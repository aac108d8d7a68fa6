package session

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/lumencast/engine/internal/engineerr"
)

// AzureMirror uploads the session document to a blob container on every
// Persist, giving an off-box copy alongside the local atomic file — the
// local file remains authoritative at boot (spec §4.11 only requires local
// durability); this is additive.
type AzureMirror struct {
	client    *azblob.Client
	container string
	blobName  string
}

// NewAzureMirror builds a mirror targeting containerURL (an
// "https://<account>.blob.core.windows.net/<container>" URL) using
// DefaultAzureCredential, the credential chain alxayo-rtmp-go's blob-sidecar
// go.mod is built around (managed identity in production, az-cli/env vars
// in development).
func NewAzureMirror(containerURL, container, blobName string) (*AzureMirror, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.InitFailed, "NewAzureMirror", "default azure credential", err)
	}
	client, err := azblob.NewClient(containerURL, cred, nil)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.InitFailed, "NewAzureMirror", "new blob client", err)
	}
	return &AzureMirror{client: client, container: container, blobName: blobName}, nil
}

func (m *AzureMirror) Upload(ctx context.Context, data []byte) error {
	_, err := m.client.UploadBuffer(ctx, m.container, m.blobName, data, nil)
	if err != nil {
		return engineerr.Wrap(engineerr.Transient, "Upload", "blob upload", err)
	}
	return nil
}
