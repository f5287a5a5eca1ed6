package publish

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"duck-export/internal/domain"
)

var _ domain.Publisher = (*Azure)(nil)

// Azure publishes to Azure Blob Storage with an account key and SAS URLs.
type Azure struct {
	client *azblob.Client
	target Target
	expiry time.Duration
}

// NewAzure creates an Azure publisher with shared-key credentials.
func NewAzure(cfg Config, target Target) (*Azure, error) {
	if cfg.AzureAccountName == "" || cfg.AzureAccountKey == "" {
		return nil, fmt.Errorf("Azure publishing requires AZURE_ACCOUNT_NAME and AZURE_ACCOUNT_KEY")
	}
	cred, err := azblob.NewSharedKeyCredential(cfg.AzureAccountName, cfg.AzureAccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := cfg.AzureServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AzureAccountName)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return &Azure{client: client, target: target, expiry: cfg.Expiry}, nil
}

// Publish uploads localPath as name and returns a read-only SAS URL.
func (p *Azure) Publish(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", &domain.IOError{Op: "open", Path: localPath, Err: err}
	}
	defer f.Close()

	key := p.target.Key(name)
	if _, err := p.client.UploadFile(ctx, p.target.Bucket, key, f, nil); err != nil {
		return "", fmt.Errorf("upload az://%s/%s: %w", p.target.Bucket, key, err)
	}

	blobClient := p.client.ServiceClient().NewContainerClient(p.target.Bucket).NewBlobClient(key)
	sasURL, err := blobClient.GetSASURL(sas.BlobPermissions{Read: true}, time.Now().Add(p.expiry), nil)
	if err != nil {
		return "", fmt.Errorf("generate SAS URL for az://%s/%s: %w", p.target.Bucket, key, err)
	}
	return sasURL, nil
}
