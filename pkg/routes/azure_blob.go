package routes

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"go.uber.org/zap"
)

// AzureBlobEmitter uploads pages to an Azure Blob Storage container, for sites served from
// static website hosting. Plain HTTP endpoints such as a local Azurite are allowed.
type AzureBlobEmitter struct {
	client        *azblob.Client
	serviceURL    string
	containerName string
	prefix        string
	logger        *zap.Logger

	mu            sync.Mutex
	containerInit bool
}

// NewAzureBlobEmitter creates an emitter from a standard connection string. Blob names are
// prefix joined with each page's output path.
func NewAzureBlobEmitter(connectionString, containerName, prefix string, logger *zap.Logger) (*AzureBlobEmitter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if connectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if containerName == "" {
		return nil, fmt.Errorf("container name is required")
	}

	params := parseConnectionString(connectionString)
	accountName := params["AccountName"]
	accountKey := params["AccountKey"]
	serviceURL := params["BlobEndpoint"]
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("account name and key are required in the connection string")
	}
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	var clientOpts *azblob.ClientOptions
	if strings.HasPrefix(strings.ToLower(serviceURL), "http://") {
		clientOpts = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				InsecureAllowCredentialWithHTTP: true,
			},
		}
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &AzureBlobEmitter{
		client:        client,
		serviceURL:    strings.TrimRight(serviceURL, "/"),
		containerName: containerName,
		prefix:        strings.Trim(prefix, "/"),
		logger:        logger,
	}, nil
}

// Emit uploads page.HTML and returns the blob URL
func (a *AzureBlobEmitter) Emit(ctx context.Context, page Rendered) (string, error) {
	if err := a.ensureContainer(ctx); err != nil {
		return "", err
	}

	name := a.blobName(page.OutputPath)
	blobClient := a.client.ServiceClient().NewContainerClient(a.containerName).NewBlockBlobClient(name)

	_, err := blobClient.UploadBuffer(ctx, []byte(page.HTML), &azblob.UploadBufferOptions{
		Metadata: map[string]*string{
			"route": to.Ptr(page.Route),
		},
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr("text/html; charset=utf-8"),
		},
	})
	if err != nil {
		a.logger.Error("Failed to upload page",
			zap.String("blob_path", name),
			zap.String("route", page.Route),
			zap.Int("size", len(page.HTML)),
			zap.Error(err))
		return "", fmt.Errorf("blob upload failed: %w", err)
	}

	a.logger.Debug("Uploaded page",
		zap.String("blob_path", name),
		zap.Int("size_bytes", len(page.HTML)))
	return blobClient.URL(), nil
}

func (a *AzureBlobEmitter) blobName(outputPath string) string {
	name := strings.TrimPrefix(path.Clean("/"+outputPath), "/")
	if a.prefix == "" {
		return name
	}
	return a.prefix + "/" + name
}

func (a *AzureBlobEmitter) ensureContainer(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.containerInit {
		return nil
	}

	_, err := a.client.CreateContainer(ctx, a.containerName, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if !errors.As(err, &respErr) || respErr.ErrorCode != "ContainerAlreadyExists" {
			return fmt.Errorf("failed to ensure container: %w", err)
		}
	}

	a.containerInit = true
	return nil
}

func parseConnectionString(connectionString string) map[string]string {
	params := make(map[string]string)
	for _, part := range strings.Split(connectionString, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || key == "" {
			continue
		}
		params[key] = value
	}
	return params
}
