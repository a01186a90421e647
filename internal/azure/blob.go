// Package azure holds the Azure collaborators: the blob container that
// stores the forms and the Form Recognizer analysis service.
package azure

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// ContainerSource enumerates and downloads the blobs of one container.
type ContainerSource struct {
	client    *azblob.Client
	container string
}

// NewContainerSource builds a source from a storage account connection string.
func NewContainerSource(connectionString, container string) (*ContainerSource, error) {
	if connectionString == "" || container == "" {
		return nil, fmt.Errorf("NewContainerSource: connection string and container cannot be empty")
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob service client: %w", err)
	}
	return &ContainerSource{client: client, container: container}, nil
}

// Walk calls fn for every blob of a flat listing, page by page.
func (s *ContainerSource) Walk(ctx context.Context, fn func(name string) error) error {
	pager := s.client.NewListBlobsFlatPager(s.container, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list blobs in container %s: %w", s.container, err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			if err := fn(*item.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Open starts a download and returns the body stream.
func (s *ContainerSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s/%s: %w", s.container, name, err)
	}
	return resp.Body, nil
}
