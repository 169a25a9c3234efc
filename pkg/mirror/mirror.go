/*
 *     Copyright 2025 The CNAI Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package mirror stages custom model weights from an S3 mirror into a local
// model directory, for sites where the hub is not reachable.
package mirror

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	humanize "github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// downloadPartSize is the multipart download chunk size.
const downloadPartSize = 10 * 1024 * 1024

// Client downloads object trees from an S3 or S3-compatible mirror.
type Client struct {
	s3Client   *s3.Client
	downloader *manager.Downloader
}

// New creates a mirror client from the default AWS config chain. A non-empty
// endpoint targets S3-compatible stores.
func New(ctx context.Context, endpoint string) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	downloader := manager.NewDownloader(s3Client, func(d *manager.Downloader) {
		d.PartSize = downloadPartSize
	})

	return &Client{s3Client: s3Client, downloader: downloader}, nil
}

// Stage downloads every object under the s3://bucket/prefix uri into dest,
// preserving the key structure below the prefix.
func (c *Client) Stage(ctx context.Context, uri, dest string) error {
	bucket, prefix, err := splitURI(uri)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create destination %s: %w", dest, err)
	}

	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	count := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects under %s: %w", uri, err)
		}

		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			// Folder markers carry no content.
			if strings.HasSuffix(key, "/") {
				continue
			}

			if err := c.downloadObject(ctx, bucket, prefix, key, dest); err != nil {
				return err
			}

			count++
		}
	}

	if count == 0 {
		return fmt.Errorf("no objects found under %s", uri)
	}

	logrus.Infof("staged %d objects from %s to %s", count, uri, dest)
	return nil
}

// downloadObject fetches one object to its path under dest.
func (c *Client) downloadObject(ctx context.Context, bucket, prefix, key, dest string) error {
	rel := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
	path := filepath.Join(dest, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	size, err := c.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		logrus.Errorf("failed to download object %s: %v", key, err)
		return fmt.Errorf("failed to download object %s: %w", key, err)
	}

	logrus.Debugf("downloaded %s to %s (%s)", key, path, humanize.Bytes(uint64(size)))
	return nil
}

// splitURI splits an s3://bucket/prefix uri into bucket and prefix.
func splitURI(uri string) (bucket, prefix string, err error) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme != "s3" || parsed.Host == "" {
		return "", "", fmt.Errorf("invalid weights uri %s, expected s3://bucket/prefix", uri)
	}

	return parsed.Host, strings.TrimPrefix(parsed.Path, "/"), nil
}
